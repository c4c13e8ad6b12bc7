// Package workflow implements the ten-state clinical acquisition engine
// (spec.md §3), adapted from the teacher's single-writer,
// channel-driven DUL state machine (statemachine.go): one goroutine
// owns all state, selecting from a small set of channels each step,
// looking up the transition for (currentState, trigger) in a table, and
// committing journal-write before state-swap before event-dispatch.
// Guarded transitions and the nine-interlock safety gate replace the
// teacher's PDU handshake guards; an abort fast-path channel replaces
// nothing in the teacher (a genuinely new requirement) but follows the
// same single-writer discipline so it can never race a normal
// transition.
package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/clinicore/xray-console/pkg/dose"
	"github.com/clinicore/xray-console/pkg/errkind"
	"github.com/clinicore/xray-console/pkg/eventbus"
	"github.com/clinicore/xray-console/pkg/hardware"
	"github.com/clinicore/xray-console/pkg/journal"
	"github.com/clinicore/xray-console/pkg/model"
	"github.com/clinicore/xray-console/pkg/safety"
	"github.com/clinicore/xray-console/pkg/uidgen"
)

// studySnapshotMetadataKey is the reserved journal-entry metadata key
// under which applyTransition stashes a JSON snapshot of StudyContext on
// every Applied entry, so crash recovery can restore it without
// replaying the whole journal.
const studySnapshotMetadataKey = "_study_snapshot"

// MPPSCloser is the narrow collaborator the crash-recovery clean-start
// path uses to send MPPS DISCONTINUED for whatever procedure step was
// interrupted, rather than importing the full transport package.
type MPPSCloser interface {
	Discontinue(ctx context.Context, study model.StudyContext) error
}

// transitionKey mirrors the teacher's stateTransitionKey, replacing
// (stateType, eventType) with the clinical (WorkflowState, Trigger) pair.
type transitionKey struct {
	From    model.WorkflowState
	Trigger model.Trigger
}

// transitionRequest is what callers enqueue; the engine goroutine alone
// mutates Engine.study/Engine.current once it dequeues one.
type transitionRequest struct {
	trigger    model.Trigger
	operatorID string
	metadata   map[string]string
	result     chan error
}

// GuardFunc evaluates one precondition for a transition and returns its
// outcome; guards never mutate engine state. req is passed through so a
// guard can read caller-supplied metadata (e.g. a proposed DAP) without
// the engine having to stage it into study state before guards run.
type GuardFunc func(e *Engine, req transitionRequest) model.GuardOutcome

// ApplyFunc performs the state-local side effect of a transition
// (assigning UIDs, recording dose, clearing PHI, ...). It runs after
// guards pass and before the journal entry is written, so any error it
// returns aborts the transition before anything is committed.
type ApplyFunc func(e *Engine, req transitionRequest) error

type transition struct {
	To     model.WorkflowState
	Guards []GuardFunc
	Apply  ApplyFunc
}

// Engine is the single-writer clinical workflow state machine.
type Engine struct {
	logger *zap.Logger

	journal journal.Journal
	bus     *eventbus.Bus
	core    *safety.Core
	dose    *dose.Tracker
	uids    *uidgen.Generator
	aec     hardware.AEC
	mpps    MPPSCloser

	current model.WorkflowState
	study   model.StudyContext

	limits model.DeviceSafetyLimits

	triggerCh chan transitionRequest
	abortCh   chan transitionRequest

	pendingRecovery *RecoveryChoice

	unsubscribeSafety func()
}

// Config bundles an Engine's collaborators, constructed in the
// dependency order spec.md §2 prescribes (uidgen → ... → eventbus) by
// the caller before New is invoked. MPPS is optional: nil skips the
// DISCONTINUED notification on a clean-start recovery decision.
type Config struct {
	Logger  *zap.Logger
	Journal journal.Journal
	Bus     *eventbus.Bus
	Safety  *safety.Core
	Dose    *dose.Tracker
	UIDs    *uidgen.Generator
	AEC     hardware.AEC
	MPPS    MPPSCloser
	Limits  model.DeviceSafetyLimits
}

// RecoveryChoice is the crash-recovery decision an operator must make
// before the engine resumes work, per spec.md §4.1: the journal tail
// shows an Applied transition into a non-Idle state, meaning the
// process died mid-study, and recovery takes no automatic action.
type RecoveryChoice struct {
	// PriorState is the state the journal tail recorded before the crash.
	PriorState model.WorkflowState
	// Study is the StudyContext restored from the tail entry's snapshot.
	Study model.StudyContext
}

// RecoveryRequiredPayload is published once, from New, when the journal
// tail leaves a recovery decision pending.
type RecoveryRequiredPayload struct {
	PriorState model.WorkflowState
	StudyUID   string
}

// RecoveryResolvedPayload is published once ResolveRecovery has acted on
// the operator's decision.
type RecoveryResolvedPayload struct {
	Resumed bool
	State   model.WorkflowState
}

// New constructs an Engine and inspects the journal tail to detect a
// crash mid-study, per spec.md §4.1: an Applied entry into a non-Idle
// state means the process died before the study closed out, and New
// takes no automatic action on it. Instead it stages a RecoveryChoice
// (retrievable via PendingRecovery), publishes a RecoveryRequired event,
// and refuses Fire until the operator's decision reaches ResolveRecovery.
// A tail entry that is Rejected (the transition never took effect) or a
// fresh journal resumes straight at the recorded/zero state, since there
// is nothing in progress to decide about.
func New(cfg Config) (*Engine, error) {
	e := &Engine{
		logger:    cfg.Logger,
		journal:   cfg.Journal,
		bus:       cfg.Bus,
		core:      cfg.Safety,
		dose:      cfg.Dose,
		uids:      cfg.UIDs,
		aec:       cfg.AEC,
		mpps:      cfg.MPPS,
		limits:    cfg.Limits,
		current:   model.StateIdle,
		triggerCh: make(chan transitionRequest, 64),
		abortCh:   make(chan transitionRequest, 1),
	}

	tail, ok, err := cfg.Journal.Tail()
	if err != nil {
		return nil, fmt.Errorf("workflow: journal replay on recovery: %w", err)
	}
	if ok {
		switch tail.Outcome {
		case model.OutcomeApplied:
			if tail.To == model.StateIdle {
				e.current = tail.To
				break
			}
			e.current = model.StateUndefined
			e.pendingRecovery = &RecoveryChoice{
				PriorState: tail.To,
				Study:      restoreStudyFromMetadata(tail.Metadata),
			}
		case model.OutcomeRejected:
			e.current = tail.From
		}
	}

	e.unsubscribeSafety = cfg.Safety.SubscribeChanges(e.onSafetyChange)

	if e.pendingRecovery != nil {
		e.logger.Warn("workflow: crash recovery decision pending",
			zap.Stringer("prior_state", e.pendingRecovery.PriorState), zap.String("study_uid", e.pendingRecovery.Study.StudyUID))
		e.bus.Publish(eventbus.Event{Kind: "RecoveryRequired", Payload: RecoveryRequiredPayload{
			PriorState: e.pendingRecovery.PriorState,
			StudyUID:   e.pendingRecovery.Study.StudyUID,
		}})
	}
	return e, nil
}

// PendingRecovery returns the crash-recovery decision awaiting an
// operator choice, or nil if none is outstanding.
func (e *Engine) PendingRecovery() *RecoveryChoice {
	return e.pendingRecovery
}

// ResolveRecovery applies the operator's crash-recovery decision and
// must be called before Run begins consuming triggers — it mutates
// Engine state directly rather than through the single-writer channel,
// since no normal transition can be in flight until Run starts. Resuming
// restores the journaled StudyContext and picks up from the prior state;
// a clean start notifies the MPPS collaborator (if configured) of a
// DISCONTINUED procedure step and returns to Idle with no study staged.
func (e *Engine) ResolveRecovery(ctx context.Context, resume bool) error {
	choice := e.pendingRecovery
	if choice == nil {
		return errkind.New(errkind.GuardFailure, "workflow: no crash-recovery decision pending")
	}
	e.pendingRecovery = nil

	if resume {
		e.study = choice.Study
		e.current = choice.PriorState
		e.logger.Info("workflow: operator resumed study interrupted by crash", zap.Stringer("state", e.current), zap.String("study_uid", e.study.StudyUID))
	} else {
		if e.mpps != nil && choice.Study.StudyUID != "" {
			if err := e.mpps.Discontinue(ctx, choice.Study); err != nil {
				e.logger.Error("workflow: clean-start MPPS DISCONTINUED failed", zap.Error(err))
			}
		}
		e.study = model.StudyContext{}
		e.current = model.StateIdle
		e.logger.Info("workflow: operator chose clean start after crash, prior study discarded")
	}

	e.bus.Publish(eventbus.Event{Kind: "RecoveryResolved", Payload: RecoveryResolvedPayload{Resumed: resume, State: e.current}})
	return nil
}

// withStudySnapshot copies metadata and adds a JSON snapshot of the
// engine's current study under studySnapshotMetadataKey, so the journal
// entry carries everything crash recovery needs to restore StudyContext
// without replaying every prior entry.
func (e *Engine) withStudySnapshot(metadata map[string]string) map[string]string {
	out := make(map[string]string, len(metadata)+1)
	for k, v := range metadata {
		out[k] = v
	}
	snapshot, err := json.Marshal(e.study)
	if err != nil {
		e.logger.Error("workflow: marshaling study snapshot for journal", zap.Error(err))
		return out
	}
	out[studySnapshotMetadataKey] = string(snapshot)
	return out
}

// restoreStudyFromMetadata decodes the snapshot withStudySnapshot wrote,
// or returns a zero StudyContext if the entry carries none (e.g. a
// journal written before this field existed).
func restoreStudyFromMetadata(metadata map[string]string) model.StudyContext {
	raw, ok := metadata[studySnapshotMetadataKey]
	if !ok {
		return model.StudyContext{}
	}
	var study model.StudyContext
	if err := json.Unmarshal([]byte(raw), &study); err != nil {
		return model.StudyContext{}
	}
	return study
}

// Close unsubscribes from the safety core.
func (e *Engine) Close() {
	if e.unsubscribeSafety != nil {
		e.unsubscribeSafety()
	}
}

// Current returns the engine's current state. Safe to call concurrently;
// the underlying field is only ever written by the engine goroutine, and
// callers only need an eventually-consistent read for display purposes.
func (e *Engine) Current() model.WorkflowState {
	return e.current
}

// onSafetyChange is the fast-path hook: if an interlock is lost while an
// exposure is armed or in progress, it calls the generator abort
// directly — before anything touches the trigger channel or the journal
// — and then enqueues the QcReview transition on the dedicated abort
// channel, which Run's select favors over the normal trigger queue. The
// direct call is what holds the 5ms signal-to-abort-call budget from
// spec.md §4.2; the journal write that follows it runs at the single
// writer's ordinary pace.
func (e *Engine) onSafetyChange(status model.InterlockStatus) {
	if status.AllPassed {
		return
	}
	if e.current != model.StateExposureTrigger {
		return
	}
	if err := e.core.AbortExposure(context.Background()); err != nil {
		e.logger.Error("workflow: fast-path generator abort call failed", zap.Error(err))
	}
	req := transitionRequest{trigger: model.TriggerAbortRequested, metadata: map[string]string{"reason": "interlock_loss"}}
	select {
	case e.abortCh <- req:
	default:
	}
}

// Fire enqueues trigger and blocks until the engine goroutine has
// processed it, returning any guard-failure or persistence error. It
// refuses outright while a crash-recovery decision is pending (see
// ResolveRecovery): no trigger should make progress until the operator
// has chosen to resume or clean-start.
func (e *Engine) Fire(ctx context.Context, trigger model.Trigger, operatorID string, metadata map[string]string) error {
	if e.pendingRecovery != nil {
		return errkind.New(errkind.GuardFailure, "workflow: crash-recovery decision pending; call ResolveRecovery first")
	}
	req := transitionRequest{trigger: trigger, operatorID: operatorID, metadata: metadata, result: make(chan error, 1)}
	select {
	case e.triggerCh <- req:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-req.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run is the single-writer event loop, adapted from the teacher's
// runOneStep/getNextEvent pair: it blocks for the next request, favoring
// the abort channel, and processes exactly one transition per
// iteration until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) {
	for {
		req, ok := e.getNextRequest(ctx)
		if !ok {
			return
		}
		e.runOneStep(req)
	}
}

func (e *Engine) getNextRequest(ctx context.Context) (transitionRequest, bool) {
	select {
	case req := <-e.abortCh:
		return req, true
	default:
	}
	select {
	case req := <-e.abortCh:
		return req, true
	case req := <-e.triggerCh:
		return req, true
	case <-ctx.Done():
		return transitionRequest{}, false
	}
}

func (e *Engine) runOneStep(req transitionRequest) {
	err := e.applyTransition(req)
	if req.result != nil {
		req.result <- err
	}
}

// applyTransition looks up the table entry for (current, trigger),
// evaluates every guard (even after the first failure, so the journal
// entry is complete), and — only if all pass — runs Apply, writes the
// journal entry, swaps e.current, and publishes the StateChanged event,
// in that fixed order (spec.md §4.1's atomic commit ordering).
func (e *Engine) applyTransition(req transitionRequest) error {
	key := transitionKey{From: e.current, Trigger: req.trigger}
	t, ok := transitionTable[key]
	if !ok {
		entry := model.JournalEntry{
			ID:         e.nextJournalID(),
			AtUTC:      time.Now().UTC(),
			From:       e.current,
			To:         e.current,
			Trigger:    req.trigger,
			OperatorID: req.operatorID,
			Category:   model.CategoryWorkflow,
			Metadata:   req.metadata,
			Outcome:    model.OutcomeRejected,
			Guards:     []model.GuardOutcome{{Name: "transition_defined", Passed: false, Detail: "no transition defined for this state/trigger pair"}},
		}
		if err := e.journal.Append(entry); err != nil {
			return err
		}
		e.logger.Warn("workflow: rejected undefined transition",
			zap.Stringer("from", e.current), zap.Stringer("trigger", req.trigger))
		return errkind.New(errkind.GuardFailure, fmt.Sprintf("workflow: no transition from %v on %v", e.current, req.trigger))
	}

	var guards []model.GuardOutcome
	allPassed := true
	for _, g := range t.Guards {
		outcome := g(e, req)
		guards = append(guards, outcome)
		if !outcome.Passed {
			allPassed = false
		}
	}

	category := model.CategoryWorkflow
	if req.trigger == model.TriggerAbortRequested {
		category = model.CategorySafety
	}

	if !allPassed {
		entry := model.JournalEntry{
			ID:         e.nextJournalID(),
			AtUTC:      time.Now().UTC(),
			From:       e.current,
			To:         e.current,
			Trigger:    req.trigger,
			Guards:     guards,
			OperatorID: req.operatorID,
			Category:   category,
			Metadata:   req.metadata,
			Outcome:    model.OutcomeRejected,
		}
		if err := e.journal.Append(entry); err != nil {
			return err
		}
		e.logger.Warn("workflow: rejected transition, guard failure",
			zap.Stringer("from", e.current), zap.Stringer("trigger", req.trigger),
			zap.Strings("failed_guards", entry.FailedGuards()))
		return errkind.New(errkind.GuardFailure, fmt.Sprintf("workflow: guard(s) failed: %v", entry.FailedGuards()))
	}

	if t.Apply != nil {
		if err := t.Apply(e, req); err != nil {
			entry := model.JournalEntry{
				ID:         e.nextJournalID(),
				AtUTC:      time.Now().UTC(),
				From:       e.current,
				To:         e.current,
				Trigger:    req.trigger,
				Guards:     guards,
				OperatorID: req.operatorID,
				Category:   category,
				Metadata:   req.metadata,
				Outcome:    model.OutcomeRejected,
			}
			e.journal.Append(entry)
			e.logger.Error("workflow: rejected transition, apply failed",
				zap.Stringer("from", e.current), zap.Stringer("trigger", req.trigger), zap.Error(err))
			return err
		}
	}

	entry := model.JournalEntry{
		ID:         e.nextJournalID(),
		AtUTC:      time.Now().UTC(),
		From:       e.current,
		To:         t.To,
		Trigger:    req.trigger,
		Guards:     guards,
		OperatorID: req.operatorID,
		Category:   category,
		Metadata:   e.withStudySnapshot(req.metadata),
		Outcome:    model.OutcomeApplied,
	}
	// Journal-write before state-swap before event-dispatch: the three
	// steps below must happen in exactly this order (spec.md §4.1).
	if err := e.journal.Append(entry); err != nil {
		return err
	}
	from := e.current
	e.current = t.To
	if e.current == model.StateIdle {
		e.study.ClearPHI()
	}
	e.bus.Publish(eventbus.Event{Kind: "StateChanged", Payload: StateChangedPayload{
		From:    from,
		To:      e.current,
		Trigger: req.trigger,
	}})
	e.logger.Info("workflow: transition applied",
		zap.Stringer("from", from), zap.Stringer("to", e.current), zap.Stringer("trigger", req.trigger))
	return nil
}

// StateChangedPayload is the bus payload for a "StateChanged" event.
type StateChangedPayload struct {
	From    model.WorkflowState
	To      model.WorkflowState
	Trigger model.Trigger
}

// PacsExportRequestedPayload is published on leaving MppsComplete,
// carrying the still-PHI-bearing study the PACS export subscriber needs
// to build outbound IOD datasets and enqueue them onto the Retry Queue.
type PacsExportRequestedPayload struct {
	Study model.StudyContext
}

// StudyClosedPayload is published on leaving PacsExport, immediately
// before the engine clears PHI and returns to Idle, for downstream RDSR
// generation to consume. It carries no PHI.
type StudyClosedPayload struct {
	StudyUID      string
	TotalDAP      float64
	ExposureCount int
}

// pendingExposure returns the most recently staged exposure record, or
// nil if none has been started for the current study.
func (e *Engine) pendingExposure() *model.ExposureRecord {
	if len(e.study.Exposures) == 0 {
		return nil
	}
	return e.study.Exposures[len(e.study.Exposures)-1]
}

func (e *Engine) nextJournalID() string {
	id, err := e.uids.Next()
	if err != nil {
		// UID generation failing here is itself a journal-worthy fault;
		// fall back to a timestamp so the entry is never silently
		// dropped for lack of an ID.
		return fmt.Sprintf("fallback.%d", time.Now().UnixNano())
	}
	return id
}
