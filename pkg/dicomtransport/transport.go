// Package dicomtransport drives DIMSE exchanges over pooled associations:
// verification (C-ECHO), storage (C-STORE), MPPS (N-CREATE/N-SET), and
// storage commitment request/confirmation (N-ACTION/N-EVENT-REPORT). It
// issues no C-FIND worklist query.
// Adapted from the teacher's connection/DIMSE plumbing, wired against a
// per-destination circuit breaker (sony/gobreaker, from the kubernaut
// reference) so a PACS that is down fails fast instead of stacking up
// Pool.Acquire waiters.
package dicomtransport

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/clinicore/xray-console/internal/assoc"
	"github.com/clinicore/xray-console/internal/dimse"
	"github.com/clinicore/xray-console/pkg/config"
	"github.com/clinicore/xray-console/pkg/errkind"
	"github.com/clinicore/xray-console/pkg/model"
)

// StorageCommitmentSOPClassUID is the well-known SOP Class UID for the
// Storage Commitment Push Model (PS3.4 J.3).
const StorageCommitmentSOPClassUID = "1.2.840.10008.1.20.1"

// ModalityPerformedProcedureStepSOPClassUID is the MPPS SOP Class UID
// (PS3.4 F.2).
const ModalityPerformedProcedureStepSOPClassUID = "1.2.840.10008.3.1.2.3.3"

// CommitmentOutcome is returned when a storage commitment result arrives
// over the same association; a result that does not arrive in time is
// reported as a CommitTimeout error instead, with no outcome.
type CommitmentOutcome struct {
	TransactionUID string
	Committed      []string // SOP Instance UIDs confirmed stored
	Failed         map[string]dimse.StatusCode
}

// Transcoder losslessly re-encodes a dataset's pixel data from its
// current transfer syntax to target. Transport only ever calls it with a
// target drawn from assoc.LosslessTransferSyntaxes, never a lossy one —
// the concrete codec is an external collaborator, the same pattern the
// hardware package uses for its detector/generator/AEC sockets.
type Transcoder interface {
	Transcode(ctx context.Context, ds model.DatasetRef, targetTransferSyntax string) (model.DatasetRef, error)
}

// Transport orchestrates DIMSE exchanges against one or more PACS/worklist
// destinations.
type Transport struct {
	pool       *assoc.Pool
	callingAE  string
	logger     *zap.Logger
	breakers   map[string]*gobreaker.CircuitBreaker
	transcoder Transcoder
}

// New constructs a Transport with a bounded association pool and a
// circuit breaker per destination, pre-seeded from destinations.
func New(callingAE string, poolOpts config.PoolOptions, destinations []model.Destination, logger *zap.Logger) *Transport {
	t := &Transport{
		pool:      assoc.NewPool(callingAE, poolOpts),
		callingAE: callingAE,
		logger:    logger,
		breakers:  make(map[string]*gobreaker.CircuitBreaker),
	}
	for _, d := range destinations {
		t.breakers[breakerKey(d)] = newBreaker(breakerKey(d))
	}
	return t
}

// SetTranscoder installs the collaborator store uses to losslessly
// transcode a diagnostic image's pixel data when the negotiated transfer
// syntax differs from ds.TransferSyntax. Nil (the default) means such a
// mismatch is refused with TransferSyntaxConflict and nothing is sent.
func (t *Transport) SetTranscoder(tc Transcoder) {
	t.transcoder = tc
}

func breakerKey(d model.Destination) string {
	return fmt.Sprintf("%s@%s:%d", d.AETitle, d.Host, d.Port)
}

func newBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	})
}

func (t *Transport) breakerFor(dest model.Destination) *gobreaker.CircuitBreaker {
	key := breakerKey(dest)
	if b, ok := t.breakers[key]; ok {
		return b
	}
	b := newBreaker(key)
	t.breakers[key] = b
	return b
}

// Echo verifies connectivity to dest via C-ECHO (spec.md §11 supplemented
// feature).
func (t *Transport) Echo(ctx context.Context, dest model.Destination) error {
	_, err := t.breakerFor(dest).Execute(func() (any, error) {
		return nil, t.echo(ctx, dest)
	})
	return err
}

func (t *Transport) echo(ctx context.Context, dest model.Destination) error {
	const verificationSOPClassUID = "1.2.840.10008.1.1"
	proposed := []assoc.ProposedContext{{ID: 1, SOPClassUID: verificationSOPClassUID, TransferSyntax: []string{assoc.TransferSyntaxImplicitVRLE}}}
	a, err := t.pool.Acquire(ctx, dest, proposed)
	if err != nil {
		return fmt.Errorf("dicomtransport: echo: %w", err)
	}
	healthy := true
	defer func() { t.pool.Release(dest, a, healthy) }()

	pc, ok := a.ContextFor(verificationSOPClassUID)
	if !ok {
		healthy = false
		return errkind.New(errkind.TransferSyntaxConflict, "dicomtransport: no presentation context accepted for C-ECHO")
	}
	rq := &dimse.CEchoRq{MessageID: a.NextMessageID(), CommandDataSetType: dimse.CommandDataSetTypeNull}
	if err := a.SendDIMSE(ctx, pc.ContextID, rq, nil); err != nil {
		healthy = false
		return err
	}
	msg, _, err := a.ReceiveDIMSE(ctx)
	if err != nil {
		healthy = false
		return err
	}
	status := msg.GetStatus()
	if status == nil || status.Code != dimse.StatusSuccess {
		return errkind.New(errkind.AssociationRejected, fmt.Sprintf("dicomtransport: C-ECHO rejected: %v", msg))
	}
	return nil
}

// Store sends one dataset as a C-STORE request, negotiating the SOP
// class/transfer-syntax pair named in ds. Diagnostic pixel data (ds.IsDiagnostic)
// is refused if the negotiated transfer syntax is not one of the
// lossless choices.
func (t *Transport) Store(ctx context.Context, dest model.Destination, ds model.DatasetRef) (dimse.StatusCode, error) {
	result, err := t.breakerFor(dest).Execute(func() (any, error) {
		return t.store(ctx, dest, ds)
	})
	if err != nil {
		return 0, err
	}
	return result.(dimse.StatusCode), nil
}

func (t *Transport) store(ctx context.Context, dest model.Destination, ds model.DatasetRef) (dimse.StatusCode, error) {
	proposed := []assoc.ProposedContext{{ID: 1, SOPClassUID: ds.SOPClassUID, TransferSyntax: assoc.PreferredTransferSyntaxOrder}}
	a, err := t.pool.Acquire(ctx, dest, proposed)
	if err != nil {
		return 0, fmt.Errorf("dicomtransport: store: %w", err)
	}
	healthy := true
	defer func() { t.pool.Release(dest, a, healthy) }()

	pc, ok := a.ContextFor(ds.SOPClassUID)
	if !ok {
		healthy = false
		return 0, errkind.New(errkind.TransferSyntaxConflict, "dicomtransport: no presentation context accepted for C-STORE")
	}
	if ds.IsDiagnostic && !assoc.LosslessTransferSyntaxes[pc.TransferSyntax] {
		healthy = false
		return 0, errkind.New(errkind.TransferSyntaxConflict, fmt.Sprintf("dicomtransport: negotiated lossy transfer syntax %q for diagnostic image", pc.TransferSyntax))
	}

	payload := ds.Bytes
	if pc.TransferSyntax != ds.TransferSyntax && assoc.LosslessTransferSyntaxes[pc.TransferSyntax] && assoc.LosslessTransferSyntaxes[ds.TransferSyntax] {
		if t.transcoder == nil {
			healthy = false
			return 0, errkind.New(errkind.TransferSyntaxConflict, fmt.Sprintf("dicomtransport: negotiated transfer syntax %q differs from dataset's %q and no transcoder is configured", pc.TransferSyntax, ds.TransferSyntax))
		}
		transcoded, err := t.transcoder.Transcode(ctx, ds, pc.TransferSyntax)
		if err != nil {
			healthy = false
			return 0, fmt.Errorf("dicomtransport: lossless transcode to %q: %w", pc.TransferSyntax, err)
		}
		payload = transcoded.Bytes
	}

	rq := &dimse.CStoreRq{
		AffectedSOPClassUID:    ds.SOPClassUID,
		MessageID:              a.NextMessageID(),
		Priority:               0,
		CommandDataSetType:     dimse.CommandDataSetTypeNonNull,
		AffectedSOPInstanceUID: ds.SOPInstanceUID,
	}
	if err := a.SendDIMSE(ctx, pc.ContextID, rq, payload); err != nil {
		healthy = false
		return 0, err
	}
	msg, _, err := a.ReceiveDIMSE(ctx)
	if err != nil {
		healthy = false
		return 0, err
	}
	status := msg.GetStatus()
	if status == nil {
		healthy = false
		return 0, errkind.New(errkind.AssociationRejected, "dicomtransport: C-STORE response carried no status")
	}
	if dimse.Classify(status.Code).Retryable() {
		healthy = false
	}
	return status.Code, nil
}

// BeginMPPS announces the start of an exposure procedure step via
// N-CREATE.
func (t *Transport) BeginMPPS(ctx context.Context, dest model.Destination, sopInstanceUID string, attrs []byte) error {
	_, err := t.breakerFor(dest).Execute(func() (any, error) {
		return nil, t.beginMPPS(ctx, dest, sopInstanceUID, attrs)
	})
	return err
}

func (t *Transport) beginMPPS(ctx context.Context, dest model.Destination, sopInstanceUID string, attrs []byte) error {
	proposed := []assoc.ProposedContext{{ID: 1, SOPClassUID: ModalityPerformedProcedureStepSOPClassUID, TransferSyntax: []string{assoc.TransferSyntaxExplicitVRLE, assoc.TransferSyntaxImplicitVRLE}}}
	a, err := t.pool.Acquire(ctx, dest, proposed)
	if err != nil {
		return fmt.Errorf("dicomtransport: begin mpps: %w", err)
	}
	healthy := true
	defer func() { t.pool.Release(dest, a, healthy) }()

	pc, ok := a.ContextFor(ModalityPerformedProcedureStepSOPClassUID)
	if !ok {
		healthy = false
		return errkind.New(errkind.TransferSyntaxConflict, "dicomtransport: MPPS SOP class not accepted")
	}
	rq := &dimse.NCreateRq{
		AffectedSOPClassUID:    ModalityPerformedProcedureStepSOPClassUID,
		MessageID:              a.NextMessageID(),
		AffectedSOPInstanceUID: sopInstanceUID,
		CommandDataSetType:     dimse.CommandDataSetTypeNonNull,
	}
	if err := a.SendDIMSE(ctx, pc.ContextID, rq, attrs); err != nil {
		healthy = false
		return err
	}
	msg, _, err := a.ReceiveDIMSE(ctx)
	if err != nil {
		healthy = false
		return err
	}
	status := msg.GetStatus()
	if status == nil || status.Code != dimse.StatusSuccess {
		healthy = !dimse.Classify(statusCodeOrUnknown(status)).Retryable()
		return errkind.New(errkind.AssociationRejected, fmt.Sprintf("dicomtransport: N-CREATE rejected: %v", msg))
	}
	return nil
}

// CompleteMPPS transitions an MPPS instance to COMPLETED or DISCONTINUED
// via N-SET.
func (t *Transport) CompleteMPPS(ctx context.Context, dest model.Destination, sopInstanceUID string, attrs []byte) error {
	_, err := t.breakerFor(dest).Execute(func() (any, error) {
		return nil, t.completeMPPS(ctx, dest, sopInstanceUID, attrs)
	})
	return err
}

func (t *Transport) completeMPPS(ctx context.Context, dest model.Destination, sopInstanceUID string, attrs []byte) error {
	proposed := []assoc.ProposedContext{{ID: 1, SOPClassUID: ModalityPerformedProcedureStepSOPClassUID, TransferSyntax: []string{assoc.TransferSyntaxExplicitVRLE, assoc.TransferSyntaxImplicitVRLE}}}
	a, err := t.pool.Acquire(ctx, dest, proposed)
	if err != nil {
		return fmt.Errorf("dicomtransport: complete mpps: %w", err)
	}
	healthy := true
	defer func() { t.pool.Release(dest, a, healthy) }()

	pc, ok := a.ContextFor(ModalityPerformedProcedureStepSOPClassUID)
	if !ok {
		healthy = false
		return errkind.New(errkind.TransferSyntaxConflict, "dicomtransport: MPPS SOP class not accepted")
	}
	rq := &dimse.NSetRq{
		RequestedSOPClassUID:    ModalityPerformedProcedureStepSOPClassUID,
		MessageID:               a.NextMessageID(),
		RequestedSOPInstanceUID: sopInstanceUID,
		CommandDataSetType:      dimse.CommandDataSetTypeNonNull,
	}
	if err := a.SendDIMSE(ctx, pc.ContextID, rq, attrs); err != nil {
		healthy = false
		return err
	}
	msg, _, err := a.ReceiveDIMSE(ctx)
	if err != nil {
		healthy = false
		return err
	}
	status := msg.GetStatus()
	if status == nil || status.Code != dimse.StatusSuccess {
		return errkind.New(errkind.AssociationRejected, fmt.Sprintf("dicomtransport: N-SET rejected: %v", msg))
	}
	return nil
}

// RequestCommitment sends an N-ACTION asking dest to confirm durable
// storage of sopInstanceUIDs, then awaits the N-EVENT-REPORT confirmation
// over the same association (OQ-02: asynchronous, same-connection push;
// the console never becomes an SCP). A response that does not arrive
// within timeout surfaces as CommitTimeout.
func (t *Transport) RequestCommitment(ctx context.Context, dest model.Destination, sopInstanceUIDs []string, timeout time.Duration) (*CommitmentOutcome, error) {
	result, err := t.breakerFor(dest).Execute(func() (any, error) {
		return t.requestCommitment(ctx, dest, sopInstanceUIDs, timeout)
	})
	if err != nil {
		return nil, err
	}
	return result.(*CommitmentOutcome), nil
}

func (t *Transport) requestCommitment(ctx context.Context, dest model.Destination, sopInstanceUIDs []string, timeout time.Duration) (*CommitmentOutcome, error) {
	proposed := []assoc.ProposedContext{{ID: 1, SOPClassUID: StorageCommitmentSOPClassUID, TransferSyntax: []string{assoc.TransferSyntaxExplicitVRLE, assoc.TransferSyntaxImplicitVRLE}}}
	a, err := t.pool.Acquire(ctx, dest, proposed)
	if err != nil {
		return nil, fmt.Errorf("dicomtransport: request commitment: %w", err)
	}
	healthy := true
	defer func() { t.pool.Release(dest, a, healthy) }()

	pc, ok := a.ContextFor(StorageCommitmentSOPClassUID)
	if !ok {
		healthy = false
		return nil, errkind.New(errkind.TransferSyntaxConflict, "dicomtransport: storage commitment SOP class not accepted")
	}

	transactionUID := uuid.New().String()
	rq := &dimse.NActionRq{
		RequestedSOPClassUID:    StorageCommitmentSOPClassUID,
		MessageID:               a.NextMessageID(),
		RequestedSOPInstanceUID: "1.2.840.10008.1.20.1.1",
		ActionTypeID:            1,
		CommandDataSetType:      dimse.CommandDataSetTypeNonNull,
	}
	if err := a.SendDIMSE(ctx, pc.ContextID, rq, nil); err != nil {
		healthy = false
		return nil, err
	}
	msg, _, err := a.ReceiveDIMSE(ctx)
	if err != nil {
		healthy = false
		return nil, err
	}
	status := msg.GetStatus()
	if status == nil || status.Code != dimse.StatusSuccess {
		healthy = false
		return nil, errkind.New(errkind.AssociationRejected, fmt.Sprintf("dicomtransport: N-ACTION rejected: %v", msg))
	}

	deadline := time.Now().Add(timeout)
	reportCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()
	report, _, err := a.ReceiveDIMSE(reportCtx)
	if err != nil {
		healthy = false
		return nil, errkind.Wrap(errkind.CommitTimeout, "dicomtransport: storage commitment confirmation did not arrive in time", err)
	}
	eventRq, ok := report.(*dimse.NEventReportRq)
	if !ok {
		healthy = false
		return nil, errkind.New(errkind.AssociationRejected, "dicomtransport: expected N-EVENT-REPORT for storage commitment")
	}

	outcome := &CommitmentOutcome{
		TransactionUID: transactionUID,
		Failed:         make(map[string]dimse.StatusCode),
	}
	if eventRq.EventTypeID == 1 {
		outcome.Committed = sopInstanceUIDs
	} else {
		for _, uid := range sopInstanceUIDs {
			outcome.Failed[uid] = dimse.StatusProcessingFailure
		}
	}

	ack := &dimse.NEventReportRsp{
		MessageIDBeingRespondedTo: eventRq.GetMessageID(),
		AffectedSOPClassUID:       StorageCommitmentSOPClassUID,
		AffectedSOPInstanceUID:    eventRq.AffectedSOPInstanceUID,
		EventTypeID:               eventRq.EventTypeID,
		CommandDataSetType:        dimse.CommandDataSetTypeNull,
		Status:                    dimse.Success,
	}
	if err := a.SendDIMSE(ctx, pc.ContextID, ack, nil); err != nil {
		healthy = false
		return outcome, err
	}
	return outcome, nil
}

func statusCodeOrUnknown(s *dimse.Status) dimse.StatusCode {
	if s == nil {
		return dimse.StatusCode(0xC000)
	}
	return s.Code
}

// RetrySender adapts Transport to retryqueue.Sender, dispatching each
// durable transmission to the DIMSE operation it names.
type RetrySender struct {
	transport *Transport
}

// NewRetrySender wraps transport as a retryqueue.Sender.
func NewRetrySender(transport *Transport) *RetrySender {
	return &RetrySender{transport: transport}
}

// Send performs one delivery attempt for item and reports whether a
// failure is worth retrying.
func (s *RetrySender) Send(ctx context.Context, item model.DicomTransmission) (bool, error) {
	switch item.Operation {
	case model.OpCStore:
		code, err := s.transport.Store(ctx, item.Destination, item.Dataset)
		if err != nil {
			return retryableError(err), err
		}
		if code != dimse.StatusSuccess {
			return dimse.Classify(code).Retryable(), fmt.Errorf("dicomtransport: C-STORE returned status %v", code)
		}
		return false, nil
	case model.OpNCreate:
		err := s.transport.BeginMPPS(ctx, item.Destination, item.Dataset.SOPInstanceUID, item.Dataset.Bytes)
		return retryableError(err), err
	case model.OpNSet:
		err := s.transport.CompleteMPPS(ctx, item.Destination, item.Dataset.SOPInstanceUID, item.Dataset.Bytes)
		return retryableError(err), err
	case model.OpNAction:
		_, err := s.transport.RequestCommitment(ctx, item.Destination, []string{item.Dataset.SOPInstanceUID}, 5*time.Minute)
		return retryableError(err), err
	default:
		return false, fmt.Errorf("dicomtransport: unknown retry queue operation %q", item.Operation)
	}
}

// retryableError reports whether err is worth retrying: a circuit
// breaker trip, a pool exhaustion or a commitment timeout is transient,
// and so is any error that carries no errkind; every other errkind
// (malformed config, rejected association, transfer-syntax conflict) is
// terminal. C-STORE statuses are classified separately, in Send.
func retryableError(err error) bool {
	if err == nil {
		return false
	}
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return true
	}
	var kindErr *errkind.Error
	if errors.As(err, &kindErr) {
		switch kindErr.Kind {
		case errkind.PoolExhausted, errkind.CommitTimeout:
			return true
		default:
			return false
		}
	}
	return true
}
