// Package dose implements the per-study and per-patient DAP
// accumulators from spec.md §4.3. A dose entry is persisted before its
// DoseRecorded event is published, mirroring the journal-before-event
// ordering used by the Workflow Engine.
package dose

import (
	"sync"

	"github.com/clinicore/xray-console/pkg/eventbus"
	"github.com/clinicore/xray-console/pkg/model"
)

// Ledger persists dose entries, keyed by study id (spec.md §6). The
// spec prescribes durability and ordering, not a backing store; this
// package defines the contract and ships an in-memory implementation
// suitable for single-process deployments and tests.
type Ledger interface {
	Append(studyUID string, entry Entry) error
	StudyEntries(studyUID string) ([]Entry, error)
}

// Entry is one recorded exposure's dose contribution.
type Entry struct {
	OperatorID string
	DAP        float64
	Rejected   bool
}

// Tracker accumulates DAP per study and per patient and evaluates the
// configured limits.
type Tracker struct {
	ledger Ledger
	bus    *eventbus.Bus

	studyLimit float64
	dailyLimit float64
	warnPct    float64

	mu            sync.Mutex
	patientTotals map[string]float64 // patientID -> cumulative DAP since the Tracker was built; never reset at a day boundary
	studyTotals   map[string]float64 // studyUID -> cumulative DAP
}

// New constructs a Tracker against ledger and bus, with the configured
// study/daily limits and warning percentage (spec.md §6
// dose_limits.{study,daily,warn_pct}).
func New(ledger Ledger, bus *eventbus.Bus, studyLimit, dailyLimit, warnPct float64) *Tracker {
	return &Tracker{
		ledger:        ledger,
		bus:           bus,
		studyLimit:    studyLimit,
		dailyLimit:    dailyLimit,
		warnPct:       warnPct,
		patientTotals: make(map[string]float64),
		studyTotals:   make(map[string]float64),
	}
}

// Record appends exposure's DAP to the study ledger and the patient
// summary. Rejected exposures still count toward cumulative study dose
// (spec.md §4.3) but are flagged so the RDSR feed can report them
// separately.
func (t *Tracker) Record(studyUID, patientID string, exposure *model.ExposureRecord) error {
	entry := Entry{
		OperatorID: exposure.OperatorID,
		DAP:        exposure.DAP,
		Rejected:   exposure.Status == model.ExposureRejected,
	}
	if err := t.ledger.Append(studyUID, entry); err != nil {
		return err
	}

	t.mu.Lock()
	t.studyTotals[studyUID] += exposure.DAP
	t.patientTotals[patientID] += exposure.DAP
	t.mu.Unlock()

	t.bus.Publish(eventbus.Event{Kind: "DoseRecorded", Payload: DoseRecordedPayload{
		StudyUID:  studyUID,
		PatientID: patientID,
		DAP:       exposure.DAP,
		Rejected:  entry.Rejected,
	}})
	return nil
}

// DoseRecordedPayload is the bus payload for a "DoseRecorded" event.
type DoseRecordedPayload struct {
	StudyUID  string
	PatientID string
	DAP       float64
	Rejected  bool
}

// CheckLimits evaluates whether a proposed exposure's projected DAP
// keeps the study and patient totals within their configured limits,
// warning once the warn_pct threshold is crossed. The patient total is
// checked against the daily limit but covers every exposure recorded
// since the Tracker was built.
func (t *Tracker) CheckLimits(studyUID, patientID string, proposedDAP float64) model.DoseLimitCheck {
	t.mu.Lock()
	studyTotal := t.studyTotals[studyUID]
	patientTotal := t.patientTotals[patientID]
	t.mu.Unlock()

	projectedStudy := studyTotal + proposedDAP
	projectedDaily := patientTotal + proposedDAP

	withinStudy := t.studyLimit <= 0 || projectedStudy <= t.studyLimit
	withinDaily := t.dailyLimit <= 0 || projectedDaily <= t.dailyLimit

	warnThresholdStudy := t.studyLimit * (t.warnPct / 100)
	warnThresholdDaily := t.dailyLimit * (t.warnPct / 100)
	shouldWarn := (t.studyLimit > 0 && projectedStudy >= warnThresholdStudy) ||
		(t.dailyLimit > 0 && projectedDaily >= warnThresholdDaily)

	return model.DoseLimitCheck{
		WithinStudyLimit: withinStudy,
		WithinDailyLimit: withinDaily,
		Projected:        projectedStudy,
		ShouldWarn:       shouldWarn,
	}
}

// GetStudyDoseSummary returns the immutable cumulative DAP for studyUID.
func (t *Tracker) GetStudyDoseSummary(studyUID string) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.studyTotals[studyUID]
}

// GetStudyExposureRecords returns an immutable snapshot of the ledger
// entries recorded for studyUID, for downstream RDSR generation.
func (t *Tracker) GetStudyExposureRecords(studyUID string) ([]Entry, error) {
	return t.ledger.StudyEntries(studyUID)
}

// InMemoryLedger is a process-local Ledger implementation, sufficient
// for single-process deployments and tests; a durable KV-backed Ledger
// satisfies the same interface for production use.
type InMemoryLedger struct {
	mu      sync.Mutex
	entries map[string][]Entry
}

// NewInMemoryLedger returns an empty InMemoryLedger.
func NewInMemoryLedger() *InMemoryLedger {
	return &InMemoryLedger{entries: make(map[string][]Entry)}
}

func (l *InMemoryLedger) Append(studyUID string, entry Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[studyUID] = append(l.entries[studyUID], entry)
	return nil
}

func (l *InMemoryLedger) StudyEntries(studyUID string) ([]Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, len(l.entries[studyUID]))
	copy(out, l.entries[studyUID])
	return out, nil
}
