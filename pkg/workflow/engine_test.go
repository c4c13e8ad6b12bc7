package workflow

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/clinicore/xray-console/pkg/dose"
	"github.com/clinicore/xray-console/pkg/eventbus"
	"github.com/clinicore/xray-console/pkg/hardware"
	"github.com/clinicore/xray-console/pkg/model"
	"github.com/clinicore/xray-console/pkg/safety"
	"github.com/clinicore/xray-console/pkg/uidgen"
)

// memJournal is a blocking-free in-memory journal.Journal, used so
// tests can assert ordering without touching the filesystem.
type memJournal struct {
	entries []model.JournalEntry
}

func (j *memJournal) Append(entry model.JournalEntry) error {
	j.entries = append(j.entries, entry)
	return nil
}

func (j *memJournal) Tail() (model.JournalEntry, bool, error) {
	if len(j.entries) == 0 {
		return model.JournalEntry{}, false, nil
	}
	return j.entries[len(j.entries)-1], true, nil
}

func (j *memJournal) All() ([]model.JournalEntry, error) {
	return j.entries, nil
}

func newTestEngine(t *testing.T) (*Engine, *memJournal, *hardware.SimulatorInterlockSource, *hardware.Simulator) {
	t.Helper()
	jrnl := &memJournal{}
	bus := eventbus.New()
	source := hardware.NewSimulatorInterlockSource()
	gen := hardware.NewSimulator()
	core, err := safety.New(source, gen)
	require.NoError(t, err)
	tracker := dose.New(dose.NewInMemoryLedger(), bus, 1000, 2000, 80)
	uids, err := uidgen.New("1.2.3.4", "1001", uidgen.NewInMemoryCounterStore())
	require.NoError(t, err)

	engine, err := New(Config{
		Logger:  zap.NewNop(),
		Journal: jrnl,
		Bus:     bus,
		Safety:  core,
		Dose:    tracker,
		UIDs:    uids,
		AEC:     gen,
		Limits:  model.DeviceSafetyLimits{MaxKVp: 150, MaxMA: 500, MaxMS: 1000},
	})
	require.NoError(t, err)
	return engine, jrnl, source, gen
}

func TestNewStartsAtIdle(t *testing.T) {
	engine, _, _, _ := newTestEngine(t)
	assert.Equal(t, model.StateIdle, engine.Current())
}

func TestFireRejectsUndefinedTransition(t *testing.T) {
	engine, jrnl, _, _ := newTestEngine(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go engine.Run(ctx)

	err := engine.Fire(context.Background(), model.TriggerImageAccepted, "op1", nil)
	require.Error(t, err)
	assert.Equal(t, model.StateIdle, engine.Current())
	require.Len(t, jrnl.entries, 1)
	assert.Equal(t, model.OutcomeRejected, jrnl.entries[0].Outcome)
}

func TestHappyPathThroughQcReviewAccept(t *testing.T) {
	engine, jrnl, _, _ := newTestEngine(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go engine.Run(ctx)

	require.NoError(t, engine.Fire(ctx, model.TriggerStartWorklistSync, "op1", nil))
	require.NoError(t, engine.Fire(ctx, model.TriggerPatientConfirmed, "op1", map[string]string{
		"study_uid": "1.2.3.4.5", "patient_id": "P1", "patient_name": "Doe^Jane",
	}))
	require.NoError(t, engine.Fire(ctx, model.TriggerProtocolSelected, "op1", map[string]string{
		"body_part": "CHEST", "projection": "AP", "device_model": "DX-100",
		"kvp": "80", "ma": "200", "exposure_time_ms": "10",
	}))
	require.NoError(t, engine.Fire(ctx, model.TriggerPositioningComplete, "op1", nil))
	require.NoError(t, engine.Fire(ctx, model.TriggerExposeRequested, "op1", map[string]string{
		"estimated_dap": "5",
	}))
	assert.Equal(t, model.StateExposureTrigger, engine.Current())

	require.NoError(t, engine.Fire(ctx, model.TriggerExposureFinished, "op1", map[string]string{"dap": "5.2"}))
	assert.Equal(t, model.StateQcReview, engine.Current())

	require.NoError(t, engine.Fire(ctx, model.TriggerImageAccepted, "op1", nil))
	assert.Equal(t, model.StateMppsComplete, engine.Current())

	require.NoError(t, engine.Fire(ctx, model.TriggerStudyCompleted, "op1", nil))
	assert.Equal(t, model.StatePacsExport, engine.Current())

	for _, entry := range jrnl.entries {
		assert.Equal(t, model.OutcomeApplied, entry.Outcome)
	}
}

func TestExposeRequestedRefusedWhenInterlockFailing(t *testing.T) {
	engine, _, source, _ := newTestEngine(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go engine.Run(ctx)

	require.NoError(t, engine.Fire(ctx, model.TriggerStartWorklistSync, "op1", nil))
	require.NoError(t, engine.Fire(ctx, model.TriggerPatientConfirmed, "op1", map[string]string{
		"study_uid": "1.2.3.4.5", "patient_id": "P1",
	}))
	require.NoError(t, engine.Fire(ctx, model.TriggerProtocolSelected, "op1", map[string]string{
		"body_part": "CHEST", "projection": "AP", "device_model": "DX-100",
		"kvp": "80", "ma": "200", "exposure_time_ms": "10",
	}))
	require.NoError(t, engine.Fire(ctx, model.TriggerPositioningComplete, "op1", nil))

	source.Set(func(r *hardware.RawInterlocks) { r.DoorClosed = false })

	err := engine.Fire(ctx, model.TriggerExposeRequested, "op1", map[string]string{"estimated_dap": "5"})
	require.Error(t, err)
	assert.Equal(t, model.StatePositionAndPreview, engine.Current())
}

func TestExposeRequestedRefusedWhenProtocolExceedsDeviceLimits(t *testing.T) {
	engine, _, _, _ := newTestEngine(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go engine.Run(ctx)

	require.NoError(t, engine.Fire(ctx, model.TriggerStartWorklistSync, "op1", nil))
	require.NoError(t, engine.Fire(ctx, model.TriggerPatientConfirmed, "op1", map[string]string{
		"study_uid": "1.2.3.4.5", "patient_id": "P1",
	}))
	require.NoError(t, engine.Fire(ctx, model.TriggerProtocolSelected, "op1", map[string]string{
		"body_part": "CHEST", "projection": "AP", "device_model": "DX-100",
		"kvp": "80", "ma": "200", "exposure_time_ms": "10",
	}))
	require.NoError(t, engine.Fire(ctx, model.TriggerPositioningComplete, "op1", nil))

	// ProtocolSelected already refuses an over-limit protocol, so the
	// device ceiling is lowered after staging to reach the ExposeRequested check.
	engine.limits.MaxKVp = 70

	err := engine.Fire(ctx, model.TriggerExposeRequested, "op1", map[string]string{"estimated_dap": "5"})
	require.Error(t, err)
}

func TestRejectRetakeLoop(t *testing.T) {
	engine, _, _, _ := newTestEngine(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go engine.Run(ctx)

	require.NoError(t, engine.Fire(ctx, model.TriggerStartWorklistSync, "op1", nil))
	require.NoError(t, engine.Fire(ctx, model.TriggerPatientConfirmed, "op1", map[string]string{
		"study_uid": "1.2.3.4.5", "patient_id": "P1",
	}))
	require.NoError(t, engine.Fire(ctx, model.TriggerProtocolSelected, "op1", map[string]string{
		"body_part": "CHEST", "projection": "AP", "device_model": "DX-100",
		"kvp": "80", "ma": "200", "exposure_time_ms": "10",
	}))
	require.NoError(t, engine.Fire(ctx, model.TriggerPositioningComplete, "op1", nil))
	require.NoError(t, engine.Fire(ctx, model.TriggerExposeRequested, "op1", map[string]string{"estimated_dap": "5"}))
	require.NoError(t, engine.Fire(ctx, model.TriggerExposureFinished, "op1", map[string]string{"dap": "5.2"}))
	require.NoError(t, engine.Fire(ctx, model.TriggerImageRejected, "op1", map[string]string{"rejection_reason": "motion blur"}))
	assert.Equal(t, model.StateRejectRetake, engine.Current())

	require.NoError(t, engine.Fire(ctx, model.TriggerRetakeApproved, "op1", nil))
	assert.Equal(t, model.StatePositionAndPreview, engine.Current())
	assert.Len(t, engine.study.Exposures, 2)
}

func TestEmergencyBypassSkipsWorklistSync(t *testing.T) {
	engine, _, _, _ := newTestEngine(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go engine.Run(ctx)

	require.NoError(t, engine.Fire(ctx, model.TriggerEmergencyActivated, "op1", map[string]string{
		"patient_id": "UNKNOWN",
	}))
	assert.Equal(t, model.StatePatientSelect, engine.Current())
	assert.True(t, engine.study.Emergency)
	assert.True(t, engine.study.UnscheduledFlag)
	assert.NotEmpty(t, engine.study.StudyUID)
}

func TestIdleClearsPHI(t *testing.T) {
	engine, _, _, _ := newTestEngine(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go engine.Run(ctx)

	require.NoError(t, engine.Fire(ctx, model.TriggerStartWorklistSync, "op1", nil))
	require.NoError(t, engine.Fire(ctx, model.TriggerPatientConfirmed, "op1", map[string]string{
		"study_uid": "1.2.3.4.5", "patient_id": "P1", "patient_name": "Doe^Jane",
	}))
	require.NoError(t, engine.Fire(ctx, model.TriggerProtocolSelected, "op1", map[string]string{
		"body_part": "CHEST", "projection": "AP", "device_model": "DX-100",
		"kvp": "80", "ma": "200", "exposure_time_ms": "10",
	}))
	require.NoError(t, engine.Fire(ctx, model.TriggerPositioningComplete, "op1", nil))
	require.NoError(t, engine.Fire(ctx, model.TriggerExposeRequested, "op1", map[string]string{"estimated_dap": "5"}))
	require.NoError(t, engine.Fire(ctx, model.TriggerExposureFinished, "op1", map[string]string{"dap": "5.2"}))
	require.NoError(t, engine.Fire(ctx, model.TriggerImageAccepted, "op1", nil))
	require.NoError(t, engine.Fire(ctx, model.TriggerStudyCompleted, "op1", nil))
	require.NoError(t, engine.Fire(ctx, model.TriggerStudyCompleted, "op1", nil))

	assert.Equal(t, model.StateIdle, engine.Current())
	assert.Empty(t, engine.study.PatientID)
	assert.Empty(t, engine.study.PatientName)
}

func TestAbortFastPathTransitionsToQcReview(t *testing.T) {
	engine, jrnl, source, gen := newTestEngine(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go engine.Run(ctx)

	require.NoError(t, engine.Fire(ctx, model.TriggerStartWorklistSync, "op1", nil))
	require.NoError(t, engine.Fire(ctx, model.TriggerPatientConfirmed, "op1", map[string]string{
		"study_uid": "1.2.3.4.5", "patient_id": "P1",
	}))
	require.NoError(t, engine.Fire(ctx, model.TriggerProtocolSelected, "op1", map[string]string{
		"body_part": "CHEST", "projection": "AP", "device_model": "DX-100",
		"kvp": "80", "ma": "200", "exposure_time_ms": "10",
	}))
	require.NoError(t, engine.Fire(ctx, model.TriggerPositioningComplete, "op1", nil))
	require.NoError(t, engine.Fire(ctx, model.TriggerExposeRequested, "op1", map[string]string{"estimated_dap": "5"}))

	source.Set(func(r *hardware.RawInterlocks) { r.DoorClosed = false })

	require.Eventually(t, func() bool {
		return engine.Current() == model.StateQcReview
	}, time.Second, 5*time.Millisecond)

	var sawSafetyCategory bool
	for _, e := range jrnl.entries {
		if e.Category == model.CategorySafety {
			sawSafetyCategory = true
		}
	}
	assert.True(t, sawSafetyCategory)
	assert.Equal(t, 1, gen.AbortCalls)
}

func TestCrashRecoveryRequiresOperatorChoiceBeforeResuming(t *testing.T) {
	jrnl := &memJournal{}
	bus := eventbus.New()
	source := hardware.NewSimulatorInterlockSource()
	gen := hardware.NewSimulator()
	core, err := safety.New(source, gen)
	require.NoError(t, err)
	tracker := dose.New(dose.NewInMemoryLedger(), bus, 1000, 2000, 80)
	uids, err := uidgen.New("1.2.3.4", "DEV01", uidgen.NewInMemoryCounterStore())
	require.NoError(t, err)
	cfg := Config{
		Logger:  zap.NewNop(),
		Journal: jrnl,
		Bus:     bus,
		Safety:  core,
		Dose:    tracker,
		UIDs:    uids,
		AEC:     gen,
		Limits:  model.DeviceSafetyLimits{MaxKVp: 150, MaxMA: 500, MaxMS: 1000},
	}

	engine, err := New(cfg)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	go engine.Run(ctx)

	require.NoError(t, engine.Fire(ctx, model.TriggerStartWorklistSync, "op1", nil))
	require.NoError(t, engine.Fire(ctx, model.TriggerPatientConfirmed, "op1", map[string]string{
		"study_uid": "1.2.3.4.5", "patient_id": "P1",
	}))
	require.NoError(t, engine.Fire(ctx, model.TriggerProtocolSelected, "op1", map[string]string{
		"body_part": "CHEST", "projection": "AP", "device_model": "DX-100",
		"kvp": "80", "ma": "200", "exposure_time_ms": "10",
	}))
	require.NoError(t, engine.Fire(ctx, model.TriggerPositioningComplete, "op1", nil))
	cancel()

	recovered, err := New(cfg)
	require.NoError(t, err)
	require.NotNil(t, recovered.PendingRecovery())
	assert.Equal(t, model.StatePositionAndPreview, recovered.PendingRecovery().PriorState)
	assert.Equal(t, "1.2.3.4.5", recovered.PendingRecovery().Study.StudyUID)

	err = recovered.Fire(context.Background(), model.TriggerExposeRequested, "op1", map[string]string{"estimated_dap": "5"})
	require.Error(t, err)

	require.NoError(t, recovered.ResolveRecovery(context.Background(), true))
	assert.Nil(t, recovered.PendingRecovery())
	assert.Equal(t, model.StatePositionAndPreview, recovered.Current())
	assert.Equal(t, "1.2.3.4.5", recovered.study.StudyUID)
}

func TestCrashRecoveryCleanStartDiscardsStudy(t *testing.T) {
	jrnl := &memJournal{}
	bus := eventbus.New()
	source := hardware.NewSimulatorInterlockSource()
	gen := hardware.NewSimulator()
	core, err := safety.New(source, gen)
	require.NoError(t, err)
	tracker := dose.New(dose.NewInMemoryLedger(), bus, 1000, 2000, 80)
	uids, err := uidgen.New("1.2.3.4", "DEV01", uidgen.NewInMemoryCounterStore())
	require.NoError(t, err)
	cfg := Config{
		Logger:  zap.NewNop(),
		Journal: jrnl,
		Bus:     bus,
		Safety:  core,
		Dose:    tracker,
		UIDs:    uids,
		AEC:     gen,
		Limits:  model.DeviceSafetyLimits{MaxKVp: 150, MaxMA: 500, MaxMS: 1000},
	}

	engine, err := New(cfg)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	go engine.Run(ctx)

	require.NoError(t, engine.Fire(ctx, model.TriggerStartWorklistSync, "op1", nil))
	require.NoError(t, engine.Fire(ctx, model.TriggerPatientConfirmed, "op1", map[string]string{
		"study_uid": "1.2.3.4.5", "patient_id": "P1",
	}))
	cancel()

	recovered, err := New(cfg)
	require.NoError(t, err)
	require.NotNil(t, recovered.PendingRecovery())

	require.NoError(t, recovered.ResolveRecovery(context.Background(), false))
	assert.Nil(t, recovered.PendingRecovery())
	assert.Equal(t, model.StateIdle, recovered.Current())
	assert.Empty(t, recovered.study.StudyUID)
}
