package dose

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicore/xray-console/pkg/eventbus"
	"github.com/clinicore/xray-console/pkg/model"
)

func TestRecordAccumulatesStudyAndPatientTotalsAndPublishes(t *testing.T) {
	bus := eventbus.New()
	sub := bus.Subscribe()
	defer sub.Close()

	tracker := New(NewInMemoryLedger(), bus, 100, 200, 80)

	err := tracker.Record("study-1", "patient-1", &model.ExposureRecord{
		DAP: 10, Status: model.ExposureAcquired, OperatorID: "op1",
	})
	require.NoError(t, err)

	assert.Equal(t, 10.0, tracker.GetStudyDoseSummary("study-1"))

	select {
	case e := <-sub.C():
		assert.Equal(t, "DoseRecorded", e.Kind)
		payload := e.Payload.(DoseRecordedPayload)
		assert.Equal(t, "study-1", payload.StudyUID)
		assert.Equal(t, 10.0, payload.DAP)
		assert.False(t, payload.Rejected)
	case <-time.After(time.Second):
		t.Fatal("expected a DoseRecorded event")
	}
}

func TestRecordStillCountsRejectedExposuresTowardCumulativeDose(t *testing.T) {
	bus := eventbus.New()
	tracker := New(NewInMemoryLedger(), bus, 100, 200, 80)

	require.NoError(t, tracker.Record("study-1", "patient-1", &model.ExposureRecord{
		DAP: 5, Status: model.ExposureRejected, OperatorID: "op1",
	}))

	assert.Equal(t, 5.0, tracker.GetStudyDoseSummary("study-1"))
	entries, err := tracker.GetStudyExposureRecords("study-1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Rejected)
}

func TestCheckLimitsFlagsExceededAndWarnThresholds(t *testing.T) {
	bus := eventbus.New()
	tracker := New(NewInMemoryLedger(), bus, 100, 1000, 50)

	require.NoError(t, tracker.Record("study-1", "patient-1", &model.ExposureRecord{
		DAP: 40, Status: model.ExposureAcquired,
	}))

	check := tracker.CheckLimits("study-1", "patient-1", 20)
	assert.True(t, check.WithinStudyLimit)
	assert.True(t, check.ShouldWarn, "60 of 100 study limit is above the 50%% warn threshold")

	overLimit := tracker.CheckLimits("study-1", "patient-1", 100)
	assert.False(t, overLimit.WithinStudyLimit)
}
