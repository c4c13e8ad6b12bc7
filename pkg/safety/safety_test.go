package safety

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicore/xray-console/pkg/hardware"
	"github.com/clinicore/xray-console/pkg/model"
)

func TestNewAggregatesAllPassingInterlocks(t *testing.T) {
	source := hardware.NewSimulatorInterlockSource()
	core, err := New(source, hardware.NewSimulator())
	require.NoError(t, err)
	defer core.Close()

	status := core.CheckAll()
	assert.True(t, status.AllPassed)
}

func TestOnHardwareChangeNotifiesSubscribersSynchronously(t *testing.T) {
	source := hardware.NewSimulatorInterlockSource()
	core, err := New(source, hardware.NewSimulator())
	require.NoError(t, err)
	defer core.Close()

	var received model.InterlockStatus
	calls := 0
	unsubscribe := core.SubscribeChanges(func(status model.InterlockStatus) {
		received = status
		calls++
	})
	defer unsubscribe()

	source.Set(func(raw *hardware.RawInterlocks) { raw.DoorClosed = false })

	assert.Equal(t, 1, calls)
	assert.False(t, received.AllPassed)
	assert.False(t, core.CheckAll().AllPassed)
}

func TestUnsubscribeStopsFurtherNotifications(t *testing.T) {
	source := hardware.NewSimulatorInterlockSource()
	core, err := New(source, hardware.NewSimulator())
	require.NoError(t, err)
	defer core.Close()

	calls := 0
	unsubscribe := core.SubscribeChanges(func(model.InterlockStatus) { calls++ })
	unsubscribe()

	source.Set(func(raw *hardware.RawInterlocks) { raw.DoorClosed = false })
	assert.Equal(t, 0, calls)
}

func TestAbortExposureCallsGeneratorDirectly(t *testing.T) {
	sim := hardware.NewSimulator()
	core, err := New(hardware.NewSimulatorInterlockSource(), sim)
	require.NoError(t, err)
	defer core.Close()

	require.NoError(t, core.AbortExposure(context.Background()))
	assert.Equal(t, 1, sim.AbortCalls)
}

func TestEmergencyStandbyAbortsAndLatchesEmergencyStop(t *testing.T) {
	sim := hardware.NewSimulator()
	core, err := New(hardware.NewSimulatorInterlockSource(), sim)
	require.NoError(t, err)
	defer core.Close()

	require.NoError(t, core.EmergencyStandby(context.Background()))
	assert.Equal(t, 1, sim.AbortCalls)
	assert.False(t, core.CheckAll().EmergencyStopClear)
	assert.False(t, core.CheckAll().AllPassed)
}

func TestRearmRefreshesFromSourceAfterEmergencyStandby(t *testing.T) {
	source := hardware.NewSimulatorInterlockSource()
	sim := hardware.NewSimulator()
	core, err := New(source, sim)
	require.NoError(t, err)
	defer core.Close()

	require.NoError(t, core.EmergencyStandby(context.Background()))
	require.False(t, core.CheckAll().AllPassed)

	core.Rearm()
	assert.True(t, core.CheckAll().AllPassed)
}
