// Package safety aggregates the nine hardware interlocks and drives the
// abort fast-path described in spec.md §4.2. CheckAll must complete
// within 10ms and the fast-path from signal assertion to the generator
// abort call must not exceed 5ms, so this package never performs I/O or
// blocking work on the synchronous call paths; it only reads an
// in-memory snapshot and invokes direct callbacks.
package safety

import (
	"context"
	"sync"
	"time"

	"github.com/clinicore/xray-console/pkg/hardware"
	"github.com/clinicore/xray-console/pkg/model"
)

// ChangeListener is invoked synchronously, on the same goroutine as the
// hardware event, whenever the aggregated status changes. It must not
// block: this is the callback-registration half of the design note
// "cyclic graphs ... → unidirectional event flow + callback
// registration", used precisely because the 5ms abort budget cannot
// tolerate bus scheduling latency.
type ChangeListener func(model.InterlockStatus)

// Core aggregates RawInterlocks from a hardware.SafetyInterlockSource
// into the InterlockStatus snapshot the Workflow Engine's guards read.
type Core struct {
	source hardware.SafetyInterlockSource
	gen    hardware.Generator

	mu        sync.RWMutex
	current   model.InterlockStatus
	listeners []ChangeListener

	unsubscribe func()
}

// New constructs a Core wired to source (the raw hardware feed) and gen
// (the generator collaborator the abort fast-path calls directly).
func New(source hardware.SafetyInterlockSource, gen hardware.Generator) (*Core, error) {
	c := &Core{source: source, gen: gen}

	raw, err := source.Read()
	if err != nil {
		return nil, err
	}
	c.current = fromRaw(raw)
	c.unsubscribe = source.Subscribe(c.onHardwareChange)
	return c, nil
}

func fromRaw(raw hardware.RawInterlocks) model.InterlockStatus {
	status := model.InterlockStatus{
		DoorClosed:         raw.DoorClosed,
		EmergencyStopClear: raw.EmergencyStopClear,
		ThermalNormal:      raw.ThermalNormal,
		GeneratorReady:     raw.GeneratorReady,
		DetectorReady:      raw.DetectorReady,
		CollimatorValid:    raw.CollimatorValid,
		TableLocked:        raw.TableLocked,
		DoseWithinLimits:   raw.DoseWithinLimits,
		AECConfigured:      raw.AECConfigured,
		SampledAt:          time.Now(),
	}
	status.Refresh()
	return status
}

// onHardwareChange runs on the hardware source's notification
// goroutine; it must stay allocation-light and non-blocking to hold the
// 5ms fast-path budget.
func (c *Core) onHardwareChange(raw hardware.RawInterlocks) {
	status := fromRaw(raw)

	c.mu.Lock()
	wasAllPassed := c.current.AllPassed
	c.current = status
	listeners := append([]ChangeListener(nil), c.listeners...)
	c.mu.Unlock()

	for _, l := range listeners {
		l(status)
	}

	if wasAllPassed && !status.AllPassed {
		// Interlock loss: the fast-path abort call itself happens in
		// AbortOnInterlockLoss, invoked by whatever holds the
		// ExposureTrigger context (see workflow.Engine's registration).
		// Core does not call the engine directly (no collaborator
		// holds a reference back to the engine, per the design note);
		// it only guarantees listeners observe the loss synchronously.
	}
}

// CheckAll returns the current aggregated status. It is a pure
// in-memory read (RCU-style snapshot per spec.md §5) and completes well
// under the 10ms budget.
func (c *Core) CheckAll() model.InterlockStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

// SubscribeChanges registers l to be invoked synchronously whenever the
// aggregated status changes. The returned function unsubscribes.
func (c *Core) SubscribeChanges(l ChangeListener) func() {
	c.mu.Lock()
	idx := len(c.listeners)
	c.listeners = append(c.listeners, l)
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		// Replace rather than splice, so other subscribers' indices stay valid.
		c.listeners[idx] = func(model.InterlockStatus) {}
	}
}

// EmergencyStandby fans out an abort to the generator and forces
// emergency_stop_clear false until an explicit re-arm. It does not
// release the detector: Core only owns the generator/interlock
// relationship, and Detector.StopAcquisition is left to the caller.
func (c *Core) EmergencyStandby(ctx context.Context) error {
	if err := c.gen.AbortExposure(ctx); err != nil {
		return err
	}
	c.mu.Lock()
	c.current.EmergencyStopClear = false
	c.current.Refresh()
	c.mu.Unlock()
	return nil
}

// Rearm clears the emergency latch set by EmergencyStandby, once an
// operator has explicitly confirmed the area is safe.
func (c *Core) Rearm() {
	raw, err := c.source.Read()
	if err != nil {
		return
	}
	c.mu.Lock()
	c.current = fromRaw(raw)
	c.mu.Unlock()
}

// AbortExposure is the fast-path entry point: it calls
// Generator.AbortExposure directly, bypassing any queue, so the
// signal-to-abort-call latency stays within the 5ms budget from
// spec.md §4.2. Journal-write and engine-transition are the caller's
// responsibility (the Workflow Engine), invoked immediately after this
// returns, preserving journal-before-event ordering even on this path.
func (c *Core) AbortExposure(ctx context.Context) error {
	return c.gen.AbortExposure(ctx)
}

// Close unsubscribes from the hardware source.
func (c *Core) Close() {
	if c.unsubscribe != nil {
		c.unsubscribe()
	}
}
