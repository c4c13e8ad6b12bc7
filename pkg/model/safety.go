package model

import "time"

// InterlockStatus aggregates the nine hardware-reported safety
// predicates. AllPassed must always equal the conjunction of the nine
// booleans; Refresh keeps that invariant in one place rather than
// trusting every call site to recompute it.
type InterlockStatus struct {
	DoorClosed         bool
	EmergencyStopClear bool
	ThermalNormal      bool
	GeneratorReady     bool
	DetectorReady      bool
	CollimatorValid    bool
	TableLocked        bool
	DoseWithinLimits   bool
	AECConfigured      bool

	AllPassed bool
	SampledAt time.Time
}

// Refresh recomputes AllPassed from the nine booleans. Call after
// mutating any individual field and before publishing or returning the
// status.
func (s *InterlockStatus) Refresh() {
	s.AllPassed = s.DoorClosed &&
		s.EmergencyStopClear &&
		s.ThermalNormal &&
		s.GeneratorReady &&
		s.DetectorReady &&
		s.CollimatorValid &&
		s.TableLocked &&
		s.DoseWithinLimits &&
		s.AECConfigured
}

// FailedInterlocks lists the names of every failing predicate, in the
// fixed declaration order from spec.md §3.
func (s InterlockStatus) FailedInterlocks() []string {
	var failed []string
	checks := []struct {
		name string
		ok   bool
	}{
		{"door_closed", s.DoorClosed},
		{"emergency_stop_clear", s.EmergencyStopClear},
		{"thermal_normal", s.ThermalNormal},
		{"generator_ready", s.GeneratorReady},
		{"detector_ready", s.DetectorReady},
		{"collimator_valid", s.CollimatorValid},
		{"table_locked", s.TableLocked},
		{"dose_within_limits", s.DoseWithinLimits},
		{"aec_configured", s.AECConfigured},
	}
	for _, c := range checks {
		if !c.ok {
			failed = append(failed, c.name)
		}
	}
	return failed
}

// DoseLimitCheck is the result of Dose Tracker's CheckLimits operation.
type DoseLimitCheck struct {
	WithinStudyLimit bool
	WithinDailyLimit bool
	Projected        float64
	ShouldWarn       bool
}

// Within reports whether the proposed exposure may proceed.
func (c DoseLimitCheck) Within() bool {
	return c.WithinStudyLimit && c.WithinDailyLimit
}
