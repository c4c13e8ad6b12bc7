// Package hardware defines the capability-set interfaces the Workflow
// and Safety cores consume (spec.md §6). Real hardware, a simulator,
// and a mock each satisfy these interfaces directly — design note:
// "inheritance for hardware interfaces → capability sets", no class
// hierarchy.
package hardware

import "context"

// GeneratorState is the x-ray generator's reported state.
type GeneratorState int

const (
	GeneratorUnknown GeneratorState = iota
	GeneratorIdle
	GeneratorReady
	GeneratorExposing
	GeneratorFault
)

// Generator is the x-ray generator collaborator.
type Generator interface {
	SetExposureParameters(ctx context.Context, kvp, ma, ms float64, focusMM float64) error
	ArmGenerator(ctx context.Context) error
	TriggerExposure(ctx context.Context) error
	// AbortExposure must return as fast as possible: it sits on the
	// Safety Core's 5ms fast-path (spec.md §4.2).
	AbortExposure(ctx context.Context) error
	GetStatus(ctx context.Context) (GeneratorState, error)
}

// DetectorState is the flat-panel detector's reported state.
type DetectorState int

const (
	DetectorUnknown DetectorState = iota
	DetectorIdle
	DetectorAcquiring
	DetectorReady
	DetectorFault
)

// DetectorConfig parametrizes one acquisition.
type DetectorConfig struct {
	BodyPart   string
	GridInUse  bool
	AECEnabled bool
}

// DetectorInfo is static/slow-changing detector metadata.
type DetectorInfo struct {
	Model        string
	SerialNumber string
}

// Detector is the flat-panel/CR detector collaborator.
type Detector interface {
	StartAcquisition(ctx context.Context, cfg DetectorConfig) error
	StopAcquisition(ctx context.Context) error
	GetStatus(ctx context.Context) (DetectorState, error)
	GetInfo(ctx context.Context) (DetectorInfo, error)
}

// AECReadiness is the Automatic Exposure Control subsystem's reported
// readiness.
type AECReadiness int

const (
	AECUnknown AECReadiness = iota
	AECNotConfigured
	AECReady
	AECError
)

// AECRecommendedParams is what the AEC suggests given patient thickness.
type AECRecommendedParams struct {
	KVp float64
	MA  float64
}

// AEC is the Automatic Exposure Control collaborator: it terminates an
// exposure once detector signal reaches threshold.
type AEC interface {
	SetParameters(ctx context.Context, chambers []int, density float64, thicknessCM float64, kvPriority bool) error
	GetReadiness(ctx context.Context) (AECReadiness, error)
	GetRecommendedParams(ctx context.Context, thicknessCM float64) (AECRecommendedParams, error)
}

// SafetyInterlockSource is the raw hardware feed the Safety Core
// aggregates into an InterlockStatus. Read must be non-suspending
// (spec.md §5) so CheckAll can meet its 10ms budget.
type SafetyInterlockSource interface {
	Read() (RawInterlocks, error)
	// Subscribe delivers a RawInterlocks snapshot on every hardware
	// change; the returned function unsubscribes.
	Subscribe(func(RawInterlocks)) (unsubscribe func())
}

// RawInterlocks is the nine-boolean feed from hardware, before the
// Safety Core computes AllPassed.
type RawInterlocks struct {
	DoorClosed         bool
	EmergencyStopClear bool
	ThermalNormal      bool
	GeneratorReady     bool
	DetectorReady      bool
	CollimatorValid    bool
	TableLocked        bool
	DoseWithinLimits   bool
	AECConfigured      bool
}
