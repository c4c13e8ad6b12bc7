package hardware

import (
	"context"
	"sync"
)

// Simulator implements Generator and AEC, plus the Detector methods
// StartAcquisition, StopAcquisition and GetInfo, for development and
// test use. It does not satisfy Detector, because its GetStatus reports
// the generator's state. It stands in for real hardware drivers without requiring a
// device-specific driver socket (spec.md Non-goals exclude "plugin"
// extensibility beyond the detector driver socket this interface set
// already is).
type Simulator struct {
	mu sync.Mutex

	genState GeneratorState
	detState DetectorState
	aecReady AECReadiness

	AbortCalls int
}

// NewSimulator returns a Simulator with all subsystems idle/not-ready.
func NewSimulator() *Simulator {
	return &Simulator{
		genState: GeneratorIdle,
		detState: DetectorIdle,
		aecReady: AECNotConfigured,
	}
}

func (s *Simulator) SetExposureParameters(ctx context.Context, kvp, ma, ms, focusMM float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.genState = GeneratorReady
	return nil
}

func (s *Simulator) ArmGenerator(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.genState = GeneratorReady
	return nil
}

func (s *Simulator) TriggerExposure(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.genState = GeneratorExposing
	return nil
}

func (s *Simulator) AbortExposure(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.AbortCalls++
	s.genState = GeneratorIdle
	return nil
}

func (s *Simulator) GetStatus(ctx context.Context) (GeneratorState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.genState, nil
}

func (s *Simulator) StartAcquisition(ctx context.Context, cfg DetectorConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.detState = DetectorAcquiring
	return nil
}

func (s *Simulator) StopAcquisition(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.detState = DetectorReady
	return nil
}

func (s *Simulator) GetInfo(ctx context.Context) (DetectorInfo, error) {
	return DetectorInfo{Model: "SIM-DETECTOR", SerialNumber: "SIM-0001"}, nil
}

func (s *Simulator) SetParameters(ctx context.Context, chambers []int, density, thicknessCM float64, kvPriority bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.aecReady = AECReady
	return nil
}

func (s *Simulator) GetReadiness(ctx context.Context) (AECReadiness, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.aecReady, nil
}

func (s *Simulator) GetRecommendedParams(ctx context.Context, thicknessCM float64) (AECRecommendedParams, error) {
	return AECRecommendedParams{KVp: 70 + thicknessCM*0.5, MA: 200}, nil
}

// SimulatorInterlockSource is a SafetyInterlockSource backed by an
// in-memory, all-pass-by-default snapshot that tests mutate directly.
type SimulatorInterlockSource struct {
	mu        sync.Mutex
	current   RawInterlocks
	listeners map[int]func(RawInterlocks)
	nextID    int
}

// NewSimulatorInterlockSource returns a source with every interlock
// passing.
func NewSimulatorInterlockSource() *SimulatorInterlockSource {
	return &SimulatorInterlockSource{
		current: RawInterlocks{
			DoorClosed: true, EmergencyStopClear: true, ThermalNormal: true,
			GeneratorReady: true, DetectorReady: true, CollimatorValid: true,
			TableLocked: true, DoseWithinLimits: true, AECConfigured: true,
		},
		listeners: make(map[int]func(RawInterlocks)),
	}
}

func (s *SimulatorInterlockSource) Read() (RawInterlocks, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current, nil
}

func (s *SimulatorInterlockSource) Subscribe(cb func(RawInterlocks)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = cb
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// Set mutates the current snapshot and fans it out to subscribers,
// simulating a hardware-side change (e.g. a door opening mid-exposure).
func (s *SimulatorInterlockSource) Set(mutate func(*RawInterlocks)) {
	s.mu.Lock()
	mutate(&s.current)
	snapshot := s.current
	var cbs []func(RawInterlocks)
	for _, cb := range s.listeners {
		cbs = append(cbs, cb)
	}
	s.mu.Unlock()
	for _, cb := range cbs {
		cb(snapshot)
	}
}
