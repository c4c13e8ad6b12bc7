package model

import "time"

// ExposureStatus tracks an ExposureRecord through its lifecycle.
type ExposureStatus int

const (
	ExposureUndefined ExposureStatus = iota
	ExposurePending
	ExposureAcquired
	ExposureAccepted
	ExposureRejected
	ExposureIncomplete
	ExposureAcquisitionFailed
)

func (s ExposureStatus) String() string {
	switch s {
	case ExposurePending:
		return "Pending"
	case ExposureAcquired:
		return "Acquired"
	case ExposureAccepted:
		return "Accepted"
	case ExposureRejected:
		return "Rejected"
	case ExposureIncomplete:
		return "Incomplete"
	case ExposureAcquisitionFailed:
		return "AcquisitionFailed"
	default:
		return "Undefined"
	}
}

// Protocol is the composite-keyed exposure recipe validated against
// DeviceSafetyLimits before it may be used to arm the generator.
type Protocol struct {
	BodyPart         string
	Projection       string
	DeviceModel      string
	KVp              float64
	MA               float64
	ExposureTimeMS   float64
	AECEnabled       bool
	AECChambers      []int
	FocusSizeMM      float64
	GridInUse        bool
	ProcedureCodes   []string
}

// Key returns the composite (BodyPart, Projection, DeviceModel) key.
func (p Protocol) Key() ProtocolKey {
	return ProtocolKey{BodyPart: p.BodyPart, Projection: p.Projection, DeviceModel: p.DeviceModel}
}

// ProtocolKey is the composite identity of a Protocol.
type ProtocolKey struct {
	BodyPart    string
	Projection  string
	DeviceModel string
}

// DeviceSafetyLimits bounds the parameters a Protocol may declare.
// Boundary values (e.g. kVp == MaxKVp) are inclusive per spec.
type DeviceSafetyLimits struct {
	MaxKVp float64
	MaxMA  float64
	MaxMS  float64
}

// Within reports whether p's exposure parameters fall within limits,
// inclusive of the boundary.
func (l DeviceSafetyLimits) Within(p Protocol) bool {
	return p.KVp <= l.MaxKVp && p.MA <= l.MaxMA && p.ExposureTimeMS <= l.MaxMS
}

// ExposureRecord snapshots the protocol used for one exposure plus its
// mutable acquisition outcome. The protocol fields are set once at
// ExposureTrigger entry and never mutated afterward; Status, DAP,
// ImageSOPUID, AcquiredAt, and RejectionReason evolve as the study
// progresses through QcReview.
type ExposureRecord struct {
	Protocol        Protocol
	Status          ExposureStatus
	DAP             float64 // cGy·cm^2
	ImageSOPUID     string
	AcquiredAt      time.Time
	OperatorID      string
	RejectionReason string
}

// StudyContext is owned by the Workflow Engine for the lifetime of one
// study. PHI fields must be cleared before the engine publishes the
// event that accompanies a transition into StateIdle.
type StudyContext struct {
	StudyUID         string
	AccessionNumber  string
	PatientID        string
	PatientName      string // PHI — never logged
	PatientDOB       *time.Time
	PatientSex       string
	Emergency        bool
	WorklistRef      string
	Exposures        []*ExposureRecord
	CreatedAt        time.Time
	UnscheduledFlag  bool
}

// ClearPHI zeroes every PHI-bearing field. Called by the engine
// immediately before it publishes the terminal StateChanged event for a
// transition into StateIdle.
func (s *StudyContext) ClearPHI() {
	s.PatientID = ""
	s.PatientName = ""
	s.PatientDOB = nil
	s.PatientSex = ""
}

// TotalDAP sums DAP across every exposure, including rejected ones,
// matching the Dose Tracker's cumulative-study-dose rule.
func (s *StudyContext) TotalDAP() float64 {
	var total float64
	for _, e := range s.Exposures {
		total += e.DAP
	}
	return total
}
