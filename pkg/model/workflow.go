// Package model holds the data types shared across the acquisition
// console core: workflow state, study/exposure records, protocols,
// interlock snapshots, and the DICOM transmission/association types.
package model

import "fmt"

// WorkflowState is the tagged enum of the clinical workflow's ten
// reachable states. The zero value is intentionally invalid: every
// constructed engine must set an explicit initial state.
type WorkflowState int

const (
	StateUndefined WorkflowState = iota
	StateIdle
	StateWorklistSync
	StatePatientSelect
	StateProtocolSelect
	StatePositionAndPreview
	StateExposureTrigger
	StateQcReview
	StateRejectRetake
	StateMppsComplete
	StatePacsExport
)

var workflowStateNames = map[WorkflowState]string{
	StateIdle:               "Idle",
	StateWorklistSync:       "WorklistSync",
	StatePatientSelect:      "PatientSelect",
	StateProtocolSelect:     "ProtocolSelect",
	StatePositionAndPreview: "PositionAndPreview",
	StateExposureTrigger:    "ExposureTrigger",
	StateQcReview:           "QcReview",
	StateRejectRetake:       "RejectRetake",
	StateMppsComplete:       "MppsComplete",
	StatePacsExport:         "PacsExport",
}

func (s WorkflowState) String() string {
	if name, ok := workflowStateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Undefined(%d)", int(s))
}

// Valid reports whether s is one of the ten defined states.
func (s WorkflowState) Valid() bool {
	_, ok := workflowStateNames[s]
	return ok
}

// Trigger enumerates the events the workflow engine accepts.
type Trigger int

const (
	TriggerUndefined Trigger = iota
	TriggerStartWorklistSync
	TriggerPatientConfirmed
	TriggerProtocolSelected
	TriggerPositioningComplete
	TriggerExposeRequested
	TriggerExposureFinished
	TriggerImageAccepted
	TriggerImageRejected
	TriggerRetakeApproved
	TriggerRetakeCancelled
	TriggerStudyCompleted
	TriggerEmergencyActivated
	TriggerAbortRequested
	TriggerTimeout
)

var triggerNames = map[Trigger]string{
	TriggerStartWorklistSync:   "StartWorklistSync",
	TriggerPatientConfirmed:    "PatientConfirmed",
	TriggerProtocolSelected:    "ProtocolSelected",
	TriggerPositioningComplete: "PositioningComplete",
	TriggerExposeRequested:     "ExposeRequested",
	TriggerExposureFinished:    "ExposureFinished",
	TriggerImageAccepted:       "ImageAccepted",
	TriggerImageRejected:       "ImageRejected",
	TriggerRetakeApproved:      "RetakeApproved",
	TriggerRetakeCancelled:     "RetakeCancelled",
	TriggerStudyCompleted:      "StudyCompleted",
	TriggerEmergencyActivated:  "EmergencyActivated",
	TriggerAbortRequested:      "AbortRequested",
	TriggerTimeout:             "Timeout",
}

func (t Trigger) String() string {
	if name, ok := triggerNames[t]; ok {
		return name
	}
	return fmt.Sprintf("UndefinedTrigger(%d)", int(t))
}
