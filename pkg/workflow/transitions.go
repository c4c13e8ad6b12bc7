package workflow

import "github.com/clinicore/xray-console/pkg/model"

// transitionTable is the guarded transition lookup, analogous to
// statemachine.go's stateTransitions map: each (From, Trigger) pair maps
// to exactly one destination state, guard set, and apply step. A pair
// absent from this table has no defined transition and is rejected by
// applyTransition.
var transitionTable = map[transitionKey]transition{
	{From: model.StateIdle, Trigger: model.TriggerStartWorklistSync}: {
		To:    model.StateWorklistSync,
		Apply: applyStartWorklistSync,
	},
	{From: model.StateIdle, Trigger: model.TriggerEmergencyActivated}: {
		To:    model.StatePatientSelect,
		Apply: applyEmergencyActivated,
	},

	{From: model.StateWorklistSync, Trigger: model.TriggerPatientConfirmed}: {
		To:    model.StatePatientSelect,
		Apply: applyPatientConfirmed,
	},
	{From: model.StateWorklistSync, Trigger: model.TriggerTimeout}: {
		To:    model.StateIdle,
		Apply: applyTimeout,
	},

	{From: model.StatePatientSelect, Trigger: model.TriggerProtocolSelected}: {
		To:     model.StateProtocolSelect,
		Guards: []GuardFunc{guardStudySelected, guardProtocolMetadataWithinDeviceLimits},
		Apply:  applyProtocolSelected,
	},

	{From: model.StateProtocolSelect, Trigger: model.TriggerPositioningComplete}: {
		To: model.StatePositionAndPreview,
	},

	{From: model.StatePositionAndPreview, Trigger: model.TriggerExposeRequested}: {
		To: model.StateExposureTrigger,
		Guards: []GuardFunc{
			guardStudySelected,
			guardInterlocksAllPassed,
			guardProtocolWithinDeviceLimits,
			guardAECReadyIfEnabled,
			guardDoseWithinLimits,
		},
		Apply: applyExposeRequested,
	},

	{From: model.StateExposureTrigger, Trigger: model.TriggerExposureFinished}: {
		To:    model.StateQcReview,
		Apply: applyExposureFinished,
	},
	{From: model.StateExposureTrigger, Trigger: model.TriggerAbortRequested}: {
		To:    model.StateQcReview,
		Apply: applyAbortRequested,
	},

	{From: model.StateQcReview, Trigger: model.TriggerImageAccepted}: {
		To:     model.StateMppsComplete,
		Guards: []GuardFunc{guardLastExposureAcquired},
		Apply:  applyImageAccepted,
	},
	{From: model.StateQcReview, Trigger: model.TriggerImageRejected}: {
		To:     model.StateRejectRetake,
		Guards: []GuardFunc{guardLastExposureAcquired},
		Apply:  applyImageRejected,
	},

	{From: model.StateRejectRetake, Trigger: model.TriggerRetakeApproved}: {
		To:    model.StatePositionAndPreview,
		Apply: applyRetakeApproved,
	},
	{From: model.StateRejectRetake, Trigger: model.TriggerRetakeCancelled}: {
		To:    model.StateMppsComplete,
		Apply: applyRetakeCancelled,
	},

	{From: model.StateMppsComplete, Trigger: model.TriggerStudyCompleted}: {
		To:    model.StatePacsExport,
		Apply: applyStudyCompleted,
	},

	{From: model.StatePacsExport, Trigger: model.TriggerStudyCompleted}: {
		To:    model.StateIdle,
		Apply: applyStudyCompleted,
	},
}
