package workflow

import (
	"fmt"
	"strconv"
	"time"

	"github.com/clinicore/xray-console/pkg/eventbus"
	"github.com/clinicore/xray-console/pkg/model"
)

// applyStartWorklistSync resets the engine's study context to a clean
// slate; the worklist fetch itself is the caller's (MWL client's)
// responsibility, triggered alongside this transition.
func applyStartWorklistSync(e *Engine, req transitionRequest) error {
	e.study = model.StudyContext{CreatedAt: time.Now().UTC()}
	return nil
}

// applyPatientConfirmed stages the selected patient and study identity
// from the caller-supplied metadata.
func applyPatientConfirmed(e *Engine, req transitionRequest) error {
	e.study.StudyUID = req.metadata["study_uid"]
	e.study.AccessionNumber = req.metadata["accession_number"]
	e.study.PatientID = req.metadata["patient_id"]
	e.study.PatientName = req.metadata["patient_name"]
	e.study.PatientSex = req.metadata["patient_sex"]
	e.study.WorklistRef = req.metadata["worklist_ref"]
	if req.metadata["study_uid"] == "" {
		return fmt.Errorf("workflow: patient confirmation missing study_uid")
	}
	return nil
}

// applyEmergencyActivated stages an unscheduled study directly, skipping
// worklist sync entirely (the emergency bypass: Idle -> PatientSelect).
func applyEmergencyActivated(e *Engine, req transitionRequest) error {
	studyUID, err := e.uids.Next()
	if err != nil {
		return fmt.Errorf("workflow: minting emergency study UID: %w", err)
	}
	e.study = model.StudyContext{
		StudyUID:        studyUID,
		PatientID:       req.metadata["patient_id"],
		PatientName:     req.metadata["patient_name"],
		Emergency:       true,
		UnscheduledFlag: true,
		CreatedAt:       time.Now().UTC(),
	}
	return nil
}

// protocolFromMetadata parses the technique factors a ProtocolSelected
// trigger carries, shared by applyProtocolSelected and
// guardProtocolMetadataWithinDeviceLimits so the guard evaluates exactly
// the protocol Apply would stage, before any record is persisted.
func protocolFromMetadata(metadata map[string]string) (model.Protocol, error) {
	kvp, err := strconv.ParseFloat(metadata["kvp"], 64)
	if err != nil {
		return model.Protocol{}, fmt.Errorf("workflow: protocol selection missing kvp: %w", err)
	}
	ma, err := strconv.ParseFloat(metadata["ma"], 64)
	if err != nil {
		return model.Protocol{}, fmt.Errorf("workflow: protocol selection missing ma: %w", err)
	}
	ms, err := strconv.ParseFloat(metadata["exposure_time_ms"], 64)
	if err != nil {
		return model.Protocol{}, fmt.Errorf("workflow: protocol selection missing exposure_time_ms: %w", err)
	}
	return model.Protocol{
		BodyPart:       metadata["body_part"],
		Projection:     metadata["projection"],
		DeviceModel:    metadata["device_model"],
		KVp:            kvp,
		MA:             ma,
		ExposureTimeMS: ms,
		AECEnabled:     metadata["aec_enabled"] == "true",
		GridInUse:      metadata["grid_in_use"] == "true",
	}, nil
}

// applyProtocolSelected stages a new pending exposure record for the
// study from the already-guarded protocol; guardProtocolMetadataWithinDeviceLimits
// has already refused this transition if the protocol exceeds the
// device's limits, so no partial record reaches this point for a
// rejected save.
func applyProtocolSelected(e *Engine, req transitionRequest) error {
	protocol, err := protocolFromMetadata(req.metadata)
	if err != nil {
		return err
	}
	e.study.Exposures = append(e.study.Exposures, &model.ExposureRecord{
		Protocol:   protocol,
		Status:     model.ExposurePending,
		OperatorID: req.operatorID,
	})
	return nil
}

// applyExposeRequested changes no study state; the pending exposure stays
// ExposurePending. The actual generator fire happens outside the engine (the caller's
// hardware.Generator collaborator), gated by the guards that already
// ran before Apply.
func applyExposeRequested(e *Engine, req transitionRequest) error {
	return nil
}

// applyExposureFinished records the acquisition outcome (success or
// hardware failure) and, on success, the dose contribution.
func applyExposureFinished(e *Engine, req transitionRequest) error {
	exp := e.pendingExposure()
	if exp == nil {
		return fmt.Errorf("workflow: exposure finished with no pending exposure")
	}
	dap, err := strconv.ParseFloat(req.metadata["dap"], 64)
	if err != nil {
		return fmt.Errorf("workflow: exposure finished missing dap: %w", err)
	}
	exp.DAP = dap
	exp.AcquiredAt = time.Now().UTC()
	if req.metadata["failed"] == "true" {
		exp.Status = model.ExposureAcquisitionFailed
		exp.RejectionReason = req.metadata["failure_reason"]
		return nil
	}
	exp.Status = model.ExposureAcquired
	return e.dose.Record(e.study.StudyUID, e.study.PatientID, exp)
}

// applyAbortRequested is the journal-write half of the safety fast
// path: by the time this runs, onSafetyChange has already called
// Core.AbortExposure directly, off this transition entirely, to hold the
// 5ms signal-to-abort-call budget; this only records the outcome and
// marks the exposure incomplete.
func applyAbortRequested(e *Engine, req transitionRequest) error {
	exp := e.pendingExposure()
	if exp != nil {
		exp.Status = model.ExposureIncomplete
		exp.RejectionReason = req.metadata["reason"]
	}
	return nil
}

// applyImageAccepted mints the image SOP instance UID that the DX image
// builder and transport layer will use.
func applyImageAccepted(e *Engine, req transitionRequest) error {
	exp := e.pendingExposure()
	if exp == nil {
		return fmt.Errorf("workflow: image accepted with no pending exposure")
	}
	sopUID, err := e.uids.Next()
	if err != nil {
		return fmt.Errorf("workflow: minting image SOP UID: %w", err)
	}
	exp.Status = model.ExposureAccepted
	exp.ImageSOPUID = sopUID
	return nil
}

// applyImageRejected records the rejection reason an operator supplies
// during QC review.
func applyImageRejected(e *Engine, req transitionRequest) error {
	exp := e.pendingExposure()
	if exp == nil {
		return fmt.Errorf("workflow: image rejected with no pending exposure")
	}
	exp.Status = model.ExposureRejected
	exp.RejectionReason = req.metadata["rejection_reason"]
	return e.dose.Record(e.study.StudyUID, e.study.PatientID, exp)
}

// applyRetakeApproved stages a fresh pending exposure reusing the
// rejected exposure's protocol, so the retake is acquired with the same
// technique factors unless the operator changes them explicitly before
// firing again.
func applyRetakeApproved(e *Engine, req transitionRequest) error {
	exp := e.pendingExposure()
	if exp == nil {
		return fmt.Errorf("workflow: retake approved with no prior exposure")
	}
	e.study.Exposures = append(e.study.Exposures, &model.ExposureRecord{
		Protocol:   exp.Protocol,
		Status:     model.ExposurePending,
		OperatorID: req.operatorID,
	})
	return nil
}

// applyRetakeCancelled leaves the rejected exposure as the study's final
// record for this projection; no new exposure is staged.
func applyRetakeCancelled(e *Engine, req transitionRequest) error {
	return nil
}

// applyStudyCompleted fires on both edges TriggerStudyCompleted drives
// and publishes a different event for each, since e.current still holds
// the From state at Apply time (the swap to To happens after Apply
// returns): leaving MppsComplete hands the still-PHI-bearing study to
// the PACS export collaborator so it can enqueue DICOM transmissions
// into the Retry Queue; leaving PacsExport announces the closed study
// (dose summary only, no PHI) for downstream RDSR generation to consume,
// published immediately before the engine clears PHI and returns to
// Idle.
func applyStudyCompleted(e *Engine, req transitionRequest) error {
	switch e.current {
	case model.StateMppsComplete:
		e.bus.Publish(eventbus.Event{Kind: "PacsExportRequested", Payload: PacsExportRequestedPayload{
			Study: e.study,
		}})
	case model.StatePacsExport:
		e.bus.Publish(eventbus.Event{Kind: "StudyClosed", Payload: StudyClosedPayload{
			StudyUID:      e.study.StudyUID,
			TotalDAP:      e.study.TotalDAP(),
			ExposureCount: len(e.study.Exposures),
		}})
	}
	return nil
}

// applyTimeout records a watchdog timeout's reason for audit purposes;
// no study state changes.
func applyTimeout(e *Engine, req transitionRequest) error {
	return nil
}
