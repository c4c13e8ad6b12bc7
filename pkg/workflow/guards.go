package workflow

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/clinicore/xray-console/pkg/hardware"
	"github.com/clinicore/xray-console/pkg/model"
)

// guardInterlocksAllPassed refuses ExposeRequested unless every one of
// the nine hardware interlocks currently reads clear (spec.md §4.2).
func guardInterlocksAllPassed(e *Engine, req transitionRequest) model.GuardOutcome {
	status := e.core.CheckAll()
	detail := ""
	if !status.AllPassed {
		detail = strings.Join(status.FailedInterlocks(), ",")
	}
	return model.GuardOutcome{Name: "interlocks_all_passed", Passed: status.AllPassed, Detail: detail}
}

// guardProtocolWithinDeviceLimits refuses ExposeRequested if the
// protocol selected for the pending exposure exceeds the device's
// declared kVp/mA/ms ceilings (boundary values are inclusive).
func guardProtocolWithinDeviceLimits(e *Engine, req transitionRequest) model.GuardOutcome {
	exp := e.pendingExposure()
	if exp == nil {
		return model.GuardOutcome{Name: "protocol_within_device_limits", Passed: false, Detail: "no protocol staged for this study"}
	}
	ok := e.limits.Within(exp.Protocol)
	detail := ""
	if !ok {
		detail = fmt.Sprintf("kvp=%.1f ma=%.1f ms=%.1f exceeds device limits (max kvp=%.1f ma=%.1f ms=%.1f)",
			exp.Protocol.KVp, exp.Protocol.MA, exp.Protocol.ExposureTimeMS, e.limits.MaxKVp, e.limits.MaxMA, e.limits.MaxMS)
	}
	return model.GuardOutcome{Name: "protocol_within_device_limits", Passed: ok, Detail: detail}
}

// guardAECReadyIfEnabled refuses ExposeRequested if the pending
// exposure's protocol declares AEC enabled but the AEC subsystem is not
// reporting ready (spec.md §4.1). Protocols that leave AEC disabled
// never consult the collaborator at all.
func guardAECReadyIfEnabled(e *Engine, req transitionRequest) model.GuardOutcome {
	exp := e.pendingExposure()
	if exp == nil || !exp.Protocol.AECEnabled {
		return model.GuardOutcome{Name: "aec_ready_if_enabled", Passed: true}
	}
	if e.aec == nil {
		return model.GuardOutcome{Name: "aec_ready_if_enabled", Passed: false, Detail: "protocol requires AEC but no AEC collaborator is configured"}
	}
	readiness, err := e.aec.GetReadiness(context.Background())
	if err != nil {
		return model.GuardOutcome{Name: "aec_ready_if_enabled", Passed: false, Detail: err.Error()}
	}
	ok := readiness == hardware.AECReady
	detail := ""
	if !ok {
		detail = fmt.Sprintf("AEC enabled but not ready (state=%d)", readiness)
	}
	return model.GuardOutcome{Name: "aec_ready_if_enabled", Passed: ok, Detail: detail}
}

// guardProtocolMetadataWithinDeviceLimits refuses ProtocolSelected, before
// any exposure record is persisted, if the proposed protocol's kVp/mA/ms
// exceed the device's declared ceilings. This is the save-time half of
// the invariant guardProtocolWithinDeviceLimits enforces again at
// ExposeRequested for whichever protocol ends up staged (including one
// carried over by a retake).
func guardProtocolMetadataWithinDeviceLimits(e *Engine, req transitionRequest) model.GuardOutcome {
	protocol, err := protocolFromMetadata(req.metadata)
	if err != nil {
		return model.GuardOutcome{Name: "protocol_within_device_limits", Passed: false, Detail: err.Error()}
	}
	ok := e.limits.Within(protocol)
	detail := ""
	if !ok {
		detail = fmt.Sprintf("kvp=%.1f ma=%.1f ms=%.1f exceeds device limits (max kvp=%.1f ma=%.1f ms=%.1f)",
			protocol.KVp, protocol.MA, protocol.ExposureTimeMS, e.limits.MaxKVp, e.limits.MaxMA, e.limits.MaxMS)
	}
	return model.GuardOutcome{Name: "protocol_within_device_limits", Passed: ok, Detail: detail}
}

// guardDoseWithinLimits refuses ExposeRequested if the exposure's
// estimated DAP (supplied by the caller's AEC/technique calculation as
// metadata["estimated_dap"]) would push the study or the patient's
// daily cumulative dose over its configured limit.
func guardDoseWithinLimits(e *Engine, req transitionRequest) model.GuardOutcome {
	estimated, err := parseFloatMetadata(req.metadata, "estimated_dap")
	if err != nil {
		return model.GuardOutcome{Name: "dose_within_limits", Passed: false, Detail: err.Error()}
	}
	check := e.dose.CheckLimits(e.study.StudyUID, e.study.PatientID, estimated)
	detail := ""
	if !check.Within() {
		detail = fmt.Sprintf("projected dose %.3f would exceed configured limit", check.Projected)
	}
	return model.GuardOutcome{Name: "dose_within_limits", Passed: check.Within(), Detail: detail}
}

// guardStudySelected refuses transitions that require an active study
// (a non-empty StudyUID) to already be staged.
func guardStudySelected(e *Engine, req transitionRequest) model.GuardOutcome {
	ok := e.study.StudyUID != ""
	detail := ""
	if !ok {
		detail = "no study selected"
	}
	return model.GuardOutcome{Name: "study_selected", Passed: ok, Detail: detail}
}

// guardLastExposureAcquired refuses QcReview-bound transitions unless
// the pending exposure actually finished acquisition.
func guardLastExposureAcquired(e *Engine, req transitionRequest) model.GuardOutcome {
	exp := e.pendingExposure()
	ok := exp != nil && (exp.Status == model.ExposureAcquired || exp.Status == model.ExposureAcquisitionFailed)
	detail := ""
	if !ok {
		detail = "pending exposure has not finished acquisition"
	}
	return model.GuardOutcome{Name: "last_exposure_acquired", Passed: ok, Detail: detail}
}

func parseFloatMetadata(metadata map[string]string, key string) (float64, error) {
	raw, ok := metadata[key]
	if !ok {
		return 0, fmt.Errorf("workflow: missing required metadata %q", key)
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("workflow: metadata %q is not a number: %w", key, err)
	}
	return v, nil
}
