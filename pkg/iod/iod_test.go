package iod

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicore/xray-console/pkg/model"
)

func acceptedExposure() model.ExposureRecord {
	return model.ExposureRecord{
		Protocol: model.Protocol{
			BodyPart: "CHEST", Projection: "PA", DeviceModel: "DX-1000",
			KVp: 110, MA: 320, ExposureTimeMS: 8,
		},
		Status:      model.ExposureAccepted,
		ImageSOPUID: "1.2.840.99999.1.1",
		AcquiredAt:  time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		OperatorID:  "op1",
	}
}

func TestBuildDXImageRejectsNonAcceptedExposures(t *testing.T) {
	study := model.StudyContext{StudyUID: "1.2.840.99999.2"}
	exposure := acceptedExposure()
	exposure.Status = model.ExposurePending

	_, err := BuildDXImage(study, exposure, "1.2.840.99999.3", []byte{0x01})
	require.Error(t, err)
}

func TestBuildDXImageRejectsMissingStudyUID(t *testing.T) {
	_, err := BuildDXImage(model.StudyContext{}, acceptedExposure(), "1.2.840.99999.3", []byte{0x01})
	require.Error(t, err)
}

func TestBuildDXImageAssemblesAcceptedExposure(t *testing.T) {
	study := model.StudyContext{StudyUID: "1.2.840.99999.2", PatientID: "PID1", PatientName: "Doe^Jane"}
	ds, err := BuildDXImage(study, acceptedExposure(), "1.2.840.99999.3", []byte{0xAA, 0xBB})
	require.NoError(t, err)
	assert.NotEmpty(t, ds.Elements)
}

func TestBuildDoseSRRequiresSOPInstanceUID(t *testing.T) {
	study := model.StudyContext{StudyUID: "1.2.840.99999.2"}
	_, err := BuildDoseSR(study, 12.5, "")
	require.Error(t, err)
}

func TestBuildDoseSRAssemblesWithTotalDAP(t *testing.T) {
	study := model.StudyContext{StudyUID: "1.2.840.99999.2", PatientID: "PID1"}
	ds, err := BuildDoseSR(study, 12.5, "1.2.840.99999.4")
	require.NoError(t, err)
	assert.NotEmpty(t, ds.Elements)
}

func TestBuildMPPSAttributesRequiresStatus(t *testing.T) {
	study := model.StudyContext{StudyUID: "1.2.840.99999.2"}
	_, err := BuildMPPSAttributes(study, "")
	require.Error(t, err)
}

func TestBuildGSPSRequiresSOPInstanceUID(t *testing.T) {
	_, err := BuildGSPS("", "1.2.840.99999.3", 2048, 4096)
	require.Error(t, err)
}

func TestBuildGSPSAssemblesWindowingAttributes(t *testing.T) {
	ds, err := BuildGSPS("1.2.840.99999.5", "1.2.840.99999.3", 2048, 4096)
	require.NoError(t, err)
	assert.NotEmpty(t, ds.Elements)
}
