// Package iod builds the DICOM Information Object datasets the console
// emits — Digital X-Ray/CR images, dose structured reports, MPPS
// attribute sets, and (local-only, per OQ-04) GSPS presentation states —
// as pure functions of the clinical model, failing loudly on missing
// mandatory attributes rather than emitting an incomplete dataset.
package iod

import (
	"bytes"
	"fmt"
	"time"

	"github.com/suyashkumar/dicom"
	dicomtag "github.com/suyashkumar/dicom/pkg/tag"

	"github.com/clinicore/xray-console/pkg/errkind"
	"github.com/clinicore/xray-console/pkg/model"
)

// Encode serializes ds into the DICOM file-format bytes the transport
// layer sends over a C-STORE; it is the write-side counterpart of the
// dicom.Parse the teacher's dimse.CommandAssembler already uses to read
// received datasets.
func Encode(ds *dicom.Dataset) ([]byte, error) {
	var buf bytes.Buffer
	if err := dicom.Write(&buf, *ds); err != nil {
		return nil, fmt.Errorf("iod: encoding dataset: %w", err)
	}
	return buf.Bytes(), nil
}

// DigitalXRaySOPClassUID identifies a Digital X-Ray Image, For Presentation
// instance (PS3.4 A.26).
const DigitalXRaySOPClassUID = "1.2.840.10008.5.1.4.1.1.1.1"

// XRayRadiationDoseSRSOPClassUID identifies an X-Ray Radiation Dose SR
// instance (PS3.4 A.35.8.2).
const XRayRadiationDoseSRSOPClassUID = "1.2.840.10008.5.1.4.1.1.88.67"

func element(tag dicomtag.Tag, value any) (*dicom.Element, error) {
	elem, err := dicom.NewElement(tag, value)
	if err != nil {
		return nil, fmt.Errorf("iod: build element %v: %w", tag, err)
	}
	return elem, nil
}

func requireNonEmpty(field, value string) error {
	if value == "" {
		return errkind.New(errkind.ConfigurationInvalid, fmt.Sprintf("iod: mandatory attribute %s is empty", field))
	}
	return nil
}

// BuildDXImage assembles the dataset for one accepted exposure, using the
// study context and the exposure record it belongs to. seriesInstanceUID
// is minted by the caller (uidgen) since StudyContext tracks only the
// study-level identity. Pixel data itself is supplied by the detector
// driver and passed through unmodified (bytes); this function only builds
// the attribute set around it.
func BuildDXImage(study model.StudyContext, exposure model.ExposureRecord, seriesInstanceUID string, pixelData []byte) (*dicom.Dataset, error) {
	if err := requireNonEmpty("StudyInstanceUID", study.StudyUID); err != nil {
		return nil, err
	}
	if err := requireNonEmpty("SOPInstanceUID", exposure.ImageSOPUID); err != nil {
		return nil, err
	}
	if exposure.Status != model.ExposureAccepted {
		return nil, errkind.New(errkind.ConfigurationInvalid, "iod: refusing to build a DX image for a non-accepted exposure")
	}

	entries := []struct {
		tag   dicomtag.Tag
		value any
	}{
		{dicomtag.SOPClassUID, []string{DigitalXRaySOPClassUID}},
		{dicomtag.SOPInstanceUID, []string{exposure.ImageSOPUID}},
		{dicomtag.StudyInstanceUID, []string{study.StudyUID}},
		{dicomtag.SeriesInstanceUID, []string{seriesInstanceUID}},
		{dicomtag.PatientID, []string{study.PatientID}},
		{dicomtag.PatientName, []string{study.PatientName}},
		{dicomtag.Modality, []string{"DX"}},
		{dicomtag.BodyPartExamined, []string{exposure.Protocol.BodyPart}},
		{dicomtag.KVP, []string{formatFloat(exposure.Protocol.KVp)}},
		{dicomtag.ExposureTime, []string{formatFloat(exposure.Protocol.ExposureTimeMS)}},
		{dicomtag.XRayTubeCurrent, []string{formatFloat(exposure.Protocol.MA)}},
		{dicomtag.AcquisitionDateTime, []string{exposure.AcquiredAt.UTC().Format("20060102150405")}},
	}

	var elems []*dicom.Element
	for _, e := range entries {
		elem, err := element(e.tag, e.value)
		if err != nil {
			return nil, err
		}
		elems = append(elems, elem)
	}
	pixelElem, err := element(dicomtag.PixelData, pixelData)
	if err != nil {
		return nil, err
	}
	elems = append(elems, pixelElem)

	ds := &dicom.Dataset{Elements: elems}
	return ds, nil
}

// BuildDoseSR assembles a minimal X-Ray Radiation Dose Structured Report
// summarizing total DAP for the study, fed by the Dose Tracker rather than
// re-deriving the total itself.
func BuildDoseSR(study model.StudyContext, totalDAP float64, sopInstanceUID string) (*dicom.Dataset, error) {
	if err := requireNonEmpty("StudyInstanceUID", study.StudyUID); err != nil {
		return nil, err
	}
	if err := requireNonEmpty("SOPInstanceUID", sopInstanceUID); err != nil {
		return nil, err
	}
	entries := []struct {
		tag   dicomtag.Tag
		value any
	}{
		{dicomtag.SOPClassUID, []string{XRayRadiationDoseSRSOPClassUID}},
		{dicomtag.SOPInstanceUID, []string{sopInstanceUID}},
		{dicomtag.StudyInstanceUID, []string{study.StudyUID}},
		{dicomtag.PatientID, []string{study.PatientID}},
		{dicomtag.Modality, []string{"SR"}},
		{dicomtag.ContentDate, []string{time.Now().UTC().Format("20060102")}},
	}
	var elems []*dicom.Element
	for _, e := range entries {
		elem, err := element(e.tag, e.value)
		if err != nil {
			return nil, err
		}
		elems = append(elems, elem)
	}
	dapElem, err := element(dicomtag.Tag{Group: 0x0040, Element: 0xA30A}, []string{formatFloat(totalDAP)})
	if err != nil {
		return nil, err
	}
	elems = append(elems, dapElem)
	return &dicom.Dataset{Elements: elems}, nil
}

// BuildMPPSAttributes assembles the N-CREATE/N-SET attribute payload for
// an exposure procedure step, reused for both the begin (IN PROGRESS) and
// complete (COMPLETED/DISCONTINUED) calls with a different status value.
func BuildMPPSAttributes(study model.StudyContext, status string) (*dicom.Dataset, error) {
	if err := requireNonEmpty("PerformedProcedureStepStatus", status); err != nil {
		return nil, err
	}
	entries := []struct {
		tag   dicomtag.Tag
		value any
	}{
		{dicomtag.Tag{Group: 0x0040, Element: 0x0252}, []string{status}}, // Performed Procedure Step Status
		{dicomtag.PatientID, []string{study.PatientID}},
		{dicomtag.PatientName, []string{study.PatientName}},
		{dicomtag.StudyInstanceUID, []string{study.StudyUID}},
	}
	var elems []*dicom.Element
	for _, e := range entries {
		elem, err := element(e.tag, e.value)
		if err != nil {
			return nil, err
		}
		elems = append(elems, elem)
	}
	return &dicom.Dataset{Elements: elems}, nil
}

// BuildGSPS assembles a minimal Grayscale Softcopy Presentation State for
// the operator's QC review annotations. Per OQ-04 this is never
// transmitted off the console — it exists only to drive the local review
// display consistently across re-displays of the same image.
func BuildGSPS(sopInstanceUID, referencedSOPInstanceUID string, windowCenter, windowWidth float64) (*dicom.Dataset, error) {
	if err := requireNonEmpty("SOPInstanceUID", sopInstanceUID); err != nil {
		return nil, err
	}
	entries := []struct {
		tag   dicomtag.Tag
		value any
	}{
		{dicomtag.SOPInstanceUID, []string{sopInstanceUID}},
		{dicomtag.Tag{Group: 0x0008, Element: 0x1115}, []string{referencedSOPInstanceUID}}, // Referenced Series Sequence (simplified)
		{dicomtag.WindowCenter, []string{formatFloat(windowCenter)}},
		{dicomtag.WindowWidth, []string{formatFloat(windowWidth)}},
	}
	var elems []*dicom.Element
	for _, e := range entries {
		elem, err := element(e.tag, e.value)
		if err != nil {
			return nil, err
		}
		elems = append(elems, elem)
	}
	return &dicom.Dataset{Elements: elems}, nil
}

func formatFloat(f float64) string {
	return fmt.Sprintf("%g", f)
}
