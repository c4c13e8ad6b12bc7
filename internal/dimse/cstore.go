package dimse

import (
	"fmt"
	"io"

	"github.com/suyashkumar/dicom"
)

// CStoreRq requests storage of one SOP instance. Adapted from the
// teacher's dimse.CStoreRq.
type CStoreRq struct {
	AffectedSOPClassUID    string
	MessageID              uint16
	Priority               uint16
	CommandDataSetType     CommandDataSetTypeValue
	AffectedSOPInstanceUID string
	Extra                  []*dicom.Element
}

func (v *CStoreRq) Encode(w io.Writer) error {
	elems, err := buildElements(
		tagged{CommandField, v.CommandField()},
		tagged{AffectedSOPClassUID, v.AffectedSOPClassUID},
		tagged{MessageID, v.MessageID},
		tagged{Priority, v.Priority},
		tagged{CommandDataSetType, uint16(v.CommandDataSetType)},
		tagged{AffectedSOPInstanceUID, v.AffectedSOPInstanceUID},
	)
	if err != nil {
		return fmt.Errorf("CStoreRq.Encode: %w", err)
	}
	elems = append(elems, v.Extra...)
	return EncodeElements(w, elems)
}

func (v *CStoreRq) HasData() bool        { return v.CommandDataSetType != CommandDataSetTypeNull }
func (v *CStoreRq) CommandField() uint16 { return FieldCStoreRq }
func (v *CStoreRq) GetMessageID() uint16 { return v.MessageID }
func (v *CStoreRq) GetStatus() *Status   { return nil }
func (v *CStoreRq) String() string {
	return fmt.Sprintf("CStoreRq{SOPInstanceUID:%v MessageID:%v}", v.AffectedSOPInstanceUID, v.MessageID)
}

func decodeCStoreRq(d *Decoder) (*CStoreRq, error) {
	v := &CStoreRq{}
	var err error
	if v.AffectedSOPClassUID, err = d.GetString(AffectedSOPClassUID, Required); err != nil {
		return nil, fmt.Errorf("decodeCStoreRq: %w", err)
	}
	if v.MessageID, err = d.GetUInt16(MessageID, Required); err != nil {
		return nil, fmt.Errorf("decodeCStoreRq: %w", err)
	}
	if v.Priority, err = d.GetUInt16(Priority, Required); err != nil {
		return nil, fmt.Errorf("decodeCStoreRq: %w", err)
	}
	if v.CommandDataSetType, err = d.GetDataSetType(); err != nil {
		return nil, fmt.Errorf("decodeCStoreRq: %w", err)
	}
	if v.AffectedSOPInstanceUID, err = d.GetString(AffectedSOPInstanceUID, Required); err != nil {
		return nil, fmt.Errorf("decodeCStoreRq: %w", err)
	}
	v.Extra = d.UnparsedElements()
	return v, nil
}

// CStoreRsp is the C-STORE response.
type CStoreRsp struct {
	AffectedSOPClassUID    string
	MessageIDBeingRespondedTo uint16
	CommandDataSetType     CommandDataSetTypeValue
	AffectedSOPInstanceUID string
	Status                 Status
	Extra                  []*dicom.Element
}

func (v *CStoreRsp) Encode(w io.Writer) error {
	elems, err := buildElements(
		tagged{CommandField, v.CommandField()},
		tagged{AffectedSOPClassUID, v.AffectedSOPClassUID},
		tagged{MessageIDBeingRespondedTo, v.MessageIDBeingRespondedTo},
		tagged{CommandDataSetType, uint16(v.CommandDataSetType)},
		tagged{AffectedSOPInstanceUID, v.AffectedSOPInstanceUID},
	)
	if err != nil {
		return fmt.Errorf("CStoreRsp.Encode: %w", err)
	}
	statusElems, err := v.Status.ToElements()
	if err != nil {
		return fmt.Errorf("CStoreRsp.Encode: %w", err)
	}
	elems = append(elems, statusElems...)
	elems = append(elems, v.Extra...)
	return EncodeElements(w, elems)
}

func (v *CStoreRsp) HasData() bool        { return v.CommandDataSetType != CommandDataSetTypeNull }
func (v *CStoreRsp) CommandField() uint16 { return FieldCStoreRsp }
func (v *CStoreRsp) GetMessageID() uint16 { return v.MessageIDBeingRespondedTo }
func (v *CStoreRsp) GetStatus() *Status   { return &v.Status }
func (v *CStoreRsp) String() string {
	return fmt.Sprintf("CStoreRsp{SOPInstanceUID:%v Status:0x%04x}", v.AffectedSOPInstanceUID, uint16(v.Status.Code))
}

func decodeCStoreRsp(d *Decoder) (*CStoreRsp, error) {
	v := &CStoreRsp{}
	var err error
	if v.AffectedSOPClassUID, err = d.GetString(AffectedSOPClassUID, Optional); err != nil {
		return nil, fmt.Errorf("decodeCStoreRsp: %w", err)
	}
	if v.MessageIDBeingRespondedTo, err = d.GetUInt16(MessageIDBeingRespondedTo, Required); err != nil {
		return nil, fmt.Errorf("decodeCStoreRsp: %w", err)
	}
	if v.CommandDataSetType, err = d.GetDataSetType(); err != nil {
		return nil, fmt.Errorf("decodeCStoreRsp: %w", err)
	}
	if v.AffectedSOPInstanceUID, err = d.GetString(AffectedSOPInstanceUID, Optional); err != nil {
		return nil, fmt.Errorf("decodeCStoreRsp: %w", err)
	}
	if v.Status, err = d.GetStatus(); err != nil {
		return nil, fmt.Errorf("decodeCStoreRsp: %w", err)
	}
	v.Extra = d.UnparsedElements()
	return v, nil
}
