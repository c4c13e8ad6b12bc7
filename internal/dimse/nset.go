package dimse

import (
	"fmt"
	"io"

	"github.com/suyashkumar/dicom"
)

// NSetRq updates attributes of an existing SOP instance (N-SET), used to
// transition an MPPS instance from IN PROGRESS to COMPLETED/DISCONTINUED.
type NSetRq struct {
	RequestedSOPClassUID    string
	MessageID               uint16
	RequestedSOPInstanceUID string
	CommandDataSetType      CommandDataSetTypeValue
	Extra                   []*dicom.Element
}

func (v *NSetRq) Encode(w io.Writer) error {
	elems, err := buildElements(
		tagged{CommandField, v.CommandField()},
		tagged{RequestedSOPClassUID, v.RequestedSOPClassUID},
		tagged{MessageID, v.MessageID},
		tagged{RequestedSOPInstanceUID, v.RequestedSOPInstanceUID},
		tagged{CommandDataSetType, uint16(v.CommandDataSetType)},
	)
	if err != nil {
		return fmt.Errorf("NSetRq.Encode: %w", err)
	}
	elems = append(elems, v.Extra...)
	return EncodeElements(w, elems)
}

func (v *NSetRq) HasData() bool        { return v.CommandDataSetType != CommandDataSetTypeNull }
func (v *NSetRq) CommandField() uint16 { return FieldNSetRq }
func (v *NSetRq) GetMessageID() uint16 { return v.MessageID }
func (v *NSetRq) GetStatus() *Status   { return nil }
func (v *NSetRq) String() string {
	return fmt.Sprintf("NSetRq{SOPInstanceUID:%v MessageID:%v}", v.RequestedSOPInstanceUID, v.MessageID)
}

func decodeNSetRq(d *Decoder) (*NSetRq, error) {
	v := &NSetRq{}
	var err error
	if v.RequestedSOPClassUID, err = d.GetString(RequestedSOPClassUID, Required); err != nil {
		return nil, fmt.Errorf("decodeNSetRq: %w", err)
	}
	if v.MessageID, err = d.GetUInt16(MessageID, Required); err != nil {
		return nil, fmt.Errorf("decodeNSetRq: %w", err)
	}
	if v.RequestedSOPInstanceUID, err = d.GetString(RequestedSOPInstanceUID, Required); err != nil {
		return nil, fmt.Errorf("decodeNSetRq: %w", err)
	}
	if v.CommandDataSetType, err = d.GetDataSetType(); err != nil {
		return nil, fmt.Errorf("decodeNSetRq: %w", err)
	}
	v.Extra = d.UnparsedElements()
	return v, nil
}

// NSetRsp is the N-SET response.
type NSetRsp struct {
	MessageIDBeingRespondedTo uint16
	AffectedSOPClassUID       string
	AffectedSOPInstanceUID    string
	CommandDataSetType        CommandDataSetTypeValue
	Status                    Status
	Extra                     []*dicom.Element
}

func (v *NSetRsp) Encode(w io.Writer) error {
	elems, err := buildElements(
		tagged{CommandField, v.CommandField()},
		tagged{MessageIDBeingRespondedTo, v.MessageIDBeingRespondedTo},
		tagged{AffectedSOPClassUID, v.AffectedSOPClassUID},
		tagged{AffectedSOPInstanceUID, v.AffectedSOPInstanceUID},
		tagged{CommandDataSetType, uint16(v.CommandDataSetType)},
	)
	if err != nil {
		return fmt.Errorf("NSetRsp.Encode: %w", err)
	}
	statusElems, err := v.Status.ToElements()
	if err != nil {
		return fmt.Errorf("NSetRsp.Encode: %w", err)
	}
	elems = append(elems, statusElems...)
	elems = append(elems, v.Extra...)
	return EncodeElements(w, elems)
}

func (v *NSetRsp) HasData() bool        { return v.CommandDataSetType != CommandDataSetTypeNull }
func (v *NSetRsp) CommandField() uint16 { return FieldNSetRsp }
func (v *NSetRsp) GetMessageID() uint16 { return v.MessageIDBeingRespondedTo }
func (v *NSetRsp) GetStatus() *Status   { return &v.Status }
func (v *NSetRsp) String() string {
	return fmt.Sprintf("NSetRsp{SOPInstanceUID:%v Status:0x%04x}", v.AffectedSOPInstanceUID, uint16(v.Status.Code))
}

func decodeNSetRsp(d *Decoder) (*NSetRsp, error) {
	v := &NSetRsp{}
	var err error
	if v.AffectedSOPClassUID, err = d.GetString(AffectedSOPClassUID, Optional); err != nil {
		return nil, fmt.Errorf("decodeNSetRsp: %w", err)
	}
	if v.MessageIDBeingRespondedTo, err = d.GetUInt16(MessageIDBeingRespondedTo, Required); err != nil {
		return nil, fmt.Errorf("decodeNSetRsp: %w", err)
	}
	if v.AffectedSOPInstanceUID, err = d.GetString(AffectedSOPInstanceUID, Optional); err != nil {
		return nil, fmt.Errorf("decodeNSetRsp: %w", err)
	}
	if v.CommandDataSetType, err = d.GetDataSetType(); err != nil {
		return nil, fmt.Errorf("decodeNSetRsp: %w", err)
	}
	if v.Status, err = d.GetStatus(); err != nil {
		return nil, fmt.Errorf("decodeNSetRsp: %w", err)
	}
	v.Extra = d.UnparsedElements()
	return v, nil
}
