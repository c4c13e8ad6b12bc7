package dimse

import (
	"fmt"
	"io"

	"github.com/suyashkumar/dicom"
)

// NCreateRq creates an MPPS SOP instance (N-CREATE), used to announce the
// start of an exposure procedure step.
type NCreateRq struct {
	AffectedSOPClassUID    string
	MessageID              uint16
	AffectedSOPInstanceUID string
	CommandDataSetType     CommandDataSetTypeValue
	Extra                  []*dicom.Element
}

func (v *NCreateRq) Encode(w io.Writer) error {
	elems, err := buildElements(
		tagged{CommandField, v.CommandField()},
		tagged{AffectedSOPClassUID, v.AffectedSOPClassUID},
		tagged{MessageID, v.MessageID},
		tagged{AffectedSOPInstanceUID, v.AffectedSOPInstanceUID},
		tagged{CommandDataSetType, uint16(v.CommandDataSetType)},
	)
	if err != nil {
		return fmt.Errorf("NCreateRq.Encode: %w", err)
	}
	elems = append(elems, v.Extra...)
	return EncodeElements(w, elems)
}

func (v *NCreateRq) HasData() bool        { return v.CommandDataSetType != CommandDataSetTypeNull }
func (v *NCreateRq) CommandField() uint16 { return FieldNCreateRq }
func (v *NCreateRq) GetMessageID() uint16 { return v.MessageID }
func (v *NCreateRq) GetStatus() *Status   { return nil }
func (v *NCreateRq) String() string {
	return fmt.Sprintf("NCreateRq{SOPInstanceUID:%v MessageID:%v}", v.AffectedSOPInstanceUID, v.MessageID)
}

func decodeNCreateRq(d *Decoder) (*NCreateRq, error) {
	v := &NCreateRq{}
	var err error
	if v.AffectedSOPClassUID, err = d.GetString(AffectedSOPClassUID, Required); err != nil {
		return nil, fmt.Errorf("decodeNCreateRq: %w", err)
	}
	if v.MessageID, err = d.GetUInt16(MessageID, Required); err != nil {
		return nil, fmt.Errorf("decodeNCreateRq: %w", err)
	}
	if v.AffectedSOPInstanceUID, err = d.GetString(AffectedSOPInstanceUID, Required); err != nil {
		return nil, fmt.Errorf("decodeNCreateRq: %w", err)
	}
	if v.CommandDataSetType, err = d.GetDataSetType(); err != nil {
		return nil, fmt.Errorf("decodeNCreateRq: %w", err)
	}
	v.Extra = d.UnparsedElements()
	return v, nil
}

// NCreateRsp is the N-CREATE response, echoing back the SOP instance UID
// the SCP assigned if the requester left it blank.
type NCreateRsp struct {
	AffectedSOPClassUID       string
	MessageIDBeingRespondedTo uint16
	AffectedSOPInstanceUID    string
	CommandDataSetType        CommandDataSetTypeValue
	Status                    Status
	Extra                     []*dicom.Element
}

func (v *NCreateRsp) Encode(w io.Writer) error {
	elems, err := buildElements(
		tagged{CommandField, v.CommandField()},
		tagged{AffectedSOPClassUID, v.AffectedSOPClassUID},
		tagged{MessageIDBeingRespondedTo, v.MessageIDBeingRespondedTo},
		tagged{AffectedSOPInstanceUID, v.AffectedSOPInstanceUID},
		tagged{CommandDataSetType, uint16(v.CommandDataSetType)},
	)
	if err != nil {
		return fmt.Errorf("NCreateRsp.Encode: %w", err)
	}
	statusElems, err := v.Status.ToElements()
	if err != nil {
		return fmt.Errorf("NCreateRsp.Encode: %w", err)
	}
	elems = append(elems, statusElems...)
	elems = append(elems, v.Extra...)
	return EncodeElements(w, elems)
}

func (v *NCreateRsp) HasData() bool        { return v.CommandDataSetType != CommandDataSetTypeNull }
func (v *NCreateRsp) CommandField() uint16 { return FieldNCreateRsp }
func (v *NCreateRsp) GetMessageID() uint16 { return v.MessageIDBeingRespondedTo }
func (v *NCreateRsp) GetStatus() *Status   { return &v.Status }
func (v *NCreateRsp) String() string {
	return fmt.Sprintf("NCreateRsp{SOPInstanceUID:%v Status:0x%04x}", v.AffectedSOPInstanceUID, uint16(v.Status.Code))
}

func decodeNCreateRsp(d *Decoder) (*NCreateRsp, error) {
	v := &NCreateRsp{}
	var err error
	if v.AffectedSOPClassUID, err = d.GetString(AffectedSOPClassUID, Optional); err != nil {
		return nil, fmt.Errorf("decodeNCreateRsp: %w", err)
	}
	if v.MessageIDBeingRespondedTo, err = d.GetUInt16(MessageIDBeingRespondedTo, Required); err != nil {
		return nil, fmt.Errorf("decodeNCreateRsp: %w", err)
	}
	if v.AffectedSOPInstanceUID, err = d.GetString(AffectedSOPInstanceUID, Optional); err != nil {
		return nil, fmt.Errorf("decodeNCreateRsp: %w", err)
	}
	if v.CommandDataSetType, err = d.GetDataSetType(); err != nil {
		return nil, fmt.Errorf("decodeNCreateRsp: %w", err)
	}
	if v.Status, err = d.GetStatus(); err != nil {
		return nil, fmt.Errorf("decodeNCreateRsp: %w", err)
	}
	v.Extra = d.UnparsedElements()
	return v, nil
}
