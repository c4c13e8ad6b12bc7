package dimse

import (
	"fmt"
	"io"

	"github.com/suyashkumar/dicom"
)

// CEchoRq verifies connectivity to a destination AE (spec.md §11
// supplemented feature). Adapted directly from the teacher's
// dimse.CEchoRq.
type CEchoRq struct {
	MessageID          uint16
	CommandDataSetType CommandDataSetTypeValue
	Extra              []*dicom.Element
}

func (v *CEchoRq) Encode(w io.Writer) error {
	elems, err := buildElements(
		tagged{CommandField, v.CommandField()},
		tagged{MessageID, v.MessageID},
		tagged{CommandDataSetType, uint16(v.CommandDataSetType)},
	)
	if err != nil {
		return fmt.Errorf("CEchoRq.Encode: %w", err)
	}
	elems = append(elems, v.Extra...)
	return EncodeElements(w, elems)
}

func (v *CEchoRq) HasData() bool            { return v.CommandDataSetType != CommandDataSetTypeNull }
func (v *CEchoRq) CommandField() uint16     { return FieldCEchoRq }
func (v *CEchoRq) GetMessageID() uint16     { return v.MessageID }
func (v *CEchoRq) GetStatus() *Status       { return nil }
func (v *CEchoRq) String() string {
	return fmt.Sprintf("CEchoRq{MessageID:%v}", v.MessageID)
}

func decodeCEchoRq(d *Decoder) (*CEchoRq, error) {
	v := &CEchoRq{}
	var err error
	if v.MessageID, err = d.GetUInt16(MessageID, Required); err != nil {
		return nil, fmt.Errorf("decodeCEchoRq: %w", err)
	}
	if v.CommandDataSetType, err = d.GetDataSetType(); err != nil {
		return nil, fmt.Errorf("decodeCEchoRq: %w", err)
	}
	v.Extra = d.UnparsedElements()
	return v, nil
}

// CEchoRsp is the C-ECHO response.
type CEchoRsp struct {
	MessageIDBeingRespondedTo uint16
	CommandDataSetType        CommandDataSetTypeValue
	Status                    Status
	Extra                     []*dicom.Element
}

func (v *CEchoRsp) Encode(w io.Writer) error {
	elems, err := buildElements(
		tagged{CommandField, v.CommandField()},
		tagged{MessageIDBeingRespondedTo, v.MessageIDBeingRespondedTo},
		tagged{CommandDataSetType, uint16(v.CommandDataSetType)},
	)
	if err != nil {
		return fmt.Errorf("CEchoRsp.Encode: %w", err)
	}
	statusElems, err := v.Status.ToElements()
	if err != nil {
		return fmt.Errorf("CEchoRsp.Encode: %w", err)
	}
	elems = append(elems, statusElems...)
	elems = append(elems, v.Extra...)
	return EncodeElements(w, elems)
}

func (v *CEchoRsp) HasData() bool        { return v.CommandDataSetType != CommandDataSetTypeNull }
func (v *CEchoRsp) CommandField() uint16 { return FieldCEchoRsp }
func (v *CEchoRsp) GetMessageID() uint16 { return v.MessageIDBeingRespondedTo }
func (v *CEchoRsp) GetStatus() *Status   { return &v.Status }
func (v *CEchoRsp) String() string {
	return fmt.Sprintf("CEchoRsp{MessageIDBeingRespondedTo:%v Status:%v}", v.MessageIDBeingRespondedTo, v.Status.Code)
}

func decodeCEchoRsp(d *Decoder) (*CEchoRsp, error) {
	v := &CEchoRsp{}
	var err error
	if v.MessageIDBeingRespondedTo, err = d.GetUInt16(MessageIDBeingRespondedTo, Required); err != nil {
		return nil, fmt.Errorf("decodeCEchoRsp: %w", err)
	}
	if v.CommandDataSetType, err = d.GetDataSetType(); err != nil {
		return nil, fmt.Errorf("decodeCEchoRsp: %w", err)
	}
	if v.Status, err = d.GetStatus(); err != nil {
		return nil, fmt.Errorf("decodeCEchoRsp: %w", err)
	}
	v.Extra = d.UnparsedElements()
	return v, nil
}
