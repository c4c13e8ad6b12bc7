package dimse

import (
	"fmt"
	"io"

	"github.com/suyashkumar/dicom"
)

// CFindRq queries a worklist/MPPS SCP; the identifier dataset carrying
// match keys travels as the subsequent P-DATA-TF payload (HasData()
// true), built by the caller and not part of the command set itself.
type CFindRq struct {
	AffectedSOPClassUID string
	MessageID           uint16
	Priority            uint16
	CommandDataSetType  CommandDataSetTypeValue
	Extra               []*dicom.Element
}

func (v *CFindRq) Encode(w io.Writer) error {
	elems, err := buildElements(
		tagged{CommandField, v.CommandField()},
		tagged{AffectedSOPClassUID, v.AffectedSOPClassUID},
		tagged{MessageID, v.MessageID},
		tagged{Priority, v.Priority},
		tagged{CommandDataSetType, uint16(v.CommandDataSetType)},
	)
	if err != nil {
		return fmt.Errorf("CFindRq.Encode: %w", err)
	}
	elems = append(elems, v.Extra...)
	return EncodeElements(w, elems)
}

func (v *CFindRq) HasData() bool        { return v.CommandDataSetType != CommandDataSetTypeNull }
func (v *CFindRq) CommandField() uint16 { return FieldCFindRq }
func (v *CFindRq) GetMessageID() uint16 { return v.MessageID }
func (v *CFindRq) GetStatus() *Status   { return nil }
func (v *CFindRq) String() string {
	return fmt.Sprintf("CFindRq{SOPClassUID:%v MessageID:%v}", v.AffectedSOPClassUID, v.MessageID)
}

func decodeCFindRq(d *Decoder) (*CFindRq, error) {
	v := &CFindRq{}
	var err error
	if v.AffectedSOPClassUID, err = d.GetString(AffectedSOPClassUID, Required); err != nil {
		return nil, fmt.Errorf("decodeCFindRq: %w", err)
	}
	if v.MessageID, err = d.GetUInt16(MessageID, Required); err != nil {
		return nil, fmt.Errorf("decodeCFindRq: %w", err)
	}
	if v.Priority, err = d.GetUInt16(Priority, Required); err != nil {
		return nil, fmt.Errorf("decodeCFindRq: %w", err)
	}
	if v.CommandDataSetType, err = d.GetDataSetType(); err != nil {
		return nil, fmt.Errorf("decodeCFindRq: %w", err)
	}
	v.Extra = d.UnparsedElements()
	return v, nil
}

// CFindRsp is one match (status Pending) or the final terminator
// (status Success) of a C-FIND exchange.
type CFindRsp struct {
	AffectedSOPClassUID       string
	MessageIDBeingRespondedTo uint16
	CommandDataSetType        CommandDataSetTypeValue
	Status                    Status
	Extra                     []*dicom.Element
}

func (v *CFindRsp) Encode(w io.Writer) error {
	elems, err := buildElements(
		tagged{CommandField, v.CommandField()},
		tagged{AffectedSOPClassUID, v.AffectedSOPClassUID},
		tagged{MessageIDBeingRespondedTo, v.MessageIDBeingRespondedTo},
		tagged{CommandDataSetType, uint16(v.CommandDataSetType)},
	)
	if err != nil {
		return fmt.Errorf("CFindRsp.Encode: %w", err)
	}
	statusElems, err := v.Status.ToElements()
	if err != nil {
		return fmt.Errorf("CFindRsp.Encode: %w", err)
	}
	elems = append(elems, statusElems...)
	elems = append(elems, v.Extra...)
	return EncodeElements(w, elems)
}

func (v *CFindRsp) HasData() bool        { return v.CommandDataSetType != CommandDataSetTypeNull }
func (v *CFindRsp) CommandField() uint16 { return FieldCFindRsp }
func (v *CFindRsp) GetMessageID() uint16 { return v.MessageIDBeingRespondedTo }
func (v *CFindRsp) GetStatus() *Status   { return &v.Status }
func (v *CFindRsp) String() string {
	return fmt.Sprintf("CFindRsp{Status:0x%04x}", uint16(v.Status.Code))
}

func decodeCFindRsp(d *Decoder) (*CFindRsp, error) {
	v := &CFindRsp{}
	var err error
	if v.AffectedSOPClassUID, err = d.GetString(AffectedSOPClassUID, Optional); err != nil {
		return nil, fmt.Errorf("decodeCFindRsp: %w", err)
	}
	if v.MessageIDBeingRespondedTo, err = d.GetUInt16(MessageIDBeingRespondedTo, Required); err != nil {
		return nil, fmt.Errorf("decodeCFindRsp: %w", err)
	}
	if v.CommandDataSetType, err = d.GetDataSetType(); err != nil {
		return nil, fmt.Errorf("decodeCFindRsp: %w", err)
	}
	if v.Status, err = d.GetStatus(); err != nil {
		return nil, fmt.Errorf("decodeCFindRsp: %w", err)
	}
	v.Extra = d.UnparsedElements()
	return v, nil
}
