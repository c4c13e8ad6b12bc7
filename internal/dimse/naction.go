package dimse

import (
	"fmt"
	"io"

	"github.com/suyashkumar/dicom"
)

// NActionRq invokes an action on an SOP instance (N-ACTION), used here to
// request storage commitment for a set of transmitted instances.
type NActionRq struct {
	RequestedSOPClassUID    string
	MessageID               uint16
	RequestedSOPInstanceUID string
	ActionTypeID            uint16
	CommandDataSetType      CommandDataSetTypeValue
	Extra                   []*dicom.Element
}

func (v *NActionRq) Encode(w io.Writer) error {
	elems, err := buildElements(
		tagged{CommandField, v.CommandField()},
		tagged{RequestedSOPClassUID, v.RequestedSOPClassUID},
		tagged{MessageID, v.MessageID},
		tagged{RequestedSOPInstanceUID, v.RequestedSOPInstanceUID},
		tagged{ActionTypeID, v.ActionTypeID},
		tagged{CommandDataSetType, uint16(v.CommandDataSetType)},
	)
	if err != nil {
		return fmt.Errorf("NActionRq.Encode: %w", err)
	}
	elems = append(elems, v.Extra...)
	return EncodeElements(w, elems)
}

func (v *NActionRq) HasData() bool        { return v.CommandDataSetType != CommandDataSetTypeNull }
func (v *NActionRq) CommandField() uint16 { return FieldNActionRq }
func (v *NActionRq) GetMessageID() uint16 { return v.MessageID }
func (v *NActionRq) GetStatus() *Status   { return nil }
func (v *NActionRq) String() string {
	return fmt.Sprintf("NActionRq{SOPInstanceUID:%v ActionTypeID:%v}", v.RequestedSOPInstanceUID, v.ActionTypeID)
}

func decodeNActionRq(d *Decoder) (*NActionRq, error) {
	v := &NActionRq{}
	var err error
	if v.RequestedSOPClassUID, err = d.GetString(RequestedSOPClassUID, Required); err != nil {
		return nil, fmt.Errorf("decodeNActionRq: %w", err)
	}
	if v.MessageID, err = d.GetUInt16(MessageID, Required); err != nil {
		return nil, fmt.Errorf("decodeNActionRq: %w", err)
	}
	if v.RequestedSOPInstanceUID, err = d.GetString(RequestedSOPInstanceUID, Required); err != nil {
		return nil, fmt.Errorf("decodeNActionRq: %w", err)
	}
	if v.ActionTypeID, err = d.GetUInt16(ActionTypeID, Required); err != nil {
		return nil, fmt.Errorf("decodeNActionRq: %w", err)
	}
	if v.CommandDataSetType, err = d.GetDataSetType(); err != nil {
		return nil, fmt.Errorf("decodeNActionRq: %w", err)
	}
	v.Extra = d.UnparsedElements()
	return v, nil
}

// NActionRsp is the N-ACTION response; Success here means the SCP accepted
// the commitment request, not that commitment has completed (that arrives
// later as an N-EVENT-REPORT over the same association).
type NActionRsp struct {
	MessageIDBeingRespondedTo uint16
	AffectedSOPClassUID       string
	AffectedSOPInstanceUID    string
	ActionTypeID              uint16
	CommandDataSetType        CommandDataSetTypeValue
	Status                    Status
	Extra                     []*dicom.Element
}

func (v *NActionRsp) Encode(w io.Writer) error {
	elems, err := buildElements(
		tagged{CommandField, v.CommandField()},
		tagged{MessageIDBeingRespondedTo, v.MessageIDBeingRespondedTo},
		tagged{AffectedSOPClassUID, v.AffectedSOPClassUID},
		tagged{AffectedSOPInstanceUID, v.AffectedSOPInstanceUID},
		tagged{ActionTypeID, v.ActionTypeID},
		tagged{CommandDataSetType, uint16(v.CommandDataSetType)},
	)
	if err != nil {
		return fmt.Errorf("NActionRsp.Encode: %w", err)
	}
	statusElems, err := v.Status.ToElements()
	if err != nil {
		return fmt.Errorf("NActionRsp.Encode: %w", err)
	}
	elems = append(elems, statusElems...)
	elems = append(elems, v.Extra...)
	return EncodeElements(w, elems)
}

func (v *NActionRsp) HasData() bool        { return v.CommandDataSetType != CommandDataSetTypeNull }
func (v *NActionRsp) CommandField() uint16 { return FieldNActionRsp }
func (v *NActionRsp) GetMessageID() uint16 { return v.MessageIDBeingRespondedTo }
func (v *NActionRsp) GetStatus() *Status   { return &v.Status }
func (v *NActionRsp) String() string {
	return fmt.Sprintf("NActionRsp{SOPInstanceUID:%v Status:0x%04x}", v.AffectedSOPInstanceUID, uint16(v.Status.Code))
}

func decodeNActionRsp(d *Decoder) (*NActionRsp, error) {
	v := &NActionRsp{}
	var err error
	if v.AffectedSOPClassUID, err = d.GetString(AffectedSOPClassUID, Optional); err != nil {
		return nil, fmt.Errorf("decodeNActionRsp: %w", err)
	}
	if v.MessageIDBeingRespondedTo, err = d.GetUInt16(MessageIDBeingRespondedTo, Required); err != nil {
		return nil, fmt.Errorf("decodeNActionRsp: %w", err)
	}
	if v.AffectedSOPInstanceUID, err = d.GetString(AffectedSOPInstanceUID, Optional); err != nil {
		return nil, fmt.Errorf("decodeNActionRsp: %w", err)
	}
	if v.ActionTypeID, err = d.GetUInt16(ActionTypeID, Optional); err != nil {
		return nil, fmt.Errorf("decodeNActionRsp: %w", err)
	}
	if v.CommandDataSetType, err = d.GetDataSetType(); err != nil {
		return nil, fmt.Errorf("decodeNActionRsp: %w", err)
	}
	if v.Status, err = d.GetStatus(); err != nil {
		return nil, fmt.Errorf("decodeNActionRsp: %w", err)
	}
	v.Extra = d.UnparsedElements()
	return v, nil
}
