package dimse

import (
	"fmt"
	"io"

	"github.com/suyashkumar/dicom"
)

// NEventReportRq carries an unsolicited event notification — here, the
// storage commitment result pushed back by the destination over the same
// association the N-ACTION request was sent on, per spec.md's OQ-02
// resolution (asynchronous, same-connection push rather than a separate
// SCP listener).
type NEventReportRq struct {
	AffectedSOPClassUID    string
	MessageID              uint16
	AffectedSOPInstanceUID string
	EventTypeID            uint16
	CommandDataSetType     CommandDataSetTypeValue
	Extra                  []*dicom.Element
}

func (v *NEventReportRq) Encode(w io.Writer) error {
	elems, err := buildElements(
		tagged{CommandField, v.CommandField()},
		tagged{AffectedSOPClassUID, v.AffectedSOPClassUID},
		tagged{MessageID, v.MessageID},
		tagged{AffectedSOPInstanceUID, v.AffectedSOPInstanceUID},
		tagged{EventTypeID, v.EventTypeID},
		tagged{CommandDataSetType, uint16(v.CommandDataSetType)},
	)
	if err != nil {
		return fmt.Errorf("NEventReportRq.Encode: %w", err)
	}
	elems = append(elems, v.Extra...)
	return EncodeElements(w, elems)
}

func (v *NEventReportRq) HasData() bool        { return v.CommandDataSetType != CommandDataSetTypeNull }
func (v *NEventReportRq) CommandField() uint16 { return FieldNEventReportRq }
func (v *NEventReportRq) GetMessageID() uint16 { return v.MessageID }
func (v *NEventReportRq) GetStatus() *Status   { return nil }
func (v *NEventReportRq) String() string {
	return fmt.Sprintf("NEventReportRq{SOPInstanceUID:%v EventTypeID:%v}", v.AffectedSOPInstanceUID, v.EventTypeID)
}

func decodeNEventReportRq(d *Decoder) (*NEventReportRq, error) {
	v := &NEventReportRq{}
	var err error
	if v.AffectedSOPClassUID, err = d.GetString(AffectedSOPClassUID, Required); err != nil {
		return nil, fmt.Errorf("decodeNEventReportRq: %w", err)
	}
	if v.MessageID, err = d.GetUInt16(MessageID, Required); err != nil {
		return nil, fmt.Errorf("decodeNEventReportRq: %w", err)
	}
	if v.AffectedSOPInstanceUID, err = d.GetString(AffectedSOPInstanceUID, Required); err != nil {
		return nil, fmt.Errorf("decodeNEventReportRq: %w", err)
	}
	if v.EventTypeID, err = d.GetUInt16(EventTypeID, Required); err != nil {
		return nil, fmt.Errorf("decodeNEventReportRq: %w", err)
	}
	if v.CommandDataSetType, err = d.GetDataSetType(); err != nil {
		return nil, fmt.Errorf("decodeNEventReportRq: %w", err)
	}
	v.Extra = d.UnparsedElements()
	return v, nil
}

// NEventReportRsp acknowledges receipt of the event notification.
type NEventReportRsp struct {
	MessageIDBeingRespondedTo uint16
	AffectedSOPClassUID       string
	AffectedSOPInstanceUID    string
	EventTypeID               uint16
	CommandDataSetType        CommandDataSetTypeValue
	Status                    Status
	Extra                     []*dicom.Element
}

func (v *NEventReportRsp) Encode(w io.Writer) error {
	elems, err := buildElements(
		tagged{CommandField, v.CommandField()},
		tagged{MessageIDBeingRespondedTo, v.MessageIDBeingRespondedTo},
		tagged{AffectedSOPClassUID, v.AffectedSOPClassUID},
		tagged{AffectedSOPInstanceUID, v.AffectedSOPInstanceUID},
		tagged{EventTypeID, v.EventTypeID},
		tagged{CommandDataSetType, uint16(v.CommandDataSetType)},
	)
	if err != nil {
		return fmt.Errorf("NEventReportRsp.Encode: %w", err)
	}
	statusElems, err := v.Status.ToElements()
	if err != nil {
		return fmt.Errorf("NEventReportRsp.Encode: %w", err)
	}
	elems = append(elems, statusElems...)
	elems = append(elems, v.Extra...)
	return EncodeElements(w, elems)
}

func (v *NEventReportRsp) HasData() bool        { return v.CommandDataSetType != CommandDataSetTypeNull }
func (v *NEventReportRsp) CommandField() uint16 { return FieldNEventReportRsp }
func (v *NEventReportRsp) GetMessageID() uint16 { return v.MessageIDBeingRespondedTo }
func (v *NEventReportRsp) GetStatus() *Status   { return &v.Status }
func (v *NEventReportRsp) String() string {
	return fmt.Sprintf("NEventReportRsp{SOPInstanceUID:%v Status:0x%04x}", v.AffectedSOPInstanceUID, uint16(v.Status.Code))
}

func decodeNEventReportRsp(d *Decoder) (*NEventReportRsp, error) {
	v := &NEventReportRsp{}
	var err error
	if v.AffectedSOPClassUID, err = d.GetString(AffectedSOPClassUID, Optional); err != nil {
		return nil, fmt.Errorf("decodeNEventReportRsp: %w", err)
	}
	if v.MessageIDBeingRespondedTo, err = d.GetUInt16(MessageIDBeingRespondedTo, Required); err != nil {
		return nil, fmt.Errorf("decodeNEventReportRsp: %w", err)
	}
	if v.AffectedSOPInstanceUID, err = d.GetString(AffectedSOPInstanceUID, Optional); err != nil {
		return nil, fmt.Errorf("decodeNEventReportRsp: %w", err)
	}
	if v.EventTypeID, err = d.GetUInt16(EventTypeID, Optional); err != nil {
		return nil, fmt.Errorf("decodeNEventReportRsp: %w", err)
	}
	if v.CommandDataSetType, err = d.GetDataSetType(); err != nil {
		return nil, fmt.Errorf("decodeNEventReportRsp: %w", err)
	}
	if v.Status, err = d.GetStatus(); err != nil {
		return nil, fmt.Errorf("decodeNEventReportRsp: %w", err)
	}
	v.Extra = d.UnparsedElements()
	return v, nil
}
