package dimse

import (
	"fmt"

	"github.com/suyashkumar/dicom"
	dicomtag "github.com/suyashkumar/dicom/pkg/tag"
)

// Decoder extracts typed values from a command dataset's elements,
// mirroring the teacher's MessageDecoder.
type Decoder struct {
	elements map[dicomtag.Tag]*dicom.Element
}

// Requirement marks whether a command-set element must be present.
type Requirement int

const (
	Required Requirement = iota
	Optional
)

// Decode dispatches on commandField to the matching request/response
// decoder.
func (d *Decoder) Decode(commandField uint16) (Message, error) {
	switch commandField {
	case FieldCStoreRq:
		return decodeCStoreRq(d)
	case FieldCStoreRsp:
		return decodeCStoreRsp(d)
	case FieldCEchoRq:
		return decodeCEchoRq(d)
	case FieldCEchoRsp:
		return decodeCEchoRsp(d)
	case FieldCFindRq:
		return decodeCFindRq(d)
	case FieldCFindRsp:
		return decodeCFindRsp(d)
	case FieldNCreateRq:
		return decodeNCreateRq(d)
	case FieldNCreateRsp:
		return decodeNCreateRsp(d)
	case FieldNSetRq:
		return decodeNSetRq(d)
	case FieldNSetRsp:
		return decodeNSetRsp(d)
	case FieldNActionRq:
		return decodeNActionRq(d)
	case FieldNActionRsp:
		return decodeNActionRsp(d)
	case FieldNEventReportRq:
		return decodeNEventReportRq(d)
	case FieldNEventReportRsp:
		return decodeNEventReportRsp(d)
	default:
		return nil, fmt.Errorf("dimse.Decode: unknown command field 0x%x", commandField)
	}
}

// UnparsedElements returns every element this decoder has not yet
// consumed via a Get* call, preserving forward-compatible data.
func (d *Decoder) UnparsedElements() []*dicom.Element {
	elems := make([]*dicom.Element, 0, len(d.elements))
	for _, elem := range d.elements {
		elems = append(elems, elem)
	}
	return elems
}

func (d *Decoder) GetStatus() (Status, error) {
	var s Status
	code, err := d.GetUInt16(StatusTag, Required)
	if err != nil {
		return s, fmt.Errorf("GetStatus: %w", err)
	}
	s.Code = StatusCode(code)
	s.ErrorComment, err = d.GetString(ErrorComment, Optional)
	if err != nil {
		return s, fmt.Errorf("GetStatus: %w", err)
	}
	return s, nil
}

func (d *Decoder) GetDataSetType() (CommandDataSetTypeValue, error) {
	v, err := d.GetUInt16(CommandDataSetType, Required)
	if err != nil {
		return CommandDataSetTypeNull, fmt.Errorf("GetDataSetType: %w", err)
	}
	return CommandDataSetTypeValue(v), nil
}

func (d *Decoder) GetString(tag dicomtag.Tag, req Requirement) (string, error) {
	elem, ok := d.elements[tag]
	if !ok {
		if req == Required {
			return "", fmt.Errorf("tag %v not found", tag)
		}
		return "", nil
	}
	delete(d.elements, tag)
	if elem.Value == nil {
		return "", fmt.Errorf("tag %v has nil value", tag)
	}
	raw := elem.Value.GetValue()
	v, ok := raw.([]string)
	if !ok || len(v) == 0 {
		return "", nil
	}
	return v[0], nil
}

func (d *Decoder) GetUInt16(tag dicomtag.Tag, req Requirement) (uint16, error) {
	elem, ok := d.elements[tag]
	if !ok {
		if req == Required {
			return 0, fmt.Errorf("tag %v not found", tag)
		}
		return 0, nil
	}
	delete(d.elements, tag)
	if elem.Value == nil {
		return 0, fmt.Errorf("tag %v has nil value", tag)
	}
	raw := elem.Value.GetValue()
	switch v := raw.(type) {
	case []int:
		if len(v) == 0 {
			return 0, nil
		}
		return uint16(v[0]), nil
	case []uint16:
		if len(v) == 0 {
			return 0, nil
		}
		return v[0], nil
	default:
		return 0, fmt.Errorf("tag %v: unexpected value type %T", tag, raw)
	}
}

func (d *Decoder) GetUInt32(tag dicomtag.Tag, req Requirement) (uint32, error) {
	v, err := d.GetUInt16(tag, req)
	return uint32(v), err
}

func (d *Decoder) GetStrings(tag dicomtag.Tag, req Requirement) ([]string, error) {
	elem, ok := d.elements[tag]
	if !ok {
		if req == Required {
			return nil, fmt.Errorf("tag %v not found", tag)
		}
		return nil, nil
	}
	delete(d.elements, tag)
	if elem.Value == nil {
		return nil, nil
	}
	raw := elem.Value.GetValue()
	v, _ := raw.([]string)
	return v, nil
}
