package dimse

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/suyashkumar/dicom"
	dicomtag "github.com/suyashkumar/dicom/pkg/tag"
)

// Message is the common interface every DIMSE command satisfies,
// mirrored from the teacher's dimse.Message.
type Message interface {
	fmt.Stringer
	Encode(io.Writer) error
	GetMessageID() uint16
	CommandField() uint16
	GetStatus() *Status
	HasData() bool
}

// tagged pairs a command-set tag with the value to encode into it; used
// by buildElements to cut the per-field boilerplate the teacher's
// cstorerq.go etc. repeat for every element.
type tagged struct {
	tag   dicomtag.Tag
	value any
}

// buildElements constructs one element per entry, stopping at the first
// error.
func buildElements(entries ...tagged) ([]*dicom.Element, error) {
	elems := make([]*dicom.Element, 0, len(entries))
	for _, e := range entries {
		elem, err := NewElement(e.tag, e.value)
		if err != nil {
			return nil, fmt.Errorf("buildElements: tag %v: %w", e.tag, err)
		}
		elems = append(elems, elem)
	}
	return elems, nil
}

// NewElement constructs a command-set element for tag carrying value.
func NewElement(tag dicomtag.Tag, value any) (*dicom.Element, error) {
	elem, err := dicom.NewElement(tag, value)
	if err != nil {
		return nil, fmt.Errorf("dimse.NewElement: failed to build element %v: %w", tag, err)
	}
	return elem, nil
}

// EncodeElements writes elems as an Implicit VR Little Endian command
// set, per DICOM PS3.7 6.3.1 (DIMSE command sets are always Implicit+LE
// regardless of the negotiated data transfer syntax).
func EncodeElements(out io.Writer, elems []*dicom.Element) error {
	writer, err := dicom.NewWriter(out)
	if err != nil {
		return fmt.Errorf("EncodeElements: failed to create writer: %w", err)
	}
	writer.SetTransferSyntax(binary.LittleEndian, true)
	for _, elem := range elems {
		if err := writer.WriteElement(elem); err != nil {
			return fmt.Errorf("EncodeElements: failed to write element %v: %w", elem.Tag, err)
		}
	}
	return nil
}

// EncodeMessage serializes v, prefixed with its CommandGroupLength
// element, matching the teacher's EncodeMessage.
func EncodeMessage(out io.Writer, v Message) error {
	var body bytes.Buffer
	if err := v.Encode(&body); err != nil {
		return fmt.Errorf("EncodeMessage: failed to encode message body: %w", err)
	}
	lengthElem, err := NewElement(CommandGroupLength, uint32(body.Len()))
	if err != nil {
		return fmt.Errorf("EncodeMessage: failed to create CommandGroupLength: %w", err)
	}
	if err := EncodeElements(out, []*dicom.Element{lengthElem}); err != nil {
		return fmt.Errorf("EncodeMessage: failed to write CommandGroupLength: %w", err)
	}
	if _, err := out.Write(body.Bytes()); err != nil {
		return fmt.Errorf("EncodeMessage: failed to write message body: %w", err)
	}
	return nil
}

// ReadMessage decodes a Message from a fully-assembled command dataset
// (already reassembled from P-DATA-TF fragments by the association
// layer).
func ReadMessage(dataset *dicom.Dataset) (Message, error) {
	d := &Decoder{elements: make(map[dicomtag.Tag]*dicom.Element)}
	for _, elem := range dataset.Elements {
		d.elements[elem.Tag] = elem
	}
	field, err := d.GetUInt16(CommandField, Required)
	if err != nil {
		return nil, fmt.Errorf("ReadMessage: failed to get CommandField: %w", err)
	}
	return d.Decode(field)
}
