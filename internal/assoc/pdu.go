// Package assoc implements the DICOM upper layer association: PDU
// encoding, presentation context negotiation, and a bounded per-destination
// connection pool. Adapted from the structure of the teacher's pdu package
// (field layout and naming of AAssociateRQ/AC/RJ) but coded directly
// against encoding/binary rather than the teacher's pdu_item sub-package,
// which was not present in the retrieved reference set.
package assoc

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/clinicore/xray-console/pkg/errkind"
)

// PDU type codes, DICOM PS3.8 Table 9-11.
const (
	pduTypeAssociateRQ  byte = 0x01
	pduTypeAssociateAC  byte = 0x02
	pduTypeAssociateRJ  byte = 0x03
	pduTypePDataTF      byte = 0x04
	pduTypeReleaseRQ    byte = 0x05
	pduTypeReleaseRP    byte = 0x06
	pduTypeAbort        byte = 0x07
)

// Item type codes within the variable items of an A-ASSOCIATE PDU.
const (
	itemTypeApplicationContext  byte = 0x10
	itemTypePresentationContextRQ byte = 0x20
	itemTypePresentationContextAC byte = 0x21
	itemTypeAbstractSyntax      byte = 0x30
	itemTypeTransferSyntax      byte = 0x40
	itemTypeUserInformation     byte = 0x50
	itemTypeMaxPDULength        byte = 0x51
	itemTypeImplementationUID   byte = 0x52
)

const maxAETitleLen = 16

func padAETitle(s string) string {
	if len(s) > maxAETitleLen {
		return s[:maxAETitleLen]
	}
	for len(s) < maxAETitleLen {
		s += " "
	}
	return s
}

// PresentationContext is one proposed or negotiated abstract-syntax /
// transfer-syntax pairing.
type PresentationContext struct {
	ID               byte
	AbstractSyntax   string
	TransferSyntaxes []string // one entry on RQ per proposal, one on AC (the accepted choice)
	Result           byte     // AC only: 0 = acceptance, others per PS3.8 Table 9-18
}

const (
	PresentationResultAccepted                  byte = 0
	PresentationResultUserRejection              byte = 1
	PresentationResultNoReason                   byte = 2
	PresentationResultAbstractSyntaxNotSupported byte = 3
	PresentationResultTransferSyntaxNotSupported byte = 4
)

// associateRQ is the A-ASSOCIATE-RQ PDU (PS3.8 9.3.2).
type associateRQ struct {
	CalledAETitle        string
	CallingAETitle       string
	ApplicationContext   string
	PresentationContexts []PresentationContext
	MaxPDULength         uint32
	ImplementationUID    string
}

func writeItemHeader(buf *bytes.Buffer, itemType byte, length int) {
	buf.WriteByte(itemType)
	buf.WriteByte(0) // reserved
	binary.Write(buf, binary.BigEndian, uint16(length))
}

func encodeStringItem(itemType byte, s string) []byte {
	var buf bytes.Buffer
	writeItemHeader(&buf, itemType, len(s))
	buf.WriteString(s)
	return buf.Bytes()
}

func (r *associateRQ) encode() ([]byte, error) {
	if len(r.CalledAETitle) == 0 || len(r.CallingAETitle) == 0 {
		return nil, errkind.New(errkind.ConfigurationInvalid, "assoc: called/calling AE title must not be empty")
	}
	var body bytes.Buffer
	binary.Write(&body, binary.BigEndian, uint16(1)) // protocol version
	body.Write(make([]byte, 2))                      // reserved
	body.WriteString(padAETitle(r.CalledAETitle))
	body.WriteString(padAETitle(r.CallingAETitle))
	body.Write(make([]byte, 32)) // reserved

	body.Write(encodeStringItem(itemTypeApplicationContext, r.ApplicationContext))

	for _, pc := range r.PresentationContexts {
		var pcBuf bytes.Buffer
		pcBuf.WriteByte(pc.ID)
		pcBuf.Write(make([]byte, 3)) // reserved
		pcBuf.Write(encodeStringItem(itemTypeAbstractSyntax, pc.AbstractSyntax))
		for _, ts := range pc.TransferSyntaxes {
			pcBuf.Write(encodeStringItem(itemTypeTransferSyntax, ts))
		}
		var wrapped bytes.Buffer
		writeItemHeader(&wrapped, itemTypePresentationContextRQ, pcBuf.Len())
		wrapped.Write(pcBuf.Bytes())
		body.Write(wrapped.Bytes())
	}

	var userInfo bytes.Buffer
	var maxLenItem bytes.Buffer
	writeItemHeader(&maxLenItem, itemTypeMaxPDULength, 4)
	binary.Write(&maxLenItem, binary.BigEndian, r.MaxPDULength)
	userInfo.Write(maxLenItem.Bytes())
	userInfo.Write(encodeStringItem(itemTypeImplementationUID, r.ImplementationUID))
	var wrappedUser bytes.Buffer
	writeItemHeader(&wrappedUser, itemTypeUserInformation, userInfo.Len())
	wrappedUser.Write(userInfo.Bytes())
	body.Write(wrappedUser.Bytes())

	var out bytes.Buffer
	out.WriteByte(pduTypeAssociateRQ)
	out.WriteByte(0)
	binary.Write(&out, binary.BigEndian, uint32(body.Len()))
	out.Write(body.Bytes())
	return out.Bytes(), nil
}

// associateAC is the A-ASSOCIATE-AC PDU (PS3.8 9.3.3), structurally
// identical on the wire to associateRQ save for the presentation-context
// item type codes and per-context acceptance result.
type associateAC struct {
	CalledAETitle        string
	CallingAETitle       string
	ApplicationContext   string
	PresentationContexts []PresentationContext
	MaxPDULength         uint32
	ImplementationUID    string
}

func (a *associateAC) encode() ([]byte, error) {
	var body bytes.Buffer
	binary.Write(&body, binary.BigEndian, uint16(1))
	body.Write(make([]byte, 2))
	body.WriteString(padAETitle(a.CalledAETitle))
	body.WriteString(padAETitle(a.CallingAETitle))
	body.Write(make([]byte, 32))

	body.Write(encodeStringItem(itemTypeApplicationContext, a.ApplicationContext))

	for _, pc := range a.PresentationContexts {
		var pcBuf bytes.Buffer
		pcBuf.WriteByte(pc.ID)
		pcBuf.WriteByte(0)
		pcBuf.WriteByte(pc.Result)
		pcBuf.WriteByte(0)
		ts := ""
		if len(pc.TransferSyntaxes) > 0 {
			ts = pc.TransferSyntaxes[0]
		}
		pcBuf.Write(encodeStringItem(itemTypeTransferSyntax, ts))
		var wrapped bytes.Buffer
		writeItemHeader(&wrapped, itemTypePresentationContextAC, pcBuf.Len())
		wrapped.Write(pcBuf.Bytes())
		body.Write(wrapped.Bytes())
	}

	var userInfo bytes.Buffer
	var maxLenItem bytes.Buffer
	writeItemHeader(&maxLenItem, itemTypeMaxPDULength, 4)
	binary.Write(&maxLenItem, binary.BigEndian, a.MaxPDULength)
	userInfo.Write(maxLenItem.Bytes())
	userInfo.Write(encodeStringItem(itemTypeImplementationUID, a.ImplementationUID))
	var wrappedUser bytes.Buffer
	writeItemHeader(&wrappedUser, itemTypeUserInformation, userInfo.Len())
	wrappedUser.Write(userInfo.Bytes())
	body.Write(wrappedUser.Bytes())

	var out bytes.Buffer
	out.WriteByte(pduTypeAssociateAC)
	out.WriteByte(0)
	binary.Write(&out, binary.BigEndian, uint32(body.Len()))
	out.Write(body.Bytes())
	return out.Bytes(), nil
}

func decodeAssociateAC(body []byte) (*associateAC, error) {
	if len(body) < 68 {
		return nil, errkind.New(errkind.AssociationRejected, "assoc: A-ASSOCIATE-AC too short")
	}
	a := &associateAC{
		CalledAETitle:  trimAE(string(body[4:20])),
		CallingAETitle: trimAE(string(body[20:36])),
	}
	pos := 68
	for pos+4 <= len(body) {
		itemType := body[pos]
		length := int(binary.BigEndian.Uint16(body[pos+2 : pos+4]))
		itemBody := body[pos+4 : min(pos+4+length, len(body))]
		switch itemType {
		case itemTypeApplicationContext:
			a.ApplicationContext = string(itemBody)
		case itemTypePresentationContextAC:
			pc, err := decodePresentationContextAC(itemBody)
			if err != nil {
				return nil, err
			}
			a.PresentationContexts = append(a.PresentationContexts, pc)
		case itemTypeUserInformation:
			a.MaxPDULength, a.ImplementationUID = decodeUserInformation(itemBody)
		}
		pos += 4 + length
	}
	return a, nil
}

func decodePresentationContextAC(b []byte) (PresentationContext, error) {
	if len(b) < 4 {
		return PresentationContext{}, errkind.New(errkind.AssociationRejected, "assoc: malformed presentation context")
	}
	pc := PresentationContext{ID: b[0], Result: b[2]}
	pos := 4
	for pos+4 <= len(b) {
		itemType := b[pos]
		length := int(binary.BigEndian.Uint16(b[pos+2 : pos+4]))
		itemBody := b[pos+4 : min(pos+4+length, len(b))]
		if itemType == itemTypeTransferSyntax {
			pc.TransferSyntaxes = append(pc.TransferSyntaxes, string(itemBody))
		}
		pos += 4 + length
	}
	return pc, nil
}

func decodeUserInformation(b []byte) (maxPDU uint32, implUID string) {
	pos := 0
	for pos+4 <= len(b) {
		itemType := b[pos]
		length := int(binary.BigEndian.Uint16(b[pos+2 : pos+4]))
		itemBody := b[pos+4 : min(pos+4+length, len(b))]
		switch itemType {
		case itemTypeMaxPDULength:
			if len(itemBody) >= 4 {
				maxPDU = binary.BigEndian.Uint32(itemBody)
			}
		case itemTypeImplementationUID:
			implUID = string(itemBody)
		}
		pos += 4 + length
	}
	return
}

func trimAE(s string) string {
	for len(s) > 0 && s[len(s)-1] == ' ' {
		s = s[:len(s)-1]
	}
	return s
}

// associateRJ is the A-ASSOCIATE-RJ PDU (PS3.8 9.3.4).
type associateRJ struct {
	Result byte
	Source byte
	Reason byte
}

func decodeAssociateRJ(body []byte) (*associateRJ, error) {
	if len(body) < 4 {
		return nil, errkind.New(errkind.AssociationRejected, "assoc: A-ASSOCIATE-RJ too short")
	}
	return &associateRJ{Result: body[1], Source: body[2], Reason: body[3]}, nil
}

// pdv is one Presentation Data Value within a P-DATA-TF PDU.
type pdv struct {
	PresentationContextID byte
	IsCommand             bool
	IsLast                bool
	Data                  []byte
}

func encodePDataTF(contextID byte, commandData, datasetData []byte, maxFragment int) []byte {
	var out bytes.Buffer
	writePDV := func(data []byte, isCommand bool) {
		for offset := 0; offset < len(data) || (offset == 0 && len(data) == 0); {
			end := offset + maxFragment
			last := false
			if end >= len(data) {
				end = len(data)
				last = true
			}
			chunk := data[offset:end]
			header := byte(0x02) // bit0 set if command, bit1=last fragment flag set below
			if isCommand {
				header |= 0x01
			}
			if last {
				header |= 0x02
			} else {
				header &^= 0x02
			}
			var pdvBuf bytes.Buffer
			binary.Write(&pdvBuf, binary.BigEndian, uint32(len(chunk)+2))
			pdvBuf.WriteByte(contextID)
			pdvBuf.WriteByte(header)
			pdvBuf.Write(chunk)
			out.Write(pdvBuf.Bytes())
			if last {
				break
			}
			offset = end
		}
	}
	writePDV(commandData, true)
	if len(datasetData) > 0 {
		writePDV(datasetData, false)
	}

	var pdu bytes.Buffer
	pdu.WriteByte(pduTypePDataTF)
	pdu.WriteByte(0)
	binary.Write(&pdu, binary.BigEndian, uint32(out.Len()))
	pdu.Write(out.Bytes())
	return pdu.Bytes()
}

func decodePDataTF(body []byte) ([]pdv, error) {
	var pdvs []pdv
	pos := 0
	for pos+4 <= len(body) {
		length := int(binary.BigEndian.Uint32(body[pos : pos+4]))
		pos += 4
		if pos+length > len(body) || length < 2 {
			return nil, errkind.New(errkind.AssociationRejected, "assoc: malformed PDV")
		}
		contextID := body[pos]
		header := body[pos+1]
		data := body[pos+2 : pos+length]
		pdvs = append(pdvs, pdv{
			PresentationContextID: contextID,
			IsCommand:             header&0x01 != 0,
			IsLast:                header&0x02 != 0,
			Data:                  data,
		})
		pos += length
	}
	return pdvs, nil
}

func encodeReleaseRQ() []byte {
	var out bytes.Buffer
	out.WriteByte(pduTypeReleaseRQ)
	out.WriteByte(0)
	binary.Write(&out, binary.BigEndian, uint32(4))
	out.Write(make([]byte, 4))
	return out.Bytes()
}

func encodeReleaseRP() []byte {
	var out bytes.Buffer
	out.WriteByte(pduTypeReleaseRP)
	out.WriteByte(0)
	binary.Write(&out, binary.BigEndian, uint32(4))
	out.Write(make([]byte, 4))
	return out.Bytes()
}

func encodeAbort(source, reason byte) []byte {
	var out bytes.Buffer
	out.WriteByte(pduTypeAbort)
	out.WriteByte(0)
	binary.Write(&out, binary.BigEndian, uint32(4))
	out.Write([]byte{0, 0, source, reason})
	return out.Bytes()
}

// readPDU reads one PDU (type byte, reserved byte, 4-byte length, body)
// off r.
func readPDU(r io.Reader) (byte, []byte, error) {
	var header [6]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return 0, nil, fmt.Errorf("assoc: read PDU header: %w", err)
	}
	length := binary.BigEndian.Uint32(header[2:6])
	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return 0, nil, fmt.Errorf("assoc: read PDU body: %w", err)
	}
	return header[0], body, nil
}
