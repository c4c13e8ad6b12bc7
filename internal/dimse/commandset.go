// Package dimse implements DIMSE command (en/de)coding for the SOP
// classes the console drives: C-STORE, C-ECHO, C-FIND, N-CREATE, N-SET,
// N-ACTION, and N-EVENT-REPORT (received, for storage commitment).
// Adapted from the teacher's dimse package, trimmed to the operations
// spec.md §1 and §11 (supplemented C-ECHO) call for, and inlined against
// github.com/suyashkumar/dicom rather than a separate commandset
// sub-package, since that package was not part of the retrieved pack.
package dimse

import dicomtag "github.com/suyashkumar/dicom/pkg/tag"

// Command group (0000,eeee) element tags, per DICOM PS3.7 Annex E/Table
// 9.1/9.2/9.3.
var (
	CommandGroupLength                   = dicomtag.Tag{Group: 0x0000, Element: 0x0000}
	AffectedSOPClassUID                  = dicomtag.Tag{Group: 0x0000, Element: 0x0002}
	RequestedSOPClassUID                 = dicomtag.Tag{Group: 0x0000, Element: 0x0003}
	CommandField                         = dicomtag.Tag{Group: 0x0000, Element: 0x0100}
	MessageID                            = dicomtag.Tag{Group: 0x0000, Element: 0x0110}
	MessageIDBeingRespondedTo            = dicomtag.Tag{Group: 0x0000, Element: 0x0120}
	Priority                             = dicomtag.Tag{Group: 0x0000, Element: 0x0700}
	CommandDataSetType                   = dicomtag.Tag{Group: 0x0000, Element: 0x0800}
	StatusTag                            = dicomtag.Tag{Group: 0x0000, Element: 0x0900}
	ErrorComment                         = dicomtag.Tag{Group: 0x0000, Element: 0x0902}
	AffectedSOPInstanceUID               = dicomtag.Tag{Group: 0x0000, Element: 0x1000}
	RequestedSOPInstanceUID              = dicomtag.Tag{Group: 0x0000, Element: 0x1001}
	EventTypeID                          = dicomtag.Tag{Group: 0x0000, Element: 0x1002}
	ActionTypeID                         = dicomtag.Tag{Group: 0x0000, Element: 0x1008}
	MoveOriginatorApplicationEntityTitle = dicomtag.Tag{Group: 0x0000, Element: 0x1030}
	MoveOriginatorMessageID              = dicomtag.Tag{Group: 0x0000, Element: 0x1031}
)

// CommandDataSetType values (dicom.TagCommandDataSetType payload
// marker), matching the teacher's dimse.CommandDataSetType constants.
type CommandDataSetTypeValue uint16

const (
	CommandDataSetTypeNull    CommandDataSetTypeValue = 0x0101
	CommandDataSetTypeNonNull CommandDataSetTypeValue = 0x0001
)

// Command field values, one per DIMSE primitive the console issues or
// receives.
const (
	FieldCStoreRq        uint16 = 0x0001
	FieldCStoreRsp       uint16 = 0x8001
	FieldCEchoRq         uint16 = 0x0030
	FieldCEchoRsp        uint16 = 0x8030
	FieldCFindRq         uint16 = 0x0020
	FieldCFindRsp        uint16 = 0x8020
	FieldNEventReportRq  uint16 = 0x0100
	FieldNEventReportRsp uint16 = 0x8100
	FieldNCreateRq       uint16 = 0x0140
	FieldNCreateRsp      uint16 = 0x8140
	FieldNSetRq          uint16 = 0x0150
	FieldNSetRsp         uint16 = 0x8150
	FieldNActionRq       uint16 = 0x0160
	FieldNActionRsp      uint16 = 0x8160
)
