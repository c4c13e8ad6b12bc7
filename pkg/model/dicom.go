package model

import "time"

// DimseOperation identifies the kind of DIMSE exchange a DicomTransmission
// drives.
type DimseOperation string

const (
	OpCStore  DimseOperation = "CStore"
	OpNCreate DimseOperation = "NCreate"
	OpNSet    DimseOperation = "NSet"
	OpNAction DimseOperation = "NAction"
)

// TransmissionStatus is the terminal-status vocabulary for queued
// DicomTransmission items.
type TransmissionStatus string

const (
	TxPending   TransmissionStatus = "Pending"
	TxInFlight  TransmissionStatus = "InFlight"
	TxRetrying  TransmissionStatus = "Retrying"
	TxSucceeded TransmissionStatus = "Succeeded"
	TxFailed    TransmissionStatus = "Failed"
)

// Destination names a remote DICOM AE and how to connect to it.
type Destination struct {
	AETitle string
	Host    string
	Port    int
	TLS     *TLSConfig
}

// TLSConfig is the subset of TLS parameters the core consumes; the
// underlying certificate/key material loading is an external
// collaborator per spec.md §1.
type TLSConfig struct {
	Enabled          bool
	MinVersion       string // "1.2" or "1.3"
	CAFile           string
	ClientCertFile   string
	ClientKeyFile    string
	MutualAuth       bool
}

// DatasetRef is an opaque handle to a DICOM dataset owned by the IOD
// builders; the transport never interprets its contents beyond what is
// needed to negotiate transfer syntax and extract SOP UIDs.
type DatasetRef struct {
	SOPClassUID    string
	SOPInstanceUID string
	TransferSyntax string
	Bytes          []byte
	IsDiagnostic   bool // DX/CR pixel data: must never be sent lossy
}

// DicomTransmission is one durable Retry Queue item.
type DicomTransmission struct {
	ID              string
	Dataset         DatasetRef
	Destination     Destination
	Operation       DimseOperation
	AttemptCount    int
	LastAttemptAt   time.Time
	NextRetryAt     time.Time
	Status          TransmissionStatus
	CorrelationID   string
	FailureReason   string
}

// PresentationContext is one negotiated SOP-class/transfer-syntax
// agreement within an Association.
type PresentationContext struct {
	SOPClassUID    string
	TransferSyntax string
	ContextID      byte
}

// Association is a negotiated DICOM connection held exclusively by the
// operation using it; on release it returns to its destination's pool.
type Association struct {
	RemoteHost   string
	RemotePort   int
	CallingAE    string
	CalledAE     string
	Contexts     []PresentationContext
	TLSSession   bool
	IdleDeadline time.Time
}
