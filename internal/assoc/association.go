package assoc

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/grailbio/go-dicom/dicomuid"
	"github.com/suyashkumar/dicom"

	"github.com/clinicore/xray-console/internal/dimse"
	"github.com/clinicore/xray-console/pkg/errkind"
	"github.com/clinicore/xray-console/pkg/model"
)

// decodeImplicitVRCommandSet parses a reassembled DIMSE command set. Per
// PS3.7 6.3.1 command sets are always Implicit VR Little Endian regardless
// of the negotiated data transfer syntax; skipping file-meta reads makes
// the parser fall back to that encoding, matching the teacher's
// CommandAssembler.AddDataPDU.
func decodeImplicitVRCommandSet(raw []byte) (*dicom.Dataset, error) {
	r := bytes.NewReader(raw)
	ds, err := dicom.Parse(r, int64(r.Len()), nil, dicom.SkipPixelData(), dicom.SkipMetadataReadOnNewParserInit())
	if err != nil {
		return nil, fmt.Errorf("assoc: parse command set: %w", err)
	}
	return &ds, nil
}

// ApplicationContextUID is the DICOM standard application context name
// (PS3.7 Annex A.2.1).
const ApplicationContextUID = "1.2.840.10008.3.1.1.1"

const implementationClassUID = "2.25.203105050819132170612250412721760421451" // console implementation, stable placeholder

const maxPDULength = 1 << 20
const maxPDVFragment = 16 * 1024

// ProposedContext is one abstract syntax the caller wants negotiated,
// offered with the full lossless-first transfer syntax priority list.
type ProposedContext struct {
	ID             byte
	SOPClassUID    string
	TransferSyntax []string // proposal order; defaults to PreferredTransferSyntaxOrder if nil
}

// Association is an open, negotiated DICOM connection to one destination.
type Association struct {
	conn       net.Conn
	dest       model.Destination
	callingAE  string
	contexts   []model.PresentationContext
	maxPDULen  uint32
	messageID  uint16
}

// Dial opens a transport connection, performs TLS negotiation if dest.TLS
// is enabled, then exchanges A-ASSOCIATE-RQ/AC to negotiate the given
// proposed presentation contexts. TLS 1.2/1.3 is enforced per spec.md
// §5.4; anything else is refused before the handshake begins.
func Dial(ctx context.Context, dest model.Destination, callingAE string, proposed []ProposedContext) (*Association, error) {
	addr := fmt.Sprintf("%s:%d", dest.Host, dest.Port)
	dialer := &net.Dialer{}
	rawConn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, errkind.Wrap(errkind.AssociationRejected, fmt.Sprintf("assoc: dial %s failed", addr), err)
	}

	conn := rawConn
	if dest.TLS != nil && dest.TLS.Enabled {
		tlsConn, err := wrapTLS(rawConn, dest.TLS, dest.Host)
		if err != nil {
			rawConn.Close()
			return nil, err
		}
		conn = tlsConn
	}

	a := &Association{conn: conn, dest: dest, callingAE: callingAE, maxPDULen: maxPDULength}
	if err := a.negotiate(ctx, proposed); err != nil {
		conn.Close()
		return nil, err
	}
	return a, nil
}

func wrapTLS(conn net.Conn, cfg *model.TLSConfig, serverName string) (*tls.Conn, error) {
	minVersion := uint16(tls.VersionTLS12)
	if cfg.MinVersion == "1.3" {
		minVersion = tls.VersionTLS13
	}
	tlsCfg := &tls.Config{
		MinVersion: minVersion,
		ServerName: serverName,
	}
	if cfg.CAFile != "" {
		pool := x509.NewCertPool()
		pem, err := os.ReadFile(cfg.CAFile)
		if err != nil {
			return nil, errkind.Wrap(errkind.ConfigurationInvalid, "assoc: read CA file", err)
		}
		if !pool.AppendCertsFromPEM(pem) {
			return nil, errkind.New(errkind.ConfigurationInvalid, "assoc: CA file contains no usable certificates")
		}
		tlsCfg.RootCAs = pool
	}
	if cfg.MutualAuth {
		cert, err := tls.LoadX509KeyPair(cfg.ClientCertFile, cfg.ClientKeyFile)
		if err != nil {
			return nil, errkind.Wrap(errkind.ConfigurationInvalid, "assoc: load client certificate", err)
		}
		tlsCfg.Certificates = []tls.Certificate{cert}
	}
	tlsConn := tls.Client(conn, tlsCfg)
	if err := tlsConn.Handshake(); err != nil {
		return nil, errkind.Wrap(errkind.AssociationRejected, "assoc: TLS handshake failed", err)
	}
	return tlsConn, nil
}

func (a *Association) negotiate(ctx context.Context, proposed []ProposedContext) error {
	rq := &associateRQ{
		CalledAETitle:      a.dest.AETitle,
		CallingAETitle:     a.callingAE,
		ApplicationContext: ApplicationContextUID,
		MaxPDULength:       a.maxPDULen,
		ImplementationUID:  implementationClassUID,
	}
	for _, p := range proposed {
		ts := p.TransferSyntax
		if ts == nil {
			ts = PreferredTransferSyntaxOrder
		}
		rq.PresentationContexts = append(rq.PresentationContexts, PresentationContext{
			ID:               p.ID,
			AbstractSyntax:   p.SOPClassUID,
			TransferSyntaxes: ts,
		})
	}
	encoded, err := rq.encode()
	if err != nil {
		return err
	}
	if deadline, ok := ctx.Deadline(); ok {
		a.conn.SetDeadline(deadline)
	}
	if _, err := a.conn.Write(encoded); err != nil {
		return errkind.Wrap(errkind.AssociationRejected, "assoc: write A-ASSOCIATE-RQ", err)
	}

	pduType, body, err := readPDU(a.conn)
	if err != nil {
		return errkind.Wrap(errkind.AssociationRejected, "assoc: read association response", err)
	}
	switch pduType {
	case pduTypeAssociateAC:
		ac, err := decodeAssociateAC(body)
		if err != nil {
			return err
		}
		for _, pc := range ac.PresentationContexts {
			if pc.Result != PresentationResultAccepted {
				continue
			}
			ts := ""
			if len(pc.TransferSyntaxes) > 0 {
				ts = pc.TransferSyntaxes[0]
			}
			sopClass := ""
			for _, p := range proposed {
				if p.ID == pc.ID {
					sopClass = p.SOPClassUID
				}
			}
			a.contexts = append(a.contexts, model.PresentationContext{
				SOPClassUID:    sopClass,
				TransferSyntax: ts,
				ContextID:      pc.ID,
			})
		}
		if len(a.contexts) == 0 {
			return errkind.New(errkind.TransferSyntaxConflict, fmt.Sprintf("assoc: peer accepted none of the proposed contexts: %s", describeSOPClasses(proposed)))
		}
		if ac.MaxPDULength > 0 && ac.MaxPDULength < a.maxPDULen {
			a.maxPDULen = ac.MaxPDULength
		}
		return nil
	case pduTypeAssociateRJ:
		rj, err := decodeAssociateRJ(body)
		if err != nil {
			return err
		}
		return errkind.New(errkind.AssociationRejected, fmt.Sprintf("assoc: A-ASSOCIATE-RJ result=%d source=%d reason=%d", rj.Result, rj.Source, rj.Reason))
	default:
		return errkind.New(errkind.AssociationRejected, fmt.Sprintf("assoc: unexpected PDU type 0x%02x during negotiation", pduType))
	}
}

// ContextFor returns the negotiated context matching sopClassUID, or
// false if none was accepted.
func (a *Association) ContextFor(sopClassUID string) (model.PresentationContext, bool) {
	for _, c := range a.contexts {
		if c.SOPClassUID == sopClassUID {
			return c, true
		}
	}
	return model.PresentationContext{}, false
}

// NextMessageID returns a monotonically increasing message ID for this
// association's lifetime, used as MessageID on outbound DIMSE requests.
func (a *Association) NextMessageID() uint16 {
	a.messageID++
	return a.messageID
}

// SendDIMSE encodes cmd (and, if present, the dataset body in the context's
// negotiated transfer syntax) and writes it as a P-DATA-TF PDU.
func (a *Association) SendDIMSE(ctx context.Context, contextID byte, cmd dimse.Message, dataset []byte) error {
	var cmdBuf bytes.Buffer
	if err := dimse.EncodeMessage(&cmdBuf, cmd); err != nil {
		return fmt.Errorf("assoc: encode DIMSE command: %w", err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		a.conn.SetDeadline(deadline)
	}
	pduBytes := encodePDataTF(contextID, cmdBuf.Bytes(), dataset, maxPDVFragment)
	if _, err := a.conn.Write(pduBytes); err != nil {
		return errkind.Wrap(errkind.HardwareFault, "assoc: write P-DATA-TF", err)
	}
	return nil
}

// ReceiveDIMSE reads PDVs until a command PDV's last fragment is seen,
// reassembles the command dataset, and decodes it into a Message. Any
// dataset PDVs that follow are returned as the raw payload.
func (a *Association) ReceiveDIMSE(ctx context.Context) (dimse.Message, []byte, error) {
	if deadline, ok := ctx.Deadline(); ok {
		a.conn.SetDeadline(deadline)
	}
	var cmdBuf bytes.Buffer
	var dataBuf bytes.Buffer
	for {
		pduType, body, err := readPDU(a.conn)
		if err != nil {
			return nil, nil, errkind.Wrap(errkind.HardwareFault, "assoc: read P-DATA-TF", err)
		}
		if pduType != pduTypePDataTF {
			return nil, nil, errkind.New(errkind.AssociationRejected, fmt.Sprintf("assoc: unexpected PDU type 0x%02x awaiting response", pduType))
		}
		pdvs, err := decodePDataTF(body)
		if err != nil {
			return nil, nil, err
		}
		cmdComplete := false
		for _, p := range pdvs {
			if p.IsCommand {
				cmdBuf.Write(p.Data)
				if p.IsLast {
					cmdComplete = true
				}
			} else {
				dataBuf.Write(p.Data)
			}
		}
		if cmdComplete {
			break
		}
	}
	dataset, err := decodeImplicitVRCommandSet(cmdBuf.Bytes())
	if err != nil {
		return nil, nil, err
	}
	msg, err := dimse.ReadMessage(dataset)
	if err != nil {
		return nil, nil, fmt.Errorf("assoc: decode DIMSE response: %w", err)
	}
	return msg, dataBuf.Bytes(), nil
}

// Release performs the orderly A-RELEASE-RQ/RP exchange and closes the
// connection.
func (a *Association) Release(ctx context.Context) error {
	if deadline, ok := ctx.Deadline(); ok {
		a.conn.SetDeadline(deadline)
	}
	if _, err := a.conn.Write(encodeReleaseRQ()); err != nil {
		a.conn.Close()
		return errkind.Wrap(errkind.HardwareFault, "assoc: write A-RELEASE-RQ", err)
	}
	pduType, _, err := readPDU(a.conn)
	closeErr := a.conn.Close()
	if err != nil {
		return errkind.Wrap(errkind.HardwareFault, "assoc: read A-RELEASE-RP", err)
	}
	if pduType != pduTypeReleaseRP {
		return errkind.New(errkind.AssociationRejected, "assoc: peer did not respond with A-RELEASE-RP")
	}
	return closeErr
}

// Abort sends A-ABORT and closes the connection immediately, for use when
// a protocol violation or hardware fault makes orderly release unsafe.
func (a *Association) Abort() error {
	a.conn.Write(encodeAbort(0, 0))
	return a.conn.Close()
}

// CorrelationID derives a stable, non-PHI identifier for this
// association's log lines.
func CorrelationID() string {
	return uuid.New().String()
}

// describeSOPClasses renders the proposed abstract syntaxes with
// dicomuid's well-known-UID name table, so a rejected-association log
// line reads as "Verification SOP Class (1.2.840.10008.1.1)" rather
// than a bare dotted-numeric string.
func describeSOPClasses(proposed []ProposedContext) string {
	names := make([]string, 0, len(proposed))
	for _, p := range proposed {
		names = append(names, dicomuid.UIDString(p.SOPClassUID))
	}
	return strings.Join(names, ", ")
}
