// Package pacsexport subscribes to the Workflow Engine's PacsExportRequested
// event and carries a closed study the rest of the way out of the console:
// it sends the MPPS N-CREATE/N-SET pair announcing the procedure step's
// completion, assembles the DX image and dose SR datasets, enqueues them
// as C-STORE transmissions on the Retry Queue, and finally fires
// TriggerStudyCompleted a second time so the engine leaves PacsExport for
// Idle and publishes StudyClosed. This is the end-to-end wiring spec.md
// §4.1/§4.5 describe as "PACS export enqueues DICOM transmissions into the
// Retry Queue"; the Engine itself never imports dicomtransport or
// retryqueue, keeping the safety-critical state machine free of I/O.
package pacsexport

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/clinicore/xray-console/internal/assoc"
	"github.com/clinicore/xray-console/pkg/dicomtransport"
	"github.com/clinicore/xray-console/pkg/eventbus"
	"github.com/clinicore/xray-console/pkg/iod"
	"github.com/clinicore/xray-console/pkg/model"
	"github.com/clinicore/xray-console/pkg/retryqueue"
	"github.com/clinicore/xray-console/pkg/uidgen"
	"github.com/clinicore/xray-console/pkg/workflow"
)

// Service turns one PacsExportRequested event into outbound DICOM work.
// The MPPS N-CREATE/N-SET pair is sent synchronously, off the Retry
// Queue entirely: InMemoryStore.All() iterates an unordered map, so the
// queue's own drain loop cannot guarantee N-CREATE lands before N-SET the
// way a durable FIFO would. C-STORE delivery for images and the dose
// report, by contrast, is fire-and-forget onto the queue, matching OQ-02's
// resolution that storage commitment (and by extension ordinary delivery)
// never blocks the workflow state machine.
type Service struct {
	engine      *workflow.Engine
	transport   *dicomtransport.Transport
	queue       *retryqueue.Queue
	uids        *uidgen.Generator
	destination model.Destination
	logger      *zap.Logger
}

// New constructs a Service bound to dest, the PACS destination studies are
// exported to.
func New(engine *workflow.Engine, transport *dicomtransport.Transport, queue *retryqueue.Queue, uids *uidgen.Generator, dest model.Destination, logger *zap.Logger) *Service {
	return &Service{engine: engine, transport: transport, queue: queue, uids: uids, destination: dest, logger: logger}
}

// Run subscribes to bus and processes PacsExportRequested events until ctx
// is cancelled; callers start it in its own goroutine alongside
// Engine.Run.
func (s *Service) Run(ctx context.Context, bus *eventbus.Bus) {
	sub := bus.Subscribe()
	defer sub.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-sub.C():
			if !ok {
				return
			}
			payload, ok := evt.Payload.(workflow.PacsExportRequestedPayload)
			if evt.Kind != "PacsExportRequested" || !ok {
				continue
			}
			s.export(ctx, payload.Study)
		}
	}
}

func (s *Service) export(ctx context.Context, study model.StudyContext) {
	if err := s.completeMPPS(ctx, study); err != nil {
		s.logger.Error("pacsexport: MPPS completion failed", zap.String("study_uid", study.StudyUID), zap.Error(err))
	}

	for _, exp := range study.Exposures {
		if exp.Status != model.ExposureAccepted {
			continue
		}
		if err := s.enqueueImage(study, exp); err != nil {
			s.logger.Error("pacsexport: enqueue DX image failed", zap.String("study_uid", study.StudyUID), zap.Error(err))
		}
	}

	if err := s.enqueueDoseSR(study); err != nil {
		s.logger.Error("pacsexport: enqueue dose SR failed", zap.String("study_uid", study.StudyUID), zap.Error(err))
	}

	if err := s.engine.Fire(ctx, model.TriggerStudyCompleted, "system", nil); err != nil {
		s.logger.Error("pacsexport: advancing PacsExport to Idle failed", zap.String("study_uid", study.StudyUID), zap.Error(err))
	}
}

// completeMPPS mints a fresh MPPS SOP instance UID and drives it through
// IN PROGRESS then COMPLETED; the console never keeps the instance open
// across the exposure loop itself (§11 OQ resolutions carry no MPPS
// state-entry socket for that), so both calls happen back to back here.
func (s *Service) completeMPPS(ctx context.Context, study model.StudyContext) error {
	mppsUID, err := s.uids.Next()
	if err != nil {
		return fmt.Errorf("pacsexport: minting MPPS SOP instance UID: %w", err)
	}

	beginDS, err := iod.BuildMPPSAttributes(study, "IN PROGRESS")
	if err != nil {
		return err
	}
	beginBytes, err := iod.Encode(beginDS)
	if err != nil {
		return err
	}
	if err := s.transport.BeginMPPS(ctx, s.destination, mppsUID, beginBytes); err != nil {
		return fmt.Errorf("pacsexport: N-CREATE: %w", err)
	}

	completeDS, err := iod.BuildMPPSAttributes(study, "COMPLETED")
	if err != nil {
		return err
	}
	completeBytes, err := iod.Encode(completeDS)
	if err != nil {
		return err
	}
	if err := s.transport.CompleteMPPS(ctx, s.destination, mppsUID, completeBytes); err != nil {
		return fmt.Errorf("pacsexport: N-SET: %w", err)
	}
	return nil
}

// enqueueImage builds the DX dataset for one accepted exposure and
// enqueues it as a durable C-STORE. Pixel data capture is the detector
// driver's responsibility (an external collaborator per spec.md §1's
// scope boundary) and is not modeled on ExposureRecord; the placeholder
// here stands in for that hand-off the same way hardware.Simulator
// stands in for a real generator.
func (s *Service) enqueueImage(study model.StudyContext, exp *model.ExposureRecord) error {
	seriesUID, err := s.uids.Next()
	if err != nil {
		return fmt.Errorf("pacsexport: minting series UID: %w", err)
	}
	ds, err := iod.BuildDXImage(study, *exp, seriesUID, []byte{})
	if err != nil {
		return err
	}
	encoded, err := iod.Encode(ds)
	if err != nil {
		return err
	}
	txID, err := s.uids.Next()
	if err != nil {
		return fmt.Errorf("pacsexport: minting transmission id: %w", err)
	}
	return s.queue.Enqueue(model.DicomTransmission{
		ID:          txID,
		Destination: s.destination,
		Operation:   model.OpCStore,
		Dataset: model.DatasetRef{
			SOPClassUID:    iod.DigitalXRaySOPClassUID,
			SOPInstanceUID: exp.ImageSOPUID,
			TransferSyntax: assoc.TransferSyntaxExplicitVRLE,
			Bytes:          encoded,
			IsDiagnostic:   true,
		},
	})
}

// MPPSDiscontinuer adapts Transport to workflow.MPPSCloser for the
// crash-recovery clean-start path (spec.md §4.1): it opens and
// immediately closes an MPPS instance with status DISCONTINUED for
// whatever study the journal shows was interrupted.
type MPPSDiscontinuer struct {
	transport   *dicomtransport.Transport
	uids        *uidgen.Generator
	destination model.Destination
}

// NewMPPSDiscontinuer constructs an MPPSDiscontinuer targeting dest (the
// console's configured MPPS SCP).
func NewMPPSDiscontinuer(transport *dicomtransport.Transport, uids *uidgen.Generator, dest model.Destination) *MPPSDiscontinuer {
	return &MPPSDiscontinuer{transport: transport, uids: uids, destination: dest}
}

// Discontinue sends N-CREATE then N-SET with status DISCONTINUED for
// study, satisfying workflow.MPPSCloser.
func (m *MPPSDiscontinuer) Discontinue(ctx context.Context, study model.StudyContext) error {
	mppsUID, err := m.uids.Next()
	if err != nil {
		return fmt.Errorf("pacsexport: minting MPPS SOP instance UID for clean-start: %w", err)
	}
	ds, err := iod.BuildMPPSAttributes(study, "DISCONTINUED")
	if err != nil {
		return err
	}
	encoded, err := iod.Encode(ds)
	if err != nil {
		return err
	}
	if err := m.transport.BeginMPPS(ctx, m.destination, mppsUID, encoded); err != nil {
		return fmt.Errorf("pacsexport: clean-start N-CREATE: %w", err)
	}
	return m.transport.CompleteMPPS(ctx, m.destination, mppsUID, encoded)
}

// enqueueDoseSR builds and enqueues the study's dose summary report; it
// carries no PHI-sensitive pixel data, so it is never subject to the
// lossless-only invariant that guards diagnostic images.
func (s *Service) enqueueDoseSR(study model.StudyContext) error {
	sopUID, err := s.uids.Next()
	if err != nil {
		return fmt.Errorf("pacsexport: minting dose SR SOP instance UID: %w", err)
	}
	ds, err := iod.BuildDoseSR(study, study.TotalDAP(), sopUID)
	if err != nil {
		return err
	}
	encoded, err := iod.Encode(ds)
	if err != nil {
		return err
	}
	txID, err := s.uids.Next()
	if err != nil {
		return fmt.Errorf("pacsexport: minting transmission id: %w", err)
	}
	return s.queue.Enqueue(model.DicomTransmission{
		ID:          txID,
		Destination: s.destination,
		Operation:   model.OpCStore,
		Dataset: model.DatasetRef{
			SOPClassUID:    iod.XRayRadiationDoseSRSOPClassUID,
			SOPInstanceUID: sopUID,
			TransferSyntax: assoc.TransferSyntaxExplicitVRLE,
			Bytes:          encoded,
			IsDiagnostic:   false,
		},
	})
}
