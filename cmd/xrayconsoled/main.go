// Command xrayconsoled wires the acquisition console's collaborators
// together, leaves first: configuration, UID generator, Journal, Safety
// Core, Event Bus, Dose Tracker, DICOM Transport, Retry Queue (whose
// sender wraps the transport), Workflow Engine, and the PACS export
// subscriber last, then runs the engine's single-writer event loop.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/clinicore/xray-console/pkg/config"
	"github.com/clinicore/xray-console/pkg/dicomtransport"
	"github.com/clinicore/xray-console/pkg/dose"
	"github.com/clinicore/xray-console/pkg/errkind"
	"github.com/clinicore/xray-console/pkg/eventbus"
	"github.com/clinicore/xray-console/pkg/hardware"
	"github.com/clinicore/xray-console/pkg/journal"
	"github.com/clinicore/xray-console/pkg/logging"
	"github.com/clinicore/xray-console/pkg/model"
	"github.com/clinicore/xray-console/pkg/pacsexport"
	"github.com/clinicore/xray-console/pkg/retryqueue"
	"github.com/clinicore/xray-console/pkg/safety"
	"github.com/clinicore/xray-console/pkg/uidgen"
	"github.com/clinicore/xray-console/pkg/workflow"
)

func main() {
	configPath := flag.String("config", "/etc/xrayconsole/config.json", "path to the console's JSON configuration file")
	journalPath := flag.String("journal", "/var/lib/xrayconsole/journal.ndjson", "path to the append-only transition journal")
	flag.Parse()

	logger, err := logging.New("xrayconsoled")
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	if err := run(*configPath, *journalPath, logger); err != nil {
		logger.Fatal("xrayconsoled: fatal startup or run error", zap.Error(err))
	}
}

func run(configPath, journalPath string, logger *zap.Logger) error {
	opts, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	uids, err := uidgen.New(opts.UIDRoot, opts.DeviceSerial, uidgen.NewInMemoryCounterStore())
	if err != nil {
		return err
	}

	jrnl, err := journal.Open(journalPath)
	if err != nil {
		return err
	}
	defer jrnl.Close()

	entries, err := jrnl.All()
	if err != nil {
		return err
	}
	if observed := journal.MaxObservedCounter(entries, "uid_counter"); observed > 0 {
		if err := uids.Reconcile(observed); err != nil {
			return err
		}
	}

	interlockSource := hardware.NewSimulatorInterlockSource()
	generator := hardware.NewSimulator()
	safetyCore, err := safety.New(interlockSource, generator)
	if err != nil {
		return err
	}
	defer safetyCore.Close()

	bus := eventbus.New()

	doseTracker := dose.New(
		dose.NewInMemoryLedger(),
		bus,
		opts.DoseLimits.StudyLimit,
		opts.DoseLimits.DailyLimit,
		opts.DoseLimits.WarnPct,
	)

	destinations := make([]model.Destination, 0, len(opts.PACSDestinations))
	for _, d := range opts.PACSDestinations {
		destinations = append(destinations, model.Destination{AETitle: d.AETitle, Host: d.Host, Port: d.Port})
	}
	transport := dicomtransport.New(opts.WorklistSCP.AETitle, opts.Pool, destinations, logger)

	retrySender := dicomtransport.NewRetrySender(transport)
	retryQueue, err := retryqueue.New(retryqueue.NewInMemoryStore(), retrySender, bus, opts.Retry, logger)
	if err != nil {
		return err
	}

	mppsDest := model.Destination{AETitle: opts.MPPSSCP.AETitle, Host: opts.MPPSSCP.Host, Port: opts.MPPSSCP.Port}
	mppsCloser := pacsexport.NewMPPSDiscontinuer(transport, uids, mppsDest)

	engine, err := workflow.New(workflow.Config{
		Logger:  logger,
		Journal: jrnl,
		Bus:     bus,
		Safety:  safetyCore,
		Dose:    doseTracker,
		UIDs:    uids,
		AEC:     generator,
		MPPS:    mppsCloser,
		Limits:  model.DeviceSafetyLimits(opts.SafetyLimits),
	})
	if err != nil {
		return err
	}
	defer engine.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if choice := engine.PendingRecovery(); choice != nil {
		resume := promptRecoveryChoice(choice, logger)
		if err := engine.ResolveRecovery(ctx, resume); err != nil {
			return err
		}
	}

	go drainRetryQueue(ctx, retryQueue, logger)

	exportDest := destinations[0]
	exportSvc := pacsexport.New(engine, transport, retryQueue, uids, exportDest, logger)
	go exportSvc.Run(ctx, bus)

	logger.Info("xrayconsoled: engine starting", zap.Stringer("initial_state", engine.Current()))
	engine.Run(ctx)
	logger.Info("xrayconsoled: engine stopped")
	return nil
}

// promptRecoveryChoice presents the operator with the crash-recovery
// decision spec.md §4.1 requires before the engine takes any further
// action: resume the interrupted study or clean-start and discard it.
// The prompt itself stands in for the real operator console UI, an
// external collaborator outside this core's scope.
func promptRecoveryChoice(choice *workflow.RecoveryChoice, logger *zap.Logger) bool {
	logger.Warn("xrayconsoled: crash recovery decision required",
		zap.Stringer("prior_state", choice.PriorState), zap.String("study_uid", choice.Study.StudyUID))
	fmt.Printf("A prior study (%s) was interrupted in state %s.\nResume it? [y/N]: ", choice.Study.StudyUID, choice.PriorState)
	reader := bufio.NewReader(os.Stdin)
	line, _ := reader.ReadString('\n')
	return strings.EqualFold(strings.TrimSpace(line), "y")
}

func loadConfig(path string) (config.Options, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return config.Options{}, errkind.Wrap(errkind.ConfigurationInvalid, "reading configuration file", err)
	}
	var asMap map[string]any
	if err := json.Unmarshal(raw, &asMap); err != nil {
		return config.Options{}, errkind.Wrap(errkind.ConfigurationInvalid, "parsing configuration file", err)
	}
	var opts config.Options
	if err := json.Unmarshal(raw, &opts); err != nil {
		return config.Options{}, errkind.Wrap(errkind.ConfigurationInvalid, "decoding configuration file", err)
	}
	defaults := config.Defaults()
	if opts.Pool.MaxSize == 0 {
		opts.Pool = defaults.Pool
	}
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = defaults.Retry
	}
	if opts.CommitmentTimeoutMS == 0 {
		opts.CommitmentTimeoutMS = defaults.CommitmentTimeoutMS
	}
	return config.Load(asMap, opts)
}

// drainRetryQueue polls for due transmissions and attempts each one,
// standing in for a dedicated timer-driven worker until one is needed.
func drainRetryQueue(ctx context.Context, q *retryqueue.Queue, logger *zap.Logger) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			due, err := q.Due(time.Now())
			if err != nil {
				logger.Error("xrayconsoled: listing due transmissions", zap.Error(err))
				continue
			}
			for _, item := range due {
				if err := q.Attempt(ctx, item); err != nil {
					logger.Error("xrayconsoled: retry attempt failed", zap.String("id", item.ID), zap.Error(err))
				}
			}
		}
	}
}
