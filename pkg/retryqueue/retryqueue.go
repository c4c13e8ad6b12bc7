// Package retryqueue implements the durable queue of outbound DICOM
// transmissions, backing off failed attempts per spec.md §4.4 and
// recovering in-flight items after a crash. Exponential backoff intervals
// are computed with github.com/cenkalti/backoff/v5 (adopted from the
// kubernaut reference's go.mod) configured to match the spec's
// deterministic formula rather than the library's default jittered mode.
package retryqueue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/clinicore/xray-console/pkg/config"
	"github.com/clinicore/xray-console/pkg/errkind"
	"github.com/clinicore/xray-console/pkg/eventbus"
	"github.com/clinicore/xray-console/pkg/model"
)

// Store persists queued transmissions; a durable implementation is an
// external collaborator, mirroring the Journal/Ledger abstraction
// boundary elsewhere in the core.
type Store interface {
	Save(model.DicomTransmission) error
	Load(id string) (model.DicomTransmission, bool, error)
	All() ([]model.DicomTransmission, error)
}

// Sender performs one delivery attempt. On failure it returns the error
// and reports whether that failure is retryable.
type Sender interface {
	Send(ctx context.Context, item model.DicomTransmission) (statusRetryable bool, err error)
}

// TransmissionEvent is published on every terminal status transition
// (Succeeded or Failed), one notification each, per spec.md §4.4.
type TransmissionEvent struct {
	ID     string
	Status model.TransmissionStatus
	Reason string
}

// Queue is the durable retry queue.
type Queue struct {
	mu     sync.Mutex
	store  Store
	sender Sender
	bus    *eventbus.Bus
	opts   config.RetryOptions
	logger *zap.Logger
	ready  chan struct{}
}

// New constructs a Queue and, per spec.md's crash-recovery invariant,
// rewinds any item left InFlight from a prior process into Retrying so it
// is reattempted rather than silently dropped.
func New(store Store, sender Sender, bus *eventbus.Bus, opts config.RetryOptions, logger *zap.Logger) (*Queue, error) {
	q := &Queue{store: store, sender: sender, bus: bus, opts: opts, logger: logger, ready: make(chan struct{}, 1)}
	items, err := store.All()
	if err != nil {
		return nil, fmt.Errorf("retryqueue: load on recovery: %w", err)
	}
	for _, item := range items {
		if item.Status == model.TxInFlight {
			item.Status = model.TxRetrying
			if err := store.Save(item); err != nil {
				return nil, fmt.Errorf("retryqueue: recover in-flight item %s: %w", item.ID, err)
			}
		}
	}
	return q, nil
}

// Enqueue adds a new transmission in Pending state.
func (q *Queue) Enqueue(item model.DicomTransmission) error {
	item.Status = model.TxPending
	if err := q.store.Save(item); err != nil {
		return errkind.Wrap(errkind.JournalUnavailable, "retryqueue: enqueue failed", err)
	}
	q.signal()
	return nil
}

func (q *Queue) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// nextRetryAt computes the backoff deadline for the attempt-th retry
// (attempt is 1-based: the first retry after an initial failure), using a
// fresh, non-jittered ExponentialBackOff so the sequence is reproducible.
func (q *Queue) nextRetryAt(from time.Time, attempt int) time.Time {
	maxInterval := time.Duration(q.opts.MaxMS) * time.Millisecond
	b := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(time.Duration(q.opts.InitialMS)*time.Millisecond),
		backoff.WithMultiplier(q.opts.Multiplier),
		backoff.WithMaxInterval(maxInterval),
		backoff.WithRandomizationFactor(0),
	)
	var interval time.Duration
	for i := 0; i < attempt; i++ {
		interval = b.NextBackOff()
		if interval == backoff.Stop || interval > maxInterval {
			interval = maxInterval
		}
	}
	return from.Add(interval)
}

// Due returns every item whose NextRetryAt has passed (Pending items are
// always due), in the order Store.All yields them; the queue applies no
// first-in-first-out ordering of its own.
func (q *Queue) Due(now time.Time) ([]model.DicomTransmission, error) {
	all, err := q.store.All()
	if err != nil {
		return nil, fmt.Errorf("retryqueue: list due items: %w", err)
	}
	var due []model.DicomTransmission
	for _, item := range all {
		switch item.Status {
		case model.TxPending:
			due = append(due, item)
		case model.TxRetrying:
			if !item.NextRetryAt.After(now) {
				due = append(due, item)
			}
		}
	}
	return due, nil
}

// Attempt performs one delivery attempt for item, updating its durable
// state and publishing a TransmissionEvent on terminal transitions.
func (q *Queue) Attempt(ctx context.Context, item model.DicomTransmission) error {
	item.Status = model.TxInFlight
	item.AttemptCount++
	item.LastAttemptAt = time.Now()
	if err := q.store.Save(item); err != nil {
		return errkind.Wrap(errkind.JournalUnavailable, "retryqueue: mark in-flight failed", err)
	}

	retryable, sendErr := q.sender.Send(ctx, item)
	if sendErr == nil {
		item.Status = model.TxSucceeded
		if err := q.store.Save(item); err != nil {
			return errkind.Wrap(errkind.JournalUnavailable, "retryqueue: mark succeeded failed", err)
		}
		q.publish(item.ID, model.TxSucceeded, "")
		return nil
	}

	item.FailureReason = sendErr.Error()
	if !retryable || item.AttemptCount >= q.opts.MaxAttempts {
		item.Status = model.TxFailed
		if err := q.store.Save(item); err != nil {
			return errkind.Wrap(errkind.JournalUnavailable, "retryqueue: mark failed failed", err)
		}
		q.publish(item.ID, model.TxFailed, item.FailureReason)
		return nil
	}

	item.Status = model.TxRetrying
	item.NextRetryAt = q.nextRetryAt(item.LastAttemptAt, item.AttemptCount)
	if err := q.store.Save(item); err != nil {
		return errkind.Wrap(errkind.JournalUnavailable, "retryqueue: mark retrying failed", err)
	}
	return nil
}

func (q *Queue) publish(id string, status model.TransmissionStatus, reason string) {
	if q.bus == nil {
		return
	}
	q.bus.Publish(eventbus.Event{
		Kind:    "TransmissionStatusChanged",
		Payload: TransmissionEvent{ID: id, Status: status, Reason: reason},
	})
}

// InMemoryStore is a non-durable Store, suitable for tests and as the
// default before a persistent backing store is wired in.
type InMemoryStore struct {
	mu    sync.Mutex
	items map[string]model.DicomTransmission
}

// NewInMemoryStore constructs an empty InMemoryStore.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{items: make(map[string]model.DicomTransmission)}
}

func (s *InMemoryStore) Save(item model.DicomTransmission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[item.ID] = item
	return nil
}

func (s *InMemoryStore) Load(id string) (model.DicomTransmission, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[id]
	return item, ok, nil
}

func (s *InMemoryStore) All() ([]model.DicomTransmission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.DicomTransmission, 0, len(s.items))
	for _, item := range s.items {
		out = append(out, item)
	}
	return out, nil
}
