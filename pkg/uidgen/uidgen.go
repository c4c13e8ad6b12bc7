// Package uidgen generates globally unique DICOM UIDs of the form
// {OrgRoot}.{DeviceSerial}.{UnixMillis}.{Counter}, collision-free across
// process restarts by combining a monotonic millisecond clock with a
// persisted counter (spec.md §4.6).
package uidgen

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// MaxUIDLength is the DICOM UI value-representation length ceiling.
const MaxUIDLength = 64

// CounterStore persists the monotonic per-process counter across
// shutdown/startup, satisfying the "any durable key-value ... store"
// design note. A file or embedded-KV implementation lives with the
// caller; this package only defines the contract.
type CounterStore interface {
	LoadCounter() (uint64, error)
	SaveCounter(uint64) error
}

// Generator produces dotted-numeric UIDs unique across restarts.
type Generator struct {
	orgRoot      string
	deviceSerial string
	store        CounterStore

	mu      sync.Mutex
	counter uint64
	lastMS  int64
}

// New constructs a Generator. orgRoot must be supplied by the caller
// (spec.md OQ-01: no baked-in production fallback); if it is empty, a
// UUID-derived root is substituted so the generator still produces
// collision-free, syntactically valid UIDs in non-production contexts
// such as tests and simulators.
func New(orgRoot, deviceSerial string, store CounterStore) (*Generator, error) {
	if orgRoot == "" {
		orgRoot = uuidDerivedRoot()
	}
	counter, err := store.LoadCounter()
	if err != nil {
		return nil, fmt.Errorf("uidgen.New: failed to load persisted counter: %w", err)
	}
	return &Generator{
		orgRoot:      orgRoot,
		deviceSerial: deviceSerial,
		store:        store,
		counter:      counter,
	}, nil
}

// uuidDerivedRoot turns a random UUID into a dotted-numeric OID-shaped
// string by converting each hex digit group to decimal. It is not a
// registered root and must never be used in production (OQ-01), but it
// guarantees uniqueness for development and test use.
func uuidDerivedRoot() string {
	id := uuid.New()
	hi := id[:8]
	lo := id[8:]
	var hiN, loN uint64
	for _, b := range hi {
		hiN = hiN<<8 | uint64(b)
	}
	for _, b := range lo {
		loN = loN<<8 | uint64(b)
	}
	return fmt.Sprintf("2.25.%d.%d", hiN, loN)
}

// Next returns a new globally unique UID. The millisecond timestamp and
// persisted counter combination guarantees no two calls, even across a
// crash/restart cycle reconciled against max-observed, ever produce the
// same value.
func (g *Generator) Next() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now().UnixMilli()
	if now <= g.lastMS {
		// Clock did not advance (or went backward): stay monotonic by
		// reusing the last millisecond and relying on the counter.
		now = g.lastMS
	} else {
		g.lastMS = now
	}
	g.counter++
	if err := g.store.SaveCounter(g.counter); err != nil {
		return "", fmt.Errorf("uidgen.Next: failed to persist counter: %w", err)
	}

	uid := fmt.Sprintf("%s.%s.%d.%d", g.orgRoot, g.deviceSerial, now, g.counter)
	if len(uid) > MaxUIDLength {
		return "", fmt.Errorf("uidgen.Next: generated UID length %d exceeds max %d", len(uid), MaxUIDLength)
	}
	if !isDottedNumeric(uid) {
		return "", fmt.Errorf("uidgen.Next: generated UID %q is not dotted-numeric", uid)
	}
	return uid, nil
}

func isDottedNumeric(uid string) bool {
	if uid == "" || len(uid) > MaxUIDLength {
		return false
	}
	parts := strings.Split(uid, ".")
	for _, p := range parts {
		if p == "" {
			return false
		}
		for _, r := range p {
			if r < '0' || r > '9' {
				return false
			}
		}
	}
	return true
}

// Reconcile advances the counter to at least observed, used on startup
// to reconcile the persisted counter against the highest counter value
// seen in the journal or retry queue (spec.md §6).
func (g *Generator) Reconcile(observed uint64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if observed <= g.counter {
		return nil
	}
	g.counter = observed
	return g.store.SaveCounter(g.counter)
}

// atomicCounterStore is a simple in-memory CounterStore, useful for
// tests and as the default when no durable backing store is wired.
type atomicCounterStore struct {
	value atomic.Uint64
}

// NewInMemoryCounterStore returns a CounterStore that does not survive
// restarts; production deployments must supply a durable implementation.
func NewInMemoryCounterStore() CounterStore {
	return &atomicCounterStore{}
}

func (s *atomicCounterStore) LoadCounter() (uint64, error) {
	return s.value.Load(), nil
}

func (s *atomicCounterStore) SaveCounter(v uint64) error {
	s.value.Store(v)
	return nil
}
