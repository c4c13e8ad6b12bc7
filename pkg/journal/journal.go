// Package journal implements the single-writer, append-only audit log
// behind the Workflow Engine's atomic commit step: journal-write must
// complete before state-swap, which must complete before event-dispatch
// (spec.md §4.1). The spec prescribes the contract, not the backing
// store (design note), so Journal is an interface; FileJournal is one
// durable implementation.
package journal

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/clinicore/xray-console/pkg/errkind"
	"github.com/clinicore/xray-console/pkg/model"
)

// Journal is the durable, single-writer audit log contract.
type Journal interface {
	// Append writes entry durably and returns once it is safe to
	// consider committed (fsync'd, for a file-backed implementation).
	Append(entry model.JournalEntry) error
	// Tail returns the most recently appended entry, or ok=false if the
	// journal is empty. Used by crash recovery (spec.md §4.1).
	Tail() (entry model.JournalEntry, ok bool, err error)
	// All returns every entry in append order, used for journal replay.
	All() ([]model.JournalEntry, error)
}

// FileJournal is an append-only, newline-delimited JSON log with an
// fsync on every Append, matching spec.md §6's persistent state layout.
type FileJournal struct {
	mu   sync.Mutex
	path string
	file *os.File
}

// Open opens (creating if necessary) the journal file at path for
// appending.
func Open(path string) (*FileJournal, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o600)
	if err != nil {
		return nil, errkind.Wrap(errkind.JournalUnavailable, fmt.Sprintf("opening journal %s", path), err)
	}
	return &FileJournal{path: path, file: f}, nil
}

// Append writes entry as one JSON line and fsyncs before returning,
// satisfying the single-writer durability contract. A write or fsync
// failure is fatal for the engine per spec.md §4.1's failure semantics.
func (j *FileJournal) Append(entry model.JournalEntry) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	data, err := json.Marshal(entry)
	if err != nil {
		return errkind.Wrap(errkind.JournalUnavailable, "marshaling journal entry", err)
	}
	data = append(data, '\n')
	if _, err := j.file.Write(data); err != nil {
		return errkind.Wrap(errkind.JournalUnavailable, "writing journal entry", err)
	}
	if err := j.file.Sync(); err != nil {
		return errkind.Wrap(errkind.JournalUnavailable, "fsyncing journal", err)
	}
	return nil
}

// All reads every entry back in append order.
func (j *FileJournal) All() ([]model.JournalEntry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	f, err := os.Open(j.path)
	if err != nil {
		return nil, errkind.Wrap(errkind.JournalUnavailable, "reopening journal for read", err)
	}
	defer f.Close()

	var entries []model.JournalEntry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var entry model.JournalEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			return nil, errkind.Wrap(errkind.JournalUnavailable, "decoding journal entry", err)
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, errkind.Wrap(errkind.JournalUnavailable, "scanning journal", err)
	}
	return entries, nil
}

// Tail returns the last entry written, used by crash recovery to decide
// whether an in-progress study needs an operator decision.
func (j *FileJournal) Tail() (model.JournalEntry, bool, error) {
	entries, err := j.All()
	if err != nil {
		return model.JournalEntry{}, false, err
	}
	if len(entries) == 0 {
		return model.JournalEntry{}, false, nil
	}
	return entries[len(entries)-1], true, nil
}

// Close releases the underlying file handle.
func (j *FileJournal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.file.Close()
}

// MaxObservedCounter scans the journal metadata for the highest UID
// generator counter referenced, used to reconcile uidgen.Generator on
// startup per spec.md §6.
func MaxObservedCounter(entries []model.JournalEntry, metadataKey string) uint64 {
	var max uint64
	for _, e := range entries {
		raw, ok := e.Metadata[metadataKey]
		if !ok {
			continue
		}
		var v uint64
		if _, err := fmt.Sscanf(raw, "%d", &v); err == nil && v > max {
			max = v
		}
	}
	return max
}
