package journal

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicore/xray-console/pkg/model"
)

func TestAppendAndAllRoundTripEntriesInOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.ndjson")
	j, err := Open(path)
	require.NoError(t, err)
	defer j.Close()

	entries := []model.JournalEntry{
		{ID: "1", From: model.StateIdle, To: model.StateWorklistSync, Trigger: model.TriggerStartWorklistSync, Outcome: model.OutcomeApplied, AtUTC: time.Now()},
		{ID: "2", From: model.StateWorklistSync, To: model.StatePatientSelect, Trigger: model.TriggerPatientConfirmed, Outcome: model.OutcomeApplied, AtUTC: time.Now()},
	}
	for _, e := range entries {
		require.NoError(t, j.Append(e))
	}

	all, err := j.All()
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "1", all[0].ID)
	assert.Equal(t, "2", all[1].ID)
}

func TestTailReturnsTheMostRecentEntry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.ndjson")
	j, err := Open(path)
	require.NoError(t, err)
	defer j.Close()

	_, ok, err := j.Tail()
	require.NoError(t, err)
	assert.False(t, ok, "an empty journal has no tail")

	require.NoError(t, j.Append(model.JournalEntry{ID: "1", Outcome: model.OutcomeApplied}))
	require.NoError(t, j.Append(model.JournalEntry{ID: "2", Outcome: model.OutcomeRejected}))

	tail, ok, err := j.Tail()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "2", tail.ID)
	assert.Equal(t, model.OutcomeRejected, tail.Outcome)
}

func TestReopeningAnExistingJournalPreservesPriorEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.ndjson")
	j, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, j.Append(model.JournalEntry{ID: "1", Outcome: model.OutcomeApplied}))
	require.NoError(t, j.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	all, err := reopened.All()
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "1", all[0].ID)
}

func TestMaxObservedCounterFindsHighestValueAcrossEntries(t *testing.T) {
	entries := []model.JournalEntry{
		{Metadata: map[string]string{"uid_counter": "3"}},
		{Metadata: map[string]string{"uid_counter": "17"}},
		{Metadata: map[string]string{"other_key": "99"}},
		{Metadata: map[string]string{"uid_counter": "9"}},
	}
	assert.Equal(t, uint64(17), MaxObservedCounter(entries, "uid_counter"))
}

func TestMaxObservedCounterReturnsZeroWhenKeyNeverPresent(t *testing.T) {
	entries := []model.JournalEntry{{Metadata: map[string]string{"other_key": "99"}}}
	assert.Equal(t, uint64(0), MaxObservedCounter(entries, "uid_counter"))
}
