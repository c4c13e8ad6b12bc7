package uidgen

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextProducesDottedNumericUIDsWithinLengthCeiling(t *testing.T) {
	gen, err := New("1.2.840.99999", "1001", NewInMemoryCounterStore())
	require.NoError(t, err)

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		uid, err := gen.Next()
		require.NoError(t, err)
		assert.True(t, isDottedNumeric(uid), "uid %q must be dotted-numeric", uid)
		assert.LessOrEqual(t, len(uid), MaxUIDLength)
		assert.False(t, seen[uid], "uid %q must be unique", uid)
		seen[uid] = true
	}
}

func TestNewSubstitutesUUIDDerivedRootWhenEmpty(t *testing.T) {
	gen, err := New("", "DEV01", NewInMemoryCounterStore())
	require.NoError(t, err)
	assert.NotEmpty(t, gen.orgRoot)
	assert.True(t, strings.HasPrefix(gen.orgRoot, "2.25."))
}

func TestReconcileAdvancesCounterForwardOnly(t *testing.T) {
	store := NewInMemoryCounterStore()
	gen, err := New("1.2.840.99999", "1001", store)
	require.NoError(t, err)

	_, err = gen.Next()
	require.NoError(t, err)

	require.NoError(t, gen.Reconcile(100))
	assert.Equal(t, uint64(100), gen.counter)

	require.NoError(t, gen.Reconcile(5))
	assert.Equal(t, uint64(100), gen.counter, "reconcile must never move the counter backward")

	uid, err := gen.Next()
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(uid, ".101"))
}

func TestIsDottedNumericRejectsMalformedValues(t *testing.T) {
	assert.False(t, isDottedNumeric(""))
	assert.False(t, isDottedNumeric("1..2"))
	assert.False(t, isDottedNumeric("1.2.a"))
	assert.False(t, isDottedNumeric(strings.Repeat("9", MaxUIDLength+1)))
	assert.True(t, isDottedNumeric("1.2.840.99999.123.456"))
}
