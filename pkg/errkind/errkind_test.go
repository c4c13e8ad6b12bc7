package errkind

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsMatchesBySentinelKindRegardlessOfDetail(t *testing.T) {
	err := New(GuardFailure, "interlocks not satisfied")
	assert.True(t, errors.Is(err, Sentinel(GuardFailure)))
	assert.False(t, errors.Is(err, Sentinel(JournalUnavailable)))
}

func TestWrapPreservesCauseForUnwrap(t *testing.T) {
	cause := errors.New("disk full")
	err := Wrap(JournalUnavailable, "fsyncing journal", cause)
	assert.Same(t, cause, errors.Unwrap(err))
	assert.ErrorIs(t, err, cause)
}

func TestErrorMessageIncludesKindDetailAndCauseWhenPresent(t *testing.T) {
	withoutCause := New(PoolExhausted, "no free connections")
	assert.Equal(t, "PoolExhausted: no free connections", withoutCause.Error())

	withCause := Wrap(PoolExhausted, "acquiring connection", errors.New("timed out"))
	assert.Equal(t, "PoolExhausted: acquiring connection: timed out", withCause.Error())
}
