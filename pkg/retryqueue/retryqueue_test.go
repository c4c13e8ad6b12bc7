package retryqueue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/clinicore/xray-console/pkg/config"
	"github.com/clinicore/xray-console/pkg/eventbus"
	"github.com/clinicore/xray-console/pkg/model"
)

type fakeSender struct {
	results []result
	calls   int
}

type result struct {
	retryable bool
	err       error
}

func (f *fakeSender) Send(ctx context.Context, item model.DicomTransmission) (bool, error) {
	r := f.results[f.calls]
	f.calls++
	return r.retryable, r.err
}

func testOpts() config.RetryOptions {
	return config.RetryOptions{InitialMS: 10, Multiplier: 2, MaxMS: 1000, MaxAttempts: 3}
}

func TestAttemptMarksSucceededAndPublishesOnce(t *testing.T) {
	sender := &fakeSender{results: []result{{false, nil}}}
	bus := eventbus.New()
	sub := bus.Subscribe()
	defer sub.Close()

	q, err := New(NewInMemoryStore(), sender, bus, testOpts(), zap.NewNop())
	require.NoError(t, err)

	item := model.DicomTransmission{ID: "tx-1"}
	require.NoError(t, q.Enqueue(item))
	require.NoError(t, q.Attempt(context.Background(), item))

	stored, ok, err := q.store.Load("tx-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, model.TxSucceeded, stored.Status)

	select {
	case e := <-sub.C():
		evt := e.Payload.(TransmissionEvent)
		assert.Equal(t, model.TxSucceeded, evt.Status)
	case <-time.After(time.Second):
		t.Fatal("expected a TransmissionStatusChanged event")
	}
}

func TestAttemptRetriesRetryableFailuresThenFailsAtMaxAttempts(t *testing.T) {
	failErr := errors.New("destination unreachable")
	sender := &fakeSender{results: []result{
		{true, failErr}, {true, failErr}, {true, failErr},
	}}
	bus := eventbus.New()
	q, err := New(NewInMemoryStore(), sender, bus, testOpts(), zap.NewNop())
	require.NoError(t, err)

	item := model.DicomTransmission{ID: "tx-2"}
	require.NoError(t, q.Enqueue(item))

	require.NoError(t, q.Attempt(context.Background(), item))
	stored, _, _ := q.store.Load("tx-2")
	assert.Equal(t, model.TxRetrying, stored.Status)
	assert.Equal(t, 1, stored.AttemptCount)
	assert.True(t, stored.NextRetryAt.After(stored.LastAttemptAt))

	require.NoError(t, q.Attempt(context.Background(), stored))
	stored, _, _ = q.store.Load("tx-2")
	assert.Equal(t, model.TxRetrying, stored.Status)

	require.NoError(t, q.Attempt(context.Background(), stored))
	stored, _, _ = q.store.Load("tx-2")
	assert.Equal(t, model.TxFailed, stored.Status)
	assert.Equal(t, failErr.Error(), stored.FailureReason)
}

func TestAttemptFailsImmediatelyOnNonRetryableError(t *testing.T) {
	sender := &fakeSender{results: []result{{false, errors.New("rejected: invalid SOP class")}}}
	bus := eventbus.New()
	q, err := New(NewInMemoryStore(), sender, bus, testOpts(), zap.NewNop())
	require.NoError(t, err)

	item := model.DicomTransmission{ID: "tx-3"}
	require.NoError(t, q.Enqueue(item))
	require.NoError(t, q.Attempt(context.Background(), item))

	stored, _, _ := q.store.Load("tx-3")
	assert.Equal(t, model.TxFailed, stored.Status)
	assert.Equal(t, 1, stored.AttemptCount)
}

func TestNewRewindsInFlightItemsToRetryingOnRecovery(t *testing.T) {
	store := NewInMemoryStore()
	require.NoError(t, store.Save(model.DicomTransmission{ID: "tx-crash", Status: model.TxInFlight}))

	q, err := New(store, &fakeSender{}, eventbus.New(), testOpts(), zap.NewNop())
	require.NoError(t, err)

	recovered, ok, err := q.store.Load("tx-crash")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, model.TxRetrying, recovered.Status)
}

func TestDueReturnsPendingAndElapsedRetryingItems(t *testing.T) {
	store := NewInMemoryStore()
	now := time.Now()
	require.NoError(t, store.Save(model.DicomTransmission{ID: "pending", Status: model.TxPending}))
	require.NoError(t, store.Save(model.DicomTransmission{ID: "retrying-due", Status: model.TxRetrying, NextRetryAt: now.Add(-time.Minute)}))
	require.NoError(t, store.Save(model.DicomTransmission{ID: "retrying-not-due", Status: model.TxRetrying, NextRetryAt: now.Add(time.Hour)}))
	require.NoError(t, store.Save(model.DicomTransmission{ID: "succeeded", Status: model.TxSucceeded}))

	q, err := New(store, &fakeSender{}, eventbus.New(), testOpts(), zap.NewNop())
	require.NoError(t, err)

	due, err := q.Due(now)
	require.NoError(t, err)

	ids := make(map[string]bool)
	for _, item := range due {
		ids[item.ID] = true
	}
	assert.True(t, ids["pending"])
	assert.True(t, ids["retrying-due"])
	assert.False(t, ids["retrying-not-due"])
	assert.False(t, ids["succeeded"])
}
