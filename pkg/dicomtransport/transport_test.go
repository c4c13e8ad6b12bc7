package dicomtransport

import (
	"context"
	"errors"
	"testing"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"

	"github.com/clinicore/xray-console/pkg/config"
	"github.com/clinicore/xray-console/pkg/errkind"
	"github.com/clinicore/xray-console/pkg/model"
)

func testPoolOptions() config.PoolOptions {
	return config.PoolOptions{MaxSize: 1, AcquisitionTimeoutMS: 1000, IdleEvictionMS: 1000}
}

func TestRetryableErrorClassifiesCircuitBreakerTrips(t *testing.T) {
	assert.True(t, retryableError(gobreaker.ErrOpenState))
	assert.True(t, retryableError(gobreaker.ErrTooManyRequests))
}

func TestRetryableErrorClassifiesErrkindKinds(t *testing.T) {
	assert.True(t, retryableError(errkind.New(errkind.PoolExhausted, "pool exhausted")))
	assert.True(t, retryableError(errkind.New(errkind.CommitTimeout, "commit timeout")))
	assert.False(t, retryableError(errkind.New(errkind.TransferSyntaxConflict, "conflict")))
	assert.False(t, retryableError(errkind.New(errkind.AssociationRejected, "rejected")))
}

func TestRetryableErrorDefaultsToRetryableForUnclassifiedErrors(t *testing.T) {
	assert.True(t, retryableError(errors.New("some transient network error")))
	assert.False(t, retryableError(nil))
}

// fakeTranscoder records the call it received rather than performing any
// real pixel re-encoding, the same stand-in role hardware.Simulator plays
// for the detector/generator/AEC sockets.
type fakeTranscoder struct {
	called bool
	target string
}

func (f *fakeTranscoder) Transcode(_ context.Context, ds model.DatasetRef, target string) (model.DatasetRef, error) {
	f.called = true
	f.target = target
	ds.TransferSyntax = target
	return ds, nil
}

func TestSetTranscoderInstallsCollaborator(t *testing.T) {
	tr := New("CONSOLE", testPoolOptions(), nil, nil)
	assert.Nil(t, tr.transcoder)
	fake := &fakeTranscoder{}
	tr.SetTranscoder(fake)
	assert.Equal(t, fake, tr.transcoder)
}

func TestRetrySenderRejectsUnknownOperation(t *testing.T) {
	tr := New("CONSOLE", testPoolOptions(), nil, nil)
	sender := NewRetrySender(tr)
	item := model.DicomTransmission{
		ID:        "tx-1",
		Operation: model.DimseOperation("Unknown"),
	}
	_, err := sender.Send(context.Background(), item)
	assert.Error(t, err)
}
