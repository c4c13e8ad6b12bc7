package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validOptions() Options {
	return Options{
		UIDRoot:      "1.2.840.99999",
		DeviceSerial: "DEV01",
		PACSDestinations: []PACSDestination{
			{AETitle: "PACS1", Host: "pacs.example.org", Port: 104},
		},
		WorklistSCP:         AEEndpoint{AETitle: "WL1", Host: "wl.example.org", Port: 104},
		MPPSSCP:             AEEndpoint{AETitle: "MPPS1", Host: "mpps.example.org", Port: 104},
		Pool:                PoolOptions{MaxSize: 4, AcquisitionTimeoutMS: 30_000, IdleEvictionMS: 60_000},
		Retry:               RetryOptions{InitialMS: 30_000, Multiplier: 2.0, MaxMS: 3_600_000, MaxAttempts: 5},
		CommitmentTimeoutMS: 300_000,
		DoseLimits:          DoseLimitOptions{StudyLimit: 500, DailyLimit: 2000, WarnPct: 80},
		SafetyLimits:        SafetyLimitOptions{MaxKVp: 150, MaxMA: 500, MaxMS: 1000},
	}
}

func TestLoadAcceptsFullyPopulatedOptions(t *testing.T) {
	raw := map[string]any{
		"uid_root": "1.2.840.99999", "device_serial": "DEV01", "pacs_destinations": nil,
		"worklist_scp": nil, "mpps_scp": nil, "pool": nil, "retry": nil,
		"commitment_timeout_ms": 300_000, "dose_limits": nil, "safety_limits": nil,
	}
	opts, err := Load(raw, validOptions())
	require.NoError(t, err)
	assert.Equal(t, "1.2.840.99999", opts.UIDRoot)
}

func TestLoadRejectsUnrecognizedTopLevelKey(t *testing.T) {
	raw := map[string]any{"uid_root": "1.2.840.99999", "unknown_field": true}
	_, err := Load(raw, validOptions())
	require.Error(t, err)
}

func TestLoadRejectsMissingRequiredFields(t *testing.T) {
	opts := validOptions()
	opts.UIDRoot = ""
	_, err := Load(map[string]any{}, opts)
	require.Error(t, err)
}

func TestLoadRejectsTooManyPACSDestinations(t *testing.T) {
	opts := validOptions()
	dests := make([]PACSDestination, 9)
	for i := range dests {
		dests[i] = PACSDestination{AETitle: "PACS", Host: "h", Port: 104}
	}
	opts.PACSDestinations = dests
	_, err := Load(map[string]any{}, opts)
	require.Error(t, err)
}

func TestDefaultsMatchDocumentedFallbacks(t *testing.T) {
	d := Defaults()
	assert.Equal(t, 4, d.Pool.MaxSize)
	assert.Equal(t, 5, d.Retry.MaxAttempts)
	assert.Equal(t, int64(300_000), d.CommitmentTimeoutMS)
}
