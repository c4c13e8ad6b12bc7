// Package config binds and validates the recognized options from
// spec.md §6. The loader that turns a file/environment into the raw
// map below is an external collaborator (spec.md §1); this package only
// validates and refuses unknown keys.
package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/clinicore/xray-console/pkg/errkind"
)

// Options is the full recognized configuration surface. Json tags match
// recognizedKeys below so a config file using the spec's snake_case
// vocabulary unmarshals directly into this struct.
type Options struct {
	UIDRoot             string             `json:"uid_root" validate:"required"`
	DeviceSerial        string             `json:"device_serial" validate:"required"`
	PACSDestinations    []PACSDestination  `json:"pacs_destinations" validate:"required,min=1,max=8,dive"`
	WorklistSCP         AEEndpoint         `json:"worklist_scp" validate:"required"`
	MPPSSCP             AEEndpoint         `json:"mpps_scp" validate:"required"`
	TLS                 TLSOptions         `json:"tls"`
	Pool                PoolOptions        `json:"pool"`
	Retry               RetryOptions       `json:"retry"`
	CommitmentTimeoutMS int64              `json:"commitment_timeout_ms" validate:"required,gt=0"`
	DoseLimits          DoseLimitOptions   `json:"dose_limits" validate:"required"`
	SafetyLimits        SafetyLimitOptions `json:"safety_limits" validate:"required"`
}

type PACSDestination struct {
	AETitle string `json:"ae_title" validate:"required"`
	Host    string `json:"host" validate:"required"`
	Port    int    `json:"port" validate:"required,gt=0,lte=65535"`
}

type AEEndpoint struct {
	AETitle string `json:"ae_title" validate:"required"`
	Host    string `json:"host" validate:"required"`
	Port    int    `json:"port" validate:"required,gt=0,lte=65535"`
}

type TLSOptions struct {
	CAFile         string `json:"ca_file"`
	ClientCertFile string `json:"client_cert_file"`
	ClientKeyFile  string `json:"client_key_file"`
	MinVersion     string `json:"min_version" validate:"omitempty,oneof=1.2 1.3"`
}

type PoolOptions struct {
	MaxSize              int   `json:"max_size" validate:"required,gt=0"`
	AcquisitionTimeoutMS int64 `json:"acquisition_timeout_ms" validate:"required,gt=0"`
	IdleEvictionMS       int64 `json:"idle_eviction_ms" validate:"required,gt=0"`
}

type RetryOptions struct {
	InitialMS   int64   `json:"initial_ms" validate:"required,gt=0"`
	Multiplier  float64 `json:"multiplier" validate:"required,gt=1"`
	MaxMS       int64   `json:"max_ms" validate:"required,gt=0"`
	MaxAttempts int     `json:"max_attempts" validate:"required,gt=0"`
}

type DoseLimitOptions struct {
	StudyLimit float64 `json:"study_limit" validate:"required,gt=0"`
	DailyLimit float64 `json:"daily_limit" validate:"required,gt=0"`
	WarnPct    float64 `json:"warn_pct" validate:"required,gt=0,lte=100"`
}

type SafetyLimitOptions struct {
	MaxKVp float64 `json:"max_kvp" validate:"required,gt=0"`
	MaxMA  float64 `json:"max_ma" validate:"required,gt=0"`
	MaxMS  float64 `json:"max_ms" validate:"required,gt=0"`
}

// recognizedKeys is the flat key set from spec.md §6, used to reject
// unknown top-level keys before the populated struct is validated.
var recognizedKeys = map[string]bool{
	"uid_root": true, "device_serial": true, "pacs_destinations": true,
	"worklist_scp": true, "mpps_scp": true, "tls": true, "pool": true,
	"retry": true, "commitment_timeout_ms": true, "dose_limits": true,
	"safety_limits": true,
}

// Defaults mirror spec.md §4.4's backoff defaults and §4.5's pool/
// commitment defaults.
func Defaults() Options {
	return Options{
		Pool: PoolOptions{
			MaxSize:              4,
			AcquisitionTimeoutMS: 30_000,
			IdleEvictionMS:       60_000,
		},
		Retry: RetryOptions{
			InitialMS:   30_000,
			Multiplier:  2.0,
			MaxMS:       3_600_000,
			MaxAttempts: 5,
		},
		CommitmentTimeoutMS: 300_000,
	}
}

var validate = validator.New()

// Load validates raw (a pre-parsed configuration map, produced by an
// external loader per spec.md §1) against recognizedKeys, then
// validates the populated Options struct. Any unknown key or failed
// validation returns a ConfigurationInvalid error.
func Load(raw map[string]any, opts Options) (Options, error) {
	for key := range raw {
		if !recognizedKeys[key] {
			return Options{}, errkind.New(errkind.ConfigurationInvalid, fmt.Sprintf("unrecognized configuration key %q", key))
		}
	}
	if err := validate.Struct(opts); err != nil {
		return Options{}, errkind.Wrap(errkind.ConfigurationInvalid, "options failed validation", err)
	}
	return opts, nil
}
