// Package logging wraps go.uber.org/zap with a PHI-redaction core.
// The teacher library funnels every log line through a single
// dicomlog.Vprintf choke point; this package keeps that one-entrypoint
// discipline but backs it with structured zap fields so field values —
// not just call sites — can be redacted before they reach a sink.
package logging

import (
	"crypto/sha256"
	"encoding/hex"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// phiFields is the set of zap field keys that must never reach a log
// sink in clear text, per spec.md §4.5's PHI discipline.
var phiFields = map[string]bool{
	"patient_name": true,
	"patient_id":   true,
	"dob":          true,
	"sex":          true,
}

// hashCore wraps a zapcore.Core, rewriting PHI-tagged fields to a
// truncated one-way hash before delegating to the wrapped core.
type hashCore struct {
	zapcore.Core
}

func (c *hashCore) With(fields []zapcore.Field) zapcore.Core {
	return &hashCore{c.Core.With(redactFields(fields))}
}

func (c *hashCore) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	return c.Core.Write(entry, redactFields(fields))
}

func (c *hashCore) Check(entry zapcore.Entry, checked *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Core.Enabled(entry.Level) {
		return checked.AddCore(entry, c)
	}
	return checked
}

func redactFields(fields []zapcore.Field) []zapcore.Field {
	out := make([]zapcore.Field, len(fields))
	for i, f := range fields {
		if phiFields[f.Key] && f.Type == zapcore.StringType {
			out[i] = zap.String(f.Key, HashIdentifier(f.String))
			continue
		}
		out[i] = f
	}
	return out
}

// HashIdentifier truncates a one-way SHA-256 hash of value to 12 hex
// characters, for correlating a patient identifier in logs without
// disclosing it (spec.md §4.5).
func HashIdentifier(value string) string {
	if value == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])[:12]
}

// New builds a production zap.Logger with the PHI-redaction core
// installed, at the given name for sub-logger tagging.
func New(name string) (*zap.Logger, error) {
	base, err := zap.NewProduction()
	if err != nil {
		return nil, err
	}
	wrapped := base.WithOptions(zap.WrapCore(func(core zapcore.Core) zapcore.Core {
		return &hashCore{core}
	}))
	return wrapped.Named(name), nil
}

// PatientField returns a zap.Field for a PHI value that will be
// redacted by the hashCore. Call sites still name the field
// "patient_id" etc. so the redaction list stays authoritative — the
// field value itself need not be pre-hashed by the caller.
func PatientField(key, value string) zap.Field {
	return zap.String(key, value)
}
