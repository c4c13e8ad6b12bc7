package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestHashCoreRedactsPHIFieldsBeforeWrite(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	logger := zap.New(&hashCore{core})

	logger.Info("exposure acquired",
		PatientField("patient_id", "12345"),
		PatientField("patient_name", "Doe^Jane"),
		zap.String("accession_number", "ACC-1"),
	)

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	fields := entry.ContextMap()

	assert.NotEqual(t, "12345", fields["patient_id"])
	assert.Equal(t, HashIdentifier("12345"), fields["patient_id"])
	assert.NotEqual(t, "Doe^Jane", fields["patient_name"])
	assert.Equal(t, "ACC-1", fields["accession_number"], "non-PHI fields must pass through unredacted")
}

func TestHashCoreRedactsFieldsAddedViaWith(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	logger := zap.New(&hashCore{core}).With(PatientField("patient_id", "98765"))

	logger.Info("study opened")

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, HashIdentifier("98765"), fields["patient_id"])
}

func TestHashIdentifierIsDeterministicAndTruncated(t *testing.T) {
	h1 := HashIdentifier("patient-123")
	h2 := HashIdentifier("patient-123")
	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 12)
	assert.Equal(t, "", HashIdentifier(""))
	assert.NotEqual(t, HashIdentifier("a"), HashIdentifier("b"))
}
