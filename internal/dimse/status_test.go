package dimse

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifySuccessAndWarningRanges(t *testing.T) {
	assert.Equal(t, CategorySuccess, Classify(StatusSuccess))
	assert.Equal(t, CategoryWarning, Classify(StatusCoercionOfDataElements))
	assert.Equal(t, CategoryWarning, Classify(StatusElementsDiscarded))
}

func TestClassifyResourceAndProcessingFailuresAreRetryable(t *testing.T) {
	assert.True(t, Classify(StatusOutOfResourcesLow).Retryable())
	assert.True(t, Classify(StatusOutOfResourcesHigh).Retryable())
	assert.True(t, Classify(StatusProcessingFailure).Retryable())
}

func TestClassifyDatasetAndCannotUnderstandAreTerminal(t *testing.T) {
	assert.False(t, Classify(StatusDataSetDoesNotMatchLow).Retryable())
	assert.False(t, Classify(StatusCannotUnderstandHigh).Retryable())
}

func TestClassifyUnknownCodeFallsBackToUnknownCategory(t *testing.T) {
	assert.Equal(t, CategoryUnknown, Classify(StatusCode(0x1234)))
	assert.False(t, CategoryUnknown.Retryable())
}

func TestStatusToElementsIncludesErrorCommentWhenPresent(t *testing.T) {
	s := Status{Code: StatusCannotUnderstandLow, ErrorComment: "unsupported SOP class"}
	elems, err := s.ToElements()
	assert.NoError(t, err)
	assert.Len(t, elems, 2)

	ok := Success
	elems, err = ok.ToElements()
	assert.NoError(t, err)
	assert.Len(t, elems, 1)
}
