package dimse

import "github.com/suyashkumar/dicom"

// StatusCode is a DIMSE service response code (DICOM PS3.7 Annex C).
// This is the canonical status vocabulary behind spec.md §4.5's status
// mapping table, adopted from the teacher's dimse.StatusCode rather than
// re-derived.
type StatusCode uint16

const (
	StatusSuccess StatusCode = 0x0000

	// Warning range: complete with warning, notify operator.
	StatusCoercionOfDataElements   StatusCode = 0xB000
	StatusDataSetDoesNotMatchWarn  StatusCode = 0xB006
	StatusElementsDiscarded        StatusCode = 0xB007

	// 0xA700-0xA7FF: resource failure, retry with backoff.
	StatusOutOfResourcesLow  StatusCode = 0xA700
	StatusOutOfResourcesHigh StatusCode = 0xA7FF

	// 0xA900-0xA9FF: dataset failure, terminal, no retry.
	StatusDataSetDoesNotMatchLow  StatusCode = 0xA900
	StatusDataSetDoesNotMatchHigh StatusCode = 0xA9FF

	// 0xC000-0xCFFF: cannot understand, terminal, no retry.
	StatusCannotUnderstandLow  StatusCode = 0xC000
	StatusCannotUnderstandHigh StatusCode = 0xCFFF

	// Processing failure: retry with backoff.
	StatusProcessingFailure StatusCode = 0x0110

	StatusPending StatusCode = 0xFF00
	StatusCancel  StatusCode = 0xFE00
)

// Category classifies a StatusCode per spec.md §4.5's DIMSE status
// mapping table.
type Category int

const (
	CategorySuccess Category = iota
	CategoryWarning
	CategoryResourceFailure
	CategoryDatasetFailure
	CategoryCannotUnderstand
	CategoryProcessingFailure
	CategoryUnknown
)

// Classify maps a raw status code to its category.
func Classify(code StatusCode) Category {
	switch {
	case code == StatusSuccess:
		return CategorySuccess
	case code == StatusCoercionOfDataElements || code == StatusDataSetDoesNotMatchWarn || code == StatusElementsDiscarded:
		return CategoryWarning
	case code >= StatusOutOfResourcesLow && code <= StatusOutOfResourcesHigh:
		return CategoryResourceFailure
	case code >= StatusDataSetDoesNotMatchLow && code <= StatusDataSetDoesNotMatchHigh:
		return CategoryDatasetFailure
	case code >= StatusCannotUnderstandLow && code <= StatusCannotUnderstandHigh:
		return CategoryCannotUnderstand
	case code == StatusProcessingFailure:
		return CategoryProcessingFailure
	default:
		return CategoryUnknown
	}
}

// Retryable reports whether Category warrants a Retry Queue re-attempt
// with backoff, per the §4.5 status mapping table.
func (c Category) Retryable() bool {
	return c == CategoryResourceFailure || c == CategoryProcessingFailure
}

// Status is a DIMSE response's status element plus optional error
// comment payload (PS3.7 Annex C, (0000,0902)).
type Status struct {
	Code         StatusCode
	ErrorComment string
}

// Success is a pre-built OK status.
var Success = Status{Code: StatusSuccess}

// ToElements renders the status as command-set elements, per the
// teacher's Status.ToElements.
func (s *Status) ToElements() ([]*dicom.Element, error) {
	statusElem, err := NewElement(StatusTag, uint16(s.Code))
	if err != nil {
		return nil, err
	}
	elems := []*dicom.Element{statusElem}
	if s.ErrorComment != "" {
		commentElem, err := NewElement(ErrorComment, s.ErrorComment)
		if err != nil {
			return nil, err
		}
		elems = append(elems, commentElem)
	}
	return elems, nil
}
