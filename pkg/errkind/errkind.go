// Package errkind defines the error-kind vocabulary from spec.md §7 as
// typed sentinels, so callers compare with errors.Is/errors.As instead
// of string matching, and every returned error can be wrapped with
// fmt.Errorf("...: %w", err) in the teacher's style.
package errkind

import "fmt"

// Kind is one of the named error kinds from the error handling design.
type Kind string

const (
	GuardFailure        Kind = "GuardFailure"
	JournalUnavailable  Kind = "JournalUnavailable"
	HardwareFault       Kind = "HardwareFault"
	InterlockLoss       Kind = "InterlockLoss"
	AssociationRejected Kind = "AssociationRejected"
	TransferSyntaxConflict Kind = "TransferSyntaxConflict"
	CommitTimeout       Kind = "CommitTimeout"
	DoseLimitExceeded   Kind = "DoseLimitExceeded"
	ConfigurationInvalid Kind = "ConfigurationInvalid"
	PoolExhausted       Kind = "PoolExhausted"
)

// Error wraps a Kind with a human-readable detail and an optional
// underlying cause, satisfying the standard errors.Unwrap protocol.
type Error struct {
	Kind   Kind
	Detail string
	Cause  error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Detail, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is lets errors.Is(err, errkind.Sentinel(errkind.GuardFailure)) work by
// comparing Kind against a target *Error with the same Kind and no
// Detail/Cause requirement. Targets that are not an *Error never match.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// New constructs an *Error of the given kind.
func New(kind Kind, detail string) *Error {
	return &Error{Kind: kind, Detail: detail}
}

// Wrap constructs an *Error of the given kind, chaining cause.
func Wrap(kind Kind, detail string, cause error) *Error {
	return &Error{Kind: kind, Detail: detail, Cause: cause}
}

// Sentinel is a zero-detail *Error usable as an errors.Is comparison
// target, e.g. errors.Is(err, errkind.Sentinel(errkind.GuardFailure)).
func Sentinel(kind Kind) *Error {
	return &Error{Kind: kind}
}
