package domain

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrForbidden        = errors.New("forbidden")
	ErrValidation       = errors.New("validation error")
	ErrPayoutResolution = errors.New("payout resolution failed")
	ErrPaymentExecution = errors.New("payment execution failed")

	// ErrConcurrencyConflict indicates that the underlying storage rejected an
	// update because the entity changed since it was read.
	ErrConcurrencyConflict = errors.New("concurrency conflict")
)

// Error is a domain failure with a message safe to show to API callers.
// It unwraps to one of the sentinel kinds above.
type Error struct {
	Kind    error
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

func notFound(msg string) error   { return &Error{Kind: ErrNotFound, Message: msg} }
func forbidden(msg string) error  { return &Error{Kind: ErrForbidden, Message: msg} }
func validation(msg string) error { return &Error{Kind: ErrValidation, Message: msg} }

// Message returns the caller-facing message of err, falling back to err.Error().
func Message(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Message
	}
	return err.Error()
}
