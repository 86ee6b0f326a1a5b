// Package hints labels errors that mean "this step was skipped" rather than
// "this step failed". A held target lock or a disabled retention policy are
// reported as hints so the runner can log and move on without failing the run.
//
// Consumers test for the label through a behavioural interface, so they never
// need to import the producer's sentinel errors.
package hints

import (
	"gitlab.com/tozd/go/errors"
)

type hintErr struct {
	err error
}

func (h *hintErr) Error() string {
	if h == nil || h.err == nil {
		return "unknown hint"
	}
	return h.err.Error()
}
func (h *hintErr) IsHint() bool  { return true }
func (h *hintErr) Unwrap() error { return h.err }

// New creates a hint from a message.
func New(msg string) error {
	return &hintErr{err: errors.Base(msg)}
}

// Wrap promotes an existing error to a hint. Wrap(nil) is nil.
func Wrap(err error) error {
	if err == nil {
		return nil
	}
	return &hintErr{err: err}
}

// IsHint reports whether any error in the chain is labelled as a hint.
func IsHint(err error) bool {
	var h interface{ IsHint() bool }
	return errors.As(err, &h) && h.IsHint()
}
