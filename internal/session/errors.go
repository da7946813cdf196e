package session

import "errors"

// Error kinds. Callers classify failures with errors.Is against these.
var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrInvalidState    = errors.New("invalid state")
	ErrCancelled       = errors.New("cancelled")
)

// Specific failures, each wrapping one of the kinds above.
var (
	ErrSessionNotFound  = kind(ErrNotFound, "session not found")
	ErrProposalNotFound = kind(ErrNotFound, "proposal not found")
	ErrEmptyText        = kind(ErrInvalidArgument, "proposal text cannot be empty")
	ErrProposalPending  = kind(ErrInvalidState, "another proposal is still pending")
	ErrAlreadyDecided   = kind(ErrInvalidState, "proposal already decided")
)

type kindError struct {
	kind error
	msg  string
}

func kind(k error, msg string) error {
	return &kindError{kind: k, msg: msg}
}

func (e *kindError) Error() string { return e.msg }

func (e *kindError) Unwrap() error { return e.kind }
