package types

import "errors"

var (
	// ErrSourceUnavailable is returned when the backing store is not attached or closed
	ErrSourceUnavailable = errors.New("candidate source unavailable")
	// ErrInactive is returned by reads when no live result handle exists
	ErrInactive = errors.New("no active result set")

	// Candidate validation errors
	ErrEmptyCandidate = errors.New("candidate has no name")
	ErrMixedVariant   = errors.New("hashtag candidate carries user fields")
	ErrUnknownVariant = errors.New("unknown candidate variant")
	ErrRowOutOfRange  = errors.New("row index out of range")
)
