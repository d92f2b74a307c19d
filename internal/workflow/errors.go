package workflow

import "errors"

var (
	ErrUnauthenticated    = errors.New("unauthenticated")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForgedRequest      = errors.New("forged request")
	ErrMalformedInput     = errors.New("malformed input")
	ErrInvalidProofFile   = errors.New("invalid proof file")
	ErrForbidden          = errors.New("forbidden")
	ErrNotFound           = errors.New("not found")
	ErrAlreadyDecided     = errors.New("payment already decided")
	ErrAttendeeNotPayable = errors.New("attendee is not awaiting payment")
	ErrStorage            = errors.New("storage failure")
	ErrPersistence        = errors.New("persistence failure")
)
