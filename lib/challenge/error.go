package challenge

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrMissingField     = errors.New("challenge: missing field")
	ErrInvalidFormat    = errors.New("challenge: field has invalid format")
	ErrGenerate         = errors.New("challenge: can't generate puzzle")
	ErrUnknownGenerator = errors.New("challenge: unknown generator")
	ErrBadConfig        = errors.New("challenge: generator configuration is invalid")
)

// NewError creates an Error for a client-caused failure.
func NewError(verb, publicReason string, privateReason error) *Error {
	return &Error{
		Verb:          verb,
		PublicReason:  publicReason,
		PrivateReason: privateReason,
		StatusCode:    http.StatusBadRequest,
	}
}

// NewInternalError creates an Error for a server-side failure.
func NewInternalError(verb, publicReason string, privateReason error) *Error {
	return &Error{
		Verb:          verb,
		PublicReason:  publicReason,
		PrivateReason: privateReason,
		StatusCode:    http.StatusInternalServerError,
	}
}

// Error pairs the detailed cause of a failure with the localization message
// ID that is safe to show the caller.
type Error struct {
	PrivateReason error
	Verb          string
	PublicReason  string
	StatusCode    int
}

func (e *Error) Error() string {
	return fmt.Sprintf("challenge: error when processing challenge: %s: %v", e.Verb, e.PrivateReason)
}

func (e *Error) Unwrap() error {
	return e.PrivateReason
}
