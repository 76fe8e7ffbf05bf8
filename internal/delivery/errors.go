package delivery

import (
	"errors"
	"fmt"
)

var (
	// ErrNonSuccessStatus is matched by every StatusError.
	ErrNonSuccessStatus = errors.New("sink returned a non-success status")

	// ErrNothingToSend is returned when the payload has no playlist URL.
	ErrNothingToSend = errors.New("payload has no playlist URL")
)

// maxErrorBody bounds how much of a failed response is kept.
const maxErrorBody = 1024

// StatusError is returned when the sink answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("sink returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("sink returned status %d: %s", e.StatusCode, e.Body)
}

func (e *StatusError) Unwrap() error {
	return ErrNonSuccessStatus
}
