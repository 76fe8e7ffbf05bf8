package verify

import (
	"errors"
	"fmt"
)

// Rejection reasons.
const (
	ReasonNoSentinel      = "no-sentinel"
	ReasonRetrievalFailed = "retrieval-failed"
	ReasonInvalidURL      = "invalid-url"
)

var (
	// ErrNoSentinel matches rejections where content was retrieved but was
	// not a manifest.
	ErrNoSentinel = errors.New("content has no manifest sentinel")

	// ErrRetrievalFailed matches rejections where no retrieval path produced
	// a successful response.
	ErrRetrievalFailed = errors.New("every retrieval path failed")

	// ErrInvalidURL matches rejections of URLs that cannot be retrieved at all.
	ErrInvalidURL = errors.New("candidate URL is not an absolute http(s) URL")
)

// RejectionError reports why a candidate did not verify.
type RejectionError struct {
	URL    string
	Reason string

	// Cause is the last retrieval error, if any.
	Cause error
}

func (e *RejectionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("rejected %s: %s: %v", e.URL, e.Reason, e.Cause)
	}
	return fmt.Sprintf("rejected %s: %s", e.URL, e.Reason)
}

// Is matches the sentinel for the rejection reason.
func (e *RejectionError) Is(target error) bool {
	switch e.Reason {
	case ReasonNoSentinel:
		return target == ErrNoSentinel
	case ReasonRetrievalFailed:
		return target == ErrRetrievalFailed
	case ReasonInvalidURL:
		return target == ErrInvalidURL
	}
	return false
}

func (e *RejectionError) Unwrap() error {
	return e.Cause
}
