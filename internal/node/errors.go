package node

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrUnreachable indicates the node endpoint could not be reached at all.
	ErrUnreachable = errors.New("node unreachable")

	// ErrPrecondition indicates the node rejected the request before doing any
	// work, typically because of a missing or invalid storage allocation.
	ErrPrecondition = errors.New("precondition failed")
)

// StatusError is returned when the node answers with a non-2xx status code.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("node returned status %d", e.Code)
	}
	return fmt.Sprintf("node returned status %d: %s", e.Code, e.Message)
}

// Is maps payment-required and bad-request responses from the payload
// endpoint onto ErrPrecondition so callers can match with errors.Is.
func (e *StatusError) Is(target error) bool {
	if target == ErrPrecondition {
		return e.Code == http.StatusPaymentRequired || e.Code == http.StatusBadRequest
	}
	return false
}
