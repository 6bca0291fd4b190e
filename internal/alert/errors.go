package alert

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by Store implementations.
var (
	ErrRaceNotFound       = errors.New("race not found")
	ErrSubscriberNotFound = errors.New("subscriber not found")
	ErrUnknownStatus      = errors.New("unknown status")
)

// FetchError wraps any failure to retrieve a race page (network, timeout,
// navigation). The orchestrator recovers from it by marking the race unknown.
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// StoreError wraps durable-store failures. Callers must treat it as
// retryable and assume no state changed.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }
