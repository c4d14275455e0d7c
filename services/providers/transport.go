package providers

import (
	"errors"
	"fmt"
)

// TransportError is a non-2xx response from an external provider API. It is
// always surfaced to the caller, never silently retried.
type TransportError struct {
	Provider string
	Status   int
	Body     string
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Provider, e.Status, e.Body)
}

// ErrInitialSyncIncomplete is returned when a provider reports an account
// whose initial holdings or transactions sync has not finished. The caller
// must reject the event rather than ingest partial data.
var ErrInitialSyncIncomplete = errors.New("initial sync incomplete")
