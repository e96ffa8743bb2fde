package localsched

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrNoAvailableWorkers is returned by GetHosts/GetHost when the worker
	// set is empty: no membership update has ever arrived, the last update
	// drained the cluster, or the fixed worker list was empty.
	ErrNoAvailableWorkers = errors.New("no available workers")

	// ErrSubscribeFailed is returned by Init when registration with the
	// membership channel fails. The scheduler stays unusable until a
	// successful Init. The channel's underlying error remains reachable
	// through errors.Is/errors.As.
	ErrSubscribeFailed = errors.New("failed to subscribe to membership updates")
)

// subscribeError matches ErrSubscribeFailed while keeping the channel's
// failure in the unwrap chain.
type subscribeError struct {
	serviceID string
	cause     error
}

func (e *subscribeError) Error() string {
	return fmt.Sprintf("%s: service %s: %v", ErrSubscribeFailed, e.serviceID, e.cause)
}

func (e *subscribeError) Unwrap() error { return e.cause }

func (e *subscribeError) Is(target error) bool { return target == ErrSubscribeFailed }
