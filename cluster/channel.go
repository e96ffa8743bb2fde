package cluster

import "github.com/pkg/errors"

// ErrChannelClosed is returned when registering on a closed membership channel.
var ErrChannelClosed = errors.New("membership channel is closed")

// SubscriptionID identifies a registration with a membership channel.
type SubscriptionID uint64

// ServiceState is the set of live workers of a service at a point in time.
type ServiceState struct {
	Service string    `json:"service"`
	Workers []Address `json:"workers"`
}

// UpdateCallback is invoked with a full snapshot of the service membership
// whenever the observed worker set changes. It may be called from a goroutine
// not controlled by the subscriber.
type UpdateCallback func(state ServiceState)

// Channel delivers cluster membership changes to subscribers.
type Channel interface {
	// Register subscribes to membership updates of the service. The callback
	// is invoked once with the current state (if the service is known), and
	// again on every membership change afterwards.
	Register(serviceID string, callback UpdateCallback) (SubscriptionID, error)

	// Unregister removes a subscription. It is idempotent; unregistering an
	// unknown subscription is a no-op.
	Unregister(id SubscriptionID)

	// Close releases all subscriptions and underlying resources.
	Close() error
}
