package cluster

import (
	"sync"

	"go.uber.org/atomic"
)

// LocalChannel is an in-process membership channel. Worker sets are fed in
// directly with SetWorkers. Used for tests and single-process deployments.
type LocalChannel struct {
	workers map[string][]Address
	subs    map[SubscriptionID]localSubscription
	mu      sync.Mutex

	nextID *atomic.Uint64
	closed bool
}

type localSubscription struct {
	service  string
	callback UpdateCallback
}

func NewLocalChannel() *LocalChannel {
	return &LocalChannel{
		workers: make(map[string][]Address),
		subs:    make(map[SubscriptionID]localSubscription),
		nextID:  atomic.NewUint64(0),
	}
}

// Register subscribes to membership updates of the service. If the service
// already has a known worker set, the callback is invoked synchronously with
// it before Register returns.
func (lc *LocalChannel) Register(serviceID string, callback UpdateCallback) (SubscriptionID, error) {
	lc.mu.Lock()
	if lc.closed {
		lc.mu.Unlock()
		return 0, ErrChannelClosed
	}
	id := SubscriptionID(lc.nextID.Inc())
	lc.subs[id] = localSubscription{service: serviceID, callback: callback}
	workers, known := lc.workers[serviceID]
	lc.mu.Unlock()

	if known {
		callback(ServiceState{Service: serviceID, Workers: workers})
	}
	return id, nil
}

func (lc *LocalChannel) Unregister(id SubscriptionID) {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	delete(lc.subs, id)
}

// SetWorkers replaces the worker set of the service and notifies subscribers.
// Callbacks run synchronously on the caller's goroutine.
func (lc *LocalChannel) SetWorkers(serviceID string, workers []Address) {
	snapshot := make([]Address, len(workers))
	copy(snapshot, workers)

	lc.mu.Lock()
	if lc.closed {
		lc.mu.Unlock()
		return
	}
	lc.workers[serviceID] = snapshot

	var callbacks []UpdateCallback
	for _, sub := range lc.subs {
		if sub.service == serviceID {
			callbacks = append(callbacks, sub.callback)
		}
	}
	lc.mu.Unlock()

	state := ServiceState{Service: serviceID, Workers: snapshot}
	for _, cb := range callbacks {
		cb(state)
	}
}

func (lc *LocalChannel) Close() error {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	lc.closed = true
	lc.subs = make(map[SubscriptionID]localSubscription)
	return nil
}
