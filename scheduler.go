// Package localsched assigns data locations to workers of a distributed
// data-processing cluster, preferring workers co-resident with the data and
// falling back to a round-robin choice among all known workers.
package localsched

import (
	"sort"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/dataloci/localsched/cluster"
)

// Scheduler maps data locations to the workers that should process them.
//
// The worker set is either fixed (NewStatic) or maintained from a membership
// channel (New). All methods are safe for concurrent use.
type Scheduler interface {
	// GetHosts returns one worker per data location, same length and order as
	// the input. A location whose host has co-resident workers gets one of
	// them, cycling through the group on repeated requests; any other location
	// is assigned round-robin across all known worker hosts. Returns
	// ErrNoAvailableWorkers if the worker set is empty and the input is not.
	//
	// Round-robin state is reset whenever membership changes.
	GetHosts(dataLocations []cluster.Address) ([]cluster.Address, error)

	// GetHost is a single-location shorthand for GetHosts.
	GetHost(dataLocation cluster.Address) (cluster.Address, error)

	// HasLocalHost reports whether any known worker runs on the location's
	// host. It does not advance rotation state.
	HasLocalHost(dataLocation cluster.Address) bool

	// GetAllKnownHosts returns every worker address currently known.
	GetAllKnownHosts() []cluster.Address

	// Init builds the initial worker set: it subscribes to the membership
	// channel (dynamic mode) or loads the fixed worker list (static mode).
	Init() error

	// Close unsubscribes from the membership channel. Idempotent; a no-op in
	// static mode.
	Close()
}

type localityScheduler struct {
	// hostMap groups workers by host. Keys must be literal IP addresses, not
	// hostnames, since they are compared against data location hosts verbatim.
	hostMap map[string][]cluster.Address

	// hostKeys holds hostMap keys in sorted order; nextNonlocal indexes into
	// it for round-robin assignment of locations with no local worker.
	hostKeys     []string
	nextNonlocal int

	// mu guards hostMap, hostKeys, nextNonlocal and the counters. Membership
	// rebuilds arrive asynchronously with respect to assignment calls.
	mu sync.Mutex

	channel   cluster.Channel
	serviceID string
	subID     cluster.SubscriptionID

	staticWorkers []cluster.Address

	metrics     *Metrics
	initialized bool
	subscribed  bool
	closed      bool
}

// New creates a Scheduler whose worker set follows membership updates of the
// service on the channel. A nil metrics is allowed and disables reporting.
func New(channel cluster.Channel, serviceID string, metrics *Metrics) Scheduler {
	return &localityScheduler{
		hostMap:   make(map[string][]cluster.Address),
		channel:   channel,
		serviceID: serviceID,
		metrics:   metrics,
	}
}

// NewStatic creates a Scheduler with a fixed worker set which never changes
// after Init. A nil metrics is allowed and disables reporting.
func NewStatic(workers []cluster.Address, metrics *Metrics) Scheduler {
	return &localityScheduler{
		hostMap:       make(map[string][]cluster.Address),
		staticWorkers: workers,
		metrics:       metrics,
	}
}

func (s *localityScheduler) Init() error {
	if s.channel == nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.rebuild(s.staticWorkers)
		return nil
	}

	// the channel may deliver the initial membership synchronously, so the
	// lock must not be held across Register.
	subID, err := s.channel.Register(s.serviceID, s.updateMembership)
	if err != nil {
		return &subscribeError{serviceID: s.serviceID, cause: err}
	}

	s.mu.Lock()
	s.subID = subID
	s.subscribed = true
	s.mu.Unlock()
	return nil
}

func (s *localityScheduler) Close() {
	s.mu.Lock()
	subscribed := s.subscribed
	subID := s.subID
	s.subscribed = false
	s.closed = true
	s.mu.Unlock()

	if s.channel != nil && subscribed {
		s.channel.Unregister(subID)
	}
}

// updateMembership is invoked by the membership channel whenever the worker
// set of the service changes.
func (s *localityScheduler) updateMembership(state cluster.ServiceState) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		// ignore racy membership updates after close
		return
	}
	s.rebuild(state.Workers)
}

// rebuild replaces the locality table with groups of the given workers and
// resets the fallback rotation. Callers must hold mu.
func (s *localityScheduler) rebuild(workers []cluster.Address) {
	groups := lo.GroupBy(workers, func(w cluster.Address) string { return w.Host })
	keys := lo.Keys(groups)
	sort.Strings(keys)

	s.hostMap = groups
	s.hostKeys = keys
	s.nextNonlocal = 0

	if !s.initialized {
		s.initialized = true
		s.metrics.markInitialized()
	}
	log.Debug().
		Str("service", s.serviceID).
		Int("workers", len(workers)).
		Int("hosts", len(keys)).
		Msg("locality table rebuilt")
}

func (s *localityScheduler) GetHosts(dataLocations []cluster.Address) ([]cluster.Address, error) {
	if len(dataLocations) == 0 {
		return nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.hostKeys) == 0 {
		return nil, ErrNoAvailableWorkers
	}

	hosts := make([]cluster.Address, len(dataLocations))
	var localAssignments int
	for i, loc := range dataLocations {
		if group, ok := s.hostMap[loc.Host]; ok {
			// pick the group's head, then defer it to the back so repeated
			// local assignments cycle through all co-resident workers.
			hosts[i] = group[0]
			s.hostMap[loc.Host] = append(group[1:], group[0])
			localAssignments++
			continue
		}

		// no local worker: round-robin over distinct hosts, not individual
		// workers, so hosts with many workers are not over-selected.
		key := s.hostKeys[s.nextNonlocal]
		hosts[i] = s.hostMap[key][0]
		s.nextNonlocal = (s.nextNonlocal + 1) % len(s.hostKeys)
	}

	s.metrics.addAssignments(len(dataLocations), localAssignments)
	return hosts, nil
}

func (s *localityScheduler) GetHost(dataLocation cluster.Address) (cluster.Address, error) {
	hosts, err := s.GetHosts([]cluster.Address{dataLocation})
	if err != nil {
		return cluster.Address{}, err
	}
	return hosts[0], nil
}

func (s *localityScheduler) HasLocalHost(dataLocation cluster.Address) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.hostMap[dataLocation.Host]
	return ok
}

func (s *localityScheduler) GetAllKnownHosts() []cluster.Address {
	s.mu.Lock()
	defer s.mu.Unlock()

	groups := make([][]cluster.Address, 0, len(s.hostKeys))
	for _, key := range s.hostKeys {
		groups = append(groups, s.hostMap[key])
	}
	return lo.Flatten(groups)
}
