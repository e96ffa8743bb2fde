package cluster

import (
	"context"
	"path"
	"runtime/debug"
	"sync"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/namespace"
	"go.uber.org/atomic"
	"google.golang.org/grpc"

	"github.com/dataloci/localsched/pkg/retry"
)

// Etcd is a membership channel backed by etcd. Workers announce themselves
// under <serviceID>/<host:port> keys attached to a keep-alive lease, and
// subscribers are notified with a full membership snapshot whenever any key
// under the service prefix changes.
type Etcd struct {
	Client  *clientv3.Client
	KV      clientv3.KV
	Watcher clientv3.Watcher
	Lease   clientv3.Lease

	option EtcdOptions

	subs   map[SubscriptionID]*etcdSubscription
	subsMu sync.Mutex
	nextID *atomic.Uint64
	closed bool
}

type etcdSubscription struct {
	service string
	cancel  context.CancelFunc
}

// NewEtcd connects to the etcd cluster at given endpoints. All keys used by
// the channel are placed under nsPrefix.
func NewEtcd(endpoints []string, nsPrefix string, opts ...EtcdOptions) (*Etcd, error) {
	option := defaultEtcdOptions()
	if len(opts) > 0 {
		option = opts[0]
	}

	cfg := clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: option.DialTimeout,
		DialOptions: []grpc.DialOption{grpc.WithBlock()},
	}
	cli, err := clientv3.New(cfg)
	if err != nil {
		return nil, err
	}
	return &Etcd{
		Client:  cli,
		KV:      namespace.NewKV(cli, nsPrefix),
		Watcher: namespace.NewWatcher(cli, nsPrefix),
		Lease:   namespace.NewLease(cli, nsPrefix),
		option:  option,
		subs:    make(map[SubscriptionID]*etcdSubscription),
		nextID:  atomic.NewUint64(0),
	}, nil
}

// Register subscribes to membership updates of the service. The callback is
// invoked synchronously with the current membership before Register returns,
// and afterwards from a watch goroutine on every change.
func (e *Etcd) Register(serviceID string, callback UpdateCallback) (SubscriptionID, error) {
	watchCtx, cancel := context.WithCancel(context.Background())
	state, rev, err := e.listMembers(watchCtx, serviceID)
	if err != nil {
		cancel()
		return 0, errors.Wrapf(err, "list members of %s", serviceID)
	}

	id := SubscriptionID(e.nextID.Inc())
	e.subsMu.Lock()
	if e.closed {
		e.subsMu.Unlock()
		cancel()
		return 0, ErrChannelClosed
	}
	e.subs[id] = &etcdSubscription{service: serviceID, cancel: cancel}
	e.subsMu.Unlock()

	callback(state)
	go e.watchMembers(watchCtx, serviceID, rev, callback)
	return id, nil
}

// Unregister stops the subscription's watch. Idempotent.
func (e *Etcd) Unregister(id SubscriptionID) {
	e.subsMu.Lock()
	defer e.subsMu.Unlock()

	sub, ok := e.subs[id]
	if !ok {
		return
	}
	sub.cancel()
	delete(e.subs, id)
}

func (e *Etcd) watchMembers(ctx context.Context, serviceID string, listRev int64, callback UpdateCallback) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Interface("panic", r).
				Str("service", serviceID).
				Bytes("stack", debug.Stack()).
				Msg("panic while watching membership")
		}
	}()

	// anchor the watch right after the revision the initial list observed, so
	// a member change committed between the list and the watch establishment
	// is still delivered.
	wc := e.Watcher.Watch(ctx, memberPrefix(serviceID),
		clientv3.WithPrefix(), clientv3.WithRev(listRev+1))
	for wr := range wc {
		if err := wr.Err(); err != nil {
			log.Warn().
				Err(err).
				Str("service", serviceID).
				Msg("membership watch error")
			continue
		}
		if len(wr.Events) == 0 {
			continue
		}

		// deliver a full snapshot rather than applying deltas, so a missed
		// event cannot leave subscribers with a stale member.
		state, err := retry.DoWithResult(
			func() (ServiceState, error) {
				st, _, err := e.listMembers(ctx, serviceID)
				return st, err
			},
			retry.WithRetryCount(3),
		)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warn().
				Err(err).
				Str("service", serviceID).
				Msg("failed to list members after watch event")
			continue
		}
		callback(state)
	}
}

// listMembers returns the current membership of the service along with the
// store revision the snapshot was taken at.
func (e *Etcd) listMembers(ctx context.Context, serviceID string) (ServiceState, int64, error) {
	ctx, cancel := context.WithTimeout(ctx, e.option.OpTimeout)
	defer cancel()

	resp, err := e.KV.Get(ctx, memberPrefix(serviceID),
		clientv3.WithPrefix(), clientv3.WithSort(clientv3.SortByKey, clientv3.SortAscend))
	if err != nil {
		return ServiceState{}, 0, err
	}
	workers := make([]Address, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var addr Address
		if err := jsoniter.Unmarshal(kv.Value, &addr); err != nil {
			return ServiceState{}, 0, errors.Wrapf(err, "unmarshal member %s", kv.Key)
		}
		workers = append(workers, addr)
	}
	return ServiceState{Service: serviceID, Workers: workers}, resp.Header.Revision, nil
}

// Close cancels all subscriptions and closes the underlying etcd client.
func (e *Etcd) Close() error {
	e.subsMu.Lock()
	e.closed = true
	for id, sub := range e.subs {
		sub.cancel()
		delete(e.subs, id)
	}
	e.subsMu.Unlock()

	return e.Client.Close()
}

func memberPrefix(serviceID string) string {
	return serviceID + "/"
}

func memberKey(serviceID string, addr Address) string {
	return path.Join(serviceID, addr.String())
}
