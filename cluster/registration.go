package cluster

import (
	"context"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"go.etcd.io/etcd/api/v3/v3rpc/rpctypes"
	clientv3 "go.etcd.io/etcd/client/v3"
)

// Registration represents a worker announced to the membership channel.
type Registration interface {
	// Addr returns the announced worker address.
	Addr() Address

	// Unregister removes the worker from the service membership.
	// It is idempotent.
	Unregister()
}

type etcdRegistration struct {
	etcd    *Etcd
	service string
	addr    Address
	lease   clientv3.LeaseID
	cancel  context.CancelFunc
}

// Announce registers a worker address under the service, attached to a lease
// kept alive until Unregister is called or the process dies. Subscribers of
// the service observe the worker until the lease expires.
func (e *Etcd) Announce(ctx context.Context, serviceID string, addr Address) (Registration, error) {
	lease, err := e.Lease.Grant(ctx, int64(e.option.LeaseTTL.Seconds()))
	if err != nil {
		return nil, errors.Wrap(err, "grant membership lease")
	}

	keepAliveCtx, cancel := context.WithCancel(context.Background())
	ka, err := e.Lease.KeepAlive(keepAliveCtx, lease.ID)
	if err != nil {
		cancel()
		return nil, errors.Wrap(err, "start lease keep-alive")
	}
	go func() {
		for range ka {
			// drain keep-alive responses
		}
	}()

	val, err := jsoniter.MarshalToString(addr)
	if err != nil {
		cancel()
		return nil, errors.Wrap(err, "marshal worker address")
	}
	putCtx, putCancel := context.WithTimeout(ctx, e.option.OpTimeout)
	defer putCancel()
	if _, err := e.KV.Put(putCtx, memberKey(serviceID, addr), val, clientv3.WithLease(lease.ID)); err != nil {
		cancel()
		return nil, errors.Wrap(err, "register worker address")
	}

	log.Info().
		Str("service", serviceID).
		Stringer("addr", addr).
		Msg("worker announced")

	return &etcdRegistration{
		etcd:    e,
		service: serviceID,
		addr:    addr,
		lease:   lease.ID,
		cancel:  cancel,
	}, nil
}

func (r *etcdRegistration) Addr() Address {
	return r.addr
}

func (r *etcdRegistration) Unregister() {
	r.cancel()

	ctx, cancel := context.WithTimeout(context.Background(), r.etcd.option.OpTimeout)
	defer cancel()

	// revoking the lease removes the member key atomically.
	if _, err := r.etcd.Lease.Revoke(ctx, r.lease); err != nil && !errors.Is(err, rpctypes.ErrLeaseNotFound) {
		log.Warn().
			Err(err).
			Str("service", r.service).
			Stringer("addr", r.addr).
			Msg("failed to revoke membership lease")
	}
}
