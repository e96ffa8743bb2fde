package cluster

import (
	"time"

	"github.com/creasty/defaults"
)

type EtcdOptions struct {
	DialTimeout time.Duration `default:"5s"`
	OpTimeout   time.Duration `default:"3s"`

	// LeaseTTL specifies how long an announced worker stays visible after its
	// keep-alive stops. A crashed worker disappears from membership within
	// this duration.
	LeaseTTL time.Duration `default:"10s"`
}

func defaultEtcdOptions() (o EtcdOptions) {
	if err := defaults.Set(&o); err != nil {
		panic(err)
	}
	return
}
