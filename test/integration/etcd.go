package integration

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
	. "github.com/smartystreets/goconvey/convey"
	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/dataloci/localsched/cluster"
)

const (
	etcdEndpointEnvKey  = "LOCALSCHED_TEST_ETCD_ENDPOINT"
	defaultEtcdEndpoint = "127.0.0.1:2379"
)

// ProvideEtcd provides an etcd-backed membership channel under a randomized
// test namespace. The returned closer removes all keys written by the test.
func ProvideEtcd() (ch *cluster.Etcd, closer func()) {
	testNs := fmt.Sprintf("localsched_test_%s/", lo.RandomString(10, lo.LettersCharset))

	etcdEndpoint, ok := os.LookupEnv(etcdEndpointEnvKey)
	if !ok {
		etcdEndpoint = defaultEtcdEndpoint
	}
	etcd, err := cluster.NewEtcd([]string{etcdEndpoint}, testNs)
	if err != nil {
		So(err, ShouldBeNil)
	}

	// clean all items under test namespace
	closer = func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()

		log.Info().Msg("Closing etcd")
		if _, err := etcd.KV.Delete(ctx, "\x00", clientv3.WithFromKey()); err != nil {
			So(err, ShouldBeNil)
		}
		if err := etcd.Close(); err != nil {
			So(err, ShouldBeNil)
		}
	}
	return etcd, closer
}
