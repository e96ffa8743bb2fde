package cluster

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/samber/lo"
	. "github.com/smartystreets/goconvey/convey"
	clientv3 "go.etcd.io/etcd/client/v3"
)

// provideEtcd connects to a test etcd under a randomized namespace.
// Skipped unless LOCALSCHED_TEST_INTEGRATION is set.
func provideEtcd(t *testing.T) *Etcd {
	t.Helper()
	if _, ok := os.LookupEnv("LOCALSCHED_TEST_INTEGRATION"); !ok {
		t.Skipf("Skipping %s since it is an integration test.", t.Name())
	}
	endpoint, ok := os.LookupEnv("LOCALSCHED_TEST_ETCD_ENDPOINT")
	if !ok {
		endpoint = "127.0.0.1:2379"
	}

	testNs := fmt.Sprintf("localsched_test_%s/", lo.RandomString(10, lo.LettersCharset))
	etcd, err := NewEtcd([]string{endpoint}, testNs)
	if err != nil {
		t.Fatalf("connect etcd: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_, _ = etcd.KV.Delete(ctx, "\x00", clientv3.WithFromKey())
		_ = etcd.Close()
	})
	return etcd
}

func TestEtcd_WatchFromListRevision(t *testing.T) {
	etcd := provideEtcd(t)
	ctx := context.Background()

	Convey("Given a service with one announced worker", t, func() {
		regA, err := etcd.Announce(ctx, "executor", NewAddress("127.0.0.1", 7070))
		So(err, ShouldBeNil)
		defer regA.Unregister()

		state, rev, err := etcd.listMembers(ctx, "executor")
		So(err, ShouldBeNil)
		So(state.Workers, ShouldHaveLength, 1)
		So(rev, ShouldBeGreaterThan, 0)

		Convey("A member committed after the list should reach a watch anchored at the list revision", func() {
			regB, err := etcd.Announce(ctx, "executor", NewAddress("127.0.0.1", 7071))
			So(err, ShouldBeNil)
			defer regB.Unregister()

			// the announce above landed before the watch is established; an
			// unanchored watch would start past it and never deliver it.
			watchCtx, cancel := context.WithCancel(ctx)
			defer cancel()
			wc := etcd.Watcher.Watch(watchCtx, memberPrefix("executor"),
				clientv3.WithPrefix(), clientv3.WithRev(rev+1))

			select {
			case wr := <-wc:
				So(wr.Err(), ShouldBeNil)
				So(len(wr.Events), ShouldBeGreaterThan, 0)
			case <-time.After(5 * time.Second):
				t.Fatal("no watch event for a member committed after the list")
			}
		})
	})
}
