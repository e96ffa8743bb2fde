package integration

import (
	"context"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
	"github.com/stretchr/testify/require"

	"github.com/dataloci/localsched"
	"github.com/dataloci/localsched/cluster"
)

const (
	testService = "executor"
	tick        = 100 * time.Millisecond
	waitTimeout = 5 * time.Second
)

func TestEtcdChannel_Membership(t *testing.T) {
	RunOnIntegrationTest(t)

	Convey("Given an etcd membership channel", t, func() {
		etcd, closeEtcd := ProvideEtcd()
		ctx := context.Background()

		workerA := cluster.NewAddress("127.0.0.1", 7070)
		workerB := cluster.NewAddress("127.0.0.1", 7071)

		regA, err := etcd.Announce(ctx, testService, workerA)
		So(err, ShouldBeNil)
		regB, err := etcd.Announce(ctx, testService, workerB)
		So(err, ShouldBeNil)

		sched := localsched.New(etcd, testService, nil)
		So(sched.Init(), ShouldBeNil)

		Reset(func() {
			sched.Close()
			regA.Unregister()
			regB.Unregister()
			closeEtcd()
		})

		Convey("Announced workers should be visible right after Init", func() {
			So(sched.GetAllKnownHosts(), ShouldResemble, []cluster.Address{workerA, workerB})
			So(sched.HasLocalHost(cluster.NewAddress("127.0.0.1", 50010)), ShouldBeTrue)
		})

		Convey("Local assignments should cycle through announced workers", func() {
			first, err := sched.GetHost(cluster.NewAddress("127.0.0.1", 50010))
			So(err, ShouldBeNil)
			second, err := sched.GetHost(cluster.NewAddress("127.0.0.1", 50010))
			So(err, ShouldBeNil)

			So(first, ShouldResemble, workerA)
			So(second, ShouldResemble, workerB)
		})

		Convey("Unregistering a worker should shrink the membership", func() {
			regB.Unregister()

			require.Eventually(t, func() bool {
				return len(sched.GetAllKnownHosts()) == 1
			}, waitTimeout, tick)

			So(sched.GetAllKnownHosts(), ShouldResemble, []cluster.Address{workerA})
		})

		Convey("A newly announced worker should appear in the membership", func() {
			workerC := cluster.NewAddress("127.0.0.1", 7072)
			regC, err := etcd.Announce(ctx, testService, workerC)
			So(err, ShouldBeNil)
			defer regC.Unregister()

			require.Eventually(t, func() bool {
				return len(sched.GetAllKnownHosts()) == 3
			}, waitTimeout, tick)
		})
	})
}
