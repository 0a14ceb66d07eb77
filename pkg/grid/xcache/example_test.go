package xcache_test

import (
	"context"
	"fmt"
	"time"

	"github.com/omeyang/xgrid/pkg/grid/xcache"
	"github.com/omeyang/xgrid/pkg/grid/xentry"
	"github.com/omeyang/xgrid/pkg/grid/xexpire"
	"github.com/omeyang/xgrid/pkg/grid/xnotify"
	"github.com/omeyang/xgrid/pkg/grid/xpersist"
	"github.com/omeyang/xgrid/pkg/util/xid"
)

func Example() {
	ctx := context.Background()

	container, _ := xentry.NewContainer(xentry.ContainerConfig{})
	persist, _ := xpersist.NewManager(xpersist.Config{}, nil)
	bus := xnotify.New()
	_, _ = bus.Subscribe(xnotify.ListenerFunc(func(_ context.Context, ev xentry.Event) error {
		fmt.Printf("expired %s\n", ev.Key)
		return nil
	}))

	cfg := xexpire.DefaultConfig()
	cfg.ReaperEnabled = false
	cfg.ReadRemoval = xexpire.ReadRemovalSync
	exp, _ := xexpire.New(cfg, xexpire.Dependencies{Container: container, Persistence: persist, Notifier: bus})
	defer exp.Stop(ctx) //nolint:errcheck // example

	gen, _ := xid.NewGenerator(xid.WithStaticMachineID(1))
	cache, _ := xcache.New(xcache.Config{}, xcache.Dependencies{
		Container: container, Persistence: persist, Expiration: exp,
	}, xcache.WithVersionGenerator(gen))
	defer cache.Close() //nolint:errcheck // example

	_, _ = cache.Put(ctx, "session", []byte("alice"), xcache.WithLifespan(time.Nanosecond))
	time.Sleep(time.Millisecond)

	_, ok, _ := cache.Get(ctx, "session")
	fmt.Println("hit:", ok)
	// Output:
	// expired session
	// hit: false
}
