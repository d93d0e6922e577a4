package health

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type fakeChecker struct {
	name    string
	healthy atomic.Bool
}

func (f *fakeChecker) Name() string    { return f.name }
func (f *fakeChecker) IsHealthy() bool { return f.healthy.Load() }
func (f *fakeChecker) Start(ctx context.Context, interval time.Duration) {}

func TestServiceChecker_AllHealthyReportsUp(t *testing.T) {
	a := &fakeChecker{name: "a"}
	a.healthy.Store(true)
	b := &fakeChecker{name: "b"}
	b.healthy.Store(true)

	h := NewServiceChecker(zerolog.Nop(), a, b)
	if h.IsHealthy() {
		t.Fatal("expected not-yet-evaluated checker to report unhealthy")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Start(ctx, 10*time.Millisecond)

	waitUntil(t, func() bool { return h.IsHealthy() })
}

func TestServiceChecker_OneUnhealthyDependencyReportsDown(t *testing.T) {
	a := &fakeChecker{name: "a"}
	a.healthy.Store(true)
	b := &fakeChecker{name: "b"}
	b.healthy.Store(false)

	h := NewServiceChecker(zerolog.Nop(), a, b)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Start(ctx, 10*time.Millisecond)

	time.Sleep(30 * time.Millisecond)
	if h.IsHealthy() {
		t.Fatal("expected service to report unhealthy when one dependency is down")
	}
}

func TestServiceChecker_TransitionsAsDependencyRecovers(t *testing.T) {
	a := &fakeChecker{name: "a"}
	a.healthy.Store(false)

	h := NewServiceChecker(zerolog.Nop(), a)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Start(ctx, 5*time.Millisecond)

	time.Sleep(20 * time.Millisecond)
	if h.IsHealthy() {
		t.Fatal("expected unhealthy before dependency recovers")
	}

	a.healthy.Store(true)
	waitUntil(t, func() bool { return h.IsHealthy() })
}

func TestStoreChecker_PingSuccessAndFailure(t *testing.T) {
	var fail atomic.Bool
	c := NewStoreChecker(func(ctx context.Context) error {
		if fail.Load() {
			return errors.New("connection refused")
		}
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Start(ctx, 10*time.Millisecond)

	waitUntil(t, func() bool { return c.IsHealthy() })

	fail.Store(true)
	waitUntil(t, func() bool { return !c.IsHealthy() })

	if c.Name() != "postgres" {
		t.Fatalf("Name() = %q, want postgres", c.Name())
	}
}

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}
