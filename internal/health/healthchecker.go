// Package health aggregates component-level checkers into a single
// service health flag, the way the teacher's internal/health package does.
package health

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Checker is implemented by component-level checkers (store, provider).
type Checker interface {
	Name() string
	IsHealthy() bool
	Start(ctx context.Context, interval time.Duration)
}

// ServiceChecker aggregates component checkers into a single service health flag.
type ServiceChecker struct {
	healthy atomic.Int32
	deps    []Checker
	log     zerolog.Logger
}

func NewServiceChecker(log zerolog.Logger, deps ...Checker) *ServiceChecker {
	h := &ServiceChecker{deps: deps, log: log}
	h.healthy.Store(0)
	return h
}

func (h *ServiceChecker) IsHealthy() bool { return h.healthy.Load() == 1 }

func (h *ServiceChecker) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	prev := int32(0)
	eval := func() {
		all := true
		for _, c := range h.deps {
			if !c.IsHealthy() {
				all = false
			}
		}
		if all {
			h.healthy.Store(1)
		} else {
			h.healthy.Store(0)
		}
		cur := h.healthy.Load()
		if cur != prev {
			if cur == 1 {
				h.log.Info().Msg("service health: UP")
			} else {
				h.log.Error().Msg("service health: DOWN")
			}
			prev = cur
		}
	}

	eval()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			eval()
		}
	}
}

// StoreChecker wraps a simple ping function (store.Store has no native
// ping; callers pass a closure over *sql.DB.PingContext) as a health.Checker.
type StoreChecker struct {
	ping    func(ctx context.Context) error
	healthy atomic.Int32
}

func NewStoreChecker(ping func(ctx context.Context) error) *StoreChecker {
	return &StoreChecker{ping: ping}
}

func (c *StoreChecker) Name() string     { return "postgres" }
func (c *StoreChecker) IsHealthy() bool  { return c.healthy.Load() == 1 }

func (c *StoreChecker) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	eval := func() {
		probeCtx, cancel := context.WithTimeout(ctx, interval/2)
		defer cancel()
		if c.ping(probeCtx) == nil {
			c.healthy.Store(1)
		} else {
			c.healthy.Store(0)
		}
	}
	eval()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			eval()
		}
	}
}
