package audit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/priceline/replacement-pricer/server/internal/model"
)

type capturingRecorder struct {
	mu     sync.Mutex
	events []model.AuditEvent
}

func (c *capturingRecorder) Record(ctx context.Context, e model.AuditEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
	return nil
}

func (c *capturingRecorder) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

func TestBus_EmitDrainsToRecorder(t *testing.T) {
	rec := &capturingRecorder{}
	bus := NewBus(16, rec, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go bus.Run(ctx)

	bus.Emit(model.AuditEvent{Kind: model.AuditJobCreated, JobID: "job-1"})
	bus.Emit(model.AuditEvent{Kind: model.AuditItemClaimed, JobID: "job-1", ItemID: "item-1"})

	deadline := time.Now().Add(time.Second)
	for rec.count() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got := rec.count(); got != 2 {
		t.Fatalf("recorded events = %d, want 2", got)
	}
}

func TestBus_EmitNeverBlocksWhenFull(t *testing.T) {
	rec := &capturingRecorder{}
	bus := NewBus(1, rec, zerolog.Nop())
	// No Run loop started: the channel fills after the first Emit and every
	// subsequent Emit must still return immediately.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			bus.Emit(model.AuditEvent{Kind: model.AuditItemClaimed})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Emit blocked with a full buffer")
	}
}
