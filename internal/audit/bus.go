// Package audit implements the audit stream (C8): a best-effort,
// fire-and-forget sink fanned out to a persistent store in the background,
// the way the teacher's internal/events bus decouples publishers from a
// slow subscriber with a buffered channel.
package audit

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/priceline/replacement-pricer/server/internal/model"
)

// Recorder is the durable sink an audit event is eventually written to.
// Implementations MUST NOT block the Bus goroutine for long; a slow
// Recorder drops events once the buffer is full rather than applying
// backpressure to callers (spec §4.8: writes are best-effort).
type Recorder interface {
	Record(ctx context.Context, event model.AuditEvent) error
}

// Bus is an in-process, buffered-channel audit sink. Emit never blocks: a
// full buffer drops the event and logs it, rather than stalling the
// primary transaction that triggered it.
type Bus struct {
	events   chan model.AuditEvent
	recorder Recorder
	log      zerolog.Logger
	dropped  chan struct{}
}

// NewBus constructs a Bus with the given channel capacity. It starts no
// goroutine: the caller runs Run to drain events until Run's ctx is canceled.
func NewBus(capacity int, recorder Recorder, log zerolog.Logger) *Bus {
	if capacity <= 0 {
		capacity = 1024
	}
	b := &Bus{
		events:   make(chan model.AuditEvent, capacity),
		recorder: recorder,
		log:      log,
		dropped:  make(chan struct{}),
	}
	return b
}

// Emit implements ports.AuditSink. Non-blocking: if the buffer is full the
// event is dropped and logged, never retried in-line.
func (b *Bus) Emit(event model.AuditEvent) {
	if event.Ts.IsZero() {
		event.Ts = time.Now()
	}
	select {
	case b.events <- event:
	default:
		b.log.Warn().Str("kind", string(event.Kind)).Str("job_id", event.JobID).Msg("audit bus full, dropping event")
	}
}

// Run drains events to the recorder until ctx is canceled. A failed record
// is logged and the event is dropped; nothing retries it, neither this loop
// nor any other part of the package.
func (b *Bus) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-b.events:
			if err := b.recorder.Record(ctx, e); err != nil {
				b.log.Warn().Err(err).Str("kind", string(e.Kind)).Msg("audit record failed, dropping")
			}
		}
	}
}
