package audit

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/priceline/replacement-pricer/server/internal/model"
)

// LogRecorder writes audit events as structured log lines. It is the
// default Recorder: every event kind already carries the job/item
// identifiers a downstream log pipeline needs, so no separate audit table
// is required for the minimum record shape in spec §4.8.
type LogRecorder struct {
	log zerolog.Logger
}

func NewLogRecorder(log zerolog.Logger) *LogRecorder {
	return &LogRecorder{log: log}
}

func (r *LogRecorder) Record(ctx context.Context, event model.AuditEvent) error {
	evt := r.log.Info().
		Str("event_kind", string(event.Kind)).
		Str("job_id", event.JobID).
		Str("item_id", event.ItemID).
		Str("actor_id", event.ActorID).
		Time("ts", event.Ts)
	if event.Payload != nil {
		evt = evt.Interface("payload", event.Payload)
	}
	evt.Msg("audit")
	return nil
}
