package postgres

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/priceline/replacement-pricer/server/internal/model"
)

type searchEvents struct{ db *sql.DB }

// Append writes one append-only audit row per external search call (spec
// §4.8). This table is written in its own statement, never inside the
// checkpoint transaction, so a slow or failing audit write can never block
// or roll back the item state change it describes.
func (s *searchEvents) Append(ctx context.Context, e *model.SearchEvent) error {
	id := e.ID
	if id == "" {
		id = uuid.New().String()
	}
	const stmt = `
		INSERT INTO search_events (id, job_item_id, provider, query, started_at, finished_at,
		                           outcome, latency_ms, error_kind, result_count, chosen_url)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`

	_, err := s.db.ExecContext(ctx, stmt, id, e.JobItemID, e.Provider, e.Query, e.StartedAt, e.FinishedAt,
		string(e.Outcome), e.LatencyMs, nullableString(e.ErrorKind), e.ResultCount, nullableString(e.ChosenURL))
	return err
}
