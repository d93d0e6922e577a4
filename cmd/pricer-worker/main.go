// Command pricer-worker runs a standalone time-sliced worker (C4) that
// polls the global PENDING queue and drives slices against whichever job
// currently has the oldest-claimable work, the way the teacher's
// outbox-worker binary runs its lease loop on a fixed ticker (grounded on
// the teacher's deleted outboxworker/run.go lease-loop shape).
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/priceline/replacement-pricer/server/internal/audit"
	"github.com/priceline/replacement-pricer/server/internal/config"
	"github.com/priceline/replacement-pricer/server/internal/control"
	"github.com/priceline/replacement-pricer/server/internal/logger"
	"github.com/priceline/replacement-pricer/server/internal/model"
	"github.com/priceline/replacement-pricer/server/internal/ports"
	"github.com/priceline/replacement-pricer/server/internal/ports/httpsearch"
	"github.com/priceline/replacement-pricer/server/internal/ports/staticextractor"
	"github.com/priceline/replacement-pricer/server/internal/pricing"
	"github.com/priceline/replacement-pricer/server/internal/pricing/policy"
	"github.com/priceline/replacement-pricer/server/internal/registry"
	"github.com/priceline/replacement-pricer/server/internal/store"
	"github.com/priceline/replacement-pricer/server/internal/store/postgres"
	"github.com/priceline/replacement-pricer/server/internal/worker"
)

func main() {
	log := logger.New("pricer-worker")

	cfg, err := config.New()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := postgres.Open(cfg.PostgresDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}
	defer db.Close()
	st := postgres.NewWithDB(db)

	auditRecorder := audit.NewLogRecorder(log)
	auditBus := audit.NewBus(1024, auditRecorder, log)
	go auditBus.Run(ctx)

	reg := registry.New(st, auditBus)
	pol := policy.New(policy.Bounds{})
	ctrl := control.New(control.Bounds{
		MaxAttemptsError: cfg.WorkerMaxAttemptsError, MaxAttemptsNotFound: cfg.WorkerMaxAttemptsNotFound,
		MinConcurrency: 1, MaxConcurrency: cfg.ProviderMaxConcurrency,
	})

	var providers []ports.SearchProvider
	if cfg.ProviderBaseURL != "" {
		providers = append(providers, httpsearch.New("primary", cfg.ProviderBaseURL, time.Duration(cfg.ProviderTimeoutSlowMs)*time.Millisecond))
	}
	resolver := pricing.New(providers, staticextractor.New(), st.SearchEvents(), pol, ctrl, pricing.TimeoutTiers{
		Fast:   time.Duration(cfg.ProviderTimeoutFastMs) * time.Millisecond,
		Medium: time.Duration(cfg.ProviderTimeoutMediumMs) * time.Millisecond,
		Slow:   time.Duration(cfg.ProviderTimeoutSlowMs) * time.Millisecond,
	}, log)

	workerID := "pricer-worker-" + uuid.NewString()
	w := worker.New(workerID, st, reg, resolver, worker.Bounds{
		TargetSliceMs: cfg.WorkerTargetSliceMs, ClaimMin: cfg.WorkerClaimMin, ClaimMax: cfg.WorkerClaimMax,
		SafetyFactor: cfg.WorkerSafetyFactor, LockFloorMs: cfg.WorkerLockFloorMs, LockCapMs: cfg.WorkerLockCapMs,
		HeartbeatIntervalMs: cfg.WorkerHeartbeatIntervalMs, Concurrency: cfg.WorkerConcurrency,
	}, log)

	log.Info().Str("worker_id", workerID).Msg("pricer-worker starting poll loop")
	runPollLoop(ctx, st, w, cfg.WorkerTargetSliceMs, log)
}

// runPollLoop repeatedly finds a RUNNING job with claimable work and drives
// one bounded slice against it; an empty poll backs off briefly rather than
// busy-spinning against the database.
func runPollLoop(ctx context.Context, st store.Store, w *worker.Worker, sliceMs int, log zerolog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		jobID, ok := findClaimableJob(ctx, st)
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-time.After(2 * time.Second):
			}
			continue
		}

		if _, err := w.Run(ctx, jobID, sliceMs); err != nil {
			log.Error().Err(err).Str("job_id", jobID).Msg("worker slice failed")
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
		}
	}
}

// findClaimableJob does a lightweight scan for one job with PENDING items,
// oldest first. It is intentionally simple: correctness of claim
// exclusivity is owned entirely by store.Items.Claim's row-level locking,
// not by this selection step.
func findClaimableJob(ctx context.Context, st store.Store) (string, bool) {
	items, err := st.Items().List(ctx, model.ItemFilter{Any: true, Statuses: []model.ItemStatus{model.ItemPending}}, nil, 1)
	if err != nil || len(items) == 0 {
		return "", false
	}
	return items[0].JobID, true
}
