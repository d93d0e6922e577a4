// Command pricer-service serves the HTTP control surface (spec §6):
// job submission, job/item reads, reprocessing, and export. It runs no
// background poll loop: each kickoff runs one bounded slice on an
// in-process worker instance, composed in one main the way the teacher's
// memory-service composes its own dependencies in one run.go-equivalent main.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/priceline/replacement-pricer/server/internal/api"
	"github.com/priceline/replacement-pricer/server/internal/api/items"
	"github.com/priceline/replacement-pricer/server/internal/api/jobs"
	"github.com/priceline/replacement-pricer/server/internal/audit"
	"github.com/priceline/replacement-pricer/server/internal/config"
	"github.com/priceline/replacement-pricer/server/internal/control"
	"github.com/priceline/replacement-pricer/server/internal/health"
	"github.com/priceline/replacement-pricer/server/internal/ingest"
	"github.com/priceline/replacement-pricer/server/internal/logger"
	"github.com/priceline/replacement-pricer/server/internal/model"
	"github.com/priceline/replacement-pricer/server/internal/ports"
	"github.com/priceline/replacement-pricer/server/internal/ports/csvparser"
	"github.com/priceline/replacement-pricer/server/internal/ports/httpsearch"
	"github.com/priceline/replacement-pricer/server/internal/ports/staticextractor"
	"github.com/priceline/replacement-pricer/server/internal/pricing"
	"github.com/priceline/replacement-pricer/server/internal/pricing/policy"
	"github.com/priceline/replacement-pricer/server/internal/principal"
	"github.com/priceline/replacement-pricer/server/internal/registry"
	"github.com/priceline/replacement-pricer/server/internal/reprocess"
	"github.com/priceline/replacement-pricer/server/internal/store/postgres"
	"github.com/priceline/replacement-pricer/server/internal/worker"
)

func main() {
	log := logger.New("pricer-service")

	cfg, err := config.New()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := postgres.Bootstrap(ctx, cfg.PostgresDSN); err != nil {
		log.Fatal().Err(err).Msg("failed to bootstrap schema")
	}
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
	ig := ingest.New(st, auditBus, ingest.Bounds{
		MinRows: cfg.IngestMinRows, MaxRows: cfg.IngestMaxRows, MaxBatchByte: cfg.IngestMaxBatchByte,
		P50TargetMs: float64(cfg.IngestDBP50Ms), P95TargetMs: float64(cfg.IngestDBP95Ms), EWMAAlpha: cfg.IngestEWMAAlpha,
	}, log)
	reprocessSvc := reprocess.New(st, auditBus, cfg.WorkerMaxAttemptsError, cfg.WorkerMaxAttemptsNotFound)

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
		Fast: time.Duration(cfg.ProviderTimeoutFastMs) * time.Millisecond,
		Medium: time.Duration(cfg.ProviderTimeoutMediumMs) * time.Millisecond,
		Slow: time.Duration(cfg.ProviderTimeoutSlowMs) * time.Millisecond,
	}, log)

	w := worker.New("pricer-service-inline-worker", st, reg, resolver, worker.Bounds{
		TargetSliceMs: cfg.WorkerTargetSliceMs, ClaimMin: cfg.WorkerClaimMin, ClaimMax: cfg.WorkerClaimMax,
		SafetyFactor: cfg.WorkerSafetyFactor, LockFloorMs: cfg.WorkerLockFloorMs, LockCapMs: cfg.WorkerLockCapMs,
		HeartbeatIntervalMs: cfg.WorkerHeartbeatIntervalMs, Concurrency: cfg.WorkerConcurrency,
	}, log)

	kickoff := func(ctx context.Context, jobID string, sliceMs int) (jobs.SliceResult, error) {
		res, err := w.Run(ctx, jobID, sliceMs)
		if err != nil {
			return jobs.SliceResult{}, err
		}
		return jobs.SliceResult{Claimed: res.Claimed, Completed: res.Completed, Failed: res.Failed, ElapsedMs: res.ElapsedMs}, nil
	}

	csvBaseDir := os.Getenv("PRICER_CSV_BASE_DIR")
	if csvBaseDir == "" {
		csvBaseDir = "."
	}
	parser := csvparser.New(csvBaseDir)
	parserLookup := func(jobType model.JobType) (ports.FileParser, bool) {
		if jobType == model.JobTypeCSV {
			return parser, true
		}
		return nil, false
	}

	resolver2 := principal.NewStaticResolver(devPrincipalTable())

	jobsHandler := jobs.NewHandler(ig, reg, parserLookup, resolver2, kickoff, log)
	itemsHandler := items.NewHandler(reprocessSvc, reg, resolver2, log)

	storeChecker := health.NewStoreChecker(func(ctx context.Context) error { return db.PingContext(ctx) })
	svcHealth := health.NewServiceChecker(log, storeChecker)
	go storeChecker.Start(ctx, 5*time.Second)
	go svcHealth.Start(ctx, 5*time.Second)
	healthHandler := api.NewHealthHandler(svcHealth)

	router := api.NewRouter(healthHandler, jobsHandler, itemsHandler)

	srv := &http.Server{Addr: cfg.GetHTTPAddr(), Handler: router}
	go func() {
		log.Info().Str("addr", cfg.GetHTTPAddr()).Msg("pricer-service listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

// devPrincipalTable is a placeholder API-key table for local/dev runs. A
// production deployment replaces principal.NewStaticResolver with a
// database-backed Resolver (same interface).
func devPrincipalTable() map[string]principal.Principal {
	return map[string]principal.Principal{
		"dev-admin-key": {OwnerID: "admin", Admin: true},
		"dev-user-key":  {OwnerID: "dev-user"},
	}
}
