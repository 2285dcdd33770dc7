// Command server runs the record lifecycle engine: the HTTP API, the
// periodic review sweep and the optional Kafka audit exporter. Backing
// stores are Postgres and Redis when configured, in-memory otherwise.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"recordvault/internal/approval"
	approvalhandler "recordvault/internal/approval/handler"
	"recordvault/internal/audit"
	"recordvault/internal/audit/export"
	"recordvault/internal/identifier"
	"recordvault/internal/lifecycle"
	lifecyclehandler "recordvault/internal/lifecycle/handler"
	"recordvault/internal/platform/config"
	"recordvault/internal/platform/httpserver"
	"recordvault/internal/platform/logger"
	"recordvault/internal/platform/metrics"
	"recordvault/internal/platform/postgres"
	platformredis "recordvault/internal/platform/redis"
	"recordvault/internal/reauth"
	"recordvault/internal/registry"
	"recordvault/internal/review"
	reviewhandler "recordvault/internal/review/handler"
	"recordvault/internal/training"
	traininghandler "recordvault/internal/training/handler"
	httptransport "recordvault/internal/transport/http"
)

func main() {
	cfg := config.FromEnv()
	log := logger.New()

	if err := run(cfg, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Server, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	db, err := postgres.Open(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
	}

	rdb, err := platformredis.New(cfg.RedisURL)
	if err != nil {
		return err
	}
	if rdb != nil {
		defer rdb.Close()
	}

	reg, err := loadRegistry(cfg.DefinitionsPath)
	if err != nil {
		return err
	}

	var (
		lifecycleStore lifecycle.Store
		approvalStore  approval.Store
		trainingStore  training.Store
		auditStore     audit.Store
		counters       identifier.CounterStore
		runner         lifecycle.TxRunner = lifecycle.PassthroughRunner{}
	)
	if db != nil {
		lifecycleStore = lifecycle.NewPostgresStore(db)
		approvalStore = approval.NewPostgresStore(db)
		trainingStore = training.NewPostgresStore(db)
		auditStore = audit.NewPostgresStore(db)
		counters = identifier.NewPostgres(db)
		runner = newPostgresRunner(db)
	} else {
		log.Warn("DATABASE_URL is not set, running with in-memory stores")
		lifecycleStore = lifecycle.NewMemoryStore()
		approvalStore = approval.NewMemoryStore()
		trainingStore = training.NewMemoryStore()
		auditStore = audit.NewMemoryStore()
		counters = identifier.NewMemory()
	}
	if rdb != nil {
		// Redis wins for identifier sequences: a shared counter keeps
		// prefixes monotonic across replicas even in memory mode.
		counters = identifier.NewRedis(rdb.Client)
	}

	trail, err := audit.NewTrail(auditStore, audit.WithLogger(log), audit.WithMetrics(m))
	if err != nil {
		return err
	}

	credentials := reauth.NewMemoryCredentialStore()
	verifier := reauth.Chain{
		reauth.NewTokenVerifier(cfg.ReauthSigningKey, cfg.ReauthMaxAge),
		reauth.NewPasswordVerifier(credentials),
	}

	approvals, err := approval.New(approvalStore, reg, verifier,
		approval.WithLogger(log), approval.WithMetrics(m))
	if err != nil {
		return err
	}
	trainingGate, err := training.New(trainingStore,
		training.WithLogger(log), training.WithMetrics(m))
	if err != nil {
		return err
	}
	allocator, err := identifier.New(counters, reg, identifier.WithLogger(log))
	if err != nil {
		return err
	}

	engine, err := lifecycle.NewEngine(lifecycleStore, reg, allocator, approvals, trainingGate, trail,
		lifecycle.WithLogger(log),
		lifecycle.WithMetrics(m),
		lifecycle.WithTxRunner(runner),
	)
	if err != nil {
		return err
	}

	scheduler, err := review.New(engine, lifecycleStore, reg, trail,
		review.WithLogger(log),
		review.WithMetrics(m),
	)
	if err != nil {
		return err
	}

	sweep := review.NewSweep(scheduler, cfg.ReviewSweep)
	go func() {
		if err := sweep.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("review sweep stopped", "error", err)
		}
	}()

	if len(cfg.KafkaBrokers) > 0 {
		exporter, err := export.New(ctx, auditStore, cfg.KafkaBrokers, cfg.AuditExportTopic,
			export.WithLogger(log))
		if err != nil {
			return err
		}
		defer exporter.Close()
		go func() {
			if err := exporter.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("audit exporter stopped", "error", err)
			}
		}()
	}

	checks := map[string]httptransport.HealthCheck{}
	if db != nil {
		checks["postgres"] = db.PingContext
	}
	if rdb != nil {
		checks["redis"] = rdb.Health
	}

	router := httptransport.NewRouter(httptransport.Config{
		Logger: log,
		Handlers: []httptransport.Registrar{
			lifecyclehandler.New(engine, log),
			approvalhandler.New(engine, approvals, log),
			traininghandler.New(engine, log),
			reviewhandler.New(scheduler, log),
		},
		Checks: checks,
	})

	srv := httpserver.New(cfg.Addr, router)

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	log.Info("server stopped")
	return nil
}

func loadRegistry(path string) (*registry.Registry, error) {
	if path == "" {
		return registry.New(registry.Defaults()...)
	}
	return registry.Load(path)
}
