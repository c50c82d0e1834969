// Package app initializes and holds long-lived application services, acting
// as a dependency injection container.
package app

import (
	"context"
	"fmt"
	"net/http"

	gstorage "cloud.google.com/go/storage"
	"github.com/jackc/pgx/v5/pgxpool"
	r "github.com/redis/go-redis/v9"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/SpaceWJK/epic7-monitor/internal/clock/system"
	"github.com/SpaceWJK/epic7-monitor/internal/config"
	"github.com/SpaceWJK/epic7-monitor/internal/lease"
	leasegcs "github.com/SpaceWJK/epic7-monitor/internal/lease/gcs"
	leasemem "github.com/SpaceWJK/epic7-monitor/internal/lease/memory"
	leasepg "github.com/SpaceWJK/epic7-monitor/internal/lease/postgres"
	leaseredis "github.com/SpaceWJK/epic7-monitor/internal/lease/redis"
	"github.com/SpaceWJK/epic7-monitor/internal/logging"
	"github.com/SpaceWJK/epic7-monitor/internal/metrics"
	"github.com/SpaceWJK/epic7-monitor/internal/monitor"
	"github.com/SpaceWJK/epic7-monitor/internal/notify"
	"github.com/SpaceWJK/epic7-monitor/internal/runner"
	"github.com/SpaceWJK/epic7-monitor/internal/state"
	stategcs "github.com/SpaceWJK/epic7-monitor/internal/state/gcs"
	statemem "github.com/SpaceWJK/epic7-monitor/internal/state/memory"
	statepg "github.com/SpaceWJK/epic7-monitor/internal/state/postgres"
	stateredis "github.com/SpaceWJK/epic7-monitor/internal/state/redis"
)

// App holds all the shared, long-lived services for one process: the
// logger, the lease and state stores behind the configured backend, the
// commit coordinator, the notifier, and the runner wired from all of them.
type App struct {
	cfg        config.Config
	logger     *zap.Logger
	clock      monitor.Clock
	leaseStore monitor.LeaseStore
	stateStore monitor.StateStore
	leases     *lease.Manager
	committer  *state.Committer
	notifier   monitor.Notifier
	runner     *runner.Runner

	closers []func() error
}

// Logger returns the shared zap logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Clock returns the shared clock.
func (a *App) Clock() monitor.Clock { return a.clock }

// Config returns the loaded configuration.
func (a *App) Config() config.Config { return a.cfg }

// Leases returns the lease manager.
func (a *App) Leases() *lease.Manager { return a.leases }

// LeaseStore returns the raw lease store, for read-only inspection.
func (a *App) LeaseStore() monitor.LeaseStore { return a.leaseStore }

// Committer returns the state commit coordinator.
func (a *App) Committer() *state.Committer { return a.committer }

// States returns the raw state store, for read-only consumers such as
// report generation.
func (a *App) States() monitor.StateStore { return a.stateStore }

// Notifier returns the configured outcome notifier.
func (a *App) Notifier() monitor.Notifier { return a.notifier }

// Runner returns the job runner.
func (a *App) Runner() *runner.Runner { return a.runner }

// New creates and initializes an App from configuration. It is the central
// point for service initialization and fails fast if any backend cannot be
// reached.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	a := &App{
		cfg:    cfg,
		logger: logger,
		clock:  system.New(),
	}

	if err := a.initStores(ctx); err != nil {
		return nil, err
	}

	a.leases = lease.NewManager(a.leaseStore, a.clock, logger.Named("lease"))
	a.committer = state.NewCommitter(a.stateStore, cfg.Commit.ConflictRetries, logger.Named("commit"))
	a.notifier = buildNotifier(cfg.Notify, a.clock, logger.Named("notify"))
	a.runner = runner.New(a.leases, a.committer, a.notifier, a.clock,
		runner.Config{DetailURLBase: cfg.Notify.DetailURLBase}, logger.Named("runner"))

	if cfg.Metrics.Enabled {
		a.serveMetrics(cfg.Metrics.Port)
	}
	return a, nil
}

func (a *App) initStores(ctx context.Context) error {
	cfg := a.cfg.Store
	switch cfg.Provider {
	case "memory":
		a.logger.Info("using in-memory stores; leases and state do not survive the process")
		a.leaseStore = leasemem.NewStore()
		a.stateStore = statemem.NewStore()

	case "redis":
		a.logger.Info("using redis stores", zap.String("addr", cfg.Redis.Addr))
		rdb := r.NewClient(&r.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		ls := leaseredis.NewStore(rdb, cfg.Redis.Prefix+":lease")
		if err := ls.Ping(ctx); err != nil {
			return fmt.Errorf("ping redis: %w", err)
		}
		a.leaseStore = ls
		a.stateStore = stateredis.NewStore(rdb, cfg.Redis.Prefix+":state")
		a.closers = append(a.closers, rdb.Close)

	case "gcs":
		a.logger.Info("using gcs stores", zap.String("bucket", cfg.GCS.Bucket))
		client, err := gstorage.NewClient(ctx)
		if err != nil {
			return fmt.Errorf("create gcs client: %w", err)
		}
		ls, err := leasegcs.NewStore(ctx, client, cfg.GCS.Bucket, cfg.GCS.LeasePrefix)
		if err != nil {
			return multierr.Append(err, client.Close())
		}
		ss, err := stategcs.NewStore(ctx, client, cfg.GCS.Bucket, cfg.GCS.StatePrefix)
		if err != nil {
			return multierr.Append(err, client.Close())
		}
		a.leaseStore = ls
		a.stateStore = ss
		a.closers = append(a.closers, client.Close)

	case "postgres":
		a.logger.Info("using postgres stores")
		pool, err := pgxpool.New(ctx, cfg.Postgres.DSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return fmt.Errorf("ping postgres: %w", err)
		}
		ls, err := leasepg.NewStoreWithPool(pool)
		if err != nil {
			pool.Close()
			return err
		}
		ss, err := statepg.NewStoreWithPool(pool)
		if err != nil {
			pool.Close()
			return err
		}
		a.leaseStore = ls
		a.stateStore = ss
		a.closers = append(a.closers, func() error { pool.Close(); return nil })

	default:
		return fmt.Errorf("unknown store provider: %s", cfg.Provider)
	}
	return nil
}

func buildNotifier(cfg config.NotifyConfig, clock monitor.Clock, logger *zap.Logger) monitor.Notifier {
	if cfg.WebhookURL == "" {
		logger.Info("no webhook configured, outcomes will not be delivered")
		return notify.Noop{}
	}
	return notify.NewDiscord(notify.Config{
		WebhookURL:      cfg.WebhookURL,
		NotifyOnSuccess: cfg.OnSuccess,
		NotifyOnWarning: cfg.OnWarning,
	}, nil, clock, logger)
}

func (a *App) serveMetrics(port int) {
	metrics.Init()
	addr := fmt.Sprintf(":%d", port)
	go func() {
		a.logger.Info("serving metrics", zap.String("addr", addr))
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		if err := http.ListenAndServe(addr, mux); err != nil {
			a.logger.Error("metrics server failed", zap.Error(err))
		}
	}()
}

// Close shuts down backend clients and flushes the logger.
func (a *App) Close() error {
	var errs error
	for _, closeFn := range a.closers {
		errs = multierr.Append(errs, closeFn())
	}
	// Sync flushing stderr is best-effort; it fails on some platforms.
	_ = a.logger.Sync()
	return errs
}
