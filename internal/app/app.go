// Package app wires the scheduling core to the backends selected in config.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/hackgods/doctor-scheduling/internal/api"
	"github.com/hackgods/doctor-scheduling/internal/appointment"
	"github.com/hackgods/doctor-scheduling/internal/config"
	"github.com/hackgods/doctor-scheduling/internal/db"
	"github.com/hackgods/doctor-scheduling/internal/directory"
	"github.com/hackgods/doctor-scheduling/internal/discovery"
	"github.com/hackgods/doctor-scheduling/internal/lock"
	"github.com/hackgods/doctor-scheduling/internal/metrics"
	"github.com/hackgods/doctor-scheduling/internal/notify"
	redisclient "github.com/hackgods/doctor-scheduling/internal/redis"
	"github.com/hackgods/doctor-scheduling/pkg/logging"
)

// CatalogDirectory is a directory that can also take catalog updates.
type CatalogDirectory interface {
	directory.Directory
	directory.Catalog
}

type App struct {
	Config    config.Config
	Logger    *logging.Logger
	Pool      *pgxpool.Pool
	Redis     *redis.Client
	Registry  *prometheus.Registry
	Metrics   *metrics.SchedulingMetrics
	Directory CatalogDirectory
	Store     appointment.Store
	Allocator *appointment.Allocator
	Ledger    *appointment.Ledger
	Search    *discovery.Engine

	closers []func()
}

// New connects the configured backends. With no POSTGRES_DSN everything runs
// in memory, which only makes sense for a single api-server process.
func New(ctx context.Context, cfg config.Config, logger *logging.Logger) (*App, error) {
	if logger == nil {
		logger = logging.Default()
	}
	a := &App{Config: cfg, Logger: logger, Registry: prometheus.NewRegistry()}
	a.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.Metrics = metrics.NewSchedulingMetrics(a.Registry)

	if err := a.connect(ctx); err != nil {
		a.Close()
		return nil, err
	}

	dispatcher, err := a.dispatcher()
	if err != nil {
		a.Close()
		return nil, err
	}

	var locker lock.Locker = lock.NewLocal()
	if a.Redis != nil {
		locker = lock.NewRedis(a.Redis, cfg.LockTTL)
	}

	a.Allocator = appointment.NewAllocator(a.Directory, a.Store, locker, dispatcher).
		WithLogger(logger).
		WithObserver(a.Metrics)
	a.Ledger = appointment.NewLedger(a.Store, a.Allocator, dispatcher).
		WithLogger(logger).
		WithObserver(a.Metrics).
		WithRescheduleRetries(cfg.RescheduleRetries)
	a.Search = discovery.NewEngine(a.Directory, a.Metrics)

	if cfg.CatalogFile != "" {
		n, err := a.LoadCatalogFile(ctx, cfg.CatalogFile)
		if err != nil {
			a.Close()
			return nil, err
		}
		logger.Info().Int("doctors", n).Str("file", cfg.CatalogFile).Msg("catalog loaded")
	}

	return a, nil
}

func (a *App) connect(ctx context.Context) error {
	cfg := a.Config

	if cfg.PostgresDSN != "" {
		if cfg.AutoMigrate {
			if err := db.Migrate(cfg.PostgresDSN); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
		}
		pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, db.PoolOptions{})
		if err != nil {
			return err
		}
		a.Pool = pool
		a.closers = append(a.closers, pool.Close)
		a.Directory = directory.NewPgDirectory(pool)
		a.Store = appointment.NewPgStore(pool)
		a.Logger.Info().Msg("connected to Postgres")
	} else {
		a.Directory = directory.NewMemoryDirectory()
		a.Store = appointment.NewMemoryStore()
		a.Logger.Warn().Msg("POSTGRES_DSN not set; using in-memory storage")
	}

	if cfg.RedisAddr != "" {
		rdb, err := redisclient.NewRedisClient(ctx, redisclient.Options{
			Addr:     cfg.RedisAddr,
			Username: cfg.RedisUsername,
			Password: cfg.RedisPassword,
		})
		if err != nil {
			return err
		}
		a.Redis = rdb
		a.closers = append(a.closers, func() {
			if err := rdb.Close(); err != nil {
				a.Logger.Error().Err(err).Msg("error closing redis")
			}
		})
		a.Logger.Info().Msg("connected to Redis")
	}
	return nil
}

func (a *App) dispatcher() (notify.Dispatcher, error) {
	var sink notify.Sink
	switch a.Config.NotifySink {
	case config.SinkNone:
		return notify.Noop{}, nil
	case config.SinkRedis:
		if a.Redis == nil {
			return nil, errors.New("redis notification sink needs a redis connection")
		}
		sink = notify.NewRedisStream(a.Redis, notify.DefaultStream)
	case config.SinkAMQP:
		p, err := notify.NewAMQP(a.Config.AMQPURL, a.Config.AMQPExchange)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = p.Close() })
		sink = p
	default:
		sink = notify.NewLog(a.Logger)
	}

	async := notify.NewAsync(sink, a.Config.NotifyBuffer, a.Logger, a.Metrics)
	// drain queued events before the sink connections close
	a.closers = append(a.closers, async.Close)
	return async, nil
}

// LoadCatalogFile upserts every doctor in a JSON catalog file.
func (a *App) LoadCatalogFile(ctx context.Context, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open catalog: %w", err)
	}
	defer f.Close()

	profiles, err := directory.LoadCatalog(f, a.Config.Location())
	if err != nil {
		return 0, fmt.Errorf("load catalog %s: %w", path, err)
	}
	for _, p := range profiles {
		if err := a.Directory.Upsert(ctx, p); err != nil {
			return 0, fmt.Errorf("upsert doctor %s: %w", p.ID, err)
		}
	}
	return len(profiles), nil
}

func (a *App) Router(version string) http.Handler {
	return api.NewRouter(api.RouterConfig{
		Search:       a.Search,
		Doctors:      a.Directory,
		Appointments: a.Ledger,
		Logger:       a.Logger,
		PgPool:       a.Pool,
		Redis:        a.Redis,
		Gatherer:     a.Registry,
		Env:          a.Config.Env,
		Version:      version,
	})
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
