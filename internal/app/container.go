package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/bosunhq/stockroom/internal/audit"
	"github.com/bosunhq/stockroom/internal/dashboard"
	"github.com/bosunhq/stockroom/internal/dispatch"
	"github.com/bosunhq/stockroom/internal/importer"
	"github.com/bosunhq/stockroom/internal/inventory"
	jobmetrics "github.com/bosunhq/stockroom/internal/jobs"
	"github.com/bosunhq/stockroom/internal/observability"
	"github.com/bosunhq/stockroom/internal/platform/cache"
	"github.com/bosunhq/stockroom/internal/platform/db"
	"github.com/bosunhq/stockroom/internal/platform/memstore"
	"github.com/bosunhq/stockroom/internal/sequence"
	"github.com/bosunhq/stockroom/internal/shared"
	"github.com/bosunhq/stockroom/internal/warehouses"
	"github.com/bosunhq/stockroom/jobs"
)

// stores is the persistence a Container runs on.
type stores struct {
	tx         shared.Transactor
	items      inventory.Repository
	warehouses warehouses.Repository
	dispatches dispatch.Repository
	audit      audit.Store
	sequences  sequence.Store
	ping       func(context.Context) error
}

// Container holds the wired services shared by the server and the worker.
type Container struct {
	Config     *Config
	Logger     *slog.Logger
	Metrics    *observability.Metrics
	JobMetrics *jobmetrics.Metrics

	Clock      shared.Clock
	Trail      *audit.Trail
	Audit      *audit.Service
	Warehouses *warehouses.Service
	Inventory  *inventory.Service
	Dispatch   *dispatch.Service
	Importer   *importer.Engine
	Dashboard  *dashboard.Service

	// Jobs and Inspector are nil when REDIS_ADDR is empty.
	Jobs      *jobs.Client
	Inspector *asynq.Inspector

	ping    func(context.Context) error
	closers []func()
}

// Build connects the configured storage and cache and wires every service.
func Build(ctx context.Context, cfg *Config, logger *slog.Logger) (*Container, error) {
	c := &Container{
		Config:  cfg,
		Logger:  logger,
		Metrics: observability.NewMetrics(),
		Clock:   shared.SystemClock{Location: cfg.Location()},
	}
	c.JobMetrics = jobmetrics.NewMetrics(c.Metrics.Registerer())

	st, err := c.openStores(ctx)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.ping = st.ping

	var summaryCache dashboard.Cache
	if cfg.RedisAddr != "" {
		client, err := cache.New(ctx, cfg.RedisAddr)
		if err != nil {
			c.Close()
			return nil, err
		}
		c.closers = append(c.closers, func() { closeRedis(client, logger) })
		summaryCache = cache.NewVersioned(client, "stockroom:dashboard", cfg.DashboardCacheTTL)

		opts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
		c.Jobs = jobs.NewClient(opts)
		c.Inspector = asynq.NewInspector(opts)
		c.closers = append(c.closers,
			func() { _ = c.Jobs.Close() },
			func() { _ = c.Inspector.Close() },
		)
	}

	codes := sequence.NewGenerator(st.sequences)
	c.Trail = audit.NewTrail(st.audit, c.Clock)
	c.Audit = audit.NewService(st.audit, logger)
	c.Warehouses = warehouses.NewService(st.tx, st.warehouses, c.Trail, c.Clock, logger)
	c.Inventory = inventory.NewService(inventory.ServiceConfig{
		Transactor: st.tx,
		Repository: st.items,
		Warehouses: st.warehouses,
		Codes:      codes,
		Audit:      c.Trail,
		Clock:      c.Clock,
		Logger:     logger,
	})
	c.Dispatch = dispatch.NewService(dispatch.ServiceConfig{
		Transactor:         st.tx,
		Repository:         st.dispatches,
		Ledger:             c.Inventory.Ledger(),
		Codes:              codes,
		Warehouses:         st.warehouses,
		Audit:              c.Trail,
		Clock:              c.Clock,
		Logger:             logger,
		Metrics:            c.Metrics,
		DefaultDestination: cfg.DefaultDestination,
	})
	c.Importer = importer.NewEngine(importer.Config{
		Transactor: st.tx,
		Items:      st.items,
		Warehouses: st.warehouses,
		Codes:      codes,
		Audit:      c.Trail,
		Clock:      c.Clock,
		Logger:     logger,
		Metrics:    c.Metrics,
	})
	c.Dashboard = dashboard.NewService(st.items, st.warehouses, st.dispatches, summaryCache, c.Clock, logger, cfg.LowStockThreshold)
	return c, nil
}

func (c *Container) openStores(ctx context.Context) (stores, error) {
	if c.Config.StorageDriver == StorageMemory {
		c.Logger.Warn("using in-memory storage; data is lost on restart")
		mem := memstore.New()
		return stores{
			tx:         mem,
			items:      mem.Inventory(),
			warehouses: mem.Warehouses(),
			dispatches: mem.Dispatches(),
			audit:      mem.Audit(),
			sequences:  mem.Sequences(),
			ping:       func(context.Context) error { return nil },
		}, nil
	}

	if c.Config.AutoMigrate {
		if err := db.Migrate(ctx, c.Config.PGDSN); err != nil {
			return stores{}, fmt.Errorf("app: migrate: %w", err)
		}
	}
	pool, err := db.New(ctx, c.Config.PGDSN, c.Config.PGMaxConns)
	if err != nil {
		return stores{}, err
	}
	c.closers = append(c.closers, pool.Close)
	// Codes are reserved while the caller holds a connection from pool.
	seqPool, err := db.New(ctx, c.Config.PGDSN, c.Config.PGSequenceConns)
	if err != nil {
		return stores{}, err
	}
	c.closers = append(c.closers, seqPool.Close)
	return stores{
		tx:         db.NewTxManager(pool),
		items:      inventory.NewRepository(pool),
		warehouses: warehouses.NewRepository(pool),
		dispatches: dispatch.NewRepository(pool),
		audit:      audit.NewRepository(pool),
		sequences:  sequence.NewPostgresStore(seqPool),
		ping:       pool.Ping,
	}, nil
}

// Ping reports whether the storage backend is reachable.
func (c *Container) Ping(ctx context.Context) error {
	if c == nil || c.ping == nil {
		return nil
	}
	return c.ping(ctx)
}

// Close releases connections in reverse order of acquisition.
func (c *Container) Close() {
	if c == nil {
		return
	}
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	c.closers = nil
}

func closeRedis(client *redis.Client, logger *slog.Logger) {
	if err := client.Close(); err != nil {
		logger.Warn("redis close", slog.Any("error", err))
	}
}
