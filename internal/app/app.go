package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/kirinyoku/tix-checkout/internal/authority"
	"github.com/kirinyoku/tix-checkout/internal/config"
	"github.com/kirinyoku/tix-checkout/internal/metrics"
	"github.com/kirinyoku/tix-checkout/internal/postgres"
	"github.com/kirinyoku/tix-checkout/internal/queue"
	redisx "github.com/kirinyoku/tix-checkout/internal/redis"
	memoryrepo "github.com/kirinyoku/tix-checkout/internal/repository/memory"
	postgresrepo "github.com/kirinyoku/tix-checkout/internal/repository/postgres"
	redisrepo "github.com/kirinyoku/tix-checkout/internal/repository/redis"
	"github.com/kirinyoku/tix-checkout/internal/service"
	"github.com/kirinyoku/tix-checkout/internal/service/catalog"
	"github.com/kirinyoku/tix-checkout/internal/service/ledger"
	"github.com/kirinyoku/tix-checkout/internal/service/reservation"
	httpgin "github.com/kirinyoku/tix-checkout/internal/transport/http/gin"
	"github.com/kirinyoku/tix-checkout/internal/worker"
)

const (
	shutdownTimeout = 5 * time.Second
	idempotencyTTL  = 2 * time.Hour
)

type App struct {
	cfg        *config.Config
	logger     *slog.Logger
	httpServer *http.Server

	pool    *pgxpool.Pool
	rdb     *goredis.Client
	pubsub  *redisx.PubSub
	catalog *catalog.Service
	sweeper *worker.SessionSweeper

	// nil when AMQP is not configured
	consumer  *queue.CatalogConsumer
	publisher *queue.SalesPublisher
}

func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	// Initialize dependencies
	dsn := postgres.Config{
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		Name:     cfg.Postgres.DB,
		SSLMode:  cfg.Postgres.SSLMode,
	}.DSN()

	if err := postgres.Migrate(dsn); err != nil {
		return nil, fmt.Errorf("failed to migrate postgres: %w", err)
	}

	pool, err := postgres.New(ctx, dsn, cfg.Postgres.MaxConns)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize postgres: %w", err)
	}

	rdb, err := redisx.New(ctx, redisx.Config{
		Addr:         cfg.Redis.Addr,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		DialTimeout:  cfg.Redis.DialTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
	})
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to initialize redis: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewWithRegistry(reg)

	// Initialize repositories
	store := postgresrepo.NewStore(pool)
	cache := redisrepo.NewCache(rdb)
	pubsub := redisx.NewPubSub(rdb)
	idempotencyStore := redisrepo.NewIdempotencyStore(rdb, idempotencyTTL)

	// RATE_LIMIT_PER_MINUTE=0 disables rate limiting
	var limiter httpgin.Limiter
	if cfg.RateLimitPerMinute > 0 {
		limiter = redisrepo.NewSlidingWindowLimiter(rdb, "steps", cfg.RateLimitPerMinute, time.Minute)
	}

	var sessions reservation.SessionStore = memoryrepo.NewSessionStore()
	if cfg.SessionStore == config.StorePostgres {
		sessions = store.Sessions()
	}

	var locker reservation.UserLocker = reservation.NewKeyedMutex()
	if cfg.UserLock == config.LockRedis {
		locker = redisrepo.NewUserLocker(rdb, cfg.UserLockTTL(), 0, logger)
	}

	authClient := authority.New(authority.Config{
		BaseURL:        cfg.Authority.BaseURL,
		Token:          cfg.Authority.Token,
		ConnectTimeout: cfg.Authority.ConnectTimeout,
		ReadTimeout:    cfg.Authority.ReadTimeout,
	}, logger)

	a := &App{
		cfg:    cfg,
		logger: logger,
		pool:   pool,
		rdb:    rdb,
		pubsub: pubsub,
	}

	notifiers := []ledger.Notifier{pubsub}
	if cfg.AMQP.URL != "" {
		a.publisher = queue.NewSalesPublisher(cfg.AMQP.URL, cfg.AMQP.SalesQueue, logger)
		notifiers = append(notifiers, a.publisher)
	}

	// Initialize services
	a.catalog = catalog.New(authClient, cache, pubsub, m, catalog.Config{EventTTL: cfg.CatalogCacheTTL}, logger)
	ledgerSvc := ledger.NewFromStore(store, notifiers, logger)

	services := service.NewServices(reservation.Deps{
		Sessions:  sessions,
		Oracle:    redisrepo.NewOccupancyReader(rdb, 0),
		Authority: authClient,
		Locker:    locker,
		Metrics:   m,
	}, a.catalog, ledgerSvc, service.Config{
		Reservation: reservation.Config{
			SessionTTL: cfg.SessionTTL,
			LockWait:   cfg.UserLockWait,
		},
	}, logger)

	a.sweeper, err = worker.NewSessionSweeper(services.Reservation, cfg.SweepInterval, logger)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("failed to initialize sweeper: %w", err)
	}

	if cfg.AMQP.URL != "" {
		a.consumer = queue.NewCatalogConsumer(cfg.AMQP.URL, cfg.AMQP.CatalogQueue, func(ctx context.Context, eventID int64) error {
			return a.catalog.Invalidate(ctx, eventID, catalog.SourceAMQP)
		}, logger)
	}

	// Initialize Gin router
	router := httpgin.NewRouter(services, httpgin.RouterDeps{
		Idempotency: idempotencyStore,
		Limiter:     limiter,
		JWTSecret:   cfg.JWTSecret,
		Metrics:     promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		Ready:       a.ready,
		Logger:      logger,
	})

	a.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return a, nil
}

// Run serves until ctx is cancelled or a component fails, then shuts
// everything down.
func (a *App) Run(ctx context.Context) error {
	defer a.close()

	g, gCtx := errgroup.WithContext(ctx)

	// Start HTTP server
	g.Go(func() error {
		a.logger.Info("HTTP server listening", "host", a.cfg.Server.Host, "port", a.cfg.Server.Port)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to start HTTP server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return a.sweeper.Run(gCtx)
	})

	// Catalog changes announced by other instances
	g.Go(func() error {
		err := a.pubsub.SubscribeCatalogChanged(gCtx, func(ctx context.Context, eventID int64) {
			if err := a.catalog.Invalidate(ctx, eventID, catalog.SourcePubSub); err != nil {
				a.logger.Warn("catalog invalidation failed", "event_id", eventID, "err", err)
			}
		})
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	if a.consumer != nil {
		g.Go(func() error {
			return a.consumer.Run(gCtx)
		})
	}

	// Graceful shutdown
	g.Go(func() error {
		<-gCtx.Done()
		a.logger.Info("shutting down HTTP server")
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return a.httpServer.Shutdown(ctx)
	})

	return g.Wait()
}

// ready reports whether both backing stores answer.
func (a *App) ready(ctx context.Context) error {
	if err := a.pool.Ping(ctx); err != nil {
		return fmt.Errorf("postgres: %w", err)
	}

	if err := redisx.Ping(ctx, a.rdb); err != nil {
		return fmt.Errorf("redis: %w", err)
	}

	return nil
}

func (a *App) close() {
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.logger.Warn("amqp publisher close failed", "err", err)
		}
	}

	if err := a.rdb.Close(); err != nil {
		a.logger.Warn("redis close failed", "err", err)
	}

	a.pool.Close()
}
