package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"proctrack/internal/assignment"
	"proctrack/internal/calendar"
	catalogservice "proctrack/internal/catalog/service"
	catalogstore "proctrack/internal/catalog/store"
	catalogcache "proctrack/internal/catalog/store/cache"
	"proctrack/internal/eta"
	etametrics "proctrack/internal/eta/metrics"
	jwttoken "proctrack/internal/jwt_token"
	"proctrack/internal/notify"
	"proctrack/internal/platform/config"
	"proctrack/internal/platform/httpserver"
	"proctrack/internal/platform/kafka"
	"proctrack/internal/platform/logger"
	"proctrack/internal/platform/metrics"
	"proctrack/internal/platform/postgres"
	"proctrack/internal/platform/redis"
	refnummetrics "proctrack/internal/refnum/metrics"
	refnumservice "proctrack/internal/refnum/service"
	refnumstore "proctrack/internal/refnum/store"
	"proctrack/internal/tracking/handler"
	trackingmetrics "proctrack/internal/tracking/metrics"
	trackingservice "proctrack/internal/tracking/service"
	trackingstore "proctrack/internal/tracking/store"
	"proctrack/migrations"
)

// main wires the stores, services and HTTP router and keeps the process
// lifecycle small. Business logic lives in the internal service packages.
func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("proctrack stopped with error", "error", err)
		os.Exit(1)
	}
}

// stores groups the persistence backends chosen by configuration.
type stores struct {
	catalog   catalogservice.Store
	sequences refnumservice.SequenceStore
	txns      interface {
		trackingservice.Store
		trackingservice.ActionStore
		assignment.Store
		eta.Store
	}
	directory notify.Directory
	tx        trackingservice.TxRunner
	db        *sql.DB
}

func run(ctx context.Context, cfg config.Server, log *slog.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	st, err := openStores(ctx, cfg, log)
	if err != nil {
		return err
	}
	if st.db != nil {
		defer st.db.Close()
	}

	catalogSource, closeCache, err := withCatalogCache(st.catalog, cfg.Redis, log)
	if err != nil {
		return err
	}
	defer closeCache()

	notifier, closeNotifier, err := newNotifier(ctx, cfg.Kafka, log)
	if err != nil {
		return err
	}
	defer closeNotifier()

	loc, err := time.LoadLocation(cfg.Calendar.Timezone)
	if err != nil {
		return fmt.Errorf("load business timezone: %w", err)
	}
	holidays, err := calendar.ParseHolidays(cfg.Calendar.Holidays, loc)
	if err != nil {
		return fmt.Errorf("parse business holidays: %w", err)
	}
	cal := calendar.New(loc, holidays...)

	catalog, err := catalogservice.New(catalogSource, catalogservice.WithLogger(log))
	if err != nil {
		return err
	}
	refs, err := refnumservice.New(st.sequences,
		refnumservice.WithLogger(log),
		refnumservice.WithMetrics(refnummetrics.New(reg)),
		refnumservice.WithLocation(loc),
		refnumservice.WithLockTimeout(cfg.Sequence.LockTimeout),
	)
	if err != nil {
		return err
	}
	resolver, err := assignment.New(catalog,
		assignment.WithLogger(log),
		assignment.WithBackfill(st.txns, st.tx),
	)
	if err != nil {
		return err
	}
	engine, err := trackingservice.New(st.txns, st.txns, refs, catalog, resolver,
		trackingservice.WithLogger(log),
		trackingservice.WithMetrics(trackingmetrics.New(reg)),
		trackingservice.WithNotifier(notifier),
		trackingservice.WithTx(st.tx),
	)
	if err != nil {
		return err
	}

	severity := eta.SeverityPolicy{WarningMaxDays: cfg.Tracking.WarningMaxDelayDays}
	calculator := eta.NewCalculator(cal, cfg.Tracking.IdleThresholdDays)
	sweeper, err := eta.NewSweeper(st.txns, catalog, st.directory, notifier, st.tx, calculator,
		eta.WithSweepLogger(log),
		eta.WithSweepMetrics(etametrics.New(reg)),
		eta.WithCooldown(cfg.Tracking.OverdueRenotifyCooldown),
		eta.WithSeverityPolicy(severity),
	)
	if err != nil {
		return err
	}
	scheduler := eta.NewScheduler(sweeper, cfg.Tracking.OverdueSweepInterval, log)

	httpMetrics := metrics.New(reg)
	router := chi.NewRouter()
	router.Use(httpMetrics.Middleware)
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if st.db != nil {
			if err := st.db.PingContext(r.Context()); err != nil {
				http.Error(w, "database unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
	})
	router.Handle("/metrics", metrics.Handler(reg))
	tokens := jwttoken.NewJWTService(cfg.Auth.JWTSigningKey, cfg.Auth.JWTIssuer, cfg.Auth.JWTAudience)
	handler.New(engine, resolver, sweeper, calculator,
		handler.WithLogger(log),
		handler.WithSeverityPolicy(severity),
	).Register(router, tokens)

	srv := httpserver.New(cfg.Addr, router)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting proctrack", "addr", cfg.Addr, "postgres", st.db != nil)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return scheduler.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		log.Info("shutting down proctrack")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// openStores picks postgres when DATABASE_URL is set and in-memory stores
// otherwise.
func openStores(ctx context.Context, cfg config.Server, log *slog.Logger) (*stores, error) {
	if cfg.Postgres.URL == "" {
		log.Warn("DATABASE_URL not set, using in-memory stores")
		txns := trackingstore.NewInMemory()
		return &stores{
			catalog:   catalogstore.NewInMemory(),
			sequences: refnumstore.NewInMemory(),
			txns:      txns,
			directory: notify.NewStaticDirectory(),
			tx:        trackingservice.NewShardedTx(cfg.Postgres.TxTimeout),
		}, nil
	}

	db, err := postgres.Open(ctx, cfg.Postgres)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := migrations.Apply(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}
	return &stores{
		catalog:   catalogstore.NewPostgres(db),
		sequences: refnumstore.NewPostgres(db, cfg.Sequence.LockTimeout),
		txns:      trackingstore.NewPostgres(db),
		directory: notify.NewPostgresDirectory(db),
		tx:        newPostgresTx(db, cfg.Postgres.TxTimeout, cfg.Sequence.LockTimeout),
		db:        db,
	}, nil
}

func withCatalogCache(source catalogservice.Store, cfg config.RedisConfig, log *slog.Logger) (catalogservice.Store, func(), error) {
	client, err := redis.New(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("connect redis: %w", err)
	}
	if client == nil {
		return source, func() {}, nil
	}
	log.Info("workflow catalog cache enabled", "ttl", cfg.CatalogTTL)
	return catalogcache.New(source, client.Client, cfg.CatalogTTL, log), func() { _ = client.Close() }, nil
}

// notifyFlushTimeout bounds how long shutdown waits for buffered events.
const notifyFlushTimeout = 10 * time.Second

func newNotifier(ctx context.Context, cfg config.KafkaConfig, log *slog.Logger) (notify.Notifier, func(), error) {
	client, err := kafka.NewClient(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("create kafka client: %w", err)
	}
	if client == nil {
		log.Warn("KAFKA_BROKERS not set, notifications are only logged")
		return notify.NewLogNotifier(log), func() {}, nil
	}
	if err := kafka.EnsureTopic(ctx, client, cfg.NotifyTopic, 3, 1); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("ensure notify topic: %w", err)
	}
	n := notify.NewKafkaNotifier(client, cfg.NotifyTopic, log)
	return n, func() { n.Close(notifyFlushTimeout) }, nil
}
