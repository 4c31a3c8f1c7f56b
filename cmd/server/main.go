// Package main runs the trade value service: the HTTP API, the config
// change watcher, and the scheduled background tasks (adjustment scans,
// cache sweeps, retention).
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog"

	"github.com/jacklawrencecmg/TradeAnalyzer-sub000/internal/cache"
	"github.com/jacklawrencecmg/TradeAnalyzer-sub000/internal/consistency"
	"github.com/jacklawrencecmg/TradeAnalyzer-sub000/internal/domain"
	"github.com/jacklawrencecmg/TradeAnalyzer-sub000/internal/feed"
	"github.com/jacklawrencecmg/TradeAnalyzer-sub000/internal/httpapi"
	"github.com/jacklawrencecmg/TradeAnalyzer-sub000/internal/modelconfig"
	"github.com/jacklawrencecmg/TradeAnalyzer-sub000/internal/overlay"
	"github.com/jacklawrencecmg/TradeAnalyzer-sub000/internal/rebuild"
	"github.com/jacklawrencecmg/TradeAnalyzer-sub000/internal/scheduler"
	"github.com/jacklawrencecmg/TradeAnalyzer-sub000/internal/storage"
	chstore "github.com/jacklawrencecmg/TradeAnalyzer-sub000/internal/storage/clickhouse"
	"github.com/jacklawrencecmg/TradeAnalyzer-sub000/internal/storage/memory"
	"github.com/jacklawrencecmg/TradeAnalyzer-sub000/internal/storage/migrations"
	pgstore "github.com/jacklawrencecmg/TradeAnalyzer-sub000/internal/storage/postgres"
	"github.com/jacklawrencecmg/TradeAnalyzer-sub000/internal/trade"
)

type config struct {
	ListenAddr    string `env:"LISTEN_ADDR" envDefault:":8080"`
	PostgresDSN   string `env:"POSTGRES_DSN"`
	ClickhouseDSN string `env:"CLICKHOUSE_DSN"`
	UseMemory     bool   `env:"USE_MEMORY" envDefault:"false"`

	FeedWSEndpoint   string        `env:"FEED_WS_ENDPOINT"`
	FeedHTTPURL      string        `env:"FEED_HTTP_URL"`
	FeedPollInterval time.Duration `env:"FEED_POLL_INTERVAL" envDefault:"1m"`

	AdminToken string `env:"ADMIN_TOKEN"`
	CronSecret string `env:"CRON_SECRET"`

	ValueTTL          time.Duration `env:"VALUE_TTL" envDefault:"5m"`
	ScanInterval      time.Duration `env:"SCAN_INTERVAL" envDefault:"30m"`
	SweepInterval     time.Duration `env:"SWEEP_INTERVAL" envDefault:"1m"`
	RetentionInterval time.Duration `env:"RETENTION_INTERVAL" envDefault:"24h"`
	Retention         time.Duration `env:"RETENTION" envDefault:"720h"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogPretty bool   `env:"LOG_PRETTY" envDefault:"false"`
}

type stores struct {
	config storage.ConfigStore
	events storage.AdjustmentEventStore
	audit  storage.AuditSink
	// history is served by the same backend as config.
	history storage.ConfigHistoryStore
}

func main() {
	var cfg config
	if err := env.Parse(&cfg); err != nil {
		fmt.Fprintf(os.Stderr, "parse environment: %v\n", err)
		os.Exit(1)
	}

	// Flags override the environment.
	flag.StringVar(&cfg.ListenAddr, "listen-addr", cfg.ListenAddr, "HTTP listen address")
	flag.StringVar(&cfg.PostgresDSN, "postgres-dsn", cfg.PostgresDSN, "PostgreSQL connection string")
	flag.StringVar(&cfg.ClickhouseDSN, "clickhouse-dsn", cfg.ClickhouseDSN, "ClickHouse connection string")
	flag.BoolVar(&cfg.UseMemory, "use-memory", cfg.UseMemory, "Use in-memory storage instead of PostgreSQL/ClickHouse")
	flag.StringVar(&cfg.FeedWSEndpoint, "feed-ws-endpoint", cfg.FeedWSEndpoint, "Signal feed WebSocket endpoint")
	flag.StringVar(&cfg.FeedHTTPURL, "feed-http-url", cfg.FeedHTTPURL, "Signal feed HTTP polling URL")
	flag.DurationVar(&cfg.ScanInterval, "scan-interval", cfg.ScanInterval, "Adjustment detection interval")
	flag.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level (trace..panic)")
	flag.Parse()

	log := newLogger(cfg)

	if cfg.AdminToken == "" || cfg.CronSecret == "" {
		log.Fatal().Msg("ADMIN_TOKEN and CRON_SECRET are required")
	}
	if cfg.FeedWSEndpoint == "" && cfg.FeedHTTPURL == "" {
		log.Fatal().Msg("at least one of FEED_WS_ENDPOINT and FEED_HTTP_URL is required")
	}
	if !cfg.UseMemory && (cfg.PostgresDSN == "" || cfg.ClickhouseDSN == "") {
		log.Fatal().Msg("POSTGRES_DSN and CLICKHOUSE_DSN are required (or set USE_MEMORY)")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, cleanup, err := createStores(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create stores")
	}
	defer cleanup()

	signals, closeFeed, err := createFeed(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create signal feed")
	}
	defer closeFeed()

	configSvc := modelconfig.NewService(st.config, st.history, log)
	if err := configSvc.Seed(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to seed configuration")
	}

	valueCache := cache.New[*domain.AssetValue](cfg.ValueTTL)
	epochs := cache.NewEpochManager(valueCache)
	values := rebuild.NewService(signals, configSvc, st.events, valueCache, epochs, st.audit, cfg.ValueTTL, log)
	verifier := consistency.NewVerifier(values, st.audit, log)
	trades := trade.NewEvaluator(values, configSvc, log)
	detector := overlay.NewDetector(st.events, st.audit, log)

	// Recompute-class config changes trigger a fresh epoch.
	go values.Watch(ctx, configSvc.Subscribe())

	// Warm the cache before serving; a failed first rebuild is not fatal,
	// reads fall back to per-asset computes.
	if _, assets, err := values.RebuildAll(ctx); err != nil {
		log.Warn().Err(err).Msg("initial rebuild failed, serving cold")
	} else {
		log.Info().Int("assets", assets).Msg("initial rebuild complete")
	}

	sched := scheduler.New(log)
	sched.Add("adjustment-scan", cfg.ScanInterval, func(ctx context.Context) error {
		snap, err := signals.Fetch(ctx)
		if err != nil {
			return fmt.Errorf("fetch signals: %w", err)
		}
		_, err = detector.Run(ctx, snap)
		return err
	})
	sched.Add("cache-sweep", cfg.SweepInterval, func(context.Context) error {
		valueCache.Sweep()
		return nil
	})
	sched.Add("adjustment-retention", cfg.RetentionInterval, func(ctx context.Context) error {
		_, err := detector.SweepExpired(ctx, cfg.Retention)
		return err
	})
	sched.Start(ctx)

	api := httpapi.NewServer(httpapi.Options{
		Config:     configSvc,
		Values:     values,
		Trades:     trades,
		Detector:   detector,
		Verifier:   verifier,
		Signals:    signals,
		ValueCache: valueCache,
		AdminToken: cfg.AdminToken,
		CronSecret: cfg.CronSecret,
		Retention:  cfg.Retention,
		Log:        log,
	})

	httpServer := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      api.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.ListenAddr).Msg("HTTP server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-serverErr:
		log.Error().Err(err).Msg("HTTP server failed")
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("HTTP server shutdown incomplete")
	}

	sched.Wait()
	verifier.Wait()
	log.Info().Msg("shutdown complete")
}

func newLogger(cfg config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	var log zerolog.Logger
	if cfg.LogPretty {
		log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	} else {
		log = zerolog.New(os.Stderr)
	}
	return log.Level(level).With().Timestamp().Logger()
}

func createStores(ctx context.Context, cfg config) (*stores, func(), error) {
	if cfg.UseMemory {
		configStore := memory.NewConfigStore()
		return &stores{
			config:  configStore,
			history: configStore,
			events:  memory.NewAdjustmentEventStore(),
			audit:   memory.NewAuditSink(),
		}, func() {}, nil
	}

	pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("migrate postgres: %w", err)
	}

	chConn, err := migrations.RunClickhouseMigrations(ctx, cfg.ClickhouseDSN)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("migrate clickhouse: %w", err)
	}

	configStore := pgstore.NewConfigStore(pool)
	st := &stores{
		config:  configStore,
		history: configStore,
		events:  pgstore.NewAdjustmentEventStore(pool),
		audit:   chstore.NewAuditSink(chConn),
	}
	cleanup := func() {
		chConn.Close()
		pool.Close()
	}
	return st, cleanup, nil
}

func createFeed(ctx context.Context, cfg config, log zerolog.Logger) (*feed.Chain, func(), error) {
	var sources []feed.Source
	var wsSource *feed.WSSource

	if cfg.FeedWSEndpoint != "" {
		ws, err := feed.NewWSSource(ctx, "feed-ws", cfg.FeedWSEndpoint, nil, log)
		if err != nil {
			return nil, nil, fmt.Errorf("connect feed websocket: %w", err)
		}
		wsSource = ws
		sources = append(sources, ws)
	}
	if cfg.FeedHTTPURL != "" {
		sources = append(sources, feed.NewHTTPSource("feed-http", cfg.FeedHTTPURL, nil, cfg.FeedPollInterval))
	}

	closeFeed := func() {
		if wsSource != nil {
			wsSource.Close()
		}
	}
	return feed.NewChain(log, sources...), closeFeed, nil
}
