// Command rebuild runs one full valuation rebuild and exits. It is
// meant for cron and for recovering after a bad config change without
// restarting the server.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/jacklawrencecmg/TradeAnalyzer-sub000/internal/cache"
	"github.com/jacklawrencecmg/TradeAnalyzer-sub000/internal/domain"
	"github.com/jacklawrencecmg/TradeAnalyzer-sub000/internal/feed"
	"github.com/jacklawrencecmg/TradeAnalyzer-sub000/internal/modelconfig"
	"github.com/jacklawrencecmg/TradeAnalyzer-sub000/internal/rebuild"
	"github.com/jacklawrencecmg/TradeAnalyzer-sub000/internal/storage"
	chstore "github.com/jacklawrencecmg/TradeAnalyzer-sub000/internal/storage/clickhouse"
	"github.com/jacklawrencecmg/TradeAnalyzer-sub000/internal/storage/memory"
	pgstore "github.com/jacklawrencecmg/TradeAnalyzer-sub000/internal/storage/postgres"
)

func main() {
	feedURL := flag.String("feed-url", "", "Signal feed HTTP URL")
	postgresDSN := flag.String("postgres-dsn", "", "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", "", "ClickHouse connection string")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of databases")
	valueTTL := flag.Duration("value-ttl", 5*time.Minute, "TTL for warmed value entries")
	timeout := flag.Duration("timeout", 2*time.Minute, "Overall deadline for the rebuild")
	flag.Parse()

	if *feedURL == "" {
		fmt.Fprintln(os.Stderr, "Error: --feed-url is required")
		os.Exit(1)
	}
	if !*useMemory && (*postgresDSN == "" || *clickhouseDSN == "") {
		fmt.Fprintln(os.Stderr, "Error: --postgres-dsn and --clickhouse-dsn are required when not using memory storage")
		os.Exit(1)
	}

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	configStore, history, events, audit, cleanup, err := createStores(ctx, *postgresDSN, *clickhouseDSN, *useMemory)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error connecting to storage: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	configSvc := modelconfig.NewService(configStore, history, log)
	if err := configSvc.Seed(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error seeding configuration: %v\n", err)
		os.Exit(1)
	}

	signals := feed.NewChain(log, feed.NewHTTPSource("feed-http", *feedURL, nil, 0))
	valueCache := cache.New[*domain.AssetValue](*valueTTL)
	values := rebuild.NewService(signals, configSvc, events, valueCache, cache.NewEpochManager(valueCache), audit, *valueTTL, log)

	epoch, assets, err := values.RebuildAll(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error running rebuild: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Rebuild complete: epoch %s, %d asset values\n", epoch, assets)
}

func createStores(ctx context.Context, postgresDSN, clickhouseDSN string, useMemory bool) (
	storage.ConfigStore,
	storage.ConfigHistoryStore,
	storage.AdjustmentEventStore,
	storage.AuditSink,
	func(),
	error,
) {
	if useMemory {
		configStore := memory.NewConfigStore()
		return configStore, configStore, memory.NewAdjustmentEventStore(), memory.NewAuditSink(), func() {}, nil
	}

	pool, err := pgstore.NewPool(ctx, postgresDSN)
	if err != nil {
		return nil, nil, nil, nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	chConn, err := chstore.NewConn(ctx, clickhouseDSN)
	if err != nil {
		pool.Close()
		return nil, nil, nil, nil, nil, fmt.Errorf("connect to clickhouse: %w", err)
	}

	configStore := pgstore.NewConfigStore(pool)
	cleanup := func() {
		chConn.Close()
		pool.Close()
	}
	return configStore, configStore, pgstore.NewAdjustmentEventStore(pool), chstore.NewAuditSink(chConn), cleanup, nil
}
