// Command audit runs one consistency check and exits. It computes
// fresh values for the named players, re-verifies them against the
// canonical pipeline, and records the result to the audit sink. A
// non-zero exit means at least one mismatch was found and purged.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/jacklawrencecmg/TradeAnalyzer-sub000/internal/cache"
	"github.com/jacklawrencecmg/TradeAnalyzer-sub000/internal/consistency"
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
	players := flag.String("players", "", "Comma-separated player IDs (default: every player in the feed)")
	formatFlag := flag.String("format", string(domain.FormatDynasty), "Scoring format (dynasty or redraft)")
	superflex := flag.Bool("superflex", false, "Price for a superflex league")
	timeout := flag.Duration("timeout", time.Minute, "Overall deadline for the audit")
	flag.Parse()

	if *feedURL == "" {
		fmt.Fprintln(os.Stderr, "Error: --feed-url is required")
		os.Exit(1)
	}
	if !*useMemory && (*postgresDSN == "" || *clickhouseDSN == "") {
		fmt.Fprintln(os.Stderr, "Error: --postgres-dsn and --clickhouse-dsn are required when not using memory storage")
		os.Exit(1)
	}
	format := domain.Format(*formatFlag)
	if !format.IsValid() {
		fmt.Fprintf(os.Stderr, "Error: unknown format %q\n", *formatFlag)
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
	valueCache := cache.New[*domain.AssetValue](5 * time.Minute)
	values := rebuild.NewService(signals, configSvc, events, valueCache, cache.NewEpochManager(valueCache), audit, 5*time.Minute, log)
	verifier := consistency.NewVerifier(values, audit, log)

	ids, err := resolvePlayers(ctx, signals, *players)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error resolving players: %v\n", err)
		os.Exit(1)
	}

	claimed := make([]*domain.AssetValue, 0, len(ids))
	for _, id := range ids {
		av, err := values.PlayerValue(ctx, id, format, *superflex)
		if err != nil {
			if errors.Is(err, rebuild.ErrUnknownAsset) {
				fmt.Fprintf(os.Stderr, "Warning: skipping unknown player %s\n", id)
				continue
			}
			fmt.Fprintf(os.Stderr, "Error valuing player %s: %v\n", id, err)
			os.Exit(1)
		}
		claimed = append(claimed, av)
	}
	if len(claimed) == 0 {
		fmt.Fprintln(os.Stderr, "Error: no auditable players")
		os.Exit(1)
	}

	result := verifier.Audit(ctx, claimed, *superflex)

	fmt.Printf("Consistency check %s: sampled %d, mismatches %d\n",
		result.CheckID, result.SampledCount, result.MismatchCount)
	for _, m := range result.Mismatches {
		fmt.Printf("  %s: claimed %.1f, canonical %.1f (delta %+.1f)\n",
			m.AssetID, m.ClaimedValue, m.CanonicalValue, m.Delta)
	}

	if !result.Clean() {
		os.Exit(1)
	}
}

// resolvePlayers expands the --players flag, falling back to the whole
// feed roster when it is empty.
func resolvePlayers(ctx context.Context, signals *feed.Chain, players string) ([]string, error) {
	if players != "" {
		var ids []string
		for _, id := range strings.Split(players, ",") {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}
		return ids, nil
	}

	snap, err := signals.Fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch signals: %w", err)
	}
	ids := make([]string, 0, len(snap.Players))
	for id := range snap.Players {
		ids = append(ids, id)
	}
	return ids, nil
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
