package rebuild

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/jacklawrencecmg/TradeAnalyzer-sub000/internal/cache"
	"github.com/jacklawrencecmg/TradeAnalyzer-sub000/internal/domain"
	"github.com/jacklawrencecmg/TradeAnalyzer-sub000/internal/modelconfig"
	"github.com/jacklawrencecmg/TradeAnalyzer-sub000/internal/observability"
	"github.com/jacklawrencecmg/TradeAnalyzer-sub000/internal/storage"
	"github.com/jacklawrencecmg/TradeAnalyzer-sub000/internal/valuation"
)

var (
	// ErrUnknownAsset is returned when the signal feed has no record of
	// the requested player.
	ErrUnknownAsset = errors.New("unknown asset")

	// ErrSuperseded is returned by a rebuild whose epoch was overtaken
	// by a newer rebuild before it could activate.
	ErrSuperseded = errors.New("rebuild superseded")
)

// SnapshotProvider delivers the current signal snapshot.
type SnapshotProvider interface {
	Fetch(ctx context.Context) (*domain.SignalSnapshot, error)
}

// ParamSource provides current model parameter values.
type ParamSource interface {
	Values(ctx context.Context) (map[string]float64, error)
}

// Service owns computed asset values: the cache-fronted read path and
// the full epoch rebuild. Rebuilds run asynchronously; a generation
// counter guarantees that of overlapping rebuilds only the newest
// activates its epoch.
type Service struct {
	signals SnapshotProvider
	params  ParamSource
	events  storage.AdjustmentEventStore
	values  *cache.Cache[*domain.AssetValue]
	epochs  *cache.EpochManager
	audit   storage.AuditSink
	log     zerolog.Logger

	valueTTL   time.Duration
	generation atomic.Uint64

	now func() int64
}

// NewService creates a value Service.
func NewService(
	signals SnapshotProvider,
	params ParamSource,
	events storage.AdjustmentEventStore,
	values *cache.Cache[*domain.AssetValue],
	epochs *cache.EpochManager,
	audit storage.AuditSink,
	valueTTL time.Duration,
	log zerolog.Logger,
) *Service {
	return &Service{
		signals:  signals,
		params:   params,
		events:   events,
		values:   values,
		epochs:   epochs,
		audit:    audit,
		valueTTL: valueTTL,
		log:      log.With().Str("component", "rebuild").Logger(),
		now:      func() int64 { return time.Now().UnixMilli() },
	}
}

// PlayerValue serves one asset's value through the cache, computing it
// on miss. Superflex leagues get their own cache keys: the QB premium
// changes the number.
func (s *Service) PlayerValue(ctx context.Context, playerID string, format domain.Format, superflex bool) (*domain.AssetValue, error) {
	if !format.IsValid() {
		return nil, fmt.Errorf("%w: format %q", storage.ErrInvalidInput, format)
	}
	key := s.epochs.Key("value", playerID, string(format), leagueSegment(superflex))
	observability.RecordCacheRead(s.values.Has(key))
	return s.values.CachedFetch(key, s.valueTTL, func() (*domain.AssetValue, error) {
		return s.Recompute(ctx, playerID, format, superflex)
	})
}

// Recompute computes an asset's value canonically, bypassing the cache.
// The consistency verifier audits served values against this path.
func (s *Service) Recompute(ctx context.Context, playerID string, format domain.Format, superflex bool) (*domain.AssetValue, error) {
	snap, err := s.signals.Fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch signals: %w", err)
	}
	sig := snap.Get(playerID)
	if sig == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAsset, playerID)
	}

	params, err := s.params.Values(ctx)
	if err != nil {
		return nil, fmt.Errorf("load parameters: %w", err)
	}

	nowMs := s.now()
	adjustments, err := s.events.GetActive(ctx, playerID, format, nowMs)
	if err != nil {
		return nil, fmt.Errorf("load adjustments: %w", err)
	}

	computeStart := time.Now()
	value, breakdown := valuation.Value(sig, format, superflex, valuation.Params(params), adjustments, nowMs)
	observability.RecordValueComputed(string(format), time.Since(computeStart).Seconds())
	return &domain.AssetValue{
		AssetID:    playerID,
		Format:     format,
		Value:      value,
		Epoch:      s.epochs.Current(),
		ComputedAt: nowMs,
		Breakdown:  breakdown,
	}, nil
}

// RebuildAll recomputes every known asset in both formats under a fresh
// epoch, pre-warms the cache, activates the epoch and retires the old
// one. If a newer rebuild starts while this one is computing, this one
// discards its work.
func (s *Service) RebuildAll(ctx context.Context) (string, int, error) {
	gen := s.generation.Add(1)
	epoch := s.epochs.NewEpochID()
	started := s.now()

	s.log.Info().Str("epoch", epoch).Uint64("generation", gen).Msg("full rebuild started")

	snap, err := s.signals.Fetch(ctx)
	if err != nil {
		observability.RecordRebuild("failed", 0, 0)
		return "", 0, fmt.Errorf("rebuild fetch signals: %w", err)
	}
	params, err := s.params.Values(ctx)
	if err != nil {
		observability.RecordRebuild("failed", 0, 0)
		return "", 0, fmt.Errorf("rebuild load parameters: %w", err)
	}

	nowMs := s.now()
	type computed struct {
		key string
		av  *domain.AssetValue
	}
	var warm []computed
	var snapshots []*domain.ValueSnapshot

	for playerID, sig := range snap.Players {
		for _, format := range domain.Formats() {
			adjustments, err := s.events.GetActive(ctx, playerID, format, nowMs)
			if err != nil {
				return "", 0, fmt.Errorf("rebuild load adjustments for %s: %w", playerID, err)
			}
			value, breakdown := valuation.Value(sig, format, false, valuation.Params(params), adjustments, nowMs)
			av := &domain.AssetValue{
				AssetID:    playerID,
				Format:     format,
				Value:      value,
				Epoch:      epoch,
				ComputedAt: nowMs,
				Breakdown:  breakdown,
			}
			warm = append(warm, computed{key: epochKey(epoch, "value", playerID, string(format), leagueSegment(false)), av: av})
			snapshots = append(snapshots, &domain.ValueSnapshot{
				AssetID:    playerID,
				Format:     format,
				Value:      value,
				Epoch:      epoch,
				ComputedAt: nowMs,
				ServedAt:   nowMs,
			})
		}

		if err := ctx.Err(); err != nil {
			return "", 0, fmt.Errorf("rebuild canceled: %w", err)
		}
	}

	// A newer rebuild has started: its epoch will supersede this one,
	// so activating now would resurrect stale values.
	if s.generation.Load() != gen {
		observability.RecordRebuild("superseded", 0, 0)
		s.log.Warn().Str("epoch", epoch).Uint64("generation", gen).Msg("rebuild superseded, discarding work")
		return "", 0, ErrSuperseded
	}

	for _, c := range warm {
		s.values.SetTTL(c.key, c.av, s.valueTTL)
	}
	retired := s.epochs.Advance(epoch)

	if s.audit != nil {
		if err := s.audit.RecordValueSnapshots(ctx, snapshots); err != nil {
			s.log.Warn().Err(err).Msg("failed to record rebuild value snapshots")
		}
	}

	elapsedMs := s.now() - started
	observability.RecordRebuild("activated", float64(elapsedMs)/1000, len(warm))
	observability.DefaultMetrics.LastSuccessfulRebuild.Set(float64(s.now()) / 1000)
	s.log.Info().
		Str("epoch", epoch).
		Str("retired_epoch", retired).
		Int("assets", len(warm)).
		Int64("elapsed_ms", elapsedMs).
		Msg("full rebuild activated")

	return epoch, len(warm), nil
}

// Watch consumes config change notices and triggers a rebuild for every
// recompute-class change. Runs until the context is canceled.
func (s *Service) Watch(ctx context.Context, notices <-chan modelconfig.ChangeNotice) {
	for {
		select {
		case <-ctx.Done():
			return
		case notice, ok := <-notices:
			if !ok {
				return
			}
			if !notice.RequiresRebuild {
				continue
			}
			s.log.Info().Str("key", notice.Key).Msg("config change requires rebuild")
			if _, _, err := s.RebuildAll(ctx); err != nil && !errors.Is(err, ErrSuperseded) {
				s.log.Error().Err(err).Msg("config-triggered rebuild failed")
			}
		}
	}
}

// InvalidateAsset drops every cached value for one asset across formats
// and league contexts within the current epoch.
func (s *Service) InvalidateAsset(playerID string) int {
	return s.values.InvalidatePattern("value:" + playerID + ":*")
}

// Epoch returns the active value epoch.
func (s *Service) Epoch() string {
	return s.epochs.Current()
}

func leagueSegment(superflex bool) string {
	if superflex {
		return "sf"
	}
	return "std"
}

func epochKey(epoch string, parts ...string) string {
	return strings.Join(parts, ":") + ":" + epoch
}
