package consistency

import (
	"context"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/jacklawrencecmg/TradeAnalyzer-sub000/internal/domain"
	"github.com/jacklawrencecmg/TradeAnalyzer-sub000/internal/idhash"
	"github.com/jacklawrencecmg/TradeAnalyzer-sub000/internal/observability"
	"github.com/jacklawrencecmg/TradeAnalyzer-sub000/internal/storage"
)

const (
	// DefaultSampleSize is how many assets from one response get audited.
	DefaultSampleSize = 3

	// DefaultTolerance absorbs rounding noise. Served values carry one
	// decimal, so genuine drift shows up as at least 0.1.
	DefaultTolerance = 0.05

	// escalateAfter is how many consecutive dirty audits for the same
	// asset raise the log level from warn to error.
	escalateAfter = 3

	auditTimeout = 10 * time.Second
)

// ValueSource recomputes canonical values and owns the cache entries the
// verifier may need to purge. The rebuild service satisfies this.
type ValueSource interface {
	Recompute(ctx context.Context, playerID string, format domain.Format, superflex bool) (*domain.AssetValue, error)
	InvalidateAsset(playerID string) int
	Epoch() string
}

// Verifier audits value-bearing responses after they are served. It
// samples a few claimed values, recomputes them canonically and, on any
// divergence beyond tolerance, logs the mismatch, purges the asset's
// cache entries and records the failed check in the audit sink. It never
// sits on the response path.
type Verifier struct {
	values ValueSource
	audit  storage.AuditSink
	log    zerolog.Logger

	sampleSize int
	tolerance  float64

	mu     sync.Mutex
	streak map[string]int // consecutive mismatch count per asset
	wg     sync.WaitGroup

	now func() int64
}

// NewVerifier creates a Verifier with the default sample size and
// tolerance.
func NewVerifier(values ValueSource, audit storage.AuditSink, log zerolog.Logger) *Verifier {
	return &Verifier{
		values:     values,
		audit:      audit,
		log:        log.With().Str("component", "consistency").Logger(),
		sampleSize: DefaultSampleSize,
		tolerance:  DefaultTolerance,
		streak:     make(map[string]int),
		now:        func() int64 { return time.Now().UnixMilli() },
	}
}

// AuditAsync audits a served response in the background. The caller's
// context is deliberately not reused: the response has already been
// sent, and the audit must survive the request ending.
func (v *Verifier) AuditAsync(claimed []*domain.AssetValue, superflex bool) {
	v.wg.Add(1)
	go func() {
		defer v.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), auditTimeout)
		defer cancel()
		v.Audit(ctx, claimed, superflex)
	}()
}

// Wait blocks until all in-flight async audits finish. Used on shutdown
// and in tests.
func (v *Verifier) Wait() {
	v.wg.Wait()
}

// Audit samples up to the configured number of claimed values,
// recomputes each canonically and compares. The result is always
// recorded in the audit sink; mismatches additionally invalidate the
// asset's cache entries. Recompute errors are logged and skipped, never
// surfaced: correctness monitoring must not create its own outages.
func (v *Verifier) Audit(ctx context.Context, claimed []*domain.AssetValue, superflex bool) *domain.ConsistencyCheckResult {
	startedAt := v.now()
	result := &domain.ConsistencyCheckResult{
		CheckID:   idhash.ComputeCheckID(v.values.Epoch(), startedAt),
		CheckedAt: startedAt,
	}

	totalPurged := 0
	for _, av := range sample(claimed, v.sampleSize) {
		canonical, err := v.values.Recompute(ctx, av.AssetID, av.Format, superflex)
		if err != nil {
			v.log.Warn().Err(err).
				Str("asset_id", av.AssetID).
				Str("format", string(av.Format)).
				Msg("canonical recompute failed, skipping sample")
			continue
		}
		result.SampledCount++

		delta := av.Value - canonical.Value
		if math.Abs(delta) <= v.tolerance {
			v.clearStreak(av.AssetID)
			continue
		}

		result.MismatchCount++
		result.Mismatches = append(result.Mismatches, domain.ValueMismatch{
			AssetID:        av.AssetID,
			Format:         av.Format,
			ClaimedValue:   av.Value,
			CanonicalValue: canonical.Value,
			Delta:          delta,
		})

		purged := v.values.InvalidateAsset(av.AssetID)
		totalPurged += purged
		v.logMismatch(av, canonical.Value, delta, purged)
	}

	observability.RecordConsistencyCheck(result.MismatchCount, totalPurged)
	if err := v.audit.RecordConsistencyCheck(ctx, result); err != nil {
		v.log.Warn().Err(err).Str("check_id", result.CheckID).Msg("failed to record consistency check")
	}
	return result
}

func (v *Verifier) logMismatch(av *domain.AssetValue, canonical, delta float64, purged int) {
	streak := v.bumpStreak(av.AssetID)

	evt := v.log.Warn()
	if streak >= escalateAfter {
		// Repeated drift on the same asset means invalidation is not
		// fixing the source; someone needs to look at it.
		evt = v.log.Error().Int("consecutive_mismatches", streak)
	}
	evt.
		Str("asset_id", av.AssetID).
		Str("format", string(av.Format)).
		Str("epoch", av.Epoch).
		Float64("claimed_value", av.Value).
		Float64("canonical_value", canonical).
		Float64("delta", delta).
		Int("cache_entries_purged", purged).
		Msg("value mismatch")
}

func (v *Verifier) bumpStreak(assetID string) int {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.streak[assetID]++
	return v.streak[assetID]
}

func (v *Verifier) clearStreak(assetID string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.streak, assetID)
}

// sample picks up to n elements uniformly without replacement, leaving
// the input untouched.
func sample(claimed []*domain.AssetValue, n int) []*domain.AssetValue {
	picked := make([]*domain.AssetValue, 0, len(claimed))
	for _, av := range claimed {
		if av != nil {
			picked = append(picked, av)
		}
	}
	if len(picked) <= n {
		return picked
	}
	rand.Shuffle(len(picked), func(i, j int) {
		picked[i], picked[j] = picked[j], picked[i]
	})
	return picked[:n]
}
