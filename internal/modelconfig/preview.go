package modelconfig

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/jacklawrencecmg/TradeAnalyzer-sub000/internal/domain"
	"github.com/jacklawrencecmg/TradeAnalyzer-sub000/internal/valuation"
)

// Preview computes how a candidate parameter set would move valuations
// across a sample population, without committing anything. Candidates
// are validated exactly like an update; the returned deltas are sorted
// by absolute movement, largest first.
func (s *Service) Preview(ctx context.Context, candidates map[string]float64, sample []*domain.PlayerSignals, format domain.Format) ([]domain.ValuationDelta, error) {
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: empty candidate set", ErrOutOfRange)
	}

	current, err := s.Values(ctx)
	if err != nil {
		return nil, err
	}

	proposed := make(map[string]float64, len(current))
	for k, v := range current {
		proposed[k] = v
	}
	for key, value := range candidates {
		spec, ok := registry[key]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownParameter, key)
		}
		if value < spec.Min || value > spec.Max {
			return nil, fmt.Errorf("%w: %s=%v outside [%v, %v]", ErrOutOfRange, key, value, spec.Min, spec.Max)
		}
		proposed[key] = value
	}

	sum := 0.0
	for _, key := range CoreWeightKeys() {
		sum += proposed[key]
	}
	if sum > CoreWeightCeiling {
		return nil, fmt.Errorf("%w: core weight sum %.4f exceeds %.2f", ErrConstraintViolation, sum, CoreWeightCeiling)
	}

	deltas := make([]domain.ValuationDelta, 0, len(sample))
	for _, sig := range sample {
		if sig == nil {
			continue
		}
		before, _ := valuation.Value(sig, format, false, valuation.Params(current), nil, 0)
		after, _ := valuation.Value(sig, format, false, valuation.Params(proposed), nil, 0)
		deltas = append(deltas, domain.ValuationDelta{
			PlayerID: sig.PlayerID,
			Name:     sig.Name,
			Format:   format,
			Before:   before,
			After:    after,
			Delta:    math.Round((after-before)*10) / 10,
		})
	}

	sort.Slice(deltas, func(i, j int) bool {
		di, dj := math.Abs(deltas[i].Delta), math.Abs(deltas[j].Delta)
		if di != dj {
			return di > dj
		}
		return deltas[i].PlayerID < deltas[j].PlayerID
	})
	return deltas, nil
}
