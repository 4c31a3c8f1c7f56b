package trade

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/jacklawrencecmg/TradeAnalyzer-sub000/internal/domain"
	"github.com/jacklawrencecmg/TradeAnalyzer-sub000/internal/observability"
)

// ErrInvalidProposal is returned for proposals the evaluator cannot
// price: unknown format, unknown player, malformed pick.
var ErrInvalidProposal = errors.New("invalid trade proposal")

// PlayerValuer serves per-player values. In production this is the
// cache-fronted valuation service.
type PlayerValuer interface {
	PlayerValue(ctx context.Context, playerID string, format domain.Format, superflex bool) (*domain.AssetValue, error)
}

// ParamSource provides the current model parameter values.
type ParamSource interface {
	Values(ctx context.Context) (map[string]float64, error)
}

// Proposal is a two-sided trade to evaluate.
type Proposal struct {
	SideA     domain.TradeSide `json:"side_a"`
	SideB     domain.TradeSide `json:"side_b"`
	Format    domain.Format    `json:"format"`
	Superflex bool             `json:"superflex,omitempty"`
	// Phase adjusts pick values for the season phase; empty means the
	// regular-season baseline.
	Phase SeasonPhase `json:"phase,omitempty"`
}

// Evaluator prices both sides of a proposal and names the winner.
type Evaluator struct {
	values PlayerValuer
	params ParamSource
	log    zerolog.Logger

	now func() int64
}

// NewEvaluator creates an Evaluator.
func NewEvaluator(values PlayerValuer, params ParamSource, log zerolog.Logger) *Evaluator {
	return &Evaluator{
		values: values,
		params: params,
		log:    log.With().Str("component", "trade").Logger(),
		now:    func() int64 { return time.Now().UnixMilli() },
	}
}

// Evaluate prices every asset on both sides and computes the fairness
// verdict. A side with no assets is a valid give-away totaling zero.
func (e *Evaluator) Evaluate(ctx context.Context, p Proposal) (*domain.TradeResult, error) {
	if !p.Format.IsValid() {
		return nil, fmt.Errorf("%w: unknown format %q", ErrInvalidProposal, p.Format)
	}

	params, err := e.params.Values(ctx)
	if err != nil {
		return nil, fmt.Errorf("load trade parameters: %w", err)
	}

	started := time.Now()
	nowMs := e.now()
	currentYear := time.UnixMilli(nowMs).UTC().Year()

	sideA, totalA, err := e.priceSide(ctx, p.SideA, p, params, currentYear)
	if err != nil {
		return nil, err
	}
	sideB, totalB, err := e.priceSide(ctx, p.SideB, p, params, currentYear)
	if err != nil {
		return nil, err
	}

	difference := math.Abs(totalA - totalB)
	fairness := 100.0
	if maxTotal := math.Max(totalA, totalB); maxTotal > 0 {
		fairness = 100 * (1 - difference/maxTotal)
	}
	if fairness < 0 {
		fairness = 0
	}
	fairness = math.Round(fairness*10) / 10

	tolerance := paramOr(params, "fairness_tolerance_pct", 5.0)
	winner := domain.WinnerEven
	if 100-fairness > tolerance {
		if totalA > totalB {
			winner = domain.WinnerSideA
		} else {
			winner = domain.WinnerSideB
		}
	}

	result := &domain.TradeResult{
		SideATotal:      totalA,
		SideBTotal:      totalB,
		SideAAssets:     sideA,
		SideBAssets:     sideB,
		Difference:      difference,
		FairnessPercent: fairness,
		Winner:          winner,
		Format:          p.Format,
		EvaluatedAt:     nowMs,
	}

	observability.RecordTradeEvaluated(string(winner), time.Since(started).Seconds())
	e.log.Debug().
		Float64("side_a_total", totalA).
		Float64("side_b_total", totalB).
		Float64("fairness", fairness).
		Str("winner", string(winner)).
		Msg("trade evaluated")

	return result, nil
}

func (e *Evaluator) priceSide(ctx context.Context, side domain.TradeSide, p Proposal, params map[string]float64, currentYear int) ([]domain.TradeAsset, float64, error) {
	var assets []domain.TradeAsset
	total := 0.0

	for _, playerID := range side.PlayerIDs {
		av, err := e.values.PlayerValue(ctx, playerID, p.Format, p.Superflex)
		if err != nil {
			return nil, 0, fmt.Errorf("price player %s: %w", playerID, err)
		}
		assets = append(assets, domain.TradeAsset{
			ID:    playerID,
			Kind:  domain.AssetPlayer,
			Value: av.Value,
		})
		total += av.Value
	}

	for _, pick := range side.Picks {
		value, err := PickValue(pick, p.Phase, params, currentYear)
		if err != nil {
			return nil, 0, err
		}
		assets = append(assets, domain.TradeAsset{
			ID:    pick.Label(),
			Kind:  domain.AssetPick,
			Value: value,
			Metadata: map[string]string{
				"year":  fmt.Sprintf("%d", pick.Year),
				"round": fmt.Sprintf("%d", pick.Round),
			},
		})
		total += value
	}

	if side.FAAB > 0 {
		rate := paramOr(params, "faab_points_per_dollar", 3.0)
		value := math.Round(side.FAAB*rate*10) / 10
		assets = append(assets, domain.TradeAsset{
			ID:    "faab",
			Kind:  domain.AssetCurrency,
			Value: value,
			Metadata: map[string]string{
				"dollars": fmt.Sprintf("%.0f", side.FAAB),
			},
		})
		total += value
	}

	return assets, total, nil
}

func paramOr(params map[string]float64, key string, fallback float64) float64 {
	if v, ok := params[key]; ok {
		return v
	}
	return fallback
}
