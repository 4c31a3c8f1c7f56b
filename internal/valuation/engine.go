package valuation

import (
	"math"

	"github.com/jacklawrencecmg/TradeAnalyzer-sub000/internal/domain"
)

// Params is a read-only view of the model configuration, keyed by
// parameter key. Missing keys fall back to the shipped defaults so a
// partially seeded store never zeroes a component.
type Params map[string]float64

func (p Params) value(key string, fallback float64) float64 {
	if v, ok := p[key]; ok {
		return v
	}
	return fallback
}

// Normalization scale for the production component. Rest-of-season PPR
// projections top out around this many points.
const productionPointsScale = 400.0

// Value computes the trade value of one player in one format. It is a
// pure function of its inputs: same signals, params and adjustments at
// the same instant always produce the same value. Time enters only
// through the adjustment expiry test.
//
// Pipeline: weighted base score, tier-dependent market-anchor blend,
// scarcity and injury multipliers, active adjustment deltas, then clamp
// to [0, ceiling] and round to one decimal.
func Value(
	signals *domain.PlayerSignals,
	format domain.Format,
	superflex bool,
	params Params,
	adjustments []*domain.ValueAdjustmentEvent,
	nowMs int64,
) (float64, domain.ValueBreakdown) {
	ceiling := params.value("value_ceiling", 10000)

	ageFactor := AgeFactor(signals.Age, signals.Position)
	if format == domain.FormatRedraft {
		// Age is a longevity signal; a single-season format ignores it.
		ageFactor = 1.0
	}
	injuryFactor := InjuryFactor(signals.InjuryStatus)

	base := baseScore(signals, params, ageFactor) * ceiling

	tier := TierFor(signals.MarketPercentile, params)
	blended := base
	if signals.MarketAnchor > 0 {
		w := anchorBlendWeight(tier, params)
		blended = (1-w)*base + w*signals.MarketAnchor
	}

	scarcity := scarcityFactor(signals.Position, superflex, params)

	value := blended * scarcity * injuryFactor

	adjustmentSum := 0.0
	for _, a := range adjustments {
		if a.Format == format && a.Active(nowMs) {
			adjustmentSum += a.Delta
		}
	}
	value += adjustmentSum

	if value < 0 {
		value = 0
	}
	if value > ceiling {
		value = ceiling
	}
	value = math.Round(value*10) / 10

	return value, domain.ValueBreakdown{
		BaseScore:      math.Round(base*10) / 10,
		AnchorBlended:  math.Round(blended*10) / 10,
		Tier:           tier,
		ScarcityFactor: scarcity,
		AgeFactor:      ageFactor,
		InjuryFactor:   injuryFactor,
		AdjustmentSum:  adjustmentSum,
	}
}

// baseScore combines the four signal components under the configured
// core weights. Each component is normalized to 0..1 before weighting,
// so with weights summing to 1.0 the score stays in 0..1.
func baseScore(signals *domain.PlayerSignals, params Params, ageFactor float64) float64 {
	wProd := params.value("weight_production", 0.55)
	wOpp := params.value("weight_opportunity", 0.20)
	wAge := params.value("weight_age", 0.10)
	wSit := params.value("weight_situation", 0.15)

	production := clamp01((0.7*signals.ProjectedPoints + 0.3*signals.HistoricalAvg) / productionPointsScale)
	opportunity := clamp01(0.6*signals.OpportunityShare + 0.4*signals.SnapShare)
	age := normalizeAgeFactor(ageFactor)
	situation := situationComponent(signals.TeamOffenseRank, signals.MatchupFactor)

	return wProd*production + wOpp*opportunity + wAge*age + wSit*situation
}

// situationComponent folds team offense quality and rest-of-season
// schedule into one 0..1 component. Rank 1 is the best offense.
func situationComponent(offenseRank int, matchupFactor float64) float64 {
	if offenseRank < 1 {
		offenseRank = 16 // unranked: treat as league median
	}
	if offenseRank > 32 {
		offenseRank = 32
	}
	offense := float64(33-offenseRank) / 32.0
	return clamp01(offense * (1 + matchupFactor))
}

// TierFor buckets a market percentile against the configured thresholds.
func TierFor(percentile float64, params Params) domain.Tier {
	switch {
	case percentile >= params.value("tier_elite_percentile", 0.95):
		return domain.TierElite
	case percentile >= params.value("tier_high_percentile", 0.80):
		return domain.TierHigh
	case percentile >= params.value("tier_mid_percentile", 0.50):
		return domain.TierMid
	default:
		return domain.TierDepth
	}
}

// anchorBlendWeight is the share of the final pre-multiplier value taken
// from market consensus. Model confidence is highest at the top of the
// market, so elite assets blend least.
func anchorBlendWeight(tier domain.Tier, params Params) float64 {
	switch tier {
	case domain.TierElite:
		return params.value("anchor_blend_elite", 0.15)
	case domain.TierHigh:
		return params.value("anchor_blend_high", 0.25)
	case domain.TierMid:
		return params.value("anchor_blend_mid", 0.40)
	default:
		return params.value("anchor_blend_depth", 0.60)
	}
}

// scarcityFactor is the positional scarcity multiplier, with the
// superflex premium applied to quarterbacks in superflex leagues.
func scarcityFactor(pos domain.Position, superflex bool, params Params) float64 {
	var f float64
	switch pos {
	case domain.PositionQB:
		f = params.value("scarcity_qb", 1.00)
		if superflex {
			f *= params.value("superflex_qb_premium", 1.30)
		}
	case domain.PositionRB:
		f = params.value("scarcity_rb", 1.10)
	case domain.PositionWR:
		f = params.value("scarcity_wr", 1.00)
	case domain.PositionTE:
		f = params.value("scarcity_te", 1.15)
	default:
		f = 1.00
	}
	return f
}

// AgeFactor is the dynasty age curve. Running backs age out earlier
// than every other position.
func AgeFactor(age int, pos domain.Position) float64 {
	var f float64
	switch {
	case age <= 0:
		f = 1.00 // unknown age: neutral
	case age <= 22:
		f = 0.90 // rookie discount until proven
	case age <= 24:
		f = 0.95
	case age <= 27:
		f = 1.05
	case age <= 29:
		f = 1.00
	case age <= 31:
		f = 0.90
	default:
		f = 0.80
	}
	if pos == domain.PositionRB && age >= 29 {
		f *= 0.85
	}
	return f
}

// InjuryFactor discounts current availability.
func InjuryFactor(status domain.InjuryStatus) float64 {
	switch status {
	case domain.InjuryQuestionable:
		return 0.85
	case domain.InjuryDoubtful:
		return 0.70
	case domain.InjuryOut:
		return 0.50
	case domain.InjuryIR:
		return 0.30
	case domain.InjuryPUP:
		return 0.20
	default:
		return 1.00 // Healthy, Probable, or unreported
	}
}

// normalizeAgeFactor maps the age curve's range onto 0..1 so the age
// component weighs in on the same scale as the others.
func normalizeAgeFactor(f float64) float64 {
	const lo, hi = 0.68, 1.05 // curve extremes incl. the RB penalty
	return clamp01((f - lo) / (hi - lo))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
