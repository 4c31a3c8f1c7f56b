package overlay

import (
	"fmt"
	"time"

	"github.com/jacklawrencecmg/TradeAnalyzer-sub000/internal/domain"
)

// rule is one scan: how to find candidates, how far back a previous hit
// suppresses a new one, and how long the resulting events live.
type rule struct {
	eventType domain.AdjustmentType
	lookback  time.Duration
	expiry    time.Duration
	scan      func(snap *domain.SignalSnapshot) []candidate
}

func rules() []rule {
	return []rule{
		{
			eventType: domain.AdjustmentInjuryReplacement,
			lookback:  7 * 24 * time.Hour,
			expiry:    7 * 24 * time.Hour,
			scan:      scanInjuryReplacements,
		},
		{
			eventType: domain.AdjustmentStarterPromotion,
			lookback:  48 * time.Hour,
			expiry:    48 * time.Hour,
			scan:      scanStarterPromotions,
		},
		{
			eventType: domain.AdjustmentDepthChartRise,
			lookback:  3 * 24 * time.Hour,
			expiry:    3 * 24 * time.Hour,
			scan:      scanDepthChartRises,
		},
		{
			eventType: domain.AdjustmentUsageBreakout,
			lookback:  5 * 24 * time.Hour,
			expiry:    5 * 24 * time.Hour,
			scan:      scanUsageBreakouts,
		},
		{
			eventType: domain.AdjustmentWaiverSpike,
			lookback:  48 * time.Hour,
			expiry:    48 * time.Hour,
			scan:      scanWaiverSpikes,
		},
	}
}

// scanInjuryReplacements finds the healthy next man up behind a
// sidelined starter at the same position on the same team.
func scanInjuryReplacements(snap *domain.SignalSnapshot) []candidate {
	type slot struct {
		team string
		pos  domain.Position
	}
	sidelinedStarters := make(map[slot]*domain.PlayerSignals)
	for _, p := range snap.Players {
		if p.DepthChartPos == 1 && p.InjuryStatus.Sidelined() {
			sidelinedStarters[slot{p.Team, p.Position}] = p
		}
	}
	if len(sidelinedStarters) == 0 {
		return nil
	}

	var out []candidate
	for _, p := range snap.Players {
		if p.DepthChartPos != 2 || p.InjuryStatus.Sidelined() {
			continue
		}
		starter, ok := sidelinedStarters[slot{p.Team, p.Position}]
		if !ok {
			continue
		}
		out = append(out, candidate{
			playerID:  p.PlayerID,
			eventType: domain.AdjustmentInjuryReplacement,
			delta:     injuryReplacementDelta(p.Position),
			reason: fmt.Sprintf("%s (%s %s) next up behind %s (%s)",
				p.Name, p.Team, p.Position, starter.Name, starter.InjuryStatus),
			confidence: 3,
			source:     "injury-replacement-scan",
		})
	}
	return out
}

func injuryReplacementDelta(pos domain.Position) float64 {
	switch pos {
	case domain.PositionQB:
		return 600
	case domain.PositionRB:
		return 500
	case domain.PositionWR:
		return 450
	default:
		return 300
	}
}

// scanStarterPromotions finds players newly listed first on the depth
// chart whose snap share has not caught up yet.
func scanStarterPromotions(snap *domain.SignalSnapshot) []candidate {
	var out []candidate
	for _, p := range snap.Players {
		if p.DepthChartPos != 1 || p.InjuryStatus.Sidelined() {
			continue
		}
		if p.SnapShare >= 0.40 {
			continue // established starter, nothing new
		}
		out = append(out, candidate{
			playerID:  p.PlayerID,
			eventType: domain.AdjustmentStarterPromotion,
			delta:     starterPromotionDelta(p.Position),
			reason: fmt.Sprintf("%s listed first on %s depth chart at %.0f%% snaps",
				p.Name, p.Team, p.SnapShare*100),
			confidence: 4,
			source:     "starter-promotion-scan",
		})
	}
	return out
}

func starterPromotionDelta(pos domain.Position) float64 {
	switch pos {
	case domain.PositionQB:
		return 500
	case domain.PositionRB:
		return 450
	case domain.PositionWR:
		return 400
	case domain.PositionTE:
		return 350
	default:
		return 200
	}
}

// scanDepthChartRises finds listed backups already playing starter-level
// snaps.
func scanDepthChartRises(snap *domain.SignalSnapshot) []candidate {
	var out []candidate
	for _, p := range snap.Players {
		if p.DepthChartPos != 2 || p.InjuryStatus.Sidelined() {
			continue
		}
		if p.SnapShare < 0.45 {
			continue
		}
		out = append(out, candidate{
			playerID:  p.PlayerID,
			eventType: domain.AdjustmentDepthChartRise,
			delta:     250,
			reason: fmt.Sprintf("%s playing %.0f%% snaps from the second depth slot",
				p.Name, p.SnapShare*100),
			confidence: 2,
			source:     "depth-chart-scan",
		})
	}
	return out
}

// scanUsageBreakouts finds usage running ahead of market consensus:
// elite opportunity and snaps on a player the market still prices
// outside its top tiers.
func scanUsageBreakouts(snap *domain.SignalSnapshot) []candidate {
	var out []candidate
	for _, p := range snap.Players {
		if p.InjuryStatus.Sidelined() {
			continue
		}
		if p.OpportunityShare < 0.24 || p.SnapShare < 0.80 {
			continue
		}
		if p.MarketPercentile >= 0.80 {
			continue // the market already caught up
		}
		delta := 300.0
		if p.Position == domain.PositionTE {
			delta = 250
		}
		out = append(out, candidate{
			playerID:  p.PlayerID,
			eventType: domain.AdjustmentUsageBreakout,
			delta:     delta,
			reason: fmt.Sprintf("%s at %.0f%% opportunity share, market percentile %.2f",
				p.Name, p.OpportunityShare*100, p.MarketPercentile),
			confidence: 3,
			source:     "usage-breakout-scan",
		})
	}
	return out
}

// Waiver spike thresholds: league-wide add counts that indicate a
// market-moving news event.
const (
	waiverSpike24h = 5000
	waiverSpike48h = 8000
)

// scanWaiverSpikes finds surges in league-wide waiver adds. The delta
// scales with the surge but is capped: waiver heat is the noisiest
// signal the overlay consumes.
func scanWaiverSpikes(snap *domain.SignalSnapshot) []candidate {
	var out []candidate
	for _, p := range snap.Players {
		if p.WaiverAdds24h < waiverSpike24h && p.WaiverAdds48h < waiverSpike48h {
			continue
		}
		delta := float64(p.WaiverAdds24h) * 0.05
		if delta > 400 {
			delta = 400
		}
		if delta < 100 {
			delta = 100
		}
		out = append(out, candidate{
			playerID:  p.PlayerID,
			eventType: domain.AdjustmentWaiverSpike,
			delta:     delta,
			reason: fmt.Sprintf("%s added %d times in 24h (%d in 48h)",
				p.Name, p.WaiverAdds24h, p.WaiverAdds48h),
			confidence: 2,
			source:     "waiver-spike-scan",
		})
	}
	return out
}
