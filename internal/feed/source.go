package feed

import (
	"context"
	"errors"

	"github.com/jacklawrencecmg/TradeAnalyzer-sub000/internal/domain"
)

var (
	// ErrAllSourcesFailed is returned when every source in the chain
	// failed and no last-known-good snapshot exists.
	ErrAllSourcesFailed = errors.New("all signal sources failed")

	// ErrNoSnapshot is returned by a streaming source that has not
	// received a usable snapshot yet, or whose snapshot has gone stale.
	ErrNoSnapshot = errors.New("no usable snapshot")
)

// Source delivers normalized player signals. Implementations own their
// transport; callers only ever see full snapshots.
type Source interface {
	Name() string
	Fetch(ctx context.Context) (*domain.SignalSnapshot, error)
}

// Wire format shared by the HTTP and websocket sources.

type snapshotPayload struct {
	TakenAt int64           `json:"taken_at"`
	Players []playerPayload `json:"players"`
}

type playerPayload struct {
	PlayerID         string  `json:"player_id"`
	Name             string  `json:"name"`
	Team             string  `json:"team"`
	Position         string  `json:"position"`
	ProjectedPoints  float64 `json:"projected_points"`
	HistoricalAvg    float64 `json:"historical_avg"`
	OpportunityShare float64 `json:"opportunity_share"`
	SnapShare        float64 `json:"snap_share"`
	TeamOffenseRank  int     `json:"team_offense_rank"`
	MatchupFactor    float64 `json:"matchup_factor"`
	Age              int     `json:"age"`
	InjuryStatus     string  `json:"injury_status"`
	DepthChartPos    int     `json:"depth_chart_pos"`
	WaiverAdds24h    int     `json:"waiver_adds_24h"`
	WaiverAdds48h    int     `json:"waiver_adds_48h"`
	MarketAnchor     float64 `json:"market_anchor"`
	MarketPercentile float64 `json:"market_percentile"`
	UpdatedAt        int64   `json:"updated_at"`
}

func (p *playerPayload) toDomain() *domain.PlayerSignals {
	return &domain.PlayerSignals{
		PlayerID:         p.PlayerID,
		Name:             p.Name,
		Team:             p.Team,
		Position:         domain.Position(p.Position),
		ProjectedPoints:  p.ProjectedPoints,
		HistoricalAvg:    p.HistoricalAvg,
		OpportunityShare: p.OpportunityShare,
		SnapShare:        p.SnapShare,
		TeamOffenseRank:  p.TeamOffenseRank,
		MatchupFactor:    p.MatchupFactor,
		Age:              p.Age,
		InjuryStatus:     domain.InjuryStatus(p.InjuryStatus),
		DepthChartPos:    p.DepthChartPos,
		WaiverAdds24h:    p.WaiverAdds24h,
		WaiverAdds48h:    p.WaiverAdds48h,
		MarketAnchor:     p.MarketAnchor,
		MarketPercentile: p.MarketPercentile,
		UpdatedAt:        p.UpdatedAt,
	}
}

func (s *snapshotPayload) toDomain() *domain.SignalSnapshot {
	players := make(map[string]*domain.PlayerSignals, len(s.Players))
	for i := range s.Players {
		p := s.Players[i].toDomain()
		if p.PlayerID == "" || !p.Position.IsValid() {
			continue // skip malformed feed rows, keep the rest
		}
		players[p.PlayerID] = p
	}
	return &domain.SignalSnapshot{Players: players, TakenAt: s.TakenAt}
}
