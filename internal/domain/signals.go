package domain

// PlayerSignals is one normalized record from the upstream signal feed.
// The core never fetches raw provider stats; it consumes these read-only.
type PlayerSignals struct {
	PlayerID string   // stable player identifier
	Name     string   // display name
	Team     string   // NFL team abbreviation
	Position Position // QB | RB | WR | TE | K | DEF | DL | LB | DB

	// Production
	ProjectedPoints float64 // rest-of-season projection (PPR)
	HistoricalAvg   float64 // trailing 3-season per-year average

	// Opportunity / usage
	OpportunityShare float64 // share of team touches/targets, 0..1
	SnapShare        float64 // offensive snap share, 0..1

	// Situation
	TeamOffenseRank int     // 1 = best offense, 32 = worst
	MatchupFactor   float64 // rest-of-season schedule factor, small signed value

	// Player context
	Age            int
	InjuryStatus   InjuryStatus
	DepthChartPos  int // 1 = starter; 0 = unlisted
	WaiverAdds24h  int // league-wide waiver adds, trailing 24h
	WaiverAdds48h  int // league-wide waiver adds, trailing 48h

	// Market consensus
	MarketAnchor     float64 // consensus trade value for the asset
	MarketPercentile float64 // anchor rank percentile within position, 0..1

	UpdatedAt int64 // Unix timestamp in milliseconds
}

// SignalSnapshot is a full feed pull: every player the feed knows about,
// keyed by player id, with the time the snapshot was taken.
type SignalSnapshot struct {
	Players map[string]*PlayerSignals
	TakenAt int64 // Unix timestamp in milliseconds
}

// Get returns the signals for a player, or nil if the feed has none.
func (s *SignalSnapshot) Get(playerID string) *PlayerSignals {
	if s == nil || s.Players == nil {
		return nil
	}
	return s.Players[playerID]
}
