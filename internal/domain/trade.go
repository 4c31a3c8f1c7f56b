package domain

import "fmt"

// AssetKind discriminates the members of a trade side.
type AssetKind string

const (
	AssetPlayer   AssetKind = "player"
	AssetPick     AssetKind = "pick"
	AssetCurrency AssetKind = "currency"
)

// TradeAsset is one valued asset inside a trade side.
type TradeAsset struct {
	ID       string            `json:"id"`
	Kind     AssetKind         `json:"kind"`
	Value    float64           `json:"value"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// DraftPick identifies a future rookie draft pick.
// Slot is the estimated in-round slot: early, mid or late. An empty slot
// means unknown and is valued at the round's mid tier.
type DraftPick struct {
	Year  int      `json:"year"`
	Round int      `json:"round"`
	Slot  PickSlot `json:"slot,omitempty"`
}

// Label returns a short identifier for the pick, like "2027 R1 early".
func (p DraftPick) Label() string {
	if p.Slot == "" {
		return fmt.Sprintf("%d R%d", p.Year, p.Round)
	}
	return fmt.Sprintf("%d R%d %s", p.Year, p.Round, p.Slot)
}

// PickSlot is the estimated position of a pick within its round.
type PickSlot string

const (
	PickSlotEarly PickSlot = "early"
	PickSlotMid   PickSlot = "mid"
	PickSlotLate  PickSlot = "late"
)

// TradeSide is one side of a proposed trade: players plus optional picks
// and a FAAB dollar amount. A side with no assets at all is a valid
// give-away and totals zero.
type TradeSide struct {
	PlayerIDs []string    `json:"player_ids"`
	Picks     []DraftPick `json:"picks,omitempty"`
	FAAB      float64     `json:"faab,omitempty"`
}

// Empty reports whether the side carries no assets.
func (s *TradeSide) Empty() bool {
	return len(s.PlayerIDs) == 0 && len(s.Picks) == 0 && s.FAAB == 0
}

// Winner names the favored side of an evaluated trade.
type Winner string

const (
	WinnerSideA Winner = "A"
	WinnerSideB Winner = "B"
	WinnerEven  Winner = "even"
)

// TradeResult is the derived outcome of evaluating a trade. It is never
// persisted as a source of truth; callers may snapshot it for history.
type TradeResult struct {
	SideATotal      float64      `json:"side_a_total"`
	SideBTotal      float64      `json:"side_b_total"`
	SideAAssets     []TradeAsset `json:"side_a_assets"`
	SideBAssets     []TradeAsset `json:"side_b_assets"`
	Difference      float64      `json:"difference"`
	FairnessPercent float64      `json:"fairness_percent"`
	Winner          Winner       `json:"winner"`
	Format          Format       `json:"format"`
	EvaluatedAt     int64        `json:"evaluated_at"`
}
