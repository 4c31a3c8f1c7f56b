package domain

// Tier buckets players by market percentile. The anchor blend weight is
// tier-dependent: model confidence is highest for elite assets, so those
// blend least toward market consensus.
type Tier string

const (
	TierElite Tier = "elite"
	TierHigh  Tier = "high"
	TierMid   Tier = "mid"
	TierDepth Tier = "depth"
)

// ValueBreakdown itemizes the components that produced a final value.
type ValueBreakdown struct {
	BaseScore      float64 `json:"base_score"`      // weighted pre-blend score
	AnchorBlended  float64 `json:"anchor_blended"`  // after market-anchor blend
	Tier           Tier    `json:"tier"`            // percentile tier used for the blend
	ScarcityFactor float64 `json:"scarcity_factor"` // position scarcity x league context
	AgeFactor      float64 `json:"age_factor"`
	InjuryFactor   float64 `json:"injury_factor"`
	AdjustmentSum  float64 `json:"adjustment_sum"` // active overlay deltas
}

// AssetValue is the served value of one asset in one format.
// Cache keys for these carry the epoch they were computed under.
type AssetValue struct {
	AssetID    string         `json:"asset_id"`
	Format     Format         `json:"format"`
	Value      float64        `json:"value"`
	Epoch      string         `json:"epoch"`
	ComputedAt int64          `json:"computed_at"` // Unix timestamp in milliseconds
	Breakdown  ValueBreakdown `json:"breakdown"`
}

// ValueSnapshot is an audit-sink record of a served value, written so
// drift investigations can reconstruct what callers actually saw.
type ValueSnapshot struct {
	AssetID    string
	Format     Format
	Value      float64
	Epoch      string
	ComputedAt int64
	ServedAt   int64
}
