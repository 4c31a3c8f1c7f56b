package domain

// ParameterCategory groups tunable model parameters. Changes to weight,
// anchor and scarcity parameters invalidate every computed value and
// therefore trigger a full rebuild; trade parameters only affect the
// evaluator and do not.
type ParameterCategory string

const (
	CategoryWeight    ParameterCategory = "weight"
	CategoryAnchor    ParameterCategory = "anchor"
	CategoryScarcity  ParameterCategory = "scarcity"
	CategoryTier      ParameterCategory = "tier"
	CategoryTrade     ParameterCategory = "trade"
	CategoryValuation ParameterCategory = "valuation"
)

// RequiresRebuild reports whether a change in this category invalidates
// previously computed asset values.
func (c ParameterCategory) RequiresRebuild() bool {
	switch c {
	case CategoryWeight, CategoryAnchor, CategoryScarcity, CategoryTier, CategoryValuation:
		return true
	}
	return false
}

// ConfigParameter is one tunable model parameter.
// Corresponds to model_config table in PostgreSQL.
// Invariant: Min <= Value <= Max at every observable point. Parameters in
// the core-weight group additionally satisfy the group-sum ceiling.
type ConfigParameter struct {
	Key       string
	Value     float64
	Category  ParameterCategory
	Min       float64
	Max       float64
	UpdatedAt int64  // Unix timestamp in milliseconds
	UpdatedBy string // actor of the last successful update
}

// ConfigChangeRecord is one entry of the append-only configuration audit
// log. Corresponds to model_config_history table in PostgreSQL.
// Records are never updated or deleted.
type ConfigChangeRecord struct {
	RecordID  string // uuid
	Key       string
	OldValue  float64
	NewValue  float64
	ChangedBy string
	ChangedAt int64             // Unix timestamp in milliseconds
	Metadata  map[string]string // optional context (revert source, etc.)
}

// ValuationDelta describes how one asset's value moves under a candidate
// configuration, produced by config preview.
type ValuationDelta struct {
	PlayerID string
	Name     string
	Format   Format
	Before   float64
	After    float64
	Delta    float64
}
