package domain

// ValueMismatch is one sampled asset whose served value diverged from the
// canonical recomputation.
type ValueMismatch struct {
	AssetID        string  `json:"asset_id"`
	Format         Format  `json:"format"`
	ClaimedValue   float64 `json:"claimed_value"`
	CanonicalValue float64 `json:"canonical_value"`
	Delta          float64 `json:"delta"`
}

// ConsistencyCheckResult is the transient outcome of auditing one
// response. Logged to the audit sink, never persisted as source of truth.
type ConsistencyCheckResult struct {
	CheckID       string          `json:"check_id"` // deterministic, see idhash
	SampledCount  int             `json:"sampled_count"`
	MismatchCount int             `json:"mismatch_count"`
	Mismatches    []ValueMismatch `json:"mismatches,omitempty"`
	CheckedAt     int64           `json:"checked_at"` // Unix timestamp in milliseconds
}

// Clean reports whether the audit found no drift.
func (r *ConsistencyCheckResult) Clean() bool {
	return r.MismatchCount == 0
}
