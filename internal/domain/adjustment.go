package domain

// AdjustmentType classifies a detected short-lived role change.
type AdjustmentType string

const (
	AdjustmentInjuryReplacement AdjustmentType = "INJURY_REPLACEMENT"
	AdjustmentStarterPromotion  AdjustmentType = "STARTER_PROMOTION"
	AdjustmentDepthChartRise    AdjustmentType = "DEPTH_CHART_RISE"
	AdjustmentUsageBreakout     AdjustmentType = "USAGE_BREAKOUT"
	AdjustmentWaiverSpike       AdjustmentType = "WAIVER_SPIKE"
)

// String returns the string representation of AdjustmentType.
func (t AdjustmentType) String() string {
	return string(t)
}

// IsValid checks if the adjustment type is a known value.
func (t AdjustmentType) IsValid() bool {
	switch t {
	case AdjustmentInjuryReplacement, AdjustmentStarterPromotion,
		AdjustmentDepthChartRise, AdjustmentUsageBreakout, AdjustmentWaiverSpike:
		return true
	}
	return false
}

// AdjustmentTypes lists all adjustment types.
func AdjustmentTypes() []AdjustmentType {
	return []AdjustmentType{
		AdjustmentInjuryReplacement,
		AdjustmentStarterPromotion,
		AdjustmentDepthChartRise,
		AdjustmentUsageBreakout,
		AdjustmentWaiverSpike,
	}
}

// ValueAdjustmentEvent is a temporary delta layered on top of an asset's
// base valuation. Corresponds to adjustment_events table in PostgreSQL.
// EventID is a deterministic hash of (player, format, type, time bucket),
// so the primary-key constraint doubles as the dedup guard under
// concurrent detection runs. Events past ExpiresAt are inert but stay in
// the store until the retention sweep removes them.
type ValueAdjustmentEvent struct {
	EventID    string
	PlayerID   string
	Format     Format
	EventType  AdjustmentType
	Delta      float64 // signed value points
	Reason     string  // human-readable trigger description
	Confidence int     // 1 (speculative) .. 5 (near certain)
	Source     string  // detector identifier
	CreatedAt  int64   // Unix timestamp in milliseconds
	ExpiresAt  int64   // Unix timestamp in milliseconds
	Metadata   map[string]string
}

// Active reports whether the adjustment still applies at the given time.
func (e *ValueAdjustmentEvent) Active(nowMs int64) bool {
	return nowMs <= e.ExpiresAt
}

// DetectionRun summarizes one overlay detection pass for observability.
// Recorded regardless of whether individual events succeeded.
type DetectionRun struct {
	RunID        string // uuid
	StartedAt    int64  // Unix timestamp in milliseconds
	FinishedAt   int64  // Unix timestamp in milliseconds
	CountsByType map[AdjustmentType]int
	ErrorCount   int  // individual event failures (partial success)
	Failed       bool // true only when a scan itself errored
	Error        string
}

// EventsCreated returns the total events written across all types.
func (r *DetectionRun) EventsCreated() int {
	total := 0
	for _, n := range r.CountsByType {
		total += n
	}
	return total
}
