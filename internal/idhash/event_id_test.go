package idhash

import (
	"testing"

	"github.com/jacklawrencecmg/TradeAnalyzer-sub000/internal/domain"
)

func TestComputeEventID(t *testing.T) {
	tests := []struct {
		name         string
		playerID     string
		format       domain.Format
		eventType    domain.AdjustmentType
		detectedAtMs int64
		bucketMs     int64
		wantLen      int // hash length should be 64
	}{
		{
			name:         "usage breakout dynasty",
			playerID:     "player-4017",
			format:       domain.FormatDynasty,
			eventType:    domain.AdjustmentUsageBreakout,
			detectedAtMs: 1704067234567,
			bucketMs:     6 * 60 * 60 * 1000,
			wantLen:      64,
		},
		{
			name:         "waiver spike redraft",
			playerID:     "player-512",
			format:       domain.FormatRedraft,
			eventType:    domain.AdjustmentWaiverSpike,
			detectedAtMs: 1704067300000,
			bucketMs:     6 * 60 * 60 * 1000,
			wantLen:      64,
		},
		{
			name:         "no bucketing",
			playerID:     "player-512",
			format:       domain.FormatRedraft,
			eventType:    domain.AdjustmentInjuryReplacement,
			detectedAtMs: 1704067300000,
			bucketMs:     0,
			wantLen:      64,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeEventID(tt.playerID, tt.format, tt.eventType, tt.detectedAtMs, tt.bucketMs)

			if len(got) != tt.wantLen {
				t.Errorf("ComputeEventID() length = %d, want %d", len(got), tt.wantLen)
			}

			// Verify determinism: same inputs should produce same output
			got2 := ComputeEventID(tt.playerID, tt.format, tt.eventType, tt.detectedAtMs, tt.bucketMs)
			if got != got2 {
				t.Errorf("ComputeEventID() not deterministic: %s != %s", got, got2)
			}
		})
	}
}

func TestComputeEventID_SameBucketCollides(t *testing.T) {
	const bucket = int64(6 * 60 * 60 * 1000)

	// Two detections of the same role change inside one bucket must map
	// to the same id so the second insert fails on the primary key.
	first := ComputeEventID("player-1", domain.FormatDynasty, domain.AdjustmentStarterPromotion, 1704067200000, bucket)
	second := ComputeEventID("player-1", domain.FormatDynasty, domain.AdjustmentStarterPromotion, 1704067200000+bucket-1, bucket)
	if first != second {
		t.Errorf("Same-bucket detections should collide: %s != %s", first, second)
	}

	// Next bucket starts a fresh id.
	nextBucket := ComputeEventID("player-1", domain.FormatDynasty, domain.AdjustmentStarterPromotion, 1704067200000+bucket, bucket)
	if first == nextBucket {
		t.Error("Different buckets should produce different ids")
	}
}

func TestComputeEventID_DifferentInputs(t *testing.T) {
	base := ComputeEventID("player-1", domain.FormatDynasty, domain.AdjustmentUsageBreakout, 1000, 0)

	// Different player should produce different hash
	diffPlayer := ComputeEventID("player-2", domain.FormatDynasty, domain.AdjustmentUsageBreakout, 1000, 0)
	if base == diffPlayer {
		t.Error("Different player should produce different hash")
	}

	// Different format should produce different hash
	diffFormat := ComputeEventID("player-1", domain.FormatRedraft, domain.AdjustmentUsageBreakout, 1000, 0)
	if base == diffFormat {
		t.Error("Different format should produce different hash")
	}

	// Different type should produce different hash
	diffType := ComputeEventID("player-1", domain.FormatDynasty, domain.AdjustmentWaiverSpike, 1000, 0)
	if base == diffType {
		t.Error("Different type should produce different hash")
	}

	// Different time should produce different hash
	diffTime := ComputeEventID("player-1", domain.FormatDynasty, domain.AdjustmentUsageBreakout, 2000, 0)
	if base == diffTime {
		t.Error("Different time should produce different hash")
	}
}

func TestComputeCheckID_Determinism(t *testing.T) {
	results := make([]string, 10)
	for i := 0; i < 10; i++ {
		results[i] = ComputeCheckID("epoch-abc", 1704067234567)
	}

	for i := 1; i < len(results); i++ {
		if results[i] != results[0] {
			t.Errorf("Determinism failed: results[%d]=%s != results[0]=%s", i, results[i], results[0])
		}
	}

	if len(results[0]) != 64 {
		t.Errorf("ComputeCheckID() length = %d, want 64", len(results[0]))
	}

	other := ComputeCheckID("epoch-def", 1704067234567)
	if other == results[0] {
		t.Error("Different epoch should produce different hash")
	}
}
