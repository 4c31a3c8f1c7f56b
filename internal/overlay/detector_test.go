package overlay

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/jacklawrencecmg/TradeAnalyzer-sub000/internal/domain"
	"github.com/jacklawrencecmg/TradeAnalyzer-sub000/internal/storage/memory"
)

func newTestDetector(t *testing.T) (*Detector, *memory.AdjustmentEventStore, *memory.AuditSink) {
	t.Helper()
	events := memory.NewAdjustmentEventStore()
	audit := memory.NewAuditSink()
	d := NewDetector(events, audit, zerolog.Nop())
	d.now = func() int64 { return 1704067200000 }
	return d, events, audit
}

func snapshotWith(players ...*domain.PlayerSignals) *domain.SignalSnapshot {
	m := make(map[string]*domain.PlayerSignals, len(players))
	for _, p := range players {
		m[p.PlayerID] = p
	}
	return &domain.SignalSnapshot{Players: m, TakenAt: 1704067100000}
}

func healthyStarter(id string) *domain.PlayerSignals {
	return &domain.PlayerSignals{
		PlayerID: id, Name: "Starter " + id, Team: "KC", Position: domain.PositionWR,
		DepthChartPos: 1, SnapShare: 0.85, OpportunityShare: 0.20,
		InjuryStatus: domain.InjuryHealthy, MarketPercentile: 0.90,
	}
}

func TestDetector_InjuryReplacement(t *testing.T) {
	d, events, _ := newTestDetector(t)

	injured := &domain.PlayerSignals{
		PlayerID: "rb-starter", Name: "Lead Back", Team: "DAL", Position: domain.PositionRB,
		DepthChartPos: 1, InjuryStatus: domain.InjuryIR,
	}
	backup := &domain.PlayerSignals{
		PlayerID: "rb-backup", Name: "Handcuff", Team: "DAL", Position: domain.PositionRB,
		DepthChartPos: 2, SnapShare: 0.30, InjuryStatus: domain.InjuryHealthy,
	}
	otherTeam := &domain.PlayerSignals{
		PlayerID: "rb-elsewhere", Name: "Unrelated", Team: "NYJ", Position: domain.PositionRB,
		DepthChartPos: 2, SnapShare: 0.30, InjuryStatus: domain.InjuryHealthy,
	}

	run, err := d.Run(context.Background(), snapshotWith(injured, backup, otherTeam))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if run.CountsByType[domain.AdjustmentInjuryReplacement] != 2 {
		t.Errorf("Expected one replacement event per format, got %d",
			run.CountsByType[domain.AdjustmentInjuryReplacement])
	}

	for _, format := range domain.Formats() {
		active, err := events.GetActive(context.Background(), "rb-backup", format, d.now())
		if err != nil {
			t.Fatalf("GetActive failed: %v", err)
		}
		if len(active) != 1 {
			t.Fatalf("Expected one %s event, got %d", format, len(active))
		}
		if active[0].Delta != 500 {
			t.Errorf("RB replacement delta: got %v, want 500", active[0].Delta)
		}
		if active[0].ExpiresAt != d.now()+(7*24*time.Hour).Milliseconds() {
			t.Errorf("Replacement expiry mismatch: %d", active[0].ExpiresAt)
		}
	}

	// The unrelated backup got nothing.
	active, _ := events.GetActive(context.Background(), "rb-elsewhere", domain.FormatDynasty, d.now())
	if len(active) != 0 {
		t.Errorf("Backup without an injured starter should not fire: %+v", active)
	}
}

func TestInjuryReplacementDelta_QBOutranksSkillPositions(t *testing.T) {
	// A backup quarterback stepping in absorbs the whole offense's
	// passing volume, so the QB delta must exceed RB and WR.
	qb := injuryReplacementDelta(domain.PositionQB)
	rb := injuryReplacementDelta(domain.PositionRB)
	wr := injuryReplacementDelta(domain.PositionWR)
	if qb <= rb {
		t.Errorf("QB replacement delta %v should exceed RB %v", qb, rb)
	}
	if rb <= wr {
		t.Errorf("RB replacement delta %v should exceed WR %v", rb, wr)
	}
}

func TestDetector_StarterPromotion(t *testing.T) {
	d, events, _ := newTestDetector(t)

	promoted := &domain.PlayerSignals{
		PlayerID: "qb-new", Name: "New QB1", Team: "PIT", Position: domain.PositionQB,
		DepthChartPos: 1, SnapShare: 0.10, InjuryStatus: domain.InjuryHealthy,
	}
	established := healthyStarter("wr-vet") // 85% snaps, no promotion signal

	run, err := d.Run(context.Background(), snapshotWith(promoted, established))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if run.CountsByType[domain.AdjustmentStarterPromotion] != 2 {
		t.Errorf("Expected promotion events for both formats, got %d",
			run.CountsByType[domain.AdjustmentStarterPromotion])
	}

	active, _ := events.GetActive(context.Background(), "qb-new", domain.FormatRedraft, d.now())
	if len(active) != 1 || active[0].Delta != 500 {
		t.Errorf("QB promotion event mismatch: %+v", active)
	}
	active, _ = events.GetActive(context.Background(), "wr-vet", domain.FormatRedraft, d.now())
	if len(active) != 0 {
		t.Errorf("Established starter should not fire: %+v", active)
	}
}

func TestDetector_DepthChartRiseAndUsageBreakout(t *testing.T) {
	d, events, _ := newTestDetector(t)

	riser := &domain.PlayerSignals{
		PlayerID: "te-riser", Name: "Rising TE", Team: "SF", Position: domain.PositionTE,
		DepthChartPos: 2, SnapShare: 0.55, OpportunityShare: 0.10,
		InjuryStatus: domain.InjuryHealthy, MarketPercentile: 0.40,
	}
	breakout := &domain.PlayerSignals{
		PlayerID: "wr-breakout", Name: "Breakout WR", Team: "HOU", Position: domain.PositionWR,
		DepthChartPos: 1, SnapShare: 0.88, OpportunityShare: 0.27,
		InjuryStatus: domain.InjuryHealthy, MarketPercentile: 0.55,
	}

	run, err := d.Run(context.Background(), snapshotWith(riser, breakout))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if run.CountsByType[domain.AdjustmentDepthChartRise] != 2 {
		t.Errorf("Depth chart rise count: got %d, want 2", run.CountsByType[domain.AdjustmentDepthChartRise])
	}
	if run.CountsByType[domain.AdjustmentUsageBreakout] != 2 {
		t.Errorf("Usage breakout count: got %d, want 2", run.CountsByType[domain.AdjustmentUsageBreakout])
	}

	active, _ := events.GetActive(context.Background(), "wr-breakout", domain.FormatDynasty, d.now())
	if len(active) != 1 || active[0].Delta != 300 {
		t.Errorf("Breakout event mismatch: %+v", active)
	}
}

func TestDetector_WaiverSpikeDeltaCapped(t *testing.T) {
	d, events, _ := newTestDetector(t)

	hot := &domain.PlayerSignals{
		PlayerID: "rb-hot", Name: "Waiver Darling", Team: "DET", Position: domain.PositionRB,
		DepthChartPos: 3, SnapShare: 0.15, InjuryStatus: domain.InjuryHealthy,
		WaiverAdds24h: 20000, WaiverAdds48h: 26000,
	}
	quiet := &domain.PlayerSignals{
		PlayerID: "wr-quiet", Name: "Nobody", Team: "DET", Position: domain.PositionWR,
		DepthChartPos: 3, InjuryStatus: domain.InjuryHealthy,
		WaiverAdds24h: 12, WaiverAdds48h: 30,
	}

	if _, err := d.Run(context.Background(), snapshotWith(hot, quiet)); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	active, _ := events.GetActive(context.Background(), "rb-hot", domain.FormatRedraft, d.now())
	if len(active) != 1 {
		t.Fatalf("Expected one waiver event, got %d", len(active))
	}
	if active[0].Delta != 400 {
		t.Errorf("Waiver delta should cap at 400: got %v", active[0].Delta)
	}

	active, _ = events.GetActive(context.Background(), "wr-quiet", domain.FormatRedraft, d.now())
	if len(active) != 0 {
		t.Errorf("Quiet player should not fire: %+v", active)
	}
}

func TestDetector_DedupWithinWindow(t *testing.T) {
	d, events, _ := newTestDetector(t)

	snap := snapshotWith(&domain.PlayerSignals{
		PlayerID: "qb-new", Name: "New QB1", Team: "PIT", Position: domain.PositionQB,
		DepthChartPos: 1, SnapShare: 0.10, InjuryStatus: domain.InjuryHealthy,
	})

	first, err := d.Run(context.Background(), snap)
	if err != nil {
		t.Fatalf("First run failed: %v", err)
	}
	if first.EventsCreated() != 2 {
		t.Fatalf("First run should create 2 events, got %d", first.EventsCreated())
	}

	// Second run twelve hours later, still inside the 48h lookback.
	d.now = func() int64 { return 1704067200000 + (12 * time.Hour).Milliseconds() }
	second, err := d.Run(context.Background(), snap)
	if err != nil {
		t.Fatalf("Second run failed: %v", err)
	}
	if second.EventsCreated() != 0 {
		t.Errorf("Second run inside the window should dedup everything, got %d events", second.EventsCreated())
	}

	for _, format := range domain.Formats() {
		active, _ := events.GetActive(context.Background(), "qb-new", format, d.now())
		if len(active) != 1 {
			t.Errorf("Exactly one %s event should exist, got %d", format, len(active))
		}
	}
}

func TestDetector_ConcurrentRunsShareEventID(t *testing.T) {
	// Two detectors at the same instant: the deterministic id makes the
	// second insert a duplicate, not a double event.
	events := memory.NewAdjustmentEventStore()
	d1 := NewDetector(events, memory.NewAuditSink(), zerolog.Nop())
	d2 := NewDetector(events, memory.NewAuditSink(), zerolog.Nop())
	d1.now = func() int64 { return 1704067200000 }
	d2.now = func() int64 { return 1704067200000 + 1000 } // same bucket

	snap := snapshotWith(&domain.PlayerSignals{
		PlayerID: "qb-new", Name: "New QB1", Team: "PIT", Position: domain.PositionQB,
		DepthChartPos: 1, SnapShare: 0.10, InjuryStatus: domain.InjuryHealthy,
	})

	if _, err := d1.Run(context.Background(), snap); err != nil {
		t.Fatalf("First run failed: %v", err)
	}
	second, err := d2.Run(context.Background(), snap)
	if err != nil {
		t.Fatalf("Second run failed: %v", err)
	}
	if second.ErrorCount != 0 {
		t.Errorf("Duplicate ids should not count as errors: %d", second.ErrorCount)
	}

	active, _ := events.GetActive(context.Background(), "qb-new", domain.FormatDynasty, 1704067200000)
	if len(active) != 1 {
		t.Errorf("Expected one event despite concurrent runs, got %d", len(active))
	}
}

// failingEventStore wraps the memory store and fails inserts for one
// player to exercise partial-failure reporting.
type failingEventStore struct {
	*memory.AdjustmentEventStore
	failPlayer string
}

func (s *failingEventStore) Insert(ctx context.Context, e *domain.ValueAdjustmentEvent) error {
	if e.PlayerID == s.failPlayer {
		return errors.New("write refused")
	}
	return s.AdjustmentEventStore.Insert(ctx, e)
}

func TestDetector_PartialFailureReported(t *testing.T) {
	store := &failingEventStore{AdjustmentEventStore: memory.NewAdjustmentEventStore(), failPlayer: "qb-doomed"}
	audit := memory.NewAuditSink()
	d := NewDetector(store, audit, zerolog.Nop())
	d.now = func() int64 { return 1704067200000 }

	snap := snapshotWith(
		&domain.PlayerSignals{
			PlayerID: "qb-doomed", Name: "Doomed", Team: "LV", Position: domain.PositionQB,
			DepthChartPos: 1, SnapShare: 0.10, InjuryStatus: domain.InjuryHealthy,
		},
		&domain.PlayerSignals{
			PlayerID: "qb-fine", Name: "Fine", Team: "CHI", Position: domain.PositionQB,
			DepthChartPos: 1, SnapShare: 0.10, InjuryStatus: domain.InjuryHealthy,
		},
	)

	run, err := d.Run(context.Background(), snap)
	if err != nil {
		t.Fatalf("Partial failure must not fail the run: %v", err)
	}
	if run.Failed {
		t.Error("Run should not be marked failed for event-level errors")
	}
	if run.ErrorCount != 2 {
		t.Errorf("Expected 2 event errors (one per format), got %d", run.ErrorCount)
	}
	if run.CountsByType[domain.AdjustmentStarterPromotion] != 2 {
		t.Errorf("Healthy player's events should land: got %d", run.CountsByType[domain.AdjustmentStarterPromotion])
	}

	runs := audit.DetectionRuns()
	if len(runs) != 1 || runs[0].ErrorCount != 2 {
		t.Errorf("Run summary should be recorded with its error count: %+v", runs)
	}
}

func TestDetector_EmptySnapshotFailsRun(t *testing.T) {
	d, _, audit := newTestDetector(t)

	run, err := d.Run(context.Background(), nil)
	if err == nil {
		t.Fatal("Empty snapshot should fail the run")
	}
	if !run.Failed || run.Error == "" {
		t.Errorf("Run should carry the failure: %+v", run)
	}

	// The summary is recorded even for failed runs.
	if len(audit.DetectionRuns()) != 1 {
		t.Error("Failed run summary should still be recorded")
	}
}

func TestDetector_SweepExpired(t *testing.T) {
	d, events, _ := newTestDetector(t)
	ctx := context.Background()

	old := &domain.ValueAdjustmentEvent{
		EventID: "evt-old", PlayerID: "p1", Format: domain.FormatDynasty,
		EventType: domain.AdjustmentWaiverSpike, Delta: 100, Confidence: 2,
		CreatedAt: 1, ExpiresAt: d.now() - (40 * 24 * time.Hour).Milliseconds(),
	}
	fresh := &domain.ValueAdjustmentEvent{
		EventID: "evt-fresh", PlayerID: "p1", Format: domain.FormatDynasty,
		EventType: domain.AdjustmentWaiverSpike, Delta: 100, Confidence: 2,
		CreatedAt: 1, ExpiresAt: d.now() - (1 * time.Hour).Milliseconds(),
	}
	if err := events.Insert(ctx, old); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if err := events.Insert(ctx, fresh); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	deleted, err := d.SweepExpired(ctx, 30*24*time.Hour)
	if err != nil {
		t.Fatalf("SweepExpired failed: %v", err)
	}
	if deleted != 1 {
		t.Errorf("Expected 1 deleted, got %d", deleted)
	}

	// The freshly expired event survives for the dedup lookback.
	recent, _ := events.GetRecent(ctx, "p1", domain.AdjustmentWaiverSpike, 0)
	if len(recent) != 1 || recent[0].EventID != "evt-fresh" {
		t.Errorf("Fresh expired event should survive: %+v", recent)
	}
}
