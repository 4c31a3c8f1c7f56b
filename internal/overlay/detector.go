package overlay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jacklawrencecmg/TradeAnalyzer-sub000/internal/domain"
	"github.com/jacklawrencecmg/TradeAnalyzer-sub000/internal/idhash"
	"github.com/jacklawrencecmg/TradeAnalyzer-sub000/internal/observability"
	"github.com/jacklawrencecmg/TradeAnalyzer-sub000/internal/storage"
)

// EventIDBucket is the time bucket folded into deterministic event ids.
// Detections of the same role change within one bucket share an id, so
// concurrent or repeated runs collapse onto one insert.
const EventIDBucket = 6 * time.Hour

// candidate is one detected role change before it is fanned out per
// format and written.
type candidate struct {
	playerID   string
	eventType  domain.AdjustmentType
	delta      float64
	reason     string
	confidence int
	source     string
}

// Detector runs the role-change scans over a signal snapshot and turns
// hits into adjustment events. A failed event write never aborts the
// batch; the run itself fails only when a scan errors.
type Detector struct {
	events storage.AdjustmentEventStore
	audit  storage.AuditSink
	log    zerolog.Logger

	now func() int64
}

// NewDetector creates a Detector.
func NewDetector(events storage.AdjustmentEventStore, audit storage.AuditSink, log zerolog.Logger) *Detector {
	return &Detector{
		events: events,
		audit:  audit,
		log:    log.With().Str("component", "overlay").Logger(),
		now:    func() int64 { return time.Now().UnixMilli() },
	}
}

// Run executes every scan against the snapshot and writes the resulting
// events, one per format, deduplicated by lookback window and by the
// deterministic event id. The run summary is recorded to the audit sink
// regardless of outcome.
func (d *Detector) Run(ctx context.Context, snap *domain.SignalSnapshot) (*domain.DetectionRun, error) {
	nowMs := d.now()
	run := &domain.DetectionRun{
		RunID:        uuid.NewString(),
		StartedAt:    nowMs,
		CountsByType: make(map[domain.AdjustmentType]int),
	}

	var scanErr error
	if snap == nil || len(snap.Players) == 0 {
		scanErr = errors.New("empty signal snapshot")
	} else {
		for _, r := range rules() {
			candidates := r.scan(snap)
			for _, c := range candidates {
				d.writeCandidate(ctx, run, r, c, nowMs)
			}
		}
	}

	run.FinishedAt = d.now()
	if scanErr != nil {
		run.Failed = true
		run.Error = scanErr.Error()
		observability.RecordDetectionRun("failed")
	} else {
		observability.RecordDetectionRun("ok")
		observability.DefaultMetrics.LastSuccessfulDetection.Set(float64(run.FinishedAt) / 1000)
	}

	d.log.Info().
		Str("run_id", run.RunID).
		Int("events_created", run.EventsCreated()).
		Int("error_count", run.ErrorCount).
		Bool("failed", run.Failed).
		Msg("adjustment detection run finished")

	if d.audit != nil {
		if err := d.audit.RecordDetectionRun(ctx, run); err != nil {
			d.log.Warn().Err(err).Str("run_id", run.RunID).Msg("failed to record detection run")
		}
	}

	if scanErr != nil {
		return run, fmt.Errorf("detection run %s: %w", run.RunID, scanErr)
	}
	return run, nil
}

func (d *Detector) writeCandidate(ctx context.Context, run *domain.DetectionRun, r rule, c candidate, nowMs int64) {
	// Lookback dedup: a hit for the same player and type inside the
	// window means this role change was already priced in.
	sinceMs := nowMs - r.lookback.Milliseconds()
	recent, err := d.events.GetRecent(ctx, c.playerID, c.eventType, sinceMs)
	if err != nil {
		run.ErrorCount++
		observability.DefaultMetrics.DetectionErrors.Inc()
		d.log.Warn().Err(err).
			Str("player_id", c.playerID).
			Str("event_type", c.eventType.String()).
			Msg("dedup lookback failed, skipping candidate")
		return
	}
	if len(recent) > 0 {
		return
	}

	for _, format := range domain.Formats() {
		event := &domain.ValueAdjustmentEvent{
			EventID:    idhash.ComputeEventID(c.playerID, format, c.eventType, nowMs, EventIDBucket.Milliseconds()),
			PlayerID:   c.playerID,
			Format:     format,
			EventType:  c.eventType,
			Delta:      c.delta,
			Reason:     c.reason,
			Confidence: c.confidence,
			Source:     c.source,
			CreatedAt:  nowMs,
			ExpiresAt:  nowMs + r.expiry.Milliseconds(),
		}
		err := d.events.Insert(ctx, event)
		switch {
		case err == nil:
			run.CountsByType[c.eventType]++
			observability.RecordAdjustmentCreated(c.eventType.String())
		case errors.Is(err, storage.ErrDuplicateKey):
			// Another run already wrote this bucket's event.
		default:
			run.ErrorCount++
			observability.DefaultMetrics.DetectionErrors.Inc()
			d.log.Warn().Err(err).
				Str("event_id", event.EventID).
				Str("player_id", c.playerID).
				Msg("failed to write adjustment event")
		}
	}
}

// SweepExpired deletes events that expired more than retention ago.
// Freshly expired events are kept for the dedup lookback.
func (d *Detector) SweepExpired(ctx context.Context, retention time.Duration) (int, error) {
	cutoff := d.now() - retention.Milliseconds()
	deleted, err := d.events.DeleteExpiredBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("retention sweep: %w", err)
	}
	if deleted > 0 {
		d.log.Info().Int("deleted", deleted).Msg("swept expired adjustment events")
	}
	return deleted, nil
}
