package clickhouse

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jacklawrencecmg/TradeAnalyzer-sub000/internal/domain"
	"github.com/jacklawrencecmg/TradeAnalyzer-sub000/internal/storage"
)

// AuditSink implements storage.AuditSink using ClickHouse. All three
// tables are append-only MergeTree tables; ClickHouse does not enforce
// uniqueness and the sink does not need it.
type AuditSink struct {
	conn *Conn
}

// NewAuditSink creates a new AuditSink.
func NewAuditSink(conn *Conn) *AuditSink {
	return &AuditSink{conn: conn}
}

// Compile-time interface check.
var _ storage.AuditSink = (*AuditSink)(nil)

// RecordConsistencyCheck appends a consistency audit outcome. Mismatch
// details are stored as a JSON column so drift investigations can pull
// the exact claimed/canonical pairs.
func (s *AuditSink) RecordConsistencyCheck(ctx context.Context, r *domain.ConsistencyCheckResult) error {
	if r == nil {
		return storage.ErrInvalidInput
	}

	mismatches, err := json.Marshal(r.Mismatches)
	if err != nil {
		return fmt.Errorf("marshal mismatches: %w", err)
	}

	err = s.conn.Exec(ctx, `
		INSERT INTO consistency_checks (check_id, sampled_count, mismatch_count, mismatches, checked_at)
		VALUES (?, ?, ?, ?, ?)
	`, r.CheckID, uint32(r.SampledCount), uint32(r.MismatchCount), string(mismatches), uint64(r.CheckedAt))
	if err != nil {
		return fmt.Errorf("insert consistency check: %w", err)
	}
	return nil
}

// RecordDetectionRun appends an overlay detection run summary.
func (s *AuditSink) RecordDetectionRun(ctx context.Context, r *domain.DetectionRun) error {
	if r == nil {
		return storage.ErrInvalidInput
	}

	counts := make(map[string]int, len(r.CountsByType))
	for typ, n := range r.CountsByType {
		counts[string(typ)] = n
	}
	countsJSON, err := json.Marshal(counts)
	if err != nil {
		return fmt.Errorf("marshal detection counts: %w", err)
	}

	err = s.conn.Exec(ctx, `
		INSERT INTO detection_runs (run_id, started_at, finished_at, counts_by_type, error_count, failed, error)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, r.RunID, uint64(r.StartedAt), uint64(r.FinishedAt), string(countsJSON),
		uint32(r.ErrorCount), r.Failed, r.Error)
	if err != nil {
		return fmt.Errorf("insert detection run: %w", err)
	}
	return nil
}

// RecordValueSnapshots appends served-value snapshots in bulk.
func (s *AuditSink) RecordValueSnapshots(ctx context.Context, snaps []*domain.ValueSnapshot) error {
	if len(snaps) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO value_snapshots (asset_id, format, value, epoch, computed_at, served_at)
	`)
	if err != nil {
		return fmt.Errorf("prepare snapshot batch: %w", err)
	}

	for _, snap := range snaps {
		if snap == nil {
			continue
		}
		err = batch.Append(
			snap.AssetID,
			string(snap.Format),
			snap.Value,
			snap.Epoch,
			uint64(snap.ComputedAt),
			uint64(snap.ServedAt),
		)
		if err != nil {
			return fmt.Errorf("append snapshot to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send snapshot batch: %w", err)
	}
	return nil
}
