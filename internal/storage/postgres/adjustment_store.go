package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/jacklawrencecmg/TradeAnalyzer-sub000/internal/domain"
	"github.com/jacklawrencecmg/TradeAnalyzer-sub000/internal/storage"
)

// AdjustmentEventStore implements storage.AdjustmentEventStore using
// PostgreSQL. event_id is the primary key; since event ids are
// deterministic over (player, format, type, time bucket), the constraint
// makes the overlay's check-then-insert dedup atomic.
type AdjustmentEventStore struct {
	pool *Pool
}

// NewAdjustmentEventStore creates a new AdjustmentEventStore.
func NewAdjustmentEventStore(pool *Pool) *AdjustmentEventStore {
	return &AdjustmentEventStore{pool: pool}
}

// Compile-time interface check.
var _ storage.AdjustmentEventStore = (*AdjustmentEventStore)(nil)

// Insert adds a new event. Returns ErrDuplicateKey if event_id exists.
func (s *AdjustmentEventStore) Insert(ctx context.Context, e *domain.ValueAdjustmentEvent) error {
	if e == nil || e.EventID == "" || e.PlayerID == "" || !e.Format.IsValid() || !e.EventType.IsValid() {
		return storage.ErrInvalidInput
	}
	if e.Confidence < 1 || e.Confidence > 5 {
		return storage.ErrInvalidInput
	}

	metadata, err := json.Marshal(e.Metadata)
	if err != nil {
		return fmt.Errorf("marshal adjustment metadata: %w", err)
	}

	query := `
		INSERT INTO adjustment_events (
			event_id, player_id, format, event_type, delta, reason,
			confidence, source, created_at, expires_at, metadata
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err = s.pool.Exec(ctx, query,
		e.EventID,
		e.PlayerID,
		string(e.Format),
		string(e.EventType),
		e.Delta,
		e.Reason,
		e.Confidence,
		e.Source,
		e.CreatedAt,
		e.ExpiresAt,
		metadata,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert adjustment event: %w", err)
	}
	return nil
}

// GetActive retrieves non-expired events for a player/format pair,
// ordered by created_at ASC.
func (s *AdjustmentEventStore) GetActive(ctx context.Context, playerID string, format domain.Format, nowMs int64) ([]*domain.ValueAdjustmentEvent, error) {
	query := `
		SELECT event_id, player_id, format, event_type, delta, reason,
		       confidence, source, created_at, expires_at, metadata
		FROM adjustment_events
		WHERE player_id = $1 AND format = $2 AND expires_at >= $3
		ORDER BY created_at ASC, event_id ASC
	`

	rows, err := s.pool.Query(ctx, query, playerID, string(format), nowMs)
	if err != nil {
		return nil, fmt.Errorf("get active adjustment events: %w", err)
	}
	defer rows.Close()

	return scanAdjustmentEvents(rows)
}

// GetRecent retrieves events of a type for a player created at or after
// sinceMs, any format, ordered by created_at ASC.
func (s *AdjustmentEventStore) GetRecent(ctx context.Context, playerID string, eventType domain.AdjustmentType, sinceMs int64) ([]*domain.ValueAdjustmentEvent, error) {
	query := `
		SELECT event_id, player_id, format, event_type, delta, reason,
		       confidence, source, created_at, expires_at, metadata
		FROM adjustment_events
		WHERE player_id = $1 AND event_type = $2 AND created_at >= $3
		ORDER BY created_at ASC, event_id ASC
	`

	rows, err := s.pool.Query(ctx, query, playerID, string(eventType), sinceMs)
	if err != nil {
		return nil, fmt.Errorf("get recent adjustment events: %w", err)
	}
	defer rows.Close()

	return scanAdjustmentEvents(rows)
}

// DeleteExpiredBefore removes events whose expiry predates cutoffMs.
func (s *AdjustmentEventStore) DeleteExpiredBefore(ctx context.Context, cutoffMs int64) (int, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM adjustment_events
		WHERE expires_at < $1
	`, cutoffMs)
	if err != nil {
		return 0, fmt.Errorf("delete expired adjustment events: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// scanAdjustmentEvents scans multiple rows into ValueAdjustmentEvents.
func scanAdjustmentEvents(rows pgx.Rows) ([]*domain.ValueAdjustmentEvent, error) {
	var events []*domain.ValueAdjustmentEvent

	for rows.Next() {
		var e domain.ValueAdjustmentEvent
		var formatStr, typeStr string
		var metadata []byte

		err := rows.Scan(
			&e.EventID,
			&e.PlayerID,
			&formatStr,
			&typeStr,
			&e.Delta,
			&e.Reason,
			&e.Confidence,
			&e.Source,
			&e.CreatedAt,
			&e.ExpiresAt,
			&metadata,
		)
		if err != nil {
			return nil, fmt.Errorf("scan adjustment event row: %w", err)
		}

		e.Format = domain.Format(formatStr)
		e.EventType = domain.AdjustmentType(typeStr)
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &e.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal adjustment metadata: %w", err)
			}
		}
		events = append(events, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate adjustment event rows: %w", err)
	}

	return events, nil
}
