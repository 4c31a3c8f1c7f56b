package storage

import (
	"context"

	"github.com/jacklawrencecmg/TradeAnalyzer-sub000/internal/domain"
)

// ConfigStore provides access to model_config storage.
// Bounds and group constraints are validated by the configuration
// service before the write; implementations must make the
// validate-then-write sequence atomic (UpdateValidated receives the
// validation closure and runs it inside the same critical section or
// transaction as the write).
type ConfigStore interface {
	// Get retrieves a parameter by key. Returns ErrNotFound if not exists.
	Get(ctx context.Context, key string) (*domain.ConfigParameter, error)

	// GetAll retrieves every parameter.
	GetAll(ctx context.Context) ([]*domain.ConfigParameter, error)

	// GetByCategory retrieves every parameter in a category.
	GetByCategory(ctx context.Context, category domain.ParameterCategory) ([]*domain.ConfigParameter, error)

	// Seed inserts a parameter if its key is absent, leaving existing
	// values untouched. Used to install registry defaults on startup.
	Seed(ctx context.Context, p *domain.ConfigParameter) error

	// UpdateValidated atomically validates and commits a new value.
	// The validate closure observes the current parameter and the
	// current values of every key in group (the parameter's constraint
	// group, possibly empty); an error return aborts the write and is
	// passed through unchanged. On commit the store also appends the
	// change record in the same transaction.
	UpdateValidated(ctx context.Context, key string, newValue float64, actor string,
		group []string,
		validate func(current *domain.ConfigParameter, groupValues map[string]float64) error,
		record *domain.ConfigChangeRecord) error
}

// ConfigHistoryStore provides read access to model_config_history.
// Records are appended by ConfigStore.UpdateValidated and never mutated.
type ConfigHistoryStore interface {
	// GetByID retrieves a change record. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, recordID string) (*domain.ConfigChangeRecord, error)

	// GetByKey retrieves change records for a key, newest first.
	GetByKey(ctx context.Context, key string, limit int) ([]*domain.ConfigChangeRecord, error)

	// GetRecent retrieves the most recent change records, newest first.
	GetRecent(ctx context.Context, limit int) ([]*domain.ConfigChangeRecord, error)
}

// AdjustmentEventStore provides access to adjustment_events storage.
type AdjustmentEventStore interface {
	// Insert adds a new event. Returns ErrDuplicateKey if event_id exists.
	Insert(ctx context.Context, e *domain.ValueAdjustmentEvent) error

	// GetActive retrieves non-expired events for a player/format pair at
	// the given time, ordered by created_at ASC.
	GetActive(ctx context.Context, playerID string, format domain.Format, nowMs int64) ([]*domain.ValueAdjustmentEvent, error)

	// GetRecent retrieves events of a type for a player created at or
	// after sinceMs, any format. Used for the dedup lookback check.
	GetRecent(ctx context.Context, playerID string, eventType domain.AdjustmentType, sinceMs int64) ([]*domain.ValueAdjustmentEvent, error)

	// DeleteExpiredBefore removes events whose expiry predates cutoffMs.
	// Returns the number of events removed. Retention sweep only; the
	// valuation path never deletes.
	DeleteExpiredBefore(ctx context.Context, cutoffMs int64) (int, error)
}

// AuditSink receives observability records: consistency check outcomes,
// detection run summaries and served-value snapshots. Writes are
// best-effort append-only; the sink must never fail a caller's request
// path, so implementations log and swallow their own errors where the
// interface returns none.
type AuditSink interface {
	// RecordConsistencyCheck appends a consistency audit outcome.
	RecordConsistencyCheck(ctx context.Context, r *domain.ConsistencyCheckResult) error

	// RecordDetectionRun appends an overlay detection run summary.
	RecordDetectionRun(ctx context.Context, r *domain.DetectionRun) error

	// RecordValueSnapshots appends served-value snapshots in bulk.
	RecordValueSnapshots(ctx context.Context, snaps []*domain.ValueSnapshot) error
}
