package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/jacklawrencecmg/TradeAnalyzer-sub000/internal/domain"
	"github.com/jacklawrencecmg/TradeAnalyzer-sub000/internal/storage"
)

// ConfigStore implements storage.ConfigStore and storage.ConfigHistoryStore
// using PostgreSQL. UpdateValidated runs the validation closure inside the
// same transaction as the write, with the parameter row and its constraint
// group locked FOR UPDATE, so concurrent group updates serialize and the
// group-sum ceiling cannot be violated by a racing pair.
type ConfigStore struct {
	pool *Pool
}

// NewConfigStore creates a new ConfigStore.
func NewConfigStore(pool *Pool) *ConfigStore {
	return &ConfigStore{pool: pool}
}

// Compile-time interface checks.
var (
	_ storage.ConfigStore        = (*ConfigStore)(nil)
	_ storage.ConfigHistoryStore = (*ConfigStore)(nil)
)

// Get retrieves a parameter by key. Returns ErrNotFound if not exists.
func (s *ConfigStore) Get(ctx context.Context, key string) (*domain.ConfigParameter, error) {
	query := `
		SELECT key, value, category, min_value, max_value, updated_at, updated_by
		FROM model_config
		WHERE key = $1
	`

	row := s.pool.QueryRow(ctx, query, key)
	p, err := scanParameter(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get config parameter: %w", err)
	}
	return p, nil
}

// GetAll retrieves every parameter, sorted by key.
func (s *ConfigStore) GetAll(ctx context.Context) ([]*domain.ConfigParameter, error) {
	query := `
		SELECT key, value, category, min_value, max_value, updated_at, updated_by
		FROM model_config
		ORDER BY key ASC
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("get all config parameters: %w", err)
	}
	defer rows.Close()

	return scanParameters(rows)
}

// GetByCategory retrieves every parameter in a category, sorted by key.
func (s *ConfigStore) GetByCategory(ctx context.Context, category domain.ParameterCategory) ([]*domain.ConfigParameter, error) {
	query := `
		SELECT key, value, category, min_value, max_value, updated_at, updated_by
		FROM model_config
		WHERE category = $1
		ORDER BY key ASC
	`

	rows, err := s.pool.Query(ctx, query, string(category))
	if err != nil {
		return nil, fmt.Errorf("get config parameters by category: %w", err)
	}
	defer rows.Close()

	return scanParameters(rows)
}

// Seed inserts a parameter if its key is absent.
func (s *ConfigStore) Seed(ctx context.Context, p *domain.ConfigParameter) error {
	if p == nil || p.Key == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO model_config (key, value, category, min_value, max_value, updated_at, updated_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (key) DO NOTHING
	`

	_, err := s.pool.Exec(ctx, query,
		p.Key,
		p.Value,
		string(p.Category),
		p.Min,
		p.Max,
		p.UpdatedAt,
		p.UpdatedBy,
	)
	if err != nil {
		return fmt.Errorf("seed config parameter: %w", err)
	}
	return nil
}

// UpdateValidated atomically validates and commits a new value. The
// parameter row and every row of its constraint group are locked before
// the validation closure runs; the history record is appended in the same
// transaction.
func (s *ConfigStore) UpdateValidated(ctx context.Context, key string, newValue float64, actor string,
	group []string,
	validate func(current *domain.ConfigParameter, groupValues map[string]float64) error,
	record *domain.ConfigChangeRecord) error {

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin config update: %w", err)
	}
	defer tx.Rollback(ctx)

	// Lock the target row and its group in a single ordered query so
	// concurrent updaters of overlapping groups acquire row locks in the
	// same key order and cannot deadlock.
	lockKeys := make([]string, 0, len(group)+1)
	lockKeys = append(lockKeys, key)
	for _, k := range group {
		if k != key {
			lockKeys = append(lockKeys, k)
		}
	}

	rows, err := tx.Query(ctx, `
		SELECT key, value, category, min_value, max_value, updated_at, updated_by
		FROM model_config
		WHERE key = ANY($1)
		ORDER BY key ASC
		FOR UPDATE
	`, lockKeys)
	if err != nil {
		return fmt.Errorf("lock config rows: %w", err)
	}
	locked, err := scanParameters(rows)
	rows.Close()
	if err != nil {
		return fmt.Errorf("lock config rows: %w", err)
	}

	var current *domain.ConfigParameter
	groupValues := make(map[string]float64, len(locked))
	for _, p := range locked {
		if p.Key == key {
			current = p
		}
		groupValues[p.Key] = p.Value
	}
	if current == nil {
		return storage.ErrNotFound
	}

	if err := validate(current, groupValues); err != nil {
		return err
	}

	var updatedAt int64
	if record != nil {
		updatedAt = record.ChangedAt
	} else {
		updatedAt = current.UpdatedAt
	}

	_, err = tx.Exec(ctx, `
		UPDATE model_config
		SET value = $2, updated_at = $3, updated_by = $4
		WHERE key = $1
	`, key, newValue, updatedAt, actor)
	if err != nil {
		return fmt.Errorf("update config parameter: %w", err)
	}

	if record != nil {
		metadata, err := json.Marshal(record.Metadata)
		if err != nil {
			return fmt.Errorf("marshal change record metadata: %w", err)
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO model_config_history (record_id, key, old_value, new_value, changed_by, changed_at, metadata)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, record.RecordID, record.Key, record.OldValue, record.NewValue,
			record.ChangedBy, record.ChangedAt, metadata)
		if err != nil {
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("append change record: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit config update: %w", err)
	}
	return nil
}

// GetByID retrieves a change record. Returns ErrNotFound if not exists.
func (s *ConfigStore) GetByID(ctx context.Context, recordID string) (*domain.ConfigChangeRecord, error) {
	query := `
		SELECT record_id, key, old_value, new_value, changed_by, changed_at, metadata
		FROM model_config_history
		WHERE record_id = $1
	`

	row := s.pool.QueryRow(ctx, query, recordID)
	r, err := scanChangeRecord(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get change record: %w", err)
	}
	return r, nil
}

// GetByKey retrieves change records for a key, newest first.
func (s *ConfigStore) GetByKey(ctx context.Context, key string, limit int) ([]*domain.ConfigChangeRecord, error) {
	query := `
		SELECT record_id, key, old_value, new_value, changed_by, changed_at, metadata
		FROM model_config_history
		WHERE key = $1
		ORDER BY changed_at DESC, record_id DESC
	`
	args := []any{key}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("get change records by key: %w", err)
	}
	defer rows.Close()

	return scanChangeRecords(rows)
}

// GetRecent retrieves the most recent change records, newest first.
func (s *ConfigStore) GetRecent(ctx context.Context, limit int) ([]*domain.ConfigChangeRecord, error) {
	query := `
		SELECT record_id, key, old_value, new_value, changed_by, changed_at, metadata
		FROM model_config_history
		ORDER BY changed_at DESC, record_id DESC
	`
	var args []any
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("get recent change records: %w", err)
	}
	defer rows.Close()

	return scanChangeRecords(rows)
}

// scanParameter scans a single row into a ConfigParameter.
func scanParameter(row pgx.Row) (*domain.ConfigParameter, error) {
	var p domain.ConfigParameter
	var categoryStr string

	err := row.Scan(
		&p.Key,
		&p.Value,
		&categoryStr,
		&p.Min,
		&p.Max,
		&p.UpdatedAt,
		&p.UpdatedBy,
	)
	if err != nil {
		return nil, err
	}

	p.Category = domain.ParameterCategory(categoryStr)
	return &p, nil
}

// scanParameters scans multiple rows into a slice of ConfigParameter.
func scanParameters(rows pgx.Rows) ([]*domain.ConfigParameter, error) {
	var params []*domain.ConfigParameter

	for rows.Next() {
		var p domain.ConfigParameter
		var categoryStr string

		err := rows.Scan(
			&p.Key,
			&p.Value,
			&categoryStr,
			&p.Min,
			&p.Max,
			&p.UpdatedAt,
			&p.UpdatedBy,
		)
		if err != nil {
			return nil, fmt.Errorf("scan config parameter row: %w", err)
		}

		p.Category = domain.ParameterCategory(categoryStr)
		params = append(params, &p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate config parameter rows: %w", err)
	}

	return params, nil
}

// scanChangeRecord scans a single row into a ConfigChangeRecord.
func scanChangeRecord(row pgx.Row) (*domain.ConfigChangeRecord, error) {
	var r domain.ConfigChangeRecord
	var metadata []byte

	err := row.Scan(
		&r.RecordID,
		&r.Key,
		&r.OldValue,
		&r.NewValue,
		&r.ChangedBy,
		&r.ChangedAt,
		&metadata,
	)
	if err != nil {
		return nil, err
	}

	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &r.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal change record metadata: %w", err)
		}
	}
	return &r, nil
}

// scanChangeRecords scans multiple rows into a slice of ConfigChangeRecord.
func scanChangeRecords(rows pgx.Rows) ([]*domain.ConfigChangeRecord, error) {
	var records []*domain.ConfigChangeRecord

	for rows.Next() {
		var r domain.ConfigChangeRecord
		var metadata []byte

		err := rows.Scan(
			&r.RecordID,
			&r.Key,
			&r.OldValue,
			&r.NewValue,
			&r.ChangedBy,
			&r.ChangedAt,
			&metadata,
		)
		if err != nil {
			return nil, fmt.Errorf("scan change record row: %w", err)
		}

		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &r.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal change record metadata: %w", err)
			}
		}
		records = append(records, &r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate change record rows: %w", err)
	}

	return records, nil
}
