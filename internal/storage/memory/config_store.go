package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/jacklawrencecmg/TradeAnalyzer-sub000/internal/domain"
	"github.com/jacklawrencecmg/TradeAnalyzer-sub000/internal/storage"
)

// ConfigStore is an in-memory implementation of storage.ConfigStore and
// storage.ConfigHistoryStore. A single mutex spans validation and write,
// so two concurrent updates to the same weight group cannot both pass
// the group-sum check and jointly violate the ceiling.
type ConfigStore struct {
	mu      sync.RWMutex
	params  map[string]*domain.ConfigParameter
	records []*domain.ConfigChangeRecord // append-only
	byID    map[string]*domain.ConfigChangeRecord
}

// NewConfigStore creates a new in-memory config store.
func NewConfigStore() *ConfigStore {
	return &ConfigStore{
		params: make(map[string]*domain.ConfigParameter),
		byID:   make(map[string]*domain.ConfigChangeRecord),
	}
}

// Get retrieves a parameter by key. Returns ErrNotFound if not exists.
func (s *ConfigStore) Get(_ context.Context, key string) (*domain.ConfigParameter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, exists := s.params[key]
	if !exists {
		return nil, storage.ErrNotFound
	}

	// Return a copy
	paramCopy := *p
	return &paramCopy, nil
}

// GetAll retrieves every parameter, sorted by key.
func (s *ConfigStore) GetAll(_ context.Context) ([]*domain.ConfigParameter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.ConfigParameter, 0, len(s.params))
	for _, p := range s.params {
		paramCopy := *p
		result = append(result, &paramCopy)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Key < result[j].Key
	})

	return result, nil
}

// GetByCategory retrieves every parameter in a category, sorted by key.
func (s *ConfigStore) GetByCategory(_ context.Context, category domain.ParameterCategory) ([]*domain.ConfigParameter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.ConfigParameter
	for _, p := range s.params {
		if p.Category == category {
			paramCopy := *p
			result = append(result, &paramCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Key < result[j].Key
	})

	return result, nil
}

// Seed inserts a parameter if its key is absent.
func (s *ConfigStore) Seed(_ context.Context, p *domain.ConfigParameter) error {
	if p == nil || p.Key == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.params[p.Key]; exists {
		return nil
	}

	paramCopy := *p
	s.params[p.Key] = &paramCopy
	return nil
}

// UpdateValidated atomically validates and commits a new value, appending
// the change record under the same lock.
func (s *ConfigStore) UpdateValidated(_ context.Context, key string, newValue float64, actor string,
	group []string,
	validate func(current *domain.ConfigParameter, groupValues map[string]float64) error,
	record *domain.ConfigChangeRecord) error {

	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.params[key]
	if !exists {
		return storage.ErrNotFound
	}

	groupValues := make(map[string]float64, len(group))
	for _, k := range group {
		if p, ok := s.params[k]; ok {
			groupValues[k] = p.Value
		}
	}

	currentCopy := *current
	if err := validate(&currentCopy, groupValues); err != nil {
		return err
	}

	current.Value = newValue
	current.UpdatedBy = actor
	if record != nil {
		current.UpdatedAt = record.ChangedAt
		recordCopy := *record
		s.records = append(s.records, &recordCopy)
		s.byID[recordCopy.RecordID] = &recordCopy
	}

	return nil
}

// GetByID retrieves a change record. Returns ErrNotFound if not exists.
func (s *ConfigStore) GetByID(_ context.Context, recordID string) (*domain.ConfigChangeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, exists := s.byID[recordID]
	if !exists {
		return nil, storage.ErrNotFound
	}

	recordCopy := *r
	return &recordCopy, nil
}

// GetByKey retrieves change records for a key, newest first.
func (s *ConfigStore) GetByKey(_ context.Context, key string, limit int) ([]*domain.ConfigChangeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.ConfigChangeRecord
	for i := len(s.records) - 1; i >= 0 && (limit <= 0 || len(result) < limit); i-- {
		if s.records[i].Key == key {
			recordCopy := *s.records[i]
			result = append(result, &recordCopy)
		}
	}

	return result, nil
}

// GetRecent retrieves the most recent change records, newest first.
func (s *ConfigStore) GetRecent(_ context.Context, limit int) ([]*domain.ConfigChangeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.ConfigChangeRecord
	for i := len(s.records) - 1; i >= 0 && (limit <= 0 || len(result) < limit); i-- {
		recordCopy := *s.records[i]
		result = append(result, &recordCopy)
	}

	return result, nil
}

// Verify interface compliance at compile time.
var (
	_ storage.ConfigStore        = (*ConfigStore)(nil)
	_ storage.ConfigHistoryStore = (*ConfigStore)(nil)
)
