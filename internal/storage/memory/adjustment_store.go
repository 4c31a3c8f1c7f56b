package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/jacklawrencecmg/TradeAnalyzer-sub000/internal/domain"
	"github.com/jacklawrencecmg/TradeAnalyzer-sub000/internal/storage"
)

// AdjustmentEventStore is an in-memory implementation of
// storage.AdjustmentEventStore. The event_id uniqueness check mirrors the
// PostgreSQL primary-key constraint so dedup behaves identically in both
// backends.
type AdjustmentEventStore struct {
	mu   sync.RWMutex
	data map[string]*domain.ValueAdjustmentEvent // keyed by event_id
}

// NewAdjustmentEventStore creates a new in-memory adjustment event store.
func NewAdjustmentEventStore() *AdjustmentEventStore {
	return &AdjustmentEventStore{
		data: make(map[string]*domain.ValueAdjustmentEvent),
	}
}

// Insert adds a new event. Returns ErrDuplicateKey if event_id exists.
func (s *AdjustmentEventStore) Insert(_ context.Context, e *domain.ValueAdjustmentEvent) error {
	if e == nil || e.EventID == "" || e.PlayerID == "" || !e.Format.IsValid() || !e.EventType.IsValid() {
		return storage.ErrInvalidInput
	}
	if e.Confidence < 1 || e.Confidence > 5 {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[e.EventID]; exists {
		return storage.ErrDuplicateKey
	}

	// Store a copy to prevent external mutation
	eventCopy := *e
	s.data[e.EventID] = &eventCopy
	return nil
}

// GetActive retrieves non-expired events for a player/format pair,
// ordered by created_at ASC.
func (s *AdjustmentEventStore) GetActive(_ context.Context, playerID string, format domain.Format, nowMs int64) ([]*domain.ValueAdjustmentEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.ValueAdjustmentEvent
	for _, e := range s.data {
		if e.PlayerID == playerID && e.Format == format && e.Active(nowMs) {
			eventCopy := *e
			result = append(result, &eventCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt < result[j].CreatedAt
	})

	return result, nil
}

// GetRecent retrieves events of a type for a player created at or after
// sinceMs, any format, ordered by created_at ASC.
func (s *AdjustmentEventStore) GetRecent(_ context.Context, playerID string, eventType domain.AdjustmentType, sinceMs int64) ([]*domain.ValueAdjustmentEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.ValueAdjustmentEvent
	for _, e := range s.data {
		if e.PlayerID == playerID && e.EventType == eventType && e.CreatedAt >= sinceMs {
			eventCopy := *e
			result = append(result, &eventCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt < result[j].CreatedAt
	})

	return result, nil
}

// DeleteExpiredBefore removes events whose expiry predates cutoffMs.
func (s *AdjustmentEventStore) DeleteExpiredBefore(_ context.Context, cutoffMs int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, e := range s.data {
		if e.ExpiresAt < cutoffMs {
			delete(s.data, id)
			removed++
		}
	}

	return removed, nil
}

// Verify interface compliance at compile time.
var _ storage.AdjustmentEventStore = (*AdjustmentEventStore)(nil)
