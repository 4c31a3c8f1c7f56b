package cache

import (
	"strings"
	"sync"

	"github.com/google/uuid"
)

// PatternInvalidator is the slice of the cache the epoch manager needs.
type PatternInvalidator interface {
	InvalidatePattern(pattern string) int
}

// EpochManager owns the current value epoch. Cached values carry the
// epoch they were computed under as the last key segment; advancing the
// epoch swaps the current id and purges the old epoch's keys under one
// lock, so a reader never builds a key for an epoch that has already
// been retired without its entries going with it.
type EpochManager struct {
	mu      sync.RWMutex
	current string
	store   PatternInvalidator
}

// NewEpochManager creates a manager with a fresh epoch id.
func NewEpochManager(store PatternInvalidator) *EpochManager {
	return &EpochManager{
		current: uuid.NewString(),
		store:   store,
	}
}

// Current returns the active epoch id.
func (m *EpochManager) Current() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// NewEpochID mints an epoch id for a rebuild in progress. The id is not
// active until Advance is called with it.
func (m *EpochManager) NewEpochID() string {
	return uuid.NewString()
}

// Advance activates the given epoch and purges every key of the one it
// replaces. Returns the retired epoch id.
func (m *EpochManager) Advance(next string) string {
	m.mu.Lock()
	old := m.current
	m.current = next
	if m.store != nil {
		m.store.InvalidatePattern("*:" + old)
	}
	m.mu.Unlock()
	return old
}

// InvalidateEpoch purges every key of one epoch without changing the
// active epoch.
func (m *EpochManager) InvalidateEpoch(epoch string) int {
	if m.store == nil {
		return 0
	}
	return m.store.InvalidatePattern("*:" + epoch)
}

// Key joins the given parts and the active epoch with ':'.
func (m *EpochManager) Key(parts ...string) string {
	return strings.Join(parts, ":") + ":" + m.Current()
}
