package postgres_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jacklawrencecmg/TradeAnalyzer-sub000/internal/domain"
	"github.com/jacklawrencecmg/TradeAnalyzer-sub000/internal/storage"
	"github.com/jacklawrencecmg/TradeAnalyzer-sub000/internal/storage/postgres"
)

func seedWeight(t *testing.T, store *postgres.ConfigStore, key string, value float64) {
	t.Helper()
	err := store.Seed(context.Background(), &domain.ConfigParameter{
		Key:      key,
		Value:    value,
		Category: domain.CategoryWeight,
		Min:      0,
		Max:      1,
	})
	require.NoError(t, err)
}

func TestConfigStore_SeedAndGet(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := postgres.NewConfigStore(pool)
	ctx := context.Background()

	seedWeight(t, store, "weight_production", 0.55)

	p, err := store.Get(ctx, "weight_production")
	require.NoError(t, err)
	assert.Equal(t, 0.55, p.Value)
	assert.Equal(t, domain.CategoryWeight, p.Category)

	// Second seed must not overwrite
	seedWeight(t, store, "weight_production", 0.99)
	p, err = store.Get(ctx, "weight_production")
	require.NoError(t, err)
	assert.Equal(t, 0.55, p.Value)
}

func TestConfigStore_GetNotFound(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := postgres.NewConfigStore(pool)

	_, err := store.Get(context.Background(), "nonexistent")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestConfigStore_UpdateValidated_CommitsValueAndHistory(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := postgres.NewConfigStore(pool)
	ctx := context.Background()

	seedWeight(t, store, "weight_production", 0.55)

	record := &domain.ConfigChangeRecord{
		RecordID:  "rec-commit-1",
		Key:       "weight_production",
		OldValue:  0.55,
		NewValue:  0.60,
		ChangedBy: "admin",
		ChangedAt: 1700000000000,
		Metadata:  map[string]string{"note": "tune"},
	}

	err := store.UpdateValidated(ctx, "weight_production", 0.60, "admin", nil,
		func(current *domain.ConfigParameter, _ map[string]float64) error {
			assert.Equal(t, 0.55, current.Value)
			return nil
		}, record)
	require.NoError(t, err)

	p, err := store.Get(ctx, "weight_production")
	require.NoError(t, err)
	assert.Equal(t, 0.60, p.Value)
	assert.Equal(t, "admin", p.UpdatedBy)
	assert.Equal(t, int64(1700000000000), p.UpdatedAt)

	r, err := store.GetByID(ctx, "rec-commit-1")
	require.NoError(t, err)
	assert.Equal(t, 0.55, r.OldValue)
	assert.Equal(t, 0.60, r.NewValue)
	assert.Equal(t, "tune", r.Metadata["note"])
}

func TestConfigStore_UpdateValidated_RejectionRollsBack(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := postgres.NewConfigStore(pool)
	ctx := context.Background()

	seedWeight(t, store, "weight_age", 0.10)

	rejection := errors.New("constraint violated")
	err := store.UpdateValidated(ctx, "weight_age", 0.90, "admin", nil,
		func(*domain.ConfigParameter, map[string]float64) error { return rejection },
		&domain.ConfigChangeRecord{RecordID: "rec-rejected", Key: "weight_age", ChangedAt: 1})
	assert.ErrorIs(t, err, rejection)

	p, err := store.Get(ctx, "weight_age")
	require.NoError(t, err)
	assert.Equal(t, 0.10, p.Value)

	_, err = store.GetByID(ctx, "rec-rejected")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestConfigStore_UpdateValidated_UnknownKey(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := postgres.NewConfigStore(pool)

	err := store.UpdateValidated(context.Background(), "nonexistent", 1.0, "admin", nil,
		func(*domain.ConfigParameter, map[string]float64) error { return nil }, nil)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestConfigStore_UpdateValidated_ConcurrentGroupUpdates(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := postgres.NewConfigStore(pool)
	ctx := context.Background()

	// Both at 0.60; raising either to 0.85 passes alone (1.45), both
	// together would exceed the 1.5 ceiling. Row locks must serialize
	// the pair.
	seedWeight(t, store, "w_a", 0.60)
	seedWeight(t, store, "w_b", 0.60)

	group := []string{"w_a", "w_b"}
	const ceiling = 1.5

	update := func(key string, recordID string) error {
		return store.UpdateValidated(ctx, key, 0.85, "admin", group,
			func(_ *domain.ConfigParameter, groupValues map[string]float64) error {
				sum := 0.85
				for k, v := range groupValues {
					if k != key {
						sum += v
					}
				}
				if sum > ceiling {
					return errors.New("group ceiling exceeded")
				}
				return nil
			},
			&domain.ConfigChangeRecord{RecordID: recordID, Key: key, NewValue: 0.85, ChangedAt: 1})
	}

	var wg sync.WaitGroup
	errs := make([]error, 2)
	wg.Add(2)
	go func() { defer wg.Done(); errs[0] = update("w_a", "rec-conc-a") }()
	go func() { defer wg.Done(); errs[1] = update("w_b", "rec-conc-b") }()
	wg.Wait()

	a, err := store.Get(ctx, "w_a")
	require.NoError(t, err)
	b, err := store.Get(ctx, "w_b")
	require.NoError(t, err)

	assert.LessOrEqual(t, a.Value+b.Value, ceiling,
		"concurrent updates must not jointly violate the ceiling (errs: %v, %v)", errs[0], errs[1])
}

func TestConfigStore_HistoryOrderingAndLimit(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := postgres.NewConfigStore(pool)
	ctx := context.Background()

	seedWeight(t, store, "weight_opportunity", 0.20)

	for i, v := range []float64{0.21, 0.22, 0.23} {
		record := &domain.ConfigChangeRecord{
			RecordID:  []string{"rec-h-0", "rec-h-1", "rec-h-2"}[i],
			Key:       "weight_opportunity",
			NewValue:  v,
			ChangedBy: "admin",
			ChangedAt: int64(1000 + i),
		}
		err := store.UpdateValidated(ctx, "weight_opportunity", v, "admin", nil,
			func(*domain.ConfigParameter, map[string]float64) error { return nil }, record)
		require.NoError(t, err)
	}

	records, err := store.GetByKey(ctx, "weight_opportunity", 2)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "rec-h-2", records[0].RecordID)
	assert.Equal(t, "rec-h-1", records[1].RecordID)

	recent, err := store.GetRecent(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, recent, 3)
}

func TestConfigStore_CheckConstraintBackstop(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := postgres.NewConfigStore(pool)
	ctx := context.Background()

	seedWeight(t, store, "weight_situation", 0.15)

	// A validation closure that wrongly passes still cannot store an
	// out-of-bounds value: the table CHECK constraint rejects it.
	err := store.UpdateValidated(ctx, "weight_situation", 7.0, "admin", nil,
		func(*domain.ConfigParameter, map[string]float64) error { return nil }, nil)
	require.Error(t, err)

	p, err := store.Get(ctx, "weight_situation")
	require.NoError(t, err)
	assert.Equal(t, 0.15, p.Value)
}
