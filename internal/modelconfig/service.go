package modelconfig

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jacklawrencecmg/TradeAnalyzer-sub000/internal/domain"
	"github.com/jacklawrencecmg/TradeAnalyzer-sub000/internal/observability"
	"github.com/jacklawrencecmg/TradeAnalyzer-sub000/internal/storage"
)

var (
	// ErrUnknownParameter is returned for keys the registry does not declare.
	ErrUnknownParameter = errors.New("unknown parameter")

	// ErrOutOfRange is returned when a value violates the parameter's bounds.
	ErrOutOfRange = errors.New("value out of range")

	// ErrConstraintViolation is returned when a value passes its own bounds
	// but breaks a cross-parameter constraint.
	ErrConstraintViolation = errors.New("constraint violation")
)

// ChangeNotice is published to subscribers after a committed update.
type ChangeNotice struct {
	Key             string
	Category        domain.ParameterCategory
	OldValue        float64
	NewValue        float64
	RequiresRebuild bool
}

// Service is the configuration store facade: typed schema on top of the
// persistence layer, atomic validated updates, history, revert and
// preview.
type Service struct {
	store   storage.ConfigStore
	history storage.ConfigHistoryStore
	log     zerolog.Logger

	mu   sync.Mutex
	subs []chan ChangeNotice

	now func() int64
}

// NewService creates a Service over the given stores.
func NewService(store storage.ConfigStore, history storage.ConfigHistoryStore, log zerolog.Logger) *Service {
	return &Service{
		store:   store,
		history: history,
		log:     log.With().Str("component", "modelconfig").Logger(),
		now:     func() int64 { return time.Now().UnixMilli() },
	}
}

// Seed writes the registry defaults for any key the store does not hold
// yet. Existing values always win.
func (s *Service) Seed(ctx context.Context) error {
	for _, key := range Keys() {
		spec := registry[key]
		err := s.store.Seed(ctx, &domain.ConfigParameter{
			Key:       key,
			Value:     spec.Default,
			Category:  spec.category(),
			Min:       spec.Min,
			Max:       spec.Max,
			UpdatedAt: s.now(),
			UpdatedBy: "seed",
		})
		if err != nil {
			return fmt.Errorf("seed parameter %s: %w", key, err)
		}
	}
	return nil
}

// Get returns one parameter's current state.
func (s *Service) Get(ctx context.Context, key string) (*domain.ConfigParameter, error) {
	if _, ok := registry[key]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownParameter, key)
	}
	return s.store.Get(ctx, key)
}

// GetAll returns every parameter, sorted by key.
func (s *Service) GetAll(ctx context.Context) ([]*domain.ConfigParameter, error) {
	return s.store.GetAll(ctx)
}

// Values returns the current parameter values keyed by parameter key,
// starting from the shipped defaults so missing rows never zero a
// component.
func (s *Service) Values(ctx context.Context) (map[string]float64, error) {
	values := Defaults()
	params, err := s.store.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load parameter values: %w", err)
	}
	for _, p := range params {
		values[p.Key] = p.Value
	}
	return values, nil
}

// Update validates and commits a new parameter value. Validation and
// write are atomic: the bounds check and the core-weight group-sum check
// run against the stored state under the store's lock, and a rejected
// update leaves both the value and the history untouched.
func (s *Service) Update(ctx context.Context, key string, newValue float64, actor string) (*domain.ConfigChangeRecord, error) {
	return s.update(ctx, key, newValue, actor, nil)
}

// Revert re-applies the old value of a prior change record through the
// full update path, so a revert into a now-invalid state is rejected
// like any other update.
func (s *Service) Revert(ctx context.Context, recordID string, actor string) (*domain.ConfigChangeRecord, error) {
	prior, err := s.history.GetByID(ctx, recordID)
	if err != nil {
		return nil, fmt.Errorf("load change record %s: %w", recordID, err)
	}
	return s.update(ctx, prior.Key, prior.OldValue, actor, map[string]string{
		"reverted_from": recordID,
	})
}

// History returns the most recent change records for a key, newest first.
func (s *Service) History(ctx context.Context, key string, limit int) ([]*domain.ConfigChangeRecord, error) {
	if _, ok := registry[key]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownParameter, key)
	}
	return s.history.GetByKey(ctx, key, limit)
}

// Subscribe returns a channel receiving a notice per committed update.
// The channel is buffered; a slow consumer drops notices rather than
// blocking the update path.
func (s *Service) Subscribe() <-chan ChangeNotice {
	ch := make(chan ChangeNotice, 16)
	s.mu.Lock()
	s.subs = append(s.subs, ch)
	s.mu.Unlock()
	return ch
}

func (s *Service) update(ctx context.Context, key string, newValue float64, actor string, metadata map[string]string) (*domain.ConfigChangeRecord, error) {
	spec, ok := registry[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownParameter, key)
	}
	if newValue < spec.Min || newValue > spec.Max {
		return nil, fmt.Errorf("%w: %s=%v outside [%v, %v]", ErrOutOfRange, key, newValue, spec.Min, spec.Max)
	}

	var group []string
	if spec.CoreWeight {
		group = CoreWeightKeys()
	}

	record := &domain.ConfigChangeRecord{
		RecordID:  uuid.NewString(),
		Key:       key,
		NewValue:  newValue,
		ChangedBy: actor,
		ChangedAt: s.now(),
		Metadata:  metadata,
	}

	var notice ChangeNotice
	err := s.store.UpdateValidated(ctx, key, newValue, actor, group,
		func(current *domain.ConfigParameter, groupValues map[string]float64) error {
			// Bounds re-checked against the stored row: the registry and
			// the store agree in practice, but the row is authoritative.
			if newValue < current.Min || newValue > current.Max {
				return fmt.Errorf("%w: %s=%v outside [%v, %v]", ErrOutOfRange, key, newValue, current.Min, current.Max)
			}
			if spec.CoreWeight {
				sum := newValue
				for k, v := range groupValues {
					if k != key {
						sum += v
					}
				}
				if sum > CoreWeightCeiling {
					return fmt.Errorf("%w: core weight sum %.4f exceeds %.2f", ErrConstraintViolation, sum, CoreWeightCeiling)
				}
			}
			record.OldValue = current.Value
			notice = ChangeNotice{
				Key:             key,
				Category:        current.Category,
				OldValue:        current.Value,
				NewValue:        newValue,
				RequiresRebuild: current.Category.RequiresRebuild(),
			}
			return nil
		}, record)
	if err != nil {
		observability.RecordConfigUpdate("rejected")
		return nil, err
	}
	observability.RecordConfigUpdate("committed")

	s.log.Info().
		Str("key", key).
		Float64("old_value", record.OldValue).
		Float64("new_value", newValue).
		Str("actor", actor).
		Bool("requires_rebuild", notice.RequiresRebuild).
		Msg("config parameter updated")

	s.publish(notice)
	return record, nil
}

func (s *Service) publish(notice ChangeNotice) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- notice:
		default:
			s.log.Warn().Str("key", notice.Key).Msg("dropping change notice for slow subscriber")
		}
	}
}
