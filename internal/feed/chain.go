package feed

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/jacklawrencecmg/TradeAnalyzer-sub000/internal/domain"
	"github.com/jacklawrencecmg/TradeAnalyzer-sub000/internal/observability"
)

// Chain tries sources in order and falls back to the last snapshot any
// of them delivered. The primary source sits behind a circuit breaker:
// once it has failed repeatedly the chain goes straight to the
// fallbacks until the breaker half-opens.
type Chain struct {
	sources []Source
	breaker *gobreaker.CircuitBreaker
	log     zerolog.Logger

	mu       sync.RWMutex
	lastGood *domain.SignalSnapshot
}

// NewChain builds a fallback chain. The first source is the primary and
// gets the breaker; the rest are tried in order when it fails.
func NewChain(log zerolog.Logger, sources ...Source) *Chain {
	c := &Chain{
		sources: sources,
		log:     log.With().Str("component", "feed").Logger(),
	}
	if len(sources) > 0 {
		c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "feed-primary",
			Timeout: 30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				c.log.Warn().
					Str("breaker", name).
					Str("from", from.String()).
					Str("to", to.String()).
					Msg("feed breaker state change")
			},
		})
	}
	return c
}

// Fetch returns the freshest snapshot any source can deliver, or the
// last known good one when every source fails.
func (c *Chain) Fetch(ctx context.Context) (*domain.SignalSnapshot, error) {
	for i, src := range c.sources {
		snap, err := c.fetchFrom(ctx, i, src)
		if err != nil {
			observability.RecordFeedFetch(src.Name(), "error")
			c.log.Warn().
				Err(err).
				Str("source", src.Name()).
				Bool("last_in_chain", i == len(c.sources)-1).
				Msg("signal source failed, falling back")
			continue
		}
		observability.RecordFeedFetch(src.Name(), "ok")
		if i > 0 {
			observability.RecordFeedFallback()
		}
		c.mu.Lock()
		c.lastGood = snap
		c.mu.Unlock()
		return snap, nil
	}

	c.mu.RLock()
	lastGood := c.lastGood
	c.mu.RUnlock()
	if lastGood != nil {
		observability.RecordFeedFallback()
		c.log.Warn().
			Int64("taken_at", lastGood.TakenAt).
			Msg("every signal source failed, serving last known good snapshot")
		return lastGood, nil
	}
	return nil, ErrAllSourcesFailed
}

// LastKnownGood returns the most recent successful snapshot, or nil.
func (c *Chain) LastKnownGood() *domain.SignalSnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastGood
}

func (c *Chain) fetchFrom(ctx context.Context, idx int, src Source) (*domain.SignalSnapshot, error) {
	if idx == 0 && c.breaker != nil {
		result, err := c.breaker.Execute(func() (interface{}, error) {
			return src.Fetch(ctx)
		})
		if err != nil {
			return nil, err
		}
		return result.(*domain.SignalSnapshot), nil
	}
	return src.Fetch(ctx)
}
