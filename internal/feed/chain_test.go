package feed

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/jacklawrencecmg/TradeAnalyzer-sub000/internal/domain"
)

type stubSource struct {
	name  string
	snap  *domain.SignalSnapshot
	err   error
	calls int
}

func (s *stubSource) Name() string { return s.name }

func (s *stubSource) Fetch(ctx context.Context) (*domain.SignalSnapshot, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.snap, nil
}

func snapshotOf(takenAt int64, playerIDs ...string) *domain.SignalSnapshot {
	players := make(map[string]*domain.PlayerSignals, len(playerIDs))
	for _, id := range playerIDs {
		players[id] = &domain.PlayerSignals{PlayerID: id, Position: domain.PositionWR}
	}
	return &domain.SignalSnapshot{Players: players, TakenAt: takenAt}
}

func TestChain_PrimaryServes(t *testing.T) {
	primary := &stubSource{name: "stream", snap: snapshotOf(100, "p1")}
	secondary := &stubSource{name: "poll", snap: snapshotOf(90, "p1")}
	chain := NewChain(zerolog.Nop(), primary, secondary)

	snap, err := chain.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if snap.TakenAt != 100 {
		t.Errorf("Expected primary snapshot, got taken_at %d", snap.TakenAt)
	}
	if secondary.calls != 0 {
		t.Errorf("Secondary should not be consulted: %d calls", secondary.calls)
	}
}

func TestChain_FallsBackOnPrimaryFailure(t *testing.T) {
	primary := &stubSource{name: "stream", err: errors.New("socket closed")}
	secondary := &stubSource{name: "poll", snap: snapshotOf(90, "p1")}
	chain := NewChain(zerolog.Nop(), primary, secondary)

	snap, err := chain.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if snap.TakenAt != 90 {
		t.Errorf("Expected fallback snapshot, got taken_at %d", snap.TakenAt)
	}
}

func TestChain_LastKnownGoodWhenAllFail(t *testing.T) {
	primary := &stubSource{name: "stream", snap: snapshotOf(100, "p1")}
	secondary := &stubSource{name: "poll", err: errors.New("upstream 503")}
	chain := NewChain(zerolog.Nop(), primary, secondary)

	// Prime the last-known-good snapshot, then break the primary too.
	if _, err := chain.Fetch(context.Background()); err != nil {
		t.Fatalf("Priming fetch failed: %v", err)
	}
	primary.err = errors.New("socket closed")
	primary.snap = nil

	snap, err := chain.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch should serve last known good: %v", err)
	}
	if snap.TakenAt != 100 {
		t.Errorf("Expected the primed snapshot, got taken_at %d", snap.TakenAt)
	}
}

func TestChain_AllSourcesFailedNoHistory(t *testing.T) {
	primary := &stubSource{name: "stream", err: errors.New("socket closed")}
	secondary := &stubSource{name: "poll", err: errors.New("upstream 503")}
	chain := NewChain(zerolog.Nop(), primary, secondary)

	_, err := chain.Fetch(context.Background())
	if !errors.Is(err, ErrAllSourcesFailed) {
		t.Errorf("Expected ErrAllSourcesFailed, got %v", err)
	}
}

func TestChain_BreakerShortCircuitsPrimary(t *testing.T) {
	primary := &stubSource{name: "stream", err: errors.New("socket closed")}
	secondary := &stubSource{name: "poll", snap: snapshotOf(90, "p1")}
	chain := NewChain(zerolog.Nop(), primary, secondary)

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if _, err := chain.Fetch(ctx); err != nil {
			t.Fatalf("Fetch %d failed: %v", i, err)
		}
	}

	// The breaker trips after three consecutive failures; later fetches
	// must not keep hammering the dead primary.
	if primary.calls >= 5 {
		t.Errorf("Primary called %d times; breaker should have opened", primary.calls)
	}
	if secondary.calls != 5 {
		t.Errorf("Secondary should serve every fetch: %d calls", secondary.calls)
	}
}
