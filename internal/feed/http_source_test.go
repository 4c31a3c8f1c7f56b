package feed

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jacklawrencecmg/TradeAnalyzer-sub000/internal/domain"
)

const testSnapshotJSON = `{
	"taken_at": 1704067200000,
	"players": [
		{
			"player_id": "p1", "name": "Test WR", "team": "CIN", "position": "WR",
			"projected_points": 300, "historical_avg": 280,
			"opportunity_share": 0.28, "snap_share": 0.92,
			"team_offense_rank": 4, "matchup_factor": 0.01,
			"age": 26, "injury_status": "Healthy", "depth_chart_pos": 1,
			"market_anchor": 8500, "market_percentile": 0.97
		},
		{
			"player_id": "", "name": "Malformed", "position": "WR"
		},
		{
			"player_id": "p2", "name": "Bad Position", "position": "GOALIE"
		}
	]
}`

func TestHTTPSource_FetchAndFilterMalformed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, testSnapshotJSON)
	}))
	defer srv.Close()

	src := NewHTTPSource("poll", srv.URL, srv.Client(), 0)

	snap, err := src.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if snap.TakenAt != 1704067200000 {
		t.Errorf("TakenAt mismatch: %d", snap.TakenAt)
	}
	if len(snap.Players) != 1 {
		t.Fatalf("Malformed rows should be dropped: got %d players", len(snap.Players))
	}

	p := snap.Get("p1")
	if p == nil {
		t.Fatal("p1 missing from snapshot")
	}
	if p.Position != domain.PositionWR || p.MarketAnchor != 8500 {
		t.Errorf("Player fields mismatch: %+v", p)
	}
}

func TestHTTPSource_UpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "maintenance", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	src := NewHTTPSource("poll", srv.URL, srv.Client(), 0)
	if _, err := src.Fetch(context.Background()); err == nil {
		t.Fatal("Expected error on 503")
	}
}

func TestHTTPSource_EmptySnapshotRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"taken_at": 1, "players": []}`)
	}))
	defer srv.Close()

	src := NewHTTPSource("poll", srv.URL, srv.Client(), 0)
	_, err := src.Fetch(context.Background())
	if !errors.Is(err, ErrNoSnapshot) {
		t.Errorf("Expected ErrNoSnapshot, got %v", err)
	}
}

func TestHTTPSource_RateLimitHonorsContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, testSnapshotJSON)
	}))
	defer srv.Close()

	// One request per hour: the second fetch must block and then give
	// up when its context expires.
	src := NewHTTPSource("poll", srv.URL, srv.Client(), time.Hour)

	if _, err := src.Fetch(context.Background()); err != nil {
		t.Fatalf("First fetch failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := src.Fetch(ctx); err == nil {
		t.Fatal("Second fetch should fail under the rate limit")
	}
}
