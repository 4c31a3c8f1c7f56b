package feed

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// wsTestServer upgrades one connection and sends the given messages.
func wsTestServer(t *testing.T, messages ...string) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		for _, msg := range messages {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				return
			}
		}
		// Keep the connection open until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func waitForSnapshot(t *testing.T, src *WSSource) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := src.Fetch(context.Background()); err == nil {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("stream never delivered a snapshot")
}

func TestWSSource_SnapshotAndUpdate(t *testing.T) {
	snapshotMsg := `{"type":"snapshot","taken_at":1000,"players":[
		{"player_id":"p1","name":"A","position":"WR","projected_points":200},
		{"player_id":"p2","name":"B","position":"RB","projected_points":150}
	]}`
	updateMsg := `{"type":"player_update","player":
		{"player_id":"p1","name":"A","position":"WR","projected_points":250}
	}`

	srv := wsTestServer(t, snapshotMsg, updateMsg)
	defer srv.Close()

	src, err := NewWSSource(context.Background(), "stream", wsURL(srv), nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewWSSource failed: %v", err)
	}
	defer src.Close()

	waitForSnapshot(t, src)

	// The per-player update lands eventually; poll until it does.
	deadline := time.Now().Add(2 * time.Second)
	for {
		snap, err := src.Fetch(context.Background())
		if err != nil {
			t.Fatalf("Fetch failed: %v", err)
		}
		if p := snap.Get("p1"); p != nil && p.ProjectedPoints == 250 {
			if snap.Get("p2") == nil {
				t.Error("Update should preserve other players")
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("player update never applied")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestWSSource_NoSnapshotYet(t *testing.T) {
	srv := wsTestServer(t)
	defer srv.Close()

	src, err := NewWSSource(context.Background(), "stream", wsURL(srv), nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewWSSource failed: %v", err)
	}
	defer src.Close()

	_, err = src.Fetch(context.Background())
	if !errors.Is(err, ErrNoSnapshot) {
		t.Errorf("Expected ErrNoSnapshot, got %v", err)
	}
}

func TestWSSource_StaleSnapshotRejected(t *testing.T) {
	snapshotMsg := `{"type":"snapshot","taken_at":1000,"players":[
		{"player_id":"p1","name":"A","position":"WR"}
	]}`
	srv := wsTestServer(t, snapshotMsg)
	defer srv.Close()

	cfg := DefaultWSConfig()
	cfg.StaleAfter = time.Minute

	src, err := NewWSSource(context.Background(), "stream", wsURL(srv), &cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewWSSource failed: %v", err)
	}
	defer src.Close()

	waitForSnapshot(t, src)

	// Jump the clock past the staleness bound.
	src.mu.Lock()
	src.now = func() int64 { return src.receivedAt + time.Minute.Milliseconds() + 1 }
	src.mu.Unlock()

	_, err = src.Fetch(context.Background())
	if !errors.Is(err, ErrNoSnapshot) {
		t.Errorf("Stale snapshot should be rejected, got %v", err)
	}
}

func TestWSSource_MalformedMessagesIgnored(t *testing.T) {
	srv := wsTestServer(t,
		`not json at all`,
		`{"type":"mystery"}`,
		`{"type":"snapshot","taken_at":1000,"players":[{"player_id":"p1","position":"WR"}]}`,
	)
	defer srv.Close()

	src, err := NewWSSource(context.Background(), "stream", wsURL(srv), nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewWSSource failed: %v", err)
	}
	defer src.Close()

	waitForSnapshot(t, src)
}
