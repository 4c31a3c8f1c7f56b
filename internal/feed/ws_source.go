package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/jacklawrencecmg/TradeAnalyzer-sub000/internal/domain"
)

// WSConfig configures websocket source behavior.
type WSConfig struct {
	// ReconnectDelay is initial delay before reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay is maximum delay between reconnect attempts.
	MaxReconnectDelay time.Duration
	// PingInterval is interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout is timeout for reading messages.
	ReadTimeout time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
	// StaleAfter bounds how old the held snapshot may be before Fetch
	// reports it unusable.
	StaleAfter time.Duration
}

// DefaultWSConfig returns default websocket configuration.
func DefaultWSConfig() WSConfig {
	return WSConfig{
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		PingInterval:      30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
		StaleAfter:        5 * time.Minute,
	}
}

// WSSource holds a live snapshot assembled from a streaming feed. The
// upstream pushes full snapshots and per-player updates; Fetch serves
// the held snapshot without touching the network.
type WSSource struct {
	name     string
	endpoint string
	config   WSConfig
	log      zerolog.Logger

	conn   *websocket.Conn
	connMu sync.Mutex
	closed atomic.Bool

	mu         sync.RWMutex
	latest     *domain.SignalSnapshot
	receivedAt int64

	reconnecting atomic.Bool

	done chan struct{}
	wg   sync.WaitGroup

	now func() int64
}

// NewWSSource connects to the streaming endpoint and starts the read
// and ping loops.
func NewWSSource(ctx context.Context, name, endpoint string, config *WSConfig, log zerolog.Logger) (*WSSource, error) {
	cfg := DefaultWSConfig()
	if config != nil {
		cfg = *config
	}

	s := &WSSource{
		name:     name,
		endpoint: endpoint,
		config:   cfg,
		log:      log.With().Str("component", "feed").Str("source", name).Logger(),
		done:     make(chan struct{}),
		now:      func() int64 { return time.Now().UnixMilli() },
	}

	if err := s.connect(ctx); err != nil {
		return nil, err
	}

	s.wg.Add(2)
	go s.readLoop()
	go s.pingLoop()

	return s, nil
}

// Name returns the source identifier used in fallback logging.
func (s *WSSource) Name() string {
	return s.name
}

// Fetch returns the held snapshot if it is fresh enough.
func (s *WSSource) Fetch(ctx context.Context) (*domain.SignalSnapshot, error) {
	s.mu.RLock()
	snap, receivedAt := s.latest, s.receivedAt
	s.mu.RUnlock()

	if snap == nil {
		return nil, fmt.Errorf("%w: stream has not delivered a snapshot", ErrNoSnapshot)
	}
	if s.config.StaleAfter > 0 && s.now()-receivedAt > s.config.StaleAfter.Milliseconds() {
		return nil, fmt.Errorf("%w: stream snapshot is stale", ErrNoSnapshot)
	}
	return snap, nil
}

// Close shuts the connection down and waits for the loops to exit.
func (s *WSSource) Close() error {
	if s.closed.Swap(true) {
		return nil // Already closed
	}

	close(s.done)

	s.connMu.Lock()
	if s.conn != nil {
		s.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		s.conn.Close()
	}
	s.connMu.Unlock()

	s.wg.Wait()
	return nil
}

func (s *WSSource) connect(ctx context.Context) error {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, s.endpoint, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}

	s.conn = conn
	return nil
}

func (s *WSSource) readLoop() {
	defer s.wg.Done()

	reconnectDelay := s.config.ReconnectDelay

	for !s.closed.Load() {
		s.connMu.Lock()
		conn := s.conn
		s.connMu.Unlock()

		if conn == nil {
			select {
			case <-s.done:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))

		_, message, err := conn.ReadMessage()
		if err != nil {
			if s.closed.Load() {
				return
			}

			if !s.reconnecting.Swap(true) {
				go s.reconnect(reconnectDelay)
			}

			reconnectDelay = reconnectDelay * 2
			if reconnectDelay > s.config.MaxReconnectDelay {
				reconnectDelay = s.config.MaxReconnectDelay
			}

			select {
			case <-s.done:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		reconnectDelay = s.config.ReconnectDelay

		s.handleMessage(message)
	}
}

func (s *WSSource) reconnect(delay time.Duration) {
	defer s.reconnecting.Store(false)

	if s.closed.Load() {
		return
	}

	select {
	case <-s.done:
		return
	case <-time.After(delay):
	}

	s.connMu.Lock()
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	s.connMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.connect(ctx); err != nil {
		s.log.Warn().Err(err).Msg("stream reconnect failed, will retry on next read error")
		return
	}
	s.log.Info().Msg("stream reconnected")
}

type wsMessage struct {
	Type    string          `json:"type"`
	TakenAt int64           `json:"taken_at"`
	Players []playerPayload `json:"players"`
	Player  *playerPayload  `json:"player"`
}

func (s *WSSource) handleMessage(message []byte) {
	var msg wsMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		s.log.Warn().Err(err).Msg("discarding unparsable stream message")
		return
	}

	switch msg.Type {
	case "snapshot":
		payload := snapshotPayload{TakenAt: msg.TakenAt, Players: msg.Players}
		snap := payload.toDomain()
		if len(snap.Players) == 0 {
			s.log.Warn().Msg("discarding empty stream snapshot")
			return
		}
		s.mu.Lock()
		s.latest = snap
		s.receivedAt = s.now()
		s.mu.Unlock()

	case "player_update":
		if msg.Player == nil {
			return
		}
		p := msg.Player.toDomain()
		if p.PlayerID == "" || !p.Position.IsValid() {
			return
		}
		s.mu.Lock()
		if s.latest != nil {
			// Copy-on-write so concurrent readers keep a stable map.
			players := make(map[string]*domain.PlayerSignals, len(s.latest.Players)+1)
			for id, sig := range s.latest.Players {
				players[id] = sig
			}
			players[p.PlayerID] = p
			s.latest = &domain.SignalSnapshot{Players: players, TakenAt: s.latest.TakenAt}
			s.receivedAt = s.now()
		}
		s.mu.Unlock()

	default:
		s.log.Debug().Str("type", msg.Type).Msg("ignoring unknown stream message type")
	}
}

func (s *WSSource) pingLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.connMu.Lock()
			if s.conn != nil {
				s.conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
				if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					// Connection might be dead, reader will handle reconnect
				}
			}
			s.connMu.Unlock()
		}
	}
}

var _ Source = (*WSSource)(nil)
