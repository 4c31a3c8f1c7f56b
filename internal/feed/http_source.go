package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/jacklawrencecmg/TradeAnalyzer-sub000/internal/domain"
)

// HTTPSource pulls a full signal snapshot from a JSON endpoint. A rate
// limiter caps how often the upstream is hit regardless of how many
// callers share the source.
type HTTPSource struct {
	name    string
	url     string
	client  *http.Client
	limiter *rate.Limiter
}

// NewHTTPSource creates a polling source. minInterval is the shortest
// allowed gap between upstream requests.
func NewHTTPSource(name, url string, client *http.Client, minInterval time.Duration) *HTTPSource {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	limit := rate.Inf
	if minInterval > 0 {
		limit = rate.Every(minInterval)
	}
	return &HTTPSource{
		name:    name,
		url:     url,
		client:  client,
		limiter: rate.NewLimiter(limit, 1),
	}
}

// Name returns the source identifier used in fallback logging.
func (s *HTTPSource) Name() string {
	return s.name
}

// Fetch pulls and decodes one snapshot, honoring the rate limit.
func (s *HTTPSource) Fetch(ctx context.Context) (*domain.SignalSnapshot, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("build snapshot request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch snapshot: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch snapshot: unexpected status %d", resp.StatusCode)
	}

	var payload snapshotPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}

	snap := payload.toDomain()
	if len(snap.Players) == 0 {
		return nil, fmt.Errorf("%w: empty snapshot from %s", ErrNoSnapshot, s.name)
	}
	return snap, nil
}

var _ Source = (*HTTPSource)(nil)
