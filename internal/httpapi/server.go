// Package httpapi exposes the admin, cron and value endpoints over
// gorilla/mux.
package httpapi

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/jacklawrencecmg/TradeAnalyzer-sub000/internal/cache"
	"github.com/jacklawrencecmg/TradeAnalyzer-sub000/internal/consistency"
	"github.com/jacklawrencecmg/TradeAnalyzer-sub000/internal/domain"
	"github.com/jacklawrencecmg/TradeAnalyzer-sub000/internal/modelconfig"
	"github.com/jacklawrencecmg/TradeAnalyzer-sub000/internal/observability"
	"github.com/jacklawrencecmg/TradeAnalyzer-sub000/internal/overlay"
	"github.com/jacklawrencecmg/TradeAnalyzer-sub000/internal/rebuild"
	"github.com/jacklawrencecmg/TradeAnalyzer-sub000/internal/trade"
)

const defaultRetention = 30 * 24 * time.Hour

// Options wires the Server to its collaborators.
type Options struct {
	Config     *modelconfig.Service
	Values     *rebuild.Service
	Trades     *trade.Evaluator
	Detector   *overlay.Detector
	Verifier   *consistency.Verifier
	Signals    rebuild.SnapshotProvider
	ValueCache *cache.Cache[*domain.AssetValue]

	AdminToken string
	CronSecret string
	Retention  time.Duration
	Log        zerolog.Logger
}

// Server serves the HTTP API.
type Server struct {
	config   *modelconfig.Service
	values   *rebuild.Service
	trades   *trade.Evaluator
	detector *overlay.Detector
	verifier *consistency.Verifier
	signals  rebuild.SnapshotProvider
	cache    *cache.Cache[*domain.AssetValue]
	log      zerolog.Logger

	adminToken string
	cronSecret string
	retention  time.Duration
	started    time.Time
}

// NewServer creates a Server.
func NewServer(opts Options) *Server {
	retention := opts.Retention
	if retention == 0 {
		retention = defaultRetention
	}
	return &Server{
		config:     opts.Config,
		values:     opts.Values,
		trades:     opts.Trades,
		detector:   opts.Detector,
		verifier:   opts.Verifier,
		signals:    opts.Signals,
		cache:      opts.ValueCache,
		log:        opts.Log.With().Str("component", "httpapi").Logger(),
		adminToken: opts.AdminToken,
		cronSecret: opts.CronSecret,
		retention:  retention,
		started:    time.Now(),
	}
}

// Router builds the route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	r.Handle("/metrics", observability.Handler()).Methods(http.MethodGet)

	admin := r.PathPrefix("/api/admin").Subrouter()
	admin.Use(s.requireAdmin)
	admin.HandleFunc("/config", s.handleGetConfig).Methods(http.MethodGet)
	admin.HandleFunc("/config", s.handleUpdateConfig).Methods(http.MethodPost)
	admin.HandleFunc("/config/preview", s.handlePreviewConfig).Methods(http.MethodPost)
	admin.HandleFunc("/config/revert", s.handleRevertConfig).Methods(http.MethodPost)
	admin.HandleFunc("/rebuild", s.handleRebuild).Methods(http.MethodPost)
	admin.HandleFunc("/audit", s.handleAudit).Methods(http.MethodPost)

	cron := r.PathPrefix("/api/cron").Subrouter()
	cron.Use(s.requireCronSecret)
	cron.HandleFunc("/adjustments", s.handleCronAdjustments).Methods(http.MethodPost)
	cron.HandleFunc("/sweep", s.handleCronSweep).Methods(http.MethodPost)
	cron.HandleFunc("/retention", s.handleCronRetention).Methods(http.MethodPost)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/players/{id}/value", s.handlePlayerValue).Methods(http.MethodGet)
	api.HandleFunc("/trades/evaluate", s.handleEvaluateTrade).Methods(http.MethodPost)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// StatusResponse is the JSON response for the /status endpoint.
type StatusResponse struct {
	Status       string `json:"status"`
	Uptime       string `json:"uptime"`
	ActiveEpoch  string `json:"active_epoch"`
	CachedValues int    `json:"cached_values"`
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	resp := StatusResponse{
		Status:      "running",
		Uptime:      time.Since(s.started).String(),
		ActiveEpoch: s.values.Epoch(),
	}
	if s.cache != nil {
		resp.CachedValues = s.cache.Len()
	}
	writeJSON(w, http.StatusOK, resp)
}

// requireAdmin gates the admin surface on a bearer token. Missing,
// malformed and wrong tokens all get the identical response, so probes
// learn nothing about which part failed.
func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || s.adminToken == "" ||
			subtle.ConstantTimeCompare([]byte(token), []byte(s.adminToken)) != 1 {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireCronSecret gates the cron surface on a query-string secret. A
// bad secret gets a plain 404: these endpoints should not exist for
// anyone without it.
func (s *Server) requireCronSecret(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		secret := r.URL.Query().Get("secret")
		if s.cronSecret == "" ||
			subtle.ConstantTimeCompare([]byte(secret), []byte(s.cronSecret)) != 1 {
			http.NotFound(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
