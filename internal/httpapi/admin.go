package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/jacklawrencecmg/TradeAnalyzer-sub000/internal/domain"
	"github.com/jacklawrencecmg/TradeAnalyzer-sub000/internal/modelconfig"
	"github.com/jacklawrencecmg/TradeAnalyzer-sub000/internal/rebuild"
	"github.com/jacklawrencecmg/TradeAnalyzer-sub000/internal/storage"
)

// previewSampleCap bounds how many players a preview prices when the
// caller does not name a sample.
const previewSampleCap = 25

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	params, err := s.config.GetAll(r.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("failed to load config")
		writeError(w, http.StatusInternalServerError, "failed to load config")
		return
	}
	writeJSON(w, http.StatusOK, params)
}

type updateConfigRequest struct {
	Key   string  `json:"key"`
	Value float64 `json:"value"`
	Actor string  `json:"actor"`
}

func (s *Server) handleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	var req updateConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Actor == "" {
		req.Actor = "admin"
	}

	record, err := s.config.Update(r.Context(), req.Key, req.Value, req.Actor)
	if err != nil {
		writeConfigError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

type previewConfigRequest struct {
	Candidates map[string]float64 `json:"candidates"`
	Format     domain.Format      `json:"format"`
	PlayerIDs  []string           `json:"player_ids,omitempty"`
}

func (s *Server) handlePreviewConfig(w http.ResponseWriter, r *http.Request) {
	var req previewConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Format == "" {
		req.Format = domain.FormatDynasty
	}
	if !req.Format.IsValid() {
		writeError(w, http.StatusBadRequest, "unknown format")
		return
	}

	snap, err := s.signals.Fetch(r.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("preview could not fetch signals")
		writeError(w, http.StatusBadGateway, "signal feed unavailable")
		return
	}
	sample := previewSample(snap, req.PlayerIDs)
	if len(sample) == 0 {
		writeError(w, http.StatusBadRequest, "no sample players available")
		return
	}

	deltas, err := s.config.Preview(r.Context(), req.Candidates, sample, req.Format)
	if err != nil {
		writeConfigError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, deltas)
}

func previewSample(snap *domain.SignalSnapshot, playerIDs []string) []*domain.PlayerSignals {
	var sample []*domain.PlayerSignals
	if len(playerIDs) > 0 {
		for _, id := range playerIDs {
			if sig := snap.Get(id); sig != nil {
				sample = append(sample, sig)
			}
		}
		return sample
	}
	for _, sig := range snap.Players {
		sample = append(sample, sig)
		if len(sample) == previewSampleCap {
			break
		}
	}
	return sample
}

type revertConfigRequest struct {
	RecordID string `json:"record_id"`
	Actor    string `json:"actor"`
}

func (s *Server) handleRevertConfig(w http.ResponseWriter, r *http.Request) {
	var req revertConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Actor == "" {
		req.Actor = "admin"
	}

	record, err := s.config.Revert(r.Context(), req.RecordID, req.Actor)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "change record not found")
			return
		}
		writeConfigError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (s *Server) handleRebuild(w http.ResponseWriter, _ *http.Request) {
	// The rebuild can run for minutes; it is triggered and left to
	// activate (or be superseded) on its own.
	go func() {
		epoch, assets, err := s.values.RebuildAll(context.Background())
		switch {
		case errors.Is(err, rebuild.ErrSuperseded):
		case err != nil:
			s.log.Error().Err(err).Msg("admin-triggered rebuild failed")
		default:
			s.log.Info().Str("epoch", epoch).Int("assets", assets).Msg("admin-triggered rebuild activated")
		}
	}()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "rebuild started"})
}

type auditRequest struct {
	PlayerIDs []string      `json:"player_ids"`
	Format    domain.Format `json:"format"`
	Superflex bool          `json:"superflex,omitempty"`
}

// handleAudit runs a synchronous consistency check over the currently
// served values for the named players.
func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	var req auditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Format == "" {
		req.Format = domain.FormatDynasty
	}
	if !req.Format.IsValid() {
		writeError(w, http.StatusBadRequest, "unknown format")
		return
	}

	var claimed []*domain.AssetValue
	for _, id := range req.PlayerIDs {
		av, err := s.values.PlayerValue(r.Context(), id, req.Format, req.Superflex)
		if err != nil {
			s.log.Warn().Err(err).Str("player_id", id).Msg("audit skipping unservable player")
			continue
		}
		claimed = append(claimed, av)
	}
	if len(claimed) == 0 {
		writeError(w, http.StatusBadRequest, "no auditable assets")
		return
	}

	result := s.verifier.Audit(r.Context(), claimed, req.Superflex)
	writeJSON(w, http.StatusOK, result)
}

func writeConfigError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, modelconfig.ErrUnknownParameter):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, modelconfig.ErrOutOfRange), errors.Is(err, modelconfig.ErrConstraintViolation):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
