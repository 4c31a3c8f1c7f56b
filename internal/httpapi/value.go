package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/jacklawrencecmg/TradeAnalyzer-sub000/internal/domain"
	"github.com/jacklawrencecmg/TradeAnalyzer-sub000/internal/rebuild"
	"github.com/jacklawrencecmg/TradeAnalyzer-sub000/internal/trade"
)

func (s *Server) handlePlayerValue(w http.ResponseWriter, r *http.Request) {
	playerID := mux.Vars(r)["id"]

	format := domain.Format(r.URL.Query().Get("format"))
	if format == "" {
		format = domain.FormatDynasty
	}
	if !format.IsValid() {
		writeError(w, http.StatusBadRequest, "unknown format")
		return
	}
	superflex := false
	if raw := r.URL.Query().Get("superflex"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid superflex flag")
			return
		}
		superflex = parsed
	}

	av, err := s.values.PlayerValue(r.Context(), playerID, format, superflex)
	if err != nil {
		if errors.Is(err, rebuild.ErrUnknownAsset) {
			writeError(w, http.StatusNotFound, "unknown player")
			return
		}
		s.log.Error().Err(err).Str("player_id", playerID).Msg("value lookup failed")
		writeError(w, http.StatusInternalServerError, "value lookup failed")
		return
	}

	writeJSON(w, http.StatusOK, av)
	s.verifier.AuditAsync([]*domain.AssetValue{av}, superflex)
}

func (s *Server) handleEvaluateTrade(w http.ResponseWriter, r *http.Request) {
	var proposal trade.Proposal
	if err := json.NewDecoder(r.Body).Decode(&proposal); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := s.trades.Evaluate(r.Context(), proposal)
	if err != nil {
		switch {
		case errors.Is(err, trade.ErrInvalidProposal):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, rebuild.ErrUnknownAsset):
			writeError(w, http.StatusNotFound, err.Error())
		default:
			s.log.Error().Err(err).Msg("trade evaluation failed")
			writeError(w, http.StatusInternalServerError, "trade evaluation failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, result)
	s.verifier.AuditAsync(playerAssetValues(result), proposal.Superflex)
}

// playerAssetValues lifts the player entries of a trade result back into
// claimed values for the response audit. Picks and FAAB are priced from
// static curves and need no drift check.
func playerAssetValues(result *domain.TradeResult) []*domain.AssetValue {
	var claimed []*domain.AssetValue
	for _, side := range [][]domain.TradeAsset{result.SideAAssets, result.SideBAssets} {
		for _, asset := range side {
			if asset.Kind != domain.AssetPlayer {
				continue
			}
			claimed = append(claimed, &domain.AssetValue{
				AssetID: asset.ID,
				Format:  result.Format,
				Value:   asset.Value,
			})
		}
	}
	return claimed
}
