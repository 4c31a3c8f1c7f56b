package httpapi

import (
	"net/http"
)

// handleCronAdjustments pulls a fresh snapshot and runs the role-change
// detectors. Partial failures come back in the run summary with a 200; a
// failed run (no usable snapshot) is a 502.
func (s *Server) handleCronAdjustments(w http.ResponseWriter, r *http.Request) {
	snap, err := s.signals.Fetch(r.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("adjustment scan could not fetch signals")
		writeError(w, http.StatusBadGateway, "signal feed unavailable")
		return
	}

	run, err := s.detector.Run(r.Context(), snap)
	if err != nil {
		writeJSON(w, http.StatusBadGateway, run)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// handleCronSweep evicts expired cache entries in bulk.
func (s *Server) handleCronSweep(w http.ResponseWriter, _ *http.Request) {
	removed := 0
	if s.cache != nil {
		removed = s.cache.Sweep()
	}
	writeJSON(w, http.StatusOK, map[string]int{"removed": removed})
}

// handleCronRetention deletes adjustment events that expired past the
// retention window.
func (s *Server) handleCronRetention(w http.ResponseWriter, r *http.Request) {
	deleted, err := s.detector.SweepExpired(r.Context(), s.retention)
	if err != nil {
		s.log.Error().Err(err).Msg("retention sweep failed")
		writeError(w, http.StatusInternalServerError, "retention sweep failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"deleted": deleted})
}
