package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (s *Service) handleAdminClear(w http.ResponseWriter, r *http.Request) {
	report, err := s.adm.ClearAll(r.Context())
	if err != nil {
		s.logger.Error("admin clear", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusOK, report)
}

func (s *Service) handleAdminExportIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="index.json"`)
	if err := s.adm.ExportIndex(w); err != nil {
		s.logger.Error("admin export index", "error", err)
	}
}

func (s *Service) handleAdminReplaceIndex(w http.ResponseWriter, r *http.Request) {
	n, err := s.adm.ReplaceIndex(r.Context(), r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"records": n})
}

func (s *Service) handleAdminDeleteRecord(w http.ResponseWriter, r *http.Request) {
	report, err := s.adm.DeleteRecord(r.Context(), chi.URLParam(r, "digest"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	s.writeJSON(w, http.StatusOK, report)
}

func (s *Service) handleAdminOverrideContract(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Contract string `json:"contract"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	rec, err := s.adm.OverrideContract(r.Context(), chi.URLParam(r, "digest"), body.Contract)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.writeJSON(w, http.StatusOK, rec)
}

func (s *Service) handleAdminOverrideView(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Allowed bool `json:"allowed"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	rec, err := s.adm.OverrideView(r.Context(), chi.URLParam(r, "digest"), body.Allowed)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	s.writeJSON(w, http.StatusOK, rec)
}

func (s *Service) handleAdminRecomputeTokens(w http.ResponseWriter, r *http.Request) {
	report, err := s.adm.RecomputeTokens(r.Context())
	if err != nil {
		s.logger.Error("admin recompute tokens", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusOK, report)
}

func (s *Service) handleAdminRebuildMetadata(w http.ResponseWriter, r *http.Request) {
	report, err := s.adm.RebuildMetadata(r.Context())
	if err != nil {
		s.logger.Error("admin rebuild metadata", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusOK, report)
}

func (s *Service) handleAdminReclean(w http.ResponseWriter, r *http.Request) {
	piiScrub := r.URL.Query().Get("pii_scrub") == "true"
	report, err := s.adm.RecleanAll(r.Context(), piiScrub)
	if err != nil {
		s.logger.Error("admin reclean", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusOK, report)
}
