package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
)

type sourceView struct {
	ID   string `json:"id"`
	Kind string `json:"kind"`
}

type metricView struct {
	ID              string   `json:"id"`
	SourceID        string   `json:"sourceId"`
	RequiredColumns []string `json:"requiredColumns"`
	Description     string   `json:"description,omitempty"`
	Schedule        string   `json:"schedule,omitempty"`
}

type targetView struct {
	ID   string `json:"id"`
	Kind string `json:"kind"`
}

func (s *Server) handleSources(w http.ResponseWriter, r *http.Request) {
	views := make([]sourceView, 0, s.reg.Sources.Len())
	for id, src := range s.reg.Sources.All() {
		views = append(views, sourceView{ID: id, Kind: kindName(src)})
	}
	writeJSON(w, views, http.StatusOK)
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	views := make([]metricView, 0, s.reg.Metrics.Len())
	for id, spec := range s.reg.Metrics.All() {
		views = append(views, metricView{
			ID:              id,
			SourceID:        spec.SourceID,
			RequiredColumns: spec.Required(),
			Description:     spec.Description,
			Schedule:        spec.Schedule,
		})
	}
	writeJSON(w, views, http.StatusOK)
}

func (s *Server) handleTargets(w http.ResponseWriter, r *http.Request) {
	views := make([]targetView, 0, s.reg.Targets.Len())
	for id, tgt := range s.reg.Targets.All() {
		views = append(views, targetView{ID: id, Kind: kindName(tgt)})
	}
	writeJSON(w, views, http.StatusOK)
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if s.trace == nil {
		http.Error(w, "run history not configured", http.StatusNotFound)
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	rows, err := s.trace.RecentRuns(ctx, limit)
	if err != nil {
		s.logger.Error("list runs failed", "err", err)
		http.Error(w, "failed to list runs", http.StatusInternalServerError)
		return
	}
	writeJSON(w, rows, http.StatusOK)
}

func (s *Server) handleDatasets(w http.ResponseWriter, r *http.Request) {
	if s.metrics == nil {
		http.Error(w, "metrics store not configured", http.StatusNotFound)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	ids, err := s.metrics.ListDatasetIDs(ctx)
	if err != nil {
		s.logger.Error("list datasets failed", "err", err)
		http.Error(w, "failed to list datasets", http.StatusInternalServerError)
		return
	}
	writeJSON(w, ids, http.StatusOK)
}

func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	if s.metrics == nil {
		http.Error(w, "metrics store not configured", http.StatusNotFound)
		return
	}

	datasetID := chi.URLParam(r, "datasetID")
	if datasetID == "" {
		http.Error(w, "dataset id required", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	latest, err := s.metrics.LatestMetrics(ctx, datasetID)
	if err != nil {
		s.logger.Error("latest metrics failed", "err", err, "dataset", datasetID)
		http.Error(w, "failed to load metrics", http.StatusInternalServerError)
		return
	}
	if len(latest) == 0 {
		http.Error(w, "dataset not found", http.StatusNotFound)
		return
	}
	writeJSON(w, latest, http.StatusOK)
}

// kindName reports a short type name for registry entries, e.g. "CSV"
// for *source.CSV.
func kindName(v any) string {
	name := fmt.Sprintf("%T", v)
	name = strings.TrimPrefix(name, "*")
	if i := strings.LastIndex(name, "."); i >= 0 {
		name = name[i+1:]
	}
	return name
}

func writeJSON(w http.ResponseWriter, payload any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
