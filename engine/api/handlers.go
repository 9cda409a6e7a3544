package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/evaldash/engine/comparator"
	"github.com/evaldash/engine/storage"
	"github.com/evaldash/engine/types"
)

// maxRunPayloadBytes caps ingested run payload size.
const maxRunPayloadBytes = 16 << 20

const defaultTrendWindowDays = 30

// compareRequest is the body of POST /compare. Filter and Search are
// optional and narrow the returned tests without changing the metrics,
// config diff, or summary.
type compareRequest struct {
	RunIDs []string         `json:"run_ids"`
	Filter types.FilterType `json:"filter,omitempty"`
	Search string           `json:"search,omitempty"`
}

// dashboardResponse aggregates everything the dashboard landing page
// renders in one round trip.
type dashboardResponse struct {
	Stats       types.AggregateStats    `json:"stats"`
	Trend       []types.TrendPoint      `json:"trend"`
	TopFailing  []types.TopFailingTest  `json:"top_failing"`
	Regressions []types.RegressionAlert `json:"regressions"`
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	project := r.URL.Query().Get("project")
	runs, err := s.store.ListRuns(r.Context(), project)
	if err != nil {
		s.log.WithError(err).Error("Failed to list runs")
		writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"runs":  runs,
		"count": len(runs),
	})
}

func (s *server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	run, err := s.store.GetRun(r.Context(), id)
	if errors.Is(err, storage.ErrRunNotFound) {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		s.log.WithError(err).WithField("run_id", id).Error("Failed to get run")
		writeError(w, http.StatusInternalServerError, "failed to get run")
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *server) handleSaveRun(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRunPayloadBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	valid, problems, err := s.validator.ValidateRunPayload(body)
	if err != nil {
		s.log.WithError(err).Error("Run payload validation failed")
		writeError(w, http.StatusInternalServerError, "validation failed")
		return
	}
	if !valid {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"error":   "invalid run payload",
			"details": problems,
		})
		return
	}

	var run types.RunRecord
	if err := json.Unmarshal(body, &run); err != nil {
		writeError(w, http.StatusBadRequest, "malformed run payload")
		return
	}
	if run.Timestamp.IsZero() {
		run.Timestamp = time.Now()
	}

	if err := s.store.SaveRun(r.Context(), &run); err != nil {
		s.log.WithError(err).Error("Failed to save run")
		writeError(w, http.StatusInternalServerError, "failed to save run")
		return
	}

	s.log.WithFields(logrus.Fields{
		"run_id":  run.ID,
		"project": run.ProjectName,
	}).Info("Run ingested")

	s.hub.Broadcast(WSMessageTypeRunSaved, types.RunHeader{
		ID:          run.ID,
		ProjectName: run.ProjectName,
		Timestamp:   run.Timestamp,
		Stats:       run.Stats,
	})
	s.notifyRegressions(r, run.ProjectName)

	writeJSON(w, http.StatusCreated, map[string]string{"id": run.ID})
}

// notifyRegressions re-runs detection on the project after an ingest
// and pushes any alerts to dashboard clients.
func (s *server) notifyRegressions(r *http.Request, project string) {
	runs, err := s.store.ListRuns(r.Context(), project)
	if err != nil {
		s.log.WithError(err).Warn("Skipping regression notification")
		return
	}
	if alerts := s.aggregator.DetectRegressions(runs); len(alerts) > 0 {
		s.hub.Broadcast(WSMessageTypeRegressionDetected, alerts)
	}
}

func (s *server) handleDeleteRun(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	err := s.store.DeleteRun(r.Context(), id)
	if errors.Is(err, storage.ErrRunNotFound) {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		s.log.WithError(err).WithField("run_id", id).Error("Failed to delete run")
		writeError(w, http.StatusInternalServerError, "failed to delete run")
		return
	}
	s.hub.Broadcast(WSMessageTypeRunDeleted, map[string]string{"id": id})
	writeJSON(w, http.StatusOK, map[string]string{"id": id})
}

func (s *server) handleCompare(w http.ResponseWriter, r *http.Request) {
	var req compareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed compare request")
		return
	}

	runs := make([]*types.RunRecord, 0, len(req.RunIDs))
	for _, id := range req.RunIDs {
		run, err := s.store.GetRun(r.Context(), id)
		if errors.Is(err, storage.ErrRunNotFound) {
			writeError(w, http.StatusNotFound, "run not found: "+id)
			return
		}
		if err != nil {
			s.log.WithError(err).WithField("run_id", id).Error("Failed to get run")
			writeError(w, http.StatusInternalServerError, "failed to get run")
			return
		}
		runs = append(runs, run)
	}

	data, err := s.comparator.CompareRuns(runs)
	if errors.Is(err, comparator.ErrInvalidComparisonInput) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		s.log.WithError(err).Error("Comparison failed")
		writeError(w, http.StatusInternalServerError, "comparison failed")
		return
	}

	if req.Filter != "" || req.Search != "" {
		data.Tests = comparator.FilterTests(data.Tests, req.Filter, req.Search)
	}

	writeJSON(w, http.StatusOK, data)
}

func (s *server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	project := r.URL.Query().Get("project")
	windowDays := queryInt(r, "window_days", defaultTrendWindowDays)

	runs, err := s.store.ListRuns(r.Context(), project)
	if err != nil {
		s.log.WithError(err).Error("Failed to list runs")
		writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}

	resp := dashboardResponse{
		Stats:       s.aggregator.AggregateStats(runs),
		Trend:       s.aggregator.TrendSeries(runs, time.Duration(windowDays)*24*time.Hour),
		TopFailing:  s.aggregator.TopFailingTests(runs, 5),
		Regressions: s.aggregator.DetectRegressions(runs),
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *server) handleProjects(w http.ResponseWriter, r *http.Request) {
	runs, err := s.store.ListRuns(r.Context(), "")
	if err != nil {
		s.log.WithError(err).Error("Failed to list runs")
		writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"projects": s.aggregator.CompareProjects(runs),
	})
}

func (s *server) handleRegressions(w http.ResponseWriter, r *http.Request) {
	project := r.URL.Query().Get("project")
	runs, err := s.store.ListRuns(r.Context(), project)
	if err != nil {
		s.log.WithError(err).Error("Failed to list runs")
		writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	alerts := s.aggregator.DetectRegressions(runs)
	if alerts == nil {
		alerts = []types.RegressionAlert{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"alerts": alerts})
}

func (s *server) handleFailingTests(w http.ResponseWriter, r *http.Request) {
	project := r.URL.Query().Get("project")
	limit := queryInt(r, "limit", 10)

	runs, err := s.store.ListRuns(r.Context(), project)
	if err != nil {
		s.log.WithError(err).Error("Failed to list runs")
		writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	failing := s.aggregator.TopFailingTests(runs, limit)
	if failing == nil {
		failing = []types.TopFailingTest{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"tests": failing})
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
