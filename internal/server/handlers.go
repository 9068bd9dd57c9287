package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/adflow/adflow/internal/experiment"
	"github.com/adflow/adflow/internal/session"
	"github.com/adflow/adflow/internal/store"
)

type HealthResponse struct {
	Status           string `json:"status"`
	ExperimentsCount int    `json:"experiments_count"`
	DBSizeBytes      int64  `json:"db_size_bytes"`
	UptimeSeconds    int64  `json:"uptime_seconds"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	experiments, err := s.experiments.List(ctx, 0)
	if err != nil {
		s.writeError(w, err)
		return
	}

	var dbSize int64
	row := s.store.DB().QueryRowContext(ctx, "SELECT page_count * page_size FROM pragma_page_count(), pragma_page_size()")
	if err := row.Scan(&dbSize); err != nil {
		s.logger.Warn("failed to read database size", "error", err)
	}

	writeJSON(w, http.StatusOK, HealthResponse{
		Status:           "ok",
		ExperimentsCount: len(experiments),
		DBSizeBytes:      dbSize,
		UptimeSeconds:    int64(time.Since(s.startTime).Seconds()),
	})
}

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var req session.StartParams
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.SiteID == 0 {
		writeJSONError(w, http.StatusBadRequest, "siteId is required")
		return
	}
	if req.UserAgent == "" {
		req.UserAgent = r.UserAgent()
	}

	d, err := s.sessions.Start(r.Context(), req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleNextAction(w http.ResponseWriter, r *http.Request) {
	d, err := s.sessions.Next(r.Context(), mux.Vars(r)["sessionId"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleCompleteStep(w http.ResponseWriter, r *http.Request) {
	var req session.Completion
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	d, err := s.sessions.Complete(r.Context(), mux.Vars(r)["sessionId"], req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

type abandonRequest struct {
	At string `json:"at"`
}

func (s *Server) handleAbandon(w http.ResponseWriter, r *http.Request) {
	var req abandonRequest
	// An empty body means "now"
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	if err := s.sessions.Abandon(r.Context(), mux.Vars(r)["sessionId"], req.At); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCreateExperiment(w http.ResponseWriter, r *http.Request) {
	var req experiment.CreateParams
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.SiteID == 0 || req.Name == "" {
		writeJSONError(w, http.StatusBadRequest, "siteId and name are required")
		return
	}

	e, err := s.experiments.Create(r.Context(), req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

func (s *Server) handleListExperiments(w http.ResponseWriter, r *http.Request) {
	var siteID int64
	if v := r.URL.Query().Get("siteId"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid siteId")
			return
		}
		siteID = id
	}

	experiments, err := s.experiments.List(r.Context(), siteID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	// Return empty array instead of null
	if experiments == nil {
		experiments = []*store.Experiment{}
	}
	writeJSON(w, http.StatusOK, experiments)
}

func (s *Server) handleGetExperiment(w http.ResponseWriter, r *http.Request) {
	e, err := s.experiments.Get(r.Context(), experimentID(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

type transitionFunc func(ctx context.Context, id int64) (*store.Experiment, error)

func (s *Server) handleExperimentTransition(fn transitionFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		e, err := fn(r.Context(), experimentID(r))
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, e)
	}
}

func (s *Server) handleExperimentResults(w http.ResponseWriter, r *http.Request) {
	res, err := s.experiments.CalculateResults(r.Context(), experimentID(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleExperimentSessions(w http.ResponseWriter, r *http.Request) {
	id := experimentID(r)
	if _, err := s.experiments.Get(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}
	sessions, err := s.experiments.ListSessions(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if sessions == nil {
		sessions = []*store.ABSession{}
	}
	writeJSON(w, http.StatusOK, sessions)
}

// experimentID reads the {id} route variable; the route pattern only
// admits digits.
func experimentID(r *http.Request) int64 {
	id, _ := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	return id
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeJSONError(w, http.StatusNotFound, "not found")
	case errors.Is(err, session.ErrUnknownStep), errors.Is(err, experiment.ErrInvalidSplit):
		writeJSONError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, experiment.ErrAlreadyRunning), errors.Is(err, experiment.ErrInvalidTransition):
		writeJSONError(w, http.StatusConflict, err.Error())
	default:
		s.logger.Error("request failed", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "internal server error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
