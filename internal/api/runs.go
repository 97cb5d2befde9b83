package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-job-crawler/internal/crawler"
	queuemem "github.com/JakeFAU/realtime-job-crawler/internal/queue/memory"
)

type runRequest struct {
	Kind  string        `json:"kind"`
	Query crawler.Query `json:"query"`
	Limit int           `json:"limit"`
}

func (r runRequest) toRunRequest() (crawler.RunRequest, error) {
	kind, err := crawler.ParseRunKind(r.Kind)
	if err != nil {
		return crawler.RunRequest{}, err
	}
	if r.Limit < 0 {
		return crawler.RunRequest{}, errors.New("limit must be >= 0")
	}
	keywords := make([]string, 0, len(r.Query.Keywords))
	for _, k := range r.Query.Keywords {
		if k = strings.TrimSpace(k); k != "" {
			keywords = append(keywords, k)
		}
	}
	if kind != crawler.RunKindDetails && len(keywords) == 0 {
		return crawler.RunRequest{}, errors.New("query.keywords required")
	}
	q := r.Query
	q.Keywords = keywords
	return crawler.RunRequest{Kind: kind, Query: q, Limit: r.Limit}, nil
}

func (s *Server) submitRun(w http.ResponseWriter, r *http.Request) {
	var body runRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	req, err := body.toRunRequest()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	runID, err := s.deps.IDs.NewID()
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("generate run id: %v", err))
		return
	}
	now := s.deps.Clock.Now()
	run := crawler.Run{
		ID:        runID,
		Status:    crawler.RunStatusQueued,
		Submitted: now,
		Request:   req,
	}
	if err := s.deps.Runs.CreateRun(r.Context(), run); err != nil {
		s.logger.Error("create run failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to create run")
		return
	}
	item := crawler.QueueItem{RunID: runID, Request: req, Submitted: now.Unix()}
	if err := s.deps.Queue.TryEnqueue(item); err != nil {
		if uerr := s.deps.Runs.UpdateRunStatus(r.Context(), runID, crawler.RunStatusFailed,
			err.Error(), crawler.RunCounters{}); uerr != nil {
			s.logger.Error("mark unqueued run failed", zap.String("run_id", runID), zap.Error(uerr))
		}
		status := http.StatusInternalServerError
		if errors.Is(err, queuemem.ErrFull) || errors.Is(err, queuemem.ErrClosed) {
			status = http.StatusServiceUnavailable
		}
		writeError(w, status, err.Error())
		return
	}
	s.logger.Info("run queued", zap.String("run_id", runID), zap.String("kind", string(req.Kind)))
	writeJSON(w, http.StatusAccepted, map[string]string{
		"run_id": runID,
		"status": string(crawler.RunStatusQueued),
	})
}

func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "run_id")
	run, err := s.deps.Runs.GetRun(r.Context(), runID)
	if err != nil {
		if errors.Is(err, crawler.ErrNotFound) {
			writeError(w, http.StatusNotFound, "run not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load run")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"run": run})
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.deps.Runs.ListRuns(r.Context())
	if err != nil {
		s.logger.Error("list runs failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}
