package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-job-crawler/internal/llm"
)

type cvRequest struct {
	Profile llm.Profile `json:"profile"`
	JobURL  string      `json:"job_url"`
}

// generateCV drafts a CV for one of the crawled jobs, looked up by URL.
func (s *Server) generateCV(w http.ResponseWriter, r *http.Request) {
	var body cvRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	jobURL := strings.TrimSpace(body.JobURL)
	if jobURL == "" {
		writeError(w, http.StatusBadRequest, "job_url required")
		return
	}
	if err := body.Profile.Validate(); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	details, ok := s.currentDetails(w, r)
	if !ok {
		return
	}
	idx := -1
	for i, d := range details {
		if d.URL == jobURL {
			idx = i
			break
		}
	}
	if idx < 0 {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}

	cv, err := s.deps.CV.GenerateCV(r.Context(), body.Profile, details[idx])
	if err != nil {
		if errors.Is(err, llm.ErrIncompleteProfile) {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		s.logger.Error("cv generation failed", zap.String("job_url", jobURL), zap.Error(err))
		writeError(w, http.StatusBadGateway, "cv generation failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"job_url": jobURL, "cv": cv})
}
