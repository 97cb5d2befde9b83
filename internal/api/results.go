package api

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-job-crawler/internal/crawler"
	"github.com/JakeFAU/realtime-job-crawler/internal/export/xlsx"
	"github.com/JakeFAU/realtime-job-crawler/internal/listing"
	"github.com/JakeFAU/realtime-job-crawler/internal/progress"
)

func (s *Server) pause(w http.ResponseWriter, _ *http.Request) {
	s.deps.Engine.Pause()
	writeJSON(w, http.StatusOK, map[string]bool{"paused": true})
}

func (s *Server) resume(w http.ResponseWriter, _ *http.Request) {
	s.deps.Engine.Resume()
	writeJSON(w, http.StatusOK, map[string]bool{"paused": false})
}

type phaseProgress struct {
	Phase    progress.Phase    `json:"phase"`
	Percent  float64           `json:"percent"`
	Counters progress.Counters `json:"counters"`
}

func (s *Server) progress(w http.ResponseWriter, r *http.Request) {
	phases := []progress.Phase{progress.PhaseLinks, progress.PhaseDetails}
	if raw := r.URL.Query().Get("phase"); raw != "" {
		phase, err := progress.ParsePhase(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		phases = []progress.Phase{phase}
	}
	out := make([]phaseProgress, 0, len(phases))
	for _, p := range phases {
		snap := s.deps.Engine.Stats(p)
		out = append(out, phaseProgress{Phase: p, Percent: snap.Percent(), Counters: snap})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"run_id":  s.deps.Engine.RunID(),
		"running": s.deps.Engine.Running(),
		"paused":  s.deps.Engine.Paused(),
		"phases":  out,
	})
}

// links serves the live snapshot while a crawl runs and the stored links
// otherwise.
func (s *Server) links(w http.ResponseWriter, r *http.Request) {
	var (
		links []crawler.LinkRecord
		err   error
	)
	if s.deps.Engine.Running() {
		links = s.deps.Engine.Links()
	} else if links, err = s.deps.Results.LoadLinks(r.Context()); err != nil {
		s.logger.Error("load links failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load links")
		return
	}
	if source := r.URL.Query().Get("source"); source != "" {
		filtered := links[:0:0]
		for _, l := range links {
			if strings.EqualFold(l.Source, source) {
				filtered = append(filtered, l)
			}
		}
		links = filtered
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": len(links), "links": links})
}

func (s *Server) details(w http.ResponseWriter, r *http.Request) {
	details, ok := s.filteredDetails(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": len(details), "details": details})
}

func (s *Server) detailsXLSX(w http.ResponseWriter, r *http.Request) {
	details, ok := s.filteredDetails(w, r)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := xlsx.WriteDetails(&buf, xlsx.DefaultSheet, details); err != nil {
		s.logger.Error("xlsx export failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to export details")
		return
	}
	w.Header().Set("Content-Type", xlsx.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="job_opportunities.xlsx"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) filteredDetails(w http.ResponseWriter, r *http.Request) ([]crawler.DetailRecord, bool) {
	q := r.URL.Query()
	filter, err := parseFilter(q)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}
	sortKey, err := listing.ParseSortKey(q.Get("sort"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}

	details, ok := s.currentDetails(w, r)
	if !ok {
		return nil, false
	}
	details = listing.Sort(filter.Apply(details), sortKey)
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return nil, false
		}
		if limit > 0 && len(details) > limit {
			details = details[:limit]
		}
	}
	return details, true
}

// currentDetails serves the live snapshot while a crawl runs and the stored
// details otherwise.
func (s *Server) currentDetails(w http.ResponseWriter, r *http.Request) ([]crawler.DetailRecord, bool) {
	if s.deps.Engine.Running() {
		return s.deps.Engine.Details(), true
	}
	details, err := s.deps.Results.LoadDetails(r.Context())
	if err != nil {
		s.logger.Error("load details failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load details")
		return nil, false
	}
	return details, true
}

// parseFilter reads listing filters. List parameters accept repeats and
// comma-separated values.
func parseFilter(q url.Values) (listing.Filter, error) {
	f := listing.Filter{
		Locations:  splitList(q["location"]),
		Experience: strings.TrimSpace(q.Get("experience")),
		JobType:    strings.TrimSpace(q.Get("job_type")),
		WorkMode:   strings.TrimSpace(q.Get("work_mode")),
		Skills:     splitList(q["skill"]),
	}
	if raw := strings.TrimSpace(q.Get("distance_max")); raw != "" {
		d, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return listing.Filter{}, fmt.Errorf("distance_max: %w", err)
		}
		if d < 0 {
			return listing.Filter{}, errors.New("distance_max must be >= 0")
		}
		f.DistanceMax = d
	}
	return f, nil
}

func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
