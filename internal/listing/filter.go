// Package listing filters, classifies and orders extracted job details for
// presentation.
package listing

import (
	"strconv"
	"strings"

	"github.com/JakeFAU/realtime-job-crawler/internal/crawler"
)

// Detail field names produced by the extractors.
const (
	FieldTitle       = "job_title"
	FieldLocation    = "job_location"
	FieldAddress     = "company_address"
	FieldExperience  = "experience_level"
	FieldJobType     = "job_type"
	FieldWorkMode    = "work_mode"
	FieldSkills      = "required_skills"
	FieldSalary      = "salary_range"
	FieldDeadline    = "application_deadline"
	FieldPosted      = "posted_date"
	FieldDescription = "brief_job_description"
)

// Filter narrows a list of details. Zero-valued fields are ignored.
type Filter struct {
	// Locations keeps details whose job_location contains any entry.
	Locations []string
	// Experience, JobType and WorkMode match case-insensitively.
	Experience string
	JobType    string
	WorkMode   string
	// Skills keeps details whose required_skills mention any entry.
	Skills []string
	// DistanceMax drops details farther than this many km, or without a distance.
	DistanceMax float64
}

// Empty reports whether the filter keeps everything.
func (f Filter) Empty() bool {
	return len(f.Locations) == 0 && f.Experience == "" && f.JobType == "" &&
		f.WorkMode == "" && len(f.Skills) == 0 && f.DistanceMax <= 0
}

// Match reports whether d passes every configured criterion.
func (f Filter) Match(d crawler.DetailRecord) bool {
	if len(f.Locations) > 0 && !containsAny(d.Get(FieldLocation), f.Locations) {
		return false
	}
	if f.Experience != "" && !strings.EqualFold(strings.TrimSpace(d.Get(FieldExperience)), f.Experience) {
		return false
	}
	if f.JobType != "" && !strings.EqualFold(strings.TrimSpace(d.Get(FieldJobType)), f.JobType) {
		return false
	}
	if f.WorkMode != "" && !strings.EqualFold(strings.TrimSpace(d.Get(FieldWorkMode)), f.WorkMode) {
		return false
	}
	if len(f.Skills) > 0 && !containsAny(d.Get(FieldSkills), f.Skills) {
		return false
	}
	if f.DistanceMax > 0 {
		km, ok := Distance(d)
		if !ok || km > f.DistanceMax {
			return false
		}
	}
	return true
}

// Apply returns the details that match, preserving order.
func (f Filter) Apply(details []crawler.DetailRecord) []crawler.DetailRecord {
	out := make([]crawler.DetailRecord, 0, len(details))
	for _, d := range details {
		if f.Match(d) {
			out = append(out, d)
		}
	}
	return out
}

// Distance parses the distance field.
func Distance(d crawler.DetailRecord) (float64, bool) {
	raw := strings.TrimSpace(d.Get(crawler.FieldDistance))
	if raw == "" {
		return 0, false
	}
	km, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return km, true
}

func containsAny(haystack string, needles []string) bool {
	h := strings.ToLower(haystack)
	if h == "" {
		return false
	}
	for _, n := range needles {
		n = strings.ToLower(strings.TrimSpace(n))
		if n != "" && strings.Contains(h, n) {
			return true
		}
	}
	return false
}
