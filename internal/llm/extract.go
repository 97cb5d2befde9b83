package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/realtime-job-crawler/internal/crawler"
)

// JobFields is the fixed set of fields requested from the model, in output order.
var JobFields = []string{
	"job_title",
	"company_name",
	"company_address",
	"job_location",
	"salary_range",
	"job_type",
	"work_mode",
	"required_skills",
	"experience_level",
	"education_requirements",
	"brief_job_description",
	"job_benefits",
	"application_deadline",
	"language_requirement",
	"contact_email",
	"contact_person",
}

// Placeholders models use for missing information.
var placeholders = map[string]struct{}{
	"n/a":                {},
	"none":               {},
	"null":               {},
	"unknown":            {},
	"not specified":      {},
	"không có thông tin": {},
}

const extractSystem = "You extract structured data from job posting pages. Reply with a single JSON object only."

// ExtractJob asks the model to fill JobFields from a posting page. Missing
// information comes back blank; a reply with no usable field is
// crawler.ErrEmptyRecord.
func (c *Client) ExtractJob(ctx context.Context, html string, url string) (crawler.Record, error) {
	text, err := PageText(html, c.maxHTMLBytes)
	if err != nil {
		return crawler.Record{}, err
	}
	prompt := fmt.Sprintf(
		"Extract these fields from the job posting below: %s.\n"+
			"Use an empty string when a field is not present. Lists become comma-separated strings.\n\n"+
			"URL: %s\n\nPAGE:\n%s",
		strings.Join(JobFields, ", "), url, text)

	reply, err := c.completer.Complete(ctx, extractSystem, prompt)
	if err != nil {
		return crawler.Record{}, fmt.Errorf("semantic extraction: %w", err)
	}
	payload, err := ExtractJSON(reply)
	if err != nil {
		return crawler.Record{}, fmt.Errorf("semantic extraction: %w", err)
	}
	var raw crawler.Record
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		return crawler.Record{}, fmt.Errorf("decode extraction: %w", err)
	}
	out := crawler.NewRecord()
	for _, f := range JobFields {
		v := crawler.CleanText(raw.Get(f))
		if _, ok := placeholders[strings.ToLower(v)]; ok {
			v = ""
		}
		out.Set(f, v)
	}
	if out.Empty() {
		return crawler.Record{}, crawler.ErrEmptyRecord
	}
	return out, nil
}

// PageText strips scripts, styles and markup from html and truncates the
// visible text to maxBytes on a rune boundary.
func PageText(html string, maxBytes int) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}
	doc.Find("script, style, noscript, svg, iframe").Remove()
	text := crawler.CleanText(doc.Text())
	return truncate(text, maxBytes), nil
}

func truncate(s string, maxBytes int) string {
	if maxBytes <= 0 || len(s) <= maxBytes {
		return s
	}
	cut := maxBytes
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
