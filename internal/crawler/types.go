package crawler

import (
	"fmt"
	"net/http"
	"strings"
	"time"
)

// LinkStatus represents the lifecycle state of a discovered job link.
type LinkStatus string

// Link status values persisted in the links resource.
const (
	LinkStatusPending       LinkStatus = "Pending"
	LinkStatusDetailFetched LinkStatus = "DetailFetched"
	LinkStatusError         LinkStatus = "Error"
)

// legacyLinkStatuses maps the labels written by the Vietnamese desktop
// release of the crawler.
var legacyLinkStatuses = map[string]LinkStatus{
	"đang chờ":        LinkStatusPending,
	"đã lấy chi tiết": LinkStatusDetailFetched,
	"lỗi":             LinkStatusError,
}

// ParseLinkStatus converts a stored status string into a LinkStatus.
// Matching ignores case; an empty value is treated as Pending.
func ParseLinkStatus(raw string) (LinkStatus, error) {
	trimmed := strings.TrimSpace(raw)
	switch {
	case trimmed == "", strings.EqualFold(trimmed, string(LinkStatusPending)):
		return LinkStatusPending, nil
	case strings.EqualFold(trimmed, string(LinkStatusDetailFetched)):
		return LinkStatusDetailFetched, nil
	case strings.EqualFold(trimmed, string(LinkStatusError)):
		return LinkStatusError, nil
	}
	if status, ok := legacyLinkStatuses[strings.ToLower(trimmed)]; ok {
		return status, nil
	}
	return "", fmt.Errorf("%w %q", ErrUnknownLinkStatus, raw)
}

// Column names shared by the links and details resources.
const (
	FieldURL      = "url"
	FieldSource   = "source"
	FieldStatus   = "status"
	FieldDistance = "distance"
)

// LinkRecord is a job posting URL found during discovery.
type LinkRecord struct {
	URL    string     `json:"url"`
	Source string     `json:"source"`
	Status LinkStatus `json:"status"`
}

// Row returns the tabular form of the link.
func (l LinkRecord) Row() Record {
	return RecordOf(
		FieldURL, l.URL,
		FieldSource, l.Source,
		FieldStatus, string(l.Status),
	)
}

// LinkFromRow parses a stored row back into a LinkRecord.
func LinkFromRow(row Record) (LinkRecord, error) {
	status, err := ParseLinkStatus(row.Get(FieldStatus))
	if err != nil {
		return LinkRecord{}, err
	}
	return LinkRecord{
		URL:    row.Get(FieldURL),
		Source: row.Get(FieldSource),
		Status: status,
	}, nil
}

// DetailRecord is the structured data extracted from one job posting.
type DetailRecord struct {
	Source string
	URL    string
	Fields Record
}

// NewDetailRecord tags extracted fields with their origin. Any source or url
// keys present in fields are dropped in favor of the explicit values.
func NewDetailRecord(source, url string, fields Record) DetailRecord {
	clean := NewRecord()
	for _, key := range fields.Keys() {
		if key == FieldSource || key == FieldURL {
			continue
		}
		clean.Set(key, fields.Get(key))
	}
	return DetailRecord{Source: source, URL: url, Fields: clean}
}

// Get returns a field value, including the source and url tags.
func (d DetailRecord) Get(key string) string {
	switch key {
	case FieldSource:
		return d.Source
	case FieldURL:
		return d.URL
	default:
		return d.Fields.Get(key)
	}
}

// With returns a copy of the record with key set to value.
func (d DetailRecord) With(key, value string) DetailRecord {
	out := DetailRecord{Source: d.Source, URL: d.URL, Fields: d.Fields.Clone()}
	out.Fields.Set(key, value)
	return out
}

// Row returns the tabular form: source and url first, then the extracted fields
// in extraction order.
func (d DetailRecord) Row() Record {
	row := RecordOf(FieldSource, d.Source, FieldURL, d.URL)
	for _, key := range d.Fields.Keys() {
		row.Set(key, d.Fields.Get(key))
	}
	return row
}

// MarshalJSON renders the record as a flat ordered object.
func (d DetailRecord) MarshalJSON() ([]byte, error) {
	return d.Row().MarshalJSON()
}

// DetailFromRow splits a stored row into tags and fields.
func DetailFromRow(row Record) DetailRecord {
	return NewDetailRecord(row.Get(FieldSource), row.Get(FieldURL), row)
}

// Query captures the user's search intent for discovery.
type Query struct {
	Keywords []string          `json:"keywords"`
	Location map[string]string `json:"location,omitempty"`
	Filters  map[string]string `json:"filters,omitempty"`
}

// LocationValue returns a location key or "".
func (q Query) LocationValue(key string) string {
	return q.Location[key]
}

// FilterValue returns a filter key or "".
func (q Query) FilterValue(key string) string {
	return q.Filters[key]
}

// FetchRequest captures everything needed to fetch a URL.
type FetchRequest struct {
	URL         string
	UseHeadless bool
	Headers     http.Header
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL          string
	StatusCode   int
	Headers      http.Header
	Body         []byte
	Duration     time.Duration
	UsedHeadless bool
}
