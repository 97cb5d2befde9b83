package listing

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/JakeFAU/realtime-job-crawler/internal/crawler"
)

// SortKey selects the ordering applied by Sort.
type SortKey string

// Sort keys.
const (
	SortNone     SortKey = ""
	SortDistance SortKey = "distance"
	SortSalary   SortKey = "salary"
	SortDate     SortKey = "date"
)

// ParseSortKey validates user input.
func ParseSortKey(raw string) (SortKey, error) {
	switch k := SortKey(strings.ToLower(strings.TrimSpace(raw))); k {
	case SortNone, SortDistance, SortSalary, SortDate:
		return k, nil
	default:
		return "", fmt.Errorf("unknown sort key %q", raw)
	}
}

// Sort returns a stably ordered copy. Distance sorts ascending, salary and
// date descending; records without a usable value always go last.
func Sort(details []crawler.DetailRecord, by SortKey) []crawler.DetailRecord {
	out := make([]crawler.DetailRecord, len(details))
	copy(out, details)
	var key func(crawler.DetailRecord) (float64, bool)
	desc := true
	switch by {
	case SortDistance:
		key, desc = Distance, false
	case SortSalary:
		key = Salary
	case SortDate:
		key = postedUnix
	default:
		return out
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, aok := key(out[i])
		b, bok := key(out[j])
		switch {
		case !aok:
			return false
		case !bok:
			return true
		case desc:
			return a > b
		default:
			return a < b
		}
	})
	return out
}

var (
	salaryNumber   = regexp.MustCompile(`(\d+(?:[.,]\d+)?)`)
	salaryMillions = regexp.MustCompile(`(?i)(triệu|million|\d\s*(?:tr|m)\b)`)
)

// Salary returns the largest amount mentioned in salary_range. Amounts quoted
// in millions are scaled; other units are compared as written.
func Salary(d crawler.DetailRecord) (float64, bool) {
	raw := d.Get(FieldSalary)
	matches := salaryNumber.FindAllString(raw, -1)
	if len(matches) == 0 {
		return 0, false
	}
	best, found := 0.0, false
	for _, m := range matches {
		v, err := strconv.ParseFloat(normalizeNumber(m), 64)
		if err != nil {
			continue
		}
		if !found || v > best {
			best, found = v, true
		}
	}
	if found && salaryMillions.MatchString(raw) {
		best *= 1_000_000
	}
	return best, found
}

// normalizeNumber treats "1,500" as a thousands separator and "1,5" as a decimal comma.
func normalizeNumber(s string) string {
	if i := strings.IndexByte(s, ','); i >= 0 {
		if len(s)-i-1 == 3 {
			return strings.ReplaceAll(s, ",", "")
		}
		return strings.ReplaceAll(s, ",", ".")
	}
	return s
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02",
	"02/01/2006",
	"2/1/2006",
	"02-01-2006",
}

func postedUnix(d crawler.DetailRecord) (float64, bool) {
	for _, field := range []string{FieldPosted, FieldDeadline} {
		raw := strings.TrimSpace(d.Get(field))
		if raw == "" {
			continue
		}
		for _, layout := range dateLayouts {
			if ts, err := time.Parse(layout, raw); err == nil {
				return float64(ts.Unix()), true
			}
		}
	}
	return 0, false
}
