package listing

import (
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/JakeFAU/realtime-job-crawler/internal/crawler"
)

// Known vocabularies for the classified fields.
var (
	ExperienceLevels = []string{"No experience", "Intern", "Fresher", "Junior", "Entry", "Mid", "Senior"}
	JobTypes         = []string{"Full-time", "Part-time", "Contract", "Temporary", "Internship", "Freelance"}
	WorkModes        = []string{"Remote", "Hybrid", "On-site"}
)

var yearsPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(\d+)\s*năm\s*kinh\s*nghiệm`),
	regexp.MustCompile(`(?i)(\d+)\s*years?\s*(?:of\s*)?experience`),
	regexp.MustCompile(`(?i)experience\s*:\s*(\d+)\s*years?`),
	regexp.MustCompile(`(?i)kinh\s*nghiệm\s*:\s*(\d+)\s*năm`),
}

// InferExperience maps free text to an experience level, or "".
func InferExperience(text string) string {
	if text == "" {
		return ""
	}
	if level := firstMention(text, ExperienceLevels); level != "" {
		return level
	}
	for _, p := range yearsPatterns {
		m := p.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		years, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		switch {
		case years == 0:
			return "No experience"
		case years < 2:
			return "Fresher"
		case years < 3:
			return "Junior"
		case years < 5:
			return "Mid"
		default:
			return "Senior"
		}
	}
	return ""
}

// InferJobType returns the first job type mentioned in text, or "".
func InferJobType(text string) string {
	return firstMention(text, JobTypes)
}

// InferWorkMode recognises English and Vietnamese work-mode phrases.
func InferWorkMode(text string) string {
	if text == "" {
		return ""
	}
	if mode := firstMention(text, WorkModes); mode != "" {
		return mode
	}
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "từ xa"), strings.Contains(lower, "tại nhà"):
		return "Remote"
	case strings.Contains(lower, "kết hợp"):
		return "Hybrid"
	case strings.Contains(lower, "tại văn phòng"), strings.Contains(lower, "tại công ty"):
		return "On-site"
	default:
		return ""
	}
}

// Classify fills blank experience, job type and work mode fields from the
// record's description and skills text. Populated fields are kept.
func Classify(d crawler.DetailRecord) crawler.DetailRecord {
	text := strings.Join([]string{
		d.Get(FieldTitle), d.Get(FieldDescription), d.Get(FieldSkills), d.Get(FieldExperience),
	}, " ")
	fill := func(rec crawler.DetailRecord, field string, infer func(string) string) crawler.DetailRecord {
		if strings.TrimSpace(rec.Get(field)) != "" {
			return rec
		}
		if v := infer(text); v != "" {
			return rec.With(field, v)
		}
		return rec
	}
	d = fill(d, FieldExperience, InferExperience)
	d = fill(d, FieldJobType, InferJobType)
	d = fill(d, FieldWorkMode, InferWorkMode)
	return d
}

// firstMention matches whole words so "International" is not an "Intern".
func firstMention(text string, vocabulary []string) string {
	for _, v := range vocabulary {
		if wordPattern(v).MatchString(text) {
			return v
		}
	}
	return ""
}

var (
	patternsMu sync.Mutex
	patterns   = map[string]*regexp.Regexp{}
)

func wordPattern(word string) *regexp.Regexp {
	patternsMu.Lock()
	defer patternsMu.Unlock()
	if p, ok := patterns[word]; ok {
		return p
	}
	p := regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(word) + `\b`)
	patterns[word] = p
	return p
}
