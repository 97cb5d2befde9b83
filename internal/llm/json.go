package llm

import (
	"errors"
	"regexp"
	"strings"
)

// ErrNoJSON is returned when a reply carries no JSON payload.
var ErrNoJSON = errors.New("no json in model reply")

var fenced = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*\\n?(.*?)```")

// ExtractJSON pulls the JSON payload out of a model reply. A fenced code
// block wins; otherwise the text from the first opening bracket to the last
// matching closing bracket is returned.
func ExtractJSON(text string) (string, error) {
	if m := fenced.FindStringSubmatch(text); m != nil {
		if body := strings.TrimSpace(m[1]); body != "" {
			return body, nil
		}
	}
	start := strings.IndexAny(text, "{[")
	if start < 0 {
		return "", ErrNoJSON
	}
	closer := "}"
	if text[start] == '[' {
		closer = "]"
	}
	end := strings.LastIndex(text, closer)
	if end <= start {
		return "", ErrNoJSON
	}
	return text[start : end+1], nil
}
