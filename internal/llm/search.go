package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-job-crawler/internal/crawler"
)

const searchSystem = "You are a job search assistant. You understand what a candidate is " +
	"looking for and propose matching job postings. Reply with JSON only."

// SearchJobs asks the model for job posting URLs on baseURL matching q.
// Only absolute URLs under baseURL are returned, de-duplicated in reply order.
func (c *Client) SearchJobs(ctx context.Context, baseURL string, q crawler.Query) ([]string, error) {
	prompt := searchPrompt(baseURL, q)
	reply, err := c.completer.Complete(ctx, searchSystem, prompt)
	if err != nil {
		return nil, fmt.Errorf("semantic search: %w", err)
	}
	candidates, err := parseURLs(reply)
	if err != nil {
		return nil, fmt.Errorf("semantic search: %w", err)
	}
	seen := make(map[string]struct{}, len(candidates))
	out := make([]string, 0, len(candidates))
	for _, raw := range candidates {
		if !crawler.HasPrefixURL(raw, baseURL) {
			continue
		}
		norm, err := crawler.NormalizeURL(raw)
		if err != nil {
			continue
		}
		if _, dup := seen[norm]; dup {
			continue
		}
		seen[norm] = struct{}{}
		out = append(out, norm)
	}
	c.logger.Debug("semantic search",
		zap.String("base_url", baseURL),
		zap.Int("candidates", len(candidates)),
		zap.Int("kept", len(out)))
	return out, nil
}

func searchPrompt(baseURL string, q crawler.Query) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Find job postings on %s that match this request.\n\n", baseURL)
	fmt.Fprintf(&sb, "Keywords: %s\n", strings.Join(q.Keywords, ", "))
	if loc := formatMap(q.Location); loc != "" {
		fmt.Fprintf(&sb, "Location: %s\n", loc)
	}
	if filters := formatMap(q.Filters); filters != "" {
		fmt.Fprintf(&sb, "Filters: %s\n", filters)
	}
	sb.WriteString("\nInterpret the meaning of the keywords; related roles count even when the exact words differ. ")
	fmt.Fprintf(&sb, "Return a JSON object {\"urls\": [...]} where every URL starts with %s.", baseURL)
	return sb.String()
}

func formatMap(m map[string]string) string {
	if len(m) == 0 {
		return ""
	}
	keys := make([]string, 0, len(m))
	for k, v := range m {
		if strings.TrimSpace(v) != "" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + ": " + m[k]
	}
	return strings.Join(parts, ", ")
}

// parseURLs accepts either a bare array or an object with a "urls" array.
func parseURLs(reply string) ([]string, error) {
	payload, err := ExtractJSON(reply)
	if err != nil {
		return nil, err
	}
	var list []string
	if strings.HasPrefix(payload, "[") {
		if err := json.Unmarshal([]byte(payload), &list); err != nil {
			return nil, fmt.Errorf("decode url list: %w", err)
		}
		return list, nil
	}
	var obj struct {
		URLs []string `json:"urls"`
	}
	if err := json.Unmarshal([]byte(payload), &obj); err != nil {
		return nil, fmt.Errorf("decode url object: %w", err)
	}
	return obj.URLs, nil
}
