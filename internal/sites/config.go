// Package sites provides selector-driven crawler.SiteCrawler implementations
// configured per job board.
package sites

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// FieldSelector maps one output column to a CSS selector on a job page.
type FieldSelector struct {
	Name     string `mapstructure:"name"`
	Selector string `mapstructure:"selector"`
}

// SiteConfig describes how to search and scrape one job board.
type SiteConfig struct {
	Name       string `mapstructure:"name"`
	BaseURL    string `mapstructure:"base_url"`
	SearchPath string `mapstructure:"search_path"`
	// KeywordParam is the search query parameter carrying one keyword.
	KeywordParam string `mapstructure:"keyword_param"`
	// LocationParams maps Query.Location keys to search parameters.
	LocationParams map[string]string `mapstructure:"location_params"`
	// FilterParams maps Query.Filters keys to search parameters.
	FilterParams map[string]string `mapstructure:"filter_params"`
	LinkSelector string            `mapstructure:"link_selector"`
	Fields       []FieldSelector   `mapstructure:"fields"`
	// Headless requests browser rendering for every page of this site.
	Headless bool `mapstructure:"headless"`
}

// Validate reports configuration mistakes.
func (c SiteConfig) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return errors.New("site name is required")
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("site %s: base_url must be absolute, got %q", c.Name, c.BaseURL)
	}
	if c.KeywordParam == "" {
		return fmt.Errorf("site %s: keyword_param is required", c.Name)
	}
	if c.LinkSelector == "" {
		return fmt.Errorf("site %s: link_selector is required", c.Name)
	}
	for _, f := range c.Fields {
		if f.Name == "" || f.Selector == "" {
			return fmt.Errorf("site %s: field selectors need a name and a selector", c.Name)
		}
	}
	return nil
}

// SearchURL returns the search page address for one keyword.
func (c SiteConfig) SearchURL(keyword string, location, filters map[string]string) (string, error) {
	u, err := url.Parse(strings.TrimRight(c.BaseURL, "/") + c.SearchPath)
	if err != nil {
		return "", fmt.Errorf("build search url: %w", err)
	}
	params := url.Values{}
	params.Set(c.KeywordParam, keyword)
	for key, param := range c.LocationParams {
		if v := strings.TrimSpace(location[key]); v != "" {
			params.Set(param, v)
		}
	}
	for key, param := range c.FilterParams {
		if v := strings.TrimSpace(filters[key]); v != "" {
			params.Set(param, v)
		}
	}
	u.RawQuery = params.Encode()
	return u.String(), nil
}

// VietnamWorks returns the built-in configuration for vietnamworks.com.
func VietnamWorks() SiteConfig {
	return SiteConfig{
		Name:         "VietnamWorks",
		BaseURL:      "https://www.vietnamworks.com",
		SearchPath:   "/tim-kiem-viec-lam-nhanh",
		KeywordParam: "q",
		LocationParams: map[string]string{
			"company_province": "province",
		},
		FilterParams: map[string]string{
			"experience": "exp",
			"job_type":   "jobtype",
			"salary":     "salary",
		},
		LinkSelector: "h3.job-title > a",
		Fields: []FieldSelector{
			{Name: "job_title", Selector: "h1"},
			{Name: "company_name", Selector: "[class*='company-name'], a[href*='/nha-tuyen-dung/']"},
			{Name: "job_location", Selector: "[class*='location'], [class*='address']"},
			{Name: "salary_range", Selector: "[class*='salary']"},
			{Name: "required_skills", Selector: "[class*='skill'] li, [class*='tag'] a"},
			{Name: "brief_job_description", Selector: "[class*='description']"},
			{Name: "application_deadline", Selector: "[class*='expir'], [class*='deadline']"},
		},
	}
}
