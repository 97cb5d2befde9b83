package sites

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-job-crawler/internal/crawler"
)

// Deps are the collaborators shared by every configured site.
type Deps struct {
	Fetcher crawler.Fetcher
	// Searcher and Extractor are optional semantic capabilities.
	Searcher  crawler.Searcher
	Extractor crawler.Extractor
	Logger    *zap.Logger
}

// SelectorCrawler discovers and extracts job postings using CSS selectors,
// preferring the semantic capabilities when they are configured.
type SelectorCrawler struct {
	cfg       SiteConfig
	fetcher   crawler.Fetcher
	searcher  crawler.Searcher
	extractor crawler.Extractor
	logger    *zap.Logger
}

var _ crawler.SiteCrawler = (*SelectorCrawler)(nil)

// New builds a SelectorCrawler.
func New(cfg SiteConfig, deps Deps) (*SelectorCrawler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Fetcher == nil {
		return nil, errors.New("sites: fetcher is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SelectorCrawler{
		cfg:       cfg,
		fetcher:   deps.Fetcher,
		searcher:  deps.Searcher,
		extractor: deps.Extractor,
		logger:    logger.Named("site").With(zap.String("source", cfg.Name)),
	}, nil
}

// Name returns the configured site name.
func (c *SelectorCrawler) Name() string {
	return c.cfg.Name
}

// Discover returns job posting URLs for q.
func (c *SelectorCrawler) Discover(ctx context.Context, q crawler.Query) ([]string, error) {
	if urls := c.semanticSearch(ctx, q); len(urls) > 0 {
		return urls, nil
	}

	var (
		links = newLinkSet()
		errs  []error
	)
	for _, keyword := range q.Keywords {
		if err := ctx.Err(); err != nil {
			return links.list(), err
		}
		keyword = strings.TrimSpace(keyword)
		if keyword == "" {
			continue
		}
		searchURL, err := c.cfg.SearchURL(keyword, q.Location, q.Filters)
		if err != nil {
			return links.list(), err
		}
		found, err := c.searchPage(ctx, searchURL)
		if err != nil {
			c.logger.Warn("search page failed", zap.String("url", searchURL), zap.Error(err))
			errs = append(errs, err)
			continue
		}
		for _, link := range found {
			links.add(link)
		}
	}
	if links.len() == 0 && len(errs) > 0 {
		return links.list(), fmt.Errorf("discover %s: %w", c.cfg.Name, errors.Join(errs...))
	}
	return links.list(), nil
}

func (c *SelectorCrawler) semanticSearch(ctx context.Context, q crawler.Query) []string {
	if c.searcher == nil {
		return nil
	}
	urls, err := c.searcher.SearchJobs(ctx, c.cfg.BaseURL, q)
	if err != nil {
		c.logger.Warn("semantic search failed, falling back to search pages", zap.Error(err))
		return nil
	}
	links := newLinkSet()
	for _, u := range urls {
		if crawler.HasPrefixURL(u, c.cfg.BaseURL) {
			links.add(u)
		}
	}
	return links.list()
}

func (c *SelectorCrawler) searchPage(ctx context.Context, searchURL string) ([]string, error) {
	doc, err := c.document(ctx, searchURL)
	if err != nil {
		return nil, err
	}
	var out []string
	doc.Find(c.cfg.LinkSelector).Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok {
			return
		}
		abs, err := crawler.ResolveURL(searchURL, href)
		if err != nil {
			return
		}
		out = append(out, abs)
	})
	return out, nil
}

// Extract fetches url and returns its job fields.
func (c *SelectorCrawler) Extract(ctx context.Context, url string) (crawler.Record, error) {
	resp, err := c.fetcher.Fetch(ctx, crawler.FetchRequest{URL: url, UseHeadless: c.cfg.Headless})
	if err != nil {
		return crawler.Record{}, fmt.Errorf("fetch %s: %w", url, err)
	}

	if c.extractor != nil {
		rec, err := c.extractor.ExtractJob(ctx, string(resp.Body), url)
		if err == nil && !rec.Empty() {
			return rec, nil
		}
		if ctx.Err() != nil {
			return crawler.Record{}, ctx.Err()
		}
		c.logger.Debug("semantic extraction unavailable, using selectors",
			zap.String("url", url), zap.Error(err))
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return crawler.Record{}, fmt.Errorf("parse %s: %w", url, err)
	}
	rec := selectFields(doc, c.cfg.Fields)
	if rec.Empty() {
		return crawler.Record{}, fmt.Errorf("extract %s: %w", url, crawler.ErrEmptyRecord)
	}
	return rec, nil
}

func (c *SelectorCrawler) document(ctx context.Context, pageURL string) (*goquery.Document, error) {
	resp, err := c.fetcher.Fetch(ctx, crawler.FetchRequest{URL: pageURL, UseHeadless: c.cfg.Headless})
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", pageURL, err)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", pageURL, err)
	}
	return doc, nil
}

// selectFields reads each selector in order. Multiple matches are joined with
// ", " so list-like fields (skills, tags) survive.
func selectFields(doc *goquery.Document, fields []FieldSelector) crawler.Record {
	rec := crawler.NewRecord()
	for _, f := range fields {
		var parts []string
		seen := make(map[string]struct{})
		doc.Find(f.Selector).Each(func(_ int, s *goquery.Selection) {
			text := crawler.CleanText(s.Text())
			if text == "" {
				return
			}
			if _, dup := seen[text]; dup {
				return
			}
			seen[text] = struct{}{}
			parts = append(parts, text)
		})
		rec.Set(f.Name, strings.Join(parts, ", "))
	}
	return rec
}

type linkSet struct {
	seen  map[string]struct{}
	order []string
}

func newLinkSet() *linkSet {
	return &linkSet{seen: make(map[string]struct{})}
}

func (s *linkSet) add(raw string) {
	norm, err := crawler.NormalizeURL(raw)
	if err != nil {
		return
	}
	if _, dup := s.seen[norm]; dup {
		return
	}
	s.seen[norm] = struct{}{}
	s.order = append(s.order, norm)
}

func (s *linkSet) len() int { return len(s.order) }

func (s *linkSet) list() []string {
	return append([]string{}, s.order...)
}
