package sites

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/realtime-job-crawler/internal/crawler"
)

type fakeFetcher struct {
	pages map[string]string
	calls []crawler.FetchRequest
}

func (f *fakeFetcher) Fetch(_ context.Context, req crawler.FetchRequest) (crawler.FetchResponse, error) {
	f.calls = append(f.calls, req)
	body, ok := f.pages[req.URL]
	if !ok {
		return crawler.FetchResponse{}, &crawler.StatusError{URL: req.URL, StatusCode: http.StatusNotFound}
	}
	return crawler.FetchResponse{URL: req.URL, StatusCode: http.StatusOK, Body: []byte(body)}, nil
}

type fakeSearcher struct {
	urls []string
	err  error
}

func (f fakeSearcher) SearchJobs(context.Context, string, crawler.Query) ([]string, error) {
	return f.urls, f.err
}

type fakeExtractor struct {
	rec crawler.Record
	err error
}

func (f fakeExtractor) ExtractJob(context.Context, string, string) (crawler.Record, error) {
	return f.rec, f.err
}

func testSite() SiteConfig {
	return SiteConfig{
		Name:           "Example",
		BaseURL:        "https://jobs.example.com",
		SearchPath:     "/search",
		KeywordParam:   "q",
		LocationParams: map[string]string{"company_province": "province"},
		FilterParams:   map[string]string{"experience": "exp"},
		LinkSelector:   "h3.job-title > a",
		Fields: []FieldSelector{
			{Name: "job_title", Selector: "h1"},
			{Name: "required_skills", Selector: ".skills li"},
			{Name: "salary_range", Selector: ".salary"},
		},
	}
}

const searchGo = `<html><body>
<h3 class="job-title"><a href="/job/1">One</a></h3>
<h3 class="job-title"><a href="https://jobs.example.com/job/2#apply">Two</a></h3>
<h3 class="job-title"><a href="/job/1">One again</a></h3>
<h3 class="job-title"><span>no link</span></h3>
</body></html>`

const searchRust = `<html><body>
<h3 class="job-title"><a href="/job/2">Two</a></h3>
<h3 class="job-title"><a href="/job/3">Three</a></h3>
</body></html>`

const jobPage = `<html><body>
<h1> Senior   Go Engineer </h1>
<ul class="skills"><li>Go</li> <li>Kubernetes</li> <li>Go</li></ul>
</body></html>`

func TestSearchURL(t *testing.T) {
	t.Parallel()

	got, err := VietnamWorks().SearchURL("golang",
		map[string]string{"company_province": "Ho Chi Minh"},
		map[string]string{"experience": "2", "unknown": "x"})
	require.NoError(t, err)
	assert.Equal(t, "https://www.vietnamworks.com/tim-kiem-viec-lam-nhanh?exp=2&province=Ho+Chi+Minh&q=golang", got)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	require.NoError(t, VietnamWorks().Validate())

	bad := testSite()
	bad.BaseURL = "/relative"
	require.Error(t, bad.Validate())

	bad = testSite()
	bad.LinkSelector = ""
	require.Error(t, bad.Validate())

	bad = testSite()
	bad.Fields = append(bad.Fields, FieldSelector{Name: "x"})
	require.Error(t, bad.Validate())
}

func TestDiscoverTraditionalSearch(t *testing.T) {
	t.Parallel()

	site := testSite()
	goURL, err := site.SearchURL("go", nil, nil)
	require.NoError(t, err)
	rustURL, err := site.SearchURL("rust", nil, nil)
	require.NoError(t, err)

	fetcher := &fakeFetcher{pages: map[string]string{goURL: searchGo, rustURL: searchRust}}
	c, err := New(site, Deps{Fetcher: fetcher})
	require.NoError(t, err)

	links, err := c.Discover(context.Background(), crawler.Query{Keywords: []string{"go", " ", "rust"}})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"https://jobs.example.com/job/1",
		"https://jobs.example.com/job/2",
		"https://jobs.example.com/job/3",
	}, links)
	assert.Len(t, fetcher.calls, 2)
}

func TestDiscoverPrefersSemanticSearch(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{}
	searcher := fakeSearcher{urls: []string{
		"https://jobs.example.com/job/9",
		"https://elsewhere.example.org/job/1",
		"https://jobs.example.com/job/9",
	}}
	c, err := New(testSite(), Deps{Fetcher: fetcher, Searcher: searcher})
	require.NoError(t, err)

	links, err := c.Discover(context.Background(), crawler.Query{Keywords: []string{"go"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"https://jobs.example.com/job/9"}, links)
	assert.Empty(t, fetcher.calls)
}

func TestDiscoverFallsBackWhenSemanticSearchFails(t *testing.T) {
	t.Parallel()

	site := testSite()
	goURL, err := site.SearchURL("go", nil, nil)
	require.NoError(t, err)
	fetcher := &fakeFetcher{pages: map[string]string{goURL: searchRust}}
	c, err := New(site, Deps{Fetcher: fetcher, Searcher: fakeSearcher{err: errors.New("quota")}})
	require.NoError(t, err)

	links, err := c.Discover(context.Background(), crawler.Query{Keywords: []string{"go"}})
	require.NoError(t, err)
	assert.Len(t, links, 2)
}

func TestDiscoverAllSearchPagesFail(t *testing.T) {
	t.Parallel()

	c, err := New(testSite(), Deps{Fetcher: &fakeFetcher{}})
	require.NoError(t, err)

	links, err := c.Discover(context.Background(), crawler.Query{Keywords: []string{"go"}})
	require.Error(t, err)
	assert.NotNil(t, links)
	assert.Empty(t, links)
}

func TestExtractSelectorFallback(t *testing.T) {
	t.Parallel()

	url := "https://jobs.example.com/job/1"
	fetcher := &fakeFetcher{pages: map[string]string{url: jobPage}}
	c, err := New(testSite(), Deps{Fetcher: fetcher, Extractor: fakeExtractor{err: errors.New("no json")}})
	require.NoError(t, err)

	rec, err := c.Extract(context.Background(), url)
	require.NoError(t, err)
	assert.Equal(t, []string{"job_title", "required_skills", "salary_range"}, rec.Keys())
	assert.Equal(t, "Senior Go Engineer", rec.Get("job_title"))
	assert.Equal(t, "Go, Kubernetes", rec.Get("required_skills"))
	assert.Empty(t, rec.Get("salary_range"))
}

func TestExtractPrefersSemanticExtraction(t *testing.T) {
	t.Parallel()

	url := "https://jobs.example.com/job/1"
	fetcher := &fakeFetcher{pages: map[string]string{url: jobPage}}
	want := crawler.RecordOf("job_title", "Go Engineer", "company_name", "Acme")
	c, err := New(testSite(), Deps{Fetcher: fetcher, Extractor: fakeExtractor{rec: want}})
	require.NoError(t, err)

	rec, err := c.Extract(context.Background(), url)
	require.NoError(t, err)
	assert.True(t, want.Equal(rec))
}

func TestExtractEmptyRecord(t *testing.T) {
	t.Parallel()

	url := "https://jobs.example.com/job/empty"
	fetcher := &fakeFetcher{pages: map[string]string{url: "<html><body><p>gone</p></body></html>"}}
	c, err := New(testSite(), Deps{Fetcher: fetcher})
	require.NoError(t, err)

	_, err = c.Extract(context.Background(), url)
	require.ErrorIs(t, err, crawler.ErrEmptyRecord)
}

func TestExtractFetchError(t *testing.T) {
	t.Parallel()

	c, err := New(testSite(), Deps{Fetcher: &fakeFetcher{}})
	require.NoError(t, err)

	_, err = c.Extract(context.Background(), "https://jobs.example.com/job/missing")
	var statusErr *crawler.StatusError
	require.ErrorAs(t, err, &statusErr)
}

func TestRegistry(t *testing.T) {
	t.Parallel()

	deps := Deps{Fetcher: &fakeFetcher{}}
	reg, err := Registry([]SiteConfig{VietnamWorks(), testSite()}, deps)
	require.NoError(t, err)
	assert.Len(t, reg, 2)
	assert.Contains(t, reg, "VietnamWorks")

	_, err = Registry([]SiteConfig{testSite(), testSite()}, deps)
	require.Error(t, err)

	_, err = Registry(nil, deps)
	require.Error(t, err)

	_, err = Registry([]SiteConfig{testSite()}, Deps{})
	require.Error(t, err)
}
