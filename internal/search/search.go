// Package search fetches web results from the DuckDuckGo HTML endpoint and
// scrapes pages for their visible text.
package search

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/sync/errgroup"

	"github.com/guilhermeleaosoares/llm-council/internal/models"
)

const (
	// DefaultURL is the DuckDuckGo HTML search endpoint.
	DefaultURL = "https://html.duckduckgo.com/html/"

	// RequestTimeout bounds each HTTP request.
	RequestTimeout = 20 * time.Second

	// MaxResults is the cap for a plain search.
	MaxResults = 8

	// MaxDeepResults is the cap per sub-query of a deep search.
	MaxDeepResults = 10

	// UserAgent mimics a desktop browser; the HTML endpoint rejects bots.
	UserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36"

	maxAttempts = 2
)

// DeepResult is the outcome of a multi-query search.
type DeepResult struct {
	Results []models.SearchResult `json:"results"`
	Queries []string              `json:"queries"`
}

// Page is a scraped web page.
type Page struct {
	Title string `json:"title"`
	URL   string `json:"url"`
	Text  string `json:"text"`
}

// Searcher runs web searches. The zero value is not usable; use New.
type Searcher struct {
	BaseURL    string
	HTTPClient *http.Client
	RetryDelay time.Duration

	cache *Cache
}

// New creates a searcher against baseURL (DefaultURL when empty) whose
// results are cached for ttl.
func New(baseURL string, client *http.Client, ttl time.Duration) *Searcher {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	if client == nil {
		client = &http.Client{Timeout: RequestTimeout}
	}
	return &Searcher{
		BaseURL:    baseURL,
		HTTPClient: client,
		RetryDelay: 2 * time.Second,
		cache:      NewCache(ttl),
	}
}

// Variations returns the sub-queries used by DeepSearch.
func Variations(query string) []string {
	return []string{
		query,
		query + " latest research",
		query + " expert analysis",
		query + " pros cons",
		query + " examples use cases",
		query + " comparison alternatives",
	}
}

// Search returns up to MaxResults hits for query.
func (s *Searcher) Search(ctx context.Context, query string) ([]models.SearchResult, error) {
	return s.searchOne(ctx, query, MaxResults, "")
}

// DeepSearch runs the query variations (or subQueries when given) in
// parallel and merges the hits, dropping duplicate URLs. A failing
// sub-query contributes no results.
func (s *Searcher) DeepSearch(ctx context.Context, query string, subQueries []string) (*DeepResult, error) {
	queries := subQueries
	if len(queries) == 0 {
		queries = Variations(query)
	}

	perQuery := make([][]models.SearchResult, len(queries))
	g, gctx := errgroup.WithContext(ctx)
	for i, q := range queries {
		i, q := i, q
		g.Go(func() error {
			results, err := s.searchOne(gctx, q, MaxDeepResults, q)
			if err != nil {
				log.Printf("[search] Deep search sub-query %q failed: %v", q, err)
				return nil
			}
			perQuery[i] = results
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	total := 0
	seen := make(map[string]bool)
	deduped := make([]models.SearchResult, 0)
	for _, results := range perQuery {
		total += len(results)
		for _, r := range results {
			key := NormalizeURL(r.URL)
			if seen[key] {
				continue
			}
			seen[key] = true
			deduped = append(deduped, r)
		}
	}

	log.Printf("[search] Deep search: %d queries => %d results => %d unique", len(queries), total, len(deduped))
	return &DeepResult{Results: deduped, Queries: queries}, nil
}

// NormalizeURL strips the scheme, a leading www. and a trailing slash.
func NormalizeURL(raw string) string {
	u := strings.TrimSuffix(raw, "/")
	for _, prefix := range []string{"https://", "http://"} {
		if strings.HasPrefix(u, prefix) {
			u = strings.TrimPrefix(u, prefix)
			break
		}
	}
	return strings.TrimPrefix(u, "www.")
}

func (s *Searcher) searchOne(ctx context.Context, query string, limit int, source string) ([]models.SearchResult, error) {
	cacheKey := fmt.Sprintf("%d|%s|%s", limit, source, query)
	if cached, ok := s.cache.Get(cacheKey); ok {
		return cached, nil
	}

	endpoint := s.BaseURL
	sep := "?"
	if strings.Contains(endpoint, "?") {
		sep = "&"
	}
	endpoint += sep + "q=" + url.QueryEscape(query)

	doc, err := s.fetch(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	results := ParseResults(doc, limit)
	for i := range results {
		results[i].Source = source
	}
	s.cache.Set(cacheKey, results)
	return results, nil
}

// ParseResults extracts up to limit hits from a DuckDuckGo results page.
// Snippets are paired with titles in document order.
func ParseResults(doc *goquery.Document, limit int) []models.SearchResult {
	results := make([]models.SearchResult, 0)
	doc.Find("a.result__a").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		if len(results) >= limit {
			return false
		}
		href, _ := sel.Attr("href")
		results = append(results, models.SearchResult{
			Title: strings.TrimSpace(sel.Text()),
			URL:   unwrapRedirect(href),
		})
		return true
	})

	doc.Find("a.result__snippet").EachWithBreak(func(i int, sel *goquery.Selection) bool {
		if i >= len(results) {
			return false
		}
		results[i].Snippet = strings.TrimSpace(sel.Text())
		return true
	})

	return results
}

// unwrapRedirect extracts the target of a DuckDuckGo /l/?uddg= redirect.
func unwrapRedirect(href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if target := u.Query().Get("uddg"); target != "" {
		return target
	}
	return href
}

// Scrape fetches rawURL and returns its title and visible text.
func (s *Searcher) Scrape(ctx context.Context, rawURL string) (*Page, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("invalid url %q", rawURL)
	}

	doc, err := s.fetch(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())
	if title == "" {
		title = rawURL
	}

	doc.Find("script, style, noscript").Remove()
	root := doc.Find("body")
	if root.Length() == 0 {
		root = doc.Selection
	}
	text := strings.Join(strings.Fields(root.Text()), " ")

	return &Page{Title: title, URL: rawURL, Text: text}, nil
}

// fetch GETs target with browser headers and parses the HTML.
func (s *Searcher) fetch(ctx context.Context, target string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")

	var resp *http.Response
	for attempt := 0; attempt < maxAttempts; attempt++ {
		resp, err = s.HTTPClient.Do(req)
		if err == nil || ctx.Err() != nil {
			break
		}
		if attempt < maxAttempts-1 {
			log.Printf("[search] Attempt %d failed, retrying in %s: %v", attempt+1, s.RetryDelay, err)
			select {
			case <-ctx.Done():
			case <-time.After(s.RetryDelay):
			}
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	return doc, nil
}

// MaxContextResults caps how many hits are folded into a prompt.
const MaxContextResults = 60

// ContextBlock renders results as the block appended to the final user turn.
// deep selects the deep-search heading and instruction. Empty results render
// as "".
func ContextBlock(results []models.SearchResult, deep bool) string {
	if len(results) == 0 {
		return ""
	}
	total := len(results)
	if total > MaxContextResults {
		results = results[:MaxContextResults]
	}

	entries := make([]string, len(results))
	for i, r := range results {
		entries[i] = fmt.Sprintf("%d. [%s](%s)\n   %s", i+1, r.Title, r.URL, r.Snippet)
	}

	var b strings.Builder
	if deep {
		fmt.Fprintf(&b, "--- Deep Web Search Results (%d sources) ---\n", total)
	} else {
		b.WriteString("--- Web Search Results ---\n")
	}
	b.WriteString(strings.Join(entries, "\n\n"))
	b.WriteString("\n--- End Search Results ---\n\n")
	if deep {
		b.WriteString("Use the search results above to inform your response. Cite sources with linked titles. Be thorough and comprehensive.")
	} else {
		b.WriteString("Use the search results above to inform your response. Cite sources with linked titles when relevant.")
	}
	return b.String()
}
