package sentiment

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"

	"score-trader/internal/api"
	"score-trader/internal/logger"
)

// Headline is one scraped news headline.
type Headline struct {
	Title  string
	URL    string
	Source string
}

// Source defines a news source to crawl for headlines.
type Source struct {
	Name       string
	BaseURL    string
	SearchPath string // {query} is replaced with the search term
	Container  string
	Title      string
	Link       string
	RateLimit  time.Duration
}

func defaultSources() []Source {
	return []Source{
		{
			Name:       "CoinDesk",
			BaseURL:    "https://www.coindesk.com",
			SearchPath: "/search?s={query}",
			Container:  "div.searchstudio-results article",
			Title:      "h6, h5, h4",
			Link:       "a",
			RateLimit:  2 * time.Second,
		},
		{
			Name:       "YahooFinance",
			BaseURL:    "https://finance.yahoo.com",
			SearchPath: "/quote/{query}/news",
			Container:  "li.stream-item",
			Title:      "h3",
			Link:       "a",
			RateLimit:  2 * time.Second,
		},
	}
}

// Scraper crawls configured sources for headlines mentioning a symbol.
// Sources the crawler comes back empty from are refetched plainly and
// parsed directly.
type Scraper struct {
	sources []Source
	timeout time.Duration
	client  *api.Client
}

// NewScraper builds a scraper over the named sources, matched
// case-insensitively against the known source list. With no names every
// known source is crawled.
func NewScraper(timeout time.Duration, names ...string) *Scraper {
	all := defaultSources()
	client := api.NewClient(api.WithTimeout(timeout))
	if len(names) == 0 {
		return &Scraper{sources: all, timeout: timeout, client: client}
	}
	var picked []Source
	for _, src := range all {
		for _, n := range names {
			if strings.EqualFold(strings.ReplaceAll(n, "-", ""), src.Name) {
				picked = append(picked, src)
				break
			}
		}
	}
	return &Scraper{sources: picked, timeout: timeout, client: client}
}

// Scrape fetches up to maxHeadlines headlines per source for the query.
// A failing source is logged and skipped; partial results are fine.
func (s *Scraper) Scrape(ctx context.Context, query string, maxHeadlines int) []Headline {
	var all []Headline
	for _, src := range s.sources {
		headlines, err := s.scrapeSource(ctx, src, query, maxHeadlines)
		if err != nil || len(headlines) == 0 {
			headlines, err = s.fallbackSource(ctx, src, query, maxHeadlines)
		}
		if err != nil {
			logger.Warn(ctx, "Headline scrape failed", "source", src.Name, "query", query, "error", err)
			continue
		}
		all = append(all, headlines...)
		time.Sleep(src.RateLimit)
	}
	logger.Debug(ctx, "Headline scrape completed", "query", query, "headlines", len(all))
	return all
}

func (s *Scraper) scrapeSource(ctx context.Context, src Source, query string, max int) ([]Headline, error) {
	var headlines []Headline

	c := colly.NewCollector(
		colly.AllowedDomains(domainOf(src.BaseURL)),
		colly.MaxDepth(1),
		colly.Async(false),
	)
	c.SetRequestTimeout(s.timeout)
	c.OnRequest(func(r *colly.Request) {
		r.Headers.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	})

	c.OnHTML(src.Container, func(e *colly.HTMLElement) {
		if len(headlines) >= max {
			return
		}
		title := strings.TrimSpace(e.ChildText(src.Title))
		if title == "" {
			return
		}
		headlines = append(headlines, Headline{
			Title:  title,
			URL:    e.Request.AbsoluteURL(e.ChildAttr(src.Link, "href")),
			Source: src.Name,
		})
	})

	target := src.BaseURL + strings.ReplaceAll(src.SearchPath, "{query}", url.QueryEscape(query))
	if err := c.Visit(target); err != nil {
		return nil, err
	}
	c.Wait()
	return headlines, nil
}

// fallbackSource refetches the page with a plain browser-headed GET and
// parses the document directly, for sources the crawler cannot read.
func (s *Scraper) fallbackSource(ctx context.Context, src Source, query string, max int) ([]Headline, error) {
	target := src.BaseURL + strings.ReplaceAll(src.SearchPath, "{query}", url.QueryEscape(query))
	resp, err := s.client.GET(ctx, target, api.BrowserHeaders())
	if err != nil {
		return nil, err
	}
	return headlinesFromDocument(resp.String(), src, max), nil
}

// headlinesFromDocument runs a source's selectors over an already
// fetched document. Fallback headlines carry no link; scoring only
// reads titles.
func headlinesFromDocument(html string, src Source, max int) []Headline {
	titles, err := ParseHeadlinesHTML(html, src.Container, src.Title)
	if err != nil {
		return nil
	}
	if len(titles) > max {
		titles = titles[:max]
	}
	out := make([]Headline, 0, len(titles))
	for _, t := range titles {
		out = append(out, Headline{Title: t, Source: src.Name})
	}
	return out
}

func domainOf(baseURL string) string {
	u, err := url.Parse(baseURL)
	if err != nil {
		return ""
	}
	return u.Host
}
