package sentiment

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"

	"score-trader/internal/logger"
)

// Service produces the sentiment sub-score for the short-side scorer,
// caching per symbol so a scan cycle never scrapes the same query twice.
type Service struct {
	scraper *Scraper
	enabled bool

	mu    sync.Mutex
	cache map[string]cached
	ttl   time.Duration
	now   func() time.Time
}

type cached struct {
	score   float64
	matched int
	at      time.Time
}

func NewService(enabled bool, sources ...string) *Service {
	return &Service{
		scraper: NewScraper(10*time.Second, sources...),
		enabled: enabled,
		cache:   make(map[string]cached),
		ttl:     time.Hour,
		now:     time.Now,
	}
}

// Score returns the [0,10] sentiment sub-score for a symbol, or nil when
// sentiment is disabled or no headline matched the lexicon. A nil return
// is a missing component; the scorer handles the confidence cut.
func (s *Service) Score(ctx context.Context, symbol string) *float64 {
	if !s.enabled {
		return nil
	}

	s.mu.Lock()
	if c, ok := s.cache[symbol]; ok && s.now().Sub(c.at) < s.ttl {
		s.mu.Unlock()
		return scoreOrNil(c.score, c.matched)
	}
	s.mu.Unlock()

	headlines := s.scraper.Scrape(ctx, queryFor(symbol), 10)
	score, matched := ScoreHeadlines(headlines)

	s.mu.Lock()
	s.cache[symbol] = cached{score: score, matched: matched, at: s.now()}
	s.mu.Unlock()

	logger.Debug(ctx, "Sentiment computed", "symbol", symbol, "score", score, "matched", matched)
	return scoreOrNil(score, matched)
}

func scoreOrNil(score float64, matched int) *float64 {
	if matched == 0 {
		return nil
	}
	return &score
}

// queryFor strips the quote suffix so the search term matches how the
// asset is written about, e.g. BTC-USD -> BTC.
func queryFor(symbol string) string {
	return strings.TrimSuffix(symbol, "-USD")
}

// ParseHeadlinesHTML extracts headline texts from a raw HTML document,
// one per container match, for pages fetched outside the crawler.
func ParseHeadlinesHTML(html, container, title string) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}
	var out []string
	doc.Find(container).Each(func(_ int, sel *goquery.Selection) {
		if t := strings.TrimSpace(sel.Find(title).First().Text()); t != "" {
			out = append(out, t)
		}
	})
	return out, nil
}
