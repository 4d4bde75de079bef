// Package scraper fetches candidates from plain HTML index pages for
// sources that publish no feed. It extracts headline links with goquery
// and leaves body extraction to the content enhancer.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/sony/gobreaker"

	"briefcast/internal/config"
	"briefcast/internal/domain/entity"
	"briefcast/internal/resilience/circuitbreaker"
	"briefcast/internal/resilience/classify"
	"briefcast/internal/resilience/retry"
)

// maxIndexBodySize bounds the fetched index page.
const maxIndexBodySize = 5 * 1024 * 1024

// headlineSelectors are tried in order until one yields links.
var headlineSelectors = []string{
	"article a[href]",
	"h2 a[href], h3 a[href]",
	"main a[href]",
}

// HTMLIndexScraper retrieves candidates from an HTML index page, with
// circuit breaker and local retry.
type HTMLIndexScraper struct {
	client         *http.Client
	circuitBreaker *circuitbreaker.CircuitBreaker
	retryConfig    retry.Config
	enhancer       ContentFetcher
}

// ContentFetcher fills candidate bodies from article pages. Implemented
// by the fetcher package's content enhancer.
type ContentFetcher interface {
	FetchContent(ctx context.Context, url string) (string, error)
}

// NewHTMLIndexScraper creates a scraper. enhancer may be nil; candidates
// then carry only titles and links.
func NewHTMLIndexScraper(client *http.Client, enhancer ContentFetcher) *HTMLIndexScraper {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTMLIndexScraper{
		client:         client,
		circuitBreaker: circuitbreaker.New(circuitbreaker.FeedFetchConfig()),
		retryConfig:    retry.DefaultConfig(),
		enhancer:       enhancer,
	}
}

// Fetch retrieves and parses one index page into candidates.
func (s *HTMLIndexScraper) Fetch(ctx context.Context, source config.SourceConfig) ([]entity.Candidate, error) {
	var candidates []entity.Candidate

	retryErr := retry.WithBackoff(ctx, s.retryConfig, func() error {
		cbResult, err := s.circuitBreaker.Execute(func() (interface{}, error) {
			return s.doFetch(ctx, source)
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) {
				slog.Warn("index scraper circuit breaker open, request rejected",
					slog.String("source", source.Name),
					slog.String("state", s.circuitBreaker.State().String()))
			}
			return err
		}
		candidates = cbResult.([]entity.Candidate)
		return nil
	})
	if retryErr != nil {
		return nil, retryErr
	}
	return candidates, nil
}

func (s *HTMLIndexScraper) doFetch(ctx context.Context, source config.SourceConfig) ([]entity.Candidate, error) {
	base, err := url.Parse(source.URL)
	if err != nil {
		return nil, fmt.Errorf("parse source URL: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "BriefcastBot")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, &classify.HTTPError{StatusCode: resp.StatusCode, Message: source.URL}
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxIndexBodySize))
	if err != nil {
		return nil, fmt.Errorf("parse index page: %w", err)
	}

	links := s.extractLinks(doc, base)
	candidates := make([]entity.Candidate, 0, len(links))
	for _, link := range links {
		c := entity.Candidate{
			Title:      link.title,
			URL:        link.href,
			SourceName: source.Name,
		}
		if !link.published.IsZero() {
			c.PublishedAt = link.published
		}
		if s.enhancer != nil {
			if body, err := s.enhancer.FetchContent(ctx, link.href); err == nil {
				c.Body = body
			} else {
				slog.Debug("index candidate body fetch failed",
					slog.String("url", link.href),
					slog.Any("error", err))
			}
		}
		if err := c.Validate(); err != nil {
			continue
		}
		candidates = append(candidates, c)
	}
	return candidates, nil
}

type indexLink struct {
	title     string
	href      string
	published time.Time
}

// extractLinks tries each headline selector in order and keeps the first
// selector that yields links. URLs resolve against the page URL and
// duplicates are dropped.
func (s *HTMLIndexScraper) extractLinks(doc *goquery.Document, base *url.URL) []indexLink {
	for _, selector := range headlineSelectors {
		var links []indexLink
		seen := make(map[string]struct{})

		doc.Find(selector).Each(func(_ int, sel *goquery.Selection) {
			href, ok := sel.Attr("href")
			if !ok {
				return
			}
			title := strings.TrimSpace(sel.Text())
			if title == "" || len(title) < 10 {
				return
			}

			ref, err := url.Parse(href)
			if err != nil {
				return
			}
			abs := base.ResolveReference(ref)
			if abs.Scheme != "http" && abs.Scheme != "https" {
				return
			}
			key := abs.String()
			if _, dup := seen[key]; dup {
				return
			}
			seen[key] = struct{}{}

			links = append(links, indexLink{
				title:     title,
				href:      key,
				published: nearestTimestamp(sel),
			})
		})

		if len(links) > 0 {
			return links
		}
	}
	return nil
}

// nearestTimestamp looks for a <time datetime> element near the link.
func nearestTimestamp(sel *goquery.Selection) time.Time {
	t := sel.Closest("article, li, div").Find("time[datetime]").First()
	datetime, ok := t.Attr("datetime")
	if !ok {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if parsed, err := time.Parse(layout, datetime); err == nil {
			return parsed
		}
	}
	return time.Time{}
}
