// Package fetch pulls news front pages over plain HTTP and cuts them down to
// the region that actually carries headlines, so the model prompt is not
// padded with navigation chrome and footer markup.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/newspulse/newspulse/internal/logger"
	"github.com/newspulse/newspulse/internal/retry"
)

// Site identifies a supported front page.
type Site string

const (
	SiteReuters   Site = "reuters"
	SiteBloomberg Site = "bloomberg"
)

var siteOrigins = map[Site]string{
	SiteReuters:   "https://www.reuters.com",
	SiteBloomberg: "https://www.bloomberg.com",
}

// Served without these the sites answer with a bot wall.
var browserHeaders = map[string]string{
	"User-Agent":                "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36",
	"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8,application/signed-exchange;v=b3;q=0.7",
	"Accept-Language":           "en-US,en;q=0.9",
	"Connection":                "keep-alive",
	"Upgrade-Insecure-Requests": "1",
	"Sec-Fetch-Dest":            "document",
	"Sec-Fetch-Mode":            "navigate",
	"Sec-Fetch-Site":            "none",
	"Sec-Fetch-User":            "?1",
	"Cache-Control":             "max-age=0",
	"DNT":                       "1",
}

// Fetcher downloads and trims front pages.
type Fetcher struct {
	httpClient *http.Client
	urls       map[Site]string
}

// New builds a fetcher. The timeout bounds each page download.
func New(timeout time.Duration) *Fetcher {
	urls := make(map[Site]string, len(siteOrigins))
	for site, origin := range siteOrigins {
		urls[site] = origin + "/"
	}
	return &Fetcher{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		urls: urls,
	}
}

type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.code)
}

// Transient upstream trouble is worth another attempt, client-side
// rejections (403 bot wall, 404) are not.
func retryableStatus(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		switch se.code {
		case http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout:
			return true
		}
		return false
	}
	return true
}

// FrontPage downloads the site's front page and returns the trimmed headline
// HTML. Transient failures are retried with a growing delay.
func (f *Fetcher) FrontPage(ctx context.Context, site Site) (string, error) {
	pageURL, ok := f.urls[site]
	if !ok {
		return "", fmt.Errorf("unknown site: %s", site)
	}

	var content string
	err := retry.WithRetry(ctx, retry.Config{
		MaxAttempts: 3,
		Delay:       time.Second,
		Backoff:     true,
		Retryable:   retryableStatus,
	}, func() error {
		var fetchErr error
		content, fetchErr = f.fetchOnce(ctx, site, pageURL)
		return fetchErr
	})
	if err != nil {
		return "", fmt.Errorf("failed to fetch %s front page: %w", site, err)
	}

	logger.Info("front page fetched", "site", string(site), "content_length", len(content))
	return content, nil
}

func (f *Fetcher) fetchOnce(ctx context.Context, site Site, pageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", err
	}
	for key, value := range browserHeaders {
		req.Header.Set(key, value)
	}
	if site == SiteBloomberg {
		// Pins the edition so the headline markup is stable.
		req.Header.Set("Cookie", `geo_info={"country":"US","region":"CA"}`)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &statusError{code: resp.StatusCode}
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to parse page: %w", err)
	}

	switch site {
	case SiteBloomberg:
		return extractBloomberg(doc)
	default:
		return extractReuters(doc)
	}
}

// extractReuters keeps the first five <section> blocks inside <main>, which
// is where the site lays out its headline groups. Missing markup degrades to
// progressively larger regions instead of failing.
func extractReuters(doc *goquery.Document) (string, error) {
	main := doc.Find("main").First()
	if main.Length() > 0 {
		sections := main.Find("section")
		if sections.Length() > 0 {
			var b strings.Builder
			sections.EachWithBreak(func(i int, s *goquery.Selection) bool {
				if i >= 5 {
					return false
				}
				if html, err := goquery.OuterHtml(s); err == nil {
					b.WriteString(html)
				}
				return true
			})
			return b.String(), nil
		}
		return goquery.OuterHtml(main)
	}

	body := doc.Find("body").First()
	if body.Length() > 0 {
		return goquery.OuterHtml(body)
	}
	return doc.Html()
}

// extractBloomberg tries the known headline containers and strips inline
// scripts and styles, which dominate the raw page.
func extractBloomberg(doc *goquery.Document) (string, error) {
	content := doc.Find("main").First()
	if content.Length() == 0 {
		content = doc.Find("div.top-news-v3").First()
	}
	if content.Length() == 0 {
		content = doc.Find("div.single-story-module").First()
	}
	if content.Length() == 0 {
		content = doc.Find("body").First()
	}
	if content.Length() == 0 {
		return doc.Html()
	}

	content.Find("script").Remove()
	content.Find("style").Remove()
	return goquery.OuterHtml(content)
}

// AbsoluteURL resolves a link lifted from a front page against the site it
// was scraped from. Already-absolute links pass through unchanged.
func AbsoluteURL(site Site, raw string) string {
	if raw == "" || strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		return raw
	}
	origin, ok := siteOrigins[site]
	if !ok {
		return raw
	}
	return origin + "/" + strings.TrimLeft(raw, "/")
}
