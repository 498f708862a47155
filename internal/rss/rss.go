// Package rss aggregates items from a configured list of feeds for the rss
// source mode.
package rss

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"gopkg.in/yaml.v3"

	"github.com/newspulse/newspulse/internal/logger"
)

const perFeedTimeout = 15 * time.Second

// FeedsConfig is the YAML config structure:
//
//	feeds:
//	  - https://...
type FeedsConfig struct {
	Feeds []string `yaml:"feeds"`
}

// LoadFeeds reads the RSS feed list from a YAML file.
func LoadFeeds(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg FeedsConfig
	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse feeds config: %w", err)
	}
	if len(cfg.Feeds) == 0 {
		return nil, fmt.Errorf("feeds config %s lists no feeds", path)
	}
	return cfg.Feeds, nil
}

// FetchAllFeeds downloads and parses every feed. A broken feed is logged and
// skipped so one dead source never empties the whole run.
func FetchAllFeeds(ctx context.Context, urls []string) []*gofeed.Item {
	parser := gofeed.NewParser()
	var allItems []*gofeed.Item
	successCount := 0

	for _, u := range urls {
		feedCtx, cancel := context.WithTimeout(ctx, perFeedTimeout)
		feed, err := parser.ParseURLWithContext(u, feedCtx)
		cancel()
		if err != nil {
			logger.Warn("failed to parse feed", "url", u, "error", err)
			continue
		}
		allItems = append(allItems, feed.Items...)
		successCount++
		logger.Debug("feed loaded", "url", u, "items", len(feed.Items))
	}

	logger.Info("feeds processed", "ok", successCount, "total", len(urls), "items", len(allItems))
	return allItems
}

// FilterRecent keeps items published inside the lookback window. Items whose
// publish time did not parse are kept, dropping them would silently lose
// stories from sloppy feeds.
func FilterRecent(items []*gofeed.Item, lookback time.Duration) []*gofeed.Item {
	cutoff := time.Now().Add(-lookback)
	recent := make([]*gofeed.Item, 0, len(items))
	for _, item := range items {
		if item.PublishedParsed != nil && item.PublishedParsed.Before(cutoff) {
			continue
		}
		recent = append(recent, item)
	}
	return recent
}

var tagPattern = regexp.MustCompile(`<[^>]*>`)

// FormatItems renders feed items as the numbered block embedded in prompts.
// At most max items are included; max <= 0 means no limit.
func FormatItems(items []*gofeed.Item, max int) string {
	if len(items) == 0 {
		return "未获取到RSS新闻"
	}
	if max > 0 && len(items) > max {
		items = items[:max]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "### RSS新闻（共%d条）\n\n", len(items))
	for i, item := range items {
		fmt.Fprintf(&b, "%d. **%s**\n", i+1, strings.TrimSpace(item.Title))
		if item.Published != "" {
			fmt.Fprintf(&b, "   发布时间: %s\n", item.Published)
		}
		if desc := stripTags(item.Description); desc != "" {
			fmt.Fprintf(&b, "   %s\n", desc)
		}
		fmt.Fprintf(&b, "   链接: %s\n\n", item.Link)
	}
	return b.String()
}

func stripTags(s string) string {
	s = tagPattern.ReplaceAllString(s, " ")
	s = strings.Join(strings.Fields(s), " ")
	return strings.TrimSpace(s)
}
