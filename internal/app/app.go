// Package app wires acquisition, prompting, model invocation, parsing and
// delivery into one pipeline run.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/newspulse/newspulse/internal/brief"
	"github.com/newspulse/newspulse/internal/config"
	"github.com/newspulse/newspulse/internal/digest"
	"github.com/newspulse/newspulse/internal/fetch"
	"github.com/newspulse/newspulse/internal/gemini"
	"github.com/newspulse/newspulse/internal/logger"
	"github.com/newspulse/newspulse/internal/mail"
	"github.com/newspulse/newspulse/internal/metrics"
	"github.com/newspulse/newspulse/internal/news"
	"github.com/newspulse/newspulse/internal/newsapi"
	"github.com/newspulse/newspulse/internal/prompt"
	"github.com/newspulse/newspulse/internal/ratelimit"
	"github.com/newspulse/newspulse/internal/rss"
	"github.com/newspulse/newspulse/internal/search"
	"github.com/newspulse/newspulse/internal/storage"
)

// maxFeedItems caps how many feed entries are embedded in the prompt. The
// model picks ResultCount articles out of this pool.
const maxFeedItems = 30

// generationTimeout caps one analysis end to end, including the invoker's
// internal retries and model switches. Generous because agent conversations
// interleave search calls with streamed generation.
const generationTimeout = 5 * time.Minute

// dryRunFile is where a dry run leaves the rendered digest for inspection.
const dryRunFile = "digest_preview.html"

// ErrNoResults marks a run whose source produced nothing to digest. The run
// is skipped, not failed: a quiet news window is a normal outcome.
var ErrNoResults = errors.New("no source material acquired")

// App holds the long-lived components of the digest pipeline. One App serves
// every scheduled run of the process.
type App struct {
	cfg *config.Config

	invoker   *gemini.Invoker
	searcher  *search.Client
	fetcher   *fetch.Fetcher
	headlines *newsapi.Client
	briefer   *brief.Client
	store     Store
	limiter   *ratelimit.Limiter
	loc       *time.Location
}

// New builds the pipeline from configuration. Only the components the
// configured source mode needs are constructed.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		logger.Warn("unknown timezone, using UTC", "timezone", cfg.Timezone, "error", err)
		loc = time.UTC
	}

	store, err := newStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	a := &App{
		cfg:     cfg,
		store:   store,
		limiter: ratelimit.New(cfg.MaxModelCallsPerDay, cfg.MaxSearchCallsPerDay),
		loc:     loc,
	}

	if cfg.GoogleAPIKey != "" && cfg.SearchEngineID != "" {
		a.searcher = search.NewClient(cfg.GoogleAPIKey, cfg.SearchEngineID, cfg.RequestTimeout)
		// Identical queries within a run (or across quick re-runs) are
		// answered from memory instead of burning CSE quota.
		a.searcher.EnableMemo(time.Hour)
	}

	switch cfg.SourceMode {
	case config.ModeScrape:
		a.fetcher = fetch.New(cfg.RequestTimeout)
	case config.ModeHeadlines:
		a.headlines = newsapi.NewClient(cfg.NewsAPIKey, cfg.RequestTimeout)
		if cfg.OpenAIAPIKey != "" {
			a.briefer = brief.NewClient(cfg.OpenAIAPIKey)
		}
	}

	opts := gemini.Options{Chain: gemini.BuildChain(cfg.ModelChain)}
	if a.searcher != nil {
		opts.SearchTool = a.webSearch
	}
	invoker, err := gemini.NewInvoker(ctx, cfg.GeminiAPIKey, opts)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to create model client: %w", err)
	}
	a.invoker = invoker

	return a, nil
}

// Close releases the model client and the store.
func (a *App) Close() {
	if a.invoker != nil {
		if err := a.invoker.Close(); err != nil {
			logger.Warn("failed to close model client", "error", err)
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			logger.Warn("failed to close store", "error", err)
		}
	}
}

// Stats merges pipeline metrics, store counts and budget state for the
// monitoring endpoint.
func (a *App) Stats() map[string]interface{} {
	stats := metrics.Global.GetStats()
	if a.store != nil {
		for key, value := range a.store.Stats() {
			stats["store_"+key] = value
		}
	}
	if a.limiter != nil {
		stats["budget"] = a.limiter.GetStats()
	}
	return stats
}

// Run executes one full pipeline pass: acquire material, obtain the model's
// analysis, parse and validate it, and deliver the digest.
func (a *App) Run(ctx context.Context) error {
	start := time.Now()
	logger.Info("pipeline run starting", "mode", a.cfg.SourceMode)

	err := a.run(ctx)
	metrics.Global.RecordRunDuration(time.Since(start))
	switch {
	case errors.Is(err, ratelimit.ErrBudgetExhausted):
		// Running out of budget is a scheduling outcome, not a failure.
		// The next day's reset will let the pipeline through again.
		logger.Warn("daily call budget exhausted, skipping run", "error", err)
		metrics.Global.IncrementEmailsSkipped()
		err = nil
	case errors.Is(err, ErrNoResults):
		logger.Warn("no source material this run, skipping delivery", "error", err)
		metrics.Global.IncrementEmailsSkipped()
		err = nil
	}
	if err != nil {
		metrics.Global.SetError(err.Error())
		logger.Error("pipeline run failed", "error", err)
		return err
	}
	metrics.Global.SetLastRun()
	logger.Info("pipeline run finished", "duration", time.Since(start).String())
	return nil
}

func (a *App) run(ctx context.Context) error {
	now := time.Now().In(a.loc)

	material, resolveURL, err := a.acquire(ctx, now)
	if err != nil {
		return fmt.Errorf("acquisition failed: %w", err)
	}

	task := a.task()
	promptText := prompt.Build(task, material, a.cfg.ResultCount, now, a.lookback())

	raw, err := a.analysis(ctx, task, promptText)
	if err != nil {
		return err
	}

	records := news.ParseRecords(raw)
	if news.IsPlaceholder(records) {
		logger.Warn("model produced no usable records, skipping delivery")
		metrics.Global.IncrementEmailsSkipped()
		return nil
	}

	records = a.filterKeywords(records)
	if len(records) == 0 {
		logger.Info("no records left after keyword filter, skipping delivery")
		metrics.Global.IncrementEmailsSkipped()
		return nil
	}

	fresh := a.dropAlreadySent(records)
	if len(fresh) == 0 {
		logger.Info("every record was already delivered, skipping email")
		metrics.Global.IncrementEmailsSkipped()
		return nil
	}

	html, err := digest.Render(nil, fresh, a.loc, resolveURL)
	if err != nil {
		return fmt.Errorf("failed to render digest: %w", err)
	}
	subject, err := digest.Subject(nil, now)
	if err != nil {
		return fmt.Errorf("failed to render subject: %w", err)
	}

	if err := a.deliver(subject, html, len(fresh)); err != nil {
		return err
	}

	a.markSent(fresh)
	if err := a.store.Cleanup(); err != nil {
		logger.Warn("store cleanup failed", "error", err)
	}
	return nil
}

func (a *App) task() prompt.Task {
	switch a.cfg.SourceMode {
	case config.ModeScrape:
		return prompt.TaskExtract
	case config.ModeAgent:
		return prompt.TaskAgent
	default:
		return prompt.TaskDigest
	}
}

func (a *App) lookback() time.Duration {
	return time.Duration(a.cfg.LookbackHours) * time.Hour
}

// acquire gathers source material for the prompt. The returned resolver is
// non-nil only in scrape mode, where article links may be relative to the
// scraped site.
func (a *App) acquire(ctx context.Context, now time.Time) (string, func(string) string, error) {
	switch a.cfg.SourceMode {
	case config.ModeAgent:
		// The model acquires its own material through the search tool.
		return "", nil, nil

	case config.ModeSearch:
		query := prompt.SearchQuery(now, a.lookback(), a.cfg.SourceList())
		results, err := a.searchResults(ctx, query, a.cfg.ResultCount)
		if err != nil {
			return "", nil, err
		}
		if len(results) == 0 {
			return "", nil, fmt.Errorf("%w: search returned nothing for %q", ErrNoResults, query)
		}
		return search.FormatResults(query, results), nil, nil

	case config.ModeScrape:
		site := fetch.SiteReuters
		html, err := a.fetcher.FrontPage(ctx, site)
		if err != nil {
			logger.Warn("reuters front page failed, trying bloomberg", "error", err)
			site = fetch.SiteBloomberg
			html, err = a.fetcher.FrontPage(ctx, site)
		}
		if err != nil {
			return "", nil, fmt.Errorf("every site failed: %w", err)
		}
		resolve := func(raw string) string { return fetch.AbsoluteURL(site, raw) }
		return html, resolve, nil

	case config.ModeRSS:
		feeds, err := rss.LoadFeeds(a.cfg.FeedsConfigPath)
		if err != nil {
			return "", nil, err
		}
		items := rss.FilterRecent(rss.FetchAllFeeds(ctx, feeds), a.lookback())
		items = a.filterFeedItems(items)
		if len(items) == 0 {
			return "", nil, fmt.Errorf("%w: no fresh feed items within the last %d hours", ErrNoResults, a.cfg.LookbackHours)
		}
		metrics.Global.AddItemsAcquired(len(items))
		return rss.FormatItems(items, maxFeedItems), nil, nil

	case config.ModeHeadlines:
		articles, err := a.fetchHeadlines(ctx, now)
		if err != nil {
			return "", nil, err
		}
		metrics.Global.AddItemsAcquired(len(articles))
		a.briefHeadlines(ctx, articles)
		return newsapi.FormatArticles(articles, 0), nil, nil
	}
	return "", nil, fmt.Errorf("unknown source mode %q", a.cfg.SourceMode)
}

// webSearch feeds the model's search tool. Zero results are formatted as-is
// so the model can react to an empty result set in conversation.
func (a *App) webSearch(ctx context.Context, query string, maxResults int) (string, error) {
	results, err := a.searchResults(ctx, query, maxResults)
	if err != nil {
		return "", err
	}
	return search.FormatResults(query, results), nil
}

// searchResults is the single gate for Custom Search calls, shared by
// search-mode acquisition and the model's tool calls.
func (a *App) searchResults(ctx context.Context, query string, maxResults int) ([]search.Result, error) {
	if err := a.limiter.UseSearch(); err != nil {
		return nil, err
	}
	metrics.Global.IncrementSearchQueries()

	results, err := a.searcher.Search(ctx, query, maxResults)
	if err != nil {
		return nil, err
	}
	metrics.Global.AddItemsAcquired(len(results))
	return results, nil
}

// fetchHeadlines prefers the time-windowed everything endpoint and falls back
// to top headlines, which free-tier keys can always reach.
func (a *App) fetchHeadlines(ctx context.Context, now time.Time) ([]newsapi.Article, error) {
	articles, err := a.headlines.Everything(ctx, a.cfg.NewsSources, now.Add(-a.lookback()), now, a.cfg.ResultCount)
	if err != nil || len(articles) == 0 {
		if err != nil {
			logger.Warn("everything endpoint failed, falling back to top headlines", "error", err)
		}
		articles, err = a.headlines.TopHeadlines(ctx, a.cfg.NewsSources, a.cfg.ResultCount)
	}
	if err != nil {
		return nil, fmt.Errorf("headlines fetch failed: %w", err)
	}
	if len(articles) == 0 {
		return nil, fmt.Errorf("%w: headlines API returned no articles", ErrNoResults)
	}
	return articles, nil
}

// briefHeadlines rewrites article descriptions into one-line Chinese briefs
// when an OpenAI key is configured. Failures leave the original description.
func (a *App) briefHeadlines(ctx context.Context, articles []newsapi.Article) {
	if a.briefer == nil {
		return
	}
	for i := range articles {
		text := articles[i].Description
		if text == "" {
			text = articles[i].Content
		}
		if text == "" {
			continue
		}
		summary, err := a.briefer.Summarize(ctx, text)
		if err != nil {
			logger.Warn("headline brief failed", "title", articles[i].Title, "error", err)
			continue
		}
		articles[i].Description = summary
	}
}

// analysis returns the model's raw response for the prompt, serving it from
// the store when the identical material was analyzed before.
func (a *App) analysis(ctx context.Context, task prompt.Task, promptText string) (string, error) {
	contentHash := storage.ContentHash(promptText)
	if cached, ok := a.store.GetAnalysis(contentHash); ok {
		logger.Info("analysis served from cache", "use_count", cached.UseCount)
		return cached.Output, nil
	}

	if err := a.limiter.UseModel(); err != nil {
		return "", err
	}

	emit := func(chunk string) {
		logger.Debug("model chunk", "bytes", len(chunk))
	}

	genCtx, cancel := context.WithTimeout(ctx, generationTimeout)
	defer cancel()

	var raw string
	var err error
	if task == prompt.TaskAgent {
		raw, err = a.invoker.Converse(genCtx, promptText, emit)
	} else {
		raw, err = a.invoker.GenerateStream(genCtx, promptText, emit)
	}
	if err != nil {
		return "", fmt.Errorf("model invocation failed: %w", err)
	}

	err = a.store.SetAnalysis(storage.CachedAnalysis{
		ContentHash: contentHash,
		Model:       "gemini",
		Output:      raw,
	})
	if err != nil {
		logger.Warn("failed to cache analysis", "error", err)
	}
	return raw, nil
}

// filterFeedItems keeps feed entries matching the configured keywords, so
// the prompt material stays on topic before the model ever sees it.
func (a *App) filterFeedItems(items []*gofeed.Item) []*gofeed.Item {
	if len(a.cfg.Keywords) == 0 {
		return items
	}
	kept := items[:0:0]
	for _, item := range items {
		if news.MatchesKeywords(item.Title+" "+item.Description, a.cfg.Keywords) {
			kept = append(kept, item)
		}
	}
	return kept
}

// filterKeywords drops records that match none of the configured keywords.
// With no keywords configured, everything passes.
func (a *App) filterKeywords(records []news.Record) []news.Record {
	if len(a.cfg.Keywords) == 0 {
		return records
	}
	kept := records[:0:0]
	for _, record := range records {
		text := record.Title.EN + " " + record.Title.ZH + " " +
			record.Description.EN + " " + record.Description.ZH
		if news.MatchesKeywords(text, a.cfg.Keywords) {
			kept = append(kept, record)
		}
	}
	return kept
}

// dropAlreadySent removes records delivered within the dedup TTL.
func (a *App) dropAlreadySent(records []news.Record) []news.Record {
	fresh := records[:0:0]
	for _, record := range records {
		hash := storage.ArticleHash(record.Title.EN, record.URL)
		if a.store.IsAlreadySent(hash) {
			logger.Debug("skipping already delivered article", "title", record.Title.EN)
			metrics.Global.IncrementDuplicatesSkipped()
			continue
		}
		fresh = append(fresh, record)
	}
	return fresh
}

// deliver sends the digest, or writes it to disk on a dry run.
func (a *App) deliver(subject, html string, count int) error {
	if a.cfg.DryRun {
		if err := os.WriteFile(dryRunFile, []byte(html), 0644); err != nil {
			return fmt.Errorf("failed to write preview: %w", err)
		}
		logger.Info("dry run, digest written to file", "path", dryRunFile, "articles", count)
		return nil
	}

	settings := mail.Settings{
		Host:       a.cfg.SMTPHost,
		Port:       a.cfg.SMTPPort,
		Username:   a.cfg.SMTPUser,
		Password:   a.cfg.SMTPPass,
		SenderName: a.cfg.SMTPSenderName,
		To:         a.cfg.ToEmail,
	}
	if err := mail.Send(settings, subject, html); err != nil {
		return err
	}
	metrics.Global.IncrementEmailsSent()
	logger.Info("digest delivered", "articles", count, "to", a.cfg.ToEmail)
	return nil
}

// markSent records every delivered article; failures are logged, not fatal,
// since the email is already out.
func (a *App) markSent(records []news.Record) {
	for _, record := range records {
		article := storage.SentArticle{
			Hash:   storage.ArticleHash(record.Title.EN, record.URL),
			Title:  record.Title.EN,
			Link:   record.URL,
			Source: a.cfg.SourceMode,
		}
		if err := a.store.MarkAsSent(article); err != nil {
			logger.Warn("failed to record delivery", "title", record.Title.EN, "error", err)
		}
	}
}
