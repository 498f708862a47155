package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/newspulse/newspulse/internal/config"
	"github.com/newspulse/newspulse/internal/news"
	"github.com/newspulse/newspulse/internal/prompt"
	"github.com/newspulse/newspulse/internal/ratelimit"
	"github.com/newspulse/newspulse/internal/search"
	"github.com/newspulse/newspulse/internal/storage"
)

// fakeStore keeps pipeline state in memory and records interactions.
type fakeStore struct {
	sent     map[string]bool
	marked   []storage.SentArticle
	analyses map[string]storage.CachedAnalysis
	cleanups int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		sent:     make(map[string]bool),
		analyses: make(map[string]storage.CachedAnalysis),
	}
}

func (f *fakeStore) IsAlreadySent(hash string) bool { return f.sent[hash] }

func (f *fakeStore) MarkAsSent(article storage.SentArticle) error {
	f.marked = append(f.marked, article)
	f.sent[article.Hash] = true
	return nil
}

func (f *fakeStore) GetAnalysis(contentHash string) (storage.CachedAnalysis, bool) {
	item, ok := f.analyses[contentHash]
	return item, ok
}

func (f *fakeStore) SetAnalysis(item storage.CachedAnalysis) error {
	f.analyses[item.ContentHash] = item
	return nil
}

func (f *fakeStore) Cleanup() error { f.cleanups++; return nil }

func (f *fakeStore) Stats() map[string]int {
	return map[string]int{"sent_articles": len(f.sent)}
}

func (f *fakeStore) Close() error { return nil }

func testApp(cfg *config.Config, store Store) *App {
	return &App{
		cfg:     cfg,
		store:   store,
		limiter: ratelimit.New(0, 0),
		loc:     time.UTC,
	}
}

func record(titleEN, titleZH, descEN, url string) news.Record {
	return news.Record{
		Title:       news.Bilingual{EN: titleEN, ZH: titleZH},
		Description: news.Bilingual{EN: descEN, ZH: "描述"},
		URL:         url,
		Analysis: news.Analysis{
			Overview: news.Bilingual{EN: "o", ZH: "概"},
			Impact:   news.Bilingual{EN: "i", ZH: "响"},
		},
	}
}

func TestDropAlreadySent(t *testing.T) {
	store := newFakeStore()
	a := testApp(&config.Config{SourceMode: config.ModeSearch}, store)

	old := record("Old Story", "旧闻", "seen before", "https://example.com/old")
	fresh := record("Fresh Story", "新闻", "never sent", "https://example.com/fresh")
	store.sent[storage.ArticleHash(old.Title.EN, old.URL)] = true

	kept := a.dropAlreadySent([]news.Record{old, fresh})
	if len(kept) != 1 || kept[0].Title.EN != "Fresh Story" {
		t.Errorf("dropAlreadySent kept %v, want only the fresh story", kept)
	}
}

func TestFilterKeywords(t *testing.T) {
	matchEN := record("Climate summit opens", "气候峰会", "world leaders meet", "https://example.com/1")
	matchZH := record("Economy report", "气候变化影响经济", "quarterly numbers", "https://example.com/2")
	miss := record("Sports final", "体育决赛", "the cup match", "https://example.com/3")
	records := []news.Record{matchEN, matchZH, miss}

	a := testApp(&config.Config{Keywords: []string{"climate", "气候"}}, newFakeStore())
	kept := a.filterKeywords(records)
	if len(kept) != 2 {
		t.Fatalf("filterKeywords kept %d records, want 2", len(kept))
	}
	for _, r := range kept {
		if r.Title.EN == "Sports final" {
			t.Errorf("unrelated record survived the keyword filter")
		}
	}

	// No keywords means no filtering.
	a = testApp(&config.Config{}, newFakeStore())
	if kept := a.filterKeywords(records); len(kept) != 3 {
		t.Errorf("empty keyword list should keep everything, kept %d", len(kept))
	}
}

func TestFilterFeedItems(t *testing.T) {
	items := []*gofeed.Item{
		{Title: "Climate deal reached", Description: "after long talks"},
		{Title: "Local fair", Description: "pumpkins and pie"},
	}

	a := testApp(&config.Config{Keywords: []string{"climate"}}, newFakeStore())
	kept := a.filterFeedItems(items)
	if len(kept) != 1 || kept[0].Title != "Climate deal reached" {
		t.Errorf("filterFeedItems kept %v", kept)
	}
}

func TestMarkSentStampsSourceMode(t *testing.T) {
	store := newFakeStore()
	a := testApp(&config.Config{SourceMode: config.ModeRSS}, store)

	records := []news.Record{
		record("One", "一", "d", "https://example.com/1"),
		record("Two", "二", "d", "https://example.com/2"),
	}
	a.markSent(records)

	if len(store.marked) != 2 {
		t.Fatalf("marked %d articles, want 2", len(store.marked))
	}
	for i, article := range store.marked {
		if article.Source != config.ModeRSS {
			t.Errorf("article %d source = %q, want rss", i, article.Source)
		}
		if article.Hash != storage.ArticleHash(records[i].Title.EN, records[i].URL) {
			t.Errorf("article %d hash mismatch", i)
		}
	}
}

func TestAnalysisServedFromCache(t *testing.T) {
	store := newFakeStore()
	// No invoker is wired: a cache hit must answer before the model client
	// is ever touched.
	a := testApp(&config.Config{}, store)

	promptText := "analyze this material"
	store.analyses[storage.ContentHash(promptText)] = storage.CachedAnalysis{
		ContentHash: storage.ContentHash(promptText),
		Output:      `[{"cached":true}]`,
		UseCount:    2,
	}

	raw, err := a.analysis(context.Background(), prompt.TaskDigest, promptText)
	if err != nil {
		t.Fatalf("analysis: %v", err)
	}
	if raw != `[{"cached":true}]` {
		t.Errorf("raw = %q, want the cached payload", raw)
	}
}

func TestAnalysisRespectsModelBudget(t *testing.T) {
	a := testApp(&config.Config{}, newFakeStore())
	a.limiter = ratelimit.New(1, 0)
	if err := a.limiter.UseModel(); err != nil {
		t.Fatalf("priming budget: %v", err)
	}

	// The budget gate must fire before the (nil) invoker is reached.
	_, err := a.analysis(context.Background(), prompt.TaskDigest, "material")
	if !errors.Is(err, ratelimit.ErrBudgetExhausted) {
		t.Fatalf("expected a budget refusal, got %v", err)
	}
}

func TestDeliverDryRunWritesPreview(t *testing.T) {
	dir := t.TempDir()
	oldwd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Chdir: %v", err)
	}
	t.Cleanup(func() { os.Chdir(oldwd) })

	a := testApp(&config.Config{DryRun: true}, newFakeStore())
	if err := a.deliver("subject", "<html>digest</html>", 3); err != nil {
		t.Fatalf("deliver: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, dryRunFile))
	if err != nil {
		t.Fatalf("preview file: %v", err)
	}
	if string(data) != "<html>digest</html>" {
		t.Errorf("preview content = %q", data)
	}
}

func TestTaskSelection(t *testing.T) {
	tests := []struct {
		mode string
		want prompt.Task
	}{
		{config.ModeScrape, prompt.TaskExtract},
		{config.ModeAgent, prompt.TaskAgent},
		{config.ModeSearch, prompt.TaskDigest},
		{config.ModeRSS, prompt.TaskDigest},
		{config.ModeHeadlines, prompt.TaskDigest},
	}
	for _, tt := range tests {
		a := testApp(&config.Config{SourceMode: tt.mode}, newFakeStore())
		if got := a.task(); got != tt.want {
			t.Errorf("task(%s) = %v, want %v", tt.mode, got, tt.want)
		}
	}
}

func TestStatsMergesStoreAndBudget(t *testing.T) {
	store := newFakeStore()
	store.sent["x"] = true
	a := testApp(&config.Config{}, store)

	stats := a.Stats()
	if got, ok := stats["store_sent_articles"]; !ok || got != 1 {
		t.Errorf("store_sent_articles = %v, want 1", got)
	}
	if _, ok := stats["budget"]; !ok {
		t.Errorf("budget stats missing")
	}
	if _, ok := stats["is_healthy"]; !ok {
		t.Errorf("health flag missing from stats")
	}
}

func TestRunSkipsWhenBudgetExhausted(t *testing.T) {
	cfg := &config.Config{SourceMode: config.ModeSearch, LookbackHours: 24}
	store := newFakeStore()
	a := testApp(cfg, store)
	a.limiter = ratelimit.New(0, 1)
	if err := a.limiter.UseSearch(); err != nil {
		t.Fatalf("priming call refused: %v", err)
	}

	// The search budget is spent, so acquisition is refused before the nil
	// searcher is ever touched. That must end the run quietly.
	if err := a.Run(context.Background()); err != nil {
		t.Fatalf("an exhausted budget should skip the run, not fail it: %v", err)
	}
	if len(store.marked) != 0 {
		t.Errorf("skipped run recorded %d deliveries, want none", len(store.marked))
	}
}

func TestRunSkipsWhenSourceIsEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprint(w, `<?xml version="1.0" encoding="UTF-8"?><rss version="2.0"><channel><title>quiet day</title></channel></rss>`)
	}))
	defer srv.Close()

	feedsPath := filepath.Join(t.TempDir(), "feeds.yaml")
	if err := os.WriteFile(feedsPath, []byte("feeds:\n  - "+srv.URL+"\n"), 0644); err != nil {
		t.Fatalf("write feeds config: %v", err)
	}

	cfg := &config.Config{SourceMode: config.ModeRSS, FeedsConfigPath: feedsPath, LookbackHours: 24}
	store := newFakeStore()
	a := testApp(cfg, store)

	// The feed parses but carries no items, so there is nothing to digest.
	if err := a.Run(context.Background()); err != nil {
		t.Fatalf("an empty source should skip the run, not fail it: %v", err)
	}
	if len(store.marked) != 0 {
		t.Errorf("skipped run recorded %d deliveries, want none", len(store.marked))
	}
}

// Walks the text path a real run takes: search results are formatted into
// material, the material is embedded in the prompt, and the model's fenced
// JSON reply parses back into valid records in the order the model chose.
func TestPipelineStages(t *testing.T) {
	results := []search.Result{
		{Rank: 1, Title: "Fed holds rates steady", Snippet: "The central bank left its benchmark rate unchanged", Link: "https://www.reuters.com/markets/fed-rates/"},
		{Rank: 2, Title: "Quake strikes northern Chile", Snippet: "A magnitude 6.1 earthquake hit the Atacama region", Link: "https://www.reuters.com/world/chile-quake/"},
		{Rank: 3, Title: "Chip export rules tighten", Snippet: "New restrictions cover advanced fabrication tools", Link: "https://www.bloomberg.com/technology/chip-rules/"},
	}

	material := search.FormatResults("重要新闻", results)
	for _, r := range results {
		if !strings.Contains(material, r.Title) || !strings.Contains(material, r.Link) {
			t.Fatalf("formatted material lost result %d: %q", r.Rank, r.Title)
		}
	}

	now := time.Date(2025, 6, 4, 8, 0, 0, 0, time.UTC)
	promptText := prompt.Build(prompt.TaskDigest, material, 3, now, 24*time.Hour)
	if !strings.Contains(promptText, material) {
		t.Fatal("prompt does not embed the acquired material")
	}

	reply := "```json\n[" +
		pipelineRecord("Fed holds rates steady", "美联储维持利率不变") + "," +
		pipelineRecord("Quake strikes northern Chile", "智利北部发生地震") + "," +
		pipelineRecord("Chip export rules tighten", "芯片出口规则收紧") +
		"]\n```"

	records := news.ParseRecords(reply)
	if news.IsPlaceholder(records) {
		t.Fatal("well-formed reply was reported as an analysis failure")
	}
	if len(records) != len(results) {
		t.Fatalf("got %d records, want %d", len(records), len(results))
	}
	for i, want := range []string{"Fed holds rates steady", "Quake strikes northern Chile", "Chip export rules tighten"} {
		if records[i].Title.EN != want {
			t.Errorf("record %d title = %q, want %q in reply order", i, records[i].Title.EN, want)
		}
		if err := records[i].Validate(); err != nil {
			t.Errorf("record %d should be complete: %v", i, err)
		}
	}
}

func pipelineRecord(titleEN, titleZH string) string {
	return `{
		"title": {"en": "` + titleEN + `", "zh": "` + titleZH + `"},
		"description": {"en": "What happened and why it matters.", "zh": "发生了什么以及为何重要。"},
		"url": "https://www.reuters.com/article/",
		"analysis": {
			"overview": {"en": "Summary of the event.", "zh": "事件概述。"},
			"key_entities": {"en": "Central bank, ministry.", "zh": "央行、部委。"},
			"impact": {"en": "Markets will react.", "zh": "市场将作出反应。"}
		}
	}`
}
