package storage

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sent.json")

	store, err := NewFileStore(path, 72*time.Hour)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	hash := ArticleHash("Some Headline", "https://example.com/story")
	if store.IsAlreadySent(hash) {
		t.Fatalf("fresh store should not know the article")
	}

	err = store.MarkAsSent(SentArticle{
		Hash:   hash,
		Title:  "Some Headline",
		Link:   "https://example.com/story",
		Source: "search",
	})
	if err != nil {
		t.Fatalf("MarkAsSent: %v", err)
	}
	if !store.IsAlreadySent(hash) {
		t.Errorf("article should be marked sent")
	}

	// A second store over the same file sees the persisted state.
	reopened, err := NewFileStore(path, 72*time.Hour)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if !reopened.IsAlreadySent(hash) {
		t.Errorf("persisted article lost on reload")
	}
}

func TestFileStoreExpiresOldEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sent.json")

	store, err := NewFileStore(path, time.Hour)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	old := SentArticle{
		Hash:   "oldhash",
		Title:  "Old",
		Link:   "https://example.com/old",
		SentAt: time.Now().Add(-2 * time.Hour),
	}
	if err := store.MarkAsSent(old); err != nil {
		t.Fatalf("MarkAsSent: %v", err)
	}

	if store.IsAlreadySent("oldhash") {
		t.Errorf("expired entry should not count as sent")
	}

	// Reloading drops it entirely.
	reopened, err := NewFileStore(path, time.Hour)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if got := reopened.Stats()["sent_articles"]; got != 0 {
		t.Errorf("expired entries survived reload, count = %d", got)
	}
}

func TestFileStoreCleanupPersistsPrunedState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sent.json")

	store, err := NewFileStore(path, time.Hour)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	if err := store.MarkAsSent(SentArticle{Hash: "stale", SentAt: time.Now().Add(-2 * time.Hour)}); err != nil {
		t.Fatalf("MarkAsSent: %v", err)
	}
	if err := store.MarkAsSent(SentArticle{Hash: "fresh"}); err != nil {
		t.Fatalf("MarkAsSent: %v", err)
	}

	if err := store.Cleanup(); err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if got := store.Stats()["sent_articles"]; got != 1 {
		t.Errorf("after cleanup count = %d, want 1", got)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read state file: %v", err)
	}
	if string(data) == "" {
		t.Fatalf("state file empty after cleanup")
	}
}

func TestFileStoreToleratesMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "does-not-exist.json")
	store, err := NewFileStore(path, time.Hour)
	if err != nil {
		t.Fatalf("NewFileStore on missing file: %v", err)
	}
	if store.IsAlreadySent("anything") {
		t.Errorf("empty store should report nothing sent")
	}
}

func TestFileStoreAnalysisIsAlwaysMiss(t *testing.T) {
	store, err := NewFileStore(filepath.Join(t.TempDir(), "sent.json"), time.Hour)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	if err := store.SetAnalysis(CachedAnalysis{ContentHash: "abc", Output: "{}"}); err != nil {
		t.Fatalf("SetAnalysis: %v", err)
	}
	if _, ok := store.GetAnalysis("abc"); ok {
		t.Errorf("file store should never serve cached analyses")
	}
}
