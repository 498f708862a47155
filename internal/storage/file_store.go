package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// FileStore keeps sent-article state in a JSON file. It carries no analysis
// cache: without a database, every run pays for its own model calls.
type FileStore struct {
	filePath string
	ttl      time.Duration

	mu    sync.RWMutex
	items map[string]SentArticle
}

// NewFileStore opens (or creates) the JSON state file at filePath. Entries
// older than ttl are dropped on load.
func NewFileStore(filePath string, ttl time.Duration) (*FileStore, error) {
	fs := &FileStore{
		filePath: filePath,
		ttl:      ttl,
		items:    make(map[string]SentArticle),
	}
	if err := fs.load(); err != nil {
		return nil, err
	}
	return fs, nil
}

func (fs *FileStore) load() error {
	data, err := os.ReadFile(fs.filePath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read state file: %w", err)
	}
	if len(data) == 0 {
		return nil
	}

	var items []SentArticle
	if err := json.Unmarshal(data, &items); err != nil {
		return fmt.Errorf("failed to unmarshal state file: %w", err)
	}

	cutoff := time.Now().Add(-fs.ttl)
	for _, item := range items {
		if item.SentAt.After(cutoff) {
			fs.items[item.Hash] = item
		}
	}
	return nil
}

func (fs *FileStore) save() error {
	items := make([]SentArticle, 0, len(fs.items))
	for _, item := range fs.items {
		items = append(items, item)
	}

	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}
	if err := os.WriteFile(fs.filePath, data, 0644); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}
	return nil
}

// IsAlreadySent reports whether the article was delivered within the TTL.
func (fs *FileStore) IsAlreadySent(hash string) bool {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	item, exists := fs.items[hash]
	if !exists {
		return false
	}
	return item.SentAt.After(time.Now().Add(-fs.ttl))
}

// MarkAsSent records a delivery and persists immediately, so a crash between
// runs cannot resend the whole digest.
func (fs *FileStore) MarkAsSent(article SentArticle) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if article.SentAt.IsZero() {
		article.SentAt = time.Now()
	}
	fs.items[article.Hash] = article
	return fs.save()
}

// GetAnalysis always misses; the file store does not cache model output.
func (fs *FileStore) GetAnalysis(contentHash string) (CachedAnalysis, bool) {
	return CachedAnalysis{}, false
}

// SetAnalysis is a no-op for the file store.
func (fs *FileStore) SetAnalysis(item CachedAnalysis) error {
	return nil
}

// Cleanup drops expired entries and persists the pruned state.
func (fs *FileStore) Cleanup() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	cutoff := time.Now().Add(-fs.ttl)
	for hash, item := range fs.items {
		if item.SentAt.Before(cutoff) {
			delete(fs.items, hash)
		}
	}
	return fs.save()
}

// Stats returns store statistics for the monitoring endpoint.
func (fs *FileStore) Stats() map[string]int {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	return map[string]int{
		"sent_articles": len(fs.items),
	}
}

// Close is a no-op; state is already on disk.
func (fs *FileStore) Close() error {
	return nil
}
