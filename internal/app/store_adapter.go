package app

import (
	"time"

	"github.com/newspulse/newspulse/internal/config"
	"github.com/newspulse/newspulse/internal/logger"
	"github.com/newspulse/newspulse/internal/storage"
)

// Store is the delivery-state surface the pipeline needs. Both storage
// backends satisfy it.
type Store interface {
	IsAlreadySent(hash string) bool
	MarkAsSent(article storage.SentArticle) error
	GetAnalysis(contentHash string) (storage.CachedAnalysis, bool)
	SetAnalysis(item storage.CachedAnalysis) error
	Cleanup() error
	Stats() map[string]int
	Close() error
}

// newStore prefers PostgreSQL and falls back to the JSON file store when no
// database is configured or the connection fails. A digest service should
// still deliver with a broken database; the file store just forgets state
// across hosts.
func newStore(cfg *config.Config) (Store, error) {
	ttl := time.Duration(cfg.CacheTTLHours) * time.Hour

	if cfg.DatabaseURL != "" {
		store, err := storage.NewPostgresStore(cfg.DatabaseURL, ttl)
		if err == nil {
			return store, nil
		}
		logger.Warn("postgres unavailable, falling back to file store", "error", err)
	}
	return storage.NewFileStore(cfg.CacheFilePath, ttl)
}
