package storage

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/newspulse/newspulse/internal/logger"
)

// PostgresStore keeps sent-article state and the analysis cache in
// PostgreSQL, surviving container restarts and shared between replicas.
type PostgresStore struct {
	db  *sql.DB
	ttl time.Duration
}

// NewPostgresStore connects, verifies the connection and creates the schema.
func NewPostgresStore(connectionString string, ttl time.Duration) (*PostgresStore, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &PostgresStore{db: db, ttl: ttl}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("postgres store connected")
	return store, nil
}

func (ps *PostgresStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sent_articles (
		id SERIAL PRIMARY KEY,
		hash VARCHAR(64) UNIQUE NOT NULL,
		title TEXT NOT NULL,
		link TEXT NOT NULL,
		source VARCHAR(100),
		sent_at TIMESTAMP NOT NULL DEFAULT NOW(),
		created_at TIMESTAMP NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_sent_articles_hash ON sent_articles(hash);
	CREATE INDEX IF NOT EXISTS idx_sent_articles_sent_at ON sent_articles(sent_at);
	CREATE INDEX IF NOT EXISTS idx_sent_articles_link ON sent_articles(link);

	-- Raw model responses keyed by input content, so unchanged material
	-- does not cost a second model call.
	CREATE TABLE IF NOT EXISTS analysis_cache (
		id SERIAL PRIMARY KEY,
		content_hash VARCHAR(64) UNIQUE NOT NULL,
		model VARCHAR(100),
		output TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT NOW(),
		last_used_at TIMESTAMP NOT NULL DEFAULT NOW(),
		use_count INTEGER DEFAULT 1
	);

	CREATE INDEX IF NOT EXISTS idx_analysis_cache_hash ON analysis_cache(content_hash);
	CREATE INDEX IF NOT EXISTS idx_analysis_cache_created_at ON analysis_cache(created_at);
	`

	if _, err := ps.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// IsAlreadySent reports whether the article was delivered within the TTL.
// Lookup errors count as "not sent": a duplicate email beats a lost one.
func (ps *PostgresStore) IsAlreadySent(hash string) bool {
	cutoff := time.Now().Add(-ps.ttl)

	var count int
	err := ps.db.QueryRow(
		`SELECT COUNT(*) FROM sent_articles WHERE hash = $1 AND sent_at > $2`,
		hash, cutoff,
	).Scan(&count)
	if err != nil {
		logger.Warn("duplicate check failed", "error", err)
		return false
	}
	return count > 0
}

// MarkAsSent records a delivery. Re-sending refreshes sent_at rather than
// failing on the unique hash.
func (ps *PostgresStore) MarkAsSent(article SentArticle) error {
	_, err := ps.db.Exec(`
		INSERT INTO sent_articles (hash, title, link, source, sent_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (hash) DO UPDATE SET sent_at = NOW()`,
		article.Hash, article.Title, article.Link, article.Source,
	)
	if err != nil {
		return fmt.Errorf("failed to mark as sent: %w", err)
	}
	return nil
}

// GetAnalysis returns the cached model output for a content hash and bumps
// its usage counters in the same round trip.
func (ps *PostgresStore) GetAnalysis(contentHash string) (CachedAnalysis, bool) {
	var item CachedAnalysis
	err := ps.db.QueryRow(`
		UPDATE analysis_cache
		SET last_used_at = NOW(), use_count = use_count + 1
		WHERE content_hash = $1
		RETURNING content_hash, model, output, created_at, last_used_at, use_count`,
		contentHash,
	).Scan(&item.ContentHash, &item.Model, &item.Output, &item.CreatedAt, &item.LastUsedAt, &item.UseCount)

	if err == sql.ErrNoRows {
		return CachedAnalysis{}, false
	}
	if err != nil {
		logger.Warn("analysis cache lookup failed", "error", err)
		return CachedAnalysis{}, false
	}
	return item, true
}

// SetAnalysis stores model output for a content hash, replacing any earlier
// response for the same content.
func (ps *PostgresStore) SetAnalysis(item CachedAnalysis) error {
	_, err := ps.db.Exec(`
		INSERT INTO analysis_cache (content_hash, model, output, created_at, last_used_at)
		VALUES ($1, $2, $3, NOW(), NOW())
		ON CONFLICT (content_hash) DO UPDATE SET
			model = EXCLUDED.model,
			output = EXCLUDED.output,
			last_used_at = NOW()`,
		item.ContentHash, item.Model, item.Output,
	)
	if err != nil {
		return fmt.Errorf("failed to store analysis: %w", err)
	}
	return nil
}

// Cleanup removes expired rows from both tables.
func (ps *PostgresStore) Cleanup() error {
	cutoff := time.Now().Add(-ps.ttl)

	result, err := ps.db.Exec(`DELETE FROM sent_articles WHERE sent_at < $1`, cutoff)
	if err != nil {
		return fmt.Errorf("failed to clean sent articles: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows > 0 {
		logger.Debug("cleaned sent articles", "rows", rows)
	}

	if _, err := ps.db.Exec(`DELETE FROM analysis_cache WHERE last_used_at < $1`, cutoff); err != nil {
		return fmt.Errorf("failed to clean analysis cache: %w", err)
	}
	return nil
}

// Stats returns store statistics for the monitoring endpoint.
func (ps *PostgresStore) Stats() map[string]int {
	stats := make(map[string]int)

	var total int
	if err := ps.db.QueryRow(`SELECT COUNT(*) FROM sent_articles`).Scan(&total); err == nil {
		stats["sent_articles"] = total
	}

	cutoff := time.Now().Add(-ps.ttl)
	var active int
	if err := ps.db.QueryRow(`SELECT COUNT(*) FROM sent_articles WHERE sent_at > $1`, cutoff).Scan(&active); err == nil {
		stats["active_articles"] = active
	}

	var cached int
	if err := ps.db.QueryRow(`SELECT COUNT(*) FROM analysis_cache`).Scan(&cached); err == nil {
		stats["cached_analyses"] = cached
	}
	return stats
}

// Close closes the database connection.
func (ps *PostgresStore) Close() error {
	if ps.db != nil {
		return ps.db.Close()
	}
	return nil
}
