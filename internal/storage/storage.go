// Package storage tracks which articles have already been emailed and caches
// model output keyed by input content, so a re-run over unchanged material
// costs no model calls. PostgreSQL is the primary backend; a JSON file store
// covers deployments without a database.
package storage

import "time"

// SentArticle is one delivered article remembered for deduplication.
type SentArticle struct {
	Hash   string    `json:"hash"`
	Title  string    `json:"title"`
	Link   string    `json:"link"`
	Source string    `json:"source"`
	SentAt time.Time `json:"sent_at"`
}

// CachedAnalysis is one stored model response. Output holds the raw response
// text exactly as the model produced it; the parser re-validates it on reuse.
type CachedAnalysis struct {
	ContentHash string
	Model       string
	Output      string
	CreatedAt   time.Time
	LastUsedAt  time.Time
	UseCount    int
}
