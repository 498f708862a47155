package metrics

import (
	"sync"
	"time"
)

// Metrics collects process-wide counters for the digest pipeline. The
// monitoring endpoints read them through GetStats.
type Metrics struct {
	mu sync.RWMutex

	// Counters
	ItemsAcquired     int64
	SearchQueries     int64
	ModelCalls        int64
	ModelRetries      int64
	ModelFallbacks    int64
	RecordsParsed     int64
	RecordsRejected   int64
	PlaceholderRuns   int64
	DuplicatesSkipped int64
	EmailsSent        int64
	EmailsSkipped     int64

	// Timings
	LastRunDuration    time.Duration
	AverageRunDuration time.Duration
	TotalRunDuration   time.Duration
	RunCount           int64

	// Status
	LastRunTime   time.Time
	LastErrorTime time.Time
	LastError     string
	IsHealthy     bool
}

var Global = &Metrics{IsHealthy: true}

func (m *Metrics) AddItemsAcquired(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ItemsAcquired += int64(n)
}

func (m *Metrics) IncrementSearchQueries() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SearchQueries++
}

func (m *Metrics) IncrementModelCalls() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ModelCalls++
}

func (m *Metrics) IncrementModelRetries() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ModelRetries++
}

func (m *Metrics) IncrementModelFallbacks() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ModelFallbacks++
}

func (m *Metrics) AddRecordsParsed(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RecordsParsed += int64(n)
}

func (m *Metrics) IncrementRecordsRejected() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RecordsRejected++
}

func (m *Metrics) IncrementPlaceholderRuns() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PlaceholderRuns++
}

func (m *Metrics) IncrementDuplicatesSkipped() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DuplicatesSkipped++
}

func (m *Metrics) IncrementEmailsSent() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.EmailsSent++
}

func (m *Metrics) IncrementEmailsSkipped() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.EmailsSkipped++
}

func (m *Metrics) RecordRunDuration(duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.LastRunDuration = duration
	m.TotalRunDuration += duration
	m.RunCount++

	if m.RunCount > 0 {
		m.AverageRunDuration = m.TotalRunDuration / time.Duration(m.RunCount)
	}
}

func (m *Metrics) SetLastRun() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LastRunTime = time.Now()
	m.IsHealthy = true
}

func (m *Metrics) SetError(err string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LastError = err
	m.LastErrorTime = time.Now()
	m.IsHealthy = false
}

func (m *Metrics) GetStats() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return map[string]interface{}{
		"items_acquired":          m.ItemsAcquired,
		"search_queries":          m.SearchQueries,
		"model_calls":             m.ModelCalls,
		"model_retries":           m.ModelRetries,
		"model_fallbacks":         m.ModelFallbacks,
		"records_parsed":          m.RecordsParsed,
		"records_rejected":        m.RecordsRejected,
		"placeholder_runs":        m.PlaceholderRuns,
		"duplicates_skipped":      m.DuplicatesSkipped,
		"emails_sent":             m.EmailsSent,
		"emails_skipped":          m.EmailsSkipped,
		"last_run_duration_ms":    m.LastRunDuration.Milliseconds(),
		"average_run_duration_ms": m.AverageRunDuration.Milliseconds(),
		"last_run_time":           m.LastRunTime.Format(time.RFC3339),
		"last_error_time":         m.LastErrorTime.Format(time.RFC3339),
		"last_error":              m.LastError,
		"is_healthy":              m.IsHealthy,
	}
}
