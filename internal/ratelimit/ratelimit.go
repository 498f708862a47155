package ratelimit

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/newspulse/newspulse/internal/logger"
)

// ErrBudgetExhausted wraps every budget refusal so callers can tell a spent
// budget apart from a real failure and skip the run instead of failing it.
var ErrBudgetExhausted = errors.New("daily call budget exhausted")

// Limiter enforces the per-day call budgets for the two paid backends: the
// generative model and the search API. A budget of 0 means unlimited.
type Limiter struct {
	mu sync.Mutex

	modelCalls  int
	searchCalls int

	maxModelPerDay  int
	maxSearchPerDay int

	resetAt time.Time
}

func New(maxModelPerDay, maxSearchPerDay int) *Limiter {
	return &Limiter{
		maxModelPerDay:  maxModelPerDay,
		maxSearchPerDay: maxSearchPerDay,
		resetAt:         nextMidnight(time.Now()),
	}
}

func nextMidnight(now time.Time) time.Time {
	year, month, day := now.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, now.Location()).Add(24 * time.Hour)
}

// checkReset clears the counters once the day rolls over. Callers must hold mu.
func (l *Limiter) checkReset() {
	now := time.Now()
	if now.After(l.resetAt) {
		l.modelCalls = 0
		l.searchCalls = 0
		l.resetAt = nextMidnight(now)
		logger.Info("daily call budgets reset", "next_reset", l.resetAt.Format(time.RFC3339))
	}
}

func (l *Limiter) CanUseModel() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.checkReset()
	return l.maxModelPerDay <= 0 || l.modelCalls < l.maxModelPerDay
}

func (l *Limiter) UseModel() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.checkReset()
	if l.maxModelPerDay > 0 && l.modelCalls >= l.maxModelPerDay {
		return fmt.Errorf("%w: model calls %d/%d", ErrBudgetExhausted, l.modelCalls, l.maxModelPerDay)
	}
	l.modelCalls++
	return nil
}

func (l *Limiter) CanUseSearch() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.checkReset()
	return l.maxSearchPerDay <= 0 || l.searchCalls < l.maxSearchPerDay
}

func (l *Limiter) UseSearch() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.checkReset()
	if l.maxSearchPerDay > 0 && l.searchCalls >= l.maxSearchPerDay {
		return fmt.Errorf("%w: search calls %d/%d", ErrBudgetExhausted, l.searchCalls, l.maxSearchPerDay)
	}
	l.searchCalls++
	return nil
}

func (l *Limiter) GetStats() map[string]interface{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.checkReset()
	return map[string]interface{}{
		"model_calls_today":  l.modelCalls,
		"search_calls_today": l.searchCalls,
		"max_model_per_day":  l.maxModelPerDay,
		"max_search_per_day": l.maxSearchPerDay,
		"reset_at":           l.resetAt.Format(time.RFC3339),
	}
}
