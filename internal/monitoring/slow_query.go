package monitoring

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// SlowQueryThreshold is the default duration above which an operation is
// logged by the global slow-operation tracker.
const SlowQueryThreshold = 100 * time.Millisecond

// SlowQueryLogger records operations (an upstream forward call, a storage
// write) that ran longer than its threshold, bounded to the most recent
// maxSize entries.
type SlowQueryLogger struct {
	mu        sync.RWMutex
	threshold time.Duration
	enabled   bool
	queries   []SlowQuery
	maxSize   int
}

// SlowQuery is one recorded slow operation.
type SlowQuery struct {
	Timestamp time.Time     `json:"timestamp"`
	Operation string        `json:"operation"`
	Duration  time.Duration `json:"duration"`
	Details   string        `json:"details"`
	Stack     string        `json:"stack,omitempty"`
}

// NewSlowQueryLogger builds a logger keeping at most maxSize entries.
func NewSlowQueryLogger(threshold time.Duration, maxSize int) *SlowQueryLogger {
	if threshold <= 0 {
		threshold = SlowQueryThreshold
	}
	if maxSize <= 0 {
		maxSize = 1000
	}
	return &SlowQueryLogger{
		threshold: threshold,
		enabled:   true,
		queries:   make([]SlowQuery, 0, maxSize),
		maxSize:   maxSize,
	}
}

// Enable turns slow-operation logging on.
func (l *SlowQueryLogger) Enable() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.enabled = true
}

// Disable turns slow-operation logging off.
func (l *SlowQueryLogger) Disable() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.enabled = false
}

// IsEnabled reports whether logging is currently on.
func (l *SlowQueryLogger) IsEnabled() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.enabled
}

// SetThreshold changes the duration above which an operation is logged.
func (l *SlowQueryLogger) SetThreshold(threshold time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.threshold = threshold
}

// GetThreshold returns the current threshold.
func (l *SlowQueryLogger) GetThreshold() time.Duration {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.threshold
}

// Track runs fn, logging it as a slow operation if it exceeds the
// threshold. The error fn returns is passed through unchanged.
func (l *SlowQueryLogger) Track(ctx context.Context, operation string, fn func() error) error {
	start := time.Now()
	err := fn()
	duration := time.Since(start)

	if l.IsEnabled() && duration >= l.GetThreshold() {
		l.Log(SlowQuery{
			Timestamp: start,
			Operation: operation,
			Duration:  duration,
			Details:   fmt.Sprintf("error: %v", err),
		})
	}

	return err
}

// TrackWithDetails is Track with a caller-supplied details string instead
// of the error's own text (useful when the call succeeded and the detail
// worth recording is something else, e.g. the credential or endpoint
// involved).
func (l *SlowQueryLogger) TrackWithDetails(ctx context.Context, operation string, details string, fn func() error) error {
	start := time.Now()
	err := fn()
	duration := time.Since(start)

	if l.IsEnabled() && duration >= l.GetThreshold() {
		l.Log(SlowQuery{
			Timestamp: start,
			Operation: operation,
			Duration:  duration,
			Details:   details,
		})
	}

	return err
}

// Log appends query directly, bypassing Track's own timing.
func (l *SlowQueryLogger) Log(query SlowQuery) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.enabled {
		return
	}

	if len(l.queries) >= l.maxSize {
		l.queries = l.queries[1:]
	}

	l.queries = append(l.queries, query)
}

// GetQueries returns a copy of every recorded slow operation.
func (l *SlowQueryLogger) GetQueries() []SlowQuery {
	l.mu.RLock()
	defer l.mu.RUnlock()

	result := make([]SlowQuery, len(l.queries))
	copy(result, l.queries)
	return result
}

// GetRecentQueries returns the n most recently recorded slow operations.
func (l *SlowQueryLogger) GetRecentQueries(n int) []SlowQuery {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if n <= 0 || n > len(l.queries) {
		n = len(l.queries)
	}

	start := len(l.queries) - n
	result := make([]SlowQuery, n)
	copy(result, l.queries[start:])
	return result
}

// Clear drops every recorded slow operation.
func (l *SlowQueryLogger) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.queries = make([]SlowQuery, 0, l.maxSize)
}

// GetStats summarizes the currently recorded slow operations.
func (l *SlowQueryLogger) GetStats() SlowQueryStats {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if len(l.queries) == 0 {
		return SlowQueryStats{
			Count:     0,
			Threshold: l.threshold,
		}
	}

	var totalDuration time.Duration
	var maxDuration time.Duration
	var minDuration = 24 * time.Hour

	operationCounts := make(map[string]int)

	for _, q := range l.queries {
		totalDuration += q.Duration
		if q.Duration > maxDuration {
			maxDuration = q.Duration
		}
		if q.Duration < minDuration {
			minDuration = q.Duration
		}
		operationCounts[q.Operation]++
	}

	avgDuration := totalDuration / time.Duration(len(l.queries))

	return SlowQueryStats{
		Count:           len(l.queries),
		Threshold:       l.threshold,
		AvgDuration:     avgDuration,
		MaxDuration:     maxDuration,
		MinDuration:     minDuration,
		OperationCounts: operationCounts,
	}
}

// SlowQueryStats is the JSON-serializable summary returned by GetStats.
type SlowQueryStats struct {
	Count           int            `json:"count"`
	Threshold       time.Duration  `json:"threshold"`
	AvgDuration     time.Duration  `json:"avg_duration"`
	MaxDuration     time.Duration  `json:"max_duration"`
	MinDuration     time.Duration  `json:"min_duration"`
	OperationCounts map[string]int `json:"operation_counts"`
}

// globalSlowQueryLogger is fed by the upstream client's Forward calls (see
// internal/server/pipeline.go).
var globalSlowQueryLogger = NewSlowQueryLogger(SlowQueryThreshold, 1000)

// GetGlobalSlowQueryLogger returns the process-wide slow-operation logger.
func GetGlobalSlowQueryLogger() *SlowQueryLogger {
	return globalSlowQueryLogger
}

// TrackSlowQuery runs fn under the global logger.
func TrackSlowQuery(ctx context.Context, operation string, fn func() error) error {
	return globalSlowQueryLogger.Track(ctx, operation, fn)
}

// TrackSlowQueryWithDetails runs fn under the global logger with an
// explicit details string.
func TrackSlowQueryWithDetails(ctx context.Context, operation string, details string, fn func() error) error {
	return globalSlowQueryLogger.TrackWithDetails(ctx, operation, details, fn)
}
