package monitoring

import (
	"sync"
	"sync/atomic"
	"time"
)

// MetricsCollector aggregates request counts, latency, and per-endpoint /
// per-status-code breakdowns for the request pipeline. It is separate from
// the in-memory EnhancedMetrics and is used for the admin-facing
// rolling window summary rather than scrape-based observability.
type MetricsCollector struct {
	mu sync.RWMutex

	totalRequests   atomic.Int64
	successRequests atomic.Int64
	failedRequests  atomic.Int64

	totalDuration atomic.Int64 // nanoseconds
	minDuration   atomic.Int64
	maxDuration   atomic.Int64

	endpointStats map[string]*EndpointStats

	statusCodeStats map[int]*atomic.Int64

	windowStats *WindowStats

	startTime time.Time
}

// EndpointStats tallies requests, successes, failures, and total duration
// for a single pipeline endpoint (e.g. "/v1/messages").
type EndpointStats struct {
	Requests      atomic.Int64
	Success       atomic.Int64
	Failed        atomic.Int64
	TotalDuration atomic.Int64
}

// WindowStats buckets request outcomes into a fixed-size ring of time
// slices, giving a rolling view of recent traffic independent of the
// lifetime counters above.
type WindowStats struct {
	mu            sync.RWMutex
	windowSize    time.Duration
	buckets       []WindowBucket
	currentBucket int
}

// WindowBucket holds one slice of the rolling window.
type WindowBucket struct {
	Timestamp time.Time
	Requests  int64
	Success   int64
	Failed    int64
	Duration  int64 // nanoseconds
}

// NewMetricsCollector builds a collector with bucketCount buckets spanning
// windowSize in total.
func NewMetricsCollector(windowSize time.Duration, bucketCount int) *MetricsCollector {
	if windowSize <= 0 {
		windowSize = time.Minute
	}
	if bucketCount <= 0 {
		bucketCount = 60
	}

	mc := &MetricsCollector{
		endpointStats:   make(map[string]*EndpointStats),
		statusCodeStats: make(map[int]*atomic.Int64),
		startTime:       time.Now(),
		windowStats: &WindowStats{
			windowSize: windowSize,
			buckets:    make([]WindowBucket, bucketCount),
		},
	}

	mc.minDuration.Store(int64(time.Hour))

	return mc
}

// RecordRequest records one pipeline call against endpoint, its upstream
// HTTP status code, how long it took, and whether the pipeline classified
// it as a success (per pool.Reason's outcome).
func (mc *MetricsCollector) RecordRequest(endpoint string, statusCode int, duration time.Duration, success bool) {
	mc.totalRequests.Add(1)
	if success {
		mc.successRequests.Add(1)
	} else {
		mc.failedRequests.Add(1)
	}

	durationNs := duration.Nanoseconds()
	mc.totalDuration.Add(durationNs)

	for {
		oldMin := mc.minDuration.Load()
		if durationNs >= oldMin {
			break
		}
		if mc.minDuration.CompareAndSwap(oldMin, durationNs) {
			break
		}
	}

	for {
		oldMax := mc.maxDuration.Load()
		if durationNs <= oldMax {
			break
		}
		if mc.maxDuration.CompareAndSwap(oldMax, durationNs) {
			break
		}
	}

	mc.mu.Lock()
	stats, ok := mc.endpointStats[endpoint]
	if !ok {
		stats = &EndpointStats{}
		mc.endpointStats[endpoint] = stats
	}
	mc.mu.Unlock()

	stats.Requests.Add(1)
	if success {
		stats.Success.Add(1)
	} else {
		stats.Failed.Add(1)
	}
	stats.TotalDuration.Add(durationNs)

	mc.mu.Lock()
	codeStats, ok := mc.statusCodeStats[statusCode]
	if !ok {
		codeStats = &atomic.Int64{}
		mc.statusCodeStats[statusCode] = codeStats
	}
	mc.mu.Unlock()

	codeStats.Add(1)

	mc.windowStats.Record(success, durationNs)
}

// GetStats returns a point-in-time snapshot of all lifetime counters.
func (mc *MetricsCollector) GetStats() MetricsStats {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	totalReqs := mc.totalRequests.Load()
	successReqs := mc.successRequests.Load()
	failedReqs := mc.failedRequests.Load()
	totalDur := mc.totalDuration.Load()
	minDur := mc.minDuration.Load()
	maxDur := mc.maxDuration.Load()

	var avgDuration time.Duration
	if totalReqs > 0 {
		avgDuration = time.Duration(totalDur / totalReqs)
	}

	var successRate float64
	if totalReqs > 0 {
		successRate = float64(successReqs) / float64(totalReqs) * 100
	}

	endpointStats := make(map[string]EndpointMetrics)
	for endpoint, stats := range mc.endpointStats {
		reqs := stats.Requests.Load()
		var avgDur time.Duration
		if reqs > 0 {
			avgDur = time.Duration(stats.TotalDuration.Load() / reqs)
		}

		endpointStats[endpoint] = EndpointMetrics{
			Requests:    reqs,
			Success:     stats.Success.Load(),
			Failed:      stats.Failed.Load(),
			AvgDuration: avgDur,
		}
	}

	statusCodeStats := make(map[int]int64)
	for code, stats := range mc.statusCodeStats {
		statusCodeStats[code] = stats.Load()
	}

	return MetricsStats{
		TotalRequests:   totalReqs,
		SuccessRequests: successReqs,
		FailedRequests:  failedReqs,
		SuccessRate:     successRate,
		AvgDuration:     avgDuration,
		MinDuration:     time.Duration(minDur),
		MaxDuration:     time.Duration(maxDur),
		EndpointStats:   endpointStats,
		StatusCodeStats: statusCodeStats,
		Uptime:          time.Since(mc.startTime),
	}
}

// MetricsStats is the JSON-serializable snapshot returned by GetStats.
type MetricsStats struct {
	TotalRequests   int64                      `json:"total_requests"`
	SuccessRequests int64                      `json:"success_requests"`
	FailedRequests  int64                      `json:"failed_requests"`
	SuccessRate     float64                    `json:"success_rate"`
	AvgDuration     time.Duration              `json:"avg_duration"`
	MinDuration     time.Duration              `json:"min_duration"`
	MaxDuration     time.Duration              `json:"max_duration"`
	EndpointStats   map[string]EndpointMetrics `json:"endpoint_stats"`
	StatusCodeStats map[int]int64              `json:"status_code_stats"`
	Uptime          time.Duration              `json:"uptime"`
}

// EndpointMetrics is the per-endpoint slice of MetricsStats.
type EndpointMetrics struct {
	Requests    int64         `json:"requests"`
	Success     int64         `json:"success"`
	Failed      int64         `json:"failed"`
	AvgDuration time.Duration `json:"avg_duration"`
}

// Record appends one outcome to the current (or next, if expired) bucket.
func (ws *WindowStats) Record(success bool, durationNs int64) {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	now := time.Now()
	bucket := &ws.buckets[ws.currentBucket]

	if now.Sub(bucket.Timestamp) > ws.windowSize/time.Duration(len(ws.buckets)) {
		ws.currentBucket = (ws.currentBucket + 1) % len(ws.buckets)
		bucket = &ws.buckets[ws.currentBucket]
		bucket.Timestamp = now
		bucket.Requests = 0
		bucket.Success = 0
		bucket.Failed = 0
		bucket.Duration = 0
	}

	bucket.Requests++
	if success {
		bucket.Success++
	} else {
		bucket.Failed++
	}
	bucket.Duration += durationNs
}

// GetWindowStats sums every bucket into a rolling-window summary.
func (ws *WindowStats) GetWindowStats() WindowMetrics {
	ws.mu.RLock()
	defer ws.mu.RUnlock()

	var totalRequests, totalSuccess, totalFailed, totalDuration int64

	for _, bucket := range ws.buckets {
		totalRequests += bucket.Requests
		totalSuccess += bucket.Success
		totalFailed += bucket.Failed
		totalDuration += bucket.Duration
	}

	var avgDuration time.Duration
	if totalRequests > 0 {
		avgDuration = time.Duration(totalDuration / totalRequests)
	}

	var successRate float64
	if totalRequests > 0 {
		successRate = float64(totalSuccess) / float64(totalRequests) * 100
	}

	return WindowMetrics{
		Requests:    totalRequests,
		Success:     totalSuccess,
		Failed:      totalFailed,
		SuccessRate: successRate,
		AvgDuration: avgDuration,
	}
}

// WindowMetrics is the JSON-serializable rolling-window summary.
type WindowMetrics struct {
	Requests    int64         `json:"requests"`
	Success     int64         `json:"success"`
	Failed      int64         `json:"failed"`
	SuccessRate float64       `json:"success_rate"`
	AvgDuration time.Duration `json:"avg_duration"`
}

// Reset clears every counter, used by tests.
func (mc *MetricsCollector) Reset() {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.totalRequests.Store(0)
	mc.successRequests.Store(0)
	mc.failedRequests.Store(0)
	mc.totalDuration.Store(0)
	mc.minDuration.Store(int64(time.Hour))
	mc.maxDuration.Store(0)

	mc.endpointStats = make(map[string]*EndpointStats)
	mc.statusCodeStats = make(map[int]*atomic.Int64)
	mc.startTime = time.Now()

	mc.windowStats.mu.Lock()
	for i := range mc.windowStats.buckets {
		mc.windowStats.buckets[i] = WindowBucket{}
	}
	mc.windowStats.currentBucket = 0
	mc.windowStats.mu.Unlock()
}

// globalMetricsCollector is the process-wide collector fed by the request
// pipeline (see internal/server/pipeline.go).
var globalMetricsCollector = NewMetricsCollector(time.Minute, 60)

// GetGlobalMetricsCollector returns the process-wide request collector.
func GetGlobalMetricsCollector() *MetricsCollector {
	return globalMetricsCollector
}
