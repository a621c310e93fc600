// Package observability provides metrics collection and tracing for CLI operations.
package observability

import (
	"fmt"
	"sync"
	"time"
)

// RequestInfo describes an outgoing HTTP request.
type RequestInfo struct {
	Method    string
	URL       string
	Attempt   int
	RequestID string
}

// RequestResult describes the outcome of an HTTP request.
type RequestResult struct {
	StatusCode int
	Duration   time.Duration
	Retryable  bool
	Error      error
}

// RefreshInfo describes a settled token refresh cycle.
type RefreshInfo struct {
	// Waiters is the number of callers that joined the cycle besides its initiator.
	Waiters int
	// Reused is true when a newer token was already stored and no network call was made.
	Reused   bool
	Duration time.Duration
	Error    error
}

// SessionMetrics aggregates metrics for an entire CLI session.
type SessionMetrics struct {
	StartTime       time.Time
	EndTime         time.Time
	TotalRequests   int
	FailedRequests  int
	TotalRetries    int
	TotalRefreshes  int
	FailedRefreshes int
	RefreshWaiters  int
	TotalLatency    time.Duration
}

// SessionCollector accumulates metrics across a CLI session.
// It is safe for concurrent use and uses counters instead of unbounded slices.
type SessionCollector struct {
	mu sync.Mutex

	startTime       time.Time
	totalRequests   int
	failedRequests  int
	totalRetries    int
	totalRefreshes  int
	failedRefreshes int
	refreshWaiters  int
	totalLatency    time.Duration
}

// NewSessionCollector creates a new SessionCollector.
func NewSessionCollector() *SessionCollector {
	return &SessionCollector{
		startTime: time.Now(),
	}
}

// RecordRequest records metrics for an HTTP request.
func (c *SessionCollector) RecordRequest(_ RequestInfo, result RequestResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalRequests++
	c.totalLatency += result.Duration
	if result.Error != nil || result.StatusCode >= 400 {
		c.failedRequests++
	}
}

// RecordRetry records a retry event.
func (c *SessionCollector) RecordRetry(_ RequestInfo, _ int, _ error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalRetries++
}

// RecordRefresh records a settled refresh cycle.
func (c *SessionCollector) RecordRefresh(info RefreshInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalRefreshes++
	c.refreshWaiters += info.Waiters
	if info.Error != nil {
		c.failedRefreshes++
	}
}

// Summary returns aggregated metrics for the session.
func (c *SessionCollector) Summary() SessionMetrics {
	c.mu.Lock()
	defer c.mu.Unlock()

	return SessionMetrics{
		StartTime:       c.startTime,
		EndTime:         time.Now(),
		TotalRequests:   c.totalRequests,
		FailedRequests:  c.failedRequests,
		TotalRetries:    c.totalRetries,
		TotalRefreshes:  c.totalRefreshes,
		FailedRefreshes: c.failedRefreshes,
		RefreshWaiters:  c.refreshWaiters,
		TotalLatency:    c.totalLatency,
	}
}

// Reset clears all collected metrics and resets the start time.
func (c *SessionCollector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.startTime = time.Now()
	c.totalRequests = 0
	c.failedRequests = 0
	c.totalRetries = 0
	c.totalRefreshes = 0
	c.failedRefreshes = 0
	c.refreshWaiters = 0
	c.totalLatency = 0
}

// ToMap converts metrics to the shape embedded in response meta.
func (m SessionMetrics) ToMap() map[string]any {
	return map[string]any{
		"requests":         m.TotalRequests,
		"failed_requests":  m.FailedRequests,
		"retries":          m.TotalRetries,
		"refreshes":        m.TotalRefreshes,
		"failed_refreshes": m.FailedRefreshes,
		"refresh_waiters":  m.RefreshWaiters,
		"latency_ms":       m.TotalLatency.Milliseconds(),
		"elapsed_ms":       m.EndTime.Sub(m.StartTime).Milliseconds(),
	}
}

// SessionMetricsFromMap rebuilds metrics from a response meta map.
// Numbers may be ints (in-process) or float64 (decoded JSON).
func SessionMetricsFromMap(m map[string]any) SessionMetrics {
	var out SessionMetrics
	out.TotalRequests = intValue(m["requests"])
	out.FailedRequests = intValue(m["failed_requests"])
	out.TotalRetries = intValue(m["retries"])
	out.TotalRefreshes = intValue(m["refreshes"])
	out.FailedRefreshes = intValue(m["failed_refreshes"])
	out.RefreshWaiters = intValue(m["refresh_waiters"])
	out.TotalLatency = time.Duration(intValue(m["latency_ms"])) * time.Millisecond
	out.EndTime = out.StartTime.Add(time.Duration(intValue(m["elapsed_ms"])) * time.Millisecond)
	return out
}

// FormatParts returns human-readable fragments for a one-line stats display.
func (m SessionMetrics) FormatParts() []string {
	var parts []string
	if elapsed := m.EndTime.Sub(m.StartTime); elapsed > 0 {
		parts = append(parts, fmt.Sprintf("%dms", elapsed.Milliseconds()))
	}
	if m.TotalRequests > 0 {
		word := "requests"
		if m.TotalRequests == 1 {
			word = "request"
		}
		parts = append(parts, fmt.Sprintf("%d %s", m.TotalRequests, word))
	}
	if m.TotalRetries > 0 {
		parts = append(parts, fmt.Sprintf("%d retried", m.TotalRetries))
	}
	if m.TotalRefreshes > 0 {
		parts = append(parts, fmt.Sprintf("%d token refresh", m.TotalRefreshes))
	}
	if m.FailedRequests > 0 {
		parts = append(parts, fmt.Sprintf("%d failed", m.FailedRequests))
	}
	return parts
}

func intValue(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}
