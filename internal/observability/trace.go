package observability

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"
)

// sensitiveParams are query parameter names that should be scrubbed from trace output.
var sensitiveParams = map[string]bool{
	"access_token":  true,
	"refresh_token": true,
	"token":         true, // email verification, password reset
	"code":          true, // OAuth authorization code
	"password":      true,
	"secret":        true,
}

// TraceWriter outputs human-readable trace information to stderr.
// It formats output with timestamps relative to session start.
type TraceWriter struct {
	mu        sync.Mutex
	writer    io.Writer
	startTime time.Time
}

// NewTraceWriter creates a new TraceWriter that writes to stderr.
func NewTraceWriter() *TraceWriter {
	return NewTraceWriterTo(os.Stderr)
}

// NewTraceWriterTo creates a new TraceWriter that writes to the given writer.
func NewTraceWriterTo(w io.Writer) *TraceWriter {
	return &TraceWriter{
		writer:    w,
		startTime: time.Now(),
	}
}

func (t *TraceWriter) elapsed() float64 {
	return time.Since(t.startTime).Seconds()
}

// WriteRequestStart writes a request start trace line.
// Format: [0.234s]   -> GET /user/items
// Sensitive query parameters are redacted.
func (t *TraceWriter) WriteRequestStart(info RequestInfo) {
	t.mu.Lock()
	defer t.mu.Unlock()

	line := fmt.Sprintf("[%.3fs]   -> %s %s", t.elapsed(), info.Method, scrubURL(info.URL))
	if info.Attempt > 1 {
		line += fmt.Sprintf(" (attempt %d)", info.Attempt)
	}
	fmt.Fprintln(t.writer, line)
}

// WriteRequestEnd writes a request completion trace line.
// Format: [0.234s]   <- 200 (45ms)
func (t *TraceWriter) WriteRequestEnd(_ RequestInfo, result RequestResult) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if result.Error != nil {
		fmt.Fprintf(t.writer, "[%.3fs]   <- ERROR: %v\n", t.elapsed(), result.Error)
		return
	}
	fmt.Fprintf(t.writer, "[%.3fs]   <- %d (%dms)\n", t.elapsed(), result.StatusCode, result.Duration.Milliseconds())
}

// WriteRetry writes a retry trace line.
// Format: [0.234s]   RETRY #2: connection reset
func (t *TraceWriter) WriteRetry(_ RequestInfo, attempt int, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	fmt.Fprintf(t.writer, "[%.3fs]   RETRY #%d: %v\n", t.elapsed(), attempt, err)
}

// WriteRefresh writes a refresh cycle trace line.
// Format: [0.234s] Token refresh ok (120ms, 3 waiting)
func (t *TraceWriter) WriteRefresh(info RefreshInfo) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch {
	case info.Error != nil:
		fmt.Fprintf(t.writer, "[%.3fs] Token refresh failed: %v\n", t.elapsed(), info.Error)
	case info.Reused:
		fmt.Fprintf(t.writer, "[%.3fs] Token already refreshed (%d waiting)\n", t.elapsed(), info.Waiters)
	default:
		fmt.Fprintf(t.writer, "[%.3fs] Token refresh ok (%dms, %d waiting)\n", t.elapsed(), info.Duration.Milliseconds(), info.Waiters)
	}
}

// Reset resets the start time for relative timestamps.
func (t *TraceWriter) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.startTime = time.Now()
}

// scrubURL redacts sensitive query parameters from a URL for safe logging.
// Returns a safe placeholder if the URL cannot be parsed.
func scrubURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "[unparseable URL]"
	}

	query := u.Query()
	modified := false
	for key := range query {
		if sensitiveParams[strings.ToLower(key)] {
			query.Set(key, "[REDACTED]")
			modified = true
		}
	}

	if !modified {
		return rawURL
	}

	u.RawQuery = query.Encode()
	return u.String()
}
