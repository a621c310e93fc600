package observability

import (
	"context"
	"sync"
)

// Hooks receives lifecycle events from the API client.
type Hooks interface {
	OnRequestStart(ctx context.Context, info RequestInfo) context.Context
	OnRequestEnd(ctx context.Context, info RequestInfo, result RequestResult)
	OnRetry(ctx context.Context, info RequestInfo, attempt int, err error)
	OnRefresh(ctx context.Context, info RefreshInfo)
}

// NoopHooks discards every event.
type NoopHooks struct{}

func (NoopHooks) OnRequestStart(ctx context.Context, _ RequestInfo) context.Context { return ctx }
func (NoopHooks) OnRequestEnd(context.Context, RequestInfo, RequestResult) {}
func (NoopHooks) OnRetry(context.Context, RequestInfo, int, error) {}
func (NoopHooks) OnRefresh(context.Context, RefreshInfo) {}

var (
	_ Hooks = NoopHooks{}
	_ Hooks = (*CLIHooks)(nil)
)

// CLIHooks implements Hooks for CLI observability.
// It supports configurable verbosity levels:
//   - 0: Silent (collect stats only, no output)
//   - 1: Token refresh cycles
//   - 2: Refresh cycles + HTTP requests
type CLIHooks struct {
	mu        sync.Mutex
	level     int
	collector *SessionCollector
	writer    *TraceWriter
}

// NewCLIHooks creates a new CLIHooks with the given verbosity level.
// If collector is nil, metrics are not collected.
// If writer is nil, no trace output is produced.
func NewCLIHooks(level int, collector *SessionCollector, writer *TraceWriter) *CLIHooks {
	return &CLIHooks{
		level:     level,
		collector: collector,
		writer:    writer,
	}
}

// SetLevel changes the verbosity level at runtime.
func (h *CLIHooks) SetLevel(level int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.level = level
}

// Level returns the current verbosity level.
func (h *CLIHooks) Level() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.level
}

func (h *CLIHooks) snapshot() (int, *SessionCollector, *TraceWriter) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.level, h.collector, h.writer
}

// OnRequestStart is called before an HTTP request is sent.
func (h *CLIHooks) OnRequestStart(ctx context.Context, info RequestInfo) context.Context {
	level, _, writer := h.snapshot()
	if level >= 2 && writer != nil {
		writer.WriteRequestStart(info)
	}
	return ctx
}

// OnRequestEnd is called after an HTTP request completes.
func (h *CLIHooks) OnRequestEnd(_ context.Context, info RequestInfo, result RequestResult) {
	level, collector, writer := h.snapshot()
	if collector != nil {
		collector.RecordRequest(info, result)
	}
	if level >= 2 && writer != nil {
		writer.WriteRequestEnd(info, result)
	}
}

// OnRetry is called before a retry attempt.
func (h *CLIHooks) OnRetry(_ context.Context, info RequestInfo, attempt int, err error) {
	level, collector, writer := h.snapshot()
	if collector != nil {
		collector.RecordRetry(info, attempt, err)
	}
	if level >= 2 && writer != nil {
		writer.WriteRetry(info, attempt, err)
	}
}

// OnRefresh is called once per settled refresh cycle.
func (h *CLIHooks) OnRefresh(_ context.Context, info RefreshInfo) {
	level, collector, writer := h.snapshot()
	if collector != nil {
		collector.RecordRefresh(info)
	}
	if level >= 1 && writer != nil {
		writer.WriteRefresh(info)
	}
}
