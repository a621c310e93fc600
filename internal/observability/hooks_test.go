package observability

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCLIHooks_SetLevel(t *testing.T) {
	h := NewCLIHooks(0, nil, nil)

	assert.Equal(t, 0, h.Level())

	h.SetLevel(2)
	assert.Equal(t, 2, h.Level())
}

func TestCLIHooks_Level0_Silent(t *testing.T) {
	var buf bytes.Buffer
	collector := NewSessionCollector()
	h := NewCLIHooks(0, collector, NewTraceWriterTo(&buf))

	ctx := context.Background()
	info := RequestInfo{Method: "POST", URL: "/user/add_order", Attempt: 1}
	ctx = h.OnRequestStart(ctx, info)
	h.OnRequestEnd(ctx, info, RequestResult{StatusCode: 201, Duration: 45 * time.Millisecond})
	h.OnRefresh(ctx, RefreshInfo{Waiters: 2})

	assert.Equal(t, 0, buf.Len(), "expected no output at level 0")

	summary := collector.Summary()
	assert.Equal(t, 1, summary.TotalRequests)
	assert.Equal(t, 1, summary.TotalRefreshes)
}

func TestCLIHooks_Level1_RefreshOnly(t *testing.T) {
	var buf bytes.Buffer
	h := NewCLIHooks(1, nil, NewTraceWriterTo(&buf))

	ctx := context.Background()
	info := RequestInfo{Method: "GET", URL: "/user/items", Attempt: 1}
	ctx = h.OnRequestStart(ctx, info)
	h.OnRequestEnd(ctx, info, RequestResult{StatusCode: 200})
	h.OnRefresh(ctx, RefreshInfo{Waiters: 2, Duration: 30 * time.Millisecond})

	out := buf.String()
	assert.Contains(t, out, "Token refresh ok")
	assert.NotContains(t, out, "/user/items")
}

func TestCLIHooks_Level2_Requests(t *testing.T) {
	var buf bytes.Buffer
	h := NewCLIHooks(2, nil, NewTraceWriterTo(&buf))

	ctx := context.Background()
	info := RequestInfo{Method: "GET", URL: "/user/items", Attempt: 1}
	ctx = h.OnRequestStart(ctx, info)
	h.OnRequestEnd(ctx, info, RequestResult{StatusCode: 200, Duration: 12 * time.Millisecond})
	h.OnRetry(ctx, info, 2, errors.New("service unavailable"))

	out := buf.String()
	assert.Contains(t, out, "-> GET /user/items")
	assert.Contains(t, out, "<- 200 (12ms)")
	assert.Contains(t, out, "RETRY #2: service unavailable")
}

func TestCLIHooks_NilCollectorAndWriter(t *testing.T) {
	h := NewCLIHooks(2, nil, nil)

	ctx := context.Background()
	assert.NotPanics(t, func() {
		h.OnRequestStart(ctx, RequestInfo{})
		h.OnRequestEnd(ctx, RequestInfo{}, RequestResult{})
		h.OnRetry(ctx, RequestInfo{}, 2, nil)
		h.OnRefresh(ctx, RefreshInfo{})
	})
}
