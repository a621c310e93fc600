package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"golang.org/x/sync/singleflight"

	"github.com/preorder/preorder-cli/internal/observability"
	"github.com/preorder/preorder-cli/internal/output"
)

const refreshKey = "refresh"

// errNoRefreshToken ends a cycle that had nothing to exchange. Callers
// surface their own original 401 instead.
var errNoRefreshToken = errors.New("no refresh token")

// refresher coordinates token refresh cycles for one Client.
// At most one cycle runs at a time; callers arriving during a cycle join it.
type refresher struct {
	c       *Client
	group   singleflight.Group
	waiting atomic.Int64
}

func newRefresher(c *Client) *refresher {
	return &refresher{c: c}
}

// await joins the running cycle or starts one, and blocks until it settles
// or ctx is done. staleToken is the access token the failed request carried.
func (r *refresher) await(ctx context.Context, staleToken string, force bool) error {
	// Counted before DoChan so a cycle that settles at once still sees its
	// initiator; run subtracts the initiator.
	r.waiting.Add(1)
	ch := r.group.DoChan(refreshKey, func() (any, error) {
		return nil, r.run(ctx, staleToken, force)
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run executes one cycle. It outlives the caller that started it: the
// exchange runs on a context detached from that caller's cancellation.
func (r *refresher) run(parent context.Context, staleToken string, force bool) error {
	c := r.c
	start := time.Now()
	info := observability.RefreshInfo{}
	defer func() {
		info.Waiters = int(r.waiting.Swap(0)) - 1
		if info.Waiters < 0 {
			info.Waiters = 0
		}
		info.Duration = time.Since(start)
		c.hooks.OnRefresh(parent, info)
	}()

	// Another cycle may have completed between this caller's 401 and now.
	if !force {
		if current := c.session.AccessToken(); current != "" && current != staleToken {
			c.logger.Debug("access token already refreshed")
			info.Reused = true
			return nil
		}
	}

	refreshToken := c.session.RefreshToken()
	if refreshToken == "" {
		c.logger.Debug("no refresh token stored, signalling logout")
		info.Error = errNoRefreshToken
		c.logout.Notify()
		return errNoRefreshToken
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), c.refreshTimeout)
	defer cancel()

	c.logger.Debug("refreshing access token")
	access, rotated, err := r.exchange(ctx, refreshToken)
	if err == nil {
		err = c.session.UpdateTokens(access, rotated)
	}
	if err != nil {
		c.logger.Debug("token refresh failed, signalling logout", "error", err)
		refreshErr := refreshFailed(err)
		info.Error = refreshErr
		c.logout.Notify()
		return refreshErr
	}
	return nil
}

// exchange calls the refresh endpoint outside the refresh protocol and
// without transient retries.
func (r *refresher) exchange(ctx context.Context, refreshToken string) (access, rotated string, err error) {
	payload, err := json.Marshal(map[string]string{"refresh_token": refreshToken})
	if err != nil {
		return "", "", err
	}
	req := &Request{Method: http.MethodPost, Path: RefreshPath, Public: true, payload: payload}

	resp, err := r.c.do(ctx, req, "", uuid.NewString(), 1)
	if err != nil {
		return "", "", err
	}

	access = gjson.GetBytes(resp.Data, "accessToken").String()
	if access == "" {
		return "", "", errors.New("refresh response did not include an access token")
	}
	return access, gjson.GetBytes(resp.Data, "refreshToken").String(), nil
}

// refreshFailed wraps the cause of a failed cycle as a final auth error.
func refreshFailed(cause error) *output.Error {
	e := output.ErrAuth("Session expired")
	e.Cause = cause
	var apiErr *output.Error
	if errors.As(cause, &apiErr) {
		e.HTTPStatus = apiErr.HTTPStatus
		e.Body = apiErr.Body
		if apiErr.Message != "" {
			e.Message = "Session expired: " + apiErr.Message
		}
	}
	return e
}
