// Package gateway implements the Remote Gateway (C1): every outbound
// call to the remote document service funnels through a Client, which
// owns authentication state, the process-wide rate-limit gate, retry
// with exponential backoff, and the on-disk asset cache. It implements
// internal/diff's Applier interface so the reconciler can drive it
// directly.
package gateway

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/time/rate"
)

// RetryableSentinel is the remote service's well-known rate-limit
// error code (spec §4.1).
const RetryableSentinel = 99991400

// TokenExpiredSentinel is the remote service's well-known "access
// token expired/invalid" error code (spec §4.9 step 3).
const TokenExpiredSentinel = 99991663

// ErrReauthRequired is returned when a call fails with
// TokenExpiredSentinel and the TokenSource's refresh attempt also
// fails. The gateway does not start the full browser login flow
// (internal/auth.Authenticator.Login) itself, and no caller in this
// module reacts to this error: it propagates like any other failure.
var ErrReauthRequired = errors.New("gateway: token refresh failed, full browser re-login required")

// Transport is the capability the Client depends on to actually talk
// to the remote service -- an HTTP round-tripper scoped to this
// document service's request/response shapes, not a raw *http.Client,
// so it can be faked in tests without a server.
type Transport interface {
	Do(ctx context.Context, req Request) (Response, error)
}

// Request is one outbound call. Method/Path follow the REST shape the
// original feishu_client.py exercises (e.g. POST
// /open-apis/docx/v1/documents/{id}/blocks/{id}/children).
type Request struct {
	Method string
	Path   string
	Token  string
	Body   any
}

// Response is the decoded envelope every one of the remote service's
// endpoints returns: a numeric Code (0 = success), a Msg, and a
// type-specific Data the caller re-decodes.
type Response struct {
	Code       int
	Msg        string
	Data       any
	RetryAfter time.Duration
	HTTPStatus int
}

func (r Response) retryable() bool {
	return r.Code == RetryableSentinel || r.Code == TokenExpiredSentinel || r.HTTPStatus == 429 || r.HTTPStatus >= 500
}

// TokenSource supplies the gateway's current auth token, preferring a
// user token when present and falling back to an app-level ("tenant")
// token otherwise (spec §4.1 "Token management"). internal/auth owns
// the refresh protocol; the gateway only reads.
type TokenSource interface {
	Token() (string, error)
}

// Refresher is the optional capability a TokenSource implements when
// it can obtain a fresh token after TokenExpiredSentinel (spec §4.9
// step 3). internal/auth.Authenticator implements this; a TokenSource
// that can't refresh (e.g. a fixed test token) simply doesn't, and the
// gateway treats that as an unrecoverable auth failure.
type Refresher interface {
	Refresh(ctx context.Context) (string, error)
}

// RetryConfig controls the gateway's exponential backoff.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// DefaultRetryConfig matches spec §4.1's stated defaults: 3 retries,
// delays 1s, 2s, 4s.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{MaxAttempts: 3, BaseDelay: time.Second}
}

// Client is the Remote Gateway. It is safe for concurrent use by
// multiple orchestrator workers; the rate limiter is the single point
// of serialization (spec §4.1: "orthogonal to per-worker concurrency").
type Client struct {
	transport Transport
	tokens    TokenSource
	limiter   *rate.Limiter
	retry     RetryConfig
	cache     *AssetCache
	metrics   Metrics

	mu sync.Mutex
}

// Metrics is the observability hook the gateway reports through
// (internal/metrics implements it); a nil Metrics is a no-op.
type Metrics interface {
	ObserveCall(path string, attempt int, err error)
	ObserveRateLimitWait(d time.Duration)
}

// RateLimitInterval is the default minimum spacing between outbound
// requests (spec §4.1's "T milliseconds, default 200ms").
const RateLimitInterval = 200 * time.Millisecond

// New constructs a Client. cachePath is the on-disk asset-cache file
// (spec §3 "Asset cache record", user-home location); an empty path
// disables persistence and keeps an in-memory-only cache.
func New(transport Transport, tokens TokenSource, cachePath string, metrics Metrics) (*Client, error) {
	cache, err := LoadAssetCache(cachePath)
	if err != nil {
		return nil, errors.Wrap(err, "load asset cache")
	}
	return &Client{
		transport: transport,
		tokens:    tokens,
		limiter:   rate.NewLimiter(rate.Every(RateLimitInterval), 1),
		retry:     DefaultRetryConfig(),
		cache:     cache,
		metrics:   metrics,
	}, nil
}

// call applies the rate-limit gate, fills in the current token, and
// retries on transport errors or a retryable Response per spec §4.1.
func (c *Client) call(ctx context.Context, req Request) (Response, error) {
	waitStart := time.Now()
	if err := c.limiter.Wait(ctx); err != nil {
		return Response{}, errors.Wrap(err, "rate limit wait")
	}
	if c.metrics != nil {
		c.metrics.ObserveRateLimitWait(time.Since(waitStart))
	}

	token, err := c.tokens.Token()
	if err != nil {
		return Response{}, errors.Wrap(err, "resolve auth token")
	}
	req.Token = token

	var lastErr error
	delay := c.retry.BaseDelay
	refreshed := false
	for attempt := 0; attempt <= c.retry.MaxAttempts; attempt++ {
		resp, err := c.transport.Do(ctx, req)
		if c.metrics != nil {
			c.metrics.ObserveCall(req.Path, attempt, err)
		}

		if err == nil && resp.Code == TokenExpiredSentinel && !refreshed {
			newToken, refreshErr := c.refreshToken(ctx)
			if refreshErr != nil {
				return Response{}, errors.Wrap(ErrReauthRequired, refreshErr.Error())
			}
			req.Token = newToken
			refreshed = true
			attempt-- // the refresh itself doesn't consume a retry attempt
			continue
		}

		if err == nil && !resp.retryable() {
			if resp.Code != 0 {
				return resp, errors.Errorf("%s: remote error %d: %s", req.Path, resp.Code, resp.Msg)
			}
			return resp, nil
		}
		if err == nil {
			lastErr = errors.Errorf("%s: retryable response %d: %s", req.Path, resp.Code, resp.Msg)
		} else {
			lastErr = err
		}
		if attempt == c.retry.MaxAttempts {
			break
		}
		wait := delay
		if err == nil && resp.RetryAfter > 0 {
			wait = resp.RetryAfter
		}
		select {
		case <-ctx.Done():
			return Response{}, errors.Wrap(ctx.Err(), "cancelled during retry backoff")
		case <-time.After(wait):
		}
		delay *= 2
	}
	return Response{}, errors.Wrapf(lastErr, "%s: exhausted retries", req.Path)
}

// refreshToken asks the TokenSource for a fresh token after
// TokenExpiredSentinel, per spec §4.9 step 3. It fails fast when the
// TokenSource has no refresh capability at all.
func (c *Client) refreshToken(ctx context.Context) (string, error) {
	refresher, ok := c.tokens.(Refresher)
	if !ok {
		return "", errors.New("token source does not support refresh")
	}
	return refresher.Refresh(ctx)
}

// blockPayload is kept distinct from block.Block since the wire shape
// (what the remote API's JSON actually looks like) is a peripheral
// concern per SPEC_FULL §1 non-goals; toBlockPayload/fromBlockPayload
// in payload.go do the (de)serialization, isolating block.Block from
// wire drift.
type blockPayload map[string]any
