// Package auth implements the Authenticator (C9): the app-token
// exchange, the local-listener browser OAuth flow that obtains a user
// access/refresh token pair, and the refresh protocol the gateway's
// TokenSource falls back to when a call reports an expired-token
// sentinel. It owns no config singleton -- callers hand it the single
// config.Config value the whole process shares (spec §9 design note).
package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/cedarlabs/vaultsync/internal/config"
)

const (
	baseURL           = "https://open.feishu.cn"
	appAccessTokenURL = baseURL + "/open-apis/auth/v3/app_access_token/internal"
	authIndexURL      = baseURL + "/open-apis/authen/v1/index"
	accessTokenURL    = baseURL + "/open-apis/authen/v1/access_token"
	refreshTokenURL   = baseURL + "/open-apis/authen/v1/refresh_access_token"

	// DefaultCallbackPort is the port the local OAuth callback listener
	// binds, grounded on the original's AUTH_SERVER_PORT / REDIRECT_URI.
	DefaultCallbackPort = 8000
)

// Authenticator exchanges the configured app id/secret for an
// app-level token and drives the three-legged user OAuth flow. It
// implements gateway.TokenSource so an *Authenticator can be handed
// directly to gateway.New.
type Authenticator struct {
	Config       *config.Config
	ConfigPath   string
	CallbackPort int
	HTTPClient   *http.Client

	mu sync.Mutex
}

// New constructs an Authenticator bound to cfg, persisting any token
// refresh back to configPath.
func New(cfg *config.Config, configPath string) *Authenticator {
	return &Authenticator{
		Config:       cfg,
		ConfigPath:   configPath,
		CallbackPort: DefaultCallbackPort,
		HTTPClient:   &http.Client{Timeout: 15 * time.Second},
	}
}

// Token implements gateway.TokenSource: it prefers the stored user
// token and falls back to an app-level token when no user token is
// configured yet (spec §4.1 "Token management").
func (a *Authenticator) Token() (string, error) {
	a.mu.Lock()
	userToken := a.Config.FeishuUserAccessToken
	a.mu.Unlock()
	if userToken != "" {
		return userToken, nil
	}
	return a.appAccessToken(context.Background())
}

func (a *Authenticator) appAccessToken(ctx context.Context) (string, error) {
	a.mu.Lock()
	appID, appSecret := a.Config.FeishuAppID, a.Config.FeishuAppSecret
	a.mu.Unlock()

	var out struct {
		AppAccessToken string `json:"app_access_token"`
		Code           int    `json:"code"`
		Msg            string `json:"msg"`
	}
	if err := a.postJSON(ctx, appAccessTokenURL, "", map[string]string{
		"app_id":     appID,
		"app_secret": appSecret,
	}, &out); err != nil {
		return "", errors.Wrap(err, "get app access token")
	}
	if out.AppAccessToken == "" {
		return "", errors.Errorf("get app access token: %s", out.Msg)
	}
	return out.AppAccessToken, nil
}

// exchangeResult is the shared shape of both the code-exchange and
// refresh responses' "data" field.
type exchangeResult struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Refresh exchanges the stored refresh token for a new access/refresh
// pair, persisting the result, and reports the refreshed auth state
// the gateway should retry with after an expired-token sentinel (spec
// §4.1's "refresh-on-expiry-sentinel protocol").
func (a *Authenticator) Refresh(ctx context.Context) (string, error) {
	a.mu.Lock()
	refreshToken := a.Config.FeishuUserRefreshToken
	a.mu.Unlock()
	if refreshToken == "" {
		return "", errors.New("no refresh token available")
	}

	appToken, err := a.appAccessToken(ctx)
	if err != nil {
		return "", errors.Wrap(err, "refresh: get app access token")
	}

	var resp struct {
		Code int             `json:"code"`
		Msg  string          `json:"msg"`
		Data exchangeResult `json:"data"`
	}
	if err := a.postJSON(ctx, refreshTokenURL, appToken, map[string]string{
		"grant_type":    "refresh_token",
		"refresh_token": refreshToken,
	}, &resp); err != nil {
		return "", errors.Wrap(err, "refresh user token")
	}
	if resp.Data.AccessToken == "" {
		return "", errors.Errorf("refresh user token: %s", resp.Msg)
	}

	if err := a.saveTokens(resp.Data.AccessToken, resp.Data.RefreshToken); err != nil {
		return "", err
	}
	return resp.Data.AccessToken, nil
}

func (a *Authenticator) exchangeCode(ctx context.Context, code string) (exchangeResult, error) {
	appToken, err := a.appAccessToken(ctx)
	if err != nil {
		return exchangeResult{}, errors.Wrap(err, "exchange code: get app access token")
	}

	var resp struct {
		Code int            `json:"code"`
		Msg  string         `json:"msg"`
		Data exchangeResult `json:"data"`
	}
	if err := a.postJSON(ctx, accessTokenURL, appToken, map[string]string{
		"grant_type": "authorization_code",
		"code":       code,
	}, &resp); err != nil {
		return exchangeResult{}, errors.Wrap(err, "exchange authorization code")
	}
	if resp.Data.AccessToken == "" {
		return exchangeResult{}, errors.Errorf("exchange authorization code: %s", resp.Msg)
	}
	return resp.Data, nil
}

func (a *Authenticator) saveTokens(access, refresh string) error {
	a.mu.Lock()
	a.Config.FeishuUserAccessToken = access
	if refresh != "" {
		a.Config.FeishuUserRefreshToken = refresh
	}
	cfg := *a.Config
	a.mu.Unlock()

	if a.ConfigPath == "" {
		return nil
	}
	return errors.Wrap(config.Save(a.ConfigPath, cfg), "persist refreshed tokens")
}

// AuthURL returns the browser-facing login URL a caller (cmd/vaultsync
// login) opens, with a random CSRF state the caller must check against
// the callback's returned state.
func (a *Authenticator) AuthURL(state string) string {
	a.mu.Lock()
	appID := a.Config.FeishuAppID
	a.mu.Unlock()
	redirect := fmt.Sprintf("http://127.0.0.1:%d/callback", a.CallbackPort)
	v := url.Values{}
	v.Set("redirect_uri", redirect)
	v.Set("app_id", appID)
	v.Set("state", state)
	return authIndexURL + "?" + v.Encode()
}

// NewState generates a fresh CSRF state token for one login attempt.
func NewState() string {
	return uuid.NewString()
}

func (a *Authenticator) postJSON(ctx context.Context, url, bearer string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "marshal request body")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := a.HTTPClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "do request")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "read response body")
	}
	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("%s: http %d: %s", url, resp.StatusCode, string(raw))
	}
	return errors.Wrap(json.Unmarshal(raw, out), "decode response body")
}
