// Package upstream forwards requests to the upstream conversational API
// using a selected credential and exposes the plumbing needed to turn an
// upstream HTTP response into a pool.Reason classification.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"

	"relaygate/internal/config"
	"relaygate/internal/constants"
	"relaygate/internal/pool"
)

// Client performs HTTP calls against the upstream API, attaching the
// selected credential's token as an Authorization: Bearer header.
type Client struct {
	http    *http.Client
	baseURL string
}

// New builds a Client using the teacher's high-throughput transport
// profile, since the proxy fans a large number of concurrent client
// requests out over a comparatively small credential pool.
func New(cfg *config.Config) *Client {
	tc := constants.GetHighThroughputTransportConfig()
	dialer := &net.Dialer{Timeout: constants.HighThroughputDialTimeout, KeepAlive: constants.DefaultKeepAlive}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		MaxIdleConns:          tc.MaxIdleConns,
		MaxIdleConnsPerHost:   tc.MaxIdleConnsPerHost,
		MaxConnsPerHost:       tc.MaxConnsPerHost,
		IdleConnTimeout:       tc.IdleConnTimeout,
		TLSHandshakeTimeout:   constants.HighThroughputTLSHandshakeTimeout,
		ResponseHeaderTimeout: constants.HighThroughputResponseHeaderTimeout,
		ExpectContinueTimeout: constants.DefaultExpectContinueTimeout,
		ForceAttemptHTTP2:     tc.EnableHTTP2,
	}
	return &Client{
		http:    &http.Client{Transport: transport},
		baseURL: cfg.Upstream.BaseURL,
	}
}

// Forward issues a single call against path using cred's token, returning
// the raw response for the caller to stream or buffer. The caller owns
// resp.Body and must close it.
func (c *Client) Forward(ctx context.Context, cred *pool.Credential, path string, body []byte, headers http.Header) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	for k, vs := range headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Content-Type", "application/json")
	if cred != nil {
		req.Header.Set("Authorization", "Bearer "+cred.Token)
	}
	return c.http.Do(req)
}

// Utilization is the per-window usage snapshot reported by the upstream
// account-status endpoint, used to enrich the admin list view.
type Utilization struct {
	SubscriptionTier string  `json:"subscription_tier"`
	Session          float64 `json:"session"`
	Weekly           float64 `json:"weekly"`
	WeeklyOpus       float64 `json:"weekly_opus"`
	WeeklySonnet     float64 `json:"weekly_sonnet"`
}

// FetchUtilization queries the upstream account-status endpoint for cred's
// current per-window utilization. Used only to enrich the admin list view;
// failures degrade to an empty Utilization rather than failing the list.
func (c *Client) FetchUtilization(ctx context.Context, cred *pool.Credential) (Utilization, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/oauth/usage", nil)
	if err != nil {
		return Utilization{}, err
	}
	if cred != nil {
		req.Header.Set("Authorization", "Bearer "+cred.Token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return Utilization{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Utilization{}, &httpStatusError{code: resp.StatusCode}
	}
	var out Utilization
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Utilization{}, err
	}
	return out, nil
}

type httpStatusError struct{ code int }

func (e *httpStatusError) Error() string {
	return http.StatusText(e.code)
}

// WithUpstreamTimeout returns a context carrying the standard upstream
// deadline for either a buffered or streaming call.
func WithUpstreamTimeout(parent context.Context, stream bool) (context.Context, context.CancelFunc) {
	timeout := constants.UpstreamGenerateTimeout
	if stream {
		timeout = constants.UpstreamStreamTimeout
	}
	return context.WithTimeout(parent, timeout)
}
