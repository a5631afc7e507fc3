// Package httputil provides a typed HTTP client for the feedd API.
package httputil

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/R3E-Network/ledgerfeed/internal/errors"
	"github.com/R3E-Network/ledgerfeed/internal/ledger"
	"github.com/R3E-Network/ledgerfeed/internal/middleware"
	"github.com/R3E-Network/ledgerfeed/internal/social"
)

// Client calls a feedd server.
type Client struct {
	httpClient *http.Client
	baseURL    string
	maxRetries int
	backoff    time.Duration
}

// ClientConfig configures a Client.
type ClientConfig struct {
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
	Backoff    time.Duration
}

// NewClient creates a client for the server at cfg.BaseURL.
func NewClient(cfg ClientConfig) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 3 * time.Minute
	}
	maxRetries := cfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = 2
	}
	backoff := cfg.Backoff
	if backoff == 0 {
		backoff = 500 * time.Millisecond
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		maxRetries: maxRetries,
		backoff:    backoff,
	}
}

// retryable reports whether a response status may be retried. Throttled
// requests never reached the ledger, so they are safe to repeat for any
// method; gateway errors are retried for reads only.
func retryable(method string, status int) bool {
	switch status {
	case http.StatusTooManyRequests:
		return true
	case http.StatusBadGateway, http.StatusServiceUnavailable:
		return method == http.MethodGet
	}
	return false
}

func (c *Client) do(ctx context.Context, method, path string, body, target interface{}) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
	}
	requestID := middleware.RequestID(ctx)
	if requestID == "" {
		requestID = uuid.New().String()
	}

	for attempt := 0; ; attempt++ {
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		req.Header.Set(middleware.RequestIDHeader, requestID)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		if retryable(method, resp.StatusCode) && attempt < c.maxRetries {
			resp.Body.Close()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.backoff * time.Duration(attempt+1)):
			}
			continue
		}
		return DecodeResponse(resp, target)
	}
}

// DecodeResponse decodes a JSON response into target. Error responses are
// returned as *errors.ServiceError carrying the server's code.
func DecodeResponse(resp *http.Response, target interface{}) error {
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		var body struct {
			Code    errors.Code            `json:"code"`
			Error   string                 `json:"error"`
			Details map[string]interface{} `json:"details"`
		}
		if json.Unmarshal(raw, &body) != nil || body.Code == "" {
			body.Code = errors.CodeInternal
			body.Error = strings.TrimSpace(string(raw))
		}
		body.Error = strings.TrimPrefix(body.Error, string(body.Code)+": ")
		return &errors.ServiceError{
			Code:       body.Code,
			Message:    body.Error,
			Details:    body.Details,
			HTTPStatus: resp.StatusCode,
		}
	}

	if target == nil {
		return nil
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func userPath(owner ledger.Identity, rest ...string) string {
	p := "/v1/users/" + url.PathEscape(owner.String())
	for _, r := range rest {
		p += "/" + r
	}
	return p
}

// Feed returns viewer's feed.
func (c *Client) Feed(ctx context.Context, viewer ledger.Identity, refresh bool) ([]social.FeedItem, error) {
	var out struct {
		Items []social.FeedItem `json:"items"`
	}
	path := "/v1/feed/" + url.PathEscape(viewer.String()) + "?refresh=" + strconv.FormatBool(refresh)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

// UserPage returns owner's profile and posts.
func (c *Client) UserPage(ctx context.Context, owner ledger.Identity) (*social.UserPage, error) {
	var page social.UserPage
	if err := c.do(ctx, http.MethodGet, userPath(owner), nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// Followees lists the identities owner follows.
func (c *Client) Followees(ctx context.Context, owner ledger.Identity) ([]ledger.Identity, error) {
	var out struct {
		Following []ledger.Identity `json:"following"`
	}
	if err := c.do(ctx, http.MethodGet, userPath(owner, "following"), nil, &out); err != nil {
		return nil, err
	}
	return out.Following, nil
}

// IsFollowing reports whether owner follows candidate.
func (c *Client) IsFollowing(ctx context.Context, owner, candidate ledger.Identity) (bool, error) {
	var out struct {
		Following bool `json:"following"`
	}
	if err := c.do(ctx, http.MethodGet, userPath(owner, "following", url.PathEscape(candidate.String())), nil, &out); err != nil {
		return false, err
	}
	return out.Following, nil
}

// CreateProfile creates owner's profile.
func (c *Client) CreateProfile(ctx context.Context, owner ledger.Identity, username string) error {
	return c.do(ctx, http.MethodPost, userPath(owner, "profile"), map[string]string{"username": username}, nil)
}

// CreatePost publishes a post and returns the server's pending item.
func (c *Client) CreatePost(ctx context.Context, owner ledger.Identity, text string) (social.FeedItem, error) {
	var item social.FeedItem
	err := c.do(ctx, http.MethodPost, userPath(owner, "posts"), map[string]string{"text": text}, &item)
	return item, err
}

// CreateFollowEdge makes owner follow target.
func (c *Client) CreateFollowEdge(ctx context.Context, owner, target ledger.Identity) error {
	return c.do(ctx, http.MethodPost, userPath(owner, "follows"), map[string]ledger.Identity{"target": target}, nil)
}
