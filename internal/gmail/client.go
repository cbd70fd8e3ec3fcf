package gmail

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"

	appErrors "github.com/unclebandit/outreach-backend/internal/errors"
)

// Client is the HTTP gateway implementation of Gateway.
type Client struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client

	// Per-workspace pacing toward the gateway.
	RequestsPerSecond float64
	Burst             int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func NewClient(baseURL, token string) *Client {
	return &Client{
		BaseURL:           baseURL,
		Token:             token,
		HTTPClient:        &http.Client{Timeout: 60 * time.Second},
		RequestsPerSecond: 5,
		Burst:             5,
		limiters:          map[string]*rate.Limiter{},
	}
}

func (c *Client) limiter(workspaceID string) *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.limiters == nil {
		c.limiters = map[string]*rate.Limiter{}
	}
	l, ok := c.limiters[workspaceID]
	if !ok {
		l = rate.NewLimiter(rate.Limit(c.RequestsPerSecond), c.Burst)
		c.limiters[workspaceID] = l
	}
	return l
}

// gatewayError is the error body returned by the gateway.
type gatewayError struct {
	Code    string `json:"code"`
	Reason  string `json:"reason"`
	Message string `json:"message"`
}

func (c *Client) do(ctx context.Context, workspaceID, method, path string, in, out any) error {
	if err := c.limiter(workspaceID).Wait(ctx); err != nil {
		return err
	}

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.Token)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return context.DeadlineExceeded
		}
		return appErrors.NewTransientDeliveryError("NETWORK_ERROR", err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return c.decodeError(workspaceID, resp)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) decodeError(workspaceID string, resp *http.Response) error {
	var ge gatewayError
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(raw, &ge); err != nil || ge.Message == "" {
		ge.Message = fmt.Sprintf("gateway returned %d", resp.StatusCode)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		return appErrors.NewAuthError(workspaceID, ge.Message)
	}

	code := ge.Code
	if code == "" {
		code = ge.Reason
	}
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		if code == "" {
			code = "RATE_LIMIT_EXCEEDED"
		}
		return appErrors.NewTransientDeliveryError(code, ge.Message)
	case resp.StatusCode >= 500:
		if code == "" {
			code = "SERVICE_UNAVAILABLE"
		}
		return appErrors.NewTransientDeliveryError(code, ge.Message)
	default:
		if code == "" {
			code = "PERMISSION_DENIED"
		}
		return appErrors.NewFatalDeliveryError(code, ge.Message)
	}
}

func (c *Client) IsTokenValid(ctx context.Context, workspaceID string) (bool, error) {
	var out struct {
		Valid bool `json:"valid"`
	}
	err := c.do(ctx, workspaceID, http.MethodGet, "/workspaces/"+url.PathEscape(workspaceID)+"/token", nil, &out)
	if appErrors.IsAuthError(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return out.Valid, nil
}

func (c *Client) Send(ctx context.Context, workspaceID string, msg OutgoingMessage) (SendResult, error) {
	var out SendResult
	err := c.do(ctx, workspaceID, http.MethodPost, "/workspaces/"+url.PathEscape(workspaceID)+"/messages", msg, &out)
	return out, err
}

func (c *Client) FetchNewMessages(ctx context.Context, workspaceID string, since *time.Time) ([]Envelope, error) {
	path := "/workspaces/" + url.PathEscape(workspaceID) + "/messages"
	if since != nil {
		path += "?since=" + url.QueryEscape(since.UTC().Format(time.RFC3339))
	}
	var out struct {
		Messages []Envelope `json:"messages"`
	}
	if err := c.do(ctx, workspaceID, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Messages, nil
}

var _ Gateway = (*Client)(nil)
