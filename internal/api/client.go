package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	apperrors "regdesk/internal/errors"
	"regdesk/internal/registration"
)

// Client calls the admin routes of a running server
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates a client for baseURL authenticating with an admin bearer token.
// A nil httpClient gets a 30s timeout.
func NewClient(baseURL, token string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: httpClient,
	}
}

// Pending lists requests awaiting review, oldest first. Passwords are never returned.
func (c *Client) Pending(ctx context.Context) ([]registration.Request, error) {
	var resp struct {
		Requests []requestView `json:"requests"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/registrations/pending", &resp); err != nil {
		return nil, err
	}

	out := make([]registration.Request, len(resp.Requests))
	for i, v := range resp.Requests {
		out[i] = registration.Request{
			ID:         v.ID,
			Username:   v.Username,
			Email:      v.Email,
			Status:     registration.StatusPending,
			CreateDate: time.UnixMilli(v.CreateDate).UTC(),
		}
	}
	return out, nil
}

// Approve approves a pending request and returns the created account ID
func (c *Client) Approve(ctx context.Context, id string) (string, error) {
	var resp struct {
		UserID string `json:"user_id"`
	}
	if err := c.do(ctx, http.MethodPost, requestPath(id, "approve"), &resp); err != nil {
		return "", err
	}
	return resp.UserID, nil
}

// Reject rejects a pending request
func (c *Client) Reject(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, requestPath(id, "reject"), nil)
}

func requestPath(id, action string) string {
	return "/api/v1/registrations/" + url.PathEscape(id) + "/" + action
}

// do sends an authenticated request and decodes a 200 body into out.
// Error bodies come back as *apperrors.UserError.
func (c *Client) do(ctx context.Context, method, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return responseError(resp.StatusCode, body)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}

func responseError(status int, body []byte) error {
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err != nil || eb.Type == "" {
		return fmt.Errorf("server returned %d: %s", status, strings.TrimSpace(string(body)))
	}

	retryable := status == http.StatusTooManyRequests || status >= http.StatusInternalServerError
	return apperrors.Wrap(
		fmt.Errorf("server returned %d: %s", status, eb.Type),
		eb.Type, eb.Message, retryable,
	)
}
