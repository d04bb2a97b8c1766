// Package httpgw talks to a messaging gateway over HTTP.
package httpgw

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"pulsecast/internal/domain"
	"pulsecast/internal/remote"
)

const defaultTimeout = 30 * time.Second

type Client struct {
	base string
	http *http.Client
}

func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		base: strings.TrimRight(baseURL, "/"),
		http: &http.Client{Timeout: timeout},
	}
}

type session struct {
	Token string `json:"token"`
	Name  string `json:"account"`
}

func (s *session) Account() string { return s.Name }

type loginReq struct {
	Credential string `json:"credential"`
}

type sendReq struct {
	Body string `json:"body"`
}

func (c *Client) Login(ctx context.Context, credential string) (remote.Session, error) {
	var s session
	status, body, err := c.do(ctx, http.MethodPost, "/v1/sessions", "", loginReq{Credential: credential})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrCredentialInvalid, err)
	}
	if status >= 400 {
		return nil, fmt.Errorf("%w: HTTP %d: %s", domain.ErrCredentialInvalid, status, snippet(body))
	}
	if err := json.Unmarshal(body, &s); err != nil {
		return nil, fmt.Errorf("%w: invalid session payload: %v", domain.ErrCredentialInvalid, err)
	}
	if s.Token == "" {
		return nil, fmt.Errorf("%w: empty session token", domain.ErrCredentialInvalid)
	}
	return &s, nil
}

func (c *Client) VerifyAccess(ctx context.Context, rs remote.Session, destination string) error {
	s, ok := rs.(*session)
	if !ok {
		return fmt.Errorf("%w: foreign session %T", domain.ErrAccessDenied, rs)
	}
	status, body, err := c.do(ctx, http.MethodGet, "/v1/threads/"+url.PathEscape(destination), s.Token, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrAccessDenied, err)
	}
	if status >= 400 {
		return fmt.Errorf("%w: HTTP %d: %s", domain.ErrAccessDenied, status, snippet(body))
	}
	return nil
}

func (c *Client) Send(ctx context.Context, rs remote.Session, text, destination string) error {
	s, ok := rs.(*session)
	if !ok {
		return fmt.Errorf("%w: foreign session %T", domain.ErrDeliveryFailed, rs)
	}
	path := "/v1/threads/" + url.PathEscape(destination) + "/messages"
	status, body, err := c.do(ctx, http.MethodPost, path, s.Token, sendReq{Body: text})
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrDeliveryFailed, err)
	}
	if status >= 400 {
		return fmt.Errorf("%w: HTTP %d: %s", domain.ErrDeliveryFailed, status, snippet(body))
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path, token string, payload any) (int, []byte, error) {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return resp.StatusCode, respBody, nil
}

func snippet(b []byte) string {
	const limit = 200
	s := strings.TrimSpace(string(b))
	if len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}
