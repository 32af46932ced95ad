// Package webui is a client for the Open WebUI REST API, covering only the
// endpoints the importer needs: signin, chat import, and chat listing.
package webui

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	// Bulk import and listing calls move whole chat histories; sign-in is small.
	importTimeout = 120 * time.Second
	authTimeout   = 60 * time.Second
)

type Client struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewClient creates a client for the given API base URL, e.g.
// "http://127.0.0.1:8080/api/v1". A bearer token may be set later via SetToken.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{},
	}
}

// SetToken sets the bearer token used on subsequent requests.
func (c *Client) SetToken(token string) {
	c.token = strings.TrimSpace(token)
}

// HasToken reports whether a bearer token is set.
func (c *Client) HasToken() bool {
	return c.token != ""
}

type signinRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type signinResponse struct {
	Token string `json:"token"`
}

// SignIn exchanges credentials for a bearer token and installs it on the
// client.
func (c *Client) SignIn(ctx context.Context, email, password string) (string, error) {
	body, err := c.do(ctx, http.MethodPost, "/auths/signin", authTimeout, signinRequest{
		Email:    email,
		Password: password,
	})
	if err != nil {
		return "", err
	}

	var resp signinResponse
	if err := json.Unmarshal(body, &resp); err != nil || strings.TrimSpace(resp.Token) == "" {
		return "", fmt.Errorf("unexpected response shape from /auths/signin")
	}

	c.SetToken(resp.Token)
	return c.token, nil
}

// ImportChats delivers a batch of chat forms to /chats/import and returns the
// created chat records. A non-array response is a protocol violation.
func (c *Client) ImportChats(ctx context.Context, forms []ChatForm) ([]ImportedChat, error) {
	body, err := c.do(ctx, http.MethodPost, "/chats/import", importTimeout, ImportPayload{Chats: forms})
	if err != nil {
		return nil, err
	}

	if !isJSONArray(body) {
		return nil, fmt.Errorf("unexpected response shape from /chats/import")
	}
	var imported []ImportedChat
	if err := json.Unmarshal(body, &imported); err != nil {
		return nil, fmt.Errorf("unexpected response shape from /chats/import")
	}
	return imported, nil
}

// ListChats returns every chat visible to the authenticated account. The
// orchestrator filters these down to previously imported ones.
func (c *Client) ListChats(ctx context.Context) ([]ChatRecord, error) {
	body, err := c.do(ctx, http.MethodGet, "/chats/all", importTimeout, nil)
	if err != nil {
		return nil, err
	}

	if !isJSONArray(body) {
		return nil, fmt.Errorf("unexpected response shape from /chats/all")
	}
	var chats []ChatRecord
	if err := json.Unmarshal(body, &chats); err != nil {
		return nil, fmt.Errorf("unexpected response shape from /chats/all")
	}
	return chats, nil
}

// isJSONArray reports whether a response body is a top-level JSON array. A
// null or object body must not pass for a successful import, since the runner
// records delivered ids as imported only after a confirmed array response.
func isJSONArray(body []byte) bool {
	trimmed := bytes.TrimLeft(body, " \t\r\n")
	return len(trimmed) > 0 && trimmed[0] == '['
}

func (c *Client) do(ctx context.Context, method, path string, timeout time.Duration, payload any) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%s %s: HTTP %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	return body, nil
}
