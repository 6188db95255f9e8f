// Package client is a Go client for the journal HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"

	"github.com/blackmichael/journal/internal/api"
	"github.com/blackmichael/journal/internal/domain"
)

// APIError is a non-2xx response from the server. It unwraps to the
// matching domain error, so callers can use errors.Is(err,
// domain.ErrForbidden).
type APIError struct {
	Status  int
	Type    string
	Message string
}

func (e *APIError) Error() string {
	if e.Type == "" {
		return fmt.Sprintf("API error (status %d): %s", e.Status, e.Message)
	}
	return fmt.Sprintf("API error (status %d): %s: %s", e.Status, e.Type, e.Message)
}

func (e *APIError) Unwrap() error {
	return api.Sentinel(e.Type)
}

// Client talks to a journal server. The session cookie set by Login is kept
// in the client's cookie jar.
type Client struct {
	base       *url.URL
	jar        http.CookieJar
	httpClient *http.Client
}

// NewClient creates a client for the server at baseURL
// (e.g. "http://localhost:3000").
func NewClient(baseURL string) (*Client, error) {
	u, err := url.Parse(strings.TrimSuffix(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("parse base URL: unsupported scheme %q", u.Scheme)
	}

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}

	return &Client{
		base: u,
		jar:  jar,
		httpClient: &http.Client{
			Jar:       jar,
			Timeout:   30 * time.Second,
			Transport: http.DefaultTransport.(*http.Transport).Clone(),
		},
	}, nil
}

// Close releases idle connections.
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}

// Login exchanges a key for a session and returns the granted role.
func (c *Client) Login(ctx context.Context, key string, remember bool) (domain.Role, error) {
	var resp api.LoginResponse
	if err := c.do(ctx, http.MethodPost, "/api/login", api.LoginRequest{APIKey: key, RememberMe: remember}, &resp); err != nil {
		return domain.RoleNone, fmt.Errorf("login: %w", err)
	}
	return resp.Role, nil
}

// Logout ends the session.
func (c *Client) Logout(ctx context.Context) error {
	if err := c.do(ctx, http.MethodPost, "/api/logout", nil, nil); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	return nil
}

// Health reports whether the server answers its health check.
func (c *Client) Health(ctx context.Context) error {
	if err := c.do(ctx, http.MethodGet, "/health", nil, nil); err != nil {
		return fmt.Errorf("health check: %w", err)
	}
	return nil
}

// Session returns the current session state.
func (c *Client) Session(ctx context.Context) (*api.SessionResponse, error) {
	var resp api.SessionResponse
	if err := c.do(ctx, http.MethodGet, "/api/session", nil, &resp); err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return &resp, nil
}

// Posts returns one page of posts. Out of range pages are clamped by the
// server.
func (c *Client) Posts(ctx context.Context, page int) (*api.PageResponse, error) {
	var resp api.PageResponse
	if err := c.do(ctx, http.MethodGet, "/api/posts?page="+strconv.Itoa(page), nil, &resp); err != nil {
		return nil, fmt.Errorf("get posts page %d: %w", page, err)
	}
	return &resp, nil
}

// AllPosts walks every page and returns all posts, newest first. Posts
// created while walking may shift page boundaries; duplicates caused by
// that are dropped.
func (c *Client) AllPosts(ctx context.Context) ([]domain.Post, error) {
	var (
		all  []domain.Post
		seen = map[string]struct{}{}
	)
	for page := 1; ; page++ {
		resp, err := c.Posts(ctx, page)
		if err != nil {
			return nil, err
		}
		for _, v := range resp.Items {
			if v.ID != "" {
				if _, dup := seen[v.ID]; dup {
					continue
				}
				seen[v.ID] = struct{}{}
			}
			all = append(all, v.Post)
		}
		if !resp.HasOlder {
			return all, nil
		}
	}
}

// CreatePost publishes a text post.
func (c *Client) CreatePost(ctx context.Context, text string) (*api.PostView, error) {
	var resp api.CreatePostResponse
	if err := c.do(ctx, http.MethodPost, "/api/posts", api.CreatePostRequest{Text: text}, &resp); err != nil {
		return nil, fmt.Errorf("create post: %w", err)
	}
	return &resp.Post, nil
}

// Upload sends a file and returns the URL it is served from.
func (c *Client) Upload(ctx context.Context, filename string, r io.Reader) (string, error) {
	pr, pw := io.Pipe()
	defer pr.Close()
	mw := multipart.NewWriter(pw)

	go func() {
		part, err := mw.CreateFormFile(api.UploadField, filename)
		if err == nil {
			_, err = io.Copy(part, r)
		}
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("/api/upload"), pr)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var resp api.UploadResponse
	if err := c.send(req, &resp); err != nil {
		return "", fmt.Errorf("upload: %w", err)
	}
	return resp.URL, nil
}

// WebSocketURL returns the URL of the live channel.
func (c *Client) WebSocketURL() string {
	u := *c.base
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"
	return u.String()
}

func (c *Client) endpoint(path string) string {
	return c.base.String() + path
}

func (c *Client) do(ctx context.Context, method, path string, body any, result any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path), reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.send(req, result)
}

func (c *Client) send(req *http.Request, result any) error {
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(respBody))}
		var body api.ErrorResponse
		if json.Unmarshal(respBody, &body) == nil && body.Error != "" {
			apiErr.Type = body.Error
			apiErr.Message = body.Message
		}
		return apiErr
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}
