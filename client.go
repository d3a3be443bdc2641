// Package aceconnect is the Go client SDK for the Ace Connect tennis
// matchmaking platform.
//
// Covers the REST API (auth, matchmaking, events, payments, players) with a
// sub-client access pattern, plus the realtime chat channel and the
// client-side state that keeps conversations and invitations in sync.
//
// Example:
//
//	client := aceconnect.NewClient(aceconnect.WithTokenStore(store))
//	if _, err := client.Auth.Login(ctx, "ana@example.com", "secret"); err != nil { ... }
//
//	ch := client.NewChannel(nil)
//	_ = ch.Connect(ctx)
//	conv := aceconnect.NewConversations(ch, client.Matchmaking, client.Session(), nil)
//	_ = conv.Select(ctx, 42)
//	_ = conv.Send(ctx, "gg")
package aceconnect

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

	"go.uber.org/zap"
)

const (
	DefaultBaseURL = "https://ace-connect.onrender.com/api"
	DefaultTimeout = 30 * time.Second
)

// ============================================================================
// Client
// ============================================================================

type Client struct {
	baseURL       string
	httpClient    *http.Client
	logger        *zap.Logger
	tokens        TokenStore
	onAuthFailure func(error)
	session       *SessionStore

	Auth        *AuthClient
	Profile     *ProfileClient
	Matchmaking *MatchmakingClient
	Events      *EventsClient
	Payments    *PaymentsClient
	Users       *UsersClient
	Settings    *SettingsClient
}

type ClientOption func(*Client)

func WithBaseURL(url string) ClientOption {
	return func(c *Client) { c.baseURL = strings.TrimRight(url, "/") }
}

func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) { c.httpClient.Timeout = timeout }
}

func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = client }
}

func WithLogger(logger *zap.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithTokenStore sets where the session token is persisted. Defaults to an
// in-memory store.
func WithTokenStore(store TokenStore) ClientOption {
	return func(c *Client) { c.tokens = store }
}

// WithAuthFailureHandler is called after a 401 response has invalidated the
// session, typically to send the user back to the login screen.
func WithAuthFailureHandler(fn func(error)) ClientOption {
	return func(c *Client) { c.onAuthFailure = fn }
}

// NewClient creates a new Ace Connect client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		logger: zap.NewNop(),
	}

	for _, opt := range opts {
		opt(c)
	}
	if c.tokens == nil {
		c.tokens = NewMemoryTokenStore()
	}

	c.session = newSessionStore(c.tokens, c.logger.Named("session"))
	c.Auth = &AuthClient{c: c}
	c.Profile = &ProfileClient{c: c}
	c.Matchmaking = &MatchmakingClient{c: c}
	c.Events = &EventsClient{c: c}
	c.Payments = &PaymentsClient{c: c}
	c.Users = &UsersClient{c: c}
	c.Settings = &SettingsClient{c: c}
	return c
}

// Session returns the session store shared by all sub-clients.
func (c *Client) Session() *SessionStore {
	return c.session
}

// Logger returns the client's logger.
func (c *Client) Logger() *zap.Logger {
	return c.logger
}

// BaseURL returns the REST API root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// RealtimeURL returns the channel endpoint. The socket server lives at the
// API host root, so a trailing /api segment is dropped.
func (c *Client) RealtimeURL() string {
	base := strings.TrimSuffix(c.baseURL, "/api")
	base = strings.Replace(base, "https://", "wss://", 1)
	base = strings.Replace(base, "http://", "ws://", 1)
	return base + "/ws"
}

// NewChannel creates a realtime channel authenticated with the current
// session token. Call Connect to establish the connection.
func (c *Client) NewChannel(config *ChannelConfig) *Channel {
	var cfg ChannelConfig
	if config != nil {
		cfg = *config
	}
	if cfg.TokenSource == nil {
		cfg.TokenSource = c.session.Token
	}
	if cfg.Logger == nil {
		cfg.Logger = c.logger.Named("channel")
	}
	return NewChannel(c.RealtimeURL(), &cfg)
}

// ============================================================================
// Internal request helper
// ============================================================================

type requestOption func(*http.Request)

func withBearer(token string) requestOption {
	return func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }
}

func withHeader(key, value string) requestOption {
	return func(r *http.Request) { r.Header.Set(key, value) }
}

func (c *Client) doRequest(ctx context.Context, method, path string, body any, query map[string]string, opts ...requestOption) ([]byte, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		params := url.Values{}
		for k, v := range query {
			params.Set(k, v)
		}
		u += "?" + params.Encode()
	}

	var bodyReader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.session.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for _, opt := range opts {
		opt(req)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %w", ErrNetwork, method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %w", ErrNetwork, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := parseAPIError(resp.StatusCode, data)
		c.logger.Debug("api error",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.String("code", apiErr.Code),
		)
		if resp.StatusCode == http.StatusUnauthorized && req.Header.Get("Authorization") != "" {
			c.handleAuthFailure(apiErr)
		}
		return nil, apiErr
	}
	return data, nil
}

// handleAuthFailure invalidates the session after the backend rejected its
// token.
func (c *Client) handleAuthFailure(cause error) {
	c.logger.Warn("auth failure, invalidating session", zap.Error(cause))
	if err := c.session.clear(); err != nil {
		c.logger.Warn("clear persisted token", zap.Error(err))
	}
	if c.onAuthFailure != nil {
		c.onAuthFailure(cause)
	}
}

func decodeJSON[T any](data []byte) (*T, error) {
	var result T
	if len(bytes.TrimSpace(data)) == 0 {
		return &result, nil
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return &result, nil
}

func call[T any](ctx context.Context, c *Client, method, path string, body any, opts ...requestOption) (*T, error) {
	data, err := c.doRequest(ctx, method, path, body, nil, opts...)
	if err != nil {
		return nil, err
	}
	return decodeJSON[T](data)
}

// callList decodes a JSON array response; a null body yields an empty slice.
func callList[T any](ctx context.Context, c *Client, path string) ([]T, error) {
	out, err := call[[]T](ctx, c, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	if *out == nil {
		return []T{}, nil
	}
	return *out, nil
}
