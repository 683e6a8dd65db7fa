// Package client is a thin pass-through client for the s4 gateway. It
// forwards SQL text with the shared secret header and surfaces the raw
// response; it keeps no state beyond the base URL and credential, and
// performs no retries.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"s4/api"
	"s4/config"
)

// Client talks to one s4 instance.
type Client struct {
	baseURL    string
	secretKey  string
	httpClient *http.Client
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New creates a client for the gateway at baseURL. An empty secretKey
// falls back to the degraded-mode default, matching a server that was
// never configured.
func New(baseURL, secretKey string, opts ...Option) *Client {
	if secretKey == "" {
		secretKey = config.DefaultSecretKey
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		secretKey:  secretKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect verifies the gateway is reachable and the credential is
// accepted.
func (c *Client) Connect(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/", nil)
	if err != nil {
		return err
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to s4 server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to connect to s4 server: %s", readError(resp.Body, resp.StatusCode))
	}
	return nil
}

// SQL executes one SQL statement on the gateway and returns the result
// rows. A gateway-reported error comes back as a Go error carrying the
// server's message.
func (c *Client) SQL(ctx context.Context, sqlText string) ([]map[string]any, error) {
	body, err := json.Marshal(map[string]string{"sql": sqlText})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/sql", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sql request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("sql request failed: %s", readError(resp.Body, resp.StatusCode))
	}

	var result struct {
		SQLResponse []map[string]any `json:"sqlResponse"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode sql response: %w", err)
	}
	return result.SQLResponse, nil
}

// setHeaders attaches the shared secret and content type.
func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set(api.SecretKeyHeader, c.secretKey)
	req.Header.Set("Content-Type", "application/json")
}

// readError extracts the gateway's error message from a failed
// response, falling back to the HTTP status.
func readError(body io.Reader, statusCode int) string {
	var e struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(body).Decode(&e); err == nil && e.Error != "" {
		return e.Error
	}
	return http.StatusText(statusCode)
}
