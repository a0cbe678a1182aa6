// Package mailbolt is a small client for the mailbolt subscription API.
package mailbolt

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Config holds the configuration for the mailbolt client.
type Config struct {
	// BaseURL is the root URL of the mailbolt server.
	// Example: "https://newsletter.example.com"
	BaseURL string

	// HTTPClient is an optional custom HTTP client.
	// If nil, a default client with 10s timeout is used.
	HTTPClient *http.Client
}

func (c *Config) defaults() {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	c.BaseURL = strings.TrimSuffix(c.BaseURL, "/")
}

// Client calls the subscription endpoints of a mailbolt server.
type Client struct {
	cfg Config
}

// NewClient creates a new mailbolt client with the given configuration.
func NewClient(cfg Config) *Client {
	cfg.defaults()
	return &Client{cfg: cfg}
}

// Subscribe registers name and email. The server sends the confirmation
// email before answering, so a nil error means the email went out.
func (c *Client) Subscribe(ctx context.Context, name, email string) error {
	form := url.Values{}
	form.Set("name", name)
	form.Set("email", email)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/subscriptions", strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("mailbolt: failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	_, err = c.do(req)
	return err
}

// Confirm redeems a confirmation token taken from the email link.
func (c *Client) Confirm(ctx context.Context, token string) error {
	q := url.Values{}
	q.Set("subscription_token", token)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/subscriptions/confirm?"+q.Encode(), nil)
	if err != nil {
		return fmt.Errorf("mailbolt: failed to create request: %w", err)
	}

	_, err = c.do(req)
	return err
}

// ConfirmLink follows a confirmation link as found in the email body. The
// link host is ignored so links built for a public URL work against BaseURL.
func (c *Client) ConfirmLink(ctx context.Context, link string) error {
	u, err := url.Parse(link)
	if err != nil {
		return fmt.Errorf("mailbolt: invalid confirmation link: %w", err)
	}
	token := u.Query().Get("subscription_token")
	if token == "" {
		return ErrNoToken
	}
	return c.Confirm(ctx, token)
}

// HealthCheck calls the liveness probe.
func (c *Client) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/health_check", nil)
	if err != nil {
		return fmt.Errorf("mailbolt: failed to create request: %w", err)
	}
	_, err = c.do(req)
	return err
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	req.Header.Set("Accept", "application/json")

	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("mailbolt: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("mailbolt: failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, parseAPIError(resp.StatusCode, body)
	}

	return body, nil
}
