package email

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/oauth2"

	"github.com/brunojppb/mailbolt/internal/config"
)

// ProviderError is returned when the provider answers with a non-2xx status
type ProviderError struct {
	StatusCode int
	Body       string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("email provider returned status %d: %s", e.StatusCode, e.Body)
}

// HTTPSender implements Sender against a JSON email API authenticated
// with a bearer token
type HTTPSender struct {
	baseURL string
	from    string
	client  *http.Client
}

type sendEmailRequest struct {
	From     string `json:"From"`
	To       string `json:"To"`
	Subject  string `json:"Subject"`
	HTMLBody string `json:"HtmlBody"`
	TextBody string `json:"TextBody"`
}

// NewHTTPSender creates a new HTTPSender
func NewHTTPSender(cfg config.EmailConfig) *HTTPSender {
	client := &http.Client{Timeout: cfg.HTTP.Timeout}
	if cfg.HTTP.AuthorizationToken != "" {
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, client)
		client = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
			AccessToken: cfg.HTTP.AuthorizationToken,
			TokenType:   "Bearer",
		}))
		client.Timeout = cfg.HTTP.Timeout
	}

	return &HTTPSender{
		baseURL: strings.TrimRight(cfg.HTTP.BaseURL, "/"),
		from:    cfg.SenderAddress,
		client:  client,
	}
}

// Send posts msg to {base_url}/email
func (s *HTTPSender) Send(ctx context.Context, msg Message) error {
	payload, err := json.Marshal(sendEmailRequest{
		From:     s.from,
		To:       msg.To,
		Subject:  msg.Subject,
		HTMLBody: msg.HTMLBody,
		TextBody: msg.TextBody,
	})
	if err != nil {
		return fmt.Errorf("encoding email request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/email", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("creating email request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("executing email request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &ProviderError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	_, _ = io.Copy(io.Discard, resp.Body)

	return nil
}
