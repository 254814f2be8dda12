package email

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/angelmondragon/newsletter-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/newsletter-backend/pkg/errors"
)

const (
	defaultTimeout = 10 * time.Second
	tokenHeader    = "X-Postmark-Server-Token"
	maxErrorBody   = 1 << 10
)

// Sender delivers one message to one recipient.
type Sender interface {
	Send(ctx context.Context, to Address, subject, htmlBody, textBody string) error
}

// Client sends email through a Postmark-compatible HTTP API.
type Client struct {
	http     *http.Client
	endpoint string
	sender   Address
	token    string
}

type sendRequest struct {
	From     string `json:"from"`
	To       string `json:"to"`
	Subject  string `json:"subject"`
	HTMLBody string `json:"html_body"`
	TextBody string `json:"text_body"`
}

// NewClient builds a Client from configuration. httpClient may be nil.
func NewClient(cfg config.EmailConfig, httpClient *http.Client) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errors.New("email base url is required")
	}
	if _, err := url.ParseRequestURI(base); err != nil {
		return nil, fmt.Errorf("invalid email base url: %w", err)
	}
	sender, err := ParseAddress(cfg.SenderEmail)
	if err != nil {
		return nil, fmt.Errorf("invalid sender email: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	// Shallow copy so the caller's client keeps its own timeout.
	client := &http.Client{}
	if httpClient != nil {
		copied := *httpClient
		client = &copied
	}
	client.Timeout = timeout

	return &Client{
		http:     client,
		endpoint: base + "/email",
		sender:   sender,
		token:    cfg.AuthorizationToken,
	}, nil
}

func (c *Client) Send(ctx context.Context, to Address, subject, htmlBody, textBody string) error {
	payload, err := json.Marshal(sendRequest{
		From:     c.sender.String(),
		To:       to.String(),
		Subject:  subject,
		HTMLBody: htmlBody,
		TextBody: textBody,
	})
	if err != nil {
		return fmt.Errorf("encode email request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build email request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(tokenHeader, c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "email provider request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return pkgerrors.New(pkgerrors.CodeDependency, fmt.Sprintf("email provider returned %d", resp.StatusCode)).
			WithDetails(map[string]any{"status": resp.StatusCode, "body": string(body)})
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
