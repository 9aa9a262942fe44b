// Package messaging sends outbound messages through the messaging platform's
// Graph API ({base_url}{phone_number_id}/messages).
package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
)

const (
	DefaultBaseURL            = "https://graph.facebook.com/v21.0/"
	DefaultTimeout            = 10 * time.Second
	DefaultRetryMaxElapsed    = 15 * time.Second
	DefaultFlowMessageVersion = "3"

	maxErrorBody = 4 << 10
)

// Config holds the platform credentials and retry policy.
type Config struct {
	BaseURL            string
	PhoneNumberID      string
	AccessToken        string
	Timeout            time.Duration
	RetryMaxElapsed    time.Duration
	FlowMessageVersion string
}

// APIError is a non-2xx response from the platform.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("messaging api: status %d: %s", e.StatusCode, e.Body)
}

// Retryable reports whether the request may succeed if repeated.
func (e *APIError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Client posts messages for a single business phone number.
type Client struct {
	endpoint           string
	accessToken        string
	flowMessageVersion string
	maxElapsed         time.Duration
	httpClient         *http.Client
	logger             *slog.Logger

	// initial backoff interval, shortened in tests
	initialInterval time.Duration
}

// New validates cfg and returns a Client.
func New(cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.PhoneNumberID == "" {
		return nil, errors.New("messaging: phone_number_id is required")
	}
	if cfg.AccessToken == "" {
		return nil, errors.New("messaging: access_token is required")
	}
	base := cfg.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	version := cfg.FlowMessageVersion
	if version == "" {
		version = DefaultFlowMessageVersion
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		endpoint:           base + cfg.PhoneNumberID + "/messages",
		accessToken:        cfg.AccessToken,
		flowMessageVersion: version,
		maxElapsed:         cfg.RetryMaxElapsed,
		httpClient:         &http.Client{Timeout: timeout},
		logger:             logger,
		initialInterval:    500 * time.Millisecond,
	}, nil
}

// MarkRead marks messageID as read and shows a typing indicator to the sender.
func (c *Client) MarkRead(ctx context.Context, messageID string) error {
	return c.post(ctx, "mark_read", statusRequest{
		MessagingProduct: product,
		Status:           "read",
		MessageID:        messageID,
		TypingIndicator:  &typingIndicator{Type: "text"},
	})
}

// SendText sends a plain text message.
func (c *Client) SendText(ctx context.Context, to, body string) error {
	return c.post(ctx, "text", messageRequest{
		MessagingProduct: product,
		RecipientType:    "individual",
		To:               to,
		Type:             "text",
		Text:             &textMessage{Body: body},
	})
}

// SendButtons sends up to three reply buttons. Buttons without an ID are
// numbered replyButton1..3 in order.
func (c *Client) SendButtons(ctx context.Context, to string, msg Buttons) error {
	if len(msg.Buttons) == 0 || len(msg.Buttons) > 3 {
		return fmt.Errorf("messaging: reply buttons need 1 to 3 buttons, got %d", len(msg.Buttons))
	}
	buttons := make([]replyButton, 0, len(msg.Buttons))
	for i, b := range msg.Buttons {
		id := b.ID
		if id == "" {
			id = "replyButton" + strconv.Itoa(i+1)
		}
		buttons = append(buttons, replyButton{Type: "reply", Reply: replyTitle{ID: id, Title: b.Title}})
	}

	in := &interactive{
		Type:   "button",
		Body:   &textBody{Text: msg.Body},
		Action: map[string]any{"buttons": buttons},
	}
	if msg.Header != "" {
		in.Header = &headerBody{Type: "text", Text: msg.Header}
	}
	if msg.Footer != "" {
		in.Footer = &textBody{Text: msg.Footer}
	}
	return c.post(ctx, "buttons", messageRequest{
		MessagingProduct: product,
		RecipientType:    "individual",
		To:               to,
		Type:             "interactive",
		Interactive:      in,
	})
}

// SendFlow sends a flow message that navigates to msg.Screen with msg.Data.
func (c *Client) SendFlow(ctx context.Context, to string, msg Flow) error {
	if msg.FlowID == "" || msg.FlowToken == "" {
		return errors.New("messaging: flow id and flow token are required")
	}
	in := &interactive{
		Type: "flow",
		Body: &textBody{Text: msg.Body},
		Action: flowAction{
			Name: "flow",
			Parameters: flowParameters{
				FlowMessageVersion: c.flowMessageVersion,
				FlowToken:          msg.FlowToken,
				FlowID:             msg.FlowID,
				FlowCTA:            msg.CTA,
				FlowAction:         "navigate",
				Mode:               msg.Mode,
				FlowActionPayload:  flowActionPayload{Screen: msg.Screen, Data: msg.Data},
			},
		},
	}
	if msg.Footer != "" {
		in.Footer = &textBody{Text: msg.Footer}
	}
	return c.post(ctx, "flow", messageRequest{
		MessagingProduct: product,
		To:               to,
		Type:             "interactive",
		Interactive:      in,
	})
}

// SendTemplate sends a pre-approved template with positional body parameters.
func (c *Client) SendTemplate(ctx context.Context, to string, msg Template) error {
	lang := msg.Language
	if lang == "" {
		lang = "en"
	}
	tpl := &templateBody{Name: msg.Name, Language: templateLanguage{Code: lang}}
	if len(msg.BodyParams) > 0 {
		params := make([]templateParameter, 0, len(msg.BodyParams))
		for _, p := range msg.BodyParams {
			params = append(params, templateParameter{Type: "text", Text: p})
		}
		tpl.Components = []templateComponent{{Type: "body", Parameters: params}}
	}
	return c.post(ctx, "template", messageRequest{
		MessagingProduct: product,
		RecipientType:    "individual",
		To:               to,
		Type:             "template",
		Template:         tpl,
	})
}

func (c *Client) post(ctx context.Context, kind string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s message: %w", kind, err)
	}

	attempts := 0
	operation := func() (struct{}, error) {
		attempts++
		return struct{}{}, c.do(ctx, body)
	}

	opts := []backoff.RetryOption{backoff.WithBackOff(c.newBackOff())}
	if c.maxElapsed > 0 {
		opts = append(opts, backoff.WithMaxElapsedTime(c.maxElapsed))
	} else {
		opts = append(opts, backoff.WithMaxTries(1))
	}

	_, err = backoff.Retry(ctx, operation, opts...)
	if err != nil {
		c.logger.Warn("outbound message failed", "kind", kind, "attempts", attempts, "error", err)
		return fmt.Errorf("send %s message: %w", kind, err)
	}
	c.logger.Debug("outbound message sent", "kind", kind, "attempts", attempts)
	return nil
}

func (c *Client) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.initialInterval
	b.MaxInterval = 5 * time.Second
	return b
}

func (c *Client) do(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return backoff.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	apiErr := &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	if !apiErr.Retryable() {
		return backoff.Permanent(apiErr)
	}
	if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
		return errors.Join(apiErr, backoff.RetryAfter(secs))
	}
	return apiErr
}
