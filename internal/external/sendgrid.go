package external

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/nileshevrywhr/threatwatch-broccoli/internal/config"
	"github.com/nileshevrywhr/threatwatch-broccoli/internal/types"
)

// EmailMessage is one outbound email. ReferenceID carries the report ID for
// correlation with delivery events.
type EmailMessage struct {
	To          string
	Subject     string
	HTMLBody    string
	TextBody    string
	ReferenceID string
}

// EmailProvider delivers report notification emails. It returns the
// provider's message ID on success.
type EmailProvider interface {
	Send(ctx context.Context, msg EmailMessage) (string, error)
}

// sendGridAPIBase is the default SendGrid API base URL, overridable in tests.
const sendGridAPIBase = "https://api.sendgrid.com"

// SendGridClient implements EmailProvider by calling the SendGrid v3 Mail
// Send API through BaseClient, so deliveries inherit the shared circuit
// breaker and retry behavior.
type SendGridClient struct {
	base        *BaseClient
	apiKey      string
	baseURL     string
	fromAddress string
	fromName    string
	logger      *slog.Logger
}

// SendGridOption is a functional option for configuring a SendGridClient.
type SendGridOption func(*SendGridClient)

// WithSendGridBaseURL overrides the API base URL, for tests.
func WithSendGridBaseURL(url string) SendGridOption {
	return func(c *SendGridClient) {
		c.baseURL = strings.TrimSuffix(url, "/")
	}
}

// WithSendGridBaseClient substitutes the transport, for tests that need to
// disable retries.
func WithSendGridBaseClient(base *BaseClient) SendGridOption {
	return func(c *SendGridClient) {
		c.base = base
	}
}

// NewSendGridClient creates a SendGridClient from the email configuration.
func NewSendGridClient(cfg config.EmailConfig, logger *slog.Logger, opts ...SendGridOption) *SendGridClient {
	c := &SendGridClient{
		base: NewBaseClient(
			&http.Client{Timeout: 10 * time.Second},
			"sendgrid",
			RetryPolicy{
				MaxRetries: 2,
				MinWait:    500 * time.Millisecond,
				MaxWait:    5 * time.Second,
			},
			"ThreatWatch/1.0",
		),
		apiKey:      cfg.SendGridAPIKey.Unmask(),
		baseURL:     sendGridAPIBase,
		fromAddress: cfg.FromAddress,
		fromName:    cfg.FromName,
		logger:      logger,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// sendGridMailPayload is the SendGrid v3 mail/send JSON request body.
type sendGridMailPayload struct {
	Personalizations []sendGridPersonalization `json:"personalizations"`
	From             sendGridAddress           `json:"from"`
	Subject          string                    `json:"subject"`
	Content          []sendGridContent         `json:"content"`
	CustomArgs       map[string]string         `json:"custom_args,omitempty"`
}

type sendGridPersonalization struct {
	To []sendGridAddress `json:"to"`
}

type sendGridAddress struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type sendGridContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// Send delivers one email. SendGrid answers 202 Accepted on success; the
// X-Message-Id header is returned as the provider message ID.
func (c *SendGridClient) Send(ctx context.Context, msg EmailMessage) (string, error) {
	payload := c.buildMailPayload(msg)

	body, err := json.Marshal(payload)
	if err != nil {
		return "", types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to marshal SendGrid mail payload",
			err,
		)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v3/mail/send", bytes.NewReader(body))
	if err != nil {
		return "", types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to create SendGrid mail send request",
			err,
		)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.base.Do(req)
	if err != nil {
		// BaseClient failures already carry the right error code.
		var appErr *types.AppError
		if errors.As(err, &appErr) {
			return "", err
		}
		return "", types.NewAppError(
			types.ErrCodeUpstreamEmail,
			fmt.Sprintf("SendGrid request failed: %v", err),
			err,
		)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusAccepted {
		msgID := resp.Header.Get("X-Message-Id")
		c.logger.InfoContext(ctx, "email accepted by provider",
			"message_id", msgID,
			"reference_id", msg.ReferenceID,
		)
		return msgID, nil
	}

	return "", c.handleErrorResponse(resp)
}

// buildMailPayload maps an EmailMessage to the SendGrid v3 payload. Plain
// text content must precede HTML in the content array.
func (c *SendGridClient) buildMailPayload(msg EmailMessage) sendGridMailPayload {
	var content []sendGridContent
	if msg.TextBody != "" {
		content = append(content, sendGridContent{Type: "text/plain", Value: msg.TextBody})
	}
	if msg.HTMLBody != "" {
		content = append(content, sendGridContent{Type: "text/html", Value: msg.HTMLBody})
	}

	payload := sendGridMailPayload{
		Personalizations: []sendGridPersonalization{
			{To: []sendGridAddress{{Email: msg.To}}},
		},
		From: sendGridAddress{
			Email: c.fromAddress,
			Name:  c.fromName,
		},
		Subject: msg.Subject,
		Content: content,
	}

	if msg.ReferenceID != "" {
		payload.CustomArgs = map[string]string{"reference_id": msg.ReferenceID}
	}

	return payload
}

// sendGridErrorResponse is the JSON error body returned by SendGrid.
type sendGridErrorResponse struct {
	Errors []struct {
		Message string `json:"message"`
		Field   string `json:"field"`
	} `json:"errors"`
}

// handleErrorResponse maps a non-202 SendGrid response to an AppError.
func (c *SendGridClient) handleErrorResponse(resp *http.Response) error {
	body, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return types.NewAppError(
			types.ErrCodeUpstreamEmail,
			fmt.Sprintf("SendGrid returned status %d and response body was unreadable", resp.StatusCode),
			readErr,
		)
	}

	errMsg := string(body)
	var sgErr sendGridErrorResponse
	if jsonErr := json.Unmarshal(body, &sgErr); jsonErr == nil && len(sgErr.Errors) > 0 {
		errMsg = sgErr.Errors[0].Message
	}

	return types.NewAppError(
		types.ErrCodeUpstreamEmail,
		fmt.Sprintf("SendGrid error (%d): %s", resp.StatusCode, errMsg),
		nil,
	)
}

// Compile-time assertion that SendGridClient satisfies EmailProvider.
var _ EmailProvider = (*SendGridClient)(nil)
