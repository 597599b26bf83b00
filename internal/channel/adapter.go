// Package channel contains the concrete delivery adapters.
//
// Adapters are split into individual files:
//   - email.go:    AWS SES v2
//   - sms.go:      SMS gateway (Messages API, form-encoded)
//   - whatsapp.go: WhatsApp Business Cloud style JSON API
//   - push.go:     FCM HTTP v1 style push endpoint
package channel

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/ignite/courier/internal/domain"
	"github.com/ignite/courier/internal/pkg/ratelimit"
)

// SendResult holds the provider acknowledgement for an accepted message.
type SendResult struct {
	ProviderMessageID string
	SentAt            time.Time
}

// Adapter is one concrete delivery channel. Send failures are returned as
// domain.CommError so callers can classify them for retry decisions.
type Adapter interface {
	Name() string
	ProviderID() string
	SupportedTypes() []domain.RecipientType
	Priority() int
	IsActive() bool
	RateLimits() ratelimit.Limits
	HealthCheck(ctx context.Context) error
	Send(ctx context.Context, msg *domain.Message) (*SendResult, error)
}

// classifyHTTPError maps a gateway response status to a communication error.
func classifyHTTPError(resp *http.Response, body []byte, provider string) domain.CommError {
	detail := string(body)
	if len(detail) > 512 {
		detail = detail[:512]
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return domain.AuthenticationError(provider+" authentication failed", map[string]any{"body": detail})
	case resp.StatusCode == http.StatusTooManyRequests:
		var retryAfterMs int64
		if s := resp.Header.Get("Retry-After"); s != "" {
			if secs, err := strconv.Atoi(s); err == nil {
				retryAfterMs = int64(secs) * 1000
			}
		}
		return domain.RateLimitError(provider+" rate limit exceeded", retryAfterMs)
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnprocessableEntity:
		return domain.ValidationError(provider+" rejected message: "+detail, nil)
	default:
		return domain.ProviderError(provider+" error: "+detail, strconv.Itoa(resp.StatusCode))
	}
}

// readBody drains and returns a response body, ignoring read errors. The
// body is only used for error detail and id extraction.
func readBody(resp *http.Response) []byte {
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	return body
}
