package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ignite/courier/internal/domain"
	"github.com/ignite/courier/internal/pkg/httpretry"
	"github.com/ignite/courier/internal/pkg/logger"
	"github.com/ignite/courier/internal/pkg/ratelimit"
)

// An SMS message longer than this would exceed ten concatenated segments.
const maxSMSLength = 1600

// SMSAdapter delivers text messages through an HTTP gateway Messages API.
type SMSAdapter struct {
	apiKey   string
	from     string
	baseURL  string
	priority int
	limits   ratelimit.Limits
	limiter  *ratelimit.Limiter
	client   httpretry.HTTPDoer
}

// NewSMSAdapter creates the SMS gateway adapter. A nil limiter disables
// local rate limiting (the gateway still enforces its own).
func NewSMSAdapter(apiKey, from, baseURL string, priority int, limits ratelimit.Limits, limiter *ratelimit.Limiter) *SMSAdapter {
	return &SMSAdapter{
		apiKey:   apiKey,
		from:     from,
		baseURL:  strings.TrimRight(baseURL, "/"),
		priority: priority,
		limits:   limits,
		limiter:  limiter,
		client:   httpretry.NewRetryClient(&http.Client{Timeout: 30 * time.Second}, 3),
	}
}

func (a *SMSAdapter) Name() string       { return "sms" }
func (a *SMSAdapter) ProviderID() string { return "sms-gateway" }
func (a *SMSAdapter) Priority() int      { return a.priority }
func (a *SMSAdapter) IsActive() bool     { return a.apiKey != "" && a.baseURL != "" }

func (a *SMSAdapter) SupportedTypes() []domain.RecipientType {
	return []domain.RecipientType{domain.RecipientPhone}
}

func (a *SMSAdapter) RateLimits() ratelimit.Limits { return a.limits }

// HealthCheck probes the gateway health endpoint.
func (a *SMSAdapter) HealthCheck(ctx context.Context) error {
	if !a.IsActive() {
		return fmt.Errorf("sms gateway not configured")
	}
	req, err := http.NewRequestWithContext(ctx, "GET", a.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	req.SetBasicAuth("api", a.apiKey)
	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("sms gateway unreachable: %w", err)
	}
	readBody(resp)
	if resp.StatusCode >= 400 {
		return fmt.Errorf("sms gateway health check returned %d", resp.StatusCode)
	}
	return nil
}

// Send delivers a single SMS through the gateway.
func (a *SMSAdapter) Send(ctx context.Context, msg *domain.Message) (*SendResult, error) {
	if !a.IsActive() {
		return nil, domain.AuthenticationError("sms gateway not configured", nil)
	}

	if len(msg.Content.Body()) > maxSMSLength {
		return nil, domain.ValidationError(fmt.Sprintf("message too long (max %d characters)", maxSMSLength), nil)
	}

	if a.limiter != nil {
		allowed, wait, err := a.limiter.Allow(ctx, a.Name(), a.limits, 1)
		if err != nil {
			log.Printf("[SMS] Rate limit check error: %v", err)
		} else if !allowed {
			return nil, domain.RateLimitError("local rate limit exceeded", wait.Milliseconds())
		}
	}

	form := url.Values{}
	form.Add("from", a.from)
	form.Add("to", msg.Recipient.Identifier())
	form.Add("body", msg.Content.Body())
	form.Add("v:message_id", msg.ID)
	form.Add("v:request_id", msg.Context.RequestID())

	req, err := http.NewRequestWithContext(ctx, "POST", a.baseURL+"/messages", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, domain.ValidationError("create request: "+err.Error(), nil)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth("api", a.apiKey)

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, domain.NetworkError("sms gateway request failed: "+err.Error(), nil)
	}
	body := readBody(resp)

	if resp.StatusCode >= 400 {
		return nil, classifyHTTPError(resp, body, "sms gateway")
	}

	var result struct {
		ID string `json:"id"`
	}
	json.Unmarshal(body, &result)

	log.Printf("[SMS] Sent to %s (id: %s)", logger.RedactPhone(msg.Recipient.Identifier()), result.ID)

	return &SendResult{ProviderMessageID: result.ID, SentAt: time.Now()}, nil
}
