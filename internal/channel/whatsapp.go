package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/ignite/courier/internal/domain"
	"github.com/ignite/courier/internal/pkg/httpretry"
	"github.com/ignite/courier/internal/pkg/logger"
	"github.com/ignite/courier/internal/pkg/ratelimit"
)

// WhatsAppAdapter delivers messages through a WhatsApp Business Cloud style
// JSON API.
type WhatsAppAdapter struct {
	token    string
	phoneID  string
	baseURL  string
	priority int
	limits   ratelimit.Limits
	limiter  *ratelimit.Limiter
	client   httpretry.HTTPDoer
}

// NewWhatsAppAdapter creates the WhatsApp adapter. phoneID is the business
// phone number id the API sends from.
func NewWhatsAppAdapter(token, phoneID, baseURL string, priority int, limits ratelimit.Limits, limiter *ratelimit.Limiter) *WhatsAppAdapter {
	return &WhatsAppAdapter{
		token:    token,
		phoneID:  phoneID,
		baseURL:  strings.TrimRight(baseURL, "/"),
		priority: priority,
		limits:   limits,
		limiter:  limiter,
		client:   httpretry.NewRetryClient(&http.Client{Timeout: 30 * time.Second}, 3),
	}
}

func (a *WhatsAppAdapter) Name() string       { return "whatsapp" }
func (a *WhatsAppAdapter) ProviderID() string { return "whatsapp-cloud" }
func (a *WhatsAppAdapter) Priority() int      { return a.priority }
func (a *WhatsAppAdapter) IsActive() bool {
	return a.token != "" && a.phoneID != "" && a.baseURL != ""
}

func (a *WhatsAppAdapter) SupportedTypes() []domain.RecipientType {
	return []domain.RecipientType{domain.RecipientPhone}
}

func (a *WhatsAppAdapter) RateLimits() ratelimit.Limits { return a.limits }

// HealthCheck verifies the business phone number is reachable.
func (a *WhatsAppAdapter) HealthCheck(ctx context.Context) error {
	if !a.IsActive() {
		return fmt.Errorf("whatsapp adapter not configured")
	}
	req, err := http.NewRequestWithContext(ctx, "GET", fmt.Sprintf("%s/%s", a.baseURL, a.phoneID), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+a.token)
	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("whatsapp api unreachable: %w", err)
	}
	readBody(resp)
	if resp.StatusCode >= 400 {
		return fmt.Errorf("whatsapp health check returned %d", resp.StatusCode)
	}
	return nil
}

// Send delivers a single text message through the WhatsApp API.
func (a *WhatsAppAdapter) Send(ctx context.Context, msg *domain.Message) (*SendResult, error) {
	if !a.IsActive() {
		return nil, domain.AuthenticationError("whatsapp adapter not configured", nil)
	}

	if a.limiter != nil {
		allowed, wait, err := a.limiter.Allow(ctx, a.Name(), a.limits, 1)
		if err != nil {
			log.Printf("[WhatsApp] Rate limit check error: %v", err)
		} else if !allowed {
			return nil, domain.RateLimitError("local rate limit exceeded", wait.Milliseconds())
		}
	}

	payload := map[string]any{
		"messaging_product": "whatsapp",
		"to":                strings.TrimPrefix(msg.Recipient.Identifier(), "+"),
		"type":              "text",
		"text":              map[string]string{"body": msg.Content.Body()},
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, domain.ValidationError("marshal payload: "+err.Error(), nil)
	}

	endpoint := fmt.Sprintf("%s/%s/messages", a.baseURL, a.phoneID)
	req, err := http.NewRequestWithContext(ctx, "POST", endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, domain.ValidationError("create request: "+err.Error(), nil)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.token)

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, domain.NetworkError("whatsapp request failed: "+err.Error(), nil)
	}
	body := readBody(resp)

	if resp.StatusCode >= 400 {
		return nil, classifyHTTPError(resp, body, "whatsapp")
	}

	var result struct {
		Messages []struct {
			ID string `json:"id"`
		} `json:"messages"`
	}
	json.Unmarshal(body, &result)
	providerID := ""
	if len(result.Messages) > 0 {
		providerID = result.Messages[0].ID
	}

	log.Printf("[WhatsApp] Sent to %s (id: %s)", logger.RedactPhone(msg.Recipient.Identifier()), providerID)

	return &SendResult{ProviderMessageID: providerID, SentAt: time.Now()}, nil
}
