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
	"github.com/ignite/courier/internal/pkg/ratelimit"
)

// PushAdapter delivers notifications to device tokens through an FCM HTTP v1
// style endpoint.
type PushAdapter struct {
	token    string
	project  string
	baseURL  string
	priority int
	limits   ratelimit.Limits
	client   httpretry.HTTPDoer
}

// NewPushAdapter creates the push adapter for the given project.
func NewPushAdapter(token, project, baseURL string, priority int, limits ratelimit.Limits) *PushAdapter {
	return &PushAdapter{
		token:    token,
		project:  project,
		baseURL:  strings.TrimRight(baseURL, "/"),
		priority: priority,
		limits:   limits,
		client:   httpretry.NewRetryClient(&http.Client{Timeout: 30 * time.Second}, 3),
	}
}

func (a *PushAdapter) Name() string       { return "push" }
func (a *PushAdapter) ProviderID() string { return "fcm" }
func (a *PushAdapter) Priority() int      { return a.priority }
func (a *PushAdapter) IsActive() bool {
	return a.token != "" && a.project != "" && a.baseURL != ""
}

func (a *PushAdapter) SupportedTypes() []domain.RecipientType {
	return []domain.RecipientType{domain.RecipientDevice}
}

func (a *PushAdapter) RateLimits() ratelimit.Limits { return a.limits }

func (a *PushAdapter) HealthCheck(ctx context.Context) error {
	if !a.IsActive() {
		return fmt.Errorf("push adapter not configured")
	}
	return nil
}

// Send delivers a notification to a single device token.
func (a *PushAdapter) Send(ctx context.Context, msg *domain.Message) (*SendResult, error) {
	if !a.IsActive() {
		return nil, domain.AuthenticationError("push adapter not configured", nil)
	}

	payload := map[string]any{
		"message": map[string]any{
			"token": msg.Recipient.Identifier(),
			"notification": map[string]string{
				"title": msg.Content.Subject(),
				"body":  msg.Content.Body(),
			},
			"data": map[string]string{
				"message_id": msg.ID,
				"request_id": msg.Context.RequestID(),
			},
		},
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, domain.ValidationError("marshal payload: "+err.Error(), nil)
	}

	endpoint := fmt.Sprintf("%s/v1/projects/%s/messages:send", a.baseURL, a.project)
	req, err := http.NewRequestWithContext(ctx, "POST", endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, domain.ValidationError("create request: "+err.Error(), nil)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.token)

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, domain.NetworkError("push request failed: "+err.Error(), nil)
	}
	body := readBody(resp)

	if resp.StatusCode >= 400 {
		return nil, classifyHTTPError(resp, body, "push")
	}

	var result struct {
		Name string `json:"name"`
	}
	json.Unmarshal(body, &result)

	log.Printf("[Push] Sent to device (id: %s)", result.Name)

	return &SendResult{ProviderMessageID: result.Name, SentAt: time.Now()}, nil
}
