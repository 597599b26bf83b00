package channel

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"github.com/ignite/courier/internal/domain"
	"github.com/ignite/courier/internal/pkg/logger"
	"github.com/ignite/courier/internal/pkg/ratelimit"
)

// EmailAdapter delivers email through AWS SES using the SDK v2.
type EmailAdapter struct {
	from     string
	fromName string
	region   string
	priority int
	limits   ratelimit.Limits
	client   *sesv2.Client
}

// NewEmailAdapter creates the SES adapter. The SDK client is only
// initialized when credentials are provided; without it the adapter reports
// inactive and the selector skips it.
func NewEmailAdapter(accessKey, secretKey, region, from, fromName string, priority int, limits ratelimit.Limits) *EmailAdapter {
	if region == "" {
		region = "us-east-1"
	}

	a := &EmailAdapter{
		from:     from,
		fromName: fromName,
		region:   region,
		priority: priority,
		limits:   limits,
	}

	if accessKey != "" && secretKey != "" {
		cfg, err := awsconfig.LoadDefaultConfig(context.Background(),
			awsconfig.WithRegion(region),
			awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")),
		)
		if err != nil {
			log.Printf("[SES] Warning: Failed to initialize AWS config: %v", err)
		} else {
			a.client = sesv2.NewFromConfig(cfg)
		}
	}

	return a
}

func (a *EmailAdapter) Name() string       { return "email" }
func (a *EmailAdapter) ProviderID() string { return "ses" }
func (a *EmailAdapter) Priority() int      { return a.priority }
func (a *EmailAdapter) IsActive() bool     { return a.client != nil }

func (a *EmailAdapter) SupportedTypes() []domain.RecipientType {
	return []domain.RecipientType{domain.RecipientEmail}
}

func (a *EmailAdapter) RateLimits() ratelimit.Limits { return a.limits }

// HealthCheck verifies SES reachability by fetching the account.
func (a *EmailAdapter) HealthCheck(ctx context.Context) error {
	if a.client == nil {
		return fmt.Errorf("SES client not initialized - check credentials")
	}
	if _, err := a.client.GetAccount(ctx, &sesv2.GetAccountInput{}); err != nil {
		return fmt.Errorf("SES health check: %w", err)
	}
	return nil
}

// Send delivers a single email through AWS SES.
func (a *EmailAdapter) Send(ctx context.Context, msg *domain.Message) (*SendResult, error) {
	if a.client == nil {
		return nil, domain.AuthenticationError("SES client not initialized", nil)
	}

	subject := msg.Content.Subject()
	if subject == "" {
		subject = "(no subject)"
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(fmt.Sprintf("%s <%s>", a.fromName, a.from)),
		Destination:      &types.Destination{ToAddresses: []string{msg.Recipient.Identifier()}},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(subject), Charset: aws.String("UTF-8")},
				Body: &types.Body{
					Text: &types.Content{Data: aws.String(msg.Content.Body()), Charset: aws.String("UTF-8")},
				},
			},
		},
		EmailTags: []types.MessageTag{
			{Name: aws.String("message_id"), Value: aws.String(msg.ID)},
			{Name: aws.String("request_id"), Value: aws.String(msg.Context.RequestID())},
		},
	}

	result, err := a.client.SendEmail(ctx, input)
	if err != nil {
		log.Printf("[SES] Failed to send to %s: %v", logger.RedactEmail(msg.Recipient.Identifier()), err)
		return nil, classifySESError(ctx, err)
	}

	providerID := ""
	if result.MessageId != nil {
		providerID = *result.MessageId
	}

	log.Printf("[SES] Sent to %s (id: %s)", logger.RedactEmail(msg.Recipient.Identifier()), providerID)

	return &SendResult{ProviderMessageID: providerID, SentAt: time.Now()}, nil
}

// classifySESError maps SDK failures to communication errors. The SDK folds
// the service error code into the error string, so matching stays on that.
func classifySESError(ctx context.Context, err error) domain.CommError {
	if ctx.Err() != nil {
		return domain.NetworkError("SES request aborted: "+err.Error(), nil)
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "Throttling") || strings.Contains(msg, "TooManyRequests"):
		return domain.RateLimitError("SES throttled the request", 0)
	case strings.Contains(msg, "AccessDenied") || strings.Contains(msg, "InvalidClientTokenId") ||
		strings.Contains(msg, "SignatureDoesNotMatch") || strings.Contains(msg, "ExpiredToken"):
		return domain.AuthenticationError("SES authentication failed", nil)
	case strings.Contains(msg, "BadRequest") || strings.Contains(msg, "MessageRejected"):
		return domain.ValidationError("SES rejected message: "+msg, nil)
	case strings.Contains(msg, "no such host") || strings.Contains(msg, "connection") ||
		strings.Contains(msg, "timeout"):
		return domain.NetworkError(msg, nil)
	default:
		return domain.ProviderError(msg, "ses")
	}
}
