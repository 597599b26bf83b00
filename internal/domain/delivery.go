package domain

import (
	"fmt"
	"strings"
	"time"
)

// Normalized error codes returned by channel adapters. The retry policy
// engine keys off these; anything else is treated as unknown and not
// retried.
const (
	ErrCodeNetwork        = "NETWORK_ERROR"
	ErrCodeAuthentication = "AUTHENTICATION_ERROR"
	ErrCodeValidation     = "VALIDATION_ERROR"
	ErrCodeRateLimit      = "RATE_LIMIT_ERROR"
	ErrCodeProvider       = "PROVIDER_ERROR"
)

// CommError is a classified delivery error with a normalized upper-case
// code, a human-readable message, and optional structured details.
type CommError struct {
	code      string
	message   string
	retryable bool
	details   map[string]any
}

// NewCommError builds an error with an arbitrary code. The code is
// normalized to upper case.
func NewCommError(code, message string, retryable bool, details map[string]any) (CommError, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return CommError{}, fmt.Errorf("error code cannot be empty")
	}
	message = strings.TrimSpace(message)
	if message == "" {
		return CommError{}, fmt.Errorf("error message cannot be empty")
	}
	return CommError{code: code, message: message, retryable: retryable, details: details}, nil
}

// NetworkError classifies a transient transport failure (retryable).
func NetworkError(message string, details map[string]any) CommError {
	return CommError{code: ErrCodeNetwork, message: message, retryable: true, details: details}
}

// AuthenticationError classifies an adapter credential failure (never retried).
func AuthenticationError(message string, details map[string]any) CommError {
	return CommError{code: ErrCodeAuthentication, message: message, retryable: false, details: details}
}

// ValidationError classifies bad input shape (never retried).
func ValidationError(message string, details map[string]any) CommError {
	return CommError{code: ErrCodeValidation, message: message, retryable: false, details: details}
}

// RateLimitError classifies adapter-side throttling. When the provider
// specified an explicit backoff it is carried in the retryAfterMs detail.
func RateLimitError(message string, retryAfterMs int64) CommError {
	details := map[string]any{}
	if retryAfterMs > 0 {
		details["retryAfterMs"] = retryAfterMs
	}
	return CommError{code: ErrCodeRateLimit, message: message, retryable: true, details: details}
}

// ProviderError classifies a generic upstream failure (retryable).
func ProviderError(message, providerCode string) CommError {
	details := map[string]any{}
	if providerCode != "" {
		details["providerCode"] = providerCode
	}
	return CommError{code: ErrCodeProvider, message: message, retryable: true, details: details}
}

// Code returns the normalized error code.
func (e CommError) Code() string { return e.code }

// Message returns the human-readable error message.
func (e CommError) Message() string { return e.message }

// IsRetryable reports whether the error class is transient.
func (e CommError) IsRetryable() bool { return e.retryable }

// IsZero reports whether this is the zero error value.
func (e CommError) IsZero() bool { return e.code == "" }

// Detail returns a structured detail by key.
func (e CommError) Detail(key string) (any, bool) {
	v, ok := e.details[key]
	return v, ok
}

// RetryAfterMs returns the provider-specified backoff, 0 when absent.
func (e CommError) RetryAfterMs() int64 {
	v, ok := e.details["retryAfterMs"]
	if !ok {
		return 0
	}
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	}
	return 0
}

func (e CommError) Error() string {
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

// DeliveryResult records the outcome of one delivery attempt. A successful
// result always carries the provider's message id; a failed one always
// carries a classified error.
type DeliveryResult struct {
	success    bool
	messageID  string
	providerID string
	attemptAt  time.Time
	retryCount int
	err        CommError
}

// DeliverySuccess builds a successful delivery result. The provider message
// id is required.
func DeliverySuccess(messageID, providerID string, retryCount int) (DeliveryResult, error) {
	messageID = strings.TrimSpace(messageID)
	if messageID == "" {
		return DeliveryResult{}, fmt.Errorf("message ID cannot be empty for successful delivery")
	}
	return DeliveryResult{
		success:    true,
		messageID:  messageID,
		providerID: strings.TrimSpace(providerID),
		attemptAt:  time.Now(),
		retryCount: retryCount,
	}, nil
}

// DeliveryFailure builds a failed delivery result from a classified error.
func DeliveryFailure(err CommError, retryCount int) (DeliveryResult, error) {
	if err.IsZero() {
		return DeliveryResult{}, fmt.Errorf("error cannot be empty for failed delivery")
	}
	return DeliveryResult{
		success:    false,
		attemptAt:  time.Now(),
		retryCount: retryCount,
		err:        err,
	}, nil
}

// Success reports whether the attempt succeeded.
func (d DeliveryResult) Success() bool { return d.success }

// MessageID returns the provider-assigned message id, empty on failure.
func (d DeliveryResult) MessageID() string { return d.messageID }

// ProviderID returns the provider that handled the attempt.
func (d DeliveryResult) ProviderID() string { return d.providerID }

// AttemptAt returns when the attempt completed.
func (d DeliveryResult) AttemptAt() time.Time { return d.attemptAt }

// RetryCount returns the message retry count at attempt time.
func (d DeliveryResult) RetryCount() int { return d.retryCount }

// Err returns the classified error on failure; the zero CommError on success.
func (d DeliveryResult) Err() CommError { return d.err }

// IsRetryable reports whether the failure class is transient.
func (d DeliveryResult) IsRetryable() bool { return !d.success && d.err.retryable }

func (d DeliveryResult) String() string {
	if d.success {
		return fmt.Sprintf("DeliveryResult(success=true, messageId=%s, retryCount=%d)", d.messageID, d.retryCount)
	}
	return fmt.Sprintf("DeliveryResult(success=false, error=%s, retryCount=%d)", d.err.Error(), d.retryCount)
}
