package domain

import (
	"strings"
	"testing"
)

func TestCommErrorRetryability(t *testing.T) {
	cases := []struct {
		err       CommError
		code      string
		retryable bool
	}{
		{NetworkError("connection reset", nil), ErrCodeNetwork, true},
		{RateLimitError("throttled", 5000), ErrCodeRateLimit, true},
		{ProviderError("upstream 500", "ERR-500"), ErrCodeProvider, true},
		{AuthenticationError("bad api key", nil), ErrCodeAuthentication, false},
		{ValidationError("bad address", nil), ErrCodeValidation, false},
	}
	for _, tc := range cases {
		if tc.err.Code() != tc.code {
			t.Errorf("code = %s, want %s", tc.err.Code(), tc.code)
		}
		if tc.err.IsRetryable() != tc.retryable {
			t.Errorf("%s: retryable = %v, want %v", tc.code, tc.err.IsRetryable(), tc.retryable)
		}
	}
}

func TestRateLimitRetryAfter(t *testing.T) {
	err := RateLimitError("throttled", 7500)
	if got := err.RetryAfterMs(); got != 7500 {
		t.Errorf("retryAfterMs = %d, want 7500", got)
	}
	if got := NetworkError("down", nil).RetryAfterMs(); got != 0 {
		t.Errorf("retryAfterMs for network error = %d, want 0", got)
	}
}

func TestNewCommErrorNormalizesCode(t *testing.T) {
	err, cerr := NewCommError("network_error", "boom", true, nil)
	if cerr != nil {
		t.Fatalf("new comm error: %v", cerr)
	}
	if err.Code() != ErrCodeNetwork {
		t.Errorf("code = %s, want %s", err.Code(), ErrCodeNetwork)
	}
	if _, cerr := NewCommError("", "boom", true, nil); cerr == nil {
		t.Error("empty code accepted")
	}
	if _, cerr := NewCommError("X", "", true, nil); cerr == nil {
		t.Error("empty message accepted")
	}
}

func TestDeliveryResultFactories(t *testing.T) {
	ok, err := DeliverySuccess("msg-1", "ses", 2)
	if err != nil {
		t.Fatalf("success result: %v", err)
	}
	if !ok.Success() || ok.MessageID() != "msg-1" || ok.ProviderID() != "ses" || ok.RetryCount() != 2 {
		t.Errorf("unexpected success result: %+v", ok)
	}
	if ok.AttemptAt().IsZero() {
		t.Error("attempt timestamp not set")
	}
	if ok.IsRetryable() {
		t.Error("success must not be retryable")
	}

	if _, err := DeliverySuccess("", "ses", 0); err == nil {
		t.Error("success without message id accepted")
	}

	fail, err := DeliveryFailure(NetworkError("timeout", nil), 1)
	if err != nil {
		t.Fatalf("failure result: %v", err)
	}
	if fail.Success() || !fail.IsRetryable() {
		t.Errorf("unexpected failure result: success=%v retryable=%v", fail.Success(), fail.IsRetryable())
	}
	if !strings.Contains(fail.Err().Error(), "timeout") {
		t.Errorf("error text = %q", fail.Err().Error())
	}

	if _, err := DeliveryFailure(CommError{}, 0); err == nil {
		t.Error("failure without error accepted")
	}
}
