package routing

import (
	"errors"
	"testing"

	"github.com/ignite/courier/internal/domain"
)

func TestValidateRecipientDisposableEmail(t *testing.T) {
	for _, addr := range []string{
		"user@10minutemail.com",
		"user@tempmail.org",
		"user@guerrillamail.com",
		"user@MAILINATOR.com",
	} {
		r, err := domain.NewRecipient(domain.RecipientEmail, addr)
		if err != nil {
			t.Fatalf("recipient %q: %v", addr, err)
		}
		if err := ValidateRecipient(r); !errors.Is(err, ErrDisposableEmail) {
			t.Errorf("%s: err = %v, want ErrDisposableEmail", addr, err)
		}
	}

	r, _ := domain.NewRecipient(domain.RecipientEmail, "user@example.com")
	if err := ValidateRecipient(r); err != nil {
		t.Errorf("legitimate domain rejected: %v", err)
	}
}

func TestValidateRecipientPhoneLength(t *testing.T) {
	ok, err := domain.NewRecipient(domain.RecipientPhone, "+14155552671")
	if err != nil {
		t.Fatalf("recipient: %v", err)
	}
	if err := ValidateRecipient(ok); err != nil {
		t.Errorf("valid phone rejected: %v", err)
	}

	short, err := domain.NewRecipient(domain.RecipientPhone, "+1234567")
	if err != nil {
		t.Fatalf("recipient: %v", err)
	}
	if err := ValidateRecipient(short); !errors.Is(err, ErrInvalidPhoneLength) {
		t.Errorf("7-digit phone: err = %v, want ErrInvalidPhoneLength", err)
	}
}
