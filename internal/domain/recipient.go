package domain

import (
	"fmt"
	"regexp"
	"strings"
)

// RecipientType identifies what kind of address a recipient is.
type RecipientType string

const (
	RecipientEmail  RecipientType = "email"
	RecipientPhone  RecipientType = "phone"
	RecipientDevice RecipientType = "device"
)

var (
	emailPattern  = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	phonePattern  = regexp.MustCompile(`^\+[1-9]\d{6,14}$`)
	devicePattern = regexp.MustCompile(`^[A-Za-z0-9_:.\-]{16,512}$`)
)

// Recipient identifies a message destination. It can only be built through
// NewRecipient, which validates the identifier for its type, so a Recipient
// in hand is always well-formed. Two recipients are equal when both type and
// identifier match (plain == works).
type Recipient struct {
	kind       RecipientType
	identifier string
}

// NewRecipient validates and normalizes an identifier for the given type.
// Email addresses are lowercased and format-checked. Phone numbers are
// normalized to a leading-plus international form ("00" prefixes rewritten,
// separators stripped) and must carry 7-15 digits after the country code.
func NewRecipient(kind RecipientType, identifier string) (Recipient, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return Recipient{}, fmt.Errorf("recipient identifier cannot be empty")
	}

	switch kind {
	case RecipientEmail:
		identifier = strings.ToLower(identifier)
		if !emailPattern.MatchString(identifier) {
			return Recipient{}, fmt.Errorf("invalid email address: %s", identifier)
		}
	case RecipientPhone:
		identifier = normalizePhone(identifier)
		if !phonePattern.MatchString(identifier) {
			return Recipient{}, fmt.Errorf("invalid phone number: %s", identifier)
		}
	case RecipientDevice:
		if !devicePattern.MatchString(identifier) {
			return Recipient{}, fmt.Errorf("invalid device token")
		}
	default:
		return Recipient{}, fmt.Errorf("unsupported recipient type: %s", kind)
	}

	return Recipient{kind: kind, identifier: identifier}, nil
}

// Type returns the recipient type (email or phone).
func (r Recipient) Type() RecipientType { return r.kind }

// Identifier returns the normalized address or phone number.
func (r Recipient) Identifier() string { return r.identifier }

// IsZero reports whether the recipient was never constructed.
func (r Recipient) IsZero() bool { return r.identifier == "" }

func (r Recipient) String() string {
	return fmt.Sprintf("%s:%s", r.kind, r.identifier)
}

// normalizePhone strips common separators and rewrites the number into
// leading-plus form. Non-digit garbage is left in place for the pattern
// check to reject.
func normalizePhone(raw string) string {
	var b strings.Builder
	for _, c := range raw {
		switch {
		case c >= '0' && c <= '9':
			b.WriteRune(c)
		case c == '+' && b.Len() == 0:
			// dropped here, re-added below
		case c == ' ' || c == '-' || c == '(' || c == ')' || c == '.':
			// separator, drop
		default:
			return raw // unexpected character, fail validation downstream
		}
	}
	digits := b.String()
	digits = strings.TrimPrefix(digits, "00")
	return "+" + digits
}
