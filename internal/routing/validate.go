package routing

import (
	"fmt"
	"strings"

	"github.com/ignite/courier/internal/domain"
)

// Disposable email providers we refuse to deliver to.
var disposableDomains = map[string]bool{
	"10minutemail.com":  true,
	"tempmail.org":      true,
	"guerrillamail.com": true,
	"mailinator.com":    true,
}

// ValidateRecipient applies the delivery-side recipient rules on top of the
// structural validation the value object already did: no disposable email
// domains, phone numbers with 8 to 16 digits.
func ValidateRecipient(recipient domain.Recipient) error {
	switch recipient.Type() {
	case domain.RecipientEmail:
		at := strings.LastIndex(recipient.Identifier(), "@")
		domainPart := strings.ToLower(recipient.Identifier()[at+1:])
		if disposableDomains[domainPart] {
			return fmt.Errorf("%w: %s", ErrDisposableEmail, domainPart)
		}
	case domain.RecipientPhone:
		digits := 0
		for _, c := range recipient.Identifier() {
			if c >= '0' && c <= '9' {
				digits++
			}
		}
		if digits < 8 || digits > 16 {
			return fmt.Errorf("%w: %d digits", ErrInvalidPhoneLength, digits)
		}
	}
	return nil
}
