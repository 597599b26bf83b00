package routing

import (
	"errors"
	"strings"
	"testing"

	"github.com/ignite/courier/internal/domain"
)

type fakeChannel struct {
	name     string
	active   bool
	priority int
}

func (c fakeChannel) Name() string   { return c.name }
func (c fakeChannel) IsActive() bool { return c.active }
func (c fakeChannel) Priority() int  { return c.priority }

func emailRecipient(t *testing.T) domain.Recipient {
	t.Helper()
	r, err := domain.NewRecipient(domain.RecipientEmail, "user@example.com")
	if err != nil {
		t.Fatalf("recipient: %v", err)
	}
	return r
}

func phoneRecipient(t *testing.T) domain.Recipient {
	t.Helper()
	r, err := domain.NewRecipient(domain.RecipientPhone, "+14155552671")
	if err != nil {
		t.Fatalf("recipient: %v", err)
	}
	return r
}

func TestSelectChannelNoActive(t *testing.T) {
	_, err := SelectChannel(emailRecipient(t), []Channel{
		fakeChannel{name: "email", active: false, priority: 1},
	})
	if !errors.Is(err, ErrNoActiveChannels) {
		t.Fatalf("err = %v, want ErrNoActiveChannels", err)
	}
}

func TestSelectChannelNoCompatible(t *testing.T) {
	_, err := SelectChannel(emailRecipient(t), []Channel{
		fakeChannel{name: "sms", active: true, priority: 1},
	})
	if !errors.Is(err, ErrNoCompatibleChannels) {
		t.Fatalf("err = %v, want ErrNoCompatibleChannels", err)
	}
	if !strings.Contains(err.Error(), "recipient type: email") {
		t.Errorf("error should name the recipient type: %v", err)
	}
}

func TestSelectChannelCompatibility(t *testing.T) {
	channels := []Channel{
		fakeChannel{name: "email", active: true, priority: 1},
		fakeChannel{name: "sms", active: true, priority: 1},
		fakeChannel{name: "whatsapp", active: true, priority: 1},
	}

	got, err := SelectChannel(emailRecipient(t), channels)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if got.Name() != "email" {
		t.Errorf("email recipient routed to %s", got.Name())
	}

	got, err = SelectChannel(phoneRecipient(t), channels)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	// whatsapp outranks sms by class priority
	if got.Name() != "whatsapp" {
		t.Errorf("phone recipient routed to %s, want whatsapp", got.Name())
	}
}

func TestSelectChannelConfiguredPriorityBreaksTies(t *testing.T) {
	got, err := SelectChannel(phoneRecipient(t), []Channel{
		fakeChannel{name: "sms", active: true, priority: 2},
		fakeChannel{name: "sms", active: true, priority: 9},
		fakeChannel{name: "sms", active: true, priority: 5},
	})
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if got.Priority() != 9 {
		t.Errorf("priority = %d, want 9", got.Priority())
	}
}

func TestSelectChannelSkipsInactive(t *testing.T) {
	got, err := SelectChannel(phoneRecipient(t), []Channel{
		fakeChannel{name: "whatsapp", active: false, priority: 1},
		fakeChannel{name: "sms", active: true, priority: 1},
	})
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if got.Name() != "sms" {
		t.Errorf("routed to %s, want sms", got.Name())
	}
}
