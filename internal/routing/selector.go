package routing

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ignite/courier/internal/domain"
)

// Channel is the subset of an adapter the selector needs. Concrete adapters
// in internal/channel satisfy it.
type Channel interface {
	Name() string
	IsActive() bool
	Priority() int
}

// Class priorities by channel name (higher wins). Unknown channels rank
// below all known ones.
var classPriorities = map[string]int{
	"email":    1,
	"sms":      2,
	"whatsapp": 3,
	"push":     4,
}

// SelectChannel picks the best channel for a recipient: active channels
// only, filtered to those compatible with the recipient type, ordered by
// class priority and then by the channel's configured priority.
func SelectChannel(recipient domain.Recipient, available []Channel) (Channel, error) {
	active := make([]Channel, 0, len(available))
	for _, ch := range available {
		if ch.IsActive() {
			active = append(active, ch)
		}
	}
	if len(active) == 0 {
		return nil, ErrNoActiveChannels
	}

	compatible := make([]Channel, 0, len(active))
	for _, ch := range active {
		if channelCompatible(ch.Name(), recipient.Type()) {
			compatible = append(compatible, ch)
		}
	}
	if len(compatible) == 0 {
		return nil, fmt.Errorf("%w for recipient type: %s", ErrNoCompatibleChannels, recipient.Type())
	}

	sort.SliceStable(compatible, func(i, j int) bool {
		ci := classPriorities[strings.ToLower(compatible[i].Name())]
		cj := classPriorities[strings.ToLower(compatible[j].Name())]
		if ci != cj {
			return ci > cj
		}
		return compatible[i].Priority() > compatible[j].Priority()
	})

	return compatible[0], nil
}

// channelCompatible maps recipient types to the channel classes able to
// reach them.
func channelCompatible(channelName string, typ domain.RecipientType) bool {
	name := strings.ToLower(channelName)
	switch typ {
	case domain.RecipientEmail:
		return name == "email"
	case domain.RecipientPhone:
		return name == "sms" || name == "whatsapp" || name == "voice"
	case domain.RecipientDevice:
		return name == "push"
	default:
		return false
	}
}
