package domain

import (
	"fmt"
	"strings"
	"time"
)

// Status enumerates the lifecycle states of a message.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusQueued    Status = "queued"
	StatusSending   Status = "sending"
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Priority controls retry budget and processing order.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// MaxRetries returns the retry ceiling for the priority.
func (p Priority) MaxRetries() int {
	switch p {
	case PriorityUrgent:
		return 5
	case PriorityHigh:
		return 4
	case PriorityLow:
		return 2
	default:
		return 3
	}
}

// weight is the base term of the processing score.
func (p Priority) weight() int {
	switch p {
	case PriorityUrgent:
		return 1000
	case PriorityHigh:
		return 100
	case PriorityLow:
		return 1
	default:
		return 10
	}
}

// Metadata holds per-message options: scheduling window, tags, category,
// tracking flags, and the template reference used to build the content.
type Metadata struct {
	TemplateID               string         `json:"template_id,omitempty"`
	TemplateVariables        map[string]any `json:"template_variables,omitempty"`
	ScheduledAt              *time.Time     `json:"scheduled_at,omitempty"`
	ExpiresAt                *time.Time     `json:"expires_at,omitempty"`
	Tags                     []string       `json:"tags,omitempty"`
	Category                 string         `json:"category,omitempty"`
	TrackingEnabled          bool           `json:"tracking_enabled,omitempty"`
	DeliveryReceiptRequested bool           `json:"delivery_receipt_requested,omitempty"`
}

// validTransitions is the single source of truth for the status state
// machine. The allowed-next-states list in transition errors comes straight
// from here.
var validTransitions = map[Status][]Status{
	StatusDraft:     {StatusQueued, StatusCancelled},
	StatusQueued:    {StatusSending, StatusCancelled},
	StatusSending:   {StatusSent, StatusFailed},
	StatusSent:      {StatusDelivered, StatusFailed},
	StatusDelivered: {}, // terminal
	StatusFailed:    {StatusQueued, StatusCancelled},
	StatusCancelled: {}, // terminal
}

// Message is the aggregate root of the delivery lifecycle. Identity and
// payload are fixed at creation; status, retry bookkeeping, and the
// append-only delivery history change only through the methods below.
type Message struct {
	ID        string
	Recipient Recipient
	Content   Content
	Context   Context
	Channel   string
	Priority  Priority
	Metadata  Metadata

	status          Status
	createdAt       time.Time
	updatedAt       time.Time
	deliveryResults []DeliveryResult
	retryCount      int
	nextAttemptAt   *time.Time
}

// NewMessage creates a message in draft status.
func NewMessage(id string, recipient Recipient, content Content, ctx Context, channel string, priority Priority, meta Metadata) *Message {
	now := time.Now()
	if priority == "" {
		priority = PriorityNormal
	}
	return &Message{
		ID:        id,
		Recipient: recipient,
		Content:   content,
		Context:   ctx,
		Channel:   channel,
		Priority:  priority,
		Metadata:  meta,
		status:    StatusDraft,
		createdAt: now,
		updatedAt: now,
	}
}

// RestoreMessage rehydrates a message from persistence without running the
// state machine.
func RestoreMessage(id string, recipient Recipient, content Content, ctx Context, channel string, priority Priority,
	meta Metadata, status Status, createdAt, updatedAt time.Time, results []DeliveryResult, retryCount int, nextAttemptAt *time.Time) *Message {
	return &Message{
		ID:              id,
		Recipient:       recipient,
		Content:         content,
		Context:         ctx,
		Channel:         channel,
		Priority:        priority,
		Metadata:        meta,
		status:          status,
		createdAt:       createdAt,
		updatedAt:       updatedAt,
		deliveryResults: results,
		retryCount:      retryCount,
		nextAttemptAt:   nextAttemptAt,
	}
}

// Status returns the current lifecycle state.
func (m *Message) Status() Status { return m.status }

// CreatedAt returns when the message was created.
func (m *Message) CreatedAt() time.Time { return m.createdAt }

// UpdatedAt returns when the message last changed state.
func (m *Message) UpdatedAt() time.Time { return m.updatedAt }

// RetryCount returns how many retries have been scheduled so far.
func (m *Message) RetryCount() int { return m.retryCount }

// NextAttemptAt returns the earliest time the message should be picked up
// again, nil when it is eligible immediately.
func (m *Message) NextAttemptAt() *time.Time { return m.nextAttemptAt }

// DeliveryResults returns a copy of the append-only attempt history.
func (m *Message) DeliveryResults() []DeliveryResult {
	return append([]DeliveryResult(nil), m.deliveryResults...)
}

// LatestDeliveryResult returns the most recent attempt, or false when there
// has been none.
func (m *Message) LatestDeliveryResult() (DeliveryResult, bool) {
	if len(m.deliveryResults) == 0 {
		return DeliveryResult{}, false
	}
	return m.deliveryResults[len(m.deliveryResults)-1], true
}

// transition validates and applies a status change, stamping updatedAt
// strictly after its previous value.
func (m *Message) transition(to Status) error {
	allowed := validTransitions[m.status]
	for _, s := range allowed {
		if s == to {
			m.status = to
			now := time.Now()
			if !now.After(m.updatedAt) {
				now = m.updatedAt.Add(time.Nanosecond)
			}
			m.updatedAt = now
			return nil
		}
	}
	names := make([]string, len(allowed))
	for i, s := range allowed {
		names[i] = string(s)
	}
	return fmt.Errorf("invalid status transition from %s to %s; valid transitions: %s",
		m.status, to, strings.Join(names, ", "))
}

// Queue moves the message into the send queue.
func (m *Message) Queue() error { return m.transition(StatusQueued) }

// MarkSending claims the message for an in-flight delivery attempt.
func (m *Message) MarkSending() error { return m.transition(StatusSending) }

// MarkSent records a successful handoff to the provider.
func (m *Message) MarkSent(result DeliveryResult) error {
	if err := m.transition(StatusSent); err != nil {
		return err
	}
	m.deliveryResults = append(m.deliveryResults, result)
	return nil
}

// MarkDelivered records provider confirmation of final delivery.
func (m *Message) MarkDelivered(result DeliveryResult) error {
	if err := m.transition(StatusDelivered); err != nil {
		return err
	}
	m.deliveryResults = append(m.deliveryResults, result)
	return nil
}

// MarkFailed records a failed delivery attempt.
func (m *Message) MarkFailed(result DeliveryResult) error {
	if err := m.transition(StatusFailed); err != nil {
		return err
	}
	m.deliveryResults = append(m.deliveryResults, result)
	return nil
}

// Cancel terminates the message. Only draft, queued, and failed messages
// can be cancelled.
func (m *Message) Cancel() error { return m.transition(StatusCancelled) }

// IncrementRetryCount bumps the retry counter.
func (m *Message) IncrementRetryCount() {
	m.retryCount++
	m.updatedAt = time.Now()
}

// ScheduleNextAttempt stamps the earliest time the pending-message query
// should return this message again.
func (m *Message) ScheduleNextAttempt(at time.Time) {
	m.nextAttemptAt = &at
	m.updatedAt = time.Now()
}

// CanBeRetried reports whether a failed message still has retry budget.
func (m *Message) CanBeRetried() bool {
	return m.status == StatusFailed &&
		m.retryCount < m.Priority.MaxRetries() &&
		!m.IsExpired()
}

// CanBeCancelled reports whether cancellation is a valid transition.
func (m *Message) CanBeCancelled() bool {
	return m.status == StatusDraft || m.status == StatusQueued || m.status == StatusFailed
}

// IsExpired reports whether the expiry window has passed.
func (m *Message) IsExpired() bool {
	return m.Metadata.ExpiresAt != nil && time.Now().After(*m.Metadata.ExpiresAt)
}

// IsScheduled reports whether the message is held for a future send window.
func (m *Message) IsScheduled() bool {
	return m.Metadata.ScheduledAt != nil && time.Now().Before(*m.Metadata.ScheduledAt)
}

// ShouldBeProcessedNow reports whether the pending-message processor should
// pick this message up.
func (m *Message) ShouldBeProcessedNow() bool {
	if m.IsExpired() || m.IsScheduled() {
		return false
	}
	return m.status == StatusQueued || m.status == StatusFailed
}

// ProcessingScore orders pending messages: priority dominates, age breaks
// starvation, and prior retries are boosted so they don't linger.
func (m *Message) ProcessingScore() int {
	ageMinutes := int(time.Since(m.createdAt).Minutes())
	return m.Priority.weight() + ageMinutes + 10*m.retryCount
}
