package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/courier/internal/channel"
	"github.com/ignite/courier/internal/domain"
	"github.com/ignite/courier/internal/pkg/distlock"
	"github.com/ignite/courier/internal/pkg/logger"
	"github.com/ignite/courier/internal/routing"
)

// LockFactory builds a per-message processing lease. A nil factory disables
// leasing and relies on a single processor instance.
type LockFactory func(key string, ttl time.Duration) distlock.DistLock

// leaseTTL bounds how long a crashed processor can hold a message lease.
const leaseTTL = 2 * time.Minute

// Service orchestrates message delivery. All public methods are safe for
// concurrent use if the underlying repositories are concurrency-safe.
type Service struct {
	uow      UnitOfWork
	adapters []channel.Adapter
	retry    *routing.RetryPolicy
	locks    LockFactory
}

// NewService creates the orchestrator over the given unit of work and
// channel adapters.
func NewService(uow UnitOfWork, adapters []channel.Adapter, locks LockFactory) *Service {
	return &Service{
		uow:      uow,
		adapters: adapters,
		retry:    routing.NewRetryPolicy(),
		locks:    locks,
	}
}

// RecipientInput identifies one destination in a send request.
type RecipientInput struct {
	Type              domain.RecipientType `json:"type"`
	Identifier        string               `json:"identifier"`
	TemplateVariables map[string]any       `json:"template_variables,omitempty"`
}

// ContentInput is directly provided message content.
type ContentInput struct {
	Subject     string            `json:"subject,omitempty"`
	Body        string            `json:"body"`
	Attachments []AttachmentInput `json:"attachments,omitempty"`
}

// AttachmentInput is one file attached to a send request.
type AttachmentInput struct {
	Filename    string `json:"filename"`
	Content     []byte `json:"content"`
	ContentType string `json:"content_type"`
}

// ContextInput carries correlation metadata for a send request.
type ContextInput struct {
	RequestID string         `json:"request_id,omitempty"`
	UserID    string         `json:"user_id,omitempty"`
	SessionID string         `json:"session_id,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// SchedulingInput delays or expires a message.
type SchedulingInput struct {
	ScheduledAt *time.Time `json:"scheduled_at,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

// OptionsInput carries delivery options.
type OptionsInput struct {
	TrackingEnabled          bool     `json:"tracking_enabled,omitempty"`
	DeliveryReceiptRequested bool     `json:"delivery_receipt_requested,omitempty"`
	Tags                     []string `json:"tags,omitempty"`
	Category                 string   `json:"category,omitempty"`
}

// SendRequest holds the fields for sending a single message. Exactly one of
// Content or TemplateID must be set.
type SendRequest struct {
	Recipient         RecipientInput   `json:"recipient"`
	Content           *ContentInput    `json:"content,omitempty"`
	TemplateID        string           `json:"template_id,omitempty"`
	TemplateVariables map[string]any   `json:"template_variables,omitempty"`
	Priority          domain.Priority  `json:"priority,omitempty"`
	Context           ContextInput     `json:"context"`
	Scheduling        *SchedulingInput `json:"scheduling,omitempty"`
	Options           *OptionsInput    `json:"options,omitempty"`
}

// SendResponse reports the outcome of queuing (and possibly delivering) a
// message.
type SendResponse struct {
	MessageID             string        `json:"message_id"`
	Status                domain.Status `json:"status"`
	SelectedChannel       string        `json:"selected_channel"`
	EstimatedDeliveryTime time.Time     `json:"estimated_delivery_time"`
}

// BulkSendRequest sends one template to many recipients under a shared
// batch id.
type BulkSendRequest struct {
	Recipients []RecipientInput `json:"recipients"`
	TemplateID string           `json:"template_id"`
	Priority   domain.Priority  `json:"priority,omitempty"`
	Context    ContextInput     `json:"context"`
	Scheduling *SchedulingInput `json:"scheduling,omitempty"`
	Options    *OptionsInput    `json:"options,omitempty"`
}

// BulkSendResponse summarizes a bulk send. Recipients that failed are
// omitted from MessageIDs rather than failing the batch.
type BulkSendResponse struct {
	BatchID                 string    `json:"batch_id"`
	MessageIDs              []string  `json:"message_ids"`
	TotalMessages           int       `json:"total_messages"`
	EstimatedCompletionTime time.Time `json:"estimated_completion_time"`
}

// SendMessage validates the request, resolves content, selects a channel,
// queues the message, and attempts immediate delivery unless scheduled.
func (s *Service) SendMessage(ctx context.Context, req SendRequest) (*SendResponse, error) {
	recipient, err := domain.NewRecipient(req.Recipient.Type, req.Recipient.Identifier)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRecipient, err)
	}
	if err := routing.ValidateRecipient(recipient); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRecipient, err)
	}

	commCtx, err := domain.NewContext(req.Context.RequestID, req.Context.UserID, req.Context.SessionID, req.Context.Metadata)
	if err != nil {
		return nil, err
	}

	content, err := s.resolveContent(ctx, req)
	if err != nil {
		return nil, err
	}

	selected, err := routing.SelectChannel(recipient, s.availableChannels())
	if err != nil {
		return nil, err
	}

	meta := domain.Metadata{
		TemplateID:        req.TemplateID,
		TemplateVariables: req.TemplateVariables,
	}
	if req.Scheduling != nil {
		meta.ScheduledAt = req.Scheduling.ScheduledAt
		meta.ExpiresAt = req.Scheduling.ExpiresAt
	}
	if req.Options != nil {
		meta.Tags = req.Options.Tags
		meta.Category = req.Options.Category
		meta.TrackingEnabled = req.Options.TrackingEnabled
		meta.DeliveryReceiptRequested = req.Options.DeliveryReceiptRequested
	}

	msg := domain.NewMessage(uuid.New().String(), recipient, content, commCtx, selected.Name(), req.Priority, meta)
	if err := msg.Queue(); err != nil {
		return nil, err
	}

	err = s.uow.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.uow.Messages().Save(txCtx, msg); err != nil {
			return fmt.Errorf("save message: %w", err)
		}
		if !msg.IsScheduled() {
			return s.process(txCtx, msg)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &SendResponse{
		MessageID:             msg.ID,
		Status:                msg.Status(),
		SelectedChannel:       selected.Name(),
		EstimatedDeliveryTime: estimatedDeliveryTime(msg.Priority),
	}, nil
}

// SendBulkMessages fans one template out to many recipients under a shared
// batch id. Per-recipient failures are logged and skipped; they never abort
// the rest of the batch.
func (s *Service) SendBulkMessages(ctx context.Context, req BulkSendRequest) (*BulkSendResponse, error) {
	if req.TemplateID == "" {
		return nil, ErrContentRequired
	}
	if _, err := s.uow.Templates().FindByID(ctx, req.TemplateID); err != nil {
		return nil, err
	}

	batchID := uuid.New().String()
	messageIDs := make([]string, 0, len(req.Recipients))

	for _, rec := range req.Recipients {
		meta := make(map[string]any, len(req.Context.Metadata)+1)
		for k, v := range req.Context.Metadata {
			meta[k] = v
		}
		meta["batchId"] = batchID

		resp, err := s.SendMessage(ctx, SendRequest{
			Recipient:         rec,
			TemplateID:        req.TemplateID,
			TemplateVariables: rec.TemplateVariables,
			Priority:          req.Priority,
			Context: ContextInput{
				RequestID: req.Context.RequestID,
				UserID:    req.Context.UserID,
				SessionID: req.Context.SessionID,
				Metadata:  meta,
			},
			Scheduling: req.Scheduling,
			Options:    req.Options,
		})
		if err != nil {
			logger.Warn("bulk send: recipient failed",
				"batch_id", batchID,
				"recipient", rec.Identifier,
				"error", err.Error())
			continue
		}
		messageIDs = append(messageIDs, resp.MessageID)
	}

	return &BulkSendResponse{
		BatchID:                 batchID,
		MessageIDs:              messageIDs,
		TotalMessages:           len(messageIDs),
		EstimatedCompletionTime: estimatedBulkCompletionTime(len(messageIDs), req.Priority),
	}, nil
}

// ProcessPendingMessages pulls a priority-ordered page of pending messages
// and processes each: cancelling expired ones, skipping scheduled ones, and
// re-running channel selection for the rest. Returns how many were
// processed.
func (s *Service) ProcessPendingMessages(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = 100
	}

	pending, err := s.uow.Messages().FindPending(ctx, limit, true)
	if err != nil {
		return 0, fmt.Errorf("find pending: %w", err)
	}

	processed := 0
	for _, msg := range pending {
		if msg.IsExpired() {
			if err := msg.Cancel(); err == nil {
				if err := s.uow.Messages().Save(ctx, msg); err != nil {
					logger.Error("cancel expired message", "message_id", msg.ID, "error", err.Error())
				}
			}
			continue
		}
		if msg.IsScheduled() {
			continue
		}
		// Retryable failures are re-queued at failure time, so a message
		// still in FAILED here is terminal unless the policy disagrees.
		if msg.Status() == domain.StatusFailed && !s.reattemptAllowed(msg) {
			continue
		}

		selected, err := routing.SelectChannel(msg.Recipient, s.availableChannels())
		if err != nil {
			logger.Warn("pending message has no channel", "message_id", msg.ID, "error", err.Error())
			continue
		}
		msg.Channel = selected.Name()

		if err := s.process(ctx, msg); err != nil {
			if errors.Is(err, ErrBeingProcessed) {
				continue
			}
			logger.Error("process pending message", "message_id", msg.ID, "error", err.Error())
			continue
		}
		processed++
	}

	return processed, nil
}

// GetMessage returns a message by id.
func (s *Service) GetMessage(ctx context.Context, id string) (*domain.Message, error) {
	return s.uow.Messages().FindByID(ctx, id)
}

// ListMessages returns messages matching the filter plus the total count.
func (s *Service) ListMessages(ctx context.Context, filter MessageFilter) ([]*domain.Message, int, error) {
	return s.uow.Messages().FindMany(ctx, filter)
}

// CancelMessage cancels a draft, queued, or failed message.
func (s *Service) CancelMessage(ctx context.Context, id string) error {
	msg, err := s.uow.Messages().FindByID(ctx, id)
	if err != nil {
		return err
	}
	if !msg.CanBeCancelled() {
		return fmt.Errorf("%w: %s", ErrNotCancellable, msg.Status())
	}
	if err := msg.Cancel(); err != nil {
		return err
	}
	return s.uow.Messages().Save(ctx, msg)
}

// process runs one delivery attempt for a queued or failed message. It
// always leaves the message in a valid persisted status: adapter errors and
// panics become failed delivery results, never a dangling SENDING state.
func (s *Service) process(ctx context.Context, msg *domain.Message) (err error) {
	if s.locks != nil {
		lock := s.locks("message:"+msg.ID, leaseTTL)
		acquired, lockErr := lock.Acquire(ctx)
		if lockErr != nil {
			return fmt.Errorf("acquire message lease: %w", lockErr)
		}
		if !acquired {
			return ErrBeingProcessed
		}
		defer lock.Release(ctx)
	}

	adapter := s.findAdapter(msg.Channel)
	if adapter == nil {
		return fmt.Errorf("no adapter for channel: %s", msg.Channel)
	}

	if msg.Status() == domain.StatusFailed {
		if !s.reattemptAllowed(msg) {
			return fmt.Errorf("%w: %s", ErrRetriesExhausted, msg.ID)
		}
		if err := msg.Queue(); err != nil {
			return err
		}
	}
	if err := msg.MarkSending(); err != nil {
		return err
	}
	if err := s.uow.Messages().Save(ctx, msg); err != nil {
		return fmt.Errorf("save sending message: %w", err)
	}

	defer func() {
		if r := recover(); r != nil {
			cerr := domain.NetworkError(fmt.Sprintf("adapter panic: %v", r), nil)
			err = s.recordFailure(ctx, msg, cerr)
		}
	}()

	result, sendErr := adapter.Send(ctx, msg)
	if sendErr != nil {
		return s.recordFailure(ctx, msg, classifyError(sendErr))
	}

	providerMsgID := result.ProviderMessageID
	if providerMsgID == "" {
		providerMsgID = msg.ID
	}
	success, err := domain.DeliverySuccess(providerMsgID, adapter.ProviderID(), msg.RetryCount())
	if err != nil {
		return err
	}
	if err := msg.MarkSent(success); err != nil {
		return err
	}
	if err := s.uow.Messages().Save(ctx, msg); err != nil {
		return fmt.Errorf("save sent message: %w", err)
	}

	logger.Debug("message sent", "message_id", msg.ID, "channel", msg.Channel, "provider", adapter.ProviderID())
	return nil
}

// reattemptAllowed reports whether a message persisted in FAILED status may
// be sent again: retry budget for its priority must remain and the retry
// policy must still recommend retrying its last failure.
func (s *Service) reattemptAllowed(msg *domain.Message) bool {
	if !msg.CanBeRetried() {
		return false
	}
	last, ok := msg.LatestDeliveryResult()
	if !ok {
		return false
	}
	return s.retry.Decide(last.Err(), msg.RetryCount()+1).Retry
}

// recordFailure marks the message failed, consults the retry policy, and
// either re-queues it with a next-attempt time or leaves it failed.
func (s *Service) recordFailure(ctx context.Context, msg *domain.Message, cerr domain.CommError) error {
	failure, err := domain.DeliveryFailure(cerr, msg.RetryCount())
	if err != nil {
		return err
	}
	if err := msg.MarkFailed(failure); err != nil {
		return err
	}

	if msg.CanBeRetried() {
		decision := s.retry.Decide(cerr, msg.RetryCount()+1)
		if decision.Retry {
			msg.IncrementRetryCount()
			if err := msg.Queue(); err != nil {
				return err
			}
			msg.ScheduleNextAttempt(time.Now().Add(decision.Delay))
			logger.Debug("message re-queued for retry",
				"message_id", msg.ID,
				"attempt", msg.RetryCount(),
				"delay_ms", decision.Delay.Milliseconds())
		}
	}

	if err := s.uow.Messages().Save(ctx, msg); err != nil {
		return fmt.Errorf("save failed message: %w", err)
	}
	return nil
}

// resolveContent builds message content either from the request body or by
// rendering the referenced template.
func (s *Service) resolveContent(ctx context.Context, req SendRequest) (domain.Content, error) {
	if req.TemplateID != "" {
		tpl, err := s.uow.Templates().FindByID(ctx, req.TemplateID)
		if err != nil {
			return domain.Content{}, err
		}
		vars := req.TemplateVariables
		if vars == nil {
			vars = map[string]any{}
		}
		content, err := tpl.Render(vars)
		if err != nil {
			return domain.Content{}, fmt.Errorf("render template %s: %w", req.TemplateID, err)
		}
		return content.WithTemplate(req.TemplateID, vars), nil
	}

	if req.Content == nil {
		return domain.Content{}, ErrContentRequired
	}

	attachments := make([]domain.Attachment, 0, len(req.Content.Attachments))
	for _, in := range req.Content.Attachments {
		att, err := domain.NewAttachment(in.Filename, in.Content, in.ContentType)
		if err != nil {
			return domain.Content{}, err
		}
		attachments = append(attachments, att)
	}
	return domain.NewContent(req.Content.Body, req.Content.Subject, attachments)
}

// availableChannels snapshots the adapter set as selector input.
func (s *Service) availableChannels() []routing.Channel {
	channels := make([]routing.Channel, len(s.adapters))
	for i, a := range s.adapters {
		channels[i] = a
	}
	return channels
}

func (s *Service) findAdapter(name string) channel.Adapter {
	for _, a := range s.adapters {
		if strings.EqualFold(a.Name(), name) {
			return a
		}
	}
	return nil
}

// classifyError maps an adapter failure to a communication error. Adapters
// return domain.CommError; anything else is treated as a transient network
// failure.
func classifyError(err error) domain.CommError {
	var cerr domain.CommError
	if errors.As(err, &cerr) {
		return cerr
	}
	return domain.NetworkError(err.Error(), nil)
}

// estimatedDeliveryTime is a caller-facing hint by priority.
func estimatedDeliveryTime(priority domain.Priority) time.Time {
	delay := 5 * time.Second
	switch priority {
	case domain.PriorityUrgent:
		delay = time.Second
	case domain.PriorityHigh:
		delay = 2 * time.Second
	case domain.PriorityLow:
		delay = 10 * time.Second
	}
	return time.Now().Add(delay)
}

// estimatedBulkCompletionTime budgets 100ms per message, halved for urgent
// batches.
func estimatedBulkCompletionTime(count int, priority domain.Priority) time.Time {
	perMessage := 100 * time.Millisecond
	total := time.Duration(count) * perMessage
	if priority == domain.PriorityUrgent {
		total /= 2
	}
	return time.Now().Add(total)
}
