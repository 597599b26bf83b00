package dispatch_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ignite/courier/internal/channel"
	"github.com/ignite/courier/internal/domain"
	"github.com/ignite/courier/internal/pkg/distlock"
	"github.com/ignite/courier/internal/pkg/ratelimit"
	"github.com/ignite/courier/internal/routing"
	"github.com/ignite/courier/internal/service/dispatch"
)

// memMessages is an in-memory message repository for unit testing.
type memMessages struct {
	mu       sync.Mutex
	messages map[string]*domain.Message
}

func newMemMessages() *memMessages {
	return &memMessages{messages: make(map[string]*domain.Message)}
}

func (m *memMessages) Save(_ context.Context, msg *domain.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages[msg.ID] = msg
	return nil
}

func (m *memMessages) FindByID(_ context.Context, id string) (*domain.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.messages[id]
	if !ok {
		return nil, dispatch.ErrMessageNotFound
	}
	return msg, nil
}

func (m *memMessages) FindMany(_ context.Context, f dispatch.MessageFilter) ([]*domain.Message, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Message
	for _, msg := range m.messages {
		if f.Status != "" && msg.Status() != f.Status {
			continue
		}
		if f.Channel != "" && msg.Channel != f.Channel {
			continue
		}
		out = append(out, msg)
	}
	return out, len(out), nil
}

func (m *memMessages) FindPending(_ context.Context, limit int, _ bool) ([]*domain.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	var out []*domain.Message
	for _, msg := range m.messages {
		if msg.Status() != domain.StatusQueued && msg.Status() != domain.StatusFailed {
			continue
		}
		if next := msg.NextAttemptAt(); next != nil && next.After(now) {
			continue
		}
		out = append(out, msg)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *memMessages) UpdateStatus(_ context.Context, id string, _ domain.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.messages[id]; !ok {
		return dispatch.ErrMessageNotFound
	}
	return nil
}

func (m *memMessages) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.messages, id)
	return nil
}

func (m *memMessages) Count(ctx context.Context, f dispatch.MessageFilter) (int, error) {
	_, n, err := m.FindMany(ctx, f)
	return n, err
}

// memTemplates is an in-memory template lookup for unit testing.
type memTemplates struct {
	templates map[string]*domain.Template
}

func (m *memTemplates) FindByID(_ context.Context, id string) (*domain.Template, error) {
	tpl, ok := m.templates[id]
	if !ok {
		return nil, dispatch.ErrTemplateNotFound
	}
	return tpl, nil
}

type memUOW struct {
	messages  *memMessages
	templates *memTemplates
}

func newMemUOW() *memUOW {
	return &memUOW{
		messages:  newMemMessages(),
		templates: &memTemplates{templates: make(map[string]*domain.Template)},
	}
}

func (u *memUOW) Messages() dispatch.MessageRepository   { return u.messages }
func (u *memUOW) Templates() dispatch.TemplateRepository { return u.templates }
func (u *memUOW) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// fakeAdapter is a scriptable channel adapter.
type fakeAdapter struct {
	name     string
	provider string
	types    []domain.RecipientType
	priority int
	active   bool

	mu    sync.Mutex
	calls int
	send  func(*domain.Message) (*channel.SendResult, error)
}

func (f *fakeAdapter) Name() string                          { return f.name }
func (f *fakeAdapter) ProviderID() string                    { return f.provider }
func (f *fakeAdapter) SupportedTypes() []domain.RecipientType { return f.types }
func (f *fakeAdapter) Priority() int                         { return f.priority }
func (f *fakeAdapter) IsActive() bool                        { return f.active }
func (f *fakeAdapter) RateLimits() ratelimit.Limits          { return ratelimit.Limits{} }
func (f *fakeAdapter) HealthCheck(context.Context) error     { return nil }

func (f *fakeAdapter) Send(_ context.Context, msg *domain.Message) (*channel.SendResult, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.send != nil {
		return f.send(msg)
	}
	return &channel.SendResult{ProviderMessageID: "prov-" + msg.ID, SentAt: time.Now()}, nil
}

func (f *fakeAdapter) sendCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func emailAdapter() *fakeAdapter {
	return &fakeAdapter{
		name:     "email",
		provider: "test-email",
		types:    []domain.RecipientType{domain.RecipientEmail},
		priority: 5,
		active:   true,
	}
}

func smsAdapter() *fakeAdapter {
	return &fakeAdapter{
		name:     "sms",
		provider: "test-sms",
		types:    []domain.RecipientType{domain.RecipientPhone},
		priority: 5,
		active:   true,
	}
}

func emailRequest(body string) dispatch.SendRequest {
	return dispatch.SendRequest{
		Recipient: dispatch.RecipientInput{Type: domain.RecipientEmail, Identifier: "user@example.com"},
		Content:   &dispatch.ContentInput{Subject: "Hello", Body: body},
		Context:   dispatch.ContextInput{RequestID: "req-1"},
	}
}

func TestSendMessageDirectContent(t *testing.T) {
	uow := newMemUOW()
	adapter := emailAdapter()
	svc := dispatch.NewService(uow, []channel.Adapter{adapter}, nil)

	resp, err := svc.SendMessage(context.Background(), emailRequest("welcome aboard"))
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if resp.SelectedChannel != "email" {
		t.Errorf("selected channel = %q, want email", resp.SelectedChannel)
	}
	if adapter.sendCalls() != 1 {
		t.Fatalf("adapter calls = %d, want 1", adapter.sendCalls())
	}

	msg, err := uow.messages.FindByID(context.Background(), resp.MessageID)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if msg.Status() != domain.StatusSent {
		t.Errorf("status = %s, want %s", msg.Status(), domain.StatusSent)
	}
	result, ok := msg.LatestDeliveryResult()
	if !ok {
		t.Fatal("expected a delivery result")
	}
	if !result.Success() || result.ProviderID() != "test-email" {
		t.Errorf("unexpected delivery result: success=%v provider=%q", result.Success(), result.ProviderID())
	}
}

func TestSendMessageWithTemplate(t *testing.T) {
	uow := newMemUOW()
	tpl, err := domain.NewTemplate("tpl-1", "otp", domain.TemplateSMS, domain.CategoryOTP,
		"Your code", "Your code is {{ code }}.",
		[]domain.TemplateVariable{{Name: "code", Type: domain.VarString, Required: true}},
		nil, nil)
	if err != nil {
		t.Fatalf("NewTemplate: %v", err)
	}
	uow.templates.templates[tpl.ID] = tpl

	svc := dispatch.NewService(uow, []channel.Adapter{smsAdapter()}, nil)

	resp, err := svc.SendMessage(context.Background(), dispatch.SendRequest{
		Recipient:         dispatch.RecipientInput{Type: domain.RecipientPhone, Identifier: "+14155552671"},
		TemplateID:        "tpl-1",
		TemplateVariables: map[string]any{"code": "493021"},
		Context:           dispatch.ContextInput{},
	})
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	msg, err := uow.messages.FindByID(context.Background(), resp.MessageID)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if got := msg.Content.Body(); got != "Your code is 493021." {
		t.Errorf("body = %q", got)
	}
	if msg.Content.TemplateID() != "tpl-1" {
		t.Errorf("template id = %q, want tpl-1", msg.Content.TemplateID())
	}
}

func TestSendMessageRequiresContentOrTemplate(t *testing.T) {
	svc := dispatch.NewService(newMemUOW(), []channel.Adapter{emailAdapter()}, nil)

	req := emailRequest("x")
	req.Content = nil
	_, err := svc.SendMessage(context.Background(), req)
	if !errors.Is(err, dispatch.ErrContentRequired) {
		t.Fatalf("err = %v, want ErrContentRequired", err)
	}
}

func TestSendMessageRejectsDisposableEmail(t *testing.T) {
	svc := dispatch.NewService(newMemUOW(), []channel.Adapter{emailAdapter()}, nil)

	req := emailRequest("hi")
	req.Recipient.Identifier = "throwaway@mailinator.com"
	_, err := svc.SendMessage(context.Background(), req)
	if !errors.Is(err, dispatch.ErrInvalidRecipient) {
		t.Fatalf("err = %v, want ErrInvalidRecipient", err)
	}
}

func TestSendMessageNoCompatibleChannel(t *testing.T) {
	svc := dispatch.NewService(newMemUOW(), []channel.Adapter{emailAdapter()}, nil)

	_, err := svc.SendMessage(context.Background(), dispatch.SendRequest{
		Recipient: dispatch.RecipientInput{Type: domain.RecipientPhone, Identifier: "+14155552671"},
		Content:   &dispatch.ContentInput{Body: "hi"},
	})
	if !errors.Is(err, routing.ErrNoCompatibleChannels) {
		t.Fatalf("err = %v, want ErrNoCompatibleChannels", err)
	}
}

func TestSendMessageScheduledStaysQueued(t *testing.T) {
	uow := newMemUOW()
	adapter := emailAdapter()
	svc := dispatch.NewService(uow, []channel.Adapter{adapter}, nil)

	future := time.Now().Add(time.Hour)
	req := emailRequest("later")
	req.Scheduling = &dispatch.SchedulingInput{ScheduledAt: &future}

	resp, err := svc.SendMessage(context.Background(), req)
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if adapter.sendCalls() != 0 {
		t.Errorf("adapter calls = %d, want 0", adapter.sendCalls())
	}
	if resp.Status != domain.StatusQueued {
		t.Errorf("status = %s, want %s", resp.Status, domain.StatusQueued)
	}
}

func TestRetryableFailureRequeues(t *testing.T) {
	uow := newMemUOW()
	adapter := emailAdapter()
	adapter.send = func(*domain.Message) (*channel.SendResult, error) {
		return nil, domain.NetworkError("connection reset", nil)
	}
	svc := dispatch.NewService(uow, []channel.Adapter{adapter}, nil)

	resp, err := svc.SendMessage(context.Background(), emailRequest("flaky"))
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	msg, _ := uow.messages.FindByID(context.Background(), resp.MessageID)
	if msg.Status() != domain.StatusQueued {
		t.Fatalf("status = %s, want %s", msg.Status(), domain.StatusQueued)
	}
	if msg.RetryCount() != 1 {
		t.Errorf("retry count = %d, want 1", msg.RetryCount())
	}
	next := msg.NextAttemptAt()
	if next == nil {
		t.Fatal("expected next attempt time")
	}
	if until := time.Until(*next); until <= 0 || until > 2*time.Second {
		t.Errorf("next attempt in %v, want about 1s", until)
	}
}

func TestNonRetryableFailureStaysFailed(t *testing.T) {
	uow := newMemUOW()
	adapter := emailAdapter()
	adapter.send = func(*domain.Message) (*channel.SendResult, error) {
		return nil, domain.ValidationError("bad payload", nil)
	}
	svc := dispatch.NewService(uow, []channel.Adapter{adapter}, nil)

	resp, err := svc.SendMessage(context.Background(), emailRequest("bad"))
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	msg, _ := uow.messages.FindByID(context.Background(), resp.MessageID)
	if msg.Status() != domain.StatusFailed {
		t.Fatalf("status = %s, want %s", msg.Status(), domain.StatusFailed)
	}
	if msg.RetryCount() != 0 {
		t.Errorf("retry count = %d, want 0", msg.RetryCount())
	}
	result, ok := msg.LatestDeliveryResult()
	if !ok {
		t.Fatal("expected a delivery result")
	}
	if cerr := result.Err(); cerr.Code() != domain.ErrCodeValidation {
		t.Errorf("error code = %s, want %s", cerr.Code(), domain.ErrCodeValidation)
	}
}

func TestAdapterPanicRecordedAsNetworkFailure(t *testing.T) {
	uow := newMemUOW()
	adapter := emailAdapter()
	adapter.send = func(*domain.Message) (*channel.SendResult, error) {
		panic("provider client blew up")
	}
	svc := dispatch.NewService(uow, []channel.Adapter{adapter}, nil)

	resp, err := svc.SendMessage(context.Background(), emailRequest("boom"))
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	msg, _ := uow.messages.FindByID(context.Background(), resp.MessageID)
	result, ok := msg.LatestDeliveryResult()
	if !ok {
		t.Fatal("expected a delivery result")
	}
	if cerr := result.Err(); cerr.Code() != domain.ErrCodeNetwork {
		t.Errorf("error code = %s, want %s", cerr.Code(), domain.ErrCodeNetwork)
	}
	// Network failures are retryable, so the message goes back to the queue.
	if msg.Status() != domain.StatusQueued {
		t.Errorf("status = %s, want %s", msg.Status(), domain.StatusQueued)
	}
}

func TestSendBulkMessagesIsolatesFailures(t *testing.T) {
	uow := newMemUOW()
	tpl, err := domain.NewTemplate("tpl-bulk", "notice", domain.TemplateEmail, domain.CategoryNotification,
		"Notice", "Hello {{ name }}.",
		[]domain.TemplateVariable{{Name: "name", Type: domain.VarString, Required: true}},
		nil, nil)
	if err != nil {
		t.Fatalf("NewTemplate: %v", err)
	}
	uow.templates.templates[tpl.ID] = tpl

	svc := dispatch.NewService(uow, []channel.Adapter{emailAdapter()}, nil)

	resp, err := svc.SendBulkMessages(context.Background(), dispatch.BulkSendRequest{
		TemplateID: "tpl-bulk",
		Recipients: []dispatch.RecipientInput{
			{Type: domain.RecipientEmail, Identifier: "a@example.com", TemplateVariables: map[string]any{"name": "Ada"}},
			{Type: domain.RecipientEmail, Identifier: "junk@tempmail.org", TemplateVariables: map[string]any{"name": "Eve"}},
			{Type: domain.RecipientEmail, Identifier: "b@example.com", TemplateVariables: map[string]any{"name": "Bob"}},
		},
	})
	if err != nil {
		t.Fatalf("SendBulkMessages: %v", err)
	}
	if resp.TotalMessages != 2 || len(resp.MessageIDs) != 2 {
		t.Fatalf("total = %d, ids = %d, want 2 each", resp.TotalMessages, len(resp.MessageIDs))
	}
	if resp.BatchID == "" {
		t.Fatal("expected batch id")
	}

	for _, id := range resp.MessageIDs {
		msg, err := uow.messages.FindByID(context.Background(), id)
		if err != nil {
			t.Fatalf("FindByID(%s): %v", id, err)
		}
		if got, _ := msg.Context.Metadata("batchId"); got != resp.BatchID {
			t.Errorf("message %s batchId = %v, want %s", id, got, resp.BatchID)
		}
	}
}

func TestSendBulkMessagesUnknownTemplate(t *testing.T) {
	svc := dispatch.NewService(newMemUOW(), []channel.Adapter{emailAdapter()}, nil)

	_, err := svc.SendBulkMessages(context.Background(), dispatch.BulkSendRequest{
		TemplateID: "missing",
		Recipients: []dispatch.RecipientInput{{Type: domain.RecipientEmail, Identifier: "a@example.com"}},
	})
	if !errors.Is(err, dispatch.ErrTemplateNotFound) {
		t.Fatalf("err = %v, want ErrTemplateNotFound", err)
	}
}

func TestProcessPendingMessages(t *testing.T) {
	uow := newMemUOW()
	adapter := emailAdapter()
	svc := dispatch.NewService(uow, []channel.Adapter{adapter}, nil)

	normal := queuedMessage(t, "msg-ready", nil, nil)
	past := time.Now().Add(-time.Minute)
	expired := queuedMessage(t, "msg-expired", nil, &past)
	future := time.Now().Add(time.Hour)
	scheduled := queuedMessage(t, "msg-scheduled", &future, nil)

	for _, m := range []*domain.Message{normal, expired, scheduled} {
		if err := uow.messages.Save(context.Background(), m); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}

	processed, err := svc.ProcessPendingMessages(context.Background(), 10)
	if err != nil {
		t.Fatalf("ProcessPendingMessages: %v", err)
	}
	if processed != 1 {
		t.Fatalf("processed = %d, want 1", processed)
	}

	got, _ := uow.messages.FindByID(context.Background(), "msg-ready")
	if got.Status() != domain.StatusSent {
		t.Errorf("ready message status = %s, want %s", got.Status(), domain.StatusSent)
	}
	got, _ = uow.messages.FindByID(context.Background(), "msg-expired")
	if got.Status() != domain.StatusCancelled {
		t.Errorf("expired message status = %s, want %s", got.Status(), domain.StatusCancelled)
	}
	got, _ = uow.messages.FindByID(context.Background(), "msg-scheduled")
	if got.Status() != domain.StatusQueued {
		t.Errorf("scheduled message status = %s, want %s", got.Status(), domain.StatusQueued)
	}
}

func TestProcessSkipsLeasedMessages(t *testing.T) {
	uow := newMemUOW()
	adapter := emailAdapter()
	svc := dispatch.NewService(uow, []channel.Adapter{adapter}, func(string, time.Duration) distlock.DistLock {
		return heldLock{}
	})

	msg := queuedMessage(t, "msg-leased", nil, nil)
	if err := uow.messages.Save(context.Background(), msg); err != nil {
		t.Fatalf("Save: %v", err)
	}

	processed, err := svc.ProcessPendingMessages(context.Background(), 10)
	if err != nil {
		t.Fatalf("ProcessPendingMessages: %v", err)
	}
	if processed != 0 {
		t.Errorf("processed = %d, want 0", processed)
	}
	if adapter.sendCalls() != 0 {
		t.Errorf("adapter calls = %d, want 0", adapter.sendCalls())
	}
	got, _ := uow.messages.FindByID(context.Background(), "msg-leased")
	if got.Status() != domain.StatusQueued {
		t.Errorf("status = %s, want %s", got.Status(), domain.StatusQueued)
	}
}

func TestProcessPendingLeavesTerminalFailures(t *testing.T) {
	uow := newMemUOW()
	adapter := emailAdapter()
	svc := dispatch.NewService(uow, []channel.Adapter{adapter}, nil)

	// Normal priority allows 3 retries; this one has used them all.
	exhausted := failedMessage(t, "msg-exhausted", domain.NetworkError("connect timeout", nil), 3)
	// Auth failures are never retried regardless of remaining budget.
	authFailed := failedMessage(t, "msg-auth", domain.AuthenticationError("bad credentials", nil), 0)
	// A transient failure with budget left is still fair game.
	eligible := failedMessage(t, "msg-eligible", domain.NetworkError("connection reset", nil), 1)

	for _, m := range []*domain.Message{exhausted, authFailed, eligible} {
		if err := uow.messages.Save(context.Background(), m); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}

	processed, err := svc.ProcessPendingMessages(context.Background(), 10)
	if err != nil {
		t.Fatalf("ProcessPendingMessages: %v", err)
	}
	if processed != 1 {
		t.Fatalf("processed = %d, want 1", processed)
	}
	if adapter.sendCalls() != 1 {
		t.Errorf("adapter calls = %d, want 1", adapter.sendCalls())
	}

	got, _ := uow.messages.FindByID(context.Background(), "msg-exhausted")
	if got.Status() != domain.StatusFailed {
		t.Errorf("exhausted message status = %s, want %s", got.Status(), domain.StatusFailed)
	}
	if got.RetryCount() != 3 {
		t.Errorf("exhausted message retry count = %d, want 3", got.RetryCount())
	}
	got, _ = uow.messages.FindByID(context.Background(), "msg-auth")
	if got.Status() != domain.StatusFailed {
		t.Errorf("auth-failed message status = %s, want %s", got.Status(), domain.StatusFailed)
	}
	got, _ = uow.messages.FindByID(context.Background(), "msg-eligible")
	if got.Status() != domain.StatusSent {
		t.Errorf("eligible message status = %s, want %s", got.Status(), domain.StatusSent)
	}
}

func TestCancelMessage(t *testing.T) {
	uow := newMemUOW()
	svc := dispatch.NewService(uow, []channel.Adapter{emailAdapter()}, nil)

	msg := queuedMessage(t, "msg-cancel", nil, nil)
	if err := uow.messages.Save(context.Background(), msg); err != nil {
		t.Fatalf("Save: %v", err)
	}

	if err := svc.CancelMessage(context.Background(), "msg-cancel"); err != nil {
		t.Fatalf("CancelMessage: %v", err)
	}
	got, _ := uow.messages.FindByID(context.Background(), "msg-cancel")
	if got.Status() != domain.StatusCancelled {
		t.Errorf("status = %s, want %s", got.Status(), domain.StatusCancelled)
	}

	if err := svc.CancelMessage(context.Background(), "nope"); !errors.Is(err, dispatch.ErrMessageNotFound) {
		t.Errorf("err = %v, want ErrMessageNotFound", err)
	}
}

// heldLock simulates a lease already owned by another processor.
type heldLock struct{}

func (heldLock) Acquire(context.Context) (bool, error) { return false, nil }
func (heldLock) Release(context.Context) error         { return nil }

func failedMessage(t *testing.T, id string, cerr domain.CommError, retryCount int) *domain.Message {
	t.Helper()
	recipient, err := domain.NewRecipient(domain.RecipientEmail, fmt.Sprintf("%s@example.com", id))
	if err != nil {
		t.Fatalf("NewRecipient: %v", err)
	}
	content, err := domain.NewContent("failed body", "", nil)
	if err != nil {
		t.Fatalf("NewContent: %v", err)
	}
	commCtx, err := domain.NewContext("", "", "", nil)
	if err != nil {
		t.Fatalf("NewContext: %v", err)
	}
	failure, err := domain.DeliveryFailure(cerr, retryCount)
	if err != nil {
		t.Fatalf("DeliveryFailure: %v", err)
	}
	now := time.Now()
	return domain.RestoreMessage(id, recipient, content, commCtx, "email", domain.PriorityNormal,
		domain.Metadata{}, domain.StatusFailed, now, now, []domain.DeliveryResult{failure}, retryCount, nil)
}

func queuedMessage(t *testing.T, id string, scheduledAt, expiresAt *time.Time) *domain.Message {
	t.Helper()
	recipient, err := domain.NewRecipient(domain.RecipientEmail, fmt.Sprintf("%s@example.com", id))
	if err != nil {
		t.Fatalf("NewRecipient: %v", err)
	}
	content, err := domain.NewContent("pending body", "", nil)
	if err != nil {
		t.Fatalf("NewContent: %v", err)
	}
	commCtx, err := domain.NewContext("", "", "", nil)
	if err != nil {
		t.Fatalf("NewContext: %v", err)
	}
	msg := domain.NewMessage(id, recipient, content, commCtx, "email", domain.PriorityNormal,
		domain.Metadata{ScheduledAt: scheduledAt, ExpiresAt: expiresAt})
	if err := msg.Queue(); err != nil {
		t.Fatalf("Queue: %v", err)
	}
	return msg
}
