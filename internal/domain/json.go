package domain

import (
	"encoding/json"
	"time"
)

// JSON round-tripping for the value objects and the message aggregate. The
// unmarshal side rehydrates persisted state directly; it does not re-run the
// factory validation, which already ran when the values were created.

type recipientJSON struct {
	Type       RecipientType `json:"type"`
	Identifier string        `json:"identifier"`
}

func (r Recipient) MarshalJSON() ([]byte, error) {
	return json.Marshal(recipientJSON{Type: r.kind, Identifier: r.identifier})
}

func (r *Recipient) UnmarshalJSON(data []byte) error {
	var v recipientJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	r.kind = v.Type
	r.identifier = v.Identifier
	return nil
}

type attachmentJSON struct {
	Filename    string `json:"filename"`
	Content     []byte `json:"content"`
	ContentType string `json:"content_type"`
	Size        int    `json:"size"`
}

func (a Attachment) MarshalJSON() ([]byte, error) {
	return json.Marshal(attachmentJSON{
		Filename:    a.filename,
		Content:     a.content,
		ContentType: a.contentType,
		Size:        a.size,
	})
}

func (a *Attachment) UnmarshalJSON(data []byte) error {
	var v attachmentJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	a.filename = v.Filename
	a.content = v.Content
	a.contentType = v.ContentType
	a.size = v.Size
	if a.size == 0 {
		a.size = len(v.Content)
	}
	return nil
}

type contentJSON struct {
	Body         string         `json:"body"`
	Subject      string         `json:"subject,omitempty"`
	TemplateID   string         `json:"template_id,omitempty"`
	TemplateData map[string]any `json:"template_data,omitempty"`
	Attachments  []Attachment   `json:"attachments,omitempty"`
}

func (c Content) MarshalJSON() ([]byte, error) {
	return json.Marshal(contentJSON{
		Body:         c.body,
		Subject:      c.subject,
		TemplateID:   c.templateID,
		TemplateData: c.templateData,
		Attachments:  c.attachments,
	})
}

func (c *Content) UnmarshalJSON(data []byte) error {
	var v contentJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	c.body = v.Body
	c.subject = v.Subject
	c.templateID = v.TemplateID
	c.templateData = v.TemplateData
	c.attachments = v.Attachments
	return nil
}

type contextJSON struct {
	RequestID string         `json:"request_id"`
	Timestamp time.Time      `json:"timestamp"`
	UserID    string         `json:"user_id,omitempty"`
	SessionID string         `json:"session_id,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

func (c Context) MarshalJSON() ([]byte, error) {
	return json.Marshal(contextJSON{
		RequestID: c.requestID,
		Timestamp: c.timestamp,
		UserID:    c.userID,
		SessionID: c.sessionID,
		Metadata:  c.metadata,
	})
}

func (c *Context) UnmarshalJSON(data []byte) error {
	var v contextJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	c.requestID = v.RequestID
	c.timestamp = v.Timestamp
	c.userID = v.UserID
	c.sessionID = v.SessionID
	c.metadata = v.Metadata
	return nil
}

type commErrorJSON struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Retryable bool           `json:"retryable"`
	Details   map[string]any `json:"details,omitempty"`
}

func (e CommError) MarshalJSON() ([]byte, error) {
	return json.Marshal(commErrorJSON{
		Code:      e.code,
		Message:   e.message,
		Retryable: e.retryable,
		Details:   e.details,
	})
}

func (e *CommError) UnmarshalJSON(data []byte) error {
	var v commErrorJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	e.code = v.Code
	e.message = v.Message
	e.retryable = v.Retryable
	e.details = v.Details
	return nil
}

type deliveryResultJSON struct {
	Success    bool       `json:"success"`
	MessageID  string     `json:"message_id,omitempty"`
	ProviderID string     `json:"provider_id,omitempty"`
	AttemptAt  time.Time  `json:"attempt_at"`
	RetryCount int        `json:"retry_count"`
	Error      *CommError `json:"error,omitempty"`
}

func (d DeliveryResult) MarshalJSON() ([]byte, error) {
	v := deliveryResultJSON{
		Success:    d.success,
		MessageID:  d.messageID,
		ProviderID: d.providerID,
		AttemptAt:  d.attemptAt,
		RetryCount: d.retryCount,
	}
	if !d.err.IsZero() {
		e := d.err
		v.Error = &e
	}
	return json.Marshal(v)
}

func (d *DeliveryResult) UnmarshalJSON(data []byte) error {
	var v deliveryResultJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	d.success = v.Success
	d.messageID = v.MessageID
	d.providerID = v.ProviderID
	d.attemptAt = v.AttemptAt
	d.retryCount = v.RetryCount
	if v.Error != nil {
		d.err = *v.Error
	} else {
		d.err = CommError{}
	}
	return nil
}

type messageJSON struct {
	ID              string           `json:"id"`
	Recipient       Recipient        `json:"recipient"`
	Content         Content          `json:"content"`
	Context         Context          `json:"context"`
	Channel         string           `json:"channel"`
	Priority        Priority         `json:"priority"`
	Metadata        Metadata         `json:"metadata"`
	Status          Status           `json:"status"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
	DeliveryResults []DeliveryResult `json:"delivery_results,omitempty"`
	RetryCount      int              `json:"retry_count"`
	NextAttemptAt   *time.Time       `json:"next_attempt_at,omitempty"`
}

func (m *Message) MarshalJSON() ([]byte, error) {
	return json.Marshal(messageJSON{
		ID:              m.ID,
		Recipient:       m.Recipient,
		Content:         m.Content,
		Context:         m.Context,
		Channel:         m.Channel,
		Priority:        m.Priority,
		Metadata:        m.Metadata,
		Status:          m.status,
		CreatedAt:       m.createdAt,
		UpdatedAt:       m.updatedAt,
		DeliveryResults: m.deliveryResults,
		RetryCount:      m.retryCount,
		NextAttemptAt:   m.nextAttemptAt,
	})
}

func (m *Message) UnmarshalJSON(data []byte) error {
	var v messageJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	m.ID = v.ID
	m.Recipient = v.Recipient
	m.Content = v.Content
	m.Context = v.Context
	m.Channel = v.Channel
	m.Priority = v.Priority
	m.Metadata = v.Metadata
	m.status = v.Status
	m.createdAt = v.CreatedAt
	m.updatedAt = v.UpdatedAt
	m.deliveryResults = v.DeliveryResults
	m.retryCount = v.RetryCount
	m.nextAttemptAt = v.NextAttemptAt
	return nil
}
