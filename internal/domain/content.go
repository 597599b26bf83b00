package domain

import (
	"fmt"
	"strings"
)

// Size ceilings for message content and attachments.
const (
	MaxBodyLength          = 4096 // SMS-compatible ceiling
	MaxSubjectLength       = 255
	MaxAttachmentSize      = 25 * 1024 * 1024
	MaxTotalAttachmentSize = 50 * 1024 * 1024
)

// Attachment is a single file attached to a message. Built through
// NewAttachment so the size invariant always holds.
type Attachment struct {
	filename    string
	content     []byte
	contentType string
	size        int
}

// NewAttachment validates and builds an attachment. The size is derived
// from the content; a single attachment may not exceed 25MB.
func NewAttachment(filename string, content []byte, contentType string) (Attachment, error) {
	filename = strings.TrimSpace(filename)
	if filename == "" {
		return Attachment{}, fmt.Errorf("attachment filename cannot be empty")
	}
	if len(content) == 0 {
		return Attachment{}, fmt.Errorf("attachment content cannot be empty")
	}
	contentType = strings.TrimSpace(contentType)
	if contentType == "" {
		return Attachment{}, fmt.Errorf("attachment content type cannot be empty")
	}
	if len(content) > MaxAttachmentSize {
		return Attachment{}, fmt.Errorf("attachment size (%d bytes) exceeds maximum allowed size (%d bytes)",
			len(content), MaxAttachmentSize)
	}
	return Attachment{filename: filename, content: content, contentType: contentType, size: len(content)}, nil
}

// Filename returns the attachment's file name.
func (a Attachment) Filename() string { return a.filename }

// Content returns the raw attachment bytes. Callers must not modify the
// returned slice.
func (a Attachment) Content() []byte { return a.content }

// ContentType returns the MIME type.
func (a Attachment) ContentType() string { return a.contentType }

// Size returns the attachment size in bytes.
func (a Attachment) Size() int { return a.size }

// Content is the immutable payload of a message: body, optional subject,
// optional template reference, and attachments. Copy-with methods return
// new values; a Content is never mutated after construction.
type Content struct {
	body         string
	subject      string
	templateID   string
	templateData map[string]any
	attachments  []Attachment
}

// NewContent validates and builds message content. The body is required and
// capped at 4096 characters; the subject at 255. Total attachment size may
// not exceed 50MB.
func NewContent(body, subject string, attachments []Attachment) (Content, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return Content{}, fmt.Errorf("message body cannot be empty")
	}
	if len(body) > MaxBodyLength {
		return Content{}, fmt.Errorf("message body length (%d) exceeds maximum allowed length (%d)",
			len(body), MaxBodyLength)
	}
	subject = strings.TrimSpace(subject)
	if len(subject) > MaxSubjectLength {
		return Content{}, fmt.Errorf("subject length (%d) exceeds maximum allowed length (%d)",
			len(subject), MaxSubjectLength)
	}

	total := 0
	for _, att := range attachments {
		total += att.size
	}
	if total > MaxTotalAttachmentSize {
		return Content{}, fmt.Errorf("total attachment size (%d bytes) exceeds maximum allowed size (%d bytes)",
			total, MaxTotalAttachmentSize)
	}

	return Content{
		body:        body,
		subject:     subject,
		attachments: append([]Attachment(nil), attachments...),
	}, nil
}

// Body returns the message body.
func (c Content) Body() string { return c.body }

// Subject returns the subject, empty when none was set.
func (c Content) Subject() string { return c.subject }

// TemplateID returns the id of the template this content was rendered from,
// empty for direct content.
func (c Content) TemplateID() string { return c.templateID }

// TemplateData returns the variable map the content carries for rendering.
func (c Content) TemplateData() map[string]any { return c.templateData }

// Attachments returns a copy of the attachment list.
func (c Content) Attachments() []Attachment {
	return append([]Attachment(nil), c.attachments...)
}

// HasAttachments reports whether any attachments are present.
func (c Content) HasAttachments() bool { return len(c.attachments) > 0 }

// TotalAttachmentSize returns the summed attachment size in bytes.
func (c Content) TotalAttachmentSize() int {
	total := 0
	for _, att := range c.attachments {
		total += att.size
	}
	return total
}

// IsTemplate reports whether the content references a template.
func (c Content) IsTemplate() bool { return c.templateID != "" }

// WithTemplate returns a copy referencing the given template and merging in
// the provided variable data.
func (c Content) WithTemplate(templateID string, data map[string]any) Content {
	cp := c
	cp.templateID = templateID
	merged := make(map[string]any, len(c.templateData)+len(data))
	for k, v := range c.templateData {
		merged[k] = v
	}
	for k, v := range data {
		merged[k] = v
	}
	cp.templateData = merged
	return cp
}

// WithBody returns a copy with the body replaced. Used by template
// rendering, which substitutes placeholders into a fresh body.
func (c Content) WithBody(body string) Content {
	cp := c
	cp.body = body
	return cp
}
