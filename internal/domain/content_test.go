package domain

import (
	"strings"
	"testing"
)

func TestNewContentBounds(t *testing.T) {
	if _, err := NewContent("", "subject", nil); err == nil {
		t.Error("empty body accepted")
	}
	if _, err := NewContent("   ", "subject", nil); err == nil {
		t.Error("whitespace body accepted")
	}
	if _, err := NewContent(strings.Repeat("b", MaxBodyLength+1), "", nil); err == nil {
		t.Error("oversized body accepted")
	}
	if _, err := NewContent("body", strings.Repeat("s", MaxSubjectLength+1), nil); err == nil {
		t.Error("oversized subject accepted")
	}

	c, err := NewContent("  hello  ", "  subject  ", nil)
	if err != nil {
		t.Fatalf("new content: %v", err)
	}
	if c.Body() != "hello" || c.Subject() != "subject" {
		t.Errorf("trimming: body=%q subject=%q", c.Body(), c.Subject())
	}
}

func TestAttachmentLimits(t *testing.T) {
	if _, err := NewAttachment("", []byte("x"), "text/plain"); err == nil {
		t.Error("empty filename accepted")
	}
	if _, err := NewAttachment("f.txt", nil, "text/plain"); err == nil {
		t.Error("empty content accepted")
	}
	if _, err := NewAttachment("f.txt", []byte("x"), ""); err == nil {
		t.Error("empty content type accepted")
	}

	att, err := NewAttachment("report.pdf", []byte("pdf-bytes"), "application/pdf")
	if err != nil {
		t.Fatalf("new attachment: %v", err)
	}
	if att.Size() != len("pdf-bytes") {
		t.Errorf("size = %d", att.Size())
	}

	c, err := NewContent("body", "", []Attachment{att})
	if err != nil {
		t.Fatalf("new content: %v", err)
	}
	if !c.HasAttachments() || c.TotalAttachmentSize() != att.Size() {
		t.Errorf("attachments not carried: has=%v total=%d", c.HasAttachments(), c.TotalAttachmentSize())
	}
}

func TestContentCopySemantics(t *testing.T) {
	base, err := NewContent("hello {{ name }}", "hi", nil)
	if err != nil {
		t.Fatalf("new content: %v", err)
	}

	tpl := base.WithTemplate("tpl-1", map[string]any{"name": "Ada"})
	if !tpl.IsTemplate() || tpl.TemplateID() != "tpl-1" {
		t.Errorf("template not referenced: %q", tpl.TemplateID())
	}
	if base.IsTemplate() {
		t.Error("WithTemplate mutated the original")
	}

	rendered := tpl.WithBody("hello Ada")
	if rendered.Body() != "hello Ada" || tpl.Body() != "hello {{ name }}" {
		t.Errorf("WithBody: got %q, original %q", rendered.Body(), tpl.Body())
	}
}
