package domain

import (
	"fmt"
	"math"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// TemplateType says which channel the template renders for.
type TemplateType string

const (
	TemplateEmail    TemplateType = "email"
	TemplateSMS      TemplateType = "sms"
	TemplateWhatsApp TemplateType = "whatsapp"
	TemplatePush     TemplateType = "push"
)

// TemplateCategory classifies the business purpose of a template.
type TemplateCategory string

const (
	CategoryTransactional TemplateCategory = "transactional"
	CategoryMarketing     TemplateCategory = "marketing"
	CategoryNotification  TemplateCategory = "notification"
	CategorySystem        TemplateCategory = "system"
	CategoryOTP           TemplateCategory = "otp"
)

// VariableType enumerates the value types a template variable can declare.
type VariableType string

const (
	VarString  VariableType = "string"
	VarNumber  VariableType = "number"
	VarBoolean VariableType = "boolean"
	VarDate    VariableType = "date"
	VarURL     VariableType = "url"
	VarEmail   VariableType = "email"
)

// VariableConstraints holds optional per-variable validation rules.
type VariableConstraints struct {
	Pattern   string   `json:"pattern,omitempty"`
	MinLength int      `json:"min_length,omitempty"`
	MaxLength int      `json:"max_length,omitempty"`
	Min       *float64 `json:"min,omitempty"`
	Max       *float64 `json:"max,omitempty"`
}

// TemplateVariable declares a named placeholder, its type, and whether a
// caller must supply it.
type TemplateVariable struct {
	Name        string               `json:"name"`
	Type        VariableType         `json:"type"`
	Required    bool                 `json:"required"`
	Default     any                  `json:"default,omitempty"`
	Description string               `json:"description,omitempty"`
	Constraints *VariableConstraints `json:"constraints,omitempty"`
}

// TemplateMetadata carries versioning and approval state.
type TemplateMetadata struct {
	Version          string     `json:"version"`
	Author           string     `json:"author,omitempty"`
	Description      string     `json:"description,omitempty"`
	Tags             []string   `json:"tags,omitempty"`
	LastModified     time.Time  `json:"last_modified"`
	IsActive         bool       `json:"is_active"`
	ApprovalRequired bool       `json:"approval_required,omitempty"`
	ApprovedBy       string     `json:"approved_by,omitempty"`
	ApprovedAt       *time.Time `json:"approved_at,omitempty"`
}

// Template size and attachment ceilings.
const (
	MaxTemplateSubjectLength    = 200
	MaxTemplateBodyLength       = 50000
	MaxTemplateAttachmentsTotal = 25 * 1024 * 1024
)

var (
	variableNamePattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]*$`)
	placeholderPattern  = regexp.MustCompile(`\{\{\s*([a-zA-Z][a-zA-Z0-9_]*)\s*\}\}`)
)

// Template is a reusable, versioned, optionally approval-gated content
// pattern with named placeholder variables. Content mutations go through
// UpdateContent, which re-validates, bumps the patch version, and clears
// prior approval when approval is required.
type Template struct {
	ID       string
	Name     string
	Type     TemplateType
	Category TemplateCategory

	subject     string
	body        string
	variables   []TemplateVariable
	attachments []Attachment
	metadata    TemplateMetadata
	createdAt   time.Time
	updatedAt   time.Time
}

// NewTemplate validates and creates a template. The metadata defaults to
// version 1.0.0, active, with the last-modified stamp set to now; pass a
// non-nil meta to override approval requirements and descriptive fields.
func NewTemplate(id, name string, typ TemplateType, category TemplateCategory,
	subject, body string, variables []TemplateVariable, attachments []Attachment, meta *TemplateMetadata) (*Template, error) {

	now := time.Now()
	md := TemplateMetadata{Version: "1.0.0", LastModified: now, IsActive: true}
	if meta != nil {
		md = *meta
		if md.Version == "" {
			md.Version = "1.0.0"
		}
		md.LastModified = now
	}

	t := &Template{
		ID:          id,
		Name:        name,
		Type:        typ,
		Category:    category,
		subject:     subject,
		body:        body,
		variables:   append([]TemplateVariable(nil), variables...),
		attachments: append([]Attachment(nil), attachments...),
		metadata:    md,
		createdAt:   now,
		updatedAt:   now,
	}
	if err := t.validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// RestoreTemplate rehydrates a template from persistence without
// re-validating.
func RestoreTemplate(id, name string, typ TemplateType, category TemplateCategory,
	subject, body string, variables []TemplateVariable, attachments []Attachment,
	meta TemplateMetadata, createdAt, updatedAt time.Time) *Template {
	return &Template{
		ID:          id,
		Name:        name,
		Type:        typ,
		Category:    category,
		subject:     subject,
		body:        body,
		variables:   variables,
		attachments: attachments,
		metadata:    meta,
		createdAt:   createdAt,
		updatedAt:   updatedAt,
	}
}

// Subject returns the raw (unrendered) subject.
func (t *Template) Subject() string { return t.subject }

// Body returns the raw (unrendered) body template.
func (t *Template) Body() string { return t.body }

// Variables returns a copy of the declared variables.
func (t *Template) Variables() []TemplateVariable {
	return append([]TemplateVariable(nil), t.variables...)
}

// Attachments returns a copy of the template attachments.
func (t *Template) Attachments() []Attachment {
	return append([]Attachment(nil), t.attachments...)
}

// Meta returns a copy of the template metadata.
func (t *Template) Meta() TemplateMetadata { return t.metadata }

// CreatedAt returns when the template was created.
func (t *Template) CreatedAt() time.Time { return t.createdAt }

// UpdatedAt returns when the template last changed.
func (t *Template) UpdatedAt() time.Time { return t.updatedAt }

// IsActive reports whether the template may be rendered.
func (t *Template) IsActive() bool { return t.metadata.IsActive }

// RequiresApproval reports whether rendering is gated on approval.
func (t *Template) RequiresApproval() bool { return t.metadata.ApprovalRequired }

// IsApproved reports whether the approval gate is satisfied. Templates that
// never required approval count as approved.
func (t *Template) IsApproved() bool {
	if !t.metadata.ApprovalRequired {
		return true
	}
	return t.metadata.ApprovedBy != "" && t.metadata.ApprovedAt != nil
}

// UpdateContent replaces subject/body and optionally variables and
// attachments, re-validates, bumps the patch version, and clears approval
// when the template is approval-gated.
func (t *Template) UpdateContent(subject, body string, variables []TemplateVariable, attachments []Attachment) error {
	prevSubject, prevBody := t.subject, t.body
	prevVars, prevAtts := t.variables, t.attachments

	t.subject = subject
	t.body = body
	if variables != nil {
		t.variables = variables
	}
	if attachments != nil {
		t.attachments = attachments
	}

	if err := t.validate(); err != nil {
		t.subject, t.body = prevSubject, prevBody
		t.variables, t.attachments = prevVars, prevAtts
		return err
	}

	now := time.Now()
	t.updatedAt = now
	t.metadata.LastModified = now
	t.metadata.Version = bumpPatch(t.metadata.Version)
	if t.metadata.ApprovalRequired {
		t.metadata.ApprovedBy = ""
		t.metadata.ApprovedAt = nil
	}
	return nil
}

// Activate marks the template renderable. Approval-gated templates must be
// approved first.
func (t *Template) Activate() error {
	if !t.IsApproved() {
		return fmt.Errorf("template must be approved before activation")
	}
	t.metadata.IsActive = true
	t.updatedAt = time.Now()
	return nil
}

// Deactivate withdraws the template from rendering.
func (t *Template) Deactivate() {
	t.metadata.IsActive = false
	t.updatedAt = time.Now()
}

// Approve records who approved the template and when.
func (t *Template) Approve(approvedBy string) error {
	if !t.metadata.ApprovalRequired {
		return fmt.Errorf("template does not require approval")
	}
	now := time.Now()
	t.metadata.ApprovedBy = approvedBy
	t.metadata.ApprovedAt = &now
	t.updatedAt = now
	return nil
}

// Render substitutes the variable map into subject and body and returns the
// resulting message content. The template must be active and, when gated,
// approved; required variables must be present and all provided values must
// satisfy their declared type and constraints.
func (t *Template) Render(variables map[string]any) (Content, error) {
	if !t.metadata.IsActive {
		return Content{}, fmt.Errorf("cannot render inactive template")
	}
	if !t.IsApproved() {
		return Content{}, fmt.Errorf("cannot render unapproved template")
	}
	if err := t.ValidateInput(variables); err != nil {
		return Content{}, err
	}

	subject := t.substitute(t.subject, variables)
	body := t.substitute(t.body, variables)

	return NewContent(body, subject, t.attachments)
}

// ValidateInput checks the provided variable map against the declarations:
// required variables must be present, and every provided value that matches
// a declaration must satisfy its type and constraints.
func (t *Template) ValidateInput(variables map[string]any) error {
	for _, v := range t.variables {
		if _, ok := variables[v.Name]; v.Required && !ok {
			return fmt.Errorf("required variable missing: %s", v.Name)
		}
	}
	for name, value := range variables {
		decl := t.findVariable(name)
		if decl == nil {
			continue
		}
		if err := validateVariableValue(*decl, value); err != nil {
			return err
		}
	}
	return nil
}

// MissingVariables lists required variables absent from the given map.
func (t *Template) MissingVariables(variables map[string]any) []string {
	var missing []string
	for _, v := range t.variables {
		if _, ok := variables[v.Name]; v.Required && !ok {
			missing = append(missing, v.Name)
		}
	}
	return missing
}

// Placeholders returns the distinct variable names referenced by the
// subject and body, in order of first appearance.
func (t *Template) Placeholders() []string {
	seen := make(map[string]bool)
	var out []string
	for _, match := range placeholderPattern.FindAllStringSubmatch(t.subject+" "+t.body, -1) {
		if !seen[match[1]] {
			seen[match[1]] = true
			out = append(out, match[1])
		}
	}
	return out
}

// substitute replaces {{ name }} placeholders with formatted values.
// Provided values win; declared defaults fill the gaps; anything else
// renders as an empty substitution.
func (t *Template) substitute(text string, variables map[string]any) string {
	return placeholderPattern.ReplaceAllStringFunc(text, func(match string) string {
		name := placeholderPattern.FindStringSubmatch(match)[1]
		if value, ok := variables[name]; ok {
			return t.formatValue(name, value)
		}
		if decl := t.findVariable(name); decl != nil && decl.Default != nil {
			return t.formatValue(name, decl.Default)
		}
		return ""
	})
}

// formatValue renders a variable value for substitution: dates as locale
// date strings, booleans as Yes/No, numbers via their string form.
func (t *Template) formatValue(name string, value any) string {
	if value == nil {
		return ""
	}
	decl := t.findVariable(name)
	if decl == nil {
		return fmt.Sprintf("%v", value)
	}
	switch decl.Type {
	case VarDate:
		if ts, ok := asTime(value); ok {
			return ts.Format("1/2/2006")
		}
		return fmt.Sprintf("%v", value)
	case VarBoolean:
		if b, ok := value.(bool); ok {
			if b {
				return "Yes"
			}
			return "No"
		}
		return fmt.Sprintf("%v", value)
	case VarNumber:
		if f, ok := asNumber(value); ok {
			return strconv.FormatFloat(f, 'f', -1, 64)
		}
		return fmt.Sprintf("%v", value)
	default:
		return fmt.Sprintf("%v", value)
	}
}

func (t *Template) findVariable(name string) *TemplateVariable {
	for i := range t.variables {
		if t.variables[i].Name == name {
			return &t.variables[i]
		}
	}
	return nil
}

// validate enforces the structural invariants: subject/body bounds,
// variable-name syntax and uniqueness, and the attachment ceiling.
func (t *Template) validate() error {
	if strings.TrimSpace(t.subject) == "" {
		return fmt.Errorf("template subject cannot be empty")
	}
	if len(t.subject) > MaxTemplateSubjectLength {
		return fmt.Errorf("template subject cannot exceed %d characters", MaxTemplateSubjectLength)
	}
	if strings.TrimSpace(t.body) == "" {
		return fmt.Errorf("template body cannot be empty")
	}
	if len(t.body) > MaxTemplateBodyLength {
		return fmt.Errorf("template body cannot exceed %d characters", MaxTemplateBodyLength)
	}

	seen := make(map[string]bool, len(t.variables))
	for _, v := range t.variables {
		if seen[v.Name] {
			return fmt.Errorf("duplicate variable name: %s", v.Name)
		}
		seen[v.Name] = true
		if !variableNamePattern.MatchString(v.Name) {
			return fmt.Errorf("invalid variable name: %s", v.Name)
		}
	}

	total := 0
	for _, att := range t.attachments {
		total += att.Size()
	}
	if total > MaxTemplateAttachmentsTotal {
		return fmt.Errorf("total attachment size cannot exceed 25MB")
	}
	return nil
}

// validateVariableValue checks one provided value against its declaration.
func validateVariableValue(decl TemplateVariable, value any) error {
	if value == nil {
		if decl.Required {
			return fmt.Errorf("required variable %s cannot be null", decl.Name)
		}
		return nil
	}

	switch decl.Type {
	case VarString:
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("variable %s must be a string", decl.Name)
		}
		return validateStringConstraints(decl, s)
	case VarNumber:
		f, ok := asNumber(value)
		if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("variable %s must be a number", decl.Name)
		}
		return validateNumberConstraints(decl, f)
	case VarBoolean:
		if _, ok := value.(bool); !ok {
			return fmt.Errorf("variable %s must be a boolean", decl.Name)
		}
	case VarDate:
		if _, ok := asTime(value); !ok {
			return fmt.Errorf("variable %s must be a valid date", decl.Name)
		}
	case VarEmail:
		s, ok := value.(string)
		if !ok || !emailPattern.MatchString(strings.ToLower(s)) {
			return fmt.Errorf("variable %s must be a valid email", decl.Name)
		}
	case VarURL:
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("variable %s must be a valid URL", decl.Name)
		}
		u, err := url.Parse(s)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("variable %s must be a valid URL", decl.Name)
		}
	}
	return nil
}

func validateStringConstraints(decl TemplateVariable, s string) error {
	c := decl.Constraints
	if c == nil {
		return nil
	}
	if c.MinLength > 0 && len(s) < c.MinLength {
		return fmt.Errorf("variable %s must be at least %d characters", decl.Name, c.MinLength)
	}
	if c.MaxLength > 0 && len(s) > c.MaxLength {
		return fmt.Errorf("variable %s cannot exceed %d characters", decl.Name, c.MaxLength)
	}
	if c.Pattern != "" {
		re, err := regexp.Compile(c.Pattern)
		if err != nil {
			return fmt.Errorf("variable %s has an invalid constraint pattern", decl.Name)
		}
		if !re.MatchString(s) {
			return fmt.Errorf("variable %s does not match required pattern", decl.Name)
		}
	}
	return nil
}

func validateNumberConstraints(decl TemplateVariable, f float64) error {
	c := decl.Constraints
	if c == nil {
		return nil
	}
	if c.Min != nil && f < *c.Min {
		return fmt.Errorf("variable %s must be at least %v", decl.Name, *c.Min)
	}
	if c.Max != nil && f > *c.Max {
		return fmt.Errorf("variable %s cannot exceed %v", decl.Name, *c.Max)
	}
	return nil
}

// asNumber coerces the numeric types a JSON decoder or caller might hand us.
func asNumber(value any) (float64, bool) {
	switch n := value.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// asTime accepts a time.Time or a parseable date string.
func asTime(value any) (time.Time, bool) {
	switch v := value.(type) {
	case time.Time:
		return v, true
	case string:
		for _, layout := range []string{time.RFC3339, "2006-01-02", "2006-01-02 15:04:05"} {
			if ts, err := time.Parse(layout, v); err == nil {
				return ts, true
			}
		}
	}
	return time.Time{}, false
}

// bumpPatch increments the patch component of a semantic version string.
func bumpPatch(version string) string {
	parts := strings.Split(version, ".")
	for len(parts) < 3 {
		parts = append(parts, "0")
	}
	patch, _ := strconv.Atoi(parts[2])
	return fmt.Sprintf("%s.%s.%d", parts[0], parts[1], patch+1)
}
