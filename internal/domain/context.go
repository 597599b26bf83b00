package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Context carries correlation metadata for a communication: request id,
// originating user/session, and free-form metadata. Immutable; the With*
// methods return copies.
type Context struct {
	requestID string
	timestamp time.Time
	userID    string
	sessionID string
	metadata  map[string]any
}

// NewContext builds a context. A request id is generated when none is given.
func NewContext(requestID, userID, sessionID string, metadata map[string]any) (Context, error) {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		requestID = uuid.New().String()
	}
	userID = strings.TrimSpace(userID)
	sessionID = strings.TrimSpace(sessionID)

	var md map[string]any
	if len(metadata) > 0 {
		md = make(map[string]any, len(metadata))
		for k, v := range metadata {
			md[k] = v
		}
	}

	return Context{
		requestID: requestID,
		timestamp: time.Now(),
		userID:    userID,
		sessionID: sessionID,
		metadata:  md,
	}, nil
}

// RequestID returns the correlation id for this communication.
func (c Context) RequestID() string { return c.requestID }

// Timestamp returns when the context was created.
func (c Context) Timestamp() time.Time { return c.timestamp }

// UserID returns the originating user id, empty if anonymous.
func (c Context) UserID() string { return c.userID }

// SessionID returns the originating session id, if any.
func (c Context) SessionID() string { return c.sessionID }

// HasUser reports whether a user id is attached.
func (c Context) HasUser() bool { return c.userID != "" }

// Metadata returns the metadata value for key, and whether it was present.
func (c Context) Metadata(key string) (any, bool) {
	v, ok := c.metadata[key]
	return v, ok
}

// MetadataMap returns a copy of the full metadata map.
func (c Context) MetadataMap() map[string]any {
	if c.metadata == nil {
		return nil
	}
	out := make(map[string]any, len(c.metadata))
	for k, v := range c.metadata {
		out[k] = v
	}
	return out
}

// WithMetadata returns a copy with the given entries merged in.
func (c Context) WithMetadata(extra map[string]any) Context {
	cp := c
	merged := make(map[string]any, len(c.metadata)+len(extra))
	for k, v := range c.metadata {
		merged[k] = v
	}
	for k, v := range extra {
		merged[k] = v
	}
	cp.metadata = merged
	return cp
}

// WithUser returns a copy with the user (and optionally session) attached.
func (c Context) WithUser(userID, sessionID string) Context {
	cp := c
	cp.userID = userID
	if sessionID != "" {
		cp.sessionID = sessionID
	}
	return cp
}

func (c Context) String() string {
	user := c.userID
	if user == "" {
		user = "anonymous"
	}
	return fmt.Sprintf("Context(requestId=%s, userId=%s)", c.requestID, user)
}
