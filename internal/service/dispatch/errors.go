package dispatch

import "errors"

// Sentinel errors for the dispatch service layer.
var (
	ErrMessageNotFound  = errors.New("message not found")
	ErrTemplateNotFound = errors.New("template not found")
	ErrContentRequired  = errors.New("either content or template id must be provided")
	ErrInvalidRecipient = errors.New("invalid recipient")
	ErrBeingProcessed   = errors.New("message is already being processed")
	ErrNotCancellable   = errors.New("message cannot be cancelled in its current status")
	ErrRetriesExhausted = errors.New("message has no retries remaining")
)
