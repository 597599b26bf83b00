package routing

import "errors"

// Sentinel errors for channel selection and recipient validation.
var (
	ErrNoActiveChannels     = errors.New("no active communication channels available")
	ErrNoCompatibleChannels = errors.New("no compatible channels available")
	ErrDisposableEmail      = errors.New("disposable email domain not allowed")
	ErrInvalidPhoneLength   = errors.New("phone number length out of range")
)
