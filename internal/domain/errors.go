package domain

import "errors"

var (
	ErrCredentialInvalid       = errors.New("credential rejected")
	ErrAccessDenied            = errors.New("destination access denied")
	ErrDeliveryFailed          = errors.New("delivery failed")
	ErrInsufficientHealthy     = errors.New("no healthy sessions")
	ErrHealthThresholdBreached = errors.New("unhealthy session threshold reached")
	ErrInputInvalid            = errors.New("invalid input")
	ErrUnknownTask             = errors.New("unknown task")
)
