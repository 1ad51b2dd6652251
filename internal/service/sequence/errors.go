package sequence

import "errors"

// Sentinel errors for the sequence service layer.
var (
	ErrLeadNotFound        = errors.New("lead not found")
	ErrNoSequence          = errors.New("lead has no email sequence")
	ErrInvalidSequenceType = errors.New("invalid sequence type")
	ErrInvalidToken        = errors.New("invalid unsubscribe token")
	ErrTokenExpired        = errors.New("unsubscribe token expired")
	ErrInvalidTrackingID   = errors.New("invalid tracking id")
)
