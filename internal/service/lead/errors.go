package lead

import "errors"

// Sentinel errors for the lead service layer.
var (
	ErrLeadNotFound   = errors.New("lead not found")
	ErrInvalidStatus  = errors.New("invalid lead status")
	ErrInvalidTier    = errors.New("invalid lead tier")
	ErrInvalidChannel = errors.New("invalid contact channel")
	ErrEmptyNote      = errors.New("note content is required")
	ErrNoChanges      = errors.New("no fields to update")
	ErrMissingField   = errors.New("missing required field")
)
