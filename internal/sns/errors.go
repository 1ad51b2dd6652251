package sns

import "errors"

var (
	ErrInvalidJSON         = errors.New("sns: invalid JSON body")
	ErrMissingFields       = errors.New("sns: missing required message fields")
	ErrInvalidCertURL      = errors.New("sns: invalid signing certificate URL")
	ErrUnsupportedVersion  = errors.New("sns: unsupported signature version")
	ErrCertFetch           = errors.New("sns: failed to fetch signing certificate")
	ErrInvalidSignature    = errors.New("sns: signature verification failed")
	ErrTopicNotAllowed     = errors.New("sns: topic not allowed")
	ErrMissingSubscribeURL = errors.New("sns: missing SubscribeURL")
	ErrInvalidNotification = errors.New("sns: invalid SES notification")
	ErrUnknownMessageType  = errors.New("sns: unknown message type")
	ErrEventStorage        = errors.New("sns: failed to apply SES event")
)
