package services

import "errors"

var (
	ErrTenantNotFound      = errors.New("tenant not found")
	ErrContactNotFound     = errors.New("contact not found")
	ErrContactEmailMissing = errors.New("contact has no email address")
	ErrSequenceRunning     = errors.New("a sequence is already running for this contact")
	ErrQuotaExceeded       = errors.New("monthly quota exceeded")
	ErrHardEmailNotFound   = errors.New("hard email not found")
	ErrAlreadyReplied      = errors.New("hard email already replied")
	ErrInvalidOffsets      = errors.New("day offsets must be positive")
	ErrFollowUpCount       = errors.New("follow-up count must match day offsets")
	ErrEmptyBody           = errors.New("message body is required")
	ErrInvalidEmail        = errors.New("invalid contact email")
	ErrGenerationFailed    = errors.New("content generation failed")
)
