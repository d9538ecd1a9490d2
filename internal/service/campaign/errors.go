package campaign

import "errors"

// Sentinel errors for the campaign service layer.
var (
	ErrNotFound           = errors.New("campaign not found")
	ErrInvalidTransition  = errors.New("invalid status transition")
	ErrNoSequence         = errors.New("campaign has no sequence")
	ErrEnrollmentNotFound = errors.New("lead enrollment not found")
	ErrAlreadyEnrolled    = errors.New("lead already enrolled")
	ErrCampaignStopped    = errors.New("campaign is stopped")
	ErrStepNotFound       = errors.New("step not found in sequence")
	ErrNotRetryable       = errors.New("step is not failed or skipped")
	ErrInvalidInput       = errors.New("invalid input")
)
