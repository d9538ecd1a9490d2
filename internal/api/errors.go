package api

import (
	"errors"
	"net/http"

	"github.com/ignite/outreach-engine/internal/derive"
	"github.com/ignite/outreach-engine/internal/onboarding"
	"github.com/ignite/outreach-engine/internal/pkg/httputil"
	"github.com/ignite/outreach-engine/internal/service/campaign"
	"github.com/ignite/outreach-engine/internal/storage"
)

// respondServiceError maps service and domain errors to HTTP responses.
// Anything unrecognized is logged and returned as a generic 500 so storage
// details never reach API consumers.
func respondServiceError(w http.ResponseWriter, err error) {
	var verr *derive.ValidationError
	switch {
	case errors.As(err, &verr):
		httputil.Unprocessable(w, derive.ErrInvalidSequence.Error(), verr.Problems)

	case errors.Is(err, campaign.ErrNotFound),
		errors.Is(err, campaign.ErrEnrollmentNotFound),
		errors.Is(err, campaign.ErrStepNotFound),
		errors.Is(err, onboarding.ErrSessionNotFound),
		errors.Is(err, storage.ErrNoSnapshot):
		httputil.NotFound(w, err.Error())

	case errors.Is(err, campaign.ErrInvalidTransition),
		errors.Is(err, campaign.ErrNoSequence),
		errors.Is(err, campaign.ErrAlreadyEnrolled),
		errors.Is(err, campaign.ErrCampaignStopped),
		errors.Is(err, campaign.ErrNotRetryable),
		errors.Is(err, onboarding.ErrSessionComplete),
		errors.Is(err, onboarding.ErrSessionOpen),
		errors.Is(err, onboarding.ErrSessionConflict):
		httputil.Conflict(w, err.Error())

	case errors.Is(err, campaign.ErrInvalidInput),
		errors.Is(err, onboarding.ErrInvalidAnswer),
		errors.Is(err, onboarding.ErrAtFirstState),
		errors.Is(err, onboarding.ErrInvalidState),
		errors.Is(err, onboarding.ErrSkipNotAllowed):
		httputil.Unprocessable(w, err.Error(), nil)

	default:
		httputil.InternalError(w, err)
	}
}
