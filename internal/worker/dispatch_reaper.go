package worker

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/outreach-engine/internal/domain"
	"github.com/ignite/outreach-engine/internal/service/campaign"
)

// =============================================================================
// DISPATCH REAPER
// =============================================================================
// A channel worker that crashes after receiving a work item never reports
// back, which leaves the step in progress and the lead deferred forever.
// The reaper closes such dispatches with a FAILED row once they are older
// than the stale horizon; an operator retry re-admits the lead.

const (
	DefaultStaleAfter = time.Hour
	reapBatchSize     = 500
)

// TimedOutMessage is the error recorded on reaped dispatches.
const TimedOutMessage = "dispatch timed out"

// DispatchReaper fails dispatches that were never resolved.
type DispatchReaper struct {
	ledger     campaign.Ledger
	staleAfter time.Duration
	now        func() time.Time
}

// NewDispatchReaper creates a reaper with the given stale horizon.
func NewDispatchReaper(ledger campaign.Ledger, staleAfter time.Duration) *DispatchReaper {
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	return &DispatchReaper{
		ledger:     ledger,
		staleAfter: staleAfter,
		now:        time.Now,
	}
}

// Reap appends a FAILED row for every open dispatch older than the stale
// horizon and returns how many it closed.
func (r *DispatchReaper) Reap(ctx context.Context) (int, error) {
	queryCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	now := r.now()
	reaped := 0
	for {
		open, err := r.ledger.OpenDispatches(queryCtx, now.Add(-r.staleAfter), reapBatchSize)
		if err != nil {
			return reaped, fmt.Errorf("list open dispatches: %w", err)
		}
		for _, a := range open {
			err := r.ledger.AppendActivity(queryCtx, domain.Activity{
				ID:           uuid.NewString(),
				LeadID:       a.LeadID,
				CampaignID:   a.CampaignID,
				StepID:       a.StepID,
				ActionType:   a.ActionType,
				Platform:     a.Platform,
				Status:       domain.ActivityFailed,
				Timestamp:    now,
				ErrorMessage: TimedOutMessage,
				AccountID:    a.AccountID,
			})
			if err != nil {
				return reaped, fmt.Errorf("fail dispatch %s: %w", a.ID, err)
			}
			reaped++
		}
		if len(open) < reapBatchSize {
			break
		}
	}
	if reaped > 0 {
		log.Printf("[DispatchReaper] Failed %d stale dispatches", reaped)
	}
	return reaped, nil
}
