// Package dispatch hands planned steps to channel workers. Every work item
// is recorded as a DISPATCHED ledger row before it leaves the process, so
// the deriver sees the step as in progress until a worker reports back.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/outreach-engine/internal/domain"
	"github.com/ignite/outreach-engine/internal/pkg/logger"
)

// ErrQueueEmpty is returned by Pop when nothing arrived before the timeout.
var ErrQueueEmpty = errors.New("dispatch: queue empty")

// WorkItem is one step execution request for a channel worker.
type WorkItem struct {
	ID         string            `json:"id"`
	LeadID     string            `json:"lead_id"`
	CampaignID string            `json:"campaign_id"`
	StepID     string            `json:"step_id"`
	StepType   domain.StepType   `json:"step_type"`
	ActionType domain.ActionType `json:"action_type"`
	Platform   domain.Platform   `json:"platform"`
	AccountID  string            `json:"account_id,omitempty"`
	Template   string            `json:"template,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
}

// Queue transports work items.
type Queue interface {
	Publish(ctx context.Context, item WorkItem) error
}

// Ledger is the slice of the activity ledger dispatch writes to.
type Ledger interface {
	AppendActivity(ctx context.Context, a domain.Activity) error
}

// Dispatcher records and publishes work items.
type Dispatcher struct {
	queue  Queue
	ledger Ledger
	now    func() time.Time
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(queue Queue, ledger Ledger) *Dispatcher {
	return &Dispatcher{queue: queue, ledger: ledger, now: time.Now}
}

// Dispatch sends step for the enrolled lead. A failed publish is recorded
// as a FAILED row so the lead does not sit in progress until the reaper
// finds it.
func (d *Dispatcher) Dispatch(ctx context.Context, e domain.LeadEnrollment, step domain.StepDefinition, accountID string) (WorkItem, error) {
	if accountID == "" {
		accountID = e.AccountID
	}
	item := WorkItem{
		ID:         uuid.NewString(),
		LeadID:     e.LeadID,
		CampaignID: e.CampaignID,
		StepID:     step.ID,
		StepType:   step.Type,
		ActionType: step.Type.Action(),
		Platform:   e.Platform,
		AccountID:  accountID,
		Template:   step.Template(),
		CreatedAt:  d.now(),
	}

	row := domain.Activity{
		ID:         item.ID,
		LeadID:     item.LeadID,
		CampaignID: item.CampaignID,
		StepID:     item.StepID,
		ActionType: item.ActionType,
		Platform:   item.Platform,
		Status:     domain.ActivityDispatched,
		Timestamp:  item.CreatedAt,
		AccountID:  item.AccountID,
	}
	if err := d.ledger.AppendActivity(ctx, row); err != nil {
		return WorkItem{}, fmt.Errorf("record dispatch: %w", err)
	}

	if err := d.queue.Publish(ctx, item); err != nil {
		row.ID = uuid.NewString()
		row.Status = domain.ActivityFailed
		row.Timestamp = d.now()
		row.ErrorMessage = "dispatch failed: " + err.Error()
		if lerr := d.ledger.AppendActivity(ctx, row); lerr != nil {
			logger.Error("failed to record dispatch failure", "lead_id", item.LeadID, "step_id", item.StepID, "error", lerr.Error())
		}
		return WorkItem{}, fmt.Errorf("publish work item: %w", err)
	}

	logger.Debug("work item dispatched",
		"work_item_id", item.ID, "lead_id", item.LeadID, "campaign_id", item.CampaignID,
		"step_id", item.StepID, "account_id", item.AccountID)
	return item, nil
}
