package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/outreach-engine/internal/domain"
)

// LedgerRepo implements campaign.Ledger against the lead_activities table.
// Rows are only ever inserted.
type LedgerRepo struct{ db *sql.DB }

// NewLedgerRepo creates a Postgres-backed activity ledger.
func NewLedgerRepo(db *sql.DB) *LedgerRepo { return &LedgerRepo{db: db} }

const activityColumns = `id, lead_id, campaign_id, COALESCE(step_id, ''), action_type,
	       platform, status, created_at, COALESCE(error_message, ''), COALESCE(account_id, '')`

func scanActivity(s scanner) (domain.Activity, error) {
	var a domain.Activity
	err := s.Scan(&a.ID, &a.LeadID, &a.CampaignID, &a.StepID, &a.ActionType,
		&a.Platform, &a.Status, &a.Timestamp, &a.ErrorMessage, &a.AccountID)
	return a, err
}

func (r *LedgerRepo) GetActivities(ctx context.Context, leadID, campaignID string) ([]domain.Activity, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+activityColumns+`
		FROM lead_activities
		WHERE lead_id = $1 AND campaign_id = $2
		ORDER BY created_at, seq
	`, leadID, campaignID)
	if err != nil {
		return nil, fmt.Errorf("get activities: %w", err)
	}
	defer rows.Close()
	return collectActivities(rows)
}

func (r *LedgerRepo) AppendActivity(ctx context.Context, a domain.Activity) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO lead_activities
			(id, lead_id, campaign_id, step_id, action_type, platform, status, created_at, error_message, account_id)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, $8, NULLIF($9, ''), NULLIF($10, ''))
	`, a.ID, a.LeadID, a.CampaignID, a.StepID, a.ActionType, a.Platform, a.Status, a.Timestamp, a.ErrorMessage, a.AccountID)
	if err != nil {
		return fmt.Errorf("append activity: %w", err)
	}
	return nil
}

// OpenDispatches finds DISPATCHED rows older than before whose lead and step
// have no later row.
func (r *LedgerRepo) OpenDispatches(ctx context.Context, before time.Time, limit int) ([]domain.Activity, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+activityColumns+`
		FROM lead_activities a
		WHERE a.status = 'DISPATCHED' AND a.created_at < $1
		  AND NOT EXISTS (
		      SELECT 1 FROM lead_activities b
		      WHERE b.lead_id = a.lead_id AND b.campaign_id = a.campaign_id
		        AND COALESCE(b.step_id, '') = COALESCE(a.step_id, '')
		        AND b.seq > a.seq
		  )
		ORDER BY a.created_at
		LIMIT $2
	`, before, limit)
	if err != nil {
		return nil, fmt.Errorf("open dispatches: %w", err)
	}
	defer rows.Close()
	return collectActivities(rows)
}

func collectActivities(rows *sql.Rows) ([]domain.Activity, error) {
	var out []domain.Activity
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
