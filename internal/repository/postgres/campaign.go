package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/ignite/outreach-engine/internal/domain"
	"github.com/ignite/outreach-engine/internal/service/campaign"
)

// CampaignRepo implements campaign.Repository against PostgreSQL.
type CampaignRepo struct{ db *sql.DB }

// NewCampaignRepo creates a Postgres-backed campaign repository.
func NewCampaignRepo(db *sql.DB) *CampaignRepo { return &CampaignRepo{db: db} }

const campaignColumns = `id, organization_id, name, status, account_ids, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanCampaign(s scanner) (domain.Campaign, error) {
	var c domain.Campaign
	err := s.Scan(&c.ID, &c.OrganizationID, &c.Name, &c.Status,
		pq.Array(&c.AccountIDs), &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

func (r *CampaignRepo) Get(ctx context.Context, orgID, id string) (*domain.Campaign, error) {
	c, err := scanCampaign(r.db.QueryRowContext(ctx, `
		SELECT `+campaignColumns+`
		FROM outreach_campaigns
		WHERE id = $1 AND organization_id = $2
	`, id, orgID))
	if err == sql.ErrNoRows {
		return nil, campaign.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get campaign: %w", err)
	}
	return &c, nil
}

func (r *CampaignRepo) List(ctx context.Context, orgID string, f campaign.ListFilter) ([]domain.Campaign, int, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}

	where := ` WHERE organization_id = $1`
	args := []interface{}{orgID}
	idx := 2
	if f.Status != "" {
		where += fmt.Sprintf(" AND status = $%d", idx)
		args = append(args, f.Status)
		idx++
	}
	if f.Search != "" {
		where += fmt.Sprintf(" AND name ILIKE $%d", idx)
		args = append(args, "%"+f.Search+"%")
		idx++
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM outreach_campaigns`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count campaigns: %w", err)
	}

	q := `SELECT ` + campaignColumns + ` FROM outreach_campaigns` + where +
		fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", idx, idx+1)
	args = append(args, limit, f.Offset)

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list campaigns: %w", err)
	}
	defer rows.Close()

	var out []domain.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan campaign: %w", err)
		}
		out = append(out, c)
	}
	return out, total, rows.Err()
}

func (r *CampaignRepo) ListByStatus(ctx context.Context, status domain.CampaignStatus) ([]domain.Campaign, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+campaignColumns+`
		FROM outreach_campaigns
		WHERE status = $1
		ORDER BY created_at
	`, status)
	if err != nil {
		return nil, fmt.Errorf("list campaigns by status: %w", err)
	}
	defer rows.Close()

	var out []domain.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, fmt.Errorf("scan campaign: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *CampaignRepo) Create(ctx context.Context, c *domain.Campaign) (string, error) {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO outreach_campaigns
			(id, organization_id, name, status, account_ids, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
	`, c.ID, c.OrganizationID, c.Name, c.Status, pq.Array(c.AccountIDs))
	if err != nil {
		return "", fmt.Errorf("create campaign: %w", err)
	}
	return c.ID, nil
}

func (r *CampaignRepo) UpdateStatus(ctx context.Context, orgID, id string, status domain.CampaignStatus) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE outreach_campaigns SET status = $1, updated_at = NOW()
		WHERE id = $2 AND organization_id = $3
	`, status, id, orgID)
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return campaign.ErrNotFound
	}
	return nil
}

func (r *CampaignRepo) GetSteps(ctx context.Context, campaignID string) ([]domain.StepDefinition, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, campaign_id, step_order, step_type, COALESCE(config, '{}'::jsonb)
		FROM campaign_steps
		WHERE campaign_id = $1
		ORDER BY step_order
	`, campaignID)
	if err != nil {
		return nil, fmt.Errorf("get steps: %w", err)
	}
	defer rows.Close()

	var out []domain.StepDefinition
	for rows.Next() {
		var s domain.StepDefinition
		var raw []byte
		if err := rows.Scan(&s.ID, &s.CampaignID, &s.Order, &s.Type, &raw); err != nil {
			return nil, fmt.Errorf("scan step: %w", err)
		}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &s.Config); err != nil {
				return nil, fmt.Errorf("decode step %s config: %w", s.ID, err)
			}
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *CampaignRepo) ReplaceSteps(ctx context.Context, campaignID string, steps []domain.StepDefinition) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM campaign_steps WHERE campaign_id = $1`, campaignID); err != nil {
		return fmt.Errorf("clear steps: %w", err)
	}
	for _, s := range steps {
		cfg, err := json.Marshal(s.Config)
		if err != nil {
			return fmt.Errorf("encode step %s config: %w", s.ID, err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO campaign_steps (id, campaign_id, step_order, step_type, config)
			VALUES ($1, $2, $3, $4, $5)
		`, s.ID, campaignID, s.Order, s.Type, cfg); err != nil {
			return fmt.Errorf("insert step %s: %w", s.ID, err)
		}
	}
	return tx.Commit()
}

func (r *CampaignRepo) Enroll(ctx context.Context, e *domain.LeadEnrollment) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO lead_enrollments (lead_id, campaign_id, platform, account_id, status, enrolled_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6)
	`, e.LeadID, e.CampaignID, e.Platform, e.AccountID, e.Status, e.EnrolledAt)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return campaign.ErrAlreadyEnrolled
	}
	if err != nil {
		return fmt.Errorf("enroll lead: %w", err)
	}
	return nil
}

const enrollmentColumns = `lead_id, campaign_id, platform, COALESCE(account_id, ''), status, enrolled_at`

func scanEnrollment(s scanner) (domain.LeadEnrollment, error) {
	var e domain.LeadEnrollment
	err := s.Scan(&e.LeadID, &e.CampaignID, &e.Platform, &e.AccountID, &e.Status, &e.EnrolledAt)
	return e, err
}

func (r *CampaignRepo) GetEnrollment(ctx context.Context, campaignID, leadID string) (*domain.LeadEnrollment, error) {
	e, err := scanEnrollment(r.db.QueryRowContext(ctx, `
		SELECT `+enrollmentColumns+`
		FROM lead_enrollments
		WHERE campaign_id = $1 AND lead_id = $2
	`, campaignID, leadID))
	if err == sql.ErrNoRows {
		return nil, campaign.ErrEnrollmentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get enrollment: %w", err)
	}
	return &e, nil
}

func (r *CampaignRepo) ListEnrollments(ctx context.Context, campaignID string, f campaign.EnrollmentFilter) ([]domain.LeadEnrollment, error) {
	q := `SELECT ` + enrollmentColumns + ` FROM lead_enrollments WHERE campaign_id = $1`
	args := []interface{}{campaignID}
	idx := 2
	if f.Status != "" {
		q += fmt.Sprintf(" AND status = $%d", idx)
		args = append(args, f.Status)
		idx++
	}
	q += " ORDER BY enrolled_at, lead_id"
	if f.Limit > 0 {
		q += fmt.Sprintf(" LIMIT $%d OFFSET $%d", idx, idx+1)
		args = append(args, f.Limit, f.Offset)
	}

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list enrollments: %w", err)
	}
	defer rows.Close()

	var out []domain.LeadEnrollment
	for rows.Next() {
		e, err := scanEnrollment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan enrollment: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *CampaignRepo) SetEnrollmentStatus(ctx context.Context, campaignID, leadID string, status domain.EnrollmentStatus) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE lead_enrollments SET status = $1
		WHERE campaign_id = $2 AND lead_id = $3
	`, status, campaignID, leadID)
	if err != nil {
		return fmt.Errorf("update enrollment: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return campaign.ErrEnrollmentNotFound
	}
	return nil
}

func (r *CampaignRepo) StopEnrollments(ctx context.Context, campaignID string) (int, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE lead_enrollments SET status = 'stopped'
		WHERE campaign_id = $1 AND status = 'active'
	`, campaignID)
	if err != nil {
		return 0, fmt.Errorf("stop enrollments: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
