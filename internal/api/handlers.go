package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/outreach-engine/internal/domain"
	"github.com/ignite/outreach-engine/internal/onboarding"
	"github.com/ignite/outreach-engine/internal/pkg/httputil"
	"github.com/ignite/outreach-engine/internal/service/campaign"
	"github.com/ignite/outreach-engine/internal/storage"
)

// Handlers contains the HTTP handlers of the control plane.
type Handlers struct {
	campaigns  *campaign.Service
	onboarding *onboarding.Orchestrator
	snapshots  storage.SnapshotStore
}

// NewHandlers creates the handler set. snapshots may be nil.
func NewHandlers(campaigns *campaign.Service, ob *onboarding.Orchestrator, snapshots storage.SnapshotStore) *Handlers {
	return &Handlers{campaigns: campaigns, onboarding: ob, snapshots: snapshots}
}

// ListCampaigns returns the organization's campaigns.
//
//	GET /api/campaigns?status=running&search=q&page=1&limit=20
func (h *Handlers) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	p := parsePage(r, 20, 100)
	q := r.URL.Query()
	list, total, err := h.campaigns.List(r.Context(), GetOrgIDFromContext(r.Context()), campaign.ListFilter{
		Status: q.Get("status"),
		Search: q.Get("search"),
		Limit:  p.Limit,
		Offset: p.Offset,
	})
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if list == nil {
		list = []domain.Campaign{}
	}
	httputil.OK(w, newListResponse(list, p, total))
}

// CreateCampaign creates a draft campaign, optionally with its sequence.
//
//	POST /api/campaigns
func (h *Handlers) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	var in campaign.CreateInput
	if !httputil.Decode(w, r, &in) {
		return
	}
	c, err := h.campaigns.Create(r.Context(), GetOrgIDFromContext(r.Context()), in)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	httputil.Created(w, c)
}

// GetCampaign returns one campaign.
//
//	GET /api/campaigns/{id}
func (h *Handlers) GetCampaign(w http.ResponseWriter, r *http.Request) {
	c, err := h.campaigns.Get(r.Context(), GetOrgIDFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	httputil.OK(w, c)
}

// GetSequence returns the campaign's step definitions.
//
//	GET /api/campaigns/{id}/sequence
func (h *Handlers) GetSequence(w http.ResponseWriter, r *http.Request) {
	steps, err := h.campaigns.Steps(r.Context(), GetOrgIDFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	httputil.OK(w, map[string]interface{}{"steps": steps})
}

// PutSequence validates and replaces the campaign's sequence. Validation
// problems are returned as a 422 with one entry per problem.
//
//	PUT /api/campaigns/{id}/sequence
func (h *Handlers) PutSequence(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Steps []domain.StepDefinition `json:"steps"`
	}
	if !httputil.Decode(w, r, &body) {
		return
	}
	steps, err := h.campaigns.RegisterSequence(r.Context(), GetOrgIDFromContext(r.Context()), chi.URLParam(r, "id"), body.Steps)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	httputil.OK(w, map[string]interface{}{"steps": steps})
}

// control wraps a status-changing service call.
func (h *Handlers) control(action func(r *http.Request, orgID, id string) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orgID, id := GetOrgIDFromContext(r.Context()), chi.URLParam(r, "id")
		if err := action(r, orgID, id); err != nil {
			respondServiceError(w, err)
			return
		}
		c, err := h.campaigns.Get(r.Context(), orgID, id)
		if err != nil {
			respondServiceError(w, err)
			return
		}
		httputil.OK(w, c)
	}
}

// LaunchCampaign moves a draft to running.
//
//	POST /api/campaigns/{id}/launch
func (h *Handlers) LaunchCampaign(w http.ResponseWriter, r *http.Request) {
	h.control(func(r *http.Request, orgID, id string) error {
		return h.campaigns.Launch(r.Context(), orgID, id)
	})(w, r)
}

// PauseCampaign stops planning until resumed.
//
//	POST /api/campaigns/{id}/pause
func (h *Handlers) PauseCampaign(w http.ResponseWriter, r *http.Request) {
	h.control(func(r *http.Request, orgID, id string) error {
		return h.campaigns.Pause(r.Context(), orgID, id)
	})(w, r)
}

// ResumeCampaign resumes a paused campaign.
//
//	POST /api/campaigns/{id}/resume
func (h *Handlers) ResumeCampaign(w http.ResponseWriter, r *http.Request) {
	h.control(func(r *http.Request, orgID, id string) error {
		return h.campaigns.Resume(r.Context(), orgID, id)
	})(w, r)
}

// StopCampaign stops the campaign for good and reports how many active
// enrollments were stopped.
//
//	POST /api/campaigns/{id}/stop
func (h *Handlers) StopCampaign(w http.ResponseWriter, r *http.Request) {
	n, err := h.campaigns.Stop(r.Context(), GetOrgIDFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	httputil.OK(w, map[string]interface{}{"status": domain.CampaignStopped, "stopped_enrollments": n})
}

// Capacity reports the campaign's remaining connect capacity.
//
//	GET /api/campaigns/{id}/capacity
func (h *Handlers) Capacity(w http.ResponseWriter, r *http.Request) {
	c, err := h.campaigns.Capacity(r.Context(), GetOrgIDFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	httputil.OK(w, c)
}

// LatestSnapshot returns the campaign's last aggregate counters.
//
//	GET /api/campaigns/{id}/snapshot
func (h *Handlers) LatestSnapshot(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := h.campaigns.Get(r.Context(), GetOrgIDFromContext(r.Context()), id); err != nil {
		respondServiceError(w, err)
		return
	}
	if h.snapshots == nil {
		respondServiceError(w, storage.ErrNoSnapshot)
		return
	}
	snap, err := h.snapshots.Latest(r.Context(), id)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	httputil.OK(w, snap)
}

// SnapshotHistory returns snapshots in a time range, the last 24 hours by
// default.
//
//	GET /api/campaigns/{id}/snapshots?from=RFC3339&to=RFC3339
func (h *Handlers) SnapshotHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := h.campaigns.Get(r.Context(), GetOrgIDFromContext(r.Context()), id); err != nil {
		respondServiceError(w, err)
		return
	}
	to := time.Now()
	from := to.Add(-24 * time.Hour)
	if v := r.URL.Query().Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			httputil.BadRequest(w, "from must be RFC3339")
			return
		}
		from = t
	}
	if v := r.URL.Query().Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			httputil.BadRequest(w, "to must be RFC3339")
			return
		}
		to = t
	}
	snaps := []domain.CampaignSnapshot{}
	if h.snapshots != nil {
		got, err := h.snapshots.History(r.Context(), id, from, to)
		if err != nil {
			respondServiceError(w, err)
			return
		}
		snaps = append(snaps, got...)
	}
	httputil.OK(w, map[string]interface{}{"snapshots": snaps})
}

// EnrollLead adds a lead to the campaign.
//
//	POST /api/campaigns/{id}/leads
func (h *Handlers) EnrollLead(w http.ResponseWriter, r *http.Request) {
	var in campaign.EnrollInput
	if !httputil.Decode(w, r, &in) {
		return
	}
	e, err := h.campaigns.Enroll(r.Context(), GetOrgIDFromContext(r.Context()), chi.URLParam(r, "id"), in)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	httputil.Created(w, e)
}

// RemoveLead removes a lead from the campaign.
//
//	DELETE /api/campaigns/{id}/leads/{leadID}
func (h *Handlers) RemoveLead(w http.ResponseWriter, r *http.Request) {
	err := h.campaigns.RemoveLead(r.Context(), GetOrgIDFromContext(r.Context()), chi.URLParam(r, "id"), chi.URLParam(r, "leadID"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	httputil.NoContent(w)
}

// LeadProgress returns the lead's derived state per step.
//
//	GET /api/campaigns/{id}/leads/{leadID}/progress
func (h *Handlers) LeadProgress(w http.ResponseWriter, r *http.Request) {
	p, err := h.campaigns.LeadProgress(r.Context(), GetOrgIDFromContext(r.Context()), chi.URLParam(r, "id"), chi.URLParam(r, "leadID"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	httputil.OK(w, p)
}

// RetryStep re-admits a lead whose step failed or was skipped.
//
//	POST /api/campaigns/{id}/leads/{leadID}/retry
func (h *Handlers) RetryStep(w http.ResponseWriter, r *http.Request) {
	var body struct {
		StepID string `json:"step_id"`
	}
	if !httputil.Decode(w, r, &body) {
		return
	}
	if body.StepID == "" {
		httputil.BadRequest(w, "step_id is required")
		return
	}
	orgID, id, leadID := GetOrgIDFromContext(r.Context()), chi.URLParam(r, "id"), chi.URLParam(r, "leadID")
	if err := h.campaigns.RetryFailed(r.Context(), orgID, id, leadID, body.StepID); err != nil {
		respondServiceError(w, err)
		return
	}
	httputil.JSON(w, http.StatusAccepted, map[string]string{"status": "retry_requested", "step_id": body.StepID})
}

// RecordActivity accepts a channel worker's outcome for a lead.
//
//	POST /api/campaigns/{id}/leads/{leadID}/activities
func (h *Handlers) RecordActivity(w http.ResponseWriter, r *http.Request) {
	var in campaign.OutcomeInput
	if !httputil.Decode(w, r, &in) {
		return
	}
	a, err := h.campaigns.RecordOutcome(r.Context(), GetOrgIDFromContext(r.Context()), chi.URLParam(r, "id"), chi.URLParam(r, "leadID"), in)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	httputil.Created(w, a)
}

// Admit runs an admission check before a channel worker sends. Rejection is
// a 200 with admitted=false and the reason.
//
//	POST /api/admission
func (h *Handlers) Admit(w http.ResponseWriter, r *http.Request) {
	var body struct {
		AccountID   string             `json:"account_id"`
		ActionClass domain.ActionClass `json:"action_class"`
	}
	if !httputil.Decode(w, r, &body) {
		return
	}
	if body.ActionClass == "" {
		body.ActionClass = domain.ActionClassConnect
	}
	adm, err := h.campaigns.Admit(r.Context(), body.AccountID, body.ActionClass)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	httputil.OK(w, adm)
}
