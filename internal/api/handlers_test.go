package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/outreach-engine/internal/domain"
	"github.com/ignite/outreach-engine/internal/onboarding"
	"github.com/ignite/outreach-engine/internal/ratelimit"
	"github.com/ignite/outreach-engine/internal/repository/memory"
	"github.com/ignite/outreach-engine/internal/service/campaign"
	"github.com/ignite/outreach-engine/internal/storage"
)

const testOrg = "org-1"

type testEnv struct {
	router    http.Handler
	store     *memory.Store
	snapshots *storage.Local
}

func setupTestRouter(t *testing.T) *testEnv {
	t.Helper()
	store := memory.NewStore()
	limiter := ratelimit.NewMemoryLimiter(ratelimit.FixedLimits{DailyMax: 1, WeeklyMax: 5}, time.UTC)
	svc := campaign.NewService(store, store, limiter)
	ob := onboarding.NewOrchestrator(onboarding.NewMemoryStore(time.Hour), onboarding.DefaultBounds)
	snapshots, err := storage.NewLocal("")
	require.NoError(t, err)

	h := NewHandlers(svc, ob, snapshots)
	health := NewHealthChecker(nil, nil, store, time.Hour)
	return &testEnv{router: SetupRoutes(h, health, nil), store: store, snapshots: snapshots}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Organization-ID", testOrg)
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(rec.Body).Decode(dst))
}

func (e *testEnv) createCampaign(t *testing.T, launch bool) domain.Campaign {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/campaigns", campaign.CreateInput{
		Name:       "Q3 founders",
		AccountIDs: []string{"acct-1"},
		Steps:      campaign.DefaultSequence([]domain.Platform{domain.PlatformLinkedIn}),
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var c domain.Campaign
	decode(t, rec, &c)
	if launch {
		rec = e.do(t, http.MethodPost, "/api/campaigns/"+c.ID+"/launch", nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		decode(t, rec, &c)
	}
	return c
}

func TestHealthCheck(t *testing.T) {
	env := setupTestRouter(t)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var status HealthStatus
	decode(t, rec, &status)
	assert.Equal(t, "healthy", status.Status)
	assert.Equal(t, "up", status.Checks["dispatch"].Status)
	assert.Equal(t, "not configured", status.Checks["database"].Message)
}

func TestRequireOrg(t *testing.T) {
	env := setupTestRouter(t)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/campaigns", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCampaignLifecycle(t *testing.T) {
	env := setupTestRouter(t)
	c := env.createCampaign(t, true)
	assert.Equal(t, domain.CampaignRunning, c.Status)

	rec := env.do(t, http.MethodGet, "/api/campaigns?status=running", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Data  []domain.Campaign `json:"data"`
		Total int               `json:"total"`
	}
	decode(t, rec, &list)
	assert.Equal(t, 1, list.Total)

	rec = env.do(t, http.MethodPost, "/api/campaigns/"+c.ID+"/pause", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &c)
	assert.Equal(t, domain.CampaignPaused, c.Status)

	rec = env.do(t, http.MethodPost, "/api/campaigns/"+c.ID+"/pause", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/campaigns/"+c.ID+"/resume", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/campaigns/"+c.ID+"/leads", campaign.EnrollInput{LeadID: "lead-1"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodPost, "/api/campaigns/"+c.ID+"/stop", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var stopped struct {
		Status             string `json:"status"`
		StoppedEnrollments int    `json:"stopped_enrollments"`
	}
	decode(t, rec, &stopped)
	assert.Equal(t, "stopped", stopped.Status)
	assert.Equal(t, 1, stopped.StoppedEnrollments)

	rec = env.do(t, http.MethodPost, "/api/campaigns/"+c.ID+"/resume", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestGetCampaignNotFound(t *testing.T) {
	env := setupTestRouter(t)
	rec := env.do(t, http.MethodGet, "/api/campaigns/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPutSequenceValidation(t *testing.T) {
	env := setupTestRouter(t)
	c := env.createCampaign(t, false)

	rec := env.do(t, http.MethodPut, "/api/campaigns/"+c.ID+"/sequence", map[string]interface{}{
		"steps": []domain.StepDefinition{
			{ID: "start", Order: 0, Type: domain.StepStart},
			{ID: "msg", Order: 1, Type: domain.StepMessage},
			{ID: "end", Order: 2, Type: domain.StepEnd},
		},
	})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())
	var body struct {
		Error   string `json:"error"`
		Code    string `json:"code"`
		Details []struct {
			StepID string `json:"step_id"`
			Detail string `json:"detail"`
		} `json:"details"`
	}
	decode(t, rec, &body)
	assert.Equal(t, "validation_failed", body.Code)
	assert.NotEmpty(t, body.Details)
}

func TestLeadOutcomeAndProgress(t *testing.T) {
	env := setupTestRouter(t)
	c := env.createCampaign(t, true)
	rec := env.do(t, http.MethodPost, "/api/campaigns/"+c.ID+"/leads", campaign.EnrollInput{LeadID: "lead-1"})
	require.Equal(t, http.StatusCreated, rec.Code)

	steps, err := env.store.GetSteps(context.Background(), c.ID)
	require.NoError(t, err)
	visit, connect := steps[1], steps[2]

	rec = env.do(t, http.MethodPost, "/api/campaigns/"+c.ID+"/leads/lead-1/activities", campaign.OutcomeInput{
		StepID: visit.ID, ActionType: domain.ActionProfileVisit, Status: domain.ActivitySent,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodPost, "/api/campaigns/"+c.ID+"/leads/lead-1/activities", campaign.OutcomeInput{
		StepID: connect.ID, ActionType: domain.ActionConnectionRequest, Status: domain.ActivityFailed,
		ErrorMessage: "profile unavailable",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/api/campaigns/"+c.ID+"/leads/lead-1/progress", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var progress campaign.LeadProgress
	decode(t, rec, &progress)
	assert.True(t, progress.Facts.ProfileVisited)
	assert.Equal(t, domain.ConnectionFailed, progress.Facts.ConnectionStatus)

	rec = env.do(t, http.MethodPost, "/api/campaigns/"+c.ID+"/leads/lead-1/retry", map[string]string{"step_id": connect.ID})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodPost, "/api/campaigns/"+c.ID+"/leads/lead-1/retry", map[string]string{"step_id": connect.ID})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/campaigns/"+c.ID+"/leads/lead-1/activities", map[string]string{"status": "SENT"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = env.do(t, http.MethodDelete, "/api/campaigns/"+c.ID+"/leads/lead-1", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestAdmissionAndCapacity(t *testing.T) {
	env := setupTestRouter(t)
	c := env.createCampaign(t, true)

	rec := env.do(t, http.MethodPost, "/api/admission", map[string]string{"account_id": "acct-1"})
	require.Equal(t, http.StatusOK, rec.Code)
	var adm domain.Admission
	decode(t, rec, &adm)
	assert.True(t, adm.Admitted)

	rec = env.do(t, http.MethodPost, "/api/admission", map[string]string{"account_id": "acct-1"})
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &adm)
	assert.False(t, adm.Admitted)
	assert.Equal(t, domain.PauseDailyLimit, adm.Reason)

	rec = env.do(t, http.MethodPost, "/api/admission", map[string]string{"account_id": ""})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/campaigns/"+c.ID+"/capacity", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestSnapshotEndpoints(t *testing.T) {
	env := setupTestRouter(t)
	c := env.createCampaign(t, true)

	rec := env.do(t, http.MethodGet, "/api/campaigns/"+c.ID+"/snapshot", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	now := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, env.snapshots.SaveSnapshot(context.Background(), domain.CampaignSnapshot{
		CampaignID: c.ID, Delivered: 3, Pending: 2, Total: 5, TakenAt: now,
	}))

	rec = env.do(t, http.MethodGet, "/api/campaigns/"+c.ID+"/snapshot", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var snap domain.CampaignSnapshot
	decode(t, rec, &snap)
	assert.Equal(t, 3, snap.Delivered)

	rec = env.do(t, http.MethodGet, "/api/campaigns/"+c.ID+"/snapshots?from=bad", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/campaigns/"+c.ID+"/snapshots", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var hist struct {
		Snapshots []domain.CampaignSnapshot `json:"snapshots"`
	}
	decode(t, rec, &hist)
	assert.Len(t, hist.Snapshots, 1)
}

func TestOnboardingFlow(t *testing.T) {
	env := setupTestRouter(t)

	rec := env.do(t, http.MethodPost, "/api/onboarding/sessions", nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	var turn onboarding.Turn
	decode(t, rec, &turn)
	sid := turn.Session.ID
	base := "/api/onboarding/sessions/" + sid

	rec = env.do(t, http.MethodPost, base+"/answer", map[string]string{"answer": ""})
	require.Equal(t, http.StatusOK, rec.Code)
	turn = onboarding.Turn{}
	decode(t, rec, &turn)
	assert.NotNil(t, turn.Problem)

	rec = env.do(t, http.MethodPost, base+"/back", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	for _, a := range []string{"SaaS", "Berlin"} {
		rec = env.do(t, http.MethodPost, base+"/answer", map[string]string{"answer": a})
		require.Equal(t, http.StatusOK, rec.Code)
	}
	rec = env.do(t, http.MethodPost, base+"/skip", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = env.do(t, http.MethodPost, base+"/skip", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPost, base+"/finish", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	for _, a := range []string{"Book demos", "25", "14", "yes"} {
		rec = env.do(t, http.MethodPost, base+"/answer", map[string]string{"answer": a})
		require.Equal(t, http.StatusOK, rec.Code)
		turn = onboarding.Turn{}
		decode(t, rec, &turn)
		require.Nil(t, turn.Problem, "answer %q", a)
	}

	rec = env.do(t, http.MethodPost, base+"/finish", map[string][]string{"account_ids": {"acct-1"}})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var out struct {
		Campaign domain.Campaign          `json:"campaign"`
		Draft    onboarding.CampaignDraft `json:"draft"`
	}
	decode(t, rec, &out)
	assert.Equal(t, domain.CampaignDraft, out.Campaign.Status)
	assert.Equal(t, []domain.Platform{domain.PlatformLinkedIn}, out.Draft.Platforms)

	rec = env.do(t, http.MethodGet, "/api/campaigns/"+out.Campaign.ID+"/sequence", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, base, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestOnboardingSessionIsOrgScoped(t *testing.T) {
	env := setupTestRouter(t)
	rec := env.do(t, http.MethodPost, "/api/onboarding/sessions", nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	var turn onboarding.Turn
	decode(t, rec, &turn)

	req := httptest.NewRequest(http.MethodGet, "/api/onboarding/sessions/"+turn.Session.ID, nil)
	req.Header.Set("X-Organization-ID", "org-2")
	other := httptest.NewRecorder()
	env.router.ServeHTTP(other, req)
	assert.Equal(t, http.StatusNotFound, other.Code)
}

func TestRespondServiceErrorSessionConflict(t *testing.T) {
	rec := httptest.NewRecorder()
	respondServiceError(rec, fmt.Errorf("advance: %w", onboarding.ErrSessionConflict))
	assert.Equal(t, http.StatusConflict, rec.Code)
}
