package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/outreach-engine/internal/onboarding"
	"github.com/ignite/outreach-engine/internal/pkg/httputil"
)

// session loads a session and hides it from other organizations.
func (h *Handlers) session(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "sessionID")
	turn, err := h.onboarding.Get(r.Context(), id)
	if err != nil {
		respondServiceError(w, err)
		return "", false
	}
	if turn.Session.OrganizationID != GetOrgIDFromContext(r.Context()) {
		respondServiceError(w, onboarding.ErrSessionNotFound)
		return "", false
	}
	return id, true
}

func respondTurn(w http.ResponseWriter, turn onboarding.Turn, err error) {
	if err != nil {
		respondServiceError(w, err)
		return
	}
	httputil.OK(w, turn)
}

// StartOnboarding opens a conversational campaign setup.
//
//	POST /api/onboarding/sessions
func (h *Handlers) StartOnboarding(w http.ResponseWriter, r *http.Request) {
	turn, err := h.onboarding.Start(r.Context(), GetOrgIDFromContext(r.Context()))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	httputil.Created(w, turn)
}

// GetOnboarding returns the session and its current prompt.
//
//	GET /api/onboarding/sessions/{sessionID}
func (h *Handlers) GetOnboarding(w http.ResponseWriter, r *http.Request) {
	id, ok := h.session(w, r)
	if !ok {
		return
	}
	turn, err := h.onboarding.Get(r.Context(), id)
	respondTurn(w, turn, err)
}

// AnswerOnboarding answers the current question. A rejected answer comes
// back as 200 with the problem set, so the client can ask again.
//
//	POST /api/onboarding/sessions/{sessionID}/answer
func (h *Handlers) AnswerOnboarding(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Answer string `json:"answer"`
	}
	if !httputil.Decode(w, r, &body) {
		return
	}
	id, ok := h.session(w, r)
	if !ok {
		return
	}
	turn, err := h.onboarding.Advance(r.Context(), id, body.Answer)
	respondTurn(w, turn, err)
}

// BackOnboarding returns to the previous question.
//
//	POST /api/onboarding/sessions/{sessionID}/back
func (h *Handlers) BackOnboarding(w http.ResponseWriter, r *http.Request) {
	id, ok := h.session(w, r)
	if !ok {
		return
	}
	turn, err := h.onboarding.Back(r.Context(), id)
	respondTurn(w, turn, err)
}

// SkipOnboarding skips the current optional question.
//
//	POST /api/onboarding/sessions/{sessionID}/skip
func (h *Handlers) SkipOnboarding(w http.ResponseWriter, r *http.Request) {
	id, ok := h.session(w, r)
	if !ok {
		return
	}
	turn, err := h.onboarding.Skip(r.Context(), id)
	respondTurn(w, turn, err)
}

// EditOnboarding jumps back to an answered question.
//
//	POST /api/onboarding/sessions/{sessionID}/edit
func (h *Handlers) EditOnboarding(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Step int `json:"step"`
	}
	if !httputil.Decode(w, r, &body) {
		return
	}
	id, ok := h.session(w, r)
	if !ok {
		return
	}
	turn, err := h.onboarding.EditStep(r.Context(), id, body.Step)
	respondTurn(w, turn, err)
}

// FinishOnboarding turns a confirmed session into a draft campaign with the
// default sequence for the chosen platforms.
//
//	POST /api/onboarding/sessions/{sessionID}/finish
func (h *Handlers) FinishOnboarding(w http.ResponseWriter, r *http.Request) {
	var body struct {
		AccountIDs []string `json:"account_ids"`
	}
	if !httputil.Decode(w, r, &body) {
		return
	}
	id, ok := h.session(w, r)
	if !ok {
		return
	}
	draft, err := h.onboarding.Finish(r.Context(), id)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	c, err := h.campaigns.CreateFromDraft(r.Context(), draft, body.AccountIDs)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	httputil.Created(w, map[string]interface{}{"campaign": c, "draft": draft})
}
