package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vista/provisioner/internal/api/request"
	"github.com/vista/provisioner/internal/api/response"
	"github.com/vista/provisioner/internal/core"
	"github.com/vista/provisioner/internal/store"
)

type Provision struct {
	svc *core.ProvisionService
}

func NewProvision(svc *core.ProvisionService) *Provision {
	return &Provision{svc: svc}
}

// Create accepts a provisioning submission. Duplicate submissions (same
// client_ref) answer with the existing request instead of creating a second
// tenant, so upstream intake forms can safely re-POST.
func (h *Provision) Create(w http.ResponseWriter, r *http.Request) {
	var req request.CreateProvision
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	pr, outcome, err := h.svc.Create(r.Context(), req)
	if err != nil {
		if errors.Is(err, core.ErrSubdomainTaken) {
			response.WriteError(w, http.StatusConflict, err.Error())
			return
		}
		response.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	// Completed duplicates answer 200 with the prior result; everything
	// still moving answers 202.
	status := http.StatusAccepted
	if outcome == core.OutcomeAlreadyCompleted {
		status = http.StatusOK
	}
	response.WriteJSON(w, status, map[string]any{
		"outcome": outcome,
		"request": pr,
	})
}

func (h *Provision) List(w http.ResponseWriter, r *http.Request) {
	params := request.ParseListParams(r, "created_at")

	requests, hasMore, err := h.svc.List(r.Context(), params)
	if err != nil {
		response.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	var nextCursor string
	if hasMore && len(requests) > 0 {
		nextCursor = requests[len(requests)-1].ID
	}
	response.WritePaginated(w, http.StatusOK, requests, nextCursor, hasMore)
}

func (h *Provision) Get(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	pr, err := h.svc.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			response.WriteError(w, http.StatusNotFound, err.Error())
			return
		}
		response.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	response.WriteJSON(w, http.StatusOK, pr)
}

// Retry clears the failure markers on a failed request and re-enqueues it.
func (h *Provision) Retry(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	pr, err := h.svc.Retry(r.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			response.WriteError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, core.ErrNotRetryable):
			response.WriteError(w, http.StatusConflict, err.Error())
		default:
			response.WriteError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	response.WriteJSON(w, http.StatusAccepted, pr)
}
