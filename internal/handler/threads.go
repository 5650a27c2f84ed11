package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"threadhub/internal/model"
	"threadhub/internal/service"
)

// ThreadHandler handles /v1/threads routes.
type ThreadHandler struct {
	svc   *service.ThreadService
	turns *service.TurnService
}

func NewThreadHandler(svc *service.ThreadService, turns *service.TurnService) *ThreadHandler {
	return &ThreadHandler{svc: svc, turns: turns}
}

// GET /v1/threads?limit=50
func (h *ThreadHandler) List(w http.ResponseWriter, r *http.Request) {
	threads, err := h.svc.List(r.Context(), queryInt(r, "limit", 0))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if threads == nil {
		threads = []model.Thread{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"threads": threads})
}

// POST /v1/threads
func (h *ThreadHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in service.CreateThreadInput
	if err := decodeBody(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "E_BAD_REQUEST", "invalid body")
		return
	}
	thread, err := h.svc.Create(r.Context(), in)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"thread": thread})
}

// GET /v1/threads/{thread_id}
func (h *ThreadHandler) Get(w http.ResponseWriter, r *http.Request) {
	thread, err := h.svc.Get(r.Context(), chi.URLParam(r, "thread_id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"thread": thread})
}

// PATCH /v1/threads/{thread_id}
func (h *ThreadHandler) Update(w http.ResponseWriter, r *http.Request) {
	var in service.UpdateThreadInput
	if err := decodeBody(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "E_BAD_REQUEST", "invalid body")
		return
	}
	thread, err := h.svc.Update(r.Context(), chi.URLParam(r, "thread_id"), in)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"thread": thread})
}

// DELETE /v1/threads/{thread_id} (physical delete)
func (h *ThreadHandler) Delete(w http.ResponseWriter, r *http.Request) {
	threadID := chi.URLParam(r, "thread_id")
	if err := h.svc.Delete(r.Context(), threadID); err != nil {
		writeServiceError(w, err)
		return
	}
	h.turns.Invalidate(r.Context(), threadID)
	w.WriteHeader(http.StatusNoContent)
}
