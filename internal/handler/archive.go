package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"threadhub/internal/service"
)

type ArchiveHandler struct {
	svc *service.ArchiveService
}

func NewArchiveHandler(svc *service.ArchiveService) *ArchiveHandler {
	return &ArchiveHandler{svc: svc}
}

// POST /v1/threads/{thread_id}/archive
func (h *ArchiveHandler) Archive(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.Archive(r.Context(), chi.URLParam(r, "thread_id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"archive": res})
}
