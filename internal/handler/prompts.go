package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"threadhub/internal/service"
)

// PromptHandler handles /v1/prompts routes.
type PromptHandler struct {
	svc *service.PromptService
}

func NewPromptHandler(svc *service.PromptService) *PromptHandler {
	return &PromptHandler{svc: svc}
}

// GET /v1/prompts?category=...&limit=50
func (h *PromptHandler) List(w http.ResponseWriter, r *http.Request) {
	prompts, err := h.svc.List(r.Context(), r.URL.Query().Get("category"), queryInt(r, "limit", 0))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"prompts": prompts, "count": len(prompts)})
}

// POST /v1/prompts
func (h *PromptHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in service.CreatePromptInput
	if err := decodeBody(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "E_BAD_REQUEST", "invalid body")
		return
	}
	p, err := h.svc.Create(r.Context(), in)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"prompt": p})
}

// GET /v1/prompts/{name}
func (h *PromptHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.Get(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"prompt": p})
}

// PUT /v1/prompts/{name}
func (h *PromptHandler) Update(w http.ResponseWriter, r *http.Request) {
	var in service.UpdatePromptInput
	if err := decodeBody(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "E_BAD_REQUEST", "invalid body")
		return
	}
	p, err := h.svc.Update(r.Context(), chi.URLParam(r, "name"), in)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"prompt": p})
}

// DELETE /v1/prompts/{name}
func (h *PromptHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), chi.URLParam(r, "name")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GET /v1/prompts/search?q=...&limit=20
func (h *PromptHandler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	prompts, err := h.svc.Search(r.Context(), q, queryInt(r, "limit", 0))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"query": q, "prompts": prompts, "count": len(prompts)})
}

// GET /v1/prompt-categories
func (h *PromptHandler) Categories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.svc.Categories(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"categories": categories, "count": len(categories)})
}

// POST /v1/prompts/{name}/render
func (h *PromptHandler) Render(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Variables map[string]string `json:"variables"`
	}
	if err := decodeBody(r, &body); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "E_BAD_REQUEST", "invalid body")
		return
	}
	out, err := h.svc.Render(r.Context(), chi.URLParam(r, "name"), body.Variables)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}
