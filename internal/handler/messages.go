package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"threadhub/internal/service"
)

// MessageHandler serves a thread's raw message stream. The same append
// handler is mounted publicly for the chat surface and on the internal
// route the agent server streams into.
type MessageHandler struct {
	svc *service.MessageService
}

func NewMessageHandler(svc *service.MessageService) *MessageHandler {
	return &MessageHandler{svc: svc}
}

type appendMessagesRequest struct {
	Messages []json.RawMessage `json:"messages"`
}

// GET /v1/threads/{thread_id}/messages?since_seq=0
func (h *MessageHandler) List(w http.ResponseWriter, r *http.Request) {
	threadID := chi.URLParam(r, "thread_id")
	msgs, err := h.svc.List(r.Context(), threadID, queryInt64(r, "since_seq", 0))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"thread_id": threadID, "messages": msgs})
}

// POST /v1/threads/{thread_id}/messages
// POST /internal/threads/{thread_id}/messages
func (h *MessageHandler) Append(w http.ResponseWriter, r *http.Request) {
	var req appendMessagesRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "E_BAD_REQUEST", "invalid body")
		return
	}
	res, err := h.svc.Append(r.Context(), chi.URLParam(r, "thread_id"), req.Messages)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
