package handler

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"threadhub/internal/model"
	"threadhub/internal/service"
)

const (
	keepaliveInterval = 15 * time.Second
	wsWriteTimeout    = 10 * time.Second
	wsPongTimeout     = 60 * time.Second
)

// TurnHandler serves the reconciled view of a thread, on demand and live.
type TurnHandler struct {
	turns    *service.TurnService
	messages *service.MessageService
	hub      *service.StreamHub
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

func NewTurnHandler(turns *service.TurnService, messages *service.MessageService, hub *service.StreamHub, logger *slog.Logger) *TurnHandler {
	return &TurnHandler{
		turns:    turns,
		messages: messages,
		hub:      hub,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// GET /v1/threads/{thread_id}/turns
func (h *TurnHandler) Get(w http.ResponseWriter, r *http.Request) {
	view, err := h.turns.Turns(r.Context(), chi.URLParam(r, "thread_id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// GET /v1/threads/{thread_id}/events?since_seq=0
// SSE stream of the thread's raw message events: stored messages after
// since_seq are replayed first, then live ones follow. Browsers send
// Last-Event-ID on reconnect, which takes precedence over since_seq.
func (h *TurnHandler) StreamEvents(w http.ResponseWriter, r *http.Request) {
	threadID := chi.URLParam(r, "thread_id")
	sinceSeq := queryInt64(r, "since_seq", 0)
	if lastEventID := r.Header.Get("Last-Event-ID"); lastEventID != "" {
		if v, err := strconv.ParseInt(lastEventID, 10, 64); err == nil {
			sinceSeq = v
		}
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "E_INTERNAL", "streaming not supported")
		return
	}

	// Subscribe before reading the backlog so nothing appended in between is lost.
	ctx := r.Context()
	ch, cancel := h.hub.Subscribe(ctx, threadID, sinceSeq)
	defer cancel()

	backlog, err := h.messages.List(ctx, threadID, sinceSeq)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	sent := sinceSeq
	for _, m := range backlog {
		writeSSE(w, &model.MessageEvent{ThreadID: threadID, Seq: m.Seq, Ts: m.CreatedAt, Message: m.Payload})
		sent = m.Seq
	}
	flusher.Flush()

	ticker := time.NewTicker(keepaliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			fmt.Fprintf(w, ":keepalive\n\n")
			flusher.Flush()

		case event, open := <-ch:
			if !open {
				// Ending the response makes the browser reconnect with
				// Last-Event-ID, which replays anything missed from the DB.
				return
			}
			if event.Seq <= sent {
				continue
			}
			writeSSE(w, event)
			sent = event.Seq
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, event *model.MessageEvent) {
	fmt.Fprintf(w, "id: %d\n", event.Seq)
	fmt.Fprintf(w, "event: message\n")
	if event.TraceID != "" {
		fmt.Fprintf(w, ": trace=%s\n", event.TraceID)
	}
	fmt.Fprintf(w, "data: %s\n\n", compactJSON(event.Message))
}

// GET /v1/threads/{thread_id}/turns/ws
// Pushes the full reconciled view on connect and after every change. Bursts
// of messages are coalesced: only the newest snapshot is sent.
func (h *TurnHandler) StreamTurns(w http.ResponseWriter, r *http.Request) {
	threadID := chi.URLParam(r, "thread_id")
	ctx := r.Context()

	view, err := h.turns.Turns(ctx, threadID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		h.logger.Warn("websocket upgrade failed", "thread_id", threadID, "error", err)
		return
	}
	defer conn.Close()

	ch, cancel := h.hub.Subscribe(ctx, threadID, view.LastSeq)
	defer cancel()

	closed := make(chan struct{})
	go readUntilClose(conn, closed)

	if err := writeWSJSON(conn, view); err != nil {
		return
	}
	sent := view.LastSeq

	ping := time.NewTicker(keepaliveInterval)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-closed:
			return
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout)); err != nil {
				return
			}
		case event, open := <-ch:
			if !open {
				// Dropped for falling behind; the client reconnects for a fresh view.
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "stream lagged"),
					time.Now().Add(wsWriteTimeout))
				return
			}
			if event.Seq <= sent || !drain(ch) {
				continue
			}
			view, err := h.turns.Turns(ctx, threadID)
			if err != nil {
				h.logger.Warn("recompute turns failed", "thread_id", threadID, "error", err)
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "recompute failed"),
					time.Now().Add(wsWriteTimeout))
				return
			}
			if view.LastSeq <= sent {
				continue
			}
			if err := writeWSJSON(conn, view); err != nil {
				return
			}
			sent = view.LastSeq
		}
	}
}

// drain discards queued events; the next recompute covers them. It reports
// false if the channel was closed.
func drain(ch <-chan *model.MessageEvent) bool {
	for {
		select {
		case _, open := <-ch:
			if !open {
				return false
			}
		default:
			return true
		}
	}
}

func readUntilClose(conn *websocket.Conn, closed chan<- struct{}) {
	defer close(closed)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
	})
	for {
		if _, _, err := conn.NextReader(); err != nil {
			return
		}
	}
}

func writeWSJSON(conn *websocket.Conn, v any) error {
	if err := conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout)); err != nil {
		return err
	}
	return conn.WriteJSON(v)
}
