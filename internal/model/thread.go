package model

import (
	"encoding/json"

	"threadhub/internal/reconcile"
)

// Thread is the API-facing conversation thread shape.
type Thread struct {
	ThreadID    string `json:"thread_id"`
	Title       string `json:"title"`
	AssistantID string `json:"assistant_id"`
	LastSeq     int64  `json:"last_seq"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

// StoredMessage is one persisted record of a thread's message stream.
// Payload holds the message exactly as received.
type StoredMessage struct {
	ThreadID  string          `json:"thread_id"`
	Seq       int64           `json:"seq"`
	MessageID string          `json:"message_id"`
	Role      string          `json:"role"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt string          `json:"created_at"`
}

// Decode parses the stored payload into a reconcile.Message.
func (m StoredMessage) Decode() (reconcile.Message, error) {
	var msg reconcile.Message
	if err := json.Unmarshal(m.Payload, &msg); err != nil {
		return reconcile.Message{}, err
	}
	return msg, nil
}

// MessageEvent is a single message fanned out to live subscribers.
type MessageEvent struct {
	ThreadID string          `json:"thread_id"`
	TraceID  string          `json:"trace_id,omitempty"`
	Seq      int64           `json:"seq"`
	Ts       string          `json:"ts"`
	Message  json.RawMessage `json:"message"`
}

// ThreadTurns is the reconciled view of a thread at LastSeq.
type ThreadTurns struct {
	ThreadID string                 `json:"thread_id"`
	LastSeq  int64                  `json:"last_seq"`
	Turns    []reconcile.RenderTurn `json:"turns"`
	Orphans  []string               `json:"orphans,omitempty"`
}
