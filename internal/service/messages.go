package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"threadhub/internal/db"
	"threadhub/internal/middleware"
	"threadhub/internal/model"
	"threadhub/internal/reconcile"
)

// AppendResult reports what an Append call stored. Skipped counts messages
// whose id was already stored for the thread.
type AppendResult struct {
	Appended []model.StoredMessage `json:"appended"`
	Skipped  int                   `json:"skipped"`
	LastSeq  int64                 `json:"last_seq"`
}

type MessageService struct {
	db     *db.DB
	hub    *StreamHub
	logger *slog.Logger
}

func NewMessageService(d *db.DB, hub *StreamHub, logger *slog.Logger) *MessageService {
	return &MessageService{db: d, hub: hub, logger: logger}
}

// Append stores messages at the end of the thread's sequence. Messages
// whose id is already stored are skipped, so replaying a batch after a
// reconnect is harmless. Every newly stored message is published to the
// stream hub after commit.
func (s *MessageService) Append(ctx context.Context, threadID string, raws []json.RawMessage) (*AppendResult, error) {
	if len(raws) == 0 {
		return nil, &model.ValidationError{Field: "messages", Message: "at least one message is required"}
	}
	decoded := make([]reconcile.Message, len(raws))
	for i, raw := range raws {
		if err := json.Unmarshal(raw, &decoded[i]); err != nil {
			return nil, &model.ValidationError{Field: fmt.Sprintf("messages[%d]", i), Message: "invalid message json"}
		}
		if strings.TrimSpace(decoded[i].ID) == "" {
			return nil, &model.ValidationError{Field: fmt.Sprintf("messages[%d].id", i), Message: "is required"}
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	// The no-op UPDATE takes the thread's row lock before seq is read, so
	// concurrent appends to one thread queue up instead of both claiming
	// last_seq+1. SQLite already serializes writers.
	var lastSeq int64
	err = tx.QueryRowContext(ctx, s.db.Rebind(`
		UPDATE threads SET last_seq = last_seq WHERE thread_id = ?
		RETURNING last_seq`), threadID).Scan(&lastSeq)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &model.NotFoundError{Resource: "thread", ID: threadID}
	}
	if err != nil {
		return nil, fmt.Errorf("load thread: %w", err)
	}

	now := nowUTC()
	result := &AppendResult{Appended: []model.StoredMessage{}}
	for i, msg := range decoded {
		stored := model.StoredMessage{
			ThreadID:  threadID,
			Seq:       lastSeq + 1,
			MessageID: msg.ID,
			Role:      roleLabel(msg),
			Payload:   raws[i],
			CreatedAt: now,
		}
		res, err := tx.ExecContext(ctx, s.db.Rebind(`
			INSERT INTO messages (thread_id, seq, message_id, role, payload_json, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT (thread_id, message_id) DO NOTHING`),
			stored.ThreadID, stored.Seq, stored.MessageID, stored.Role, string(stored.Payload), stored.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("insert message %s: %w", msg.ID, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			result.Skipped++
			continue
		}
		lastSeq = stored.Seq
		result.Appended = append(result.Appended, stored)
	}

	if len(result.Appended) > 0 {
		if _, err := tx.ExecContext(ctx, s.db.Rebind(`
			UPDATE threads SET last_seq = ?, updated_at = ? WHERE thread_id = ?`),
			lastSeq, now, threadID); err != nil {
			return nil, fmt.Errorf("update thread seq: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	result.LastSeq = lastSeq

	traceID := middleware.TraceIDFromCtx(ctx)
	for _, m := range result.Appended {
		s.hub.Publish(&model.MessageEvent{
			ThreadID: threadID,
			TraceID:  traceID,
			Seq:      m.Seq,
			Ts:       m.CreatedAt,
			Message:  m.Payload,
		})
	}
	s.logger.Debug("messages appended",
		"thread_id", threadID,
		"appended", len(result.Appended),
		"skipped", result.Skipped,
		"last_seq", lastSeq,
		"trace_id", traceID)
	return result, nil
}

// List returns the thread's stored messages with seq > sinceSeq in order.
func (s *MessageService) List(ctx context.Context, threadID string, sinceSeq int64) ([]model.StoredMessage, error) {
	if err := s.ensureThread(ctx, threadID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, s.db.Rebind(`
		SELECT thread_id, seq, message_id, role, payload_json, created_at
		FROM messages
		WHERE thread_id = ? AND seq > ?
		ORDER BY seq`), threadID, sinceSeq)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.StoredMessage{}
	for rows.Next() {
		var m model.StoredMessage
		var payload string
		if err := rows.Scan(&m.ThreadID, &m.Seq, &m.MessageID, &m.Role, &payload, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.Payload = json.RawMessage(payload)
		out = append(out, m)
	}
	return out, rows.Err()
}

// Snapshot returns the thread's full message sequence decoded for
// reconciliation, together with the seq of its last message.
func (s *MessageService) Snapshot(ctx context.Context, threadID string) ([]reconcile.Message, int64, error) {
	stored, err := s.List(ctx, threadID, 0)
	if err != nil {
		return nil, 0, err
	}
	msgs := make([]reconcile.Message, 0, len(stored))
	var lastSeq int64
	for _, m := range stored {
		lastSeq = m.Seq
		msg, err := m.Decode()
		if err != nil {
			s.logger.Warn("skipping undecodable stored message",
				"thread_id", threadID, "seq", m.Seq, "error", err)
			continue
		}
		msgs = append(msgs, msg)
	}
	return msgs, lastSeq, nil
}

// LastSeq returns the seq of the thread's last stored message.
func (s *MessageService) LastSeq(ctx context.Context, threadID string) (int64, error) {
	var lastSeq int64
	err := s.db.QueryRowContext(ctx, s.db.Rebind(`SELECT last_seq FROM threads WHERE thread_id = ?`), threadID).Scan(&lastSeq)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, &model.NotFoundError{Resource: "thread", ID: threadID}
	}
	return lastSeq, err
}

func (s *MessageService) ensureThread(ctx context.Context, threadID string) error {
	_, err := s.LastSeq(ctx, threadID)
	return err
}

func roleLabel(m reconcile.Message) string {
	if role, ok := m.ResolvedRole(); ok {
		return string(role)
	}
	if label := strings.TrimSpace(m.Role); label != "" {
		return label
	}
	if label := strings.TrimSpace(m.Type); label != "" {
		return label
	}
	return "unknown"
}
