package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"threadhub/internal/db"
	"threadhub/internal/model"
)

const defaultThreadListLimit = 50

type CreateThreadInput struct {
	Title       string `json:"title"`
	AssistantID string `json:"assistant_id"`
}

type UpdateThreadInput struct {
	Title *string `json:"title"`
}

type ThreadService struct {
	db  *db.DB
	hub *StreamHub
}

func NewThreadService(d *db.DB, hub *StreamHub) *ThreadService {
	return &ThreadService{db: d, hub: hub}
}

func (s *ThreadService) Create(ctx context.Context, in CreateThreadInput) (*model.Thread, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		title = "New Thread"
	}
	threadID := uuid.NewString()
	now := nowUTC()

	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO threads (thread_id, title, assistant_id, last_seq, created_at, updated_at)
		VALUES (?, ?, ?, 0, ?, ?)`),
		threadID, title, strings.TrimSpace(in.AssistantID), now, now)
	if err != nil {
		return nil, fmt.Errorf("insert thread: %w", err)
	}
	return s.Get(ctx, threadID)
}

func (s *ThreadService) List(ctx context.Context, limit int) ([]model.Thread, error) {
	if limit <= 0 {
		limit = defaultThreadListLimit
	}
	rows, err := s.db.QueryContext(ctx, s.db.Rebind(`
		SELECT thread_id, title, assistant_id, last_seq, created_at, updated_at
		FROM threads
		ORDER BY updated_at DESC
		LIMIT ?`), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Thread
	for rows.Next() {
		t, err := scanThread(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func (s *ThreadService) Get(ctx context.Context, threadID string) (*model.Thread, error) {
	row := s.db.QueryRowContext(ctx, s.db.Rebind(`
		SELECT thread_id, title, assistant_id, last_seq, created_at, updated_at
		FROM threads WHERE thread_id = ?`), threadID)
	t, err := scanThread(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &model.NotFoundError{Resource: "thread", ID: threadID}
	}
	return t, err
}

func (s *ThreadService) Update(ctx context.Context, threadID string, in UpdateThreadInput) (*model.Thread, error) {
	if in.Title != nil && strings.TrimSpace(*in.Title) == "" {
		return nil, &model.ValidationError{Field: "title", Message: "must not be empty"}
	}
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`
		UPDATE threads SET
			title      = COALESCE(?, title),
			updated_at = ?
		WHERE thread_id = ?`),
		in.Title, nowUTC(), threadID)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, &model.NotFoundError{Resource: "thread", ID: threadID}
	}
	return s.Get(ctx, threadID)
}

// Delete physically removes the thread and its messages.
func (s *ThreadService) Delete(ctx context.Context, threadID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, s.db.Rebind(`DELETE FROM messages WHERE thread_id = ?`), threadID); err != nil {
		return fmt.Errorf("delete messages: %w", err)
	}
	res, err := tx.ExecContext(ctx, s.db.Rebind(`DELETE FROM threads WHERE thread_id = ?`), threadID)
	if err != nil {
		return fmt.Errorf("delete thread: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &model.NotFoundError{Resource: "thread", ID: threadID}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	if s.hub != nil {
		s.hub.Forget(threadID)
	}
	return nil
}

// --- scan helpers ---

type rowScanner interface {
	Scan(dest ...any) error
}

func scanThread(row rowScanner) (*model.Thread, error) {
	var t model.Thread
	if err := row.Scan(&t.ThreadID, &t.Title, &t.AssistantID, &t.LastSeq, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	return &t, nil
}

// timestampLayout is fixed width so stored timestamps sort as text.
const timestampLayout = "2006-01-02T15:04:05.000000000Z"

func nowUTC() string {
	return time.Now().UTC().Format(timestampLayout)
}
