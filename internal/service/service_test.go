package service

import (
	"context"
	"encoding/json"
	"testing"

	"threadhub/internal/db"
	"threadhub/internal/logging"
	"threadhub/internal/model"
)

func setupTestDB(t *testing.T) *db.DB {
	t.Helper()
	d, err := db.OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.Migrate(d); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	return d
}

type testServices struct {
	hub      *StreamHub
	threads  *ThreadService
	messages *MessageService
}

func newTestServices(t *testing.T) *testServices {
	t.Helper()
	d := setupTestDB(t)
	hub := NewStreamHub()
	return &testServices{
		hub:      hub,
		threads:  NewThreadService(d, hub),
		messages: NewMessageService(d, hub, logging.Nop()),
	}
}

func (s *testServices) newThread(t *testing.T) string {
	t.Helper()
	th, err := s.threads.Create(context.Background(), CreateThreadInput{Title: "t", AssistantID: "agent"})
	if err != nil {
		t.Fatalf("create thread: %v", err)
	}
	return th.ThreadID
}

func raws(msgs ...string) []json.RawMessage {
	out := make([]json.RawMessage, len(msgs))
	for i, m := range msgs {
		out[i] = json.RawMessage(m)
	}
	return out
}

func mustAppend(t *testing.T, svc *MessageService, threadID string, msgs ...string) *AppendResult {
	t.Helper()
	res, err := svc.Append(context.Background(), threadID, raws(msgs...))
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	return res
}

func assertNotFound(t *testing.T, err error) {
	t.Helper()
	if _, ok := err.(*model.NotFoundError); !ok {
		t.Fatalf("err = %v (%T), want NotFoundError", err, err)
	}
}

func assertValidation(t *testing.T, err error) {
	t.Helper()
	if _, ok := err.(*model.ValidationError); !ok {
		t.Fatalf("err = %v (%T), want ValidationError", err, err)
	}
}
