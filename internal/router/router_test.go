package router

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"threadhub/internal/config"
	"threadhub/internal/db"
	"threadhub/internal/model"
	"threadhub/internal/reconcile"
)

const testSecret = "internal-secret"

func TestRoutesRegistered(t *testing.T) {
	cfg := &config.Config{InternalSecret: testSecret}

	handler := New(cfg, nil, Options{})
	routes, ok := handler.(chi.Routes)
	if !ok {
		t.Fatalf("router does not implement chi.Routes")
	}

	registered := map[string]bool{}
	if err := chi.Walk(routes, func(method string, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		registered[fmt.Sprintf("%s %s", method, route)] = true
		return nil
	}); err != nil {
		t.Fatalf("walk routes: %v", err)
	}

	for _, route := range []string{
		"GET /v1/health",
		"GET /v1/version",
		"GET /v1/threads",
		"POST /v1/threads",
		"GET /v1/threads/{thread_id}",
		"PATCH /v1/threads/{thread_id}",
		"DELETE /v1/threads/{thread_id}",
		"GET /v1/threads/{thread_id}/messages",
		"POST /v1/threads/{thread_id}/messages",
		"GET /v1/threads/{thread_id}/turns",
		"GET /v1/threads/{thread_id}/turns/ws",
		"GET /v1/threads/{thread_id}/events",
		"POST /v1/threads/{thread_id}/archive",
		"GET /v1/prompts",
		"POST /v1/prompts",
		"GET /v1/prompts/search",
		"GET /v1/prompts/{name}",
		"PUT /v1/prompts/{name}",
		"DELETE /v1/prompts/{name}",
		"POST /v1/prompts/{name}/render",
		"GET /v1/prompt-categories",
		"POST /internal/threads/{thread_id}/messages",
	} {
		if !registered[route] {
			t.Fatalf("missing route %s", route)
		}
	}
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	d, err := db.OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.Migrate(d); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	srv := httptest.NewServer(New(&config.Config{InternalSecret: testSecret}, d, Options{}))
	t.Cleanup(func() {
		srv.Close()
		_ = d.Close()
	})
	return srv
}

func doJSON(t *testing.T, method, url string, body any, header map[string]string) (*http.Response, []byte) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	var out bytes.Buffer
	_, _ = out.ReadFrom(resp.Body)
	return resp, out.Bytes()
}

func createThread(t *testing.T, base string) string {
	t.Helper()
	resp, body := doJSON(t, http.MethodPost, base+"/v1/threads", map[string]string{"title": "demo"}, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create thread status = %d body=%s", resp.StatusCode, body)
	}
	var out struct {
		Thread model.Thread `json:"thread"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("decode thread: %v", err)
	}
	return out.Thread.ThreadID
}

func ingest(t *testing.T, base, threadID string, msgs ...string) {
	t.Helper()
	raws := make([]json.RawMessage, len(msgs))
	for i, m := range msgs {
		raws[i] = json.RawMessage(m)
	}
	resp, body := doJSON(t, http.MethodPost, base+"/internal/threads/"+threadID+"/messages",
		map[string]any{"messages": raws}, map[string]string{"X-Internal-Secret": testSecret})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("ingest status = %d body=%s", resp.StatusCode, body)
	}
}

func TestTurnsEndToEnd(t *testing.T) {
	srv := newTestServer(t)
	threadID := createThread(t, srv.URL)

	ingest(t, srv.URL, threadID,
		`{"id":"h1","type":"human","content":"weather?"}`,
		`{"id":"a1","type":"ai","content":"","tool_calls":[{"id":"c1","name":"get_weather","args":{"city":"Oslo"}}]}`,
		`{"id":"t1","type":"tool","tool_call_id":"c1","content":"12C"}`,
		`{"id":"a2","type":"ai","content":"It is 12C."}`,
	)

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/v1/threads/"+threadID+"/turns", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("turns status = %d body=%s", resp.StatusCode, body)
	}
	var view model.ThreadTurns
	if err := json.Unmarshal(body, &view); err != nil {
		t.Fatalf("decode turns: %v", err)
	}
	if view.LastSeq != 4 {
		t.Fatalf("last_seq = %d, want 4", view.LastSeq)
	}
	if len(view.Turns) != 3 {
		t.Fatalf("turns = %d, want 3", len(view.Turns))
	}
	calls := view.Turns[1].ToolCalls
	if len(calls) != 1 || calls[0].Status != reconcile.StatusCompleted || calls[0].Result != "12C" {
		t.Fatalf("tool call = %+v", calls)
	}
	if !view.Turns[1].ShowAvatar || view.Turns[2].ShowAvatar {
		t.Fatalf("avatar hints = %v %v", view.Turns[1].ShowAvatar, view.Turns[2].ShowAvatar)
	}
}

func TestInternalIngestRequiresSecret(t *testing.T) {
	srv := newTestServer(t)
	threadID := createThread(t, srv.URL)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/internal/threads/"+threadID+"/messages",
		map[string]any{"messages": []json.RawMessage{json.RawMessage(`{"id":"h1","type":"human","content":"x"}`)}},
		map[string]string{"X-Internal-Secret": "wrong"})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
	if !strings.Contains(string(body), "E_UNAUTHORIZED") {
		t.Fatalf("body = %s", body)
	}
}

func TestErrorEnvelope(t *testing.T) {
	srv := newTestServer(t)

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/v1/threads/missing/turns", nil, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
	var env struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &env); err != nil || env.Error.Code != "E_NOT_FOUND" {
		t.Fatalf("body = %s", body)
	}

	threadID := createThread(t, srv.URL)
	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/v1/threads/"+threadID+"/messages",
		map[string]any{"messages": []json.RawMessage{json.RawMessage(`{"type":"human","content":"no id"}`)}}, nil)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", resp.StatusCode)
	}

	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/v1/threads/"+threadID+"/archive", nil, nil)
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("archive status = %d, want 503", resp.StatusCode)
	}
}

func TestPromptRoutes(t *testing.T) {
	srv := newTestServer(t)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/v1/prompts", map[string]any{
		"name":     "greet",
		"content":  "Hello {name}",
		"category": "demo",
	}, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d body=%s", resp.StatusCode, body)
	}

	resp, body = doJSON(t, http.MethodPost, srv.URL+"/v1/prompts/greet/render",
		map[string]any{"variables": map[string]string{"name": "Ada"}}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("render status = %d body=%s", resp.StatusCode, body)
	}
	var rendered model.RenderedPrompt
	if err := json.Unmarshal(body, &rendered); err != nil {
		t.Fatalf("decode render: %v", err)
	}
	if rendered.Content != "Hello Ada" {
		t.Fatalf("content = %q", rendered.Content)
	}

	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/v1/prompts", map[string]any{"name": "greet", "content": "x"}, nil)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate status = %d, want 409", resp.StatusCode)
	}
}

func TestEventsStreamReplaysThenFollows(t *testing.T) {
	srv := newTestServer(t)
	threadID := createThread(t, srv.URL)
	ingest(t, srv.URL, threadID, `{"id":"h1","type":"human","content":"hi"}`)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/v1/threads/"+threadID+"/events?since_seq=0", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content-type = %q", ct)
	}

	lines := bufio.NewScanner(resp.Body)
	waitFor := func(want string) {
		t.Helper()
		for lines.Scan() {
			if lines.Text() == want {
				return
			}
		}
		t.Fatalf("stream ended before %q: %v", want, lines.Err())
	}

	waitFor("id: 1")
	ingest(t, srv.URL, threadID, `{"id":"a1","type":"ai","content":"hello"}`)
	waitFor("id: 2")
}

func TestTurnsWebSocketPushesUpdates(t *testing.T) {
	srv := newTestServer(t)
	threadID := createThread(t, srv.URL)
	ingest(t, srv.URL, threadID, `{"id":"h1","type":"human","content":"hi"}`)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/threads/" + threadID + "/turns/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var view model.ThreadTurns
	if err := conn.ReadJSON(&view); err != nil {
		t.Fatalf("read initial view: %v", err)
	}
	if view.LastSeq != 1 || len(view.Turns) != 1 {
		t.Fatalf("initial view = %+v", view)
	}

	ingest(t, srv.URL, threadID,
		`{"id":"a1","type":"ai","content":"","tool_calls":[{"id":"c1","name":"search","args":{}}]}`,
		`{"id":"t1","type":"tool","tool_call_id":"c1","content":"done"}`,
	)

	// Bursts may be coalesced, so read until the final sequence shows up.
	for view.LastSeq < 3 {
		if err := conn.ReadJSON(&view); err != nil {
			t.Fatalf("read update: %v", err)
		}
	}
	if len(view.Turns) != 2 || view.Turns[1].ToolCalls[0].Status != reconcile.StatusCompleted {
		t.Fatalf("final view = %+v", view)
	}
}
