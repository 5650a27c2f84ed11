package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"threadhub/internal/reconcile"
)

const toolRound = `[
  {"id":"h1","type":"human","content":"weather?"},
  {"id":"a1","type":"ai","content":"","tool_calls":[{"id":"c1","name":"get_weather","args":{"city":"Oslo"}}]},
  {"id":"t1","type":"tool","tool_call_id":"c1","content":"12C"},
  {"id":"t2","type":"tool","tool_call_id":"nope","content":"lost"}
]`

func runCmd(t *testing.T, stdin string, args ...string) string {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	if err := cmd.Execute(); err != nil {
		t.Fatalf("threadhub %v: %v", args, err)
	}
	return out.String()
}

func TestReconcileFromStdin(t *testing.T) {
	out := runCmd(t, toolRound, "reconcile", "-")

	var res reconcile.Result
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("decode output: %v\n%s", err, out)
	}
	if len(res.Turns) != 2 {
		t.Fatalf("turns = %d, want 2", len(res.Turns))
	}
	if got := res.Turns[1].ToolCalls[0].Status; got != reconcile.StatusCompleted {
		t.Fatalf("status = %s", got)
	}
	if len(res.Orphans) != 1 || res.Orphans[0] != "t2" {
		t.Fatalf("orphans = %v", res.Orphans)
	}
}

func TestReconcileTextTranscript(t *testing.T) {
	out := runCmd(t, toolRound, "reconcile", "--text", "-")
	if !strings.Contains(out, "[human] weather?") {
		t.Fatalf("missing human line:\n%s", out)
	}
	if !strings.Contains(out, "-> get_weather") || !strings.Contains(out, "(completed)") {
		t.Fatalf("missing tool call line:\n%s", out)
	}
}

func TestDiffBetweenSnapshots(t *testing.T) {
	dir := t.TempDir()
	before := filepath.Join(dir, "before.json")
	after := filepath.Join(dir, "after.json")
	if err := os.WriteFile(before, []byte(`[{"id":"h1","type":"human","content":"hi"}]`), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(after, []byte(`[{"id":"h1","type":"human","content":"hi"},{"id":"a1","type":"ai","content":"hello"}]`), 0o644); err != nil {
		t.Fatal(err)
	}

	out := runCmd(t, "", "diff", before, after)
	if !strings.Contains(out, "  [human] hi") {
		t.Fatalf("missing context line:\n%s", out)
	}
	if !strings.Contains(out, "+ [assistant] hello") {
		t.Fatalf("missing added line:\n%s", out)
	}
}

func TestMigrateInMemory(t *testing.T) {
	t.Setenv("THREADHUB_CONFIG", "")
	t.Setenv("THREADHUB_DB_DRIVER", "sqlite")
	t.Setenv("THREADHUB_DB_PATH", ":memory:")
	out := runCmd(t, "", "migrate")
	if !strings.Contains(out, "migrations applied") {
		t.Fatalf("output = %q", out)
	}
}
