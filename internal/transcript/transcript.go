// Package transcript renders reconciled turns as plain text and diffs two
// renderings line by line.
package transcript

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/sergi/go-diff/diffmatchpatch"

	"threadhub/internal/reconcile"
)

const maxArgumentWidth = 120

// Render writes one block per turn:
//
//	[human] hi
//	[assistant] let me check
//	  -> search {"q":"x"} (completed)
//	     result-x
func Render(turns []reconcile.RenderTurn) string {
	var b strings.Builder
	for _, t := range turns {
		fmt.Fprintf(&b, "[%s] %s\n", t.Role, oneLine(t.Message.Text()))
		for _, call := range t.ToolCalls {
			fmt.Fprintf(&b, "  -> %s %s (%s)\n", call.Name, compactArgs(call.Arguments), call.Status)
			if call.Result == "" {
				continue
			}
			for _, line := range strings.Split(strings.TrimRight(call.Result, "\n"), "\n") {
				fmt.Fprintf(&b, "     %s\n", line)
			}
		}
	}
	return b.String()
}

// Diff returns a line diff of before and after. Unchanged lines are prefixed
// with two spaces, removed lines with "- " and added lines with "+ ". An
// empty string means the two are identical.
func Diff(before, after string) string {
	if before == after {
		return ""
	}
	dmp := diffmatchpatch.New()
	a, b, lines := dmp.DiffLinesToChars(before, after)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lines)

	var out strings.Builder
	for _, d := range diffs {
		prefix := "  "
		switch d.Type {
		case diffmatchpatch.DiffDelete:
			prefix = "- "
		case diffmatchpatch.DiffInsert:
			prefix = "+ "
		}
		for _, line := range strings.SplitAfter(d.Text, "\n") {
			if line == "" {
				continue
			}
			out.WriteString(prefix)
			out.WriteString(line)
			if !strings.HasSuffix(line, "\n") {
				out.WriteByte('\n')
			}
		}
	}
	return out.String()
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func compactArgs(raw json.RawMessage) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		buf.Reset()
		buf.Write(raw)
	}
	s := buf.String()
	if len(s) > maxArgumentWidth {
		s = truncate(s, maxArgumentWidth) + "..."
	}
	return s
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
