package reconcile

import (
	"bytes"
	"encoding/json"
	"strconv"

	"github.com/google/uuid"
)

type ToolCallStatus string

const (
	StatusPending   ToolCallStatus = "pending"
	StatusCompleted ToolCallStatus = "completed"
)

// ToolCall is a tool invocation normalized from any of the source shapes.
// Arguments are passed through as received and never validated.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
	Status    ToolCallStatus  `json:"status"`
	Result    string          `json:"result,omitempty"`
}

// rawToolCall is the union of the fields used by the three source shapes.
type rawToolCall struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Type     string          `json:"type"`
	Args     json.RawMessage `json:"args"`
	Input    json.RawMessage `json:"input"`
	Function *struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	} `json:"function"`
}

// extractor returns ok=false when its shape is absent from the message.
type extractor func(m Message) (calls []rawToolCall, ok bool)

// Priority order matters: the first applicable shape wins and shapes are
// never merged.
var extractors = []extractor{
	nestedFunctionCalls,
	flatToolCalls,
	contentToolUse,
}

var toolCallNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("threadhub:tool-call"))

// ExtractToolCalls returns the normalized tool calls of an assistant message,
// all in pending state.
func ExtractToolCalls(m Message) []ToolCall {
	for _, extract := range extractors {
		raw, ok := extract(m)
		if !ok {
			continue
		}
		out := make([]ToolCall, 0, len(raw))
		for i, rc := range raw {
			out = append(out, normalize(m.ID, i, rc))
		}
		return out
	}
	return []ToolCall{}
}

// nestedFunctionCalls reads additional_kwargs.tool_calls[].function.
func nestedFunctionCalls(m Message) ([]rawToolCall, bool) {
	if m.AdditionalKwargs == nil {
		return nil, false
	}
	return decodeList(m.AdditionalKwargs.ToolCalls)
}

// flatToolCalls reads tool_calls[] and drops entries without a name.
func flatToolCalls(m Message) ([]rawToolCall, bool) {
	calls, ok := decodeList(m.ToolCalls)
	if !ok {
		return nil, false
	}
	named := calls[:0]
	for _, c := range calls {
		if c.Name != "" {
			named = append(named, c)
		}
	}
	return named, true
}

// contentToolUse reads content blocks typed "tool_use".
func contentToolUse(m Message) ([]rawToolCall, bool) {
	blocks, ok := decodeList(m.Content)
	if !ok {
		return nil, false
	}
	var uses []rawToolCall
	for _, b := range blocks {
		if b.Type == "tool_use" {
			uses = append(uses, b)
		}
	}
	return uses, true
}

// decodeList accepts any JSON array. Elements that are not objects are
// skipped rather than failing the whole list.
func decodeList(raw json.RawMessage) ([]rawToolCall, bool) {
	if isEmptyJSON(raw) {
		return nil, false
	}
	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		return nil, false
	}
	out := make([]rawToolCall, 0, len(elems))
	for _, elem := range elems {
		if bytes.Equal(bytes.TrimSpace(elem), []byte("null")) {
			continue
		}
		var rc rawToolCall
		if err := json.Unmarshal(elem, &rc); err != nil {
			continue
		}
		out = append(out, rc)
	}
	return out, true
}

func normalize(messageID string, index int, rc rawToolCall) ToolCall {
	tc := ToolCall{
		ID:        rc.ID,
		Name:      "unknown",
		Arguments: json.RawMessage(`{}`),
		Status:    StatusPending,
	}
	if tc.ID == "" {
		tc.ID = syntheticID(messageID, index)
	}

	switch {
	case rc.Name != "":
		tc.Name = rc.Name
	case rc.Function != nil && rc.Function.Name != "":
		tc.Name = rc.Function.Name
	case rc.Type != "":
		tc.Name = rc.Type
	}

	// Structured arguments win over the nested shape's encoded string.
	var fnArgs json.RawMessage
	if rc.Function != nil {
		fnArgs = rc.Function.Arguments
	}
	for _, candidate := range []json.RawMessage{rc.Args, rc.Input, fnArgs} {
		if !isEmptyJSON(candidate) {
			tc.Arguments = candidate
			break
		}
	}
	return tc
}

// syntheticID is derived from the message id and the call's position so that
// reconciling the same input twice yields the same ids.
func syntheticID(messageID string, index int) string {
	return "call_" + uuid.NewSHA1(toolCallNamespace, []byte(messageID+"/"+strconv.Itoa(index))).String()
}
