package reconcile

import (
	"bytes"
	"encoding/json"
	"strings"
)

type Role string

const (
	RoleHuman      Role = "human"
	RoleAssistant  Role = "assistant"
	RoleToolResult Role = "tool-result"
)

// Message is one record of a thread's message stream as delivered by the
// agent server. Tool invocations may arrive under any of three shapes; see
// ExtractToolCalls.
type Message struct {
	ID               string            `json:"id"`
	Role             string            `json:"role,omitempty"`
	Type             string            `json:"type,omitempty"`
	Name             string            `json:"name,omitempty"`
	Content          json.RawMessage   `json:"content,omitempty"`
	ToolCalls        json.RawMessage   `json:"tool_calls,omitempty"`
	AdditionalKwargs *AdditionalKwargs `json:"additional_kwargs,omitempty"`
	ToolCallID       string            `json:"tool_call_id,omitempty"`

	// Raw is the message exactly as received, including fields this package
	// does not read (response_metadata, usage_metadata, ...). When set it is
	// what the message encodes to.
	Raw json.RawMessage `json:"-"`
}

// messageFields has Message's fields without its JSON methods.
type messageFields Message

func (m *Message) UnmarshalJSON(data []byte) error {
	var f messageFields
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*m = Message(f)
	m.Raw = append(json.RawMessage(nil), bytes.TrimSpace(data)...)
	return nil
}

func (m Message) MarshalJSON() ([]byte, error) {
	if len(m.Raw) > 0 {
		return m.Raw, nil
	}
	return json.Marshal(messageFields(m))
}

// AdditionalKwargs carries provider-specific fields. Only the nested
// function-call list is read.
type AdditionalKwargs struct {
	ToolCalls json.RawMessage `json:"tool_calls,omitempty"`
}

// ResolvedRole maps the message's role label onto one of the three known
// roles. The agent server labels roles in "type" as human/ai/tool; "role"
// takes precedence when both are set.
func (m Message) ResolvedRole() (Role, bool) {
	label := m.Role
	if strings.TrimSpace(label) == "" {
		label = m.Type
	}
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "human", "user":
		return RoleHuman, true
	case "assistant", "ai":
		return RoleAssistant, true
	case "tool-result", "tool":
		return RoleToolResult, true
	}
	return "", false
}

// Text returns the message content as display text.
func (m Message) Text() string {
	return ContentText(m.Content)
}

// ContentText flattens a content payload into text. Strings are returned
// as-is, block arrays contribute their text blocks joined by newlines, and
// anything else is returned as its raw JSON.
func ContentText(raw json.RawMessage) string {
	if isEmptyJSON(raw) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var blocks []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &blocks); err == nil {
		var texts []string
		for _, b := range blocks {
			if (b.Type == "text" || b.Type == "") && b.Text != "" {
				texts = append(texts, b.Text)
			}
		}
		if len(texts) > 0 {
			return strings.Join(texts, "\n")
		}
	}
	return string(bytes.TrimSpace(raw))
}

func isEmptyJSON(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) || bytes.Equal(trimmed, []byte(`""`))
}
