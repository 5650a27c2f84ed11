// Package reconcile folds a thread's flat, append-only message stream into
// display-ready conversation turns with their tool calls attached.
package reconcile

// RenderTurn is one human or assistant message together with the tool calls
// it issued.
type RenderTurn struct {
	Message    Message    `json:"message"`
	Role       Role       `json:"role"`
	ToolCalls  []ToolCall `json:"tool_calls"`
	ShowAvatar bool       `json:"show_avatar"`
}

// Result is the outcome of a reconciliation pass. Orphans lists the ids of
// tool-result messages whose reference matched no known tool call; they have
// no effect on Turns.
type Result struct {
	Turns   []RenderTurn `json:"turns"`
	Orphans []string     `json:"orphans,omitempty"`
}

// Reconcile returns the render turns for the complete message sequence
// observed so far.
func Reconcile(messages []Message) []RenderTurn {
	return Fold(messages).Turns
}

// Fold performs a single forward pass over messages. It never fails:
// unrecognized roles are skipped and orphaned tool results are dropped.
func Fold(messages []Message) Result {
	ix := newTurnIndex(len(messages))
	var orphans []string

	for _, m := range messages {
		role, ok := m.ResolvedRole()
		if !ok {
			continue
		}
		switch role {
		case RoleHuman:
			ix.set(m.ID, &RenderTurn{Message: m, Role: RoleHuman, ToolCalls: []ToolCall{}})
		case RoleAssistant:
			ix.set(m.ID, &RenderTurn{Message: m, Role: RoleAssistant, ToolCalls: ExtractToolCalls(m)})
		case RoleToolResult:
			if !ix.complete(m.ToolCallID, m.Text()) {
				orphans = append(orphans, m.ID)
			}
		}
	}

	turns := make([]RenderTurn, 0, len(ix.order))
	var prev Role
	for i, id := range ix.order {
		t := *ix.turns[id]
		t.ShowAvatar = i == 0 || t.Role != prev
		prev = t.Role
		turns = append(turns, t)
	}
	return Result{Turns: turns, Orphans: orphans}
}

// turnIndex is an insertion-ordered map of message id to turn. Setting an
// existing id replaces the turn but keeps its first-seen position.
type turnIndex struct {
	order []string
	turns map[string]*RenderTurn
}

func newTurnIndex(capacity int) *turnIndex {
	return &turnIndex{
		order: make([]string, 0, capacity),
		turns: make(map[string]*RenderTurn, capacity),
	}
}

func (ix *turnIndex) set(id string, t *RenderTurn) {
	if _, seen := ix.turns[id]; !seen {
		ix.order = append(ix.order, id)
	}
	ix.turns[id] = t
}

// complete marks the first tool call with the given id, in turn insertion
// order, as completed.
func (ix *turnIndex) complete(callID, result string) bool {
	if callID == "" {
		return false
	}
	for _, id := range ix.order {
		t := ix.turns[id]
		for i := range t.ToolCalls {
			if t.ToolCalls[i].ID != callID {
				continue
			}
			t.ToolCalls[i].Status = StatusCompleted
			t.ToolCalls[i].Result = result
			return true
		}
	}
	return false
}
