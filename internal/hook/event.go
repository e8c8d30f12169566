package hook

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// Kind identifies the hook lifecycle point that produced an event.
type Kind string

const (
	KindPreToolUse       Kind = "PreToolUse"
	KindPostToolUse      Kind = "PostToolUse"
	KindUserPromptSubmit Kind = "UserPromptSubmit"
)

var knownKinds = []Kind{
	KindPreToolUse,
	KindPostToolUse,
	KindUserPromptSubmit,
}

// KnownKinds returns the event kinds policies may filter on.
func KnownKinds() []Kind {
	out := make([]Kind, len(knownKinds))
	copy(out, knownKinds)
	return out
}

// IsToolEvent reports whether events of this kind carry a tool name and input.
func (k Kind) IsToolEvent() bool {
	return k == KindPreToolUse || k == KindPostToolUse
}

// Event is an immutable snapshot of one hook invocation.
type Event struct {
	Kind      Kind
	SessionID string
	ToolName  string
	ToolInput map[string]any
	Prompt    string
	Cwd       string
}

type rawEvent struct {
	SessionID     string         `json:"session_id"`
	HookEventName string         `json:"hook_event_name"`
	ToolName      string         `json:"tool_name"`
	ToolInput     map[string]any `json:"tool_input"`
	Prompt        string         `json:"prompt"`
	Cwd           string         `json:"cwd"`
}

// ParseEvent decodes one event from the hook host.
func ParseEvent(r io.Reader) (Event, error) {
	var raw rawEvent
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return Event{}, fmt.Errorf("decode hook event: %w", err)
	}
	kind := Kind(strings.TrimSpace(raw.HookEventName))
	if kind == "" {
		return Event{}, fmt.Errorf("hook event missing hook_event_name")
	}

	ev := Event{
		Kind:      kind,
		SessionID: raw.SessionID,
		Cwd:       raw.Cwd,
	}
	if kind.IsToolEvent() {
		ev.ToolName = raw.ToolName
		ev.ToolInput = raw.ToolInput
		if ev.ToolInput == nil {
			ev.ToolInput = map[string]any{}
		}
	} else {
		ev.Prompt = raw.Prompt
	}
	return ev, nil
}

// Payload returns the event's text for classifiers and injected commands:
// the prompt for prompt events, the tool input as JSON otherwise.
func (e Event) Payload() string {
	if !e.Kind.IsToolEvent() {
		return e.Prompt
	}
	data, err := json.Marshal(e.ToolInput)
	if err != nil {
		return fmt.Sprintf("%v", e.ToolInput)
	}
	return string(data)
}
