package hook

import (
	"encoding/json"
	"io"
	"strings"
)

// Decision is the evaluation result for one event.
type Decision struct {
	Denied       bool
	Reason       string
	UpdatedInput map[string]any
	Context      []string
	Warnings     []string
}

// IsEmpty reports whether the decision renders to nothing (silent allow).
func (d Decision) IsEmpty() bool {
	return !d.Denied && d.UpdatedInput == nil && len(d.Context) == 0
}

// AdditionalContext joins the context blocks into the single string sent to the agent.
func (d Decision) AdditionalContext() string {
	return strings.Join(d.Context, "\n\n")
}

// Output is the JSON structure written to stdout.
type Output struct {
	Decision           string          `json:"decision,omitempty"`
	Reason             string          `json:"reason,omitempty"`
	HookSpecificOutput *SpecificOutput `json:"hookSpecificOutput,omitempty"`
}

// SpecificOutput carries event-specific results for the hook host.
type SpecificOutput struct {
	HookEventName            string         `json:"hookEventName"`
	PermissionDecision       string         `json:"permissionDecision,omitempty"`
	PermissionDecisionReason string         `json:"permissionDecisionReason,omitempty"`
	UpdatedInput             map[string]any `json:"updatedInput,omitempty"`
	AdditionalContext        string         `json:"additionalContext,omitempty"`
}

// Render converts a decision into the wire output for the given event kind.
// It returns nil for an empty decision.
func Render(kind Kind, d Decision) *Output {
	if d.Denied {
		if kind == KindPreToolUse {
			return &Output{HookSpecificOutput: &SpecificOutput{
				HookEventName:            string(kind),
				PermissionDecision:       "deny",
				PermissionDecisionReason: d.Reason,
			}}
		}
		return &Output{Decision: "block", Reason: d.Reason}
	}
	if d.IsEmpty() {
		return nil
	}
	return &Output{HookSpecificOutput: &SpecificOutput{
		HookEventName:     string(kind),
		UpdatedInput:      d.UpdatedInput,
		AdditionalContext: d.AdditionalContext(),
	}}
}

// Write renders the decision to w. Nothing is written for an empty decision.
func Write(w io.Writer, kind Kind, d Decision) error {
	out := Render(kind, d)
	if out == nil {
		return nil
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return enc.Encode(out)
}
