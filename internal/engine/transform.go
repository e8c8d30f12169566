package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/MEKXH/warden/internal/hook"
	"github.com/MEKXH/warden/internal/match"
	"github.com/MEKXH/warden/internal/policy"
)

// Rewriter runs one rewrite prompt and returns the model's text.
type Rewriter interface {
	Rewrite(ctx context.Context, prompt, model string) (string, error)
}

// TransformExecutor combines firing transforms into one rewrite request and
// replaces a single field of the tool input with the result.
type TransformExecutor struct {
	rewriter     Rewriter
	matcher      *match.Matcher
	defaultModel string
}

// NewTransformExecutor builds an executor. defaultModel applies when no
// transform names a model; empty leaves the choice to the rewriter.
func NewTransformExecutor(rewriter Rewriter, matcher *match.Matcher, defaultModel string) *TransformExecutor {
	if matcher == nil {
		matcher = match.NewMatcher(nil, nil)
	}
	return &TransformExecutor{rewriter: rewriter, matcher: matcher, defaultModel: defaultModel}
}

// Execute returns the updated tool input, or false when nothing should change.
// The caller's map is never modified.
func (x *TransformExecutor) Execute(ctx context.Context, ev hook.Event, transforms []policy.Policy, rep *Reporter) (map[string]any, bool) {
	if len(transforms) == 0 {
		return nil, false
	}
	names := policyNames(transforms)
	if !ev.Kind.IsToolEvent() {
		rep.Warn("transform ignored for event without tool input", "event", ev.Kind, "policies", names)
		return nil, false
	}
	if x.rewriter == nil {
		rep.Warn("transform failed; action proceeds unmodified", "policies", names, "error", "no rewriter configured")
		return nil, false
	}

	set := newContextSet()
	var blocks, instructions []string
	model, field := "", ""
	for _, p := range transforms {
		t := p.Transform
		blocks = append(blocks, set.readFiles(p.Root, t.Context, p.Name, rep)...)
		instructions = append(instructions, strings.TrimSpace(t.Prompt))
		if model == "" && t.Model != "" {
			model = t.Model
		}
		if field == "" {
			field = t.Field
			if field == "" {
				field = x.matcher.TargetField(p, ev)
			}
		}
	}
	if model == "" {
		model = x.defaultModel
	}

	prompt := BuildRewritePrompt(blocks, ev.ToolInput, instructions, field)
	out, err := x.rewriter.Rewrite(ctx, prompt, model)
	if err != nil {
		rep.Warn("transform failed; action proceeds unmodified", "policies", names, "error", err)
		return nil, false
	}
	if strings.TrimSpace(out) == "" {
		rep.Warn("transform returned empty output; action proceeds unmodified", "policies", names)
		return nil, false
	}

	updated := make(map[string]any, len(ev.ToolInput)+1)
	for k, v := range ev.ToolInput {
		updated[k] = v
	}
	updated[field] = out
	return updated, true
}

// BuildRewritePrompt assembles the single rewrite request: context, the
// original input, the instructions and the field to return.
func BuildRewritePrompt(blocks []string, input map[string]any, instructions []string, field string) string {
	var sb strings.Builder
	sb.WriteString("You are rewriting one field of a tool call before it runs.\n\n")
	if len(blocks) > 0 {
		sb.WriteString("Reference material:\n\n")
		sb.WriteString(strings.Join(blocks, "\n\n"))
		sb.WriteString("\n\n")
	}

	sb.WriteString("Tool input:\n")
	sb.WriteString(renderInput(input))
	sb.WriteString("\n\n")

	if len(instructions) == 1 {
		sb.WriteString("Instruction:\n")
		sb.WriteString(instructions[0])
	} else {
		sb.WriteString("Instructions (apply all of them):")
		for i, in := range instructions {
			fmt.Fprintf(&sb, "\n%d. %s", i+1, in)
		}
	}
	sb.WriteString("\n\n")
	fmt.Fprintf(&sb, "Respond with only the new value of the %q field. Do not add explanations, markdown or code fences.", field)
	return sb.String()
}

func renderInput(input map[string]any) string {
	if len(input) == 0 {
		return "{}"
	}
	if data, err := yaml.Marshal(input); err == nil {
		return strings.TrimRight(string(data), "\n")
	}
	data, _ := json.MarshalIndent(input, "", "  ")
	return string(data)
}

func policyNames(policies []policy.Policy) string {
	names := make([]string, len(policies))
	for i, p := range policies {
		names[i] = p.Name
	}
	return strings.Join(names, ",")
}
