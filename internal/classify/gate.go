package classify

import (
	"context"
	"fmt"
	"strings"

	"github.com/MEKXH/warden/internal/hook"
	"github.com/MEKXH/warden/internal/policy"
)

// DefaultModel is used when neither the policy nor the config names a model.
const DefaultModel = "haiku"

// InputPlaceholder in a literal classifier prompt is replaced by the event payload.
const InputPlaceholder = "{{input}}"

// Invoker runs one yes/no judgment prompt.
type Invoker interface {
	Classify(ctx context.Context, prompt, model string) (string, error)
}

// Gate decides whether a matched policy's classifier condition holds.
type Gate struct {
	invoker      Invoker
	defaultModel string
}

// NewGate builds a classifier gate. An empty defaultModel uses DefaultModel.
func NewGate(invoker Invoker, defaultModel string) *Gate {
	if strings.TrimSpace(defaultModel) == "" {
		defaultModel = DefaultModel
	}
	return &Gate{invoker: invoker, defaultModel: defaultModel}
}

// ShouldFire returns true for policies without a classifier. Otherwise it asks
// the classifier and returns true only for an affirmative answer. Any failure
// yields false with a non-nil error describing it.
func (g *Gate) ShouldFire(ctx context.Context, p policy.Policy, ev hook.Event) (fire bool, err error) {
	if p.Classifier == nil {
		return true, nil
	}
	defer func() {
		if rec := recover(); rec != nil {
			fire, err = false, fmt.Errorf("classifier for policy %q panicked: %v", p.Name, rec)
		}
	}()
	if g.invoker == nil {
		return false, fmt.Errorf("classifier for policy %q: no invoker configured", p.Name)
	}

	model := p.Classifier.Model
	if model == "" {
		model = g.defaultModel
	}
	resp, err := g.invoker.Classify(ctx, BuildPrompt(*p.Classifier, ev), model)
	if err != nil {
		return false, fmt.Errorf("classifier for policy %q: %w", p.Name, err)
	}
	return IsAffirmative(resp), nil
}

// BuildPrompt returns the judgment request for a classifier.
func BuildPrompt(c policy.Classifier, ev hook.Event) string {
	payload := ev.Payload()
	if c.Prompt != "" {
		return strings.ReplaceAll(c.Prompt, InputPlaceholder, payload)
	}

	var sb strings.Builder
	sb.WriteString("You are a strict yes/no classifier.\n\n")
	sb.WriteString("Condition:\n")
	sb.WriteString(c.Condition)
	sb.WriteString("\n\n")
	if ev.Kind.IsToolEvent() {
		sb.WriteString(fmt.Sprintf("Tool call (%s) input:\n", ev.ToolName))
	} else {
		sb.WriteString("User prompt:\n")
	}
	sb.WriteString(payload)
	sb.WriteString("\n\nDoes the input satisfy the condition? Answer with exactly one word: YES or NO.")
	return sb.String()
}

// IsAffirmative reports whether a response starts with "yes", ignoring case
// and leading whitespace.
func IsAffirmative(resp string) bool {
	resp = strings.TrimSpace(resp)
	return len(resp) >= 3 && strings.EqualFold(resp[:3], "yes")
}
