package classify

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/MEKXH/warden/internal/hook"
	"github.com/MEKXH/warden/internal/policy"
)

type fakeInvoker struct {
	resp   string
	err    error
	prompt string
	model  string
	calls  int
}

func (f *fakeInvoker) Classify(_ context.Context, prompt, model string) (string, error) {
	f.calls++
	f.prompt, f.model = prompt, model
	return f.resp, f.err
}

var bashEv = hook.Event{
	Kind:      hook.KindPreToolUse,
	ToolName:  "Bash",
	ToolInput: map[string]any{"command": "rm -rf build"},
}

func TestShouldFire_NoClassifierSkipsCall(t *testing.T) {
	inv := &fakeInvoker{resp: "NO"}
	fire, err := NewGate(inv, "").ShouldFire(context.Background(), policy.Policy{Name: "p"}, bashEv)
	if err != nil || !fire {
		t.Fatalf("expected fire without error, got %v %v", fire, err)
	}
	if inv.calls != 0 {
		t.Fatalf("expected no classifier call, got %d", inv.calls)
	}
}

func TestShouldFire_Responses(t *testing.T) {
	cases := map[string]bool{
		"YES":               true,
		"yes.":              true,
		"  Yes, it does":    true,
		"yessir":            true,
		"NO":                false,
		"Maybe yes":         false,
		"":                  false,
		"y":                 false,
		"The answer is yes": false,
	}
	p := policy.Policy{Name: "p", Classifier: &policy.Classifier{Condition: "deletes files"}}
	for resp, want := range cases {
		inv := &fakeInvoker{resp: resp}
		fire, err := NewGate(inv, "").ShouldFire(context.Background(), p, bashEv)
		if err != nil {
			t.Fatalf("%q: unexpected error %v", resp, err)
		}
		if fire != want {
			t.Fatalf("%q: expected %v, got %v", resp, want, fire)
		}
	}
}

func TestShouldFire_ErrorIsFalse(t *testing.T) {
	inv := &fakeInvoker{resp: "YES", err: errors.New("executable not found")}
	p := policy.Policy{Name: "p", Classifier: &policy.Classifier{Condition: "x"}}
	fire, err := NewGate(inv, "").ShouldFire(context.Background(), p, bashEv)
	if fire {
		t.Fatal("expected false on invoker error")
	}
	if err == nil || !strings.Contains(err.Error(), `"p"`) {
		t.Fatalf("expected error naming the policy, got %v", err)
	}
}

func TestShouldFire_NilInvoker(t *testing.T) {
	p := policy.Policy{Name: "p", Classifier: &policy.Classifier{Condition: "x"}}
	fire, err := NewGate(nil, "").ShouldFire(context.Background(), p, bashEv)
	if fire || err == nil {
		t.Fatalf("expected false with error, got %v %v", fire, err)
	}
}

func TestShouldFire_ModelSelection(t *testing.T) {
	inv := &fakeInvoker{resp: "yes"}
	gate := NewGate(inv, "configured")

	p := policy.Policy{Name: "p", Classifier: &policy.Classifier{Condition: "x"}}
	if _, err := gate.ShouldFire(context.Background(), p, bashEv); err != nil {
		t.Fatalf("ShouldFire: %v", err)
	}
	if inv.model != "configured" {
		t.Fatalf("expected configured default model, got %q", inv.model)
	}

	p.Classifier.Model = "sonnet"
	if _, err := gate.ShouldFire(context.Background(), p, bashEv); err != nil {
		t.Fatalf("ShouldFire: %v", err)
	}
	if inv.model != "sonnet" {
		t.Fatalf("expected policy model override, got %q", inv.model)
	}

	if NewGate(inv, "  ").defaultModel != DefaultModel {
		t.Fatal("expected DefaultModel for blank default")
	}
}

func TestBuildPrompt_Condition(t *testing.T) {
	prompt := BuildPrompt(policy.Classifier{Condition: "the command deletes files"}, bashEv)
	for _, want := range []string{"the command deletes files", `"command":"rm -rf build"`, "YES or NO", "Bash"} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("expected prompt to contain %q, got:\n%s", want, prompt)
		}
	}

	promptEv := hook.Event{Kind: hook.KindUserPromptSubmit, Prompt: "ship it to prod"}
	prompt = BuildPrompt(policy.Classifier{Condition: "asks for a deploy"}, promptEv)
	if !strings.Contains(prompt, "User prompt:\nship it to prod") {
		t.Fatalf("expected prompt text in request, got:\n%s", prompt)
	}
}

func TestBuildPrompt_LiteralIsVerbatim(t *testing.T) {
	literal := "Is this destructive? Answer YES or NO."
	if got := BuildPrompt(policy.Classifier{Prompt: literal}, bashEv); got != literal {
		t.Fatalf("expected literal prompt, got %q", got)
	}
	got := BuildPrompt(policy.Classifier{Prompt: "Check: {{input}}"}, bashEv)
	if got != `Check: {"command":"rm -rf build"}` {
		t.Fatalf("expected placeholder substitution, got %q", got)
	}
}
