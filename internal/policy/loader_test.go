package policy

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MEKXH/warden/internal/hook"
)

func newTestLoader(t *testing.T) *FileLoader {
	t.Helper()
	l, err := NewFileLoader()
	if err != nil {
		t.Fatalf("NewFileLoader: %v", err)
	}
	return l
}

func TestParse_AllActionKinds(t *testing.T) {
	src := `
policies:
  - name: no-force-push
    event: PreToolUse
    tool: Bash
    match: {constant: git_force_push}
    gate:
      message: Force pushes are not allowed
  - name: protect-env
    file: .env
    match: ignored
    field: command
    gate:
  - name: house-rules
    event: UserPromptSubmit
    inject:
      context: RULES.md
      command: git status --short
  - name: license-header
    tool: Write
    file: {regex: '\.go$'}
    transform:
      prompt: Add the license header
      field: content
      context: [HEADER.txt, STYLE.md]
      model: sonnet
    classifier:
      condition: the file is new
`
	policies, err := newTestLoader(t).Parse([]byte(src))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(policies) != 4 {
		t.Fatalf("expected 4 policies, got %d", len(policies))
	}

	gate := policies[0]
	if gate.Action != ActionGate || gate.Gate.Message != "Force pushes are not allowed" {
		t.Fatalf("unexpected gate policy %#v", gate)
	}
	if gate.Event != hook.KindPreToolUse || gate.Match != (Matcher{Kind: MatchConstant, Value: "git_force_push"}) {
		t.Fatalf("unexpected gate conditions %#v", gate)
	}

	env := policies[1]
	if env.Gate == nil || env.Gate.Message != "" {
		t.Fatalf("expected empty gate for null gate value, got %#v", env.Gate)
	}
	if env.Match != (Matcher{Kind: MatchFileLiteral, Value: ".env"}) {
		t.Fatalf("expected file shorthand to win over match, got %#v", env.Match)
	}
	if env.MatchField() != FilePathField {
		t.Fatalf("expected forced file_path field, got %q", env.MatchField())
	}

	inject := policies[2]
	if inject.Action != ActionInject || len(inject.Inject.Context) != 1 || inject.Inject.Context[0] != "RULES.md" {
		t.Fatalf("unexpected inject policy %#v", inject.Inject)
	}
	if inject.Inject.Command != "git status --short" || inject.Index != 2 {
		t.Fatalf("unexpected inject policy %#v", inject)
	}

	tr := policies[3]
	if tr.Action != ActionTransform || tr.Transform.Field != "content" || tr.Transform.Model != "sonnet" {
		t.Fatalf("unexpected transform %#v", tr.Transform)
	}
	if tr.Match.Kind != MatchFileRegex || tr.Match.Value != `\.go$` {
		t.Fatalf("unexpected transform matcher %#v", tr.Match)
	}
	if tr.Classifier == nil || tr.Classifier.Condition != "the file is new" {
		t.Fatalf("unexpected classifier %#v", tr.Classifier)
	}
}

func TestParse_EmptyFile(t *testing.T) {
	policies, err := newTestLoader(t).Parse([]byte("# nothing yet\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(policies) != 0 {
		t.Fatalf("expected no policies, got %d", len(policies))
	}
}

func TestParse_UnknownEventLoads(t *testing.T) {
	policies, err := newTestLoader(t).Parse([]byte(`
policies:
  - name: on-stop
    event: Stop
    inject: {command: "echo done"}
  - name: no-force
    match: {constant: git_force_push}
    gate: {}
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(policies) != 2 {
		t.Fatalf("expected 2 policies, got %d", len(policies))
	}
	if policies[0].Event != hook.Kind("Stop") {
		t.Fatalf("expected event kept verbatim, got %q", policies[0].Event)
	}
	if policies[1].Action != ActionGate {
		t.Fatalf("expected sibling policy to load, got %#v", policies[1])
	}
}

func TestParse_Rejects(t *testing.T) {
	cases := map[string]string{
		"two actions": `
policies:
  - name: a
    gate: {}
    inject: {}
`,
		"no action": `
policies:
  - name: a
    tool: Bash
`,
		"unknown key": `
policies:
  - name: a
    gate: {}
    severity: high
`,
		"empty event": `
policies:
  - name: a
    event: ""
    gate: {}
`,
		"transform without prompt": `
policies:
  - name: a
    transform: {field: content}
`,
		"classifier with both forms": `
policies:
  - name: a
    gate: {}
    classifier: {prompt: x, condition: y}
`,
		"duplicate names": `
policies:
  - name: a
    gate: {}
  - name: a
    gate: {}
`,
		"constant as filename": `
policies:
  - name: a
    file: {constant: git_push}
    gate: {}
`,
		"bad yaml": "policies: [",
	}
	l := newTestLoader(t)
	for name, src := range cases {
		if _, err := l.Parse([]byte(src)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestLoadPolicies_MissingFile(t *testing.T) {
	_, err := newTestLoader(t).LoadPolicies(filepath.Join(t.TempDir(), "policies.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if !strings.Contains(err.Error(), "policies.yaml") {
		t.Fatalf("expected error to name the file, got %v", err)
	}
}

func TestLoadPolicies_ReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policies.yaml")
	if err := os.WriteFile(path, []byte("policies:\n  - name: a\n    gate: {message: stop}\n"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	policies, err := newTestLoader(t).LoadPolicies(path)
	if err != nil {
		t.Fatalf("LoadPolicies: %v", err)
	}
	if len(policies) != 1 || policies[0].Gate.Message != "stop" {
		t.Fatalf("unexpected policies %#v", policies)
	}
}
