package policy

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/MEKXH/warden/internal/hook"
	"github.com/santhosh-tekuri/jsonschema/v6"
	"gopkg.in/yaml.v3"
)

//go:embed schema.json
var schemaJSON []byte

const schemaURL = "https://github.com/MEKXH/warden/policies.schema.json"

// FileLoader reads YAML policy files and validates them against the
// embedded policy schema before decoding.
type FileLoader struct {
	schema *jsonschema.Schema
}

// NewFileLoader compiles the policy schema.
func NewFileLoader() (*FileLoader, error) {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(schemaJSON))
	if err != nil {
		return nil, fmt.Errorf("parse policy schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(schemaURL, doc); err != nil {
		return nil, fmt.Errorf("add policy schema: %w", err)
	}
	schema, err := compiler.Compile(schemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile policy schema: %w", err)
	}
	return &FileLoader{schema: schema}, nil
}

// LoadPolicies reads and decodes one policy file.
func (l *FileLoader) LoadPolicies(path string) ([]Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return l.Parse(data)
}

// Parse decodes policy file contents.
func (l *FileLoader) Parse(data []byte) ([]Policy, error) {
	if err := l.Validate(data); err != nil {
		return nil, err
	}

	var raw rawFile
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse policy yaml: %w", err)
	}

	policies := make([]Policy, 0, len(raw.Policies))
	seen := make(map[string]bool, len(raw.Policies))
	for i, rp := range raw.Policies {
		p, err := rp.build()
		if err != nil {
			return nil, fmt.Errorf("policy %d (%s): %w", i, rp.Name, err)
		}
		if seen[p.Name] {
			return nil, fmt.Errorf("policy %d: duplicate name %q", i, p.Name)
		}
		seen[p.Name] = true
		p.Index = i
		policies = append(policies, p)
	}
	return policies, nil
}

// Validate checks policy file contents against the schema.
func (l *FileLoader) Validate(data []byte) error {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse policy yaml: %w", err)
	}
	if doc == nil {
		return nil
	}
	encoded, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("convert policy yaml to json: %w", err)
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("convert policy yaml to json: %w", err)
	}
	if err := l.schema.Validate(inst); err != nil {
		var verr *jsonschema.ValidationError
		if errors.As(err, &verr) {
			return fmt.Errorf("policy schema: %s", strings.TrimSpace(verr.Error()))
		}
		return fmt.Errorf("policy schema: %w", err)
	}
	return nil
}

type rawFile struct {
	Policies []rawPolicy `yaml:"policies"`
}

type rawPolicy struct {
	Name       string         `yaml:"name"`
	Event      string         `yaml:"event"`
	Tool       string         `yaml:"tool"`
	Match      yaml.Node      `yaml:"match"`
	File       yaml.Node      `yaml:"file"`
	Field      string         `yaml:"field"`
	Gate       yaml.Node      `yaml:"gate"`
	Transform  yaml.Node      `yaml:"transform"`
	Inject     yaml.Node      `yaml:"inject"`
	Classifier *rawClassifier `yaml:"classifier"`
}

type rawPattern struct {
	Constant string `yaml:"constant"`
	Regex    string `yaml:"regex"`
}

type rawGate struct {
	Message string `yaml:"message"`
}

type rawTransform struct {
	Prompt  string     `yaml:"prompt"`
	Field   string     `yaml:"field"`
	Model   string     `yaml:"model"`
	Context stringList `yaml:"context"`
}

type rawInject struct {
	Context stringList `yaml:"context"`
	Command string     `yaml:"command"`
}

type rawClassifier struct {
	Prompt    string `yaml:"prompt"`
	Condition string `yaml:"condition"`
	Model     string `yaml:"model"`
}

// stringList accepts either a single string or a sequence of strings.
type stringList []string

func (s *stringList) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		if value.Tag == "!!null" {
			*s = nil
			return nil
		}
		*s = stringList{value.Value}
		return nil
	}
	var items []string
	if err := value.Decode(&items); err != nil {
		return err
	}
	*s = items
	return nil
}

func present(n yaml.Node) bool {
	return n.Kind != 0
}

func isNull(n yaml.Node) bool {
	return n.Kind == yaml.ScalarNode && n.Tag == "!!null"
}

func (rp rawPolicy) build() (Policy, error) {
	p := Policy{
		Name:  strings.TrimSpace(rp.Name),
		Event: hook.Kind(strings.TrimSpace(rp.Event)),
		Tool:  strings.TrimSpace(rp.Tool),
		Field: strings.TrimSpace(rp.Field),
	}
	if p.Name == "" {
		return Policy{}, fmt.Errorf("name is required")
	}

	switch {
	case present(rp.File):
		m, err := decodePattern(rp.File, MatchFileLiteral, MatchFileRegex)
		if err != nil {
			return Policy{}, fmt.Errorf("file: %w", err)
		}
		p.Match = m
		// The shorthand owns the content condition.
		p.Field = ""
	case present(rp.Match):
		m, err := decodePattern(rp.Match, MatchRegex, MatchRegex)
		if err != nil {
			return Policy{}, fmt.Errorf("match: %w", err)
		}
		p.Match = m
	}

	actions := 0
	if present(rp.Gate) {
		actions++
		g := &Gate{}
		if !isNull(rp.Gate) {
			var raw rawGate
			if err := rp.Gate.Decode(&raw); err != nil {
				return Policy{}, fmt.Errorf("gate: %w", err)
			}
			g.Message = strings.TrimSpace(raw.Message)
		}
		p.Action, p.Gate = ActionGate, g
	}
	if present(rp.Transform) {
		actions++
		var raw rawTransform
		if err := rp.Transform.Decode(&raw); err != nil {
			return Policy{}, fmt.Errorf("transform: %w", err)
		}
		if strings.TrimSpace(raw.Prompt) == "" {
			return Policy{}, fmt.Errorf("transform: prompt is required")
		}
		p.Action = ActionTransform
		p.Transform = &Transform{
			Prompt:  strings.TrimSpace(raw.Prompt),
			Field:   strings.TrimSpace(raw.Field),
			Model:   strings.TrimSpace(raw.Model),
			Context: []string(raw.Context),
		}
	}
	if present(rp.Inject) {
		actions++
		in := &Inject{}
		if !isNull(rp.Inject) {
			var raw rawInject
			if err := rp.Inject.Decode(&raw); err != nil {
				return Policy{}, fmt.Errorf("inject: %w", err)
			}
			in.Context = []string(raw.Context)
			in.Command = strings.TrimSpace(raw.Command)
		}
		p.Action, p.Inject = ActionInject, in
	}
	if actions != 1 {
		return Policy{}, fmt.Errorf("exactly one of gate, transform, inject is required, got %d", actions)
	}

	if rp.Classifier != nil {
		c := &Classifier{
			Prompt:    strings.TrimSpace(rp.Classifier.Prompt),
			Condition: strings.TrimSpace(rp.Classifier.Condition),
			Model:     strings.TrimSpace(rp.Classifier.Model),
		}
		if (c.Prompt == "") == (c.Condition == "") {
			return Policy{}, fmt.Errorf("classifier: exactly one of prompt, condition is required")
		}
		p.Classifier = c
	}

	return p, nil
}

// decodePattern reads a scalar or a {regex|constant} mapping. Scalars take
// the scalarKind; {regex: ...} takes regexKind.
func decodePattern(n yaml.Node, scalarKind, regexKind MatcherKind) (Matcher, error) {
	if n.Kind == yaml.ScalarNode {
		if isNull(n) || n.Value == "" {
			return Matcher{}, fmt.Errorf("pattern must not be empty")
		}
		return Matcher{Kind: scalarKind, Value: n.Value}, nil
	}
	var raw rawPattern
	if err := n.Decode(&raw); err != nil {
		return Matcher{}, err
	}
	switch {
	case raw.Constant != "" && raw.Regex != "":
		return Matcher{}, fmt.Errorf("constant and regex are mutually exclusive")
	case raw.Constant != "":
		if scalarKind == MatchFileLiteral {
			return Matcher{}, fmt.Errorf("match constants are not valid filename shorthand")
		}
		return Matcher{Kind: MatchConstant, Value: strings.TrimSpace(raw.Constant)}, nil
	case raw.Regex != "":
		return Matcher{Kind: regexKind, Value: raw.Regex}, nil
	default:
		return Matcher{}, fmt.Errorf("expected a string, {regex: ...} or {constant: ...}")
	}
}
