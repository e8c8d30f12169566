package match

import (
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/MEKXH/warden/internal/hook"
	"github.com/MEKXH/warden/internal/policy"
)

// FileLiteralPattern turns filename shorthand into a regex that matches the
// literal as whole path components.
func FileLiteralPattern(literal string) string {
	return `(?:^|[/\\])` + regexp.QuoteMeta(literal) + `(?:$|[/\\])`
}

// Matcher evaluates policy conditions against events.
type Matcher struct {
	constants *Constants
	fields    *Fields
}

// NewMatcher builds a matcher over the given tables. Nil tables use the defaults.
func NewMatcher(constants *Constants, fields *Fields) *Matcher {
	if constants == nil {
		constants = DefaultConstants()
	}
	if fields == nil {
		fields = DefaultFields()
	}
	return &Matcher{constants: constants, fields: fields}
}

// Fields returns the matcher's default field table.
func (m *Matcher) Fields() *Fields {
	return m.fields
}

// ContentRegex resolves a policy's content condition to a regex source.
// It returns "" when the policy has no content condition.
func (m *Matcher) ContentRegex(c policy.Matcher) (string, error) {
	switch c.Kind {
	case policy.MatchNone:
		return "", nil
	case policy.MatchRegex, policy.MatchFileRegex:
		return c.Value, nil
	case policy.MatchFileLiteral:
		return FileLiteralPattern(c.Value), nil
	case policy.MatchConstant:
		return m.constants.Lookup(c.Value)
	default:
		return "", fmt.Errorf("unsupported matcher kind %d", c.Kind)
	}
}

// Compile resolves and compiles every regex a policy uses. Errors name the
// policy and the offending pattern.
func (m *Matcher) Compile(p policy.Policy) (tool, content *regexp.Regexp, err error) {
	if tool, err = m.compileTool(p); err != nil {
		return nil, nil, err
	}
	if content, err = m.compileContent(p); err != nil {
		return nil, nil, err
	}
	return tool, content, nil
}

func (m *Matcher) compileTool(p policy.Policy) (*regexp.Regexp, error) {
	if p.Tool == "" {
		return nil, nil
	}
	re, err := regexp.Compile(`^(?:` + p.Tool + `)$`)
	if err != nil {
		return nil, fmt.Errorf("policy %q: tool pattern %q: %w", p.Name, p.Tool, err)
	}
	return re, nil
}

func (m *Matcher) compileContent(p policy.Policy) (*regexp.Regexp, error) {
	src, err := m.ContentRegex(p.Match)
	if err != nil {
		return nil, fmt.Errorf("policy %q: %w", p.Name, err)
	}
	if src == "" {
		return nil, nil
	}
	re, err := regexp.Compile(src)
	if err != nil {
		return nil, fmt.Errorf("policy %q: %s pattern %q: %w", p.Name, p.Match.Kind, p.Match.Value, err)
	}
	return re, nil
}

// Match reports whether the event satisfies all of the policy's conditions.
// Each filter is compiled only once the filters before it have passed, so a
// malformed policy reports an error only for events it could apply to.
// A non-nil error means the policy is malformed; callers treat it as not matching.
func (m *Matcher) Match(p policy.Policy, ev hook.Event) (bool, error) {
	if p.Event != "" && p.Event != ev.Kind {
		return false, nil
	}
	if p.Tool != "" {
		if !ev.Kind.IsToolEvent() {
			return false, nil
		}
		tool, err := m.compileTool(p)
		if err != nil {
			return false, err
		}
		if !tool.MatchString(ev.ToolName) {
			return false, nil
		}
	}

	content, err := m.compileContent(p)
	if err != nil {
		return false, err
	}
	if content == nil {
		return true, nil
	}
	return content.MatchString(m.Subject(p, ev)), nil
}

// TargetField is the tool-input field a policy matches against.
func (m *Matcher) TargetField(p policy.Policy, ev hook.Event) string {
	return m.fields.Resolve(p.MatchField(), ev.ToolName)
}

// Subject returns the text a policy's content condition is tested against.
// Prompt events use the prompt. Tool events use the target field, or the whole
// tool input serialized as JSON when that field is absent.
func (m *Matcher) Subject(p policy.Policy, ev hook.Event) string {
	if !ev.Kind.IsToolEvent() {
		return ev.Prompt
	}
	value, ok := ev.ToolInput[m.TargetField(p, ev)]
	if !ok {
		return ev.Payload()
	}
	return stringify(value)
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	default:
		data, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprintf("%v", t)
		}
		return string(data)
	}
}
