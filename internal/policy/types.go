package policy

import "github.com/MEKXH/warden/internal/hook"

// Action is the kind of effect a policy has when it fires.
type Action string

const (
	ActionGate      Action = "gate"
	ActionTransform Action = "transform"
	ActionInject    Action = "inject"
)

// MatcherKind tags the content condition of a policy.
type MatcherKind int

const (
	MatchNone MatcherKind = iota
	MatchRegex
	MatchConstant
	MatchFileLiteral
	MatchFileRegex
)

func (k MatcherKind) String() string {
	switch k {
	case MatchRegex:
		return "regex"
	case MatchConstant:
		return "constant"
	case MatchFileLiteral:
		return "file"
	case MatchFileRegex:
		return "file-regex"
	default:
		return "none"
	}
}

// Matcher is the content condition of a policy. Value holds the regex, the
// constant name, or the filename shorthand depending on Kind.
type Matcher struct {
	Kind  MatcherKind
	Value string
}

// IsFile reports whether the matcher is filename shorthand.
func (m Matcher) IsFile() bool {
	return m.Kind == MatchFileLiteral || m.Kind == MatchFileRegex
}

// FilePathField is the tool-input field filename shorthand always matches against.
const FilePathField = "file_path"

// Gate denies the event.
type Gate struct {
	Message string
}

// Transform rewrites one field of the tool input through a model call.
type Transform struct {
	Prompt  string
	Field   string
	Model   string
	Context []string
}

// Inject adds context for the agent.
type Inject struct {
	Context []string
	Command string
}

// Classifier is an external yes/no judgment that must hold for the policy to fire.
// Exactly one of Prompt and Condition is set.
type Classifier struct {
	Prompt    string
	Condition string
	Model     string
}

// Policy is one rule loaded from a policy source.
type Policy struct {
	Name       string
	Event      hook.Kind
	Tool       string
	Match      Matcher
	Field      string
	Action     Action
	Gate       *Gate
	Transform  *Transform
	Inject     *Inject
	Classifier *Classifier

	// Set when the policy is loaded into a Source.
	Root  string
	Rank  int
	Index int
}

// MatchField returns the explicitly configured content field. Filename
// shorthand forces the file path field.
func (p Policy) MatchField() string {
	if p.Match.IsFile() {
		return FilePathField
	}
	return p.Field
}

// Source is one discovered policy location.
type Source struct {
	Root     string
	Path     string
	Rank     int
	Policies []Policy
	LoadErr  error
}

// Loader parses a policy file into policies in declaration order.
type Loader interface {
	LoadPolicies(path string) ([]Policy, error)
}
