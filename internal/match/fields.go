package match

// FallbackField is matched when a tool has no default field and the policy
// names none.
const FallbackField = "command"

// Fields maps tool names to the tool-input field content patterns match by default.
type Fields struct {
	byTool map[string]string
}

// DefaultFields returns the built-in per-tool default field table.
func DefaultFields() *Fields {
	return NewFields(map[string]string{
		"Bash":         "command",
		"Write":        "file_path",
		"Edit":         "file_path",
		"MultiEdit":    "file_path",
		"Read":         "file_path",
		"NotebookEdit": "notebook_path",
		"Glob":         "pattern",
		"Grep":         "pattern",
		"LS":           "path",
		"WebFetch":     "url",
		"WebSearch":    "query",
		"Task":         "prompt",
	})
}

// NewFields copies the given table.
func NewFields(byTool map[string]string) *Fields {
	copied := make(map[string]string, len(byTool))
	for tool, field := range byTool {
		copied[tool] = field
	}
	return &Fields{byTool: copied}
}

// Default returns the default field for a tool, or FallbackField.
func (f *Fields) Default(tool string) string {
	if f != nil {
		if field, ok := f.byTool[tool]; ok {
			return field
		}
	}
	return FallbackField
}

// Resolve returns explicit when set, otherwise the tool default.
func (f *Fields) Resolve(explicit, tool string) string {
	if explicit != "" {
		return explicit
	}
	return f.Default(tool)
}
