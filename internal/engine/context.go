package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// contextSet tracks files and blocks already emitted in one evaluation.
type contextSet struct {
	files  map[string]bool
	blocks map[string]bool
}

func newContextSet() *contextSet {
	return &contextSet{files: map[string]bool{}, blocks: map[string]bool{}}
}

// addBlock appends block unless an identical one was already added.
func (s *contextSet) addBlock(out []string, block string) []string {
	if block == "" || s.blocks[block] {
		return out
	}
	s.blocks[block] = true
	return append(out, block)
}

// readFiles returns one tagged block per context file. Relative paths resolve
// against root. Unreadable files are reported and skipped.
func (s *contextSet) readFiles(root string, files []string, policyName string, rep *Reporter) []string {
	var out []string
	for _, name := range files {
		path := resolveContextPath(root, name)
		if s.files[path] {
			continue
		}
		s.files[path] = true

		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				rep.Warn("context file not found", "policy", policyName, "file", path)
			} else {
				rep.Warn("context file unreadable", "policy", policyName, "file", path, "error", err)
			}
			continue
		}
		out = s.addBlock(out, TagBlock(filepath.Base(path), string(data)))
	}
	return out
}

// TagBlock wraps content in <tag>...</tag> lines.
func TagBlock(tag, content string) string {
	return fmt.Sprintf("<%s>\n%s\n</%s>", tag, strings.TrimRight(content, "\r\n"), tag)
}

func resolveContextPath(root, name string) string {
	if strings.HasPrefix(name, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			name = filepath.Join(home, name[2:])
		}
	}
	if !filepath.IsAbs(name) {
		name = filepath.Join(root, name)
	}
	if abs, err := filepath.Abs(name); err == nil {
		name = abs
	}
	return filepath.Clean(name)
}
