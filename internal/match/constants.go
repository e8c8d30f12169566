package match

import (
	"errors"
	"fmt"
	"sort"
)

// ErrUnknownConstant is returned when a policy references a match constant
// that is not in the table.
var ErrUnknownConstant = errors.New("unknown match constant")

// unquotedPrefix consumes text from the start of input, stepping over whole
// single- and double-quoted spans so separators inside quotes never start a
// command.
const unquotedPrefix = `^(?:[^'"]|'[^']*'|"(?:[^"\\]|\\.)*")*?`

// commandStart anchors a base command at the start of a shell command: input
// start or after an unquoted separator, with optional sudo/env/assignment
// prefixes and an optional binary path.
const commandStart = unquotedPrefix + `(?:^|[\n;&|(` + "`" + `]|\$\()\s*` +
	`(?:(?:sudo|command|exec|nohup|time)\s+|env\s+|[A-Za-z_][A-Za-z0-9_]*=\S*\s+)*` +
	`(?:\S*/)?`

// gitGlobalFlags tolerates options placed between git and its subcommand.
const gitGlobalFlags = `(?:\s+(?:` +
	`(?:-C|-c|--git-dir|--work-tree|--namespace|--exec-path|--super-prefix|--config-env)(?:\s+|=)\S+` +
	`|--?[A-Za-z][\w-]*(?:=\S+)?` +
	`))*`

// npmGlobalFlags tolerates options placed between npm and its subcommand.
const npmGlobalFlags = `(?:\s+(?:` +
	`(?:--registry|--userconfig|--prefix|-C|--workspace|-w)(?:\s+|=)\S+` +
	`|--?[A-Za-z][\w-]*(?:=\S+)?` +
	`))*`

// argsTail is the rest of the same shell command.
const argsTail = `[^\n;&|]*?`

// flagEnd terminates a flag token.
const flagEnd = `(?:\s|$|[;&|)])`

// shortFlagWith matches a short flag cluster containing letter.
func shortFlagWith(letter string) string {
	return `-[A-Za-z]*` + letter + `[A-Za-z]*` + flagEnd
}

func gitSub(sub string) string {
	return commandStart + `git` + gitGlobalFlags + `\s+` + sub + flagEnd
}

func gitSubWith(sub, flags string) string {
	return commandStart + `git` + gitGlobalFlags + `\s+` + sub + `\b` + argsTail + `\s(?:` + flags + `)`
}

// Constant is a named regex template tolerant of command-line decoration.
type Constant struct {
	Name        string
	Description string
	Pattern     string
}

// Constants is the read-only match-constant table.
type Constants struct {
	byName map[string]Constant
}

// DefaultConstants builds the built-in constant table.
func DefaultConstants() *Constants {
	return NewConstants([]Constant{
		{
			Name:        "git_push",
			Description: "any git push",
			Pattern:     gitSub(`push`),
		},
		{
			Name:        "git_force_push",
			Description: "git push with --force, --force-with-lease, -f or a +refspec",
			Pattern: gitSubWith(`push`,
				`--force(?:-with-lease|-if-includes)?(?:=\S*)?`+flagEnd+`|`+shortFlagWith(`f`)+`|\+\S+`),
		},
		{
			Name:        "git_commit",
			Description: "any git commit",
			Pattern:     gitSub(`commit`),
		},
		{
			Name:        "git_no_verify",
			Description: "git commit or push skipping hooks",
			Pattern:     gitSubWith(`(?:commit|push)`, `--no-verify`+flagEnd),
		},
		{
			Name:        "git_reset_hard",
			Description: "git reset --hard",
			Pattern:     gitSubWith(`reset`, `--hard`+flagEnd),
		},
		{
			Name:        "git_clean_force",
			Description: "git clean with --force or -f",
			Pattern:     gitSubWith(`clean`, `--force`+flagEnd+`|`+shortFlagWith(`f`)),
		},
		{
			Name:        "git_rebase",
			Description: "any git rebase",
			Pattern:     gitSub(`rebase`),
		},
		{
			Name:        "git_branch_delete",
			Description: "git branch -d/-D/--delete",
			Pattern:     gitSubWith(`branch`, `--delete`+flagEnd+`|`+shortFlagWith(`[dD]`)),
		},
		{
			Name:        "npm_publish",
			Description: "npm publish",
			Pattern:     commandStart + `npm` + npmGlobalFlags + `\s+publish` + flagEnd,
		},
	})
}

// NewConstants builds a table from the given constants. Later entries
// replace earlier ones with the same name.
func NewConstants(list []Constant) *Constants {
	byName := make(map[string]Constant, len(list))
	for _, c := range list {
		byName[c.Name] = c
	}
	return &Constants{byName: byName}
}

// Lookup returns the regex source for a constant name.
func (c *Constants) Lookup(name string) (string, error) {
	if c != nil {
		if constant, ok := c.byName[name]; ok {
			return constant.Pattern, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownConstant, name)
}

// List returns all constants sorted by name.
func (c *Constants) List() []Constant {
	if c == nil {
		return nil
	}
	out := make([]Constant, 0, len(c.byName))
	for _, constant := range c.byName {
		out = append(out, constant)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
