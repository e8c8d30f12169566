package engine

import (
	"context"
	"strings"

	"github.com/MEKXH/warden/internal/hook"
	"github.com/MEKXH/warden/internal/policy"
)

// CommandRunner runs a shell command in dir with stdin and returns its stdout.
// A non-zero exit is an error.
type CommandRunner interface {
	RunCommand(ctx context.Context, command, dir, stdin string) (string, error)
}

// InjectExecutor gathers context blocks from firing inject policies.
type InjectExecutor struct {
	runner CommandRunner
}

func NewInjectExecutor(runner CommandRunner) *InjectExecutor {
	return &InjectExecutor{runner: runner}
}

// Execute returns context blocks in policy order. File blocks precede the
// command output of the same policy. Failures are reported and skipped.
func (x *InjectExecutor) Execute(ctx context.Context, ev hook.Event, injects []policy.Policy, rep *Reporter) []string {
	set := newContextSet()
	commands := map[string]bool{}
	var blocks []string

	for _, p := range injects {
		in := p.Inject
		blocks = append(blocks, set.readFiles(p.Root, in.Context, p.Name, rep)...)

		cmd := strings.TrimSpace(in.Command)
		if cmd == "" {
			continue
		}
		key := p.Root + "\x00" + cmd
		if commands[key] {
			continue
		}
		commands[key] = true

		if x.runner == nil {
			rep.Warn("inject command skipped", "policy", p.Name, "error", "no command runner configured")
			continue
		}
		out, err := x.runner.RunCommand(ctx, cmd, p.Root, ev.Payload())
		if err != nil {
			rep.Warn("inject command failed", "policy", p.Name, "command", cmd, "error", err)
			continue
		}
		out = strings.TrimRight(out, "\r\n")
		if strings.TrimSpace(out) == "" {
			continue
		}
		blocks = set.addBlock(blocks, out)
	}
	return blocks
}
