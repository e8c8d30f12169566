// Package invoke provides the external collaborators used during evaluation:
// policy loading, model calls and shell commands.
package invoke

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/MEKXH/warden/internal/config"
	"github.com/MEKXH/warden/internal/policy"
	"github.com/MEKXH/warden/internal/provider"
)

const (
	BackendCLI = "cli"
	BackendAPI = "api"
)

// waitDelay bounds how long output is drained after a timed-out process is killed.
const waitDelay = 2 * time.Second

// ModelFactory builds a chat model for a resolved model id.
type ModelFactory func(ctx context.Context, modelID string) (model.BaseChatModel, error)

// Options configures a Runtime.
type Options struct {
	Backend    string
	CLICommand string
	CLIArgs    []string

	// ResolveModel maps aliases to model ids. Nil leaves names unchanged.
	ResolveModel func(string) string
	NewModel     ModelFactory

	ClassifierTimeout time.Duration
	RewriteTimeout    time.Duration
	CommandTimeout    time.Duration
}

// Runtime implements the engine's collaborators.
type Runtime struct {
	loader policy.Loader
	opts   Options

	mu     sync.Mutex
	models map[string]model.BaseChatModel
}

// New creates a runtime over loader.
func New(loader policy.Loader, opts Options) *Runtime {
	if opts.Backend == "" {
		opts.Backend = BackendCLI
	}
	if opts.CLICommand == "" {
		opts.CLICommand = "claude"
	}
	return &Runtime{loader: loader, opts: opts, models: make(map[string]model.BaseChatModel)}
}

// NewFromConfig builds a runtime with the schema-validating file loader and
// the configured model backend.
func NewFromConfig(cfg *config.Config) (*Runtime, error) {
	loader, err := policy.NewFileLoader()
	if err != nil {
		return nil, err
	}
	return New(loader, Options{
		Backend:      cfg.Model.Backend,
		CLICommand:   cfg.Model.CLI.Command,
		CLIArgs:      cfg.Model.CLI.Args,
		ResolveModel: cfg.ResolveModel,
		NewModel: func(ctx context.Context, modelID string) (model.BaseChatModel, error) {
			return provider.NewChatModel(ctx, cfg, modelID)
		},
		ClassifierTimeout: cfg.ClassifierTimeout(),
		RewriteTimeout:    cfg.RewriteTimeout(),
		CommandTimeout:    cfg.InjectTimeout(),
	}), nil
}

func (r *Runtime) LoadPolicies(path string) ([]policy.Policy, error) {
	if r.loader == nil {
		return nil, errors.New("no policy loader configured")
	}
	return r.loader.LoadPolicies(path)
}

// Classify runs a yes/no judgment prompt under the classifier timeout.
func (r *Runtime) Classify(ctx context.Context, prompt, modelName string) (string, error) {
	return r.complete(ctx, prompt, modelName, r.opts.ClassifierTimeout)
}

// Rewrite runs a rewrite prompt under the rewrite timeout.
func (r *Runtime) Rewrite(ctx context.Context, prompt, modelName string) (string, error) {
	return r.complete(ctx, prompt, modelName, r.opts.RewriteTimeout)
}

func (r *Runtime) complete(ctx context.Context, prompt, modelName string, timeout time.Duration) (string, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	modelID := strings.TrimSpace(modelName)
	if r.opts.ResolveModel != nil {
		modelID = r.opts.ResolveModel(modelID)
	}

	var (
		out string
		err error
	)
	switch r.opts.Backend {
	case BackendCLI:
		out, err = r.completeCLI(ctx, prompt, modelID)
	case BackendAPI:
		out, err = r.completeAPI(ctx, prompt, modelID)
	default:
		err = fmt.Errorf("unknown model backend %q", r.opts.Backend)
	}
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("model %s timed out after %s: %w", modelID, timeout, err)
		}
		return "", err
	}
	return trimTrailingNewline(out), nil
}

func (r *Runtime) completeCLI(ctx context.Context, prompt, modelID string) (string, error) {
	args := append([]string(nil), r.opts.CLIArgs...)
	if modelID != "" {
		args = append(args, "--model", modelID)
	}
	cmd := exec.CommandContext(ctx, r.opts.CLICommand, args...)
	cmd.Stdin = strings.NewReader(prompt)
	cmd.WaitDelay = waitDelay

	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", commandError(r.opts.CLICommand, err, stderr.String())
	}
	return stdout.String(), nil
}

func (r *Runtime) completeAPI(ctx context.Context, prompt, modelID string) (string, error) {
	m, err := r.chatModel(ctx, modelID)
	if err != nil {
		return "", err
	}
	msg, err := m.Generate(ctx, []*schema.Message{{Role: schema.User, Content: prompt}})
	if err != nil {
		return "", fmt.Errorf("model %s: %w", modelID, err)
	}
	if msg == nil {
		return "", fmt.Errorf("model %s returned no message", modelID)
	}
	return msg.Content, nil
}

func (r *Runtime) chatModel(ctx context.Context, modelID string) (model.BaseChatModel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.models[modelID]; ok {
		return m, nil
	}
	if r.opts.NewModel == nil {
		return nil, errors.New("no model factory configured for api backend")
	}
	m, err := r.opts.NewModel(ctx, modelID)
	if err != nil {
		return nil, fmt.Errorf("create model %s: %w", modelID, err)
	}
	r.models[modelID] = m
	return m, nil
}

// RunCommand runs command through the platform shell in dir, feeding stdin.
// A non-zero exit status is an error carrying the command's stderr.
func (r *Runtime) RunCommand(ctx context.Context, command, dir, stdin string) (string, error) {
	if r.opts.CommandTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.CommandTimeout)
		defer cancel()
	}

	var cmd *exec.Cmd
	if runtime.GOOS == "windows" {
		cmd = exec.CommandContext(ctx, "cmd", "/C", command)
	} else {
		cmd = exec.CommandContext(ctx, "sh", "-c", command)
	}
	if dir != "" {
		cmd.Dir = dir
	}
	cmd.Stdin = strings.NewReader(stdin)
	cmd.WaitDelay = waitDelay

	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("command timed out after %s: %w", r.opts.CommandTimeout, err)
		}
		return "", commandError(command, err, stderr.String())
	}
	return stdout.String(), nil
}

func commandError(name string, err error, stderr string) error {
	stderr = strings.TrimSpace(stderr)
	if stderr == "" {
		return fmt.Errorf("%s: %w", name, err)
	}
	return fmt.Errorf("%s: %w: %s", name, err, stderr)
}

func trimTrailingNewline(s string) string {
	s = strings.TrimSuffix(s, "\n")
	return strings.TrimSuffix(s, "\r")
}
