package commands

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/MEKXH/warden/internal/config"
	"github.com/MEKXH/warden/internal/engine"
	"github.com/MEKXH/warden/internal/hook"
	"github.com/MEKXH/warden/internal/invoke"
	"github.com/MEKXH/warden/internal/policy"
	"github.com/spf13/cobra"
)

// NewHookCmd creates the hook command
func NewHookCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hook",
		Short: "Evaluate one hook event from stdin and print the decision",
		Long: `Reads a hook event as JSON on stdin and writes the decision as JSON on stdout.
Nothing is written when the action is allowed unchanged. The exit status is always 0.`,
		Args: cobra.NoArgs,
		RunE: runHook,
	}
}

func runHook(cmd *cobra.Command, args []string) error {
	cfg, err := commandConfig(cmd)
	if err != nil {
		cfg = config.DefaultConfig()
	}
	evaluateHook(cmd.Context(), cfg, cmd.InOrStdin(), cmd.OutOrStdout())
	return nil
}

// evaluateHook never fails: every problem is logged and the action allowed.
func evaluateHook(ctx context.Context, cfg *config.Config, in io.Reader, out io.Writer) {
	if ctx == nil {
		ctx = context.Background()
	}
	ev, err := hook.ParseEvent(in)
	if err != nil {
		slog.Warn("ignoring malformed hook event", "error", err)
		return
	}

	rt, err := invoke.NewFromConfig(cfg)
	if err != nil {
		slog.Error("policy runtime unavailable, allowing action", "error", err)
		return
	}

	d := engine.New(rt, engineOptions(cfg)).Evaluate(ctx, ev)
	if err := hook.Write(out, ev.Kind, d); err != nil {
		slog.Error("failed to write hook decision", "error", err)
	}
}

func engineOptions(cfg *config.Config) engine.Options {
	return engine.Options{
		Resolver:        resolverOptions(cfg),
		ClassifierModel: cfg.Classifier.Model,
		RewriteModel:    cfg.Rewrite.Model,
		SurfaceWarnings: cfg.Output.SurfaceWarnings,
		Logger:          slog.Default(),
	}
}

func resolverOptions(cfg *config.Config) policy.ResolverOptions {
	opts := policy.ResolverOptions{
		DirName:   cfg.Sources.DirName,
		FileName:  cfg.Sources.FileName,
		SystemDir: cfg.Sources.SystemDir,
	}
	if cfg.Sources.IncludeHome {
		if home, err := os.UserHomeDir(); err == nil {
			opts.HomeDir = home
		}
	}
	return opts
}
