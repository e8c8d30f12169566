package commands

import (
	"context"
	"log/slog"

	"github.com/MEKXH/warden/internal/config"
	"github.com/spf13/cobra"
)

var logLevelOverride string

// loadConfig is swapped in tests.
var loadConfig = config.Load

type configKey struct{}

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "warden",
		Short: "Warden - policy engine for coding agent hooks",
		Long: `Warden evaluates coding agent hook events against layered policy files
and answers with a single decision: deny, rewrite the tool input, add context, or allow.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			switch cmd.Name() {
			case "init", "version":
				cfg := config.DefaultConfig()
				setCommandConfig(cmd, cfg)
				return configureLogger(cfg, logLevelOverride)
			case "hook":
				// A broken config must never block the agent.
				cfg, err := loadConfig()
				if err != nil {
					cfg = config.DefaultConfig()
				}
				setCommandConfig(cmd, cfg)
				if lerr := configureLogger(cfg, logLevelOverride); lerr != nil {
					_ = configureLogger(config.DefaultConfig(), "")
				}
				if err != nil {
					slog.Warn("config load failed, using defaults", "path", config.ConfigPath(), "error", err)
				}
				return nil
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			setCommandConfig(cmd, cfg)
			return configureLogger(cfg, logLevelOverride)
		},
	}

	cmd.PersistentFlags().StringVar(&logLevelOverride, "log-level", "", "Override log level (debug|info|warn|error)")

	cmd.AddCommand(
		NewHookCmd(),
		NewPolicyCmd(),
		NewInitCmd(),
		NewVersionCmd(),
	)

	return cmd
}

func setCommandConfig(cmd *cobra.Command, cfg *config.Config) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cmd.SetContext(context.WithValue(ctx, configKey{}, cfg))
}

// commandConfig returns the config loaded by the root command, loading it
// when the command runs without one (as in direct calls from tests).
func commandConfig(cmd *cobra.Command) (*config.Config, error) {
	if cmd != nil && cmd.Context() != nil {
		if cfg, ok := cmd.Context().Value(configKey{}).(*config.Config); ok {
			return cfg, nil
		}
	}
	return loadConfig()
}
