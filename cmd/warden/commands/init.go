package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/MEKXH/warden/internal/config"
	"github.com/spf13/cobra"
)

const samplePolicies = `# Warden policies. Broader directories are evaluated first.
policies:
  - name: no-force-push
    event: PreToolUse
    tool: Bash
    match: {constant: git_force_push}
    gate:
      message: Force pushes are not allowed in this repository.

  - name: protect-env
    event: PreToolUse
    tool: Write|Edit|MultiEdit
    file: .env
    gate:
      message: Secrets live in .env; edit it by hand.

  - name: house-rules
    event: UserPromptSubmit
    inject:
      context: RULES.md
`

func NewInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the Warden config and a sample policy file",
		RunE:  runInit,
	}
	cmd.Flags().String("dir", ".", "Directory to receive the sample policy file")
	return cmd
}

func runInit(cmd *cobra.Command, args []string) error {
	dir := "."
	if cmd != nil {
		dir, _ = cmd.Flags().GetString("dir")
	}
	return initWorkspace(dir)
}

func initWorkspace(dir string) error {
	configPath := config.ConfigPath()
	cfg := config.DefaultConfig()

	if _, err := os.Stat(configPath); err == nil {
		fmt.Printf("Config already exists: %s\n", configPath)
	} else {
		if err := config.Save(cfg); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}
		fmt.Printf("Config: %s\n", configPath)
	}

	absDir, err := filepath.Abs(dir)
	if err != nil {
		return err
	}
	policyPath := filepath.Join(absDir, cfg.Sources.DirName, cfg.Sources.FileName)
	if _, err := os.Stat(policyPath); err == nil {
		fmt.Printf("Policies already exist: %s\n", policyPath)
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(policyPath), 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", filepath.Dir(policyPath), err)
	}
	if err := os.WriteFile(policyPath, []byte(samplePolicies), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", policyPath, err)
	}

	fmt.Printf("Policies: %s\n", policyPath)
	fmt.Printf("\nNext steps:\n")
	fmt.Printf("1. Edit %s to describe your policies\n", policyPath)
	fmt.Printf("2. Run 'warden policy lint' to validate them\n")
	fmt.Printf("3. Register 'warden hook' for PreToolUse, PostToolUse and UserPromptSubmit in your agent's hook settings\n")
	return nil
}
