package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/MEKXH/warden/internal/config"
	"github.com/MEKXH/warden/internal/hook"
	"github.com/MEKXH/warden/internal/match"
	"github.com/MEKXH/warden/internal/policy"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

func NewPolicyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policy",
		Short: "Inspect and validate policy files",
	}

	cmd.AddCommand(
		newPolicyListCmd(),
		newPolicyLintCmd(),
		newPolicyConstantsCmd(),
	)

	return cmd
}

func newPolicyListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list [dir]",
		Short: "List the policies in scope for a directory, broadest first",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runPolicyList,
	}
}

func newPolicyLintCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lint [file...]",
		Short: "Validate policy files (defaults to the files in scope for the current directory)",
		RunE:  runPolicyLint,
	}
}

func newPolicyConstantsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "constants",
		Short: "List the named match constants",
		Args:  cobra.NoArgs,
		RunE:  runPolicyConstants,
	}
}

func resolveSources(cfg *config.Config, dir string) ([]policy.Source, error) {
	loader, err := policy.NewFileLoader()
	if err != nil {
		return nil, err
	}
	return policy.NewResolver(loader, resolverOptions(cfg)).Resolve(dir), nil
}

func startDir(args []string) (string, error) {
	if len(args) > 0 {
		return filepath.Abs(args[0])
	}
	return os.Getwd()
}

func runPolicyList(cmd *cobra.Command, args []string) error {
	cfg, err := commandConfig(cmd)
	if err != nil {
		return err
	}
	dir, err := startDir(args)
	if err != nil {
		return err
	}
	sources, err := resolveSources(cfg, dir)
	if err != nil {
		return err
	}
	if len(sources) == 0 {
		fmt.Printf("No policy files in scope for %s.\n", dir)
		return nil
	}

	var (
		headerStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("#FAFAFA")).
				Background(lipgloss.Color("#8E4EC6")).
				Padding(0, 1)

		wName   = 24
		wEvent  = 18
		wTool   = 14
		wMatch  = 28
		wAction = 10

		colHeaderStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#8E4EC6")).
				Bold(true).
				MarginRight(1)

		cellStyle   = lipgloss.NewStyle().MarginRight(1)
		pathStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
		errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#D7263D"))
		actionColor = map[policy.Action]lipgloss.Color{
			policy.ActionGate:      lipgloss.Color("#D7263D"),
			policy.ActionTransform: lipgloss.Color("#F4A259"),
			policy.ActionInject:    lipgloss.Color("#2E8B57"),
		}
	)

	headers := lipgloss.JoinHorizontal(lipgloss.Top,
		colHeaderStyle.Width(wName).Render("NAME"),
		colHeaderStyle.Width(wEvent).Render("EVENT"),
		colHeaderStyle.Width(wTool).Render("TOOL"),
		colHeaderStyle.Width(wMatch).Render("MATCH"),
		colHeaderStyle.Width(wAction).Render("ACTION"),
	)

	for _, src := range sources {
		fmt.Println(headerStyle.Render("Scope " + strconv.Itoa(src.Rank)))
		fmt.Println(pathStyle.Render(src.Path))
		if src.LoadErr != nil {
			fmt.Println(errorStyle.Render("  error: " + src.LoadErr.Error()))
			fmt.Println()
			continue
		}
		if len(src.Policies) == 0 {
			fmt.Println("  (no policies)")
			fmt.Println()
			continue
		}
		fmt.Printf("  %s\n", headers)
		for _, p := range src.Policies {
			action := string(p.Action)
			if p.Classifier != nil {
				action += "?"
			}
			row := lipgloss.JoinHorizontal(lipgloss.Top,
				cellStyle.Width(wName).Render(truncate(p.Name, wName)),
				cellStyle.Width(wEvent).Render(orAny(string(p.Event))),
				cellStyle.Width(wTool).Render(truncate(orAny(p.Tool), wTool)),
				cellStyle.Width(wMatch).Render(truncate(describeMatcher(p), wMatch)),
				cellStyle.Width(wAction).Foreground(actionColor[p.Action]).Render(action),
			)
			fmt.Printf("  %s\n", row)
		}
		fmt.Println()
	}
	return nil
}

func runPolicyLint(cmd *cobra.Command, args []string) error {
	files := args
	if len(files) == 0 {
		cfg, err := commandConfig(cmd)
		if err != nil {
			return err
		}
		dir, err := os.Getwd()
		if err != nil {
			return err
		}
		sources, err := resolveSources(cfg, dir)
		if err != nil {
			return err
		}
		for _, src := range sources {
			files = append(files, src.Path)
		}
		if len(files) == 0 {
			fmt.Println("No policy files in scope.")
			return nil
		}
	}

	loader, err := policy.NewFileLoader()
	if err != nil {
		return err
	}
	matcher := match.NewMatcher(nil, nil)

	failed := 0
	for _, path := range files {
		problems, warnings := lintFile(loader, matcher, path)
		switch {
		case len(problems) > 0:
			failed++
			fmt.Printf("FAIL  %s\n", path)
		case len(warnings) > 0:
			fmt.Printf("warn  %s\n", path)
		default:
			fmt.Printf("ok    %s\n", path)
		}
		for _, p := range problems {
			fmt.Printf("      %s\n", p)
		}
		for _, w := range warnings {
			fmt.Printf("      warning: %s\n", w)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d policy files failed validation", failed, len(files))
	}
	return nil
}

// lintFile returns problems that fail validation and warnings that do not.
func lintFile(loader *policy.FileLoader, matcher *match.Matcher, path string) (problems, warnings []string) {
	policies, err := loader.LoadPolicies(path)
	if err != nil {
		return []string{err.Error()}, nil
	}
	for _, p := range policies {
		if _, _, err := matcher.Compile(p); err != nil {
			problems = append(problems, err.Error())
		}
		if p.Event != "" && !knownEvent(p.Event) {
			warnings = append(warnings, fmt.Sprintf("policy %q: unknown event %s never matches", p.Name, p.Event))
			continue
		}
		if p.Transform != nil && p.Event != "" && !p.Event.IsToolEvent() {
			problems = append(problems, fmt.Sprintf("policy %q: transform has no tool input on %s events", p.Name, p.Event))
		}
	}
	return problems, warnings
}

func knownEvent(k hook.Kind) bool {
	for _, known := range hook.KnownKinds() {
		if k == known {
			return true
		}
	}
	return false
}

func runPolicyConstants(cmd *cobra.Command, args []string) error {
	nameStyle := lipgloss.NewStyle().Bold(true).Width(20).MarginRight(1)
	for _, c := range match.DefaultConstants().List() {
		fmt.Printf("%s%s\n", nameStyle.Render(c.Name), c.Description)
	}
	return nil
}

func describeMatcher(p policy.Policy) string {
	switch p.Match.Kind {
	case policy.MatchNone:
		return "*"
	case policy.MatchConstant:
		return "constant:" + p.Match.Value
	case policy.MatchFileLiteral:
		return "file:" + p.Match.Value
	case policy.MatchFileRegex:
		return "file~" + p.Match.Value
	default:
		if p.Field != "" {
			return p.Field + "~" + p.Match.Value
		}
		return "~" + p.Match.Value
	}
}

func orAny(s string) string {
	if strings.TrimSpace(s) == "" {
		return "*"
	}
	return s
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}
