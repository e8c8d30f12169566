package engine

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/MEKXH/warden/internal/hook"
)

// WarningsTag wraps warnings surfaced to the agent.
const WarningsTag = "policy-warnings"

// Reporter collects fail-open diagnostics for one evaluation. Every warning
// is logged for the operator and kept for the decision.
type Reporter struct {
	logger   *slog.Logger
	warnings []string
}

// NewReporter creates a reporter logging to logger (slog.Default when nil).
func NewReporter(logger *slog.Logger) *Reporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reporter{logger: logger}
}

// Warn records a warning. args are slog key/value pairs.
func (r *Reporter) Warn(msg string, args ...any) {
	r.logger.Warn(msg, args...)
	r.warnings = append(r.warnings, formatWarning(msg, args...))
}

// Warnings returns the recorded warnings in order.
func (r *Reporter) Warnings() []string {
	return append([]string(nil), r.warnings...)
}

// Finish attaches warnings to the decision. When surface is set and the
// decision is not a denial, warnings are also rendered as a tagged context
// block for the agent.
func (r *Reporter) Finish(d hook.Decision, surface bool) hook.Decision {
	d.Warnings = r.Warnings()
	if surface && !d.Denied && len(d.Warnings) > 0 {
		d.Context = append(d.Context, warningsBlock(d.Warnings))
	}
	return d
}

func warningsBlock(warnings []string) string {
	var sb strings.Builder
	sb.WriteString("<" + WarningsTag + ">\n")
	sb.WriteString("Some policies could not be evaluated; the action was allowed.\n")
	for _, w := range warnings {
		sb.WriteString("- ")
		sb.WriteString(w)
		sb.WriteString("\n")
	}
	sb.WriteString("</" + WarningsTag + ">")
	return sb.String()
}

func formatWarning(msg string, args ...any) string {
	if len(args) == 0 {
		return msg
	}
	parts := make([]string, 0, (len(args)+1)/2)
	for i := 0; i < len(args); i += 2 {
		if i+1 >= len(args) {
			parts = append(parts, fmt.Sprintf("%v", args[i]))
			break
		}
		parts = append(parts, fmt.Sprintf("%v=%v", args[i], args[i+1]))
	}
	return msg + " (" + strings.Join(parts, ", ") + ")"
}
