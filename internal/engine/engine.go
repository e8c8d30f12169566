// Package engine evaluates hook events against the policies in scope and
// produces a single decision. Evaluation fails open: internal failures are
// reported as warnings and the action is allowed.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"

	"github.com/MEKXH/warden/internal/classify"
	"github.com/MEKXH/warden/internal/hook"
	"github.com/MEKXH/warden/internal/match"
	"github.com/MEKXH/warden/internal/policy"
)

// Collaborators is everything evaluation needs from the outside world.
type Collaborators interface {
	policy.Loader
	Rewriter
	classify.Invoker
	CommandRunner
}

// Options configures an Engine. Zero values use defaults.
type Options struct {
	Resolver        policy.ResolverOptions
	ClassifierModel string
	RewriteModel    string
	SurfaceWarnings bool
	Constants       *match.Constants
	Fields          *match.Fields
	Logger          *slog.Logger
}

// Engine evaluates events. It holds no per-event state and is safe for
// concurrent use when its collaborators are.
type Engine struct {
	resolver        *policy.Resolver
	matcher         *match.Matcher
	gate            *classify.Gate
	transforms      *TransformExecutor
	injects         *InjectExecutor
	surfaceWarnings bool
	logger          *slog.Logger
}

func New(c Collaborators, opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	matcher := match.NewMatcher(opts.Constants, opts.Fields)
	return &Engine{
		resolver:        policy.NewResolver(c, opts.Resolver),
		matcher:         matcher,
		gate:            classify.NewGate(c, opts.ClassifierModel),
		transforms:      NewTransformExecutor(c, matcher, opts.RewriteModel),
		injects:         NewInjectExecutor(c),
		surfaceWarnings: opts.SurfaceWarnings,
		logger:          logger,
	}
}

// Evaluate returns the decision for ev. It never fails; an empty decision
// means allow with nothing to add.
func (e *Engine) Evaluate(ctx context.Context, ev hook.Event) (d hook.Decision) {
	logger := e.logger.With("run", uuid.NewString(), "event", string(ev.Kind))
	rep := NewReporter(logger)
	defer func() {
		if rec := recover(); rec != nil {
			rep.Warn("policy evaluation aborted", "panic", fmt.Sprint(rec))
			d = rep.Finish(hook.Decision{}, e.surfaceWarnings)
		}
	}()

	start := ev.Cwd
	if start == "" {
		wd, err := os.Getwd()
		if err != nil {
			rep.Warn("cannot determine working directory", "error", err)
			return rep.Finish(hook.Decision{}, e.surfaceWarnings)
		}
		start = wd
	}

	sources := e.resolver.Resolve(start)
	logger.Debug("policy sources resolved", "start", start, "count", len(sources))
	if len(sources) == 0 {
		return hook.Decision{}
	}

	matched := e.Match(sources, ev, rep)
	plan := Aggregate(matched, func(p policy.Policy) bool {
		fire, err := e.gate.ShouldFire(ctx, p, ev)
		if err != nil {
			rep.Warn("classifier failed; policy skipped", "policy", p.Name, "error", err)
			return false
		}
		return fire
	})

	if plan.Deny != nil {
		logger.Info("policy denied action", "policy", plan.Deny.Name, "tool", ev.ToolName)
		return rep.Finish(denyDecision(*plan.Deny), e.surfaceWarnings)
	}

	var out hook.Decision
	if updated, ok := e.transforms.Execute(ctx, ev, plan.Transforms, rep); ok {
		out.UpdatedInput = updated
		logger.Info("policy rewrote tool input", "policies", policyNames(plan.Transforms))
	}
	if len(plan.Injects) > 0 {
		out.Context = e.injects.Execute(ctx, ev, plan.Injects, rep)
		logger.Info("policy injected context", "policies", policyNames(plan.Injects), "blocks", len(out.Context))
	}
	return rep.Finish(out, e.surfaceWarnings)
}

// Match returns the policies from sources whose tool and content conditions
// hold for ev, in source order. Load failures and invalid patterns are
// reported and excluded.
func (e *Engine) Match(sources []policy.Source, ev hook.Event, rep *Reporter) []policy.Policy {
	var matched []policy.Policy
	for _, src := range sources {
		if src.LoadErr != nil {
			rep.Warn("policy source skipped", "source", src.Path, "error", src.LoadErr)
			continue
		}
		for _, p := range src.Policies {
			ok, err := e.matcher.Match(p, ev)
			if err != nil {
				rep.Warn("policy skipped", "policy", p.Name, "source", src.Path, "error", err)
				continue
			}
			if ok {
				matched = append(matched, p)
			}
		}
	}
	return matched
}
