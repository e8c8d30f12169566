package engine

import (
	"fmt"
	"sort"

	"github.com/MEKXH/warden/internal/hook"
	"github.com/MEKXH/warden/internal/policy"
)

// Plan is the outcome of aggregation: either a denying gate, or the
// transforms and injects that fire together.
type Plan struct {
	Deny       *policy.Policy
	Transforms []policy.Policy
	Injects    []policy.Policy
}

// IsEmpty reports whether nothing fires.
func (p Plan) IsEmpty() bool {
	return p.Deny == nil && len(p.Transforms) == 0 && len(p.Injects) == 0
}

// DenyReason is the configured gate message or a default naming the policy.
func DenyReason(p policy.Policy) string {
	if p.Gate != nil && p.Gate.Message != "" {
		return p.Gate.Message
	}
	return fmt.Sprintf("blocked by policy: %s", p.Name)
}

// Aggregate orders matched policies broadest scope first, then by declaration,
// and decides what fires. fire is the classifier gate; it is consulted lazily,
// so once a gate fires no other policy is classified.
func Aggregate(matched []policy.Policy, fire func(policy.Policy) bool) Plan {
	ordered := append([]policy.Policy(nil), matched...)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Rank != ordered[j].Rank {
			return ordered[i].Rank < ordered[j].Rank
		}
		return ordered[i].Index < ordered[j].Index
	})

	for i := range ordered {
		if ordered[i].Action != policy.ActionGate {
			continue
		}
		if fire(ordered[i]) {
			deny := ordered[i]
			return Plan{Deny: &deny}
		}
	}

	var plan Plan
	for _, p := range ordered {
		switch p.Action {
		case policy.ActionTransform:
			if p.Transform != nil && fire(p) {
				plan.Transforms = append(plan.Transforms, p)
			}
		case policy.ActionInject:
			if p.Inject != nil && fire(p) {
				plan.Injects = append(plan.Injects, p)
			}
		}
	}
	return plan
}

// denyDecision is the terminal decision for a firing gate.
func denyDecision(p policy.Policy) hook.Decision {
	return hook.Decision{Denied: true, Reason: DenyReason(p)}
}
