package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MEKXH/warden/internal/policy"
)

func gatePolicy(name string, rank, index int) policy.Policy {
	return policy.Policy{Name: name, Action: policy.ActionGate, Gate: &policy.Gate{}, Rank: rank, Index: index}
}

func injectPolicy(name string, rank, index int) policy.Policy {
	return policy.Policy{Name: name, Action: policy.ActionInject, Inject: &policy.Inject{}, Rank: rank, Index: index}
}

func transformPolicy(name string, rank, index int) policy.Policy {
	return policy.Policy{Name: name, Action: policy.ActionTransform, Transform: &policy.Transform{Prompt: "x"}, Rank: rank, Index: index}
}

func always(policy.Policy) bool { return true }

func TestAggregate_BroadestGateWins(t *testing.T) {
	plan := Aggregate([]policy.Policy{
		gatePolicy("inner", 2, 0),
		injectPolicy("notes", 0, 1),
		gatePolicy("outer", 0, 0),
	}, always)

	require.NotNil(t, plan.Deny)
	assert.Equal(t, "outer", plan.Deny.Name)
	assert.Empty(t, plan.Transforms)
	assert.Empty(t, plan.Injects)
}

func TestAggregate_OrdersByScopeThenDeclaration(t *testing.T) {
	plan := Aggregate([]policy.Policy{
		injectPolicy("c", 1, 0),
		transformPolicy("t2", 1, 1),
		injectPolicy("b", 0, 1),
		transformPolicy("t1", 0, 0),
		injectPolicy("a", 0, 0),
	}, always)

	assert.Nil(t, plan.Deny)
	assert.Equal(t, []string{"t1", "t2"}, names(plan.Transforms))
	assert.Equal(t, []string{"a", "b", "c"}, names(plan.Injects))
}

func TestAggregate_StopsClassifyingAfterGate(t *testing.T) {
	var asked []string
	fire := func(p policy.Policy) bool {
		asked = append(asked, p.Name)
		return p.Name == "g2"
	}
	plan := Aggregate([]policy.Policy{
		gatePolicy("g1", 0, 0),
		gatePolicy("g2", 0, 1),
		gatePolicy("g3", 0, 2),
		injectPolicy("i", 0, 3),
	}, fire)

	require.NotNil(t, plan.Deny)
	assert.Equal(t, "g2", plan.Deny.Name)
	assert.Equal(t, []string{"g1", "g2"}, asked)
}

func TestAggregate_IdempotentAndPure(t *testing.T) {
	in := []policy.Policy{injectPolicy("b", 1, 0), transformPolicy("a", 0, 0)}
	first := Aggregate(in, always)
	second := Aggregate(in, always)
	assert.Equal(t, first, second)
	assert.Equal(t, "b", in[0].Name, "input order must not change")
	assert.True(t, Aggregate(nil, always).IsEmpty())
}

func TestDenyReason(t *testing.T) {
	assert.Equal(t, "blocked by policy: p", DenyReason(policy.Policy{Name: "p", Gate: &policy.Gate{}}))
	assert.Equal(t, "nope", DenyReason(policy.Policy{Name: "p", Gate: &policy.Gate{Message: "nope"}}))
}

func names(ps []policy.Policy) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = p.Name
	}
	return out
}
