package rule

import (
	"math/rand/v2"
	"time"
)

// ConditionKind identifies a Condition variant. Conditions are modeled as
// a closed tagged union rather than an interface hierarchy: Evaluate
// switches on Kind instead of dispatching through a vtable, since the set
// of variants is fixed by the grammar.
type ConditionKind int

// Condition variants accepted by the grammar.
const (
	ConditionTrue ConditionKind = iota
	ConditionFalse
	ConditionAllowedMatches
	ConditionRuleApplied
	ConditionRuleAppliedWithin
	ConditionRuleEvaluated
	ConditionRuleEvaluatedWithin
	ConditionRandom
	ConditionRandomWithProbability
)

// Condition is a runtime predicate evaluated once per match attempt.
// Conditions carrying a duration or probability argument store it in
// Window/Probability; conditions carrying a sub-rule specification
// (allowed-matches) store it in Spec. Negated reports whether the
// condition's result should be inverted.
type Condition struct {
	Kind        ConditionKind
	Negated     bool
	Window      time.Duration
	Probability float64
	Spec        *Rule
}

// EvalContext supplies the runtime state a Condition needs to evaluate
// beyond its owning rule (which Evaluate takes as a separate argument):
// the current time and the policy to search (for allowed-matches).
// policy.Policy implements it; tests can supply a minimal fake.
type EvalContext interface {
	// Now returns the current time, overridable in tests.
	Now() time.Time
	// MatchesAllowRule reports whether some allow-targeted rule in the
	// policy matches the given sub-rule spec.
	MatchesAllowRule(spec *Rule) bool
}

// Evaluate computes the condition's boolean result against owner, the
// Rule the condition clause is attached to, using ctx for time and policy
// lookups. The result is inverted if Negated is set.
func (c Condition) Evaluate(owner *Rule, ctx EvalContext) bool {
	var result bool
	switch c.Kind {
	case ConditionTrue:
		result = true
	case ConditionFalse:
		result = false
	case ConditionAllowedMatches:
		result = ctx.MatchesAllowRule(c.Spec)
	case ConditionRuleApplied:
		result = !owner.LastApplied().IsZero()
	case ConditionRuleAppliedWithin:
		last := owner.LastApplied()
		result = !last.IsZero() && ctx.Now().Sub(last) <= c.Window
	case ConditionRuleEvaluated:
		result = !owner.LastEvaluated().IsZero()
	case ConditionRuleEvaluatedWithin:
		last := owner.LastEvaluated()
		result = !last.IsZero() && ctx.Now().Sub(last) <= c.Window
	case ConditionRandom:
		result = rand.Float64() < 0.5
	case ConditionRandomWithProbability:
		result = rand.Float64() < c.Probability
	}
	if c.Negated {
		return !result
	}
	return result
}

// Name returns the grammar keyword for the condition's kind, without the
// leading "!" or parenthesized argument.
func (c Condition) Name() string {
	switch c.Kind {
	case ConditionTrue:
		return "true"
	case ConditionFalse:
		return "false"
	case ConditionAllowedMatches:
		return "allowed-matches"
	case ConditionRuleApplied, ConditionRuleAppliedWithin:
		return "rule-applied"
	case ConditionRuleEvaluated, ConditionRuleEvaluatedWithin:
		return "rule-evaluated"
	case ConditionRandom, ConditionRandomWithProbability:
		return "random"
	default:
		return "unknown"
	}
}
