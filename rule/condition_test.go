package rule

import (
	"testing"
	"time"
)

type fakeEvalContext struct {
	now     time.Time
	allowed bool
}

func (f fakeEvalContext) Now() time.Time                   { return f.now }
func (f fakeEvalContext) MatchesAllowRule(spec *Rule) bool { return f.allowed }

func TestConditionTrueFalse(t *testing.T) {
	ctx := fakeEvalContext{now: time.Now()}
	owner := NewRule(TargetAllow)

	if !(Condition{Kind: ConditionTrue}).Evaluate(owner, ctx) {
		t.Error("true condition should evaluate true")
	}
	if (Condition{Kind: ConditionFalse}).Evaluate(owner, ctx) {
		t.Error("false condition should evaluate false")
	}
	if !(Condition{Kind: ConditionFalse, Negated: true}).Evaluate(owner, ctx) {
		t.Error("negated false condition should evaluate true")
	}
}

func TestConditionRuleAppliedWithin(t *testing.T) {
	now := time.Now()
	ctx := fakeEvalContext{now: now}
	owner := NewRule(TargetAllow)

	c := Condition{Kind: ConditionRuleAppliedWithin, Window: time.Minute}
	if c.Evaluate(owner, ctx) {
		t.Error("never-applied rule should not satisfy rule-applied(within)")
	}

	owner.MarkApplied(now.Add(-30 * time.Second))
	if !c.Evaluate(owner, ctx) {
		t.Error("recently applied rule should satisfy the window")
	}

	owner.MarkApplied(now.Add(-2 * time.Minute))
	if c.Evaluate(owner, ctx) {
		t.Error("stale application should not satisfy the window")
	}
}

func TestConditionAllowedMatches(t *testing.T) {
	owner := NewRule(TargetAllow)
	spec := NewRule(TargetAllow)

	ctxTrue := fakeEvalContext{allowed: true}
	ctxFalse := fakeEvalContext{allowed: false}

	c := Condition{Kind: ConditionAllowedMatches, Spec: spec}
	if !c.Evaluate(owner, ctxTrue) {
		t.Error("expected allowed-matches true")
	}
	if c.Evaluate(owner, ctxFalse) {
		t.Error("expected allowed-matches false")
	}
}

func TestConditionRandomWithProbability(t *testing.T) {
	owner := NewRule(TargetAllow)
	ctx := fakeEvalContext{now: time.Now()}

	always := Condition{Kind: ConditionRandomWithProbability, Probability: 1}
	if !always.Evaluate(owner, ctx) {
		t.Error("probability 1 should always evaluate true")
	}

	never := Condition{Kind: ConditionRandomWithProbability, Probability: 0}
	if never.Evaluate(owner, ctx) {
		t.Error("probability 0 should always evaluate false")
	}
}
