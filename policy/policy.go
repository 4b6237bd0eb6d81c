// Package policy implements the ordered rule list a Device is matched
// against: ordered CRUD with stable ids and the first-match evaluation
// algorithm that decides an allow/block/reject disposition.
package policy

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/coredevice/usbpolicyd/device"
	"github.com/coredevice/usbpolicyd/internal/herr"
	"github.com/coredevice/usbpolicyd/rule"
)

// Position names where InsertRule places a new rule relative to an
// existing one, or at either end of the list.
type Position struct {
	before, after bool
	id            uint32
	atEnd         bool
	atStart       bool
}

// First positions a new rule at the head of the list.
func First() Position { return Position{atStart: true} }

// Last positions a new rule at the tail of the list.
func Last() Position { return Position{atEnd: true} }

// Before positions a new rule immediately ahead of the rule with id.
func Before(id uint32) Position { return Position{before: true, id: id} }

// After positions a new rule immediately behind the rule with id.
func After(id uint32) Position { return Position{after: true, id: id} }

// Policy is an ordered, concurrently accessible list of rules. Mutation
// methods take the write lock; Match and ListRules take the read lock,
// so a concurrent reader always observes either the pre- or
// post-mutation list, never a partial one.
type Policy struct {
	mu    sync.RWMutex
	rules []*rule.Rule

	nextID        atomic.Uint32
	now           func() time.Time
	defaultTarget rule.Target
}

// New returns an empty Policy. defaultTarget is returned by Match when
// no rule in the list matches a device.
func New(defaultTarget rule.Target) *Policy {
	p := &Policy{now: time.Now, defaultTarget: defaultTarget}
	p.nextID.Store(rule.RootID + 1)
	return p
}

// InsertRule assigns r a fresh, strictly increasing id and inserts it
// at pos, returning the assigned id.
func (p *Policy) InsertRule(r *rule.Rule, pos Position) uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()

	id := p.nextID.Add(1) - 1
	r.SetID(id)

	switch {
	case pos.atStart:
		p.rules = append([]*rule.Rule{r}, p.rules...)
	case pos.atEnd, !pos.before && !pos.after:
		p.rules = append(p.rules, r)
	case pos.before:
		p.rules = insertRelative(p.rules, r, pos.id, 0)
	case pos.after:
		p.rules = insertRelative(p.rules, r, pos.id, 1)
	}
	return id
}

func insertRelative(rules []*rule.Rule, r *rule.Rule, anchor uint32, offset int) []*rule.Rule {
	for i, existing := range rules {
		if existing.ID() == anchor {
			idx := i + offset
			out := make([]*rule.Rule, 0, len(rules)+1)
			out = append(out, rules[:idx]...)
			out = append(out, r)
			out = append(out, rules[idx:]...)
			return out
		}
	}
	return append(rules, r)
}

// RemoveRule deletes the rule with the given id, failing with
// herr.ErrUnknownDevice if no such rule exists.
func (p *Policy) RemoveRule(id uint32) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, r := range p.rules {
		if r.ID() == id {
			p.rules = append(p.rules[:i:i], p.rules[i+1:]...)
			return nil
		}
	}
	return herr.ErrUnknownDevice
}

// UpdateRule replaces the rule sharing r's id in place, preserving its
// position. Fails if no rule with that id exists.
func (p *Policy) UpdateRule(r *rule.Rule) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, existing := range p.rules {
		if existing.ID() == r.ID() {
			p.rules[i] = r
			return nil
		}
	}
	return herr.ErrUnknownDevice
}

// ListRules returns a snapshot of the rule list in evaluation order.
// The caller must not mutate the returned slice.
func (p *Policy) ListRules() []*rule.Rule {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]*rule.Rule, len(p.rules))
	copy(out, p.rules)
	return out
}

// Match evaluates d against the rule list in order, returning the id
// and target of the first terminal-target rule that matches. Rules
// with a non-terminal target (match) update counters but never
// terminate the search. If no rule matches, Match returns
// (rule.DefaultID, the policy's configured default target).
func (p *Policy) Match(d *device.Device, ctx rule.EvalContext) (uint32, rule.Target) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	now := p.now()
	for _, r := range p.rules {
		r.MarkEvaluated(now)
		if !ruleAppliesToDevice(r, d, ctx) {
			continue
		}
		if r.Target.IsTerminal() {
			r.MarkApplied(now)
			return r.ID(), r.Target
		}
		// match: counters already updated above; keep scanning.
	}
	return rule.DefaultID, p.defaultTarget
}

// MatchesAllowRule implements rule.EvalContext for allowed-matches
// conditions: true iff some allow-targeted rule currently in the list
// would accept every attribute value spec names.
func (p *Policy) MatchesAllowRule(spec *rule.Rule) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	for _, r := range p.rules {
		if r.Target != rule.TargetAllow {
			continue
		}
		if ruleSpecApplies(r, spec) {
			return true
		}
	}
	return false
}

// Now implements rule.EvalContext.
func (p *Policy) Now() time.Time { return p.now() }

// ruleAppliesToDevice evaluates r's attribute sets against d in the
// fixed order the spec mandates, short-circuiting on the first
// non-matching non-empty set.
func ruleAppliesToDevice(r *rule.Rule, d *device.Device, ctx rule.EvalContext) bool {
	if !r.DeviceID.AppliesToFunc([]rule.DeviceID{d.DeviceID()}, rule.DeviceID.AppliesTo) {
		return false
	}
	if !r.Name.AppliesTo([]rule.StringValue{rule.StringValue(d.Name())}) {
		return false
	}
	if !r.Serial.AppliesTo([]rule.StringValue{rule.StringValue(d.Serial())}) {
		return false
	}
	if !r.WithInterface.AppliesToFunc(d.InterfaceTypes(), rule.InterfaceType.AppliesTo) {
		return false
	}
	if !r.Hash.AppliesTo([]rule.StringValue{rule.StringValue(d.Hash())}) {
		return false
	}
	if !r.ParentHash.AppliesTo([]rule.StringValue{rule.StringValue(d.ParentHash())}) {
		return false
	}
	if !r.ViaPort.AppliesTo([]rule.StringValue{rule.StringValue(d.Port())}) {
		return false
	}
	if !r.EvaluateConditions(ctx) {
		return false
	}
	return true
}

// ruleSpecApplies compares a candidate policy rule's attribute sets
// against a sub-rule spec's own attribute values, treating each
// non-empty attribute on spec as the "observed" value the candidate
// rule must accept. Only attributes spec actually constrains are
// checked; spec attributes left empty are not required to match.
func ruleSpecApplies(candidate, spec *rule.Rule) bool {
	if !spec.DeviceID.Empty() && !candidate.DeviceID.AppliesToFunc(spec.DeviceID.Values(), rule.DeviceID.AppliesTo) {
		return false
	}
	if !spec.Name.Empty() && !candidate.Name.AppliesTo(spec.Name.Values()) {
		return false
	}
	if !spec.Serial.Empty() && !candidate.Serial.AppliesTo(spec.Serial.Values()) {
		return false
	}
	if !spec.WithInterface.Empty() && !candidate.WithInterface.AppliesToFunc(spec.WithInterface.Values(), rule.InterfaceType.AppliesTo) {
		return false
	}
	if !spec.Hash.Empty() && !candidate.Hash.AppliesTo(spec.Hash.Values()) {
		return false
	}
	if !spec.ParentHash.Empty() && !candidate.ParentHash.AppliesTo(spec.ParentHash.Values()) {
		return false
	}
	if !spec.ViaPort.Empty() && !candidate.ViaPort.AppliesTo(spec.ViaPort.Values()) {
		return false
	}
	return true
}
