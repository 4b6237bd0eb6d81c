package ruleparser

import (
	"github.com/coredevice/usbpolicyd/internal/herr"
	"github.com/coredevice/usbpolicyd/rule"
)

// attrBit marks an attribute as already set on the rule under
// construction, letting RuleBuilder reject a second occurrence of the
// same attribute within one rule line.
type attrBit uint16

const (
	attrID attrBit = 1 << iota
	attrName
	attrHash
	attrParentHash
	attrSerial
	attrViaPort
	attrWithInterface
	attrConditions
)

// RuleBuilder carries the partially constructed Rule while the parser
// walks one rule line, detecting duplicate attributes at set-time.
// Mirrors the original grammar's per-attribute semantic actions
// (Actions.hpp), which throw "<attribute> attribute already defined" the
// moment a second occurrence of the same attribute is seen.
type RuleBuilder struct {
	rule *rule.Rule
	seen attrBit
}

// NewRuleBuilder returns a RuleBuilder for a rule with the given target.
func NewRuleBuilder(target rule.Target) *RuleBuilder {
	return &RuleBuilder{rule: rule.NewRule(target)}
}

// Rule returns the builder's underlying rule for attribute-set mutation
// in the parser.
func (b *RuleBuilder) Rule() *rule.Rule { return b.rule }

// MarkSeen records that name's attribute has been set, failing with the
// exact message wording the original grammar actions use if it was
// already marked.
func (b *RuleBuilder) MarkSeen(bit attrBit, name string, line, col int) error {
	if b.seen&bit != 0 {
		return herr.NewDuplicateAttribute(line, col, name)
	}
	b.seen |= bit
	return nil
}

// Build returns the finished rule.
func (b *RuleBuilder) Build() *rule.Rule { return b.rule }
