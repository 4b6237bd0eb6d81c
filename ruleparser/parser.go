// Package ruleparser implements the rule-language grammar: a
// hand-written lexer and recursive-descent parser producing a rule.Rule,
// a RuleBuilder enforcing at-most-once attributes, and a serializer that
// renders a Rule back into rule-language text, writing its attributes in
// a fixed order (name, id, hash, parent-hash, serial, via-port,
// with-interface, if) whatever order the original text used.
//
// No parser-combinator or grammar library is used: none of the retrieval
// pack's dependencies offer one, so the grammar is hand-rolled in the
// teacher's style, the same way the teacher hand-rolls its binary
// descriptor decoders instead of reaching for a schema library.
package ruleparser

import (
	"strconv"
	"strings"
	"time"

	"github.com/coredevice/usbpolicyd/internal/herr"
	"github.com/coredevice/usbpolicyd/rule"
)

// ParseRule parses one rule-language line into a Rule. line must not
// include its trailing newline. lineNo is used only to annotate any
// resulting *herr.ParseError.
func ParseRule(line string, lineNo int) (*rule.Rule, error) {
	p := &parser{lex: newLexer(line), lineNo: lineNo, raw: line}
	return p.parseRule()
}

type parser struct {
	lex    *lexer
	lineNo int
	raw    string
	cur    token
}

func (p *parser) advance() error {
	t, err := p.lex.next()
	if err != nil {
		return p.fail(p.lex.pos+1, err.Error())
	}
	p.cur = t
	return nil
}

func (p *parser) fail(col int, reason string) error {
	return &herr.ParseError{Line: p.lineNo, Col: col, Reason: reason}
}

func (p *parser) parseRule() (*rule.Rule, error) {
	if err := p.advance(); err != nil {
		return nil, err
	}
	if p.cur.kind != tokenWord {
		return nil, p.fail(p.cur.col, "expected rule target")
	}

	target, ok := parseTarget(p.cur.text)
	if !ok {
		return nil, p.fail(p.cur.col, "unknown target "+strconv.Quote(p.cur.text))
	}
	builder := NewRuleBuilder(target)

	for {
		if err := p.advance(); err != nil {
			return nil, err
		}
		if p.cur.kind == tokenEOF {
			break
		}
		if p.cur.kind != tokenWord {
			return nil, p.fail(p.cur.col, "expected attribute name")
		}
		if err := p.parseAttribute(builder, p.cur.text, p.cur.col); err != nil {
			return nil, err
		}
	}

	return builder.Build(), nil
}

func parseTarget(s string) (rule.Target, bool) {
	switch s {
	case "allow":
		return rule.TargetAllow, true
	case "block":
		return rule.TargetBlock, true
	case "reject":
		return rule.TargetReject, true
	case "match":
		return rule.TargetMatch, true
	case "device":
		return rule.TargetDevice, true
	default:
		return rule.TargetUnknown, false
	}
}

func (p *parser) parseAttribute(b *RuleBuilder, name string, col int) error {
	switch name {
	case "id":
		return p.parseDeviceIDAttr(b, col)
	case "name":
		return p.parseStringAttr(b, col, attrName, "name", &b.Rule().Name)
	case "hash":
		return p.parseStringAttr(b, col, attrHash, "hash", &b.Rule().Hash)
	case "parent-hash":
		return p.parseStringAttr(b, col, attrParentHash, "parent-hash", &b.Rule().ParentHash)
	case "serial":
		return p.parseStringAttr(b, col, attrSerial, "serial", &b.Rule().Serial)
	case "via-port":
		return p.parseStringAttr(b, col, attrViaPort, "via-port", &b.Rule().ViaPort)
	case "with-interface":
		return p.parseWithInterfaceAttr(b, col)
	case "if":
		return p.parseConditionClause(b, col)
	default:
		return p.fail(col, "unknown attribute "+strconv.Quote(name))
	}
}

// parseSetHeader reads what follows an attribute name: either a bare
// value (returns explicit=false, brace=false and leaves cur positioned
// at the value token), an operator keyword then "{" (explicit=true,
// brace=true), or a bare "{" with the default equals operator
// (explicit=false, brace=true).
func (p *parser) parseSetHeader() (op rule.SetOperator, explicit, brace bool, err error) {
	if err = p.advance(); err != nil {
		return
	}
	if p.cur.kind == tokenLBrace {
		brace = true
		return
	}
	if p.cur.kind == tokenWord {
		if parsedOp, ok := parseSetOperator(p.cur.text); ok {
			explicit = true
			op = parsedOp
			if err = p.advance(); err != nil {
				return
			}
			if p.cur.kind != tokenLBrace {
				err = p.fail(p.cur.col, "expected '{' after set operator")
				return
			}
			brace = true
			return
		}
	}
	// Bare single value; cur already holds it.
	return
}

func parseSetOperator(s string) (rule.SetOperator, bool) {
	switch s {
	case "all-of":
		return rule.OperatorAllOf, true
	case "one-of":
		return rule.OperatorOneOf, true
	case "none-of":
		return rule.OperatorNoneOf, true
	case "equals":
		return rule.OperatorEquals, true
	case "equals-ordered":
		return rule.OperatorEqualsOrdered, true
	default:
		return rule.SetOperator(-1), false
	}
}

func (p *parser) parseDeviceIDAttr(b *RuleBuilder, col int) error {
	if err := b.MarkSeen(attrID, "id", p.lineNo, col); err != nil {
		return err
	}
	set := &b.Rule().DeviceID
	return parseValueSetInto(p, set, func() (rule.DeviceID, error) {
		if p.cur.kind != tokenWord {
			return rule.DeviceID{}, p.fail(p.cur.col, "expected device id")
		}
		v, err := rule.ParseDeviceID(p.cur.text)
		if err != nil {
			return rule.DeviceID{}, p.fail(p.cur.col, err.Error())
		}
		return v, nil
	})
}

func (p *parser) parseWithInterfaceAttr(b *RuleBuilder, col int) error {
	if err := b.MarkSeen(attrWithInterface, "with-interface", p.lineNo, col); err != nil {
		return err
	}
	set := &b.Rule().WithInterface
	return parseValueSetInto(p, set, func() (rule.InterfaceType, error) {
		if p.cur.kind != tokenWord {
			return rule.InterfaceType{}, p.fail(p.cur.col, "expected interface type")
		}
		v, err := rule.ParseInterfaceType(p.cur.text)
		if err != nil {
			return rule.InterfaceType{}, p.fail(p.cur.col, err.Error())
		}
		return v, nil
	})
}

func (p *parser) parseStringAttr(b *RuleBuilder, col int, bit attrBit, name string, set *rule.AttributeSet[rule.StringValue]) error {
	if err := b.MarkSeen(bit, name, p.lineNo, col); err != nil {
		return err
	}
	return parseValueSetInto(p, set, func() (rule.StringValue, error) {
		if p.cur.kind != tokenString {
			return "", p.fail(p.cur.col, "expected quoted string")
		}
		return rule.StringValue(p.cur.text), nil
	})
}

// parseValueSet implements "(value | set-op? '{' (SP value)+ SP '}')"
// for an arbitrary element type, given parseOne which parses the value
// token currently held in p.cur.
func parseValueSetInto[T comparable](p *parser, set *rule.AttributeSet[T], parseOne func() (T, error)) error {
	op, explicit, brace, err := p.parseSetHeader()
	if err != nil {
		return err
	}
	if !brace {
		v, err := parseOne()
		if err != nil {
			return err
		}
		set.Append(v)
		return nil
	}

	set.SetSetOperator(op)
	for {
		if err := p.advance(); err != nil {
			return err
		}
		if p.cur.kind == tokenRBrace {
			break
		}
		v, err := parseOne()
		if err != nil {
			return err
		}
		set.Append(v)
	}
	if err := set.Validate(explicit); err != nil {
		return &herr.ParseError{Line: p.lineNo, Col: p.cur.col, Reason: "set operator required for multiple values", Cause: err}
	}
	return nil
}

func (p *parser) parseConditionClause(b *RuleBuilder, col int) error {
	if err := b.MarkSeen(attrConditions, "conditions", p.lineNo, col); err != nil {
		return err
	}
	set := &b.Rule().Conditions
	return parseValueSetInto(p, set, p.parseCondition)
}

func (p *parser) parseCondition() (rule.Condition, error) {
	negated := false
	if p.cur.kind == tokenBang {
		negated = true
		if err := p.advance(); err != nil {
			return rule.Condition{}, err
		}
	}
	if p.cur.kind != tokenWord {
		return rule.Condition{}, p.fail(p.cur.col, "expected condition name")
	}
	name := p.cur.text

	var arg string
	hasArg := false
	if p.lex.pos < len(p.lex.line) && !isSpace(p.lex.line[p.lex.pos]) && p.lex.line[p.lex.pos] == '(' {
		p.lex.pos++ // consume '('
		start := p.lex.pos
		for p.lex.pos < len(p.lex.line) && p.lex.line[p.lex.pos] != ')' {
			p.lex.pos++
		}
		if p.lex.pos >= len(p.lex.line) {
			return rule.Condition{}, p.fail(p.lex.pos+1, "unterminated condition argument")
		}
		arg = p.lex.line[start:p.lex.pos]
		p.lex.pos++ // consume ')'
		hasArg = true
	}

	c := rule.Condition{Negated: negated}
	switch name {
	case "true":
		c.Kind = rule.ConditionTrue
	case "false":
		c.Kind = rule.ConditionFalse
	case "allowed-matches":
		if !hasArg {
			return rule.Condition{}, p.fail(p.cur.col, "allowed-matches requires an argument")
		}
		spec, err := parseRuleSpec(strings.TrimSpace(arg))
		if err != nil {
			return rule.Condition{}, err
		}
		c.Kind = rule.ConditionAllowedMatches
		c.Spec = spec
	case "rule-applied":
		if hasArg {
			d, err := time.ParseDuration(strings.TrimSpace(arg))
			if err != nil {
				return rule.Condition{}, p.fail(p.cur.col, "invalid duration: "+err.Error())
			}
			c.Kind = rule.ConditionRuleAppliedWithin
			c.Window = d
		} else {
			c.Kind = rule.ConditionRuleApplied
		}
	case "rule-evaluated":
		if hasArg {
			d, err := time.ParseDuration(strings.TrimSpace(arg))
			if err != nil {
				return rule.Condition{}, p.fail(p.cur.col, "invalid duration: "+err.Error())
			}
			c.Kind = rule.ConditionRuleEvaluatedWithin
			c.Window = d
		} else {
			c.Kind = rule.ConditionRuleEvaluated
		}
	case "random":
		if hasArg {
			prob, err := strconv.ParseFloat(strings.TrimSpace(arg), 64)
			if err != nil {
				return rule.Condition{}, p.fail(p.cur.col, "invalid probability: "+err.Error())
			}
			c.Kind = rule.ConditionRandomWithProbability
			c.Probability = prob
		} else {
			c.Kind = rule.ConditionRandom
		}
	default:
		return rule.Condition{}, p.fail(p.cur.col, "unknown condition "+strconv.Quote(name))
	}
	return c, nil
}

// parseRuleSpec parses the attribute-only body of an allowed-matches
// sub-rule: the same attribute grammar as a full rule, but with no
// leading target token. The resulting Rule carries rule.TargetMatch,
// since the embedded spec only ever participates in policy lookups, not
// in policy evaluation order.
func parseRuleSpec(text string) (*rule.Rule, error) {
	p := &parser{lex: newLexer(text), raw: text}
	builder := NewRuleBuilder(rule.TargetMatch)
	for {
		if err := p.advance(); err != nil {
			return nil, err
		}
		if p.cur.kind == tokenEOF {
			break
		}
		if p.cur.kind != tokenWord {
			return nil, p.fail(p.cur.col, "expected attribute name")
		}
		if err := p.parseAttribute(builder, p.cur.text, p.cur.col); err != nil {
			return nil, err
		}
	}
	return builder.Build(), nil
}
