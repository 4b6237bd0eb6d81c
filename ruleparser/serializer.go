package ruleparser

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/coredevice/usbpolicyd/rule"
)

// Serialize renders r back into rule-language text. Serialize is the
// inverse of ParseRule for any rule ParseRule accepts: parsing
// Serialize(r) always yields a rule with the same attribute sets and
// target as r.
func Serialize(r *rule.Rule) string {
	var sb strings.Builder
	sb.WriteString(r.Target.String())

	writeStringSet(&sb, "name", r.Name)
	writeDeviceIDSet(&sb, "id", r.DeviceID)
	writeStringSet(&sb, "hash", r.Hash)
	writeStringSet(&sb, "parent-hash", r.ParentHash)
	writeStringSet(&sb, "serial", r.Serial)
	writeStringSet(&sb, "via-port", r.ViaPort)
	writeInterfaceSet(&sb, "with-interface", r.WithInterface)
	writeConditionSet(&sb, r.Conditions)

	return sb.String()
}

func writeSetHeader(sb *strings.Builder, name string, size int, op rule.SetOperator) {
	sb.WriteByte(' ')
	sb.WriteString(name)
	if size > 1 {
		sb.WriteByte(' ')
		sb.WriteString(op.String())
	}
}

func writeStringSet(sb *strings.Builder, name string, set rule.AttributeSet[rule.StringValue]) {
	if set.Empty() {
		return
	}
	values := set.Values()
	writeSetHeader(sb, name, len(values), set.Operator())
	writeValues(sb, len(values), func(i int) string { return strconv.Quote(string(values[i])) })
}

func writeDeviceIDSet(sb *strings.Builder, name string, set rule.AttributeSet[rule.DeviceID]) {
	if set.Empty() {
		return
	}
	values := set.Values()
	writeSetHeader(sb, name, len(values), set.Operator())
	writeValues(sb, len(values), func(i int) string { return values[i].String() })
}

func writeInterfaceSet(sb *strings.Builder, name string, set rule.AttributeSet[rule.InterfaceType]) {
	if set.Empty() {
		return
	}
	values := set.Values()
	writeSetHeader(sb, name, len(values), set.Operator())
	writeValues(sb, len(values), func(i int) string { return values[i].String() })
}

func writeValues(sb *strings.Builder, n int, render func(i int) string) {
	if n == 1 {
		sb.WriteByte(' ')
		sb.WriteString(render(0))
		return
	}
	sb.WriteString(" {")
	for i := 0; i < n; i++ {
		sb.WriteByte(' ')
		sb.WriteString(render(i))
	}
	sb.WriteString(" }")
}

func writeConditionSet(sb *strings.Builder, set rule.AttributeSet[rule.Condition]) {
	if set.Empty() {
		return
	}
	values := set.Values()
	sb.WriteString(" if")
	if len(values) > 1 {
		sb.WriteByte(' ')
		sb.WriteString(set.Operator().String())
	}
	writeConditionValues(sb, values)
}

func writeConditionValues(sb *strings.Builder, values []rule.Condition) {
	if len(values) == 1 {
		sb.WriteByte(' ')
		sb.WriteString(renderCondition(values[0]))
		return
	}
	sb.WriteString(" {")
	for _, c := range values {
		sb.WriteByte(' ')
		sb.WriteString(renderCondition(c))
	}
	sb.WriteString(" }")
}

func renderCondition(c rule.Condition) string {
	var sb strings.Builder
	if c.Negated {
		sb.WriteByte('!')
	}
	sb.WriteString(c.Name())
	switch c.Kind {
	case rule.ConditionAllowedMatches:
		sb.WriteByte('(')
		sb.WriteString(serializeAttributesOnly(c.Spec))
		sb.WriteByte(')')
	case rule.ConditionRuleAppliedWithin, rule.ConditionRuleEvaluatedWithin:
		fmt.Fprintf(&sb, "(%s)", c.Window.String())
	case rule.ConditionRandomWithProbability:
		fmt.Fprintf(&sb, "(%s)", strconv.FormatFloat(c.Probability, 'g', -1, 64))
	}
	return sb.String()
}

// serializeAttributesOnly renders r's attribute clauses without a leading
// target token, the inverse of parseRuleSpec.
func serializeAttributesOnly(r *rule.Rule) string {
	full := Serialize(r)
	prefix := r.Target.String()
	if full == prefix {
		return ""
	}
	return strings.TrimPrefix(full, prefix+" ")
}
