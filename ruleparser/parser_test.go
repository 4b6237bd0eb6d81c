package ruleparser

import (
	"errors"
	"testing"
	"time"

	"github.com/coredevice/usbpolicyd/internal/herr"
	"github.com/coredevice/usbpolicyd/rule"
)

func TestParseRuleDeviceIDAndInterface(t *testing.T) {
	r, err := ParseRule(`allow id 1d6b:0002 with-interface 09:00:00`, 1)
	if err != nil {
		t.Fatalf("ParseRule() error: %v", err)
	}
	if r.Target != rule.TargetAllow {
		t.Errorf("Target = %v, want allow", r.Target)
	}
	if got := r.DeviceID.Values(); len(got) != 1 || got[0].String() != "1d6b:0002" {
		t.Errorf("DeviceID = %v, want [1d6b:0002]", got)
	}
	if got := r.WithInterface.Values(); len(got) != 1 || got[0].String() != "09:00:00" {
		t.Errorf("WithInterface = %v, want [09:00:00]", got)
	}
}

func TestParseRuleSetOperatorRequiredForMultipleValues(t *testing.T) {
	_, err := ParseRule(`block with-interface { 03:01:01 08:06:50 }`, 1)
	if !errors.Is(err, herr.ErrAttributeOperatorMismatch) {
		t.Errorf("err = %v, want ErrAttributeOperatorMismatch", err)
	}
}

func TestParseRuleSetOperatorAcceptsMultipleValuesWhenExplicit(t *testing.T) {
	r, err := ParseRule(`block with-interface one-of { 03:01:01 08:06:50 }`, 1)
	if err != nil {
		t.Fatalf("ParseRule() error: %v", err)
	}
	if r.WithInterface.Operator() != rule.OperatorOneOf {
		t.Errorf("Operator = %v, want one-of", r.WithInterface.Operator())
	}
	if got := r.WithInterface.Values(); len(got) != 2 {
		t.Errorf("Values = %v, want 2 entries", got)
	}
}

func TestParseRuleDuplicateAttributeFails(t *testing.T) {
	_, err := ParseRule(`allow name "a" name "b"`, 3)
	var pe *herr.ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("err = %v, want *herr.ParseError", err)
	}
	if pe.Reason != "name attribute already defined" {
		t.Errorf("Reason = %q, want %q", pe.Reason, "name attribute already defined")
	}
	if pe.Line != 3 {
		t.Errorf("Line = %d, want 3", pe.Line)
	}
}

func TestParseRuleUnknownTarget(t *testing.T) {
	_, err := ParseRule(`maybe id 1d6b:0002`, 1)
	var pe *herr.ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("err = %v, want *herr.ParseError", err)
	}
}

func TestParseRuleStringAttributes(t *testing.T) {
	r, err := ParseRule(`allow serial "ABC123" via-port "1-2"`, 1)
	if err != nil {
		t.Fatalf("ParseRule() error: %v", err)
	}
	if got := r.Serial.Values(); len(got) != 1 || got[0] != "ABC123" {
		t.Errorf("Serial = %v, want [ABC123]", got)
	}
	if got := r.ViaPort.Values(); len(got) != 1 || got[0] != "1-2" {
		t.Errorf("ViaPort = %v, want [1-2]", got)
	}
}

func TestParseRuleConditionClauseSimple(t *testing.T) {
	r, err := ParseRule(`allow if true`, 1)
	if err != nil {
		t.Fatalf("ParseRule() error: %v", err)
	}
	conds := r.Conditions.Values()
	if len(conds) != 1 || conds[0].Kind != rule.ConditionTrue {
		t.Errorf("Conditions = %v, want [true]", conds)
	}
}

func TestParseRuleConditionNegated(t *testing.T) {
	r, err := ParseRule(`block if !true`, 1)
	if err != nil {
		t.Fatalf("ParseRule() error: %v", err)
	}
	conds := r.Conditions.Values()
	if len(conds) != 1 || !conds[0].Negated {
		t.Errorf("Conditions = %v, want negated true", conds)
	}
}

func TestParseRuleConditionRuleAppliedWithin(t *testing.T) {
	r, err := ParseRule(`allow if rule-applied(30s)`, 1)
	if err != nil {
		t.Fatalf("ParseRule() error: %v", err)
	}
	conds := r.Conditions.Values()
	if len(conds) != 1 || conds[0].Kind != rule.ConditionRuleAppliedWithin || conds[0].Window != 30*time.Second {
		t.Errorf("Conditions = %+v, want rule-applied-within 30s", conds)
	}
}

func TestParseRuleConditionRandomWithProbability(t *testing.T) {
	r, err := ParseRule(`allow if random(0.25)`, 1)
	if err != nil {
		t.Fatalf("ParseRule() error: %v", err)
	}
	conds := r.Conditions.Values()
	if len(conds) != 1 || conds[0].Kind != rule.ConditionRandomWithProbability || conds[0].Probability != 0.25 {
		t.Errorf("Conditions = %+v, want random-with-probability 0.25", conds)
	}
}

func TestParseRuleConditionAllowedMatches(t *testing.T) {
	r, err := ParseRule(`block if allowed-matches(id 1d6b:0002)`, 1)
	if err != nil {
		t.Fatalf("ParseRule() error: %v", err)
	}
	conds := r.Conditions.Values()
	if len(conds) != 1 || conds[0].Kind != rule.ConditionAllowedMatches {
		t.Fatalf("Conditions = %+v, want allowed-matches", conds)
	}
	spec := conds[0].Spec
	if spec == nil {
		t.Fatal("Spec is nil")
	}
	if got := spec.DeviceID.Values(); len(got) != 1 || got[0].String() != "1d6b:0002" {
		t.Errorf("Spec.DeviceID = %v, want [1d6b:0002]", got)
	}
}

func TestParseRuleConditionSetOperator(t *testing.T) {
	r, err := ParseRule(`allow if one-of { true false }`, 1)
	if err != nil {
		t.Fatalf("ParseRule() error: %v", err)
	}
	if r.Conditions.Operator() != rule.OperatorOneOf {
		t.Errorf("Operator = %v, want one-of", r.Conditions.Operator())
	}
	if len(r.Conditions.Values()) != 2 {
		t.Errorf("Values = %v, want 2 entries", r.Conditions.Values())
	}
}

func TestParseRuleUnknownAttribute(t *testing.T) {
	_, err := ParseRule(`allow bogus "x"`, 1)
	var pe *herr.ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("err = %v, want *herr.ParseError", err)
	}
}
