package rule

import "github.com/coredevice/usbpolicyd/internal/herr"

// SetOperator is the quantifier relating an AttributeSet's listed values to
// an observed multi-set of device values.
type SetOperator int

// Set operators accepted by the grammar.
const (
	// OperatorEquals is the default when an AttributeSet holds exactly one
	// value and no operator was named explicitly.
	OperatorEquals SetOperator = iota
	OperatorAllOf
	OperatorOneOf
	OperatorNoneOf
	OperatorEqualsOrdered
)

// String returns the grammar keyword for op.
func (op SetOperator) String() string {
	switch op {
	case OperatorAllOf:
		return "all-of"
	case OperatorOneOf:
		return "one-of"
	case OperatorNoneOf:
		return "none-of"
	case OperatorEquals:
		return "equals"
	case OperatorEqualsOrdered:
		return "equals-ordered"
	default:
		return "unknown"
	}
}

// AttributeSet is an ordered sequence of values of T together with a set
// operator. The zero value is empty and matches unconditionally.
type AttributeSet[T comparable] struct {
	operator SetOperator
	values   []T
}

// Append adds a value to the set, preserving insertion order.
func (s *AttributeSet[T]) Append(v T) {
	s.values = append(s.values, v)
}

// Clear removes all values and resets the operator to OperatorEquals.
func (s *AttributeSet[T]) Clear() {
	s.values = nil
	s.operator = OperatorEquals
}

// SetSetOperator sets the set operator used by AppliesTo.
func (s *AttributeSet[T]) SetSetOperator(op SetOperator) {
	s.operator = op
}

// Operator returns the set's current operator.
func (s *AttributeSet[T]) Operator() SetOperator {
	return s.operator
}

// Empty reports whether the set holds no values. An empty set matches
// unconditionally.
func (s *AttributeSet[T]) Empty() bool {
	return len(s.values) == 0
}

// Size returns the number of values in the set.
func (s *AttributeSet[T]) Size() int {
	return len(s.values)
}

// Values returns the set's values in insertion order. The caller must not
// mutate the returned slice.
func (s *AttributeSet[T]) Values() []T {
	return s.values
}

// AppliesTo reports whether the set matches the observed multi-set M,
// using the set's operator and plain equality between listed and observed
// values. An empty set matches unconditionally.
//
// Use AppliesToFunc instead when T's listed values are patterns rather
// than concrete values to compare for equality (DeviceID and
// InterfaceType both wildcard-match via their own AppliesTo method).
func (s *AttributeSet[T]) AppliesTo(observed []T) bool {
	return s.AppliesToFunc(observed, func(pattern, value T) bool { return pattern == value })
}

// AppliesToFunc reports whether the set matches the observed multi-set M,
// using the set's operator and the supplied match(pattern, observedValue)
// predicate in place of equality.
func (s *AttributeSet[T]) AppliesToFunc(observed []T, match func(pattern, value T) bool) bool {
	if s.Empty() {
		return true
	}
	switch s.operator {
	case OperatorAllOf:
		for _, want := range s.values {
			if !anyMatch(observed, want, match) {
				return false
			}
		}
		return true
	case OperatorOneOf:
		for _, want := range s.values {
			if anyMatch(observed, want, match) {
				return true
			}
		}
		return false
	case OperatorNoneOf:
		for _, want := range s.values {
			if anyMatch(observed, want, match) {
				return false
			}
		}
		return true
	case OperatorEqualsOrdered:
		if len(observed) != len(s.values) {
			return false
		}
		for i, want := range s.values {
			if !match(want, observed[i]) {
				return false
			}
		}
		return true
	default: // OperatorEquals
		if len(observed) != len(s.values) {
			return false
		}
		for _, want := range s.values {
			if !anyMatch(observed, want, match) {
				return false
			}
		}
		return true
	}
}

func anyMatch[T comparable](haystack []T, needle T, match func(pattern, value T) bool) bool {
	for _, v := range haystack {
		if match(needle, v) {
			return true
		}
	}
	return false
}

// Validate returns herr.ErrAttributeOperatorMismatch if the set's operator
// is the default equals, was never given explicitly, and the set holds
// more than one value, per the grammar's "operator mandatory iff
// the brace-list has more than one element without the equals default"
// rule. Callers invoke Validate once the parser finishes building a set.
func (s *AttributeSet[T]) Validate(explicitOperator bool) error {
	if s.Size() > 1 && !explicitOperator && s.operator == OperatorEquals {
		return herr.ErrAttributeOperatorMismatch
	}
	return nil
}
