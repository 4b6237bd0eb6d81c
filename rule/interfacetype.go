package rule

import (
	"fmt"
	"strconv"
	"strings"
)

// InterfaceType bit positions within an InterfaceType's wildcard Mask.
const (
	maskClass byte = 1 << iota
	maskSubClass
	maskProtocol
)

// InterfaceType is the USB (class, subclass, protocol) triple that
// identifies a functional interface, with a per-field wildcard mask.
type InterfaceType struct {
	Class    byte
	SubClass byte
	Protocol byte
	Mask     byte
}

// AnyInterfaceType matches every interface ("*:*:*").
var AnyInterfaceType = InterfaceType{Mask: maskClass | maskSubClass | maskProtocol}

// AppliesTo reports whether self matches other, ignoring any field
// wildcarded in self's Mask.
func (t InterfaceType) AppliesTo(other InterfaceType) bool {
	if t.Mask&maskClass == 0 && t.Class != other.Class {
		return false
	}
	if t.Mask&maskSubClass == 0 && t.SubClass != other.SubClass {
		return false
	}
	if t.Mask&maskProtocol == 0 && t.Protocol != other.Protocol {
		return false
	}
	return true
}

// String renders t as "CC:SS:PP" with wildcarded bytes as "*".
func (t InterfaceType) String() string {
	class := fmt.Sprintf("%02x", t.Class)
	if t.Mask&maskClass != 0 {
		class = "*"
	}
	sub := fmt.Sprintf("%02x", t.SubClass)
	if t.Mask&maskSubClass != 0 {
		sub = "*"
	}
	proto := fmt.Sprintf("%02x", t.Protocol)
	if t.Mask&maskProtocol != 0 {
		proto = "*"
	}
	return class + ":" + sub + ":" + proto
}

// ParseInterfaceType parses a "CC:SS:PP" textual interface type, where any
// byte may be "*" for a wildcard.
func ParseInterfaceType(s string) (InterfaceType, error) {
	fields := strings.Split(s, ":")
	if len(fields) != 3 {
		return InterfaceType{}, fmt.Errorf("invalid interface type %q", s)
	}

	var t InterfaceType
	bytes := [3]*byte{&t.Class, &t.SubClass, &t.Protocol}
	masks := [3]byte{maskClass, maskSubClass, maskProtocol}
	for i, field := range fields {
		if field == "*" {
			t.Mask |= masks[i]
			continue
		}
		v, err := strconv.ParseUint(field, 16, 8)
		if err != nil {
			return InterfaceType{}, fmt.Errorf("invalid interface type %q: %w", s, err)
		}
		*bytes[i] = byte(v)
	}
	return t, nil
}
