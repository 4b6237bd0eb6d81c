package rule

import "testing"

func TestInterfaceTypeAppliesTo(t *testing.T) {
	tests := []struct {
		name    string
		pattern InterfaceType
		other   InterfaceType
		want    bool
	}{
		{"exact match", InterfaceType{Class: 0x09, SubClass: 0x00, Protocol: 0x00}, InterfaceType{Class: 0x09, SubClass: 0x00, Protocol: 0x00}, true},
		{"class mismatch", InterfaceType{Class: 0x09}, InterfaceType{Class: 0x08}, false},
		{"wildcard all", AnyInterfaceType, InterfaceType{Class: 0x03, SubClass: 0x01, Protocol: 0x01}, true},
		{"wildcard protocol", InterfaceType{Class: 0x03, SubClass: 0x01, Mask: maskProtocol}, InterfaceType{Class: 0x03, SubClass: 0x01, Protocol: 0x99}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.pattern.AppliesTo(tt.other); got != tt.want {
				t.Errorf("AppliesTo() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestInterfaceTypeStringAndParse(t *testing.T) {
	tests := []string{"09:00:00", "*:*:*", "03:01:*", "*:*:02"}
	for _, s := range tests {
		t.Run(s, func(t *testing.T) {
			parsed, err := ParseInterfaceType(s)
			if err != nil {
				t.Fatalf("ParseInterfaceType(%q) error: %v", s, err)
			}
			if got := parsed.String(); got != s {
				t.Errorf("String() = %q, want %q", got, s)
			}
		})
	}
}

func TestParseInterfaceTypeInvalid(t *testing.T) {
	tests := []string{"09:00", "zz:00:00", "09:00:00:00"}
	for _, s := range tests {
		t.Run(s, func(t *testing.T) {
			if _, err := ParseInterfaceType(s); err == nil {
				t.Errorf("expected error for %q", s)
			}
		})
	}
}
