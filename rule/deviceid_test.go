package rule

import "testing"

func TestDeviceIDAppliesTo(t *testing.T) {
	tests := []struct {
		name    string
		pattern DeviceID
		other   DeviceID
		want    bool
	}{
		{"exact match", DeviceID{Vendor: 0x1d6b, Product: 0x0002}, DeviceID{Vendor: 0x1d6b, Product: 0x0002}, true},
		{"vendor mismatch", DeviceID{Vendor: 0x1d6b, Product: 0x0002}, DeviceID{Vendor: 0x0001, Product: 0x0002}, false},
		{"wildcard product", DeviceID{Vendor: 0x1d6b, Mask: maskProduct}, DeviceID{Vendor: 0x1d6b, Product: 0x00ff}, true},
		{"wildcard both", AnyDeviceID, DeviceID{Vendor: 0x1234, Product: 0x5678}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.pattern.AppliesTo(tt.other); got != tt.want {
				t.Errorf("AppliesTo() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDeviceIDStringAndParse(t *testing.T) {
	tests := []string{"1d6b:0002", "*:*", "1d6b:*", "*:0002"}
	for _, s := range tests {
		t.Run(s, func(t *testing.T) {
			parsed, err := ParseDeviceID(s)
			if err != nil {
				t.Fatalf("ParseDeviceID(%q) error: %v", s, err)
			}
			if got := parsed.String(); got != s {
				t.Errorf("String() = %q, want %q", got, s)
			}
		})
	}
}

func TestParseDeviceIDInvalid(t *testing.T) {
	tests := []string{"1d6b", "zzzz:0002", "1d6b:0002:extra"}
	for _, s := range tests {
		t.Run(s, func(t *testing.T) {
			if _, err := ParseDeviceID(s); err == nil {
				t.Errorf("expected error for %q", s)
			}
		})
	}
}
