package device

import (
	"testing"

	"github.com/coredevice/usbpolicyd/rule"
)

func TestBuilderBuildsImmutableSnapshot(t *testing.T) {
	d := NewBuilder("/sys/devices/pci0000:00/usb1/1-2").
		ID(5).
		ParentID(rule.RootID).
		Name("Widget").
		VendorProduct(0x1d6b, 0x0002).
		Serial("SN123").
		Port("1-2").
		InterfaceTypes([]rule.InterfaceType{{Class: 0x09}}).
		Target(rule.TargetBlock).
		HashDescriptorBytes([]byte{0x12, 0x01, 0x00, 0x02}).
		HashParentHandle("/sys/devices/pci0000:00/usb1").
		Build()

	if d.ID() != 5 {
		t.Errorf("ID() = %d, want 5", d.ID())
	}
	if d.ParentID() != rule.RootID {
		t.Errorf("ParentID() = %d, want RootID", d.ParentID())
	}
	if d.Name() != "Widget" {
		t.Errorf("Name() = %q", d.Name())
	}
	if d.DeviceID() != (rule.DeviceID{Vendor: 0x1d6b, Product: 0x0002}) {
		t.Errorf("DeviceID() = %v", d.DeviceID())
	}
	if d.Hash() == "" || d.ParentHash() == "" {
		t.Error("expected non-empty hashes")
	}
	if d.Hash() == d.ParentHash() {
		t.Error("descriptor hash and parent hash should differ for different inputs")
	}
}

func TestWithTargetDoesNotMutateOriginal(t *testing.T) {
	d := NewBuilder("/sys/devices/usb1").Target(rule.TargetBlock).Build()
	updated := d.WithTarget(rule.TargetAllow)

	if d.Target() != rule.TargetBlock {
		t.Error("original device should remain unmodified")
	}
	if updated.Target() != rule.TargetAllow {
		t.Error("updated device should carry the new target")
	}
}

func TestIsController(t *testing.T) {
	tests := []struct {
		name string
		port string
		ifs  []rule.InterfaceType
		want bool
	}{
		{"root hub", "usb1", []rule.InterfaceType{{Class: 0x09}}, true},
		{"not a usb port", "1-2", []rule.InterfaceType{{Class: 0x09}}, false},
		{"two hub interfaces", "usb1", []rule.InterfaceType{{Class: 0x09}, {Class: 0x09}}, false},
		{"no hub interface", "usb1", []rule.InterfaceType{{Class: 0x03}}, false},
		{"hub subclass mismatch", "usb1", []rule.InterfaceType{{Class: 0x09, SubClass: 0x01}}, false},
		{"composite device with one hub interface among others", "usb1", []rule.InterfaceType{{Class: 0x09}, {Class: 0x08}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewBuilder("/sys/devices/" + tt.port).Port(tt.port).InterfaceTypes(tt.ifs).Build()
			if got := d.IsController(); got != tt.want {
				t.Errorf("IsController() = %v, want %v", got, tt.want)
			}
		})
	}
}
