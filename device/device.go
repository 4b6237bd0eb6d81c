// Package device defines the immutable Device snapshot produced by the
// device manager once a USB device's descriptors have been parsed and
// hashed, plus the builder that constructs it.
package device

import (
	"github.com/coredevice/usbpolicyd/rule"
)

// Device is an immutable snapshot of a detected USB device. Once Build
// returns a Device, nothing about it changes; a new attach/change event
// produces a new Device value rather than mutating an existing one.
type Device struct {
	id             uint32
	parentID       uint32
	name           string
	deviceID       rule.DeviceID
	serial         string
	port           string
	hash           string
	parentHash     string
	interfaceTypes []rule.InterfaceType
	syspath        string
	target         rule.Target
}

// ID returns the device's manager-assigned, monotonically increasing id.
func (d *Device) ID() uint32 { return d.id }

// ParentID returns the id of the device's parent (hub or host controller),
// or rule.RootID if the parent is not itself a USB device.
func (d *Device) ParentID() uint32 { return d.parentID }

// Name returns the device's USB product string, if any.
func (d *Device) Name() string { return d.name }

// DeviceID returns the device's vendor/product identifier pair.
func (d *Device) DeviceID() rule.DeviceID { return d.deviceID }

// Serial returns the device's USB serial number string, if any.
func (d *Device) Serial() string { return d.serial }

// Port returns the device's port path (e.g. "1-2.3"), the value rules
// match against via-port.
func (d *Device) Port() string { return d.port }

// Hash returns the content digest of the device's descriptor bytes.
func (d *Device) Hash() string { return d.hash }

// ParentHash returns the content digest of the parent device's syspath
// handle.
func (d *Device) ParentHash() string { return d.parentHash }

// InterfaceTypes returns the device's interface (class, subclass,
// protocol) triples, one per USB interface descriptor seen. The caller
// must not mutate the returned slice.
func (d *Device) InterfaceTypes() []rule.InterfaceType { return d.interfaceTypes }

// Syspath returns the device's opaque, OS-assigned stable handle.
func (d *Device) Syspath() string { return d.syspath }

// Target returns the device's current authorization disposition.
func (d *Device) Target() rule.Target { return d.target }

// WithTarget returns a copy of d with its target replaced, leaving d
// itself unmodified. The device manager calls this after successfully
// applying a new target so that subscribers observe an updated snapshot
// without any Device ever being mutated in place.
func (d *Device) WithTarget(target rule.Target) *Device {
	clone := *d
	clone.target = target
	return &clone
}

// IsController reports whether d is a USB host controller's root hub:
// its port name starts with "usb", it exposes exactly one interface in
// total, and that interface is hub class (09:00:*). Supplemented from
// the original implementation's isController heuristic; useful for rule
// authors who want to exempt root/hub controllers from matching via a
// with-interface rule.
func (d *Device) IsController() bool {
	if len(d.port) < 3 || d.port[:3] != "usb" {
		return false
	}
	if len(d.interfaceTypes) != 1 {
		return false
	}
	return hubInterfaceType.AppliesTo(d.interfaceTypes[0])
}

// hubInterfaceType is the USB hub interface type (09:00:*, USB 2.0 Spec
// Table 9-5), matched with a wildcard protocol.
var hubInterfaceType = mustParseInterfaceType("09:00:*")

func mustParseInterfaceType(s string) rule.InterfaceType {
	t, err := rule.ParseInterfaceType(s)
	if err != nil {
		panic(err)
	}
	return t
}
