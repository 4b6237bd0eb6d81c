package device

import (
	"encoding/hex"

	"github.com/zeebo/blake3"

	"github.com/coredevice/usbpolicyd/rule"
)

// Builder assembles a Device snapshot field by field before handing an
// immutable value to the caller via Build. Mirrors the teacher's
// snapshot-after-enumeration shape, generalized from mutable-during-setup
// to immutable-after-construction: once Build returns, the Builder's
// internal state is discarded and the returned Device never changes.
type Builder struct {
	d Device
}

// NewBuilder returns a Builder for the device identified by syspath.
func NewBuilder(syspath string) *Builder {
	b := &Builder{}
	b.d.syspath = syspath
	b.d.target = rule.TargetBlock
	return b
}

// ID sets the device's manager-assigned id.
func (b *Builder) ID(id uint32) *Builder { b.d.id = id; return b }

// ParentID sets the device's parent id.
func (b *Builder) ParentID(id uint32) *Builder { b.d.parentID = id; return b }

// Name sets the device's USB product string.
func (b *Builder) Name(name string) *Builder { b.d.name = name; return b }

// VendorProduct sets the device's vendor/product identifier pair.
func (b *Builder) VendorProduct(vendor, product uint16) *Builder {
	b.d.deviceID = rule.DeviceID{Vendor: vendor, Product: product}
	return b
}

// Serial sets the device's USB serial number string.
func (b *Builder) Serial(serial string) *Builder { b.d.serial = serial; return b }

// Port sets the device's port path.
func (b *Builder) Port(port string) *Builder { b.d.port = port; return b }

// InterfaceTypes sets the device's interface type list, as produced by
// the descriptor parser's INTERFACE callback.
func (b *Builder) InterfaceTypes(types []rule.InterfaceType) *Builder {
	b.d.interfaceTypes = types
	return b
}

// Target sets the device's initial authorization disposition, as read
// from the attribute store's "authorized" entry before policy matching.
func (b *Builder) Target(target rule.Target) *Builder { b.d.target = target; return b }

// HashDescriptorBytes digests descriptorBytes with BLAKE3 and sets the
// device's content hash. The caller passes exactly the byte range the
// descriptor parser accepted, per spec: "the digest of the concatenated,
// length-validated descriptor bytes."
func (b *Builder) HashDescriptorBytes(descriptorBytes []byte) *Builder {
	b.d.hash = digestHex(descriptorBytes)
	return b
}

// HashParentHandle digests the parent device's opaque syspath handle
// string and sets the device's parent_hash.
func (b *Builder) HashParentHandle(parentSyspath string) *Builder {
	b.d.parentHash = digestHex([]byte(parentSyspath))
	return b
}

func digestHex(data []byte) string {
	h := blake3.New()
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Build returns the assembled, immutable Device snapshot.
func (b *Builder) Build() *Device {
	d := b.d
	return &d
}
