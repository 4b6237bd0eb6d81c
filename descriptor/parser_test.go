package descriptor

import (
	"errors"
	"testing"

	"github.com/coredevice/usbpolicyd/internal/herr"
)

func deviceRecord() []byte {
	return []byte{
		18, TypeDevice,
		0x00, 0x02, // bcdUSB
		0x00, 0x00, 0x00, // class/subclass/protocol
		0x40,       // max packet size
		0x6b, 0x1d, // idVendor (LE) = 0x1d6b
		0x02, 0x00, // idProduct (LE) = 0x0002
		0x00, 0x01, // bcdDevice
		0x01, 0x02, 0x03, // string indices
		0x01, // numConfigurations
	}
}

func configurationRecord() []byte {
	return []byte{9, TypeConfiguration, 0x19, 0x00, 0x01, 0x01, 0x00, 0xc0, 0x00}
}

func interfaceRecord(class, sub, proto byte) []byte {
	return []byte{9, TypeInterface, 0x00, 0x00, 0x01, class, sub, proto, 0x00}
}

func endpointRecord() []byte {
	return []byte{7, TypeEndpoint, 0x81, 0x03, 0x08, 0x00, 0x0a}
}

func TestParseAcceptsCoreRecordSequence(t *testing.T) {
	var data []byte
	data = append(data, deviceRecord()...)
	data = append(data, configurationRecord()...)
	data = append(data, interfaceRecord(0x03, 0x01, 0x01)...)
	data = append(data, endpointRecord()...)

	p := NewParser(false)
	result, err := p.Parse(data)
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if result.ConsumedBytes != 43 {
		t.Errorf("ConsumedBytes = %d, want 43", result.ConsumedBytes)
	}
	if len(result.InterfaceTypes) != 1 {
		t.Fatalf("InterfaceTypes = %d entries, want 1", len(result.InterfaceTypes))
	}
	it := result.InterfaceTypes[0]
	if it.Class != 0x03 || it.SubClass != 0x01 || it.Protocol != 0x01 {
		t.Errorf("InterfaceTypes[0] = %+v, want {03 01 01}", it)
	}
}

func TestParseTruncatedBeforeAnyDevice(t *testing.T) {
	p := NewParser(false)
	if _, err := p.Parse([]byte{0x12}); !errors.Is(err, herr.ErrTruncatedDescriptor) {
		t.Errorf("err = %v, want ErrTruncatedDescriptor", err)
	}
}

func TestParseSuccessAfterDeviceEvenIfTrailingByteDangles(t *testing.T) {
	data := append(deviceRecord(), 0x05)
	p := NewParser(false)
	result, err := p.Parse(data)
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if result.ConsumedBytes != DeviceDescriptorSize {
		t.Errorf("ConsumedBytes = %d, want %d", result.ConsumedBytes, DeviceDescriptorSize)
	}
}

func TestParseMalformedLength(t *testing.T) {
	p := NewParser(false)
	if _, err := p.Parse([]byte{1, TypeDevice}); !errors.Is(err, herr.ErrMalformedDescriptor) {
		t.Errorf("err = %v, want ErrMalformedDescriptor", err)
	}
}

func TestParseTruncatedRecordBody(t *testing.T) {
	p := NewParser(false)
	data := append(deviceRecord(), 18, TypeDevice, 0x01, 0x02)
	if _, err := p.Parse(data); !errors.Is(err, herr.ErrTruncatedDescriptor) {
		t.Errorf("err = %v, want ErrTruncatedDescriptor", err)
	}
}

func TestParseUnknownDescriptorType(t *testing.T) {
	data := append(deviceRecord(), 4, 0x7f, 0x00, 0x00)
	p := NewParser(false)
	if _, err := p.Parse(data); !errors.Is(err, herr.ErrUnknownDescriptor) {
		t.Errorf("err = %v, want ErrUnknownDescriptor", err)
	}
}

func TestParsePermissiveSkipsUnknownType(t *testing.T) {
	data := append(deviceRecord(), 4, 0x7f, 0x00, 0x00)
	p := NewParser(true)
	result, err := p.Parse(data)
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if result.ConsumedBytes != DeviceDescriptorSize+4 {
		t.Errorf("ConsumedBytes = %d, want %d", result.ConsumedBytes, DeviceDescriptorSize+4)
	}
}

func TestParseSkipsIgnorableStringType(t *testing.T) {
	data := append(deviceRecord(), 4, TypeString, 0x41, 0x00)
	p := NewParser(false)
	result, err := p.Parse(data)
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if result.ConsumedBytes != DeviceDescriptorSize+4 {
		t.Errorf("ConsumedBytes = %d, want %d", result.ConsumedBytes, DeviceDescriptorSize+4)
	}
}

func TestParseOnInterfaceRejection(t *testing.T) {
	data := append(deviceRecord(), interfaceRecord(0x03, 0x01, 0x01)...)
	p := NewParser(false)
	p.OnInterface = func(InterfaceDescriptor) error { return errors.New("not allowed") }
	if _, err := p.Parse(data); !errors.Is(err, herr.ErrInterfaceRejected) {
		t.Errorf("err = %v, want ErrInterfaceRejected", err)
	}
}

func TestParseDeviceDescriptorFields(t *testing.T) {
	var out DeviceDescriptor
	if err := ParseDeviceDescriptor(deviceRecord(), &out); err != nil {
		t.Fatalf("ParseDeviceDescriptor() error: %v", err)
	}
	if out.VendorID != 0x1d6b || out.ProductID != 0x0002 {
		t.Errorf("VendorID/ProductID = %04x/%04x, want 1d6b/0002", out.VendorID, out.ProductID)
	}
}

func TestParseDeviceDescriptorTooShort(t *testing.T) {
	var out DeviceDescriptor
	if err := ParseDeviceDescriptor(make([]byte, 10), &out); !errors.Is(err, ErrDescriptorTooShort) {
		t.Errorf("err = %v, want ErrDescriptorTooShort", err)
	}
}
