// Package descriptor implements the streaming USB descriptor parser:
// typed records for the device/configuration/interface/endpoint/audio
// endpoint descriptors, and a registry-driven walk over the concatenated
// byte stream the OS exposes per device.
package descriptor

import "encoding/binary"

// USB descriptor types (USB 2.0 Spec Table 9-5) the parser recognizes by
// name. Every other type is either ignorable (string, HID, class/vendor
// specific) or unknown.
const (
	TypeDevice        = 0x01
	TypeConfiguration = 0x02
	TypeString        = 0x03
	TypeInterface     = 0x04
	TypeEndpoint      = 0x05
	TypeHID           = 0x21
	TypeHIDReport     = 0x22
	TypeCSInterface   = 0x24 // Class-specific interface
	TypeCSEndpoint    = 0x25 // Class-specific endpoint (audio endpoint layout)
)

// DeviceDescriptor is the USB device descriptor (18 bytes).
type DeviceDescriptor struct {
	Length            uint8
	DescriptorType    uint8
	USBVersion        uint16
	DeviceClass       uint8
	DeviceSubClass    uint8
	DeviceProtocol    uint8
	MaxPacketSize0    uint8
	VendorID          uint16
	ProductID         uint16
	DeviceVersion     uint16
	ManufacturerIndex uint8
	ProductIndex      uint8
	SerialNumberIndex uint8
	NumConfigurations uint8
}

// DeviceDescriptorSize is the size of a device descriptor in bytes.
const DeviceDescriptorSize = 18

// ParseDeviceDescriptor parses a device descriptor from data into out.
func ParseDeviceDescriptor(data []byte, out *DeviceDescriptor) error {
	if len(data) < DeviceDescriptorSize {
		return ErrDescriptorTooShort
	}
	if data[1] != TypeDevice {
		return ErrDescriptorTypeMismatch
	}
	out.Length = data[0]
	out.DescriptorType = data[1]
	out.USBVersion = binary.LittleEndian.Uint16(data[2:4])
	out.DeviceClass = data[4]
	out.DeviceSubClass = data[5]
	out.DeviceProtocol = data[6]
	out.MaxPacketSize0 = data[7]
	out.VendorID = binary.LittleEndian.Uint16(data[8:10])
	out.ProductID = binary.LittleEndian.Uint16(data[10:12])
	out.DeviceVersion = binary.LittleEndian.Uint16(data[12:14])
	out.ManufacturerIndex = data[14]
	out.ProductIndex = data[15]
	out.SerialNumberIndex = data[16]
	out.NumConfigurations = data[17]
	return nil
}

// ConfigurationDescriptor is the USB configuration descriptor (9 bytes).
type ConfigurationDescriptor struct {
	Length             uint8
	DescriptorType     uint8
	TotalLength        uint16
	NumInterfaces      uint8
	ConfigurationValue uint8
	ConfigurationIndex uint8
	Attributes         uint8
	MaxPower           uint8
}

// ConfigurationDescriptorSize is the size of a configuration descriptor
// in bytes.
const ConfigurationDescriptorSize = 9

// ParseConfigurationDescriptor parses a configuration descriptor from
// data into out.
func ParseConfigurationDescriptor(data []byte, out *ConfigurationDescriptor) error {
	if len(data) < ConfigurationDescriptorSize {
		return ErrDescriptorTooShort
	}
	if data[1] != TypeConfiguration {
		return ErrDescriptorTypeMismatch
	}
	out.Length = data[0]
	out.DescriptorType = data[1]
	out.TotalLength = binary.LittleEndian.Uint16(data[2:4])
	out.NumInterfaces = data[4]
	out.ConfigurationValue = data[5]
	out.ConfigurationIndex = data[6]
	out.Attributes = data[7]
	out.MaxPower = data[8]
	return nil
}

// InterfaceDescriptor is the USB interface descriptor (9 bytes).
type InterfaceDescriptor struct {
	Length            uint8
	DescriptorType    uint8
	InterfaceNumber   uint8
	AlternateSetting  uint8
	NumEndpoints      uint8
	InterfaceClass    uint8
	InterfaceSubClass uint8
	InterfaceProtocol uint8
	InterfaceIndex    uint8
}

// InterfaceDescriptorSize is the size of an interface descriptor in
// bytes.
const InterfaceDescriptorSize = 9

// ParseInterfaceDescriptor parses an interface descriptor from data into
// out.
func ParseInterfaceDescriptor(data []byte, out *InterfaceDescriptor) error {
	if len(data) < InterfaceDescriptorSize {
		return ErrDescriptorTooShort
	}
	if data[1] != TypeInterface {
		return ErrDescriptorTypeMismatch
	}
	out.Length = data[0]
	out.DescriptorType = data[1]
	out.InterfaceNumber = data[2]
	out.AlternateSetting = data[3]
	out.NumEndpoints = data[4]
	out.InterfaceClass = data[5]
	out.InterfaceSubClass = data[6]
	out.InterfaceProtocol = data[7]
	out.InterfaceIndex = data[8]
	return nil
}

// EndpointDescriptor is the USB endpoint descriptor (7 bytes).
type EndpointDescriptor struct {
	Length          uint8
	DescriptorType  uint8
	EndpointAddress uint8
	Attributes      uint8
	MaxPacketSize   uint16
	Interval        uint8
}

// EndpointDescriptorSize is the size of an endpoint descriptor in bytes.
const EndpointDescriptorSize = 7

// ParseEndpointDescriptor parses an endpoint descriptor from data into
// out.
func ParseEndpointDescriptor(data []byte, out *EndpointDescriptor) error {
	if len(data) < EndpointDescriptorSize {
		return ErrDescriptorTooShort
	}
	if data[1] != TypeEndpoint {
		return ErrDescriptorTypeMismatch
	}
	out.Length = data[0]
	out.DescriptorType = data[1]
	out.EndpointAddress = data[2]
	out.Attributes = data[3]
	out.MaxPacketSize = binary.LittleEndian.Uint16(data[4:6])
	out.Interval = data[6]
	return nil
}

// AudioEndpointDescriptor is the USB audio class-specific endpoint
// descriptor (9 bytes) — EndpointDescriptor's 7 bytes plus two audio
// class fields.
type AudioEndpointDescriptor struct {
	Length           uint8
	DescriptorType   uint8
	EndpointAddress  uint8
	Attributes       uint8
	MaxPacketSize    uint16
	Interval         uint8
	Refresh          uint8
	SynchAddress     uint8
}

// AudioEndpointDescriptorSize is the size of an audio endpoint
// descriptor in bytes.
const AudioEndpointDescriptorSize = 9

// ParseAudioEndpointDescriptor parses an audio class-specific endpoint
// descriptor from data into out.
func ParseAudioEndpointDescriptor(data []byte, out *AudioEndpointDescriptor) error {
	if len(data) < AudioEndpointDescriptorSize {
		return ErrDescriptorTooShort
	}
	if data[1] != TypeCSEndpoint {
		return ErrDescriptorTypeMismatch
	}
	out.Length = data[0]
	out.DescriptorType = data[1]
	out.EndpointAddress = data[2]
	out.Attributes = data[3]
	out.MaxPacketSize = binary.LittleEndian.Uint16(data[4:6])
	out.Interval = data[6]
	out.Refresh = data[7]
	out.SynchAddress = data[8]
	return nil
}
