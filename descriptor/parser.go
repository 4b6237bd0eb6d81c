package descriptor

import (
	"fmt"

	"github.com/coredevice/usbpolicyd/internal/herr"
	"github.com/coredevice/usbpolicyd/rule"
)

// Header is the two-byte prefix common to every descriptor record.
type Header struct {
	Length uint8
	Type   uint8
}

// Result is what Parser.Parse returns on success.
type Result struct {
	// InterfaceTypes holds one entry per INTERFACE descriptor accepted,
	// in the order the descriptors appeared.
	InterfaceTypes []rule.InterfaceType
	// ConsumedBytes is the total number of bytes accepted, equal to the
	// sum of the bLength fields of every accepted record (invariant 5).
	ConsumedBytes int
}

type handlerKey struct {
	typ    uint8
	length uint8
}

type handlerEntry struct {
	decode   func(data []byte) (any, error)
	callback func(Header, any) error
}

// Parser walks a concatenated USB descriptor byte stream, dispatching
// each record to the handler registered for its (type, length) pair.
// The registry generalizes the teacher's single-caller inline parsing
// (device/descriptor.go's Parse*Descriptor functions) into pluggable
// typed callbacks, as the spec's step 4-5 requires.
type Parser struct {
	registry   map[handlerKey]handlerEntry
	permissive bool

	// OnDevice, OnConfiguration, OnEndpoint, and OnAudioEndpoint are
	// optional callbacks invoked after the corresponding descriptor is
	// decoded. Returning an error from any of them fails the parse, and
	// Parse returns that error unwrapped.
	OnDevice        func(DeviceDescriptor) error
	OnConfiguration func(ConfigurationDescriptor) error
	OnEndpoint      func(EndpointDescriptor) error
	OnAudioEndpoint func(AudioEndpointDescriptor) error

	// OnInterface is invoked after each INTERFACE descriptor is decoded
	// and before it is recorded in the result's InterfaceTypes. Returning
	// an error rejects the interface with herr.ErrInterfaceRejected.
	OnInterface func(InterfaceDescriptor) error

	sawDevice      bool
	interfaceTypes []rule.InterfaceType
}

// ignorableTypes are descriptor types the parser skips by default when no
// handler is registered for them: string descriptors, HID descriptors,
// and class-specific interface/endpoint extensions. Mirrors the original
// implementation's permissiveness — it only ever registers handlers for
// DEVICE/CONFIGURATION/INTERFACE/ENDPOINT and silently walks past
// everything else by construction.
var ignorableTypes = map[uint8]bool{
	TypeString:      true,
	TypeHID:         true,
	TypeHIDReport:   true,
	TypeCSInterface: true,
}

// NewParser returns a Parser with handlers registered for the five
// required core descriptor types (DEVICE, CONFIGURATION, INTERFACE,
// ENDPOINT, AUDIO_ENDPOINT). permissive controls whether descriptor types
// with no registered handler are skipped (true) or fail with
// herr.ErrUnknownDescriptor (false); unknown types in ignorableTypes are
// always skipped regardless.
func NewParser(permissive bool) *Parser {
	p := &Parser{
		registry:   make(map[handlerKey]handlerEntry),
		permissive: permissive,
	}
	registerHandler(p, TypeDevice, DeviceDescriptorSize, ParseDeviceDescriptor, p.handleDevice)
	registerHandler(p, TypeConfiguration, ConfigurationDescriptorSize, ParseConfigurationDescriptor, p.handleConfiguration)
	registerHandler(p, TypeInterface, InterfaceDescriptorSize, ParseInterfaceDescriptor, p.handleInterface)
	registerHandler(p, TypeEndpoint, EndpointDescriptorSize, ParseEndpointDescriptor, p.handleEndpoint)
	registerHandler(p, TypeCSEndpoint, AudioEndpointDescriptorSize, ParseAudioEndpointDescriptor, p.handleAudioEndpoint)
	return p
}

// registerHandler wires a typed decode/callback pair into p's registry
// under (typ, length), erasing the type parameter behind the any-typed
// handlerEntry the parse loop dispatches through.
func registerHandler[T any](p *Parser, typ, length uint8, decode func([]byte, *T) error, callback func(Header, T) error) {
	key := handlerKey{typ: typ, length: length}
	p.registry[key] = handlerEntry{
		decode: func(data []byte) (any, error) {
			var v T
			if err := decode(data, &v); err != nil {
				return nil, err
			}
			return v, nil
		},
		callback: func(h Header, v any) error {
			return callback(h, v.(T))
		},
	}
}

func (p *Parser) handleDevice(_ Header, d DeviceDescriptor) error {
	p.sawDevice = true
	if p.OnDevice != nil {
		return p.OnDevice(d)
	}
	return nil
}

func (p *Parser) handleConfiguration(_ Header, c ConfigurationDescriptor) error {
	if p.OnConfiguration != nil {
		return p.OnConfiguration(c)
	}
	return nil
}

func (p *Parser) handleInterface(_ Header, i InterfaceDescriptor) error {
	if p.OnInterface != nil {
		if err := p.OnInterface(i); err != nil {
			return fmt.Errorf("%w: %v", herr.ErrInterfaceRejected, err)
		}
	}
	p.interfaceTypes = append(p.interfaceTypes, rule.InterfaceType{
		Class:    i.InterfaceClass,
		SubClass: i.InterfaceSubClass,
		Protocol: i.InterfaceProtocol,
	})
	return nil
}

func (p *Parser) handleEndpoint(_ Header, e EndpointDescriptor) error {
	if p.OnEndpoint != nil {
		return p.OnEndpoint(e)
	}
	return nil
}

func (p *Parser) handleAudioEndpoint(_ Header, a AudioEndpointDescriptor) error {
	if p.OnAudioEndpoint != nil {
		return p.OnAudioEndpoint(a)
	}
	return nil
}

// Parse walks data record by record per the algorithm in the spec:
//
//  1. fewer than 2 bytes remain: end of stream, success iff a DEVICE
//     descriptor was seen, else herr.ErrTruncatedDescriptor.
//  2. bLength < 2: herr.ErrMalformedDescriptor.
//  3. fewer than bLength-2 further bytes remain: herr.ErrTruncatedDescriptor.
//  4. no handler for (type, bLength): skip if ignorable or permissive,
//     else herr.ErrUnknownDescriptor.
//  5. decode and invoke the callback; a callback may reject the record.
//  6. accumulate consumed bytes.
func (p *Parser) Parse(data []byte) (*Result, error) {
	p.sawDevice = false
	p.interfaceTypes = nil

	pos := 0
	for {
		remaining := len(data) - pos
		if remaining < 2 {
			if !p.sawDevice {
				return nil, herr.ErrTruncatedDescriptor
			}
			break
		}

		length := data[pos]
		typ := data[pos+1]
		if length < 2 {
			return nil, herr.ErrMalformedDescriptor
		}
		if pos+int(length) > len(data) {
			return nil, herr.ErrTruncatedDescriptor
		}

		record := data[pos : pos+int(length)]
		entry, ok := p.registry[handlerKey{typ: typ, length: length}]
		if !ok {
			if ignorableTypes[typ] || p.permissive {
				pos += int(length)
				continue
			}
			return nil, herr.ErrUnknownDescriptor
		}

		view, err := entry.decode(record)
		if err != nil {
			return nil, err
		}
		if err := entry.callback(Header{Length: length, Type: typ}, view); err != nil {
			return nil, err
		}
		pos += int(length)
	}

	return &Result{InterfaceTypes: p.interfaceTypes, ConsumedBytes: pos}, nil
}
