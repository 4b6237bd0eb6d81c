// Package devicemanager implements the concurrent pipeline that watches
// OS hotplug notifications, turns them into immutable Device snapshots,
// matches them against a Policy, writes the resulting disposition back
// through the OS attribute store, and fans out typed events to
// subscriber hooks. One dedicated monitor goroutine, supervised by a
// tomb.Tomb, owns the OS notification source; all other methods run on
// caller goroutines and synchronize against it through locks.
package devicemanager

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"gopkg.in/tomb.v2"

	"github.com/coredevice/usbpolicyd/descriptor"
	"github.com/coredevice/usbpolicyd/device"
	"github.com/coredevice/usbpolicyd/internal/herr"
	"github.com/coredevice/usbpolicyd/internal/prof"
	"github.com/coredevice/usbpolicyd/osnotify"
	"github.com/coredevice/usbpolicyd/policy"
	"github.com/coredevice/usbpolicyd/rule"
	"github.com/coredevice/usbpolicyd/telemetry"
)

// Hooks is the subscriber interface: each field, if non-nil, is called
// on the monitor goroutine with an immutable device snapshot. Hook
// bodies must not block on the manager's own locks.
type Hooks struct {
	DevicePresent  func(*device.Device)
	DeviceInserted func(*device.Device)
	DeviceAllowed  func(*device.Device)
	DeviceBlocked  func(*device.Device)
	DeviceRejected func(*device.Device)
	DeviceRemoved  func(*device.Device)
}

func (h Hooks) fire(f func(*device.Device), d *device.Device) {
	if f != nil {
		f(d)
	}
}

// errUnknownParent marks an add event whose parent handle is itself a
// USB device but has not been registered yet; per the ingestion
// algorithm this drops the event rather than rejecting it.
var errUnknownParent = errors.New("devicemanager: unknown parent handle")

// Manager is the device ingestion and policy-application pipeline.
type Manager struct {
	tomb tomb.Tomb

	source osnotify.Source
	store  osnotify.AttributeStore
	policy *policy.Policy
	hooks  Hooks

	mu         sync.RWMutex
	handleToID map[string]uint32
	idToHandle map[uint32]string
	devices    map[uint32]*device.Device

	nextID  atomic.Uint32
	running atomic.Bool

	deviceLocks sync.Map // uint32 -> *sync.Mutex

	defaultAuthorizedHandle string
	savedDefaultAuthorized  []byte
}

// New returns a Manager reading hotplug events from source and
// attribute data from store, matching against pol, and notifying
// hooks. defaultAuthorizedHandle, if non-empty, names the controller
// handle whose authorized_default attribute is snapshotted on Start
// and restored on Stop; leave it empty to skip default-authorized
// management entirely.
func New(source osnotify.Source, store osnotify.AttributeStore, pol *policy.Policy, hooks Hooks, defaultAuthorizedHandle string) *Manager {
	m := &Manager{
		source:                  source,
		store:                   store,
		policy:                  pol,
		hooks:                   hooks,
		handleToID:              make(map[string]uint32),
		idToHandle:              make(map[uint32]string),
		devices:                 make(map[uint32]*device.Device),
		defaultAuthorizedHandle: defaultAuthorizedHandle,
	}
	m.nextID.Store(rule.RootID + 1)
	return m
}

// Start snapshots the default-authorized state (forcing it false while
// the manager runs) and launches the monitor goroutine.
func (m *Manager) Start() error {
	if !m.running.CompareAndSwap(false, true) {
		return fmt.Errorf("devicemanager: already running")
	}
	if m.defaultAuthorizedHandle != "" {
		saved, err := m.store.GetAttr(m.defaultAuthorizedHandle, "authorized_default")
		if err != nil {
			m.running.Store(false)
			return &herr.IOError{Path: m.defaultAuthorizedHandle, Cause: err}
		}
		m.savedDefaultAuthorized = saved
		if err := m.store.Write(m.defaultAuthorizedHandle, "authorized_default", []byte("0")); err != nil {
			m.running.Store(false)
			return &herr.IOError{Path: m.defaultAuthorizedHandle, Cause: err}
		}
	}
	m.tomb.Go(m.loop)
	return nil
}

// Stop wakes the monitor goroutine, waits for it to exit, and restores
// the default-authorized state saved by Start. Stop is idempotent.
func (m *Manager) Stop() error {
	if !m.running.CompareAndSwap(true, false) {
		return nil
	}
	if err := m.source.Wake(); err != nil {
		telemetry.LogError(telemetry.ComponentManager, "wake monitor", "error", err)
	}
	m.tomb.Kill(nil)
	err := m.tomb.Wait()

	if m.defaultAuthorizedHandle != "" && m.savedDefaultAuthorized != nil {
		if werr := m.store.Write(m.defaultAuthorizedHandle, "authorized_default", m.savedDefaultAuthorized); werr != nil {
			telemetry.LogError(telemetry.ComponentManager, "restore authorized_default", "error", werr)
		}
	}
	return err
}

// Dying returns a channel closed when the monitor goroutine begins
// shutting down.
func (m *Manager) Dying() <-chan struct{} { return m.tomb.Dying() }

// loop is the monitor goroutine body: receive, dispatch, repeat, until
// the source reports it has been woken for shutdown.
func (m *Manager) loop() error {
	for {
		ev, err := m.source.Receive()
		switch {
		case errors.Is(err, osnotify.ErrStopped):
			return nil
		case errors.Is(err, osnotify.ErrTimeout):
			continue
		case err != nil:
			telemetry.LogError(telemetry.ComponentManager, "receive", "error", err)
			continue
		}
		m.handleEvent(ev)
	}
}

func (m *Manager) handleEvent(ev osnotify.Event) {
	defer prof.RecordEventProcessed()
	switch ev.Action {
	case osnotify.ActionAdd, osnotify.ActionChange:
		m.handleAdd(ev.Handle, false)
	case osnotify.ActionRemove:
		m.handleRemove(ev.Handle)
	}
}

func (m *Manager) handleAdd(handle string, scanning bool) {
	d, err := m.ingestDevice(handle, scanning)
	if err != nil {
		if errors.Is(err, errUnknownParent) {
			telemetry.LogWarn(telemetry.ComponentManager, "dropping add event: unknown parent", "handle", handle)
			return
		}
		telemetry.LogError(telemetry.ComponentManager, "ingest device failed", "handle", handle, "error", err)
		if !scanning {
			m.rejectHandle(handle)
		}
		return
	}

	if scanning {
		m.hooks.fire(m.hooks.DevicePresent, d)
		return
	}
	m.hooks.fire(m.hooks.DeviceInserted, d)
	m.applyPolicyAndPublish(d)
}

func (m *Manager) handleRemove(handle string) {
	m.mu.Lock()
	id, ok := m.handleToID[handle]
	if !ok {
		m.mu.Unlock()
		return
	}
	d := m.devices[id]
	delete(m.handleToID, handle)
	delete(m.idToHandle, id)
	delete(m.devices, id)
	m.mu.Unlock()

	m.deviceLocks.Delete(id)
	m.hooks.fire(m.hooks.DeviceRemoved, d)
}

// rejectHandle applies the reject target directly via the attribute
// store, bypassing the device table, since a device that failed
// construction was never assigned an id.
func (m *Manager) rejectHandle(handle string) {
	if err := m.store.Write(handle, "remove", []byte("1")); err != nil {
		telemetry.LogError(telemetry.ComponentManager, "reject failed device", "handle", handle, "error", err)
	}
}

func (m *Manager) applyPolicyAndPublish(d *device.Device) {
	start := time.Now()
	id, target := m.policy.Match(d, m.policy)
	prof.RecordPolicyMatchLatency(time.Since(start))
	_ = id // the matching rule's id; not surfaced on the device snapshot itself

	if err := m.ApplyDevicePolicy(d.ID(), target); err != nil {
		telemetry.LogError(telemetry.ComponentManager, "apply policy failed", "device", d.ID(), "error", err)
		return
	}

	updated := d.WithTarget(target)
	m.mu.Lock()
	m.devices[d.ID()] = updated
	m.mu.Unlock()

	switch target {
	case rule.TargetAllow:
		m.hooks.fire(m.hooks.DeviceAllowed, updated)
	case rule.TargetBlock:
		m.hooks.fire(m.hooks.DeviceBlocked, updated)
	case rule.TargetReject:
		m.hooks.fire(m.hooks.DeviceRejected, updated)
	}
}

// Scan enumerates devices already present and ingests each, publishing
// DevicePresent rather than DeviceInserted. Legal only before Start.
func (m *Manager) Scan() error {
	if m.running.Load() {
		return fmt.Errorf("devicemanager: Scan is not legal while the monitor is running")
	}
	handles, err := m.source.Enumerate()
	if err != nil {
		return err
	}
	for _, h := range handles {
		m.handleAdd(h, true)
	}
	return nil
}

// ApplyDevicePolicy writes target to the device's attribute store entry
// per the target-application mapping, serialized by a per-device lock.
func (m *Manager) ApplyDevicePolicy(id uint32, target rule.Target) error {
	lock := m.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	m.mu.RLock()
	handle, ok := m.idToHandle[id]
	m.mu.RUnlock()
	if !ok {
		return herr.ErrUnknownDevice
	}

	var relpath, value string
	switch target {
	case rule.TargetAllow:
		relpath, value = "authorized", "1"
	case rule.TargetBlock:
		relpath, value = "authorized", "0"
	case rule.TargetReject:
		relpath, value = "remove", "1"
	default:
		return herr.ErrInvalidTarget
	}
	if err := m.store.Write(handle, relpath, []byte(value)); err != nil {
		return &herr.IOError{Path: handle, Cause: err}
	}
	return nil
}

// Allow, Block, and Reject apply the named target to the device with
// id and return its updated snapshot.
func (m *Manager) Allow(id uint32) (*device.Device, error) { return m.applyAndSnapshot(id, rule.TargetAllow) }
func (m *Manager) Block(id uint32) (*device.Device, error) { return m.applyAndSnapshot(id, rule.TargetBlock) }
func (m *Manager) Reject(id uint32) (*device.Device, error) {
	return m.applyAndSnapshot(id, rule.TargetReject)
}

func (m *Manager) applyAndSnapshot(id uint32, target rule.Target) (*device.Device, error) {
	if err := m.ApplyDevicePolicy(id, target); err != nil {
		return nil, err
	}
	m.mu.Lock()
	d, ok := m.devices[id]
	if !ok {
		m.mu.Unlock()
		return nil, herr.ErrUnknownDevice
	}
	updated := d.WithTarget(target)
	m.devices[id] = updated
	m.mu.Unlock()
	return updated, nil
}

// GetDevice returns the current snapshot of the device with id.
func (m *Manager) GetDevice(id uint32) (*device.Device, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.devices[id]
	if !ok {
		return nil, herr.ErrUnknownDevice
	}
	return d, nil
}

// ListDevices returns a snapshot of every currently tracked device.
func (m *Manager) ListDevices() []*device.Device {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*device.Device, 0, len(m.devices))
	for _, d := range m.devices {
		out = append(out, d)
	}
	return out
}

func (m *Manager) lockFor(id uint32) *sync.Mutex {
	v, _ := m.deviceLocks.LoadOrStore(id, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// ingestDevice implements the ingestion algorithm: resolve the parent,
// read mandatory attributes, parse and hash descriptors, and assign a
// fresh id. It does not apply any policy decision or publish any hook;
// callers decide how to react to a construction failure.
func (m *Manager) ingestDevice(handle string, scanning bool) (*device.Device, error) {
	parentID, parentHandle, err := m.resolveParent(handle)
	if err != nil {
		return nil, err
	}

	serial, _ := m.store.GetAttr(handle, "serial")
	product, _ := m.store.GetAttr(handle, "product")
	vendorHex, _ := m.store.GetAttr(handle, "idVendor")
	productHex, _ := m.store.GetAttr(handle, "idProduct")
	authorized, _ := m.store.GetAttr(handle, "authorized")
	initialTarget := rule.TargetBlock
	if strings.TrimSpace(string(authorized)) == "1" {
		initialTarget = rule.TargetAllow
	}

	stream, err := m.store.OpenStream(handle, "descriptors")
	if err != nil {
		return nil, &herr.DeviceConstruction{Syspath: handle, Cause: err}
	}
	descriptorBytes, err := io.ReadAll(stream)
	stream.Close()
	if err != nil {
		return nil, &herr.DeviceConstruction{Syspath: handle, Cause: err}
	}

	p := descriptor.NewParser(true)
	result, err := p.Parse(descriptorBytes)
	if err != nil {
		return nil, &herr.DeviceConstruction{Syspath: handle, Cause: err}
	}

	vendor, _ := strconv.ParseUint(strings.TrimSpace(string(vendorHex)), 16, 16)
	prod, _ := strconv.ParseUint(strings.TrimSpace(string(productHex)), 16, 16)

	id := m.nextID.Add(1) - 1

	d := device.NewBuilder(handle).
		ID(id).
		ParentID(parentID).
		Name(string(product)).
		VendorProduct(uint16(vendor), uint16(prod)).
		Serial(string(serial)).
		Port(portName(handle)).
		InterfaceTypes(result.InterfaceTypes).
		Target(initialTarget).
		HashDescriptorBytes(descriptorBytes[:result.ConsumedBytes]).
		HashParentHandle(parentHandle).
		Build()

	m.mu.Lock()
	m.handleToID[handle] = id
	m.idToHandle[id] = handle
	m.devices[id] = d
	m.mu.Unlock()

	return d, nil
}

// resolveParent implements ingestion step 1: if handle's port name has
// no USB parent, the parent is the implicit root and parent_hash
// digests a synthetic host-controller identifier; otherwise the parent
// must already be registered, and parent_hash digests its handle.
func (m *Manager) resolveParent(handle string) (parentID uint32, parentHandle string, err error) {
	port := portName(handle)
	parentPort, hasParent := parentPortName(port)
	if !hasParent {
		return rule.RootID, "controller:" + port, nil
	}

	parentHandle = siblingHandle(handle, parentPort)
	m.mu.RLock()
	id, ok := m.handleToID[parentHandle]
	m.mu.RUnlock()
	if !ok {
		return 0, "", errUnknownParent
	}
	return id, parentHandle, nil
}

// portName returns the final path component of an opaque sysfs-style
// handle, the USB port path rules match against via via-port.
func portName(handle string) string {
	if idx := strings.LastIndexByte(handle, '/'); idx >= 0 {
		return handle[idx+1:]
	}
	return handle
}

// siblingHandle rewrites handle's final path component to name, used
// to derive a parent's handle from a child's.
func siblingHandle(handle, name string) string {
	if idx := strings.LastIndexByte(handle, '/'); idx >= 0 {
		return handle[:idx+1] + name
	}
	return name
}

// parentPortName derives a USB port path's parent per the kernel's
// naming convention ("<bus>-<port>[.<port>]*"): a root hub handle
// ("usbN") has no USB parent; any other port's parent is itself with
// its final ".N" segment removed, or the bus's root hub if none
// remains.
func parentPortName(port string) (string, bool) {
	if strings.HasPrefix(port, "usb") {
		return "", false
	}
	dash := strings.IndexByte(port, '-')
	if dash < 0 {
		return "", false
	}
	bus, path := port[:dash], port[dash+1:]
	if idx := strings.LastIndexByte(path, '.'); idx >= 0 {
		return bus + "-" + path[:idx], true
	}
	return "usb" + bus, true
}
