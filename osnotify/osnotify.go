// Package osnotify defines the OS-facing seams the device manager
// consumes: a notification Source delivering USB hotplug events and an
// AttributeStore exposing the sysfs-equivalent per-device attribute
// files. Platform implementations live in build-tagged files; tests and
// non-Linux builds use fakes satisfying the same interfaces.
package osnotify

import (
	"errors"
	"io"
	"time"
)

// Action identifies the kind of hotplug event a Source delivered.
type Action int

const (
	ActionAdd Action = iota
	ActionRemove
	ActionChange
)

// String returns a lowercase name for a, for logging.
func (a Action) String() string {
	switch a {
	case ActionAdd:
		return "add"
	case ActionRemove:
		return "remove"
	case ActionChange:
		return "change"
	default:
		return "unknown"
	}
}

// Event is one hotplug notification: an action applied to the opaque
// handle (syspath) of the affected device.
type Event struct {
	Action Action
	Handle string
}

// ErrTimeout is returned by Source.Receive when no event arrived within
// the source's internal poll timeout. The device manager's monitor loop
// treats it as a cue to recheck for shutdown and re-enter Receive.
var ErrTimeout = errors.New("osnotify: receive timed out")

// ErrStopped is returned by Source.Receive after Wake has been called,
// signalling the monitor loop to exit.
var ErrStopped = errors.New("osnotify: source stopped")

// Source delivers USB hotplug notifications and enumerates devices
// already present. A single goroutine calls Receive in a loop; Wake and
// Close may be called concurrently from any goroutine.
type Source interface {
	// Enumerate returns the opaque handles of every usb_device currently
	// present, for use by DeviceManager.Scan.
	Enumerate() ([]string, error)
	// Receive blocks until an event arrives, the internal poll times
	// out (ErrTimeout), or Wake is called (ErrStopped).
	Receive() (Event, error)
	// Wake causes a blocked Receive call to return ErrStopped.
	Wake() error
	// Close releases the source's OS resources. Receive must not be
	// called after Close.
	Close() error
}

// AttributeStore reads and writes the sysfs-equivalent attribute files
// associated with a device handle.
type AttributeStore interface {
	// GetAttr reads the named attribute file under handle. The sysfs
	// store trims any trailing newline; MemAttributeStore returns the
	// stored bytes unchanged.
	GetAttr(handle, name string) ([]byte, error)
	// OpenStream opens relpath under handle for streaming reads, used
	// for the concatenated "descriptors" blob.
	OpenStream(handle, relpath string) (io.ReadCloser, error)
	// Write writes data to relpath under handle.
	Write(handle, relpath string, data []byte) error
}

// pollTimeout is the multiplexed-wait timeout the monitor loop relies
// on to periodically recheck for shutdown, per the concurrency model.
const pollTimeout = 5 * time.Second
