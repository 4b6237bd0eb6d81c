//go:build linux

package osnotify

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// sysfsUSBPath is the base path for USB devices in sysfs.
const sysfsUSBPath = "/sys/bus/usb/devices"

// sysfsStore implements AttributeStore over the real Linux sysfs tree,
// treating a device's handle as its absolute path under sysfsUSBPath.
type sysfsStore struct{}

// NewSysfsAttributeStore returns an AttributeStore backed by the real
// sysfs tree.
func NewSysfsAttributeStore() AttributeStore { return sysfsStore{} }

func (sysfsStore) GetAttr(handle, name string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(handle, name))
	if err != nil {
		return nil, err
	}
	return []byte(strings.TrimRight(string(data), "\n")), nil
}

func (sysfsStore) OpenStream(handle, relpath string) (io.ReadCloser, error) {
	return os.Open(filepath.Join(handle, relpath))
}

func (sysfsStore) Write(handle, relpath string, data []byte) error {
	return os.WriteFile(filepath.Join(handle, relpath), data, 0o644)
}

// enumerateSysfsUSBDevices lists the handles of every usb_device
// present under sysfsUSBPath, root hubs ("usbN") included, skipping the
// interface entries that sysfs intermixes in the same directory.
func enumerateSysfsUSBDevices() ([]string, error) {
	entries, err := os.ReadDir(sysfsUSBPath)
	if err != nil {
		return nil, fmt.Errorf("osnotify: read %s: %w", sysfsUSBPath, err)
	}

	var handles []string
	for _, entry := range entries {
		name := entry.Name()
		if strings.Contains(name, ":") {
			continue // interface entry, e.g. "1-1:1.0"
		}
		handles = append(handles, filepath.Join(sysfsUSBPath, name))
	}
	return handles, nil
}
