package usbid

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/coredevice/usbpolicyd/rule"
)

const sample = `# comment line
1d6b  Linux Foundation
	0002  2.0 root hub
	0003  3.0 root hub
046d  Logitech, Inc.
	c52b  Unifying Receiver
`

func writeSample(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "usb.ids")
	if err := os.WriteFile(path, []byte(sample), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestDatabaseLoadAndLookup(t *testing.T) {
	db := NewWithPaths([]string{writeSample(t)})
	if !db.Load() {
		t.Fatal("Load() = false, want true")
	}
	if got := db.LookupVendor(0x1d6b); got != "Linux Foundation" {
		t.Errorf("LookupVendor(0x1d6b) = %q", got)
	}
	if got := db.LookupProduct(0x1d6b, 0x0002); got != "2.0 root hub" {
		t.Errorf("LookupProduct(0x1d6b, 0x0002) = %q", got)
	}
	if got := db.LookupVendor(0xffff); got != "" {
		t.Errorf("LookupVendor(0xffff) = %q, want empty", got)
	}
}

func TestDatabaseLoadMissingPathsReturnsFalse(t *testing.T) {
	db := NewWithPaths([]string{"/nonexistent/path/usb.ids"})
	if db.Load() {
		t.Error("Load() = true, want false for missing paths")
	}
	if got := db.LookupVendor(0x1d6b); got != "" {
		t.Errorf("LookupVendor() = %q, want empty on unloaded database", got)
	}
}

func TestDatabaseLoadIsIdempotent(t *testing.T) {
	db := NewWithPaths([]string{writeSample(t)})
	db.Load()
	count := len(db.vendors)
	db.Load()
	if len(db.vendors) != count {
		t.Errorf("second Load() changed vendor count: %d != %d", len(db.vendors), count)
	}
}

func TestDatabaseDescribe(t *testing.T) {
	db := NewWithPaths([]string{writeSample(t)})
	db.Load()

	id := rule.DeviceID{Vendor: 0x046d, Product: 0xc52b}
	got := db.Describe(id)
	want := "Logitech, Inc. Unifying Receiver (" + id.String() + ")"
	if got != want {
		t.Errorf("Describe() = %q, want %q", got, want)
	}

	unknown := rule.DeviceID{Vendor: 0xffff, Product: 0xffff}
	if got := db.Describe(unknown); got != unknown.String() {
		t.Errorf("Describe(unknown) = %q, want %q", got, unknown.String())
	}
}
