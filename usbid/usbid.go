// Package usbid resolves vendor and product identifiers against the
// system's usb.ids database, for turning a bare DeviceID into a
// human-readable name in logs and CLI output.
package usbid

import (
	"bufio"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/coredevice/usbpolicyd/rule"
)

// DefaultPaths lists the standard locations for the USB ID database.
var DefaultPaths = []string{
	"/usr/share/hwdata/usb.ids",
	"/var/lib/usbutils/usb.ids",
	"/usr/share/misc/usb.ids",
}

// Database caches vendor and product names loaded from a usb.ids file.
type Database struct {
	mu       sync.RWMutex
	vendors  map[uint16]string
	products map[uint32]string
	loaded   bool
	paths    []string
}

// New returns a Database that searches DefaultPaths on Load.
func New() *Database {
	return NewWithPaths(DefaultPaths)
}

// NewWithPaths returns a Database that searches paths, in order, on
// Load.
func NewWithPaths(paths []string) *Database {
	return &Database{
		vendors:  make(map[uint16]string),
		products: make(map[uint32]string),
		paths:    paths,
	}
}

// Load parses the first database file found among paths. Idempotent:
// later calls are no-ops. Returns false if none of paths could be
// opened; a Database that failed to load answers every lookup with an
// empty string rather than erroring.
func (db *Database) Load() bool {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.loaded {
		return db.vendors != nil && len(db.vendors) > 0
	}
	db.loaded = true

	for _, path := range db.paths {
		file, err := os.Open(path)
		if err != nil {
			continue
		}
		db.parse(file)
		file.Close()
		return true
	}
	return false
}

// parse reads the usb.ids line format: a vendor line is "vvvv  Name" at
// column 0; a product line is "\tpppp  Name" indented one tab under the
// most recently seen vendor line.
func (db *Database) parse(f *os.File) {
	scanner := bufio.NewScanner(f)
	var currentVendor uint16
	haveVendor := false

	for scanner.Scan() {
		line := scanner.Text()
		if len(line) == 0 || line[0] == '#' {
			continue
		}

		if line[0] == '\t' {
			if !haveVendor {
				continue
			}
			name, pid, ok := parseIDLine(line[1:])
			if !ok {
				continue
			}
			db.products[productKey(currentVendor, pid)] = name
			continue
		}

		name, vid, ok := parseIDLine(line)
		if !ok {
			haveVendor = false
			continue
		}
		currentVendor = vid
		haveVendor = true
		db.vendors[currentVendor] = name
	}
}

// parseIDLine splits a "xxxx  Name" line into its 16-bit hex id and
// trimmed name.
func parseIDLine(line string) (name string, id uint16, ok bool) {
	if len(line) < 6 || line[4] != ' ' {
		return "", 0, false
	}
	v, err := strconv.ParseUint(line[:4], 16, 16)
	if err != nil {
		return "", 0, false
	}
	return strings.TrimLeft(line[5:], " "), uint16(v), true
}

func productKey(vendor, product uint16) uint32 {
	return uint32(vendor)<<16 | uint32(product)
}

// LookupVendor returns the vendor name for vid, or "" if unknown.
func (db *Database) LookupVendor(vid uint16) string {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.vendors[vid]
}

// LookupProduct returns the product name for the (vid, pid) pair, or ""
// if unknown.
func (db *Database) LookupProduct(vid, pid uint16) string {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.products[productKey(vid, pid)]
}

// Describe renders id as "Vendor Name Product Name (vvvv:pppp)",
// falling back to the bare hex pair for any name not found.
func (db *Database) Describe(id rule.DeviceID) string {
	vendor := db.LookupVendor(id.Vendor)
	product := db.LookupProduct(id.Vendor, id.Product)

	switch {
	case vendor != "" && product != "":
		return vendor + " " + product + " (" + id.String() + ")"
	case vendor != "":
		return vendor + " (" + id.String() + ")"
	default:
		return id.String()
	}
}
