//go:build !usbpolicy_prof

package prof

import (
	"io"
	"time"
)

// Profiling errors (defined for API compatibility but never returned by
// stubs).
var (
	// ErrCPUProfileActive indicates CPU profiling is already active.
	ErrCPUProfileActive error

	// ErrCPUProfileNotActive indicates CPU profiling is not active.
	ErrCPUProfileNotActive error

	// ErrInvalidProfile indicates an invalid or unsupported profile type.
	ErrInvalidProfile error
)

// Profile names a pprof profile type.
type Profile string

// Profile type constants.
const (
	ProfileCPU          Profile = "cpu"
	ProfileHeap         Profile = "heap"
	ProfileAllocs       Profile = "allocs"
	ProfileGoroutine    Profile = "goroutine"
	ProfileThreadCreate Profile = "threadcreate"
	ProfileBlock        Profile = "block"
	ProfileMutex        Profile = "mutex"
)

// String returns the string representation of the profile type.
func (p Profile) String() string { return string(p) }

// StartCPU is a no-op without the usbpolicy_prof tag.
func StartCPU(_ string) error { return nil }

// StartCPUWriter is a no-op without the usbpolicy_prof tag.
func StartCPUWriter(_ io.Writer) error { return nil }

// StopCPU is a no-op without the usbpolicy_prof tag.
func StopCPU() {}

// IsCPUActive always returns false without the usbpolicy_prof tag.
func IsCPUActive() bool { return false }

// Write is a no-op without the usbpolicy_prof tag.
func Write(_ Profile, _ string) error { return nil }

// WriteTo is a no-op without the usbpolicy_prof tag.
func WriteTo(_ Profile, _ io.Writer) error { return nil }

// WriteToDebug is a no-op without the usbpolicy_prof tag.
func WriteToDebug(_ Profile, _ io.Writer, _ int) error { return nil }

// SetBlockProfileRate is a no-op without the usbpolicy_prof tag.
func SetBlockProfileRate(_ int) {}

// SetMutexProfileFraction is a no-op without the usbpolicy_prof tag.
func SetMutexProfileFraction(_ int) {}

// ServeHTTP is a no-op without the usbpolicy_prof tag.
func ServeHTTP(_ string) error { return nil }

// RecordEventProcessed is a no-op without the usbpolicy_prof tag.
func RecordEventProcessed() {}

// RecordPolicyMatchLatency is a no-op without the usbpolicy_prof tag.
func RecordPolicyMatchLatency(_ time.Duration) {}

// Stats is a point-in-time snapshot of the instrumentation counters.
type Stats struct {
	EventsProcessed  uint64
	PolicyMatchCount uint64
	PolicyMatchMean  time.Duration
}

// Snapshot always returns the zero Stats without the usbpolicy_prof tag.
func Snapshot() Stats { return Stats{} }
