//go:build usbpolicy_prof

package prof

import (
	"errors"
	"io"
	"net"
	"net/http"
	"os"
	"runtime"
	"runtime/pprof"
	"sync"
	"sync/atomic"
	"time"

	_ "net/http/pprof" // registers HTTP handlers at /debug/pprof/
)

// Profiling errors.
var (
	// ErrCPUProfileActive indicates CPU profiling is already active.
	ErrCPUProfileActive = errors.New("cpu profile already active")

	// ErrCPUProfileNotActive indicates CPU profiling is not active.
	ErrCPUProfileNotActive = errors.New("cpu profile not active")

	// ErrInvalidProfile indicates an invalid or unsupported profile type.
	ErrInvalidProfile = errors.New("invalid profile")
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

var (
	cpuMutex  sync.Mutex
	cpuFile   *os.File
	cpuActive bool
)

// StartCPU starts CPU profiling and writes the profile to path.
func StartCPU(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := startCPU(f); err != nil {
		f.Close()
		return err
	}
	cpuMutex.Lock()
	cpuFile = f
	cpuMutex.Unlock()
	return nil
}

// StartCPUWriter starts CPU profiling and streams samples to w instead of
// a file.
func StartCPUWriter(w io.Writer) error {
	return startCPU(w)
}

func startCPU(w io.Writer) error {
	cpuMutex.Lock()
	defer cpuMutex.Unlock()
	if cpuActive {
		return ErrCPUProfileActive
	}
	if err := pprof.StartCPUProfile(w); err != nil {
		return err
	}
	cpuActive = true
	return nil
}

// StopCPU stops CPU profiling. Safe to call when not active.
func StopCPU() {
	cpuMutex.Lock()
	defer cpuMutex.Unlock()
	if !cpuActive {
		return
	}
	pprof.StopCPUProfile()
	if cpuFile != nil {
		cpuFile.Close()
		cpuFile = nil
	}
	cpuActive = false
}

// IsCPUActive reports whether CPU profiling is currently running.
func IsCPUActive() bool {
	cpuMutex.Lock()
	defer cpuMutex.Unlock()
	return cpuActive
}

// Write writes the named non-CPU profile to a file at path.
func Write(profile Profile, path string) error {
	if profile == ProfileCPU {
		return ErrInvalidProfile
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return writeProfile(profile, f, 0)
}

// WriteTo writes the named non-CPU profile to w in binary protobuf format.
func WriteTo(profile Profile, w io.Writer) error {
	return WriteToDebug(profile, w, 0)
}

// WriteToDebug writes the named non-CPU profile to w; debug 1 produces
// human-readable text instead of binary protobuf.
func WriteToDebug(profile Profile, w io.Writer, debug int) error {
	if profile == ProfileCPU {
		return ErrInvalidProfile
	}
	return writeProfile(profile, w, debug)
}

func writeProfile(profile Profile, w io.Writer, debug int) error {
	p := pprof.Lookup(string(profile))
	if p == nil {
		return ErrInvalidProfile
	}
	return p.WriteTo(w, debug)
}

// SetBlockProfileRate controls the fraction of goroutine blocking events
// reported in the blocking profile; 0 disables it.
func SetBlockProfileRate(rate int) { runtime.SetBlockProfileRate(rate) }

// SetMutexProfileFraction controls the fraction of mutex contention events
// reported in the mutex profile; 0 disables it.
func SetMutexProfileFraction(rate int) { runtime.SetMutexProfileFraction(rate) }

// ServeHTTP starts an HTTP server exposing /debug/pprof/ on addr. It
// returns once the listener is accepting connections; serve errors are
// logged to stderr rather than returned, matching the fire-and-forget
// nature of a diagnostic endpoint.
func ServeHTTP(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	go http.Serve(ln, nil)
	return nil
}

// Instrumentation counters for devicemanager's monitor loop and policy
// matching.
var (
	eventsProcessed atomic.Uint64
	matchCount      atomic.Uint64
	matchNanos      atomic.Uint64
)

// RecordEventProcessed increments the count of hotplug events the
// monitor loop has dispatched.
func RecordEventProcessed() { eventsProcessed.Add(1) }

// RecordPolicyMatchLatency records the duration a single Policy.Match
// call took.
func RecordPolicyMatchLatency(d time.Duration) {
	matchCount.Add(1)
	matchNanos.Add(uint64(d.Nanoseconds()))
}

// Stats is a point-in-time snapshot of the instrumentation counters.
type Stats struct {
	EventsProcessed  uint64
	PolicyMatchCount uint64
	PolicyMatchMean  time.Duration
}

// Snapshot returns the current counter values.
func Snapshot() Stats {
	count := matchCount.Load()
	var mean time.Duration
	if count > 0 {
		mean = time.Duration(matchNanos.Load() / count)
	}
	return Stats{
		EventsProcessed:  eventsProcessed.Load(),
		PolicyMatchCount: count,
		PolicyMatchMean:  mean,
	}
}
