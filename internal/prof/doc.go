// Package prof provides profiling and lightweight runtime instrumentation
// for usbpolicyd.
//
// It wraps [runtime/pprof] with simplified APIs for on-demand profiling,
// plus a pair of counters tracking the device manager's monitor loop and
// policy matching. The whole package is conditionally compiled using the
// usbpolicy_prof build tag:
//
//	go build -tags usbpolicy_prof
//	go test -tags usbpolicy_prof
//
// When built without the tag, every exported function is a no-op and
// [Snapshot] always returns the zero [Stats], so instrumentation call
// sites in devicemanager never need their own build-tag branches.
//
// # HTTP profiling
//
// [ServeHTTP] registers the [net/http/pprof] handlers on addr when built
// with the tag:
//
//	prof.ServeHTTP("localhost:6060")
//	// profiles now available under http://localhost:6060/debug/pprof/
//
// # CPU profiling
//
//	prof.StartCPU("cpu.prof")
//	defer prof.StopCPU()
//
// Starting CPU profiling while already active returns
// [ErrCPUProfileActive].
//
// # Snapshot profiles
//
//	prof.Write(prof.ProfileHeap, "heap.prof")
//	prof.Write(prof.ProfileGoroutine, "goroutine.prof")
//
// [ProfileCPU] cannot be used with [Write] or [WriteTo]; use
// [StartCPU]/[StopCPU] instead.
//
// # Device manager instrumentation
//
// devicemanager calls [RecordEventProcessed] once per dispatched hotplug
// event and [RecordPolicyMatchLatency] around every [policy.Policy.Match]
// call. [Snapshot] exposes the running totals for diagnostics.
package prof
