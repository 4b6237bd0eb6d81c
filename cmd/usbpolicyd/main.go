//go:build linux

package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/coredevice/usbpolicyd/device"
	"github.com/coredevice/usbpolicyd/devicemanager"
	"github.com/coredevice/usbpolicyd/internal/prof"
	"github.com/coredevice/usbpolicyd/osnotify"
	"github.com/coredevice/usbpolicyd/policy"
	"github.com/coredevice/usbpolicyd/rule"
	"github.com/coredevice/usbpolicyd/ruleparser"
	"github.com/coredevice/usbpolicyd/telemetry"
	"github.com/coredevice/usbpolicyd/usbid"
)

const componentDaemon telemetry.Component = "usbpolicyd"

var (
	verbose           = flag.Bool("v", false, "enable debug logging")
	jsonOut           = flag.Bool("json", false, "log as JSON instead of text")
	defaultTargetFlag = flag.String("default-target", "block", "target applied when no rule matches: allow, block, or reject")
	controllerHandle  = flag.String("controller", "", "sysfs handle of the root hub whose authorized_default to manage while running")
	cpuProfile        = flag.String("cpuprofile", "", "write a CPU profile to this path on exit")
	pprofAddr         = flag.String("pprof-addr", "", "serve net/http/pprof on this address (leave empty to disable)")
)

func main() {
	flag.Parse()
	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: usbpolicyd [flags] <rules-file>")
		os.Exit(2)
	}
	rulesPath := flag.Arg(0)

	if *verbose {
		telemetry.SetLogLevel(slog.LevelDebug)
	} else {
		telemetry.SetLogLevel(slog.LevelInfo)
	}
	if *jsonOut {
		telemetry.SetLogFormat(telemetry.LogFormatJSON)
	}
	if *pprofAddr != "" {
		if err := prof.ServeHTTP(*pprofAddr); err != nil {
			telemetry.LogError(componentDaemon, "failed to start pprof listener", "error", err)
			os.Exit(1)
		}
	}
	if *cpuProfile != "" {
		if err := prof.StartCPU(*cpuProfile); err != nil {
			telemetry.LogError(componentDaemon, "failed to start CPU profile", "error", err)
			os.Exit(1)
		}
		defer prof.StopCPU()
	}

	defaultTarget, err := parseTarget(*defaultTargetFlag)
	if err != nil {
		telemetry.LogError(componentDaemon, "invalid default target", "error", err)
		os.Exit(1)
	}

	pol, err := loadPolicy(rulesPath, defaultTarget)
	if err != nil {
		telemetry.LogError(componentDaemon, "failed to load rules", "path", rulesPath, "error", err)
		os.Exit(1)
	}

	source, err := osnotify.NewNetlinkSource()
	if err != nil {
		telemetry.LogError(componentDaemon, "failed to open netlink source", "error", err)
		os.Exit(1)
	}
	defer source.Close()
	store := osnotify.NewSysfsAttributeStore()

	ids := usbid.New()
	ids.Load()

	mgr := devicemanager.New(source, store, pol, hooksFor(ids), *controllerHandle)

	if err := mgr.Scan(); err != nil {
		telemetry.LogError(componentDaemon, "initial scan failed", "error", err)
	}
	if err := mgr.Start(); err != nil {
		telemetry.LogError(componentDaemon, "failed to start device manager", "error", err)
		os.Exit(1)
	}

	telemetry.LogInfo(componentDaemon, "started", "rules", rulesPath, "default_target", defaultTarget.String())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	telemetry.LogInfo(componentDaemon, "shutting down")
	if err := mgr.Stop(); err != nil {
		telemetry.LogError(componentDaemon, "error during shutdown", "error", err)
		os.Exit(1)
	}
}

func parseTarget(s string) (rule.Target, error) {
	switch s {
	case "allow":
		return rule.TargetAllow, nil
	case "block":
		return rule.TargetBlock, nil
	case "reject":
		return rule.TargetReject, nil
	default:
		return rule.TargetInvalid, fmt.Errorf("unknown target %q", s)
	}
}

func loadPolicy(path string, defaultTarget rule.Target) (*policy.Policy, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	rules, err := ruleparser.LoadFile(f)
	if err != nil {
		return nil, err
	}

	pol := policy.New(defaultTarget)
	for _, r := range rules {
		pol.InsertRule(r, policy.Last())
	}
	return pol, nil
}

// hooksFor builds the Hooks set that logs every device lifecycle event,
// resolving vendor/product names through ids where available.
func hooksFor(ids *usbid.Database) devicemanager.Hooks {
	describe := func(d *device.Device) string { return ids.Describe(d.DeviceID()) }

	logDevice := func(msg string) func(*device.Device) {
		return func(d *device.Device) {
			telemetry.LogInfo(componentDaemon, msg,
				"id", d.ID(),
				"port", d.Port(),
				"device", describe(d),
				"serial", d.Serial())
		}
	}

	return devicemanager.Hooks{
		DevicePresent:  logDevice("device present at startup"),
		DeviceInserted: logDevice("device inserted"),
		DeviceAllowed:  logDevice("device allowed"),
		DeviceBlocked:  logDevice("device blocked"),
		DeviceRejected: logDevice("device rejected"),
		DeviceRemoved:  logDevice("device removed"),
	}
}
