// Package telemetry provides structured logging shared across the rule
// engine, descriptor parser, policy, and device manager packages.
//
// The package is designed to have zero external dependencies, relying
// only on the Go standard library.
//
// # Logging
//
// The logging subsystem wraps [log/slog] with component tagging:
//
//	telemetry.SetLogLevel(slog.LevelDebug)
//	telemetry.LogInfo(telemetry.ComponentDevice, "device authorized", "id", id)
package telemetry
