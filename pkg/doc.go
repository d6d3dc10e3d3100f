// Package pkg provides shared utilities for the softcdc channel.
//
// This package contains common functionality used by the channel core, the
// transports, and the host tooling, including:
//
//   - Structured logging via Go's standard [log/slog] package
//   - Sentinel errors for the channel failure taxonomy
//   - Component identifiers for log filtering
//
// # Logging
//
// The logging subsystem wraps [log/slog] with component context:
//
//	pkg.SetLogLevel(slog.LevelDebug)
//	pkg.LogInfo(pkg.ComponentChannel, "channel initialized", "txCapacity", 512)
//
// # Errors
//
// Failure modes are sentinel values. None of them is fatal: a timeout
// carries a partial count, a busy transport is retried on the next tick.
//
//	n, err := ch.Write(ctx, data, time.Second)
//	if errors.Is(err, pkg.ErrTimeout) {
//	    // n bytes were queued before the deadline
//	}
package pkg
