// Package safego provides a panic-recovering goroutine launcher for background work.
package safego

import (
	"log/slog"
	"runtime/debug"
)

// Go launches fn in a new goroutine. A panic in fn is recovered and logged
// instead of crashing the process. Use it for every fire-and-forget goroutine
// (background jobs, scan event publishing).
func Go(fn func()) {
	GoNamed("", fn)
}

// GoNamed is Go with a task name attached to the panic log entry
func GoNamed(name string, fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				attrs := []any{"panic", r, "stack", string(debug.Stack())}
				if name != "" {
					attrs = append(attrs, "task", name)
				}
				slog.Error("recovered panic in background goroutine", attrs...)
			}
		}()
		fn()
	}()
}
