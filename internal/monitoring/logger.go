// Package monitoring holds the engine's diagnostic logging hooks.
//
// The simulation core never writes to stdout directly. It reports through
// Logf and Warnf, which the process layer can redirect and tests can mute.
package monitoring

import (
	"log"
	"sync/atomic"
)

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger.
var Logf func(format string, v ...interface{}) = log.Printf

// warnings counts every Warnf call since process start or the last
// ResetWarnings. The collaborator layer surfaces it in exports.
var warnings atomic.Int64

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Warnf logs a recoverable condition (bad configuration, unknown road ID,
// missing geometry) with a "warning:" prefix and bumps the warning counter.
func Warnf(format string, v ...interface{}) {
	warnings.Add(1)
	Logf("warning: "+format, v...)
}

// Warnings returns the number of warnings logged.
func Warnings() int64 { return warnings.Load() }

// ResetWarnings zeroes the warning counter.
func ResetWarnings() { warnings.Store(0) }
