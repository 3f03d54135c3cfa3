// Package logging provides debug logging utilities for the telnet server.
package logging

import "log"

// DebugEnabled controls whether Debug() produces output.
// Set via cmd/telnetd's -debug flag.
var DebugEnabled bool

// Debug logs a message only when DebugEnabled is true.
func Debug(format string, args ...any) {
	if DebugEnabled {
		log.Printf("DEBUG: "+format, args...)
	}
}
