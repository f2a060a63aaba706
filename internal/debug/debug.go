package debug

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync/atomic"
)

// Debug levels
const (
	LevelOff     = 0 // No output
	LevelInfo    = 1 // Lifecycle and faults (subsystems up/down, devices)
	LevelLive    = 2 // Live info (commands, device events)
	LevelVerbose = 3 // Verbose (trajectory retargets, winch state changes)
	LevelTrace   = 4 // Trace (GPIO, very low level)
)

var (
	level  atomic.Int32
	logger = log.New(os.Stdout, "[RoverGo] ", log.LstdFlags|log.Lmicroseconds)
)

// Init sets the debug level (0-4).
// 0 = no output
// 1 = lifecycle and faults
// 2 = live info (commands, gamepad events)
// 3 = verbose (trajectories, winch state)
// 4 = trace (GPIO, very low level)
func Init(debugLevel int) {
	level.Store(int32(debugLevel))
}

// SetOutput redirects all debug output (e.g. to the web broadcaster or the dashboard).
func SetOutput(w io.Writer) {
	logger.SetOutput(w)
}

// Level returns the current debug level.
func Level() int {
	return int(level.Load())
}

// IsEnabled returns true if debug level is >= the requested level.
func IsEnabled(minLevel int) bool {
	return Level() >= minLevel
}

func logf(minLevel int, format string, args ...interface{}) {
	if Level() >= minLevel {
		logger.Printf(format, args...)
	}
}

// --- Level 1 functions (Info) ---

// Info prints a level 1 message (important info).
func Info(format string, args ...interface{}) {
	logf(LevelInfo, "[INFO] "+format, args...)
}

// Summary prints a framed title (level 1).
func Summary(title string) {
	if Level() >= LevelInfo {
		logger.Printf("═══════════════════════════════════════")
		logger.Printf("  %s", title)
		logger.Printf("═══════════════════════════════════════")
	}
}

// Value prints a named value (level 1).
func Value(name string, value interface{}) {
	logf(LevelInfo, "[INFO]   %s = %v", name, value)
}

// Fault reports a subsystem-fatal error. The subsystem is degraded, the process keeps running.
func Fault(subsystem string, err error) {
	logf(LevelInfo, "[FAULT] %s: %v", subsystem, err)
}

// Device prints a gamepad lifecycle change (level 1).
func Device(action, path, name string) {
	logf(LevelInfo, "[INFO] Gamepad %s: %s (%s)", action, path, name)
}

// --- Level 2 functions (Live) ---

// Live prints a level 2 message (live info).
func Live(format string, args ...interface{}) {
	logf(LevelLive, "[LIVE] "+format, args...)
}

// Command prints a dispatched command (level 2).
func Command(cmd fmt.Stringer) {
	logf(LevelLive, "[LIVE] Command %s", cmd)
}

// --- Level 3 functions (Verbose) ---

// Verbose prints a level 3 message (verbose).
func Verbose(format string, args ...interface{}) {
	logf(LevelVerbose, "[VERBOSE] "+format, args...)
}

// Printf is an alias for Verbose.
func Printf(format string, args ...interface{}) {
	Verbose(format, args...)
}

// PrintStruct prints a struct in formatted form (level 3).
func PrintStruct(name string, v interface{}) {
	logf(LevelVerbose, "[VERBOSE] %s: %+v", name, v)
}

// Section prints a section separator (level 3).
func Section(name string) {
	if Level() >= LevelVerbose {
		logger.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
		logger.Printf("  %s", name)
		logger.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	}
}

// Step prints a numbered step (level 3).
func Step(num int, description string) {
	logf(LevelVerbose, "[VERBOSE] Step %d: %s", num, description)
}

// --- Level 4 functions (Trace) ---

// Trace prints a level 4 message (trace, GPIO).
func Trace(format string, args ...interface{}) {
	logf(LevelTrace, "[TRACE] "+format, args...)
}

// Speeds prints the drive motor values pushed on a tick (level 4).
func Speeds(left, right float64) {
	logf(LevelTrace, "[TRACE] Drive [%.3f, %.3f]", left, right)
}

// GPIO prints a GPIO operation (level 4).
func GPIO(operation string, pin int, value interface{}) {
	logf(LevelTrace, "[GPIO] %s pin=%d value=%v", operation, pin, value)
}

// --- General functions ---

// Error prints a debug error (level 1+).
func Error(err error) {
	logf(LevelInfo, "[ERROR] %v", err)
}
