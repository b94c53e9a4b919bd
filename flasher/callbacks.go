package flasher

import "time"

// Progress reports how far a read, write, or erase operation has gotten.
// Passed to ProgressCallback only while the driver is in the Working or
// Verifying state.
type Progress struct {
	// Phase names the sub-step currently running, e.g. "erasing",
	// "writing", "reading", "verifying".
	Phase string

	// CurrentSector is the sector index currently being processed.
	CurrentSector int

	// TotalSectors is the total number of sectors the operation will
	// touch.
	TotalSectors int

	// Percentage is the completion percentage (0.0 to 100.0).
	Percentage float64

	// BytesDone is the number of bytes read, written, or verified so far.
	BytesDone int

	// ElapsedTime is the time elapsed since the operation started.
	ElapsedTime time.Duration

	// Attempt is the current 1-based retry attempt for the unit of work
	// in progress (sector, packet, sync cycle).
	Attempt int

	// MaxAttempts is the retry budget for that unit of work.
	MaxAttempts int
}

// ProgressCallback is called periodically during read/write/erase to report
// progress. Implementations should return quickly; drivers call it
// synchronously on the operation goroutine.
type ProgressCallback func(Progress)

// Logger is an optional logging interface a caller can provide to observe
// what a driver is doing. Logging is permitted in every State, not just
// Working and Verifying, so drivers call it from sync, identification, and
// teardown code too.
type Logger interface {
	Debug(msg string, keysAndValues ...interface{})
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// Log dispatches to the Logger method matching level. A nil Logger is a
// no-op, letting callers pass Options{Logger: nil} without every driver
// call site needing a nil check.
func Log(l Logger, level LogLevel, msg string, keysAndValues ...interface{}) {
	if l == nil {
		return
	}
	switch level {
	case LogDebug:
		l.Debug(msg, keysAndValues...)
	case LogWarn:
		l.Warn(msg, keysAndValues...)
	case LogError:
		l.Error(msg, keysAndValues...)
	default:
		l.Info(msg, keysAndValues...)
	}
}
