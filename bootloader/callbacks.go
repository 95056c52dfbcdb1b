package bootloader

import "time"

// Operation phases reported in Progress.Phase.
const (
	PhaseErasing     = "erasing"
	PhaseProgramming = "programming"
	PhaseReading     = "reading"
	PhaseComplete    = "complete"
)

// StatusFunc receives the human-readable status and result messages of the
// top-level operations ("Mass erase completed in 812 ms", "Image written is
// OK", ...). It is the programmer's only user-facing output channel.
//
// Example:
//
//	prog := bootloader.New(dev,
//	    bootloader.WithStatusCallback(func(msg string) {
//	        statusView.SetText(msg)
//	    }),
//	)
type StatusFunc func(msg string)

// Progress contains information about a block transfer in flight.
type Progress struct {
	// Phase is one of PhaseErasing, PhaseProgramming, PhaseReading or PhaseComplete
	Phase string

	// Block is the number of blocks transferred so far
	Block int

	// TotalBlocks is the number of blocks in the transfer
	TotalBlocks int

	// Percentage is the completion percentage (0.0 to 100.0)
	Percentage float64

	// Bytes is the number of image bytes transferred so far
	Bytes int

	// ElapsedTime is the time elapsed since the transfer started
	ElapsedTime time.Duration
}

// ProgressCallback is called after every block transfer.
// Implementations should return quickly to avoid stalling the device.
type ProgressCallback func(Progress)

// Logger is an optional structured logging interface. *slog.Logger
// satisfies it.
type Logger interface {
	Debug(msg string, keysAndValues ...interface{})
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}
