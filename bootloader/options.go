package bootloader

import (
	"time"

	"github.com/moffa90/go-stm32dfu/protocol"
)

// Config holds the programmer configuration.
type Config struct {
	// StatusCallback receives status and result messages (optional)
	StatusCallback StatusFunc

	// ProgressCallback is called after every block transfer (optional)
	ProgressCallback ProgressCallback

	// Logger is used for logging operations (optional)
	Logger Logger

	// Interface is the wIndex of every DFU request
	Interface uint16

	// MaxPollAttempts bounds the CLRSTATUS/GETSTATUS rounds spent waiting
	// for dfuIDLE. Zero means no attempt limit.
	MaxPollAttempts int

	// IdleTimeout bounds the wall-clock time spent waiting for dfuIDLE.
	// Zero means no time limit.
	IdleTimeout time.Duration

	// StatusTimeout is the control transfer timeout for GETSTATUS
	StatusTimeout time.Duration

	// CommandTimeout is the control transfer timeout for vendor commands
	CommandTimeout time.Duration

	// UploadTimeout is the control transfer timeout for block uploads
	UploadTimeout time.Duration

	// DownloadTimeout is the control transfer timeout for block downloads
	DownloadTimeout time.Duration
}

// defaultConfig returns the default configuration.
func defaultConfig() Config {
	return Config{
		MaxPollAttempts: 1000,
		IdleTimeout:     30 * time.Second,
		StatusTimeout:   protocol.DefaultStatusTimeout,
		CommandTimeout:  protocol.DefaultCommandTimeout,
		UploadTimeout:   protocol.DefaultUploadTimeout,
		DownloadTimeout: protocol.DefaultDownloadTimeout,
	}
}

// Option is a functional option for configuring the Programmer.
type Option func(*Config)

// WithStatusCallback sets the sink for status and result messages.
func WithStatusCallback(fn StatusFunc) Option {
	return func(c *Config) {
		c.StatusCallback = fn
	}
}

// WithProgressCallback sets a callback to track block transfers.
//
// Example:
//
//	prog := bootloader.New(dev,
//	    bootloader.WithProgressCallback(func(p bootloader.Progress) {
//	        fmt.Printf("%.1f%% complete\n", p.Percentage)
//	    }),
//	)
func WithProgressCallback(callback ProgressCallback) Option {
	return func(c *Config) {
		c.ProgressCallback = callback
	}
}

// WithLogger sets a logger for the programmer operations.
//
// Example:
//
//	prog := bootloader.New(dev, bootloader.WithLogger(slog.Default()))
func WithLogger(logger Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// WithInterface sets the DFU interface number used as wIndex.
func WithInterface(iface uint16) Option {
	return func(c *Config) {
		c.Interface = iface
	}
}

// WithMaxPollAttempts bounds the number of CLRSTATUS/GETSTATUS rounds spent
// waiting for dfuIDLE. Zero disables the limit.
func WithMaxPollAttempts(n int) Option {
	return func(c *Config) {
		if n >= 0 {
			c.MaxPollAttempts = n
		}
	}
}

// WithIdleTimeout bounds the wall-clock time spent waiting for dfuIDLE.
// Zero disables the limit.
func WithIdleTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		if timeout >= 0 {
			c.IdleTimeout = timeout
		}
	}
}

// WithStatusTimeout sets the GETSTATUS control transfer timeout.
func WithStatusTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		c.StatusTimeout = timeout
	}
}

// WithCommandTimeout sets the vendor command control transfer timeout.
func WithCommandTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		c.CommandTimeout = timeout
	}
}

// WithUploadTimeout sets the block upload control transfer timeout.
func WithUploadTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		c.UploadTimeout = timeout
	}
}

// WithDownloadTimeout sets the block download control transfer timeout.
func WithDownloadTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		c.DownloadTimeout = timeout
	}
}
