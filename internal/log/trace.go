package log

import (
	"context"
	"log/slog"
	"time"

	"github.com/moffa90/go-stm32dfu/bootloader"
	"github.com/moffa90/go-stm32dfu/protocol"
)

// TraceDevice wraps a bootloader.Device and records every control transfer
// to a RawLogger and, at LevelTrace, to a slog.Logger.
type TraceDevice struct {
	bootloader.Device

	raw    RawLogger
	logger *slog.Logger
}

// Trace wraps dev. raw and logger may be nil.
func Trace(dev bootloader.Device, raw RawLogger, logger *slog.Logger) *TraceDevice {
	return &TraceDevice{Device: dev, raw: raw, logger: logger}
}

// ControlTransfer forwards the transfer and logs what went out and came back.
func (t *TraceDevice) ControlTransfer(requestType, request uint8, value, index uint16, data []byte, timeout time.Duration) (int, error) {
	in := requestType&protocol.DirIn != 0
	if !in && t.raw != nil {
		t.raw.Log(false, request, value, data)
	}

	start := time.Now()
	n, err := t.Device.ControlTransfer(requestType, request, value, index, data, timeout)

	if in && t.raw != nil && n > 0 && n <= len(data) {
		t.raw.Log(true, request, value, data[:n])
	}
	if t.logger != nil {
		t.logger.Log(context.Background(), LevelTrace, "control transfer",
			"request", protocol.RequestName(request),
			"value", value,
			"index", index,
			"length", len(data),
			"transferred", n,
			"elapsed", time.Since(start),
			"error", err,
		)
	}
	return n, err
}

// Release releases the wrapped device if it supports it.
func (t *TraceDevice) Release() error {
	if r, ok := t.Device.(bootloader.Releaser); ok {
		return r.Release()
	}
	return nil
}
