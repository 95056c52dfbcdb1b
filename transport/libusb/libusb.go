package libusb

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/gousb"
)

// ErrClosed is returned by transfers on a released device.
var ErrClosed = errors.New("libusb: device released")

// ErrNotFound is returned by Open when no device matches.
var ErrNotFound = errors.New("libusb: device not found")

// Device is a DFU interface claimed through libusb.
type Device struct {
	mu   sync.Mutex
	ctx  *gousb.Context
	dev  *gousb.Device
	cfg  *gousb.Config
	intf *gousb.Interface

	version uint16
}

// Open finds the first device matching vid:pid and claims interface iface
// (alternate setting 0) of configuration 1.
func Open(vid, pid uint16, iface int) (d *Device, err error) {
	ctx := gousb.NewContext()
	defer func() {
		if err != nil {
			ctx.Close()
		}
	}()

	dev, err := ctx.OpenDeviceWithVIDPID(gousb.ID(vid), gousb.ID(pid))
	if err != nil {
		return nil, fmt.Errorf("failed to open %04x:%04x: %w", vid, pid, err)
	}
	if dev == nil {
		return nil, fmt.Errorf("%04x:%04x: %w", vid, pid, ErrNotFound)
	}

	if err := dev.SetAutoDetach(true); err != nil {
		dev.Close()
		return nil, fmt.Errorf("failed to enable auto detach: %w", err)
	}

	cfg, err := dev.Config(1)
	if err != nil {
		dev.Close()
		return nil, fmt.Errorf("failed to select configuration: %w", err)
	}

	intf, err := cfg.Interface(iface, 0)
	if err != nil {
		cfg.Close()
		dev.Close()
		return nil, fmt.Errorf("failed to claim interface %d: %w", iface, err)
	}

	return &Device{
		ctx:     ctx,
		dev:     dev,
		cfg:     cfg,
		intf:    intf,
		version: bcdToUint16(dev.Desc.Device),
	}, nil
}

// bcdToUint16 packs a gousb.BCD back into the raw bcdDevice word.
func bcdToUint16(v gousb.BCD) uint16 {
	return uint16(v)
}

// ControlTransfer implements bootloader.Device.
func (d *Device) ControlTransfer(requestType, request uint8, value, index uint16, data []byte, timeout time.Duration) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.dev == nil {
		return -1, ErrClosed
	}
	d.dev.ControlTimeout = timeout
	return d.dev.Control(requestType, request, value, index, data)
}

// Connected reports whether the device is still claimed.
func (d *Device) Connected() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dev != nil
}

// DeviceVersion returns bcdDevice as read at open time.
func (d *Device) DeviceVersion() uint16 {
	return d.version
}

// Release releases the interface and closes the device and its context.
// It is safe to call more than once.
func (d *Device) Release() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.dev == nil {
		return nil
	}

	d.intf.Close()
	// closing the config fails once the device has reset
	_ = d.cfg.Close()
	errDev := d.dev.Close()
	errCtx := d.ctx.Close()

	d.intf, d.cfg, d.dev, d.ctx = nil, nil, nil, nil
	return errors.Join(errDev, errCtx)
}
