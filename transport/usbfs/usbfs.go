package usbfs

import (
	"errors"
	"fmt"
	"sync"
	"time"

	usb "github.com/kevmo314/go-usb"
)

// ErrClosed is returned by transfers on a released device.
var ErrClosed = errors.New("usbfs: device released")

// Device is a DFU interface claimed through the kernel's usbfs.
type Device struct {
	mu      sync.Mutex
	handle  *usb.DeviceHandle
	iface   uint8
	version uint16
}

// Open finds the first device matching vid:pid, detaches any kernel driver
// from iface and claims it.
func Open(vid, pid uint16, iface uint8) (*Device, error) {
	h, err := usb.OpenDevice(vid, pid)
	if err != nil {
		if errors.Is(err, usb.ErrDeviceNotFound) {
			return nil, fmt.Errorf("no device %04x:%04x: %w", vid, pid, err)
		}
		return nil, fmt.Errorf("failed to open %04x:%04x: %w", vid, pid, err)
	}

	// no driver bound is the normal case for DFU
	_ = h.DetachKernelDriver(iface)

	if err := h.ClaimInterface(iface); err != nil {
		h.Close()
		return nil, fmt.Errorf("failed to claim interface %d: %w", iface, err)
	}

	return newDevice(h, iface, h.Descriptor()), nil
}

func newDevice(h *usb.DeviceHandle, iface uint8, desc usb.DeviceDescriptor) *Device {
	return &Device{
		handle:  h,
		iface:   iface,
		version: desc.DeviceVersion,
	}
}

// ControlTransfer implements bootloader.Device.
func (d *Device) ControlTransfer(requestType, request uint8, value, index uint16, data []byte, timeout time.Duration) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.handle == nil {
		return -1, ErrClosed
	}
	return d.handle.ControlTransfer(requestType, request, value, index, data, timeout)
}

// Connected reports whether the device is still claimed.
func (d *Device) Connected() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.handle != nil
}

// DeviceVersion returns bcdDevice as read at open time.
func (d *Device) DeviceVersion() uint16 {
	return d.version
}

// Release gives up the interface and closes the handle. It is safe to call
// more than once, and after the device reset itself.
func (d *Device) Release() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.handle == nil {
		return nil
	}
	h := d.handle
	d.handle = nil

	// fails once the device has left the bus
	_ = h.ReleaseInterface(d.iface)
	return h.Close()
}
