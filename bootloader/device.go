package bootloader

import "time"

// Device is the USB transport the programmer drives. It is borrowed, never
// owned: the caller opens it, and may swap it for nil with SetDevice when the
// device detaches.
type Device interface {
	// ControlTransfer performs a control transfer on endpoint 0. The
	// direction follows bit 7 of requestType; data is sent or filled in
	// place and its length is wLength. It returns the number of bytes
	// transferred.
	ControlTransfer(requestType, request uint8, value, index uint16, data []byte, timeout time.Duration) (int, error)

	// Connected reports whether the device is open and usable.
	Connected() bool

	// DeviceVersion returns bcdDevice, the bootloader version.
	DeviceVersion() uint16
}

// Releaser is implemented by devices that can give up their interface and
// connection. The programmer releases the device after commands that make it
// reset.
type Releaser interface {
	Release() error
}
