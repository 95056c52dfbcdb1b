// Package libusb opens STM32 DFU devices with github.com/google/gousb.
// It needs the libusb-1.0 shared library and cgo, and works on every
// platform libusb supports.
package libusb
