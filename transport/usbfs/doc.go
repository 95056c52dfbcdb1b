// Package usbfs opens STM32 DFU devices with github.com/kevmo314/go-usb,
// talking to the kernel's usbfs directly without cgo or libusb.
//
//	dev, err := usbfs.Open(protocol.VendorID, protocol.ProductID, 0)
//	if err != nil {
//	    return err
//	}
//	defer dev.Release()
//	prog := bootloader.New(dev)
package usbfs
