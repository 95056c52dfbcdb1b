// Package firmware loads flat firmware binaries for the STM32 DFU bootloader.
//
// Only raw .bin images are supported. An image is written to
// protocol.InternalFlashStart in protocol.TransferSize blocks; DfuSe
// container headers (.dfu files with prefix, target and element records) are
// not parsed.
//
// # Loading Images
//
//	img, err := firmware.Load("app.bin")
//
// Or let a Provider pick the file:
//
//	p := firmware.DirProvider{Dir: "/sdcard/Download"}
//	img, err := p.Load()
//	if errors.Is(err, firmware.ErrFileNotFound) {
//	    // nothing to flash
//	}
package firmware
