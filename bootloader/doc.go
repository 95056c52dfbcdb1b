// Package bootloader drives the STM32 system bootloader over USB DFU.
//
// # Overview
//
// A Programmer runs four top-level operations against a Device:
//   - MassErase: erase the whole flash, or remove read protection when set
//   - Program: write a flat binary image to the internal flash
//   - Verify: read the image range back and compare it byte for byte
//   - IsProtected: probe whether the flash is read-protected
//
// Every operation first drives the device to dfuIDLE with CLRSTATUS and
// GETSTATUS, then issues its commands strictly in sequence. Operations block
// for the whole transfer (seconds for an erase, longer for large images), so
// interactive applications should run them off the UI goroutine.
//
// # Basic Usage
//
//	dev, err := usbfs.Open(protocol.VendorID, protocol.ProductID, 0)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer dev.Release()
//
//	prog := bootloader.New(dev,
//	    bootloader.WithStatusCallback(func(msg string) { fmt.Println(msg) }),
//	)
//
//	if err := prog.MassErase(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	if err := prog.Program(ctx, firmware.FileProvider{Path: "app.bin"}); err != nil {
//	    log.Fatal(err)
//	}
//	ok, err := prog.Verify(ctx, firmware.FileProvider{Path: "app.bin"})
//
// # Device Detach
//
// The programmer borrows its Device. When the device goes away, call
// SetDevice(nil); subsequent operations report "No device connected" and
// return ErrNotConnected without touching USB. Commands that reset the
// device (read unprotect, Leave) release it and detach it automatically.
//
// # Bounded Polling
//
// Waiting for dfuIDLE is bounded by WithMaxPollAttempts and WithIdleTimeout
// and honours context cancellation; exhausting the budget returns a
// *TimeoutError matching ErrTimedOut.
//
// # Error Handling
//
// The package provides structured error types:
//   - TransportError: a control transfer failed
//   - StateError: the device reported an unexpected state (ErrUnexpectedState)
//   - AddressRejectedError: dfuERROR after setting an address (ErrAddressRejected)
//   - VerificationError: read-back data differs (ErrVerificationMismatch)
//   - TimeoutError: the device never returned to dfuIDLE (ErrTimedOut)
//   - firmware.ErrFileNotFound: no firmware image was available
//
// Each top-level operation also reports its failure through the status
// callback; no rollback is attempted, so a failed Program leaves the flash
// partially written until Program is run again.
package bootloader
