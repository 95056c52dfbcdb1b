// Package simulator provides an in-memory STM32 DFU bootloader.
//
// A Bootloader implements bootloader.Device and bootloader.Releaser and
// follows the device side of the DFU state machine closely enough to run
// every Programmer operation against it: commands execute on the second
// GETSTATUS, block transfers are relative to the address pointer, read
// protection rejects address pointers and wipes the flash on unprotect, and
// unprotect or leave make the device drop off the bus until Reattach.
//
//	dev := simulator.New(simulator.WithFlashSize(64 << 10))
//	prog := bootloader.New(dev)
//	err := prog.Program(ctx, firmware.Bytes(image, "image.bin"))
package simulator
