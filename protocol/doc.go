// Package protocol implements the wire format of ST's USB DFU bootloader.
//
// The bootloader speaks a vendor flavour of the USB DFU 1.1a class protocol
// (ST application note AN3156). Everything travels over control transfers on
// endpoint 0:
//
//	OUT 0x21 DNLOAD    wValue=0      vendor command ([0x21 addr] [0x41] [0x92])
//	OUT 0x21 DNLOAD    wValue=n+2    firmware block n
//	IN  0xA1 UPLOAD    wValue=n+2    memory block n
//	IN  0xA1 GETSTATUS 6 bytes       [bStatus][bwPollTimeout x3][bState][iString]
//	OUT 0x21 CLRSTATUS no data
//
// Block transfers are relative to the address pointer set with
// SetAddressPointerCmd; the device advances by one block per wValue.
//
// # Command Builders
//
//	protocol.SetAddressPointerCmd(protocol.InternalFlashStart)
//	protocol.MassEraseCmd()
//	protocol.ReadUnprotectCmd()
//
// # Status Decoding
//
//	st, err := protocol.ParseStatus(buf)
//	if st.State == protocol.Error {
//	    // ...
//	}
package protocol
