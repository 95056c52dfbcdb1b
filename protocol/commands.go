package protocol

import (
	"encoding/binary"
	"fmt"
)

// SetAddressPointerCmd builds the DNLOAD payload that sets the address used
// by subsequent block transfers.
//
// Payload:
//
//	[0x21][ADDR_0][ADDR_1][ADDR_2][ADDR_3]
func SetAddressPointerCmd(address uint32) []byte {
	return addressCmd(CmdSetAddressPointer, address)
}

// MassEraseCmd builds the DNLOAD payload that erases the entire flash.
func MassEraseCmd() []byte {
	return []byte{CmdErase}
}

// PageEraseCmd builds the DNLOAD payload that erases the page containing address.
//
// Payload:
//
//	[0x41][ADDR_0][ADDR_1][ADDR_2][ADDR_3]
func PageEraseCmd(address uint32) []byte {
	return addressCmd(CmdErase, address)
}

// ReadUnprotectCmd builds the DNLOAD payload that removes read protection.
// The device erases its flash and resets once the command executes.
func ReadUnprotectCmd() []byte {
	return []byte{CmdReadUnprotect}
}

func addressCmd(cmd byte, address uint32) []byte {
	payload := make([]byte, CommandPayloadSize)
	payload[0] = cmd
	binary.LittleEndian.PutUint32(payload[1:], address)
	return payload
}

// BlockValue returns the wValue that carries image block n.
func BlockValue(n int) (uint16, error) {
	if n < 0 {
		return 0, fmt.Errorf("block number %d is negative", n)
	}
	v := n + FirstBlockValue
	if v > 0xFFFF {
		return 0, fmt.Errorf("block number %d does not fit in wValue", n)
	}
	return uint16(v), nil
}

// BlockAddress returns the flash address that image block n lands on when the
// address pointer was set to start.
func BlockAddress(start uint32, n, blockSize int) uint32 {
	return start + uint32(n*blockSize)
}
