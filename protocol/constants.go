package protocol

import "time"

// Request type bits for DFU class requests addressed to an interface.
const (
	// RequestTypeOut is a class request to the interface, host to device (0x21)
	RequestTypeOut = 0x21

	// DirIn marks a device-to-host transfer
	DirIn = 0x80

	// RequestTypeIn is RequestTypeOut with the IN direction bit set (0xA1)
	RequestTypeIn = RequestTypeOut | DirIn
)

// DFU class request codes (bRequest).
const (
	// ReqDetach asks a run-time device to enter DFU mode (unused by ST's bootloader)
	ReqDetach = 0x00

	// ReqDnload transfers a command or firmware block to the device
	ReqDnload = 0x01

	// ReqUpload reads a block of memory from the device
	ReqUpload = 0x02

	// ReqGetStatus reads the 6-byte status record
	ReqGetStatus = 0x03

	// ReqClrStatus clears an error condition and returns the device to dfuIDLE
	ReqClrStatus = 0x04

	// ReqGetState reads the current state byte
	ReqGetState = 0x05

	// ReqAbort aborts the current transfer and returns to dfuIDLE
	ReqAbort = 0x06
)

// ST vendor commands sent as the payload of a DNLOAD with wValue=0.
const (
	// CmdGetCommands is the command list returned by UPLOAD with wValue=0
	CmdGetCommands = 0x00

	// CmdSetAddressPointer sets the address used by subsequent block transfers
	CmdSetAddressPointer = 0x21

	// CmdErase erases the whole flash (no argument) or one page (4-byte address)
	CmdErase = 0x41

	// CmdReadUnprotect clears read protection; the device erases flash and resets
	CmdReadUnprotect = 0x92
)

// Block numbering. wValue 0 carries vendor commands, wValue 1 is reserved, so
// image block n travels as wValue n+2.
const (
	// CommandBlockValue is the wValue used for vendor commands
	CommandBlockValue = 0

	// FirstBlockValue is the wValue of image block 0
	FirstBlockValue = 2
)

// STM32 memory map and transfer parameters.
const (
	// InternalFlashStart is the base address of the internal flash
	InternalFlashStart = 0x08000000

	// InternalFlashSize is the flash size of the reference part (STM32F405RG, 1 MiB)
	InternalFlashSize = 1 << 20

	// OptionBytesStart is the base address of the option bytes on STM32F4
	OptionBytesStart = 0x1FFFC000

	// InternalFlashDescriptor is the alternate setting string reported by the reference part
	InternalFlashDescriptor = "@Internal Flash  /0x08000000/04*016Kg,01*064Kg,07*128Kg"

	// TransferSize is the block size used for program and verify
	TransferSize = 2048
)

// USB identifiers of the ST system bootloader in DFU mode.
const (
	// VendorID is STMicroelectronics' USB vendor ID
	VendorID = 0x0483

	// ProductID is the product ID of the DFU bootloader
	ProductID = 0xDF11
)

// Status response layout.
const (
	// StatusResponseSize is the length of the GETSTATUS response
	StatusResponseSize = 6

	// CommandPayloadSize is the length of an address-carrying vendor command
	CommandPayloadSize = 5
)

// Default control transfer timeouts. Zero means no timeout.
const (
	// DefaultStatusTimeout bounds GETSTATUS requests
	DefaultStatusTimeout = 500 * time.Millisecond

	// DefaultCommandTimeout bounds vendor command DNLOADs
	DefaultCommandTimeout = 50 * time.Millisecond

	// DefaultUploadTimeout bounds block UPLOADs
	DefaultUploadTimeout = 100 * time.Millisecond

	// DefaultDownloadTimeout bounds block DNLOADs
	DefaultDownloadTimeout = 0
)
