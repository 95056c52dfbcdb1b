package firmware

import (
	"fmt"

	"github.com/moffa90/go-stm32dfu/protocol"
)

// Element1Offset is the offset into the raw file where flashable data begins.
// Container headers are not parsed, so images are flat binaries starting at 0.
const Element1Offset = 0

// Image is a flat firmware binary destined for a fixed flash address.
//
// Images are built fresh for every program or verify operation and must not
// be modified afterwards.
type Image struct {
	// Data is the raw file content
	Data []byte

	// Path is where the image was loaded from (diagnostics only)
	Path string

	// StartAddress is the flash address the image is written to
	StartAddress uint32

	// Length is the number of bytes transferred, len(Data) - Element1Offset
	Length int

	// MaxBlockSize is the transfer chunk size
	MaxBlockSize int

	// TargetName, TargetSize and NumElements mirror the DfuSe container
	// target prefix. They are reserved and never populated.
	TargetName  string
	TargetSize  uint32
	NumElements uint32
}

// NewImage wraps raw file content as an image at the internal flash base
// address, transferred in protocol.TransferSize blocks.
func NewImage(data []byte, path string) (*Image, error) {
	if len(data) <= Element1Offset {
		return nil, fmt.Errorf("firmware %q is empty: %w", path, ErrFileNotFound)
	}

	return &Image{
		Data:         data,
		Path:         path,
		StartAddress: protocol.InternalFlashStart,
		Length:       len(data) - Element1Offset,
		MaxBlockSize: protocol.TransferSize,
	}, nil
}

// Payload returns the bytes that end up in flash.
func (img *Image) Payload() []byte {
	return img.Data[Element1Offset : Element1Offset+img.Length]
}

// Blocks returns the number of full blocks and the size of the trailing
// partial block (zero when the image is block aligned).
func (img *Image) Blocks() (full, remainder int) {
	full = img.Length / img.MaxBlockSize
	remainder = img.Length - full*img.MaxBlockSize
	return full, remainder
}

// TotalBlocks returns the number of DNLOAD blocks needed to write the image.
func (img *Image) TotalBlocks() int {
	full, rem := img.Blocks()
	if rem > 0 {
		return full + 1
	}
	return full
}

// EndAddress returns the first address past the image.
func (img *Image) EndAddress() uint32 {
	return img.StartAddress + uint32(img.Length)
}

// Validate checks the image invariants.
func (img *Image) Validate() error {
	if img.MaxBlockSize <= 0 {
		return fmt.Errorf("invalid block size %d", img.MaxBlockSize)
	}
	if img.Length <= 0 {
		return fmt.Errorf("invalid element length %d", img.Length)
	}
	if img.Length != len(img.Data)-Element1Offset {
		return fmt.Errorf("element length %d does not match file size %d", img.Length, len(img.Data))
	}
	return nil
}
