package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetAddressPointerCmd(t *testing.T) {
	tests := []struct {
		name    string
		address uint32
		want    []byte
	}{
		{
			name:    "internal flash start",
			address: InternalFlashStart,
			want:    []byte{0x21, 0x00, 0x00, 0x00, 0x08},
		},
		{
			name:    "option bytes",
			address: OptionBytesStart,
			want:    []byte{0x21, 0x00, 0xC0, 0xFF, 0x1F},
		},
		{
			name:    "unaligned address",
			address: 0x08012345,
			want:    []byte{0x21, 0x45, 0x23, 0x01, 0x08},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SetAddressPointerCmd(tt.address))
		})
	}
}

func TestEraseCommands(t *testing.T) {
	assert.Equal(t, []byte{0x41}, MassEraseCmd())
	assert.Equal(t, []byte{0x41, 0x00, 0x40, 0x00, 0x08}, PageEraseCmd(0x08004000))
	assert.Equal(t, []byte{0x92}, ReadUnprotectCmd())
}

func TestCommandsReturnFreshSlices(t *testing.T) {
	a := MassEraseCmd()
	a[0] = 0x00
	assert.Equal(t, byte(CmdErase), MassEraseCmd()[0])
}

func TestBlockValue(t *testing.T) {
	tests := []struct {
		name    string
		block   int
		want    uint16
		wantErr bool
	}{
		{name: "first block", block: 0, want: 2},
		{name: "second block", block: 1, want: 3},
		{name: "large block", block: 511, want: 513},
		{name: "last representable", block: 0xFFFD, want: 0xFFFF},
		{name: "overflow", block: 0xFFFE, wantErr: true},
		{name: "negative", block: -1, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := BlockValue(tt.block)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.GreaterOrEqual(t, got, uint16(FirstBlockValue))
		})
	}
}

func TestBlockAddress(t *testing.T) {
	assert.Equal(t, uint32(0x08000000), BlockAddress(InternalFlashStart, 0, TransferSize))
	assert.Equal(t, uint32(0x08000800), BlockAddress(InternalFlashStart, 1, TransferSize))
	assert.Equal(t, uint32(0x08002000), BlockAddress(InternalFlashStart, 4, TransferSize))
}

func TestRequestTypes(t *testing.T) {
	assert.Equal(t, 0x21, RequestTypeOut)
	assert.Equal(t, 0xA1, RequestTypeIn)
}
