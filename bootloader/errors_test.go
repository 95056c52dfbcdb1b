package bootloader

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/moffa90/go-stm32dfu/protocol"
)

func TestTransportError(t *testing.T) {
	err := &TransportError{Op: "getStatus", Err: errUSB}

	assert.Equal(t, "USB failed during getStatus: usb: pipe error", err.Error())
	assert.ErrorIs(t, err, errUSB)

	wrapped := fmt.Errorf("read block 3: %w", err)
	var te *TransportError
	if assert.ErrorAs(t, wrapped, &te) {
		assert.Equal(t, "getStatus", te.Op)
	}
}

func TestStateError(t *testing.T) {
	t.Run("unexpected state", func(t *testing.T) {
		err := &StateError{Op: "download block 0", Expected: protocol.DownloadBusy, Actual: protocol.DownloadIdle}

		assert.Contains(t, err.Error(), "download block 0")
		assert.Contains(t, err.Error(), "dfuDNLOAD-IDLE")
		assert.Contains(t, err.Error(), "dfuDNBUSY")
		assert.ErrorIs(t, err, ErrUnexpectedState)
		assert.NotErrorIs(t, err, ErrAddressRejected)
	})

	t.Run("error state", func(t *testing.T) {
		err := &StateError{
			Op:       "download block 2",
			Expected: protocol.DownloadIdle,
			Actual:   protocol.Error,
			Code:     protocol.StatusErrWrite,
		}

		assert.Contains(t, err.Error(), "dfuERROR")
		assert.Contains(t, err.Error(), protocol.StatusErrWrite.String())
		assert.ErrorIs(t, err, ErrUnexpectedState)
	})
}

func TestAddressRejectedError(t *testing.T) {
	err := &AddressRejectedError{Address: protocol.InternalFlashStart, Code: protocol.StatusErrVendor}

	assert.Contains(t, err.Error(), "0x08000000")
	assert.Contains(t, err.Error(), "not supported")
	assert.ErrorIs(t, err, ErrAddressRejected)
	assert.ErrorIs(t, fmt.Errorf("write block 0: %w", err), ErrAddressRejected)
}

func TestVerificationError(t *testing.T) {
	err := &VerificationError{Offset: 0x1234, Expected: 0xAB, Actual: 0xCD}

	msg := err.Error()
	assert.Contains(t, msg, "0x1234")
	assert.Contains(t, msg, "0xAB")
	assert.Contains(t, msg, "0xCD")
	assert.ErrorIs(t, err, ErrVerificationMismatch)
}

func TestTimeoutError(t *testing.T) {
	err := &TimeoutError{
		Op:       "mass erase",
		Attempts: 1000,
		Elapsed:  1500 * time.Millisecond,
		Last:     protocol.DownloadBusy,
	}

	msg := err.Error()
	assert.Contains(t, msg, "mass erase")
	assert.Contains(t, msg, "1000 attempts")
	assert.Contains(t, msg, "dfuDNBUSY")
	assert.Contains(t, msg, "1.5s")
	assert.ErrorIs(t, err, ErrTimedOut)
	assert.False(t, errors.Is(err, ErrUnexpectedState))
}

func TestMismatch(t *testing.T) {
	tests := []struct {
		name   string
		want   []byte
		got    []byte
		offset int
	}{
		{"first byte", []byte{1, 2, 3}, []byte{9, 2, 3}, 0},
		{"middle byte", []byte{1, 2, 3}, []byte{1, 9, 3}, 1},
		{"short read", []byte{1, 2, 3}, []byte{1, 2}, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := mismatch(tt.want, tt.got)
			assert.Equal(t, tt.offset, err.Offset)
			assert.Equal(t, tt.want[tt.offset], err.Expected)
		})
	}
}
