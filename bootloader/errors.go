package bootloader

import (
	"errors"
	"fmt"
	"time"

	"github.com/moffa90/go-stm32dfu/protocol"
)

// Sentinel errors. The structured error types below match them with errors.Is.
var (
	// ErrNotConnected is returned when no device is attached to the programmer
	ErrNotConnected = errors.New("no device connected")

	// ErrReadProtected is returned by Program when the flash is read-protected
	ErrReadProtected = errors.New("device is read-protected")

	// ErrUnexpectedState matches *StateError
	ErrUnexpectedState = errors.New("unexpected device state")

	// ErrAddressRejected matches *AddressRejectedError
	ErrAddressRejected = errors.New("address rejected")

	// ErrVerificationMismatch matches *VerificationError
	ErrVerificationMismatch = errors.New("verification mismatch")

	// ErrTimedOut matches *TimeoutError
	ErrTimedOut = errors.New("timed out waiting for device")
)

// TransportError indicates that the underlying control transfer failed.
type TransportError struct {
	// Op is the DFU request that failed
	Op string

	// Err is the error reported by the transport
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("USB failed during %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// StateError indicates that the device reported a state other than the one
// the current step requires.
type StateError struct {
	Op       string
	Expected protocol.State
	Actual   protocol.State
	Code     protocol.StatusCode
}

func (e *StateError) Error() string {
	if e.Actual == protocol.Error {
		return fmt.Sprintf("%s: device entered %s: %s", e.Op, e.Actual, e.Code)
	}
	return fmt.Sprintf("%s: unexpected state %s, expected %s", e.Op, e.Actual, e.Expected)
}

func (e *StateError) Is(target error) bool {
	return target == ErrUnexpectedState
}

// AddressRejectedError indicates that the device entered dfuERROR right
// after an address pointer was set, e.g. because the address is outside the
// flash or the flash is read-protected.
type AddressRejectedError struct {
	Address uint32
	Code    protocol.StatusCode
}

func (e *AddressRejectedError) Error() string {
	return fmt.Sprintf("start address 0x%08X not supported: %s", e.Address, e.Code)
}

func (e *AddressRejectedError) Is(target error) bool {
	return target == ErrAddressRejected
}

// VerificationError indicates that the bytes read back differ from the image.
type VerificationError struct {
	// Offset is the first differing byte, relative to the image start
	Offset   int
	Expected byte
	Actual   byte
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("verification failed at offset 0x%X: expected 0x%02X, got 0x%02X",
		e.Offset, e.Expected, e.Actual)
}

func (e *VerificationError) Is(target error) bool {
	return target == ErrVerificationMismatch
}

// TimeoutError indicates that the device did not return to dfuIDLE within
// the configured attempt or time budget.
type TimeoutError struct {
	Op       string
	Attempts int
	Elapsed  time.Duration
	Last     protocol.State
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s: device still in %s after %d attempts (%s)",
		e.Op, e.Last, e.Attempts, e.Elapsed.Round(time.Millisecond))
}

func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimedOut
}
