package simulator

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/moffa90/go-stm32dfu/protocol"
)

// Errors returned by ControlTransfer.
var (
	// ErrDisconnected is returned once the device has reset or was released
	ErrDisconnected = errors.New("simulator: device disconnected")

	// ErrStall is returned for requests the bootloader does not accept in
	// its current state
	ErrStall = errors.New("simulator: pipe stalled")
)

// Transfer is one recorded control transfer.
type Transfer struct {
	RequestType uint8
	Request     uint8
	Value       uint16
	Index       uint16
	Length      int

	// Command is the first payload byte of a wValue=0 DNLOAD, or -1
	Command int
}

type opKind int

const (
	opNone opKind = iota
	opSetAddress
	opMassErase
	opPageErase
	opUnprotect
	opWrite
	opLeave
)

type pendingOp struct {
	kind    opKind
	address uint32
	block   int
	data    []byte
}

// Bootloader simulates the DFU side of an STM32 system bootloader.
//
// Flash behaves like NOR flash: erasing sets bytes to 0xFF and writing can
// only clear bits, so writing over non-erased flash corrupts the data just
// like the real part. Bootloader is safe for concurrent use.
type Bootloader struct {
	mu sync.Mutex

	flashBase uint32
	flash     []byte
	pageSize  int
	protected bool
	connected bool
	version   uint16
	eraseTime time.Duration
	writeTime time.Duration

	state   protocol.State
	status  protocol.StatusCode
	address uint32
	pending pendingOp

	failBlock int
	transfers []Transfer
	resets    int
}

// New creates a connected, unprotected bootloader with erased flash.
func New(opts ...Option) *Bootloader {
	b := &Bootloader{
		flashBase: protocol.InternalFlashStart,
		pageSize:  2048,
		connected: true,
		version:   0x2200,
		eraseTime: 10 * time.Millisecond,
		writeTime: 0,
		state:     protocol.Idle,
		failBlock: -1,
	}
	size := protocol.InternalFlashSize

	for _, opt := range opts {
		opt(b, &size)
	}

	b.flash = make([]byte, size)
	b.eraseAll()
	return b
}

// ControlTransfer implements bootloader.Device.
func (b *Bootloader) ControlTransfer(requestType, request uint8, value, index uint16, data []byte, timeout time.Duration) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t := Transfer{RequestType: requestType, Request: request, Value: value, Index: index, Length: len(data), Command: -1}
	if request == protocol.ReqDnload && value == protocol.CommandBlockValue && len(data) > 0 {
		t.Command = int(data[0])
	}
	b.transfers = append(b.transfers, t)

	if !b.connected {
		return -1, ErrDisconnected
	}

	in := requestType&protocol.DirIn != 0
	switch {
	case request == protocol.ReqGetStatus && in:
		return b.handleGetStatus(data)
	case request == protocol.ReqClrStatus && !in:
		b.handleClrStatus()
		return 0, nil
	case request == protocol.ReqDnload && !in:
		return b.handleDnload(value, data)
	case request == protocol.ReqUpload && in:
		return b.handleUpload(value, data)
	case request == protocol.ReqGetState && in:
		if len(data) < 1 {
			return b.stall()
		}
		data[0] = byte(b.state)
		return 1, nil
	case request == protocol.ReqAbort && !in:
		b.pending = pendingOp{}
		b.state = protocol.Idle
		return 0, nil
	default:
		return b.stall()
	}
}

// Connected implements bootloader.Device.
func (b *Bootloader) Connected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connected
}

// DeviceVersion implements bootloader.Device.
func (b *Bootloader) DeviceVersion() uint16 {
	return b.version
}

// Release implements bootloader.Releaser. The device stays detached until
// Reattach is called.
func (b *Bootloader) Release() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.connected = false
	return nil
}

// Reattach simulates the device re-enumerating in DFU mode.
func (b *Bootloader) Reattach() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.connected = true
	b.state = protocol.Idle
	b.status = protocol.StatusOK
	b.pending = pendingOp{}
}

// Protect enables or disables read protection.
func (b *Bootloader) Protect(on bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.protected = on
}

// Protected reports whether read protection is active.
func (b *Bootloader) Protected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.protected
}

// Resets returns how many times the device reset itself.
func (b *Bootloader) Resets() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.resets
}

// Flash returns a copy of n bytes of flash starting at address.
func (b *Bootloader) Flash(address uint32, n int) []byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	off, ok := b.offset(address, n)
	if !ok {
		return nil
	}
	out := make([]byte, n)
	copy(out, b.flash[off:off+n])
	return out
}

// Poke overwrites flash bytes directly, bypassing NOR semantics.
func (b *Bootloader) Poke(address uint32, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	off, ok := b.offset(address, len(data))
	if !ok {
		return fmt.Errorf("address 0x%08X out of range", address)
	}
	copy(b.flash[off:], data)
	return nil
}

// FailBlock makes the write of image block n fail with errWRITE. A negative
// n disables the fault.
func (b *Bootloader) FailBlock(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failBlock = n
}

// Transfers returns the control transfers seen so far.
func (b *Bootloader) Transfers() []Transfer {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Transfer, len(b.transfers))
	copy(out, b.transfers)
	return out
}

// State returns the current DFU state.
func (b *Bootloader) State() protocol.State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Bootloader) handleGetStatus(data []byte) (int, error) {
	if len(data) < protocol.StatusResponseSize {
		return b.stall()
	}

	var poll time.Duration
	switch b.state {
	case protocol.DownloadSync:
		b.state = protocol.DownloadBusy
		switch b.pending.kind {
		case opMassErase, opPageErase:
			poll = b.eraseTime
		case opWrite:
			poll = b.writeTime
		case opUnprotect:
			n := copy(data, protocol.EncodeStatus(protocol.Status{Code: protocol.StatusOK, State: protocol.DownloadBusy}))
			b.reset()
			return n, nil
		}
	case protocol.DownloadBusy:
		b.execute()
	case protocol.ManifestSync:
		b.state = protocol.Manifest
		n := copy(data, protocol.EncodeStatus(protocol.Status{Code: protocol.StatusOK, State: protocol.Manifest}))
		b.connected = false
		return n, nil
	}

	return copy(data, protocol.EncodeStatus(protocol.Status{Code: b.status, State: b.state, PollTimeout: poll})), nil
}

func (b *Bootloader) handleClrStatus() {
	if b.state == protocol.DownloadBusy {
		b.execute()
	}
	b.state = protocol.Idle
	b.status = protocol.StatusOK
	b.pending = pendingOp{}
}

func (b *Bootloader) handleDnload(value uint16, data []byte) (int, error) {
	if b.state != protocol.Idle && b.state != protocol.DownloadIdle {
		return b.stall()
	}

	switch {
	case value == protocol.CommandBlockValue && len(data) == 0:
		b.pending = pendingOp{kind: opLeave}
		b.state = protocol.ManifestSync
		return 0, nil
	case value == protocol.CommandBlockValue:
		op, ok := decodeCommand(data)
		if !ok {
			return b.stall()
		}
		b.pending = op
	case value < protocol.FirstBlockValue:
		return b.stall()
	default:
		buf := make([]byte, len(data))
		copy(buf, data)
		b.pending = pendingOp{kind: opWrite, block: int(value) - protocol.FirstBlockValue, data: buf}
	}

	b.state = protocol.DownloadSync
	return len(data), nil
}

func decodeCommand(data []byte) (pendingOp, bool) {
	addr := func() uint32 {
		return uint32(data[1]) | uint32(data[2])<<8 | uint32(data[3])<<16 | uint32(data[4])<<24
	}

	switch {
	case data[0] == protocol.CmdSetAddressPointer && len(data) == protocol.CommandPayloadSize:
		return pendingOp{kind: opSetAddress, address: addr()}, true
	case data[0] == protocol.CmdErase && len(data) == 1:
		return pendingOp{kind: opMassErase}, true
	case data[0] == protocol.CmdErase && len(data) == protocol.CommandPayloadSize:
		return pendingOp{kind: opPageErase, address: addr()}, true
	case data[0] == protocol.CmdReadUnprotect && len(data) == 1:
		return pendingOp{kind: opUnprotect}, true
	default:
		return pendingOp{}, false
	}
}

func (b *Bootloader) handleUpload(value uint16, data []byte) (int, error) {
	if b.state != protocol.Idle && b.state != protocol.UploadIdle {
		return b.stall()
	}

	if value == protocol.CommandBlockValue {
		cmds := []byte{protocol.CmdGetCommands, protocol.CmdSetAddressPointer, protocol.CmdErase, protocol.CmdReadUnprotect}
		b.state = protocol.UploadIdle
		return copy(data, cmds), nil
	}
	if value < protocol.FirstBlockValue || b.protected {
		return b.stall()
	}

	block := int(value) - protocol.FirstBlockValue
	addr := b.address + uint32(block*len(data))
	off, ok := b.offset(addr, len(data))
	if !ok {
		b.state = protocol.Error
		b.status = protocol.StatusErrAddress
		return -1, ErrStall
	}

	b.state = protocol.UploadIdle
	return copy(data, b.flash[off:off+len(data)]), nil
}

// execute runs the pending download command.
func (b *Bootloader) execute() {
	op := b.pending
	b.pending = pendingOp{}
	b.state = protocol.DownloadIdle

	switch op.kind {
	case opSetAddress:
		switch {
		case b.protected:
			b.fail(protocol.StatusErrVendor)
		case !b.inFlash(op.address):
			b.fail(protocol.StatusErrAddress)
		default:
			b.address = op.address
		}
	case opMassErase:
		if b.protected {
			b.fail(protocol.StatusErrVendor)
			return
		}
		b.eraseAll()
	case opPageErase:
		if b.protected {
			b.fail(protocol.StatusErrVendor)
			return
		}
		if !b.inFlash(op.address) {
			b.fail(protocol.StatusErrAddress)
			return
		}
		page := int(op.address-b.flashBase) / b.pageSize * b.pageSize
		end := min(page+b.pageSize, len(b.flash))
		for i := page; i < end; i++ {
			b.flash[i] = 0xFF
		}
	case opWrite:
		if b.protected {
			b.fail(protocol.StatusErrVendor)
			return
		}
		if op.block == b.failBlock {
			b.fail(protocol.StatusErrWrite)
			return
		}
		addr := b.address + uint32(op.block*len(op.data))
		off, ok := b.offset(addr, len(op.data))
		if !ok {
			b.fail(protocol.StatusErrAddress)
			return
		}
		for i, v := range op.data {
			b.flash[off+i] &= v
		}
	}
}

func (b *Bootloader) fail(code protocol.StatusCode) {
	b.state = protocol.Error
	b.status = code
}

func (b *Bootloader) stall() (int, error) {
	b.state = protocol.Error
	b.status = protocol.StatusErrStalledPkt
	return -1, ErrStall
}

// reset models the chip-wide unprotect: flash is wiped, protection cleared
// and the device drops off the bus.
func (b *Bootloader) reset() {
	b.protected = false
	b.eraseAll()
	b.connected = false
	b.state = protocol.Idle
	b.status = protocol.StatusOK
	b.pending = pendingOp{}
	b.resets++
}

func (b *Bootloader) eraseAll() {
	for i := range b.flash {
		b.flash[i] = 0xFF
	}
}

func (b *Bootloader) inFlash(address uint32) bool {
	return address >= b.flashBase && uint64(address) < uint64(b.flashBase)+uint64(len(b.flash))
}

func (b *Bootloader) offset(address uint32, n int) (int, bool) {
	if !b.inFlash(address) {
		return 0, false
	}
	off := int(address - b.flashBase)
	if off+n > len(b.flash) {
		return 0, false
	}
	return off, true
}
