package bootloader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/moffa90/go-stm32dfu/firmware"
	"github.com/moffa90/go-stm32dfu/protocol"
)

// Programmer drives an STM32 system bootloader through DFU operations:
// mass erase, program, verify and the read-protection probe.
//
// Operations on one Programmer are serialized. SetDevice may be called at any
// time, e.g. from a hotplug handler; operations already running keep the
// device they started with.
type Programmer struct {
	config Config

	opMu sync.Mutex

	devMu sync.RWMutex
	dev   Device
}

// New creates a Programmer for dev. dev may be nil and attached later with
// SetDevice.
//
// Example:
//
//	dev, err := usbfs.Open(protocol.VendorID, protocol.ProductID)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	prog := bootloader.New(dev,
//	    bootloader.WithStatusCallback(func(msg string) { fmt.Println(msg) }),
//	    bootloader.WithIdleTimeout(10*time.Second),
//	)
func New(dev Device, opts ...Option) *Programmer {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Programmer{
		config: cfg,
		dev:    dev,
	}
}

// SetDevice attaches a device, or detaches the current one when dev is nil.
func (p *Programmer) SetDevice(dev Device) {
	p.devMu.Lock()
	defer p.devMu.Unlock()
	p.dev = dev
}

// Device returns the attached device, or nil.
func (p *Programmer) Device() Device {
	p.devMu.RLock()
	defer p.devMu.RUnlock()
	return p.dev
}

// DeviceVersion returns the bootloader version (bcdDevice) of the attached
// device, or 0 when none is attached.
func (p *Programmer) DeviceVersion() uint16 {
	if dev := p.Device(); dev != nil {
		return dev.DeviceVersion()
	}
	return 0
}

// begin locks the programmer for one operation and snapshots the device.
// The returned release function must be called when the operation ends.
func (p *Programmer) begin() (*session, func(), error) {
	p.opMu.Lock()

	dev := p.Device()
	if dev == nil || !dev.Connected() {
		p.opMu.Unlock()
		p.reportStatus("No device connected")
		return nil, nil, ErrNotConnected
	}

	return &session{p: p, dev: dev}, p.opMu.Unlock, nil
}

// detach drops dev from the programmer after it was told to reset, and
// releases it if it supports that.
func (p *Programmer) detach(dev Device) {
	if r, ok := dev.(Releaser); ok {
		if err := r.Release(); err != nil {
			p.logError("release device", "error", err)
		} else {
			p.logInfo("USB was released")
		}
	}

	p.devMu.Lock()
	if p.dev == dev {
		p.dev = nil
	}
	p.devMu.Unlock()
}

// GetStatus reads the current device status.
func (p *Programmer) GetStatus(ctx context.Context) (protocol.Status, error) {
	s, done, err := p.begin()
	if err != nil {
		return protocol.Status{}, err
	}
	defer done()

	return s.getStatus(ctx)
}

// ClearStatus clears an error condition on the device.
func (p *Programmer) ClearStatus(ctx context.Context) error {
	s, done, err := p.begin()
	if err != nil {
		return err
	}
	defer done()

	return s.clearStatus(ctx)
}

// IsProtected reports whether the flash is read-protected, by probing the
// internal flash base with a set-address-pointer command. The device is
// returned to dfuIDLE afterwards.
func (p *Programmer) IsProtected(ctx context.Context) (bool, error) {
	s, done, err := p.begin()
	if err != nil {
		return false, err
	}
	defer done()

	protected, err := s.isProtected(ctx)
	if err != nil {
		p.fail("Protection check", err)
		return false, err
	}
	return protected, nil
}

func (s *session) isProtected(ctx context.Context) (bool, error) {
	const op = "protection check"

	if _, err := s.awaitIdle(ctx, op); err != nil {
		return false, err
	}

	protected := false
	st, err := s.setAddressPointer(ctx, protocol.InternalFlashStart)
	if err != nil {
		if !errors.Is(err, ErrAddressRejected) {
			return false, err
		}
		protected = true
	}

	if _, err := s.drainToIdle(ctx, op, st); err != nil {
		return protected, err
	}

	s.p.logDebug("protection check", "protected", protected)
	return protected, nil
}

// MassErase erases the whole flash. If the flash is read-protected, it
// removes the protection instead: the device erases itself, resets and is
// released, so it must be reopened once it re-enumerates.
func (p *Programmer) MassErase(ctx context.Context) error {
	s, done, err := p.begin()
	if err != nil {
		return err
	}
	defer done()

	if err := s.massErase(ctx); err != nil {
		p.fail("Mass erase", err)
		return err
	}
	return nil
}

func (s *session) massErase(ctx context.Context) error {
	const op = "mass erase"
	start := time.Now()

	if _, err := s.awaitIdle(ctx, op); err != nil {
		return err
	}

	protected, err := s.isProtected(ctx)
	if err != nil {
		return err
	}
	if protected {
		if err := s.removeReadProtection(ctx); err != nil {
			return err
		}
		s.p.reportStatus("Read protection removed. Device resets... wait until it re-enumerates")
		return nil
	}

	s.p.reportProgress(Progress{Phase: PhaseErasing})

	if err := s.massEraseCommand(ctx); err != nil {
		return err
	}

	// reports dfuDNBUSY even for a rejected erase; the poll timeout is what matters
	st, err := s.getStatus(ctx)
	if err != nil {
		return err
	}
	s.p.logDebug("mass erase started", "poll_timeout", st.PollTimeout.String())

	if err := sleep(ctx, st.PollTimeout); err != nil {
		return err
	}
	if _, err := s.awaitIdle(ctx, op); err != nil {
		return err
	}

	elapsed := time.Since(start)
	s.p.reportProgress(Progress{Phase: PhaseComplete, Percentage: 100, ElapsedTime: elapsed})
	s.p.reportStatus(fmt.Sprintf("Mass erase completed in %d ms", elapsed.Milliseconds()))
	s.p.logInfo("mass erase complete", "elapsed", elapsed.String())
	return nil
}

// removeReadProtection sends read unprotect and lets the device reset.
func (s *session) removeReadProtection(ctx context.Context) error {
	if err := s.readUnprotectCommand(ctx); err != nil {
		return err
	}

	st, err := s.getStatus(ctx)
	if err != nil {
		return err
	}
	if st.State != protocol.DownloadBusy {
		return &StateError{Op: "read unprotect", Expected: protocol.DownloadBusy, Actual: st.State, Code: st.Code}
	}

	s.p.detach(s.dev)
	return nil
}

// ErasePage erases the flash page containing address.
func (p *Programmer) ErasePage(ctx context.Context, address uint32) error {
	s, done, err := p.begin()
	if err != nil {
		return err
	}
	defer done()

	if err := s.erasePage(ctx, address); err != nil {
		p.fail("Page erase", err)
		return err
	}
	return nil
}

func (s *session) erasePage(ctx context.Context, address uint32) error {
	const op = "page erase"
	start := time.Now()

	if _, err := s.awaitIdle(ctx, op); err != nil {
		return err
	}
	if err := s.pageEraseCommand(ctx, address); err != nil {
		return err
	}

	st, err := s.getStatus(ctx)
	if err != nil {
		return err
	}
	if err := sleep(ctx, st.PollTimeout); err != nil {
		return err
	}

	st, err = s.getStatus(ctx)
	if err != nil {
		return err
	}
	if st.State == protocol.Error {
		return &AddressRejectedError{Address: address, Code: st.Code}
	}
	if _, err := s.drainToIdle(ctx, op, st); err != nil {
		return err
	}

	s.p.reportStatus(fmt.Sprintf("Page 0x%08X erased in %d ms", address, time.Since(start).Milliseconds()))
	return nil
}

// Program loads an image from src and writes it to the internal flash.
// Address, length and block size are fixed by firmware.NewImage; the device
// is not reset afterwards.
//
// Example:
//
//	err := prog.Program(ctx, firmware.FileProvider{Path: "app.bin"})
func (p *Programmer) Program(ctx context.Context, src firmware.Provider) error {
	s, done, err := p.begin()
	if err != nil {
		return err
	}
	defer done()

	if err := s.program(ctx, src); err != nil {
		if !errors.Is(err, ErrReadProtected) {
			p.fail("Programming", err)
		}
		return err
	}
	return nil
}

func (s *session) program(ctx context.Context, src firmware.Provider) error {
	protected, err := s.isProtected(ctx)
	if err != nil {
		return err
	}
	if protected {
		s.p.reportStatus("Device is read-protected... first mass erase")
		return ErrReadProtected
	}

	img, err := loadImage(src)
	if err != nil {
		return err
	}

	s.p.reportStatus(fmt.Sprintf(
		"File Path: %s\nFile Size: %d Bytes\nElementAddress: 0x%08X\nElementSize: %d Bytes\nStart writing file in blocks of %d Bytes",
		img.Path, len(img.Data), img.StartAddress, img.Length, img.MaxBlockSize))
	s.p.logInfo("programming",
		"path", img.Path,
		"address", fmt.Sprintf("0x%08X", img.StartAddress),
		"bytes", img.Length,
		"blocks", img.TotalBlocks(),
	)

	start := time.Now()
	if err := s.writeImage(ctx, img); err != nil {
		return err
	}

	elapsed := time.Since(start)
	s.p.reportProgress(Progress{
		Phase:       PhaseComplete,
		Block:       img.TotalBlocks(),
		TotalBlocks: img.TotalBlocks(),
		Percentage:  100,
		Bytes:       img.Length,
		ElapsedTime: elapsed,
	})
	s.p.reportStatus(fmt.Sprintf("Programming completed in %d ms", elapsed.Milliseconds()))
	s.p.logInfo("programming complete", "bytes", img.Length, "elapsed", elapsed.String())
	return nil
}

// Verify loads an image from src, reads the same range back from the device
// and compares it byte for byte. A mismatch returns false together with a
// *VerificationError locating the first differing byte.
func (p *Programmer) Verify(ctx context.Context, src firmware.Provider) (bool, error) {
	s, done, err := p.begin()
	if err != nil {
		return false, err
	}
	defer done()

	ok, err := s.verify(ctx, src)
	if err != nil && !errors.Is(err, ErrVerificationMismatch) {
		p.fail("Verification", err)
		return false, err
	}

	if ok {
		p.reportStatus("Image written is OK")
	} else {
		p.reportStatus("Image written is NOT ok")
	}
	return ok, err
}

func (s *session) verify(ctx context.Context, src firmware.Provider) (bool, error) {
	img, err := loadImage(src)
	if err != nil {
		return false, err
	}

	start := time.Now()
	readBack, err := s.readImage(ctx, img.StartAddress, img.MaxBlockSize, img.Length)
	if err != nil {
		return false, err
	}
	s.p.logInfo("verify read complete", "bytes", len(readBack), "elapsed", time.Since(start).String())

	want := img.Payload()
	if bytes.Equal(want, readBack) {
		return true, nil
	}
	return false, mismatch(want, readBack)
}

// mismatch locates the first differing byte of two equal-length buffers.
func mismatch(want, got []byte) *VerificationError {
	for i := range want {
		if i >= len(got) {
			return &VerificationError{Offset: i, Expected: want[i]}
		}
		if want[i] != got[i] {
			return &VerificationError{Offset: i, Expected: want[i], Actual: got[i]}
		}
	}
	return &VerificationError{Offset: len(want)}
}

// ReadFlash uploads length bytes starting at address.
func (p *Programmer) ReadFlash(ctx context.Context, address uint32, length int) ([]byte, error) {
	if length <= 0 {
		return nil, fmt.Errorf("invalid read length %d", length)
	}

	s, done, err := p.begin()
	if err != nil {
		return nil, err
	}
	defer done()

	data, err := s.readImage(ctx, address, protocol.TransferSize, length)
	if err != nil {
		p.fail("Read", err)
		return nil, err
	}

	p.reportStatus(fmt.Sprintf("Read %d bytes from 0x%08X", len(data), address))
	return data, nil
}

// Commands returns the vendor commands the bootloader supports.
func (p *Programmer) Commands(ctx context.Context) ([]byte, error) {
	s, done, err := p.begin()
	if err != nil {
		return nil, err
	}
	defer done()

	if _, err := s.awaitIdle(ctx, "get commands"); err != nil {
		return nil, err
	}
	cmds, err := s.getCommands(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := s.awaitIdle(ctx, "get commands"); err != nil {
		return nil, err
	}
	return cmds, nil
}

// Leave makes the bootloader jump to the application at the internal flash
// base. The device detaches from the bus and is released.
func (p *Programmer) Leave(ctx context.Context) error {
	s, done, err := p.begin()
	if err != nil {
		return err
	}
	defer done()

	if err := s.leave(ctx); err != nil {
		p.fail("Leave DFU mode", err)
		return err
	}
	p.reportStatus("Left DFU mode, application starting")
	return nil
}

func (s *session) leave(ctx context.Context) error {
	const op = "leave"

	if _, err := s.awaitIdle(ctx, op); err != nil {
		return err
	}
	st, err := s.setAddressPointer(ctx, protocol.InternalFlashStart)
	if err != nil {
		return err
	}
	if _, err := s.drainToIdle(ctx, op, st); err != nil {
		return err
	}
	if err := s.leaveCommand(ctx); err != nil {
		return err
	}

	// the device may reset before answering
	if _, err := s.getStatus(ctx); err != nil {
		s.p.logDebug("status after leave", "error", err)
	}

	s.p.detach(s.dev)
	return nil
}

func loadImage(src firmware.Provider) (*firmware.Image, error) {
	if src == nil {
		return nil, fmt.Errorf("no firmware provider: %w", firmware.ErrFileNotFound)
	}

	loaded, err := src.Load()
	if err != nil {
		return nil, err
	}
	if loaded == nil {
		return nil, fmt.Errorf("provider returned no image: %w", firmware.ErrFileNotFound)
	}

	// address, block size and length are fixed for this bootloader whatever
	// the provider filled in
	img, err := firmware.NewImage(loaded.Data, loaded.Path)
	if err != nil {
		return nil, err
	}
	img.TargetName = loaded.TargetName
	img.TargetSize = loaded.TargetSize
	img.NumElements = loaded.NumElements

	if err := img.Validate(); err != nil {
		return nil, err
	}
	return img, nil
}

// fail converts an operation error into a status message.
func (p *Programmer) fail(op string, err error) {
	p.reportStatus(fmt.Sprintf("%s failed: %v", op, err))
	p.logError(op+" failed", "error", err)
}

// reportStatus calls the status callback if configured.
func (p *Programmer) reportStatus(msg string) {
	if p.config.StatusCallback != nil {
		p.config.StatusCallback(msg)
	}
}

// reportProgress calls the progress callback if configured.
func (p *Programmer) reportProgress(progress Progress) {
	if p.config.ProgressCallback != nil {
		p.config.ProgressCallback(progress)
	}
}

// logDebug logs a debug message if a logger is configured.
func (p *Programmer) logDebug(msg string, keysAndValues ...interface{}) {
	if p.config.Logger != nil {
		p.config.Logger.Debug(msg, keysAndValues...)
	}
}

// logInfo logs an info message if a logger is configured.
func (p *Programmer) logInfo(msg string, keysAndValues ...interface{}) {
	if p.config.Logger != nil {
		p.config.Logger.Info(msg, keysAndValues...)
	}
}

// logError logs an error message if a logger is configured.
func (p *Programmer) logError(msg string, keysAndValues ...interface{}) {
	if p.config.Logger != nil {
		p.config.Logger.Error(msg, keysAndValues...)
	}
}
