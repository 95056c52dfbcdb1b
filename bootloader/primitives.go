package bootloader

import (
	"context"
	"fmt"

	"github.com/moffa90/go-stm32dfu/protocol"
)

// dnloadCommand sends a vendor command as a DNLOAD with wValue=0.
func (s *session) dnloadCommand(ctx context.Context, op string, payload []byte) error {
	_, err := s.control(ctx, op, protocol.RequestTypeOut, protocol.ReqDnload,
		protocol.CommandBlockValue, payload, s.p.config.CommandTimeout)
	return err
}

// setAddressPointer sets the address for subsequent block transfers. The
// first GETSTATUS makes the device execute the command, the second confirms
// it did not enter dfuERROR.
func (s *session) setAddressPointer(ctx context.Context, address uint32) (protocol.Status, error) {
	s.p.logDebug("set address pointer", "address", fmt.Sprintf("0x%08X", address))

	if err := s.dnloadCommand(ctx, "set address pointer", protocol.SetAddressPointerCmd(address)); err != nil {
		return protocol.Status{}, err
	}
	if _, err := s.getStatus(ctx); err != nil {
		return protocol.Status{}, err
	}
	st, err := s.getStatus(ctx)
	if err != nil {
		return st, err
	}
	if st.State == protocol.Error {
		return st, &AddressRejectedError{Address: address, Code: st.Code}
	}
	return st, nil
}

// massEraseCommand sends the mass erase command. The device starts erasing
// on the next GETSTATUS.
func (s *session) massEraseCommand(ctx context.Context) error {
	return s.dnloadCommand(ctx, "mass erase command", protocol.MassEraseCmd())
}

// pageEraseCommand sends the page erase command for the page holding address.
func (s *session) pageEraseCommand(ctx context.Context, address uint32) error {
	return s.dnloadCommand(ctx, "page erase command", protocol.PageEraseCmd(address))
}

// readUnprotectCommand sends the read unprotect command. Once executed the
// device erases its flash and resets, invalidating the connection.
func (s *session) readUnprotectCommand(ctx context.Context) error {
	return s.dnloadCommand(ctx, "read unprotect command", protocol.ReadUnprotectCmd())
}

// leaveCommand sends the zero-length DNLOAD that makes the bootloader
// manifest and jump to the application at the address pointer.
func (s *session) leaveCommand(ctx context.Context) error {
	return s.dnloadCommand(ctx, "leave command", nil)
}

// downloadBlock sends image block n as a DNLOAD with wValue=n+2.
func (s *session) downloadBlock(ctx context.Context, data []byte, n int) error {
	value, err := protocol.BlockValue(n)
	if err != nil {
		return err
	}
	_, err = s.control(ctx, "firmware download", protocol.RequestTypeOut, protocol.ReqDnload,
		value, data, s.p.config.DownloadTimeout)
	return err
}

// uploadBlock reads memory block n into buf with an UPLOAD of wValue=n+2.
func (s *session) uploadBlock(ctx context.Context, buf []byte, n int) (int, error) {
	value, err := protocol.BlockValue(n)
	if err != nil {
		return 0, err
	}
	return s.control(ctx, "upload", protocol.RequestTypeIn, protocol.ReqUpload,
		value, buf, s.p.config.UploadTimeout)
}

// getCommands reads the supported vendor command list (UPLOAD wValue=0).
func (s *session) getCommands(ctx context.Context) ([]byte, error) {
	buf := make([]byte, 16)
	n, err := s.control(ctx, "get commands", protocol.RequestTypeIn, protocol.ReqUpload,
		protocol.CommandBlockValue, buf, s.p.config.UploadTimeout)
	if err != nil {
		return nil, err
	}
	return protocol.ParseCommands(buf[:n])
}
