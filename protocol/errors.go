package protocol

import (
	"errors"
	"fmt"
)

// ProtocolError reports a malformed response from the bootloader.
type ProtocolError struct {
	// Request is the DFU request whose response was rejected
	Request uint8

	// Reason describes what was wrong with the response
	Reason string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("invalid %s response: %s", RequestName(e.Request), e.Reason)
}

// IsProtocolError returns true if err is or wraps a ProtocolError.
func IsProtocolError(err error) bool {
	var pe *ProtocolError
	return errors.As(err, &pe)
}

// RequestName returns the DFU name of a class request.
func RequestName(req uint8) string {
	switch req {
	case ReqDetach:
		return "DETACH"
	case ReqDnload:
		return "DNLOAD"
	case ReqUpload:
		return "UPLOAD"
	case ReqGetStatus:
		return "GETSTATUS"
	case ReqClrStatus:
		return "CLRSTATUS"
	case ReqGetState:
		return "GETSTATE"
	case ReqAbort:
		return "ABORT"
	default:
		return fmt.Sprintf("request(0x%02X)", req)
	}
}
