package protocol

import (
	"fmt"
	"time"
)

// State is the DFU device state (bState) reported by GETSTATUS.
type State uint8

// DFU states. Only Idle, DownloadBusy and Error drive decisions in the
// programmer; the others are passed through while polling.
const (
	AppIdle           State = 0x00
	AppDetach         State = 0x01
	Idle              State = 0x02
	DownloadSync      State = 0x03
	DownloadBusy      State = 0x04
	DownloadIdle      State = 0x05
	ManifestSync      State = 0x06
	Manifest          State = 0x07
	ManifestWaitReset State = 0x08
	UploadIdle        State = 0x09
	Error             State = 0x0A
	UploadSync        State = 0x91
	UploadBusy        State = 0x92
)

func (s State) String() string {
	switch s {
	case AppIdle:
		return "appIDLE"
	case AppDetach:
		return "appDETACH"
	case Idle:
		return "dfuIDLE"
	case DownloadSync:
		return "dfuDNLOAD-SYNC"
	case DownloadBusy:
		return "dfuDNBUSY"
	case DownloadIdle:
		return "dfuDNLOAD-IDLE"
	case ManifestSync:
		return "dfuMANIFEST-SYNC"
	case Manifest:
		return "dfuMANIFEST"
	case ManifestWaitReset:
		return "dfuMANIFEST-WAIT-RESET"
	case UploadIdle:
		return "dfuUPLOAD-IDLE"
	case Error:
		return "dfuERROR"
	case UploadSync:
		return "dfuUPLOAD-SYNC"
	case UploadBusy:
		return "dfuUPLOAD-BUSY"
	default:
		return fmt.Sprintf("state(0x%02X)", uint8(s))
	}
}

// StatusCode is the DFU bStatus field.
type StatusCode uint8

// DFU status codes.
const (
	StatusOK              StatusCode = 0x00
	StatusErrTarget       StatusCode = 0x01
	StatusErrFile         StatusCode = 0x02
	StatusErrWrite        StatusCode = 0x03
	StatusErrErase        StatusCode = 0x04
	StatusErrCheckErased  StatusCode = 0x05
	StatusErrProg         StatusCode = 0x06
	StatusErrVerify       StatusCode = 0x07
	StatusErrAddress      StatusCode = 0x08
	StatusErrNotDone      StatusCode = 0x09
	StatusErrFirmware     StatusCode = 0x0A
	StatusErrVendor       StatusCode = 0x0B
	StatusErrUSBReset     StatusCode = 0x0C
	StatusErrPowerOnReset StatusCode = 0x0D
	StatusErrUnknown      StatusCode = 0x0E
	StatusErrStalledPkt   StatusCode = 0x0F
)

var statusNames = [...]string{
	StatusOK:              "ok",
	StatusErrTarget:       "file is not for this target",
	StatusErrFile:         "file fails a vendor-specific verification test",
	StatusErrWrite:        "unable to write memory",
	StatusErrErase:        "memory erase function failed",
	StatusErrCheckErased:  "memory erase check failed",
	StatusErrProg:         "program memory function failed",
	StatusErrVerify:       "programmed memory failed verification",
	StatusErrAddress:      "memory address is out of range",
	StatusErrNotDone:      "premature DFU_DNLOAD with wLength = 0",
	StatusErrFirmware:     "firmware is corrupt",
	StatusErrVendor:       "vendor-specific error",
	StatusErrUSBReset:     "unexpected USB reset signaling",
	StatusErrPowerOnReset: "unexpected power on reset",
	StatusErrUnknown:      "unknown error",
	StatusErrStalledPkt:   "stalled an unexpected request",
}

func (c StatusCode) String() string {
	if int(c) < len(statusNames) {
		return statusNames[c]
	}
	return fmt.Sprintf("status(0x%02X)", uint8(c))
}

// Status is one decoded GETSTATUS response.
type Status struct {
	// Code is the status during the request (bStatus)
	Code StatusCode

	// PollTimeout is the minimum time the host should wait before the next
	// GETSTATUS (bwPollTimeout)
	PollTimeout time.Duration

	// State is the state the device enters after the request (bState)
	State State
}

func (s Status) String() string {
	return fmt.Sprintf("%s (status=%s, poll=%s)", s.State, s.Code, s.PollTimeout)
}
