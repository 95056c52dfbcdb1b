package protocol

import (
	"fmt"
	"time"
)

// ParseStatus decodes a GETSTATUS response.
//
// Response format (StatusResponseSize bytes):
//
//	[bStatus][bwPollTimeout_0][bwPollTimeout_1][bwPollTimeout_2][bState][iString]
func ParseStatus(data []byte) (Status, error) {
	if len(data) < StatusResponseSize {
		return Status{}, &ProtocolError{
			Request: ReqGetStatus,
			Reason:  fmt.Sprintf("got %d bytes, expected %d", len(data), StatusResponseSize),
		}
	}

	pollMs := uint32(data[1]) | uint32(data[2])<<8 | uint32(data[3])<<16

	return Status{
		Code:        StatusCode(data[0]),
		PollTimeout: time.Duration(pollMs) * time.Millisecond,
		State:       State(data[4]),
	}, nil
}

// EncodeStatus builds a GETSTATUS response. Poll timeouts above 2^24-1 ms are
// clamped.
func EncodeStatus(s Status) []byte {
	ms := s.PollTimeout.Milliseconds()
	if ms < 0 {
		ms = 0
	}
	if ms > 0xFFFFFF {
		ms = 0xFFFFFF
	}

	return []byte{
		byte(s.Code),
		byte(ms),
		byte(ms >> 8),
		byte(ms >> 16),
		byte(s.State),
		0,
	}
}

// ParseCommands decodes the vendor command list returned by UPLOAD with
// wValue=0. The first byte is the get-commands opcode itself.
func ParseCommands(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, &ProtocolError{Request: ReqUpload, Reason: "empty command list"}
	}
	if data[0] != CmdGetCommands {
		return nil, &ProtocolError{
			Request: ReqUpload,
			Reason:  fmt.Sprintf("command list starts with 0x%02X, expected 0x%02X", data[0], CmdGetCommands),
		}
	}
	return data[1:], nil
}
