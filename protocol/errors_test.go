package protocol

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProtocolError(t *testing.T) {
	_, err := ParseStatus([]byte{0x00})

	assert.True(t, IsProtocolError(err))
	assert.True(t, IsProtocolError(fmt.Errorf("wrapped: %w", err)))
	assert.False(t, IsProtocolError(errors.New("other")))
	assert.Equal(t, "invalid GETSTATUS response: got 1 bytes, expected 6", err.Error())

	_, err = ParseCommands([]byte{0x21})
	var pe *ProtocolError
	if assert.ErrorAs(t, err, &pe) {
		assert.Equal(t, uint8(ReqUpload), pe.Request)
	}
}

func TestRequestName(t *testing.T) {
	tests := []struct {
		req  uint8
		want string
	}{
		{ReqDetach, "DETACH"},
		{ReqDnload, "DNLOAD"},
		{ReqUpload, "UPLOAD"},
		{ReqGetStatus, "GETSTATUS"},
		{ReqClrStatus, "CLRSTATUS"},
		{ReqGetState, "GETSTATE"},
		{ReqAbort, "ABORT"},
		{0x42, "request(0x42)"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, RequestName(tt.req))
	}
}
