package log

import (
	"bytes"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/moffa90/go-stm32dfu/protocol"
)

// RawLogger records raw control transfers.
type RawLogger interface {
	// Log records one transfer. in is true for device-to-host data.
	Log(in bool, request uint8, value uint16, data []byte)
}

// rawLogger writes one line per transfer.
type rawLogger struct {
	w   io.Writer
	mu  sync.Mutex
	now func() time.Time
}

// NewRaw creates a RawLogger writing to w. A nil w discards everything.
func NewRaw(w io.Writer) RawLogger {
	return &rawLogger{w: w, now: time.Now}
}

// Log emits a timestamped line with the request and a hex dump of data.
func (r *rawLogger) Log(in bool, request uint8, value uint16, data []byte) {
	if r.w == nil {
		return
	}

	dir := "H->D"
	if in {
		dir = "D->H"
	}

	line := fmt.Sprintf("%s %s %s wValue=%d: %d bytes, hex: %s\n",
		r.now().Format("2006/01/02 15:04:05.000"),
		dir,
		protocol.RequestName(request),
		value,
		len(data),
		hexDump(data))

	r.mu.Lock()
	_, _ = io.WriteString(r.w, line)
	r.mu.Unlock()
}

func hexDump(data []byte) string {
	const hexdigits = "0123456789abcdef"

	var buf bytes.Buffer
	for i, b := range data {
		if i > 0 {
			buf.WriteByte(' ')
		}
		buf.WriteByte(hexdigits[b>>4])
		buf.WriteByte(hexdigits[b&0x0f])
	}
	return buf.String()
}
