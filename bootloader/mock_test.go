package bootloader

import (
	"errors"
	"sync"
	"time"

	"github.com/moffa90/go-stm32dfu/protocol"
)

// call is one control transfer seen by a test device.
type call struct {
	RequestType uint8
	Request     uint8
	Value       uint16
	Index       uint16
	Data        []byte
	Timeout     time.Duration
}

func (c call) isBlockDownload() bool {
	return c.Request == protocol.ReqDnload && c.Value >= protocol.FirstBlockValue
}

func (c call) isBlockUpload() bool {
	return c.Request == protocol.ReqUpload && c.Value >= protocol.FirstBlockValue
}

func (c call) isCommand(cmd byte) bool {
	return c.Request == protocol.ReqDnload && c.Value == protocol.CommandBlockValue &&
		len(c.Data) > 0 && c.Data[0] == cmd
}

// ScriptedDevice answers GETSTATUS from a queue of statuses and accepts every
// other request. Once the queue is empty it reports Fallback.
type ScriptedDevice struct {
	mu        sync.Mutex
	calls     []call
	statuses  []protocol.Status
	Fallback  protocol.Status
	connected bool
	version   uint16
	released  bool

	// failRequest makes transfers of this bRequest fail when non-zero
	failRequest uint8
	failErr     error
	shortStatus bool
	longStatus  bool
	negative    bool
	uploadByte  byte
}

func NewScriptedDevice(states ...protocol.State) *ScriptedDevice {
	d := &ScriptedDevice{
		Fallback:  protocol.Status{State: protocol.Idle},
		connected: true,
		version:   0x2200,
	}
	d.Queue(states...)
	return d
}

// Queue appends GETSTATUS answers with the given states.
func (d *ScriptedDevice) Queue(states ...protocol.State) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, s := range states {
		d.statuses = append(d.statuses, protocol.Status{State: s})
	}
}

// QueueStatus appends a full GETSTATUS answer.
func (d *ScriptedDevice) QueueStatus(st protocol.Status) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.statuses = append(d.statuses, st)
}

func (d *ScriptedDevice) FailRequest(request uint8, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failRequest = request
	d.failErr = err
}

func (d *ScriptedDevice) ControlTransfer(requestType, request uint8, value, index uint16, data []byte, timeout time.Duration) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	c := call{RequestType: requestType, Request: request, Value: value, Index: index, Timeout: timeout}
	if requestType&protocol.DirIn == 0 && data != nil {
		c.Data = append([]byte(nil), data...)
	}
	d.calls = append(d.calls, c)

	if d.negative {
		return -1, nil
	}
	if d.failErr != nil && request == d.failRequest {
		return 0, d.failErr
	}

	switch request {
	case protocol.ReqGetStatus:
		st := d.Fallback
		if len(d.statuses) > 0 {
			st = d.statuses[0]
			d.statuses = d.statuses[1:]
		}
		n := copy(data, protocol.EncodeStatus(st))
		if d.shortStatus {
			n = 3
		}
		if d.longStatus {
			n = len(data) + 2
		}
		return n, nil
	case protocol.ReqUpload:
		for i := range data {
			data[i] = d.uploadByte
		}
		return len(data), nil
	default:
		return len(data), nil
	}
}

func (d *ScriptedDevice) Connected() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.connected
}

func (d *ScriptedDevice) DeviceVersion() uint16 { return d.version }

func (d *ScriptedDevice) Release() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.released = true
	d.connected = false
	return nil
}

func (d *ScriptedDevice) Calls() []call {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]call, len(d.calls))
	copy(out, d.calls)
	return out
}

// Recorder wraps a Device and keeps a copy of every transfer.
type Recorder struct {
	Device
	mu    sync.Mutex
	calls []call
}

func (r *Recorder) ControlTransfer(requestType, request uint8, value, index uint16, data []byte, timeout time.Duration) (int, error) {
	c := call{RequestType: requestType, Request: request, Value: value, Index: index, Timeout: timeout}
	if requestType&protocol.DirIn == 0 && data != nil {
		c.Data = append([]byte(nil), data...)
	}
	r.mu.Lock()
	r.calls = append(r.calls, c)
	r.mu.Unlock()

	return r.Device.ControlTransfer(requestType, request, value, index, data, timeout)
}

func (r *Recorder) Release() error {
	if rel, ok := r.Device.(Releaser); ok {
		return rel.Release()
	}
	return nil
}

func (r *Recorder) Calls() []call {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]call, len(r.calls))
	copy(out, r.calls)
	return out
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = nil
}

func countCalls(calls []call, match func(call) bool) int {
	n := 0
	for _, c := range calls {
		if match(c) {
			n++
		}
	}
	return n
}

// MockLogger collects log messages.
type MockLogger struct {
	mu        sync.Mutex
	debugMsgs []string
	infoMsgs  []string
	errorMsgs []string
}

func (l *MockLogger) Debug(msg string, kv ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.debugMsgs = append(l.debugMsgs, msg)
}

func (l *MockLogger) Info(msg string, kv ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.infoMsgs = append(l.infoMsgs, msg)
}

func (l *MockLogger) Error(msg string, kv ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errorMsgs = append(l.errorMsgs, msg)
}

// statusLog collects status messages.
type statusLog struct {
	mu   sync.Mutex
	msgs []string
}

func (s *statusLog) add(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, msg)
}

func (s *statusLog) all() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.msgs...)
}

func (s *statusLog) last() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.msgs) == 0 {
		return ""
	}
	return s.msgs[len(s.msgs)-1]
}

var errUSB = errors.New("usb: pipe error")
