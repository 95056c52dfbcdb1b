package bootloader

import (
	"context"
	"fmt"
	"time"

	"github.com/moffa90/go-stm32dfu/protocol"
)

// session binds one top-level operation to the device snapshot it started
// with. All protocol traffic goes through it.
type session struct {
	p   *Programmer
	dev Device
}

// control performs one control transfer on the session's device.
func (s *session) control(ctx context.Context, op string, requestType, request uint8, value uint16, data []byte, timeout time.Duration) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	n, err := s.dev.ControlTransfer(requestType, request, value, s.p.config.Interface, data, timeout)
	if err != nil {
		return n, &TransportError{Op: op, Err: err}
	}
	if n < 0 {
		return n, &TransportError{Op: op, Err: fmt.Errorf("transfer length %d", n)}
	}
	if n > len(data) {
		return n, &TransportError{Op: op, Err: fmt.Errorf("transfer length %d exceeds buffer of %d", n, len(data))}
	}
	return n, nil
}

// clearStatus sends CLRSTATUS.
func (s *session) clearStatus(ctx context.Context) error {
	_, err := s.control(ctx, "clearStatus", protocol.RequestTypeOut, protocol.ReqClrStatus, 0, nil, 0)
	return err
}

// getStatus sends GETSTATUS and decodes the 6-byte response.
func (s *session) getStatus(ctx context.Context) (protocol.Status, error) {
	var buf [protocol.StatusResponseSize]byte
	n, err := s.control(ctx, "getStatus", protocol.RequestTypeIn, protocol.ReqGetStatus, 0, buf[:], s.p.config.StatusTimeout)
	if err != nil {
		return protocol.Status{}, err
	}

	st, err := protocol.ParseStatus(buf[:n])
	if err != nil {
		return protocol.Status{}, &TransportError{Op: "getStatus", Err: err}
	}
	return st, nil
}

// awaitIdle repeats CLRSTATUS/GETSTATUS until the device reports dfuIDLE,
// within the configured attempt and time budget.
func (s *session) awaitIdle(ctx context.Context, op string) (protocol.Status, error) {
	cfg := s.p.config
	start := time.Now()

	var st protocol.Status
	for attempt := 1; ; attempt++ {
		if err := s.clearStatus(ctx); err != nil {
			return st, err
		}

		var err error
		st, err = s.getStatus(ctx)
		if err != nil {
			return st, err
		}
		if st.State == protocol.Idle {
			return st, nil
		}

		elapsed := time.Since(start)
		if (cfg.MaxPollAttempts > 0 && attempt >= cfg.MaxPollAttempts) ||
			(cfg.IdleTimeout > 0 && elapsed >= cfg.IdleTimeout) {
			return st, &TimeoutError{Op: op, Attempts: attempt, Elapsed: elapsed, Last: st.State}
		}
	}
}

// drainToIdle returns immediately when last already reports dfuIDLE and
// falls back to awaitIdle otherwise.
func (s *session) drainToIdle(ctx context.Context, op string, last protocol.Status) (protocol.Status, error) {
	if last.State == protocol.Idle {
		return last, nil
	}
	return s.awaitIdle(ctx, op)
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
