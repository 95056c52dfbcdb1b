package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"github.com/moffa90/go-stm32dfu/bootloader"
	"github.com/moffa90/go-stm32dfu/internal/log"
	"github.com/moffa90/go-stm32dfu/simulator"
	"github.com/moffa90/go-stm32dfu/transport/libusb"
	"github.com/moffa90/go-stm32dfu/transport/usbfs"
)

// CLI is the command line grammar.
type CLI struct {
	Config string `help:"Configuration file (json, yaml or toml)" placeholder:"FILE" env:"STM32DFU_CONFIG"`

	Globals `embed:""`

	Erase     EraseCmd     `cmd:"" help:"Mass erase the flash, or remove read protection"`
	Program   ProgramCmd   `cmd:"" help:"Write a binary image to the internal flash"`
	Verify    VerifyCmd    `cmd:"" help:"Compare the internal flash with a binary image"`
	Protected ProtectedCmd `cmd:"" help:"Report whether the flash is read-protected"`
	Leave     LeaveCmd     `cmd:"" help:"Leave DFU mode and start the application"`
	Info      InfoCmd      `cmd:"" help:"Show bootloader information"`
	Dump      DumpCmd      `cmd:"" help:"Read memory from the device"`
	ConfigCmd ConfigCommand `cmd:"" name:"config" help:"Manage configuration files"`
}

// Globals are the options shared by every device command. They are also
// what config files and "config init" cover.
type Globals struct {
	Log    LogConfig    `embed:"" prefix:"log."`
	Device DeviceConfig `embed:"" prefix:"device."`
	Poll   PollConfig   `embed:"" prefix:"poll."`
}

type LogConfig struct {
	Level   string `help:"Log level" enum:"trace,debug,info,warn,error" default:"info" env:"STM32DFU_LOG_LEVEL"`
	File    string `help:"Log file path" env:"STM32DFU_LOG_FILE"`
	RawFile string `help:"Write a hex dump of every control transfer to this file" env:"STM32DFU_LOG_RAW_FILE"`
}

type DeviceConfig struct {
	Backend   string `help:"USB backend" enum:"usbfs,libusb,sim" default:"usbfs" env:"STM32DFU_BACKEND"`
	VID       string `name:"vid" help:"USB vendor ID (hex)" default:"0483" env:"STM32DFU_VID"`
	PID       string `name:"pid" help:"USB product ID (hex)" default:"df11" env:"STM32DFU_PID"`
	Interface uint8  `help:"DFU interface number" default:"0"`
}

type PollConfig struct {
	MaxAttempts int           `help:"CLRSTATUS/GETSTATUS rounds allowed while waiting for dfuIDLE (0 = unlimited)" default:"1000"`
	IdleTimeout time.Duration `help:"Time allowed while waiting for dfuIDLE (0 = unlimited)" default:"30s"`
}

// Test hooks.
var (
	stdout       io.Writer = os.Stdout
	newSimulator           = func() *simulator.Bootloader { return simulator.New() }
	isTerminal             = func(w io.Writer) bool {
		f, ok := w.(*os.File)
		return ok && term.IsTerminal(int(f.Fd()))
	}
)

func parseID(s string) (uint16, error) {
	v, err := strconv.ParseUint(strings.TrimPrefix(strings.ToLower(s), "0x"), 16, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid USB ID %q: %w", s, err)
	}
	return uint16(v), nil
}

func parseAddress(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid address %q: %w", s, err)
	}
	return uint32(v), nil
}

// open opens the configured backend, wrapped for transfer tracing when
// requested.
func (g *Globals) open(logger *slog.Logger, raw log.RawLogger) (bootloader.Device, error) {
	vid, err := parseID(g.Device.VID)
	if err != nil {
		return nil, err
	}
	pid, err := parseID(g.Device.PID)
	if err != nil {
		return nil, err
	}

	var dev bootloader.Device
	switch g.Device.Backend {
	case "libusb":
		d, err := libusb.Open(vid, pid, int(g.Device.Interface))
		if err != nil {
			return nil, err
		}
		dev = d
	case "sim":
		dev = newSimulator()
	default:
		d, err := usbfs.Open(vid, pid, g.Device.Interface)
		if err != nil {
			return nil, err
		}
		dev = d
	}

	logger.Debug("device opened",
		"backend", g.Device.Backend,
		"id", fmt.Sprintf("%04x:%04x", vid, pid),
		"version", fmt.Sprintf("0x%04X", dev.DeviceVersion()),
	)

	if g.Log.RawFile != "" || logger.Enabled(context.Background(), log.LevelTrace) {
		dev = log.Trace(dev, raw, logger)
	}
	return dev, nil
}

// run opens the device and runs op on a worker goroutine while status
// messages and progress are printed. SIGINT and SIGTERM cancel op.
func (g *Globals) run(logger *slog.Logger, raw log.RawLogger, op func(ctx context.Context, prog *bootloader.Programmer) error) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dev, err := g.open(logger, raw)
	if err != nil {
		return err
	}
	defer func() {
		if r, ok := dev.(bootloader.Releaser); ok {
			if err := r.Release(); err != nil {
				logger.Debug("release device", "error", err)
			}
		}
	}()

	out := newConsole(stdout, isTerminal(stdout))
	msgs := make(chan string, 16)

	prog := bootloader.New(dev,
		bootloader.WithStatusCallback(func(msg string) { msgs <- msg }),
		bootloader.WithProgressCallback(out.progress),
		bootloader.WithLogger(logger),
		bootloader.WithInterface(uint16(g.Device.Interface)),
		bootloader.WithMaxPollAttempts(g.Poll.MaxAttempts),
		bootloader.WithIdleTimeout(g.Poll.IdleTimeout),
	)

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		defer close(msgs)
		return op(ctx, prog)
	})
	eg.Go(func() error {
		for msg := range msgs {
			out.status(msg)
		}
		return nil
	})
	return eg.Wait()
}

// console serializes status lines and the progress bar.
type console struct {
	mu  sync.Mutex
	w   io.Writer
	tty bool
	bar bool
}

func newConsole(w io.Writer, tty bool) *console {
	return &console{w: w, tty: tty}
}

func (c *console) status(msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.bar {
		fmt.Fprintln(c.w)
		c.bar = false
	}
	fmt.Fprintln(c.w, msg)
}

// progress redraws the progress bar in place. Without a terminal the status
// messages are the only output.
func (c *console) progress(p bootloader.Progress) {
	if !c.tty || p.TotalBlocks == 0 || p.Phase == bootloader.PhaseComplete {
		return
	}

	const width = 30
	filled := int(p.Percentage / 100 * width)
	filled = min(max(filled, 0), width)

	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.w, "\r%-11s [%s%s] %5.1f%% %d/%d",
		p.Phase, strings.Repeat("#", filled), strings.Repeat(" ", width-filled),
		p.Percentage, p.Block, p.TotalBlocks)
	c.bar = true
}
