package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/moffa90/go-stm32dfu/bootloader"
	"github.com/moffa90/go-stm32dfu/firmware"
	"github.com/moffa90/go-stm32dfu/internal/log"
	"github.com/moffa90/go-stm32dfu/protocol"
)

// imageSource selects the firmware image by file or by directory.
type imageSource struct {
	File string `arg:"" optional:"" help:"Firmware image (.bin)" type:"path"`
	Dir  string `help:"Use the first image with --ext found in this directory" type:"path"`
	Ext  string `help:"Image extension for --dir" default:".bin"`
}

func (s imageSource) provider() (firmware.Provider, error) {
	switch {
	case s.File != "" && s.Dir != "":
		return nil, errors.New("give either an image file or --dir, not both")
	case s.File != "":
		return firmware.FileProvider{Path: s.File}, nil
	case s.Dir != "":
		return firmware.DirProvider{Dir: s.Dir, Ext: s.Ext}, nil
	default:
		return nil, errors.New("no image given: pass a file or --dir")
	}
}

type EraseCmd struct {
	Page string `help:"Erase only the page containing this address" placeholder:"ADDR"`
}

func (c *EraseCmd) Run(g *Globals, logger *slog.Logger, raw log.RawLogger) error {
	var page uint32
	if c.Page != "" {
		var err error
		if page, err = parseAddress(c.Page); err != nil {
			return err
		}
	}

	return g.run(logger, raw, func(ctx context.Context, prog *bootloader.Programmer) error {
		if c.Page != "" {
			return prog.ErasePage(ctx, page)
		}
		return prog.MassErase(ctx)
	})
}

type ProgramCmd struct {
	imageSource `embed:""`

	Verify bool `help:"Read the image back and compare after programming"`
	Leave  bool `help:"Start the application when done"`
}

func (c *ProgramCmd) Run(g *Globals, logger *slog.Logger, raw log.RawLogger) error {
	src, err := c.provider()
	if err != nil {
		return err
	}

	return g.run(logger, raw, func(ctx context.Context, prog *bootloader.Programmer) error {
		if err := prog.Program(ctx, src); err != nil {
			return err
		}
		if c.Verify {
			if _, err := prog.Verify(ctx, src); err != nil {
				return err
			}
		}
		if c.Leave {
			return prog.Leave(ctx)
		}
		return nil
	})
}

type VerifyCmd struct {
	imageSource `embed:""`
}

func (c *VerifyCmd) Run(g *Globals, logger *slog.Logger, raw log.RawLogger) error {
	src, err := c.provider()
	if err != nil {
		return err
	}

	return g.run(logger, raw, func(ctx context.Context, prog *bootloader.Programmer) error {
		_, err := prog.Verify(ctx, src)
		return err
	})
}

type ProtectedCmd struct{}

func (c *ProtectedCmd) Run(g *Globals, logger *slog.Logger, raw log.RawLogger) error {
	var protected bool
	err := g.run(logger, raw, func(ctx context.Context, prog *bootloader.Programmer) error {
		var err error
		protected, err = prog.IsProtected(ctx)
		return err
	})
	if err != nil {
		return err
	}

	if protected {
		fmt.Fprintln(stdout, "Flash is read-protected")
	} else {
		fmt.Fprintln(stdout, "Flash is not read-protected")
	}
	return nil
}

type LeaveCmd struct{}

func (c *LeaveCmd) Run(g *Globals, logger *slog.Logger, raw log.RawLogger) error {
	return g.run(logger, raw, func(ctx context.Context, prog *bootloader.Programmer) error {
		return prog.Leave(ctx)
	})
}

type InfoCmd struct{}

func (c *InfoCmd) Run(g *Globals, logger *slog.Logger, raw log.RawLogger) error {
	var (
		cmds      []byte
		protected bool
		version   uint16
	)
	err := g.run(logger, raw, func(ctx context.Context, prog *bootloader.Programmer) error {
		var err error
		if cmds, err = prog.Commands(ctx); err != nil {
			return err
		}
		if protected, err = prog.IsProtected(ctx); err != nil {
			return err
		}
		version = prog.DeviceVersion()
		return nil
	})
	if err != nil {
		return err
	}

	names := make([]string, len(cmds))
	for i, cmd := range cmds {
		names[i] = commandName(cmd)
	}

	fmt.Fprintf(stdout, "Backend:          %s\n", g.Device.Backend)
	fmt.Fprintf(stdout, "Device:           %s:%s\n", g.Device.VID, g.Device.PID)
	fmt.Fprintf(stdout, "Bootloader:       %x.%02x\n", version>>8, version&0xFF)
	fmt.Fprintf(stdout, "Commands:         %s\n", strings.Join(names, ", "))
	fmt.Fprintf(stdout, "Read protection:  %t\n", protected)
	return nil
}

func commandName(cmd byte) string {
	switch cmd {
	case protocol.CmdGetCommands:
		return "GET_COMMANDS"
	case protocol.CmdSetAddressPointer:
		return "SET_ADDRESS_POINTER"
	case protocol.CmdErase:
		return "ERASE"
	case protocol.CmdReadUnprotect:
		return "READ_UNPROTECT"
	default:
		return fmt.Sprintf("0x%02X", cmd)
	}
}

type DumpCmd struct {
	Address string `help:"Start address" default:"0x08000000"`
	Length  int    `help:"Number of bytes to read" required:""`
	Out     string `help:"Write raw bytes to this file instead of a hex dump on stdout" type:"path"`
}

func (c *DumpCmd) Run(g *Globals, logger *slog.Logger, raw log.RawLogger) error {
	addr, err := parseAddress(c.Address)
	if err != nil {
		return err
	}

	var data []byte
	err = g.run(logger, raw, func(ctx context.Context, prog *bootloader.Programmer) error {
		var err error
		data, err = prog.ReadFlash(ctx, addr, c.Length)
		return err
	})
	if err != nil {
		return err
	}

	if c.Out != "" {
		return os.WriteFile(c.Out, data, 0o644)
	}
	dumper := hex.Dumper(stdout)
	if _, err := dumper.Write(data); err != nil {
		return err
	}
	return dumper.Close()
}
