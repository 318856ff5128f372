// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"debug/macho"
	"errors"
	"flag"
	"fmt"

	"github.com/peterbourgon/ff/v3/ffcli"
	"github.com/sirupsen/logrus"

	"github.com/nativeunwind/unwindtable/frame"
	"github.com/nativeunwind/unwindtable/internal/log"
)

type dumpMachoCmd struct {
	file  string
	debug bool
}

func newDumpMachoCmd() *ffcli.Command {
	args := &dumpMachoCmd{}

	set := flag.NewFlagSet("dump-macho", flag.ExitOnError)
	set.StringVar(&args.file, "file", "", "Path of the Mach-O binary or dylib to dump")
	set.BoolVar(&args.debug, "debug", false, "Enable debug-level logging")

	return &ffcli.Command{
		Name:       "dump-macho",
		Exec:       args.exec,
		ShortUsage: "dump-macho -file <path> [-debug]",
		ShortHelp:  "Dump the unwind table built from a Mach-O binary's __unwind_info",
		FlagSet:    set,
	}
}

func (cmd *dumpMachoCmd) exec(context.Context, []string) error {
	if cmd.file == "" {
		return errors.New("please specify -file")
	}
	if cmd.debug {
		log.SetLevel(logrus.DebugLevel)
	}

	f, err := macho.Open(cmd.file)
	if err != nil {
		return fmt.Errorf("opening %s: %w", cmd.file, err)
	}
	defer f.Close()

	img := frame.Image{
		Name: cmd.file,
		Arch: archFromMachoCPU(f.Cpu),
	}

	unwind := f.Section("__unwind_info")
	if unwind == nil {
		return fmt.Errorf("%s carries no __unwind_info section", cmd.file)
	}
	if img.CompactUnwind, err = unwind.Data(); err != nil {
		return fmt.Errorf("reading __unwind_info: %w", err)
	}

	if eh := f.Section("__eh_frame"); eh != nil {
		img.EhFrameVAddr = eh.Addr
		if img.EhFrame, err = eh.Data(); err != nil {
			return fmt.Errorf("reading __eh_frame: %w", err)
		}
	}
	if stubs := f.Section("__stubs"); stubs != nil {
		img.StubsAddr = stubs.Addr
		img.HasStubs = true
	}

	tbl := frame.Parse(img, frame.NoopPin)
	printTable(tbl)
	return nil
}

func archFromMachoCPU(cpu macho.Cpu) frame.Arch {
	switch cpu {
	case macho.CpuAmd64:
		return frame.ArchX86_64
	case macho.CpuArm64:
		return frame.ArchARM64
	default:
		return frame.DetectHostArch()
	}
}
