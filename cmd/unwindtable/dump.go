// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"debug/elf"
	"errors"
	"flag"
	"fmt"

	"github.com/peterbourgon/ff/v3/ffcli"
	"github.com/sirupsen/logrus"

	"github.com/nativeunwind/unwindtable/frame"
	"github.com/nativeunwind/unwindtable/internal/log"
)

type dumpCmd struct {
	file  string
	debug bool
}

func newDumpCmd() *ffcli.Command {
	args := &dumpCmd{}

	set := flag.NewFlagSet("dump", flag.ExitOnError)
	set.StringVar(&args.file, "file", "", "Path of the ELF binary or shared library to dump")
	set.BoolVar(&args.debug, "debug", false, "Enable debug-level logging")

	return &ffcli.Command{
		Name:       "dump",
		Exec:       args.exec,
		ShortUsage: "dump -file <path> [-debug]",
		ShortHelp:  "Dump the unwind table built from an ELF binary's .eh_frame/.eh_frame_hdr",
		FlagSet:    set,
	}
}

func (cmd *dumpCmd) exec(context.Context, []string) error {
	if cmd.file == "" {
		return errors.New("please specify -file")
	}
	if cmd.debug {
		log.SetLevel(logrus.DebugLevel)
	}

	f, err := elf.Open(cmd.file)
	if err != nil {
		return fmt.Errorf("opening %s: %w", cmd.file, err)
	}
	defer f.Close()

	img := frame.Image{
		Name: cmd.file,
		Arch: archFromELFMachine(f.Machine),
	}

	if sec := f.Section(".eh_frame"); sec != nil {
		img.EhFrameVAddr = sec.Addr
		if img.EhFrame, err = sec.Data(); err != nil {
			return fmt.Errorf("reading .eh_frame: %w", err)
		}
	}
	if sec := f.Section(".eh_frame_hdr"); sec != nil {
		img.EhFrameHdrVAddr = sec.Addr
		if img.EhFrameHdr, err = sec.Data(); err != nil {
			return fmt.Errorf("reading .eh_frame_hdr: %w", err)
		}
	}
	if img.EhFrame == nil && img.EhFrameHdr == nil {
		return fmt.Errorf("%s carries neither .eh_frame nor .eh_frame_hdr", cmd.file)
	}

	tbl := frame.Parse(img, frame.NoopPin)
	printTable(tbl)
	return nil
}

func archFromELFMachine(m elf.Machine) frame.Arch {
	switch m {
	case elf.EM_X86_64:
		return frame.ArchX86_64
	case elf.EM_AARCH64:
		return frame.ArchARM64
	default:
		return frame.DetectHostArch()
	}
}

func printTable(tbl *frame.Table) {
	for _, d := range tbl.Records() {
		reg, off := frame.UnpackCFA(d.Cfa)
		if pcOff, ok := frame.IsPCOffset(d.FpOff); ok {
			fmt.Printf("loc=%#08x cfa=%s+%-4d fp=pc%-+d pc=%d\n", d.Loc, reg, off, pcOff, d.PcOff)
			continue
		}
		fpDesc := "same"
		if d.FpOff != frame.SameFP {
			fpDesc = fmt.Sprintf("%d", d.FpOff)
		}
		fmt.Printf("loc=%#08x cfa=%s+%-4d fp=%-4s pc=%d\n", d.Loc, reg, off, fpDesc, d.PcOff)
	}
}
