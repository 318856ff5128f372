// SPDX-License-Identifier: Apache-2.0

// unwindtable is a diagnostic CLI (C10): it opens a native binary from
// disk, locates its unwind metadata, runs it through the frame package,
// and prints the resulting table one record per line. It exists to
// inspect and debug the table a profiler would build for a given image,
// not to run inside a profiling agent itself.
package main

import (
	"context"
	"errors"
	"flag"
	"os"

	"github.com/peterbourgon/ff/v3/ffcli"

	"github.com/nativeunwind/unwindtable/internal/log"
)

func main() {
	root := &ffcli.Command{
		Name:       "unwindtable",
		ShortUsage: "unwindtable <subcommand> [flags]",
		ShortHelp:  "Dump the unwind table computed for a native binary",
		Subcommands: []*ffcli.Command{
			newDumpCmd(),
			newDumpMachoCmd(),
		},
		Exec: func(context.Context, []string) error {
			return flag.ErrHelp
		},
	}

	if err := root.ParseAndRun(context.Background(), os.Args[1:]); err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			log.Errorf("%v", err)
			os.Exit(1)
		}
	}
}
