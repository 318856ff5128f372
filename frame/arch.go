// SPDX-License-Identifier: Apache-2.0

package frame

import (
	"runtime"
	"strings"
	"sync"
)

// Arch carries the per-architecture constants the CFI interpreter and the
// compact-unwind decoder both need: which DWARF register numbers play the
// role of frame pointer and return address, and the machine word size
// compact-unwind frame-size opcodes are scaled by.
//
// The four-value {SP,FP,PLT,INVALID} CfaReg enum of §3 is a disjoint
// namespace from these DWARF register numbers — the reference
// implementation conflates the two through per-architecture C constants;
// this module keeps them apart and resolves the DWARF numbers once per
// Arch instead, so one binary can decode either architecture's CFI
// without a recompile. See SPEC_FULL.md §4.1.
type Arch struct {
	Name     string
	SPReg    uint64
	FPReg    uint64
	RAReg    uint64
	WordSize int
}

var (
	ArchX86_64 = Arch{Name: "x86_64", SPReg: 7, FPReg: 6, RAReg: 16, WordSize: 8}
	ArchARM64  = Arch{Name: "arm64", SPReg: 31, FPReg: 29, RAReg: 30, WordSize: 8}
)

// ResolveArch implements §6's host-architecture dispatch: a
// collaborator-supplied uname-equivalent string that contains "x86" or
// "amd64" anywhere selects x86-64; any other string selects ARM64. Extended per §9 to also match "amd64" (the FreeBSD uname label),
// which the original's bare "x86" substring match would miss.
func ResolveArch(machine string) Arch {
	if strings.Contains(machine, "x86") || strings.Contains(machine, "amd64") {
		return ArchX86_64
	}
	return ArchARM64
}

var (
	hostArchOnce sync.Once
	hostArch     Arch
)

// DetectHostArch resolves the running process's own architecture via
// runtime.GOARCH, the Go-idiomatic equivalent of reading uname's machine
// field, for callers (chiefly cmd/unwindtable) that have no collaborator
// supplying an explicit machine string. §5 calls this write-once cell
// "benign racing — idempotent"; sync.Once gives the same idempotence
// without leaving a real data race for the race detector to flag.
func DetectHostArch() Arch {
	hostArchOnce.Do(func() {
		hostArch = ResolveArch(runtime.GOARCH)
	})
	return hostArch
}
