// SPDX-License-Identifier: Apache-2.0

// Package frame parses a native binary's unwind metadata — DWARF
// .eh_frame/.eh_frame_hdr CFI and Apple Mach-O compact-unwind — into a
// sorted table a sampling profiler can binary-search at signal-handler
// time, without invoking libc's unwinder.
package frame

import log "github.com/nativeunwind/unwindtable/internal/log"

// Image is the per-library input contract of §6: a name for diagnostics,
// the image's text base, and whichever unwind metadata slices the image
// enumeration collaborator was able to locate. All slice fields are
// optional; Arch is resolved by the caller (ResolveArch or
// DetectHostArch) from a host architecture identifier, also per §6.
type Image struct {
	Name string
	Arch Arch

	// TextBase is the image's load address; every emitted FrameDesc.Loc
	// is relative to it.
	TextBase uint64

	// EhFrameHdr and EhFrame are independently optional: a DWARF-only
	// image may carry both, a compact-unwind image may carry only
	// EhFrame (as the DWARF-delegate target) or neither.
	EhFrameHdr      []byte
	EhFrameHdrVAddr uint64
	EhFrame         []byte
	EhFrameVAddr    uint64

	// CompactUnwind is the Mach-O __unwind_info section, present only on
	// Apple platforms.
	CompactUnwind []byte

	// StubsAddr/HasStubs describe the image's __stubs (PLT) section, used
	// for the compact-unwind terminal sentinel of §4.3 point 4.
	StubsAddr uint64
	HasStubs  bool
}

// Parse implements the parser driver (C7): it acquires pin for the
// duration of the parse, selects EH-frame vs compact-unwind per the
// priority rule of §4.6, runs the appropriate decoders, and returns a
// sorted table. It never returns an error for malformed binary content —
// per §7 that degrades to an empty or truncated table — including when
// pin fails to acquire, which is an expected, non-exceptional outcome.
func Parse(img Image, pin Pin) *Table {
	if pin == nil {
		pin = NoopPin
	}
	if !pin.Acquire() {
		log.Warnf(img.Name, "image is being unloaded, skipping parse")
		return NewTable()
	}
	defer pin.Release()

	tbl := NewTable()

	var delegate *cfiParser
	if len(img.EhFrame) > 0 {
		delegate = newCFIParser(img.Name, img.Arch, img.TextBase, img.EhFrame)
	}

	switch {
	case len(img.CompactUnwind) > 0:
		mp := newMachOParser(img.Name, img.Arch, img.TextBase, img.CompactUnwind, delegate)
		mp.parse(tbl, img.StubsAddr, img.HasStubs)

	case len(img.EhFrameHdr) > 0:
		if delegate == nil {
			log.Warnf(img.Name, "eh_frame_hdr present with no eh_frame section")
			break
		}
		delegate.parseEhFrameHdr(img.EhFrameHdr, img.EhFrameHdrVAddr, img.EhFrameVAddr, tbl)
		tbl.Sort()

	default:
		log.Debugf(img.Name, "no unwind metadata supplied")
	}

	return tbl
}
