// SPDX-License-Identifier: Apache-2.0

package frame

import (
	"encoding/binary"

	log "github.com/nativeunwind/unwindtable/internal/log"
)

const (
	unwindInfoVersion = 1

	pageKindRegular    = 2
	pageKindCompressed = 3
)

// machoParser decodes Apple's __unwind_info compact-unwind format (C6).
// delegate is an optional CFI interpreter sharing the same image base,
// consulted for opcode kinds that fall back to DWARF (x86 kind 3, ARM64
// kind 4); if nil, delegate opcodes degrade to a logged no-op per §7.
type machoParser struct {
	image     string
	arch      Arch
	imageBase uint64
	data      []byte
	delegate  *cfiParser
}

func newMachOParser(image string, arch Arch, imageBase uint64, unwindInfo []byte, delegate *cfiParser) *machoParser {
	return &machoParser{image: image, arch: arch, imageBase: imageBase, data: unwindInfo, delegate: delegate}
}

// parse implements the decoder contract of §4.3: validate the header,
// walk the two-level page index, append the __stubs terminal sentinel if
// one was supplied, and sort.
func (m *machoParser) parse(tbl *Table, stubsAddr uint64, hasStubs bool) {
	c := newCursor(m.data)

	version, err := c.u32()
	if err != nil || version != unwindInfoVersion {
		return
	}

	globalOpcodesOffset, err := c.u32()
	if err != nil {
		return
	}
	globalOpcodesLen, err := c.u32()
	if err != nil {
		return
	}
	if err := c.skip(8); err != nil { // personalities_offset, personalities_len
		return
	}
	pagesOffset, err := c.u32()
	if err != nil {
		return
	}
	pagesLen, err := c.u32()
	if err != nil {
		return
	}

	c.seek(int(pagesOffset))
	for i := uint32(0); i < pagesLen; i++ {
		firstAddress, err := c.u32()
		if err != nil {
			return
		}
		secondLevelOffset, err := c.u32()
		if err != nil {
			return
		}
		if _, err := c.u32(); err != nil { // lsda_index_offset, unused: LSDA/personality lookup is out of scope per §1.
			return
		}
		m.parsePage(int(secondLevelOffset), firstAddress, int(globalOpcodesOffset), int(globalOpcodesLen), tbl)
	}

	if hasStubs && stubsAddr >= m.imageBase {
		tbl.addDesc(emptyFrame(uint32(stubsAddr - m.imageBase)))
	}

	tbl.Sort()
}

// parsePage decodes one second-level page, dispatching on its kind.
func (m *machoParser) parsePage(pageOffset int, firstAddress uint32, globalOpcodesOffset, globalOpcodesLen int, tbl *Table) {
	if pageOffset < 0 || pageOffset+8 > len(m.data) {
		return
	}
	c := newCursor(m.data)
	c.seek(pageOffset)

	kind, err := c.u32()
	if err != nil {
		return
	}
	if kind != pageKindRegular && kind != pageKindCompressed {
		return // can legitimately happen on the table's trailing sentinel page.
	}
	entriesOffset, err := c.u16()
	if err != nil {
		return
	}
	entriesLen, err := c.u16()
	if err != nil {
		return
	}

	switch kind {
	case pageKindRegular:
		ec := newCursor(m.data)
		ec.seek(pageOffset + int(entriesOffset))
		for i := uint16(0); i < entriesLen; i++ {
			loc, err := ec.u32()
			if err != nil {
				return
			}
			opcode, err := ec.u32()
			if err != nil {
				return
			}
			m.parseUnwindOpcode(uint64(loc), opcode, tbl)
		}

	case pageKindCompressed:
		localOpcodesOffset, err := c.u16()
		if err != nil {
			return
		}
		if _, err := c.u16(); err != nil { // local opcode count, implied by the entries themselves
			return
		}

		ec := newCursor(m.data)
		ec.seek(pageOffset + int(entriesOffset))
		for i := uint16(0); i < entriesLen; i++ {
			raw, err := ec.u32()
			if err != nil {
				return
			}
			// §9's "bit-shift typo" resolution: the index is the high
			// byte, extracted by a shift, not compared via a bitmask.
			opcodeIndex := int(raw >> 24)
			relOffset := raw & 0x00ffffff

			var opcode uint32
			var ok bool
			if opcodeIndex < globalOpcodesLen {
				opcode, ok = m.opcodeAt(globalOpcodesOffset, opcodeIndex)
			} else {
				opcode, ok = m.opcodeAt(pageOffset+int(localOpcodesOffset), opcodeIndex-globalOpcodesLen)
			}
			if !ok {
				continue
			}
			absLoc := uint64(firstAddress) + uint64(relOffset) + m.imageBase
			m.parseUnwindOpcode(absLoc, opcode, tbl)
		}
	}
}

// opcodeAt reads the idx'th 32-bit opcode out of the array starting at
// byte offset base (either the global array or one page's local array).
func (m *machoParser) opcodeAt(base, idx int) (uint32, bool) {
	off := base + idx*4
	if off < 0 || off+4 > len(m.data) {
		return 0, false
	}
	return binary.LittleEndian.Uint32(m.data[off:]), true
}

// parseUnwindOpcode classifies one opcode by architecture and kind and
// either emits a FrameDesc directly or delegates to the CFI interpreter,
// per the table in §4.3.
func (m *machoParser) parseUnwindOpcode(absLoc uint64, opcode uint32, tbl *Table) {
	// §9's "opcode-kind mask bug" resolution: kind is the high nibble of
	// the high byte, extracted by a shift, not the unshifted bitmask the
	// reference implementation compares against small integers.
	kind := byte(opcode>>24) & 0x0f
	data := int32(opcode & 0x00ffffff)
	loc := uint32(absLoc - m.imageBase)

	if m.arch.Name == ArchX86_64.Name {
		switch kind {
		case 2: // SP-relative frameless.
			tbl.AddRecord(loc, CfaSP, data*16, SameFP, 0)
		case 3: // DWARF delegate: data is a byte offset into .eh_frame.
			m.delegateDwarf(int(data), tbl)
		case 4: // Linked frame-pointer frame.
			tbl.AddRecord(loc, CfaFP, LinkedFrameSize, -LinkedFrameSize, -LinkedFrameSize+stackSlot)
		}
		return
	}

	switch kind {
	case 1: // Linked frame-pointer frame.
		tbl.AddRecord(loc, CfaFP, LinkedFrameSize, -LinkedFrameSize, -LinkedFrameSize+stackSlot)
	case 2: // Frameless, SP-relative.
		tbl.AddRecord(loc, CfaSP, data*int32(m.arch.WordSize), SameFP, -int32(m.arch.WordSize))
	case 3:
		// Reserved. No reference binary has ever been found to carry
		// this kind on ARM64; match the upstream behaviour and emit
		// nothing rather than guess at a shape.
	case 4: // DWARF delegate.
		m.delegateDwarf(int(data), tbl)
	}
}

func (m *machoParser) delegateDwarf(ehFrameOffset int, tbl *Table) {
	if m.delegate == nil {
		log.Warnf(m.image, "compact-unwind DWARF-delegate opcode with no .eh_frame available")
		return
	}
	m.delegate.parseFDE(ehFrameOffset, tbl)
}
