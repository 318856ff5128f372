// SPDX-License-Identifier: Apache-2.0

package frame

import log "github.com/nativeunwind/unwindtable/internal/log"

const (
	ehFrameHdrVersion = 1

	// dwEhPeUdata4Format is the format of DW_EH_PE_udata4: an absolute,
	// unsigned 4-byte pointer. Bits 4-6 (0x70) select the application; the low 3 bits
	// (masked by 0x7) give the format. §4.4 only supports this exact
	// format for both the eh_frame_ptr field and the binary-search table.
	dwEhPeUdata4Format = 0x3
	dwEhPeFormatMask   = 0x7

	// tableEncoding is the one supported table-entry encoding: udata4
	// format (0x03) with the DW_EH_PE_datarel application bit (0x30) set,
	// and the personality-indirection bit (0x08) masked off before the
	// comparison.
	tableEncoding          = 0x33
	tableEncodingIgnoreBit = 0x08
)

// parseEhFrameHdr implements C5: it validates the header, then walks the
// packed (initial_location, fde_pointer) table, handing each FDE off to
// the CFI interpreter.
//
// The table's fde_pointer entries are DW_EH_PE_datarel-encoded: each is an
// offset from hdrVAddr, the .eh_frame_hdr section's own virtual address.
// The reference implementation works directly against a contiguous mapped
// image, so it can simply add that offset to its eh_frame_hdr pointer and
// land on the right byte regardless of which section nominally owns it.
// This module's C1 cursors are scoped to one borrowed slice apiece (§6),
// so the datarel offset is translated explicitly into a position within
// the separately-borrowed eh_frame slice via the two sections' recorded
// virtual addresses.
func (p *cfiParser) parseEhFrameHdr(hdr []byte, hdrVAddr, ehFrameVAddr uint64, tbl *Table) {
	if len(hdr) < 4 {
		log.Warnf(p.image, "truncated .eh_frame_hdr")
		return
	}

	version := hdr[0]
	ehFramePtrEnc := hdr[1]
	fdeCountEnc := hdr[2]
	tableEnc := hdr[3]

	if version != ehFrameHdrVersion ||
		ehFramePtrEnc&dwEhPeFormatMask != dwEhPeUdata4Format ||
		fdeCountEnc&dwEhPeFormatMask != dwEhPeUdata4Format ||
		tableEnc&^byte(tableEncodingIgnoreBit) != tableEncoding {
		log.Warnf(p.image, "unsupported .eh_frame_hdr [%02x%02x%02x%02x]", version, ehFramePtrEnc, fdeCountEnc, tableEnc)
		return
	}

	c := newCursor(hdr)
	c.seek(4)
	// eh_frame_ptr (udata4), not needed beyond validating its encoding.
	if _, err := c.u32(); err != nil {
		return
	}
	fdeCount, err := c.u32()
	if err != nil {
		return
	}

	c.seek(12)
	for i := uint32(0); i < fdeCount; i++ {
		if _, err := c.u32(); err != nil { // initial_location, unused: recomputed from the FDE itself
			return
		}
		fdePtr, err := c.u32()
		if err != nil {
			return
		}
		fdeOffset := int64(hdrVAddr) + int64(fdePtr) - int64(ehFrameVAddr)
		if fdeOffset < 0 || fdeOffset >= int64(len(p.data)) {
			log.Warnf(p.image, "eh_frame_hdr table entry %d points outside .eh_frame", i)
			continue
		}
		p.parseFDE(int(fdeOffset), tbl)
	}
}
