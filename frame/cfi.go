// SPDX-License-Identifier: Apache-2.0

package frame

import (
	lru "github.com/elastic/go-freelru"

	log "github.com/nativeunwind/unwindtable/internal/log"
)

// DWARF CFI opcodes, named exactly as the DWARF 5 standard does. Opcodes
// below 0x40 are "extended" and compared against the full byte; the three
// high-bit-packed classes below carry their operand in the low 6 bits of
// the opcode byte itself.
const (
	dwCFANop                   = 0x00
	dwCFASetLoc                = 0x01
	dwCFAAdvanceLoc1           = 0x02
	dwCFAAdvanceLoc2           = 0x03
	dwCFAAdvanceLoc4           = 0x04
	dwCFAOffsetExtended        = 0x05
	dwCFARestoreExtended       = 0x06
	dwCFAUndefined             = 0x07
	dwCFASameValue             = 0x08
	dwCFARegister              = 0x09
	dwCFARememberState         = 0x0a
	dwCFARestoreState          = 0x0b
	dwCFADefCfa                = 0x0c
	dwCFADefCfaRegister        = 0x0d
	dwCFADefCfaOffset          = 0x0e
	dwCFADefCfaExpression      = 0x0f
	dwCFAExpression            = 0x10
	dwCFAOffsetExtendedSf      = 0x11
	dwCFADefCfaSf              = 0x12
	dwCFADefCfaOffsetSf        = 0x13
	dwCFAValOffset             = 0x14
	dwCFAValOffsetSf           = 0x15
	dwCFAValExpression         = 0x16
	dwCFAAarch64NegateRAState  = 0x2d
	dwCFAGNUArgsSize           = 0x2e
)

// High-bit opcode classes: the top two bits of the opcode byte, with the
// operand packed into the low six bits.
const (
	cfaClassAdvanceLoc = 1
	cfaClassOffset     = 2
	cfaClassRestore    = 3
)

// cfiRegisters is the interpreter's current quadruple; runInstructions
// keeps the bounded remember_state/restore_state stack of §9's resolution
// as an array of these.
type cfiRegisters struct {
	cfaReg CfaReg
	cfaOff int32
	fpOff  int32
	pcOff  int32
}

func initialRegisters() cfiRegisters {
	return cfiRegisters{cfaReg: CfaSP, cfaOff: EmptyFrameSize, fpOff: SameFP, pcOff: -EmptyFrameSize}
}

// rememberDepth bounds the remember_state stack. The reference
// implementation supports depth 1; §9 recommends a small bounded stack
// with an overflow warning instead.
const rememberDepth = 4

// cfiParser walks CIE/FDE pairs within one image's .eh_frame section. It
// is confined to the single thread that constructs one image's table, per
// §5's scheduling model.
type cfiParser struct {
	image     string
	arch      Arch
	imageBase uint64
	data      []byte
	cieCache  *lru.LRU[uint64, *cieInfo]
}

func newCFIParser(image string, arch Arch, imageBase uint64, ehFrame []byte) *cfiParser {
	return &cfiParser{
		image:     image,
		arch:      arch,
		imageBase: imageBase,
		data:      ehFrame,
		cieCache:  newCIECache(),
	}
}

// getCIE returns the parsed prologue of the CIE at byte offset pos within
// p.data, consulting the shared cache first (§4.7).
func (p *cfiParser) getCIE(pos int) (*cieInfo, bool) {
	if pos < 0 || pos >= len(p.data) {
		return nil, false
	}
	key := uint64(pos)
	if p.cieCache != nil {
		if cie, ok := p.cieCache.Get(key); ok {
			return cie, true
		}
	}
	cie, ok := p.parseCIEPrologue(pos)
	if !ok {
		return nil, false
	}
	if p.cieCache != nil {
		p.cieCache.Add(key, cie)
	}
	return cie, true
}

// parseCIEPrologue reads just enough of a CIE to recover its alignment
// factors: version and augmentation string are skipped, since the
// frame-pointer/return-address register roles come from Arch rather than
// the CIE's own return_address_register field (matching the reference
// implementation, which resolves them from a compile-time constant, not
// from the CIE).
func (p *cfiParser) parseCIEPrologue(pos int) (*cieInfo, bool) {
	c := newCursor(p.data)
	c.seek(pos)

	cieLen, err := c.u32()
	if err != nil || cieLen == 0 || cieLen == 0xffffffff {
		return nil, false
	}
	if err := c.skip(4); err != nil { // CIE id, always 0 in .eh_frame
		return nil, false
	}
	if _, err := c.u8(); err != nil { // version
		return nil, false
	}
	if _, err := c.cstring(); err != nil { // augmentation string
		return nil, false
	}
	codeAlign, err := c.uleb()
	if err != nil {
		return nil, false
	}
	dataAlign, err := c.sleb()
	if err != nil {
		return nil, false
	}
	return &cieInfo{codeAlign: codeAlign, dataAlign: dataAlign}, true
}

// parseFDE parses the FDE at byte offset pos within p.data, per §4.1's
// input contract, emitting records into tbl.
func (p *cfiParser) parseFDE(pos int, tbl *Table) {
	c := newCursor(p.data)
	c.seek(pos)

	fdeLen, err := c.u32()
	if err != nil || fdeLen == 0 || fdeLen == 0xffffffff {
		return
	}
	fdeStart := c.offset()

	ciePos := c.offset()
	cieOffset, err := c.u32()
	if err != nil {
		return
	}
	cie, ok := p.getCIE(ciePos - int(cieOffset))
	if !ok {
		log.Warnf(p.image, "FDE at 0x%x references an unparsable CIE", pos)
		return
	}

	rangeStartAddr, err := c.i32pcrel()
	if err != nil {
		return
	}
	rangeLen, err := c.u32()
	if err != nil {
		return
	}
	augLen, err := c.uleb()
	if err != nil {
		return
	}
	if err := c.skip(int(augLen)); err != nil {
		return
	}

	loc := uint32(uint64(rangeStartAddr) - p.imageBase)
	fdeEnd := fdeStart + int(fdeLen)

	p.runInstructions(tbl, loc, cie, c, fdeEnd)
	tbl.addDesc(defaultFrame(loc + rangeLen))
}

// runInstructions executes the CFI state machine described in §4.1 from
// the cursor's current position through end, emitting records into tbl.
func (p *cfiParser) runInstructions(tbl *Table, loc uint32, cie *cieInfo, c *cursor, end int) {
	regs := initialRegisters()

	var saveStack [rememberDepth]cfiRegisters
	saveDepth := 0

	for c.offset() < end {
		op, err := c.u8()
		if err != nil {
			break
		}

		switch op >> 6 {
		case 0:
			switch op {
			case dwCFANop:
				// no effect, per §4.1.
			case dwCFASetLoc:
				c.seek(end) // treated as end-of-FDE, per §4.1/§9.
			case dwCFAAdvanceLoc1:
				tbl.AddRecord(loc, regs.cfaReg, regs.cfaOff, regs.fpOff, regs.pcOff)
				d, err := c.u8()
				if err != nil {
					return
				}
				loc += uint32(d) * uint32(cie.codeAlign)
			case dwCFAAdvanceLoc2:
				tbl.AddRecord(loc, regs.cfaReg, regs.cfaOff, regs.fpOff, regs.pcOff)
				d, err := c.u16()
				if err != nil {
					return
				}
				loc += uint32(d) * uint32(cie.codeAlign)
			case dwCFAAdvanceLoc4:
				tbl.AddRecord(loc, regs.cfaReg, regs.cfaOff, regs.fpOff, regs.pcOff)
				d, err := c.u32()
				if err != nil {
					return
				}
				loc += d * uint32(cie.codeAlign)
			case dwCFAOffsetExtended:
				reg, err := c.uleb()
				if err != nil {
					return
				}
				if !p.applyOffset(c, cie, reg, &regs, false) {
					return
				}
			case dwCFARestoreExtended, dwCFAUndefined, dwCFASameValue:
				reg, err := c.uleb()
				if err != nil {
					return
				}
				if reg == p.arch.FPReg {
					regs.fpOff = SameFP
				}
			case dwCFARegister:
				if c.skipLeb() != nil || c.skipLeb() != nil {
					return
				}
			case dwCFARememberState:
				if saveDepth >= rememberDepth {
					log.Warnf(p.image, "remember_state nested past depth %d, discarding oldest state", rememberDepth)
					copy(saveStack[:], saveStack[1:])
					saveDepth = rememberDepth - 1
				}
				saveStack[saveDepth] = regs
				saveDepth++
			case dwCFARestoreState:
				if saveDepth > 0 {
					saveDepth--
					regs = saveStack[saveDepth]
				}
			case dwCFADefCfa:
				r, err := c.uleb()
				if err != nil {
					return
				}
				off, err := c.uleb()
				if err != nil {
					return
				}
				regs.cfaReg = p.cfaRegFromDwarf(r)
				regs.cfaOff = int32(off)
			case dwCFADefCfaRegister:
				r, err := c.uleb()
				if err != nil {
					return
				}
				regs.cfaReg = p.cfaRegFromDwarf(r)
			case dwCFADefCfaOffset:
				off, err := c.uleb()
				if err != nil {
					return
				}
				regs.cfaOff = int32(off)
			case dwCFADefCfaExpression:
				l, err := c.uleb()
				if err != nil {
					return
				}
				if l == 11 {
					regs.cfaReg = CfaPLT
				} else {
					regs.cfaReg = CfaInvalid
				}
				regs.cfaOff = stackSlot
				if err := c.skip(int(l)); err != nil {
					return
				}
			case dwCFAExpression:
				if c.skipLeb() != nil {
					return
				}
				l, err := c.uleb()
				if err != nil {
					return
				}
				if err := c.skip(int(l)); err != nil {
					return
				}
			case dwCFAOffsetExtendedSf:
				reg, err := c.uleb()
				if err != nil {
					return
				}
				if !p.applyOffset(c, cie, reg, &regs, true) {
					return
				}
			case dwCFADefCfaSf:
				r, err := c.uleb()
				if err != nil {
					return
				}
				off, err := c.sleb()
				if err != nil {
					return
				}
				regs.cfaReg = p.cfaRegFromDwarf(r)
				regs.cfaOff = int32(off * cie.dataAlign)
			case dwCFADefCfaOffsetSf:
				off, err := c.sleb()
				if err != nil {
					return
				}
				regs.cfaOff = int32(off * cie.dataAlign)
			case dwCFAValOffset, dwCFAValOffsetSf:
				if c.skipLeb() != nil || c.skipLeb() != nil {
					return
				}
			case dwCFAValExpression:
				reg, err := c.uleb()
				if err != nil {
					return
				}
				if reg == p.arch.RAReg {
					l, err := c.uleb()
					if err != nil {
						return
					}
					exprBytes, err := c.bytes(int(l))
					if err != nil {
						return
					}
					if k := evalExpression(p.image, exprBytes, p.arch); k != 0 {
						regs.fpOff = PCOffset(k)
					}
				} else {
					l, err := c.uleb()
					if err != nil {
						return
					}
					if err := c.skip(int(l)); err != nil {
						return
					}
				}
			case dwCFAAarch64NegateRAState:
				// no effect, per §4.1.
			case dwCFAGNUArgsSize:
				if c.skipLeb() != nil {
					return
				}
			default:
				log.Warnf(p.image, "unknown DWARF CFI opcode 0x%x in %s", op, p.image)
				return
			}
		case cfaClassAdvanceLoc:
			tbl.AddRecord(loc, regs.cfaReg, regs.cfaOff, regs.fpOff, regs.pcOff)
			loc += uint32(op&0x3f) * uint32(cie.codeAlign)
		case cfaClassOffset:
			if !p.applyOffset(c, cie, uint64(op&0x3f), &regs, false) {
				return
			}
		case cfaClassRestore:
			if uint64(op&0x3f) == p.arch.FPReg {
				regs.fpOff = SameFP
			}
		}
	}

	tbl.AddRecord(loc, regs.cfaReg, regs.cfaOff, regs.fpOff, regs.pcOff)
}

// applyOffset implements the shared "offset n" / "offset_extended{,_sf}"
// rule: set fp_off or pc_off when the register is FP or PC, else skip the
// operand LEB.
func (p *cfiParser) applyOffset(c *cursor, cie *cieInfo, reg uint64, regs *cfiRegisters, signed bool) bool {
	switch reg {
	case p.arch.FPReg:
		if signed {
			v, err := c.sleb()
			if err != nil {
				return false
			}
			regs.fpOff = int32(v * cie.dataAlign)
		} else {
			v, err := c.uleb()
			if err != nil {
				return false
			}
			regs.fpOff = int32(int64(v) * cie.dataAlign)
		}
	case p.arch.RAReg:
		if signed {
			v, err := c.sleb()
			if err != nil {
				return false
			}
			regs.pcOff = int32(v * cie.dataAlign)
		} else {
			v, err := c.uleb()
			if err != nil {
				return false
			}
			regs.pcOff = int32(int64(v) * cie.dataAlign)
		}
	default:
		if signed {
			if _, err := c.sleb(); err != nil {
				return false
			}
		} else if c.skipLeb() != nil {
			return false
		}
	}
	return true
}

// cfaRegFromDwarf maps a raw DWARF register number used as a def_cfa
// operand onto the closed CfaReg enumeration. Only SP and FP are ever
// legitimately used by compiler-emitted CFI; anything else is recorded as
// CfaInvalid so the sampler knows not to unwind past this PC.
func (p *cfiParser) cfaRegFromDwarf(reg uint64) CfaReg {
	switch reg {
	case p.arch.SPReg:
		return CfaSP
	case p.arch.FPReg:
		return CfaFP
	default:
		return CfaInvalid
	}
}
