// SPDX-License-Identifier: Apache-2.0

package frame

// CfaReg is the closed set of registers a Canonical Frame Address can be
// expressed relative to. It is the tagged discriminator packed into the
// low 8 bits of FrameDesc.Cfa.
type CfaReg uint8

const (
	CfaSP CfaReg = iota
	CfaFP
	CfaPLT
	CfaInvalid
)

func (r CfaReg) String() string {
	switch r {
	case CfaSP:
		return "sp"
	case CfaFP:
		return "fp"
	case CfaPLT:
		return "plt"
	case CfaInvalid:
		return "invalid"
	default:
		return "?"
	}
}

const (
	// EmptyFrameSize is the architecture's return-address slot size: the
	// CFA offset of a function that has not yet executed its prologue.
	EmptyFrameSize = 8

	// LinkedFrameSize is the size of a standard frame-pointer-chained
	// activation record: one slot each for saved FP and return address.
	LinkedFrameSize = 16

	// stackSlot is one machine word, used when a def_cfa_expression or a
	// default terminal record needs a fixed, architecture-sized offset.
	stackSlot = 8

	// SameFP is the sentinel meaning "the caller's FP equals the callee's
	// FP" — no save happened. Chosen far outside the range any real
	// CFA-relative byte offset can take, and distinct from the odd-valued
	// pcOffsetFlag tag below so the three encodings never collide.
	SameFP int32 = 1 << 30

	// pcOffsetFlag tags the "no FP was saved; the return address lives at
	// a PC-relative offset" form of FpOff. Real CFA-relative offsets are
	// always word-aligned (even), so the low bit is free to use as a tag.
	pcOffsetFlag int32 = 1
)

// PCOffset packs a PC-relative offset into FrameDesc.FpOff's tagged form.
func PCOffset(off int32) int32 {
	return pcOffsetFlag | (off << 1)
}

// IsPCOffset reports whether fpOff carries a PCOffset tag, and if so
// returns the untagged offset.
func IsPCOffset(fpOff int32) (off int32, ok bool) {
	if fpOff == SameFP {
		return 0, false
	}
	if fpOff&pcOffsetFlag != 0 {
		return fpOff >> 1, true
	}
	return 0, false
}

// PackCFA combines a register selector and signed offset into the packed
// representation stored in FrameDesc.Cfa: low 8 bits hold the register,
// the remaining bits hold the offset.
func PackCFA(reg CfaReg, off int32) int32 {
	return int32(reg) | off<<8
}

// UnpackCFA splits a packed FrameDesc.Cfa back into its register and
// offset.
func UnpackCFA(cfa int32) (reg CfaReg, off int32) {
	return CfaReg(cfa & 0xff), cfa >> 8
}

// FrameDesc is the unit of output: a rule for recovering a caller's stack
// pointer, frame pointer, and return address, authoritative for code
// addresses in [Loc, next record's Loc).
type FrameDesc struct {
	Loc   uint32
	Cfa   int32
	FpOff int32
	PcOff int32
}

// emptyFrame is the rule for a function that has not yet executed its
// prologue: CFA is the stack pointer plus one return-address slot, FP is
// unchanged, and the return address sits at the top of that slot.
func emptyFrame(loc uint32) FrameDesc {
	return FrameDesc{
		Loc:   loc,
		Cfa:   PackCFA(CfaSP, EmptyFrameSize),
		FpOff: SameFP,
		PcOff: -EmptyFrameSize,
	}
}

// defaultFrame is the rule for a standard frame-pointer-chained function:
// CFA is the frame pointer plus one linked frame, the return address sits
// one slot below the CFA, and FP was saved one slot below that.
func defaultFrame(loc uint32) FrameDesc {
	return FrameDesc{
		Loc:   loc,
		Cfa:   PackCFA(CfaFP, LinkedFrameSize),
		FpOff: -LinkedFrameSize,
		PcOff: -LinkedFrameSize + stackSlot,
	}
}
