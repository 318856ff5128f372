// SPDX-License-Identifier: Apache-2.0

package frame

import log "github.com/nativeunwind/unwindtable/internal/log"

// DWARF expression opcodes recognised by the mini-evaluator. The breg
// opcode on the return-address register is architecture-dependent: DW_OP_breg0 is 0x70 and the register number is
// added to it, so which byte value means "breg on the return-address
// register" depends on Arch.RAReg.
const (
	dwOpConst1u = 0x08
	dwOpConst1s = 0x09
	dwOpConst2u = 0x0a
	dwOpConst2s = 0x0b
	dwOpConst4u = 0x0c
	dwOpConst4s = 0x0d
	dwOpConstu  = 0x10
	dwOpConsts  = 0x11
	dwOpMinus   = 0x1c
	dwOpPlus    = 0x22
	dwOpBreg0   = 0x70
)

// evalExpression interprets the restricted subset of DWARF expression
// opcodes described in §4.2. It never returns an error: an unrecognised
// opcode aborts evaluation, logs a warning, and yields 0, matching the
// per-expression-abandon rule of §7.
func evalExpression(image string, data []byte, arch Arch) int32 {
	c := newCursor(data)
	var tos, pcOff int32
	bregRA := byte(dwOpBreg0 + arch.RAReg)

	for !c.done() {
		op, err := c.u8()
		if err != nil {
			return pcOff
		}
		switch {
		case op == bregRA:
			v, err := c.sleb()
			if err != nil {
				return pcOff
			}
			pcOff = int32(v)
		case op == dwOpConst1u:
			v, err := c.u8()
			if err != nil {
				return pcOff
			}
			tos = int32(v)
		case op == dwOpConst1s:
			v, err := c.u8()
			if err != nil {
				return pcOff
			}
			tos = int32(int8(v))
		case op == dwOpConst2u:
			v, err := c.u16()
			if err != nil {
				return pcOff
			}
			tos = int32(v)
		case op == dwOpConst2s:
			v, err := c.u16()
			if err != nil {
				return pcOff
			}
			tos = int32(int16(v))
		case op == dwOpConst4u || op == dwOpConst4s:
			v, err := c.u32()
			if err != nil {
				return pcOff
			}
			tos = int32(v)
		case op == dwOpConstu:
			v, err := c.uleb()
			if err != nil {
				return pcOff
			}
			tos = int32(v)
		case op == dwOpConsts:
			v, err := c.sleb()
			if err != nil {
				return pcOff
			}
			tos = int32(v)
		case op == dwOpMinus:
			pcOff -= tos
		case op == dwOpPlus:
			pcOff += tos
		default:
			log.Warnf(image, "unknown DWARF expression opcode 0x%x", op)
			return 0
		}
	}
	return pcOff
}
