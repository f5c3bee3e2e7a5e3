// Copyright (C) 2021  Antonio Lassandro

// This program is free software: you can redistribute it and/or modify it
// under the terms of the GNU General Public License as published by the Free
// Software Foundation, either version 3 of the License, or (at your option)
// any later version.

// This program is distributed in the hope that it will be useful, but WITHOUT
// ANY WARRANTY; without even the implied warranty of MERCHANTABILITY or
// FITNESS FOR A PARTICULAR PURPOSE.  See the GNU General Public License for
// more details.

// You should have received a copy of the GNU General Public License along
// with this program.  If not, see <http://www.gnu.org/licenses/>.

package machine

import (
	"github.com/lassandro/agent86/pkg/decoder"
	"github.com/lassandro/agent86/pkg/encoding"
)

// resolveSegment picks the segment for a memory operand: the explicit
// override prefix when present, SS for BP-based addressing (R/M codes 2,
// 3, 6), DS otherwise.
func (m *Machine) resolveSegment(op decoder.DecodedOperand, segOverride int) uint16 {
	switch segOverride {
	case 0x26:
		return m.CPU.Sregs[SREG_ES]
	case 0x2E:
		return m.CPU.Sregs[SREG_CS]
	case 0x36:
		return m.CPU.Sregs[SREG_SS]
	case 0x3E:
		return m.CPU.Sregs[SREG_DS]
	}
	if op.MemRM == 2 || op.MemRM == 3 || op.MemRM == 6 {
		return m.CPU.Sregs[SREG_SS]
	}
	return m.CPU.Sregs[SREG_DS]
}

func (m *Machine) effectiveAddress(op decoder.DecodedOperand) uint16 {
	if op.MemRM == -1 {
		return uint16(op.Disp)
	}

	var addr int
	switch op.MemRM {
	case 0:
		addr = int(m.CPU.Regs[REG_BX]) + int(m.CPU.Regs[REG_SI])
	case 1:
		addr = int(m.CPU.Regs[REG_BX]) + int(m.CPU.Regs[REG_DI])
	case 2:
		addr = int(m.CPU.Regs[REG_BP]) + int(m.CPU.Regs[REG_SI])
	case 3:
		addr = int(m.CPU.Regs[REG_BP]) + int(m.CPU.Regs[REG_DI])
	case 4:
		addr = int(m.CPU.Regs[REG_SI])
	case 5:
		addr = int(m.CPU.Regs[REG_DI])
	case 6:
		addr = int(m.CPU.Regs[REG_BP])
	case 7:
		addr = int(m.CPU.Regs[REG_BX])
	}
	return uint16(addr + op.Disp)
}

func (m *Machine) readOperand(op decoder.DecodedOperand, segOverride int) uint16 {
	switch op.Kind {
	case decoder.KIND_REG8:
		return uint16(m.CPU.GetReg8(op.Reg))
	case decoder.KIND_REG16:
		return m.CPU.Regs[op.Reg]
	case decoder.KIND_SREG:
		return m.CPU.Sregs[op.Reg]
	case decoder.KIND_IMM8:
		return uint16(op.Disp & 0xFF)
	case decoder.KIND_IMM16:
		return uint16(op.Disp & 0xFFFF)
	case decoder.KIND_MEM:
		addr := m.effectiveAddress(op)
		seg := m.resolveSegment(op, segOverride)
		if op.Size == 8 {
			return uint16(m.Mem.SRead8(seg, addr))
		}
		return m.Mem.SRead16(seg, addr)
	}
	return 0
}

func (m *Machine) writeOperand(op decoder.DecodedOperand, val uint16, segOverride int) {
	switch op.Kind {
	case decoder.KIND_REG8:
		m.CPU.SetReg8(op.Reg, uint8(val))
	case decoder.KIND_REG16:
		m.CPU.Regs[op.Reg] = val
	case decoder.KIND_SREG:
		m.CPU.Sregs[op.Reg] = val
	case decoder.KIND_MEM:
		addr := m.effectiveAddress(op)
		seg := m.resolveSegment(op, segOverride)
		if op.Size == 8 {
			m.Mem.SWrite8(seg, addr, uint8(val))
		} else {
			m.Mem.SWrite16(seg, addr, val)
		}
	}
}

// Flag updates. Arithmetic runs in uint32 so carry-out and overflow stay
// recoverable, then masks to the operand width.

func (m *Machine) updateFlagsAdd(result uint32, dst, src uint16, wide bool) {
	mask := uint32(0xFF)
	signBit := uint16(0x80)
	if wide {
		mask = 0xFFFF
		signBit = 0x8000
	}
	res := uint16(result & mask)
	m.CPU.SetFlag(FLAG_CF, result > mask)
	m.CPU.SetFlag(FLAG_ZF, res == 0)
	m.CPU.SetFlag(FLAG_SF, res&signBit != 0)
	m.CPU.SetFlag(FLAG_OF, (dst^res)&(src^res)&signBit != 0)
	m.CPU.SetFlag(FLAG_PF, encoding.Parity8(uint8(res)))
	m.CPU.SetFlag(FLAG_AF, (dst^src^res)&0x10 != 0)
}

func (m *Machine) updateFlagsSub(result uint32, dst, src uint16, wide bool) {
	mask := uint32(0xFF)
	signBit := uint16(0x80)
	if wide {
		mask = 0xFFFF
		signBit = 0x8000
	}
	res := uint16(result & mask)
	m.CPU.SetFlag(FLAG_CF, dst < src)
	m.CPU.SetFlag(FLAG_ZF, res == 0)
	m.CPU.SetFlag(FLAG_SF, res&signBit != 0)
	m.CPU.SetFlag(FLAG_OF, (dst^src)&(dst^res)&signBit != 0)
	m.CPU.SetFlag(FLAG_PF, encoding.Parity8(uint8(res)))
	m.CPU.SetFlag(FLAG_AF, (dst^src^res)&0x10 != 0)
}

// Logic ops clear CF and OF; AF is undefined on hardware, cleared here
func (m *Machine) updateFlagsLogic(result uint16, wide bool) {
	signBit := uint16(0x80)
	if wide {
		signBit = 0x8000
	}
	m.CPU.SetFlag(FLAG_CF, false)
	m.CPU.SetFlag(FLAG_OF, false)
	m.CPU.SetFlag(FLAG_ZF, result == 0)
	m.CPU.SetFlag(FLAG_SF, result&signBit != 0)
	m.CPU.SetFlag(FLAG_PF, encoding.Parity8(uint8(result)))
	m.CPU.SetFlag(FLAG_AF, false)
}

func evalCondition(cpu *CPU, mnemonic string) bool {
	switch mnemonic {
	case "JO":
		return cpu.GetFlag(FLAG_OF)
	case "JNO":
		return !cpu.GetFlag(FLAG_OF)
	case "JB":
		return cpu.GetFlag(FLAG_CF)
	case "JNB":
		return !cpu.GetFlag(FLAG_CF)
	case "JZ":
		return cpu.GetFlag(FLAG_ZF)
	case "JNZ":
		return !cpu.GetFlag(FLAG_ZF)
	case "JBE":
		return cpu.GetFlag(FLAG_CF) || cpu.GetFlag(FLAG_ZF)
	case "JA":
		return !cpu.GetFlag(FLAG_CF) && !cpu.GetFlag(FLAG_ZF)
	case "JS":
		return cpu.GetFlag(FLAG_SF)
	case "JNS":
		return !cpu.GetFlag(FLAG_SF)
	case "JP":
		return cpu.GetFlag(FLAG_PF)
	case "JNP":
		return !cpu.GetFlag(FLAG_PF)
	case "JL":
		return cpu.GetFlag(FLAG_SF) != cpu.GetFlag(FLAG_OF)
	case "JGE":
		return cpu.GetFlag(FLAG_SF) == cpu.GetFlag(FLAG_OF)
	case "JLE":
		return cpu.GetFlag(FLAG_ZF) ||
			cpu.GetFlag(FLAG_SF) != cpu.GetFlag(FLAG_OF)
	case "JG":
		return !cpu.GetFlag(FLAG_ZF) &&
			cpu.GetFlag(FLAG_SF) == cpu.GetFlag(FLAG_OF)
	}
	return false
}

func (m *Machine) push(val uint16) {
	m.CPU.Regs[REG_SP] -= 2
	m.Mem.Write16(m.CPU.Regs[REG_SP], val)
}

func (m *Machine) pop() uint16 {
	val := m.Mem.Read16(m.CPU.Regs[REG_SP])
	m.CPU.Regs[REG_SP] += 2
	return val
}

// execute runs one decoded instruction. IP has already advanced past it;
// branch paths overwrite IP.
func (m *Machine) execute(inst decoder.DecodedInst, result *Result) {
	mn := inst.Mnemonic
	seg := inst.SegOverride

	switch mn {
	case "ADD", "ADC", "SUB", "SBB", "CMP", "AND", "OR", "XOR", "TEST":
		a := m.readOperand(inst.Op1, seg)
		b := m.readOperand(inst.Op2, seg)
		wide := inst.Wide
		mask := uint32(0xFF)
		if wide {
			mask = 0xFFFF
		}

		switch mn {
		case "ADD":
			res := uint32(a) + uint32(b)
			m.updateFlagsAdd(res, a, b, wide)
			m.writeOperand(inst.Op1, uint16(res&mask), seg)
		case "ADC":
			cf := uint32(0)
			if m.CPU.GetFlag(FLAG_CF) {
				cf = 1
			}
			res := uint32(a) + uint32(b) + cf
			m.updateFlagsAdd(res, a, uint16(uint32(b)+cf), wide)
			m.writeOperand(inst.Op1, uint16(res&mask), seg)
		case "SUB":
			res := uint32(a) - uint32(b)
			m.updateFlagsSub(res, a, b, wide)
			m.writeOperand(inst.Op1, uint16(res&mask), seg)
		case "SBB":
			cf := uint32(0)
			if m.CPU.GetFlag(FLAG_CF) {
				cf = 1
			}
			res := uint32(a) - uint32(b) - cf
			m.updateFlagsSub(res, a, uint16(uint32(b)+cf), wide)
			m.writeOperand(inst.Op1, uint16(res&mask), seg)
		case "CMP":
			res := uint32(a) - uint32(b)
			m.updateFlagsSub(res, a, b, wide)
		case "AND":
			res := a & b
			m.updateFlagsLogic(res, wide)
			m.writeOperand(inst.Op1, res, seg)
		case "OR":
			res := a | b
			m.updateFlagsLogic(res, wide)
			m.writeOperand(inst.Op1, res, seg)
		case "XOR":
			res := a ^ b
			m.updateFlagsLogic(res, wide)
			m.writeOperand(inst.Op1, res, seg)
		case "TEST":
			m.updateFlagsLogic(a&b, wide)
		}

	case "INC", "DEC":
		val := m.readOperand(inst.Op1, seg)
		wide := inst.Wide
		mask := uint32(0xFF)
		if wide {
			mask = 0xFFFF
		}
		savedCF := m.CPU.GetFlag(FLAG_CF)
		if mn == "INC" {
			res := uint32(val) + 1
			m.updateFlagsAdd(res, val, 1, wide)
			m.writeOperand(inst.Op1, uint16(res&mask), seg)
		} else {
			res := uint32(val) - 1
			m.updateFlagsSub(res, val, 1, wide)
			m.writeOperand(inst.Op1, uint16(res&mask), seg)
		}
		m.CPU.SetFlag(FLAG_CF, savedCF)

	case "NOT":
		val := m.readOperand(inst.Op1, seg)
		mask := uint16(0xFF)
		if inst.Wide {
			mask = 0xFFFF
		}
		m.writeOperand(inst.Op1, ^val&mask, seg)

	case "NEG":
		val := m.readOperand(inst.Op1, seg)
		wide := inst.Wide
		mask := uint32(0xFF)
		if wide {
			mask = 0xFFFF
		}
		res := uint32(0) - uint32(val)
		m.updateFlagsSub(res, 0, val, wide)
		m.CPU.SetFlag(FLAG_CF, val != 0)
		m.writeOperand(inst.Op1, uint16(res&mask), seg)

	case "MUL":
		val := m.readOperand(inst.Op1, seg)
		if inst.Wide {
			res := uint32(m.CPU.Regs[REG_AX]) * uint32(val)
			m.CPU.Regs[REG_AX] = uint16(res)
			m.CPU.Regs[REG_DX] = uint16(res >> 16)
			hi := m.CPU.Regs[REG_DX] != 0
			m.CPU.SetFlag(FLAG_CF, hi)
			m.CPU.SetFlag(FLAG_OF, hi)
		} else {
			res := uint16(m.CPU.GetReg8(0)) * (val & 0xFF)
			m.CPU.Regs[REG_AX] = res
			hi := res>>8 != 0
			m.CPU.SetFlag(FLAG_CF, hi)
			m.CPU.SetFlag(FLAG_OF, hi)
		}

	case "IMUL":
		val := m.readOperand(inst.Op1, seg)
		if inst.Wide {
			res := int32(int16(m.CPU.Regs[REG_AX])) * int32(int16(val))
			m.CPU.Regs[REG_AX] = uint16(res)
			m.CPU.Regs[REG_DX] = uint16(uint32(res) >> 16)
			ext := int32(int16(m.CPU.Regs[REG_AX])) != res
			m.CPU.SetFlag(FLAG_CF, ext)
			m.CPU.SetFlag(FLAG_OF, ext)
		} else {
			res := int16(int8(m.CPU.GetReg8(0))) * int16(int8(val))
			m.CPU.Regs[REG_AX] = uint16(res)
			ext := int16(int8(res)) != res
			m.CPU.SetFlag(FLAG_CF, ext)
			m.CPU.SetFlag(FLAG_OF, ext)
		}

	case "DIV":
		val := m.readOperand(inst.Op1, seg)
		if val == 0 {
			result.Halted = true
			result.HaltReason = "Division by zero"
			return
		}
		if inst.Wide {
			dividend := uint32(m.CPU.Regs[REG_DX])<<16 | uint32(m.CPU.Regs[REG_AX])
			quot := dividend / uint32(val)
			rem := uint16(dividend % uint32(val))
			if quot > 0xFFFF {
				result.Halted = true
				result.HaltReason = "Division overflow"
				return
			}
			m.CPU.Regs[REG_AX] = uint16(quot)
			m.CPU.Regs[REG_DX] = rem
		} else {
			dividend := m.CPU.Regs[REG_AX]
			divisor := val & 0xFF
			quot := dividend / divisor
			rem := uint8(dividend % divisor)
			if quot > 0xFF {
				result.Halted = true
				result.HaltReason = "Division overflow"
				return
			}
			m.CPU.SetReg8(0, uint8(quot))
			m.CPU.SetReg8(4, rem)
		}

	case "IDIV":
		val := m.readOperand(inst.Op1, seg)
		if val == 0 {
			result.Halted = true
			result.HaltReason = "Division by zero"
			return
		}
		if inst.Wide {
			dividend := int32(uint32(m.CPU.Regs[REG_DX])<<16 | uint32(m.CPU.Regs[REG_AX]))
			divisor := int32(int16(val))
			quot := dividend / divisor
			rem := int16(dividend % divisor)
			if quot > 32767 || quot < -32768 {
				result.Halted = true
				result.HaltReason = "Division overflow"
				return
			}
			m.CPU.Regs[REG_AX] = uint16(int16(quot))
			m.CPU.Regs[REG_DX] = uint16(rem)
		} else {
			dividend := int16(m.CPU.Regs[REG_AX])
			divisor := int16(int8(val))
			quot := dividend / divisor
			rem := int8(dividend % divisor)
			if quot > 127 || quot < -128 {
				result.Halted = true
				result.HaltReason = "Division overflow"
				return
			}
			m.CPU.SetReg8(0, uint8(int8(quot)))
			m.CPU.SetReg8(4, uint8(rem))
		}

	case "SHL", "SHR", "SAR", "ROL", "ROR", "RCL", "RCR":
		m.executeShift(inst)

	case "MOV":
		val := m.readOperand(inst.Op2, seg)
		m.writeOperand(inst.Op1, val, seg)

	case "XCHG":
		a := m.readOperand(inst.Op1, seg)
		b := m.readOperand(inst.Op2, seg)
		m.writeOperand(inst.Op1, b, seg)
		m.writeOperand(inst.Op2, a, seg)

	case "LEA":
		addr := m.effectiveAddress(inst.Op2)
		m.writeOperand(inst.Op1, addr, -1)

	case "PUSH":
		m.push(m.readOperand(inst.Op1, seg))

	case "POP":
		m.writeOperand(inst.Op1, m.pop(), seg)

	case "JMP":
		if inst.JumpTarget >= 0 {
			m.CPU.IP = uint16(inst.JumpTarget)
		} else {
			// Indirect through register/memory (FF /4)
			m.CPU.IP = m.readOperand(inst.Op1, seg)
		}

	case "CALL":
		m.push(m.CPU.IP) // already advanced past the CALL
		if inst.JumpTarget >= 0 {
			m.CPU.IP = uint16(inst.JumpTarget)
		} else {
			m.CPU.IP = m.readOperand(inst.Op1, seg)
		}

	case "RET":
		m.CPU.IP = m.pop()

	case "LOOP", "LOOPE", "LOOPNE", "JCXZ":
		if mn == "JCXZ" {
			if m.CPU.Regs[REG_CX] == 0 && inst.JumpTarget >= 0 {
				m.CPU.IP = uint16(inst.JumpTarget)
			}
			break
		}
		m.CPU.Regs[REG_CX]--
		branch := false
		switch mn {
		case "LOOP":
			branch = m.CPU.Regs[REG_CX] != 0
		case "LOOPE":
			branch = m.CPU.Regs[REG_CX] != 0 && m.CPU.GetFlag(FLAG_ZF)
		case "LOOPNE":
			branch = m.CPU.Regs[REG_CX] != 0 && !m.CPU.GetFlag(FLAG_ZF)
		}
		if branch && inst.JumpTarget >= 0 {
			m.CPU.IP = uint16(inst.JumpTarget)
		}

	case "MOVSB", "MOVSW", "CMPSB", "CMPSW", "STOSB", "STOSW",
		"LODSB", "LODSW", "SCASB", "SCASW":
		m.executeString(inst)

	case "CLC":
		m.CPU.SetFlag(FLAG_CF, false)
	case "STC":
		m.CPU.SetFlag(FLAG_CF, true)
	case "CMC":
		m.CPU.SetFlag(FLAG_CF, !m.CPU.GetFlag(FLAG_CF))
	case "CLD":
		m.CPU.SetFlag(FLAG_DF, false)
	case "STD":
		m.CPU.SetFlag(FLAG_DF, true)
	case "CLI":
		m.CPU.SetFlag(FLAG_IF, false)
	case "STI":
		m.CPU.SetFlag(FLAG_IF, true)

	case "PUSHF":
		m.push(m.CPU.Flags)
	case "POPF":
		m.CPU.Flags = m.pop()

	case "NOP":

	case "CBW":
		m.CPU.Regs[REG_AX] = uint16(int16(int8(m.CPU.GetReg8(0))))
	case "CWD":
		if int16(m.CPU.Regs[REG_AX]) < 0 {
			m.CPU.Regs[REG_DX] = 0xFFFF
		} else {
			m.CPU.Regs[REG_DX] = 0x0000
		}
	case "LAHF":
		m.CPU.SetReg8(4, uint8(m.CPU.Flags))
	case "SAHF":
		m.CPU.Flags = m.CPU.Flags&0xFF00 | uint16(m.CPU.GetReg8(4))

	case "XLAT":
		addr := m.CPU.Regs[REG_BX] + uint16(m.CPU.GetReg8(0))
		m.CPU.SetReg8(0, m.Mem.SRead8(m.CPU.Sregs[SREG_DS], addr))

	case "HLT":
		result.Halted = true
		result.HaltReason = encoding.Text(
			"HLT instruction at " + encoding.HexImm16(m.CPU.IP-uint16(inst.Size)),
		)

	case "PUSHA":
		origSP := m.CPU.Regs[REG_SP]
		for r := 0; r < 8; r++ {
			if r == REG_SP {
				m.push(origSP)
			} else {
				m.push(m.CPU.Regs[r])
			}
		}

	case "POPA":
		m.CPU.Regs[REG_DI] = m.pop()
		m.CPU.Regs[REG_SI] = m.pop()
		m.CPU.Regs[REG_BP] = m.pop()
		m.CPU.Regs[REG_SP] += 2 // pushed SP is discarded
		m.CPU.Regs[REG_BX] = m.pop()
		m.CPU.Regs[REG_DX] = m.pop()
		m.CPU.Regs[REG_CX] = m.pop()
		m.CPU.Regs[REG_AX] = m.pop()

	case "INT":
		m.handleInterrupt(uint8(inst.Op1.Disp), result)

	case "IN", "OUT":
		result.AddSkipped(m.CPU.IP, decoder.FormatInstruction(inst), "I/O not emulated")

	default:
		if len(mn) >= 2 && mn[0] == 'J' && inst.JumpTarget >= 0 {
			if evalCondition(&m.CPU, mn) {
				m.CPU.IP = uint16(inst.JumpTarget)
			}
			break
		}
		result.AddSkipped(m.CPU.IP, mn, "Unimplemented instruction")
	}
}

// Shifts and rotates iterate bit by bit: CF takes the last bit shifted
// out, OF is defined only for count 1, and a masked count of zero leaves
// every flag alone. SHL/SHR/SAR also refresh ZF/SF/PF; rotates do not.
func (m *Machine) executeShift(inst decoder.DecodedInst) {
	seg := inst.SegOverride
	val := m.readOperand(inst.Op1, seg)
	cnt := m.readOperand(inst.Op2, seg) & 0x1F
	if cnt == 0 {
		return
	}

	wide := inst.Wide
	mask := uint16(0xFF)
	signBit := uint16(0x80)
	if wide {
		mask = 0xFFFF
		signBit = 0x8000
	}
	res := val

	switch inst.Mnemonic {
	case "SHL":
		for i := uint16(0); i < cnt; i++ {
			m.CPU.SetFlag(FLAG_CF, res&signBit != 0)
			res = (res << 1) & mask
		}
		if cnt == 1 {
			m.CPU.SetFlag(FLAG_OF, (res&signBit != 0) != m.CPU.GetFlag(FLAG_CF))
		}
		m.setShiftResultFlags(res, mask, signBit)

	case "SHR":
		if cnt == 1 {
			m.CPU.SetFlag(FLAG_OF, val&signBit != 0)
		}
		for i := uint16(0); i < cnt; i++ {
			m.CPU.SetFlag(FLAG_CF, res&1 != 0)
			res = (res >> 1) & mask
		}
		m.setShiftResultFlags(res, mask, signBit)

	case "SAR":
		if cnt == 1 {
			m.CPU.SetFlag(FLAG_OF, false)
		}
		for i := uint16(0); i < cnt; i++ {
			m.CPU.SetFlag(FLAG_CF, res&1 != 0)
			if wide {
				res = uint16(int16(res) >> 1)
			} else {
				res = uint16(uint8(int8(uint8(res)) >> 1))
			}
		}
		res &= mask
		m.setShiftResultFlags(res, mask, signBit)

	case "ROL":
		for i := uint16(0); i < cnt; i++ {
			msb := res&signBit != 0
			res = (res << 1) & mask
			if msb {
				res |= 1
			}
		}
		m.CPU.SetFlag(FLAG_CF, res&1 != 0)
		if cnt == 1 {
			m.CPU.SetFlag(FLAG_OF, (res&signBit != 0) != m.CPU.GetFlag(FLAG_CF))
		}

	case "ROR":
		for i := uint16(0); i < cnt; i++ {
			lsb := res&1 != 0
			res = (res >> 1) & mask
			if lsb {
				res |= signBit
			}
		}
		m.CPU.SetFlag(FLAG_CF, res&signBit != 0)
		if cnt == 1 {
			m.CPU.SetFlag(FLAG_OF, (res&signBit != 0) != (res&(signBit>>1) != 0))
		}

	case "RCL":
		for i := uint16(0); i < cnt; i++ {
			oldCF := m.CPU.GetFlag(FLAG_CF)
			m.CPU.SetFlag(FLAG_CF, res&signBit != 0)
			res = (res << 1) & mask
			if oldCF {
				res |= 1
			}
		}
		if cnt == 1 {
			m.CPU.SetFlag(FLAG_OF, (res&signBit != 0) != m.CPU.GetFlag(FLAG_CF))
		}

	case "RCR":
		for i := uint16(0); i < cnt; i++ {
			oldCF := m.CPU.GetFlag(FLAG_CF)
			m.CPU.SetFlag(FLAG_CF, res&1 != 0)
			res = (res >> 1) & mask
			if oldCF {
				res |= signBit
			}
		}
		if cnt == 1 {
			m.CPU.SetFlag(FLAG_OF, (res&signBit != 0) != (res&(signBit>>1) != 0))
		}
	}

	m.writeOperand(inst.Op1, res&mask, seg)
}

func (m *Machine) setShiftResultFlags(res, mask, signBit uint16) {
	m.CPU.SetFlag(FLAG_ZF, res&mask == 0)
	m.CPU.SetFlag(FLAG_SF, res&signBit != 0)
	m.CPU.SetFlag(FLAG_PF, encoding.Parity8(uint8(res)))
}

// String primitives. Sources read through DS (overridable); destinations
// write through ES:[DI], never overridable. With a REP prefix the
// operation loops on CX; REPE stops a compare on ZF=0, REPNE on ZF=1.
func (m *Machine) executeString(inst decoder.DecodedInst) {
	mn := inst.Mnemonic
	isWord := mn[len(mn)-1] == 'W'
	step := uint16(1)
	if isWord {
		step = 2
	}
	dir := step
	if m.CPU.GetFlag(FLAG_DF) {
		dir = -step
	}
	kind := mn[:4]
	isCompare := kind == "CMPS" || kind == "SCAS"

	doOne := func() {
		srcSeg := m.resolveSegment(inst.Op1, inst.SegOverride)
		dstSeg := m.CPU.Sregs[SREG_ES]

		switch kind {
		case "MOVS":
			if isWord {
				m.Mem.SWrite16(dstSeg, m.CPU.Regs[REG_DI],
					m.Mem.SRead16(srcSeg, m.CPU.Regs[REG_SI]))
			} else {
				m.Mem.SWrite8(dstSeg, m.CPU.Regs[REG_DI],
					m.Mem.SRead8(srcSeg, m.CPU.Regs[REG_SI]))
			}
			m.CPU.Regs[REG_SI] += dir
			m.CPU.Regs[REG_DI] += dir
		case "CMPS":
			var a, b uint16
			if isWord {
				a = m.Mem.SRead16(srcSeg, m.CPU.Regs[REG_SI])
				b = m.Mem.SRead16(dstSeg, m.CPU.Regs[REG_DI])
			} else {
				a = uint16(m.Mem.SRead8(srcSeg, m.CPU.Regs[REG_SI]))
				b = uint16(m.Mem.SRead8(dstSeg, m.CPU.Regs[REG_DI]))
			}
			m.updateFlagsSub(uint32(a)-uint32(b), a, b, isWord)
			m.CPU.Regs[REG_SI] += dir
			m.CPU.Regs[REG_DI] += dir
		case "STOS":
			if isWord {
				m.Mem.SWrite16(dstSeg, m.CPU.Regs[REG_DI], m.CPU.Regs[REG_AX])
			} else {
				m.Mem.SWrite8(dstSeg, m.CPU.Regs[REG_DI], m.CPU.GetReg8(0))
			}
			m.CPU.Regs[REG_DI] += dir
		case "LODS":
			if isWord {
				m.CPU.Regs[REG_AX] = m.Mem.SRead16(srcSeg, m.CPU.Regs[REG_SI])
			} else {
				m.CPU.SetReg8(0, m.Mem.SRead8(srcSeg, m.CPU.Regs[REG_SI]))
			}
			m.CPU.Regs[REG_SI] += dir
		case "SCAS":
			var a, b uint16
			if isWord {
				a = m.CPU.Regs[REG_AX]
				b = m.Mem.SRead16(dstSeg, m.CPU.Regs[REG_DI])
			} else {
				a = uint16(m.CPU.GetReg8(0))
				b = uint16(m.Mem.SRead8(dstSeg, m.CPU.Regs[REG_DI]))
			}
			m.updateFlagsSub(uint32(a)-uint32(b), a, b, isWord)
			m.CPU.Regs[REG_DI] += dir
		}
	}

	if inst.HasRep || inst.HasRepne {
		for m.CPU.Regs[REG_CX] != 0 {
			doOne()
			m.CPU.Regs[REG_CX]--
			if isCompare {
				if inst.HasRep && !m.CPU.GetFlag(FLAG_ZF) {
					break
				}
				if inst.HasRepne && m.CPU.GetFlag(FLAG_ZF) {
					break
				}
			}
		}
	} else {
		doOne()
	}
}
