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

package decoder

import (
	"github.com/lassandro/agent86/pkg/encoding"
)

// Decoded ModR/M byte plus displacement. BytesConsumed of zero signals a
// truncated buffer.
type modRMResult struct {
	operand       string
	reg           int
	bytesConsumed int
	mod           int
	rm            int
	isReg         bool
	disp          int
}

func hasBytesAt(code []byte, offset, count int) bool {
	return offset >= 0 && offset+count <= len(code)
}

func readByte(code []byte, offset int) byte {
	if offset >= 0 && offset < len(code) {
		return code[offset]
	}
	return 0
}

func readWord(code []byte, offset int) uint16 {
	if offset >= 0 && offset+1 < len(code) {
		return uint16(code[offset]) | uint16(code[offset+1])<<8
	}
	return 0
}

func decodeModRM(code []byte, offset, operandSize int) modRMResult {
	var res modRMResult

	if !hasBytesAt(code, offset, 1) {
		return res
	}

	modrm := readByte(code, offset)
	res.mod = int(modrm>>6) & 3
	res.reg = int(modrm>>3) & 7
	res.rm = int(modrm) & 7
	res.bytesConsumed = 1

	if res.mod == 3 {
		res.isReg = true
		if operandSize == 8 {
			res.operand = regNames8[res.rm]
		} else {
			res.operand = regNames16[res.rm]
		}
		return res
	}

	if res.mod == 0 && res.rm == 6 {
		// Direct 16-bit address
		if !hasBytesAt(code, offset+1, 2) {
			res.bytesConsumed = 0
			return res
		}
		d := readWord(code, offset+1)
		res.bytesConsumed += 2
		res.disp = int(d)
		res.operand = "[" + encoding.HexImm16(d) + "]"
		return res
	}

	text := "[" + memRMText(res.rm)

	switch res.mod {
	case 1:
		if !hasBytesAt(code, offset+res.bytesConsumed, 1) {
			res.bytesConsumed = 0
			return res
		}
		d := int(int8(readByte(code, offset+res.bytesConsumed)))
		res.bytesConsumed++
		res.disp = d
		text += encoding.DispStr8(d)
	case 2:
		if !hasBytesAt(code, offset+res.bytesConsumed, 2) {
			res.bytesConsumed = 0
			return res
		}
		d := int(int16(readWord(code, offset+res.bytesConsumed)))
		res.bytesConsumed += 2
		res.disp = d
		text += encoding.DispStr16(d)
	}

	res.operand = text + "]"
	return res
}

func memRMText(rm int) string {
	switch rm {
	case 0:
		return "BX+SI"
	case 1:
		return "BX+DI"
	case 2:
		return "BP+SI"
	case 3:
		return "BP+DI"
	case 4:
		return "SI"
	case 5:
		return "DI"
	case 6:
		return "BP"
	case 7:
		return "BX"
	}
	return "?"
}

func makeReg8(reg int) DecodedOperand {
	reg &= 7
	return DecodedOperand{
		Kind: KIND_REG8, Reg: reg, MemRM: -1, Size: 8, Text: regNames8[reg],
	}
}

func makeReg16(reg int) DecodedOperand {
	reg &= 7
	return DecodedOperand{
		Kind: KIND_REG16, Reg: reg, MemRM: -1, Size: 16, Text: regNames16[reg],
	}
}

func makeSreg(reg int) DecodedOperand {
	text := "???"
	if reg >= 0 && reg < 4 {
		text = sregNames[reg]
	}
	return DecodedOperand{
		Kind: KIND_SREG, Reg: reg, MemRM: -1, Size: 16, Text: text,
	}
}

func makeImm8(val byte) DecodedOperand {
	return DecodedOperand{
		Kind: KIND_IMM8, MemRM: -1, Disp: int(val), Size: 8,
		Text: encoding.HexImm8(val),
	}
}

func makeImm16(val uint16) DecodedOperand {
	return DecodedOperand{
		Kind: KIND_IMM16, MemRM: -1, Disp: int(val), Size: 16,
		Text: encoding.HexImm16(val),
	}
}

func makeDirectMem(addr uint16, size int) DecodedOperand {
	return DecodedOperand{
		Kind: KIND_MEM, MemRM: -1, Disp: int(addr), Size: size,
		Text: "[" + encoding.HexImm16(addr) + "]",
	}
}

// modrmToOperand converts a ModR/M result into a structured operand of the
// given width
func modrmToOperand(m modRMResult, operandSize int) DecodedOperand {
	op := DecodedOperand{
		Text: m.operand,
		Size: operandSize,
		Disp: m.disp,
	}

	if m.isReg {
		if operandSize == 8 {
			op.Kind = KIND_REG8
		} else {
			op.Kind = KIND_REG16
		}
		op.Reg = m.rm
		op.MemRM = -1
	} else {
		op.Kind = KIND_MEM
		if m.mod == 0 && m.rm == 6 {
			op.MemRM = -1
		} else {
			op.MemRM = m.rm
		}
	}

	return op
}

func regFromField(reg, size int) DecodedOperand {
	if size == 8 {
		return makeReg8(reg)
	}
	return makeReg16(reg)
}

// addSizePrefix marks a memory operand's text with its explicit width, for
// forms where the width is not implied by a register operand
func addSizePrefix(op *DecodedOperand) {
	if op.Kind == KIND_MEM {
		if op.Size == 8 {
			op.Text = "BYTE " + op.Text
		} else {
			op.Text = "WORD " + op.Text
		}
	}
}

// FormatInstruction renders the canonical text form shared by the
// disassembler listing and snapshot next-instruction fields
func FormatInstruction(inst DecodedInst) string {
	result := inst.PrefixText + inst.Mnemonic
	if inst.Op1.Kind != KIND_NONE {
		result += " " + inst.Op1.Text
		if inst.Op2.Kind != KIND_NONE {
			result += ", " + inst.Op2.Text
		}
	}
	return result
}
