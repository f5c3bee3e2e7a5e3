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

var aluMnemonics = [8]string{
	"ADD", "OR", "ADC", "SBB", "AND", "SUB", "XOR", "CMP",
}

var jccNames = [16]string{
	"JO", "JNO", "JB", "JNB", "JZ", "JNZ", "JBE", "JA",
	"JS", "JNS", "JP", "JNP", "JL", "JGE", "JLE", "JG",
}

var shiftNames = [8]string{"ROL", "ROR", "RCL", "RCR", "SHL", "SHR", "", "SAR"}

// Decode reads one instruction at offset. It consumes any REP/REPNE and
// segment override prefixes, then dispatches on the opcode byte through
// the inverse of the assembler's encoding tables. The result is invalid
// when the opcode is unrecognized, a group extension selects a reserved
// slot, or a required ModR/M byte, displacement, or immediate runs past
// the buffer. Decode is pure: same input, same output.
func Decode(code []byte, offset int) DecodedInst {
	inst := DecodedInst{
		SegOverride: -1,
		JumpTarget:  -1,
		ModRMExt:    -1,
	}
	if offset < 0 || offset >= len(code) {
		return inst
	}

	current := offset

	for hasBytesAt(code, current, 1) {
		b := readByte(code, current)
		switch b {
		case 0xF2:
			inst.HasRepne = true
			inst.PrefixText += "REPNE "
		case 0xF3:
			inst.HasRep = true
			inst.PrefixText += "REP "
		case 0x26:
			inst.SegOverride = 0x26
			inst.PrefixText += "ES: "
		case 0x2E:
			inst.SegOverride = 0x2E
			inst.PrefixText += "CS: "
		case 0x36:
			inst.SegOverride = 0x36
			inst.PrefixText += "SS: "
		case 0x3E:
			inst.SegOverride = 0x3E
			inst.PrefixText += "DS: "
		default:
			goto prefixesDone
		}
		inst.PrefixBytes++
		current++
	}

prefixesDone:
	if !hasBytesAt(code, current, 1) {
		return inst
	}

	inst.Opcode = readByte(code, current)
	current++

	opcode := inst.Opcode

	finish := func(totalSize int) {
		inst.Valid = true
		inst.Size = totalSize
	}

	switch {

	// MOV r/m, r and MOV r, r/m (88-8B)
	case opcode >= 0x88 && opcode <= 0x8B:
		inst.Wide = opcode&1 != 0
		opSize := 8
		if inst.Wide {
			opSize = 16
		}
		m := decodeModRM(code, current, opSize)
		if m.bytesConsumed == 0 {
			return inst
		}
		inst.Mnemonic = "MOV"
		if opcode&2 != 0 {
			inst.Op1 = regFromField(m.reg, opSize)
			inst.Op2 = modrmToOperand(m, opSize)
		} else {
			inst.Op1 = modrmToOperand(m, opSize)
			inst.Op2 = regFromField(m.reg, opSize)
		}
		finish(inst.PrefixBytes + 1 + m.bytesConsumed)

	// MOV r/m16, Sreg (8C) and MOV Sreg, r/m16 (8E)
	case opcode == 0x8C || opcode == 0x8E:
		m := decodeModRM(code, current, 16)
		if m.bytesConsumed == 0 {
			return inst
		}
		inst.Mnemonic = "MOV"
		inst.Wide = true
		if opcode == 0x8C {
			inst.Op1 = modrmToOperand(m, 16)
			inst.Op2 = makeSreg(m.reg)
		} else {
			inst.Op1 = makeSreg(m.reg)
			inst.Op2 = modrmToOperand(m, 16)
		}
		finish(inst.PrefixBytes + 1 + m.bytesConsumed)

	// MOV r8, imm8 (B0-B7)
	case opcode >= 0xB0 && opcode <= 0xB7:
		if !hasBytesAt(code, current, 1) {
			return inst
		}
		inst.Mnemonic = "MOV"
		inst.Op1 = makeReg8(int(opcode & 7))
		inst.Op2 = makeImm8(readByte(code, current))
		finish(inst.PrefixBytes + 2)

	// MOV r16, imm16 (B8-BF)
	case opcode >= 0xB8 && opcode <= 0xBF:
		if !hasBytesAt(code, current, 2) {
			return inst
		}
		inst.Mnemonic = "MOV"
		inst.Wide = true
		inst.Op1 = makeReg16(int(opcode & 7))
		inst.Op2 = makeImm16(readWord(code, current))
		finish(inst.PrefixBytes + 3)

	// MOV r/m, imm (C6/C7), ext must be 0
	case opcode == 0xC6 || opcode == 0xC7:
		inst.Wide = opcode == 0xC7
		opSize := 8
		immSize := 1
		if inst.Wide {
			opSize = 16
			immSize = 2
		}
		m := decodeModRM(code, current, opSize)
		if m.bytesConsumed == 0 || m.reg != 0 {
			return inst
		}
		if !hasBytesAt(code, current+m.bytesConsumed, immSize) {
			return inst
		}
		inst.Mnemonic = "MOV"
		inst.ModRMExt = 0
		inst.Op1 = modrmToOperand(m, opSize)
		addSizePrefix(&inst.Op1)
		if inst.Wide {
			inst.Op2 = makeImm16(readWord(code, current+m.bytesConsumed))
		} else {
			inst.Op2 = makeImm8(readByte(code, current+m.bytesConsumed))
		}
		finish(inst.PrefixBytes + 1 + m.bytesConsumed + immSize)

	// Segment PUSH/POP sit inside the ALU opcode block and must match
	// before it (06/0E/16/1E push, 07/17/1F pop; POP CS 0F is invalid)
	case opcode == 0x06 || opcode == 0x0E || opcode == 0x16 || opcode == 0x1E:
		inst.Mnemonic = "PUSH"
		inst.Op1 = makeSreg(int(opcode >> 3))
		finish(inst.PrefixBytes + 1)

	case opcode == 0x07 || opcode == 0x17 || opcode == 0x1F:
		inst.Mnemonic = "POP"
		inst.Op1 = makeSreg(int(opcode >> 3))
		finish(inst.PrefixBytes + 1)

	// ALU r/m, r forms: 00-3B where bit 2 clear
	case opcode < 0x40 && opcode&4 == 0:
		inst.Mnemonic = aluMnemonics[(opcode>>3)&7]
		inst.Wide = opcode&1 != 0
		dirToReg := opcode&2 != 0
		opSize := 8
		if inst.Wide {
			opSize = 16
		}
		m := decodeModRM(code, current, opSize)
		if m.bytesConsumed == 0 {
			return inst
		}
		if dirToReg {
			inst.Op1 = regFromField(m.reg, opSize)
			inst.Op2 = modrmToOperand(m, opSize)
		} else {
			inst.Op1 = modrmToOperand(m, opSize)
			inst.Op2 = regFromField(m.reg, opSize)
		}
		finish(inst.PrefixBytes + 1 + m.bytesConsumed)

	// ALU accumulator, imm forms: 04/05, 0C/0D, ... 3C/3D
	case opcode < 0x40 && opcode&6 == 4:
		inst.Mnemonic = aluMnemonics[(opcode>>3)&7]
		inst.Wide = opcode&1 != 0
		immSize := 1
		if inst.Wide {
			immSize = 2
		}
		if !hasBytesAt(code, current, immSize) {
			return inst
		}
		if inst.Wide {
			inst.Op1 = makeReg16(0)
			inst.Op2 = makeImm16(readWord(code, current))
		} else {
			inst.Op1 = makeReg8(0)
			inst.Op2 = makeImm8(readByte(code, current))
		}
		finish(inst.PrefixBytes + 1 + immSize)

	// ALU group: 80/81/82/83 with ModR/M extension selecting the operation
	case opcode >= 0x80 && opcode <= 0x83:
		isWord := opcode == 0x81 || opcode == 0x83
		isSignExt := opcode == 0x83
		opSize := 8
		if isWord {
			opSize = 16
		}
		m := decodeModRM(code, current, opSize)
		if m.bytesConsumed == 0 {
			return inst
		}
		inst.Mnemonic = aluMnemonics[m.reg]
		inst.Wide = isWord
		inst.ModRMExt = m.reg
		inst.Op1 = modrmToOperand(m, opSize)
		addSizePrefix(&inst.Op1)

		immSize := 1
		if isWord && !isSignExt {
			immSize = 2
		}
		if !hasBytesAt(code, current+m.bytesConsumed, immSize) {
			return inst
		}
		immVal := 0
		if immSize == 1 {
			immVal = int(readByte(code, current+m.bytesConsumed))
		} else {
			immVal = int(readWord(code, current+m.bytesConsumed))
		}
		if isSignExt {
			immVal = int(int16(int8(immVal)))
		}
		if isWord {
			inst.Op2 = makeImm16(uint16(immVal))
		} else {
			inst.Op2 = makeImm8(byte(immVal))
		}
		finish(inst.PrefixBytes + 1 + m.bytesConsumed + immSize)

	// TEST r/m, r (84/85)
	case opcode == 0x84 || opcode == 0x85:
		inst.Wide = opcode == 0x85
		opSize := 8
		if inst.Wide {
			opSize = 16
		}
		m := decodeModRM(code, current, opSize)
		if m.bytesConsumed == 0 {
			return inst
		}
		inst.Mnemonic = "TEST"
		inst.Op1 = modrmToOperand(m, opSize)
		inst.Op2 = regFromField(m.reg, opSize)
		finish(inst.PrefixBytes + 1 + m.bytesConsumed)

	// XCHG r/m, r (86/87)
	case opcode == 0x86 || opcode == 0x87:
		inst.Wide = opcode == 0x87
		opSize := 8
		if inst.Wide {
			opSize = 16
		}
		m := decodeModRM(code, current, opSize)
		if m.bytesConsumed == 0 {
			return inst
		}
		inst.Mnemonic = "XCHG"
		inst.Op1 = modrmToOperand(m, opSize)
		inst.Op2 = regFromField(m.reg, opSize)
		finish(inst.PrefixBytes + 1 + m.bytesConsumed)

	// Group 3: F6/F7 - TEST imm, (reserved), NOT, NEG, MUL, IMUL, DIV, IDIV
	case opcode == 0xF6 || opcode == 0xF7:
		inst.Wide = opcode == 0xF7
		opSize := 8
		if inst.Wide {
			opSize = 16
		}
		m := decodeModRM(code, current, opSize)
		if m.bytesConsumed == 0 {
			return inst
		}
		inst.ModRMExt = m.reg

		switch m.reg {
		case 0:
			immSize := 1
			if inst.Wide {
				immSize = 2
			}
			if !hasBytesAt(code, current+m.bytesConsumed, immSize) {
				return inst
			}
			inst.Mnemonic = "TEST"
			inst.Op1 = modrmToOperand(m, opSize)
			addSizePrefix(&inst.Op1)
			if inst.Wide {
				inst.Op2 = makeImm16(readWord(code, current+m.bytesConsumed))
			} else {
				inst.Op2 = makeImm8(readByte(code, current+m.bytesConsumed))
			}
			finish(inst.PrefixBytes + 1 + m.bytesConsumed + immSize)
		case 1:
			return inst // reserved extension
		default:
			names := [8]string{"", "", "NOT", "NEG", "MUL", "IMUL", "DIV", "IDIV"}
			inst.Mnemonic = names[m.reg]
			inst.Op1 = modrmToOperand(m, opSize)
			addSizePrefix(&inst.Op1)
			finish(inst.PrefixBytes + 1 + m.bytesConsumed)
		}

	// Group 4: FE - INC/DEC r/m8
	case opcode == 0xFE:
		m := decodeModRM(code, current, 8)
		if m.bytesConsumed == 0 || m.reg > 1 {
			return inst
		}
		if m.reg == 0 {
			inst.Mnemonic = "INC"
		} else {
			inst.Mnemonic = "DEC"
		}
		inst.ModRMExt = m.reg
		inst.Op1 = modrmToOperand(m, 8)
		addSizePrefix(&inst.Op1)
		finish(inst.PrefixBytes + 1 + m.bytesConsumed)

	// Group 5: FF - INC/DEC/CALL/CALL FAR/JMP/JMP FAR/PUSH r/m16
	case opcode == 0xFF:
		m := decodeModRM(code, current, 16)
		if m.bytesConsumed == 0 {
			return inst
		}
		inst.ModRMExt = m.reg
		switch m.reg {
		case 0:
			inst.Mnemonic = "INC"
		case 1:
			inst.Mnemonic = "DEC"
		case 2:
			inst.Mnemonic = "CALL"
		case 3:
			inst.Mnemonic = "CALL FAR"
		case 4:
			inst.Mnemonic = "JMP"
		case 5:
			inst.Mnemonic = "JMP FAR"
		case 6:
			inst.Mnemonic = "PUSH"
		default:
			return inst
		}
		inst.Wide = true
		inst.Op1 = modrmToOperand(m, 16)
		if inst.Op1.Kind == KIND_MEM && m.reg <= 1 {
			addSizePrefix(&inst.Op1)
		}
		finish(inst.PrefixBytes + 1 + m.bytesConsumed)

	// Short-form INC/DEC/PUSH/POP r16 (40-5F)
	case opcode >= 0x40 && opcode <= 0x47:
		inst.Mnemonic = "INC"
		inst.Wide = true
		inst.Op1 = makeReg16(int(opcode & 7))
		finish(inst.PrefixBytes + 1)
	case opcode >= 0x48 && opcode <= 0x4F:
		inst.Mnemonic = "DEC"
		inst.Wide = true
		inst.Op1 = makeReg16(int(opcode & 7))
		finish(inst.PrefixBytes + 1)
	case opcode >= 0x50 && opcode <= 0x57:
		inst.Mnemonic = "PUSH"
		inst.Wide = true
		inst.Op1 = makeReg16(int(opcode & 7))
		finish(inst.PrefixBytes + 1)
	case opcode >= 0x58 && opcode <= 0x5F:
		inst.Mnemonic = "POP"
		inst.Wide = true
		inst.Op1 = makeReg16(int(opcode & 7))
		finish(inst.PrefixBytes + 1)

	// POP r/m16 (8F), ext must be 0
	case opcode == 0x8F:
		m := decodeModRM(code, current, 16)
		if m.bytesConsumed == 0 || m.reg != 0 {
			return inst
		}
		inst.Mnemonic = "POP"
		inst.Wide = true
		inst.ModRMExt = 0
		inst.Op1 = modrmToOperand(m, 16)
		finish(inst.PrefixBytes + 1 + m.bytesConsumed)

	// Shifts/rotates by 1 or by CL (D0-D3)
	case opcode >= 0xD0 && opcode <= 0xD3:
		inst.Wide = opcode&1 != 0
		isCL := opcode&2 != 0
		opSize := 8
		if inst.Wide {
			opSize = 16
		}
		m := decodeModRM(code, current, opSize)
		if m.bytesConsumed == 0 {
			return inst
		}
		if m.reg == 6 {
			return inst // reserved slot
		}
		inst.ModRMExt = m.reg
		inst.Mnemonic = shiftNames[m.reg]
		inst.Op1 = modrmToOperand(m, opSize)
		if isCL {
			inst.Op2 = makeReg8(1)
		} else {
			inst.Op2 = makeImm8(1)
			inst.Op2.Text = "1" // shift-by-one displays bare
		}
		finish(inst.PrefixBytes + 1 + m.bytesConsumed)

	// Shifts/rotates by imm8 (C0/C1, 80186+); only ROL/ROR/SHL/SHR decode
	case opcode == 0xC0 || opcode == 0xC1:
		inst.Wide = opcode&1 != 0
		opSize := 8
		if inst.Wide {
			opSize = 16
		}
		m := decodeModRM(code, current, opSize)
		if m.bytesConsumed == 0 {
			return inst
		}
		if !hasBytesAt(code, current+m.bytesConsumed, 1) {
			return inst
		}
		if m.reg != 0 && m.reg != 1 && m.reg != 4 && m.reg != 5 {
			return inst
		}
		inst.ModRMExt = m.reg
		inst.Mnemonic = shiftNames[m.reg]
		inst.Op1 = modrmToOperand(m, opSize)
		inst.Op2 = makeImm8(readByte(code, current + m.bytesConsumed))
		finish(inst.PrefixBytes + 1 + m.bytesConsumed + 1)

	// JMP rel16 (E9) / CALL rel16 (E8)
	case opcode == 0xE9 || opcode == 0xE8:
		if !hasBytesAt(code, current, 2) {
			return inst
		}
		rel := int(int16(readWord(code, current)))
		inst.JumpTarget = (offset + inst.PrefixBytes + 3 + rel) & 0xFFFF
		if opcode == 0xE9 {
			inst.Mnemonic = "JMP"
		} else {
			inst.Mnemonic = "CALL"
		}
		inst.Op1 = makeImm16(uint16(inst.JumpTarget))
		finish(inst.PrefixBytes + 3)

	// JMP rel8 (EB)
	case opcode == 0xEB:
		if !hasBytesAt(code, current, 1) {
			return inst
		}
		rel := int(int8(readByte(code, current)))
		inst.JumpTarget = (offset + inst.PrefixBytes + 2 + rel) & 0xFFFF
		inst.Mnemonic = "JMP"
		inst.Op1 = makeImm16(uint16(inst.JumpTarget))
		finish(inst.PrefixBytes + 2)

	case opcode == 0xC3:
		inst.Mnemonic = "RET"
		finish(inst.PrefixBytes + 1)

	// Conditional jumps (70-7F, all short rel8)
	case opcode >= 0x70 && opcode <= 0x7F:
		if !hasBytesAt(code, current, 1) {
			return inst
		}
		rel := int(int8(readByte(code, current)))
		inst.JumpTarget = (offset + inst.PrefixBytes + 2 + rel) & 0xFFFF
		inst.Mnemonic = jccNames[opcode-0x70]
		inst.Op1 = makeImm16(uint16(inst.JumpTarget))
		finish(inst.PrefixBytes + 2)

	// LOOP family and JCXZ (E0-E3, short rel8)
	case opcode >= 0xE0 && opcode <= 0xE3:
		if !hasBytesAt(code, current, 1) {
			return inst
		}
		rel := int(int8(readByte(code, current)))
		inst.JumpTarget = (offset + inst.PrefixBytes + 2 + rel) & 0xFFFF
		switch opcode {
		case 0xE2:
			inst.Mnemonic = "LOOP"
		case 0xE1:
			inst.Mnemonic = "LOOPE"
		case 0xE0:
			inst.Mnemonic = "LOOPNE"
		case 0xE3:
			inst.Mnemonic = "JCXZ"
		}
		inst.Op1 = makeImm16(uint16(inst.JumpTarget))
		finish(inst.PrefixBytes + 2)

	// IN/OUT fixed port (E4-E7)
	case opcode >= 0xE4 && opcode <= 0xE7:
		if !hasBytesAt(code, current, 1) {
			return inst
		}
		imm := makeImm8(readByte(code, current))
		inst.Wide = opcode&1 != 0
		acc := makeReg8(0)
		if inst.Wide {
			acc = makeReg16(0)
		}
		if opcode <= 0xE5 {
			inst.Mnemonic = "IN"
			inst.Op1 = acc
			inst.Op2 = imm
		} else {
			inst.Mnemonic = "OUT"
			inst.Op1 = imm
			inst.Op2 = acc
		}
		finish(inst.PrefixBytes + 2)

	// IN/OUT variable port via DX (EC-EF)
	case opcode >= 0xEC && opcode <= 0xEF:
		inst.Wide = opcode&1 != 0
		acc := makeReg8(0)
		if inst.Wide {
			acc = makeReg16(0)
		}
		dx := makeReg16(2)
		if opcode <= 0xED {
			inst.Mnemonic = "IN"
			inst.Op1 = acc
			inst.Op2 = dx
		} else {
			inst.Mnemonic = "OUT"
			inst.Op1 = dx
			inst.Op2 = acc
		}
		finish(inst.PrefixBytes + 1)

	// LEA (8D, memory operand required)
	case opcode == 0x8D:
		m := decodeModRM(code, current, 16)
		if m.bytesConsumed == 0 || m.isReg {
			return inst
		}
		inst.Mnemonic = "LEA"
		inst.Wide = true
		inst.Op1 = makeReg16(m.reg)
		inst.Op2 = modrmToOperand(m, 16)
		finish(inst.PrefixBytes + 1 + m.bytesConsumed)

	// INT imm8 (CD)
	case opcode == 0xCD:
		if !hasBytesAt(code, current, 1) {
			return inst
		}
		inst.Mnemonic = "INT"
		inst.Op1 = makeImm8(readByte(code, current))
		finish(inst.PrefixBytes + 2)

	// String primitives (A4-A7, AA-AF)
	case opcode == 0xA4:
		inst.Mnemonic = "MOVSB"
		finish(inst.PrefixBytes + 1)
	case opcode == 0xA5:
		inst.Mnemonic = "MOVSW"
		inst.Wide = true
		finish(inst.PrefixBytes + 1)
	case opcode == 0xA6:
		inst.Mnemonic = "CMPSB"
		finish(inst.PrefixBytes + 1)
	case opcode == 0xA7:
		inst.Mnemonic = "CMPSW"
		inst.Wide = true
		finish(inst.PrefixBytes + 1)
	case opcode == 0xAA:
		inst.Mnemonic = "STOSB"
		finish(inst.PrefixBytes + 1)
	case opcode == 0xAB:
		inst.Mnemonic = "STOSW"
		inst.Wide = true
		finish(inst.PrefixBytes + 1)
	case opcode == 0xAC:
		inst.Mnemonic = "LODSB"
		finish(inst.PrefixBytes + 1)
	case opcode == 0xAD:
		inst.Mnemonic = "LODSW"
		inst.Wide = true
		finish(inst.PrefixBytes + 1)
	case opcode == 0xAE:
		inst.Mnemonic = "SCASB"
		finish(inst.PrefixBytes + 1)
	case opcode == 0xAF:
		inst.Mnemonic = "SCASW"
		inst.Wide = true
		finish(inst.PrefixBytes + 1)

	// MOV accumulator <-> direct address (A0-A3)
	case opcode >= 0xA0 && opcode <= 0xA3:
		if !hasBytesAt(code, current, 2) {
			return inst
		}
		addr := readWord(code, current)
		inst.Mnemonic = "MOV"
		inst.Wide = opcode&1 != 0
		opSize := 8
		acc := makeReg8(0)
		if inst.Wide {
			opSize = 16
			acc = makeReg16(0)
		}
		mem := makeDirectMem(addr, opSize)
		if opcode <= 0xA1 {
			inst.Op1 = acc
			inst.Op2 = mem
		} else {
			inst.Op1 = mem
			inst.Op2 = acc
		}
		finish(inst.PrefixBytes + 3)

	// TEST accumulator, imm (A8/A9)
	case opcode == 0xA8:
		if !hasBytesAt(code, current, 1) {
			return inst
		}
		inst.Mnemonic = "TEST"
		inst.Op1 = makeReg8(0)
		inst.Op2 = makeImm8(readByte(code, current))
		finish(inst.PrefixBytes + 2)
	case opcode == 0xA9:
		if !hasBytesAt(code, current, 2) {
			return inst
		}
		inst.Mnemonic = "TEST"
		inst.Wide = true
		inst.Op1 = makeReg16(0)
		inst.Op2 = makeImm16(readWord(code, current))
		finish(inst.PrefixBytes + 3)

	// Flag instructions
	case opcode == 0xFC:
		inst.Mnemonic = "CLD"
		finish(inst.PrefixBytes + 1)
	case opcode == 0xFD:
		inst.Mnemonic = "STD"
		finish(inst.PrefixBytes + 1)
	case opcode == 0xFA:
		inst.Mnemonic = "CLI"
		finish(inst.PrefixBytes + 1)
	case opcode == 0xFB:
		inst.Mnemonic = "STI"
		finish(inst.PrefixBytes + 1)
	case opcode == 0xF5:
		inst.Mnemonic = "CMC"
		finish(inst.PrefixBytes + 1)
	case opcode == 0xF8:
		inst.Mnemonic = "CLC"
		finish(inst.PrefixBytes + 1)
	case opcode == 0xF9:
		inst.Mnemonic = "STC"
		finish(inst.PrefixBytes + 1)

	// NOP is XCHG AX, AX
	case opcode == 0x90:
		inst.Mnemonic = "NOP"
		finish(inst.PrefixBytes + 1)

	// XCHG AX, r16 (91-97)
	case opcode >= 0x91 && opcode <= 0x97:
		inst.Mnemonic = "XCHG"
		inst.Wide = true
		inst.Op1 = makeReg16(0)
		inst.Op2 = makeReg16(int(opcode & 7))
		finish(inst.PrefixBytes + 1)

	case opcode == 0x98:
		inst.Mnemonic = "CBW"
		finish(inst.PrefixBytes + 1)
	case opcode == 0x99:
		inst.Mnemonic = "CWD"
		finish(inst.PrefixBytes + 1)
	case opcode == 0x9F:
		inst.Mnemonic = "LAHF"
		finish(inst.PrefixBytes + 1)
	case opcode == 0x9E:
		inst.Mnemonic = "SAHF"
		finish(inst.PrefixBytes + 1)
	case opcode == 0x9C:
		inst.Mnemonic = "PUSHF"
		finish(inst.PrefixBytes + 1)
	case opcode == 0x9D:
		inst.Mnemonic = "POPF"
		finish(inst.PrefixBytes + 1)
	case opcode == 0xD7:
		inst.Mnemonic = "XLAT"
		finish(inst.PrefixBytes + 1)
	case opcode == 0xF4:
		inst.Mnemonic = "HLT"
		finish(inst.PrefixBytes + 1)
	case opcode == 0x60:
		inst.Mnemonic = "PUSHA"
		finish(inst.PrefixBytes + 1)
	case opcode == 0x61:
		inst.Mnemonic = "POPA"
		finish(inst.PrefixBytes + 1)
	}

	// Anything else falls through with Valid=false, Size=0
	return inst
}
