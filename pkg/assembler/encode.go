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

package assembler

import (
	"fmt"

	"github.com/lassandro/agent86/pkg/encoding"
)

func (ctx *Context) emitByte(b byte) {
	if !ctx.IsPass1 {
		ctx.MachineCode = append(ctx.MachineCode, b)
		ctx.currentLineBytes = append(ctx.currentLineBytes, b)
	}
	ctx.CurrentAddress++
}

func (ctx *Context) emitWord(w uint16) {
	ctx.emitByte(byte(w & 0xFF))
	ctx.emitByte(byte(w >> 8))
}

// emitModRM writes the ModR/M byte and displacement for a memory operand.
// Displacement width rules:
//  1. Symbol-involving operands always take a 16-bit displacement so the
//     instruction size cannot differ between passes (phase errors)
//  2. Zero displacement with any base but BP takes no displacement bytes
//  3. Signed-8 displacements take one byte
//  4. Everything else takes two bytes, little endian
//
// Direct addressing is mod=00/rm=110 + disp16, which is why [BP] alone must
// encode as mod=01 with a zero displacement byte.
func (ctx *Context) emitModRM(regField int, mem Operand) {
	if mem.MemReg == -1 {
		ctx.emitByte(byte(0x06 | (regField << 3)))
		ctx.emitWord(uint16(mem.Val))
		return
	}

	var mod int
	switch {
	case mem.InvolvesSymbol:
		mod = 2
	case mem.Val == 0 && mem.MemReg != 6:
		mod = 0
	case mem.Val >= -128 && mem.Val <= 127:
		mod = 1
	default:
		mod = 2
	}

	if mem.MemReg == 6 && mod == 0 {
		mod = 1
	}

	ctx.emitByte(byte(mod<<6 | regField<<3 | mem.MemReg))
	if mod == 1 {
		ctx.emitByte(byte(mem.Val & 0xFF))
	} else if mod == 2 {
		ctx.emitWord(uint16(mem.Val & 0xFFFF))
	}
}

func (ctx *Context) warnTruncation8(line, val int) {
	if !ctx.IsPass1 && (val < -128 || val > 255) {
		ctx.logWarning(
			line,
			fmt.Sprintf(
				"Immediate value %d truncated to 8-bit (result: %d)",
				val, val&0xFF,
			),
			"Value exceeds 8-bit range (0-255 unsigned, -128 to 127 "+
				"signed). The low 8 bits will be used.",
		)
	}
}

func (ctx *Context) warnTruncation16(line, val int) {
	if !ctx.IsPass1 && (val < -32768 || val > 65535) {
		ctx.logWarning(
			line,
			fmt.Sprintf(
				"Immediate value %d truncated to 16-bit (result: %d)",
				val, val&0xFFFF,
			),
			"Value exceeds 16-bit range (0-65535 unsigned, -32768 to "+
				"32767 signed).",
		)
	}
}

func (ctx *Context) warnImplicitWord(line int, mnemonic string) {
	if !ctx.IsPass1 {
		ctx.logWarning(
			line,
			"No size prefix on memory-immediate operation, defaulting to WORD",
			"Add BYTE or WORD before the memory operand to be explicit. "+
				"Example: "+mnemonic+" BYTE [BX], 5 or "+mnemonic+
				" WORD [BX], 5",
		)
	}
}

// assembleLine handles one tokenized source line: label definitions, EQU,
// directives, prefixes, and finally the instruction encoders. Bytes only
// land in pass 2; pass 1 runs the same paths for their size effects.
func (ctx *Context) assembleLine(tokens []Token, lineNum int, sourceLine string) {
	if len(tokens) == 0 {
		return
	}
	idx := 0

	startAddr := ctx.CurrentAddress
	ctx.currentLineBytes = ctx.currentLineBytes[:0]
	diagsBefore := len(ctx.Diagnostics)

	// name EQU expr
	if len(tokens) >= 3 && tokens[0].Type == TOKEN_IDENT &&
		toUpper(tokens[1].Value) == "EQU" {
		label := toUpper(tokens[0].Value)
		valIdx := 2
		val := ctx.parseExpression(tokens, &valIdx, 0)
		// EQU silently overwrites; labels do not
		ctx.SymbolTable[label] = SymbolInfo{val, true, tokens[0].Line}
		return
	}

	if tokens[0].Type == TOKEN_LABELDEF {
		ctx.defineLabel(tokens[0])
		idx++
	}

	if idx >= len(tokens) {
		return
	}

	mnemonic := toUpper(tokens[idx].Value)
	mnemonicLine := tokens[idx].Line
	idx++

	switch mnemonic {
	case "REP", "REPE", "REPZ":
		ctx.emitByte(0xF3)
		if idx < len(tokens) {
			mnemonic = toUpper(tokens[idx].Value)
			idx++
		}
	case "REPNE", "REPNZ":
		ctx.emitByte(0xF2)
		if idx < len(tokens) {
			mnemonic = toUpper(tokens[idx].Value)
			idx++
		}
	}

	if ctx.assembleDirective(mnemonic, tokens, idx, lineNum) {
		return
	}

	op1 := ctx.parseOperand(tokens, &idx)
	var op2 Operand
	op2.MemReg = -1
	op2.SegmentPrefix = -1
	if idx < len(tokens) && tokens[idx].Type == TOKEN_COMMA {
		idx++
		op2 = ctx.parseOperand(tokens, &idx)
	}

	if idx < len(tokens) {
		ctx.logError(
			tokens[idx].Line, "Extra tokens at end of line",
			"Unexpected content after instruction. Check for missing "+
				"commas, stray characters, or a comment that doesn't "+
				"start with ';'.",
		)
	}

	if !ctx.validateInstruction(mnemonic, op1, op2, mnemonicLine) {
		return
	}

	decoded := mnemonic
	if op1.Present {
		decoded += " " + formatOperand(op1)
		if op2.Present {
			decoded += ", " + formatOperand(op2)
		}
	}

	if op1.SegmentPrefix != -1 {
		ctx.emitByte(byte(op1.SegmentPrefix))
	}
	if op2.SegmentPrefix != -1 {
		ctx.emitByte(byte(op2.SegmentPrefix))
	}

	ctx.encodeInstruction(mnemonic, op1, op2, mnemonicLine)

	// Drift check between the ISA DB and the encoders: validation accepted
	// the line but nothing was emitted
	if !ctx.IsPass1 && len(ctx.currentLineBytes) == 0 &&
		len(ctx.Diagnostics) == diagsBefore {
		ctx.logError(
			mnemonicLine,
			"Internal: mnemonic '"+mnemonic+"' passed ISA validation "+
				"but has no code path in the encoder",
			"This is an assembler bug. The instruction is listed in "+
				"the ISA database but no encoder handles it. Please "+
				"report this.",
		)
	}

	if !ctx.IsPass1 {
		entry := ListingEntry{
			Address: startAddr,
			Line:    lineNum,
			Size:    len(ctx.currentLineBytes),
			Decoded: encoding.Text(decoded),
			Source:  encoding.Text(sourceLine),
			Bytes:   make([]int, len(ctx.currentLineBytes)),
		}
		for i, b := range ctx.currentLineBytes {
			entry.Bytes[i] = int(b)
		}
		if lineNum > 0 && lineNum <= len(ctx.SourceMap) {
			loc := ctx.SourceMap[lineNum-1]
			entry.File = encoding.Text(loc.File)
			entry.SourceLine = loc.Line
		}
		ctx.Listing = append(ctx.Listing, entry)
	}
}

func (ctx *Context) defineLabel(tok Token) {
	label := tok.Value
	if label != "" && label[len(label)-1] == ':' {
		label = label[:len(label)-1]
	}

	if label[0] == '.' {
		if ctx.currentProcedureName != "" {
			label = ctx.currentProcedureName + label
		} else {
			ctx.logWarning(
				tok.Line, "Local label "+label+" outside procedure",
				"Local labels (starting with '.') must be inside a "+
					"PROC/ENDP block. Either wrap your code in a PROC or "+
					"use a global label (no '.' prefix).",
			)
		}
	}

	label = toUpper(label)
	if prevLine, seen := ctx.labelsSeen[label]; seen {
		ctx.logWarning(
			tok.Line,
			fmt.Sprintf(
				"Label '%s' redefined (previous definition at line %d)",
				label, prevLine,
			),
			"Each label should be defined once. If you need the same "+
				"name in different scopes, use local labels with '.' "+
				"prefix inside PROC/ENDP blocks.",
		)
	}
	ctx.labelsSeen[label] = tok.Line

	if ctx.IsPass1 {
		ctx.SymbolTable[label] = SymbolInfo{ctx.CurrentAddress, false, tok.Line}
	}
}

// assembleDirective handles ORG, data definition, reservation, and
// PROC/ENDP. Returns true when the mnemonic was a directive.
func (ctx *Context) assembleDirective(
	mnemonic string, tokens []Token, idx int, lineNum int,
) bool {
	switch mnemonic {
	case "ORG":
		if ctx.CurrentAddress > 0 && !ctx.IsPass1 {
			ctx.logWarning(
				tokens[0].Line, "ORG directive after code has been emitted",
				"ORG sets the address counter but does not move existing "+
					"code. Place ORG at the start of your source, before "+
					"any instructions or data.",
			)
		}
		var args []Token
		for ; idx < len(tokens); idx++ {
			if tokens[idx].Type != TOKEN_COMMA {
				args = append(args, tokens[idx])
			}
		}
		if len(args) == 1 && args[0].Type == TOKEN_NUMBER {
			val, err := encoding.ParseNumber(args[0].Value)
			if err != nil {
				ctx.logError(
					args[0].Line,
					"Invalid numeric literal in ORG: "+args[0].Value,
					upperFirst(err.Error())+". ORG requires a numeric "+
						"value. Common usage: ORG 100h (for .COM files).",
				)
			}
			ctx.CurrentAddress = val
		}
		return true

	case "DB":
		ctx.assembleDB(tokens, idx)
		return true

	case "DW":
		for idx < len(tokens) {
			val := ctx.parseExpression(tokens, &idx, 0)
			ctx.emitWord(uint16(val))
			idx = ctx.expectComma(tokens, idx, "DW", "DW 1234h, 5678h")
		}
		return true

	case "DD":
		for idx < len(tokens) {
			val := ctx.parseExpression(tokens, &idx, 0)
			ctx.emitWord(uint16(val & 0xFFFF))
			ctx.emitWord(uint16((val >> 16) & 0xFFFF))
			idx = ctx.expectComma(tokens, idx, "DD", "DD 12345678h")
		}
		return true

	case "RESB", "RESW":
		if idx < len(tokens) {
			count := ctx.parseExpression(tokens, &idx, 0)
			if mnemonic == "RESW" {
				count *= 2
			}
			for k := 0; k < count; k++ {
				ctx.emitByte(0)
			}
		}
		return true

	case "PROC":
		procName := ""
		for i := 0; i < len(tokens); i++ {
			if tokens[i].Type == TOKEN_LABELDEF {
				procName = tokens[i].Value
				if procName != "" && procName[len(procName)-1] == ':' {
					procName = procName[:len(procName)-1]
				}
			}
		}
		if procName != "" {
			ctx.currentProcedureName = toUpper(procName)
		} else {
			ctx.logError(
				tokens[0].Line, "PROC without label",
				"PROC must be on the same line as a label. "+
					"Example: myproc: PROC",
			)
		}
		return true

	case "ENDP":
		ctx.currentProcedureName = ""
		return true
	}

	return false
}

func (ctx *Context) assembleDB(tokens []Token, idx int) {
	for idx < len(tokens) {
		isExpr := true
		if tokens[idx].Type == TOKEN_STRING {
			isExpr = false
			// A string directly followed by an operator participates in an
			// expression (its first byte value) instead of emitting bytes
			if idx+1 < len(tokens) {
				switch tokens[idx+1].Type {
				case TOKEN_PLUS, TOKEN_MINUS, TOKEN_STAR, TOKEN_SLASH:
					isExpr = true
				}
			}
		}

		if !isExpr {
			for i := 0; i < len(tokens[idx].Value); i++ {
				ctx.emitByte(tokens[idx].Value[i])
			}
			idx++
		} else {
			val := ctx.parseExpression(tokens, &idx, 0)
			ctx.emitByte(byte(val))
		}

		idx = ctx.expectComma(tokens, idx, "DB", "DB 'Hello', 0Dh, 0Ah, '$'")
	}
}

func (ctx *Context) expectComma(tokens []Token, idx int, directive, example string) int {
	if idx >= len(tokens) {
		return idx
	}
	if tokens[idx].Type == TOKEN_COMMA {
		return idx + 1
	}
	if !ctx.IsPass1 {
		ctx.logError(
			tokens[idx].Line, "Expected comma in "+directive,
			directive+" values must be comma-separated. Example: "+example,
		)
	}
	return idx + 1
}

// encodeInstruction dispatches a validated mnemonic to its byte encoder.
// The opcode tables here are the bit-exact 8086 reference; the decoder
// package derives its inverse mapping from the same values.
func (ctx *Context) encodeInstruction(mnemonic string, op1, op2 Operand, line int) {
	switch mnemonic {
	case "MOV":
		ctx.encodeMOV(op1, op2, line)

	case "ADD", "ADC", "SUB", "SBB", "CMP", "AND", "OR", "XOR", "TEST":
		ctx.encodeALU(mnemonic, op1, op2, line)

	case "INC", "DEC", "NOT", "NEG":
		ctx.encodeUnary(mnemonic, op1)

	case "MUL", "IMUL", "DIV", "IDIV":
		ext := map[string]int{"MUL": 4, "IMUL": 5, "DIV": 6, "IDIV": 7}[mnemonic]
		if op1.Size == 8 {
			ctx.emitByte(0xF6)
		} else {
			ctx.emitByte(0xF7)
		}
		if op1.Type == OPERAND_REGISTER {
			ctx.emitByte(byte(0xC0 | ext<<3 | op1.Reg))
		} else if op1.Type == OPERAND_MEMORY {
			ctx.emitModRM(ext, op1)
		}

	case "INT":
		if op1.Type == OPERAND_IMMEDIATE {
			ctx.emitByte(0xCD)
			ctx.emitByte(byte(op1.Val & 0xFF))
		}

	case "SHL", "SHR", "SAR", "SAL", "ROL", "ROR", "RCL", "RCR":
		ctx.encodeShift(mnemonic, op1, op2, line)

	case "IN":
		ctx.encodeIN(op1, op2, line)

	case "OUT":
		ctx.encodeOUT(op1, op2, line)

	case "LEA":
		if op1.Type == OPERAND_REGISTER && op2.Type == OPERAND_MEMORY {
			if op1.Size != 16 {
				ctx.logError(
					line, "LEA requires 16-bit register",
					"LEA only works with 16-bit registers (AX, BX, CX, DX, "+
						"SI, DI, BP, SP). Use a 16-bit register as the "+
						"destination.",
				)
				return
			}
			ctx.emitByte(0x8D)
			ctx.emitModRM(op1.Reg, op2)
		} else {
			ctx.logError(
				line, "Invalid operands for LEA",
				"LEA requires a 16-bit register and a memory operand. "+
					"Example: LEA DI, [BX+SI+10h]",
			)
		}

	case "JMP":
		// Near jump always, so any in-segment target is reachable
		target := 0
		if op1.Type == OPERAND_IMMEDIATE {
			target = op1.Val
		}
		offset := target - (ctx.CurrentAddress + 3)
		ctx.emitByte(0xE9)
		ctx.emitWord(uint16(offset & 0xFFFF))

	case "CALL":
		target := 0
		if op1.Type == OPERAND_IMMEDIATE {
			target = op1.Val
		}
		offset := target - (ctx.CurrentAddress + 3)
		ctx.emitByte(0xE8)
		ctx.emitWord(uint16(offset & 0xFFFF))

	case "RET":
		ctx.emitByte(0xC3)

	case "LOOP", "LOOPE", "LOOPZ", "LOOPNE", "LOOPNZ", "JCXZ":
		ctx.encodeLoop(mnemonic, op1, line)

	case "PUSH", "POP":
		ctx.encodeStack(mnemonic, op1, line)

	case "MOVSB":
		ctx.emitByte(0xA4)
	case "MOVSW":
		ctx.emitByte(0xA5)
	case "CMPSB":
		ctx.emitByte(0xA6)
	case "CMPSW":
		ctx.emitByte(0xA7)
	case "STOSB":
		ctx.emitByte(0xAA)
	case "STOSW":
		ctx.emitByte(0xAB)
	case "LODSB":
		ctx.emitByte(0xAC)
	case "LODSW":
		ctx.emitByte(0xAD)
	case "SCASB":
		ctx.emitByte(0xAE)
	case "SCASW":
		ctx.emitByte(0xAF)

	case "CLD":
		ctx.emitByte(0xFC)
	case "STD":
		ctx.emitByte(0xFD)
	case "CLI":
		ctx.emitByte(0xFA)
	case "STI":
		ctx.emitByte(0xFB)
	case "CMC":
		ctx.emitByte(0xF5)
	case "CLC":
		ctx.emitByte(0xF8)
	case "STC":
		ctx.emitByte(0xF9)

	case "NOP":
		ctx.emitByte(0x90)
	case "CBW":
		ctx.emitByte(0x98)
	case "CWD":
		ctx.emitByte(0x99)
	case "LAHF":
		ctx.emitByte(0x9F)
	case "SAHF":
		ctx.emitByte(0x9E)
	case "PUSHF":
		ctx.emitByte(0x9C)
	case "POPF":
		ctx.emitByte(0x9D)
	case "XLAT", "XLATB":
		ctx.emitByte(0xD7)
	case "HLT":
		ctx.emitByte(0xF4)
	case "PUSHA":
		ctx.emitByte(0x60)
	case "POPA":
		ctx.emitByte(0x61)

	case "XCHG":
		ctx.encodeXCHG(op1, op2)

	default:
		if _, found := jccOpcodes[mnemonic]; found {
			ctx.encodeJcc(mnemonic, op1, line)
		}
	}
}

func (ctx *Context) encodeMOV(op1, op2 Operand, line int) {
	switch {
	case op1.Type == OPERAND_REGISTER && op2.Type == OPERAND_REGISTER:
		if op1.Size != op2.Size {
			ctx.logError(
				line, "Size mismatch between operands",
				fmt.Sprintf(
					"Op1 is %d-bit (%s), Op2 is %d-bit (%s). Both operands "+
						"must be the same width.",
					op1.Size, getRegName(op1.Reg, op1.Size),
					op2.Size, getRegName(op2.Reg, op2.Size),
				),
			)
			return
		}
		if op1.Size == 8 {
			ctx.emitByte(0x88)
		} else {
			ctx.emitByte(0x89)
		}
		ctx.emitByte(byte(0xC0 | op2.Reg<<3 | op1.Reg))

	case op1.Type == OPERAND_REGISTER && op2.Type == OPERAND_IMMEDIATE:
		if op1.Size == 8 {
			ctx.warnTruncation8(line, op2.Val)
			ctx.emitByte(byte(0xB0 + op1.Reg))
			ctx.emitByte(byte(op2.Val & 0xFF))
		} else {
			ctx.warnTruncation16(line, op2.Val)
			ctx.emitByte(byte(0xB8 + op1.Reg))
			ctx.emitWord(uint16(op2.Val & 0xFFFF))
		}

	case op1.Type == OPERAND_REGISTER && op2.Type == OPERAND_MEMORY:
		if op1.Size == 8 {
			ctx.emitByte(0x8A)
		} else {
			ctx.emitByte(0x8B)
		}
		ctx.emitModRM(op1.Reg, op2)

	case op1.Type == OPERAND_MEMORY && op2.Type == OPERAND_REGISTER:
		if op2.Size == 8 {
			ctx.emitByte(0x88)
		} else {
			ctx.emitByte(0x89)
		}
		ctx.emitModRM(op2.Reg, op1)

	case op1.Type == OPERAND_MEMORY && op2.Type == OPERAND_IMMEDIATE:
		opSize := op1.Size
		if !op1.HasExplicitSize {
			ctx.warnImplicitWord(line, "MOV")
		}
		if opSize == 8 {
			ctx.emitByte(0xC6)
		} else {
			ctx.emitByte(0xC7)
		}
		ctx.emitModRM(0, op1)
		if opSize == 8 {
			ctx.emitByte(byte(op2.Val & 0xFF))
		} else {
			ctx.emitWord(uint16(op2.Val & 0xFFFF))
		}

	case op1.Type == OPERAND_REGISTER && op2.Type == OPERAND_SEGREG:
		ctx.emitByte(0x8C)
		ctx.emitByte(byte(0xC0 | op2.Reg<<3 | op1.Reg))

	case op1.Type == OPERAND_SEGREG && op2.Type == OPERAND_REGISTER:
		ctx.emitByte(0x8E)
		ctx.emitByte(byte(0xC0 | op1.Reg<<3 | op2.Reg))
	}
}

// Opcode bases for the reg,reg direction (r/m <- reg); reg,mem uses base+2
var aluBase = map[string]byte{
	"ADD": 0x00, "OR": 0x08, "ADC": 0x10, "SBB": 0x18,
	"AND": 0x20, "SUB": 0x28, "XOR": 0x30, "CMP": 0x38,
}

// Group 80/81 opcode extensions
var aluExt = map[string]int{
	"ADD": 0, "OR": 1, "ADC": 2, "SBB": 3,
	"AND": 4, "SUB": 5, "XOR": 6, "CMP": 7,
}

func (ctx *Context) encodeALU(mnemonic string, op1, op2 Operand, line int) {
	isTest := mnemonic == "TEST"

	switch {
	case op1.Type == OPERAND_REGISTER && op2.Type == OPERAND_REGISTER:
		base := aluBase[mnemonic]
		if isTest {
			base = 0x84
		}
		if op1.Size == 16 {
			base++
		}
		ctx.emitByte(base)
		ctx.emitByte(byte(0xC0 | op2.Reg<<3 | op1.Reg))

	case op1.Type == OPERAND_REGISTER && op2.Type == OPERAND_IMMEDIATE:
		if isTest {
			// TEST r/m, imm: F6 /0 ib or F7 /0 iw
			if op1.Size == 8 {
				ctx.emitByte(0xF6)
				ctx.emitByte(byte(0xC0 | op1.Reg))
				ctx.emitByte(byte(op2.Val & 0xFF))
			} else {
				ctx.emitByte(0xF7)
				ctx.emitByte(byte(0xC0 | op1.Reg))
				ctx.emitWord(uint16(op2.Val & 0xFFFF))
			}
			return
		}
		ext := aluExt[mnemonic]
		if op1.Size == 8 {
			ctx.warnTruncation8(line, op2.Val)
			ctx.emitByte(0x80)
			ctx.emitByte(byte(0xC0 | ext<<3 | op1.Reg))
			ctx.emitByte(byte(op2.Val & 0xFF))
		} else {
			ctx.warnTruncation16(line, op2.Val)
			ctx.emitByte(0x81)
			ctx.emitByte(byte(0xC0 | ext<<3 | op1.Reg))
			ctx.emitWord(uint16(op2.Val & 0xFFFF))
		}

	case op1.Type == OPERAND_REGISTER && op2.Type == OPERAND_MEMORY:
		base := aluBase[mnemonic] + 2 // direction: reg <- r/m
		if isTest {
			base = 0x84 // TEST has no direction bit
		}
		if op1.Size == 16 {
			base++
		}
		ctx.emitByte(base)
		ctx.emitModRM(op1.Reg, op2)

	case op1.Type == OPERAND_MEMORY && op2.Type == OPERAND_REGISTER:
		base := aluBase[mnemonic]
		if isTest {
			base = 0x84
		}
		if op2.Size == 16 {
			base++
		}
		ctx.emitByte(base)
		ctx.emitModRM(op2.Reg, op1)

	case op1.Type == OPERAND_MEMORY && op2.Type == OPERAND_IMMEDIATE:
		opSize := op1.Size
		if opSize == 0 {
			opSize = 16
		}
		if !op1.HasExplicitSize {
			ctx.warnImplicitWord(line, mnemonic)
		}
		if isTest {
			if opSize == 8 {
				ctx.emitByte(0xF6)
			} else {
				ctx.emitByte(0xF7)
			}
			ctx.emitModRM(0, op1)
		} else {
			if opSize == 8 {
				ctx.emitByte(0x80)
			} else {
				ctx.emitByte(0x81)
			}
			ctx.emitModRM(aluExt[mnemonic], op1)
		}
		if opSize == 8 {
			ctx.emitByte(byte(op2.Val & 0xFF))
		} else {
			ctx.emitWord(uint16(op2.Val & 0xFFFF))
		}
	}
}

func (ctx *Context) encodeUnary(mnemonic string, op1 Operand) {
	ext := map[string]int{"INC": 0, "DEC": 1, "NOT": 2, "NEG": 3}[mnemonic]

	// INC/DEC r16 short forms
	if op1.Type == OPERAND_REGISTER && op1.Size == 16 &&
		(mnemonic == "INC" || mnemonic == "DEC") {
		if mnemonic == "INC" {
			ctx.emitByte(byte(0x40 + op1.Reg))
		} else {
			ctx.emitByte(byte(0x48 + op1.Reg))
		}
		return
	}

	if mnemonic == "INC" || mnemonic == "DEC" {
		if op1.Size == 8 {
			ctx.emitByte(0xFE)
		} else {
			ctx.emitByte(0xFF)
		}
	} else {
		if op1.Size == 8 {
			ctx.emitByte(0xF6)
		} else {
			ctx.emitByte(0xF7)
		}
	}

	if op1.Type == OPERAND_REGISTER {
		ctx.emitByte(byte(0xC0 | ext<<3 | op1.Reg))
	} else if op1.Type == OPERAND_MEMORY {
		ctx.emitModRM(ext, op1)
	}
}

func (ctx *Context) encodeShift(mnemonic string, op1, op2 Operand, line int) {
	if op1.Type != OPERAND_REGISTER && op1.Type != OPERAND_MEMORY {
		return
	}

	var ext int
	switch mnemonic {
	case "ROL":
		ext = 0
	case "ROR":
		ext = 1
	case "RCL":
		ext = 2
	case "RCR":
		ext = 3
	case "SHL", "SAL":
		ext = 4
	case "SHR":
		ext = 5
	case "SAR":
		ext = 7
	}

	isMem := op1.Type == OPERAND_MEMORY
	isCL := op2.Type == OPERAND_REGISTER && op2.Reg == 1 && op2.Size == 8

	if isMem && !op1.HasExplicitSize && !ctx.IsPass1 {
		ctx.logWarning(
			line, "No size prefix on memory shift/rotate, defaulting to WORD",
			"Add BYTE or WORD before the memory operand to be explicit. "+
				"Example: "+mnemonic+" BYTE [BX], 1 or "+mnemonic+
				" WORD [BX], 1",
		)
	}
	opSize := op1.Size
	if isMem && opSize == 0 {
		opSize = 16
	}

	emitTarget := func() {
		if isMem {
			ctx.emitModRM(ext, op1)
		} else {
			ctx.emitByte(byte(0xC0 | ext<<3 | op1.Reg))
		}
	}

	switch {
	case op2.Type == OPERAND_IMMEDIATE && op2.Val == 1:
		if opSize == 8 {
			ctx.emitByte(0xD0)
		} else {
			ctx.emitByte(0xD1)
		}
		emitTarget()

	case op2.Type == OPERAND_IMMEDIATE:
		// 0xC0/0xC1 are 80186+ encodings
		if !ctx.IsPass1 {
			targetName := "memory operand"
			if !isMem {
				targetName = getRegName(op1.Reg, op1.Size)
			}
			ctx.logWarning(
				line,
				mnemonic+" with immediate count >1 uses 80186+ encoding "+
					"(0xC0/0xC1)",
				fmt.Sprintf(
					"For strict 8086 compatibility, load the count into CL "+
						"first: MOV CL, %d / %s %s, CL. The immediate form "+
						"(%s dest, N where N>1) generates an 80186-only "+
						"opcode.",
					op2.Val, mnemonic, targetName, mnemonic,
				),
			)
		}
		if opSize == 8 {
			ctx.emitByte(0xC0)
		} else {
			ctx.emitByte(0xC1)
		}
		emitTarget()
		ctx.emitByte(byte(op2.Val & 0xFF))

	case isCL:
		if opSize == 8 {
			ctx.emitByte(0xD2)
		} else {
			ctx.emitByte(0xD3)
		}
		emitTarget()
	}
}

func (ctx *Context) encodeIN(op1, op2 Operand, line int) {
	if op1.Type != OPERAND_REGISTER || op1.Reg != 0 {
		ctx.logError(
			line, "IN dest must be AL/AX",
			"The destination of IN must be AL (byte) or AX (word). "+
				"Example: IN AL, 60h",
		)
		return
	}
	switch {
	case op2.Type == OPERAND_IMMEDIATE:
		if op1.Size == 8 {
			ctx.emitByte(0xE4)
		} else {
			ctx.emitByte(0xE5)
		}
		ctx.emitByte(byte(op2.Val & 0xFF))
	case op2.Type == OPERAND_REGISTER && op2.Reg == 2 && op2.Size == 16:
		if op1.Size == 8 {
			ctx.emitByte(0xEC)
		} else {
			ctx.emitByte(0xED)
		}
	default:
		ctx.logError(
			line, "Invalid IN operands",
			"IN requires: IN AL, imm8 | IN AX, imm8 | IN AL, DX | IN AX, DX",
		)
	}
}

func (ctx *Context) encodeOUT(op1, op2 Operand, line int) {
	if op2.Type != OPERAND_REGISTER || op2.Reg != 0 {
		ctx.logError(
			line, "OUT src must be AL/AX",
			"The source of OUT must be AL (byte) or AX (word). "+
				"Example: OUT 60h, AL",
		)
		return
	}
	switch {
	case op1.Type == OPERAND_IMMEDIATE:
		if op2.Size == 8 {
			ctx.emitByte(0xE6)
		} else {
			ctx.emitByte(0xE7)
		}
		ctx.emitByte(byte(op1.Val & 0xFF))
	case op1.Type == OPERAND_REGISTER && op1.Reg == 2 && op1.Size == 16:
		if op2.Size == 8 {
			ctx.emitByte(0xEE)
		} else {
			ctx.emitByte(0xEF)
		}
	default:
		ctx.logError(
			line, "Invalid OUT operands",
			"OUT requires: OUT imm8, AL | OUT imm8, AX | OUT DX, AL | "+
				"OUT DX, AX",
		)
	}
}

func (ctx *Context) encodeJcc(mnemonic string, op1 Operand, line int) {
	opcode := jccOpcodes[mnemonic]

	target := 0
	if op1.Type == OPERAND_IMMEDIATE {
		target = op1.Val
	}
	offset := target - (ctx.CurrentAddress + 2)

	if !ctx.IsPass1 && (offset < -128 || offset > 127) {
		hint := fmt.Sprintf(
			"Displacement is %d bytes (range: -128 to +127). ", offset,
		)
		if inv, found := jccInversions[mnemonic]; found {
			hint += "Restructure as: " + inv + " .skip / JMP target / .skip:"
		} else {
			hint += "Use an inverted condition with a near JMP to reach " +
				"far targets."
		}
		ctx.logError(
			line,
			fmt.Sprintf("Conditional jump out of range (%d)", offset),
			hint,
		)
	}

	ctx.emitByte(opcode)
	ctx.emitByte(byte(offset & 0xFF))
}

func (ctx *Context) encodeLoop(mnemonic string, op1 Operand, line int) {
	target := 0
	if op1.Type == OPERAND_IMMEDIATE {
		target = op1.Val
	}
	offset := target - (ctx.CurrentAddress + 2)

	if !ctx.IsPass1 && (offset < -128 || offset > 127) {
		ctx.logError(
			line,
			fmt.Sprintf("Loop jump out of range (%d)", offset),
			fmt.Sprintf(
				"Displacement is %d bytes (range: -128 to +127). Replace "+
					"LOOP with an explicit decrement and near jump: DEC CX "+
					"/ JNZ target. For LOOPE/LOOPNE, add the additional "+
					"flag check before the JNZ.",
				offset,
			),
		)
	}

	switch mnemonic {
	case "LOOP":
		ctx.emitByte(0xE2)
	case "LOOPE", "LOOPZ":
		ctx.emitByte(0xE1)
	case "LOOPNE", "LOOPNZ":
		ctx.emitByte(0xE0)
	case "JCXZ":
		ctx.emitByte(0xE3)
	}
	ctx.emitByte(byte(offset & 0xFF))
}

var pushSeg = [4]byte{0x06, 0x0E, 0x16, 0x1E}
var popSeg = [4]byte{0x07, 0x0F, 0x17, 0x1F}

func (ctx *Context) encodeStack(mnemonic string, op1 Operand, line int) {
	switch op1.Type {
	case OPERAND_REGISTER:
		if op1.Size != 16 {
			regName := getRegName(op1.Reg, op1.Size)
			var hint string
			if op1.Reg < 4 {
				hint = "'" + regName + "' is 8-bit. PUSH/POP require " +
					"16-bit registers. Use " + regNames16[op1.Reg] +
					" instead."
			} else {
				hint = "'" + regName + "' is 8-bit. PUSH/POP require " +
					"16-bit registers (AX, BX, CX, DX, SI, DI, BP, SP)."
			}
			ctx.logError(line, "Stack ops require 16-bit register", hint)
			return
		}
		if mnemonic == "PUSH" {
			ctx.emitByte(byte(0x50 + op1.Reg))
		} else {
			ctx.emitByte(byte(0x58 + op1.Reg))
		}

	case OPERAND_MEMORY:
		// PUSH r/m16: FF /6, POP r/m16: 8F /0
		if mnemonic == "PUSH" {
			ctx.emitByte(0xFF)
			ctx.emitModRM(6, op1)
		} else {
			ctx.emitByte(0x8F)
			ctx.emitModRM(0, op1)
		}

	case OPERAND_SEGREG:
		if op1.Reg < 0 || op1.Reg > 3 {
			return
		}
		if mnemonic == "PUSH" {
			ctx.emitByte(pushSeg[op1.Reg])
		} else {
			if op1.Reg == 1 {
				ctx.logError(
					line, "POP CS is not a valid instruction",
					"POP CS is architecturally invalid on 8086. To change "+
						"CS, use a far JMP or far CALL.",
				)
				return
			}
			ctx.emitByte(popSeg[op1.Reg])
		}

	default:
		ctx.logError(
			line, "Invalid stack operand",
			"PUSH/POP accept: 16-bit register (AX, BX, etc.), memory "+
				"(WORD [addr]), or segment register (DS, ES, SS). "+
				"Immediates and 8-bit registers are not valid.",
		)
	}
}

func (ctx *Context) encodeXCHG(op1, op2 Operand) {
	switch {
	case op1.Type == OPERAND_REGISTER && op2.Type == OPERAND_REGISTER &&
		op1.Size == op2.Size:
		// Short form when either side is AX
		if op1.Size == 16 && op1.Reg == 0 {
			ctx.emitByte(byte(0x90 + op2.Reg))
		} else if op1.Size == 16 && op2.Reg == 0 {
			ctx.emitByte(byte(0x90 + op1.Reg))
		} else {
			if op1.Size == 8 {
				ctx.emitByte(0x86)
			} else {
				ctx.emitByte(0x87)
			}
			ctx.emitByte(byte(0xC0 | op2.Reg<<3 | op1.Reg))
		}

	case op1.Type == OPERAND_REGISTER && op2.Type == OPERAND_MEMORY:
		if op1.Size == 8 {
			ctx.emitByte(0x86)
		} else {
			ctx.emitByte(0x87)
		}
		ctx.emitModRM(op1.Reg, op2)

	case op1.Type == OPERAND_MEMORY && op2.Type == OPERAND_REGISTER:
		if op2.Size == 8 {
			ctx.emitByte(0x86)
		} else {
			ctx.emitByte(0x87)
		}
		ctx.emitModRM(op2.Reg, op1)
	}
}
