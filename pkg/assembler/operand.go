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
	"strings"
)

// parseOperand consumes one operand from the token stream: an optional
// segment override (written "ES:", so lexed as a LabelDef), an optional
// BYTE/WORD size prefix, then a register, a segment register, a bracketed
// memory expression, or an immediate expression.
func (ctx *Context) parseOperand(tokens []Token, idx *int) Operand {
	op := Operand{
		Type:          OPERAND_IMMEDIATE,
		MemReg:        -1,
		SegmentPrefix: -1,
	}

	startIdx := *idx

	if *idx >= len(tokens) {
		return op
	}

	if tokens[*idx].Type == TOKEN_LABELDEF {
		if prefix, found := segPrefixes[toUpper(tokens[*idx].Value)]; found {
			op.SegmentPrefix = prefix
			*idx++
		}
	}

	if *idx >= len(tokens) {
		op.Present = *idx > startIdx
		return op
	}

	sizeOverride := 0
	if tokens[*idx].Type == TOKEN_IDENT {
		switch toUpper(tokens[*idx].Value) {
		case "BYTE":
			sizeOverride = 8
			*idx++
		case "WORD":
			sizeOverride = 16
			*idx++
		}
	}

	if *idx >= len(tokens) {
		op.Present = sizeOverride != 0 || *idx > startIdx
		return op
	}

	t := tokens[*idx]

	switch {
	case t.Type == TOKEN_LBRACKET:
		ctx.parseMemoryOperand(tokens, idx, &op, sizeOverride)

	default:
		if code, size, ok := isRegister(t.Value); ok {
			op.Type = OPERAND_REGISTER
			op.Reg = code
			op.Size = size
			*idx++
			break
		}

		// Segment register as a plain operand; with a trailing ':' it would
		// have been consumed above as a prefix
		if code, found := segCodes[toUpper(t.Value)]; found && t.Type == TOKEN_IDENT {
			op.Type = OPERAND_SEGREG
			op.Reg = code
			op.Size = 16
			*idx++
			break
		}

		op.Type = OPERAND_IMMEDIATE
		op.Val = ctx.parseExpression(tokens, idx, 0)
	}

	op.Present = *idx > startIdx
	return op
}

// Bracketed memory expression: optional base (BX or BP), optional index
// (SI or DI), and a displacement expression. The register combination maps
// to the eight 8086 R/M codes; a pure displacement is direct (-1).
func (ctx *Context) parseMemoryOperand(
	tokens []Token, idx *int, op *Operand, sizeOverride int,
) {
	op.Type = OPERAND_MEMORY
	op.HasExplicitSize = sizeOverride != 0
	if sizeOverride != 0 {
		op.Size = sizeOverride
	} else {
		op.Size = 16
	}
	*idx++ // consume '['

	var hasBX, hasBP, hasSI, hasDI bool
	displacement := 0

	for *idx < len(tokens) && tokens[*idx].Type != TOKEN_RBRACKET {
		t := tokens[*idx]

		if t.Type == TOKEN_PLUS {
			*idx++
			continue
		}

		// Segment override written inside the brackets, e.g. [ES:DI]
		if t.Type == TOKEN_LABELDEF {
			if prefix, found := segPrefixes[toUpper(t.Value)]; found {
				op.SegmentPrefix = prefix
				*idx++
				continue
			}
		}

		if _, _, ok := isRegister(t.Value); ok {
			switch toUpper(t.Value) {
			case "BX":
				hasBX = true
			case "BP":
				hasBP = true
			case "SI":
				hasSI = true
			case "DI":
				hasDI = true
			default:
				ctx.logError(
					t.Line, "Invalid register in memory operand: "+t.Value,
					"Only BX, BP, SI, and DI can be used inside []. "+
						"AX, CX, DX, SP are not valid base/index registers "+
						"on 8086.",
				)
			}
			*idx++
			continue
		}

		ctx.encounteredSymbol = false
		displacement += ctx.parseExpression(tokens, idx, 0)
		if ctx.encounteredSymbol {
			op.InvolvesSymbol = true
		}
	}

	if *idx < len(tokens) && tokens[*idx].Type == TOKEN_RBRACKET {
		*idx++
	}

	op.Val = displacement
	op.MemReg = -1

	switch {
	case hasBX && hasSI && !hasBP && !hasDI:
		op.MemReg = 0
	case hasBX && hasDI && !hasBP && !hasSI:
		op.MemReg = 1
	case hasBP && hasSI && !hasBX && !hasDI:
		op.MemReg = 2
	case hasBP && hasDI && !hasBX && !hasSI:
		op.MemReg = 3
	case hasSI && !hasBX && !hasBP && !hasDI:
		op.MemReg = 4
	case hasDI && !hasBX && !hasBP && !hasSI:
		op.MemReg = 5
	case hasBP && !hasSI && !hasDI && !hasBX:
		op.MemReg = 6
	case hasBX && !hasSI && !hasDI && !hasBP:
		op.MemReg = 7
	case !hasBX && !hasBP && !hasSI && !hasDI:
		op.MemReg = -1
	default:
		ctx.logError(
			tokens[*idx-1].Line, "Invalid addressing mode combination",
			"Valid 8086 addressing modes: [BX+SI], [BX+DI], [BP+SI], "+
				"[BP+DI], [SI], [DI], [BP], [BX], or [direct_address]. "+
				"You cannot combine SI+DI, BX+BP, or use AX/CX/DX/SP "+
				"inside brackets.",
		)
	}
}

// Operand text for listing records, e.g. "REG(AX)", "IMM(5)",
// "MEM(WORD [BX+SI+4])"
func formatOperand(op Operand) string {
	switch op.Type {
	case OPERAND_REGISTER:
		return "REG(" + getRegName(op.Reg, op.Size) + ")"
	case OPERAND_SEGREG:
		if op.Reg >= 0 && op.Reg < 4 {
			return "SREG(" + sregNames[op.Reg] + ")"
		}
		return "SREG(?)"
	case OPERAND_IMMEDIATE:
		return fmt.Sprintf("IMM(%d)", op.Val)
	case OPERAND_MEMORY:
		var sb strings.Builder
		sb.WriteString("MEM(")
		if op.Size == 8 {
			sb.WriteString("BYTE ")
		} else {
			sb.WriteString("WORD ")
		}
		if op.SegmentPrefix != -1 {
			sb.WriteString("SEG:")
		}
		if op.MemReg == -1 {
			fmt.Fprintf(&sb, "[%d]", op.Val)
		} else {
			sb.WriteByte('[')
			sb.WriteString(memRegText(op.MemReg))
			if op.Val != 0 {
				if op.Val > 0 {
					sb.WriteByte('+')
				}
				fmt.Fprintf(&sb, "%d", op.Val)
			}
			sb.WriteByte(']')
		}
		sb.WriteByte(')')
		return sb.String()
	}
	return "UNKNOWN"
}

func memRegText(rm int) string {
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

// Operand shape for ISA mismatch hints, e.g. "REG16(AX)", "IMM(5)", "MEM8"
func describeOperandType(op Operand) string {
	if !op.Present {
		return "NONE"
	}
	switch op.Type {
	case OPERAND_REGISTER:
		return fmt.Sprintf(
			"REG%d(%s)", op.Size, getRegName(op.Reg, op.Size),
		)
	case OPERAND_MEMORY:
		return fmt.Sprintf("MEM%d", op.Size)
	case OPERAND_IMMEDIATE:
		return fmt.Sprintf("IMM(%d)", op.Val)
	case OPERAND_SEGREG:
		if op.Reg >= 0 && op.Reg < 4 {
			return "SREG(" + sregNames[op.Reg] + ")"
		}
		return "SREG(?)"
	}
	return "UNKNOWN"
}
