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

package macro

import (
	"strings"

	"github.com/lassandro/agent86/pkg/encoding"
)

// First two whitespace-delimited tokens of a line plus the remaining text,
// with ';' comments stripped and '...' strings kept intact
type lineParts struct {
	tok1, tok2, rest string
}

func splitLine(line string) lineParts {
	var lp lineParts
	i := 0
	n := len(line)

	skipSpace := func() {
		for i < n && (line[i] == ' ' || line[i] == '\t') {
			i++
		}
	}
	scanToken := func() string {
		start := i
		for i < n && line[i] != ' ' && line[i] != '\t' && line[i] != ';' {
			if line[i] == '\'' {
				i++
				for i < n && line[i] != '\'' {
					i++
				}
				if i < n {
					i++
				}
			} else {
				i++
			}
		}
		return line[start:i]
	}

	skipSpace()
	if i >= n || line[i] == ';' {
		return lp
	}
	lp.tok1 = scanToken()

	skipSpace()
	if i >= n || line[i] == ';' {
		return lp
	}
	lp.tok2 = scanToken()

	skipSpace()
	if i < n && line[i] != ';' {
		rest := line[i:]
		var cleaned strings.Builder
		inStr := false
		for j := 0; j < len(rest); j++ {
			c := rest[j]
			if c == '\'' {
				inStr = !inStr
				cleaned.WriteByte(c)
			} else if c == ';' && !inStr {
				break
			} else {
				cleaned.WriteByte(c)
			}
		}
		lp.rest = strings.TrimRight(cleaned.String(), " \t\r\n")
	}

	return lp
}

// Comma-separated identifiers; ';' ends the list
func splitIdentList(s string) []string {
	var result []string
	var current strings.Builder

	flush := func() {
		t := strings.TrimSpace(current.String())
		if t != "" {
			result = append(result, t)
		}
		current.Reset()
	}

	for i := 0; i < len(s); i++ {
		switch s[i] {
		case ';':
			flush()
			return result
		case ',':
			flush()
		default:
			current.WriteByte(s[i])
		}
	}
	flush()
	return result
}

// Invocation arguments are comma-separated, but commas inside <...> or
// '...' do not split; a top-level ';' ends the list
func parseArguments(argStr string) []string {
	if strings.TrimSpace(argStr) == "" {
		return nil
	}

	var args []string
	var current strings.Builder
	angleDepth := 0
	inString := false

	for i := 0; i < len(argStr); i++ {
		c := argStr[i]

		if c == ';' && !inString && angleDepth == 0 {
			break
		}

		switch {
		case c == '\'' && angleDepth == 0:
			inString = !inString
			current.WriteByte(c)
		case c == '<' && !inString:
			angleDepth++
			current.WriteByte(c)
		case c == '>' && !inString && angleDepth > 0:
			angleDepth--
			current.WriteByte(c)
		case c == ',' && !inString && angleDepth == 0:
			args = append(args, strings.TrimSpace(current.String()))
			current.Reset()
		default:
			current.WriteByte(c)
		}
	}

	if t := strings.TrimSpace(current.String()); t != "" {
		args = append(args, t)
	}

	return args
}

func isIdentChar(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') ||
		(c >= '0' && c <= '9') || c == '_' || c == '?' || c == '.'
}

// substituteParams rewrites one body line for an invocation: parameter
// names become argument text, LOCAL names become their fresh replacements,
// '&' disappears (concatenation), and strings/comments pass through
// untouched.
func substituteParams(
	line string, paramNames, argValues, localNames, localRepls []string,
) string {
	var result strings.Builder
	i := 0
	n := len(line)
	inString := false
	inComment := false

	for i < n {
		c := line[i]

		if inComment {
			result.WriteByte(c)
			i++
			continue
		}

		if c == ';' && !inString {
			inComment = true
			result.WriteByte(c)
			i++
			continue
		}

		if c == '\'' {
			inString = !inString
			result.WriteByte(c)
			i++
			continue
		}

		if inString {
			result.WriteByte(c)
			i++
			continue
		}

		if c == '&' {
			i++
			continue
		}

		if isIdentChar(c) {
			start := i
			for i < n && isIdentChar(line[i]) {
				i++
			}
			word := line[start:i]
			upper := strings.ToUpper(word)

			replaced := false
			for p, name := range paramNames {
				if upper == name {
					if p < len(argValues) {
						result.WriteString(argValues[p])
					}
					replaced = true
					break
				}
			}
			if !replaced {
				for l, name := range localNames {
					if upper == name {
						result.WriteString(localRepls[l])
						replaced = true
						break
					}
				}
			}
			if !replaced {
				result.WriteString(word)
			}
		} else {
			result.WriteByte(c)
			i++
		}
	}

	return result.String()
}

// findMatchingEndm returns the line index of the ENDM closing the block
// that began just before startAfter, tracking nested MACRO/REPT/IRP
// blocks, or -1 when unterminated.
func findMatchingEndm(lines []string, startAfter int) int {
	depth := 1
	for i := startAfter; i < len(lines); i++ {
		lp := splitLine(lines[i])
		u1 := strings.ToUpper(lp.tok1)
		u2 := strings.ToUpper(lp.tok2)

		if u2 == "MACRO" || u1 == "REPT" || u1 == "IRP" {
			depth++
		} else if u1 == "ENDM" {
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// REPT counts accept the assembler's literal syntax but not expressions
// or symbols
func parseCount(s string) (int, bool) {
	val, err := encoding.ParseNumber(s)
	if err != nil || val < 0 {
		return 0, false
	}
	return val, true
}

// Reserved mnemonic, register, and directive names may not name a macro
var reservedWords = map[string]bool{}

func init() {
	names := []string{
		"AX", "BX", "CX", "DX", "SP", "BP", "SI", "DI",
		"AL", "AH", "BL", "BH", "CL", "CH", "DL", "DH",
		"CS", "DS", "ES", "SS", "IP",
		"MOV", "ADD", "ADC", "SUB", "SBB", "MUL", "DIV", "IMUL", "IDIV",
		"INC", "DEC", "NEG", "NOT",
		"AND", "OR", "XOR", "TEST", "CMP",
		"PUSH", "POP", "PUSHF", "POPF", "PUSHA", "POPA",
		"JMP", "JE", "JNE", "JZ", "JNZ", "JG", "JGE", "JL", "JLE",
		"JA", "JAE", "JB", "JBE", "JC", "JNC", "JO", "JNO", "JS", "JNS",
		"JNA", "JNAE", "JNB", "JNBE", "JNG", "JNGE", "JNL", "JNLE",
		"JP", "JNP", "JPE", "JPO",
		"JCXZ", "LOOP", "LOOPE", "LOOPNE", "LOOPZ", "LOOPNZ",
		"CALL", "RET", "RETF", "INT", "IRET", "INTO",
		"NOP", "HLT", "CLC", "STC", "CMC", "CLD", "STD", "CLI", "STI",
		"SHL", "SHR", "SAL", "SAR", "ROL", "ROR", "RCL", "RCR",
		"LEA", "LDS", "LES", "XCHG", "XLAT", "XLATB",
		"CBW", "CWD", "AAA", "AAD", "AAM", "AAS", "DAA", "DAS",
		"IN", "OUT", "INS", "OUTS", "INSB", "INSW", "OUTSB", "OUTSW",
		"MOVSB", "MOVSW", "CMPSB", "CMPSW", "SCASB", "SCASW",
		"LODSB", "LODSW", "STOSB", "STOSW",
		"REP", "REPE", "REPNE", "REPZ", "REPNZ",
		"LOCK", "WAIT", "ESC",
		"LAHF", "SAHF",
		"ORG", "DB", "DW", "DD", "EQU", "PROC", "ENDP", "SEGMENT", "ENDS",
		"RESB", "RESW",
		"ASSUME", "END", "INCLUDE",
		"MACRO", "ENDM", "LOCAL", "REPT", "IRP",
		"BYTE", "WORD", "PTR", "OFFSET", "SHORT", "NEAR", "FAR",
		"DUP",
	}
	for _, n := range names {
		reservedWords[n] = true
	}
}

func isReservedWord(upper string) bool {
	return reservedWords[upper]
}
