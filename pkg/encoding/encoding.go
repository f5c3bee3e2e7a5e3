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

package encoding

import (
	"fmt"
	"strconv"
	"strings"
)

// Decodes an assembler numeric literal in the formats: 255, 0FFh, 0xFF,
// 1010b, 0b1010, 777o, 777q, 255d. Suffixes take priority over prefixes.
// Results must fit the union of the signed and unsigned 16-bit ranges;
// anything wider is an error here, never a silent wraparound.
func ParseNumber(s string) (int, error) {
	if s == "" {
		return 0, fmt.Errorf("empty numeric literal")
	}

	original := s
	u := strings.ToUpper(s)
	base := 10
	baseLabel := "decimal"

	switch u[len(u)-1] {
	case 'H':
		base = 16
		baseLabel = "hex"
		u = u[:len(u)-1]
	case 'B':
		base = 2
		baseLabel = "binary"
		u = u[:len(u)-1]
	case 'O', 'Q':
		base = 8
		baseLabel = "octal"
		u = u[:len(u)-1]
	case 'D':
		u = u[:len(u)-1]
	default:
		if len(u) > 2 && u[:2] == "0X" {
			base = 16
			baseLabel = "hex"
			u = u[2:]
		} else if len(u) > 2 && u[:2] == "0B" {
			base = 2
			baseLabel = "binary"
			u = u[2:]
		}
	}

	if u == "" {
		return 0, fmt.Errorf(
			"numeric prefix with no digits following in '%s'", original,
		)
	}

	// Validate digits before conversion so the message can name the
	// offending character
	for _, c := range u {
		switch base {
		case 2:
			if c != '0' && c != '1' {
				return 0, fmt.Errorf(
					"binary literal '%s' contains non-binary digit '%c'. "+
						"Valid binary digits: 0, 1",
					original, c,
				)
			}
		case 8:
			if c < '0' || c > '7' {
				return 0, fmt.Errorf(
					"octal literal '%s' contains non-octal digit '%c'. "+
						"Valid octal digits: 0-7",
					original, c,
				)
			}
		case 10:
			if c < '0' || c > '9' {
				return 0, fmt.Errorf(
					"decimal literal '%s' contains non-digit character '%c'",
					original, c,
				)
			}
		case 16:
			if !isHexDigit(byte(c)) {
				return 0, fmt.Errorf(
					"hex literal '%s' contains non-hex character '%c'. "+
						"Valid hex digits: 0-9, A-F",
					original, c,
				)
			}
		}
	}

	result, err := strconv.ParseInt(u, base, 64)

	if err != nil {
		return 0, fmt.Errorf("invalid %s literal '%s'", baseLabel, original)
	}

	if result > 65535 || result < -32768 {
		return 0, fmt.Errorf(
			"numeric literal '%s' overflows. "+
				"Maximum value is 65535 (FFFFh) for 16-bit",
			original,
		)
	}

	return int(result), nil
}

func isHexDigit(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'A' && c <= 'F') ||
		(c >= 'a' && c <= 'f')
}

// Even parity of the low eight bits, as the 8086 defines PF
func Parity8(val uint8) bool {
	bits := 0
	for i := 0; i < 8; i++ {
		bits += int(val>>i) & 1
	}
	return bits%2 == 0
}

func HexByte(b uint8) string {
	return fmt.Sprintf("%02X", b)
}

func HexBytes(bytes []byte) string {
	var sb strings.Builder
	for i, b := range bytes {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(HexByte(b))
	}
	return sb.String()
}

func HexImm8(val uint8) string {
	return fmt.Sprintf("0x%02X", val)
}

func HexImm16(val uint16) string {
	return fmt.Sprintf("0x%04X", val)
}

// Formats a signed displacement for memory operand text: "+0x04", "-0x02",
// or "" when zero
func DispStr8(val int) string {
	if val == 0 {
		return ""
	}
	if val < 0 {
		return fmt.Sprintf("-0x%02X", -val)
	}
	return fmt.Sprintf("+0x%02X", val)
}

func DispStr16(val int) string {
	if val == 0 {
		return ""
	}
	if val < 0 {
		return fmt.Sprintf("-0x%04X", -val)
	}
	return fmt.Sprintf("+0x%04X", val)
}
