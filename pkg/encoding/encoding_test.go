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

package encoding_test

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/lassandro/agent86/pkg/encoding"
)

type numberCase struct {
	Name   string
	Input  string
	Output int
}

type numberFailCase struct {
	Name    string
	Input   string
	Message string // substring expected in the error
}

func TestParseNumber(t *testing.T) {
	tests := []numberCase{
		{"Decimal", "255", 255},
		{"DecimalSuffix", "255d", 255},
		{"HexSuffix", "0FFh", 255},
		{"HexSuffixUpper", "1234H", 0x1234},
		{"HexPrefix", "0x1F", 31},
		{"BinarySuffix", "1010b", 10},
		{"BinaryPrefix", "0b1010", 10},
		{"OctalSuffixO", "17o", 15},
		{"OctalSuffixQ", "17q", 15},
		{"Zero", "0", 0},
		{"Max16", "65535", 65535},
		{"HexMax", "0FFFFh", 65535},
	}

	for _, test := range tests {
		t.Run(test.Name, func(t *testing.T) {
			have, err := encoding.ParseNumber(test.Input)

			if err != nil {
				t.Fatal(err)
			}

			if have != test.Output {
				t.Errorf(
					"Parse mismatch\nwant:%d\nhave:%d",
					test.Output,
					have,
				)
			}
		})
	}
}

func TestParseNumberFailure(t *testing.T) {
	tests := []numberFailCase{
		{"Empty", "", "empty numeric literal"},
		{"BadBinaryDigit", "102b", "non-binary digit '2'"},
		{"BadOctalDigit", "18o", "non-octal digit '8'"},
		{"BadDecimalDigit", "12G", "non-digit character 'G'"},
		{"BadHexDigit", "1G2h", "non-hex character 'G'"},
		{"Overflow", "65536", "overflows"},
		{"MinusSignRejected", "-32769", "non-digit character '-'"},
		{"SuffixBeatsPrefix", "0x1h", "non-hex character 'X'"},
	}

	for _, test := range tests {
		t.Run(test.Name, func(t *testing.T) {
			_, err := encoding.ParseNumber(test.Input)

			if err == nil {
				t.Fatalf("Expected error for input %q", test.Input)
			}

			if !strings.Contains(err.Error(), test.Message) {
				t.Errorf(
					"Error message mismatch\nwant substring:%q\nhave:%q",
					test.Message,
					err.Error(),
				)
			}
		})
	}
}

func TestParity8(t *testing.T) {
	tests := []struct {
		Input  uint8
		Output bool
	}{
		{0x00, true},
		{0x01, false},
		{0x03, true},
		{0x07, false},
		{0xFF, true},
		{0xFE, false},
	}

	for _, test := range tests {
		if have := encoding.Parity8(test.Input); have != test.Output {
			t.Errorf(
				"Parity mismatch for %#02x\nwant:%v\nhave:%v",
				test.Input,
				test.Output,
				have,
			)
		}
	}
}

func TestHexFormatting(t *testing.T) {
	if have := encoding.HexByte(0x0F); have != "0F" {
		t.Errorf("HexByte mismatch\nwant:%q\nhave:%q", "0F", have)
	}

	if have := encoding.HexBytes([]byte{0xB8, 0x34, 0x12}); have != "B8 34 12" {
		t.Errorf("HexBytes mismatch\nwant:%q\nhave:%q", "B8 34 12", have)
	}

	if have := encoding.HexImm8(0x05); have != "0x05" {
		t.Errorf("HexImm8 mismatch\nwant:%q\nhave:%q", "0x05", have)
	}

	if have := encoding.HexImm16(0x1234); have != "0x1234" {
		t.Errorf("HexImm16 mismatch\nwant:%q\nhave:%q", "0x1234", have)
	}

	if have := encoding.DispStr8(-2); have != "-0x02" {
		t.Errorf("DispStr8 mismatch\nwant:%q\nhave:%q", "-0x02", have)
	}

	if have := encoding.DispStr16(0); have != "" {
		t.Errorf("DispStr16 mismatch\nwant:%q\nhave:%q", "", have)
	}
}

func TestTextMarshal(t *testing.T) {
	tests := []struct {
		Name   string
		Input  encoding.Text
		Output string
	}{
		{"Plain", "hello", `"hello"`},
		{"Quote", `say "hi"`, `"say \"hi\""`},
		{"Backslash", `a\b`, `"a\\b"`},
		{"Newline", "a\nb", `"a\nb"`},
		{"Control", "\x01", `"\u0001"`},
		{"HighByte", "\xFE", `"\u00FE"`},
		{"Delete", "\x7F", `"\u007F"`},
	}

	for _, test := range tests {
		t.Run(test.Name, func(t *testing.T) {
			have, err := json.Marshal(test.Input)

			if err != nil {
				t.Fatal(err)
			}

			if string(have) != test.Output {
				t.Errorf(
					"Marshal mismatch\nwant:%s\nhave:%s",
					test.Output,
					have,
				)
			}
		})
	}
}
