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

package assembler_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/lassandro/agent86/pkg/assembler"
)

type testCase struct {
	Name    string
	Input   []string
	Output  []byte
	Symbols map[string]int
}

type failCase struct {
	Name    string
	Input   []string
	Level   string
	Message string // substring expected in some diagnostic
}

func testAssemblerSuccess(t *testing.T, test *testCase) {
	ctx := assembler.AssembleSource(test.Input)

	for _, d := range ctx.Diagnostics {
		if d.Level == "ERROR" {
			t.Fatalf("Unexpected error: %s (%s)", d.Message, d.Hint)
		}
	}

	if test.Output != nil && !bytes.Equal(ctx.MachineCode, test.Output) {
		t.Errorf(
			"Machine code mismatch\nwant:% X\nhave:% X",
			test.Output,
			ctx.MachineCode,
		)
	}

	for name, want := range test.Symbols {
		info, exists := ctx.SymbolTable[name]
		if !exists {
			t.Errorf("Missing symbol %q", name)
			continue
		}
		if info.Value != want {
			t.Errorf(
				"Symbol %q mismatch\nwant:%#04x\nhave:%#04x",
				name,
				want,
				info.Value,
			)
		}
	}
}

func testAssemblerFailure(t *testing.T, test *failCase) {
	ctx := assembler.AssembleSource(test.Input)

	for _, d := range ctx.Diagnostics {
		if d.Level == test.Level &&
			strings.Contains(string(d.Message), test.Message) {
			return
		}
	}

	t.Fatalf(
		"Expected %s containing %q, have diagnostics: %v",
		test.Level,
		test.Message,
		ctx.Diagnostics,
	)
}

func TestAssembler(t *testing.T) {
	tests := []testCase{
		{
			Name:   "MovRegImm16",
			Input:  []string{"MOV AX, 1234h"},
			Output: []byte{0xB8, 0x34, 0x12},
		},
		{
			Name:   "MovRegImm8",
			Input:  []string{"MOV AH, 02h"},
			Output: []byte{0xB4, 0x02},
		},
		{
			Name:   "MovMemImmByte",
			Input:  []string{"MOV BYTE [BX+SI+2], 5"},
			Output: []byte{0xC6, 0x40, 0x02, 0x05},
		},
		{
			Name:   "MovRegReg",
			Input:  []string{"MOV AX, BX"},
			Output: []byte{0x89, 0xD8},
		},
		{
			Name:   "MovSregReg",
			Input:  []string{"MOV DS, AX"},
			Output: []byte{0x8E, 0xD8},
		},
		{
			Name: "HelloProgram",
			Input: []string{
				"ORG 100h",
				"MOV AH, 02h",
				"MOV DL, 'A'",
				"INT 21h",
				"INT 20h",
			},
			Output: []byte{0xB4, 0x02, 0xB2, 0x41, 0xCD, 0x21, 0xCD, 0x20},
		},
		{
			Name:   "AddRegReg",
			Input:  []string{"ADD AL, BL"},
			Output: []byte{0x00, 0xD8},
		},
		{
			Name:   "AddRegImm",
			Input:  []string{"ADD CX, 10h"},
			Output: []byte{0x81, 0xC1, 0x10, 0x00},
		},
		{
			Name:   "XorRegReg16",
			Input:  []string{"XOR AX, AX"},
			Output: []byte{0x31, 0xC0},
		},
		{
			Name:   "CmpRegMem",
			Input:  []string{"CMP AX, [BX]"},
			Output: []byte{0x3B, 0x07},
		},
		{
			Name:   "IncDecShortForms",
			Input:  []string{"INC AX", "DEC DI", "INC BL"},
			Output: []byte{0x40, 0x4F, 0xFE, 0xC3},
		},
		{
			Name:   "MulDiv",
			Input:  []string{"MUL BL", "DIV CX"},
			Output: []byte{0xF6, 0xE3, 0xF7, 0xF1},
		},
		{
			Name:   "PushPop",
			Input:  []string{"PUSH AX", "POP BX", "PUSH DS", "POP ES"},
			Output: []byte{0x50, 0x5B, 0x1E, 0x07},
		},
		{
			Name:   "ShiftByOne",
			Input:  []string{"SHL AX, 1", "SHR BL, CL"},
			Output: []byte{0xD1, 0xE0, 0xD2, 0xEB},
		},
		{
			Name:   "LeaMem",
			Input:  []string{"LEA DI, [BX+SI+10h]"},
			Output: []byte{0x8D, 0x78, 0x10},
		},
		{
			Name:   "BpAloneUsesDisp8",
			Input:  []string{"MOV AX, [BP]"},
			Output: []byte{0x8B, 0x46, 0x00},
		},
		{
			Name:   "DirectMemory",
			Input:  []string{"MOV AX, [1234h]"},
			Output: []byte{0x8B, 0x06, 0x34, 0x12},
		},
		{
			Name:   "SegmentOverride",
			Input:  []string{"MOV AX, ES:[DI]"},
			Output: []byte{0x26, 0x8B, 0x05},
		},
		{
			Name:   "RepPrefix",
			Input:  []string{"REP MOVSB", "REPNE SCASB"},
			Output: []byte{0xF3, 0xA4, 0xF2, 0xAE},
		},
		{
			Name: "DataDirectives",
			Input: []string{
				"DB 'Hi', 0Dh",
				"DW 1234h",
				"DD 0FFFFh",
				"RESB 2",
			},
			Output: []byte{
				'H', 'i', 0x0D,
				0x34, 0x12,
				0xFF, 0xFF, 0x00, 0x00,
				0x00, 0x00,
			},
		},
		{
			Name: "EquAndExpr",
			Input: []string{
				"COUNT EQU 3",
				"MOV AX, COUNT * 2 + 1",
			},
			Output:  []byte{0xB8, 0x07, 0x00},
			Symbols: map[string]int{"COUNT": 3},
		},
		{
			Name: "ForwardReference",
			Input: []string{
				"ORG 100h",
				"JMP target",
				"NOP",
				"target: RET",
			},
			// JMP rel16 = target(0x104) - (0x100 + 3) = 1
			Output: []byte{0xE9, 0x01, 0x00, 0x90, 0xC3},
			Symbols: map[string]int{
				"TARGET": 0x104,
			},
		},
		{
			Name: "LocalLabelsInProc",
			Input: []string{
				"ORG 100h",
				"myproc: PROC",
				".loop:",
				"DEC CX",
				"JNZ .loop",
				"RET",
				"ENDP",
			},
			Output: []byte{0x49, 0x75, 0xFD, 0xC3},
			Symbols: map[string]int{
				"MYPROC.LOOP": 0x100,
			},
		},
		{
			Name: "ConditionalBackward",
			Input: []string{
				"ORG 100h",
				"start: INC AX",
				"JNZ start",
			},
			// rel8 = 0x100 - (0x101 + 2) = -3
			Output: []byte{0x40, 0x75, 0xFD},
		},
		{
			Name:   "StringOps",
			Input:  []string{"LODSB", "STOSW", "CMPSB"},
			Output: []byte{0xAC, 0xAB, 0xA6},
		},
		{
			Name:   "XchgShortForm",
			Input:  []string{"XCHG AX, BX", "XCHG BL, CL"},
			Output: []byte{0x93, 0x86, 0xCB},
		},
		{
			Name:   "InOut",
			Input:  []string{"IN AL, 60h", "OUT DX, AX"},
			Output: []byte{0xE4, 0x60, 0xEF},
		},
		{
			Name:   "FlagOps",
			Input:  []string{"CLC", "STI", "CLD", "CMC"},
			Output: []byte{0xF8, 0xFB, 0xFC, 0xF5},
		},
		{
			Name:   "LoopBackward",
			Input:  []string{"top: NOP", "LOOP top"},
			Output: []byte{0x90, 0xE2, 0xFD},
		},
		{
			Name: "CallRet",
			Input: []string{
				"ORG 100h",
				"CALL fn",
				"RET",
				"fn: RET",
			},
			// CALL rel16 = 0x104 - (0x100 + 3) = 1
			Output: []byte{0xE8, 0x01, 0x00, 0xC3, 0xC3},
		},
	}

	for i := range tests {
		test := &tests[i]
		t.Run(test.Name, func(t *testing.T) {
			testAssemblerSuccess(t, test)
		})
	}
}

func TestAssemblerFailure(t *testing.T) {
	tests := []failCase{
		{
			Name:    "UndefinedLabel",
			Input:   []string{"MOV AX, missing"},
			Level:   "ERROR",
			Message: "Undefined label MISSING",
		},
		{
			Name:    "PopCS",
			Input:   []string{"POP CS"},
			Level:   "ERROR",
			Message: "POP CS is not a valid instruction",
		},
		{
			Name:    "InvalidOperands",
			Input:   []string{"LEA AX, BX"},
			Level:   "ERROR",
			Message: "Invalid operands for LEA",
		},
		{
			Name:    "SizeMismatch",
			Input:   []string{"MOV AL, BX"},
			Level:   "ERROR",
			Message: "Size mismatch between operands",
		},
		{
			Name:    "StackOp8Bit",
			Input:   []string{"PUSH AL"},
			Level:   "ERROR",
			Message: "Invalid operands for PUSH",
		},
		{
			Name:    "TruncationWarning",
			Input:   []string{"MOV AL, 300"},
			Level:   "WARNING",
			Message: "truncated to 8-bit",
		},
		{
			Name:    "DuplicateLabel",
			Input:   []string{"here: NOP", "here: NOP"},
			Level:   "WARNING",
			Message: "redefined",
		},
		{
			Name:    "LocalOutsideProc",
			Input:   []string{".orphan: NOP"},
			Level:   "WARNING",
			Message: "outside procedure",
		},
		{
			Name:    "ShiftImm186",
			Input:   []string{"SHL AX, 4"},
			Level:   "WARNING",
			Message: "80186+ encoding",
		},
		{
			Name:    "MemImmNoSize",
			Input:   []string{"MOV [100h], 5"},
			Level:   "WARNING",
			Message: "defaulting to WORD",
		},
		{
			Name:    "InvalidAddressingCombo",
			Input:   []string{"MOV AX, [SI+DI]"},
			Level:   "ERROR",
			Message: "Invalid addressing mode combination",
		},
		{
			Name:    "BadRegisterInBrackets",
			Input:   []string{"MOV AX, [CX]"},
			Level:   "ERROR",
			Message: "Invalid register in memory operand",
		},
	}

	for i := range tests {
		test := &tests[i]
		t.Run(test.Name, func(t *testing.T) {
			testAssemblerFailure(t, test)
		})
	}
}

// An out-of-range conditional jump must error with an inversion hint
func TestConditionalJumpOutOfRange(t *testing.T) {
	input := []string{"ORG 100h", "JZ far_label"}
	for i := 0; i < 130; i++ {
		input = append(input, "NOP")
	}
	input = append(input, "far_label: RET")

	ctx := assembler.AssembleSource(input)

	found := false
	for _, d := range ctx.Diagnostics {
		if d.Level == "ERROR" &&
			strings.Contains(string(d.Message), "Conditional jump out of range") {
			found = true
			if !strings.Contains(string(d.Hint), "JNZ") {
				t.Errorf("Expected inversion hint naming JNZ, have: %s", d.Hint)
			}
		}
	}

	if !found {
		t.Fatal("Expected out-of-range error for JZ")
	}

	if !ctx.GlobalError {
		t.Error("GlobalError not set by pass-2 error")
	}
}

// Symbol-involving memory operands must reserve a 16-bit displacement in
// both passes so every label resolves to the same address (pass
// stability)
func TestSymbolDisplacementStability(t *testing.T) {
	ctx := assembler.AssembleSource([]string{
		"ORG 100h",
		"MOV AX, [BX+value]", // must be 4 bytes even though value fits 8-bit
		"after: RET",
		"value EQU 2",
	})

	for _, d := range ctx.Diagnostics {
		if d.Level == "ERROR" {
			t.Fatalf("Unexpected error: %s", d.Message)
		}
	}

	want := []byte{0x8B, 0x87, 0x02, 0x00, 0xC3}
	if !bytes.Equal(ctx.MachineCode, want) {
		t.Fatalf(
			"Machine code mismatch\nwant:% X\nhave:% X",
			want,
			ctx.MachineCode,
		)
	}

	if info := ctx.SymbolTable["AFTER"]; info.Value != 0x104 {
		t.Errorf(
			"Label address mismatch\nwant:%#04x\nhave:%#04x",
			0x104,
			info.Value,
		)
	}
}

// Undefined-symbol diagnostics carry actionable hints
func TestDiagnosticHints(t *testing.T) {
	tests := []struct {
		Name  string
		Input []string
		Hint  string
	}{
		{
			"HexMissingZero",
			[]string{"MOV AX, FFh"},
			"Did you mean 0FFH?",
		},
		{
			"FuzzySymbolMatch",
			[]string{"counter EQU 1", "MOV AX, countr"},
			"Did you mean 'COUNTER'?",
		},
	}

	for _, test := range tests {
		t.Run(test.Name, func(t *testing.T) {
			ctx := assembler.AssembleSource(test.Input)

			for _, d := range ctx.Diagnostics {
				if strings.Contains(string(d.Hint), test.Hint) {
					return
				}
			}
			t.Fatalf(
				"Expected hint containing %q, have: %v",
				test.Hint,
				ctx.Diagnostics,
			)
		})
	}
}

// The listing records each instruction's address, size, and decoded text
func TestListing(t *testing.T) {
	ctx := assembler.AssembleSource([]string{
		"ORG 100h",
		"MOV AX, 5",
	})

	if len(ctx.Listing) != 1 {
		t.Fatalf("Listing length\nwant:%d\nhave:%d", 1, len(ctx.Listing))
	}

	entry := ctx.Listing[0]
	if entry.Address != 0x100 {
		t.Errorf("Listing address\nwant:%#04x\nhave:%#04x", 0x100, entry.Address)
	}
	if entry.Size != 3 {
		t.Errorf("Listing size\nwant:%d\nhave:%d", 3, entry.Size)
	}
	if string(entry.Decoded) != "MOV REG(AX), IMM(5)" {
		t.Errorf(
			"Listing decode\nwant:%q\nhave:%q",
			"MOV REG(AX), IMM(5)",
			entry.Decoded,
		)
	}
}
