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

package machine_test

import (
	"reflect"
	"strings"
	"testing"

	"github.com/lassandro/agent86/pkg/assembler"
	"github.com/lassandro/agent86/pkg/machine"
	"github.com/lassandro/agent86/pkg/macro"
)

type runCase struct {
	Name       string
	Binary     []byte
	Config     machine.Config
	Output     string
	HaltReason string // substring
	ExitCode   int
	Registers  map[int]uint16
}

func testRunSuccess(t *testing.T, test *runCase) {
	result, m := machine.Run(test.Binary, test.Config, nil)

	if !result.Success {
		t.Fatal("Run did not succeed")
	}

	if !result.Halted {
		t.Fatal("Run did not halt")
	}

	if test.HaltReason != "" &&
		!strings.Contains(string(result.HaltReason), test.HaltReason) {
		t.Errorf(
			"Halt reason mismatch\nwant substring:%q\nhave:%q",
			test.HaltReason,
			result.HaltReason,
		)
	}

	if string(result.Output) != test.Output {
		t.Errorf(
			"Output mismatch\nwant:%q\nhave:%q",
			test.Output,
			result.Output,
		)
	}

	if result.ExitCode != test.ExitCode {
		t.Errorf(
			"Exit code mismatch\nwant:%d\nhave:%d",
			test.ExitCode,
			result.ExitCode,
		)
	}

	for reg, want := range test.Registers {
		if have := m.CPU.Regs[reg]; have != want {
			t.Errorf(
				"Register %s mismatch\nwant:%#04x\nhave:%#04x",
				machine.RegName(reg),
				want,
				have,
			)
		}
	}
}

func TestRun(t *testing.T) {
	tests := []runCase{
		{
			Name: "PrintCharAndTerminate",
			// MOV AH,02h / MOV DL,'A' / INT 21h / INT 20h
			Binary:     []byte{0xB4, 0x02, 0xB2, 0x41, 0xCD, 0x21, 0xCD, 0x20},
			Output:     "A",
			HaltReason: "INT 20h",
		},
		{
			Name: "ExitWithCode",
			// MOV AX,4C07h / INT 21h
			Binary:     []byte{0xB8, 0x07, 0x4C, 0xCD, 0x21},
			HaltReason: "INT 21h/4Ch",
			ExitCode:   7,
		},
		{
			Name: "RetFromEntryTerminates",
			// Bare RET pops 0x0000, landing on the PSP INT 20h stub
			Binary:     []byte{0xC3},
			HaltReason: "INT 20h",
		},
		{
			Name: "HltStops",
			// MOV AX,1 / HLT
			Binary:     []byte{0xB8, 0x01, 0x00, 0xF4},
			HaltReason: "HLT instruction",
			Registers:  map[int]uint16{machine.REG_AX: 1},
		},
		{
			Name: "DivisionByZero",
			// MOV AX,1234h / MOV BL,0 / DIV BL
			Binary:     []byte{0xB8, 0x34, 0x12, 0xB3, 0x00, 0xF6, 0xF3},
			HaltReason: "Division by zero",
		},
		{
			Name: "DivisionOverflow",
			// MOV AX,0200h / MOV BL,1 / DIV BL (quotient 0x200 > 0xFF)
			Binary:     []byte{0xB8, 0x00, 0x02, 0xB3, 0x01, 0xF6, 0xF3},
			HaltReason: "Division overflow",
		},
		{
			Name:       "InvalidOpcodeHalts",
			Binary:     []byte{0x0F},
			HaltReason: "Invalid opcode",
		},
		{
			Name:       "CycleLimit",
			Binary:     []byte{0xEB, 0xFE}, // JMP $
			Config:     machine.Config{MaxCycles: 10},
			HaltReason: "Cycle limit reached (10)",
		},
		{
			Name: "ArithmeticLoop",
			// XOR AX,AX / MOV CX,5 / top: INC AX / LOOP top / INT 20h
			Binary: []byte{
				0x31, 0xC0, 0xB9, 0x05, 0x00, 0x40, 0xE2, 0xFD, 0xCD, 0x20,
			},
			HaltReason: "INT 20h",
			Registers: map[int]uint16{
				machine.REG_AX: 5,
				machine.REG_CX: 0,
			},
		},
		{
			Name: "ReadCharEcho",
			// MOV AH,01h / INT 21h / INT 20h
			Binary:     []byte{0xB4, 0x01, 0xCD, 0x21, 0xCD, 0x20},
			Config:     machine.Config{StdinInput: "x"},
			Output:     "x",
			HaltReason: "INT 20h",
		},
		{
			Name: "ReadCharEOFReturnsCR",
			Binary:     []byte{0xB4, 0x01, 0xCD, 0x21, 0xCD, 0x20},
			Output:     "\r",
			HaltReason: "INT 20h",
		},
		{
			Name: "WriteDollarString",
			// MOV AH,09h / MOV DX,0109h / INT 21h / INT 20h / DB 'Hi$'
			Binary: []byte{
				0xB4, 0x09, 0xBA, 0x09, 0x01, 0xCD, 0x21, 0xCD, 0x20,
				'H', 'i', '$',
			},
			Output:     "Hi",
			HaltReason: "INT 20h",
		},
		{
			Name: "RepStosFill",
			// MOV CX,5 / MOV DI,2000h / MOV AL,AAh / REP STOSB / INT 20h
			Binary: []byte{
				0xB9, 0x05, 0x00, 0xBF, 0x00, 0x20, 0xB0, 0xAA,
				0xF3, 0xAA, 0xCD, 0x20,
			},
			HaltReason: "INT 20h",
			Registers: map[int]uint16{
				machine.REG_CX: 0,
				machine.REG_DI: 0x2005,
			},
		},
		{
			Name: "RepeCmpsbRunsToCompletion",
			// Equal buffers: REPE CMPSB exhausts CX
			// MOV CX,10 / MOV SI,2000h / MOV DI,3000h / REPE CMPSB / INT 20h
			Binary: []byte{
				0xB9, 0x0A, 0x00, 0xBE, 0x00, 0x20, 0xBF, 0x00, 0x30,
				0xF3, 0xA6, 0xCD, 0x20,
			},
			HaltReason: "INT 20h",
			Registers:  map[int]uint16{machine.REG_CX: 0},
		},
		{
			Name: "RepneScasbStopsOnMatch",
			// AL=0 scanning zeroed memory matches immediately: one
			// iteration, then ZF=1 stops the REPNE loop
			// MOV CX,10 / MOV DI,3000h / MOV AL,0 / REPNE SCASB / INT 20h
			Binary: []byte{
				0xB9, 0x0A, 0x00, 0xBF, 0x00, 0x30, 0xB0, 0x00,
				0xF2, 0xAE, 0xCD, 0x20,
			},
			HaltReason: "INT 20h",
			Registers:  map[int]uint16{machine.REG_CX: 9},
		},
		{
			Name: "PushPopRoundTrip",
			// MOV AX,1234h / PUSH AX / POP BX / INT 20h
			Binary: []byte{
				0xB8, 0x34, 0x12, 0x50, 0x5B, 0xCD, 0x20,
			},
			HaltReason: "INT 20h",
			Registers: map[int]uint16{
				machine.REG_BX: 0x1234,
				machine.REG_SP: machine.INITIAL_SP,
			},
		},
		{
			Name: "CallAndReturn",
			// CALL 0x106 / INT 20h / fn: MOV AX,7 / RET
			Binary: []byte{
				0xE8, 0x03, 0x00, 0xCD, 0x20,
				0x90, // padding so fn sits at 0x106
				0xB8, 0x07, 0x00, 0xC3,
			},
			HaltReason: "INT 20h",
			Registers:  map[int]uint16{machine.REG_AX: 7},
		},
	}

	for i := range tests {
		test := &tests[i]
		t.Run(test.Name, func(t *testing.T) {
			testRunSuccess(t, test)
		})
	}
}

// Identical (binary, config) pairs produce identical results
func TestRunDeterminism(t *testing.T) {
	binary := []byte{0xB4, 0x02, 0xB2, 0x41, 0xCD, 0x21, 0xCD, 0x20}

	first, _ := machine.Run(binary, machine.Config{}, nil)
	second, _ := machine.Run(binary, machine.Config{}, nil)

	if !reflect.DeepEqual(first, second) {
		t.Errorf(
			"Run not deterministic\nfirst:%+v\nsecond:%+v",
			first,
			second,
		)
	}
}

// Writes through ES:[DI] at segment B800 land in the same VRAM cells the
// BIOS teletype path writes
func TestVRAMMemoryMapped(t *testing.T) {
	// MOV AX,B800h / MOV ES,AX / MOV DI,0 / MOV AX,0741h / MOV ES:[DI],AX
	// / INT 20h
	binary := []byte{
		0xB8, 0x00, 0xB8,
		0x8E, 0xC0,
		0xBF, 0x00, 0x00,
		0xB8, 0x41, 0x07,
		0x26, 0x89, 0x05,
		0xCD, 0x20,
	}

	result, m := machine.Run(binary, machine.Config{}, nil)

	if !result.Halted {
		t.Fatal("Run did not halt")
	}

	if m.Mem.VRAM[0] != 'A' || m.Mem.VRAM[1] != 0x07 {
		t.Errorf(
			"VRAM cell mismatch\nwant:%#02x %#02x\nhave:%#02x %#02x",
			'A', 0x07,
			m.Mem.VRAM[0], m.Mem.VRAM[1],
		)
	}

	if !m.Mem.VRAMDirty {
		t.Error("VRAM write did not set the dirty flag")
	}
}

func TestTeletypeOutput(t *testing.T) {
	// MOV AH,0Eh / MOV AL,'H' / INT 10h / INT 20h
	binary := []byte{0xB4, 0x0E, 0xB0, 0x48, 0xCD, 0x10, 0xCD, 0x20}

	result, m := machine.Run(binary, machine.Config{}, nil)

	if !result.Halted {
		t.Fatal("Run did not halt")
	}

	if m.Mem.VRAM[0] != 'H' {
		t.Errorf(
			"Teletype did not write to VRAM\nwant:%q\nhave:%q",
			byte('H'),
			m.Mem.VRAM[0],
		)
	}

	if result.FinalState.Cursor.Col != 1 || result.FinalState.Cursor.Row != 0 {
		t.Errorf(
			"Cursor mismatch\nwant:(0,1)\nhave:(%d,%d)",
			result.FinalState.Cursor.Row,
			result.FinalState.Cursor.Col,
		)
	}

	// BIOS output is not console output
	if result.Output != "" {
		t.Errorf("Unexpected captured output: %q", result.Output)
	}
}

func TestCursorMovement(t *testing.T) {
	// MOV AH,02h / MOV DH,5 / MOV DL,10 / INT 10h / INT 20h
	binary := []byte{
		0xB4, 0x02, 0xB6, 0x05, 0xB2, 0x0A, 0xCD, 0x10, 0xCD, 0x20,
	}

	result, _ := machine.Run(binary, machine.Config{}, nil)

	if result.FinalState.Cursor.Row != 5 || result.FinalState.Cursor.Col != 10 {
		t.Errorf(
			"Cursor mismatch\nwant:(5,10)\nhave:(%d,%d)",
			result.FinalState.Cursor.Row,
			result.FinalState.Cursor.Col,
		)
	}
}

func TestUnimplementedInterruptSkipped(t *testing.T) {
	// INT 13h / JMP back to it, until the cycle cap: repeats coalesce into
	// one record
	binary := []byte{0xCD, 0x13, 0xEB, 0xFC}

	result, _ := machine.Run(binary, machine.Config{MaxCycles: 10}, nil)

	if len(result.Skipped) != 1 {
		t.Fatalf(
			"Skipped record count\nwant:%d\nhave:%d (%v)",
			1,
			len(result.Skipped),
			result.Skipped,
		)
	}

	record := result.Skipped[0]
	if record.Count < 2 {
		t.Errorf("Skip count not coalesced: %+v", record)
	}

	if result.Fidelity >= 1.0 {
		t.Errorf("Fidelity should drop below 1.0, have %f", result.Fidelity)
	}
}

func TestViewportCapture(t *testing.T) {
	// MOV AH,0Eh / MOV AL,'X' / INT 10h / INT 20h
	binary := []byte{0xB4, 0x0E, 0xB0, 0x58, 0xCD, 0x10, 0xCD, 0x20}

	config := machine.Config{
		HasViewport: true,
		VpCol:       0,
		VpRow:       0,
		VpWidth:     4,
		VpHeight:    2,
		VpAttrs:     true,
	}

	result, _ := machine.Run(binary, config, nil)

	if len(result.Screen) != 2 {
		t.Fatalf("Screen rows\nwant:%d\nhave:%d", 2, len(result.Screen))
	}

	if string(result.Screen[0]) != "X   " {
		t.Errorf("Screen row mismatch\nwant:%q\nhave:%q", "X   ", result.Screen[0])
	}

	if len(result.ScreenAttrs) != 2 || result.ScreenAttrs[0] != "07070707" {
		t.Errorf("Attr rows mismatch: %v", result.ScreenAttrs)
	}
}

// Source programs assembled by the assembler run end to end, including
// macro-free two-pass output with a label reference
func TestAssembleAndRun(t *testing.T) {
	ctx := assembler.AssembleSource([]string{
		"ORG 100h",
		"MOV CX, 3",
		"MOV AH, 02h",
		"loop_top:",
		"MOV DL, 'A'",
		"INT 21h",
		"LOOP loop_top",
		"INT 20h",
	})

	for _, d := range ctx.Diagnostics {
		if d.Level == "ERROR" {
			t.Fatalf("Assembly error: %s", d.Message)
		}
	}

	result, _ := machine.Run(ctx.MachineCode, machine.Config{}, nil)

	if string(result.Output) != "AAA" {
		t.Errorf("Output mismatch\nwant:%q\nhave:%q", "AAA", result.Output)
	}

	if !strings.Contains(string(result.HaltReason), "INT 20h") {
		t.Errorf("Halt reason mismatch: %q", result.HaltReason)
	}
}

// A macro invoked twice expands with distinct fresh local labels and both
// copies resolve and run
func TestMacroProgramEndToEnd(t *testing.T) {
	source := []string{
		"PRINT MACRO CH",
		"  LOCAL done",
		"  MOV AH, 02h",
		"  MOV DL, CH",
		"  INT 21h",
		"done:",
		"ENDM",
		"ORG 100h",
		"PRINT 'A'",
		"PRINT 'B'",
		"INT 20h",
	}

	lines, sourceMap, diags, ok := macro.Expand(source, nil)
	if !ok {
		t.Fatalf("Macro expansion failed: %v", diags)
	}

	ctx := assembler.NewContext()
	ctx.Assemble(lines, sourceMap, nil)

	for _, d := range ctx.Diagnostics {
		if d.Level == "ERROR" {
			t.Fatalf("Assembly error: %s (%s)", d.Message, d.Hint)
		}
	}

	result, _ := machine.Run(ctx.MachineCode, machine.Config{}, nil)

	if string(result.Output) != "AB" {
		t.Errorf("Output mismatch\nwant:%q\nhave:%q", "AB", result.Output)
	}
}
