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
	"fmt"

	"github.com/lassandro/agent86/pkg/decoder"
	"github.com/lassandro/agent86/pkg/encoding"
)

// Run emulates a .COM image to completion: HLT, a terminating interrupt,
// a fault, or the cycle cap. The machine is created fresh per run and
// never shared, so two runs over the same (binary, config) produce
// identical results.
func Run(binary []byte, config Config, dbg Debugger) (Result, *Machine) {
	m := &Machine{
		VRAM: NewVRAMState(),
	}

	result := Result{
		Snapshots:   []Snapshot{},
		Skipped:     []SkippedRecord{},
		Diagnostics: []encoding.Text{},
	}

	m.IO.stdinSource = config.StdinInput
	m.IO.keyboard = config.Keyboard
	m.IO.console = config.Console

	m.CPU.IP = COM_ORIGIN
	m.CPU.Regs[REG_SP] = INITIAL_SP
	m.CPU.Flags = INITIAL_FLAGS
	// CS=DS=ES=SS=0 in the flat .COM model

	m.VRAM.ClearScreen(&m.Mem)

	m.Mem.LoadCOM(binary)
	// INT 20h at PSP:0000 so a bare RET from the entry point terminates
	m.Mem.Write8(0x0000, 0xCD)
	m.Mem.Write8(0x0001, 0x20)

	// Decode against a stable copy of memory
	m.Code = make([]byte, 65536)
	copy(m.Code, m.Mem.Data[:])

	maxCycles := config.MaxCycles
	if maxCycles <= 0 {
		maxCycles = DEFAULT_MAX_CYCLES
	}

	cycle := 0
	for cycle < maxCycles {
		var prevRegs [8]uint16
		prevRegs = m.CPU.Regs

		if dbg != nil {
			dbg.Step(m, &result, cycle)
		}

		inst := decoder.Decode(m.Code, int(m.CPU.IP))
		if !inst.Valid {
			result.Halted = true
			result.HaltReason = encoding.Text(
				"Invalid opcode at " + encoding.HexImm16(m.CPU.IP),
			)
			break
		}

		// Advance IP before execution so branches can overwrite it
		m.CPU.IP += uint16(inst.Size)

		m.execute(inst, &result)
		cycle++

		if result.Halted {
			break
		}

		if dbg != nil {
			dbg.Watch(m, &result, prevRegs, cycle)
		}
	}

	if !result.Halted && cycle >= maxCycles {
		result.Halted = true
		result.HaltReason = encoding.Text(
			fmt.Sprintf("Cycle limit reached (%d)", maxCycles),
		)
	}

	result.Success = true
	result.CyclesExecuted = cycle
	result.Output = encoding.Text(m.IO.StdoutBuf.String())
	result.OutputHex = outputHex(m.IO.StdoutBuf.Bytes())
	result.Fidelity = computeFidelity(&result)

	if config.HasViewport {
		text, attrs := CaptureViewport(
			&m.Mem, config.VpCol, config.VpRow,
			config.VpWidth, config.VpHeight, config.VpAttrs,
		)
		for _, line := range text {
			result.Screen = append(result.Screen, encoding.Text(line))
		}
		result.ScreenAttrs = attrs
	}

	result.FinalState = FinalState{
		Registers: RegisterFile(m.CPU.Regs),
		Sregs:     SregFile(m.CPU.Sregs),
		IP:        encoding.HexImm16(m.CPU.IP),
		Flags:     encoding.HexImm16(m.CPU.Flags),
		FlagBits:  flagBits(&m.CPU),
		Cursor:    Cursor{m.VRAM.CursorRow, m.VRAM.CursorCol},
	}

	return result, m
}

func flagBits(cpu *CPU) FlagBits {
	b := func(flag uint) int {
		if cpu.GetFlag(flag) {
			return 1
		}
		return 0
	}
	return FlagBits{
		CF: b(FLAG_CF), PF: b(FLAG_PF), AF: b(FLAG_AF), ZF: b(FLAG_ZF),
		SF: b(FLAG_SF), OF: b(FLAG_OF), DF: b(FLAG_DF), IF: b(FLAG_IF),
	}
}

func outputHex(output []byte) string {
	out := make([]byte, 0, len(output)*2)
	for _, ch := range output {
		out = append(out, encoding.HexByte(ch)...)
	}
	return string(out)
}

// Fidelity approximates how much of the program actually executed:
// 1 - skips/(cycles+1), floored at zero
func computeFidelity(result *Result) float64 {
	if len(result.Skipped) == 0 {
		return 1.0
	}
	total := 0
	for _, s := range result.Skipped {
		total += s.Count
	}
	ratio := 1.0 - float64(total)/float64(result.CyclesExecuted+1)
	if ratio < 0 {
		return 0
	}
	return ratio
}
