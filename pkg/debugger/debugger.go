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

// Package debugger observes an emulation run: breakpoint hits and
// watched-register changes capture frozen snapshots into the result.
package debugger

import (
	"github.com/lassandro/agent86/pkg/decoder"
	"github.com/lassandro/agent86/pkg/encoding"
	"github.com/lassandro/agent86/pkg/machine"
)

type Debugger struct {
	Breakpoints map[uint16]bool
	WatchRegs   map[int]bool

	// Memory window included in each snapshot when MemDumpLen > 0
	MemDumpAddr uint16
	MemDumpLen  int

	// Viewport included in each snapshot
	HasViewport bool
	VpCol       int
	VpRow       int
	VpWidth     int
	VpHeight    int
	VpAttrs     bool
}

func New() *Debugger {
	return &Debugger{
		Breakpoints: make(map[uint16]bool),
		WatchRegs:   make(map[int]bool),
	}
}

// Active reports whether any observation is configured; an inactive
// debugger should not be attached at all
func (dbg *Debugger) Active() bool {
	return len(dbg.Breakpoints) > 0 || len(dbg.WatchRegs) > 0
}

// Step runs before each decode. A breakpoint at IP captures a snapshot;
// after MAX_SNAPSHOTS_PER_PC captures at one address only the latest
// matching snapshot's hit count grows.
func (dbg *Debugger) Step(m *machine.Machine, result *machine.Result, cycle int) {
	if !dbg.Breakpoints[m.CPU.IP] {
		return
	}

	hits := 0
	for i := range result.Snapshots {
		if result.Snapshots[i].AddrValue == m.CPU.IP {
			hits++
		}
	}

	if hits < machine.MAX_SNAPSHOTS_PER_PC {
		dbg.capture(
			m, result, cycle,
			"Breakpoint at "+encoding.HexImm16(m.CPU.IP),
		)
		return
	}

	for i := len(result.Snapshots) - 1; i >= 0; i-- {
		if result.Snapshots[i].AddrValue == m.CPU.IP {
			result.Snapshots[i].HitCount++
			return
		}
	}
}

// Watch runs after each executed instruction and snapshots any watched
// register whose value changed
func (dbg *Debugger) Watch(
	m *machine.Machine, result *machine.Result, prev [8]uint16, cycle int,
) {
	for regIdx := 0; regIdx < 8; regIdx++ {
		if !dbg.WatchRegs[regIdx] {
			continue
		}
		if m.CPU.Regs[regIdx] == prev[regIdx] {
			continue
		}
		dbg.capture(
			m, result, cycle,
			"Watchpoint: "+machine.RegName(regIdx)+" changed from "+
				encoding.HexImm16(prev[regIdx])+" to "+
				encoding.HexImm16(m.CPU.Regs[regIdx]),
		)
	}
}

func (dbg *Debugger) capture(
	m *machine.Machine, result *machine.Result, cycle int, reason string,
) {
	// Hard cap so breakpoint loops cannot balloon the output
	if len(result.Snapshots) >= machine.MAX_SNAPSHOTS {
		return
	}

	snap := machine.Snapshot{
		Addr:      encoding.HexImm16(m.CPU.IP),
		AddrValue: m.CPU.IP,
		Cycle:     cycle,
		Reason:    encoding.Text(reason),
		HitCount:  1,
		Registers: machine.RegisterFile(m.CPU.Regs),
		Flags:     encoding.HexImm16(m.CPU.Flags),
		Cursor:    machine.Cursor{Row: m.VRAM.CursorRow, Col: m.VRAM.CursorCol},
	}

	// Next instruction for context
	inst := decoder.Decode(m.Code, int(m.CPU.IP))
	if inst.Valid {
		snap.NextInst = encoding.Text(decoder.FormatInstruction(inst))
	} else {
		snap.NextInst = "???"
	}

	// Top eight stack words, SS-relative
	sp := m.CPU.Regs[machine.REG_SP]
	ss := m.CPU.Sregs[machine.SREG_SS]
	for i := 0; i < 8; i++ {
		snap.Stack = append(
			snap.Stack,
			encoding.HexImm16(m.Mem.SRead16(ss, sp+uint16(i*2))),
		)
	}

	if dbg.MemDumpLen > 0 {
		dump := make([]byte, 0, dbg.MemDumpLen*2)
		for i := 0; i < dbg.MemDumpLen; i++ {
			b := m.Mem.Read8(dbg.MemDumpAddr + uint16(i))
			dump = append(dump, encoding.HexByte(b)...)
		}
		snap.MemDump = string(dump)
	}

	if dbg.HasViewport {
		text, attrs := machine.CaptureViewport(
			&m.Mem, dbg.VpCol, dbg.VpRow, dbg.VpWidth, dbg.VpHeight,
			dbg.VpAttrs,
		)
		for _, line := range text {
			snap.Screen = append(snap.Screen, encoding.Text(line))
		}
		snap.ScreenAttrs = attrs
	}

	result.Snapshots = append(result.Snapshots, snap)
}
