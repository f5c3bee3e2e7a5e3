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

	"github.com/lassandro/agent86/pkg/encoding"
)

// emitChar sends one program output character to the capture buffer and
// through the BIOS teletype path into VRAM
func (m *Machine) emitChar(ch uint8) {
	m.IO.EmitChar(ch)
	m.VRAM.Teletype(&m.Mem, ch)
}

func (m *Machine) handleInterrupt(intNum uint8, result *Result) {
	switch intNum {
	case 0x20:
		result.Halted = true
		result.HaltReason = "INT 20h program terminate"
		result.ExitCode = 0
	case 0x21:
		m.handleInt21(result)
	case 0x10:
		m.handleInt10(result)
	default:
		result.AddSkipped(
			m.CPU.IP,
			"INT "+encoding.HexByte(intNum),
			"Unimplemented interrupt",
		)
	}
}

// DOS services subset, keyed by AH
func (m *Machine) handleInt21(result *Result) {
	ah := m.CPU.GetReg8(4)

	switch ah {
	case 0x01: // read char with echo
		ch := m.IO.ReadChar()
		if ch < 0 {
			ch = 0x0D
		}
		m.CPU.SetReg8(0, uint8(ch))
		m.emitChar(uint8(ch))

	case 0x02: // write DL
		m.emitChar(m.CPU.GetReg8(2))

	case 0x06: // direct console I/O
		dl := m.CPU.GetReg8(2)
		if dl == 0xFF {
			ch := m.IO.ReadChar()
			if ch < 0 {
				m.CPU.SetFlag(FLAG_ZF, true)
				m.CPU.SetReg8(0, 0)
			} else {
				m.CPU.SetFlag(FLAG_ZF, false)
				m.CPU.SetReg8(0, uint8(ch))
			}
		} else {
			m.emitChar(dl)
		}

	case 0x09: // write $-terminated string at DS:DX, at most MAX_OUTPUT bytes
		seg := m.CPU.Sregs[SREG_DS]
		off := m.CPU.Regs[REG_DX]
		terminated := false
		for i := 0; i < MAX_OUTPUT; i++ {
			ch := m.Mem.SRead8(seg, off+uint16(i))
			if ch == '$' {
				terminated = true
				break
			}
			m.IO.EmitChar(ch)
			m.VRAM.Teletype(&m.Mem, ch)
		}
		if !terminated {
			result.AddDiagnostic(fmt.Sprintf(
				"Output truncated at %d bytes (no '$' terminator "+
					"found - possible bad pointer in DX=%s)",
				MAX_OUTPUT, encoding.HexImm16(off),
			))
		}

	case 0x2A: // get date (stubbed)
		m.CPU.Regs[REG_CX] = 2026 // year
		m.CPU.SetReg8(6, 2)       // DH = month
		m.CPU.SetReg8(2, 13)      // DL = day
		m.CPU.SetReg8(0, 5)       // AL = day of week

	case 0x2C: // get time (stubbed)
		m.CPU.SetReg8(4, 12) // CH = hour
		m.CPU.SetReg8(1, 0)  // CL = minute
		m.CPU.SetReg8(6, 0)  // DH = second
		m.CPU.SetReg8(2, 0)  // DL = centisecond

	case 0x30: // DOS version (stubbed 5.0)
		m.CPU.SetReg8(0, 5)
		m.CPU.SetReg8(4, 0)

	case 0x4C: // exit with AL
		m.IO.ExitCode = int(m.CPU.GetReg8(0))
		result.Halted = true
		result.HaltReason = encoding.Text(fmt.Sprintf(
			"INT 21h/4Ch exit (code=%d)", m.IO.ExitCode,
		))
		result.ExitCode = m.IO.ExitCode

	default:
		result.AddSkipped(
			m.CPU.IP,
			"INT 21h AH="+encoding.HexByte(ah),
			"Unimplemented DOS function",
		)
	}
}

// BIOS video services subset, keyed by AH
func (m *Machine) handleInt10(result *Result) {
	ah := m.CPU.GetReg8(4)

	switch ah {
	case 0x00: // set video mode: just clear the screen
		m.VRAM.ClearScreen(&m.Mem)

	case 0x02: // set cursor position (DH=row, DL=col, BH ignored)
		row := int(m.CPU.GetReg8(6))
		col := int(m.CPU.GetReg8(2))
		if row < m.VRAM.Rows && col < m.VRAM.Cols {
			m.VRAM.CursorRow = row
			m.VRAM.CursorCol = col
		}

	case 0x03: // get cursor position
		m.CPU.SetReg8(6, uint8(m.VRAM.CursorRow)) // DH
		m.CPU.SetReg8(2, uint8(m.VRAM.CursorCol)) // DL
		m.CPU.Regs[REG_CX] = 0x0607               // cursor size

	case 0x06, 0x07: // scroll window up/down
		m.scrollWindow(ah == 0x06)

	case 0x08: // read char/attr at cursor
		off := m.VRAM.CursorOffset()
		if off+1 < VRAM_SIZE {
			m.CPU.SetReg8(0, m.Mem.VRAM[off])   // AL
			m.CPU.SetReg8(4, m.Mem.VRAM[off+1]) // AH
		}

	case 0x09: // write char+attr CX times, no cursor advance
		ch := m.CPU.GetReg8(0)   // AL
		attr := m.CPU.GetReg8(3) // BL
		count := int(m.CPU.Regs[REG_CX])
		off := m.VRAM.CursorOffset()
		for i := 0; i < count; i++ {
			cur := off + i*2
			if cur+1 < VRAM_SIZE {
				m.Mem.VRAM[cur] = ch
				m.Mem.VRAM[cur+1] = attr
			}
		}
		m.Mem.VRAMDirty = true

	case 0x0A: // write char CX times, preserve attribute, no advance
		ch := m.CPU.GetReg8(0)
		count := int(m.CPU.Regs[REG_CX])
		col := m.VRAM.CursorCol
		row := m.VRAM.CursorRow
		for i := 0; i < count && row < m.VRAM.Rows; i++ {
			off := (row*m.VRAM.Cols + col) * 2
			if off+1 < VRAM_SIZE {
				m.Mem.VRAM[off] = ch
			}
			col++
			if col >= m.VRAM.Cols {
				col = 0
				row++
			}
		}
		m.Mem.VRAMDirty = true

	case 0x0E: // teletype output
		m.VRAM.Teletype(&m.Mem, m.CPU.GetReg8(0))

	case 0x0F: // get video mode
		m.CPU.SetReg8(0, 3)  // AL = mode 3
		m.CPU.SetReg8(4, 80) // AH = columns
		m.CPU.SetReg8(7, 0)  // BH = active page

	default:
		result.AddSkipped(
			m.CPU.IP,
			"INT 10h AH="+encoding.HexByte(ah),
			"Unimplemented Video function",
		)
	}
}

// AH=06h/07h window scroll. AL = line count (0 clears the window), BH =
// fill attribute, CH/CL = top-left, DH/DL = bottom-right.
func (m *Machine) scrollWindow(up bool) {
	lines := int(m.CPU.GetReg8(0))
	attr := m.CPU.GetReg8(7)
	r1 := int(m.CPU.GetReg8(5))
	c1 := int(m.CPU.GetReg8(1))
	r2 := int(m.CPU.GetReg8(6))
	c2 := int(m.CPU.GetReg8(2))

	if r2 >= m.VRAM.Rows {
		r2 = m.VRAM.Rows - 1
	}
	if c2 >= m.VRAM.Cols {
		c2 = m.VRAM.Cols - 1
	}
	if r1 > r2 || c1 > c2 {
		return
	}

	clearCell := func(r, c int) {
		off := (r*m.VRAM.Cols + c) * 2
		m.Mem.VRAM[off] = ' '
		m.Mem.VRAM[off+1] = attr
	}

	switch {
	case lines == 0:
		for r := r1; r <= r2; r++ {
			for c := c1; c <= c2; c++ {
				clearCell(r, c)
			}
		}

	case up:
		for r := r1; r <= r2-lines; r++ {
			for c := c1; c <= c2; c++ {
				dst := (r*m.VRAM.Cols + c) * 2
				src := ((r+lines)*m.VRAM.Cols + c) * 2
				m.Mem.VRAM[dst] = m.Mem.VRAM[src]
				m.Mem.VRAM[dst+1] = m.Mem.VRAM[src+1]
			}
		}
		start := r2 - lines + 1
		if start < r1 {
			start = r1
		}
		for r := start; r <= r2; r++ {
			for c := c1; c <= c2; c++ {
				clearCell(r, c)
			}
		}

	default: // down
		for r := r2; r >= r1+lines; r-- {
			for c := c1; c <= c2; c++ {
				dst := (r*m.VRAM.Cols + c) * 2
				src := ((r-lines)*m.VRAM.Cols + c) * 2
				m.Mem.VRAM[dst] = m.Mem.VRAM[src]
				m.Mem.VRAM[dst+1] = m.Mem.VRAM[src+1]
			}
		}
		end := r1 + lines
		if end > r2+1 {
			end = r2 + 1
		}
		for r := r1; r < end; r++ {
			for c := c1; c <= c2; c++ {
				clearCell(r, c)
			}
		}
	}

	m.Mem.VRAMDirty = true
}
