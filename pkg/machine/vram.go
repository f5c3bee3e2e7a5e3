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

// VRAMState tracks the cursor and default attribute over the cell
// storage in Memory.VRAM
type VRAMState struct {
	CursorRow   int
	CursorCol   int
	DefaultAttr uint8
	Cols        int
	Rows        int
}

func NewVRAMState() VRAMState {
	return VRAMState{
		DefaultAttr: DEFAULT_ATTR,
		Cols:        VRAM_COLS,
		Rows:        VRAM_ROWS,
	}
}

func (v *VRAMState) CursorOffset() int {
	return (v.CursorRow*v.Cols + v.CursorCol) * 2
}

func (v *VRAMState) Advance(mem *Memory) {
	v.CursorCol++
	if v.CursorCol >= v.Cols {
		v.CursorCol = 0
		v.CursorRow++
		if v.CursorRow >= v.Rows {
			v.ScrollUp(mem, 1)
			v.CursorRow = v.Rows - 1
		}
	}
}

// ScrollUp shifts all rows up by n and fills the vacated bottom rows with
// (space, default attribute)
func (v *VRAMState) ScrollUp(mem *Memory, n int) {
	bytesPerRow := v.Cols * 2
	shift := n * bytesPerRow
	total := v.Rows * bytesPerRow
	if shift > total {
		shift = total
	}

	copy(mem.VRAM[:total-shift], mem.VRAM[shift:total])

	for i := total - shift; i < total; i += 2 {
		mem.VRAM[i] = ' '
		mem.VRAM[i+1] = v.DefaultAttr
	}
	mem.VRAMDirty = true
}

func (v *VRAMState) WriteCharAtCursor(mem *Memory, ch, attr uint8) {
	off := v.CursorOffset()
	if off+1 < VRAM_SIZE {
		mem.VRAM[off] = ch
		mem.VRAM[off+1] = attr
		mem.VRAMDirty = true
	}
}

func (v *VRAMState) ClearScreen(mem *Memory) {
	for i := 0; i < v.Rows*v.Cols*2; i += 2 {
		mem.VRAM[i] = ' '
		mem.VRAM[i+1] = v.DefaultAttr
	}
	v.CursorRow = 0
	v.CursorCol = 0
	mem.VRAMDirty = true
}

// Teletype routes one output character into the VRAM with BIOS AH=0Eh
// semantics: CR homes the column, LF advances the row (scrolling past the
// bottom), BS backs the column up, BEL is swallowed, anything else prints
// at the cursor with the default attribute and advances.
func (v *VRAMState) Teletype(mem *Memory, ch uint8) {
	switch ch {
	case 0x0D:
		v.CursorCol = 0
	case 0x0A:
		v.CursorRow++
		if v.CursorRow >= v.Rows {
			v.ScrollUp(mem, 1)
			v.CursorRow = v.Rows - 1
		}
	case 0x08:
		if v.CursorCol > 0 {
			v.CursorCol--
		}
	case 0x07:
		// bell
	default:
		v.WriteCharAtCursor(mem, ch, v.DefaultAttr)
		v.Advance(mem)
	}
}

// CaptureViewport extracts a rectangular window of the screen as text
// rows (non-printable cells become '.') and, when wantAttrs is set, as
// parallel rows of hex attribute bytes.
func CaptureViewport(
	mem *Memory, col, row, width, height int, wantAttrs bool,
) (text []string, attrs []string) {
	const hexDigits = "0123456789ABCDEF"

	for r := 0; r < height; r++ {
		screenRow := row + r
		if screenRow >= VRAM_ROWS {
			break
		}

		textLine := make([]byte, 0, width)
		var attrLine []byte

		for c := 0; c < width; c++ {
			screenCol := col + c
			if screenCol >= VRAM_COLS {
				break
			}

			off := (screenRow*VRAM_COLS + screenCol) * 2
			ch := mem.VRAM[off]
			at := mem.VRAM[off+1]

			if ch >= 0x20 && ch < 0x7F {
				textLine = append(textLine, ch)
			} else {
				textLine = append(textLine, '.')
			}

			if wantAttrs {
				attrLine = append(attrLine, hexDigits[at>>4], hexDigits[at&0xF])
			}
		}

		text = append(text, string(textLine))
		if wantAttrs {
			attrs = append(attrs, string(attrLine))
		}
	}

	return text, attrs
}
