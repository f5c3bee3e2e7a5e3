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

package main

import (
	"github.com/gdamore/tcell/v2"

	"github.com/lassandro/agent86/pkg/machine"
)

// CGA attribute colors mapped onto the terminal palette. CGA orders the
// low three bits blue-green-red; ANSI orders them red-green-blue.
var cgaToTcell = [16]tcell.Color{
	tcell.PaletteColor(0), tcell.PaletteColor(4),
	tcell.PaletteColor(2), tcell.PaletteColor(6),
	tcell.PaletteColor(1), tcell.PaletteColor(5),
	tcell.PaletteColor(3), tcell.PaletteColor(7),
	tcell.PaletteColor(8), tcell.PaletteColor(12),
	tcell.PaletteColor(10), tcell.PaletteColor(14),
	tcell.PaletteColor(9), tcell.PaletteColor(13),
	tcell.PaletteColor(11), tcell.PaletteColor(15),
}

// showScreen renders the final VRAM into the real terminal with tcell and
// waits for a keypress
func showScreen(vram *[machine.VRAM_SIZE]byte, cursorRow, cursorCol int) error {
	s, err := tcell.NewScreen()
	if err != nil {
		return err
	}
	if err := s.Init(); err != nil {
		return err
	}
	defer s.Fini()

	s.Clear()

	for row := 0; row < machine.VRAM_ROWS; row++ {
		for col := 0; col < machine.VRAM_COLS; col++ {
			idx := (row*machine.VRAM_COLS + col) * 2
			ch := vram[idx]
			attr := vram[idx+1]

			r := rune(ch)
			if ch < 0x20 || ch >= 0x7F {
				r = ' '
			}

			style := tcell.StyleDefault.
				Foreground(cgaToTcell[attr&0x0F]).
				Background(cgaToTcell[(attr>>4)&0x0F])

			s.SetContent(col, row, r, nil, style)
		}
	}

	s.ShowCursor(cursorCol, cursorRow)
	s.Show()

	for {
		switch s.PollEvent().(type) {
		case *tcell.EventKey:
			return nil
		case *tcell.EventResize:
			s.Sync()
		}
	}
}
