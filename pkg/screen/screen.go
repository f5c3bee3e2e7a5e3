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

// Package screen renders the 80x50 text VRAM into a BMP image: each cell
// becomes an 8x8 or 8x16 glyph in its CGA foreground/background colors.
package screen

import (
	"image"
	"image/color"
	"os"

	"golang.org/x/image/bmp"

	"github.com/lassandro/agent86/pkg/machine"
)

// The sixteen CGA attribute colors
var cgaPalette = [16]color.RGBA{
	{0x00, 0x00, 0x00, 0xFF}, {0x00, 0x00, 0xAA, 0xFF},
	{0x00, 0xAA, 0x00, 0xFF}, {0x00, 0xAA, 0xAA, 0xFF},
	{0xAA, 0x00, 0x00, 0xFF}, {0xAA, 0x00, 0xAA, 0xFF},
	{0xAA, 0x55, 0x00, 0xFF}, {0xAA, 0xAA, 0xAA, 0xFF},
	{0x55, 0x55, 0x55, 0xFF}, {0x55, 0x55, 0xFF, 0xFF},
	{0x55, 0xFF, 0x55, 0xFF}, {0x55, 0xFF, 0xFF, 0xFF},
	{0xFF, 0x55, 0x55, 0xFF}, {0xFF, 0x55, 0xFF, 0xFF},
	{0xFF, 0xFF, 0x55, 0xFF}, {0xFF, 0xFF, 0xFF, 0xFF},
}

// Render draws the VRAM cells into an opaque RGBA image (opaque so the
// BMP encoder emits 24-bit pixel data): 640x400 with the 8x8 font,
// 640x800 with 8x16
func Render(vram *[machine.VRAM_SIZE]byte, use8x8 bool) *image.RGBA {
	glyphH := 16
	if use8x8 {
		glyphH = 8
	}
	imgW := machine.VRAM_COLS * 8
	imgH := machine.VRAM_ROWS * glyphH

	img := image.NewRGBA(image.Rect(0, 0, imgW, imgH))

	for row := 0; row < machine.VRAM_ROWS; row++ {
		for col := 0; col < machine.VRAM_COLS; col++ {
			idx := (row*machine.VRAM_COLS + col) * 2
			ch := vram[idx]
			attr := vram[idx+1]
			fg := cgaPalette[attr&0x0F]
			bg := cgaPalette[(attr>>4)&0x0F]

			for gy := 0; gy < glyphH; gy++ {
				bits := glyphRow(ch, gy, use8x8)
				y := row*glyphH + gy
				baseX := col * 8
				for gx := 0; gx < 8; gx++ {
					// Glyph rows store the leftmost pixel in the low bit
					c := bg
					if (bits>>gx)&1 != 0 {
						c = fg
					}
					img.SetRGBA(baseX+gx, y, c)
				}
			}
		}
	}

	return img
}

// WriteBMP renders the VRAM and writes it as an uncompressed BMP
func WriteBMP(vram *[machine.VRAM_SIZE]byte, filename string, use8x8 bool) error {
	img := Render(vram, use8x8)

	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	return bmp.Encode(file, img)
}

// glyphRow returns one scanline of a character's glyph. The 8x16 face is
// the 8x8 face with doubled scanlines.
func glyphRow(ch byte, gy int, use8x8 bool) byte {
	if !use8x8 {
		gy /= 2
	}
	return font8x8[ch][gy]
}
