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

package screen_test

import (
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/lassandro/agent86/pkg/machine"
	"github.com/lassandro/agent86/pkg/screen"
)

func testVRAM() *[machine.VRAM_SIZE]byte {
	var vram [machine.VRAM_SIZE]byte
	for i := 0; i < machine.VRAM_SIZE; i += 2 {
		vram[i] = ' '
		vram[i+1] = 0x07
	}
	// 'A' white on blue at (0, 0)
	vram[0] = 'A'
	vram[1] = 0x1F
	return &vram
}

func TestRenderDimensions(t *testing.T) {
	vram := testVRAM()

	img := screen.Render(vram, true)
	if bounds := img.Bounds(); bounds.Dx() != 640 || bounds.Dy() != 400 {
		t.Errorf(
			"8x8 dimensions\nwant:640x400\nhave:%dx%d",
			bounds.Dx(),
			bounds.Dy(),
		)
	}

	img = screen.Render(vram, false)
	if bounds := img.Bounds(); bounds.Dx() != 640 || bounds.Dy() != 800 {
		t.Errorf(
			"8x16 dimensions\nwant:640x800\nhave:%dx%d",
			bounds.Dx(),
			bounds.Dy(),
		)
	}
}

func TestRenderColors(t *testing.T) {
	vram := testVRAM()
	img := screen.Render(vram, true)

	blue := color.RGBA{0x00, 0x00, 0xAA, 0xFF}
	white := color.RGBA{0xFF, 0xFF, 0xFF, 0xFF}

	// Every pixel of the first cell is either the foreground or the
	// background of attribute 0x1F, and both appear (the glyph is not
	// blank)
	fgSeen := false
	bgSeen := false
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			switch img.RGBAAt(x, y) {
			case white:
				fgSeen = true
			case blue:
				bgSeen = true
			default:
				t.Fatalf(
					"Unexpected color at (%d,%d): %v",
					x, y, img.RGBAAt(x, y),
				)
			}
		}
	}

	if !fgSeen || !bgSeen {
		t.Errorf(
			"Cell rendering incomplete: fgSeen=%v bgSeen=%v",
			fgSeen,
			bgSeen,
		)
	}

	// Image must be opaque so the BMP encoder writes 24-bit pixels
	if !img.Opaque() {
		t.Error("Rendered image is not opaque")
	}
}

func TestWriteBMP(t *testing.T) {
	vram := testVRAM()
	path := filepath.Join(t.TempDir(), "shot.bmp")

	if err := screen.WriteBMP(vram, path, true); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	if len(data) < 54 {
		t.Fatalf("BMP too small: %d bytes", len(data))
	}

	if data[0] != 'B' || data[1] != 'M' {
		t.Errorf("Missing BMP magic: % X", data[:2])
	}

	// 24 bits per pixel at offset 28 of the header
	if bpp := int(data[28]) | int(data[29])<<8; bpp != 24 {
		t.Errorf("Bits per pixel\nwant:%d\nhave:%d", 24, bpp)
	}
}
