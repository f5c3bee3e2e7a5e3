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

package disasm

import (
	"github.com/lassandro/agent86/pkg/decoder"
	"github.com/lassandro/agent86/pkg/encoding"
)

type Instruction struct {
	Addr  int           `json:"addr"`
	Bytes []int         `json:"bytes"`
	Hex   string        `json:"hex"`
	Asm   encoding.Text `json:"asm"`
	Size  int           `json:"size"`
	Label string        `json:"label,omitempty"`
}

// DataRegion is a run of bytes no decode attempt succeeded on
type DataRegion struct {
	Addr  int           `json:"addr"`
	Bytes []int         `json:"bytes"`
	Hex   string        `json:"hex"`
	Size  int           `json:"size"`
	Msg   encoding.Text `json:"msg"`
}

type Result struct {
	Instructions []Instruction
	DataRegions  []DataRegion
}

// Disassemble sweeps linearly from offset 0. Valid decodes advance by the
// instruction size; failed positions advance one byte into the current
// data run, which flushes when decoding next succeeds (or at the end).
// labels, when non-nil, annotates instruction addresses with symbol names.
func Disassemble(code []byte, labels map[int]string) Result {
	var result Result

	offset := 0
	dataRunStart := -1
	var dataRunBytes []byte

	flushRun := func() {
		if dataRunStart == -1 {
			return
		}
		region := DataRegion{
			Addr:  dataRunStart,
			Bytes: toInts(dataRunBytes),
			Hex:   encoding.HexBytes(dataRunBytes),
			Size:  len(dataRunBytes),
			Msg:   "Decode failed or ambiguous",
		}
		result.DataRegions = append(result.DataRegions, region)
		dataRunStart = -1
		dataRunBytes = nil
	}

	for offset < len(code) {
		inst := decoder.Decode(code, offset)

		if !inst.Valid {
			if dataRunStart == -1 {
				dataRunStart = offset
			}
			dataRunBytes = append(dataRunBytes, code[offset])
			offset++
			continue
		}

		flushRun()

		raw := code[offset : offset+inst.Size]
		record := Instruction{
			Addr:  offset,
			Bytes: toInts(raw),
			Hex:   encoding.HexBytes(raw),
			Asm:   encoding.Text(decoder.FormatInstruction(inst)),
			Size:  inst.Size,
		}
		if labels != nil {
			record.Label = labels[offset]
		}
		result.Instructions = append(result.Instructions, record)

		offset += inst.Size
	}

	flushRun()
	return result
}

func toInts(bytes []byte) []int {
	out := make([]int, len(bytes))
	for i, b := range bytes {
		out[i] = int(b)
	}
	return out
}
