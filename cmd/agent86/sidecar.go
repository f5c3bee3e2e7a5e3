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
	"encoding/gob"
	"os"
	"path/filepath"
	"strings"

	"github.com/lassandro/agent86/pkg/assembler"
)

// SymTable is the gob sidecar written next to assembled binaries with
// -sym and picked up again by -disassemble for address labelling
type SymTable struct {
	Source  string
	Origin  int // address of the first emitted byte (ORG value)
	Symbols map[string]assembler.SymbolInfo
}

func sidecarPath(binPath string) string {
	ext := filepath.Ext(binPath)
	return strings.TrimSuffix(binPath, ext) + ".a86db"
}

func writeSymbolSidecar(outfile string, ctx *assembler.Context) error {
	table := SymTable{Symbols: ctx.SymbolTable}
	if len(ctx.SourceMap) > 0 {
		table.Source = ctx.SourceMap[0].File
	}
	table.Origin = ctx.CurrentAddress - len(ctx.MachineCode)

	file, err := os.Create(sidecarPath(outfile))
	if err != nil {
		return err
	}
	defer file.Close()

	return gob.NewEncoder(file).Encode(table)
}

// loadSymbolLabels maps code offsets to label names for disassembly
// annotation. Symbol values are assembly addresses (conventionally based
// at 0x100); disassembly offsets start at zero, so label symbols shift
// down by the recorded origin.
func loadSymbolLabels(binPath string) map[int]string {
	file, err := os.Open(sidecarPath(binPath))
	if err != nil {
		return nil
	}
	defer file.Close()

	var table SymTable
	if err := gob.NewDecoder(file).Decode(&table); err != nil {
		return nil
	}

	labels := make(map[int]string)
	for name, info := range table.Symbols {
		if info.IsConstant {
			continue
		}
		if off := info.Value - table.Origin; off >= 0 {
			labels[off] = name
		}
	}
	return labels
}
