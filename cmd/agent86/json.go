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
	"bufio"
	"encoding/json"
	"log"
	"strings"

	"github.com/lassandro/agent86/pkg/assembler"
	"github.com/lassandro/agent86/pkg/disasm"
	"github.com/lassandro/agent86/pkg/encoding"
	"github.com/lassandro/agent86/pkg/machine"
)

func encodingText(s string) encoding.Text {
	return encoding.Text(s)
}

func emitJSON(out *bufio.Writer, v interface{}) {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		log.Println(err)
	}
}

type errorJSON struct {
	Error encoding.Text `json:"error"`
}

func emitError(out *bufio.Writer, msg string) {
	emitJSON(out, errorJSON{Error: encoding.Text(msg)})
}

type symbolJSON struct {
	Val        int           `json:"val"`
	Type       string        `json:"type"`
	Line       int           `json:"line"`
	File       encoding.Text `json:"file,omitempty"`
	SourceLine int           `json:"sourceLine,omitempty"`
}

type assemblyJSON struct {
	Success     bool                     `json:"success"`
	Diagnostics []assembler.Diagnostic   `json:"diagnostics"`
	Symbols     map[string]symbolJSON    `json:"symbols"`
	Listing     []assembler.ListingEntry `json:"listing"`
	Includes    []encoding.Text          `json:"includes"`
}

func assemblyView(ctx *assembler.Context) assemblyJSON {
	view := assemblyJSON{
		Success:     !ctx.GlobalError,
		Diagnostics: ctx.Diagnostics,
		Symbols:     make(map[string]symbolJSON),
		Listing:     ctx.Listing,
		Includes:    []encoding.Text{},
	}
	if view.Diagnostics == nil {
		view.Diagnostics = []assembler.Diagnostic{}
	}
	if view.Listing == nil {
		view.Listing = []assembler.ListingEntry{}
	}

	for name, info := range ctx.SymbolTable {
		sym := symbolJSON{
			Val:  info.Value,
			Type: "LABEL",
			Line: info.DefinedLine,
		}
		if info.IsConstant {
			sym.Type = "EQU"
		}
		if info.DefinedLine > 0 && info.DefinedLine <= len(ctx.SourceMap) {
			loc := ctx.SourceMap[info.DefinedLine-1]
			sym.File = encoding.Text(loc.File)
			sym.SourceLine = loc.Line
		}
		view.Symbols[name] = sym
	}

	for _, file := range ctx.Includes() {
		view.Includes = append(view.Includes, encoding.Text(file))
	}

	return view
}

func emitAssembly(out *bufio.Writer, ctx *assembler.Context) {
	emitJSON(out, assemblyView(ctx))
}

type combinedAssemblyJSON struct {
	Success     bool                   `json:"success"`
	Size        int                    `json:"size"`
	Diagnostics []assembler.Diagnostic `json:"diagnostics"`
}

type combinedJSON struct {
	Assembly  combinedAssemblyJSON `json:"assembly"`
	Emulation *machine.Result      `json:"emulation"`
}

// emitCombined is the --run-source document: assembly summary plus the
// emulation result (zeroed when assembly failed and nothing ran)
func emitCombined(
	out *bufio.Writer, ctx *assembler.Context, result *machine.Result,
) {
	if result == nil {
		result = &machine.Result{
			Snapshots:   []machine.Snapshot{},
			Skipped:     []machine.SkippedRecord{},
			Diagnostics: []encoding.Text{},
		}
	}

	diags := ctx.Diagnostics
	if diags == nil {
		diags = []assembler.Diagnostic{}
	}

	emitJSON(out, combinedJSON{
		Assembly: combinedAssemblyJSON{
			Success:     !ctx.GlobalError,
			Size:        len(ctx.MachineCode),
			Diagnostics: diags,
		},
		Emulation: result,
	})
}

type disasmJSON struct {
	File         encoding.Text        `json:"file"`
	FileSize     int                  `json:"fileSize"`
	Instructions []disasm.Instruction `json:"instructions"`
	DataRegions  []disasm.DataRegion  `json:"dataRegions"`
}

func emitDisassembly(
	out *bufio.Writer, filename string, size int, result disasm.Result,
) {
	view := disasmJSON{
		File:         encoding.Text(filename),
		FileSize:     size,
		Instructions: result.Instructions,
		DataRegions:  result.DataRegions,
	}
	if view.Instructions == nil {
		view.Instructions = []disasm.Instruction{}
	}
	if view.DataRegions == nil {
		view.DataRegions = []disasm.DataRegion{}
	}
	emitJSON(out, view)
}

type explainJSON struct {
	Mnemonic string                  `json:"mnemonic"`
	Forms    []assembler.OperandRule `json:"forms"`
	Found    bool                    `json:"found"`
}

func emitExplain(out *bufio.Writer, mnemonic string) {
	entry, found := assembler.LookupISA(mnemonic)
	view := explainJSON{
		Mnemonic: entry.Mnemonic,
		Forms:    entry.ValidForms,
		Found:    found,
	}
	if !found {
		view.Mnemonic = strings.ToUpper(mnemonic)
		view.Forms = []assembler.OperandRule{}
	}
	emitJSON(out, view)
}

type isaSummaryJSON struct {
	Mnemonic string `json:"mnemonic"`
	Desc     string `json:"desc"`
}

func emitDumpISA(out *bufio.Writer) {
	summary := make([]isaSummaryJSON, 0, len(assembler.ISADB))
	for _, entry := range assembler.ISADB {
		summary = append(summary, isaSummaryJSON{
			Mnemonic: entry.Mnemonic,
			Desc:     entry.Description,
		})
	}
	emitJSON(out, summary)
}
