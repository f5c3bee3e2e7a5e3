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

package assembler

import (
	"github.com/lassandro/agent86/pkg/encoding"
)

type TokenType uint
type OperandType uint

type Token struct {
	Type  TokenType
	Value string
	Line  int
}

// One severity-tagged finding with an actionable hint. File/SourceLine are
// filled from the include source map when one is available.
type Diagnostic struct {
	Level      string        `json:"level"`
	Line       int           `json:"line"`
	File       encoding.Text `json:"file,omitempty"`
	SourceLine int           `json:"sourceLine,omitempty"`
	Message    encoding.Text `json:"msg"`
	Hint       encoding.Text `json:"hint"`
}

type SymbolInfo struct {
	Value       int
	IsConstant  bool // true = EQU, false = label
	DefinedLine int
}

// Assembler-side operand. MemReg is the 8086 R/M code for memory operands,
// -1 meaning direct addressing with a 16-bit absolute displacement.
type Operand struct {
	Type            OperandType
	Reg             int // register code 0-7, or segment code 0-3
	Size            int // 8 or 16
	Val             int // immediate value or displacement
	MemReg          int
	SegmentPrefix   int // -1 = none, else the prefix byte (0x26/0x2E/0x36/0x3E)
	Present         bool
	InvolvesSymbol  bool
	HasExplicitSize bool
}

// One pass-2 listing record
type ListingEntry struct {
	Address    int           `json:"addr"`
	Line       int           `json:"line"`
	Size       int           `json:"size"`
	Decoded    encoding.Text `json:"decoded"`
	File       encoding.Text `json:"file,omitempty"`
	SourceLine int           `json:"sourceLine,omitempty"`
	Source     encoding.Text `json:"src"`
	Bytes      []int         `json:"bytes"`
}

// Context carries the whole state of one assembly run through both passes.
// Between passes the symbol table survives; diagnostics, the address
// counter, and the machine code reset.
type Context struct {
	Diagnostics []Diagnostic
	Listing     []ListingEntry
	SymbolTable map[string]SymbolInfo
	MachineCode []byte
	SourceMap   []SourceLocation

	CurrentAddress int
	IsPass1        bool
	GlobalError    bool

	currentProcedureName string
	currentLineBytes     []byte
	encounteredSymbol    bool

	// Label definitions seen in the current pass, for duplicate warnings
	labelsSeen map[string]int
}

func NewContext() *Context {
	return &Context{
		SymbolTable: make(map[string]SymbolInfo),
		labelsSeen:  make(map[string]int),
	}
}

func (ctx *Context) logError(line int, msg, hint string) {
	ctx.Diagnostics = append(ctx.Diagnostics, ctx.locate(Diagnostic{
		Level:   "ERROR",
		Line:    line,
		Message: encoding.Text(msg),
		Hint:    encoding.Text(hint),
	}))
	ctx.GlobalError = true
}

func (ctx *Context) logWarning(line int, msg, hint string) {
	ctx.Diagnostics = append(ctx.Diagnostics, ctx.locate(Diagnostic{
		Level:   "WARNING",
		Line:    line,
		Message: encoding.Text(msg),
		Hint:    encoding.Text(hint),
	}))
}

// Attach the origin file/line from the include source map, when present
func (ctx *Context) locate(d Diagnostic) Diagnostic {
	if d.Line > 0 && d.Line <= len(ctx.SourceMap) {
		loc := ctx.SourceMap[d.Line-1]
		d.File = encoding.Text(loc.File)
		d.SourceLine = loc.Line
	}
	return d
}
