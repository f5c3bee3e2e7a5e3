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

// Assemble runs both passes over pre-expanded source lines. Pass 1 walks
// every line for its size effects and fills the symbol table; pass 2
// re-walks with symbols complete, emits machine code, and builds the
// listing. Pass-1 diagnostics are discarded: anything real recurs in pass
// 2, and pass-1-only errors (undefined forward references) are expected.
//
// seedDiagnostics carries include/macro findings that must survive into
// the final diagnostic list of both passes.
func (ctx *Context) Assemble(
	lines []string, sourceMap []SourceLocation, seedDiagnostics []Diagnostic,
) {
	ctx.SourceMap = sourceMap

	ctx.IsPass1 = true
	ctx.CurrentAddress = 0
	ctx.Diagnostics = append(ctx.Diagnostics[:0], seedDiagnostics...)
	ctx.labelsSeen = make(map[string]int)
	for i, line := range lines {
		tokens := Tokenize(line, i+1)
		ctx.assembleLine(tokens, i+1, line)
	}

	ctx.IsPass1 = false
	ctx.CurrentAddress = 0
	ctx.MachineCode = ctx.MachineCode[:0]
	ctx.Listing = ctx.Listing[:0]
	ctx.Diagnostics = append(ctx.Diagnostics[:0], seedDiagnostics...)
	ctx.GlobalError = false
	ctx.currentProcedureName = ""
	ctx.labelsSeen = make(map[string]int)
	for i, line := range lines {
		tokens := Tokenize(line, i+1)
		ctx.assembleLine(tokens, i+1, line)
	}
}

// AssembleSource is the single-buffer convenience wrapper used by tests
// and by callers that have no include graph.
func AssembleSource(lines []string) *Context {
	ctx := NewContext()
	ctx.Assemble(lines, nil, nil)
	return ctx
}

// Includes lists each origin file once, in first-appearance order
func (ctx *Context) Includes() []string {
	var files []string
	seen := make(map[string]bool)
	for _, loc := range ctx.SourceMap {
		if !seen[loc.File] {
			seen[loc.File] = true
			files = append(files, loc.File)
		}
	}
	return files
}
