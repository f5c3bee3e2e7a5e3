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
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/lassandro/agent86/pkg/encoding"
)

// Origin of one flattened source line: file path plus its 1-based line
// number within that file
type SourceLocation struct {
	File string
	Line int
}

const maxIncludeDepth = 16

type includeExpander struct {
	lines       []string
	sourceMap   []SourceLocation
	diagnostics []Diagnostic
	stack       map[string]bool // canonical paths currently being expanded
	ok          bool
}

// ExpandIncludes reads the root file and recursively splices INCLUDE
// directives into a flat line list. Each INCLUDE line is replaced by
// marker comments around the spliced content so listings stay aligned,
// and the parallel source map records every output line's origin.
func ExpandIncludes(filename string) (
	[]string, []SourceLocation, []Diagnostic, bool,
) {
	exp := &includeExpander{
		stack: make(map[string]bool),
		ok:    true,
	}

	baseDir := filepath.Dir(filename)
	exp.expandFile(filepath.Base(filename), baseDir, 0)

	return exp.lines, exp.sourceMap, exp.diagnostics, exp.ok
}

func (exp *includeExpander) fail(msg, hint string) {
	exp.diagnostics = append(exp.diagnostics, Diagnostic{
		Level:   "ERROR",
		Line:    0,
		Message: encoding.Text(msg),
		Hint:    encoding.Text(hint),
	})
	exp.ok = false
}

func (exp *includeExpander) emit(line string, loc SourceLocation) {
	exp.lines = append(exp.lines, line)
	exp.sourceMap = append(exp.sourceMap, loc)
}

func (exp *includeExpander) expandFile(filename, baseDir string, depth int) {
	if depth > maxIncludeDepth {
		exp.fail(
			fmt.Sprintf("Include nesting depth exceeded (%d)", maxIncludeDepth),
			"Check for deeply nested or recursive INCLUDE chains",
		)
		return
	}

	resolved := filename
	if !filepath.IsAbs(filename) {
		resolved = filepath.Join(baseDir, filename)
	}

	canonical, err := filepath.EvalSymlinks(resolved)
	if err != nil {
		exp.fail(
			"Cannot open include file: "+resolved,
			"Resolved from: "+filename+" relative to "+baseDir,
		)
		return
	}
	if abs, err := filepath.Abs(canonical); err == nil {
		canonical = abs
	}

	if exp.stack[canonical] {
		exp.fail(
			"Circular include detected: "+filename,
			"File already in include chain: "+canonical,
		)
		return
	}

	file, err := os.Open(resolved)
	if err != nil {
		exp.fail(
			"Cannot open include file: "+resolved,
			"Resolved from: "+filename+" relative to "+baseDir,
		)
		return
	}

	var fileLines []string
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		fileLines = append(fileLines, scanner.Text())
	}
	file.Close()

	exp.stack[canonical] = true
	defer delete(exp.stack, canonical)
	fileDir := filepath.Dir(resolved)

	for i, raw := range fileLines {
		loc := SourceLocation{resolved, i + 1}

		incFile, isInclude := parseIncludeLine(raw)
		if !isInclude {
			exp.emit(raw, loc)
			continue
		}

		if incFile == "" {
			exp.fail(
				"INCLUDE directive missing filename",
				"Usage: INCLUDE 'file.asm' or INCLUDE \"file.asm\" or "+
					"INCLUDE file.asm",
			)
			exp.emit("; ERROR: INCLUDE missing filename", loc)
			continue
		}

		exp.emit("; >>> INCLUDE "+incFile, loc)
		exp.expandFile(incFile, fileDir, depth+1)
		exp.emit("; <<< END INCLUDE "+incFile, loc)
	}
}

// parseIncludeLine recognizes a line whose first token is INCLUDE
// (case-insensitive) and extracts the filename: a bare word or a single-
// or double-quoted string. Returns ("", true) for a malformed directive.
func parseIncludeLine(raw string) (string, bool) {
	trimmed := strings.TrimLeft(raw, " \t")
	if len(trimmed) < 7 || !strings.EqualFold(trimmed[:7], "INCLUDE") {
		return "", false
	}
	rest := trimmed[7:]
	if rest != "" {
		switch rest[0] {
		case ' ', '\t', '\'', '"':
		default:
			return "", false // e.g. an identifier starting with INCLUDE
		}
	}
	rest = strings.TrimLeft(rest, " \t")

	if rest == "" {
		return "", true
	}

	if rest[0] == '\'' || rest[0] == '"' {
		quote := rest[0]
		end := strings.IndexByte(rest[1:], quote)
		if end < 0 {
			return "", true
		}
		return rest[1 : 1+end], true
	}

	end := strings.IndexAny(rest, " \t;")
	if end < 0 {
		return rest, true
	}
	return rest[:end], true
}
