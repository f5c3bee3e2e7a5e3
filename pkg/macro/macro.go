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

// Package macro pre-expands MACRO/ENDM definitions, REPT repetition
// blocks, and IRP iteration blocks over the flattened source before the
// assembler sees it. Expansion is purely textual: parameters substitute as
// raw text, LOCAL labels get fresh ??HHHH identifiers per invocation, and
// the '&' concatenation operator is deleted.
package macro

import (
	"fmt"
	"strings"

	"github.com/lassandro/agent86/pkg/assembler"
	"github.com/lassandro/agent86/pkg/encoding"
)

type Definition struct {
	Name          string   // upper-cased
	Params        []string // upper-cased, ordered
	Locals        []string // upper-cased LOCAL names
	Body          []string // raw body lines, LOCAL lines excluded
	DefinedAtLine int      // 0-based flat line index
}

// Sweeps are capped so mutually-recursive invocations fail instead of
// expanding forever
const maxExpansionIterations = 10000

type expander struct {
	lines        []string
	sourceMap    []assembler.SourceLocation
	diagnostics  []assembler.Diagnostic
	macros       map[string]Definition
	localCounter int
	ok           bool
}

// Expand rewrites the line list in place semantics: returns the expanded
// lines and an updated source map, plus any diagnostics. ok=false means a
// fatal preprocessor error; the returned diagnostics then carry at least
// one ERROR and the lines must not be assembled.
func Expand(lines []string, sourceMap []assembler.SourceLocation) (
	[]string, []assembler.SourceLocation, []assembler.Diagnostic, bool,
) {
	exp := &expander{
		lines:     lines,
		sourceMap: sourceMap,
		macros:    make(map[string]Definition),
		ok:        true,
	}

	// A source map is optional (tests feed bare line lists); synthesize a
	// 1:1 map so splicing stays uniform
	if exp.sourceMap == nil {
		exp.sourceMap = make([]assembler.SourceLocation, len(lines))
		for i := range exp.sourceMap {
			exp.sourceMap[i] = assembler.SourceLocation{File: "", Line: i + 1}
		}
	}

	if exp.collectDefinitions() {
		exp.expandAll()
	}

	return exp.lines, exp.sourceMap, exp.diagnostics, exp.ok
}

func (exp *expander) errorAt(line int, msg, hint string) {
	exp.diagnostics = append(exp.diagnostics, assembler.Diagnostic{
		Level:   "ERROR",
		Line:    line,
		Message: encoding.Text(msg),
		Hint:    encoding.Text(hint),
	})
	exp.ok = false
}

func (exp *expander) warnAt(line int, msg, hint string) {
	exp.diagnostics = append(exp.diagnostics, assembler.Diagnostic{
		Level:   "WARNING",
		Line:    line,
		Message: encoding.Text(msg),
		Hint:    encoding.Text(hint),
	})
}

func (exp *expander) originLine(i int) int {
	if i >= 0 && i < len(exp.sourceMap) {
		return exp.sourceMap[i].Line
	}
	return 0
}

// Phase 1: linear scan capturing NAME MACRO [p1, p2, ...] definitions.
// Bodies run to the matching ENDM, respecting nested MACRO/REPT/IRP
// blocks; LOCAL lines feed the local list instead of the body. Captured
// definition lines are commented out so later phases skip them.
func (exp *expander) collectDefinitions() bool {
	for i := 0; i < len(exp.lines); {
		lp := splitLine(exp.lines[i])
		u1 := strings.ToUpper(lp.tok1)
		u2 := strings.ToUpper(lp.tok2)

		if u2 == "MACRO" {
			name := u1

			if isReservedWord(name) {
				exp.errorAt(
					exp.originLine(i),
					"Cannot define macro with reserved name '"+name+"'",
					"",
				)
				return false
			}

			if prev, exists := exp.macros[name]; exists {
				exp.warnAt(
					exp.originLine(i),
					fmt.Sprintf(
						"Macro '%s' redefined (previous at line %d)",
						name, prev.DefinedAtLine+1,
					),
					"",
				)
			}

			var params []string
			for _, p := range splitIdentList(lp.rest) {
				params = append(params, strings.ToUpper(p))
			}

			endm := findMatchingEndm(exp.lines, i+1)
			if endm < 0 {
				exp.errorAt(
					exp.originLine(i),
					"MACRO '"+name+"' without matching ENDM",
					"",
				)
				return false
			}

			def := Definition{
				Name:          name,
				Params:        params,
				DefinedAtLine: i,
			}

			for j := i + 1; j < endm; j++ {
				bodyLp := splitLine(exp.lines[j])
				if strings.ToUpper(bodyLp.tok1) == "LOCAL" {
					localArgs := bodyLp.tok2
					if bodyLp.rest != "" {
						localArgs += " " + bodyLp.rest
					}
					for _, ln := range splitIdentList(localArgs) {
						def.Locals = append(def.Locals, strings.ToUpper(ln))
					}
				} else {
					def.Body = append(def.Body, exp.lines[j])
				}
			}

			exp.macros[name] = def

			for j := i; j <= endm; j++ {
				exp.lines[j] = "; [MACRO DEF] " + exp.lines[j]
			}

			i = endm + 1
			continue
		}

		// REPT/IRP bodies expand in phase 2; here only their ENDM nesting
		// matters
		if u1 == "REPT" || u1 == "IRP" {
			endm := findMatchingEndm(exp.lines, i+1)
			if endm < 0 {
				exp.errorAt(
					exp.originLine(i), u1+" without matching ENDM", "",
				)
				return false
			}
			i = endm + 1
			continue
		}

		if u1 == "ENDM" {
			exp.errorAt(
				exp.originLine(i),
				"ENDM without matching MACRO, REPT, or IRP",
				"",
			)
			return false
		}

		i++
	}
	return true
}

// Phase 2: repeated sweeps, each handling the first REPT, IRP, or macro
// invocation it finds, then restarting. A sweep with no expansion means
// the text is stable.
func (exp *expander) expandAll() bool {
	for iteration := 0; iteration < maxExpansionIterations; iteration++ {
		expanded := false

		for i := 0; i < len(exp.lines); i++ {
			trimmed := strings.TrimSpace(exp.lines[i])
			if trimmed == "" || trimmed[0] == ';' {
				continue
			}

			lp := splitLine(exp.lines[i])
			u1 := strings.ToUpper(lp.tok1)
			u2 := strings.ToUpper(lp.tok2)

			if u1 == "REPT" {
				if !exp.expandRept(i, lp) {
					return false
				}
				expanded = true
				break
			}

			if u1 == "IRP" {
				if !exp.expandIrp(i, lp) {
					return false
				}
				expanded = true
				break
			}

			var name, argStr, labelPrefix string
			if _, found := exp.macros[u1]; found {
				name = u1
				argStr = lp.tok2
				if lp.rest != "" {
					if argStr != "" {
						argStr += " "
					}
					argStr += lp.rest
				}
			} else if strings.HasSuffix(lp.tok1, ":") {
				if _, found := exp.macros[u2]; found {
					name = u2
					labelPrefix = lp.tok1
					argStr = lp.rest
				}
			}

			if name != "" {
				exp.expandInvocation(i, name, argStr, labelPrefix)
				expanded = true
				break
			}
		}

		if !expanded {
			return true
		}
	}

	exp.errorAt(
		0,
		fmt.Sprintf(
			"Macro expansion iteration limit exceeded (%d)",
			maxExpansionIterations,
		),
		"Check for recursive or mutually-recursive macro invocations "+
			"(probable recursion)",
	)
	return false
}

// splice replaces lines[from..to] (inclusive) with the expansion, every
// expanded line inheriting the invocation site's source location
func (exp *expander) splice(from, to int, expansion []string) {
	loc := exp.sourceMap[from]

	newLines := make([]string, 0, len(exp.lines)+len(expansion))
	newMap := make([]assembler.SourceLocation, 0, cap(newLines))

	newLines = append(newLines, exp.lines[:from]...)
	newMap = append(newMap, exp.sourceMap[:from]...)
	for _, el := range expansion {
		newLines = append(newLines, el)
		newMap = append(newMap, loc)
	}
	newLines = append(newLines, exp.lines[to+1:]...)
	newMap = append(newMap, exp.sourceMap[to+1:]...)

	exp.lines = newLines
	exp.sourceMap = newMap
}

func (exp *expander) expandRept(i int, lp lineParts) bool {
	if lp.tok2 == "" {
		exp.errorAt(
			exp.originLine(i), "REPT directive missing repeat count",
			"Usage: REPT <count>",
		)
		return false
	}

	count, ok := parseCount(lp.tok2)
	if !ok || count < 0 {
		exp.errorAt(
			exp.originLine(i),
			"REPT count must be a non-negative numeric literal",
			"Got: '"+lp.tok2+"'",
		)
		return false
	}

	endm := findMatchingEndm(exp.lines, i+1)
	if endm < 0 {
		exp.errorAt(exp.originLine(i), "REPT without matching ENDM", "")
		return false
	}

	body := exp.lines[i+1 : endm]

	expansion := make([]string, 0, count*len(body)+2)
	expansion = append(expansion, "; >>> REPT "+lp.tok2)
	for r := 0; r < count; r++ {
		expansion = append(expansion, body...)
	}
	expansion = append(expansion, "; <<< END REPT")

	exp.splice(i, endm, expansion)
	return true
}

func (exp *expander) expandIrp(i int, lp lineParts) bool {
	const usage = "Usage: IRP param, <item1, item2, ...>"

	if lp.tok2 == "" {
		exp.errorAt(
			exp.originLine(i), "IRP directive missing parameter name", usage,
		)
		return false
	}

	param := strings.ToUpper(lp.tok2)
	hadComma := strings.HasSuffix(param, ",")
	param = strings.TrimSuffix(param, ",")

	rest := strings.TrimSpace(lp.rest)
	if !hadComma {
		if rest == "" || rest[0] != ',' {
			exp.errorAt(
				exp.originLine(i),
				"IRP directive missing comma after parameter name", usage,
			)
			return false
		}
		rest = strings.TrimSpace(rest[1:])
	}

	if rest == "" || rest[0] != '<' {
		exp.errorAt(
			exp.originLine(i),
			"IRP directive missing angle-bracket list", usage,
		)
		return false
	}

	closePos := -1
	depth := 0
	for k := 0; k < len(rest); k++ {
		if rest[k] == '<' {
			depth++
		} else if rest[k] == '>' {
			depth--
			if depth == 0 {
				closePos = k
				break
			}
		}
	}
	if closePos < 0 {
		exp.errorAt(
			exp.originLine(i), "IRP directive has unmatched '<'", usage,
		)
		return false
	}

	items := splitIdentList(rest[1:closePos])

	endm := findMatchingEndm(exp.lines, i+1)
	if endm < 0 {
		exp.errorAt(exp.originLine(i), "IRP without matching ENDM", "")
		return false
	}

	body := exp.lines[i+1 : endm]
	params := []string{param}

	expansion := make([]string, 0, len(items)*len(body)+2)
	expansion = append(expansion, "; >>> IRP "+lp.tok2)
	for _, item := range items {
		for _, bline := range body {
			expansion = append(
				expansion,
				substituteParams(bline, params, []string{item}, nil, nil),
			)
		}
	}
	expansion = append(expansion, "; <<< END IRP")

	exp.splice(i, endm, expansion)
	return true
}

func (exp *expander) expandInvocation(i int, name, argStr, labelPrefix string) {
	def := exp.macros[name]
	args := parseArguments(argStr)

	if len(args) < len(def.Params) {
		exp.warnAt(
			exp.originLine(i),
			fmt.Sprintf(
				"Macro '%s' invoked with %d args, expected %d",
				name, len(args), len(def.Params),
			),
			"Missing arguments will be empty strings",
		)
	} else if len(args) > len(def.Params) {
		exp.warnAt(
			exp.originLine(i),
			fmt.Sprintf(
				"Macro '%s' invoked with %d args, expected %d",
				name, len(args), len(def.Params),
			),
			"Extra arguments will be ignored",
		)
	}

	// Fresh ??HHHH identifier per LOCAL per invocation
	localRepls := make([]string, len(def.Locals))
	for l := range def.Locals {
		localRepls[l] = fmt.Sprintf("??%04X", exp.localCounter)
		exp.localCounter++
	}

	expansion := make([]string, 0, len(def.Body)+3)
	if labelPrefix != "" {
		expansion = append(expansion, labelPrefix)
	}
	expansion = append(expansion, "; >>> MACRO "+name)
	for _, bodyLine := range def.Body {
		expansion = append(
			expansion,
			substituteParams(bodyLine, def.Params, args, def.Locals, localRepls),
		)
	}
	expansion = append(expansion, "; <<< END MACRO "+name)

	exp.splice(i, i, expansion)
}
