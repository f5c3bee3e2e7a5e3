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
	"fmt"
	"strings"

	"github.com/lassandro/agent86/pkg/encoding"
)

func editDistance(a, b string) int {
	a = toUpper(a)
	b = toUpper(b)
	m, n := len(a), len(b)

	dp := make([][]int, m+1)
	for i := range dp {
		dp[i] = make([]int, n+1)
		dp[i][0] = i
	}
	for j := 0; j <= n; j++ {
		dp[0][j] = j
	}

	for i := 1; i <= m; i++ {
		for j := 1; j <= n; j++ {
			if a[i-1] == b[j-1] {
				dp[i][j] = dp[i-1][j-1]
			} else {
				dp[i][j] = 1 + min(dp[i-1][j], min(dp[i][j-1], dp[i-1][j-1]))
			}
		}
	}
	return dp[m][n]
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// Closest defined symbol within edit distance 2, or "" when nothing is near
func (ctx *Context) findClosestSymbol(target string) string {
	best := ""
	bestDist := 3
	for name := range ctx.SymbolTable {
		d := editDistance(name, target)
		if d > 0 && d < bestDist {
			bestDist = d
			best = name
		}
	}
	return best
}

func isExprOperand(t Token) bool {
	if t.Type != TOKEN_IDENT {
		return false
	}
	c := t.Value[0]
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') ||
		c == '.' || c == '_' || c == '?' || c == '$'
}

// parseExpression is a precedence climber over the token stream. Unary +/-
// bind tightest, then * and /, then + and -. Unknown symbols evaluate to 0:
// silently in pass 1 (forward references), with a hinted error in pass 2.
// Any symbol lookup sets encounteredSymbol so memory operands can pin their
// displacement width across passes.
func (ctx *Context) parseExpression(tokens []Token, idx *int, minPrec int) int {
	if *idx >= len(tokens) {
		return 0
	}

	var lhs int

	switch t := tokens[*idx]; {
	case t.Type == TOKEN_PLUS || t.Type == TOKEN_MINUS:
		opType := t.Type
		*idx++
		val := ctx.parseExpression(tokens, idx, 100)
		if opType == TOKEN_MINUS {
			lhs = -val
		} else {
			lhs = val
		}

	case t.Type == TOKEN_LPAREN:
		*idx++
		lhs = ctx.parseExpression(tokens, idx, 0)
		if *idx < len(tokens) && tokens[*idx].Type == TOKEN_RPAREN {
			*idx++
		} else {
			ctx.logError(
				t.Line, "Expected ')'",
				"Check for unmatched parentheses in your expression.",
			)
		}

	case t.Type == TOKEN_NUMBER:
		val, err := encoding.ParseNumber(t.Value)
		if err != nil {
			ctx.logError(
				t.Line, "Invalid numeric literal: "+t.Value, upperFirst(err.Error())+".",
			)
		}
		lhs = val
		*idx++

	case isExprOperand(t):
		lhs = ctx.evalSymbol(t)
		*idx++

	case t.Type == TOKEN_STRING:
		if len(t.Value) > 0 {
			lhs = int(t.Value[0])
		}
		*idx++

	default:
		if !ctx.IsPass1 {
			ctx.logError(
				t.Line, "Unexpected token in expression: "+t.Value,
				ctx.unexpectedTokenHint(t.Value),
			)
		}
		*idx++
		return 0
	}

	for *idx < len(tokens) {
		opType := tokens[*idx].Type
		prec := -1
		switch opType {
		case TOKEN_PLUS, TOKEN_MINUS:
			prec = 1
		case TOKEN_STAR, TOKEN_SLASH:
			prec = 2
		}
		if prec < 0 || prec < minPrec {
			break
		}

		opLine := tokens[*idx].Line
		*idx++
		rhs := ctx.parseExpression(tokens, idx, prec+1)

		switch opType {
		case TOKEN_PLUS:
			lhs += rhs
		case TOKEN_MINUS:
			lhs -= rhs
		case TOKEN_STAR:
			lhs *= rhs
		case TOKEN_SLASH:
			if rhs != 0 {
				lhs /= rhs
			} else {
				ctx.logError(
					opLine, "Division by zero",
					"Expression contains division by zero. "+
						"Check the divisor value or EQU constant.",
				)
			}
		}
	}

	return lhs
}

func (ctx *Context) evalSymbol(t Token) int {
	if t.Value == "$" {
		return ctx.CurrentAddress
	}

	label := t.Value
	if label[0] == '.' && ctx.currentProcedureName != "" {
		label = ctx.currentProcedureName + label
	}
	uml := toUpper(label)

	ctx.encounteredSymbol = true

	if info, found := ctx.SymbolTable[uml]; found {
		return info.Value
	}

	if !ctx.IsPass1 {
		ctx.logError(t.Line, "Undefined label "+uml, ctx.undefinedLabelHint(uml))
	}
	return 0
}

// Hints for an undefined label, most specific first: hex literal missing
// its leading zero, register-as-value, directive-as-value, local label
// outside a PROC, then a fuzzy match against the symbol table.
func (ctx *Context) undefinedLabelHint(uml string) string {
	if len(uml) > 1 && uml[len(uml)-1] == 'H' {
		isHex := true
		for i := 0; i < len(uml)-1; i++ {
			c := uml[i]
			if !((c >= '0' && c <= '9') || (c >= 'A' && c <= 'F')) {
				isHex = false
				break
			}
		}
		if isHex {
			return "Did you mean 0" + uml + "? " +
				"Hex literals starting with A-F must be prefixed with 0."
		}
	}

	if _, _, ok := isRegister(uml); ok {
		return "'" + uml + "' is a register, not a label. " +
			"Registers cannot be used in expressions directly."
	}

	switch uml {
	case "DB", "DW", "DD", "EQU", "PROC", "ENDP", "ORG":
		return "'" + uml + "' is a directive and cannot be used as a value " +
			"in an expression."
	}

	if uml[0] == '.' && ctx.currentProcedureName == "" {
		return "Local label '" + uml + "' used outside any PROC. " +
			"Wrap your code in PROC/ENDP, or use a global label."
	}

	if closest := ctx.findClosestSymbol(uml); closest != "" {
		hint := "Did you mean '" + closest + "'?"
		if info, found := ctx.SymbolTable[closest]; found {
			hint += fmt.Sprintf(" (defined at line %d)", info.DefinedLine)
		}
		return hint
	}

	return ""
}

func (ctx *Context) unexpectedTokenHint(tok string) string {
	upper := toUpper(tok)

	if _, _, ok := isRegister(upper); ok {
		return "'" + tok + "' is a register and cannot appear in an " +
			"arithmetic expression. If you meant a memory operand, use [" +
			tok + "]. If you meant the value in the register, this must be " +
			"computed at runtime, not assembly time."
	}

	switch upper {
	case "DB", "DW", "DD", "EQU", "PROC", "ENDP", "ORG":
		return "'" + tok + "' is a directive and cannot be used as a value " +
			"in an expression."
	case "[", "]":
		return "Brackets indicate a memory operand and cannot appear " +
			"inside an arithmetic expression."
	}

	return "'" + tok + "' is not a recognized number, label, or operator."
}

func upperFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
