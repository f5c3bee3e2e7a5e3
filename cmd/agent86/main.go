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
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/lassandro/agent86/pkg/assembler"
	"github.com/lassandro/agent86/pkg/debugger"
	"github.com/lassandro/agent86/pkg/disasm"
	"github.com/lassandro/agent86/pkg/machine"
	"github.com/lassandro/agent86/pkg/macro"
	"github.com/lassandro/agent86/pkg/screen"
)

var agentvar bool
var disasmvar bool
var runvar bool
var runsourcevar bool
var explainvar string
var dumpisavar bool

var maxcyclesvar int
var breakpointsvar string
var watchregsvar string
var inputvar string
var memdumpvar string
var screenvar bool
var viewportvar string
var attrsvar bool
var screenshotvar string
var fontvar string
var outfilevar string
var symvar bool
var ttyvar bool
var tracevar bool
var interactivevar bool
var helpvar bool

const usage = "agent86 [mode flags] file"

func init() {
	exe, _ := os.Executable()
	log.SetFlags(0)
	log.SetPrefix(fmt.Sprintf("%s: ", filepath.Base(exe)))
	log.SetOutput(os.Stderr)
}

func init() {
	flag.BoolVar(&helpvar, "help", false, "Displays command usage")
	flag.BoolVar(
		&agentvar, "agent", false,
		"Emits structured JSON instead of human-readable text",
	)
	flag.BoolVar(
		&disasmvar, "disassemble", false,
		"Disassembles a binary file and emits JSON",
	)
	flag.BoolVar(
		&runvar, "run", false,
		"Emulates a pre-built .COM binary and emits JSON",
	)
	flag.BoolVar(
		&runsourcevar, "run-source", false,
		"Assembles a source file, emulates it, and emits combined JSON",
	)
	flag.StringVar(
		&explainvar, "explain", "",
		"Prints the ISA database entry for a mnemonic as JSON",
	)
	flag.BoolVar(
		&dumpisavar, "dump-isa", false,
		"Prints the full ISA database as JSON",
	)

	flag.IntVar(
		&maxcyclesvar, "max-cycles", machine.DEFAULT_MAX_CYCLES,
		"Emulation cycle cap",
	)
	flag.StringVar(
		&breakpointsvar, "breakpoints", "",
		"Comma-separated hex offsets that capture snapshots when reached",
	)
	flag.StringVar(
		&watchregsvar, "watch-regs", "",
		"Comma-separated register names that capture snapshots on change",
	)
	flag.StringVar(
		&inputvar, "input", "",
		"String served to the program as console input",
	)
	flag.StringVar(
		&memdumpvar, "mem-dump", "",
		"HEXADDR,LEN memory window included in each snapshot",
	)
	flag.BoolVar(
		&screenvar, "screen", false,
		"Captures the full 80x50 screen into the result",
	)
	flag.StringVar(
		&viewportvar, "viewport", "",
		"col,row,width,height screen window captured into the result",
	)
	flag.BoolVar(
		&attrsvar, "attrs", false,
		"Includes attribute bytes in screen captures",
	)
	flag.StringVar(
		&screenshotvar, "screenshot", "",
		"Writes the final screen as a BMP to this path",
	)
	flag.StringVar(
		&fontvar, "font", "8x16",
		"Screenshot font: 8x8 or 8x16",
	)
	flag.StringVar(
		&outfilevar, "output-file", "",
		"Writes the JSON document to this path instead of stdout",
	)
	flag.BoolVar(
		&symvar, "sym", false,
		"Writes the symbol table as a gob sidecar next to the output",
	)
	flag.BoolVar(
		&ttyvar, "tty", false,
		"Shows the final screen in the terminal after emulation",
	)
	flag.BoolVar(
		&tracevar, "trace", false,
		"Dumps every executed instruction to stderr",
	)
	flag.BoolVar(
		&interactivevar, "interactive", false,
		"Reads console input live from the terminal in raw mode",
	)
	flag.Parse()
}

func agent86() int {
	if helpvar {
		fmt.Println(usage)
		flag.PrintDefaults()
		return 0
	}

	out, cleanup, err := openOutput()
	if err != nil {
		log.Println(err)
		return 1
	}
	defer cleanup()

	if explainvar != "" {
		emitExplain(out, explainvar)
		return 0
	}

	if dumpisavar {
		emitDumpISA(out)
		return 0
	}

	args := flag.Args()
	var filename string
	if len(args) > 0 {
		filename = args[0]
	}

	switch {
	case disasmvar:
		return disassembleMode(out, filename)
	case runvar:
		return runMode(out, filename)
	case runsourcevar:
		return runSourceMode(out, filename)
	default:
		return assembleMode(out, filename)
	}
}

func main() {
	os.Exit(agent86())
}

func openOutput() (*bufio.Writer, func(), error) {
	if outfilevar == "" {
		w := bufio.NewWriter(os.Stdout)
		return w, func() { w.Flush() }, nil
	}
	file, err := os.Create(outfilevar)
	if err != nil {
		return nil, nil, fmt.Errorf("cannot open output file: %w", err)
	}
	w := bufio.NewWriter(file)
	return w, func() {
		w.Flush()
		file.Close()
	}, nil
}

// buildConfig translates the emulator flags into a machine config and,
// when any observation flag is set, a debugger
func buildConfig() (machine.Config, *debugger.Debugger, error) {
	config := machine.Config{
		MaxCycles:  maxcyclesvar,
		StdinInput: inputvar,
	}
	dbg := debugger.New()

	if breakpointsvar != "" {
		for _, tok := range strings.Split(breakpointsvar, ",") {
			tok = strings.TrimSpace(tok)
			if tok == "" {
				continue
			}
			addr, err := strconv.ParseUint(tok, 16, 16)
			if err != nil {
				return config, nil, fmt.Errorf(
					"invalid breakpoint %q: expected a hex offset", tok,
				)
			}
			dbg.Breakpoints[uint16(addr)] = true
		}
	}

	if watchregsvar != "" {
		for _, tok := range strings.Split(watchregsvar, ",") {
			name := strings.ToUpper(strings.TrimSpace(tok))
			if name == "" {
				continue
			}
			idx, ok := machine.RegNameIndex(name)
			if !ok {
				return config, nil, fmt.Errorf(
					"invalid watch register %q: expected one of "+
						"AX,CX,DX,BX,SP,BP,SI,DI", tok,
				)
			}
			dbg.WatchRegs[idx] = true
		}
	}

	if memdumpvar != "" {
		addrStr, lenStr, found := strings.Cut(memdumpvar, ",")
		if !found {
			return config, nil, fmt.Errorf(
				"invalid -mem-dump format, use HEXADDR,LEN",
			)
		}
		addr, err := strconv.ParseUint(strings.TrimSpace(addrStr), 16, 16)
		if err != nil {
			return config, nil, fmt.Errorf("invalid -mem-dump address %q", addrStr)
		}
		length, err := strconv.Atoi(strings.TrimSpace(lenStr))
		if err != nil || length < 0 {
			return config, nil, fmt.Errorf("invalid -mem-dump length %q", lenStr)
		}
		dbg.MemDumpAddr = uint16(addr)
		dbg.MemDumpLen = length
	}

	if screenvar {
		config.HasViewport = true
		config.VpCol = 0
		config.VpRow = 0
		config.VpWidth = machine.VRAM_COLS
		config.VpHeight = machine.VRAM_ROWS
	}

	if viewportvar != "" {
		var c, r, w, h int
		if n, err := fmt.Sscanf(viewportvar, "%d,%d,%d,%d", &c, &r, &w, &h); n != 4 || err != nil {
			return config, nil, fmt.Errorf(
				"invalid -viewport format, use col,row,width,height",
			)
		}
		config.HasViewport = true
		config.VpCol = c
		config.VpRow = r
		config.VpWidth = w
		config.VpHeight = h
	}

	config.VpAttrs = attrsvar

	if fontvar != "8x8" && fontvar != "8x16" {
		return config, nil, fmt.Errorf("unknown font %q, use 8x8 or 8x16", fontvar)
	}

	dbg.HasViewport = config.HasViewport
	dbg.VpCol = config.VpCol
	dbg.VpRow = config.VpRow
	dbg.VpWidth = config.VpWidth
	dbg.VpHeight = config.VpHeight
	dbg.VpAttrs = config.VpAttrs

	if !dbg.Active() && dbg.MemDumpLen == 0 {
		return config, nil, nil
	}
	return config, dbg, nil
}

// emulate runs a binary with the configured observation, then applies the
// post-run surfaces: screenshot, terminal view
func emulate(binary []byte) (machine.Result, error) {
	config, dbg, err := buildConfig()
	if err != nil {
		return machine.Result{}, err
	}

	if interactivevar {
		restore, err := enterRawTerm()
		if err != nil {
			return machine.Result{}, err
		}
		defer restore()
		config.Keyboard = bufio.NewReader(os.Stdin)
		config.Console = bufio.NewWriter(os.Stdout)
	}

	var machineDbg machine.Debugger
	if dbg != nil {
		machineDbg = dbg
	}
	if tracevar {
		machineDbg = &tracer{inner: machineDbg}
	}

	result, m := machine.Run(binary, config, machineDbg)

	if screenshotvar != "" {
		if err := screen.WriteBMP(
			&m.Mem.VRAM, screenshotvar, fontvar == "8x8",
		); err != nil {
			result.AddDiagnostic("Failed to write screenshot: " + screenshotvar)
		} else {
			result.Screenshot = encodingText(screenshotvar)
		}
	}

	if ttyvar {
		if err := showScreen(&m.Mem.VRAM, m.VRAM.CursorRow, m.VRAM.CursorCol); err != nil {
			log.Println(err)
		}
	}

	return result, nil
}

func runMode(out *bufio.Writer, filename string) int {
	if filename == "" {
		emitError(out, "No input file for emulation")
		return 1
	}

	binary, err := os.ReadFile(filename)
	if err != nil {
		emitError(out, "Cannot open file: "+filename)
		return 1
	}

	result, err := emulate(binary)
	if err != nil {
		log.Println(err)
		return 1
	}

	emitJSON(out, &result)
	return 0
}

func disassembleMode(out *bufio.Writer, filename string) int {
	if filename == "" {
		emitError(out, "No input file for disassembly")
		return 1
	}

	code, err := os.ReadFile(filename)
	if err != nil {
		emitError(out, "Cannot open file: "+filename)
		return 1
	}

	labels := loadSymbolLabels(filename)
	result := disasm.Disassemble(code, labels)

	emitDisassembly(out, filename, len(code), result)
	return 0
}

// assemble runs the whole front half: include expansion, macro expansion,
// both assembler passes. ok=false means a fatal preprocessor error whose
// diagnostics are already in the context.
func assemble(filename string) (*assembler.Context, bool) {
	ctx := assembler.NewContext()

	lines, sourceMap, expandDiags, ok := assembler.ExpandIncludes(filename)
	if !ok {
		ctx.Diagnostics = expandDiags
		ctx.GlobalError = true
		return ctx, false
	}

	lines, sourceMap, macroDiags, ok := macro.Expand(lines, sourceMap)
	seed := append(expandDiags, macroDiags...)
	if !ok {
		ctx.Diagnostics = seed
		ctx.GlobalError = true
		return ctx, false
	}

	ctx.Assemble(lines, sourceMap, seed)
	return ctx, true
}

func runSourceMode(out *bufio.Writer, filename string) int {
	if filename == "" {
		emitError(out, "No input file")
		return 1
	}

	ctx, ok := assemble(filename)
	if !ok || ctx.GlobalError {
		emitCombined(out, ctx, nil)
		return 0
	}

	result, err := emulate(ctx.MachineCode)
	if err != nil {
		log.Println(err)
		return 1
	}

	emitCombined(out, ctx, &result)
	return 0
}

func assembleMode(out *bufio.Writer, filename string) int {
	if filename == "" {
		if agentvar {
			emitError(out, "No input file")
			return 0
		}
		log.Println(usage)
		return 1
	}

	outfile := "output.com"
	if strings.HasSuffix(filename, ".asm") {
		outfile = strings.TrimSuffix(filename, ".asm") + ".com"
	}

	ctx, _ := assemble(filename)

	if ctx.GlobalError {
		if agentvar {
			emitAssembly(out, ctx)
			return 0
		}
		for _, d := range ctx.Diagnostics {
			log.Printf("%s line %d: %s", d.Level, d.Line, d.Message)
		}
		log.Println("Assembly failed with errors.")
		os.Remove(outfile)
		return 1
	}

	if err := os.WriteFile(outfile, ctx.MachineCode, 0666); err != nil {
		log.Println("Error writing output file")
		log.Println(err)
		return 1
	}

	if symvar {
		if err := writeSymbolSidecar(outfile, ctx); err != nil {
			log.Println("Error writing symbol table")
			log.Println(err)
			return 1
		}
	}

	if agentvar {
		emitAssembly(out, ctx)
		return 0
	}

	fmt.Printf("Successfully assembled %s -> %s\n", filename, outfile)
	fmt.Printf("Output size: %d bytes\n", len(ctx.MachineCode))
	return 0
}
