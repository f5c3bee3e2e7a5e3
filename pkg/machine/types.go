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

package machine

import (
	"bufio"
	"bytes"

	"github.com/lassandro/agent86/pkg/encoding"
)

// Config for one emulation run. The zero value plus DEFAULT_MAX_CYCLES is
// a plain headless run.
type Config struct {
	MaxCycles  int
	StdinInput string

	// Interactive console: when Keyboard is set, character input reads
	// live bytes instead of StdinInput, and output characters echo to
	// Console as they happen
	Keyboard *bufio.Reader
	Console  *bufio.Writer

	// Viewport captured into the result (and snapshots)
	HasViewport bool
	VpCol       int
	VpRow       int
	VpWidth     int
	VpHeight    int
	VpAttrs     bool
}

// Machine owns all state of one in-flight run
type Machine struct {
	CPU  CPU
	Mem  Memory
	VRAM VRAMState
	IO   IOCapture

	// Decode source: a copy of memory taken after loading, so decoding is
	// stable even when the program writes over itself
	Code []byte
}

// IOCapture collects program console traffic
type IOCapture struct {
	StdoutBuf bytes.Buffer // capped at MAX_OUTPUT
	ExitCode  int

	stdinSource string
	stdinPos    int

	keyboard *bufio.Reader
	console  *bufio.Writer
}

// ReadChar returns the next input byte, or -1 at end of input
func (io *IOCapture) ReadChar() int {
	if io.keyboard != nil {
		b, err := io.keyboard.ReadByte()
		if err != nil {
			return -1
		}
		return int(b)
	}
	if io.stdinPos < len(io.stdinSource) {
		ch := io.stdinSource[io.stdinPos]
		io.stdinPos++
		return int(ch)
	}
	return -1
}

// EmitChar appends to the captured output (up to the cap) and echoes to
// the live console when one is attached. Returns false once the capture
// is full.
func (io *IOCapture) EmitChar(ch uint8) bool {
	if io.console != nil {
		io.console.WriteByte(ch)
		io.console.Flush()
	}
	if io.StdoutBuf.Len() < MAX_OUTPUT {
		io.StdoutBuf.WriteByte(ch)
		return true
	}
	return false
}

// Debugger hooks into the cycle loop. Step runs before decode at the
// current IP; Watch runs after execution with the previous register file.
type Debugger interface {
	Step(m *Machine, result *Result, cycle int)
	Watch(m *Machine, result *Result, prev [8]uint16, cycle int)
}

// RegisterFile marshals the eight general registers as an object in
// encoding order with hex string values
type RegisterFile [8]uint16

func (r RegisterFile) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, v := range r {
		if i > 0 {
			buf.WriteString(", ")
		}
		buf.WriteString(`"` + regNames16[i] + `": "` + encoding.HexImm16(v) + `"`)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

type SregFile [4]uint16

func (r SregFile) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, v := range r {
		if i > 0 {
			buf.WriteString(", ")
		}
		buf.WriteString(`"` + sregNames[i] + `": "` + encoding.HexImm16(v) + `"`)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Flag values emit as 0/1 numbers
type FlagBits struct {
	CF int `json:"CF"`
	PF int `json:"PF"`
	AF int `json:"AF"`
	ZF int `json:"ZF"`
	SF int `json:"SF"`
	OF int `json:"OF"`
	DF int `json:"DF"`
	IF int `json:"IF"`
}

type Cursor struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

type FinalState struct {
	Registers RegisterFile `json:"registers"`
	Sregs     SregFile     `json:"sregs"`
	IP        string       `json:"IP"`
	Flags     string       `json:"flags"`
	FlagBits  FlagBits     `json:"flagBits"`
	Cursor    Cursor       `json:"cursor"`
}

// Snapshot freezes the CPU at a breakpoint hit or watched-register change
type Snapshot struct {
	Addr      string          `json:"addr"`
	Cycle     int             `json:"cycle"`
	Reason    encoding.Text   `json:"reason"`
	NextInst  encoding.Text   `json:"nextInst"`
	HitCount  int             `json:"hitCount"`
	Registers RegisterFile    `json:"registers"`
	Flags     string          `json:"flags"`
	Cursor    Cursor          `json:"cursor"`
	Stack     []string        `json:"stack"`
	MemDump   string          `json:"memDump,omitempty"`
	Screen    []encoding.Text `json:"screen,omitempty"`
	ScreenAttrs []string      `json:"screenAttrs,omitempty"`

	// Numeric address kept for per-address hit coalescing
	AddrValue uint16 `json:"-"`
}

// One unimplemented operation the run stepped over
type SkippedRecord struct {
	Addr        string        `json:"addr"`
	Instruction encoding.Text `json:"instruction"`
	Reason      encoding.Text `json:"reason"`
	Count       int           `json:"count"`

	AddrValue uint16 `json:"-"`
}

type Result struct {
	Success        bool            `json:"success"`
	Halted         bool            `json:"halted"`
	HaltReason     encoding.Text   `json:"haltReason"`
	ExitCode       int             `json:"exitCode"`
	CyclesExecuted int             `json:"cyclesExecuted"`
	Fidelity       float64         `json:"fidelity"`
	Output         encoding.Text   `json:"output"`
	OutputHex      string          `json:"outputHex"`
	FinalState     FinalState      `json:"finalState"`
	Snapshots      []Snapshot      `json:"snapshots"`
	Skipped        []SkippedRecord `json:"skipped"`
	Diagnostics    []encoding.Text `json:"diagnostics"`
	Screen         []encoding.Text `json:"screen,omitempty"`
	ScreenAttrs    []string        `json:"screenAttrs,omitempty"`
	Screenshot     encoding.Text   `json:"screenshot,omitempty"`
}

// AddSkipped records an unimplemented operation, coalescing repeats of
// the same (address, instruction) pair into a hit count
func (result *Result) AddSkipped(addr uint16, instruction, reason string) {
	for i := range result.Skipped {
		s := &result.Skipped[i]
		if s.AddrValue == addr && string(s.Instruction) == instruction {
			s.Count++
			return
		}
	}
	result.Skipped = append(result.Skipped, SkippedRecord{
		Addr:        encoding.HexImm16(addr),
		Instruction: encoding.Text(instruction),
		Reason:      encoding.Text(reason),
		Count:       1,
		AddrValue:   addr,
	})
}

func (result *Result) AddDiagnostic(msg string) {
	result.Diagnostics = append(result.Diagnostics, encoding.Text(msg))
}
