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
	"os"

	"github.com/k0kubun/pp/v3"

	"github.com/lassandro/agent86/pkg/decoder"
	"github.com/lassandro/agent86/pkg/encoding"
	"github.com/lassandro/agent86/pkg/machine"
)

// One -trace line per cycle
type traceFrame struct {
	Cycle int
	IP    string
	Inst  string
	Regs  [8]uint16
}

// tracer dumps every instruction about to execute, then forwards to the
// wrapped debugger (if any)
type tracer struct {
	inner machine.Debugger
}

func (t *tracer) Step(m *machine.Machine, result *machine.Result, cycle int) {
	inst := decoder.Decode(m.Code, int(m.CPU.IP))
	if inst.Valid {
		pp.Fprintln(os.Stderr, traceFrame{
			Cycle: cycle,
			IP:    encoding.HexImm16(m.CPU.IP),
			Inst:  decoder.FormatInstruction(inst),
			Regs:  m.CPU.Regs,
		})
	}
	if t.inner != nil {
		t.inner.Step(m, result, cycle)
	}
}

func (t *tracer) Watch(
	m *machine.Machine, result *machine.Result, prev [8]uint16, cycle int,
) {
	if t.inner != nil {
		t.inner.Watch(m, result, prev, cycle)
	}
}
