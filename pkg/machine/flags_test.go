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
	"testing"

	"github.com/lassandro/agent86/pkg/decoder"
)

// Reference 8086 flag model for 8-bit operations, computed independently
// of the ALU under test
type refFlags struct {
	cf, zf, sf, pf, of, af bool
}

func refParity(v uint8) bool {
	bits := 0
	for i := 0; i < 8; i++ {
		if v>>i&1 != 0 {
			bits++
		}
	}
	return bits%2 == 0
}

func refAdd8(a, b uint8) refFlags {
	sum := uint16(a) + uint16(b)
	r := uint8(sum)
	return refFlags{
		cf: sum > 0xFF,
		zf: r == 0,
		sf: r&0x80 != 0,
		pf: refParity(r),
		of: (a^r)&(b^r)&0x80 != 0,
		af: (a^b^r)&0x10 != 0,
	}
}

func refSub8(a, b uint8) refFlags {
	r := uint8(a - b)
	return refFlags{
		cf: a < b,
		zf: r == 0,
		sf: r&0x80 != 0,
		pf: refParity(r),
		of: (a^b)&(a^r)&0x80 != 0,
		af: (a^b^r)&0x10 != 0,
	}
}

func refLogic8(r uint8) refFlags {
	return refFlags{
		cf: false,
		zf: r == 0,
		sf: r&0x80 != 0,
		pf: refParity(r),
		of: false,
		af: false,
	}
}

func aluInst(mnemonic string, imm uint8) decoder.DecodedInst {
	return decoder.DecodedInst{
		Valid:       true,
		Mnemonic:    mnemonic,
		Wide:        false,
		SegOverride: -1,
		JumpTarget:  -1,
		Op1: decoder.DecodedOperand{
			Kind: decoder.KIND_REG8, Reg: 0, MemRM: -1, Size: 8,
		},
		Op2: decoder.DecodedOperand{
			Kind: decoder.KIND_IMM8, MemRM: -1, Disp: int(imm), Size: 8,
		},
	}
}

func checkFlags(t *testing.T, op string, a, b uint8, cpu *CPU, want refFlags) {
	t.Helper()
	check := func(name string, bit uint, wantSet bool) {
		if cpu.GetFlag(bit) != wantSet {
			t.Errorf(
				"%s %#02x, %#02x: %s mismatch\nwant:%v\nhave:%v",
				op, a, b, name, wantSet, cpu.GetFlag(bit),
			)
		}
	}
	check("CF", FLAG_CF, want.cf)
	check("ZF", FLAG_ZF, want.zf)
	check("SF", FLAG_SF, want.sf)
	check("PF", FLAG_PF, want.pf)
	check("OF", FLAG_OF, want.of)
	check("AF", FLAG_AF, want.af)
}

// Every 8-bit (a, b) pair through ADD, SUB, AND, OR, XOR must match the
// reference flag model
func TestFlagCorrectnessExhaustive(t *testing.T) {
	var result Result

	// One machine reused throughout; register-only ALU traffic never
	// touches memory
	m := &Machine{VRAM: NewVRAMState()}

	for a := 0; a < 256; a++ {
		for b := 0; b < 256; b++ {
			av := uint8(a)
			bv := uint8(b)

			run := func(op string) *Machine {
				m.CPU.Flags = 0
				m.CPU.SetReg8(0, av)
				m.execute(aluInst(op, bv), &result)
				return m
			}

			m := run("ADD")
			checkFlags(t, "ADD", av, bv, &m.CPU, refAdd8(av, bv))
			if have := m.CPU.GetReg8(0); have != av+bv {
				t.Fatalf(
					"ADD result mismatch\nwant:%#02x\nhave:%#02x",
					av+bv, have,
				)
			}

			m = run("SUB")
			checkFlags(t, "SUB", av, bv, &m.CPU, refSub8(av, bv))

			m = run("AND")
			checkFlags(t, "AND", av, bv, &m.CPU, refLogic8(av&bv))

			m = run("OR")
			checkFlags(t, "OR", av, bv, &m.CPU, refLogic8(av|bv))

			m = run("XOR")
			checkFlags(t, "XOR", av, bv, &m.CPU, refLogic8(av^bv))

			if t.Failed() {
				t.FailNow()
			}
		}
	}
}

func TestIncDecPreserveCarry(t *testing.T) {
	var result Result

	inst := decoder.DecodedInst{
		Valid:       true,
		Mnemonic:    "INC",
		Wide:        true,
		SegOverride: -1,
		JumpTarget:  -1,
		Op1: decoder.DecodedOperand{
			Kind: decoder.KIND_REG16, Reg: REG_AX, MemRM: -1, Size: 16,
		},
	}

	m := &Machine{VRAM: NewVRAMState()}
	m.CPU.SetFlag(FLAG_CF, true)
	m.CPU.Regs[REG_AX] = 0xFFFF
	m.execute(inst, &result)

	if m.CPU.Regs[REG_AX] != 0 {
		t.Errorf("INC wrap mismatch\nwant:0\nhave:%#04x", m.CPU.Regs[REG_AX])
	}
	if !m.CPU.GetFlag(FLAG_CF) {
		t.Error("INC clobbered CF")
	}
	if !m.CPU.GetFlag(FLAG_ZF) {
		t.Error("INC did not set ZF on wrap to zero")
	}

	inst.Mnemonic = "DEC"
	m.CPU.SetFlag(FLAG_CF, false)
	m.CPU.Regs[REG_AX] = 0
	m.execute(inst, &result)

	if m.CPU.Regs[REG_AX] != 0xFFFF {
		t.Errorf("DEC wrap mismatch\nwant:0xFFFF\nhave:%#04x", m.CPU.Regs[REG_AX])
	}
	if m.CPU.GetFlag(FLAG_CF) {
		t.Error("DEC clobbered CF")
	}
}

func TestNegFlags(t *testing.T) {
	var result Result

	inst := decoder.DecodedInst{
		Valid:       true,
		Mnemonic:    "NEG",
		SegOverride: -1,
		JumpTarget:  -1,
		Op1: decoder.DecodedOperand{
			Kind: decoder.KIND_REG8, Reg: 0, MemRM: -1, Size: 8,
		},
	}

	m := &Machine{VRAM: NewVRAMState()}
	m.CPU.SetReg8(0, 5)
	m.execute(inst, &result)

	if have := m.CPU.GetReg8(0); have != 0xFB {
		t.Errorf("NEG result mismatch\nwant:0xFB\nhave:%#02x", have)
	}
	if !m.CPU.GetFlag(FLAG_CF) {
		t.Error("NEG of non-zero must set CF")
	}

	m.CPU.SetReg8(0, 0)
	m.execute(inst, &result)
	if m.CPU.GetFlag(FLAG_CF) {
		t.Error("NEG of zero must clear CF")
	}
}

func TestShiftFlags(t *testing.T) {
	var result Result

	shift := func(mnemonic string, val uint16, count uint8, wide bool) *Machine {
		size := 8
		kind := decoder.KIND_REG8
		if wide {
			size = 16
			kind = decoder.KIND_REG16
		}
		inst := decoder.DecodedInst{
			Valid:       true,
			Mnemonic:    mnemonic,
			Wide:        wide,
			SegOverride: -1,
			JumpTarget:  -1,
			Op1: decoder.DecodedOperand{
				Kind: kind, Reg: 0, MemRM: -1, Size: size,
			},
			Op2: decoder.DecodedOperand{
				Kind: decoder.KIND_IMM8, MemRM: -1, Disp: int(count), Size: 8,
			},
		}
		m := &Machine{VRAM: NewVRAMState()}
		if wide {
			m.CPU.Regs[REG_AX] = val
		} else {
			m.CPU.SetReg8(0, uint8(val))
		}
		m.execute(inst, &result)
		return m
	}

	// SHL 0x81 by 1: CF takes the shifted-out MSB
	m := shift("SHL", 0x81, 1, false)
	if have := m.CPU.GetReg8(0); have != 0x02 {
		t.Errorf("SHL result mismatch\nwant:0x02\nhave:%#02x", have)
	}
	if !m.CPU.GetFlag(FLAG_CF) {
		t.Error("SHL did not capture shifted-out bit in CF")
	}

	// SHR 0x01 by 1: result zero, CF set
	m = shift("SHR", 0x01, 1, false)
	if have := m.CPU.GetReg8(0); have != 0x00 {
		t.Errorf("SHR result mismatch\nwant:0x00\nhave:%#02x", have)
	}
	if !m.CPU.GetFlag(FLAG_CF) || !m.CPU.GetFlag(FLAG_ZF) {
		t.Error("SHR flags mismatch for 0x01 >> 1")
	}

	// SAR keeps the sign bit
	m = shift("SAR", 0x80, 1, false)
	if have := m.CPU.GetReg8(0); have != 0xC0 {
		t.Errorf("SAR result mismatch\nwant:0xC0\nhave:%#02x", have)
	}

	// ROL wraps the MSB into bit 0
	m = shift("ROL", 0x8000, 1, true)
	if m.CPU.Regs[REG_AX] != 0x0001 {
		t.Errorf(
			"ROL result mismatch\nwant:0x0001\nhave:%#04x",
			m.CPU.Regs[REG_AX],
		)
	}
	if !m.CPU.GetFlag(FLAG_CF) {
		t.Error("ROL did not set CF from rotated bit")
	}

	// Count of zero leaves flags alone
	m = &Machine{VRAM: NewVRAMState()}
	m.CPU.SetFlag(FLAG_CF, true)
	m.CPU.SetReg8(0, 0x55)
	inst := decoder.DecodedInst{
		Valid:       true,
		Mnemonic:    "SHL",
		SegOverride: -1,
		JumpTarget:  -1,
		Op1: decoder.DecodedOperand{
			Kind: decoder.KIND_REG8, Reg: 0, MemRM: -1, Size: 8,
		},
		Op2: decoder.DecodedOperand{
			Kind: decoder.KIND_IMM8, MemRM: -1, Disp: 0, Size: 8,
		},
	}
	m.execute(inst, &result)
	if !m.CPU.GetFlag(FLAG_CF) || m.CPU.GetReg8(0) != 0x55 {
		t.Error("Shift by zero must be a no-op")
	}
}

func TestSegmentResolution(t *testing.T) {
	m := &Machine{VRAM: NewVRAMState()}
	m.CPU.Sregs[SREG_DS] = 0x1000
	m.CPU.Sregs[SREG_SS] = 0x2000
	m.CPU.Sregs[SREG_ES] = 0x3000

	bpOp := decoder.DecodedOperand{Kind: decoder.KIND_MEM, MemRM: 6}
	bxOp := decoder.DecodedOperand{Kind: decoder.KIND_MEM, MemRM: 7}

	if seg := m.resolveSegment(bpOp, -1); seg != 0x2000 {
		t.Errorf("BP base segment\nwant:SS (0x2000)\nhave:%#04x", seg)
	}

	if seg := m.resolveSegment(bxOp, -1); seg != 0x1000 {
		t.Errorf("BX base segment\nwant:DS (0x1000)\nhave:%#04x", seg)
	}

	if seg := m.resolveSegment(bpOp, 0x26); seg != 0x3000 {
		t.Errorf("Override segment\nwant:ES (0x3000)\nhave:%#04x", seg)
	}
}
