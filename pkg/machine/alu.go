package machine

import (
	"github.com/toshihiroogino/i8086vm/pkg/cpu"
	"github.com/toshihiroogino/i8086vm/pkg/inst"
)

func (m *Machine) arith(op inst.Operation, fn func(left, right uint16, w cpu.Width) (uint16, cpu.Flags), writeBack bool) {
	left := m.readOperand(op, op.Dst)
	right := m.readOperand(op, op.Src)
	result, flags := fn(left, right, width(op))
	m.flags = flags
	if writeBack {
		m.writeOperand(op, op.Dst, result)
	}
}

func (m *Machine) arithCarry(op inst.Operation, fn func(left, right uint16, carryIn bool, w cpu.Width) (uint16, cpu.Flags), writeBack bool) {
	left := m.readOperand(op, op.Dst)
	right := m.readOperand(op, op.Src)
	result, flags := fn(left, right, m.flags.Carry, width(op))
	m.flags = flags
	if writeBack {
		m.writeOperand(op, op.Dst, result)
	}
}

func (m *Machine) incDec(op inst.Operation, delta int) {
	v := m.readOperand(op, op.Dst)
	result, flags := cpu.IncDec(v, delta, width(op), m.flags.Carry)
	m.flags = flags
	m.writeOperand(op, op.Dst, result)
}

func (m *Machine) logic(op inst.Operation, fn func(a, b uint16) uint16, writeBack bool) {
	left := m.readOperand(op, op.Dst)
	right := m.readOperand(op, op.Src)
	result := fn(left, right)
	m.flags = cpu.Logic(result, width(op))
	if writeBack {
		m.writeOperand(op, op.Dst, result)
	}
}

// mul implements MUL and IMUL: byte form multiplies AL by the operand
// into AX; word form multiplies AX by the operand into DX:AX. Carry and
// overflow are set together, true iff the product does not fit the lower
// half (MUL: the upper half is nonzero; IMUL: the product is outside the
// lower half's signed range); sign and zero are left as they were, since
// real 8086 hardware leaves them undefined here.
func (m *Machine) mul(op inst.Operation, signed bool) {
	src := m.readOperand(op, op.Src)
	var overflow bool
	if width(op) == cpu.Byte {
		al := m.regs.Byte(cpu.AL)
		var product uint16
		if signed {
			p := int16(int8(al)) * int16(int8(uint8(src)))
			product = uint16(p)
			overflow = p < -128 || p > 127
		} else {
			p := uint16(al) * uint16(uint8(src))
			product = p
			overflow = p>>8 != 0
		}
		m.regs.SetWord(cpu.AX, product)
	} else {
		ax := m.regs.Word(cpu.AX)
		var lo, hi uint16
		if signed {
			p := int32(int16(ax)) * int32(int16(src))
			lo, hi = uint16(p), uint16(uint32(p)>>16)
			overflow = p < -32768 || p > 32767
		} else {
			p := uint32(ax) * uint32(src)
			lo, hi = uint16(p), uint16(p>>16)
			overflow = hi != 0
		}
		m.regs.SetWord(cpu.AX, lo)
		m.regs.SetWord(cpu.DX, hi)
	}
	m.flags.Carry = overflow
	m.flags.Overflow = overflow
}

// div implements DIV and IDIV. A zero divisor or a quotient that does not
// fit in the destination is a fatal trap, matching real 8086 divide-error
// behaviour; the spec defines no alternative. Flags are left untouched,
// per spec.
func (m *Machine) div(op inst.Operation, signed bool) {
	divisor := m.readOperand(op, op.Src)
	if width(op) == cpu.Byte {
		if uint8(divisor) == 0 {
			fault(m.regs.IP, "divide by zero")
		}
		ax := m.regs.Word(cpu.AX)
		if signed {
			d := int16(int8(uint8(divisor)))
			q, r := int16(ax)/d, int16(ax)%d
			if q < -128 || q > 127 {
				fault(m.regs.IP, "divide overflow")
			}
			m.regs.SetByte(cpu.AL, uint8(int8(q)))
			m.regs.SetByte(cpu.AH, uint8(int8(r)))
		} else {
			d := uint16(uint8(divisor))
			q, r := ax/d, ax%d
			if q > 0xFF {
				fault(m.regs.IP, "divide overflow")
			}
			m.regs.SetByte(cpu.AL, uint8(q))
			m.regs.SetByte(cpu.AH, uint8(r))
		}
		return
	}
	if divisor == 0 {
		fault(m.regs.IP, "divide by zero")
	}
	dx, ax := m.regs.Word(cpu.DX), m.regs.Word(cpu.AX)
	if signed {
		dividend := int32(uint32(dx)<<16 | uint32(ax))
		d := int32(int16(divisor))
		q, r := dividend/d, dividend%d
		if q < -32768 || q > 32767 {
			fault(m.regs.IP, "divide overflow")
		}
		m.regs.SetWord(cpu.AX, uint16(int16(q)))
		m.regs.SetWord(cpu.DX, uint16(int16(r)))
		return
	}
	dividend := uint32(dx)<<16 | uint32(ax)
	d := uint32(divisor)
	q, r := dividend/d, dividend%d
	if q > 0xFFFF {
		fault(m.regs.IP, "divide overflow")
	}
	m.regs.SetWord(cpu.AX, uint16(q))
	m.regs.SetWord(cpu.DX, uint16(r))
}
