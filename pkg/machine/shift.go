package machine

import (
	"github.com/toshihiroogino/i8086vm/pkg/cpu"
	"github.com/toshihiroogino/i8086vm/pkg/inst"
)

// shiftStep applies one bit of a shift or rotate, given the value and
// the incoming carry (meaningful only to RCL/RCR), and returns the new
// value plus the bit shifted or rotated out.
type shiftStep func(value uint16, carryIn bool, bits int) (result uint16, carryOut bool)

func bit(b bool) uint16 {
	if b {
		return 1
	}
	return 0
}

func mask(bits int) uint16 {
	if bits == 16 {
		return 0xFFFF
	}
	return 0xFF
}

func shlStep(value uint16, _ bool, bits int) (uint16, bool) {
	carryOut := value&(1<<(bits-1)) != 0
	return (value << 1) & mask(bits), carryOut
}

func shrStep(value uint16, _ bool, bits int) (uint16, bool) {
	carryOut := value&1 != 0
	return value >> 1, carryOut
}

func sarStep(value uint16, _ bool, bits int) (uint16, bool) {
	signBit := value & (1 << (bits - 1))
	carryOut := value&1 != 0
	return (value >> 1) | signBit, carryOut
}

func rolStep(value uint16, _ bool, bits int) (uint16, bool) {
	carryOut := value&(1<<(bits-1)) != 0
	return ((value << 1) | bit(carryOut)) & mask(bits), carryOut
}

func rorStep(value uint16, _ bool, bits int) (uint16, bool) {
	carryOut := value&1 != 0
	return (value >> 1) | (bit(carryOut) << (bits - 1)), carryOut
}

func rclStep(value uint16, carryIn bool, bits int) (uint16, bool) {
	carryOut := value&(1<<(bits-1)) != 0
	return ((value << 1) | bit(carryIn)) & mask(bits), carryOut
}

func rcrStep(value uint16, carryIn bool, bits int) (uint16, bool) {
	carryOut := value&1 != 0
	return (value >> 1) | (bit(carryIn) << (bits - 1)), carryOut
}

// overflowFunc computes the single-bit-shift overflow flag; nil for the
// rotate family and for SAR, which spec.md leaves unmodelled beyond the
// count==1 case shifts already define through cpu.ShlOverflow/ShrOverflow.
type overflowFunc func(result uint16, carryOut bool, before uint16, w cpu.Width) bool

func shlOverflow(result uint16, carryOut bool, before uint16, w cpu.Width) bool {
	return cpu.ShlOverflow(result, carryOut, w)
}

func shrOverflow(result uint16, carryOut bool, before uint16, w cpu.Width) bool {
	return cpu.ShrOverflow(before, w)
}

// shiftRotate runs a shift/rotate instruction for its decoded count (1,
// or the live value of CL when v=1). A count of zero leaves the operand
// and all four flags untouched. isShiftFamily distinguishes SHL/SHR/SAR,
// which update sign and zero from the result, from ROL/ROR/RCL/RCR, which
// do not touch them at all — matching real 8086 behaviour.
func (m *Machine) shiftRotate(op inst.Operation, step shiftStep, isShiftFamily bool, overflow overflowFunc) {
	count := 1
	if op.V {
		count = int(m.regs.Byte(cpu.CL))
	}
	if count == 0 {
		return
	}

	before := m.readOperand(op, op.Dst)
	bits := int(width(op))
	value := before
	carry := m.flags.Carry
	for i := 0; i < count; i++ {
		value, carry = step(value, carry, bits)
	}

	m.flags.Carry = carry
	if isShiftFamily {
		m.flags.Sign = value&(1<<(bits-1)) != 0
		m.flags.Zero = value == 0
	}
	if count == 1 && overflow != nil {
		m.flags.Overflow = overflow(value, carry, before, cpu.Width(bits))
	}

	m.writeOperand(op, op.Dst, value)
}
