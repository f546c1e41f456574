// Package ea resolves a decoded instruction's addressing-mode fields
// against live register state: general-register operands, memory
// effective addresses, and relative branch targets.
package ea

import (
	"github.com/toshihiroogino/i8086vm/pkg/cpu"
	"github.com/toshihiroogino/i8086vm/pkg/inst"
)

// baseRegs mirrors the 8086's mod!=11 effective-address base table.
// Index 6 (BP alone, no register pair) only applies when mod != 00; the
// mod=00,rm=110 case is handled separately as an absolute address.
var baseRegs = [8][2]cpu.WordReg{
	{cpu.BX, cpu.SI},
	{cpu.BX, cpu.DI},
	{cpu.BP, cpu.SI},
	{cpu.BP, cpu.DI},
	{cpu.SI, cpu.SI},
	{cpu.DI, cpu.DI},
	{cpu.BP, cpu.BP},
	{cpu.BX, cpu.BX},
}

// Address computes the 16-bit effective address of a memory operand. The
// caller must only call this for an operand with inst.OperandEA kind and
// Mod != 0b11.
func Address(op inst.Operation, regs *cpu.Registers) uint16 {
	if op.Mod == 0b00 && op.RM == 0b110 {
		return uint16(op.Disp)
	}
	pair := baseRegs[op.RM&7]
	var base uint16
	if pair[0] == pair[1] {
		base = regs.Word(pair[0])
	} else {
		base = regs.Word(pair[0]) + regs.Word(pair[1])
	}
	return base + uint16(op.Disp)
}

// RelativeTarget computes the absolute text-segment target of a branch
// instruction: the offset immediately after the instruction, plus its
// signed displacement, wrapping modulo 2^16.
func RelativeTarget(op inst.Operation) uint16 {
	return uint16(op.NextPos()) + uint16(op.Disp)
}

// Read fetches the value of an Operand, resolving registers and memory
// through regs/mem as needed. port operands are not handled here: I/O
// is the machine's concern, not addressing.
func Read(op inst.Operation, operand inst.Operand, regs *cpu.Registers, mem []byte) uint16 {
	switch operand.Kind {
	case inst.OperandReg:
		if op.W {
			return regs.WordAt(operand.Field)
		}
		return uint16(regs.ByteAt(operand.Field))
	case inst.OperandSeg:
		return regs.Seg(cpu.SegReg(operand.Field))
	case inst.OperandImm:
		return op.Data
	case inst.OperandCL:
		return uint16(regs.Byte(cpu.CL))
	case inst.OperandEA:
		addr := Address(op, regs)
		if op.W {
			return uint16(mem[addr]) | uint16(mem[addr+1])<<8
		}
		return uint16(mem[addr])
	default:
		panic("ea: operand kind cannot be read")
	}
}

// Write stores a value into an Operand. Writing to an OperandImm operand
// is a decoder bug, not a runtime condition, so it panics.
func Write(op inst.Operation, operand inst.Operand, value uint16, regs *cpu.Registers, mem []byte) {
	switch operand.Kind {
	case inst.OperandReg:
		if op.W {
			regs.SetWordAt(operand.Field, value)
		} else {
			regs.SetByteAt(operand.Field, uint8(value))
		}
	case inst.OperandSeg:
		regs.SetSeg(cpu.SegReg(operand.Field), value)
	case inst.OperandEA:
		addr := Address(op, regs)
		mem[addr] = uint8(value)
		if op.W {
			mem[addr+1] = uint8(value >> 8)
		}
	default:
		panic("ea: operand kind cannot be written")
	}
}
