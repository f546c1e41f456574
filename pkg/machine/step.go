package machine

import (
	"fmt"

	"github.com/toshihiroogino/i8086vm/pkg/cpu"
	"github.com/toshihiroogino/i8086vm/pkg/decode"
	"github.com/toshihiroogino/i8086vm/pkg/ea"
	"github.com/toshihiroogino/i8086vm/pkg/inst"
)

// checkAddr panics with a descriptive machine fault, rather than letting
// Go's slice bounds check fire, whenever an access would fall outside the
// memory image. width is 1 for a byte access, 2 for a word access.
func (m *Machine) checkAddr(addr uint16, width int) {
	if int(addr)+width > len(m.mem) {
		fault(m.regs.IP, "memory access out of bounds at address %#04x", addr)
	}
}

func width(op inst.Operation) cpu.Width {
	if op.W {
		return cpu.Word
	}
	return cpu.Byte
}

// readOperand is ea.Read with a bounds check in front of any memory
// access, so an out-of-range effective address faults with its address
// rather than panicking with a raw Go slice-index message.
func (m *Machine) readOperand(op inst.Operation, operand inst.Operand) uint16 {
	if operand.Kind == inst.OperandEA {
		addr := ea.Address(op, &m.regs)
		n := 1
		if op.W {
			n = 2
		}
		m.checkAddr(addr, n)
		m.sink.MemRead(addr, peekWord(m.mem, addr, op.W))
	}
	return ea.Read(op, operand, &m.regs, m.mem)
}

func (m *Machine) writeOperand(op inst.Operation, operand inst.Operand, value uint16) {
	if operand.Kind == inst.OperandEA {
		addr := ea.Address(op, &m.regs)
		n := 1
		if op.W {
			n = 2
		}
		m.checkAddr(addr, n)
		old := peekWord(m.mem, addr, op.W)
		ea.Write(op, operand, value, &m.regs, m.mem)
		m.sink.MemWrite(addr, old, value)
		return
	}
	ea.Write(op, operand, value, &m.regs, m.mem)
}

func peekWord(mem []byte, addr uint16, wide bool) uint16 {
	if wide {
		return uint16(mem[addr]) | uint16(mem[addr+1])<<8
	}
	return uint16(mem[addr])
}

func (m *Machine) pushWord(v uint16) {
	sp := m.regs.Word(cpu.SP) - 2
	m.checkAddr(sp, 2)
	m.mem[sp] = uint8(v)
	m.mem[sp+1] = uint8(v >> 8)
	m.regs.SetWord(cpu.SP, sp)
}

func (m *Machine) popWord() uint16 {
	sp := m.regs.Word(cpu.SP)
	m.checkAddr(sp, 2)
	v := uint16(m.mem[sp]) | uint16(m.mem[sp+1])<<8
	m.regs.SetWord(cpu.SP, sp+2)
	return v
}

// Step decodes and executes exactly one instruction at the current IP,
// reporting the pre-execute snapshot and disassembly to the trace sink
// first. It returns false once the machine has stopped (an exit syscall
// ran, or IP left the text segment cleanly at text's end).
func (m *Machine) Step() bool {
	if m.stopped {
		return false
	}
	ip := m.regs.IP
	if int(ip) >= len(m.text) {
		m.stopped = true
		return false
	}

	op, err := decode.Decode(m.text, int(ip))
	if err != nil {
		fault(ip, "%s", err)
	}

	m.sink.StepStart(&m.regs, m.flags)
	m.sink.Disasm(fmt.Sprintf("%04X: %s", op.Pos, op.String()))

	// The fetch/decode/execute sequence advances IP to point past the
	// instruction before any handler runs, so CALL/JMP/Jcc see the
	// post-fetch IP as their "not taken" value and push the correct
	// return address.
	m.regs.IP = uint16(op.NextPos())

	m.execute(op)

	m.sink.StepEnd()
	return !m.stopped
}

// Run steps the machine until it stops or faults, converting a FaultError
// panic (from an out-of-bounds access, an unimplemented mnemonic, or a
// syscall trap) into a returned error at this single seam. Any other
// panic is re-raised.
func (m *Machine) Run() (err error) {
	defer func() {
		if r := recover(); r != nil {
			if fe, ok := r.(*FaultError); ok {
				err = fe
				return
			}
			panic(r)
		}
	}()
	if m.sink.Enabled() {
		m.sink.Header()
	}
	for m.Step() {
	}
	return nil
}

func (m *Machine) execute(op inst.Operation) {
	switch op.Mnemonic {
	case inst.MOV:
		m.writeOperand(op, op.Dst, m.readOperand(op, op.Src))

	case inst.PUSH:
		m.pushWord(m.readOperand(op, op.Src))
	case inst.POP:
		m.writeOperand(op, op.Dst, m.popWord())

	case inst.XCHG:
		a, b := m.readOperand(op, op.Dst), m.readOperand(op, op.Src)
		m.writeOperand(op, op.Dst, b)
		m.writeOperand(op, op.Src, a)

	case inst.ADD:
		m.arith(op, cpu.Add, true)
	case inst.SUB:
		m.arith(op, cpu.Sub, true)
	case inst.CMP:
		m.arith(op, cpu.Sub, false)
	case inst.ADC:
		m.arithCarry(op, cpu.AddWithCarry, true)
	case inst.SBB:
		m.arithCarry(op, cpu.SubWithBorrow, true)

	case inst.INC:
		m.incDec(op, 1)
	case inst.DEC:
		m.incDec(op, -1)

	case inst.NEG:
		v := m.readOperand(op, op.Dst)
		res, flags := cpu.Neg(v, width(op))
		m.flags = flags
		m.writeOperand(op, op.Dst, res)

	case inst.AND:
		m.logic(op, func(a, b uint16) uint16 { return a & b }, true)
	case inst.OR:
		m.logic(op, func(a, b uint16) uint16 { return a | b }, true)
	case inst.XOR:
		m.logic(op, func(a, b uint16) uint16 { return a ^ b }, true)
	case inst.TEST:
		m.logic(op, func(a, b uint16) uint16 { return a & b }, false)
	case inst.NOT:
		m.writeOperand(op, op.Dst, ^m.readOperand(op, op.Dst)&mask(int(width(op))))

	case inst.SHL:
		m.shiftRotate(op, shlStep, true, shlOverflow)
	case inst.SHR:
		m.shiftRotate(op, shrStep, true, shrOverflow)
	case inst.SAR:
		m.shiftRotate(op, sarStep, true, nil)
	case inst.ROL:
		m.shiftRotate(op, rolStep, false, nil)
	case inst.ROR:
		m.shiftRotate(op, rorStep, false, nil)
	case inst.RCL:
		m.shiftRotate(op, rclStep, false, nil)
	case inst.RCR:
		m.shiftRotate(op, rcrStep, false, nil)

	case inst.MUL:
		m.mul(op, false)
	case inst.IMUL:
		m.mul(op, true)
	case inst.DIV:
		m.div(op, false)
	case inst.IDIV:
		m.div(op, true)

	case inst.CBW:
		al := m.regs.Byte(cpu.AL)
		m.regs.SetWord(cpu.AX, uint16(int16(int8(al))))
	case inst.CWD:
		ax := m.regs.Word(cpu.AX)
		if ax&0x8000 != 0 {
			m.regs.SetWord(cpu.DX, 0xFFFF)
		} else {
			m.regs.SetWord(cpu.DX, 0)
		}

	case inst.LEA:
		m.writeOperand(op, op.Dst, ea.Address(op, &m.regs))

	case inst.CALL:
		target := m.branchTarget(op)
		m.pushWord(m.regs.IP)
		m.regs.IP = target
	case inst.JMP:
		m.regs.IP = m.branchTarget(op)
	case inst.RET:
		ret := m.popWord()
		if op.Src.Kind == inst.OperandImm {
			m.regs.SetWord(cpu.SP, m.regs.Word(cpu.SP)+op.Data)
		}
		m.regs.IP = ret

	case inst.JO, inst.JNO, inst.JB, inst.JNB, inst.JE, inst.JNE,
		inst.JBE, inst.JNBE, inst.JS, inst.JNS, inst.JP, inst.JNP,
		inst.JL, inst.JNL, inst.JLE, inst.JNLE:
		if m.condTaken(op.Mnemonic) {
			target := ea.RelativeTarget(op)
			if int(target) >= len(m.text) {
				fault(uint16(op.Pos), "branch target %#04x is outside the text segment", target)
			}
			m.regs.IP = target
		}

	case inst.INT:
		m.syscall()

	case inst.UNDEFINED:
		// pkg/decode manufactures this at a text segment's final byte so
		// the fetch loop can stop cleanly instead of decoding past the end.
		m.stopped = true

	default:
		fault(uint16(op.Pos), "unimplemented mnemonic %s", op.Mnemonic)
	}
}

// branchTarget resolves a CALL/JMP's destination, whether encoded as a
// relative displacement (direct forms) or as an operand to read (the
// group-2 r/m-indirect forms), and faults if the target falls outside the
// text segment rather than letting it masquerade as a clean stop.
func (m *Machine) branchTarget(op inst.Operation) uint16 {
	var target uint16
	if op.Src.Kind == inst.OperandRel {
		target = ea.RelativeTarget(op)
	} else {
		target = m.readOperand(op, op.Src)
	}
	if int(target) >= len(m.text) {
		fault(uint16(op.Pos), "branch target %#04x is outside the text segment", target)
	}
	return target
}

func (m *Machine) condTaken(mnemonic inst.Mnemonic) bool {
	f := m.flags
	switch mnemonic {
	case inst.JO:
		return f.Overflow
	case inst.JNO:
		return !f.Overflow
	case inst.JB:
		return f.Carry
	case inst.JNB:
		return !f.Carry
	case inst.JE:
		return f.Zero
	case inst.JNE:
		return !f.Zero
	case inst.JBE:
		return f.Carry || f.Zero
	case inst.JNBE:
		return !f.Carry && !f.Zero
	case inst.JS:
		return f.Sign
	case inst.JNS:
		return !f.Sign
	case inst.JL:
		return f.Sign
	case inst.JNL:
		return !f.Sign
	case inst.JLE:
		return f.Sign || f.Zero
	case inst.JNLE:
		return !f.Sign && !f.Zero
	case inst.JP, inst.JNP:
		// Parity is not part of this machine's four-flag model; no
		// program this machine runs may branch on it.
		fault(m.regs.IP, "JP/JNP are not supported: parity is not modelled")
		return false
	default:
		return false
	}
}
