// Package trace defines the sink interface the machine reports each
// step to, plus a stdout implementation and a no-op one. Every method is
// a no-op on the no-op sink so the machine's per-step code never branches
// on whether tracing is enabled.
package trace

import (
	"fmt"
	"io"

	"github.com/toshihiroogino/i8086vm/pkg/cpu"
)

// Sink receives one named event per moment in a step: the pre-execute
// register/flag snapshot, the decoded instruction's disassembly text,
// annotated memory reads/writes, syscall markers, and the end of the
// line. Ordering within a step is fixed: snapshot, disasm, memory notes,
// syscall notes, end.
type Sink interface {
	Enabled() bool
	Header()
	StepStart(regs *cpu.Registers, flags cpu.Flags)
	Disasm(text string)
	MemRead(addr, value uint16)
	MemWrite(addr, oldValue, newValue uint16)
	Syscall(text string)
	StepEnd()
}

// noop is the disabled sink: every method does nothing.
type noop struct{}

// NoOp returns a Sink that discards every event.
func NoOp() Sink { return noop{} }

func (noop) Enabled() bool                          { return false }
func (noop) Header()                                {}
func (noop) StepStart(*cpu.Registers, cpu.Flags)     {}
func (noop) Disasm(string)                           {}
func (noop) MemRead(uint16, uint16)                  {}
func (noop) MemWrite(uint16, uint16, uint16)         {}
func (noop) Syscall(string)                          {}
func (noop) StepEnd()                                {}

// stdoutSink writes the trace directly to an io.Writer with
// fmt.Fprintf, matching the teacher's direct-printf convention — no
// logging library sits between the machine and the output.
type stdoutSink struct {
	w io.Writer
}

// Stdout returns a Sink that writes to w (normally os.Stdout).
func Stdout(w io.Writer) Sink {
	return &stdoutSink{w: w}
}

func (s *stdoutSink) Enabled() bool { return true }

func (s *stdoutSink) Header() {
	fmt.Fprintln(s.w, " AX   BX   CX   DX   SP   BP   SI   DI  FLAGS IP")
}

func (s *stdoutSink) StepStart(regs *cpu.Registers, flags cpu.Flags) {
	fmt.Fprintf(s.w, "%04X %04X %04X %04X %04X %04X %04X %04X %s",
		regs.Word(cpu.AX), regs.Word(cpu.BX), regs.Word(cpu.CX), regs.Word(cpu.DX),
		regs.Word(cpu.SP), regs.Word(cpu.BP), regs.Word(cpu.SI), regs.Word(cpu.DI),
		flags)
}

// Disasm appends the disassembly text, which already carries its own
// "pos: mnemonic operands" form (see inst.Operation.String combined with
// the position prefix pkg/machine adds), satisfying the header's
// trailing IP column.
func (s *stdoutSink) Disasm(text string) {
	fmt.Fprintf(s.w, " %s", text)
}

func (s *stdoutSink) MemRead(addr, value uint16) {
	fmt.Fprintf(s.w, ";[%04x]%04x", addr, value)
}

func (s *stdoutSink) MemWrite(addr, oldValue, newValue uint16) {
	fmt.Fprintf(s.w, ";[%04x]%04x->%04x", addr, oldValue, newValue)
}

func (s *stdoutSink) Syscall(text string) {
	fmt.Fprintf(s.w, "%s", text)
}

func (s *stdoutSink) StepEnd() {
	fmt.Fprintln(s.w)
}
