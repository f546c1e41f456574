// Package machine builds the memory image, seeds the initial stack
// frame, and runs the fetch/decode/execute loop, dispatching on the
// decoded mnemonic to per-instruction handlers and the syscall gateway.
package machine

import (
	"io"

	"github.com/toshihiroogino/i8086vm/pkg/cpu"
	"github.com/toshihiroogino/i8086vm/pkg/header"
	"github.com/toshihiroogino/i8086vm/pkg/trace"
)

// Machine owns the text buffer, memory image, register file, and flag
// word exclusively; nothing outside Step/Run mutates them.
type Machine struct {
	text []byte
	mem  []byte

	regs  cpu.Registers
	flags cpu.Flags

	dataSize uint32
	sink     trace.Sink
	out      io.Writer

	stopped    bool
	exitStatus int
}

// New constructs a Machine for the given header, text segment, data
// segment, guest argv, and guest environment. Memory address 0 holds the
// start of the data segment; the initial stack frame is built at the
// top of the memory image, descending, and SP is left pointing at its
// base. out receives the bytes a guest write syscall prints.
func New(hdr header.Header, text, data []byte, argv, env []string, out io.Writer, sink trace.Sink) *Machine {
	m := &Machine{
		text:     text,
		mem:      make([]byte, hdr.Total),
		dataSize: hdr.DataSize,
		sink:     sink,
		out:      out,
	}
	copy(m.mem, data)
	m.regs.SetWord(cpu.SP, m.seedStackFrame(argv, env))
	return m
}

// ExitStatus is the guest's exit status after Run returns with a nil
// error and the machine stopped via the exit syscall.
func (m *Machine) ExitStatus() int { return m.exitStatus }
