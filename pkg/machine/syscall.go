package machine

import (
	"encoding/binary"
	"fmt"
	"unicode/utf8"

	"github.com/toshihiroogino/i8086vm/pkg/cpu"
)

const (
	sysExit  = 1
	sysWrite = 4
	sysBrk   = 17
	sysIOCtl = 54
)

// syscall services the message block at [BX] for an INT instruction. It
// ignores the interrupt vector itself, matching the reference machine,
// which always reads the same fixed message layout regardless of vector.
func (m *Machine) syscall() {
	bx := m.regs.Word(cpu.BX)
	m.checkAddr(bx, 16)

	mem := m.mem
	typ := binary.LittleEndian.Uint16(mem[bx+2:])
	m1i1 := binary.LittleEndian.Uint16(mem[bx+4:])
	m1i2 := binary.LittleEndian.Uint16(mem[bx+6:])
	m1p1 := binary.LittleEndian.Uint16(mem[bx+10:])

	switch typ {
	case sysExit:
		m.exitStatus = int(m1i1)
		m.sink.Syscall(fmt.Sprintf("<exit(%d)>", m.exitStatus))
		m.stopped = true

	case sysWrite:
		addr, length := m1p1, m1i2
		m.checkAddr(addr, int(length))
		data := mem[addr : addr+length]
		if !utf8.Valid(data) {
			fault(m.regs.IP, "write syscall: memory[%#04x:%#04x] is not valid UTF-8", addr, addr+length)
		}
		fmt.Fprint(m.out, string(data))
		m.putResult(bx, 0, length)
		m.regs.SetWord(cpu.AX, 0)
		m.sink.Syscall(fmt.Sprintf("<write(fd=%d,len=%d)>", m1i1, length))

	case sysBrk:
		requested := m1p1
		sp := m.regs.Word(cpu.SP)
		upper := (sp &^ 0x3FF) - 0x400
		if requested >= uint16(m.dataSize) && requested < upper {
			m.putResult(bx, 0, 0)
		} else {
			m.putResult(bx, 0, 12)
		}
		m.regs.SetWord(cpu.AX, 0)
		m.sink.Syscall(fmt.Sprintf("<brk(%#04x)>", requested))

	case sysIOCtl:
		m.putResult(bx, 0, 0xFFEA) // -22 (EINVAL) as a two's-complement u16
		m.regs.SetWord(cpu.AX, 0)
		m.sink.Syscall("<ioctl()>")

	default:
		fault(m.regs.IP, "unsupported syscall type %d", typ)
	}
}

func (m *Machine) putResult(bx, result, errno uint16) {
	binary.LittleEndian.PutUint16(m.mem[bx:], result)
	binary.LittleEndian.PutUint16(m.mem[bx+2:], errno)
}
