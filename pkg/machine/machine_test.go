package machine

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/toshihiroogino/i8086vm/pkg/cpu"
	"github.com/toshihiroogino/i8086vm/pkg/header"
	"github.com/toshihiroogino/i8086vm/pkg/inst"
	"github.com/toshihiroogino/i8086vm/pkg/trace"
)

// buildHeader constructs a header whose total covers text+data plus room
// for a stack frame, matching the invariant header.Parse enforces.
func buildHeader(textSize, dataSize uint32) header.Header {
	return header.Header{
		TextSize: textSize,
		DataSize: dataSize,
		Total:    textSize + dataSize + 256,
	}
}

func newTestMachine(text, data []byte, out *bytes.Buffer) *Machine {
	hdr := buildHeader(uint32(len(text)), uint32(len(data)))
	return New(hdr, text, data, []string{"prog"}, nil, out, trace.NoOp())
}

func putMessage(data []byte, off int, typ, m1i1, m1i2, m1p1 uint16) {
	w := binary.LittleEndian
	w.PutUint16(data[off+2:], typ)
	w.PutUint16(data[off+4:], m1i1)
	w.PutUint16(data[off+6:], m1i2)
	w.PutUint16(data[off+10:], m1p1)
}

// TestMinimalExit is scenario 1: MOV BX,0; MOV AX,1; INT 20h, with an
// exit message at data offset 0.
func TestMinimalExit(t *testing.T) {
	text := []byte{0xBB, 0x00, 0x00, 0xB8, 0x01, 0x00, 0xCD, 0x20}
	data := make([]byte, 16)
	putMessage(data, 0, 1, 7, 0, 0)

	var out bytes.Buffer
	m := newTestMachine(text, data, &out)
	if err := m.Run(); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if m.ExitStatus() != 7 {
		t.Errorf("ExitStatus() = %d, want 7", m.ExitStatus())
	}
}

// TestHelloWrite is scenario 2: a write syscall prints "Hello" and
// reports the byte count back through the message block.
func TestHelloWrite(t *testing.T) {
	text := []byte{0xBB, 0x00, 0x00, 0xCD, 0x20} // MOV BX,0; INT 20h
	data := make([]byte, 32)
	copy(data[0x10:], "Hello")
	putMessage(data, 0, 4, 1, 5, 0x10)

	var out bytes.Buffer
	m := newTestMachine(text, data, &out)
	if err := m.Run(); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if out.String() != "Hello" {
		t.Errorf("stdout = %q, want %q", out.String(), "Hello")
	}
	if got := binary.LittleEndian.Uint16(m.mem[0:]); got != 0 {
		t.Errorf("[BX] = %d, want 0", got)
	}
	if got := binary.LittleEndian.Uint16(m.mem[2:]); got != 5 {
		t.Errorf("[BX+2] = %d, want 5", got)
	}
	if m.regs.Word(cpu.AX) != 0 {
		t.Errorf("AX = %#x, want 0", m.regs.Word(cpu.AX))
	}
}

// TestAddFlagMatrix is scenario 3.
func TestAddFlagMatrix(t *testing.T) {
	text := []byte{0x01, 0xD8} // ADD AX,BX
	var out bytes.Buffer
	m := newTestMachine(text, nil, &out)
	m.regs.SetWord(cpu.AX, 0xFFFF)
	m.regs.SetWord(cpu.BX, 0x0001)

	if !m.Step() {
		t.Fatalf("Step() = false")
	}
	if m.regs.Word(cpu.AX) != 0 {
		t.Errorf("AX = %#x, want 0", m.regs.Word(cpu.AX))
	}
	if !m.flags.Carry || !m.flags.Zero || m.flags.Sign || m.flags.Overflow {
		t.Errorf("flags = %+v, want C=1 Z=1 S=0 O=0", m.flags)
	}
}

// TestSignedCompare is scenario 4.
func TestSignedCompare(t *testing.T) {
	text := []byte{0x39, 0xD8} // CMP AX,BX
	var out bytes.Buffer
	m := newTestMachine(text, nil, &out)
	m.regs.SetWord(cpu.AX, 0x0001)
	m.regs.SetWord(cpu.BX, 0xFFFF)

	if !m.Step() {
		t.Fatalf("Step() = false")
	}
	if m.flags.Zero || m.flags.Sign || !m.flags.Carry || m.flags.Overflow {
		t.Errorf("flags = %+v, want Z=0 S=0 C=1 O=0", m.flags)
	}
	if m.regs.Word(cpu.AX) != 0x0001 || m.regs.Word(cpu.BX) != 0xFFFF {
		t.Errorf("operands changed: AX=%#x BX=%#x", m.regs.Word(cpu.AX), m.regs.Word(cpu.BX))
	}
	if !m.condTaken(inst.JNL) {
		t.Error("condTaken(JNL) = false, want true (AX > BX signed)")
	}
}

// TestShortJumpTarget is scenario 5.
func TestShortJumpTarget(t *testing.T) {
	text := make([]byte, 0x109)
	text[0x100], text[0x101] = 0xEB, 0x05 // JMP short +5

	var out bytes.Buffer
	m := newTestMachine(text, nil, &out)
	m.regs.IP = 0x100

	if !m.Step() {
		t.Fatalf("Step() = false")
	}
	if m.regs.IP != 0x107 {
		t.Errorf("IP = %#x, want 0x107", m.regs.IP)
	}
}

// TestCallRetRoundTrip is scenario 6.
func TestCallRetRoundTrip(t *testing.T) {
	text := make([]byte, 0x109)
	text[0x100], text[0x101], text[0x102] = 0xE8, 0x05, 0x00 // CALL +5
	text[0x108] = 0xC3                                       // RET

	var out bytes.Buffer
	m := newTestMachine(text, nil, &out)
	m.regs.IP = 0x100
	m.regs.SetWord(cpu.SP, 0x20)

	if !m.Step() {
		t.Fatalf("Step() (CALL) = false")
	}
	if m.regs.IP != 0x108 {
		t.Errorf("after CALL, IP = %#x, want 0x108", m.regs.IP)
	}
	if sp := m.regs.Word(cpu.SP); sp != 0x1E {
		t.Errorf("after CALL, SP = %#x, want 0x1e", sp)
	}
	if ret := binary.LittleEndian.Uint16(m.mem[0x1E:]); ret != 0x103 {
		t.Errorf("[SP] = %#x, want 0x103", ret)
	}

	if !m.Step() {
		t.Fatalf("Step() (RET) = false")
	}
	if m.regs.IP != 0x103 {
		t.Errorf("after RET, IP = %#x, want 0x103", m.regs.IP)
	}
	if sp := m.regs.Word(cpu.SP); sp != 0x20 {
		t.Errorf("after RET, SP = %#x, want 0x20", sp)
	}
}

// TestPushPopRoundTrip covers the testable-property: PUSH then POP of the
// same register restores both SP and the register.
func TestPushPopRoundTrip(t *testing.T) {
	text := []byte{0x53, 0x5B} // PUSH BX; POP BX
	var out bytes.Buffer
	m := newTestMachine(text, nil, &out)
	m.regs.SetWord(cpu.SP, 0x40)
	m.regs.SetWord(cpu.BX, 0xBEEF)

	if !m.Step() || !m.Step() {
		t.Fatalf("Step() returned false")
	}
	if sp := m.regs.Word(cpu.SP); sp != 0x40 {
		t.Errorf("SP = %#x, want 0x40", sp)
	}
	if bx := m.regs.Word(cpu.BX); bx != 0xBEEF {
		t.Errorf("BX = %#x, want 0xBEEF", bx)
	}
}

// TestMovLeavesFlagsUnchanged covers the MOV-flags testable property.
func TestMovLeavesFlagsUnchanged(t *testing.T) {
	text := []byte{0x89, 0xD8} // MOV AX,BX
	var out bytes.Buffer
	m := newTestMachine(text, nil, &out)
	m.flags.SetCOSZ(true, true, true, true)
	want := m.flags

	if !m.Step() {
		t.Fatalf("Step() = false")
	}
	if m.flags != want {
		t.Errorf("flags = %+v, want unchanged %+v", m.flags, want)
	}
}

// TestDivideByZeroFaults covers DIV's fatal-trap boundary policy.
func TestDivideByZeroFaults(t *testing.T) {
	text := []byte{0xF7, 0xF3} // DIV BX
	var out bytes.Buffer
	m := newTestMachine(text, nil, &out)
	m.regs.SetWord(cpu.BX, 0)

	err := m.Run()
	if err == nil {
		t.Fatal("Run() error = nil, want a fault")
	}
	if _, ok := err.(*FaultError); !ok {
		t.Errorf("error type = %T, want *FaultError", err)
	}
}

// TestUnimplementedMnemonicFaults covers the decode-but-don't-execute
// boundary for a mnemonic this machine only disassembles.
func TestUnimplementedMnemonicFaults(t *testing.T) {
	text := []byte{0x37} // AAA
	var out bytes.Buffer
	m := newTestMachine(text, nil, &out)

	if err := m.Run(); err == nil {
		t.Fatal("Run() error = nil, want a fault for an unimplemented mnemonic")
	}
}

// TestOutOfBoundsMemoryFaults covers the memory boundary policy.
func TestOutOfBoundsMemoryFaults(t *testing.T) {
	text := []byte{0xA0, 0xFF, 0xFF} // MOV AL,[0xFFFF]
	var out bytes.Buffer
	m := newTestMachine(text, nil, &out)

	err := m.Run()
	if err == nil {
		t.Fatal("Run() error = nil, want an out-of-bounds fault")
	}
}
