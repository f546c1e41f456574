package ea

import (
	"testing"

	"github.com/toshihiroogino/i8086vm/pkg/cpu"
	"github.com/toshihiroogino/i8086vm/pkg/inst"
)

func TestAddressBaseSI(t *testing.T) {
	var regs cpu.Registers
	regs.SetWord(cpu.BX, 0x0100)
	regs.SetWord(cpu.SI, 0x0010)
	op := inst.Operation{Mod: 0b00, RM: 0b000}
	if got := Address(op, &regs); got != 0x0110 {
		t.Errorf("Address() = %#x, want 0x110", got)
	}
}

func TestAddressDirect(t *testing.T) {
	op := inst.Operation{Mod: 0b00, RM: 0b110, Disp: 0x1234}
	var regs cpu.Registers
	if got := Address(op, &regs); got != 0x1234 {
		t.Errorf("Address() = %#x, want 0x1234", got)
	}
}

func TestAddressDisplacedBP(t *testing.T) {
	var regs cpu.Registers
	regs.SetWord(cpu.BP, 0x2000)
	op := inst.Operation{Mod: 0b01, RM: 0b110, Disp: -1}
	if got := Address(op, &regs); got != 0x1FFF {
		t.Errorf("Address() = %#x, want 0x1FFF", got)
	}
}

func TestRelativeTargetForward(t *testing.T) {
	op := inst.Operation{Pos: 0x10, Raws: make([]byte, 2), Disp: 5}
	if got := RelativeTarget(op); got != 0x17 {
		t.Errorf("RelativeTarget() = %#x, want 0x17", got)
	}
}

func TestRelativeTargetBackward(t *testing.T) {
	op := inst.Operation{Pos: 0x10, Raws: make([]byte, 2), Disp: -4}
	if got := RelativeTarget(op); got != 0x0E {
		t.Errorf("RelativeTarget() = %#x, want 0xE", got)
	}
}

func TestReadWriteRegister(t *testing.T) {
	var regs cpu.Registers
	op := inst.Operation{W: true}
	Write(op, inst.Operand{Kind: inst.OperandReg, Field: uint8(cpu.CX)}, 0xBEEF, &regs, nil)
	if got := Read(op, inst.Operand{Kind: inst.OperandReg, Field: uint8(cpu.CX)}, &regs, nil); got != 0xBEEF {
		t.Errorf("Read() = %#x, want 0xBEEF", got)
	}
}

func TestReadWriteMemoryWord(t *testing.T) {
	mem := make([]byte, 16)
	var regs cpu.Registers
	op := inst.Operation{Mod: 0b00, RM: 0b110, Disp: 4, W: true}
	Write(op, inst.Operand{Kind: inst.OperandEA}, 0x1234, &regs, mem)
	if mem[4] != 0x34 || mem[5] != 0x12 {
		t.Fatalf("mem[4:6] = %#x %#x, want 0x34 0x12", mem[4], mem[5])
	}
	if got := Read(op, inst.Operand{Kind: inst.OperandEA}, &regs, mem); got != 0x1234 {
		t.Errorf("Read() = %#x, want 0x1234", got)
	}
}
