// Package decode turns a stream of 8086 text-segment bytes into decoded
// inst.Operation records, one instruction at a time. Decode never
// executes anything and never consults register state; it is a pure
// function of the byte stream and the position to decode from.
package decode

import (
	"fmt"

	"github.com/toshihiroogino/i8086vm/pkg/inst"
)

// Error reports a byte stream that Decode could not turn into a valid
// instruction: an opcode outside the 8086 table, or a reserved reg field
// inside one of the opcode groups.
type Error struct {
	Pos     int
	Opcode  byte
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("decode: pos %#x opcode %#02x: %s", e.Pos, e.Opcode, e.Message)
}

// decoder walks text starting at pos, consuming bytes into raws as it
// goes so the final Operation carries its own exact encoding.
type decoder struct {
	text []byte
	pos  int
	raws []byte
}

func (d *decoder) next() byte {
	b := d.text[d.pos]
	d.pos++
	d.raws = append(d.raws, b)
	return b
}

func (d *decoder) word() uint16 {
	lo := d.next()
	hi := d.next()
	return uint16(hi)<<8 | uint16(lo)
}

// Decode reads one instruction from text starting at pos. It returns a
// *Error, never a panic, when the opcode or a group's reg field is not
// recognized.
func Decode(text []byte, pos int) (inst.Operation, error) {
	d := &decoder{text: text, pos: pos}
	op, err := d.decodeOne()
	if err != nil {
		return inst.Operation{}, err
	}
	op.Pos = pos
	op.Raws = d.raws
	return op, nil
}

func regOperand(field uint8) inst.Operand { return inst.Operand{Kind: inst.OperandReg, Field: field} }
func segOperand(field uint8) inst.Operand { return inst.Operand{Kind: inst.OperandSeg, Field: field} }
func eaOperand() inst.Operand             { return inst.Operand{Kind: inst.OperandEA} }
func immOperand() inst.Operand            { return inst.Operand{Kind: inst.OperandImm} }
func relOperand() inst.Operand            { return inst.Operand{Kind: inst.OperandRel} }
func portOperand() inst.Operand           { return inst.Operand{Kind: inst.OperandPort} }

func (d *decoder) rmOperand(op *inst.Operation) inst.Operand {
	if op.Mod == 0b11 {
		return regOperand(op.RM)
	}
	return eaOperand()
}

// splitModRegRM decomposes a mod/reg/r-m byte into its three fields.
func splitModRegRM(b byte) (mod, reg, rm uint8) {
	return b >> 6 & 0b11, b >> 3 & 0b111, b & 0b111
}

func (d *decoder) readModRM(op *inst.Operation) {
	b := d.next()
	op.Mod, op.Reg, op.RM = splitModRegRM(b)
	op.HasModRM = true
	d.readDisp(op)
}

// readDisp consumes the displacement bytes (if any) that follow a
// mod/reg/r-m byte, per the mod/r-m combination: none, 8-bit, 16-bit, or
// (mod=00,rm=110) a 16-bit absolute address used in place of a base
// register.
func (d *decoder) readDisp(op *inst.Operation) {
	switch op.Mod {
	case 0b00:
		if op.RM == 0b110 {
			op.Disp = int16(d.word())
		}
	case 0b01:
		op.Disp = int16(int8(d.next()))
	case 0b10:
		op.Disp = int16(d.word())
	case 0b11:
		// register operand, no displacement
	}
}

// readImmediate consumes an 8- or 16-bit immediate depending on the w
// bit, matching the accumulator- and register/memory-immediate forms.
func (d *decoder) readImmediate(op *inst.Operation) {
	if op.W {
		op.Data = d.word()
	} else {
		op.Data = uint16(d.next())
	}
}

// readGroupImmediate consumes the immediate for the 0x80-0x83 ALU group:
// two bytes when s=0,w=1, otherwise a single byte, sign-extended to a
// full 16-bit value when s=1 regardless of w.
func (d *decoder) readGroupImmediate(op *inst.Operation) {
	if !op.S && op.W {
		op.Data = d.word()
		return
	}
	b := d.next()
	if op.S {
		op.Data = uint16(int16(int8(b)))
	} else {
		op.Data = uint16(b)
	}
}

func (d *decoder) relByte(op *inst.Operation) {
	op.Disp = int16(int8(d.next()))
}

func (d *decoder) relWord(op *inst.Operation) {
	op.Disp = int16(d.word())
}

// decodeOne implements the opcode table: opcode-class dispatch followed
// by whatever operand bytes that class requires.
func (d *decoder) decodeOne() (inst.Operation, error) {
	var op inst.Operation
	startPos := d.pos
	b := d.next()

	if d.pos >= len(d.text) && b == 0x00 {
		op.Mnemonic = inst.UNDEFINED
		return op, nil
	}

	switch {
	// --- Data transfer: MOV ---
	case b >= 0x88 && b <= 0x8B: // reg/mem to/from reg
		op.Mnemonic = inst.MOV
		d.readModRM(&op)
		op.D = (b>>1)&1 != 0
		op.W = b&1 != 0
		d.setRegRMOperands(&op)

	case b == 0xC6 || b == 0xC7: // immediate to reg/mem
		op.Mnemonic = inst.MOV
		d.readModRM(&op)
		op.W = b&1 != 0
		d.readImmediate(&op)
		op.Dst = d.rmOperand(&op)
		op.Src = immOperand()

	case b >= 0xB0 && b <= 0xBF: // immediate to register
		op.Mnemonic = inst.MOV
		op.W = (b>>3)&1 != 0
		op.Reg = b & 0b111
		d.readImmediate(&op)
		op.Dst = regOperand(op.Reg)
		op.Src = immOperand()

	case b >= 0xA0 && b <= 0xA3: // accumulator <-> memory, direct address
		op.Mnemonic = inst.MOV
		op.W = b&1 != 0
		op.Mod, op.RM = 0b00, 0b110
		op.HasModRM = true
		op.Disp = int16(d.word())
		if (b>>1)&1 == 0 {
			op.Dst, op.Src = regOperand(0), eaOperand()
		} else {
			op.Dst, op.Src = eaOperand(), regOperand(0)
		}

	case b == 0x8C || b == 0x8E: // segment register <-> reg/mem
		op.Mnemonic = inst.MOV
		d.readModRM(&op)
		if op.Reg&0b100 != 0 {
			return op, &Error{Pos: startPos, Opcode: b, Message: "segment register field must be 0b0xx"}
		}
		op.W = true
		if b == 0x8E {
			op.Dst, op.Src = segOperand(op.Reg), d.rmOperand(&op)
		} else {
			op.Dst, op.Src = d.rmOperand(&op), segOperand(op.Reg)
		}

	// --- Data transfer: PUSH/POP ---
	case b >= 0x50 && b <= 0x57:
		op.Mnemonic = inst.PUSH
		op.W = true
		op.Reg = b & 0b111
		op.Src = regOperand(op.Reg)

	case b == 0x06 || b == 0x0E || b == 0x16 || b == 0x1E:
		op.Mnemonic = inst.PUSH
		op.W = true
		op.Reg = (b >> 3) & 0b111
		op.Src = segOperand(op.Reg)

	case b == 0x8F:
		op.Mnemonic = inst.POP
		d.readModRM(&op)
		if op.Reg != 0b110 {
			return op, &Error{Pos: startPos, Opcode: b, Message: "reg field must be 0b110 for POP r/m"}
		}
		op.W = true
		op.Dst = d.rmOperand(&op)

	case b >= 0x58 && b <= 0x5F:
		op.Mnemonic = inst.POP
		op.W = true
		op.Reg = b & 0b111
		op.Dst = regOperand(op.Reg)

	case b == 0x07 || b == 0x0F || b == 0x17 || b == 0x1F:
		op.Mnemonic = inst.POP
		op.W = true
		op.Reg = (b >> 3) & 0b111
		op.Dst = segOperand(op.Reg)

	// --- XCHG ---
	case b == 0x86 || b == 0x87:
		op.Mnemonic = inst.XCHG
		d.readModRM(&op)
		op.W = b&1 != 0
		d.setRegRMOperands(&op)

	case b >= 0x90 && b <= 0x97:
		op.Mnemonic = inst.XCHG
		op.W = true
		op.Reg = b & 0b111
		op.Dst, op.Src = regOperand(0), regOperand(op.Reg)

	// --- IN / OUT ---
	case b == 0xE4 || b == 0xE5:
		op.Mnemonic = inst.IN
		op.W = b&1 != 0
		op.Port = uint16(d.next())
		op.Dst, op.Src = regOperand(0), portOperand()

	case b == 0xEC || b == 0xED:
		op.Mnemonic = inst.IN
		op.W = b&1 != 0
		op.Port = 0xFFFF // DX-indexed
		op.Dst, op.Src = regOperand(0), portOperand()

	case b == 0xE6 || b == 0xE7:
		op.Mnemonic = inst.OUT
		op.W = b&1 != 0
		op.Port = uint16(d.next())
		op.Dst, op.Src = portOperand(), regOperand(0)

	case b == 0xEE || b == 0xEF:
		op.Mnemonic = inst.OUT
		op.W = b&1 != 0
		op.Port = 0xFFFF
		op.Dst, op.Src = portOperand(), regOperand(0)

	case b == 0xD7:
		op.Mnemonic = inst.XLAT

	case b == 0x8D:
		op.Mnemonic = inst.LEA
		d.readModRM(&op)
		op.W = true
		op.Dst, op.Src = regOperand(op.Reg), eaOperand()

	case b == 0xC5:
		op.Mnemonic = inst.LDS
		d.readModRM(&op)
		op.W = true
		op.Dst, op.Src = regOperand(op.Reg), eaOperand()

	case b == 0xC4:
		op.Mnemonic = inst.LES
		d.readModRM(&op)
		op.W = true
		op.Dst, op.Src = regOperand(op.Reg), eaOperand()

	case b == 0x9F:
		op.Mnemonic = inst.LAHF
	case b == 0x9E:
		op.Mnemonic = inst.SAHF
	case b == 0x9C:
		op.Mnemonic = inst.PUSHF
	case b == 0x9D:
		op.Mnemonic = inst.POPF

	// --- Arithmetic: ADD/ADC/SUB/SBB/CMP, reg/mem forms ---
	case b <= 0x03:
		op.Mnemonic = inst.ADD
		d.decodeSimpleALU(&op, b)
	case b == 0x04 || b == 0x05:
		op.Mnemonic = inst.ADD
		d.decodeAccumulatorALU(&op, b)

	case b >= 0x10 && b <= 0x13:
		op.Mnemonic = inst.ADC
		d.decodeSimpleALU(&op, b)
	case b == 0x14 || b == 0x15:
		op.Mnemonic = inst.ADC
		d.decodeAccumulatorALU(&op, b)

	case b >= 0x28 && b <= 0x2B:
		op.Mnemonic = inst.SUB
		d.decodeSimpleALU(&op, b)
	case b == 0x2C || b == 0x2D:
		op.Mnemonic = inst.SUB
		d.decodeAccumulatorALU(&op, b)

	case b >= 0x18 && b <= 0x1B:
		op.Mnemonic = inst.SBB
		d.decodeSimpleALU(&op, b)
	case b == 0x1C || b == 0x1D:
		op.Mnemonic = inst.SBB
		d.decodeAccumulatorALU(&op, b)

	case b >= 0x38 && b <= 0x3B:
		op.Mnemonic = inst.CMP
		d.decodeSimpleALU(&op, b)
	case b == 0x3C || b == 0x3D:
		op.Mnemonic = inst.CMP
		d.decodeAccumulatorALU(&op, b)

	case b == 0xFE: // INC/DEC r/m (byte only; 0xFF's word form is in the group below)
		d.readModRM(&op)
		op.W = false
		switch op.Reg {
		case 0b000:
			op.Mnemonic = inst.INC
		case 0b001:
			op.Mnemonic = inst.DEC
		default:
			return op, &Error{Pos: startPos, Opcode: b, Message: "reg field must select INC or DEC"}
		}
		op.Dst = d.rmOperand(&op)

	case b >= 0x40 && b <= 0x47:
		op.Mnemonic = inst.INC
		op.W = true
		op.Reg = b & 0b111
		op.Dst = regOperand(op.Reg)

	case b >= 0x48 && b <= 0x4F:
		op.Mnemonic = inst.DEC
		op.W = true
		op.Reg = b & 0b111
		op.Dst = regOperand(op.Reg)

	case b == 0x37:
		op.Mnemonic = inst.AAA
	case b == 0x27:
		op.Mnemonic = inst.BAA
	case b == 0x3F:
		op.Mnemonic = inst.AAS
	case b == 0x2F:
		op.Mnemonic = inst.DAS
	case b == 0x98:
		op.Mnemonic = inst.CBW
	case b == 0x99:
		op.Mnemonic = inst.CWD

	// --- Logic: AND/OR/XOR/TEST, reg/mem forms ---
	case b >= 0x20 && b <= 0x23:
		op.Mnemonic = inst.AND
		d.decodeSimpleALU(&op, b)
	case b == 0x24 || b == 0x25:
		op.Mnemonic = inst.AND
		d.decodeAccumulatorALU(&op, b)

	case b == 0x84 || b == 0x85:
		op.Mnemonic = inst.TEST
		d.readModRM(&op)
		op.W = b&1 != 0
		d.setRegRMOperands(&op)

	case b == 0xA8 || b == 0xA9:
		op.Mnemonic = inst.TEST
		op.W = b&1 != 0
		d.readImmediate(&op)
		op.Dst, op.Src = regOperand(0), immOperand()

	case b >= 0x08 && b <= 0x0B:
		op.Mnemonic = inst.OR
		d.decodeSimpleALU(&op, b)
	case b == 0x0C || b == 0x0D:
		op.Mnemonic = inst.OR
		d.decodeAccumulatorALU(&op, b)

	case b >= 0x30 && b <= 0x33:
		op.Mnemonic = inst.XOR
		d.decodeSimpleALU(&op, b)
	case b == 0x34 || b == 0x35:
		op.Mnemonic = inst.XOR
		d.decodeAccumulatorALU(&op, b)

	// --- String manipulation ---
	case b == 0xF2 || b == 0xF3:
		op.RepPrefix = true
		op.RepZ = b&1 != 0
		next := d.next()
		m, ok := inst.StringOp(next >> 1 & 0b111)
		if !ok {
			return op, &Error{Pos: startPos, Opcode: b, Message: fmt.Sprintf("invalid REP target byte %#02x", next)}
		}
		op.Mnemonic = m
		op.W = next&1 != 0

	case b >= 0xA4 && b <= 0xAF:
		m, ok := inst.StringOp(b >> 1 & 0b111)
		if !ok {
			return op, &Error{Pos: startPos, Opcode: b, Message: "reg field selects no string operation"}
		}
		op.Mnemonic = m
		op.W = b&1 != 0

	// --- Control transfer ---
	case b == 0xE8:
		op.Mnemonic = inst.CALL
		d.relWord(&op)
		op.Src = relOperand()
	case b == 0x9A:
		op.Mnemonic = inst.CALL
		op.Disp = int16(d.word())
		op.Src = relOperand()

	case b == 0xE9:
		op.Mnemonic = inst.JMP
		d.relWord(&op)
		op.Src = relOperand()
	case b == 0xEB:
		op.Mnemonic = inst.JMP
		d.relByte(&op)
		op.Src = relOperand()
	case b == 0xEA:
		op.Mnemonic = inst.JMP
		op.Disp = int16(d.word())
		op.Src = relOperand()

	case b == 0xC3 || b == 0xCB:
		op.Mnemonic = inst.RET

	case b == 0xC2 || b == 0xCA:
		op.Mnemonic = inst.RET
		op.Data = d.word()
		op.Src = immOperand()

	case b >= 0x70 && b <= 0x7F:
		op.Mnemonic = inst.CondJump(b)
		d.relByte(&op)
		op.Src = relOperand()

	case b >= 0xE0 && b <= 0xE2:
		d.relByte(&op)
		op.Src = relOperand()
		switch b & 0b11 {
		case 0b10:
			op.Mnemonic = inst.LOOP
		case 0b01:
			op.Mnemonic = inst.LOOPZ
		case 0b00:
			op.Mnemonic = inst.LOOPNZ
		}

	case b == 0xE3:
		op.Mnemonic = inst.JCXZ
		d.relByte(&op)
		op.Src = relOperand()

	case b == 0xCD:
		op.Mnemonic = inst.INT
		op.IntType = d.next()

	case b == 0xCC:
		op.Mnemonic = inst.INT
		op.IntType = 3

	case b == 0xCE:
		op.Mnemonic = inst.INTO
	case b == 0xCF:
		op.Mnemonic = inst.IRET

	// --- Processor control ---
	case b == 0xF8:
		op.Mnemonic = inst.CLC
	case b == 0xF5:
		op.Mnemonic = inst.CMC
	case b == 0xF9:
		op.Mnemonic = inst.STC
	case b == 0xFC:
		op.Mnemonic = inst.CLD
	case b == 0xFD:
		op.Mnemonic = inst.STD
	case b == 0xFA:
		op.Mnemonic = inst.CLI
	case b == 0xFB:
		op.Mnemonic = inst.STI
	case b == 0xF4:
		op.Mnemonic = inst.HLT
	case b == 0x9B:
		op.Mnemonic = inst.WAIT
	case b >= 0xD8 && b <= 0xDF:
		op.Mnemonic = inst.ESC
		op.Reg = b & 0b111
	case b == 0xF0:
		op.Mnemonic = inst.LOCK

	// --- Common groups ---
	case b >= 0x80 && b <= 0x83: // ALU immediate to reg/mem
		d.readModRM(&op)
		op.S = (b>>1)&1 != 0
		op.W = b&1 != 0
		d.readGroupImmediate(&op)
		m, err := aluGroupMnemonic(op.Reg)
		if err != nil {
			return op, &Error{Pos: startPos, Opcode: b, Message: err.Error()}
		}
		op.Mnemonic = m
		op.Dst = d.rmOperand(&op)
		op.Src = immOperand()

	case b == 0xFF: // PUSH/INC/DEC/CALL/JMP, r/m form
		d.readModRM(&op)
		op.W = true
		switch op.Reg {
		case 0b110:
			op.Mnemonic = inst.PUSH
			op.Src = d.rmOperand(&op)
		case 0b000:
			op.Mnemonic = inst.INC
			op.Dst = d.rmOperand(&op)
		case 0b001:
			op.Mnemonic = inst.DEC
			op.Dst = d.rmOperand(&op)
		case 0b010, 0b011:
			op.Mnemonic = inst.CALL
			op.Src = d.rmOperand(&op)
		case 0b100, 0b101:
			op.Mnemonic = inst.JMP
			op.Src = d.rmOperand(&op)
		default:
			return op, &Error{Pos: startPos, Opcode: b, Message: "reg field is reserved in the 0xFF group"}
		}

	case b == 0xF6 || b == 0xF7: // NEG/MUL/IMUL/DIV/IDIV/NOT/TEST, r/m form
		d.readModRM(&op)
		op.W = b&1 != 0
		switch op.Reg {
		case 0b011:
			op.Mnemonic = inst.NEG
			op.Dst = d.rmOperand(&op)
		case 0b100:
			op.Mnemonic = inst.MUL
			op.Src = d.rmOperand(&op)
		case 0b101:
			op.Mnemonic = inst.IMUL
			op.Src = d.rmOperand(&op)
		case 0b110:
			op.Mnemonic = inst.DIV
			op.Src = d.rmOperand(&op)
		case 0b111:
			op.Mnemonic = inst.IDIV
			op.Src = d.rmOperand(&op)
		case 0b010:
			op.Mnemonic = inst.NOT
			op.Dst = d.rmOperand(&op)
		case 0b000:
			op.Mnemonic = inst.TEST
			d.readImmediate(&op)
			op.Dst = d.rmOperand(&op)
			op.Src = immOperand()
		default:
			return op, &Error{Pos: startPos, Opcode: b, Message: "reg field is reserved in the 0xF6/0xF7 group"}
		}

	case b == 0xD4:
		if next := d.next(); next != 0x0A {
			return op, &Error{Pos: startPos, Opcode: b, Message: fmt.Sprintf("AAM must be followed by 0x0A, got %#02x", next)}
		}
		op.Mnemonic = inst.AAM

	case b == 0xD5:
		if next := d.next(); next != 0x0A {
			return op, &Error{Pos: startPos, Opcode: b, Message: fmt.Sprintf("AAD must be followed by 0x0A, got %#02x", next)}
		}
		op.Mnemonic = inst.AAD

	case b >= 0xD0 && b <= 0xD3: // shift/rotate group
		d.readModRM(&op)
		op.V = (b>>1)&1 != 0
		op.W = b&1 != 0
		m, err := shiftGroupMnemonic(op.Reg)
		if err != nil {
			return op, &Error{Pos: startPos, Opcode: b, Message: err.Error()}
		}
		op.Mnemonic = m
		op.Dst = d.rmOperand(&op)
		if op.V {
			op.Src = inst.Operand{Kind: inst.OperandCL}
		}

	default:
		return op, &Error{Pos: startPos, Opcode: b, Message: "opcode not recognized"}
	}

	return op, nil
}

// decodeSimpleALU decodes the common "register/memory with register to
// either" shape shared by ADD/ADC/SUB/SBB/CMP/AND/OR/XOR.
func (d *decoder) decodeSimpleALU(op *inst.Operation, opcode byte) {
	d.readModRM(op)
	op.D = (opcode>>1)&1 != 0
	op.W = opcode&1 != 0
	d.setRegRMOperands(op)
}

// decodeAccumulatorALU decodes the "immediate to accumulator" shape
// shared by the same family.
func (d *decoder) decodeAccumulatorALU(op *inst.Operation, opcode byte) {
	op.W = opcode&1 != 0
	d.readImmediate(op)
	op.Dst, op.Src = regOperand(0), immOperand()
}

// setRegRMOperands assigns Dst/Src for the reg<->r/m instruction shape
// according to the D bit: D=1 means the reg field is the destination.
func (d *decoder) setRegRMOperands(op *inst.Operation) {
	reg := regOperand(op.Reg)
	rm := d.rmOperand(op)
	if op.D {
		op.Dst, op.Src = reg, rm
	} else {
		op.Dst, op.Src = rm, reg
	}
}

func aluGroupMnemonic(reg uint8) (inst.Mnemonic, error) {
	switch reg {
	case 0b000:
		return inst.ADD, nil
	case 0b010:
		return inst.ADC, nil
	case 0b101:
		return inst.SUB, nil
	case 0b011:
		return inst.SBB, nil
	case 0b111:
		return inst.CMP, nil
	case 0b100:
		return inst.AND, nil
	case 0b001:
		return inst.OR, nil
	case 0b110:
		return inst.XOR, nil
	default:
		return inst.UNDEFINED, fmt.Errorf("reg field %#03b selects no ALU operation", reg)
	}
}

func shiftGroupMnemonic(reg uint8) (inst.Mnemonic, error) {
	switch reg {
	case 0b100:
		return inst.SHL, nil
	case 0b101:
		return inst.SHR, nil
	case 0b111:
		return inst.SAR, nil
	case 0b000:
		return inst.ROL, nil
	case 0b001:
		return inst.ROR, nil
	case 0b010:
		return inst.RCL, nil
	case 0b011:
		return inst.RCR, nil
	default:
		return inst.UNDEFINED, fmt.Errorf("reg field %#03b selects no shift/rotate operation", reg)
	}
}
