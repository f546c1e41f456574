package inst

import (
	"fmt"
	"strings"

	"github.com/toshihiroogino/i8086vm/pkg/cpu"
)

// Operation is one decoded instruction: the mnemonic, its operands, the
// raw addressing-mode fields the decoder extracted, and the exact bytes
// it was decoded from. pkg/decode constructs these; pkg/ea resolves their
// addressing fields against live registers; pkg/machine executes them.
type Operation struct {
	Pos  int    // byte offset into the text segment this instruction starts at
	Raws []byte // the exact bytes decoded, including any prefix

	Mnemonic Mnemonic
	Width    cpu.Width

	// Direction/sign/word/count bits as the opcode encoded them. D: 0=reg
	// is source, 1=reg is destination. S: sign-extend an 8-bit immediate.
	// V: shift/rotate count comes from CL instead of being 1.
	D, W, S, V bool

	// Addressing-mode fields from the mod/reg/r-m byte, present when an
	// operand has OperandEA or OperandReg/OperandSeg kind. Valid only if
	// HasModRM is true.
	HasModRM     bool
	Mod, Reg, RM uint8
	Disp         int16

	Dst, Src Operand

	Data    uint16 // immediate operand value
	Port    uint16 // fixed I/O port, when Dst/Src is OperandPort
	IntType uint8  // interrupt vector for INT

	// RepPrefix is true when a 0xF2/0xF3 prefix preceded a string op;
	// RepZ distinguishes REPZ/REPE (true) from REPNZ/REPNE (false).
	RepPrefix bool
	RepZ      bool
}

// Len is the number of bytes this instruction occupies in the text
// segment, including any prefix. pkg/decode and pkg/ea both rely on
// Pos+Len() landing exactly on the next instruction's Pos.
func (op Operation) Len() int {
	return len(op.Raws)
}

// NextPos is the byte offset of the instruction immediately following
// this one.
func (op Operation) NextPos() int {
	return op.Pos + op.Len()
}

var wordRegNames = [...]string{"AX", "CX", "DX", "BX", "SP", "BP", "SI", "DI"}
var byteRegNames = [...]string{"AL", "CL", "DL", "BL", "AH", "CH", "DH", "BH"}
var segRegNames = [...]string{"ES", "CS", "SS", "DS"}

// eaBaseExpr mirrors the 8086's eight-entry (mod!=11) effective-address
// base table; entry 6 (BP alone) only applies when mod != 00.
var eaBaseExpr = [...]string{
	"BX+SI", "BX+DI", "BP+SI", "BP+DI", "SI", "DI", "BP", "BX",
}

func (op Operation) regName(field uint8) string {
	if op.W {
		return wordRegNames[field&7]
	}
	return byteRegNames[field&7]
}

// eaText renders the symbolic (register-name, not resolved-address) form
// of a memory operand, matching how a disassembler shows addressing modes
// without knowing runtime register values.
func (op Operation) eaText() string {
	if op.Mod == 0b11 {
		return op.regName(op.RM)
	}
	if op.Mod == 0b00 && op.RM == 0b110 {
		return fmt.Sprintf("[%#04x]", uint16(op.Disp))
	}
	base := eaBaseExpr[op.RM&7]
	if op.Disp == 0 {
		return "[" + base + "]"
	}
	if op.Disp < 0 {
		return fmt.Sprintf("[%s-%#x]", base, -op.Disp)
	}
	return fmt.Sprintf("[%s+%#x]", base, op.Disp)
}

func (op Operation) operandText(o Operand) string {
	switch o.Kind {
	case OperandReg:
		return op.regName(o.Field)
	case OperandSeg:
		return segRegNames[o.Field&3]
	case OperandEA:
		return op.eaText()
	case OperandImm:
		return fmt.Sprintf("%#x", op.Data)
	case OperandRel:
		return fmt.Sprintf("%#x", uint16(op.NextPos())+uint16(op.Disp))
	case OperandPort:
		if op.Port == 0xFFFF {
			return "DX"
		}
		return fmt.Sprintf("%#x", op.Port)
	case OperandCL:
		return "CL"
	default:
		return ""
	}
}

// String renders the instruction the way a disassembly listing does:
// mnemonic followed by comma-separated operands, destination first.
func (op Operation) String() string {
	var operands []string
	if op.Mnemonic == INT {
		operands = append(operands, fmt.Sprintf("%#x", op.IntType))
	}
	if op.Dst.Kind != OperandNone {
		operands = append(operands, op.operandText(op.Dst))
	}
	if op.Src.Kind != OperandNone {
		operands = append(operands, op.operandText(op.Src))
	}
	name := op.Mnemonic.String()
	if op.RepPrefix {
		prefix := "REPNZ"
		if op.RepZ {
			prefix = "REPZ"
		}
		name = prefix + " " + name
	}
	if len(operands) == 0 {
		return name
	}
	return name + " " + strings.Join(operands, ",")
}
