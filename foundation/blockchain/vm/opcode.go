package vm

// Opcode identifies a single machine instruction. Opcodes share nothing with
// the network message type values, the two numbering spaces are independent.
type Opcode byte

// Set of instructions the machine understands.
const (
	OpStop Opcode = 0x00
	OpPush Opcode = 0x01
	OpPop  Opcode = 0x02
	OpDup  Opcode = 0x03
	OpSwap Opcode = 0x04

	OpAdd Opcode = 0x10
	OpSub Opcode = 0x11
	OpMul Opcode = 0x12
	OpDiv Opcode = 0x13

	OpEq Opcode = 0x20
	OpLt Opcode = 0x21
	OpGt Opcode = 0x22

	OpAnd Opcode = 0x23
	OpOr  Opcode = 0x24
	OpNot Opcode = 0x25

	OpJump   Opcode = 0x30
	OpJumpIf Opcode = 0x31

	OpLoad  Opcode = 0x40
	OpStore Opcode = 0x41

	OpReturn Opcode = 0x50
)

// gasCosts fixes the gas deducted for each instruction before it executes.
// An opcode missing from this table is not a valid instruction.
var gasCosts = map[Opcode]uint64{
	OpStop:   1,
	OpPush:   3,
	OpPop:    2,
	OpDup:    3,
	OpSwap:   3,
	OpAdd:    5,
	OpSub:    5,
	OpMul:    5,
	OpDiv:    5,
	OpEq:     3,
	OpLt:     3,
	OpGt:     3,
	OpAnd:    3,
	OpOr:     3,
	OpNot:    3,
	OpJump:   8,
	OpJumpIf: 10,
	OpLoad:   20,
	OpStore:  20,
	OpReturn: 1,
}

// String implements the fmt.Stringer interface.
func (op Opcode) String() string {
	names := map[Opcode]string{
		OpStop: "STOP", OpPush: "PUSH", OpPop: "POP", OpDup: "DUP",
		OpSwap: "SWAP", OpAdd: "ADD", OpSub: "SUB", OpMul: "MUL",
		OpDiv: "DIV", OpEq: "EQ", OpLt: "LT", OpGt: "GT", OpAnd: "AND",
		OpOr: "OR", OpNot: "NOT", OpJump: "JMP", OpJumpIf: "JMPIF",
		OpLoad: "LOAD", OpStore: "STORE", OpReturn: "RET",
	}

	name, exists := names[op]
	if !exists {
		return "INVALID"
	}
	return name
}
