// Package vm implements the stack machine that executes smart contract
// bytecode against a per contract key/value store, metered by a gas budget.
// The machine only ever touches the storage map and stack handed to it, it
// has no access to any other contract or to chain state.
package vm

import (
	"errors"
	"fmt"
)

// Set of failure modes for a contract execution. All of them abort only the
// current execution, the caller decides what that means for the transaction.
var (
	ErrStackUnderflow = errors.New("stack underflow")
	ErrInvalidOpcode  = errors.New("invalid opcode")
	ErrInvalidCounter = errors.New("program counter out of bounds")
	ErrDivisionByZero = errors.New("division by zero")
	ErrOutOfGas       = errors.New("out of gas")
	ErrInvalidOperand = errors.New("operand kind mismatch")
)

// Machine executes one contract invocation. A machine is single use,
// construct a new one for every execution.
type Machine struct {
	code    []byte
	pc      int
	stack   []Value
	gas     uint64
	storage map[string][]byte
	halted  bool
	result  *Value
}

// New constructs a machine for the specified bytecode with the given gas
// budget. The storage map seeds the contract's persisted state and is
// mutated in place by store instructions, callers that need rollback
// semantics must pass a copy.
func New(code []byte, gas uint64, storage map[string][]byte) *Machine {
	if storage == nil {
		storage = make(map[string][]byte)
	}

	return &Machine{
		code:    code,
		gas:     gas,
		storage: storage,
	}
}

// Storage returns the storage map the machine executed against.
func (m *Machine) Storage() map[string][]byte {
	return m.storage
}

// GasRemaining returns the unspent portion of the gas budget.
func (m *Machine) GasRemaining() uint64 {
	return m.gas
}

// Run executes the bytecode until a return, a stop, the end of the code, or
// a failure. A nil Value with a nil error means execution completed without
// producing a return value.
func (m *Machine) Run() (*Value, error) {
	for {

		// Running off the end of the bytecode ends execution successfully.
		if m.pc >= len(m.code) {
			return nil, nil
		}

		op := Opcode(m.code[m.pc])
		cost, exists := gasCosts[op]
		if !exists {
			return nil, fmt.Errorf("%w: 0x%02x at pc %d", ErrInvalidOpcode, m.code[m.pc], m.pc)
		}

		// Gas is charged for an instruction before it executes.
		if cost > m.gas {
			return nil, ErrOutOfGas
		}
		m.gas -= cost
		m.pc++

		if err := m.step(op); err != nil {
			return nil, err
		}

		if m.halted {
			return m.result, nil
		}
	}
}

func (m *Machine) step(op Opcode) error {
	switch op {
	case OpStop:
		m.halted = true
		return nil

	case OpPush:
		value, n, err := DecodeValue(m.code[m.pc:])
		if err != nil {
			return fmt.Errorf("%w: bad push immediate at pc %d", ErrInvalidOpcode, m.pc-1)
		}
		m.pc += n
		m.push(value)
		return nil

	case OpPop:
		_, err := m.pop()
		return err

	case OpDup:
		value, err := m.pop()
		if err != nil {
			return err
		}
		m.push(value)
		m.push(value)
		return nil

	case OpSwap:
		a, err := m.pop()
		if err != nil {
			return err
		}
		b, err := m.pop()
		if err != nil {
			return err
		}
		m.push(a)
		m.push(b)
		return nil

	case OpAdd, OpSub, OpMul, OpDiv:
		return m.arithmetic(op)

	case OpEq:
		b, err := m.pop()
		if err != nil {
			return err
		}
		a, err := m.pop()
		if err != nil {
			return err
		}
		m.push(Bool(a.Equals(b)))
		return nil

	case OpLt, OpGt:
		b, err := m.popInt()
		if err != nil {
			return err
		}
		a, err := m.popInt()
		if err != nil {
			return err
		}
		if op == OpLt {
			m.push(Bool(a < b))
		} else {
			m.push(Bool(a > b))
		}
		return nil

	case OpAnd, OpOr:
		b, err := m.popBool()
		if err != nil {
			return err
		}
		a, err := m.popBool()
		if err != nil {
			return err
		}
		if op == OpAnd {
			m.push(Bool(a && b))
		} else {
			m.push(Bool(a || b))
		}
		return nil

	case OpNot:
		a, err := m.popBool()
		if err != nil {
			return err
		}
		m.push(Bool(!a))
		return nil

	case OpJump:
		return m.jump()

	case OpJumpIf:
		target, err := m.popInt()
		if err != nil {
			return err
		}
		cond, err := m.popBool()
		if err != nil {
			return err
		}
		if !cond {
			return nil
		}
		return m.jumpTo(target)

	case OpLoad:
		key, err := m.pop()
		if err != nil {
			return err
		}

		// A key that was never stored loads as integer zero.
		raw, exists := m.storage[string(EncodeValue(key))]
		if !exists {
			m.push(Int(0))
			return nil
		}
		value, _, err := DecodeValue(raw)
		if err != nil {
			return err
		}
		m.push(value)
		return nil

	case OpStore:
		key, err := m.pop()
		if err != nil {
			return err
		}
		value, err := m.pop()
		if err != nil {
			return err
		}
		m.storage[string(EncodeValue(key))] = EncodeValue(value)
		return nil

	case OpReturn:
		value, err := m.pop()
		if err != nil {
			return err
		}
		m.halted = true
		m.result = &value
		return nil
	}

	return fmt.Errorf("%w: 0x%02x", ErrInvalidOpcode, byte(op))
}

// =============================================================================

func (m *Machine) arithmetic(op Opcode) error {
	b, err := m.popInt()
	if err != nil {
		return err
	}
	a, err := m.popInt()
	if err != nil {
		return err
	}

	switch op {
	case OpAdd:
		m.push(Int(a + b))
	case OpSub:
		m.push(Int(a - b))
	case OpMul:
		m.push(Int(a * b))
	case OpDiv:
		if b == 0 {
			return ErrDivisionByZero
		}
		m.push(Int(a / b))
	}

	return nil
}

func (m *Machine) jump() error {
	target, err := m.popInt()
	if err != nil {
		return err
	}
	return m.jumpTo(target)
}

func (m *Machine) jumpTo(target int64) error {
	if target < 0 || target >= int64(len(m.code)) {
		return fmt.Errorf("%w: jump target %d", ErrInvalidCounter, target)
	}
	m.pc = int(target)
	return nil
}

func (m *Machine) push(v Value) {
	m.stack = append(m.stack, v)
}

func (m *Machine) pop() (Value, error) {
	if len(m.stack) == 0 {
		return Value{}, ErrStackUnderflow
	}
	value := m.stack[len(m.stack)-1]
	m.stack = m.stack[:len(m.stack)-1]
	return value, nil
}

func (m *Machine) popInt() (int64, error) {
	value, err := m.pop()
	if err != nil {
		return 0, err
	}
	if value.Kind != KindInt {
		return 0, fmt.Errorf("%w: expected int, have %s", ErrInvalidOperand, value)
	}
	return value.Int, nil
}

func (m *Machine) popBool() (bool, error) {
	value, err := m.pop()
	if err != nil {
		return false, err
	}
	if value.Kind != KindBool {
		return false, fmt.Errorf("%w: expected bool, have %s", ErrInvalidOperand, value)
	}
	return value.Bool, nil
}
