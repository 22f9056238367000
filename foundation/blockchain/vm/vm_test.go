package vm_test

import (
	"errors"
	"testing"

	"github.com/minervachain/minerva/foundation/blockchain/vm"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

// =============================================================================

// program builds bytecode from opcodes and push immediates.
func program(parts ...any) []byte {
	var code []byte
	for _, part := range parts {
		switch p := part.(type) {
		case vm.Opcode:
			code = append(code, byte(p))
		case vm.Value:
			code = append(code, byte(vm.OpPush))
			code = append(code, vm.EncodeValue(p)...)
		}
	}
	return code
}

func Test_Execution(t *testing.T) {
	type table struct {
		name   string
		code   []byte
		gas    uint64
		result *vm.Value
		err    error
	}

	tt := []table{
		{
			name:   "arithmetic",
			code:   program(vm.Int(7), vm.Int(3), vm.OpMul, vm.Int(1), vm.OpAdd, vm.OpReturn),
			gas:    100,
			result: &vm.Value{Kind: vm.KindInt, Int: 22},
		},
		{
			name:   "comparison and branch",
			code:   program(vm.Int(2), vm.Int(5), vm.OpLt, vm.Bool(true), vm.OpAnd, vm.OpReturn),
			gas:    100,
			result: &vm.Value{Kind: vm.KindBool, Bool: true},
		},
		{
			name: "off the end is success",
			code: program(vm.Int(1), vm.Int(2), vm.OpAdd),
			gas:  100,
		},
		{
			name: "division by zero",
			code: program(vm.Int(1), vm.Int(0), vm.OpDiv, vm.OpReturn),
			gas:  100,
			err:  vm.ErrDivisionByZero,
		},
		{
			name: "stack underflow",
			code: program(vm.OpAdd),
			gas:  100,
			err:  vm.ErrStackUnderflow,
		},
		{
			name: "out of gas",
			code: program(vm.Int(7), vm.Int(3), vm.OpMul, vm.OpReturn),
			gas:  5,
			err:  vm.ErrOutOfGas,
		},
		{
			name: "jump out of bounds",
			code: program(vm.Int(1000), vm.OpJump),
			gas:  100,
			err:  vm.ErrInvalidCounter,
		},
		{
			name: "invalid opcode",
			code: []byte{0xFF},
			gas:  100,
			err:  vm.ErrInvalidOpcode,
		},
		{
			name: "operand kind mismatch",
			code: program(vm.Bool(true), vm.Int(1), vm.OpAdd),
			gas:  100,
			err:  vm.ErrInvalidOperand,
		},
	}

	t.Log("Given the need to execute contract bytecode.")
	{
		for testID, tst := range tt {
			t.Logf("\tTest %d:\tWhen running the %s program.", testID, tst.name)
			{
				f := func(t *testing.T) {
					machine := vm.New(tst.code, tst.gas, nil)
					result, err := machine.Run()

					if tst.err != nil {
						if !errors.Is(err, tst.err) {
							t.Fatalf("\t%s\tTest %d:\tShould get error %v: %v", failed, testID, tst.err, err)
						}
						t.Logf("\t%s\tTest %d:\tShould get error %v.", success, testID, tst.err)
						return
					}

					if err != nil {
						t.Fatalf("\t%s\tTest %d:\tShould run without error: %v", failed, testID, err)
					}
					t.Logf("\t%s\tTest %d:\tShould run without error.", success, testID)

					switch {
					case tst.result == nil:
						if result != nil {
							t.Fatalf("\t%s\tTest %d:\tShould produce no return value: %v", failed, testID, result)
						}
						t.Logf("\t%s\tTest %d:\tShould produce no return value.", success, testID)

					default:
						if result == nil || !result.Equals(*tst.result) {
							t.Fatalf("\t%s\tTest %d:\tShould return %v, got %v", failed, testID, tst.result, result)
						}
						t.Logf("\t%s\tTest %d:\tShould return %v.", success, testID, tst.result)
					}
				}

				t.Run(tst.name, f)
			}
		}
	}
}

func Test_Storage(t *testing.T) {
	t.Log("Given the need to persist contract state through store and load.")
	{
		t.Logf("\tTest 0:\tWhen storing and loading a value.")
		{
			code := program(
				vm.Int(700), vm.Addr("supply"), vm.OpStore,
				vm.Addr("supply"), vm.OpLoad, vm.OpReturn,
			)

			machine := vm.New(code, 1000, nil)
			result, err := machine.Run()
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould run without error: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould run without error.", success)

			if result == nil || !result.Equals(vm.Int(700)) {
				t.Fatalf("\t%s\tTest 0:\tShould load the stored value back: %v", failed, result)
			}
			t.Logf("\t%s\tTest 0:\tShould load the stored value back.", success)

			raw, exists := machine.Storage()[string(vm.EncodeValue(vm.Addr("supply")))]
			if !exists {
				t.Fatalf("\t%s\tTest 0:\tShould find the key in storage.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould find the key in storage.", success)

			value, _, err := vm.DecodeValue(raw)
			if err != nil || !value.Equals(vm.Int(700)) {
				t.Fatalf("\t%s\tTest 0:\tShould decode the stored value: %v %v", failed, value, err)
			}
			t.Logf("\t%s\tTest 0:\tShould decode the stored value.", success)
		}

		t.Logf("\tTest 1:\tWhen loading a key that was never stored.")
		{
			code := program(vm.Addr("missing"), vm.OpLoad, vm.OpReturn)

			machine := vm.New(code, 1000, nil)
			result, err := machine.Run()
			if err != nil {
				t.Fatalf("\t%s\tTest 1:\tShould run without error: %v", failed, err)
			}
			t.Logf("\t%s\tTest 1:\tShould run without error.", success)

			if result == nil || !result.Equals(vm.Int(0)) {
				t.Fatalf("\t%s\tTest 1:\tShould load integer zero: %v", failed, result)
			}
			t.Logf("\t%s\tTest 1:\tShould load integer zero.", success)
		}
	}
}

func Test_GasAccounting(t *testing.T) {
	t.Log("Given the need to meter execution with a gas budget.")
	{
		t.Logf("\tTest 0:\tWhen running a program to completion.")
		{
			// PUSH(3) + PUSH(3) + ADD(5) + RET(1) = 12
			code := program(vm.Int(1), vm.Int(2), vm.OpAdd, vm.OpReturn)

			machine := vm.New(code, 50, nil)
			if _, err := machine.Run(); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould run without error: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould run without error.", success)

			if machine.GasRemaining() != 38 {
				t.Fatalf("\t%s\tTest 0:\tShould have 38 gas remaining, got %d", failed, machine.GasRemaining())
			}
			t.Logf("\t%s\tTest 0:\tShould have 38 gas remaining.", success)
		}

		t.Logf("\tTest 1:\tWhen the budget runs out mid store.")
		{
			storage := map[string][]byte{}
			code := program(vm.Int(1), vm.Addr("a"), vm.OpStore)

			// Enough for the pushes but not the store.
			machine := vm.New(code, 7, storage)
			if _, err := machine.Run(); !errors.Is(err, vm.ErrOutOfGas) {
				t.Fatalf("\t%s\tTest 1:\tShould fail with out of gas: %v", failed, err)
			}
			t.Logf("\t%s\tTest 1:\tShould fail with out of gas.", success)

			if len(storage) != 0 {
				t.Fatalf("\t%s\tTest 1:\tShould leave storage untouched.", failed)
			}
			t.Logf("\t%s\tTest 1:\tShould leave storage untouched.", success)
		}
	}
}
