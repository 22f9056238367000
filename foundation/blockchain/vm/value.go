package vm

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Set of value kinds the machine operates on. The kind byte doubles as the
// wire tag when a value is encoded for storage or as a push immediate.
const (
	KindInt   byte = 0x01
	KindBool  byte = 0x02
	KindAddr  byte = 0x03
	KindBytes byte = 0x04
)

// ErrValueCorrupt is returned when an encoded value can't be decoded.
var ErrValueCorrupt = errors.New("corrupt value encoding")

// Value represents a single typed value on the machine stack or inside
// contract storage.
type Value struct {
	Kind  byte
	Int   int64
	Bool  bool
	Addr  string
	Bytes []byte
}

// Int constructs an integer value.
func Int(v int64) Value {
	return Value{Kind: KindInt, Int: v}
}

// Bool constructs a boolean value.
func Bool(v bool) Value {
	return Value{Kind: KindBool, Bool: v}
}

// Addr constructs an address value.
func Addr(v string) Value {
	return Value{Kind: KindAddr, Addr: v}
}

// Bytes constructs a raw bytes value.
func Bytes(v []byte) Value {
	return Value{Kind: KindBytes, Bytes: v}
}

// Equals reports whether two values have the same kind and payload.
func (v Value) Equals(other Value) bool {
	if v.Kind != other.Kind {
		return false
	}

	switch v.Kind {
	case KindInt:
		return v.Int == other.Int
	case KindBool:
		return v.Bool == other.Bool
	case KindAddr:
		return v.Addr == other.Addr
	case KindBytes:
		return string(v.Bytes) == string(other.Bytes)
	}

	return false
}

// String implements the fmt.Stringer interface.
func (v Value) String() string {
	switch v.Kind {
	case KindInt:
		return fmt.Sprintf("int(%d)", v.Int)
	case KindBool:
		return fmt.Sprintf("bool(%t)", v.Bool)
	case KindAddr:
		return fmt.Sprintf("addr(%s)", v.Addr)
	case KindBytes:
		return fmt.Sprintf("bytes(%x)", v.Bytes)
	}

	return fmt.Sprintf("unknown(0x%02x)", v.Kind)
}

// =============================================================================

// EncodeValue converts a value into its tagged byte representation. This is
// the single encoding point for storage entries, storage keys and push
// immediates.
func EncodeValue(v Value) []byte {
	switch v.Kind {
	case KindInt:
		data := make([]byte, 9)
		data[0] = KindInt
		binary.BigEndian.PutUint64(data[1:], uint64(v.Int))
		return data

	case KindBool:
		data := make([]byte, 2)
		data[0] = KindBool
		if v.Bool {
			data[1] = 1
		}
		return data

	case KindAddr:
		data := make([]byte, 0, 2+len(v.Addr))
		data = append(data, KindAddr, byte(len(v.Addr)))
		return append(data, v.Addr...)

	case KindBytes:
		data := make([]byte, 5, 5+len(v.Bytes))
		data[0] = KindBytes
		binary.BigEndian.PutUint32(data[1:5], uint32(len(v.Bytes)))
		return append(data, v.Bytes...)
	}

	return nil
}

// DecodeValue reads one tagged value from the front of the specified bytes.
// It returns the value and the number of bytes consumed.
func DecodeValue(data []byte) (Value, int, error) {
	if len(data) == 0 {
		return Value{}, 0, ErrValueCorrupt
	}

	switch data[0] {
	case KindInt:
		if len(data) < 9 {
			return Value{}, 0, ErrValueCorrupt
		}
		return Int(int64(binary.BigEndian.Uint64(data[1:9]))), 9, nil

	case KindBool:
		if len(data) < 2 {
			return Value{}, 0, ErrValueCorrupt
		}
		return Bool(data[1] == 1), 2, nil

	case KindAddr:
		if len(data) < 2 {
			return Value{}, 0, ErrValueCorrupt
		}
		n := int(data[1])
		if len(data) < 2+n {
			return Value{}, 0, ErrValueCorrupt
		}
		return Addr(string(data[2 : 2+n])), 2 + n, nil

	case KindBytes:
		if len(data) < 5 {
			return Value{}, 0, ErrValueCorrupt
		}
		n := int(binary.BigEndian.Uint32(data[1:5]))
		if len(data) < 5+n {
			return Value{}, 0, ErrValueCorrupt
		}
		raw := make([]byte, n)
		copy(raw, data[5:5+n])
		return Bytes(raw), 5 + n, nil
	}

	return Value{}, 0, ErrValueCorrupt
}
