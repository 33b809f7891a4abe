package protocol

import "fmt"

// DataType is the width of an encoded integer field.
type DataType int

const (
	Byte DataType = iota
	Short
	Int
	Long
)

// Bytes returns the width of the type in bytes.
func (t DataType) Bytes() int {
	switch t {
	case Byte:
		return 1
	case Short:
		return 2
	case Int:
		return 4
	case Long:
		return 8
	default:
		panic(fmt.Sprintf("protocol: invalid data type %d", int(t)))
	}
}

func (t DataType) String() string {
	switch t {
	case Byte:
		return "BYTE"
	case Short:
		return "SHORT"
	case Int:
		return "INT"
	case Long:
		return "LONG"
	default:
		return "UNKNOWN"
	}
}

// DataOrder selects the physical order in which a field's bytes are emitted.
type DataOrder int

const (
	Big DataOrder = iota
	Little
	Middle
	InverseMiddle
)

func (o DataOrder) String() string {
	switch o {
	case Big:
		return "BIG"
	case Little:
		return "LITTLE"
	case Middle:
		return "MIDDLE"
	case InverseMiddle:
		return "INVERSE_MIDDLE"
	default:
		return "UNKNOWN"
	}
}

// DataTransformation is the reversible arithmetic applied to the least
// significant byte of a field.
type DataTransformation int

const (
	None DataTransformation = iota
	Add
	Subtract
	Negate
	Multiply
)

func (t DataTransformation) String() string {
	switch t {
	case None:
		return "NONE"
	case Add:
		return "ADD"
	case Subtract:
		return "SUBTRACT"
	case Negate:
		return "NEGATE"
	case Multiply:
		return "MULTIPLY"
	default:
		return "UNKNOWN"
	}
}

// MultiplyFactor is the multiplier of the MULTIPLY transformation. It must be
// odd so that it has an inverse modulo 256.
const MultiplyFactor byte = 3

var multiplyInverse = inverseMod256(MultiplyFactor)

func inverseMod256(m byte) byte {
	if m%2 == 0 {
		panic(fmt.Sprintf("protocol: multiplier %d has no inverse mod 256", m))
	}
	for i := 1; i < 256; i += 2 {
		if m*byte(i) == 1 {
			return byte(i)
		}
	}
	panic("unreachable")
}

// emission lists, per order and width, the significance (0 = least
// significant) of each byte in the order it appears on the wire. The middle
// orders are legacy permutations and are only meaningful as data.
var emission = [4][4][]int{
	Big: {
		Byte:  {0},
		Short: {1, 0},
		Int:   {3, 2, 1, 0},
		Long:  {7, 6, 5, 4, 3, 2, 1, 0},
	},
	Little: {
		Byte:  {0},
		Short: {0, 1},
		Int:   {0, 1, 2, 3},
		Long:  {0, 1, 2, 3, 4, 5, 6, 7},
	},
	Middle: {
		Byte:  {0},
		Short: {1, 0},
		Int:   {1, 0, 3, 2},
		Long:  {1, 0, 3, 2, 5, 4, 7, 6},
	},
	InverseMiddle: {
		Byte:  {0},
		Short: {0, 1},
		Int:   {2, 3, 0, 1},
		Long:  {6, 7, 4, 5, 2, 3, 0, 1},
	},
}

// Field describes how one integer is laid out on the wire.
type Field struct {
	Type      DataType
	Order     DataOrder
	Transform DataTransformation
}

func (f Field) String() string {
	return fmt.Sprintf("%s/%s/%s", f.Type, f.Order, f.Transform)
}

func (f Field) layout() []int {
	if f.Order < Big || f.Order > InverseMiddle {
		panic(fmt.Sprintf("protocol: invalid data order %d", int(f.Order)))
	}
	if f.Type < Byte || f.Type > Long {
		panic(fmt.Sprintf("protocol: invalid data type %d", int(f.Type)))
	}
	return emission[f.Order][f.Type]
}

// Write appends value to dst using the field's layout. Values wider than the
// field are truncated.
func Write(dst []byte, f Field, value uint64) []byte {
	for _, significance := range f.layout() {
		b := byte(value >> (8 * significance))
		if significance == 0 {
			b = f.Transform.encode(b)
		}
		dst = append(dst, b)
	}
	return dst
}

// Read decodes a field from the start of src, which must hold at least
// f.Type.Bytes() bytes.
func Read(src []byte, f Field) uint64 {
	var value uint64
	for i, significance := range f.layout() {
		b := src[i]
		if significance == 0 {
			b = f.Transform.decode(b)
		}
		value |= uint64(b) << (8 * significance)
	}
	return value
}

func (t DataTransformation) encode(b byte) byte {
	switch t {
	case None:
		return b
	case Add:
		return b + 128
	case Subtract:
		return 128 - b
	case Negate:
		return -b
	case Multiply:
		return b * MultiplyFactor
	default:
		panic(fmt.Sprintf("protocol: invalid transformation %d", int(t)))
	}
}

func (t DataTransformation) decode(b byte) byte {
	switch t {
	case None:
		return b
	case Add:
		return b - 128
	case Subtract:
		return 128 - b
	case Negate:
		return -b
	case Multiply:
		return b * multiplyInverse
	default:
		panic(fmt.Sprintf("protocol: invalid transformation %d", int(t)))
	}
}

// signExtend interprets the low width bytes of v as a two's complement value.
func signExtend(v uint64, t DataType) int64 {
	shift := 64 - 8*uint(t.Bytes())
	return int64(v<<shift) >> shift
}
