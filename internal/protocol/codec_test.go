package protocol

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	allTypes      = []DataType{Byte, Short, Int, Long}
	allOrders     = []DataOrder{Big, Little, Middle, InverseMiddle}
	allTransforms = []DataTransformation{None, Add, Subtract, Negate, Multiply}
)

func widthMask(t DataType) uint64 {
	if t == Long {
		return ^uint64(0)
	}
	return 1<<(8*uint(t.Bytes())) - 1
}

func sampleValues(t DataType, rng *rand.Rand) []uint64 {
	if t == Byte {
		values := make([]uint64, 256)
		for i := range values {
			values[i] = uint64(i)
		}
		return values
	}
	values := []uint64{0, 1, 127, 128, 255, 256, widthMask(t), widthMask(t) - 1, widthMask(t) >> 1}
	for i := 0; i < 200; i++ {
		values = append(values, rng.Uint64())
	}
	return values
}

func TestFieldRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(317))

	for _, typ := range allTypes {
		for _, order := range allOrders {
			for _, tr := range allTransforms {
				f := Field{Type: typ, Order: order, Transform: tr}
				t.Run(f.String(), func(t *testing.T) {
					for _, v := range sampleValues(typ, rng) {
						encoded := Write(nil, f, v)
						require.Len(t, encoded, typ.Bytes())
						assert.Equal(t, v&widthMask(typ), Read(encoded, f), "value %#x", v)
					}
				})
			}
		}
	}
}

func TestFieldWireLayout(t *testing.T) {
	tests := []struct {
		name  string
		field Field
		value uint64
		wire  []byte
	}{
		{"byte", Field{Byte, Big, None}, 0x7F, []byte{0x7F}},
		{"byte add", Field{Byte, Big, Add}, 5, []byte{0x85}},
		{"byte subtract", Field{Byte, Big, Subtract}, 5, []byte{0x7B}},
		{"byte negate", Field{Byte, Big, Negate}, 5, []byte{0xFB}},
		{"byte multiply", Field{Byte, Big, Multiply}, 5, []byte{0x0F}},
		{"short big", Field{Short, Big, None}, 0x1234, []byte{0x12, 0x34}},
		{"short little", Field{Short, Little, None}, 0x1234, []byte{0x34, 0x12}},
		{"short big add", Field{Short, Big, Add}, 0x1234, []byte{0x12, 0xB4}},
		{"short little add", Field{Short, Little, Add}, 0x1234, []byte{0xB4, 0x12}},
		{"int big", Field{Int, Big, None}, 0x01020304, []byte{0x01, 0x02, 0x03, 0x04}},
		{"int little", Field{Int, Little, None}, 0x01020304, []byte{0x04, 0x03, 0x02, 0x01}},
		{"int middle", Field{Int, Middle, None}, 0x01020304, []byte{0x03, 0x04, 0x01, 0x02}},
		{"int inverse middle", Field{Int, InverseMiddle, None}, 0x01020304, []byte{0x02, 0x01, 0x04, 0x03}},
		{"long big", Field{Long, Big, None}, 0x0102030405060708, []byte{1, 2, 3, 4, 5, 6, 7, 8}},
		{"truncated", Field{Short, Big, None}, 0xABCDEF, []byte{0xCD, 0xEF}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wire, Write(nil, tt.field, tt.value))
		})
	}
}

func TestMultiplyInverse(t *testing.T) {
	assert.Equal(t, byte(171), multiplyInverse)
	assert.Equal(t, byte(1), MultiplyFactor*multiplyInverse)
	assert.Panics(t, func() { inverseMod256(4) })
}

func TestSignExtend(t *testing.T) {
	assert.Equal(t, int64(-1), signExtend(0xFF, Byte))
	assert.Equal(t, int64(127), signExtend(0x7F, Byte))
	assert.Equal(t, int64(-2), signExtend(0xFFFE, Short))
	assert.Equal(t, int64(-1), signExtend(0xFFFFFFFF, Int))
	assert.Equal(t, int64(0x7FFFFFFF), signExtend(0x7FFFFFFF, Int))
}

func TestInvalidFieldPanics(t *testing.T) {
	assert.Panics(t, func() { Write(nil, Field{Type: DataType(9)}, 1) })
	assert.Panics(t, func() { Write(nil, Field{Order: DataOrder(9)}, 1) })
	assert.Panics(t, func() { Write(nil, Field{Transform: DataTransformation(9)}, 1) })
}
