package protocol

import (
	"fmt"
)

type accessMode int

const (
	byteAccess accessMode = iota
	bitAccess
)

// Builder constructs the payload of an outbound game packet. Integer writes go
// through the field layouts of codec.go; bit access is used for the
// synchronization packets.
type Builder struct {
	opcode   int
	ptype    PacketType
	buf      []byte
	mode     accessMode
	bitIndex int
}

// NewBuilder creates a builder for a packet with the given opcode and type.
func NewBuilder(opcode int, ptype PacketType) *Builder {
	return &Builder{opcode: opcode, ptype: ptype}
}

// NewRawBuilder creates a builder for a fragment with no header, later
// spliced into another builder with PutRaw.
func NewRawBuilder() *Builder {
	return &Builder{opcode: -1}
}

// Put writes an integer field.
func (b *Builder) Put(t DataType, o DataOrder, tr DataTransformation, value int64) *Builder {
	b.checkByteAccess()
	b.buf = Write(b.buf, Field{Type: t, Order: o, Transform: tr}, uint64(value))
	return b
}

// PutByte writes a plain big-endian byte.
func (b *Builder) PutByte(value int) *Builder {
	return b.Put(Byte, Big, None, int64(value))
}

// PutShort writes a plain big-endian short.
func (b *Builder) PutShort(value int) *Builder {
	return b.Put(Short, Big, None, int64(value))
}

// PutInt writes a plain big-endian int.
func (b *Builder) PutInt(value int) *Builder {
	return b.Put(Int, Big, None, int64(value))
}

// PutString writes the string followed by StringTerminator.
func (b *Builder) PutString(s string) *Builder {
	b.checkByteAccess()
	b.buf = append(b.buf, s...)
	b.buf = append(b.buf, StringTerminator)
	return b
}

// PutBytes writes raw bytes.
func (b *Builder) PutBytes(data []byte) *Builder {
	b.checkByteAccess()
	b.buf = append(b.buf, data...)
	return b
}

// PutRaw appends the payload of a raw builder.
func (b *Builder) PutRaw(other *Builder) *Builder {
	other.checkByteAccess()
	return b.PutBytes(other.buf)
}

// SwitchToBitAccess starts writing at the bit following the last whole byte.
func (b *Builder) SwitchToBitAccess() *Builder {
	if b.mode == bitAccess {
		panic("protocol: already in bit access mode")
	}
	b.mode = bitAccess
	b.bitIndex = len(b.buf) * 8
	return b
}

// SwitchToByteAccess rounds the bit cursor up to the next whole byte.
func (b *Builder) SwitchToByteAccess() *Builder {
	if b.mode == byteAccess {
		panic("protocol: already in byte access mode")
	}
	b.mode = byteAccess
	b.buf = b.buf[:(b.bitIndex+7)/8]
	return b
}

// PutBits writes the low count bits of value, most significant first.
func (b *Builder) PutBits(count int, value int) *Builder {
	if b.mode != bitAccess {
		panic("protocol: PutBits outside bit access mode")
	}
	if count < 1 || count > 32 {
		panic(fmt.Sprintf("protocol: bit count %d out of range", count))
	}
	for i := count - 1; i >= 0; i-- {
		pos := b.bitIndex >> 3
		for pos >= len(b.buf) {
			b.buf = append(b.buf, 0)
		}
		bit := byte(0x80) >> (b.bitIndex & 7)
		if (value>>i)&1 == 1 {
			b.buf[pos] |= bit
		} else {
			b.buf[pos] &^= bit
		}
		b.bitIndex++
	}
	return b
}

// PutBit writes a single flag bit.
func (b *Builder) PutBit(flag bool) *Builder {
	if flag {
		return b.PutBits(1, 1)
	}
	return b.PutBits(1, 0)
}

// Len returns the number of whole bytes written so far.
func (b *Builder) Len() int {
	if b.mode == bitAccess {
		return (b.bitIndex + 7) / 8
	}
	return len(b.buf)
}

// ToGamePacket finishes the builder.
func (b *Builder) ToGamePacket() *GamePacket {
	if b.opcode < 0 {
		panic("protocol: raw builder has no opcode")
	}
	b.checkByteAccess()
	payload := make([]byte, len(b.buf))
	copy(payload, b.buf)
	return &GamePacket{Opcode: b.opcode, Type: b.ptype, Payload: payload}
}

// String returns a hex dump of the current payload for debugging.
func (b *Builder) String() string {
	return fmt.Sprintf("Builder[opcode=%d %d bytes]: %x", b.opcode, len(b.buf), b.buf)
}

func (b *Builder) checkByteAccess() {
	if b.mode != byteAccess {
		panic("protocol: byte write in bit access mode")
	}
}
