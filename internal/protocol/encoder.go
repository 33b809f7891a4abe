package protocol

import (
	"bytes"
	"fmt"

	"github.com/Rune-Status/aj8/internal/isaac"
)

// FrameEncoder writes GamePackets with obfuscated opcodes.
type FrameEncoder struct {
	random *isaac.Random
}

// NewFrameEncoder creates an encoder that obfuscates opcodes with random.
func NewFrameEncoder(random *isaac.Random) *FrameEncoder {
	return &FrameEncoder{random: random}
}

// Encode appends the frame for p to out. The keystream only advances for
// packets that fit their length class.
func (e *FrameEncoder) Encode(p *GamePacket, out *bytes.Buffer) error {
	if p.Opcode < 0 || p.Opcode > 255 {
		return fmt.Errorf("%w: %d", ErrInvalidOpcode, p.Opcode)
	}
	length := len(p.Payload)
	if p.Type != Fixed && length > p.Type.maxLength() {
		return fmt.Errorf("%w: opcode %d is %s with %d bytes", ErrLengthOverflow, p.Opcode, p.Type, length)
	}

	out.WriteByte(byte(p.Opcode) + byte(e.random.NextInt()))
	switch p.Type {
	case VariableByte:
		out.WriteByte(byte(length))
	case VariableShort:
		out.WriteByte(byte(length >> 8))
		out.WriteByte(byte(length))
	}
	out.Write(p.Payload)
	return nil
}
