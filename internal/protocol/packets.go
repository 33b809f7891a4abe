package protocol

import (
	"errors"
	"fmt"
)

// StringTerminator ends every string written into a game packet.
const StringTerminator = 10

// Length table markers for opcodes without a fixed payload size.
const (
	VariableByteLength  = -1
	VariableShortLength = -2
)

var (
	ErrLengthOverflow   = errors.New("payload too large for packet type")
	ErrUnknownLength    = errors.New("opcode has no length class")
	ErrBufferUnderflow  = errors.New("read past end of payload")
	ErrInvalidOpcode    = errors.New("opcode out of range")
	ErrUnterminatedBits = errors.New("bit access not closed")
)

// PacketType is the length class of a frame.
type PacketType int

const (
	Fixed PacketType = iota
	VariableByte
	VariableShort
)

func (t PacketType) String() string {
	switch t {
	case Fixed:
		return "FIXED"
	case VariableByte:
		return "VARIABLE_BYTE"
	case VariableShort:
		return "VARIABLE_SHORT"
	default:
		return "UNKNOWN"
	}
}

// lengthBytes is the number of length bytes following the opcode.
func (t PacketType) lengthBytes() int {
	switch t {
	case VariableByte:
		return 1
	case VariableShort:
		return 2
	default:
		return 0
	}
}

func (t PacketType) maxLength() int {
	switch t {
	case VariableByte:
		return 0xFF
	case VariableShort:
		return 0xFFFF
	default:
		return 0xFFFF
	}
}

// GamePacket is one complete frame: an opcode and its payload.
type GamePacket struct {
	Opcode  int
	Type    PacketType
	Payload []byte
}

// Length returns the payload size.
func (p *GamePacket) Length() int {
	return len(p.Payload)
}

func (p *GamePacket) String() string {
	return fmt.Sprintf("GamePacket[opcode=%d type=%s length=%d]: %x", p.Opcode, p.Type, len(p.Payload), p.Payload)
}

// LengthTable maps every inbound opcode to a fixed payload size or to one of
// the variable length markers.
type LengthTable [256]int

// Type returns the length class and, for fixed frames, the payload size.
func (t *LengthTable) Type(opcode int) (PacketType, int, error) {
	if opcode < 0 || opcode > 255 {
		return Fixed, 0, fmt.Errorf("%w: %d", ErrInvalidOpcode, opcode)
	}
	switch length := t[opcode]; {
	case length == VariableByteLength:
		return VariableByte, 0, nil
	case length == VariableShortLength:
		return VariableShort, 0, nil
	case length >= 0:
		return Fixed, length, nil
	default:
		return Fixed, 0, fmt.Errorf("%w: opcode %d has length %d", ErrUnknownLength, opcode, length)
	}
}

// Release317Lengths is the client-to-server length table of release 317.
var Release317Lengths = LengthTable{
	0, 0, 0, 1, -1, 0, 0, 0, 0, 0, // 0
	0, 0, 0, 0, 8, 0, 6, 2, 2, 0, // 10
	0, 2, 0, 6, 0, 12, 0, 0, 0, 0, // 20
	0, 0, 0, 0, 0, 8, 4, 0, 0, 2, // 30
	2, 6, 0, 6, 0, -1, 0, 0, 0, 0, // 40
	0, 0, 0, 12, 0, 0, 0, 8, 8, 12, // 50
	8, 8, 0, 0, 0, 0, 0, 0, 0, 0, // 60
	6, 0, 2, 2, 8, 6, 0, -1, 0, 6, // 70
	0, 0, 0, 0, 0, 1, 4, 6, 0, 0, // 80
	0, 0, 0, 0, 0, 3, 0, 0, -1, 0, // 90
	0, 13, 0, -1, 0, 0, 0, 0, 0, 0, // 100
	0, 0, 0, 0, 0, 0, 0, 6, 0, 0, // 110
	1, 0, 6, 0, 0, 0, -1, 0, 2, 6, // 120
	0, 4, 6, 8, 0, 6, 0, 0, 0, 2, // 130
	0, 0, 0, 0, 0, 6, 0, 0, 0, 0, // 140
	0, 0, 1, 2, 0, 2, 6, 0, 0, 0, // 150
	0, 0, 0, 0, -1, -1, 0, 0, 0, 0, // 160
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, // 170
	0, 8, 0, 3, 0, 2, 0, 0, 8, 1, // 180
	0, 0, 12, 0, 0, 0, 0, 0, 0, 0, // 190
	2, 0, 0, 0, 0, 0, 0, 0, 4, 0, // 200
	4, 0, 0, 0, 7, 8, 0, 0, 10, 0, // 210
	0, 0, 0, 0, 0, 0, -1, 0, 6, 0, // 220
	1, 0, 0, 0, 6, 0, 6, 8, 1, 0, // 230
	0, 4, 0, 0, 0, 0, -1, 0, -1, 4, // 240
	0, 0, 6, 6, 0, 0, // 250
}
