package message

import (
	"errors"
	"fmt"

	"github.com/Rune-Status/aj8/internal/protocol"
)

var (
	// ErrUnknownOpcode means no decoder is bound. The frame is already fully
	// consumed, so the stream stays in sync and the frame can be dropped.
	ErrUnknownOpcode = errors.New("no decoder for opcode")
	// ErrDecoderUnderrun means a decoder left payload bytes unread.
	ErrDecoderUnderrun = errors.New("decoder did not consume the whole payload")
	// ErrDecoderOverrun means a decoder read past the end of the payload.
	ErrDecoderOverrun = errors.New("decoder read past the payload")
)

// Decoder converts an inbound packet to a message. The reader is positioned
// at the start of the payload and must be left exactly at its end.
type Decoder func(r *protocol.Reader, p *protocol.GamePacket) (Message, error)

// Encoder converts an outbound message to a packet.
type Encoder func(m Message) *protocol.GamePacket

// DecoderBinding binds a decoder to an inbound opcode.
type DecoderBinding struct {
	Opcode int
	Decode Decoder
}

// EncoderBinding binds an encoder to an outbound message type.
type EncoderBinding struct {
	Type   Type
	Encode Encoder
}

// Registry is the immutable codec table of one protocol release.
type Registry struct {
	lengths  *protocol.LengthTable
	decoders [256]Decoder
	encoders map[Type]Encoder
}

// NewRegistry builds a registry from explicit bindings. Duplicate opcodes or
// types, and decoders for opcodes without a length class, are rejected.
func NewRegistry(lengths *protocol.LengthTable, decoders []DecoderBinding, encoders []EncoderBinding) (*Registry, error) {
	r := &Registry{
		lengths:  lengths,
		encoders: make(map[Type]Encoder, len(encoders)),
	}

	for _, b := range decoders {
		if b.Opcode < 0 || b.Opcode > 255 {
			return nil, fmt.Errorf("decoder opcode %d out of range", b.Opcode)
		}
		if b.Decode == nil {
			return nil, fmt.Errorf("nil decoder for opcode %d", b.Opcode)
		}
		if r.decoders[b.Opcode] != nil {
			return nil, fmt.Errorf("duplicate decoder for opcode %d", b.Opcode)
		}
		if _, _, err := lengths.Type(b.Opcode); err != nil {
			return nil, fmt.Errorf("decoder for opcode %d: %w", b.Opcode, err)
		}
		r.decoders[b.Opcode] = b.Decode
	}

	for _, b := range encoders {
		if b.Encode == nil {
			return nil, fmt.Errorf("nil encoder for %s", b.Type)
		}
		if _, ok := r.encoders[b.Type]; ok {
			return nil, fmt.Errorf("duplicate encoder for %s", b.Type)
		}
		r.encoders[b.Type] = b.Encode
	}

	return r, nil
}

// Lengths returns the inbound length table used for framing.
func (r *Registry) Lengths() *protocol.LengthTable {
	return r.lengths
}

// CanDecode reports whether a decoder is bound to opcode.
func (r *Registry) CanDecode(opcode int) bool {
	return opcode >= 0 && opcode < len(r.decoders) && r.decoders[opcode] != nil
}

// CanEncode reports whether an encoder is bound to t.
func (r *Registry) CanEncode(t Type) bool {
	_, ok := r.encoders[t]
	return ok
}

// Decode dispatches p to its decoder and verifies that exactly the payload
// was consumed. ErrUnknownOpcode is recoverable; any other error means the
// decoder and the wire disagree and the connection should be dropped.
func (r *Registry) Decode(p *protocol.GamePacket) (Message, error) {
	if !r.CanDecode(p.Opcode) {
		return nil, fmt.Errorf("%w: %d", ErrUnknownOpcode, p.Opcode)
	}

	reader := protocol.NewReader(p.Payload)
	msg, err := r.decoders[p.Opcode](reader, p)
	if err != nil {
		return nil, fmt.Errorf("failed to decode opcode %d: %w", p.Opcode, err)
	}
	if err := reader.Err(); err != nil {
		return nil, fmt.Errorf("%w: opcode %d: %v", ErrDecoderOverrun, p.Opcode, err)
	}
	if n := reader.Remaining(); n != 0 {
		return nil, fmt.Errorf("%w: opcode %d left %d of %d bytes", ErrDecoderUnderrun, p.Opcode, n, p.Length())
	}
	return msg, nil
}

// Encode converts m to a packet. Encoding a type without an encoder is a
// programming error and panics.
func (r *Registry) Encode(m Message) *protocol.GamePacket {
	enc, ok := r.encoders[m.Type()]
	if !ok {
		panic(fmt.Sprintf("message: no encoder registered for %s (%T)", m.Type(), m))
	}
	return enc(m)
}
