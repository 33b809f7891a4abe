package protocol

import (
	"bytes"
	"fmt"

	"github.com/Rune-Status/aj8/internal/isaac"
)

type frameState int

const (
	stateOpcode frameState = iota
	stateLength
	statePayload
)

// FrameDecoder splits an authenticated byte stream into GamePackets. It never
// blocks: Decode returns a nil packet when the buffer does not yet hold the
// next piece of the frame and picks up from the same point on the next call.
type FrameDecoder struct {
	random  *isaac.Random
	lengths *LengthTable

	state  frameState
	opcode int
	ptype  PacketType
	length int
}

// NewFrameDecoder creates a decoder that de-obfuscates opcodes with random.
func NewFrameDecoder(random *isaac.Random, lengths *LengthTable) *FrameDecoder {
	return &FrameDecoder{random: random, lengths: lengths}
}

// Decode consumes at most one frame from in. The opcode byte is consumed, and
// the keystream advanced, as soon as it is available, so a frame may be split
// across any number of calls.
func (d *FrameDecoder) Decode(in *bytes.Buffer) (*GamePacket, error) {
	if d.state == stateOpcode {
		if in.Len() < 1 {
			return nil, nil
		}
		raw, _ := in.ReadByte()
		d.opcode = int((raw - byte(d.random.NextInt())) & 0xFF)

		ptype, length, err := d.lengths.Type(d.opcode)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve frame length: %w", err)
		}
		d.ptype, d.length = ptype, length
		if ptype == Fixed {
			d.state = statePayload
		} else {
			d.state = stateLength
		}
	}

	if d.state == stateLength {
		n := d.ptype.lengthBytes()
		if in.Len() < n {
			return nil, nil
		}
		d.length = 0
		for i := 0; i < n; i++ {
			b, _ := in.ReadByte()
			d.length = d.length<<8 | int(b)
		}
		d.state = statePayload
	}

	if in.Len() < d.length {
		return nil, nil
	}
	payload := make([]byte, d.length)
	copy(payload, in.Next(d.length))
	d.state = stateOpcode

	return &GamePacket{Opcode: d.opcode, Type: d.ptype, Payload: payload}, nil
}

// Pending reports whether a frame has been started but not completed.
func (d *FrameDecoder) Pending() bool {
	return d.state != stateOpcode
}
