package protocol

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Rune-Status/aj8/internal/isaac"
)

var testSeed = isaac.Seed(0x1122334455667788, 0x99AABBCCDDEEFF00)

func testPackets() []*GamePacket {
	return []*GamePacket{
		{Opcode: 0, Type: Fixed, Payload: []byte{}},
		{Opcode: 185, Type: Fixed, Payload: []byte{0x09, 0x9A}},
		{Opcode: 4, Type: VariableByte, Payload: []byte("some chat")},
		{Opcode: 122, Type: Fixed, Payload: []byte{1, 2, 3, 4, 5, 6}},
		{Opcode: 248, Type: VariableByte, Payload: bytes.Repeat([]byte{7}, 40)},
		{Opcode: 3, Type: Fixed, Payload: []byte{1}},
	}
}

// clientStream frames packets the way the client does: obfuscated with the
// client's encode generator.
func clientStream(t *testing.T, packets []*GamePacket) []byte {
	t.Helper()
	client := isaac.NewClientPair(testSeed)
	enc := NewFrameEncoder(client.Encode)

	var out bytes.Buffer
	for _, p := range packets {
		require.NoError(t, enc.Encode(p, &out))
	}
	return out.Bytes()
}

func decodeAll(t *testing.T, d *FrameDecoder, in *bytes.Buffer) []*GamePacket {
	t.Helper()
	var out []*GamePacket
	for {
		p, err := d.Decode(in)
		require.NoError(t, err)
		if p == nil {
			return out
		}
		out = append(out, p)
	}
}

func TestFrameDecoderWholeStream(t *testing.T) {
	packets := testPackets()
	in := bytes.NewBuffer(clientStream(t, packets))

	d := NewFrameDecoder(isaac.NewPair(testSeed).Decode, &Release317Lengths)
	got := decodeAll(t, d, in)

	require.Len(t, got, len(packets))
	for i, p := range packets {
		assert.Equal(t, p.Opcode, got[i].Opcode)
		assert.Equal(t, p.Type, got[i].Type)
		assert.Equal(t, p.Payload, got[i].Payload)
	}
	assert.Zero(t, in.Len())
	assert.False(t, d.Pending())
}

func TestFrameDecoderByteAtATime(t *testing.T) {
	packets := testPackets()
	stream := clientStream(t, packets)

	d := NewFrameDecoder(isaac.NewPair(testSeed).Decode, &Release317Lengths)
	var in bytes.Buffer
	var got []*GamePacket
	for _, b := range stream {
		in.WriteByte(b)
		got = append(got, decodeAll(t, d, &in)...)
	}

	require.Len(t, got, len(packets))
	for i, p := range packets {
		assert.Equal(t, p.Opcode, got[i].Opcode)
		assert.Equal(t, p.Payload, got[i].Payload)
	}
}

func TestFrameDecoderVariableShort(t *testing.T) {
	lengths := Release317Lengths
	lengths[200] = VariableShortLength
	payload := bytes.Repeat([]byte{0xAB}, 300)

	client := isaac.NewClientPair(testSeed)
	var in bytes.Buffer
	require.NoError(t, NewFrameEncoder(client.Encode).Encode(&GamePacket{Opcode: 200, Type: VariableShort, Payload: payload}, &in))
	require.Equal(t, 3+300, in.Len())

	d := NewFrameDecoder(isaac.NewPair(testSeed).Decode, &lengths)
	p, err := d.Decode(&in)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, VariableShort, p.Type)
	assert.Equal(t, payload, p.Payload)
}

func TestFrameDecoderInvalidLengthClass(t *testing.T) {
	lengths := Release317Lengths
	lengths[0] = -5

	client := isaac.NewClientPair(testSeed)
	var in bytes.Buffer
	require.NoError(t, NewFrameEncoder(client.Encode).Encode(&GamePacket{Opcode: 0}, &in))

	_, err := NewFrameDecoder(isaac.NewPair(testSeed).Decode, &lengths).Decode(&in)
	assert.ErrorIs(t, err, ErrUnknownLength)
}

func TestFrameEncoderLayout(t *testing.T) {
	pair := isaac.NewPair(testSeed)
	mirror := isaac.NewClientPair(testSeed)
	enc := NewFrameEncoder(pair.Encode)

	var out bytes.Buffer
	require.NoError(t, enc.Encode(&GamePacket{Opcode: 253, Type: VariableByte, Payload: []byte("hi\n")}, &out))
	require.NoError(t, enc.Encode(&GamePacket{Opcode: 126, Type: VariableShort, Payload: []byte{1, 2}}, &out))
	wire := out.Bytes()

	require.Len(t, wire, 1+1+3+1+2+2)
	assert.Equal(t, byte(253), wire[0]-byte(mirror.Decode.NextInt()))
	assert.Equal(t, byte(3), wire[1])
	assert.Equal(t, []byte("hi\n"), wire[2:5])
	assert.Equal(t, byte(126), wire[5]-byte(mirror.Decode.NextInt()))
	assert.Equal(t, []byte{0, 2, 1, 2}, wire[6:])
}

func TestFrameEncoderOverflow(t *testing.T) {
	enc := NewFrameEncoder(isaac.New(nil))
	var out bytes.Buffer

	err := enc.Encode(&GamePacket{Opcode: 253, Type: VariableByte, Payload: make([]byte, 256)}, &out)
	assert.ErrorIs(t, err, ErrLengthOverflow)
	assert.Zero(t, out.Len())

	err = enc.Encode(&GamePacket{Opcode: 300}, &out)
	assert.ErrorIs(t, err, ErrInvalidOpcode)
}
