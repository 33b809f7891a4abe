package message

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Rune-Status/aj8/internal/model"
	"github.com/Rune-Status/aj8/internal/protocol"
)

func packet(opcode int, b *protocol.Builder) *protocol.GamePacket {
	ptype, _, _ := protocol.Release317Lengths.Type(opcode)
	return protocol.NewBuilder(opcode, ptype).PutRaw(b).ToGamePacket()
}

func TestRelease317Builds(t *testing.T) {
	r := Release317()

	for _, b := range release317Decoders() {
		assert.True(t, r.CanDecode(b.Opcode), "opcode %d", b.Opcode)
	}
	for _, b := range release317Encoders() {
		assert.True(t, r.CanEncode(b.Type), "type %s", b.Type)
	}
	assert.False(t, r.CanDecode(4))
	assert.False(t, r.CanDecode(-1))
	assert.Same(t, &protocol.Release317Lengths, r.Lengths())
}

func TestNewRegistryRejectsDuplicates(t *testing.T) {
	lengths := &protocol.Release317Lengths

	_, err := NewRegistry(lengths, []DecoderBinding{
		{Opcode: 0, Decode: decodeKeepAlive},
		{Opcode: 0, Decode: decodeKeepAlive},
	}, nil)
	assert.Error(t, err)

	_, err = NewRegistry(lengths, nil, []EncoderBinding{
		{Type: TypeLogout, Encode: encodeLogout},
		{Type: TypeLogout, Encode: encodeLogout},
	})
	assert.Error(t, err)

	_, err = NewRegistry(lengths, []DecoderBinding{{Opcode: 256, Decode: decodeKeepAlive}}, nil)
	assert.Error(t, err)

	_, err = NewRegistry(lengths, []DecoderBinding{{Opcode: 1}}, nil)
	assert.Error(t, err)
}

func TestDecodeUnknownOpcode(t *testing.T) {
	r := Release317()

	_, err := r.Decode(&protocol.GamePacket{Opcode: 4, Type: protocol.VariableByte, Payload: []byte{1, 2, 3}})
	assert.ErrorIs(t, err, ErrUnknownOpcode)
}

func TestDecodeConsumptionGuards(t *testing.T) {
	lazy := func(r *protocol.Reader, _ *protocol.GamePacket) (Message, error) {
		r.UnsignedByte()
		return ButtonMessage{}, nil
	}
	greedy := func(r *protocol.Reader, _ *protocol.GamePacket) (Message, error) {
		r.Unsigned(protocol.Int, protocol.Big, protocol.None)
		return ButtonMessage{}, nil
	}
	r, err := NewRegistry(&protocol.Release317Lengths, []DecoderBinding{
		{Opcode: 185, Decode: lazy},
		{Opcode: 40, Decode: greedy},
	}, nil)
	require.NoError(t, err)

	_, err = r.Decode(&protocol.GamePacket{Opcode: 185, Payload: []byte{1, 2}})
	assert.ErrorIs(t, err, ErrDecoderUnderrun)

	_, err = r.Decode(&protocol.GamePacket{Opcode: 40, Payload: []byte{1, 2}})
	assert.ErrorIs(t, err, ErrDecoderOverrun)
}

func TestEncodeUnregisteredPanics(t *testing.T) {
	r, err := NewRegistry(&protocol.Release317Lengths, nil, nil)
	require.NoError(t, err)

	assert.Panics(t, func() { r.Encode(LogoutMessage{}) })
}

func TestDecodeInbound(t *testing.T) {
	r := Release317()

	tests := []struct {
		name   string
		packet *protocol.GamePacket
		want   Message
	}{
		{
			name:   "keep alive",
			packet: packet(0, protocol.NewRawBuilder()),
			want:   KeepAliveMessage{},
		},
		{
			name:   "focus",
			packet: packet(3, protocol.NewRawBuilder().PutByte(1)),
			want:   FocusUpdateMessage{Focused: true},
		},
		{
			name:   "button",
			packet: packet(185, protocol.NewRawBuilder().PutShort(2458)),
			want:   ButtonMessage{Widget: 2458},
		},
		{
			name:   "command",
			packet: packet(103, protocol.NewRawBuilder().PutString("TELE 3222 3218")),
			want:   CommandMessage{Command: "tele", Arguments: []string{"3222", "3218"}},
		},
		{
			name: "first item action",
			packet: packet(122, protocol.NewRawBuilder().
				Put(protocol.Short, protocol.Little, protocol.Add, 3214).
				Put(protocol.Short, protocol.Big, protocol.Add, 5).
				Put(protocol.Short, protocol.Little, protocol.None, 995)),
			want: ItemActionMessage{Option: ItemOptionOne, InterfaceID: 3214, ID: 995, Slot: 5},
		},
		{
			name: "fifth item action",
			packet: packet(16, protocol.NewRawBuilder().
				Put(protocol.Short, protocol.Big, protocol.Add, 995).
				Put(protocol.Short, protocol.Little, protocol.Add, 7).
				Put(protocol.Short, protocol.Little, protocol.Add, 3214)),
			want: ItemActionMessage{Option: ItemOptionFive, InterfaceID: 3214, ID: 995, Slot: 7},
		},
		{
			name: "switch item",
			packet: packet(214, protocol.NewRawBuilder().
				Put(protocol.Short, protocol.Little, protocol.Add, 3214).
				Put(protocol.Byte, protocol.Big, protocol.Negate, 1).
				Put(protocol.Short, protocol.Little, protocol.Add, 2).
				Put(protocol.Short, protocol.Little, protocol.None, 9)),
			want: SwitchItemMessage{InterfaceID: 3214, Inserting: true, OldSlot: 2, NewSlot: 9},
		},
		{
			name:   "mouse click",
			packet: packet(241, protocol.NewRawBuilder().PutInt(3<<20|1<<19|(20*765+100))),
			want:   MouseClickMessage{Delay: 150, RightClick: true, X: 100, Y: 20},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Decode(tt.packet)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func walkPayload(x, y int, deltas [][2]int, run bool) *protocol.Builder {
	b := protocol.NewRawBuilder().Put(protocol.Short, protocol.Little, protocol.Add, int64(x))
	for _, d := range deltas {
		b.Put(protocol.Byte, protocol.Big, protocol.None, int64(d[0]))
		b.Put(protocol.Byte, protocol.Big, protocol.None, int64(d[1]))
	}
	runFlag := int64(0)
	if run {
		runFlag = 1
	}
	return b.Put(protocol.Short, protocol.Little, protocol.None, int64(y)).
		Put(protocol.Byte, protocol.Big, protocol.Negate, runFlag)
}

func TestDecodeWalk(t *testing.T) {
	r := Release317()
	deltas := [][2]int{{1, 0}, {3, -2}}
	want := WalkMessage{
		Steps: []model.Position{
			model.NewPosition(3222, 3218),
			model.NewPosition(3223, 3218),
			model.NewPosition(3225, 3216),
		},
		Run: true,
	}

	got, err := r.Decode(packet(164, walkPayload(3222, 3218, deltas, true)))
	require.NoError(t, err)
	assert.Equal(t, want, got)

	minimap := walkPayload(3222, 3218, deltas, true).PutBytes(make([]byte, minimapWalkPadding))
	got, err = r.Decode(packet(248, minimap))
	require.NoError(t, err)
	assert.Equal(t, want, got)

	_, err = r.Decode(packet(98, protocol.NewRawBuilder().PutShort(1)))
	assert.Error(t, err)
}

func TestEncodeOutbound(t *testing.T) {
	r := Release317()

	tests := []struct {
		name    string
		msg     Message
		opcode  int
		ptype   protocol.PacketType
		payload []byte
	}{
		{"id assignment", IDAssignmentMessage{Index: 1, Members: true}, 249, protocol.Fixed, []byte{0x81, 0x81, 0x00}},
		{"server message", ServerMessage{Text: "Hi"}, 253, protocol.VariableByte, []byte{'H', 'i', 10}},
		{"logout", LogoutMessage{}, 109, protocol.Fixed, []byte{}},
		{"region change", RegionChangeMessage{Position: model.NewPosition(3222, 3218)}, 73, protocol.Fixed, []byte{0x01, 0x12, 0x01, 0x92}},
		{"update skill", UpdateSkillMessage{ID: 3, Level: 10, Experience: 1154}, 134, protocol.Fixed, []byte{3, 0x04, 0x82, 0x00, 0x00, 10}},
		{"widget text", SetWidgetTextMessage{InterfaceID: 0x0102, Text: "a"}, 126, protocol.VariableShort, []byte{'a', 10, 0x01, 0x82}},
		{"open interface", OpenInterfaceMessage{InterfaceID: 5292}, 97, protocol.Fixed, []byte{0x14, 0xAC}},
		{"close interface", CloseInterfaceMessage{}, 219, protocol.Fixed, []byte{}},
		{"switch tab", SwitchTabInterfaceMessage{Tab: 3, InterfaceID: 3213}, 71, protocol.Fixed, []byte{0x0C, 0x8D, 0x83}},
		{"config", ConfigMessage{ID: 173, Value: 1}, 36, protocol.Fixed, []byte{0xAD, 0x00, 0x01}},
		{"system update", SystemUpdateMessage{Time: 500}, 114, protocol.Fixed, []byte{0xF4, 0x01}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := r.Encode(tt.msg)
			assert.Equal(t, tt.opcode, p.Opcode)
			assert.Equal(t, tt.ptype, p.Type)
			assert.Equal(t, tt.payload, p.Payload)
		})
	}
}

func TestEncodePlayerSynchronization(t *testing.T) {
	r := Release317()
	base := model.NewPosition(3222, 3218)

	tests := []struct {
		name  string
		msg   PlayerSynchronizationMessage
		check func(t *testing.T, rd *protocol.Reader)
	}{
		{
			name: "idle",
			msg:  PlayerSynchronizationMessage{LastKnownRegion: base, Position: base, FirstDirection: model.DirectionNone, SecondDirection: model.DirectionNone},
			check: func(t *testing.T, rd *protocol.Reader) {
				assert.Equal(t, 0, rd.Bits(1))
			},
		},
		{
			name: "walk",
			msg:  PlayerSynchronizationMessage{LastKnownRegion: base, Position: base, FirstDirection: model.DirectionEast, SecondDirection: model.DirectionNone},
			check: func(t *testing.T, rd *protocol.Reader) {
				assert.Equal(t, 1, rd.Bits(1))
				assert.Equal(t, movementWalk, rd.Bits(2))
				assert.Equal(t, int(model.DirectionEast), rd.Bits(3))
				assert.Equal(t, 0, rd.Bits(1))
			},
		},
		{
			name: "run",
			msg:  PlayerSynchronizationMessage{LastKnownRegion: base, Position: base, FirstDirection: model.DirectionNorth, SecondDirection: model.DirectionNorthEast},
			check: func(t *testing.T, rd *protocol.Reader) {
				assert.Equal(t, 1, rd.Bits(1))
				assert.Equal(t, movementRun, rd.Bits(2))
				assert.Equal(t, int(model.DirectionNorth), rd.Bits(3))
				assert.Equal(t, int(model.DirectionNorthEast), rd.Bits(3))
				assert.Equal(t, 0, rd.Bits(1))
			},
		},
		{
			name: "teleport",
			msg:  PlayerSynchronizationMessage{LastKnownRegion: base, Position: base, Teleporting: true, RegionChanged: true, FirstDirection: model.DirectionNone, SecondDirection: model.DirectionNone},
			check: func(t *testing.T, rd *protocol.Reader) {
				assert.Equal(t, 1, rd.Bits(1))
				assert.Equal(t, movementTeleport, rd.Bits(2))
				assert.Equal(t, 0, rd.Bits(2))
				assert.Equal(t, 0, rd.Bits(1))
				assert.Equal(t, 0, rd.Bits(1))
				assert.Equal(t, 50, rd.Bits(7))
				assert.Equal(t, 54, rd.Bits(7))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := r.Encode(tt.msg)
			require.Equal(t, protocol.VariableShort, p.Type)

			rd := protocol.NewReader(p.Payload)
			rd.SwitchToBitAccess()
			tt.check(t, rd)
			assert.Equal(t, 0, rd.Bits(8))
			rd.SwitchToByteAccess()
			assert.Zero(t, rd.Remaining())
			assert.NoError(t, rd.Err())
		})
	}
}
