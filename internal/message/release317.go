package message

import (
	"fmt"
	"strings"

	"github.com/Rune-Status/aj8/internal/model"
	"github.com/Rune-Status/aj8/internal/protocol"
)

// Release is the client build this codec table speaks.
const Release = 317

// Outbound opcodes of release 317.
const (
	OpcodeRegionChange          = 73
	OpcodeSwitchTabInterface    = 71
	OpcodePlayerSynchronization = 81
	OpcodeOpenInterface         = 97
	OpcodeLogout                = 109
	OpcodeSystemUpdate          = 114
	OpcodeSetWidgetText         = 126
	OpcodeUpdateSkill           = 134
	OpcodeConfig                = 36
	OpcodeCloseInterface        = 219
	OpcodeIDAssignment          = 249
	OpcodeServerMessage         = 253
)

// minimapWalkPadding is the anti-cheat data trailing a minimap walk.
const minimapWalkPadding = 14

// Release317 builds the registry for release 317. It panics if the static
// tables are inconsistent, which can only happen through a code change.
func Release317() *Registry {
	r, err := NewRegistry(&protocol.Release317Lengths, release317Decoders(), release317Encoders())
	if err != nil {
		panic(fmt.Sprintf("message: invalid release %d registry: %v", Release, err))
	}
	return r
}

func release317Decoders() []DecoderBinding {
	return []DecoderBinding{
		{Opcode: 0, Decode: decodeKeepAlive},
		{Opcode: 3, Decode: decodeFocusUpdate},
		{Opcode: 16, Decode: decodeFifthItemAction},
		{Opcode: 98, Decode: decodeWalk},
		{Opcode: 103, Decode: decodeCommand},
		{Opcode: 122, Decode: decodeFirstItemAction},
		{Opcode: 164, Decode: decodeWalk},
		{Opcode: 185, Decode: decodeButton},
		{Opcode: 214, Decode: decodeSwitchItem},
		{Opcode: 241, Decode: decodeMouseClick},
		{Opcode: 248, Decode: decodeWalk},
	}
}

func release317Encoders() []EncoderBinding {
	return []EncoderBinding{
		{Type: TypeIDAssignment, Encode: encodeIDAssignment},
		{Type: TypeServerMessage, Encode: encodeServerMessage},
		{Type: TypeLogout, Encode: encodeLogout},
		{Type: TypeRegionChange, Encode: encodeRegionChange},
		{Type: TypeUpdateSkill, Encode: encodeUpdateSkill},
		{Type: TypeSetWidgetText, Encode: encodeSetWidgetText},
		{Type: TypeOpenInterface, Encode: encodeOpenInterface},
		{Type: TypeCloseInterface, Encode: encodeCloseInterface},
		{Type: TypeSwitchTabInterface, Encode: encodeSwitchTabInterface},
		{Type: TypeConfig, Encode: encodeConfig},
		{Type: TypeSystemUpdate, Encode: encodeSystemUpdate},
		{Type: TypePlayerSynchronization, Encode: encodePlayerSynchronization},
	}
}

// ---- Decoders ----

func decodeKeepAlive(_ *protocol.Reader, _ *protocol.GamePacket) (Message, error) {
	return KeepAliveMessage{}, nil
}

func decodeFocusUpdate(r *protocol.Reader, _ *protocol.GamePacket) (Message, error) {
	return FocusUpdateMessage{Focused: r.UnsignedByte() == 1}, nil
}

func decodeMouseClick(r *protocol.Reader, _ *protocol.GamePacket) (Message, error) {
	value := r.Unsigned(protocol.Int, protocol.Big, protocol.None)
	coordinates := int(value & 0x3FFFF)
	return MouseClickMessage{
		Delay:      int(value>>20) * 50,
		RightClick: (value>>19)&1 == 1,
		X:          coordinates % 765,
		Y:          coordinates / 765,
	}, nil
}

func decodeButton(r *protocol.Reader, _ *protocol.GamePacket) (Message, error) {
	return ButtonMessage{Widget: r.UnsignedShort()}, nil
}

func decodeCommand(r *protocol.Reader, _ *protocol.GamePacket) (Message, error) {
	fields := strings.Fields(r.String())
	if len(fields) == 0 {
		return CommandMessage{}, nil
	}
	return CommandMessage{Command: strings.ToLower(fields[0]), Arguments: fields[1:]}, nil
}

func decodeWalk(r *protocol.Reader, p *protocol.GamePacket) (Message, error) {
	length := p.Length()
	if p.Opcode == 248 {
		length -= minimapWalkPadding
	}
	if length < 5 || (length-5)%2 != 0 {
		return nil, fmt.Errorf("invalid walk payload length %d", p.Length())
	}
	steps := (length - 5) / 2

	x := int(r.Unsigned(protocol.Short, protocol.Little, protocol.Add))
	deltas := make([][2]int, steps)
	for i := range deltas {
		deltas[i][0] = int(r.Signed(protocol.Byte, protocol.Big, protocol.None))
		deltas[i][1] = int(r.Signed(protocol.Byte, protocol.Big, protocol.None))
	}
	y := int(r.Unsigned(protocol.Short, protocol.Little, protocol.None))
	run := r.Unsigned(protocol.Byte, protocol.Big, protocol.Negate) == 1
	if p.Opcode == 248 {
		r.Skip(minimapWalkPadding)
	}

	positions := make([]model.Position, 0, steps+1)
	positions = append(positions, model.NewPosition(x, y))
	for _, d := range deltas {
		positions = append(positions, model.NewPosition(x+d[0], y+d[1]))
	}
	return WalkMessage{Steps: positions, Run: run}, nil
}

func decodeFirstItemAction(r *protocol.Reader, _ *protocol.GamePacket) (Message, error) {
	interfaceID := r.Unsigned(protocol.Short, protocol.Little, protocol.Add)
	slot := r.Unsigned(protocol.Short, protocol.Big, protocol.Add)
	id := r.Unsigned(protocol.Short, protocol.Little, protocol.None)
	return ItemActionMessage{Option: ItemOptionOne, InterfaceID: int(interfaceID), ID: int(id), Slot: int(slot)}, nil
}

func decodeFifthItemAction(r *protocol.Reader, _ *protocol.GamePacket) (Message, error) {
	id := r.Unsigned(protocol.Short, protocol.Big, protocol.Add)
	slot := r.Unsigned(protocol.Short, protocol.Little, protocol.Add)
	interfaceID := r.Unsigned(protocol.Short, protocol.Little, protocol.Add)
	return ItemActionMessage{Option: ItemOptionFive, InterfaceID: int(interfaceID), ID: int(id), Slot: int(slot)}, nil
}

func decodeSwitchItem(r *protocol.Reader, _ *protocol.GamePacket) (Message, error) {
	interfaceID := r.Unsigned(protocol.Short, protocol.Little, protocol.Add)
	inserting := r.Unsigned(protocol.Byte, protocol.Big, protocol.Negate) == 1
	oldSlot := r.Unsigned(protocol.Short, protocol.Little, protocol.Add)
	newSlot := r.Unsigned(protocol.Short, protocol.Little, protocol.None)
	return SwitchItemMessage{
		InterfaceID: int(interfaceID),
		Inserting:   inserting,
		OldSlot:     int(oldSlot),
		NewSlot:     int(newSlot),
	}, nil
}

// ---- Encoders ----

func encodeIDAssignment(m Message) *protocol.GamePacket {
	msg := m.(IDAssignmentMessage)
	members := 0
	if msg.Members {
		members = 1
	}
	return protocol.NewBuilder(OpcodeIDAssignment, protocol.Fixed).
		Put(protocol.Byte, protocol.Big, protocol.Add, int64(members)).
		Put(protocol.Short, protocol.Little, protocol.Add, int64(msg.Index)).
		ToGamePacket()
}

func encodeServerMessage(m Message) *protocol.GamePacket {
	msg := m.(ServerMessage)
	return protocol.NewBuilder(OpcodeServerMessage, protocol.VariableByte).
		PutString(msg.Text).
		ToGamePacket()
}

func encodeLogout(Message) *protocol.GamePacket {
	return protocol.NewBuilder(OpcodeLogout, protocol.Fixed).ToGamePacket()
}

func encodeRegionChange(m Message) *protocol.GamePacket {
	msg := m.(RegionChangeMessage)
	return protocol.NewBuilder(OpcodeRegionChange, protocol.Fixed).
		Put(protocol.Short, protocol.Big, protocol.Add, int64(msg.Position.CentralRegionX())).
		PutShort(msg.Position.CentralRegionY()).
		ToGamePacket()
}

func encodeUpdateSkill(m Message) *protocol.GamePacket {
	msg := m.(UpdateSkillMessage)
	return protocol.NewBuilder(OpcodeUpdateSkill, protocol.Fixed).
		PutByte(msg.ID).
		Put(protocol.Int, protocol.Middle, protocol.None, int64(msg.Experience)).
		PutByte(msg.Level).
		ToGamePacket()
}

func encodeSetWidgetText(m Message) *protocol.GamePacket {
	msg := m.(SetWidgetTextMessage)
	return protocol.NewBuilder(OpcodeSetWidgetText, protocol.VariableShort).
		PutString(msg.Text).
		Put(protocol.Short, protocol.Big, protocol.Add, int64(msg.InterfaceID)).
		ToGamePacket()
}

func encodeOpenInterface(m Message) *protocol.GamePacket {
	msg := m.(OpenInterfaceMessage)
	return protocol.NewBuilder(OpcodeOpenInterface, protocol.Fixed).
		PutShort(msg.InterfaceID).
		ToGamePacket()
}

func encodeCloseInterface(Message) *protocol.GamePacket {
	return protocol.NewBuilder(OpcodeCloseInterface, protocol.Fixed).ToGamePacket()
}

func encodeSwitchTabInterface(m Message) *protocol.GamePacket {
	msg := m.(SwitchTabInterfaceMessage)
	return protocol.NewBuilder(OpcodeSwitchTabInterface, protocol.Fixed).
		PutShort(msg.InterfaceID).
		Put(protocol.Byte, protocol.Big, protocol.Add, int64(msg.Tab)).
		ToGamePacket()
}

func encodeConfig(m Message) *protocol.GamePacket {
	msg := m.(ConfigMessage)
	return protocol.NewBuilder(OpcodeConfig, protocol.Fixed).
		Put(protocol.Short, protocol.Little, protocol.None, int64(msg.ID)).
		PutByte(msg.Value).
		ToGamePacket()
}

func encodeSystemUpdate(m Message) *protocol.GamePacket {
	msg := m.(SystemUpdateMessage)
	return protocol.NewBuilder(OpcodeSystemUpdate, protocol.Fixed).
		Put(protocol.Short, protocol.Little, protocol.None, int64(msg.Time)).
		ToGamePacket()
}

// Movement types of the local player section of packet 81.
const (
	_ = iota
	movementWalk
	movementRun
	movementTeleport
)

func encodePlayerSynchronization(m Message) *protocol.GamePacket {
	msg := m.(PlayerSynchronizationMessage)
	b := protocol.NewBuilder(OpcodePlayerSynchronization, protocol.VariableShort)
	b.SwitchToBitAccess()

	switch {
	case msg.Teleporting || msg.RegionChanged:
		b.PutBit(true).
			PutBits(2, movementTeleport).
			PutBits(2, msg.Position.Height).
			PutBit(!msg.RegionChanged).
			PutBit(false).
			PutBits(7, msg.Position.LocalY(msg.LastKnownRegion)).
			PutBits(7, msg.Position.LocalX(msg.LastKnownRegion))
	case msg.SecondDirection != model.DirectionNone:
		b.PutBit(true).
			PutBits(2, movementRun).
			PutBits(3, int(msg.FirstDirection)).
			PutBits(3, int(msg.SecondDirection)).
			PutBit(false)
	case msg.FirstDirection != model.DirectionNone:
		b.PutBit(true).
			PutBits(2, movementWalk).
			PutBits(3, int(msg.FirstDirection)).
			PutBit(false)
	default:
		b.PutBit(false)
	}

	// no other players are tracked and no update blocks follow
	b.PutBits(8, 0)
	b.SwitchToByteAccess()
	return b.ToGamePacket()
}
