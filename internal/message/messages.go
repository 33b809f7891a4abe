// Package message defines the domain messages exchanged with the client and
// the static registry that converts them to and from game packets.
package message

import "github.com/Rune-Status/aj8/internal/model"

// Type tags a message for encoder lookup and handler dispatch.
type Type int

const (
	TypeKeepAlive Type = iota + 1
	TypeFocusUpdate
	TypeMouseClick
	TypeButton
	TypeCommand
	TypeWalk
	TypeItemAction
	TypeSwitchItem

	TypeIDAssignment
	TypeServerMessage
	TypeLogout
	TypeRegionChange
	TypeUpdateSkill
	TypeSetWidgetText
	TypeOpenInterface
	TypeCloseInterface
	TypeSwitchTabInterface
	TypeConfig
	TypeSystemUpdate
	TypePlayerSynchronization
)

var typeNames = map[Type]string{
	TypeKeepAlive:             "keep_alive",
	TypeFocusUpdate:           "focus_update",
	TypeMouseClick:            "mouse_click",
	TypeButton:                "button",
	TypeCommand:               "command",
	TypeWalk:                  "walk",
	TypeItemAction:            "item_action",
	TypeSwitchItem:            "switch_item",
	TypeIDAssignment:          "id_assignment",
	TypeServerMessage:         "server_message",
	TypeLogout:                "logout",
	TypeRegionChange:          "region_change",
	TypeUpdateSkill:           "update_skill",
	TypeSetWidgetText:         "set_widget_text",
	TypeOpenInterface:         "open_interface",
	TypeCloseInterface:        "close_interface",
	TypeSwitchTabInterface:    "switch_tab_interface",
	TypeConfig:                "config",
	TypeSystemUpdate:          "system_update",
	TypePlayerSynchronization: "player_synchronization",
}

func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return "unknown"
}

// Message is any decoded inbound or encodable outbound message.
type Message interface {
	Type() Type
}

// ---- Inbound ----

// KeepAliveMessage is sent by an idle client.
type KeepAliveMessage struct{}

// FocusUpdateMessage reports whether the client window has focus.
type FocusUpdateMessage struct {
	Focused bool
}

// MouseClickMessage is the client's periodic click report.
type MouseClickMessage struct {
	Delay      int
	RightClick bool
	X, Y       int
}

// ButtonMessage is a click on an interface button.
type ButtonMessage struct {
	Widget int
}

// CommandMessage is a "::" command typed into the chat box.
type CommandMessage struct {
	Command   string
	Arguments []string
}

// WalkMessage carries the client's path. Steps[0] is the first step.
type WalkMessage struct {
	Steps []model.Position
	Run   bool
}

// ItemOption identifies which menu entry was used on an item.
type ItemOption int

const (
	ItemOptionOne ItemOption = iota + 1
	ItemOptionTwo
	ItemOptionThree
	ItemOptionFour
	ItemOptionFive
)

// ItemActionMessage is an option clicked on an item inside an interface.
type ItemActionMessage struct {
	Option      ItemOption
	InterfaceID int
	ID          int
	Slot        int
}

// SwitchItemMessage moves an item between two slots of an interface.
type SwitchItemMessage struct {
	InterfaceID int
	Inserting   bool
	OldSlot     int
	NewSlot     int
}

func (KeepAliveMessage) Type() Type   { return TypeKeepAlive }
func (FocusUpdateMessage) Type() Type { return TypeFocusUpdate }
func (MouseClickMessage) Type() Type  { return TypeMouseClick }
func (ButtonMessage) Type() Type      { return TypeButton }
func (CommandMessage) Type() Type     { return TypeCommand }
func (WalkMessage) Type() Type        { return TypeWalk }
func (ItemActionMessage) Type() Type  { return TypeItemAction }
func (SwitchItemMessage) Type() Type  { return TypeSwitchItem }

// ---- Outbound ----

// IDAssignmentMessage tells the client its repository index.
type IDAssignmentMessage struct {
	Index   int
	Members bool
}

// ServerMessage is a line of text in the chat box.
type ServerMessage struct {
	Text string
}

// LogoutMessage makes the client return to the title screen.
type LogoutMessage struct{}

// RegionChangeMessage loads the map around a position.
type RegionChangeMessage struct {
	Position model.Position
}

// UpdateSkillMessage sets one skill's level and experience.
type UpdateSkillMessage struct {
	ID         int
	Level      int
	Experience int
}

// SetWidgetTextMessage replaces the text of an interface component.
type SetWidgetTextMessage struct {
	InterfaceID int
	Text        string
}

// OpenInterfaceMessage opens a main-screen interface.
type OpenInterfaceMessage struct {
	InterfaceID int
}

// CloseInterfaceMessage closes any open interface.
type CloseInterfaceMessage struct{}

// SwitchTabInterfaceMessage places an interface in a sidebar tab.
type SwitchTabInterfaceMessage struct {
	Tab         int
	InterfaceID int
}

// ConfigMessage sets a client config variable.
type ConfigMessage struct {
	ID    int
	Value int
}

// SystemUpdateMessage starts the client's update countdown, in ticks.
type SystemUpdateMessage struct {
	Time int
}

// PlayerSynchronizationMessage describes the local player's movement this
// tick.
type PlayerSynchronizationMessage struct {
	// LastKnownRegion is the position the client's map was loaded around.
	LastKnownRegion model.Position
	Position        model.Position
	Teleporting     bool
	RegionChanged   bool
	FirstDirection  model.Direction
	SecondDirection model.Direction
}

func (IDAssignmentMessage) Type() Type          { return TypeIDAssignment }
func (ServerMessage) Type() Type                { return TypeServerMessage }
func (LogoutMessage) Type() Type                { return TypeLogout }
func (RegionChangeMessage) Type() Type          { return TypeRegionChange }
func (UpdateSkillMessage) Type() Type           { return TypeUpdateSkill }
func (SetWidgetTextMessage) Type() Type         { return TypeSetWidgetText }
func (OpenInterfaceMessage) Type() Type         { return TypeOpenInterface }
func (CloseInterfaceMessage) Type() Type        { return TypeCloseInterface }
func (SwitchTabInterfaceMessage) Type() Type    { return TypeSwitchTabInterface }
func (ConfigMessage) Type() Type                { return TypeConfig }
func (SystemUpdateMessage) Type() Type          { return TypeSystemUpdate }
func (PlayerSynchronizationMessage) Type() Type { return TypePlayerSynchronization }
