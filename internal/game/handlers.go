package game

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/Rune-Status/aj8/internal/action"
	"github.com/Rune-Status/aj8/internal/db"
	"github.com/Rune-Status/aj8/internal/message"
	"github.com/Rune-Status/aj8/internal/model"
)

// Handler reacts to one decoded inbound message.
type Handler func(w *World, p *Player, m message.Message)

// LogoutButton is the widget id of the logout tab's button.
const LogoutButton = 2458

func defaultHandlers() map[message.Type]Handler {
	ignore := func(*World, *Player, message.Message) {}
	return map[message.Type]Handler{
		message.TypeKeepAlive:   ignore,
		message.TypeFocusUpdate: ignore,
		message.TypeMouseClick:  ignore,
		message.TypeWalk:        handleWalk,
		message.TypeCommand:     handleCommand,
		message.TypeButton:      handleButton,
		message.TypeItemAction:  handleItemAction,
		message.TypeSwitchItem:  handleSwitchItem,
	}
}

// RegisterHandler replaces the handler for a message type. Call it before
// the world starts ticking.
func (w *World) RegisterHandler(t message.Type, h Handler) {
	w.handlers[t] = h
}

func handleWalk(_ *World, p *Player, m message.Message) {
	msg := m.(message.WalkMessage)
	if len(msg.Steps) == 0 {
		return
	}
	p.StopCurrentAction()

	q := p.walking
	if !q.AddFirstStep(msg.Steps[0]) {
		p.logger.Debug().
			Stringer("position", p.position).
			Stringer("client", msg.Steps[0]).
			Msg("walk path does not connect")
		return
	}
	for _, s := range msg.Steps[1:] {
		q.AddStep(s)
	}
	q.SetRunning(msg.Run)
}

func handleButton(_ *World, p *Player, m message.Message) {
	msg := m.(message.ButtonMessage)
	switch msg.Widget {
	case LogoutButton:
		p.RequestLogout()
	default:
		p.logger.Debug().Int("widget", msg.Widget).Msg("button clicked")
	}
}

func handleItemAction(_ *World, p *Player, m message.Message) {
	msg := m.(message.ItemActionMessage)
	p.logger.Debug().
		Int("option", int(msg.Option)).
		Int("interface", msg.InterfaceID).
		Int("item", msg.ID).
		Int("slot", msg.Slot).
		Msg("item action")
}

func handleSwitchItem(_ *World, p *Player, m message.Message) {
	msg := m.(message.SwitchItemMessage)
	p.logger.Debug().
		Int("interface", msg.InterfaceID).
		Bool("inserting", msg.Inserting).
		Int("from", msg.OldSlot).
		Int("to", msg.NewSlot).
		Msg("switch item")
}

// Command is a "::" chat command.
type Command struct {
	Privilege int
	Usage     string
	Run       func(w *World, p *Player, args []string) error
}

var errUsage = errors.New("usage")

func defaultCommands() map[string]Command {
	return map[string]Command{
		"pos": {Run: commandPosition},
		"players": {Run: func(w *World, p *Player, _ []string) error {
			n := w.players.Size()
			if n == 1 {
				p.SendMessage("There is 1 player online.")
			} else {
				p.SendMessage(fmt.Sprintf("There are %d players online.", n))
			}
			return nil
		}},
		"stop": {Run: func(_ *World, p *Player, _ []string) error {
			p.StopCurrentAction()
			p.walking.Clear()
			return nil
		}},
		"tele": {
			Privilege: db.PrivilegeAdministrator,
			Usage:     "::tele x y [height]",
			Run:       commandTeleport,
		},
		"skill": {
			Privilege: db.PrivilegeAdministrator,
			Usage:     "::skill id experience",
			Run:       commandSkill,
		},
	}
}

// RegisterCommand adds or replaces a chat command. Call it before the world
// starts ticking.
func (w *World) RegisterCommand(name string, c Command) {
	w.commands[name] = c
}

func handleCommand(w *World, p *Player, m message.Message) {
	msg := m.(message.CommandMessage)
	c, ok := w.commands[msg.Command]
	if !ok || p.privilege < c.Privilege {
		p.SendMessage("Unknown command: " + msg.Command)
		return
	}

	p.logger.Debug().Str("command", msg.Command).Strs("args", msg.Arguments).Msg("command")
	if err := c.Run(w, p, msg.Arguments); err != nil {
		if errors.Is(err, errUsage) {
			p.SendMessage("Usage: " + c.Usage)
			return
		}
		p.logger.Warn().Err(err).Str("command", msg.Command).Msg("command failed")
	}
}

func commandPosition(_ *World, p *Player, _ []string) error {
	p.SendMessage("You are at " + p.position.String() + ".")
	return nil
}

func commandTeleport(_ *World, p *Player, args []string) error {
	if len(args) < 2 || len(args) > 3 {
		return errUsage
	}
	values, err := parseInts(args)
	if err != nil {
		return errUsage
	}
	to := model.Position{X: values[0], Y: values[1], Height: p.position.Height}
	if len(values) == 3 {
		to.Height = values[2]
	}
	if to.Height < 0 || to.Height > model.MaxHeight {
		p.SendMessage("Invalid position " + to.String() + ".")
		return nil
	}
	p.Teleport(to.Clamp())
	return nil
}

// trainingKey identifies a training action so that repeating the same
// command does not restart it.
type trainingKey struct {
	skill int
}

// trainingDelay is the number of ticks between experience drops.
const trainingDelay = 4

// commandSkill starts an action that grants experience every few ticks until
// the player walks away or stops.
func commandSkill(w *World, p *Player, args []string) error {
	if len(args) != 2 {
		return errUsage
	}
	values, err := parseInts(args)
	if err != nil {
		return errUsage
	}
	id, experience := values[0], values[1]
	if id < 0 || id >= SkillCount || experience <= 0 {
		p.SendMessage(fmt.Sprintf("Invalid skill %d or experience %d.", id, experience))
		return nil
	}

	a := action.New(trainingDelay, true, p, trainingKey{skill: id}, func(a *action.Action) error {
		p.AddExperience(id, experience)
		if p.skills.Get(id).Experience >= MaxExperience {
			a.Stop()
		}
		return nil
	})
	if action.Start(w.scheduler, a) {
		p.SendMessage("You start training " + SkillName(id) + ".")
	}
	return nil
}

func parseInts(args []string) ([]int, error) {
	values := make([]int, len(args))
	for i, arg := range args {
		v, err := strconv.Atoi(arg)
		if err != nil {
			return nil, err
		}
		values[i] = v
	}
	return values, nil
}
