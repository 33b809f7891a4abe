package game

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Rune-Status/aj8/internal/action"
	"github.com/Rune-Status/aj8/internal/db"
	"github.com/Rune-Status/aj8/internal/message"
	"github.com/Rune-Status/aj8/internal/model"
)

// Client is the connection a player is driven by. Poll and Send are called
// from the tick goroutine only.
type Client interface {
	ID() string
	RemoteAddr() string
	// Poll returns the next decoded inbound message without blocking.
	Poll() (message.Message, bool)
	// Send queues an outbound message. An error means the client can no
	// longer keep up and should be disconnected.
	Send(m message.Message) error
	// Close flushes queued messages and closes the connection.
	Close(reason string)
	// Closed reports whether the connection has gone away.
	Closed() bool
}

// Player is a logged in character. All fields are owned by the tick
// goroutine.
type Player struct {
	client Client
	logger zerolog.Logger

	username  string
	privilege int
	members   bool
	index     int
	joinedAt  time.Time

	position        model.Position
	lastKnownRegion model.Position
	hasRegion       bool
	regionChanged   bool
	teleporting     bool
	firstDirection  model.Direction
	secondDirection model.Direction

	walking *WalkingQueue
	skills  *SkillSet
	action  *action.Action

	logoutRequested bool
}

func newPlayer(rec *db.PlayerRecord, client Client, traversal TraversalMap) *Player {
	p := &Player{
		username:        rec.Username,
		privilege:       rec.Privilege,
		members:         rec.Members,
		position:        rec.Position,
		firstDirection:  model.DirectionNone,
		secondDirection: model.DirectionNone,
		skills:          SkillSetFromRecords(rec.Skills),
		joinedAt:        time.Now(),
	}
	p.walking = NewWalkingQueue(p, traversal)
	p.attach(client)
	return p
}

// attach binds the player to a connection, replacing any previous one.
func (p *Player) attach(client Client) {
	p.client = client
	p.hasRegion = false
	p.logger = log.With().
		Str("component", "player").
		Str("player", p.username).
		Str("session", client.ID()).
		Logger()
}

// Username returns the display name.
func (p *Player) Username() string { return p.username }

// Index returns the slot in the player repository, 0 when not in the world.
func (p *Player) Index() int { return p.index }

// SetIndex is called by the repository.
func (p *Player) SetIndex(index int) { p.index = index }

// Privilege returns the rights level sent at login.
func (p *Player) Privilege() int { return p.privilege }

// Members reports whether the account has membership.
func (p *Player) Members() bool { return p.members }

// Position returns the current tile.
func (p *Player) Position() model.Position { return p.position }

// Client returns the connection driving the player.
func (p *Player) Client() Client { return p.client }

// WalkingQueue returns the path the player follows.
func (p *Player) WalkingQueue() *WalkingQueue { return p.walking }

// Skills returns the player's skills.
func (p *Player) Skills() *SkillSet { return p.skills }

// Teleport moves the player without walking. Any path and action are
// dropped.
func (p *Player) Teleport(to model.Position) {
	p.walking.Clear()
	p.StopCurrentAction()
	p.position = to
	p.teleporting = true
}

// Send queues a message for the client. A client that cannot take more is
// closed and the player logged out on the next tick.
func (p *Player) Send(m message.Message) {
	if err := p.client.Send(m); err != nil {
		p.logger.Warn().Err(err).Str("message", m.Type().String()).Msg("failed to queue message, disconnecting")
		p.client.Close("outbound queue overflow")
	}
}

// SendMessage shows text in the chat box.
func (p *Player) SendMessage(text string) {
	p.Send(message.ServerMessage{Text: text})
}

// SendSkill sends the state of one skill.
func (p *Player) SendSkill(id int) {
	skill := p.skills.Get(id)
	p.Send(message.UpdateSkillMessage{ID: id, Level: skill.Level, Experience: skill.Experience})
}

// AddExperience grants experience and updates the client.
func (p *Player) AddExperience(id, experience int) {
	if gained := p.skills.AddExperience(id, experience); gained > 0 {
		p.SendMessage("Congratulations, you just advanced a " + SkillName(id) + " level.")
	}
	p.SendSkill(id)
}

// CurrentAction returns the action the player is performing, or nil.
func (p *Player) CurrentAction() *action.Action { return p.action }

// SetAction records a as the current action.
func (p *Player) SetAction(a *action.Action) { p.action = a }

// StopAction releases the slot if a still holds it.
func (p *Player) StopAction(a *action.Action) {
	if p.action == a {
		p.action = nil
	}
}

// StopCurrentAction stops whatever the player is doing.
func (p *Player) StopCurrentAction() {
	if p.action != nil {
		p.action.Stop()
	}
}

// RequestLogout removes the player at the start of the next tick.
func (p *Player) RequestLogout() {
	p.logoutRequested = true
}

// Record converts the player for persistence.
func (p *Player) Record() *db.PlayerRecord {
	return &db.PlayerRecord{
		Username:  p.username,
		Privilege: p.privilege,
		Members:   p.members,
		Position:  p.position,
		Skills:    p.skills.Records(),
	}
}

// regionUpdateRequired reports whether the player walked close enough to
// the edge of the loaded map that it must be rebuilt.
func (p *Player) regionUpdateRequired() bool {
	if !p.hasRegion {
		return true
	}
	x := p.position.LocalX(p.lastKnownRegion)
	y := p.position.LocalY(p.lastKnownRegion)
	return x < 16 || x >= 88 || y < 16 || y >= 88
}

func (p *Player) resetMovementFlags() {
	p.teleporting = false
	p.regionChanged = false
	p.firstDirection = model.DirectionNone
	p.secondDirection = model.DirectionNone
}
