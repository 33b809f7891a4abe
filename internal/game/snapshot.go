package game

import (
	"time"

	"github.com/Rune-Status/aj8/internal/events"
	"github.com/Rune-Status/aj8/internal/model"
	"github.com/Rune-Status/aj8/internal/scheduler"
)

// Snapshot is a read-only copy of the world published at the end of every
// tick. Other goroutines read it instead of touching world state.
type Snapshot struct {
	State     events.WorldState `json:"state"`
	Tick      uint64            `json:"tick"`
	Capacity  int               `json:"capacity"`
	Players   []PlayerInfo      `json:"players"`
	TickTime  time.Duration     `json:"tick_time"`
	Scheduler scheduler.Stats   `json:"scheduler"`
	StartedAt time.Time         `json:"started_at"`
	TakenAt   time.Time         `json:"taken_at"`

	// UpdateRemaining is the number of ticks left on a system update
	// countdown, 0 when none is running.
	UpdateRemaining int `json:"update_remaining,omitempty"`
}

// PlayerInfo describes one player in a Snapshot.
type PlayerInfo struct {
	Username  string         `json:"username"`
	Index     int            `json:"index"`
	Privilege int            `json:"privilege"`
	Members   bool           `json:"members"`
	Remote    string         `json:"remote"`
	Session   string         `json:"session"`
	Position  model.Position `json:"position"`
	Running   bool           `json:"running"`
	Action    bool           `json:"action"`
	JoinedAt  time.Time      `json:"joined_at"`
}

// Uptime returns how long the world has been running when the snapshot was
// taken.
func (s *Snapshot) Uptime() time.Duration {
	if s.StartedAt.IsZero() {
		return 0
	}
	return s.TakenAt.Sub(s.StartedAt)
}

// Player finds a player by normalized username.
func (s *Snapshot) Player(username string) (PlayerInfo, bool) {
	key := normalize(username)
	for _, p := range s.Players {
		if normalize(p.Username) == key {
			return p, true
		}
	}
	return PlayerInfo{}, false
}

func (p *Player) info() PlayerInfo {
	return PlayerInfo{
		Username:  p.username,
		Index:     p.index,
		Privilege: p.privilege,
		Members:   p.members,
		Remote:    p.client.RemoteAddr(),
		Session:   p.client.ID(),
		Position:  p.position,
		Running:   p.walking.Running(),
		Action:    p.action != nil,
		JoinedAt:  p.joinedAt,
	}
}
