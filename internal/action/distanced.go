package action

import "github.com/Rune-Status/aj8/internal/model"

// Mobile is a character with a position.
type Mobile interface {
	Character
	Position() model.Position
}

// NewDistanced creates an action that waits, checking every tick, until the
// character is within distance of target. From then on it behaves like an
// action created by New with the given delay and immediate flag.
func NewDistanced(delay int, immediate bool, character Mobile, key any, target model.Position, distance int, body func(a *Action) error) *Action {
	reached := false
	return New(0, false, character, key, func(a *Action) error {
		if reached {
			return body(a)
		}
		if !character.Position().WithinDistance(target, distance) {
			return nil
		}
		reached = true
		a.SetDelay(delay)
		if immediate {
			return body(a)
		}
		return nil
	})
}
