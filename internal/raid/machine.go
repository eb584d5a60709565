// Package raid drives the per-guild Normal -> Active transition from the join
// rate. Active is sticky: only an operator reset returns a guild to Normal.
package raid

import (
	"time"

	"sentinel-moderation/internal/window"
)

type State int

const (
	Normal State = iota
	Active
)

func (s State) String() string {
	if s == Active {
		return "raid"
	}
	return "normal"
}

type Transition struct {
	Joins     int
	Activated bool
}

type Machine struct {
	store     *window.Store
	threshold int
}

func NewMachine(store *window.Store, threshold int) *Machine {
	if threshold <= 0 {
		threshold = 5
	}
	return &Machine{store: store, threshold: threshold}
}

// OnJoin records the join and activates raid mode once the trailing window
// holds threshold joins. Activated is true for exactly one join per episode.
func (m *Machine) OnJoin(guildID string, now time.Time) Transition {
	joins := m.store.RecordJoin(guildID, now)
	if joins < m.threshold {
		return Transition{Joins: joins}
	}
	return Transition{Joins: joins, Activated: m.store.SetRaidActive(guildID)}
}

func (m *Machine) State(guildID string) State {
	if m.store.IsRaidActive(guildID) {
		return Active
	}
	return Normal
}

func (m *Machine) Reset(guildID string) bool {
	return m.store.ClearRaid(guildID)
}
