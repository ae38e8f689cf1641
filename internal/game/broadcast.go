package game

import (
	"github.com/scythe504/werewolf-backend/internal"
)

// =============================================================================
// BROADCAST HELPERS
// =============================================================================
// All helpers expect the session lock to be held. Enqueue never blocks, so
// nothing here waits on a slow client.

// rosterForLocked builds the roster in join order as seen by viewer.
func (s *Session) rosterForLocked(viewer internal.ClientID) []internal.RosterEntry {
	roster := make([]internal.RosterEntry, 0, len(s.playerOrder))
	for _, id := range s.playerOrder {
		if p, ok := s.players[id]; ok {
			roster = append(roster, p.ToRosterEntry(id == viewer))
		}
	}
	return roster
}

func (s *Session) broadcastLocked(u internal.Update) {
	for _, conn := range s.connections {
		if conn.active() {
			conn.Enqueue(u)
		}
	}
}

func (s *Session) broadcastMessageLocked(text string) {
	s.broadcastLocked(internal.NewMessageUpdate(text))
}

func (s *Session) broadcastPhaseLocked() {
	s.broadcastLocked(internal.NewPhaseUpdate(s.phase.View(s)))
}

// broadcastRosterLocked sends every active connection its personal roster.
func (s *Session) broadcastRosterLocked() {
	for id, conn := range s.connections {
		if conn.active() {
			conn.SendPlayerUpdate(s.rosterForLocked(id))
		}
	}
}
