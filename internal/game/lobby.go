package game

import (
	"encoding/json"

	"github.com/cockroachdb/errors"

	"github.com/scythe504/werewolf-backend/internal"
	"github.com/scythe504/werewolf-backend/internal/database"
	"github.com/scythe504/werewolf-backend/internal/utils"
)

// =============================================================================
// LOBBY PHASE
// =============================================================================

type lobbyPhase struct {
	handlers map[string]eventHandler
}

func newLobbyPhase() *lobbyPhase {
	l := &lobbyPhase{}
	l.handlers = map[string]eventHandler{
		internal.EventStart: l.onStart,
	}
	return l
}

func (l *lobbyPhase) Name() internal.PhaseName {
	return internal.PhaseLobby
}

func (l *lobbyPhase) View(*Session) internal.PhaseView {
	return internal.PhaseView{Type: internal.PhaseLobby}
}

func (l *lobbyPhase) HandlePost(s *Session, conn *Connection, post internal.Post) error {
	return dispatch(l.handlers, internal.PhaseLobby, s, conn, post)
}

func (l *lobbyPhase) fillRecord(rec *database.SessionRecord) {
	rec.Phase = string(internal.PhaseLobby)
}

// onStart deals roles and moves the session to the first day.
func (l *lobbyPhase) onStart(s *Session, conn *Connection, data json.RawMessage) error {
	if conn.role != internal.RolePlayer {
		return errors.Wrap(ErrNotAllowed, "only players can start the game")
	}

	var start internal.StartData
	if err := decodePayload(data, &start); err != nil {
		return err
	}

	if len(s.playerOrder) < internal.MinPlayersToStart {
		return errors.Wrapf(ErrNotAllowed, "not enough players to start game: %d/%d",
			len(s.playerOrder), internal.MinPlayersToStart)
	}

	deck, err := utils.BuildRoleDeck(start.RoleSelection, len(s.playerOrder))
	if err != nil {
		return errors.Mark(err, ErrInvalidPayload)
	}
	for i, id := range s.playerOrder {
		s.players[id].Role = deck[i]
	}

	s.inProgress = true
	s.phase = newDayPhase(1)

	s.log.WithField("players", len(s.playerOrder)).
		Info("[Lobby.onStart] game started, entering day 1")

	s.broadcastMessageLocked("The game has started!")
	s.broadcastRosterLocked()
	s.broadcastPhaseLocked()
	return nil
}
