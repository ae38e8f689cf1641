package game

import (
	"encoding/json"

	"github.com/cockroachdb/errors"

	"github.com/scythe504/werewolf-backend/internal"
	"github.com/scythe504/werewolf-backend/internal/database"
)

// eventHandler handles one event name within a phase. Handlers run with the
// session lock held and may replace s.phase to transition.
type eventHandler func(s *Session, conn *Connection, data json.RawMessage) error

// Phase is the rule set currently governing which events a session accepts.
type Phase interface {
	Name() internal.PhaseName
	View(s *Session) internal.PhaseView
	HandlePost(s *Session, conn *Connection, post internal.Post) error

	fillRecord(rec *database.SessionRecord)
}

// dispatch looks the event up in a phase's handler table.
func dispatch(handlers map[string]eventHandler, phase internal.PhaseName, s *Session, conn *Connection, post internal.Post) error {
	handler, ok := handlers[post.Event]
	if !ok {
		return errors.Wrapf(ErrInvalidEvent, "%q is not accepted in phase %s", post.Event, phase)
	}
	return handler(s, conn, post.Data)
}

func decodePayload(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return errors.Wrap(ErrInvalidPayload, "missing data")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return errors.Mark(errors.Wrap(err, "decode data"), ErrInvalidPayload)
	}
	return nil
}

// phaseFromRecord rebuilds the phase stored with a session record. Unknown
// phase names fall back to the lobby.
func phaseFromRecord(rec database.SessionRecord) Phase {
	switch internal.PhaseName(rec.Phase) {
	case internal.PhaseDay:
		day := newDayPhase(max(rec.DayNumber, 1))
		for voter, target := range rec.Votes {
			id, err := internal.ParseClientID(voter)
			if err != nil {
				continue
			}
			day.votes[id] = target
		}
		return day
	default:
		return newLobbyPhase()
	}
}
