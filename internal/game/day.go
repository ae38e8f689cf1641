package game

import (
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"github.com/scythe504/werewolf-backend/internal"
	"github.com/scythe504/werewolf-backend/internal/database"
)

// =============================================================================
// DAY PHASE
// =============================================================================

// dayPhase collects one vote per living player. Once everybody alive has
// voted, the player with the most votes is eliminated (nobody on a tie) and
// the next day begins.
type dayPhase struct {
	day      int
	votes    map[internal.ClientID]string
	handlers map[string]eventHandler
}

func newDayPhase(day int) *dayPhase {
	d := &dayPhase{
		day:   day,
		votes: make(map[internal.ClientID]string),
	}
	d.handlers = map[string]eventHandler{
		internal.EventVote: d.onVote,
	}
	return d
}

func (d *dayPhase) Name() internal.PhaseName {
	return internal.PhaseDay
}

func (d *dayPhase) View(s *Session) internal.PhaseView {
	votes := make(map[string]string, len(d.votes))
	for voter, target := range d.votes {
		if p, ok := s.players[voter]; ok {
			votes[p.Name] = target
		}
	}
	return internal.PhaseView{Type: internal.PhaseDay, Day: d.day, Votes: votes}
}

func (d *dayPhase) HandlePost(s *Session, conn *Connection, post internal.Post) error {
	return dispatch(d.handlers, internal.PhaseDay, s, conn, post)
}

func (d *dayPhase) fillRecord(rec *database.SessionRecord) {
	rec.Phase = string(internal.PhaseDay)
	rec.DayNumber = d.day
	if len(d.votes) == 0 {
		return
	}
	rec.Votes = make(map[string]string, len(d.votes))
	for voter, target := range d.votes {
		rec.Votes[voter.String()] = target
	}
}

func (d *dayPhase) onVote(s *Session, conn *Connection, data json.RawMessage) error {
	voter, ok := s.players[conn.ClientID]
	if !ok {
		return errors.Wrap(ErrNotAllowed, "only players can vote")
	}
	if !voter.Alive {
		return errors.Wrap(ErrNotAllowed, "dead players cannot vote")
	}

	var vote internal.VoteData
	if err := decodePayload(data, &vote); err != nil {
		return err
	}
	target, ok := s.playerByName(vote.Name)
	if !ok || !target.Alive {
		return errors.Wrapf(ErrInvalidPayload, "no living player named %q", vote.Name)
	}

	d.votes[conn.ClientID] = target.Name
	s.log.WithFields(logrus.Fields{"voter": voter.Name, "target": target.Name, "day": d.day}).
		Debug("[Day.onVote] vote recorded")

	s.broadcastPhaseLocked()

	if len(d.votes) >= s.aliveCountLocked() {
		d.resolve(s)
	}
	return nil
}

func (d *dayPhase) resolve(s *Session) {
	tally := lo.CountValues(lo.Values(d.votes))

	var (
		leader string
		best   int
		tied   bool
	)
	for name, count := range tally {
		switch {
		case count > best:
			leader, best, tied = name, count, false
		case count == best:
			tied = true
		}
	}

	if tied || leader == "" {
		s.broadcastMessageLocked("The vote was tied, nobody was eliminated.")
	} else {
		if p, ok := s.playerByName(leader); ok {
			p.Alive = false
		}
		s.broadcastMessageLocked(fmt.Sprintf("%s was eliminated by the village.", leader))
	}

	s.log.WithFields(logrus.Fields{"day": d.day, "eliminated": leader, "tied": tied}).
		Info("[Day.resolve] day vote resolved")

	s.phase = newDayPhase(d.day + 1)
	s.broadcastRosterLocked()
	s.broadcastPhaseLocked()
}
