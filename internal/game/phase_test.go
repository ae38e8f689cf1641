package game

import (
	"testing"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scythe504/werewolf-backend/internal"
)

func vote(t *testing.T, s *Session, voter internal.ClientID, target string) error {
	t.Helper()
	return s.HandlePost(voter, newPost(t, internal.EventVote, internal.VoteData{Name: target}))
}

func phaseView(t *testing.T, u internal.Update) internal.PhaseView {
	t.Helper()
	require.Equal(t, internal.UpdatePhase, u.Event)
	view, ok := u.Data.(internal.PhaseView)
	require.True(t, ok)
	return view
}

func TestVoteInLobbyIsInvalidEvent(t *testing.T) {
	_, s := newTestSession(t, "kaas")
	id := internal.NewClientID()
	mustConnect(t, s, id)
	joinPlayer(t, s, id, "Anna")

	err := vote(t, s, id, "Anna")
	assert.ErrorIs(t, err, ErrInvalidEvent)
	assert.Equal(t, internal.PhaseLobby, s.PhaseName())
}

func TestStartRequiresPlayer(t *testing.T) {
	_, s := newTestSession(t, "kaas")
	for _, name := range []string{"Anna", "Bram"} {
		id := internal.NewClientID()
		mustConnect(t, s, id)
		joinPlayer(t, s, id, name)
	}
	spectator := internal.NewClientID()
	mustConnect(t, s, spectator)
	require.NoError(t, s.HandlePost(spectator, newPost(t, internal.EventJoin, internal.JoinData{Type: internal.RoleSpectator})))

	err := s.HandlePost(spectator, newPost(t, internal.EventStart, internal.StartData{}))
	assert.ErrorIs(t, err, ErrNotAllowed)
	assert.False(t, s.InProgress())
}

func TestStartNeedsEnoughPlayers(t *testing.T) {
	_, s := newTestSession(t, "kaas")
	id := internal.NewClientID()
	mustConnect(t, s, id)
	joinPlayer(t, s, id, "Anna")

	err := s.HandlePost(id, newPost(t, internal.EventStart, internal.StartData{}))
	assert.ErrorIs(t, err, ErrNotAllowed)
	assert.Equal(t, internal.PhaseLobby, s.PhaseName())
}

func TestStartRejectsTooManyRoles(t *testing.T) {
	_, s := newTestSession(t, "kaas")
	var first internal.ClientID
	for i, name := range []string{"Anna", "Bram"} {
		id := internal.NewClientID()
		mustConnect(t, s, id)
		joinPlayer(t, s, id, name)
		if i == 0 {
			first = id
		}
	}

	err := s.HandlePost(first, newPost(t, internal.EventStart, internal.StartData{
		RoleSelection: map[string]int{"wolf": 3},
	}))
	assert.ErrorIs(t, err, ErrInvalidPayload)
	assert.False(t, s.InProgress())
}

func TestStartDealsRolesAndEntersDay(t *testing.T) {
	_, s := newTestSession(t, "kaas")
	names := []string{"Anna", "Bram", "Cas"}
	ids := make([]internal.ClientID, 0, len(names))
	conns := make([]*Connection, 0, len(names))
	for _, name := range names {
		id := internal.NewClientID()
		conns = append(conns, mustConnect(t, s, id))
		joinPlayer(t, s, id, name)
		ids = append(ids, id)
	}
	for _, conn := range conns {
		drain(conn)
	}

	err := s.HandlePost(ids[1], newPost(t, internal.EventStart, internal.StartData{
		RoleSelection: map[string]int{"wolf": 1, "seer": 1},
	}))
	require.NoError(t, err)
	assert.True(t, s.InProgress())
	assert.Equal(t, internal.PhaseDay, s.PhaseName())

	roles := lo.Map(ids, func(id internal.ClientID, _ int) string {
		p, _ := s.Player(id)
		return p.Role
	})
	assert.ElementsMatch(t, []string{"wolf", "seer", internal.DefaultRole}, roles)

	for i, conn := range conns {
		msg := recv(t, conn)
		assert.Equal(t, internal.UpdateMessage, msg.Event)

		roster := recv(t, conn)
		assert.Equal(t, names, rosterNames(t, roster))
		for j, entry := range roster.Data.([]internal.RosterEntry) {
			if i == j {
				assert.Equal(t, roles[i], entry.Role)
			} else {
				assert.Equal(t, internal.UnknownRole, entry.Role)
			}
		}

		view := phaseView(t, recv(t, conn))
		assert.Equal(t, internal.PhaseDay, view.Type)
		assert.Equal(t, 1, view.Day)
		requireNoUpdate(t, conn)
	}
}

func TestStartInDayIsInvalidEvent(t *testing.T) {
	_, s := newTestSession(t, "kaas")
	ids, _ := startGame(t, s, "Anna", "Bram")

	err := s.HandlePost(ids[0], newPost(t, internal.EventStart, internal.StartData{}))
	assert.ErrorIs(t, err, ErrInvalidEvent)
}

func TestDayVoteEliminatesPlurality(t *testing.T) {
	_, s := newTestSession(t, "kaas")
	ids, conns := startGame(t, s, "Anna", "Bram", "Cas")

	require.NoError(t, vote(t, s, ids[0], "Cas"))
	assert.Equal(t, map[string]string{"Anna": "Cas"}, phaseView(t, recv(t, conns[1])).Votes)

	// Changing a vote replaces it.
	require.NoError(t, vote(t, s, ids[0], "Bram"))
	require.NoError(t, vote(t, s, ids[0], "Cas"))
	require.NoError(t, vote(t, s, ids[1], "Cas"))
	require.NoError(t, vote(t, s, ids[2], "Anna"))

	cas, _ := s.Player(ids[2])
	assert.False(t, cas.Alive)
	anna, _ := s.Player(ids[0])
	assert.True(t, anna.Alive)

	conn := conns[0]
	for range 5 {
		phaseView(t, recv(t, conn))
	}
	assert.Equal(t, "Cas was eliminated by the village.", recv(t, conn).Data)
	roster := recv(t, conn).Data.([]internal.RosterEntry)
	assert.False(t, roster[2].Alive)
	next := phaseView(t, recv(t, conn))
	assert.Equal(t, 2, next.Day)
	assert.Empty(t, next.Votes)

	err := vote(t, s, ids[2], "Anna")
	assert.ErrorIs(t, err, ErrNotAllowed)

	err = vote(t, s, ids[0], "Cas")
	assert.ErrorIs(t, err, ErrInvalidPayload)
}

func TestDayVoteTieEliminatesNobody(t *testing.T) {
	_, s := newTestSession(t, "kaas")
	ids, conns := startGame(t, s, "Anna", "Bram")

	require.NoError(t, vote(t, s, ids[0], "Bram"))
	require.NoError(t, vote(t, s, ids[1], "Anna"))

	for _, id := range ids {
		p, _ := s.Player(id)
		assert.True(t, p.Alive)
	}

	conn := conns[0]
	phaseView(t, recv(t, conn))
	phaseView(t, recv(t, conn))
	assert.Equal(t, "The vote was tied, nobody was eliminated.", recv(t, conn).Data)
	rosterNames(t, recv(t, conn))
	assert.Equal(t, 2, phaseView(t, recv(t, conn)).Day)
}

func TestVoteValidation(t *testing.T) {
	_, s := newTestSession(t, "kaas")
	ids, _ := startGame(t, s, "Anna", "Bram")

	spectator := internal.NewClientID()
	mustConnect(t, s, spectator)
	require.NoError(t, s.HandlePost(spectator, newPost(t, internal.EventJoin, internal.JoinData{Type: internal.RoleSpectator})))

	assert.ErrorIs(t, vote(t, s, spectator, "Anna"), ErrNotAllowed)
	assert.ErrorIs(t, vote(t, s, ids[0], "Nobody"), ErrInvalidPayload)
	assert.ErrorIs(t, s.HandlePost(ids[0], internal.Post{Event: internal.EventVote}), ErrInvalidPayload)
}
