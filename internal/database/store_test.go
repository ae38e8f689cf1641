package database

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runStoreSuite checks the behavior every backend must share.
func runStoreSuite(t *testing.T, svc Service) {
	t.Helper()
	ctx := context.Background()

	t.Run("empty", func(t *testing.T) {
		recs, err := svc.LoadSessions(ctx)
		require.NoError(t, err)
		assert.Empty(t, recs)
	})

	t.Run("save and load", func(t *testing.T) {
		rec := SessionRecord{
			Name:       "kaas",
			InProgress: true,
			Phase:      "day",
			DayNumber:  2,
			Votes:      map[string]string{"0123456789abcdef0123456789abcdef": "Anna"},
			Players: []PlayerRecord{
				{ClientID: "0123456789abcdef0123456789abcdef", Name: "Anna", Alive: true, Role: "wolf"},
				{ClientID: "fedcba9876543210fedcba9876543210", Name: "Bram", Alive: false, Mayor: true},
			},
			UpdatedAt: time.Now().UTC(),
		}
		require.NoError(t, svc.SaveSession(ctx, rec))
		require.NoError(t, svc.SaveSession(ctx, SessionRecord{Name: "appel", Phase: "lobby"}))

		recs, err := svc.LoadSessions(ctx)
		require.NoError(t, err)
		require.Len(t, recs, 2)
		assert.Equal(t, "appel", recs[0].Name)
		assert.Empty(t, recs[0].Players)

		got := recs[1]
		assert.Equal(t, rec.Name, got.Name)
		assert.Equal(t, rec.InProgress, got.InProgress)
		assert.Equal(t, rec.Phase, got.Phase)
		assert.Equal(t, rec.DayNumber, got.DayNumber)
		assert.Equal(t, rec.Votes, got.Votes)
		assert.Equal(t, rec.Players, got.Players)
	})

	t.Run("save replaces", func(t *testing.T) {
		require.NoError(t, svc.SaveSession(ctx, SessionRecord{Name: "kaas", Phase: "lobby"}))

		recs, err := svc.LoadSessions(ctx)
		require.NoError(t, err)
		require.Len(t, recs, 2)
		assert.Equal(t, "lobby", recs[1].Phase)
		assert.Empty(t, recs[1].Players)
		assert.Empty(t, recs[1].Votes)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, svc.DeleteSession(ctx, "kaas"))
		require.NoError(t, svc.DeleteSession(ctx, "missing"))

		recs, err := svc.LoadSessions(ctx)
		require.NoError(t, err)
		require.Len(t, recs, 1)
		assert.Equal(t, "appel", recs[0].Name)
	})

	t.Run("health", func(t *testing.T) {
		assert.Equal(t, "up", svc.Health()["status"])
	})
}

func TestSessionRecordClone(t *testing.T) {
	rec := SessionRecord{
		Name:    "kaas",
		Votes:   map[string]string{"a": "b"},
		Players: []PlayerRecord{{Name: "Anna"}},
	}
	clone := rec.Clone()
	clone.Votes["a"] = "c"
	clone.Players[0].Name = "Bram"

	assert.Equal(t, "b", rec.Votes["a"])
	assert.Equal(t, "Anna", rec.Players[0].Name)
}
