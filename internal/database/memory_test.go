package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scythe504/werewolf-backend/internal/config"
	"github.com/scythe504/werewolf-backend/internal/logging"
)

func TestMemoryStore(t *testing.T) {
	runStoreSuite(t, NewMemory())
}

func TestMemoryStoreHonorsContext(t *testing.T) {
	svc := NewMemory()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, svc.SaveSession(ctx, SessionRecord{Name: "kaas"}), context.Canceled)
	_, err := svc.LoadSessions(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewSelectsDriver(t *testing.T) {
	svc, err := New(context.Background(), config.Database{Driver: DriverMemory}, logging.Discard())
	require.NoError(t, err)
	assert.Equal(t, "in-memory store", svc.Health()["message"])

	_, err = New(context.Background(), config.Database{Driver: "cassandra"}, logging.Discard())
	assert.ErrorIs(t, err, ErrUnknownDriver)
}
