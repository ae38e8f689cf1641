package game

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/scythe504/werewolf-backend/internal"
	"github.com/scythe504/werewolf-backend/internal/database"
	"github.com/scythe504/werewolf-backend/internal/logging"
)

func newTestRegistry(t *testing.T, opts ...Option) (*Registry, database.Service) {
	t.Helper()
	store := database.NewMemory()
	opts = append([]Option{WithLogger(logging.Discard())}, opts...)
	r := NewRegistry(store, opts...)
	t.Cleanup(func() { _ = r.Shutdown(context.Background()) })
	return r, store
}

func newTestSession(t *testing.T, name string, opts ...Option) (*Registry, *Session) {
	t.Helper()
	r, _ := newTestRegistry(t, opts...)
	s, err := r.Create(context.Background(), name)
	require.NoError(t, err)
	return r, s
}

func mustConnect(t *testing.T, s *Session, id internal.ClientID) *Connection {
	t.Helper()
	conn, err := s.Connect(id)
	require.NoError(t, err)
	return conn
}

func newPost(t *testing.T, event string, data any) internal.Post {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	return internal.Post{Event: event, Data: raw}
}

func joinPlayer(t *testing.T, s *Session, id internal.ClientID, name string) {
	t.Helper()
	err := s.HandlePost(id, newPost(t, internal.EventJoin, internal.JoinData{Type: internal.RolePlayer, Name: name}))
	require.NoError(t, err)
}

func recv(t *testing.T, conn *Connection) internal.Update {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	u, err := conn.ReceiveNext(ctx)
	require.NoError(t, err, "expected an update")
	return u
}

func requireNoUpdate(t *testing.T, conn *Connection) {
	t.Helper()
	require.Zero(t, conn.updates.Len(), "unexpected pending updates")
}

// drain discards everything queued so far.
func drain(conn *Connection) {
	for conn.updates.Len() > 0 {
		_, _ = conn.ReceiveNext(context.Background())
	}
}

func rosterNames(t *testing.T, u internal.Update) []string {
	t.Helper()
	require.Equal(t, internal.UpdatePlayers, u.Event)
	roster, ok := u.Data.([]internal.RosterEntry)
	require.True(t, ok)
	names := make([]string, 0, len(roster))
	for _, e := range roster {
		names = append(names, e.Name)
	}
	return names
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func sessionRecord(name string) database.SessionRecord {
	return database.SessionRecord{Name: name, Phase: string(internal.PhaseLobby)}
}

// gatedStore blocks the selected store calls until release is closed.
// entered is closed when the first blocked call arrives.
type gatedStore struct {
	database.Service

	blockSave   atomic.Bool
	blockDelete atomic.Bool
	once        sync.Once
	entered     chan struct{}
	release     chan struct{}
}

func newGatedStore() *gatedStore {
	return &gatedStore{
		Service: database.NewMemory(),
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
}

func (g *gatedStore) wait() {
	g.once.Do(func() { close(g.entered) })
	<-g.release
}

func (g *gatedStore) SaveSession(ctx context.Context, rec database.SessionRecord) error {
	if g.blockSave.Load() {
		g.wait()
	}
	return g.Service.SaveSession(ctx, rec)
}

func (g *gatedStore) DeleteSession(ctx context.Context, name string) error {
	if g.blockDelete.Load() {
		g.wait()
	}
	return g.Service.DeleteSession(ctx, name)
}

func waitClosed(t *testing.T, ch <-chan struct{}, msg string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal(msg)
	}
}
