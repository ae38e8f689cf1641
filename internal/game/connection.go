package game

import (
	"context"

	"github.com/scythe504/werewolf-backend/internal"
)

// Connection is one client's participation record within a session. State
// and Role are guarded by the owning session's lock; the update queue has
// its own.
type Connection struct {
	ClientID internal.ClientID

	state   internal.ConnState
	role    internal.Role
	updates *UpdateChannel
}

func newConnection(id internal.ClientID, role internal.Role) *Connection {
	return &Connection{
		ClientID: id,
		state:    internal.StateActive,
		role:     role,
		updates:  NewUpdateChannel(),
	}
}

func (c *Connection) Enqueue(u internal.Update) {
	c.updates.Push(u)
}

// ReceiveNext blocks until the next update for this client is available or
// ctx is cancelled. Only the client's stream may call it.
func (c *Connection) ReceiveNext(ctx context.Context) (internal.Update, error) {
	return c.updates.Next(ctx)
}

func (c *Connection) SendMessage(text string) {
	c.Enqueue(internal.NewMessageUpdate(text))
}

func (c *Connection) SendPlayerUpdate(roster []internal.RosterEntry) {
	c.Enqueue(internal.NewPlayerUpdate(roster))
}

func (c *Connection) SendPhaseUpdate(view internal.PhaseView) {
	c.Enqueue(internal.NewPhaseUpdate(view))
}

func (c *Connection) active() bool {
	return c.state == internal.StateActive
}
