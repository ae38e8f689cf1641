package internal

import (
	"encoding/hex"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

const (
	DefaultIdleTimeout     = 30 * time.Second
	DefaultRecoveryTimeout = 60 * time.Second
	DefaultRetry           = 5
	MinPlayersToStart      = 2
)

const (
	DefaultRole = "villager"
	UnknownRole = "unknown"
)

type PhaseName string

const (
	PhaseLobby PhaseName = "lobby"
	PhaseDay   PhaseName = "day"
)

// Role is the part a client plays within one session.
type Role string

const (
	RoleUnassigned Role = ""
	RolePlayer     Role = "player"
	RoleSpectator  Role = "spectator"
)

type ConnState int

const (
	StateActive ConnState = iota
	StateInactive
)

func (s ConnState) String() string {
	if s == StateActive {
		return "active"
	}
	return "inactive"
}

// ClientID correlates a client across reconnects within one session.
type ClientID uuid.UUID

func NewClientID() ClientID {
	return ClientID(uuid.New())
}

// ParseClientID accepts both the 32 digit hex form handed out in cookies
// and the dashed UUID form.
func ParseClientID(s string) (ClientID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return ClientID{}, errors.Wrapf(err, "invalid client id %q", s)
	}
	return ClientID(id), nil
}

// String returns the hex form used on the wire.
func (id ClientID) String() string {
	return hex.EncodeToString(id[:])
}

func (id ClientID) IsZero() bool {
	return id == ClientID{}
}
