// Package database persists session records so that sessions survive a
// process restart. The game engine only depends on the Service interface;
// Postgres, Redis and in-memory backends are selected by configuration.
package database

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/sirupsen/logrus"

	"github.com/scythe504/werewolf-backend/internal/config"
)

const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
)

var ErrUnknownDriver = errors.New("unknown store driver")

// PlayerRecord is the durable form of a player, keyed by the hex client id.
type PlayerRecord struct {
	ClientID string `json:"client_id"`
	Name     string `json:"name"`
	Alive    bool   `json:"alive"`
	Lover    bool   `json:"lover"`
	Mayor    bool   `json:"mayor"`
	Role     string `json:"role,omitempty"`
}

// SessionRecord is the durable form of a session. Players are stored in
// join order.
type SessionRecord struct {
	Name       string            `json:"name"`
	InProgress bool              `json:"in_progress"`
	Phase      string            `json:"phase"`
	DayNumber  int               `json:"day_number"`
	Votes      map[string]string `json:"votes,omitempty"`
	Players    []PlayerRecord    `json:"players"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// Clone returns a deep copy so callers never share maps or slices with a
// backend.
func (r SessionRecord) Clone() SessionRecord {
	out := r
	if r.Votes != nil {
		out.Votes = make(map[string]string, len(r.Votes))
		for k, v := range r.Votes {
			out.Votes[k] = v
		}
	}
	out.Players = append([]PlayerRecord(nil), r.Players...)
	return out
}

// Service represents a service that stores session records.
type Service interface {
	// Health returns a map of health status information.
	Health() map[string]string

	// SaveSession inserts or replaces the record with the same name.
	SaveSession(ctx context.Context, rec SessionRecord) error

	// DeleteSession removes a record. Deleting a missing record is not an error.
	DeleteSession(ctx context.Context, name string) error

	// LoadSessions returns every stored record.
	LoadSessions(ctx context.Context) ([]SessionRecord, error)

	// Close terminates the connection to the backend.
	Close() error
}

// New opens the store selected by cfg.Driver.
func New(ctx context.Context, cfg config.Database, log *logrus.Logger) (Service, error) {
	entry := log.WithField("driver", cfg.Driver)
	switch cfg.Driver {
	case DriverMemory, "":
		entry.Info("[database.New] using in-memory session store")
		return NewMemory(), nil
	case DriverPostgres:
		svc, err := NewPostgres(ctx, cfg.PostgresURL())
		if err != nil {
			return nil, err
		}
		entry.WithField("host", cfg.Host).Info("[database.New] connected to postgres")
		return svc, nil
	case DriverRedis:
		svc, err := NewRedis(ctx, cfg.RedisURL, cfg.RedisKeyPrefix)
		if err != nil {
			return nil, err
		}
		entry.Info("[database.New] connected to redis")
		return svc, nil
	default:
		return nil, errors.Wrapf(ErrUnknownDriver, "%q", cfg.Driver)
	}
}
