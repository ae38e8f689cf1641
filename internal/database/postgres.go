package database

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5/pgxpool"
)

const createSessionsTable = `
CREATE TABLE IF NOT EXISTS game_sessions (
	name        TEXT PRIMARY KEY,
	in_progress BOOLEAN NOT NULL DEFAULT FALSE,
	phase       TEXT NOT NULL DEFAULT 'lobby',
	day_number  INTEGER NOT NULL DEFAULT 0,
	votes       JSONB NOT NULL DEFAULT '{}'::jsonb,
	players     JSONB NOT NULL DEFAULT '[]'::jsonb,
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
)`

const upsertSession = `
INSERT INTO game_sessions (name, in_progress, phase, day_number, votes, players, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (name) DO UPDATE SET
	in_progress = EXCLUDED.in_progress,
	phase       = EXCLUDED.phase,
	day_number  = EXCLUDED.day_number,
	votes       = EXCLUDED.votes,
	players     = EXCLUDED.players,
	updated_at  = EXCLUDED.updated_at`

type postgresService struct {
	pool *pgxpool.Pool
}

// NewPostgres connects to connStr, verifies the connection and creates the
// sessions table when it does not exist yet.
func NewPostgres(ctx context.Context, connStr string) (Service, error) {
	poolCfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, errors.Wrap(err, "parse postgres config")
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, errors.Wrap(err, "open postgres pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "ping postgres")
	}
	if _, err := pool.Exec(ctx, createSessionsTable); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "create game_sessions table")
	}
	return &postgresService{pool: pool}, nil
}

// Health checks the health of the database connection by pinging the database.
func (s *postgresService) Health() map[string]string {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	stats := make(map[string]string)
	if err := s.pool.Ping(ctx); err != nil {
		stats["status"] = "down"
		stats["error"] = fmt.Sprintf("db down: %v", err)
		return stats
	}

	poolStats := s.pool.Stat()
	stats["status"] = "up"
	stats["message"] = "It's healthy"
	stats["total_connections"] = strconv.Itoa(int(poolStats.TotalConns()))
	stats["acquired_connections"] = strconv.Itoa(int(poolStats.AcquiredConns()))
	stats["idle_connections"] = strconv.Itoa(int(poolStats.IdleConns()))
	stats["max_connections"] = strconv.Itoa(int(poolStats.MaxConns()))

	if poolStats.AcquiredConns() >= poolStats.MaxConns() {
		stats["message"] = "The database pool is exhausted."
	}
	return stats
}

func (s *postgresService) SaveSession(ctx context.Context, rec SessionRecord) error {
	votes := rec.Votes
	if votes == nil {
		votes = map[string]string{}
	}
	players := rec.Players
	if players == nil {
		players = []PlayerRecord{}
	}
	votesJSON, err := json.Marshal(votes)
	if err != nil {
		return errors.Wrap(err, "encode votes")
	}
	playersJSON, err := json.Marshal(players)
	if err != nil {
		return errors.Wrap(err, "encode players")
	}

	_, err = s.pool.Exec(ctx, upsertSession,
		rec.Name, rec.InProgress, rec.Phase, rec.DayNumber,
		string(votesJSON), string(playersJSON), time.Now().UTC(),
	)
	return errors.Wrapf(err, "save session %q", rec.Name)
}

func (s *postgresService) DeleteSession(ctx context.Context, name string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM game_sessions WHERE name = $1`, name)
	return errors.Wrapf(err, "delete session %q", name)
}

func (s *postgresService) LoadSessions(ctx context.Context) ([]SessionRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT name, in_progress, phase, day_number, votes, players, updated_at
		FROM game_sessions ORDER BY name`)
	if err != nil {
		return nil, errors.Wrap(err, "query sessions")
	}
	defer rows.Close()

	var out []SessionRecord
	for rows.Next() {
		var (
			rec                    SessionRecord
			votesJSON, playersJSON []byte
		)
		if err := rows.Scan(&rec.Name, &rec.InProgress, &rec.Phase, &rec.DayNumber,
			&votesJSON, &playersJSON, &rec.UpdatedAt); err != nil {
			return nil, errors.Wrap(err, "scan session")
		}
		if err := json.Unmarshal(votesJSON, &rec.Votes); err != nil {
			return nil, errors.Wrapf(err, "decode votes of %q", rec.Name)
		}
		if len(rec.Votes) == 0 {
			rec.Votes = nil
		}
		if err := json.Unmarshal(playersJSON, &rec.Players); err != nil {
			return nil, errors.Wrapf(err, "decode players of %q", rec.Name)
		}
		out = append(out, rec)
	}
	return out, errors.Wrap(rows.Err(), "iterate sessions")
}

// Close closes the database connection pool.
func (s *postgresService) Close() error {
	s.pool.Close()
	return nil
}
