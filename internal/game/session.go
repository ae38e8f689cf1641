package game

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/sirupsen/logrus"

	"github.com/scythe504/werewolf-backend/internal"
	"github.com/scythe504/werewolf-backend/internal/database"
)

// =============================================================================
// SESSION
// =============================================================================

// Session is one named game. Every field below mu is guarded by it, including
// the state and role of the connections it owns.
//
// Records are snapshotted under mu and written after it is released. saveMu
// orders those writes; it is always taken before mu, never while holding it.
type Session struct {
	name     string
	registry *Registry
	log      *logrus.Entry

	saveMu       sync.Mutex
	savedVersion uint64

	mu            sync.RWMutex
	inProgress    bool
	phase         Phase
	connections   map[internal.ClientID]*Connection
	players       map[internal.ClientID]*internal.Player
	playerOrder   []internal.ClientID
	spectators    map[internal.ClientID]struct{}
	inactiveSince *time.Time
	destroyed     bool
	reapCancel    context.CancelFunc
	version       uint64
}

// SessionView is the read-only snapshot served by GET /games/{name}/json.
type SessionView struct {
	Name          string                 `json:"name"`
	InProgress    bool                   `json:"in_progress"`
	Phase         internal.PhaseView     `json:"phase"`
	Players       []internal.RosterEntry `json:"players"`
	Spectators    int                    `json:"spectators"`
	Connections   int                    `json:"connections"`
	Active        int                    `json:"active"`
	InactiveSince *time.Time             `json:"inactive_since,omitempty"`
}

func newSession(r *Registry, name string) *Session {
	now := r.now()
	return &Session{
		name:          name,
		registry:      r,
		log:           r.log.WithField("session", name),
		phase:         newLobbyPhase(),
		connections:   make(map[internal.ClientID]*Connection),
		players:       make(map[internal.ClientID]*internal.Player),
		playerOrder:   make([]internal.ClientID, 0),
		spectators:    make(map[internal.ClientID]struct{}),
		inactiveSince: &now,
	}
}

// restoreSession rebuilds a session from its durable record. Nobody is
// connected yet, so the session starts out inactive.
func restoreSession(r *Registry, rec database.SessionRecord) *Session {
	s := newSession(r, rec.Name)
	s.inProgress = rec.InProgress
	s.phase = phaseFromRecord(rec)

	for _, pr := range rec.Players {
		id, err := internal.ParseClientID(pr.ClientID)
		if err != nil {
			s.log.WithError(err).Warn("[restoreSession] skipping player with invalid client id")
			continue
		}
		if _, dup := s.players[id]; dup {
			continue
		}
		s.players[id] = &internal.Player{
			Name:  pr.Name,
			Alive: pr.Alive,
			Lover: pr.Lover,
			Mayor: pr.Mayor,
			Role:  pr.Role,
		}
		s.playerOrder = append(s.playerOrder, id)
	}
	return s
}

func (s *Session) Name() string {
	return s.name
}

func (s *Session) InProgress() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.inProgress
}

func (s *Session) PhaseName() internal.PhaseName {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.phase.Name()
}

// Connect registers a client stream, or reactivates the connection of a
// client that dropped out of a running game.
func (s *Session) Connect(id internal.ClientID) (*Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.destroyed {
		return nil, errors.Wrapf(ErrNotFound, "session %q", s.name)
	}

	entry := s.log.WithField("client", id.String())
	conn, exists := s.connections[id]
	switch {
	case !exists:
		role := internal.RoleUnassigned
		if _, ok := s.players[id]; ok {
			role = internal.RolePlayer
		}
		conn = newConnection(id, role)
		s.connections[id] = conn
		entry.WithField("role", role).Info("[Session.Connect] new connection")

	case !s.inProgress, conn.active():
		return nil, errors.Wrapf(ErrAlreadyConnected, "client %s in session %q", id, s.name)

	default:
		conn.state = internal.StateActive
		entry.Info("[Session.Connect] connection reactivated")
	}

	s.markActiveLocked()

	conn.SendMessage(fmt.Sprintf("Welcome to %s!", s.name))
	if _, isPlayer := s.players[id]; isPlayer {
		s.broadcastRosterLocked()
	} else {
		conn.SendPlayerUpdate(s.rosterForLocked(id))
	}
	if s.inProgress {
		conn.SendPhaseUpdate(s.phase.View(s))
	}
	return conn, nil
}

// Disconnect is called exactly once when a client's stream ends.
func (s *Session) Disconnect(id internal.ClientID) {
	rec, version, changed := s.disconnect(id)
	if changed {
		s.persist(rec, version)
	}
}

func (s *Session) disconnect(id internal.ClientID) (database.SessionRecord, uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conn, ok := s.connections[id]
	if !ok || s.destroyed {
		return database.SessionRecord{}, 0, false
	}
	conn.state = internal.StateInactive

	entry := s.log.WithField("client", id.String())
	rosterChanged := false
	if !s.inProgress {
		delete(s.connections, id)
		delete(s.spectators, id)
		if _, isPlayer := s.players[id]; isPlayer {
			delete(s.players, id)
			s.playerOrder = slices.DeleteFunc(s.playerOrder, func(pid internal.ClientID) bool {
				return pid == id
			})
			rosterChanged = true
		}
		entry.Info("[Session.Disconnect] connection removed")
	} else {
		entry.Info("[Session.Disconnect] connection marked inactive")
	}

	if s.activeCountLocked() == 0 {
		s.markInactiveLocked()
	}
	if !rosterChanged {
		return database.SessionRecord{}, 0, false
	}
	s.broadcastRosterLocked()
	rec, version := s.snapshotLocked()
	return rec, version, true
}

// HandlePost applies one client event. join is handled here; every other
// event goes through the current phase's dispatch table.
func (s *Session) HandlePost(id internal.ClientID, post internal.Post) error {
	rec, version, err := s.handlePost(id, post)
	if err != nil {
		return err
	}
	s.persist(rec, version)
	return nil
}

func (s *Session) handlePost(id internal.ClientID, post internal.Post) (database.SessionRecord, uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.destroyed {
		return database.SessionRecord{}, 0, errors.Wrapf(ErrNotFound, "session %q", s.name)
	}
	conn, ok := s.connections[id]
	if !ok {
		return database.SessionRecord{}, 0, errors.Wrapf(ErrNotConnected, "client %s in session %q", id, s.name)
	}

	var err error
	if post.Event == internal.EventJoin {
		err = s.joinLocked(conn, post)
	} else {
		err = s.phase.HandlePost(s, conn, post)
	}
	if err != nil {
		s.log.WithError(err).WithField("event", post.Event).Debug("[Session.HandlePost] rejected")
		return database.SessionRecord{}, 0, err
	}

	rec, version := s.snapshotLocked()
	return rec, version, nil
}

func (s *Session) joinLocked(conn *Connection, post internal.Post) error {
	entry := s.log.WithField("client", conn.ClientID.String())
	if conn.role != internal.RoleUnassigned {
		entry.Debug("[Session.join] client already has a role, ignoring")
		return nil
	}

	var data internal.JoinData
	if err := decodePayload(post.Data, &data); err != nil {
		return err
	}

	switch data.Type {
	case internal.RoleSpectator:
		s.spectators[conn.ClientID] = struct{}{}
		conn.role = internal.RoleSpectator
		entry.Info("[Session.join] joined as spectator")

	case internal.RolePlayer:
		if s.inProgress {
			entry.Debug("[Session.join] game in progress, ignoring player join")
			return nil
		}
		name := strings.TrimSpace(data.Name)
		if name == "" {
			return errors.Wrap(ErrInvalidPayload, "player name is required")
		}
		if _, taken := s.playerByName(name); taken {
			return errors.Wrapf(ErrInvalidPayload, "name %q is already taken", name)
		}

		s.players[conn.ClientID] = internal.NewPlayer(name)
		s.playerOrder = append(s.playerOrder, conn.ClientID)
		conn.role = internal.RolePlayer
		entry.WithField("name", name).Info("[Session.join] joined as player")

		if !conn.active() || s.activeCountLocked() > 1 {
			s.broadcastRosterLocked()
		}

	default:
		return errors.Wrapf(ErrInvalidPayload, "unknown join type %q", data.Type)
	}
	return nil
}

// View returns a snapshot of the session. Roles are hidden.
func (s *Session) View() SessionView {
	s.mu.RLock()
	defer s.mu.RUnlock()

	view := SessionView{
		Name:        s.name,
		InProgress:  s.inProgress,
		Phase:       s.phase.View(s),
		Players:     s.rosterForLocked(internal.ClientID{}),
		Spectators:  len(s.spectators),
		Connections: len(s.connections),
		Active:      s.activeCountLocked(),
	}
	if s.inactiveSince != nil {
		since := *s.inactiveSince
		view.InactiveSince = &since
	}
	return view
}

// ConnectionInfo reports the state and role of a client's connection.
func (s *Session) ConnectionInfo(id internal.ClientID) (internal.ConnState, internal.Role, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conn, ok := s.connections[id]
	if !ok {
		return internal.StateInactive, internal.RoleUnassigned, false
	}
	return conn.state, conn.role, true
}

func (s *Session) Player(id internal.ClientID) (internal.Player, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.players[id]
	if !ok {
		return internal.Player{}, false
	}
	return *p, true
}

func (s *Session) PlayerCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.players)
}

func (s *Session) IsSpectator(id internal.ClientID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.spectators[id]
	return ok
}

// InactiveSince returns when the last active connection went away, or false
// while somebody is connected.
func (s *Session) InactiveSince() (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.inactiveSince == nil {
		return time.Time{}, false
	}
	return *s.inactiveSince, true
}

func (s *Session) markActiveLocked() {
	if s.inactiveSince != nil {
		s.inactiveSince = nil
		s.log.Debug("[Session.markActive] session is active")
	}
	s.cancelReapLocked()
}

func (s *Session) markInactiveLocked() {
	now := s.registry.now()
	s.inactiveSince = &now
	s.registry.reaper.armLocked(s, s.registry.idleTimeout)
}

func (s *Session) cancelReapLocked() {
	if s.reapCancel != nil {
		s.reapCancel()
		s.reapCancel = nil
	}
}

func (s *Session) activeCountLocked() int {
	n := 0
	for _, conn := range s.connections {
		if conn.active() {
			n++
		}
	}
	return n
}

func (s *Session) aliveCountLocked() int {
	n := 0
	for _, p := range s.players {
		if p.Alive {
			n++
		}
	}
	return n
}

// playerByName returns the first player in join order with the given name.
func (s *Session) playerByName(name string) (*internal.Player, bool) {
	for _, id := range s.playerOrder {
		if p := s.players[id]; p != nil && p.Name == name {
			return p, true
		}
	}
	return nil, false
}

func (s *Session) recordLocked() database.SessionRecord {
	rec := database.SessionRecord{
		Name:       s.name,
		InProgress: s.inProgress,
		Players:    make([]database.PlayerRecord, 0, len(s.playerOrder)),
		UpdatedAt:  s.registry.now().UTC(),
	}
	for _, id := range s.playerOrder {
		p := s.players[id]
		rec.Players = append(rec.Players, database.PlayerRecord{
			ClientID: id.String(),
			Name:     p.Name,
			Alive:    p.Alive,
			Lover:    p.Lover,
			Mayor:    p.Mayor,
			Role:     p.Role,
		})
	}
	s.phase.fillRecord(&rec)
	return rec
}

// snapshotLocked captures the record to persist along with its version.
func (s *Session) snapshotLocked() (database.SessionRecord, uint64) {
	s.version++
	return s.recordLocked(), s.version
}

// persist writes a snapshot taken by snapshotLocked. Failures are logged; the
// in-memory session stays authoritative.
func (s *Session) persist(rec database.SessionRecord, version uint64) {
	ctx, cancel := context.WithTimeout(context.Background(), s.registry.storeTimeout)
	defer cancel()

	if err := s.save(ctx, rec, version); err != nil {
		s.log.WithError(err).Error("[Session.persist] failed to save session")
	}
}

// save stores rec unless a newer snapshot was already written or the session
// has been destroyed. Must not be called with s.mu held.
func (s *Session) save(ctx context.Context, rec database.SessionRecord, version uint64) error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	if version <= s.savedVersion {
		return nil
	}
	s.mu.RLock()
	destroyed := s.destroyed
	s.mu.RUnlock()
	if destroyed {
		return nil
	}

	if err := s.registry.store.SaveSession(ctx, rec); err != nil {
		return err
	}
	s.savedVersion = version
	return nil
}
