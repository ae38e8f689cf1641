package game

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"github.com/scythe504/werewolf-backend/internal"
	"github.com/scythe504/werewolf-backend/internal/database"
)

// Store is the subset of database.Service the registry needs.
type Store interface {
	SaveSession(ctx context.Context, rec database.SessionRecord) error
	DeleteSession(ctx context.Context, name string) error
	LoadSessions(ctx context.Context) ([]database.SessionRecord, error)
}

const defaultStoreTimeout = 5 * time.Second

// =============================================================================
// SESSION REGISTRY
// =============================================================================

// Registry owns every live session by name. Lock order is session before
// registry: code holding r.mu must never wait on a session lock.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	store           Store
	log             *logrus.Logger
	reaper          *reaper
	now             func() time.Time
	idleTimeout     time.Duration
	recoveryTimeout time.Duration
	storeTimeout    time.Duration
}

type Option func(*Registry)

func WithLogger(log *logrus.Logger) Option {
	return func(r *Registry) { r.log = log }
}

// WithIdleTimeout sets how long a session may sit without an active
// connection after it is created or its last client leaves.
func WithIdleTimeout(d time.Duration) Option {
	return func(r *Registry) { r.idleTimeout = d }
}

// WithRecoveryTimeout sets the grace period for sessions restored at startup.
func WithRecoveryTimeout(d time.Duration) Option {
	return func(r *Registry) { r.recoveryTimeout = d }
}

func WithStoreTimeout(d time.Duration) Option {
	return func(r *Registry) { r.storeTimeout = d }
}

func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

func NewRegistry(store Store, opts ...Option) *Registry {
	r := &Registry{
		sessions:        make(map[string]*Session),
		store:           store,
		log:             logrus.StandardLogger(),
		now:             time.Now,
		idleTimeout:     internal.DefaultIdleTimeout,
		recoveryTimeout: internal.DefaultRecoveryTimeout,
		storeTimeout:    defaultStoreTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.reaper = &reaper{registry: r}
	return r
}

// Create registers a new, empty session and persists it. Nothing is
// installed when the store rejects the record.
func (r *Registry) Create(ctx context.Context, name string) (*Session, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.Wrap(ErrInvalidPayload, "session name is required")
	}

	s, err := r.insert(ctx, name)
	if err != nil {
		return nil, err
	}

	// Nobody may ever connect, so the session starts its idle countdown now.
	s.mu.Lock()
	if s.inactiveSince != nil && !s.destroyed {
		r.reaper.armLocked(s, r.idleTimeout)
	}
	s.mu.Unlock()

	r.log.WithField("session", name).Info("[Registry.Create] session created")
	return s, nil
}

func (r *Registry) insert(ctx context.Context, name string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[name]; exists {
		return nil, errors.Wrapf(ErrAlreadyExists, "session %q", name)
	}

	// Not yet reachable by anybody, so no session lock is needed.
	s := newSession(r, name)
	if err := r.store.SaveSession(ctx, s.recordLocked()); err != nil {
		return nil, errors.Wrapf(err, "persist session %q", name)
	}
	r.sessions[name] = s
	return s, nil
}

func (r *Registry) Get(name string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[name]
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "session %q", name)
	}
	return s, nil
}

// Remove drops a session from the registry and stops its timer. The durable
// record is left alone.
func (r *Registry) Remove(name string) {
	r.mu.Lock()
	s, ok := r.sessions[name]
	delete(r.sessions, name)
	r.mu.Unlock()

	if !ok {
		return
	}
	s.mu.Lock()
	s.destroyed = true
	s.cancelReapLocked()
	s.mu.Unlock()

	r.log.WithField("session", name).Info("[Registry.Remove] session removed")
}

// removeIfCurrent deletes name only while it still maps to s. Called with
// s.mu held, which is allowed by the lock order.
func (r *Registry) removeIfCurrent(s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sessions[s.name] != s {
		return false
	}
	delete(r.sessions, s.name)
	return true
}

// deleteRecordIfUnused drops the durable record for name unless a session of
// that name has been installed since. Holding r.mu keeps Create from saving a
// new record in between.
func (r *Registry) deleteRecordIfUnused(ctx context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[name]; exists {
		r.log.WithField("session", name).Debug("[Registry.deleteRecord] name reused, keeping record")
		return nil
	}
	return r.store.DeleteSession(ctx, name)
}

// List returns the session names in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	names := lo.Keys(r.sessions)
	r.mu.RUnlock()

	slices.Sort(names)
	return names
}

// Joinable returns the name of a session still in its lobby.
func (r *Registry) Joinable() (string, bool) {
	// Snapshot first: taking session locks under r.mu would invert the lock order.
	for _, s := range r.snapshot() {
		s.mu.RLock()
		open := !s.inProgress && !s.destroyed
		s.mu.RUnlock()

		if open {
			r.log.WithField("session", s.name).Debug("[Registry.Joinable] found joinable session")
			return s.name, true
		}
	}

	r.log.Debug("[Registry.Joinable] no joinable session found")
	return "", false
}

// snapshot returns the sessions sorted by name.
func (r *Registry) snapshot() []*Session {
	r.mu.RLock()
	sessions := lo.Values(r.sessions)
	r.mu.RUnlock()

	slices.SortFunc(sessions, func(a, b *Session) int {
		return strings.Compare(a.name, b.name)
	})
	return sessions
}

// Recover re-registers every stored session. Restored sessions get the
// recovery timeout to let their clients reconnect. It returns how many
// sessions were installed.
func (r *Registry) Recover(ctx context.Context) (int, error) {
	records, err := r.store.LoadSessions(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "load sessions")
	}

	restored := 0
	for _, rec := range records {
		if strings.TrimSpace(rec.Name) == "" {
			continue
		}
		s := restoreSession(r, rec)

		r.mu.Lock()
		_, exists := r.sessions[s.name]
		if !exists {
			r.sessions[s.name] = s
		}
		r.mu.Unlock()

		if exists {
			r.log.WithField("session", s.name).Warn("[Registry.Recover] session already registered, skipping")
			continue
		}

		s.mu.Lock()
		r.reaper.armLocked(s, r.recoveryTimeout)
		s.mu.Unlock()
		restored++

		r.log.WithFields(logrus.Fields{
			"session":     s.name,
			"players":     len(rec.Players),
			"in_progress": rec.InProgress,
			"phase":       rec.Phase,
		}).Info("[Registry.Recover] session restored")
	}
	return restored, nil
}

// Shutdown stops every pending reap and persists all sessions.
func (r *Registry) Shutdown(ctx context.Context) error {
	var errs error
	for _, s := range r.snapshot() {
		s.mu.Lock()
		s.cancelReapLocked()
		destroyed := s.destroyed
		rec, version := s.snapshotLocked()
		s.mu.Unlock()

		if destroyed {
			continue
		}
		if err := s.save(ctx, rec, version); err != nil {
			errs = errors.CombineErrors(errs, errors.Wrapf(err, "persist session %q", rec.Name))
		}
	}
	r.log.Info("[Registry.Shutdown] sessions persisted")
	return errs
}
