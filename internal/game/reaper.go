package game

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
)

// =============================================================================
// INACTIVITY REAPER
// =============================================================================

// reaper destroys sessions that stayed without an active connection for a
// full timeout. Each session has at most one pending timer.
type reaper struct {
	registry *Registry
}

// armLocked replaces any pending timer on s. The wait happens on its own
// goroutine without holding any lock.
func (rp *reaper) armLocked(s *Session, timeout time.Duration) {
	s.cancelReapLocked()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	s.reapCancel = cancel
	s.log.WithField("timeout", timeout).Debug("[Reaper.arm] session will be deleted unless a client connects")

	go func() {
		<-ctx.Done()
		if !errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return
		}
		rp.fire(s, timeout)
	}()
}

// fire re-validates idleness under the session lock before destroying
// anything: the session may have been reactivated and idled again since the
// timer was armed.
func (rp *reaper) fire(s *Session, timeout time.Duration) bool {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return false
	}
	if s.inactiveSince == nil {
		s.mu.Unlock()
		s.log.Debug("[Reaper.fire] session is active, not deleting")
		return false
	}
	if idle := rp.registry.now().Sub(*s.inactiveSince); idle < timeout {
		s.mu.Unlock()
		s.log.WithField("idle", idle).Debug("[Reaper.fire] session was active recently, not deleting")
		return false
	}

	s.destroyed = true
	s.cancelReapLocked()
	removed := rp.registry.removeIfCurrent(s)
	s.mu.Unlock()

	if !removed {
		return false
	}

	// Waits out any in-flight save of this session.
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), rp.registry.storeTimeout)
	defer cancel()
	if err := rp.registry.deleteRecordIfUnused(ctx, s.name); err != nil {
		s.log.WithError(err).Error("[Reaper.fire] failed to delete session record")
	}

	s.log.WithField("timeout", timeout).Info("[Reaper.fire] session deleted after inactivity")
	return true
}
