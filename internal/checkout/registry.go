package checkout

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/stitchwell-backend/pkg/errors"
	"github.com/angelmondragon/stitchwell-backend/pkg/logger"
)

// Registry keeps checkout sessions in memory. A session that has not been
// touched for ttl is dropped; nothing about it is persisted.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
	ttl      time.Duration
	now      func() time.Time
}

func NewRegistry(ttl time.Duration) *Registry {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &Registry{
		sessions: map[string]*Session{},
		ttl:      ttl,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (r *Registry) put(s *Session) {
	r.mu.Lock()
	r.sessions[s.id] = s
	r.mu.Unlock()
}

// Get returns the session only to the shopper who started it.
func (r *Registry) Get(id string, userID uuid.UUID) (*Session, error) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if ok && r.expired(s) {
		delete(r.sessions, id)
		ok = false
	}
	r.mu.Unlock()

	if !ok || s.userID != userID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "checkout not found")
	}
	return s, nil
}

// Remove drops a session when the shopper navigates away.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	delete(r.sessions, id)
	r.mu.Unlock()
}

// Len reports the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Sweep drops expired sessions and returns how many were removed.
func (r *Registry) Sweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for id, s := range r.sessions {
		if r.expired(s) {
			delete(r.sessions, id)
			removed++
		}
	}
	return removed
}

// Run sweeps on every tick until ctx is cancelled.
func (r *Registry) Run(ctx context.Context, interval time.Duration, logg *logger.Logger) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := r.Sweep(); removed > 0 {
				logg.Debug(logg.WithField(ctx, "removed", removed), "expired checkout sessions dropped")
			}
		}
	}
}

// expired never drops a session with a submission in flight.
func (r *Registry) expired(s *Session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.inFlight && r.now().Sub(s.updatedAt) > r.ttl
}
