package memory

import (
	"context"
	"sync"
	"time"

	"github.com/jwalitptl/frontdesk/internal/clock"
	"github.com/jwalitptl/frontdesk/internal/repository"
)

// SessionRepository keeps authenticated flags in a map with expiry.
type SessionRepository struct {
	mu      sync.Mutex
	clock   clock.Clock
	expires map[string]time.Time
}

var _ repository.SessionRepository = (*SessionRepository)(nil)

func NewSessionRepository(clk clock.Clock) *SessionRepository {
	return &SessionRepository{clock: clk, expires: make(map[string]time.Time)}
}

func (r *SessionRepository) SetAuthenticated(_ context.Context, sessionID string, ttl time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.expires[sessionID] = r.clock.Now().Add(ttl)
	return nil
}

func (r *SessionRepository) IsAuthenticated(_ context.Context, sessionID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	exp, ok := r.expires[sessionID]
	if !ok {
		return false, nil
	}
	if !r.clock.Now().Before(exp) {
		delete(r.expires, sessionID)
		return false, nil
	}
	return true, nil
}

func (r *SessionRepository) Clear(_ context.Context, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.expires, sessionID)
	return nil
}

func (r *SessionRepository) Ping(context.Context) error { return nil }
