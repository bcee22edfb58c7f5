package session

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/rs/xid"
)

// CookieName is the cookie carrying the session id.
const CookieName = "sid"

// DefaultIdleTTL applies when NewManager is given a zero TTL.
const DefaultIdleTTL = 30 * time.Minute

// Manager owns all live session Contexts.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Context
	idleTTL  time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

func NewManager(idleTTL time.Duration, logger *slog.Logger) *Manager {
	if idleTTL <= 0 {
		idleTTL = DefaultIdleTTL
	}
	return &Manager{
		sessions: make(map[string]*Context),
		idleTTL:  idleTTL,
		logger:   logger,
		now:      time.Now,
	}
}

// Acquire returns the Context for id, creating a fresh anonymous one (under
// a new id) when id is unknown or empty. The returned id may differ from
// the one passed in.
func (m *Manager) Acquire(id string) (string, *Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if sc, ok := m.sessions[id]; ok && id != "" {
		sc.lastSeen = m.now()
		return id, sc
	}

	id = xid.New().String()
	sc := New()
	sc.lastSeen = m.now()
	m.sessions[id] = sc
	return id, sc
}

// Delete ends a session. Unknown ids are ignored.
func (m *Manager) Delete(id string) {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
}

// Len is the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Sweep removes sessions idle for longer than the TTL and returns how many
// went.
func (m *Manager) Sweep() int {
	cutoff := m.now().Add(-m.idleTTL)

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, sc := range m.sessions {
		if sc.lastSeen.Before(cutoff) {
			delete(m.sessions, id)
			removed++
		}
	}
	return removed
}

// Run sweeps periodically until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.idleTTL / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.Sweep(); n > 0 {
				m.logger.Debug("expired idle sessions", slog.Int("count", n))
			}
		}
	}
}

// Middleware attaches the caller's Context to the request, issuing the
// cookie on first contact. Requests of one session are serialized, the
// request counter is bumped, and an "id" query parameter is remembered as
// the deep-link target.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var presented string
		if c, err := r.Cookie(CookieName); err == nil {
			presented = c.Value
		}

		id, sc := m.Acquire(presented)
		if id != presented {
			http.SetCookie(w, &http.Cookie{
				Name:     CookieName,
				Value:    id,
				Path:     "/",
				HttpOnly: true,
				SameSite: http.SameSiteLaxMode,
			})
		}

		sc.mu.Lock()
		defer sc.mu.Unlock()

		sc.RequestCounter++
		if urlID := r.URL.Query().Get("id"); urlID != "" {
			sc.URLID = urlID
		}

		next.ServeHTTP(w, r.WithContext(WithContext(r.Context(), sc)))
	})
}
