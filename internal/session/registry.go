package session

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Stats holds per-session counters, maintained by the pipeline as chunks
// flow through. Reads require holding the session lock.
type Stats struct {
	// ChunkCount is the number of chunks processed, including silent ones.
	ChunkCount uint64

	// EvictedTotal is the number of fragments evicted from the window over
	// the session's lifetime.
	EvictedTotal uint64

	// LastRiskLevel is the risk level of the most recent verdict. Empty
	// until the first analysis completes.
	LastRiskLevel string
}

// Session is the per-call state tracked by the [Registry]: the rolling
// context window plus activity bookkeeping for idle expiry.
//
// The embedded mutex serialises whole pipeline passes for one session.
// Callers must hold it across any append-flatten-analyze sequence so that
// concurrent chunks for the same session cannot interleave their window
// mutations. Use Lock/Unlock directly.
type Session struct {
	sync.Mutex

	// ID is the caller-supplied session identifier.
	ID string

	// Window is the rolling transcript context for this session.
	Window *Window

	// Stats are per-session counters. Guarded by the session lock.
	Stats Stats

	// CreatedAt is when the session entered the registry.
	CreatedAt time.Time

	// lastSeen is updated on every Touch. Guarded by the session lock.
	lastSeen time.Time

	// expired is set by the sweep when it removes the session from the
	// registry. Guarded by the session lock. A caller that looked the
	// session up before the sweep ran must check this after locking and
	// re-fetch from the registry if it is set.
	expired bool
}

// Touch records activity on the session. Must be called with the session
// lock held.
func (s *Session) Touch(now time.Time) {
	s.lastSeen = now
}

// LastSeen returns the time of the most recent activity. Must be called with
// the session lock held.
func (s *Session) LastSeen() time.Time {
	return s.lastSeen
}

// Expired reports whether the sweep has removed this session from the
// registry. Must be called with the session lock held.
func (s *Session) Expired() bool {
	return s.expired
}

// Registry tracks all live sessions and expires the ones that have been idle
// longer than the configured TTL. Sessions are created on first use and
// removed either explicitly (Remove) or by the background sweep.
//
// All methods are safe for concurrent use. Distinct sessions never contend
// with each other; the registry lock is held only for map access, never
// across provider calls.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	maxCount   int
	maxAge     time.Duration
	sessionTTL time.Duration

	onExpire func(removed int)

	// now is replaceable in tests.
	now func() time.Time
}

// RegistryConfig configures a [Registry].
type RegistryConfig struct {
	// WindowMaxCount is the fragment cap for each session's context window.
	WindowMaxCount int

	// WindowMaxAge is the fragment age cutoff for each session's window.
	WindowMaxAge time.Duration

	// SessionTTL is how long a session may stay idle before the sweep
	// removes it. Defaults to 5 minutes if zero or negative.
	SessionTTL time.Duration

	// OnExpire, if set, is invoked after each ExpireIdle pass that removed
	// at least one session, with the number removed.
	OnExpire func(removed int)
}

// NewRegistry creates an empty session registry.
func NewRegistry(cfg RegistryConfig) *Registry {
	ttl := cfg.SessionTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Registry{
		sessions:   make(map[string]*Session),
		maxCount:   cfg.WindowMaxCount,
		maxAge:     cfg.WindowMaxAge,
		sessionTTL: ttl,
		onExpire:   cfg.OnExpire,
		now:        time.Now,
	}
}

// GetOrCreate returns the session with the given ID, creating it if absent.
// The boolean reports whether the session already existed.
func (r *Registry) GetOrCreate(id string) (*Session, bool) {
	r.mu.RLock()
	s, ok := r.sessions[id]
	r.mu.RUnlock()
	if ok {
		return s, true
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Re-check under the write lock; another goroutine may have won.
	if s, ok := r.sessions[id]; ok {
		return s, true
	}

	now := r.now()
	s = &Session{
		ID:        id,
		Window:    NewWindow(r.maxCount, r.maxAge),
		CreatedAt: now,
		lastSeen:  now,
	}
	r.sessions[id] = s
	return s, false
}

// Get returns the session with the given ID, or nil if it does not exist.
func (r *Registry) Get(id string) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[id]
}

// Remove deletes the session with the given ID. It reports whether a session
// was removed.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; !ok {
		return false
	}
	delete(r.sessions, id)
	return true
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// ExpireIdle removes every session whose last activity is older than the
// configured TTL and returns the number removed. The idle check and the map
// delete happen under one hold of the candidate's lock, so a chunk that is
// being processed counts as activity and a chunk waiting on the lock can
// never append to a session the map no longer knows. Lock order is session
// then registry; no other path acquires them in the reverse order.
func (r *Registry) ExpireIdle() int {
	cutoff := r.now().Add(-r.sessionTTL)

	r.mu.RLock()
	candidates := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		candidates = append(candidates, s)
	}
	r.mu.RUnlock()

	expired := 0
	for _, s := range candidates {
		s.Lock()
		if !s.LastSeen().Before(cutoff) {
			s.Unlock()
			continue
		}

		r.mu.Lock()
		// Re-check identity: the session may have been removed and recreated.
		if current, ok := r.sessions[s.ID]; ok && current == s {
			delete(r.sessions, s.ID)
			s.expired = true
			expired++
		}
		r.mu.Unlock()
		s.Unlock()
	}
	if expired > 0 && r.onExpire != nil {
		r.onExpire(expired)
	}
	return expired
}

// Sweep runs ExpireIdle on the given interval until ctx is cancelled.
// Intended to run in its own goroutine.
func (r *Registry) Sweep(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.ExpireIdle(); n > 0 {
				slog.Debug("expired idle sessions", "count", n, "remaining", r.Len())
			}
		}
	}
}
