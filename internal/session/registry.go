// Package session keeps per-user authentication state and activity history
// for the lifetime of the process.
package session

import (
	"sync"
	"time"
)

// DefaultActivityLimit is the number of activity records kept per user when
// no limit is configured.
const DefaultActivityLimit = 100

// Activity is one entry of a user's activity log.
type Activity struct {
	Time        time.Time
	Description string
}

// Session is a snapshot of a user's state.
type Session struct {
	UserID        int64
	DisplayName   string
	Authenticated bool
	LastActivity  time.Time
}

type record struct {
	Session
	log   []Activity
	start int // index of the oldest entry once log is full
}

func (r *record) append(a Activity, limit int) {
	if limit <= 0 || len(r.log) < limit {
		r.log = append(r.log, a)
		return
	}
	r.log[r.start] = a
	r.start = (r.start + 1) % limit
}

func (r *record) activities() []Activity {
	out := make([]Activity, 0, len(r.log))
	out = append(out, r.log[r.start:]...)
	return append(out, r.log[:r.start]...)
}

// Registry maps user IDs to sessions. It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	sessions map[int64]*record
	limit    int
	now      func() time.Time
}

// Option configures a Registry.
type Option func(*Registry)

// WithActivityLimit bounds each activity log to n entries, dropping the
// oldest first. n <= 0 keeps everything.
func WithActivityLimit(n int) Option {
	return func(r *Registry) { r.limit = n }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		sessions: make(map[int64]*record),
		limit:    DefaultActivityLimit,
		now:      time.Now,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// GetOrCreate returns the session for userID, creating an unauthenticated
// one on first contact. A non-empty displayName replaces the stored one.
func (r *Registry) GetOrCreate(userID int64, displayName string) Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.sessions[userID]
	if !ok {
		rec = &record{Session: Session{UserID: userID, LastActivity: r.now()}}
		r.sessions[userID] = rec
	}
	if displayName != "" {
		rec.DisplayName = displayName
	}
	return rec.Session
}

// Get returns the session for userID if it exists.
func (r *Registry) Get(userID int64) (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.sessions[userID]
	if !ok {
		return Session{}, false
	}
	return rec.Session, true
}

func (r *Registry) IsAuthenticated(userID int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.sessions[userID]
	return ok && rec.Authenticated
}

// Authenticate marks the session authenticated and records it. Calling it
// again is a no-op. It does nothing for unknown users.
func (r *Registry) Authenticate(userID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.sessions[userID]
	if !ok || rec.Authenticated {
		return
	}
	rec.Authenticated = true
	r.recordLocked(rec, "Authentication successful")
}

// RecordActivity appends description to the user's log and updates
// LastActivity. Unknown users are ignored.
func (r *Registry) RecordActivity(userID int64, description string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if rec, ok := r.sessions[userID]; ok {
		r.recordLocked(rec, description)
	}
}

func (r *Registry) recordLocked(rec *record, description string) {
	now := r.now()
	rec.LastActivity = now
	rec.append(Activity{Time: now, Description: description}, r.limit)
}

// Touch updates LastActivity without logging anything.
func (r *Registry) Touch(userID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if rec, ok := r.sessions[userID]; ok {
		rec.LastActivity = r.now()
	}
}

// Activities returns the user's log, oldest first.
func (r *Registry) Activities(userID int64) []Activity {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.sessions[userID]
	if !ok {
		return nil
	}
	return rec.activities()
}

// Count returns the number of known sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.sessions)
}
