package chat

import (
	"sync"

	"QChat/logger"
)

// PresenceNotifier receives edge-triggered online/offline transitions.
type PresenceNotifier interface {
	OnUserOnline(userID int64)
	OnUserOffline(userID int64)
}

// SessionRegistry maps live connections to user identities. It is the
// sole owner of sessions: everything else reads snapshots. Presence
// transitions fire only on the 0<->1 session count boundary, so a user
// with three tabs open goes offline exactly once.
type SessionRegistry struct {
	mu        sync.RWMutex
	bySession map[string]*Conn
	byUser    map[int64]map[string]*Conn

	// per-user locks held across mutation plus notification, so a racing
	// register/unregister pair for one user cannot emit its edges out of
	// order relative to the registry state.
	lockMu    sync.Mutex
	userLocks map[int64]*sync.Mutex

	notifier PresenceNotifier
}

func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{
		bySession: make(map[string]*Conn),
		byUser:    make(map[int64]map[string]*Conn),
		userLocks: make(map[int64]*sync.Mutex),
	}
}

func (r *SessionRegistry) userLock(userID int64) *sync.Mutex {
	r.lockMu.Lock()
	defer r.lockMu.Unlock()
	l := r.userLocks[userID]
	if l == nil {
		l = &sync.Mutex{}
		r.userLocks[userID] = l
	}
	return l
}

// SetNotifier wires the presence tracker after construction; the tracker
// needs the registry too, so one side attaches late.
func (r *SessionRegistry) SetNotifier(n PresenceNotifier) {
	r.notifier = n
}

// Register is idempotent per session id. The first session of a user
// triggers an online notification after the registry mutation commits.
func (r *SessionRegistry) Register(c *Conn) {
	if c == nil || c.SessionID == "" {
		return
	}
	ul := r.userLock(c.UserID)
	ul.Lock()
	defer ul.Unlock()

	r.mu.Lock()
	if _, exists := r.bySession[c.SessionID]; exists {
		r.mu.Unlock()
		return
	}
	r.bySession[c.SessionID] = c
	mm := r.byUser[c.UserID]
	if mm == nil {
		mm = make(map[string]*Conn)
		r.byUser[c.UserID] = mm
	}
	mm[c.SessionID] = c
	first := len(mm) == 1
	r.mu.Unlock()

	logger.Debugf("[registry] register session=%s user=%d first=%v", c.SessionID, c.UserID, first)
	if first && r.notifier != nil {
		r.notifier.OnUserOnline(c.UserID)
	}
}

// Unregister removes a session. Unknown session ids are a no-op, which
// makes duplicate disconnect signals harmless. Dropping a user's last
// session triggers the offline notification.
func (r *SessionRegistry) Unregister(sessionID string) (userID int64, ok bool) {
	r.mu.RLock()
	c := r.bySession[sessionID]
	r.mu.RUnlock()
	if c == nil {
		return 0, false
	}
	ul := r.userLock(c.UserID)
	ul.Lock()
	defer ul.Unlock()

	r.mu.Lock()
	if _, exists := r.bySession[sessionID]; !exists {
		r.mu.Unlock()
		return 0, false
	}
	delete(r.bySession, sessionID)
	last := false
	if mm := r.byUser[c.UserID]; mm != nil {
		delete(mm, sessionID)
		if len(mm) == 0 {
			delete(r.byUser, c.UserID)
			last = true
		}
	}
	r.mu.Unlock()

	logger.Debugf("[registry] unregister session=%s user=%d last=%v", sessionID, c.UserID, last)
	if last && r.notifier != nil {
		r.notifier.OnUserOffline(c.UserID)
	}
	return c.UserID, true
}

// SessionsFor returns a snapshot of a user's live connections.
func (r *SessionRegistry) SessionsFor(userID int64) []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	mm := r.byUser[userID]
	out := make([]*Conn, 0, len(mm))
	for _, c := range mm {
		out = append(out, c)
	}
	return out
}

func (r *SessionRegistry) IsOnline(userID int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser[userID]) > 0
}

func (r *SessionRegistry) SessionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.bySession)
}

// Drain closes every connection during teardown. Read loops observe the
// closed sockets and unregister themselves.
func (r *SessionRegistry) Drain() {
	r.mu.RLock()
	conns := make([]*Conn, 0, len(r.bySession))
	for _, c := range r.bySession {
		conns = append(conns, c)
	}
	r.mu.RUnlock()

	for _, c := range conns {
		c.close()
	}
}
