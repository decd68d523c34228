package chat

import (
	"sync"
	"time"

	"QChat/tools/safe"
)

// TypingTracker holds short-lived per-room per-user typing flags.
// Flags expire by a background sweep plus lazy expiry on read, so an
// expired flag is never reported as active even between sweeps. Nothing
// here is persisted; a restart clears all typing state.
type TypingTracker struct {
	mu    sync.Mutex
	flags map[int64]map[int64]time.Time // roomID -> userID -> expiresAt

	ttl   time.Duration
	bc    RoomBroadcaster
	clock func() time.Time

	stopCh   chan struct{}
	stopOnce sync.Once
}

func NewTypingTracker(ttl time.Duration, bc RoomBroadcaster) *TypingTracker {
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	t := &TypingTracker{
		flags:  make(map[int64]map[int64]time.Time),
		ttl:    ttl,
		bc:     bc,
		clock:  time.Now,
		stopCh: make(chan struct{}),
	}
	safe.Go("typing-sweeper", t.sweeper)
	return t
}

// StartTyping sets or refreshes the flag and notifies room members.
func (t *TypingTracker) StartTyping(userID, roomID int64) {
	t.mu.Lock()
	mm := t.flags[roomID]
	if mm == nil {
		mm = make(map[int64]time.Time)
		t.flags[roomID] = mm
	}
	_, refresh := mm[userID]
	mm[userID] = t.clock().Add(t.ttl)
	t.mu.Unlock()

	// a refresh extends the expiry silently, members already saw the start
	if !refresh {
		t.bc.BroadcastRoom(roomID, EncodeEvent(EvtTypingStarted, RoomMemberPayload{UserID: userID, RoomID: roomID}), true, userID)
	}
}

// StopTyping removes the flag immediately.
func (t *TypingTracker) StopTyping(userID, roomID int64) {
	t.mu.Lock()
	removed := t.removeLocked(userID, roomID)
	t.mu.Unlock()

	if removed {
		t.bc.BroadcastRoom(roomID, EncodeEvent(EvtTypingStopped, RoomMemberPayload{UserID: userID, RoomID: roomID}), true, userID)
	}
}

// ClearUser drops every flag of a user, used on disconnect.
func (t *TypingTracker) ClearUser(userID int64) {
	t.mu.Lock()
	var cleared []int64
	for roomID, mm := range t.flags {
		if _, ok := mm[userID]; ok {
			t.removeLocked(userID, roomID)
			cleared = append(cleared, roomID)
		}
	}
	t.mu.Unlock()

	for _, roomID := range cleared {
		t.bc.BroadcastRoom(roomID, EncodeEvent(EvtTypingStopped, RoomMemberPayload{UserID: userID, RoomID: roomID}), true, userID)
	}
}

// Active returns the users currently typing in a room, lazily expiring
// stale flags.
func (t *TypingTracker) Active(roomID int64) []int64 {
	now := t.clock()
	t.mu.Lock()
	defer t.mu.Unlock()

	mm := t.flags[roomID]
	out := make([]int64, 0, len(mm))
	for uid, exp := range mm {
		if now.After(exp) {
			t.removeLocked(uid, roomID)
			continue
		}
		out = append(out, uid)
	}
	return out
}

func (t *TypingTracker) Stop() {
	t.stopOnce.Do(func() { close(t.stopCh) })
}

func (t *TypingTracker) removeLocked(userID, roomID int64) bool {
	mm := t.flags[roomID]
	if mm == nil {
		return false
	}
	if _, ok := mm[userID]; !ok {
		return false
	}
	delete(mm, userID)
	if len(mm) == 0 {
		delete(t.flags, roomID)
	}
	return true
}

func (t *TypingTracker) sweeper() {
	tick := time.NewTicker(time.Second)
	defer tick.Stop()
	for {
		select {
		case <-t.stopCh:
			return
		case now := <-tick.C:
			t.sweepOnce(now)
		}
	}
}

func (t *TypingTracker) sweepOnce(now time.Time) {
	type flag struct{ userID, roomID int64 }
	var expired []flag

	t.mu.Lock()
	for roomID, mm := range t.flags {
		for uid, exp := range mm {
			if now.After(exp) {
				t.removeLocked(uid, roomID)
				expired = append(expired, flag{userID: uid, roomID: roomID})
			}
		}
	}
	t.mu.Unlock()

	for _, f := range expired {
		t.bc.BroadcastRoom(f.roomID, EncodeEvent(EvtTypingStopped, RoomMemberPayload{UserID: f.userID, RoomID: f.roomID}), true, f.userID)
	}
}
