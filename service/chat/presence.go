package chat

import (
	"sync"
	"time"

	"QChat/module/chat/model"
	"QChat/tools/errs"
)

// PresenceTracker derives online/offline from session registry occupancy
// and layers advisory statuses ("away", "busy") on top. Transitions are
// broadcast to the rooms the user belongs to, not globally.
type PresenceTracker struct {
	mu       sync.RWMutex
	advisory map[int64]model.PresenceStatus
	lastSeen map[int64]time.Time

	reg *SessionRegistry
	idx *MembershipIndex
	bc  RoomBroadcaster

	// mirror receives every transition; wired to the Redis presence keys
	// and the NATS firehose. Nil-safe.
	mirror func(model.PresenceState)

	clock func() time.Time
}

func NewPresenceTracker(reg *SessionRegistry, idx *MembershipIndex, bc RoomBroadcaster) *PresenceTracker {
	return &PresenceTracker{
		advisory: make(map[int64]model.PresenceStatus),
		lastSeen: make(map[int64]time.Time),
		reg:      reg,
		idx:      idx,
		bc:       bc,
		clock:    time.Now,
	}
}

func (p *PresenceTracker) SetMirror(fn func(model.PresenceState)) { p.mirror = fn }

// OnUserOnline fires when a user's session count rises from zero.
func (p *PresenceTracker) OnUserOnline(userID int64) {
	now := p.clock()
	p.mu.Lock()
	p.lastSeen[userID] = now
	p.mu.Unlock()

	p.announce(model.PresenceState{UserID: userID, Status: model.PresenceOnline, LastSeenAt: now})
}

// OnUserOffline fires when a user's session count drops to zero, however
// abrupt the disconnect was.
func (p *PresenceTracker) OnUserOffline(userID int64) {
	now := p.clock()
	p.mu.Lock()
	delete(p.advisory, userID)
	p.lastSeen[userID] = now
	p.mu.Unlock()

	p.announce(model.PresenceState{UserID: userID, Status: model.PresenceOffline, LastSeenAt: now})
}

// SetAdvisory applies a client-chosen status on top of the computed
// state. It never flips the binary online flag: an "away" user with live
// sessions still receives fan-out. A client asking for "offline" gets
// "away", only the registry decides offline.
func (p *PresenceTracker) SetAdvisory(userID int64, status model.PresenceStatus) error {
	if status == model.PresenceOffline {
		status = model.PresenceAway
	}
	if !status.AdvisoryValid() {
		return errs.ErrInvalidArgument.WrapMsg("bad presence status", "status", string(status))
	}
	if !p.reg.IsOnline(userID) {
		return errs.ErrInvalidArgument.WithDetail("user has no live sessions")
	}

	now := p.clock()
	p.mu.Lock()
	if status == model.PresenceOnline {
		delete(p.advisory, userID)
	} else {
		p.advisory[userID] = status
	}
	p.lastSeen[userID] = now
	p.mu.Unlock()

	p.announce(model.PresenceState{UserID: userID, Status: status, LastSeenAt: now})
	return nil
}

// StateOf computes the current presence of one user.
func (p *PresenceTracker) StateOf(userID int64) model.PresenceState {
	p.mu.RLock()
	adv, hasAdv := p.advisory[userID]
	seen := p.lastSeen[userID]
	p.mu.RUnlock()

	st := model.PresenceState{UserID: userID, Status: model.PresenceOffline, LastSeenAt: seen}
	if p.reg.IsOnline(userID) {
		st.Status = model.PresenceOnline
		if hasAdv {
			st.Status = adv
		}
	}
	return st
}

// Snapshot returns the presence of every cached member of a room.
func (p *PresenceTracker) Snapshot(roomID int64) map[int64]model.PresenceState {
	members := p.idx.MembersOf(roomID)
	out := make(map[int64]model.PresenceState, len(members))
	for _, uid := range members {
		out[uid] = p.StateOf(uid)
	}
	return out
}

// announce broadcasts a transition to every room the user is a cached
// member of. Presence frames are droppable under backpressure.
func (p *PresenceTracker) announce(st model.PresenceState) {
	data := EncodeEvent(EvtPresenceUpdated, st)
	for _, roomID := range p.idx.RoomsOf(st.UserID) {
		p.bc.BroadcastRoom(roomID, data, true, st.UserID)
	}
	if p.mirror != nil {
		p.mirror(st)
	}
}
