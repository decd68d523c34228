package chat

import (
	"context"
	"sync"

	"QChat/module/chat/model"
	"QChat/tools/errs"
)

// MembershipStore is the persistence collaborator that owns room
// membership. The core never self-authorizes: it only caches what the
// store reports.
type MembershipStore interface {
	ListRoomMembers(ctx context.Context, roomID int64) ([]int64, error)
	IsMember(ctx context.Context, userID, roomID int64) (bool, error)
	RoomsForUser(ctx context.Context, userID int64) ([]model.Room, error)
}

// MembershipIndex is a read-through cache over MembershipStore. Entries
// are replaced atomically on Refresh and dropped on Invalidate; there is
// no TTL, membership changes outside the messaging core must invalidate
// explicitly.
type MembershipIndex struct {
	mu    sync.RWMutex
	store MembershipStore

	rooms  map[int64]map[int64]struct{} // roomID -> member user ids
	byUser map[int64]map[int64]struct{} // userID -> cached rooms containing them
}

func NewMembershipIndex(store MembershipStore) *MembershipIndex {
	return &MembershipIndex{
		store:  store,
		rooms:  make(map[int64]map[int64]struct{}),
		byUser: make(map[int64]map[int64]struct{}),
	}
}

// Authorize reports whether userID may participate in roomID, pulling
// membership from the store on a cache miss.
func (x *MembershipIndex) Authorize(ctx context.Context, userID, roomID int64) (bool, error) {
	x.mu.RLock()
	set, cached := x.rooms[roomID]
	if cached {
		_, ok := set[userID]
		x.mu.RUnlock()
		return ok, nil
	}
	x.mu.RUnlock()

	if err := x.Refresh(ctx, roomID); err != nil {
		return false, err
	}
	x.mu.RLock()
	defer x.mu.RUnlock()
	_, ok := x.rooms[roomID][userID]
	return ok, nil
}

// Join authorizes a join attempt. Fails with Forbidden when the store
// does not list the user; always refreshes first so removals applied
// since the last cache fill are honored.
func (x *MembershipIndex) Join(ctx context.Context, userID, roomID int64) error {
	if err := x.Refresh(ctx, roomID); err != nil {
		return err
	}
	x.mu.RLock()
	_, ok := x.rooms[roomID][userID]
	x.mu.RUnlock()
	if !ok {
		return errs.ErrForbidden.WrapMsg("not a room member", "room", roomID, "user", userID)
	}
	return nil
}

// MembersOf returns the cached member set. Fan-out reads this, never the
// store: a room that was never authorized against has no members here.
func (x *MembershipIndex) MembersOf(roomID int64) []int64 {
	x.mu.RLock()
	defer x.mu.RUnlock()
	set := x.rooms[roomID]
	out := make([]int64, 0, len(set))
	for uid := range set {
		out = append(out, uid)
	}
	return out
}

// RoomsOf returns the cached rooms that contain userID. Presence
// broadcasts are scoped to these rooms.
func (x *MembershipIndex) RoomsOf(userID int64) []int64 {
	x.mu.RLock()
	defer x.mu.RUnlock()
	set := x.byUser[userID]
	out := make([]int64, 0, len(set))
	for rid := range set {
		out = append(out, rid)
	}
	return out
}

// EnsureRoom loads a room into the cache if it is not there yet.
func (x *MembershipIndex) EnsureRoom(ctx context.Context, roomID int64) error {
	x.mu.RLock()
	_, cached := x.rooms[roomID]
	x.mu.RUnlock()
	if cached {
		return nil
	}
	return x.Refresh(ctx, roomID)
}

// Refresh re-pulls membership from the store and replaces the cached set
// atomically; concurrent readers see either the old or the new set,
// never a partial one.
func (x *MembershipIndex) Refresh(ctx context.Context, roomID int64) error {
	members, err := x.store.ListRoomMembers(ctx, roomID)
	if err != nil {
		return err
	}
	set := make(map[int64]struct{}, len(members))
	for _, uid := range members {
		set[uid] = struct{}{}
	}

	x.mu.Lock()
	x.replaceLocked(roomID, set)
	x.mu.Unlock()
	return nil
}

// Invalidate drops a room from the cache. Called by the collaborator
// side when an admin action changes membership.
func (x *MembershipIndex) Invalidate(roomID int64) {
	x.mu.Lock()
	x.replaceLocked(roomID, nil)
	x.mu.Unlock()
}

func (x *MembershipIndex) replaceLocked(roomID int64, set map[int64]struct{}) {
	for uid := range x.rooms[roomID] {
		if mm := x.byUser[uid]; mm != nil {
			delete(mm, roomID)
			if len(mm) == 0 {
				delete(x.byUser, uid)
			}
		}
	}
	if set == nil {
		delete(x.rooms, roomID)
		return
	}
	x.rooms[roomID] = set
	for uid := range set {
		if x.byUser[uid] == nil {
			x.byUser[uid] = make(map[int64]struct{})
		}
		x.byUser[uid][roomID] = struct{}{}
	}
}
