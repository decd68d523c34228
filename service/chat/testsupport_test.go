package chat

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"QChat/module/chat/model"
	"QChat/tools/errs"
	"QChat/tools/ids"
)

// fakeMembershipStore is an in-memory persistence collaborator.
type fakeMembershipStore struct {
	mu        sync.Mutex
	members   map[int64][]int64 // roomID -> members
	rooms     map[int64][]model.Room
	err       error
	listCalls int
	deadlines int // store reads that arrived with a context deadline
}

func newFakeMembershipStore() *fakeMembershipStore {
	return &fakeMembershipStore{
		members: make(map[int64][]int64),
		rooms:   make(map[int64][]model.Room),
	}
}

func (f *fakeMembershipStore) setMembers(roomID int64, users ...int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.members[roomID] = users
	for _, uid := range users {
		found := false
		for _, r := range f.rooms[uid] {
			if r.RoomID == roomID {
				found = true
			}
		}
		if !found {
			f.rooms[uid] = append(f.rooms[uid], model.Room{RoomID: roomID, Kind: model.RoomGroup})
		}
	}
}

func (f *fakeMembershipStore) ListRoomMembers(ctx context.Context, roomID int64) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	if _, ok := ctx.Deadline(); ok {
		f.deadlines++
	}
	if f.err != nil {
		return nil, f.err
	}
	return append([]int64(nil), f.members[roomID]...), nil
}

func (f *fakeMembershipStore) IsMember(_ context.Context, userID, roomID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	for _, uid := range f.members[roomID] {
		if uid == userID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeMembershipStore) RoomsForUser(_ context.Context, userID int64) ([]model.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return append([]model.Room(nil), f.rooms[userID]...), nil
}

// fakeMessageStore assigns per-room sequences the way the real store
// does: atomically at append time.
type fakeMessageStore struct {
	mu   sync.Mutex
	seqs map[int64]int64
	msgs []*model.Message
	err  error
}

func newFakeMessageStore() *fakeMessageStore {
	return &fakeMessageStore{seqs: make(map[int64]int64)}
}

func (f *fakeMessageStore) Append(_ context.Context, roomID, senderID int64, content string, msgType model.MessageType) (*model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.seqs[roomID]++
	m := &model.Message{
		MessageID:   ids.GenerateString(),
		RoomID:      roomID,
		SenderID:    senderID,
		Content:     content,
		MessageType: msgType,
		Seq:         f.seqs[roomID],
		CreatedAt:   time.Now().UTC(),
	}
	f.msgs = append(f.msgs, m)
	return m, nil
}

func (f *fakeMessageStore) ListAfter(_ context.Context, roomID, afterSeq int64, limit int) ([]*model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if limit <= 0 {
		limit = 50
	}
	var out []*model.Message
	for _, m := range f.msgs {
		if m.RoomID == roomID && m.Seq > afterSeq {
			out = append(out, m)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (f *fakeMessageStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.msgs)
}

// fakeBroadcaster records every fan-out request.
type broadcastRec struct {
	roomID    int64
	event     string
	data      []byte
	droppable bool
	except    []int64
}

type fakeBroadcaster struct {
	mu   sync.Mutex
	recs []broadcastRec
}

func (f *fakeBroadcaster) BroadcastRoom(roomID int64, data []byte, droppable bool, exceptUsers ...int64) {
	var frame Frame
	_ = json.Unmarshal(data, &frame)
	f.mu.Lock()
	f.recs = append(f.recs, broadcastRec{
		roomID:    roomID,
		event:     frame.Event,
		data:      data,
		droppable: droppable,
		except:    append([]int64(nil), exceptUsers...),
	})
	f.mu.Unlock()
}

func (f *fakeBroadcaster) records() []broadcastRec {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]broadcastRec(nil), f.recs...)
}

func (f *fakeBroadcaster) eventsOf(name string) []broadcastRec {
	var out []broadcastRec
	for _, r := range f.records() {
		if r.event == name {
			out = append(out, r)
		}
	}
	return out
}

// fakeNotifier records presence edges in emission order.
type fakeNotifier struct {
	mu       sync.Mutex
	onlines  []int64
	offlines []int64
	edges    []string // "online:<uid>" / "offline:<uid>" interleaved
}

func (f *fakeNotifier) OnUserOnline(userID int64) {
	f.mu.Lock()
	f.onlines = append(f.onlines, userID)
	f.edges = append(f.edges, "online:"+strconv.FormatInt(userID, 10))
	f.mu.Unlock()
}

func (f *fakeNotifier) OnUserOffline(userID int64) {
	f.mu.Lock()
	f.offlines = append(f.offlines, userID)
	f.edges = append(f.edges, "offline:"+strconv.FormatInt(userID, 10))
	f.mu.Unlock()
}

func (f *fakeNotifier) edgeLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.edges...)
}

// staticVerifier maps fixed tokens to user ids.
type staticVerifier map[string]int64

func (v staticVerifier) Verify(token string) (int64, error) {
	if uid, ok := v[token]; ok {
		return uid, nil
	}
	return 0, errs.ErrUnauthorized.WithDetail("unknown token")
}

// drainFrames empties a connection's outbound queue.
func drainFrames(c *Conn) []Frame {
	var out []Frame
	for {
		select {
		case f := <-c.sendq:
			var frame Frame
			_ = json.Unmarshal(f.data, &frame)
			out = append(out, frame)
		default:
			return out
		}
	}
}

func frameEvents(frames []Frame) []string {
	out := make([]string, 0, len(frames))
	for _, f := range frames {
		out = append(out, f.Event)
	}
	return out
}
