package chat

import (
	"context"
	"sync"
	"time"

	"QChat/module/chat/model"
	"QChat/tools/errs"
)

// MessageStore is the persistence collaborator for messages. Append
// atomically assigns the per-room sequence and returns the stored
// message including its timestamp.
type MessageStore interface {
	Append(ctx context.Context, roomID, senderID int64, content string, msgType model.MessageType) (*model.Message, error)
	ListAfter(ctx context.Context, roomID, afterSeq int64, limit int) ([]*model.Message, error)
}

// MessageRouter validates, persists, then fans out. Persistence success
// is required before any fan-out; a failed persist surfaces to the
// sender only and nobody else sees the message.
type MessageRouter struct {
	idx   *MembershipIndex
	store MessageStore
	bc    RoomBroadcaster

	maxContentBytes int
	sendTimeout     time.Duration

	// limiter is the RateLimited plug point: return false to reject the
	// send before any persistence. Nil disables limiting.
	limiter func(userID int64) bool

	// publish mirrors stored messages onto the event firehose. Nil-safe.
	publish func(*model.Message)

	// per-room locks keep persist and fan-out one atomic step, so the
	// broadcast order a connection observes matches ascending seq.
	lockMu    sync.Mutex
	roomLocks map[int64]*sync.Mutex
}

func NewMessageRouter(idx *MembershipIndex, store MessageStore, bc RoomBroadcaster, maxContentBytes int, sendTimeout time.Duration) *MessageRouter {
	if maxContentBytes <= 0 {
		maxContentBytes = 4096
	}
	if sendTimeout <= 0 {
		sendTimeout = 5 * time.Second
	}
	return &MessageRouter{
		idx:             idx,
		store:           store,
		bc:              bc,
		maxContentBytes: maxContentBytes,
		sendTimeout:     sendTimeout,
		roomLocks:       make(map[int64]*sync.Mutex),
	}
}

func (r *MessageRouter) roomLock(roomID int64) *sync.Mutex {
	r.lockMu.Lock()
	defer r.lockMu.Unlock()
	l := r.roomLocks[roomID]
	if l == nil {
		l = &sync.Mutex{}
		r.roomLocks[roomID] = l
	}
	return l
}

func (r *MessageRouter) SetLimiter(fn func(userID int64) bool) { r.limiter = fn }
func (r *MessageRouter) SetPublisher(fn func(*model.Message)) { r.publish = fn }

// Send routes one message: authorize, validate, persist, fan out.
// Every session of every cached room member receives the stored message,
// including the sender's own sessions, so multi-tab clients stay in sync.
func (r *MessageRouter) Send(ctx context.Context, senderID, roomID int64, content, msgType string) (*model.Message, error) {
	ok, err := r.idx.Authorize(ctx, senderID, roomID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errs.ErrForbidden.WrapMsg("not a room member", "room", roomID, "user", senderID)
	}

	mt := model.MessageType(msgType)
	if mt == "" {
		mt = model.MessageText
	}
	if !mt.Valid() {
		return nil, errs.ErrInvalidArgument.WrapMsg("unsupported message type", "type", msgType)
	}
	if content == "" {
		return nil, errs.ErrInvalidArgument.WithDetail("empty content")
	}
	if len(content) > r.maxContentBytes {
		return nil, errs.ErrInvalidArgument.WrapMsg("content too large", "bytes", len(content), "max", r.maxContentBytes)
	}
	if r.limiter != nil && !r.limiter(senderID) {
		return nil, errs.ErrRateLimited.WrapMsg("send rejected", "user", senderID)
	}

	// persist and fan out under the room lock: a later seq can never be
	// broadcast before an earlier one
	lock := r.roomLock(roomID)
	lock.Lock()
	defer lock.Unlock()

	// the persist keeps its own deadline so an in-flight send completes
	// even if the sender disconnects mid-call and history stays correct
	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.sendTimeout)
	defer cancel()
	msg, err := r.store.Append(persistCtx, roomID, senderID, content, mt)
	if err != nil {
		return nil, err
	}

	r.bc.BroadcastRoom(roomID, EncodeEvent(EvtMessageReceived, msg), false)
	if r.publish != nil {
		r.publish(msg)
	}
	return msg, nil
}
