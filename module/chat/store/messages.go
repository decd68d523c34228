package store

import (
	"context"
	"time"

	"QChat/module/chat/model"
	"QChat/module/chat/seq"
	"QChat/tools/errs"
	"QChat/tools/ids"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MessageStore persists room messages in Mongo. Append assigns the
// per-room sequence through the allocator before insert, so the stored
// document already carries its final order key.
type MessageStore struct {
	coll  *mongo.Collection
	alloc *seq.Allocator
}

func NewMessageStore(db *mongo.Database, alloc *seq.Allocator) *MessageStore {
	return &MessageStore{
		coll:  db.Collection(model.MsgCollection),
		alloc: alloc,
	}
}

// Append stores one message and returns it with seq and timestamp set.
// Failures surface as ErrStorageUnavailable; nothing is fanned out for a
// message that did not persist. A failed insert burns its allocated seq,
// the insert is not retried because the write may have landed and a
// duplicate seq is worse than a hole.
func (s *MessageStore) Append(ctx context.Context, roomID, senderID int64, content string, msgType model.MessageType) (*model.Message, error) {
	n, err := s.alloc.Next(ctx, roomID)
	if err != nil {
		return nil, errs.ErrStorageUnavailable.WrapMsg("alloc seq", "room", roomID, "err", err)
	}

	msg := &model.Message{
		MessageID:   ids.GenerateString(),
		RoomID:      roomID,
		SenderID:    senderID,
		Content:     content,
		MessageType: msgType,
		Seq:         n,
		CreatedAt:   time.Now().UTC(),
	}
	if _, err := s.coll.InsertOne(ctx, msg); err != nil {
		return nil, errs.ErrStorageUnavailable.WrapMsg("insert message", "room", roomID, "err", err)
	}
	return msg, nil
}

// ListAfter returns up to limit messages of a room with seq > afterSeq,
// in ascending seq order. This is the reconnect/resync read path; the
// cursor is the last seq the client has seen.
func (s *MessageStore) ListAfter(ctx context.Context, roomID, afterSeq int64, limit int) ([]*model.Message, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	filter := bson.M{"room_id": roomID, "seq": bson.M{"$gt": afterSeq}}
	opts := options.Find().
		SetSort(bson.D{{Key: "seq", Value: 1}}).
		SetLimit(int64(limit))

	cur, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, errs.ErrStorageUnavailable.WrapMsg("find messages", "room", roomID, "err", err)
	}
	defer cur.Close(ctx)

	out := make([]*model.Message, 0, limit)
	if err := cur.All(ctx, &out); err != nil {
		return nil, errs.ErrStorageUnavailable.WrapMsg("decode messages", "room", roomID, "err", err)
	}
	return out, nil
}

// GetBySeq fetches a single message by its room and sequence.
func (s *MessageStore) GetBySeq(ctx context.Context, roomID, n int64) (*model.Message, error) {
	var msg model.Message
	err := s.coll.FindOne(ctx, bson.M{"room_id": roomID, "seq": n}).Decode(&msg)
	if err == mongo.ErrNoDocuments {
		return nil, errs.ErrNotFound.WrapMsg("message", "room", roomID, "seq", n)
	}
	if err != nil {
		return nil, errs.ErrStorageUnavailable.WrapMsg("find message", "room", roomID, "err", err)
	}
	return &msg, nil
}
