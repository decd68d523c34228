package model

import "time"

const (
	MsgCollection = "room_msg" // message collection
	SeqCollection = "room_seq" // per-room sequence segment documents
)

type MessageType string

const (
	MessageText   MessageType = "text"
	MessageImage  MessageType = "image"
	MessageFile   MessageType = "file"
	MessageSystem MessageType = "system"
)

func (t MessageType) Valid() bool {
	switch t {
	case MessageText, MessageImage, MessageFile, MessageSystem:
		return true
	}
	return false
}

// Message is one persisted chat message. Messages are append-only: edits
// and deletes are not modeled, so a delivered message never changes under
// an already-connected client.
type Message struct {
	MessageID   string      `bson:"message_id" json:"messageId"`
	RoomID      int64       `bson:"room_id" json:"roomId"`
	SenderID    int64       `bson:"sender_id" json:"senderId"`
	Content     string      `bson:"content" json:"content"`
	MessageType MessageType `bson:"message_type" json:"messageType"`

	// Seq is the per-room order authority, assigned atomically at
	// persistence time. CreatedAt is advisory only.
	Seq       int64     `bson:"seq" json:"seq"`
	CreatedAt time.Time `bson:"created_at" json:"createdAt"`
}
