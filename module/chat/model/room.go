package model

import "time"

type RoomKind string

const (
	RoomDirect RoomKind = "direct"
	RoomGroup  RoomKind = "group"
)

// Room is the relational view of a conversation scope. Authoritative
// membership lives in Postgres; the messaging core only caches it.
type Room struct {
	RoomID int64    `json:"roomId"`
	Kind   RoomKind `json:"kind"`
	Name   string   `json:"name,omitempty"`
}

// Session is one authenticated live connection. A user may hold several
// at once (multi-tab, multi-device).
type Session struct {
	SessionID   string    `json:"sessionId"`
	UserID      int64     `json:"userId"`
	ConnectedAt time.Time `json:"connectedAt"`
}
