package chat

import (
	"encoding/json"

	"QChat/logger"
	"QChat/tools/errs"
)

// Wire protocol: JSON frames {"event": "...", "data": {...}} in both
// directions over the websocket.

// Inbound events.
const (
	EvtJoinRoom       = "join_room"
	EvtLeaveRoom      = "leave_room"
	EvtSendMessage    = "send_message"
	EvtStartTyping    = "start_typing"
	EvtStopTyping     = "stop_typing"
	EvtUpdatePresence = "update_presence"
)

// Outbound events.
const (
	EvtConnected       = "connected"
	EvtMessageReceived = "message_received"
	EvtUserJoinedRoom  = "user_joined_room"
	EvtUserLeftRoom    = "user_left_room"
	EvtPresenceUpdated = "user_presence_updated"
	EvtTypingStarted   = "typing_started"
	EvtTypingStopped   = "typing_stopped"
	EvtError           = "error"
)

type Frame struct {
	Event string         `json:"event"`
	Data  map[string]any `json:"data,omitempty"`
}

func ParseFrame(b []byte) (*Frame, error) {
	var f Frame
	if err := json.Unmarshal(b, &f); err != nil {
		return nil, errs.ErrInvalidArgument.WrapMsg("malformed frame", "err", err)
	}
	if f.Event == "" {
		return nil, errs.ErrInvalidArgument.WithDetail("missing event")
	}
	return &f, nil
}

// EncodeEvent builds an outbound frame. Data must be JSON-marshalable;
// a marshal failure is a programming error and yields an internal error
// frame instead of silence.
func EncodeEvent(event string, data any) []byte {
	b, err := json.Marshal(struct {
		Event string `json:"event"`
		Data  any    `json:"data,omitempty"`
	}{Event: event, Data: data})
	if err != nil {
		logger.Errorf("[events] marshal %s: %v", event, err)
		return []byte(`{"event":"error","data":{"code":1000,"message":"internal error"}}`)
	}
	return b
}

// Inbound payloads.

type RoomPayload struct {
	RoomID int64 `json:"roomId"`
}

type SendMessagePayload struct {
	RoomID      int64  `json:"roomId"`
	Content     string `json:"content"`
	MessageType string `json:"messageType"`
}

type PresencePayload struct {
	Status string `json:"status"`
}

// Outbound payloads.

type ConnectedPayload struct {
	SessionID string `json:"sessionId"`
	UserID    int64  `json:"userId"`
}

type RoomMemberPayload struct {
	UserID int64 `json:"userId"`
	RoomID int64 `json:"roomId"`
}

type ErrorPayload struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// ErrorEvent maps a taxonomy error onto a structured error frame scoped
// to one connection.
func ErrorEvent(err error) []byte {
	return EncodeEvent(EvtError, ErrorPayload{
		Code:    errs.CodeOf(err),
		Message: errs.MsgOf(err),
	})
}
