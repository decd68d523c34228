package chat

import (
	"context"
	"net/http"
	"strings"
	"time"

	"QChat/logger"
	"QChat/module/chat/model"
	"QChat/tools/decode"
	"QChat/tools/errs"
	"QChat/tools/ids"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

const collaboratorTimeout = 5 * time.Second

// HandleWS terminates the real-time transport. The bearer credential
// arrives out-of-band at handshake time (query param or Authorization
// header), never as a first message; a bad credential rejects the
// connection before upgrade and no session is created.
func (s *Server) HandleWS(c *gin.Context) {
	token := bearerToken(c)
	userID, err := s.verifier.Verify(token)
	if err != nil {
		logger.Infof("[gateway] handshake rejected: %v", err)
		c.JSON(http.StatusUnauthorized, errs.ErrUnauthorized)
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Infof("[gateway] upgrade failed user=%d err=%v", userID, err)
		return
	}

	conn := newConn(ids.GenerateString(), userID, ws, s.cfg.SessionQueueSize)
	ws.SetReadLimit(int64(s.cfg.MaxMessageBytes) + 1024)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	go conn.writePump()

	// the ack is queued before anything can fan out, so the client always
	// sees connected first
	_ = conn.enqueue(EncodeEvent(EvtConnected, ConnectedPayload{
		SessionID: conn.SessionID,
		UserID:    userID,
	}), false)

	// prejoin: mark every room the user belongs to, so fan-out reaches
	// this session without an explicit join_room per room
	s.prejoin(conn)

	// registration last: the 0->1 edge announces presence to the rooms
	// prejoin just populated
	s.reg.Register(conn)
	logger.Infof("[gateway] connected user=%d session=%s", userID, conn.SessionID)

	s.readLoop(conn)

	// transport-level disconnect, graceful or not, always reaches the
	// registry so presence converges
	s.reg.Unregister(conn.SessionID)
	s.typing.ClearUser(userID)
	conn.close()
	logger.Infof("[gateway] disconnected user=%d session=%s", userID, conn.SessionID)
}

func (s *Server) prejoin(conn *Conn) {
	ctx, cancel := context.WithTimeout(context.Background(), collaboratorTimeout)
	defer cancel()

	rooms, err := s.membership.RoomsForUser(ctx, conn.UserID)
	if err != nil {
		// non-fatal: the client can still join_room explicitly
		logger.Warnf("[gateway] prejoin failed user=%d err=%v", conn.UserID, err)
		return
	}
	for _, room := range rooms {
		if err := s.idx.EnsureRoom(ctx, room.RoomID); err != nil {
			logger.Warnf("[gateway] prejoin room=%d user=%d err=%v", room.RoomID, conn.UserID, err)
			continue
		}
		conn.JoinRoom(room.RoomID)
	}
}

func (s *Server) readLoop(conn *Conn) {
	for {
		mt, data, err := conn.ws.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived,
			) {
				logger.Debugf("[gateway] peer closed session=%s", conn.SessionID)
			} else {
				logger.Debugf("[gateway] read err session=%s err=%v", conn.SessionID, err)
			}
			return
		}
		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}

		frame, perr := ParseFrame(data)
		if perr != nil {
			s.sendError(conn, perr)
			continue
		}
		s.dispatch(conn, frame)
	}
}

// dispatch maps one inbound frame to its handler. The caller identity is
// always the session's user id, never a payload field. Failures are soft:
// a structured error event goes back and the connection stays alive.
func (s *Server) dispatch(conn *Conn, f *Frame) {
	switch f.Event {
	case EvtJoinRoom:
		p, err := decode.DecodeMap[RoomPayload](f.Data)
		if err != nil || p.RoomID == 0 {
			s.sendError(conn, errs.ErrInvalidArgument.WithDetail("join_room needs roomId"))
			return
		}
		s.handleJoin(conn, p.RoomID)

	case EvtLeaveRoom:
		p, err := decode.DecodeMap[RoomPayload](f.Data)
		if err != nil || p.RoomID == 0 {
			s.sendError(conn, errs.ErrInvalidArgument.WithDetail("leave_room needs roomId"))
			return
		}
		s.handleLeave(conn, p.RoomID)

	case EvtSendMessage:
		p, err := decode.DecodeMap[SendMessagePayload](f.Data)
		if err != nil || p.RoomID == 0 {
			s.sendError(conn, errs.ErrInvalidArgument.WithDetail("send_message needs roomId and content"))
			return
		}
		// send_message is never silent: either the fan-out echoes the
		// stored message back or an error event follows. The timeout
		// bounds the authorize read; the persist detaches its own deadline.
		ctx, cancel := context.WithTimeout(context.Background(), collaboratorTimeout)
		_, err = s.router.Send(ctx, conn.UserID, p.RoomID, p.Content, p.MessageType)
		cancel()
		if err != nil {
			s.sendError(conn, err)
		}

	case EvtStartTyping:
		p, err := decode.DecodeMap[RoomPayload](f.Data)
		if err != nil || p.RoomID == 0 {
			return // typing failures are never surfaced
		}
		s.handleStartTyping(conn, p.RoomID)

	case EvtStopTyping:
		p, err := decode.DecodeMap[RoomPayload](f.Data)
		if err != nil || p.RoomID == 0 {
			return
		}
		s.typing.StopTyping(conn.UserID, p.RoomID)

	case EvtUpdatePresence:
		p, err := decode.DecodeMap[PresencePayload](f.Data)
		if err != nil {
			s.sendError(conn, errs.ErrInvalidArgument.WithDetail("update_presence needs status"))
			return
		}
		s.handlePresence(conn, p.Status)

	default:
		s.sendError(conn, errs.ErrInvalidArgument.WrapMsg("unknown event", "event", f.Event))
	}
}

func (s *Server) handleJoin(conn *Conn, roomID int64) {
	ctx, cancel := context.WithTimeout(context.Background(), collaboratorTimeout)
	defer cancel()

	if err := s.idx.Join(ctx, conn.UserID, roomID); err != nil {
		s.sendError(conn, err)
		return
	}
	conn.JoinRoom(roomID)

	// includes the joining session, which doubles as the membership
	// confirmation
	s.BroadcastRoom(roomID, EncodeEvent(EvtUserJoinedRoom,
		RoomMemberPayload{UserID: conn.UserID, RoomID: roomID}), true)
}

func (s *Server) handleLeave(conn *Conn, roomID int64) {
	// only a session that is actually in the room may announce a leave
	if !conn.InRoom(roomID) {
		return
	}
	conn.LeaveRoom(roomID)
	s.typing.StopTyping(conn.UserID, roomID)
	s.BroadcastRoom(roomID, EncodeEvent(EvtUserLeftRoom,
		RoomMemberPayload{UserID: conn.UserID, RoomID: roomID}), true, conn.UserID)
}

func (s *Server) handleStartTyping(conn *Conn, roomID int64) {
	ctx, cancel := context.WithTimeout(context.Background(), collaboratorTimeout)
	defer cancel()

	ok, err := s.idx.Authorize(ctx, conn.UserID, roomID)
	if err != nil || !ok {
		return // silent, like every typing failure
	}
	s.typing.StartTyping(conn.UserID, roomID)
}

func (s *Server) handlePresence(conn *Conn, status string) {
	if err := s.presence.SetAdvisory(conn.UserID, model.PresenceStatus(status)); err != nil {
		s.sendError(conn, err)
	}
}

// sendError delivers a structured error event. Error frames are
// critical: failing to queue one means the session is hopelessly
// backlogged and gets closed.
func (s *Server) sendError(conn *Conn, err error) {
	if qerr := conn.enqueue(ErrorEvent(err), false); qerr != nil {
		logger.Warnf("[gateway] cannot deliver error session=%s: %v", conn.SessionID, qerr)
		conn.close()
	}
}

func bearerToken(c *gin.Context) string {
	if t := strings.TrimSpace(c.Query("token")); t != "" {
		return t
	}
	authz := strings.TrimSpace(c.GetHeader("Authorization"))
	if strings.HasPrefix(strings.ToLower(authz), "bearer ") {
		return strings.TrimSpace(authz[len("bearer "):])
	}
	return ""
}
