package chat

import (
	"time"

	"QChat/logger"
)

// TokenVerifier is the authentication collaborator: bearer credential in,
// user identity out. Verification failure is fatal to the handshake.
type TokenVerifier interface {
	Verify(token string) (int64, error)
}

// RoomBroadcaster delivers one encoded event to the sessions of a room's
// cached members. droppable frames may be shed under backpressure;
// exceptUsers are skipped entirely.
type RoomBroadcaster interface {
	BroadcastRoom(roomID int64, data []byte, droppable bool, exceptUsers ...int64)
}

// Config carries the tunables of one gateway instance.
type Config struct {
	GatewayID        string
	MaxMessageBytes  int
	SendTimeout      time.Duration
	TypingTTL        time.Duration
	SessionQueueSize int
}

// Server owns the connection gateway and wires the shared components
// together. All of them are explicitly constructed here and passed down,
// there are no process-lifetime globals to tear down besides this.
type Server struct {
	cfg      Config
	verifier TokenVerifier

	reg      *SessionRegistry
	idx      *MembershipIndex
	presence *PresenceTracker
	typing   *TypingTracker
	router   *MessageRouter

	membership MembershipStore
}

func NewServer(cfg Config, verifier TokenVerifier, membership MembershipStore, messages MessageStore) *Server {
	s := &Server{
		cfg:        cfg,
		verifier:   verifier,
		membership: membership,
	}
	s.reg = NewSessionRegistry()
	s.idx = NewMembershipIndex(membership)
	s.presence = NewPresenceTracker(s.reg, s.idx, s)
	s.typing = NewTypingTracker(cfg.TypingTTL, s)
	s.router = NewMessageRouter(s.idx, messages, s, cfg.MaxMessageBytes, cfg.SendTimeout)

	s.reg.SetNotifier(s.presence)
	return s
}

func (s *Server) Registry() *SessionRegistry   { return s.reg }
func (s *Server) Membership() *MembershipIndex { return s.idx }
func (s *Server) Presence() *PresenceTracker   { return s.presence }
func (s *Server) Typing() *TypingTracker       { return s.typing }
func (s *Server) Router() *MessageRouter       { return s.router }

// BroadcastRoom fans an encoded event out to every session of every
// cached room member, skipping exceptUsers and sessions that left the
// room. Delivery is best effort, in-order while connected: enqueueing
// never blocks, and a slow consumer degrades only itself.
func (s *Server) BroadcastRoom(roomID int64, data []byte, droppable bool, exceptUsers ...int64) {
	members := s.idx.MembersOf(roomID)
	for _, uid := range members {
		if containsUser(exceptUsers, uid) {
			continue
		}
		for _, c := range s.reg.SessionsFor(uid) {
			if !c.InRoom(roomID) {
				continue
			}
			if err := c.enqueue(data, droppable); err != nil {
				// backpressure on a critical frame: the session is beyond
				// saving, close it and let history resync on reconnect
				logger.Warnf("[gateway] closing slow session=%s user=%d room=%d err=%v",
					c.SessionID, c.UserID, roomID, err)
				c.close()
			}
		}
	}
}

// Close tears the gateway down: stop sweepers, drain sessions. Read
// loops notice the closed sockets and unregister their sessions.
func (s *Server) Close() {
	s.typing.Stop()
	s.reg.Drain()
}

func containsUser(set []int64, uid int64) bool {
	for _, v := range set {
		if v == uid {
			return true
		}
	}
	return false
}
