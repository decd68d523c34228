package chat

import (
	"sync"
	"time"

	"QChat/logger"
	"QChat/tools/errs"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 5 * time.Second
	pingPeriod = 30 * time.Second
	pongWait   = 60 * time.Second
)

var (
	errConnClosed   = errs.New("connection closed")
	errSlowConsumer = errs.New("slow consumer, outbound queue full")
)

type outFrame struct {
	data []byte
	// droppable frames (typing, presence) may be shed under backpressure;
	// chat messages never are.
	droppable bool
}

// Conn is one live session: a websocket plus its bounded outbound queue.
// All writes to the socket go through the write pump, gorilla conns do
// not allow concurrent writers.
type Conn struct {
	SessionID   string
	UserID      int64
	ConnectedAt time.Time

	ws     *websocket.Conn
	sendq  chan outFrame
	closed chan struct{}
	once   sync.Once

	mu    sync.RWMutex
	rooms map[int64]struct{} // rooms this session currently receives fan-out for
}

func newConn(sessionID string, userID int64, ws *websocket.Conn, queueSize int) *Conn {
	if queueSize <= 0 {
		queueSize = 256
	}
	return &Conn{
		SessionID:   sessionID,
		UserID:      userID,
		ConnectedAt: time.Now(),
		ws:          ws,
		sendq:       make(chan outFrame, queueSize),
		closed:      make(chan struct{}),
		rooms:       make(map[int64]struct{}),
	}
}

func (c *Conn) JoinRoom(roomID int64) {
	c.mu.Lock()
	c.rooms[roomID] = struct{}{}
	c.mu.Unlock()
}

// LeaveRoom stops further fan-out to this session/room pair immediately.
func (c *Conn) LeaveRoom(roomID int64) {
	c.mu.Lock()
	delete(c.rooms, roomID)
	c.mu.Unlock()
}

func (c *Conn) InRoom(roomID int64) bool {
	c.mu.RLock()
	_, ok := c.rooms[roomID]
	c.mu.RUnlock()
	return ok
}

func (c *Conn) Rooms() []int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]int64, 0, len(c.rooms))
	for id := range c.rooms {
		out = append(out, id)
	}
	return out
}

// enqueue hands a frame to the write pump without blocking the caller.
// A full queue sheds droppable frames; a critical frame on a full queue
// marks this connection a slow consumer and the caller must close it.
func (c *Conn) enqueue(data []byte, droppable bool) error {
	select {
	case <-c.closed:
		return errConnClosed
	default:
	}

	select {
	case c.sendq <- outFrame{data: data, droppable: droppable}:
		return nil
	default:
		if droppable {
			logger.Debugf("[conn] drop frame session=%s backlog=%d", c.SessionID, len(c.sendq))
			return nil
		}
		return errSlowConsumer
	}
}

// writePump is the single writer goroutine for this socket.
func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		closeQuiet(c.ws)
	}()

	for {
		select {
		case <-c.closed:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.ws.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case f := <-c.sendq:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, f.data); err != nil {
				logger.Debugf("[conn] write failed session=%s err=%v", c.SessionID, err)
				c.close()
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		}
	}
}

func (c *Conn) close() {
	c.once.Do(func() { close(c.closed) })
}

func closeQuiet(ws *websocket.Conn) {
	if ws != nil {
		_ = ws.Close()
	}
}
