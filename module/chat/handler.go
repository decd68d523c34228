package chat

import (
	"net/http"
	"strconv"

	midsec "QChat/middleware/security"
	"QChat/module/chat/store"
	chatsvc "QChat/service/chat"
	"QChat/service/storage"
	"QChat/tools/errs"

	"github.com/gin-gonic/gin"
)

// API is the companion read path over the same state the live events
// come from: rooms and members from Postgres, history from Mongo keyed
// on seq, online users from the mirrored presence keys. A message is
// retrievable here the moment it was persisted, which is before any
// fan-out delivered it.
type API struct {
	rooms    *store.RoomStore
	messages *store.MessageStore
	gateway  *chatsvc.Server
}

func NewAPI(rooms *store.RoomStore, messages *store.MessageStore, gateway *chatsvc.Server) *API {
	return &API{rooms: rooms, messages: messages, gateway: gateway}
}

// HandlerRooms lists the rooms of the current user.
func (a *API) HandlerRooms(c *gin.Context) {
	uid, ok := midsec.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errs.ErrUnauthorized)
		return
	}
	rooms, err := a.rooms.RoomsForUser(c.Request.Context(), uid)
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rooms": rooms})
}

// HandlerMessages pages room history with a sequence cursor: afterSeq is
// the last seq the client saw, which makes reconnect resync idempotent.
func (a *API) HandlerMessages(c *gin.Context) {
	uid, ok := midsec.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errs.ErrUnauthorized)
		return
	}
	roomID, err := paramInt64(c, "roomId")
	if err != nil {
		abortWith(c, err)
		return
	}

	member, err := a.rooms.IsMember(c.Request.Context(), uid, roomID)
	if err != nil {
		abortWith(c, err)
		return
	}
	if !member {
		abortWith(c, errs.ErrForbidden.WrapMsg("not a room member", "room", roomID))
		return
	}

	afterSeq, _ := strconv.ParseInt(c.DefaultQuery("afterSeq", "0"), 10, 64)
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	msgs, err := a.messages.ListAfter(c.Request.Context(), roomID, afterSeq, limit)
	if err != nil {
		abortWith(c, err)
		return
	}
	nextCursor := afterSeq
	if len(msgs) > 0 {
		nextCursor = msgs[len(msgs)-1].Seq
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs, "nextCursor": nextCursor})
}

// HandlerMembers lists a room's members with their live presence.
func (a *API) HandlerMembers(c *gin.Context) {
	uid, ok := midsec.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errs.ErrUnauthorized)
		return
	}
	roomID, err := paramInt64(c, "roomId")
	if err != nil {
		abortWith(c, err)
		return
	}

	member, err := a.rooms.IsMember(c.Request.Context(), uid, roomID)
	if err != nil {
		abortWith(c, err)
		return
	}
	if !member {
		abortWith(c, errs.ErrForbidden.WrapMsg("not a room member", "room", roomID))
		return
	}

	memberIDs, err := a.rooms.ListRoomMembers(c.Request.Context(), roomID)
	if err != nil {
		abortWith(c, err)
		return
	}

	type memberView struct {
		UserID int64  `json:"userId"`
		Status string `json:"status"`
	}
	out := make([]memberView, 0, len(memberIDs))
	for _, id := range memberIDs {
		st := a.gateway.Presence().StateOf(id)
		out = append(out, memberView{UserID: id, Status: string(st.Status)})
	}
	c.JSON(http.StatusOK, gin.H{"members": out})
}

// HandlerOnlineUsers reads the mirrored presence keys.
func (a *API) HandlerOnlineUsers(c *gin.Context) {
	users, err := storage.OnlineUsers()
	if err != nil {
		abortWith(c, errs.ErrStorageUnavailable.WrapMsg("presence mirror", "err", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users})
}

// HandlerTyping reports who is actively typing in a room right now.
func (a *API) HandlerTyping(c *gin.Context) {
	uid, ok := midsec.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errs.ErrUnauthorized)
		return
	}
	roomID, err := paramInt64(c, "roomId")
	if err != nil {
		abortWith(c, err)
		return
	}
	member, err := a.rooms.IsMember(c.Request.Context(), uid, roomID)
	if err != nil {
		abortWith(c, err)
		return
	}
	if !member {
		abortWith(c, errs.ErrForbidden.WrapMsg("not a room member", "room", roomID))
		return
	}
	c.JSON(http.StatusOK, gin.H{"typing": a.gateway.Typing().Active(roomID)})
}

// HandlerInvalidateRoom drops a room from the membership cache. The CRUD
// side calls this after any membership-changing action, the cache never
// guesses staleness via TTL.
func (a *API) HandlerInvalidateRoom(c *gin.Context) {
	roomID, err := paramInt64(c, "roomId")
	if err != nil {
		abortWith(c, err)
		return
	}
	a.gateway.Membership().Invalidate(roomID)
	c.JSON(http.StatusOK, gin.H{"invalidated": roomID})
}

func paramInt64(c *gin.Context, name string) (int64, error) {
	v, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || v <= 0 {
		return 0, errs.ErrInvalidArgument.WrapMsg("bad path param", "param", name)
	}
	return v, nil
}

func abortWith(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch errs.CodeOf(err) {
	case errs.CodeForbidden:
		status = http.StatusForbidden
	case errs.CodeInvalidArgument:
		status = http.StatusBadRequest
	case errs.CodeNotFound:
		status = http.StatusNotFound
	case errs.CodeUnauthorized:
		status = http.StatusUnauthorized
	case errs.CodeStorageUnavailable:
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"code": errs.CodeOf(err), "msg": errs.MsgOf(err)})
}
