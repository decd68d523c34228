package storage

import (
	"strconv"
	"time"

	"QChat/module/chat/model"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// Presence mirror. The session registry is the source of truth; these
// keys exist so the read path (and other backend services) can answer
// "who is online" without touching the in-memory registry.
//
// im:online                 SET of online user ids
// im:presence:<user>        HASH status / last_seen, TTL as liveness guard

const onlineSetKey = "im:online"

// presenceTTL bounds staleness if the gateway dies without cleanup.
const presenceTTL = 2 * time.Minute

func presenceKey(userID int64) string {
	return "im:presence:" + strconv.FormatInt(userID, 10)
}

// MirrorPresence writes a presence transition to Redis.
func MirrorPresence(st model.PresenceState) error {
	if err := requireRedis(); err != nil {
		return err
	}
	key := presenceKey(st.UserID)
	pipe := rdb.TxPipeline()
	if st.Status == model.PresenceOffline {
		pipe.SRem(ctx, onlineSetKey, st.UserID)
		pipe.HSet(ctx, key, "status", string(st.Status), "last_seen", st.LastSeenAt.UnixMilli())
		pipe.Expire(ctx, key, presenceTTL)
	} else {
		pipe.SAdd(ctx, onlineSetKey, st.UserID)
		pipe.HSet(ctx, key, "status", string(st.Status), "last_seen", st.LastSeenAt.UnixMilli())
		pipe.Expire(ctx, key, presenceTTL)
	}
	_, err := pipe.Exec(ctx)
	return errors.Wrap(err, "mirror presence")
}

// OnlineUsers returns the mirrored presence of currently online users.
func OnlineUsers() ([]model.PresenceState, error) {
	if err := requireRedis(); err != nil {
		return nil, err
	}
	members, err := rdb.SMembers(ctx, onlineSetKey).Result()
	if err != nil {
		return nil, errors.Wrap(err, "online set")
	}

	out := make([]model.PresenceState, 0, len(members))
	for _, m := range members {
		uid, perr := strconv.ParseInt(m, 10, 64)
		if perr != nil {
			continue
		}
		vals, gerr := rdb.HGetAll(ctx, presenceKey(uid)).Result()
		if gerr != nil && !errors.Is(gerr, redis.Nil) {
			return nil, errors.Wrap(gerr, "presence hash")
		}
		st := model.PresenceState{UserID: uid, Status: model.PresenceOnline}
		if v, ok := vals["status"]; ok {
			st.Status = model.PresenceStatus(v)
		}
		if v, ok := vals["last_seen"]; ok {
			if ms, perr := strconv.ParseInt(v, 10, 64); perr == nil {
				st.LastSeenAt = time.UnixMilli(ms)
			}
		}
		out = append(out, st)
	}
	return out, nil
}
