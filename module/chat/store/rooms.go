package store

import (
	"context"

	"QChat/module/chat/model"
	"QChat/tools/errs"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
)

// RoomStore reads authoritative room membership from Postgres. The
// messaging core never writes membership; room creation and admin
// actions happen on the CRUD side of the application.
type RoomStore struct {
	pool *pgxpool.Pool
}

func NewRoomStore(pool *pgxpool.Pool) *RoomStore {
	return &RoomStore{pool: pool}
}

func (s *RoomStore) ListRoomMembers(ctx context.Context, roomID int64) ([]int64, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT user_id FROM chat_room_member WHERE chat_room_id = $1`, roomID)
	if err != nil {
		return nil, errs.ErrStorageUnavailable.WrapMsg("list members", "room", roomID, "err", err)
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var uid int64
		if err := rows.Scan(&uid); err != nil {
			return nil, errors.Wrap(err, "scan member row")
		}
		out = append(out, uid)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.ErrStorageUnavailable.WrapMsg("list members", "room", roomID, "err", err)
	}
	return out, nil
}

func (s *RoomStore) IsMember(ctx context.Context, userID, roomID int64) (bool, error) {
	var ok bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(
		   SELECT 1 FROM chat_room_member
		   WHERE chat_room_id = $1 AND user_id = $2)`, roomID, userID).Scan(&ok)
	if err != nil {
		return false, errs.ErrStorageUnavailable.WrapMsg("is member", "room", roomID, "user", userID, "err", err)
	}
	return ok, nil
}

func (s *RoomStore) RoomsForUser(ctx context.Context, userID int64) ([]model.Room, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT r.id, r.room_type, COALESCE(r.name, '')
		 FROM chat_room r
		 JOIN chat_room_member m ON m.chat_room_id = r.id
		 WHERE m.user_id = $1 AND r.is_active`, userID)
	if err != nil {
		return nil, errs.ErrStorageUnavailable.WrapMsg("rooms for user", "user", userID, "err", err)
	}
	defer rows.Close()

	var out []model.Room
	for rows.Next() {
		var r model.Room
		if err := rows.Scan(&r.RoomID, &r.Kind, &r.Name); err != nil {
			return nil, errors.Wrap(err, "scan room row")
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.ErrStorageUnavailable.WrapMsg("rooms for user", "user", userID, "err", err)
	}
	return out, nil
}
