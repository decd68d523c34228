package model

import "time"

type PresenceStatus string

const (
	PresenceOnline  PresenceStatus = "online"
	PresenceAway    PresenceStatus = "away"
	PresenceBusy    PresenceStatus = "busy"
	PresenceOffline PresenceStatus = "offline"
)

// AdvisoryValid reports whether a client-supplied status may be layered
// on top of the computed online/offline state. "offline" is not a valid
// advisory: only the session registry decides offline.
func (s PresenceStatus) AdvisoryValid() bool {
	switch s {
	case PresenceOnline, PresenceAway, PresenceBusy:
		return true
	}
	return false
}

// PresenceState is derived, never independently stored: a user is online
// iff the session registry holds at least one session for them.
type PresenceState struct {
	UserID     int64          `json:"userId"`
	Status     PresenceStatus `json:"status"`
	LastSeenAt time.Time      `json:"lastSeenAt"`
}

// TypingFlag is ephemeral per-room per-user typing state. Never persisted;
// a restart clears all flags.
type TypingFlag struct {
	RoomID    int64     `json:"roomId"`
	UserID    int64     `json:"userId"`
	ExpiresAt time.Time `json:"-"`
}
