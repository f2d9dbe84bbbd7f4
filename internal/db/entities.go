package db

import (
	"fmt"
	"time"
)

const (
	RestrictionBan  = "ban"
	RestrictionMute = "mute"
)

type (
	// UserKey scopes all per-user moderation state to a single chat.
	// State is never merged across chats for the same user.
	UserKey struct {
		ChatID int64
		UserID int64
	}

	Warning struct {
		ID        int64     `db:"id"`
		ChatID    int64     `db:"chat_id"`
		UserID    int64     `db:"user_id"`
		Reason    string    `db:"reason"`
		IssuerID  int64     `db:"issuer_id"`
		CreatedAt time.Time `db:"created_at"`
	}

	// Restriction is a timed ban or mute. At most one restriction of a
	// given kind is active per UserKey; a newer one replaces it.
	Restriction struct {
		ChatID    int64     `db:"chat_id"`
		UserID    int64     `db:"user_id"`
		Kind      string    `db:"kind"`
		Until     time.Time `db:"until"`
		Reason    string    `db:"reason"`
		CreatedAt time.Time `db:"created_at"`
	}
)

func (k UserKey) String() string {
	return fmt.Sprintf("%d/%d", k.ChatID, k.UserID)
}

func (r *Restriction) Key() UserKey {
	return UserKey{ChatID: r.ChatID, UserID: r.UserID}
}

func ValidRestrictionKind(kind string) bool {
	return kind == RestrictionBan || kind == RestrictionMute
}
