// internal/contacts/models.go

package contacts

import "time"

// ContactBlock is one directed blocking decision. The messaging core never
// reads this table directly; it reacts to the events published on block and
// unblock.
type ContactBlock struct {
	UserID        int64     `json:"user_id" db:"user_id"`
	BlockedUserID int64     `json:"blocked_user_id" db:"blocked_user_id"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}

// BlockEvent is the payload published on the contact-event channel.
type BlockEvent struct {
	EventID  string `json:"event_id"`
	Event    string `json:"event"`
	UserID   int64  `json:"user_id"`
	FriendID int64  `json:"friend_id"`
}

const (
	EventBlocked   = "contact.blocked"
	EventUnblocked = "contact.unblocked"
)
