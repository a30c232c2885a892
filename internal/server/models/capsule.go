package models

import "time"

// Capsule is a time-sealed container of messages addressed to RecipientPhone.
// RevealDate is always held in UTC.
type Capsule struct {
	ID             int64
	Name           string
	RevealDate     time.Time
	NotifyOnCreate bool
	OwnerID        int64
	RecipientPhone string
	CreatedAt      time.Time
}

// CapsulePatch carries the optional fields of a capsule update.
type CapsulePatch struct {
	Name           *string
	RevealDate     *time.Time
	NotifyOnCreate *bool
	RecipientPhone *string
}

// CapsuleView is a capsule together with the messages the requester may see.
type CapsuleView struct {
	Capsule  *Capsule
	Messages []*Message
}
