// Package access decides who may read, write or delete users, capsules and
// messages. Every function is pure: callers pass the requester, the entity
// attributes and the evaluation time explicitly, and act on the boolean.
//
// The one time-dependent rule is the reveal gate: a capsule's owner and its
// recipient see the capsule's messages only once RevealDate <= now (UTC).
// Admins and a message's own author are never gated.
package access

import (
	"time"

	"github.com/dmitrijs2005/timecapsule/internal/common"
	"github.com/dmitrijs2005/timecapsule/internal/server/models"
)

// Requester is the authenticated identity behind a request.
type Requester struct {
	ID      int64
	IsAdmin bool
	Phone   string
}

// RequesterOf builds a Requester from a stored user.
func RequesterOf(u *models.User) Requester {
	return Requester{ID: u.ID, IsAdmin: u.IsAdmin, Phone: u.Phone}
}

// Capsule holds the capsule attributes the rules depend on.
type Capsule struct {
	OwnerID        int64
	RecipientPhone string
	RevealDate     time.Time
}

// CapsuleOf extracts the access-relevant attributes of c.
func CapsuleOf(c *models.Capsule) Capsule {
	return Capsule{OwnerID: c.OwnerID, RecipientPhone: c.RecipientPhone, RevealDate: c.RevealDate}
}

// Revealed reports whether the capsule's seal has opened at now.
// The boundary is inclusive: RevealDate == now is revealed.
func Revealed(c Capsule, now time.Time) bool {
	return !c.RevealDate.UTC().After(now.UTC())
}

func (r Requester) owns(c Capsule) bool {
	return r.ID == c.OwnerID
}

func (r Requester) receives(c Capsule) bool {
	return r.Phone != "" && r.Phone == c.RecipientPhone
}

// CanReadCapsule: admin, owner or recipient. The capsule record itself is not
// gated by the reveal date; only its messages are.
func CanReadCapsule(r Requester, c Capsule) bool {
	return r.IsAdmin || r.owns(c) || r.receives(c)
}

// CanPostMessage: whoever can read the capsule may add a message to it.
func CanPostMessage(r Requester, c Capsule) bool {
	return CanReadCapsule(r, c)
}

// CanSeeMessage is the per-message visibility rule used both for listing a
// capsule's messages and for reading a single one.
func CanSeeMessage(r Requester, c Capsule, creatorID int64, now time.Time) bool {
	if r.IsAdmin || r.ID == creatorID {
		return true
	}
	return (r.owns(c) || r.receives(c)) && Revealed(c, now)
}

// CanWriteMessage: admin or the message's author. Time plays no part.
func CanWriteMessage(r Requester, creatorID int64) bool {
	return r.IsAdmin || r.ID == creatorID
}

// CanDeleteMessage additionally lets the capsule owner remove any message.
func CanDeleteMessage(r Requester, c Capsule, creatorID int64) bool {
	return CanWriteMessage(r, creatorID) || r.owns(c)
}

// CanWriteCapsule: admin or owner.
func CanWriteCapsule(r Requester, c Capsule) bool {
	return r.IsAdmin || r.owns(c)
}

// CanDeleteCapsule: admin or owner.
func CanDeleteCapsule(r Requester, c Capsule) bool {
	return CanWriteCapsule(r, c)
}

// CanAccessUser: admin or the user themselves, for reads and updates.
func CanAccessUser(r Requester, userID int64) bool {
	return r.IsAdmin || r.ID == userID
}

// CanDeleteUser: admins only.
func CanDeleteUser(r Requester) bool {
	return r.IsAdmin
}

// CanSetAdmin: only admins may grant or revoke the admin flag, including
// through a self-update.
func CanSetAdmin(r Requester) bool {
	return r.IsAdmin
}

// VisibleMessages returns the messages r may see, preserving order. Hidden
// messages are dropped entirely.
func VisibleMessages(r Requester, c Capsule, msgs []*models.Message, now time.Time) []*models.Message {
	visible := make([]*models.Message, 0, len(msgs))
	for _, m := range msgs {
		if CanSeeMessage(r, c, m.CreatorID, now) {
			visible = append(visible, m)
		}
	}
	return visible
}

// Check turns a decision into common.ErrorForbidden when it denies.
func Check(allowed bool) error {
	if !allowed {
		return common.ErrorForbidden
	}
	return nil
}
