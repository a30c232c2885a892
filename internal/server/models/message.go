package models

import (
	"io"
	"time"
)

// Message is a unit of capsule content. At least one of Text and Filename
// is set; Filename is the file storage reference, not the client's name.
type Message struct {
	ID        int64
	CapsuleID int64
	CreatorID int64
	Text      *string
	Filename  *string
	CreatedAt time.Time
}

// Upload is an incoming file attached to a message create or update.
type Upload struct {
	Name string
	Body io.Reader
}
