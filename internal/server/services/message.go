package services

import (
	"context"
	"database/sql"
	"io"
	"time"

	"github.com/dmitrijs2005/timecapsule/internal/common"
	"github.com/dmitrijs2005/timecapsule/internal/dbx"
	"github.com/dmitrijs2005/timecapsule/internal/logging"
	"github.com/dmitrijs2005/timecapsule/internal/server/access"
	"github.com/dmitrijs2005/timecapsule/internal/server/filestore"
	"github.com/dmitrijs2005/timecapsule/internal/server/models"
	"github.com/dmitrijs2005/timecapsule/internal/server/repositories/repomanager"
)

// MessageInput carries the content of a message create or update. An empty
// Text and an Upload without a name both count as absent content; on update
// a non-nil empty Text sent with a new file clears the existing text.
type MessageInput struct {
	Text *string
	File *models.Upload
}

func (in MessageInput) hasText() bool { return in.Text != nil && *in.Text != "" }
func (in MessageInput) hasFile() bool { return in.File != nil && in.File.Name != "" }

// Attachment is a message file opened for download.
type Attachment struct {
	Name string
	Body io.ReadCloser
}

type MessageService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	files       filestore.Store
	log         logging.Logger
	now         func() time.Time
}

func NewMessageService(db *sql.DB, m repomanager.RepositoryManager, files filestore.Store, log logging.Logger) *MessageService {
	return &MessageService{
		db:          db,
		repomanager: m,
		files:       files,
		log:         log.With("module", "messages"),
		now:         utcNow,
	}
}

// Create posts a message into a capsule the requester can read. The file
// is stored before the row is inserted and released if the insert fails.
func (s *MessageService) Create(ctx context.Context, r access.Requester, capsuleID int64, in MessageInput) (*models.Message, error) {
	if !in.hasText() && !in.hasFile() {
		return nil, common.ErrorUnprocessable
	}

	c, err := s.repomanager.Capsules(s.db).GetByID(ctx, capsuleID)
	if err != nil {
		return nil, err
	}
	if err := access.Check(access.CanPostMessage(r, access.CapsuleOf(c))); err != nil {
		return nil, err
	}

	msg := &models.Message{CapsuleID: capsuleID, CreatorID: r.ID}
	if in.hasText() {
		msg.Text = in.Text
	}
	if in.hasFile() {
		ref, err := s.files.Save(ctx, in.File.Name, in.File.Body)
		if err != nil {
			return nil, err
		}
		msg.Filename = &ref
	}

	created, err := s.repomanager.Messages(s.db).Create(ctx, msg)
	if err != nil {
		if msg.Filename != nil {
			releaseFiles(ctx, s.files, s.log, []string{*msg.Filename})
		}
		return nil, err
	}

	s.log.Info(ctx, "message created", "capsule_id", capsuleID, "message_id", created.ID, "creator_id", r.ID)
	return created, nil
}

// Get returns a single message. Sealed messages of others are Forbidden.
func (s *MessageService) Get(ctx context.Context, r access.Requester, capsuleID, messageID int64) (*models.Message, error) {
	return s.loadVisible(ctx, r, capsuleID, messageID)
}

// Update replaces the text and/or the file of a message. A new file is
// stored first; the old one is released only after the row is committed.
// Omitted text is kept, and empty text sent with a new file is cleared.
func (s *MessageService) Update(ctx context.Context, r access.Requester, capsuleID, messageID int64, in MessageInput) (*models.Message, error) {
	if !in.hasText() && !in.hasFile() {
		return nil, common.ErrorUnprocessable
	}

	if _, err := s.repomanager.Capsules(s.db).GetByID(ctx, capsuleID); err != nil {
		return nil, err
	}
	current, err := s.repomanager.Messages(s.db).Get(ctx, capsuleID, messageID)
	if err != nil {
		return nil, err
	}
	if err := access.Check(access.CanWriteMessage(r, current.CreatorID)); err != nil {
		return nil, err
	}

	var newRef string
	if in.hasFile() {
		newRef, err = s.files.Save(ctx, in.File.Name, in.File.Body)
		if err != nil {
			return nil, err
		}
	}

	var (
		updated *models.Message
		oldRef  *string
	)
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Messages(tx)

		// re-read inside the transaction, the row may have changed meanwhile
		msg, err := repo.Get(ctx, capsuleID, messageID)
		if err != nil {
			return err
		}
		if err := access.Check(access.CanWriteMessage(r, msg.CreatorID)); err != nil {
			return err
		}

		switch {
		case in.hasText():
			msg.Text = in.Text
		case in.Text != nil && newRef != "":
			// an explicit empty text next to a new file clears the caption
			msg.Text = nil
		}
		if newRef != "" {
			oldRef = msg.Filename
			ref := newRef
			msg.Filename = &ref
		}
		if err := repo.Update(ctx, msg); err != nil {
			return err
		}
		updated = msg
		return nil
	})
	if err != nil {
		if newRef != "" {
			releaseFiles(ctx, s.files, s.log, []string{newRef})
		}
		return nil, err
	}

	if oldRef != nil {
		releaseFiles(ctx, s.files, s.log, []string{*oldRef})
	}
	return updated, nil
}

// Delete removes a message, then releases its file.
func (s *MessageService) Delete(ctx context.Context, r access.Requester, capsuleID, messageID int64) error {
	var ref *string
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		c, err := s.repomanager.Capsules(tx).GetByID(ctx, capsuleID)
		if err != nil {
			return err
		}
		repo := s.repomanager.Messages(tx)
		msg, err := repo.Get(ctx, capsuleID, messageID)
		if err != nil {
			return err
		}
		if err := access.Check(access.CanDeleteMessage(r, access.CapsuleOf(c), msg.CreatorID)); err != nil {
			return err
		}
		ref = msg.Filename
		return repo.Delete(ctx, capsuleID, messageID)
	})
	if err != nil {
		return err
	}

	if ref != nil {
		releaseFiles(ctx, s.files, s.log, []string{*ref})
	}
	s.log.Info(ctx, "message deleted", "capsule_id", capsuleID, "message_id", messageID, "by", r.ID)
	return nil
}

// Download opens the file of a message the requester may see. A message
// without a file is reported as common.ErrorNotFound.
func (s *MessageService) Download(ctx context.Context, r access.Requester, capsuleID, messageID int64) (*Attachment, error) {
	msg, err := s.loadVisible(ctx, r, capsuleID, messageID)
	if err != nil {
		return nil, err
	}
	if msg.Filename == nil {
		return nil, common.ErrorNotFound
	}

	body, err := s.files.Open(ctx, *msg.Filename)
	if err != nil {
		return nil, err
	}
	return &Attachment{Name: filestore.DisplayName(*msg.Filename), Body: body}, nil
}

func (s *MessageService) loadVisible(ctx context.Context, r access.Requester, capsuleID, messageID int64) (*models.Message, error) {
	c, err := s.repomanager.Capsules(s.db).GetByID(ctx, capsuleID)
	if err != nil {
		return nil, err
	}
	msg, err := s.repomanager.Messages(s.db).Get(ctx, capsuleID, messageID)
	if err != nil {
		return nil, err
	}
	if err := access.Check(access.CanSeeMessage(r, access.CapsuleOf(c), msg.CreatorID, s.now())); err != nil {
		return nil, err
	}
	return msg, nil
}
