package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/timecapsule/internal/common"
	"github.com/dmitrijs2005/timecapsule/internal/dbx"
	"github.com/dmitrijs2005/timecapsule/internal/logging"
	"github.com/dmitrijs2005/timecapsule/internal/server/access"
	"github.com/dmitrijs2005/timecapsule/internal/server/filestore"
	"github.com/dmitrijs2005/timecapsule/internal/server/models"
	"github.com/dmitrijs2005/timecapsule/internal/server/repositories/repomanager"
)

const (
	newCapsuleSubject = "New capsule"
	newCapsuleText    = "A new capsule is addressed to you: %s"
	capsuleInviteText = "Someone sent you a capsule '%s'. Download the app to open it!"
)

type NewCapsule struct {
	Name           string
	RevealDate     time.Time
	RecipientPhone string
	NotifyOnCreate bool
}

type CapsuleService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	files       filestore.Store
	notifier    Notifier
	log         logging.Logger
	now         func() time.Time
}

func NewCapsuleService(db *sql.DB, m repomanager.RepositoryManager, files filestore.Store, notifier Notifier, log logging.Logger) *CapsuleService {
	return &CapsuleService{
		db:          db,
		repomanager: m,
		files:       files,
		notifier:    notifier,
		log:         log.With("module", "capsules"),
		now:         utcNow,
	}
}

// Create stores a capsule owned by the requester and, when asked, notifies
// the recipient once the capsule is committed.
func (s *CapsuleService) Create(ctx context.Context, r access.Requester, in NewCapsule) (*models.Capsule, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.RecipientPhone = strings.TrimSpace(in.RecipientPhone)
	if err := validateCapsule(in.Name, in.RecipientPhone, in.RevealDate); err != nil {
		return nil, err
	}

	c, err := s.repomanager.Capsules(s.db).Create(ctx, &models.Capsule{
		Name:           in.Name,
		RevealDate:     in.RevealDate.UTC(),
		NotifyOnCreate: in.NotifyOnCreate,
		OwnerID:        r.ID,
		RecipientPhone: in.RecipientPhone,
	})
	if err != nil {
		return nil, fmt.Errorf("error creating capsule: %w", err)
	}

	s.log.Info(ctx, "capsule created", "capsule_id", c.ID, "owner_id", c.OwnerID)
	s.notifyCreated(ctx, c)
	return c, nil
}

func (s *CapsuleService) notifyCreated(ctx context.Context, c *models.Capsule) {
	if !c.NotifyOnCreate {
		s.log.Info(ctx, "no reveal notification is scheduled", "capsule_id", c.ID, "reveal_date", c.RevealDate)
		return
	}

	recipient, err := s.repomanager.Users(s.db).GetByPhone(ctx, c.RecipientPhone)
	switch {
	case err == nil:
		text := fmt.Sprintf(newCapsuleText, c.Name)
		s.notifier.NotifySMS(ctx, c.RecipientPhone, text)
		if recipient.Email != nil {
			s.notifier.NotifyEmail(ctx, *recipient.Email, newCapsuleSubject, text)
		}
	case errors.Is(err, common.ErrorNotFound):
		s.notifier.NotifySMS(ctx, c.RecipientPhone, fmt.Sprintf(capsuleInviteText, c.Name))
	default:
		s.log.Error(ctx, "recipient lookup failed, notification skipped", "capsule_id", c.ID, "error", err)
	}
}

// Get returns the capsule with the messages the requester may see.
func (s *CapsuleService) Get(ctx context.Context, r access.Requester, id int64) (*models.CapsuleView, error) {
	c, err := s.repomanager.Capsules(s.db).GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	ac := access.CapsuleOf(c)
	if err := access.Check(access.CanReadCapsule(r, ac)); err != nil {
		return nil, err
	}

	msgs, err := s.repomanager.Messages(s.db).ListByCapsule(ctx, id)
	if err != nil {
		return nil, err
	}

	return &models.CapsuleView{
		Capsule:  c,
		Messages: access.VisibleMessages(r, ac, msgs, s.now()),
	}, nil
}

// Update applies a partial update; only the owner or an admin may do so.
func (s *CapsuleService) Update(ctx context.Context, r access.Requester, id int64, patch models.CapsulePatch) (*models.Capsule, error) {
	var updated *models.Capsule
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Capsules(tx)

		c, err := repo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := access.Check(access.CanWriteCapsule(r, access.CapsuleOf(c))); err != nil {
			return err
		}

		if patch.Name != nil {
			c.Name = strings.TrimSpace(*patch.Name)
		}
		if patch.RevealDate != nil {
			c.RevealDate = patch.RevealDate.UTC()
		}
		if patch.NotifyOnCreate != nil {
			c.NotifyOnCreate = *patch.NotifyOnCreate
		}
		if patch.RecipientPhone != nil {
			c.RecipientPhone = strings.TrimSpace(*patch.RecipientPhone)
		}
		if err := validateCapsule(c.Name, c.RecipientPhone, c.RevealDate); err != nil {
			return err
		}

		if err := repo.Update(ctx, c); err != nil {
			return err
		}
		updated = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Delete removes the capsule and its messages, then releases their files.
func (s *CapsuleService) Delete(ctx context.Context, r access.Requester, id int64) error {
	var refs []string
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		c, err := s.repomanager.Capsules(tx).GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := access.Check(access.CanDeleteCapsule(r, access.CapsuleOf(c))); err != nil {
			return err
		}

		refs, err = s.repomanager.Messages(tx).FilenamesByCapsule(ctx, id)
		if err != nil {
			return err
		}
		return s.repomanager.Capsules(tx).Delete(ctx, id)
	})
	if err != nil {
		return err
	}

	releaseFiles(ctx, s.files, s.log, refs)
	s.log.Info(ctx, "capsule deleted", "capsule_id", id, "by", r.ID, "files", len(refs))
	return nil
}

func validateCapsule(name, phone string, reveal time.Time) error {
	switch {
	case name == "":
		return fmt.Errorf("%w: name is required", common.ErrorValidation)
	case phone == "":
		return fmt.Errorf("%w: recipient_phone is required", common.ErrorValidation)
	case reveal.IsZero():
		return fmt.Errorf("%w: reveal_date is required", common.ErrorValidation)
	}
	return nil
}
