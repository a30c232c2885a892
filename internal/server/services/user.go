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
	"github.com/dmitrijs2005/timecapsule/internal/server/auth"
	"github.com/dmitrijs2005/timecapsule/internal/server/config"
	"github.com/dmitrijs2005/timecapsule/internal/server/filestore"
	"github.com/dmitrijs2005/timecapsule/internal/server/models"
	"github.com/dmitrijs2005/timecapsule/internal/server/repositories/repomanager"
)

// TokenPair bundles a short-lived access token and a long-lived refresh token.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// NewUser is the input of Register and BootstrapAdmin.
type NewUser struct {
	Firstname string
	Lastname  string
	Phone     string
	Email     *string
	Password  string
}

// UserService handles registration, login, token issue and rotation, and
// user administration.
type UserService struct {
	db                           *sql.DB
	repomanager                  repomanager.RepositoryManager
	files                        filestore.Store
	log                          logging.Logger
	jwtSecret                    []byte
	accessTokenValidityDuration  time.Duration
	refreshTokenValidityDuration time.Duration
	now                          func() time.Time
}

func NewUserService(db *sql.DB, m repomanager.RepositoryManager, files filestore.Store, cfg *config.Config, log logging.Logger) *UserService {
	return &UserService{
		db:                           db,
		repomanager:                  m,
		files:                        files,
		log:                          log.With("module", "users"),
		jwtSecret:                    []byte(cfg.SecretKey),
		accessTokenValidityDuration:  cfg.AccessTokenValidityDuration,
		refreshTokenValidityDuration: cfg.RefreshTokenValidityDuration,
		now:                          utcNow,
	}
}

// Register creates a non-admin user. A phone or email already in use
// yields common.ErrorConflict.
func (s *UserService) Register(ctx context.Context, in NewUser) (*models.User, error) {
	in = normalizeNewUser(in)
	if err := validateNewUser(in); err != nil {
		return nil, err
	}

	repo := s.repomanager.Users(s.db)
	if err := s.checkUnique(ctx, repo, 0, in.Phone, in.Email); err != nil {
		return nil, err
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, fmt.Errorf("error hashing password: %w", err)
	}

	user := &models.User{
		Firstname:    in.Firstname,
		Lastname:     in.Lastname,
		Phone:        in.Phone,
		Email:        in.Email,
		PasswordHash: hash,
	}
	u, err := repo.Create(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("error creating user: %w", err)
	}

	s.log.Info(ctx, "user registered", "user_id", u.ID)
	return u, nil
}

// Login checks phone and password and issues a TokenPair.
func (s *UserService) Login(ctx context.Context, phone, password string) (*TokenPair, error) {
	user, err := s.repomanager.Users(s.db).GetByPhone(ctx, strings.TrimSpace(phone))
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorUnauthorized
		}
		return nil, common.ErrorInternal
	}

	ok, err := auth.CheckPassword(user.PasswordHash, password)
	if err != nil {
		s.log.Error(ctx, "password check failed", "user_id", user.ID, "error", err)
		return nil, common.ErrorUnauthorized
	}
	if !ok {
		return nil, common.ErrorUnauthorized
	}

	return s.generateTokenPair(ctx, user.ID, s.db)
}

// RefreshToken redeems a refresh token and returns a fresh TokenPair. The
// old token is consumed in the same transaction that issues the new pair,
// so it can be redeemed at most once. Expired tokens are deleted and yield
// ErrRefreshTokenExpired.
func (s *UserService) RefreshToken(ctx context.Context, refreshToken string) (*TokenPair, error) {
	var (
		pair    *TokenPair
		expired bool
	)
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		token, err := s.repomanager.RefreshTokens(tx).Consume(ctx, refreshToken)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return common.ErrorUnauthorized
			}
			return fmt.Errorf("error consuming refresh token: %w", err)
		}
		// commit the delete of an expired token
		if token.Expires.Before(s.now()) {
			expired = true
			return nil
		}
		pair, err = s.generateTokenPair(ctx, token.UserID, tx)
		return err
	})
	if err != nil {
		return nil, err
	}
	if expired {
		return nil, common.ErrRefreshTokenExpired
	}
	return pair, nil
}

// Authenticate resolves a bearer access token to the requester. Invalid or
// expired tokens yield common.ErrorUnauthorized; a token of a deleted user
// yields common.ErrorNotFound.
func (s *UserService) Authenticate(ctx context.Context, accessToken string) (access.Requester, error) {
	userID, err := auth.GetUserIDFromToken(accessToken, s.jwtSecret)
	if err != nil {
		return access.Requester{}, fmt.Errorf("%w: %v", common.ErrorUnauthorized, err)
	}

	user, err := s.repomanager.Users(s.db).GetByID(ctx, userID)
	if err != nil {
		return access.Requester{}, err
	}
	return access.RequesterOf(user), nil
}

// Get returns a user the requester may access.
func (s *UserService) Get(ctx context.Context, r access.Requester, id int64) (*models.User, error) {
	if err := access.Check(access.CanAccessUser(r, id)); err != nil {
		return nil, err
	}
	return s.repomanager.Users(s.db).GetByID(ctx, id)
}

// Update applies a partial update. IsAdmin in the patch is honoured only
// for admin requesters. Changing the password revokes the user's refresh
// tokens.
func (s *UserService) Update(ctx context.Context, r access.Requester, id int64, patch models.UserPatch) (*models.User, error) {
	if err := access.Check(access.CanAccessUser(r, id)); err != nil {
		return nil, err
	}

	var updated *models.User
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Users(tx)

		user, err := repo.GetByID(ctx, id)
		if err != nil {
			return err
		}

		if err := s.applyPatch(ctx, repo, r, user, patch); err != nil {
			return err
		}
		if err := repo.Update(ctx, user); err != nil {
			return err
		}
		// a new password signs out every existing session
		if patch.Password != nil {
			if err := s.repomanager.RefreshTokens(tx).DeleteByUser(ctx, id); err != nil {
				return err
			}
		}
		updated = user
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Delete removes a user with everything that cascades from it. Only admins
// may delete users. Attachment files are released after commit.
func (s *UserService) Delete(ctx context.Context, r access.Requester, id int64) error {
	if err := access.Check(access.CanDeleteUser(r)); err != nil {
		return err
	}

	var refs []string
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if _, err := s.repomanager.Users(tx).GetByID(ctx, id); err != nil {
			return err
		}
		var err error
		refs, err = s.repomanager.Messages(tx).FilenamesByUser(ctx, id)
		if err != nil {
			return err
		}
		return s.repomanager.Users(tx).Delete(ctx, id)
	})
	if err != nil {
		return err
	}

	releaseFiles(ctx, s.files, s.log, refs)
	s.log.Info(ctx, "user deleted", "user_id", id, "by", r.ID, "files", len(refs))
	return nil
}

// BootstrapAdmin creates an administrator, or promotes the user already
// registered with the phone. The bool result reports whether a new user was
// created.
func (s *UserService) BootstrapAdmin(ctx context.Context, in NewUser) (*models.User, bool, error) {
	in = normalizeNewUser(in)

	var (
		result  *models.User
		created bool
	)
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Users(tx)

		existing, err := repo.GetByPhone(ctx, in.Phone)
		switch {
		case err == nil:
			existing.IsAdmin = true
			if in.Password != "" {
				hash, err := auth.HashPassword(in.Password)
				if err != nil {
					return fmt.Errorf("error hashing password: %w", err)
				}
				existing.PasswordHash = hash
			}
			if err := repo.Update(ctx, existing); err != nil {
				return err
			}
			result = existing
			return nil
		case !errors.Is(err, common.ErrorNotFound):
			return err
		}

		if err := validateNewUser(in); err != nil {
			return err
		}
		if err := s.checkUnique(ctx, repo, 0, in.Phone, in.Email); err != nil {
			return err
		}
		hash, err := auth.HashPassword(in.Password)
		if err != nil {
			return fmt.Errorf("error hashing password: %w", err)
		}
		result, err = repo.Create(ctx, &models.User{
			Firstname:    in.Firstname,
			Lastname:     in.Lastname,
			Phone:        in.Phone,
			Email:        in.Email,
			PasswordHash: hash,
			IsAdmin:      true,
		})
		created = err == nil
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return result, created, nil
}

// --- helpers below ---

func (s *UserService) applyPatch(ctx context.Context, repo usersRepo, r access.Requester, user *models.User, patch models.UserPatch) error {
	if patch.Firstname != nil {
		user.Firstname = strings.TrimSpace(*patch.Firstname)
	}
	if patch.Lastname != nil {
		user.Lastname = strings.TrimSpace(*patch.Lastname)
	}

	var phone string
	var email *string
	if patch.Phone != nil {
		phone = strings.TrimSpace(*patch.Phone)
		if phone == "" {
			return fmt.Errorf("%w: phone must not be empty", common.ErrorValidation)
		}
		if phone != user.Phone {
			user.Phone = phone
		} else {
			phone = ""
		}
	}
	if patch.Email != nil {
		e := strings.TrimSpace(*patch.Email)
		if e == "" {
			user.Email = nil
		} else if user.Email == nil || *user.Email != e {
			email = &e
			user.Email = email
		}
	}
	if err := s.checkUnique(ctx, repo, user.ID, phone, email); err != nil {
		return err
	}

	if patch.Password != nil {
		if *patch.Password == "" {
			return fmt.Errorf("%w: password must not be empty", common.ErrorValidation)
		}
		if len(*patch.Password) > auth.MaxPasswordLength {
			return fmt.Errorf("%w: password exceeds %d bytes", common.ErrorValidation, auth.MaxPasswordLength)
		}
		hash, err := auth.HashPassword(*patch.Password)
		if err != nil {
			return fmt.Errorf("error hashing password: %w", err)
		}
		user.PasswordHash = hash
	}
	if patch.IsAdmin != nil && access.CanSetAdmin(r) {
		user.IsAdmin = *patch.IsAdmin
	}
	return nil
}

type usersRepo interface {
	GetByPhone(ctx context.Context, phone string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
}

// checkUnique reports common.ErrorConflict when phone or email belongs to a
// user other than selfID. Empty values are not checked.
func (s *UserService) checkUnique(ctx context.Context, repo usersRepo, selfID int64, phone string, email *string) error {
	if phone != "" {
		u, err := repo.GetByPhone(ctx, phone)
		if err == nil && u.ID != selfID {
			return fmt.Errorf("%w: phone already in use", common.ErrorConflict)
		}
		if err != nil && !errors.Is(err, common.ErrorNotFound) {
			return err
		}
	}
	if email != nil {
		u, err := repo.GetByEmail(ctx, *email)
		if err == nil && u.ID != selfID {
			return fmt.Errorf("%w: email already in use", common.ErrorConflict)
		}
		if err != nil && !errors.Is(err, common.ErrorNotFound) {
			return err
		}
	}
	return nil
}

func normalizeNewUser(in NewUser) NewUser {
	in.Firstname = strings.TrimSpace(in.Firstname)
	in.Lastname = strings.TrimSpace(in.Lastname)
	in.Phone = strings.TrimSpace(in.Phone)
	if in.Email != nil {
		e := strings.TrimSpace(*in.Email)
		if e == "" {
			in.Email = nil
		} else {
			in.Email = &e
		}
	}
	return in
}

func validateNewUser(in NewUser) error {
	switch {
	case in.Firstname == "":
		return fmt.Errorf("%w: firstname is required", common.ErrorValidation)
	case in.Lastname == "":
		return fmt.Errorf("%w: lastname is required", common.ErrorValidation)
	case in.Phone == "":
		return fmt.Errorf("%w: phone is required", common.ErrorValidation)
	case in.Password == "":
		return fmt.Errorf("%w: password is required", common.ErrorValidation)
	case len(in.Password) > auth.MaxPasswordLength:
		return fmt.Errorf("%w: password exceeds %d bytes", common.ErrorValidation, auth.MaxPasswordLength)
	}
	return nil
}

func (s *UserService) generateAccessToken(userID int64) (string, error) {
	return auth.GenerateToken(userID, s.jwtSecret, s.accessTokenValidityDuration)
}

func (s *UserService) generateRefreshToken() (string, error) {
	return common.MakeRandHexString(32)
}

func (s *UserService) generateTokenPair(ctx context.Context, userID int64, tx dbx.DBTX) (*TokenPair, error) {
	accessToken, err := s.generateAccessToken(userID)
	if err != nil {
		return nil, common.ErrorInternal
	}
	refresh, err := s.generateRefreshToken()
	if err != nil {
		return nil, common.ErrorInternal
	}
	refreshRepo := s.repomanager.RefreshTokens(tx)
	if err := refreshRepo.Create(ctx, userID, refresh, s.refreshTokenValidityDuration); err != nil {
		return nil, common.ErrorInternal
	}
	return &TokenPair{AccessToken: accessToken, RefreshToken: refresh}, nil
}
