// Package service holds the session orchestrator: the component that ties
// credential verification, token issuance, refresh rotation and object
// storage side effects together and owns every transactional boundary
// between them.
package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/andresgm/shop-auth/internal/auth"
	"github.com/andresgm/shop-auth/internal/config"
	"github.com/andresgm/shop-auth/internal/model"
	"github.com/andresgm/shop-auth/internal/queue"
	"github.com/andresgm/shop-auth/internal/repository"
	"github.com/andresgm/shop-auth/internal/storage"
	"github.com/andresgm/shop-auth/internal/utils"
)

// ErrBadCredentials is returned by Login for a wrong email or password.
// The two cases are indistinguishable on purpose: the response must not
// reveal which field failed.
var ErrBadCredentials = errors.New("invalid credentials")

// ErrSessionInvalid is returned by Refresh when the presented refresh token
// is unknown, revoked or expired.  The handler answers with a forced
// logout: cookie cleared, any presented access token invalidated.
var ErrSessionInvalid = errors.New("session invalid")

// Publisher is the best-effort event hook invoked after a registration
// commits.  Implementations log their own failures; the orchestrator never
// checks the result.
type Publisher func(ctx context.Context, ev queue.UserRegisteredEvent) error

// AuthService coordinates the credential store, the refresh token ledger,
// the image attachments and the object storage gateway for every session
// flow.
type AuthService struct {
	db      *sql.DB
	users   *repository.UserRepo
	tokens  *repository.TokenRepo
	images  *repository.ImageRepo
	store   storage.ObjectStorage
	issuer  *auth.Issuer
	cfg     config.Config
	publish Publisher
}

func NewAuthService(db *sql.DB, users *repository.UserRepo, tokens *repository.TokenRepo,
	images *repository.ImageRepo, store storage.ObjectStorage, issuer *auth.Issuer,
	cfg config.Config, publish Publisher) *AuthService {
	return &AuthService{
		db: db, users: users, tokens: tokens, images: images,
		store: store, issuer: issuer, cfg: cfg, publish: publish,
	}
}

// RegisterInput carries validated registration fields.  Image is nil when
// no avatar was uploaded.
type RegisterInput struct {
	Name     string
	Email    string
	Password string
	Image    []byte
}

// AuthResult is the outcome of register, login and refresh: the signed
// access token for the response body and the raw refresh token destined for
// the cookie.
type AuthResult struct {
	UserID       uint64
	AccessToken  string
	RefreshToken utils.RefreshToken
	ImageURL     *string
}

// Register creates the user, optionally uploads and attaches the avatar,
// and records the first refresh token — all inside one transaction.  A
// failed upload rolls back the user row: a user never exists half-created.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (AuthResult, error) {
	hash, err := utils.HashPassword(in.Password, s.cfg.BcryptCost)
	if err != nil {
		return AuthResult{}, fmt.Errorf("hash password: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return AuthResult{}, fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	uid, err := s.users.CreateTx(ctx, tx, in.Name, in.Email, hash, model.RoleUser)
	if err != nil {
		return AuthResult{}, err
	}

	var imageURL *string
	if in.Image != nil {
		up, err := s.uploadImage(ctx, in.Image, uid)
		if err != nil {
			return AuthResult{}, fmt.Errorf("upload image: %w", err)
		}
		img := &model.Image{PublicID: up.PublicID, URL: up.URL, OwnerType: model.OwnerUser, OwnerID: uid}
		if err := s.images.AttachTx(ctx, tx, img); err != nil {
			// The remote object exists but the row never will; clean it up
			// so the bucket does not accumulate orphans.
			if derr := s.store.Destroy(ctx, up.PublicID); derr != nil {
				log.Printf("register: orphan cleanup failed for %s: %v", up.PublicID, derr)
			}
			return AuthResult{}, fmt.Errorf("attach image: %w", err)
		}
		imageURL = &img.URL
	}

	refresh, err := utils.NewRefreshToken(s.cfg.RefreshTTLDays)
	if err != nil {
		return AuthResult{}, fmt.Errorf("mint refresh: %w", err)
	}
	if err := s.tokens.StoreRefreshTx(ctx, tx, uid, utils.HashRefreshRaw(refresh.Raw), refresh.Exp); err != nil {
		return AuthResult{}, fmt.Errorf("store refresh: %w", err)
	}

	access, _, err := s.issuer.Issue(uid, model.RoleUser)
	if err != nil {
		return AuthResult{}, fmt.Errorf("issue access: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return AuthResult{}, fmt.Errorf("commit: %w", err)
	}
	committed = true

	if s.publish != nil {
		_ = s.publish(ctx, queue.UserRegisteredEvent{
			UserID:       uid,
			Name:         in.Name,
			Email:        in.Email,
			HasImage:     imageURL != nil,
			RegisteredAt: time.Now().UTC().Format(time.RFC3339),
		})
	}

	return AuthResult{UserID: uid, AccessToken: access, RefreshToken: refresh, ImageURL: imageURL}, nil
}

// Login verifies credentials and opens a new session: one fresh refresh
// token row plus an access token.  Existing sessions are left alone, so a
// user may hold several concurrent refresh tokens.
func (s *AuthService) Login(ctx context.Context, email, password string) (AuthResult, error) {
	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return AuthResult{}, ErrBadCredentials
		}
		return AuthResult{}, fmt.Errorf("load user: %w", err)
	}
	if !utils.VerifyPassword(u.PasswordHash, password) {
		return AuthResult{}, ErrBadCredentials
	}
	return s.openSession(ctx, u.ID, u.Role)
}

// Refresh rotates a refresh token.  The consume is a single conditional
// update, so of two concurrent calls presenting the same token exactly one
// wins; the loser gets ErrSessionInvalid and is logged out.  Consumption
// happens before issuance: any failure after it leaves the old token dead
// and the user re-authenticating, never a window with two live tokens.
func (s *AuthService) Refresh(ctx context.Context, refreshRaw string) (AuthResult, error) {
	userID, err := s.tokens.Consume(ctx, utils.HashRefreshRaw(refreshRaw))
	if err != nil {
		if errors.Is(err, repository.ErrTokenInvalid) {
			return AuthResult{}, ErrSessionInvalid
		}
		return AuthResult{}, fmt.Errorf("consume refresh: %w", err)
	}
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return AuthResult{}, fmt.Errorf("load user: %w", err)
	}
	return s.openSession(ctx, u.ID, u.Role)
}

// openSession mints the access/refresh pair and persists the refresh row.
func (s *AuthService) openSession(ctx context.Context, userID uint64, role string) (AuthResult, error) {
	access, _, err := s.issuer.Issue(userID, role)
	if err != nil {
		return AuthResult{}, fmt.Errorf("issue access: %w", err)
	}
	refresh, err := utils.NewRefreshToken(s.cfg.RefreshTTLDays)
	if err != nil {
		return AuthResult{}, fmt.Errorf("mint refresh: %w", err)
	}
	if err := s.tokens.StoreRefresh(ctx, userID, utils.HashRefreshRaw(refresh.Raw), refresh.Exp); err != nil {
		return AuthResult{}, fmt.Errorf("store refresh: %w", err)
	}
	return AuthResult{UserID: userID, AccessToken: access, RefreshToken: refresh}, nil
}

// Logout invalidates the presented access token and revokes the refresh
// token if one arrived in the cookie.  Both steps tolerate garbage input:
// from the client's point of view logout always succeeds.
func (s *AuthService) Logout(ctx context.Context, accessRaw, refreshRaw string) {
	if accessRaw != "" {
		if err := s.issuer.Invalidate(ctx, accessRaw); err != nil {
			log.Printf("logout: access invalidation failed: %v", err)
		}
	}
	if refreshRaw != "" {
		if err := s.tokens.RevokeByHash(ctx, utils.HashRefreshRaw(refreshRaw)); err != nil {
			log.Printf("logout: refresh revocation failed: %v", err)
		}
	}
}

// ForceLogout terminates a session after an invalid refresh attempt.  Same
// semantics as Logout minus the ledger write: the token that triggered the
// forced logout is already revoked or never existed.
func (s *AuthService) ForceLogout(ctx context.Context, accessRaw string) {
	if accessRaw != "" {
		if err := s.issuer.Invalidate(ctx, accessRaw); err != nil {
			log.Printf("forced logout: access invalidation failed: %v", err)
		}
	}
}

// Session describes the authenticated user for introspection.
type Session struct {
	Name     string
	Email    string
	ImageURL *string
}

// GetSession returns the profile fields and the avatar URL when one exists.
func (s *AuthService) GetSession(ctx context.Context, userID uint64) (Session, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return Session{}, fmt.Errorf("load user: %w", err)
	}
	out := Session{Name: u.Name, Email: u.Email}
	img, err := s.images.GetByOwner(ctx, model.OwnerUser, userID)
	if err == nil {
		out.ImageURL = &img.URL
	} else if !errors.Is(err, repository.ErrNotFound) {
		return Session{}, fmt.Errorf("load image: %w", err)
	}
	return out, nil
}

// UpdateInput carries the optional profile fields.  A nil pointer means the
// field was absent from the request and stays untouched.
type UpdateInput struct {
	Name     *string
	Email    *string
	Password *string
	Image    []byte
}

// UpdateProfile applies the supplied field mutations, then replaces the
// avatar as a second, best-effort step.  Field changes and avatar upload
// are independent concerns: a storage outage must not block a password
// change, so every error in the image step is logged and swallowed.
func (s *AuthService) UpdateProfile(ctx context.Context, userID uint64, in UpdateInput) error {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("load user: %w", err)
	}

	if in.Email != nil {
		taken, err := s.users.EmailTakenByOther(ctx, *in.Email, userID)
		if err != nil {
			return fmt.Errorf("check email: %w", err)
		}
		if taken {
			return repository.ErrEmailExists
		}
		u.Email = *in.Email
	}
	if in.Name != nil {
		u.Name = *in.Name
	}
	if in.Password != nil {
		hash, err := utils.HashPassword(*in.Password, s.cfg.BcryptCost)
		if err != nil {
			return fmt.Errorf("hash password: %w", err)
		}
		u.PasswordHash = hash
	}

	if err := s.users.Update(ctx, u); err != nil {
		return err
	}

	if in.Image != nil {
		// The avatar step is explicitly best effort: its error is logged
		// and dropped here, never surfaced as a failed update.
		if err := s.replaceAvatar(ctx, userID, in.Image); err != nil {
			log.Printf("update: avatar replacement skipped: %v", err)
		}
	}
	return nil
}

// replaceAvatar destroys the previous attachment remotely and locally, then
// uploads and attaches the new one.  The caller decides what its error is
// worth; UpdateProfile discards it.
func (s *AuthService) replaceAvatar(ctx context.Context, userID uint64, data []byte) error {
	old, err := s.images.GetByOwner(ctx, model.OwnerUser, userID)
	switch {
	case err == nil:
		if derr := s.store.Destroy(ctx, old.PublicID); derr != nil {
			log.Printf("update: destroy old image %s: %v", old.PublicID, derr)
		}
		if derr := s.images.Delete(ctx, old.ID); derr != nil {
			return fmt.Errorf("delete old image row: %w", derr)
		}
	case !errors.Is(err, repository.ErrNotFound):
		return fmt.Errorf("load old image: %w", err)
	}

	up, err := s.uploadImage(ctx, data, userID)
	if err != nil {
		return fmt.Errorf("upload image: %w", err)
	}
	img := &model.Image{PublicID: up.PublicID, URL: up.URL, OwnerType: model.OwnerUser, OwnerID: userID}
	if err := s.images.Attach(ctx, img); err != nil {
		if derr := s.store.Destroy(ctx, up.PublicID); derr != nil {
			log.Printf("update: orphan cleanup failed for %s: %v", up.PublicID, derr)
		}
		return fmt.Errorf("attach image: %w", err)
	}
	return nil
}

// uploadImage sends the payload to the gateway under the user's folder
// scope, bounded by the configured timeout so a hung provider cannot stall
// a registration transaction indefinitely.
func (s *AuthService) uploadImage(ctx context.Context, data []byte, userID uint64) (storage.UploadResult, error) {
	upCtx, cancel := context.WithTimeout(ctx, s.cfg.UploadTimeout)
	defer cancel()
	return s.store.Upload(upCtx, data, "users/"+strconv.FormatUint(userID, 10))
}
