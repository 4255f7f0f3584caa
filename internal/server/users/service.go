package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/KossiPascal/atlas-kanban/internal/common"
	"github.com/KossiPascal/atlas-kanban/internal/dbx"
	"github.com/KossiPascal/atlas-kanban/internal/models"
	"github.com/KossiPascal/atlas-kanban/internal/server/auth"
	"github.com/KossiPascal/atlas-kanban/internal/server/config"
)

// DocumentWriter mirrors accounts into the synced users collection so every
// client sees the member list.
type DocumentWriter interface {
	Upsert(ctx context.Context, table string, rec models.Record) error
}

// Service implements registration, login, and refresh token rotation.
type Service struct {
	db                           *sql.DB
	repo                         Repository
	documents                    DocumentWriter
	jwtSecret                    []byte
	accessTokenValidityDuration  time.Duration
	refreshTokenValidityDuration time.Duration
}

// NewService constructs the account service. db is used to run token rotation
// transactionally.
func NewService(db *sql.DB, repo Repository, documents DocumentWriter, cfg *config.Config) *Service {
	return &Service{
		db:                           db,
		repo:                         repo,
		documents:                    documents,
		jwtSecret:                    []byte(cfg.SecretKey),
		accessTokenValidityDuration:  cfg.AccessTokenValidityDuration,
		refreshTokenValidityDuration: cfg.RefreshTokenValidityDuration,
	}
}

func (s *Service) generateRefreshToken() (string, error) {
	return common.MakeRandHexString(32)
}

func (s *Service) generateTokenPair(ctx context.Context, db dbx.DBTX, user *User) (*TokenPair, error) {
	accessToken, err := auth.GenerateToken(user.ID, user.Admin, s.jwtSecret, s.accessTokenValidityDuration)
	if err != nil {
		return nil, fmt.Errorf("error generating access token: %w", err)
	}

	refreshToken, err := s.generateRefreshToken()
	if err != nil {
		return nil, fmt.Errorf("error generating refresh token: %w", err)
	}

	refreshRepo := NewPostgresRefreshTokenRepository(db)
	if err := refreshRepo.Create(ctx, user.ID, refreshToken, s.refreshTokenValidityDuration); err != nil {
		return nil, fmt.Errorf("error storing refresh token: %w", err)
	}

	return &TokenPair{AccessToken: accessToken, RefreshToken: refreshToken}, nil
}

// Register creates an account and signs the new user in. The account is
// mirrored into the synced users collection.
func (s *Service) Register(ctx context.Context, email, password string) (*TokenPair, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, common.ErrInvalidCredentials
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("error hashing password: %w", err)
	}

	user, err := s.repo.Create(ctx, &User{
		Email:        email,
		PasswordHash: string(hash),
		DisplayName:  displayNameFromEmail(email),
	})
	if err != nil {
		return nil, err
	}

	if err := s.mirrorAccount(ctx, user); err != nil {
		return nil, err
	}

	return s.generateTokenPair(ctx, s.db, user)
}

// displayNameFromEmail derives an initial display name from the address's
// local part.
func displayNameFromEmail(email string) string {
	if at := strings.IndexByte(email, '@'); at > 0 {
		return email[:at]
	}
	return email
}

// mirrorAccount upserts the public projection of an account into the users
// collection.
func (s *Service) mirrorAccount(ctx context.Context, user *User) error {
	now := models.Now()
	rec := models.Record{
		ID:        user.ID,
		Owner:     user.ID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := rec.EncodePayload(models.User{
		Email:       user.Email,
		DisplayName: user.DisplayName,
		Color:       user.Color,
		Admin:       user.Admin,
	}); err != nil {
		return err
	}
	if err := s.documents.Upsert(ctx, string(models.TableUsers), rec); err != nil {
		return fmt.Errorf("error mirroring account: %w", err)
	}
	return nil
}

// Login verifies credentials and issues a token pair.
func (s *Service) Login(ctx context.Context, email, password string) (*TokenPair, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	user, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, common.ErrInvalidCredentials
		}
		return nil, err
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, common.ErrInvalidCredentials
	}

	return s.generateTokenPair(ctx, s.db, user)
}

// Refresh exchanges a live refresh token for a new token pair. The old token
// is revoked and the new one stored in the same transaction.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	token, err := NewPostgresRefreshTokenRepository(s.db).Find(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, common.ErrRefreshTokenExpired
		}
		return nil, err
	}

	if token.Expires.Before(time.Now()) {
		return nil, common.ErrRefreshTokenExpired
	}

	user, err := s.repo.Get(ctx, token.UserID)
	if err != nil {
		return nil, err
	}

	var tokenPair *TokenPair
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := NewPostgresRefreshTokenRepository(tx).Delete(ctx, refreshToken); err != nil {
			return err
		}
		tokenPair, err = s.generateTokenPair(ctx, tx, user)
		return err
	})
	if err != nil {
		return nil, err
	}

	return tokenPair, nil
}
