package service

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/storefront/internal/logger"
	"github.com/iliyamo/storefront/internal/metrics"
	"github.com/iliyamo/storefront/internal/model"
	"github.com/iliyamo/storefront/internal/queue"
	"github.com/iliyamo/storefront/internal/repository"
	"github.com/iliyamo/storefront/internal/utils"
)

const minPasswordLen = 8

// TokenConfig holds the signing secret and lifetimes of the token pair.
type TokenConfig struct {
	Secret     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	BcryptCost int
}

// Pair is the access/refresh token pair handed to a client.
type Pair struct {
	AccessToken      string    `json:"accessToken"`
	AccessExpiresAt  time.Time `json:"accessExpiresAt"`
	RefreshToken     string    `json:"refreshToken"`
	RefreshExpiresAt time.Time `json:"refreshExpiresAt"`
}

// TokenService authenticates users and manages their token families.
//
// Each login starts a family. Every refresh supersedes the family's current
// record and appends a successor; presenting a superseded record again is
// treated as theft and revokes every session of the user.
type TokenService struct {
	users   UserStore
	tokens  TokenStore
	cfg     TokenConfig
	events  emitter
	metrics *metrics.Collector
	now     func() time.Time

	// dummyHash keeps the cost of a login for an unknown email equal to
	// that of a wrong password.
	dummyHash string
}

func NewTokenService(users UserStore, tokens TokenStore, cfg TokenConfig, pub queue.Publisher, m *metrics.Collector) *TokenService {
	dummy, _ := utils.HashPassword("dummy-password-for-timing", cfg.BcryptCost)
	return &TokenService{
		users:     users,
		tokens:    tokens,
		cfg:       cfg,
		events:    emitter{pub: pub, metrics: m},
		metrics:   m,
		now:       func() time.Time { return time.Now().UTC() },
		dummyHash: dummy,
	}
}

// SetClock overrides the time source; used by tests.
func (s *TokenService) SetClock(now func() time.Time) { s.now = now }

// Register creates an active customer account.
func (s *TokenService) Register(ctx context.Context, email, password string) (model.User, error) {
	email = strings.TrimSpace(email)
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return model.User{}, validation("invalid email")
	}
	if len(password) < minPasswordLen {
		return model.User{}, validation("password must be at least 8 characters")
	}
	hash, err := utils.HashPassword(password, s.cfg.BcryptCost)
	if err != nil {
		return model.User{}, internal(err)
	}
	u := model.User{Email: email, PasswordHash: hash, Role: model.RoleCustomer, IsActive: true}
	if err := s.users.Create(ctx, &u); err != nil {
		if errors.Is(err, repository.ErrEmailExists) {
			return model.User{}, newError(KindConflict, "email already registered")
		}
		return model.User{}, internal(err)
	}
	return u, nil
}

// Login checks credentials and issues a pair in a new family. Unknown
// email, wrong password and disabled account are indistinguishable.
func (s *TokenService) Login(ctx context.Context, email, password string) (model.User, Pair, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return model.User{}, Pair{}, validation("email and password are required")
	}
	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			utils.VerifyPassword(s.dummyHash, password)
			return model.User{}, Pair{}, newError(KindInvalidCredentials, "invalid email or password")
		}
		return model.User{}, Pair{}, internal(err)
	}
	if !utils.VerifyPassword(u.PasswordHash, password) || !u.IsActive {
		return model.User{}, Pair{}, newError(KindInvalidCredentials, "invalid email or password")
	}
	pair, err := s.IssuePair(ctx, u)
	if err != nil {
		return model.User{}, Pair{}, err
	}
	return u, pair, nil
}

// IssuePair starts a fresh token family for u and returns its first pair.
func (s *TokenService) IssuePair(ctx context.Context, u model.User) (Pair, error) {
	now := s.now()
	family := uuid.NewString()
	rt, err := utils.NewRefreshToken(s.cfg.RefreshTTL, now)
	if err != nil {
		return Pair{}, internal(err)
	}
	rec := model.RefreshToken{
		FamilyID:  family,
		UserID:    u.ID,
		TokenHash: utils.HashRefreshRaw(rt.Raw),
		IssuedAt:  now,
		ExpiresAt: rt.Exp,
	}
	if err := s.tokens.Create(ctx, &rec); err != nil {
		return Pair{}, internal(err)
	}
	if err := s.users.SetRefreshFamily(ctx, u.ID, family); err != nil {
		return Pair{}, internal(err)
	}
	at, err := utils.NewAccessToken(s.cfg.Secret, u.ID, u.Role, family, s.cfg.AccessTTL, now)
	if err != nil {
		return Pair{}, internal(err)
	}
	logger.From(ctx).Info("session started", logger.UserID(u.ID), logger.Family(family))
	return Pair{AccessToken: at.Token, AccessExpiresAt: at.Exp, RefreshToken: rt.Raw, RefreshExpiresAt: rt.Exp}, nil
}

// Refresh exchanges a refresh token for a new pair in the same family.
func (s *TokenService) Refresh(ctx context.Context, raw string) (Pair, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Pair{}, validation("refreshToken is required")
	}
	log := logger.From(ctx)
	now := s.now()

	rec, err := s.tokens.GetByHash(ctx, utils.HashRefreshRaw(raw))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.metrics.Refresh("invalid")
			return Pair{}, newError(KindInvalidSession, "session not found")
		}
		return Pair{}, internal(err)
	}
	if rec.RevokedAt != nil {
		s.metrics.Refresh("invalid")
		return Pair{}, newError(KindInvalidSession, "session revoked")
	}
	if rec.SupersededAt != nil {
		return Pair{}, s.compromised(ctx, rec)
	}
	if rec.Expired(now) {
		s.metrics.Refresh("invalid")
		return Pair{}, newError(KindInvalidSession, "session expired")
	}

	u, err := s.users.GetByID(ctx, rec.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.metrics.Refresh("invalid")
			return Pair{}, newError(KindInvalidSession, "session not found")
		}
		return Pair{}, internal(err)
	}
	if !u.IsActive {
		s.metrics.Refresh("invalid")
		return Pair{}, newError(KindInvalidSession, "account disabled")
	}

	rt, err := utils.NewRefreshToken(s.cfg.RefreshTTL, now)
	if err != nil {
		return Pair{}, internal(err)
	}
	next := model.RefreshToken{
		FamilyID:  rec.FamilyID,
		UserID:    rec.UserID,
		TokenHash: utils.HashRefreshRaw(rt.Raw),
		IssuedAt:  now,
		ExpiresAt: rt.Exp,
	}
	if err := s.tokens.Rotate(ctx, rec.ID, &next); err != nil {
		if errors.Is(err, repository.ErrTokenSuperseded) {
			// Lost a race with another exchange of the same token.
			return Pair{}, s.compromised(ctx, rec)
		}
		return Pair{}, internal(err)
	}
	at, err := utils.NewAccessToken(s.cfg.Secret, u.ID, u.Role, rec.FamilyID, s.cfg.AccessTTL, now)
	if err != nil {
		return Pair{}, internal(err)
	}
	s.metrics.Refresh("rotated")
	log.Debug("refresh token rotated", logger.UserID(u.ID), logger.Family(rec.FamilyID))
	return Pair{AccessToken: at.Token, AccessExpiresAt: at.Exp, RefreshToken: rt.Raw, RefreshExpiresAt: rt.Exp}, nil
}

// compromised handles reuse of a superseded token: the family and every
// other session of the user are revoked.
func (s *TokenService) compromised(ctx context.Context, rec model.RefreshToken) error {
	log := logger.From(ctx)
	log.Warn("refresh token reuse detected", logger.UserID(rec.UserID), logger.Family(rec.FamilyID))
	s.metrics.Refresh("reuse_detected")

	if err := s.tokens.RevokeFamily(ctx, rec.FamilyID); err != nil {
		return internal(err)
	}
	if err := s.tokens.RevokeUser(ctx, rec.UserID); err != nil {
		return internal(err)
	}
	s.events.emit(ctx, queue.EventSessionCompromised, rec.FamilyID,
		queue.SessionCompromisedPayload{UserID: rec.UserID, FamilyID: rec.FamilyID})
	return newError(KindSessionCompromised, "session compromised, sign in again")
}

// VerifyAccess checks signature and expiry of an access token. It never
// reads storage.
func (s *TokenService) VerifyAccess(raw string) (utils.AccessClaims, error) {
	claims, err := utils.ParseAccessToken(s.cfg.Secret, raw, s.now())
	switch {
	case err == nil:
		return claims, nil
	case errors.Is(err, utils.ErrAccessExpired):
		return utils.AccessClaims{}, newError(KindExpiredAccess, "access token expired")
	default:
		return utils.AccessClaims{}, newError(KindInvalidAccess, "invalid access token")
	}
}

// RevokeFamily ends one session. An empty familyID falls back to the
// family of the user's latest login.
func (s *TokenService) RevokeFamily(ctx context.Context, userID uint64, familyID string) error {
	if familyID == "" {
		u, err := s.users.GetByID(ctx, userID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrNotFound
			}
			return internal(err)
		}
		familyID = u.RefreshFamilyID
	}
	if familyID == "" {
		return nil
	}
	if err := s.tokens.RevokeFamily(ctx, familyID); err != nil {
		return internal(err)
	}
	logger.From(ctx).Info("session revoked", logger.UserID(userID), logger.Family(familyID))
	return nil
}

// RevokeAll ends every session of the user.
func (s *TokenService) RevokeAll(ctx context.Context, userID uint64) error {
	if err := s.tokens.RevokeUser(ctx, userID); err != nil {
		return internal(err)
	}
	logger.From(ctx).Info("all sessions revoked", logger.UserID(userID))
	return nil
}

// ChangePassword replaces the password, revokes every session and returns
// a pair for a new session of the caller.
func (s *TokenService) ChangePassword(ctx context.Context, userID uint64, oldPassword, newPassword string) (Pair, error) {
	if len(newPassword) < minPasswordLen {
		return Pair{}, validation("password must be at least 8 characters")
	}
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return Pair{}, ErrNotFound
		}
		return Pair{}, internal(err)
	}
	if !utils.VerifyPassword(u.PasswordHash, oldPassword) {
		return Pair{}, newError(KindInvalidCredentials, "current password is incorrect")
	}
	hash, err := utils.HashPassword(newPassword, s.cfg.BcryptCost)
	if err != nil {
		return Pair{}, internal(err)
	}
	if err := s.users.UpdatePassword(ctx, userID, hash); err != nil {
		return Pair{}, internal(err)
	}
	if err := s.RevokeAll(ctx, userID); err != nil {
		return Pair{}, err
	}
	return s.IssuePair(ctx, u)
}

// Me returns the user behind an access token.
func (s *TokenService) Me(ctx context.Context, userID uint64) (model.User, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.User{}, ErrNotFound
		}
		return model.User{}, internal(err)
	}
	return u, nil
}
