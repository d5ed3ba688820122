package model

import "time"

// Roles recognised by the access token middleware.
const (
	RoleCustomer = "CUSTOMER"
	RoleAdmin    = "ADMIN"
)

// User represents an application user record as stored in the
// `users` table. Users are never hard-deleted; IsActive=false is the
// soft-disable flag and makes every session of the user invalid.
//
// Fields:
//
//	ID              – primary key identifier of the user.
//	Email           – unique, normalised (lower-cased) email address.
//	PasswordHash    – bcrypt hashed password.
//	Role            – CUSTOMER or ADMIN.
//	IsActive        – whether the account may authenticate.
//	RefreshFamilyID – token family issued by the most recent login.
//	CreatedAt       – timestamp of creation.
//	UpdatedAt       – timestamp of last update.
type User struct {
	ID              uint64    // users.id
	Email           string    // users.email
	PasswordHash    string    // users.password_hash
	Role            string    // users.role
	IsActive        bool      // users.is_active
	RefreshFamilyID string    // users.refresh_family_id (empty before first login)
	CreatedAt       time.Time // users.created_at
	UpdatedAt       time.Time // users.updated_at
}

// RefreshToken models an entry in the `refresh_tokens` table. Each
// record belongs to a token family: the lineage of refresh tokens
// descended from one login. The plain token is not stored; only its
// SHA‑256 hash.
//
// At any instant a family has at most one current record, i.e. one
// with both SupersededAt and RevokedAt unset.
//
// Fields:
//
//	ID           – primary key identifier.
//	FamilyID     – uuid of the token family.
//	UserID       – owner of the token.
//	TokenHash    – SHA‑256 hex digest of the token value.
//	IssuedAt     – when the record was created.
//	ExpiresAt    – expiration timestamp of the token.
//	SupersededAt – when the token was exchanged for its successor.
//	RevokedAt    – when the family was revoked (logout or reuse).
type RefreshToken struct {
	ID           uint64     // refresh_tokens.id
	FamilyID     string     // refresh_tokens.family_id
	UserID       uint64     // refresh_tokens.user_id
	TokenHash    string     // refresh_tokens.token_hash
	IssuedAt     time.Time  // refresh_tokens.issued_at
	ExpiresAt    time.Time  // refresh_tokens.expires_at
	SupersededAt *time.Time // refresh_tokens.superseded_at (nullable)
	RevokedAt    *time.Time // refresh_tokens.revoked_at (nullable)
}

// Current reports whether the record is the live head of its family.
func (t RefreshToken) Current() bool {
	return t.SupersededAt == nil && t.RevokedAt == nil
}

// Expired reports whether the token is past its expiry at now.
func (t RefreshToken) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}
