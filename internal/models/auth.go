package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Identity is the caller resolved from a bearer credential for one request.
type Identity struct {
	ID      string   `json:"id"`
	Email   string   `json:"email"`
	Role    UserRole `json:"role"`
	IsAdmin bool     `json:"is_admin"`
	// AdHoc marks identities built from token claims without a matching user row.
	AdHoc bool `json:"-"`
}

// CanAdminister reports whether the identity may run admin-only operations.
func (i *Identity) CanAdminister() bool {
	if i == nil {
		return false
	}
	return i.Role == RoleAdmin || i.IsAdmin
}

// IdentityFromUser derives the request identity from a stored user.
func IdentityFromUser(u *User) *Identity {
	return &Identity{
		ID:      u.ID,
		Email:   u.Email,
		Role:    u.Role,
		IsAdmin: u.Role == RoleAdmin,
	}
}

// LoginRequest holds credentials for authenticating a user.
type LoginRequest struct {
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required"`
	IP        string `json:"-"`
	UserAgent string `json:"-"`
}

// LoginResponse returns the issued token and user info.
type LoginResponse struct {
	AccessToken string    `json:"access_token"`
	ExpiresIn   int64     `json:"expires_in"`
	User        UserInfo  `json:"user"`
	IssuedAt    time.Time `json:"issued_at"`
}

// UserInfo describes the authenticated user in responses.
type UserInfo struct {
	ID       string   `json:"id"`
	Email    string   `json:"email"`
	FullName string   `json:"full_name"`
	Role     UserRole `json:"role"`
	IsAdmin  bool     `json:"is_admin"`
}

// JWTClaims represents the signed access token payload. The camelCase names
// match tokens minted by the web client's auth flow.
type JWTClaims struct {
	UserID string   `json:"userId"`
	Email  string   `json:"email,omitempty"`
	Role   UserRole `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// LegacyTokenPayload is the unsigned base64 JSON credential issued by the
// older admin console. Exp is expressed in epoch milliseconds.
type LegacyTokenPayload struct {
	UserID  string   `json:"userId"`
	Email   string   `json:"email"`
	Role    UserRole `json:"role"`
	IsAdmin bool     `json:"isAdmin"`
	Exp     int64    `json:"exp"`
}
