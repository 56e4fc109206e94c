package service

import (
	"context"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/union-api/internal/models"
	appErrors "github.com/noah-isme/union-api/pkg/errors"
)

// legacyTokenMinLength is the shortest credential treated as a legacy payload.
const legacyTokenMinLength = 100

type authUserRepository interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	UpdateLastLogin(ctx context.Context, id string, ts time.Time) error
}

// AuthConfig defines configuration for authentication flows.
type AuthConfig struct {
	AccessTokenSecret string
	AccessTokenExpiry time.Duration
	Issuer            string
	// AllowLegacyTokens accepts unsigned base64 JSON credentials.
	AllowLegacyTokens bool
	// TrustUnresolvedTokens builds an identity from a verified token whose
	// subject is missing from the user store.
	TrustUnresolvedTokens bool
}

// AuthService issues and verifies bearer credentials.
type AuthService struct {
	repo      authUserRepository
	audit     auditLogger
	validator *validator.Validate
	logger    *zap.Logger
	config    AuthConfig
	now       func() time.Time
}

// NewAuthService constructs an AuthService instance.
func NewAuthService(repo authUserRepository, audit auditLogger, validate *validator.Validate, logger *zap.Logger, config AuthConfig) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if config.AccessTokenExpiry <= 0 {
		config.AccessTokenExpiry = 24 * time.Hour
	}
	return &AuthService{repo: repo, audit: audit, validator: validate, logger: logger, config: config, now: time.Now}
}

// Login checks the password and issues a signed access token.
func (s *AuthService) Login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid login payload")
	}

	user, err := s.repo.FindByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrInvalidCredentials
		}
		return nil, appErrors.Internal(err, "failed to fetch user")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, appErrors.ErrInvalidCredentials
	}
	if !user.Active {
		return nil, appErrors.ErrInactiveAccount
	}

	issuedAt := s.now().UTC()
	token, err := s.GenerateToken(user, issuedAt)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to create access token")
	}

	if err := s.repo.UpdateLastLogin(ctx, user.ID, issuedAt); err != nil {
		s.logger.Warn("failed to update last login", zap.Error(err))
	}
	recordAudit(ctx, s.audit, s.logger, models.IdentityFromUser(user), models.AuditActionLogin, models.AuditResourceAuth, user.ID, map[string]string{"status": "success"})

	return &models.LoginResponse{
		AccessToken: token,
		ExpiresIn:   int64(s.config.AccessTokenExpiry.Seconds()),
		IssuedAt:    issuedAt,
		User: models.UserInfo{
			ID:       user.ID,
			Email:    user.Email,
			FullName: user.FullName,
			Role:     user.Role,
			IsAdmin:  user.Role == models.RoleAdmin,
		},
	}, nil
}

// GenerateToken signs an HS256 access token for user.
func (s *AuthService) GenerateToken(user *models.User, issuedAt time.Time) (string, error) {
	claims := &models.JWTClaims{
		UserID: user.ID,
		Email:  user.Email,
		Role:   user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.config.Issuer,
			Subject:   user.ID,
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(s.config.AccessTokenExpiry)),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.config.AccessTokenSecret))
}

// Authenticate resolves a raw bearer credential into an Identity.
func (s *AuthService) Authenticate(ctx context.Context, token string) (*models.Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, appErrors.ErrUnauthenticated
	}

	if s.config.AllowLegacyTokens && isLegacyShape(token) {
		if identity, ok := s.parseLegacy(token); ok {
			return identity, nil
		}
		// Undecodable or expired legacy payloads fall through and fail JWT parsing.
	}

	claims, err := s.ValidateToken(token)
	if err != nil {
		return nil, err
	}

	subject := claims.UserID
	if subject == "" {
		subject = claims.Subject
	}
	if subject == "" {
		return nil, appErrors.Clone(appErrors.ErrInvalidCredential, "token has no subject")
	}

	user, err := s.repo.FindByID(ctx, subject)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Internal(err, "failed to resolve token subject")
		}
		if s.config.TrustUnresolvedTokens && claims.UserID != "" && claims.Email != "" {
			return adHocIdentity(claims), nil
		}
		return nil, appErrors.ErrUserNotFound
	}
	if !user.Active {
		return nil, appErrors.ErrInactiveAccount
	}
	return models.IdentityFromUser(user), nil
}

// ValidateToken parses and validates an access token returning the claims.
func (s *AuthService) ValidateToken(tokenString string) (*models.JWTClaims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)
	token, err := parser.ParseWithClaims(tokenString, &models.JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.config.AccessTokenSecret), nil
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInvalidCredential.Code, appErrors.ErrInvalidCredential.Status, appErrors.ErrInvalidCredential.Message)
	}

	claims, ok := token.Claims.(*models.JWTClaims)
	if !ok || !token.Valid {
		return nil, appErrors.Clone(appErrors.ErrInvalidCredential, "invalid token claims")
	}
	return claims, nil
}

func isLegacyShape(token string) bool {
	return len(token) > legacyTokenMinLength && !strings.Contains(token, ".")
}

func (s *AuthService) parseLegacy(token string) (*models.Identity, bool) {
	raw, err := decodeBase64(token)
	if err != nil {
		return nil, false
	}
	var payload models.LegacyTokenPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, false
	}
	if payload.Exp <= s.now().UnixMilli() || payload.UserID == "" {
		return nil, false
	}
	role := payload.Role
	if role == "" {
		role = models.RoleStudent
	}
	return &models.Identity{
		ID:      payload.UserID,
		Email:   payload.Email,
		Role:    role,
		IsAdmin: payload.IsAdmin || role == models.RoleAdmin,
		AdHoc:   true,
	}, true
}

func decodeBase64(token string) ([]byte, error) {
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding} {
		if raw, err := enc.DecodeString(token); err == nil {
			return raw, nil
		}
	}
	return nil, errors.New("not base64")
}

func adHocIdentity(claims *models.JWTClaims) *models.Identity {
	role := claims.Role
	if role == "" {
		role = models.RoleStudent
	}
	return &models.Identity{
		ID:      claims.UserID,
		Email:   claims.Email,
		Role:    role,
		IsAdmin: role == models.RoleAdmin,
		AdHoc:   true,
	}
}
