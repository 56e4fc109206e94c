package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/union-api/internal/models"
	appErrors "github.com/noah-isme/union-api/pkg/errors"
)

type userRepository interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
}

// BootstrapAdminRequest describes the administrator seeded at startup.
type BootstrapAdminRequest struct {
	Email    string `validate:"required,email"`
	FullName string `validate:"required"`
	Password string `validate:"required,min=8"`
}

// UserService manages identity store records.
type UserService struct {
	repo      userRepository
	validator *validator.Validate
	logger    *zap.Logger
	hashCost  int
}

// NewUserService creates an instance of UserService.
func NewUserService(repo userRepository, validate *validator.Validate, logger *zap.Logger) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &UserService{repo: repo, validator: validate, logger: logger, hashCost: bcrypt.DefaultCost}
}

// EnsureAdmin creates the administrator account unless the email is taken.
// It reports whether a new row was written.
func (s *UserService) EnsureAdmin(ctx context.Context, req BootstrapAdminRequest) (bool, error) {
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if err := s.validator.Struct(req); err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid bootstrap admin")
	}

	existing, err := s.repo.FindByEmail(ctx, req.Email)
	switch {
	case err == nil:
		if existing.Role != models.RoleAdmin {
			s.logger.Warn("bootstrap admin email belongs to a non-admin account", zap.String("email", req.Email))
		}
		return false, nil
	case !errors.Is(err, sql.ErrNoRows):
		return false, appErrors.Internal(err, "failed to look up bootstrap admin")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.hashCost)
	if err != nil {
		return false, appErrors.Internal(err, "failed to hash password")
	}

	user := &models.User{
		Email:        req.Email,
		PasswordHash: string(hash),
		FullName:     req.FullName,
		Role:         models.RoleAdmin,
		Active:       true,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return false, appErrors.Internal(err, "failed to create bootstrap admin")
	}
	s.logger.Info("bootstrap admin created", zap.String("user_id", user.ID), zap.String("email", user.Email))
	return true, nil
}
