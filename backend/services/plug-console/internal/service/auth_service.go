package service

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"smartplug/backend/services/plug-console/internal/models"
	"smartplug/backend/services/plug-console/internal/password"
	"smartplug/backend/services/plug-console/internal/repository"
)

var (
	// ErrEmailInUse is returned when attempting to register duplicate email.
	ErrEmailInUse = errors.New("auth: email already registered")
	// ErrInvalidCredentials represents login failure.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	// ErrMissingCredentials is returned when email or password is blank.
	ErrMissingCredentials = errors.New("auth: email and password are required")
)

// UserRepository is the storage used by AuthService.
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByEmail(ctx context.Context, email string) (*models.User, error)
}

// AuthService registers users and logs them in.
type AuthService struct {
	repo   UserRepository
	hasher password.Hasher
	tokens *TokenService
	logger *zap.Logger
}

// NewAuthService builds AuthService.
func NewAuthService(repo UserRepository, hasher password.Hasher, tokens *TokenService, logger *zap.Logger) *AuthService {
	return &AuthService{
		repo:   repo,
		hasher: hasher,
		tokens: tokens,
		logger: logger.Named("auth"),
	}
}

// Signup registers a new user.
func (s *AuthService) Signup(ctx context.Context, email, pass string) (*models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || pass == "" {
		return nil, ErrMissingCredentials
	}

	if _, err := s.repo.GetByEmail(ctx, email); err == nil {
		return nil, ErrEmailInUse
	} else if !errors.Is(err, repository.ErrUserNotFound) {
		return nil, err
	}

	hash, err := s.hasher.Hash(pass)
	if err != nil {
		return nil, err
	}

	user := &models.User{Email: email, PasswordHash: hash}
	if err := s.repo.Create(ctx, user); err != nil {
		return nil, err
	}

	s.logger.Info("user signed up", zap.Int64("user_id", user.ID))
	return user, nil
}

// Login checks credentials and issues a token.
func (s *AuthService) Login(ctx context.Context, email, pass string) (string, *models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || pass == "" {
		return "", nil, ErrInvalidCredentials
	}

	user, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return "", nil, ErrInvalidCredentials
		}
		return "", nil, err
	}

	if err := s.hasher.Compare(user.PasswordHash, pass); err != nil {
		return "", nil, ErrInvalidCredentials
	}

	token, err := s.tokens.GenerateToken(user.ID, user.Email)
	if err != nil {
		return "", nil, err
	}
	return token, user, nil
}
