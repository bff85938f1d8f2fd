package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"polls-backend/auth"
	"polls-backend/models"
	"polls-backend/repository"
)

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrUsernameTaken      = errors.New("username already taken")
	ErrInvalidUsername    = errors.New("username must be 1 to 150 characters")
	ErrPasswordTooShort   = errors.New("password must be at least 8 characters")
)

const (
	MaxUsernameLength = 150
	MinPasswordLength = 8
)

// AccountService manages users and their session tokens
type AccountService struct {
	users  *repository.UserRepository
	tokens *auth.TokenManager
}

// NewAccountService creates the service
func NewAccountService(users *repository.UserRepository, tokens *auth.TokenManager) *AccountService {
	return &AccountService{users: users, tokens: tokens}
}

// Signup creates a regular user
func (s *AccountService) Signup(ctx context.Context, username, password string) (*models.User, error) {
	username = strings.TrimSpace(username)
	if n := utf8.RuneCountInString(username); n == 0 || n > MaxUsernameLength {
		return nil, ErrInvalidUsername
	}
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return nil, ErrPasswordTooShort
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &models.User{Username: username, PasswordHash: hash}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrUsernameTaken
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

// Login checks the password and issues a session token
func (s *AccountService) Login(ctx context.Context, username, password string) (*models.User, string, error) {
	user, err := s.users.ByUsername(ctx, strings.TrimSpace(username))
	if errors.Is(err, repository.ErrNotFound) {
		return nil, "", ErrInvalidCredentials
	}
	if err != nil {
		return nil, "", fmt.Errorf("load user: %w", err)
	}
	if !auth.CheckPassword(user.PasswordHash, password) {
		return nil, "", ErrInvalidCredentials
	}

	token, err := s.IssueToken(user)
	if err != nil {
		return nil, "", err
	}
	return user, token, nil
}

// IssueToken creates a session token for the user
func (s *AccountService) IssueToken(user *models.User) (string, error) {
	return s.tokens.Generate(user.ID)
}

// Authenticate resolves a session token to its user
func (s *AccountService) Authenticate(ctx context.Context, token string) (*models.User, error) {
	userID, err := s.tokens.Verify(token)
	if err != nil {
		return nil, err
	}

	user, err := s.users.ByID(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, auth.ErrInvalidToken
	}
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	return user, nil
}

// SessionTTL is how long an issued token stays valid
func (s *AccountService) SessionTTL() int {
	return int(s.tokens.TTL().Seconds())
}
