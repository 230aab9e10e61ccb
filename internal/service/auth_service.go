package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/phyn2-2/medasset-sentinel/internal/models"
	"github.com/phyn2-2/medasset-sentinel/internal/repository"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const defaultTokenTTL = time.Hour

var (
	ErrInvalidPassword = errors.New("invalid password")
	ErrUserNotFound    = errors.New("operator not found")
	ErrUserInactive    = errors.New("operator is deactivated")
	ErrInvalidToken    = errors.New("invalid token")
)

// AuthService signs operators in and resolves bearer tokens back to an active
// operator. Deactivating an operator revokes tokens already issued to them.
type AuthService struct {
	operators  repository.OperatorRepo
	signingKey []byte
	tokenTTL   time.Duration
	now        func() time.Time
}

func NewAuthService(repo repository.OperatorRepo, signingKey string, tokenTTL time.Duration, now func() time.Time) *AuthService {
	if tokenTTL <= 0 {
		tokenTTL = defaultTokenTTL
	}
	if now == nil {
		now = time.Now
	}
	return &AuthService{
		operators:  repo,
		signingKey: []byte(signingKey),
		tokenTTL:   tokenTTL,
		now:        now,
	}
}

// SignUp registers an active operator and returns its id.
func (s *AuthService) SignUp(ctx context.Context, username, password string) (int, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return 0, fmt.Errorf("%w: username is empty", models.ErrValidation)
	}
	hash, err := hashPassword(password)
	if err != nil {
		return 0, err
	}
	return s.operators.Create(ctx, models.User{
		Username:     username,
		PasswordHash: hash,
		Active:       true,
		CreatedAt:    s.now().UTC(),
	})
}

// Claims defines JWT claims
type Claims struct {
	jwt.RegisteredClaims
	UserID int `json:"user_id"`
}

// GenerateToken checks credentials and issues a signed token.
func (s *AuthService) GenerateToken(ctx context.Context, username, password string) (string, error) {
	username = strings.TrimSpace(username)
	u, err := s.operators.GetByUsername(ctx, username)
	switch {
	case errors.Is(err, models.ErrNotFound):
		return "", fmt.Errorf("%w: %q", ErrUserNotFound, username)
	case err != nil:
		return "", err
	case !u.Active:
		return "", fmt.Errorf("%w: %q", ErrUserInactive, username)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return "", ErrInvalidPassword
	}
	return s.issueToken(u.ID)
}

// Authenticate resolves accessToken to the id of an operator that still
// exists and is active. Store failures are not wrapped in ErrInvalidToken.
func (s *AuthService) Authenticate(ctx context.Context, accessToken string) (int, error) {
	id, err := s.ParseToken(accessToken)
	if err != nil {
		return 0, err
	}
	u, err := s.operators.GetByID(ctx, id)
	switch {
	case errors.Is(err, models.ErrNotFound):
		return 0, fmt.Errorf("%w: operator %d is gone", ErrInvalidToken, id)
	case err != nil:
		return 0, err
	case !u.Active:
		return 0, fmt.Errorf("%w: %w", ErrInvalidToken, ErrUserInactive)
	}
	return u.ID, nil
}

// SetOperatorActive enables or disables an operator account.
func (s *AuthService) SetOperatorActive(ctx context.Context, username string, active bool) error {
	username = strings.TrimSpace(username)
	if username == "" {
		return fmt.Errorf("%w: username is empty", models.ErrValidation)
	}
	return s.operators.SetActive(ctx, username, active)
}

// ParseToken verifies the signature and expiry and returns the operator id.
func (s *AuthService) ParseToken(accessToken string) (int, error) {
	token, err := jwt.ParseWithClaims(accessToken, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.signingKey, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID <= 0 {
		return 0, ErrInvalidToken
	}
	return claims.UserID, nil
}

func hashPassword(password string) (string, error) {
	if strings.TrimSpace(password) == "" {
		return "", fmt.Errorf("%w: password is empty", models.ErrValidation)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return "", fmt.Errorf("%w: %w", models.ErrValidation, err)
	}
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

func (s *AuthService) issueToken(userID int) (string, error) {
	now := s.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		UserID: userID,
	})
	return token.SignedString(s.signingKey)
}
