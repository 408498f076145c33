package auth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/twofold/corner/internal/apperr"
	"github.com/twofold/corner/internal/mail"
	"github.com/twofold/corner/internal/user"
)

const (
	codeTTL  = 2 * time.Minute
	tokenTTL = 30 * 24 * time.Hour
)

// ErrInvalidCode is returned when the provided code does not match.
var ErrInvalidCode = errors.New("invalid login code")

// CodeStore persists sign-in codes.
type CodeStore interface {
	Issue(ctx context.Context, email, code string, expiresAt time.Time) error
	Pending(ctx context.Context, email string) (*loginCode, error)
	Redeem(ctx context.Context, id string) error
}

// Users resolves and creates accounts.
type Users interface {
	GetByEmail(ctx context.Context, email string) (*user.User, error)
	Create(ctx context.Context, email string, displayName *string) (*user.User, error)
}

// VerifyResult holds the result of a successful code verification.
type VerifyResult struct {
	IsNewUser bool
	Token     string
	ExpiresAt time.Time
	User      *user.User
}

// Service contains the business logic for email sign-in.
type Service struct {
	repo   CodeStore
	users  Users
	mailer mail.Mailer
	secret []byte
	now    func() time.Time
}

// NewService creates a new auth Service.
func NewService(repo CodeStore, users Users, mailer mail.Mailer, jwtSecret string) *Service {
	return &Service{repo: repo, users: users, mailer: mailer, secret: []byte(jwtSecret), now: time.Now}
}

// SendCode generates a 6-digit code, persists it and mails it.
func (s *Service) SendCode(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	code, err := generateCode()
	if err != nil {
		return fmt.Errorf("generate code: %w", err)
	}

	if err := s.repo.Issue(ctx, email, code, s.now().Add(codeTTL)); err != nil {
		return fmt.Errorf("store code: %w", err)
	}

	if err := s.mailer.SendLoginCode(ctx, email, code); err != nil {
		return fmt.Errorf("send code: %w", err)
	}
	return nil
}

// Verify validates the code and signs the caller in, creating the account on
// first sign-in.
func (s *Service) Verify(ctx context.Context, email, code string, displayName *string) (*VerifyResult, error) {
	email = normalizeEmail(email)
	active, err := s.repo.Pending(ctx, email)
	if errors.Is(err, ErrCodeNotFound) {
		return nil, invalidCode()
	}
	if err != nil {
		return nil, fmt.Errorf("load code: %w", err)
	}
	if subtle.ConstantTimeCompare([]byte(active.Code), []byte(code)) != 1 {
		return nil, invalidCode()
	}

	err = s.repo.Redeem(ctx, active.ID)
	if errors.Is(err, ErrCodeNotFound) {
		return nil, invalidCode()
	}
	if err != nil {
		return nil, fmt.Errorf("redeem code: %w", err)
	}

	result := &VerifyResult{}
	u, err := s.users.GetByEmail(ctx, email)
	switch {
	case err == nil:
	case apperr.Is(err, apperr.KindNotFound):
		u, err = s.users.Create(ctx, email, displayName)
		if err != nil {
			return nil, fmt.Errorf("create user: %w", err)
		}
		result.IsNewUser = true
	default:
		return nil, fmt.Errorf("get user: %w", err)
	}

	token, expiresAt, err := s.issueToken(u.ID, u.Email)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}
	result.Token = token
	result.ExpiresAt = expiresAt
	result.User = u
	return result, nil
}

// issueToken creates a signed JWT for the given user.
func (s *Service) issueToken(userID, email string) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(tokenTTL)
	claims := jwt.MapClaims{
		"sub":   userID,
		"email": email,
		"iat":   now.Unix(),
		"exp":   expiresAt.Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	return signed, expiresAt, err
}

// generateCode generates a cryptographically secure 6-digit code.
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func invalidCode() error {
	return &apperr.Error{Kind: apperr.KindValidation, Message: "invalid or expired code", Err: ErrInvalidCode}
}
