package locket

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/twofold/corner/internal/apperr"
	"github.com/twofold/corner/internal/mail"
	"github.com/twofold/corner/internal/memory"
)

const (
	inviteTTL      = 7 * 24 * time.Hour
	inviteCodeLen  = 8
	inviteAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
)

// Store is the persistence the locket service depends on.
type Store interface {
	Create(ctx context.Context, name, userID string) (*Locket, error)
	GetByID(ctx context.Context, id string) (*Locket, error)
	ListForUser(ctx context.Context, userID string) ([]Locket, error)
	IsMember(ctx context.Context, locketID, userID string) (bool, error)
	Pin(ctx context.Context, locketID, groupID, userID string) (*Pin, error)
	GetPin(ctx context.Context, locketID string) (*Pin, error)
	Unpin(ctx context.Context, locketID string) error
	CreateInvite(ctx context.Context, inv Invite) error
	AcceptInvite(ctx context.Context, code, userID string) (string, error)
}

// Memories is the slice of the memory service lockets use.
type Memories interface {
	InLocket(ctx context.Context, locketID, id string) (*memory.Group, error)
	Get(ctx context.Context, userID, id string) (*memory.Group, error)
	Spotlight(ctx context.Context, locketID string) (*memory.Spotlight, error)
}

// Pinned is the pin together with the memory it points at.
type Pinned struct {
	Pin
	Memory *memory.Group `json:"memory"`
}

// Service contains business logic for lockets.
type Service struct {
	repo     Store
	memories Memories
	mailer   mail.Mailer
	log      *zap.Logger
	now      func() time.Time
}

// NewService creates a new locket Service.
func NewService(repo Store, memories Memories, mailer mail.Mailer, log *zap.Logger) *Service {
	return &Service{repo: repo, memories: memories, mailer: mailer, log: log, now: time.Now}
}

// Create starts a new locket owned by userID.
func (s *Service) Create(ctx context.Context, userID, name string) (*Locket, error) {
	name = strings.TrimSpace(name)
	if name == "" || len(name) > 80 {
		return nil, apperr.Validation("name must be between 1 and 80 characters")
	}
	l, err := s.repo.Create(ctx, name, userID)
	if err != nil {
		return nil, fmt.Errorf("create locket: %w", err)
	}
	return l, nil
}

// List returns the caller's lockets.
func (s *Service) List(ctx context.Context, userID string) ([]Locket, error) {
	return s.repo.ListForUser(ctx, userID)
}

// Get returns a locket the caller belongs to.
func (s *Service) Get(ctx context.Context, userID, id string) (*Locket, error) {
	if err := s.requireMember(ctx, id, userID); err != nil {
		return nil, err
	}
	l, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, apperr.NotFound("locket not found")
	}
	return l, err
}

// IsMember reports whether userID belongs to locketID.
func (s *Service) IsMember(ctx context.Context, locketID, userID string) (bool, error) {
	return s.repo.IsMember(ctx, locketID, userID)
}

// Pin puts a memory of the locket on the fridge, replacing the previous one.
func (s *Service) Pin(ctx context.Context, userID, locketID, memoryID string) (*Pinned, error) {
	if err := s.requireMember(ctx, locketID, userID); err != nil {
		return nil, err
	}
	g, err := s.memories.InLocket(ctx, locketID, memoryID)
	if err != nil {
		return nil, err
	}
	p, err := s.repo.Pin(ctx, locketID, g.ID, userID)
	if err != nil {
		return nil, err
	}
	return &Pinned{Pin: *p, Memory: g}, nil
}

// Pinned returns the current pin with its memory and media.
func (s *Service) Pinned(ctx context.Context, userID, locketID string) (*Pinned, error) {
	if err := s.requireMember(ctx, locketID, userID); err != nil {
		return nil, err
	}
	p, err := s.repo.GetPin(ctx, locketID)
	if errors.Is(err, ErrNotPinned) {
		return nil, apperr.NotFound("nothing pinned")
	}
	if err != nil {
		return nil, err
	}
	g, err := s.memories.Get(ctx, userID, p.MemoryGroupID)
	if err != nil {
		return nil, err
	}
	return &Pinned{Pin: *p, Memory: g}, nil
}

// Unpin clears the fridge.
func (s *Service) Unpin(ctx context.Context, userID, locketID string) error {
	if err := s.requireMember(ctx, locketID, userID); err != nil {
		return err
	}
	err := s.repo.Unpin(ctx, locketID)
	if errors.Is(err, ErrNotPinned) {
		return apperr.NotFound("nothing pinned")
	}
	return err
}

// Spotlight surfaces an "on this day" or random memory.
func (s *Service) Spotlight(ctx context.Context, userID, locketID string) (*memory.Spotlight, error) {
	if err := s.requireMember(ctx, locketID, userID); err != nil {
		return nil, err
	}
	return s.memories.Spotlight(ctx, locketID)
}

// Invite issues a code that lets email join the locket.
func (s *Service) Invite(ctx context.Context, userID, locketID, email string) (*Invite, error) {
	l, err := s.Get(ctx, userID, locketID)
	if err != nil {
		return nil, err
	}
	if len(l.Members) >= MaxMembers {
		return nil, apperr.Conflict("this locket already has two members")
	}

	code, err := generateInviteCode()
	if err != nil {
		return nil, fmt.Errorf("generate invite code: %w", err)
	}
	inv := Invite{
		Code:      code,
		LocketID:  locketID,
		Email:     strings.ToLower(strings.TrimSpace(email)),
		InvitedBy: userID,
		ExpiresAt: s.now().Add(inviteTTL),
	}
	if err := s.repo.CreateInvite(ctx, inv); err != nil {
		return nil, err
	}

	if err := s.mailer.SendInvite(ctx, inv.Email, code, l.Name); err != nil {
		s.log.Warn("send invite failed", zap.String("locket_id", locketID), zap.Error(err))
	}
	return &inv, nil
}

// AcceptInvite joins the caller to the invite's locket.
func (s *Service) AcceptInvite(ctx context.Context, userID, code string) (*Locket, error) {
	locketID, err := s.repo.AcceptInvite(ctx, strings.ToUpper(strings.TrimSpace(code)), userID)
	switch {
	case errors.Is(err, ErrInviteInvalid):
		return nil, apperr.Validation("invite code is invalid or expired")
	case errors.Is(err, ErrLocketFull):
		return nil, apperr.Conflict("this locket already has two members")
	case errors.Is(err, ErrAlreadyMember):
		return nil, apperr.Conflict("you are already a member of this locket")
	case err != nil:
		return nil, fmt.Errorf("accept invite: %w", err)
	}

	s.log.Info("invite accepted", zap.String("locket_id", locketID), zap.String("user_id", userID))
	return s.repo.GetByID(ctx, locketID)
}

func (s *Service) requireMember(ctx context.Context, locketID, userID string) error {
	ok, err := s.repo.IsMember(ctx, locketID, userID)
	if err != nil {
		return fmt.Errorf("check membership: %w", err)
	}
	if !ok {
		return apperr.Permission("you are not a member of this locket")
	}
	return nil
}

// generateInviteCode draws from an alphabet without look-alike characters.
func generateInviteCode() (string, error) {
	var b strings.Builder
	limit := big.NewInt(int64(len(inviteAlphabet)))
	for i := 0; i < inviteCodeLen; i++ {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", err
		}
		b.WriteByte(inviteAlphabet[n.Int64()])
	}
	return b.String(), nil
}
