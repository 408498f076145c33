package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/twofold/corner/internal/apperr"
	"github.com/twofold/corner/internal/media"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Spotlight reasons.
const (
	ReasonOnThisDay = "on_this_day"
	ReasonRandom    = "random"
)

// Store is the persistence the memory service depends on.
type Store interface {
	Create(ctx context.Context, locketID, createdBy string, f Fields) (*Group, error)
	GetByID(ctx context.Context, id string) (*Group, error)
	List(ctx context.Context, locketID string, limit int, before *time.Time) ([]Group, error)
	Update(ctx context.Context, id string, f Fields) (*Group, error)
	Delete(ctx context.Context, id string) ([]string, error)
	OnThisDay(ctx context.Context, locketID string, today time.Time) (*Group, error)
	Random(ctx context.Context, locketID string) (*Group, error)
}

// Access answers locket membership questions.
type Access interface {
	IsMember(ctx context.Context, locketID, userID string) (bool, error)
}

// Media is the slice of the media service a group needs.
type Media interface {
	ListByGroup(ctx context.Context, groupID string) ([]media.MediaItem, error)
	DeleteObjects(ctx context.Context, keys ...string)
}

// CreateInput holds the fields of a new memory group.
type CreateInput struct {
	LocketID    string  `json:"locket_id"             validate:"required,uuid"`
	Title       *string `json:"title,omitempty"       validate:"omitempty,max=200"`
	Description *string `json:"description,omitempty" validate:"omitempty,max=5000"`
	CapturedOn  *string `json:"captured_on,omitempty" validate:"omitempty,datetime=2006-01-02"`
}

// UpdateInput changes a group. Omitted fields are kept; empty strings clear.
type UpdateInput struct {
	Title       *string `json:"title,omitempty"       validate:"omitempty,max=200"`
	Description *string `json:"description,omitempty" validate:"omitempty,max=5000"`
	CapturedOn  *string `json:"captured_on,omitempty" validate:"omitempty,datetime=2006-01-02"`
}

// Spotlight is a featured memory and why it was chosen.
type Spotlight struct {
	Reason string `json:"reason" example:"on_this_day"`
	Memory *Group `json:"memory"`
}

// Service contains business logic for memory groups.
type Service struct {
	repo   Store
	access Access
	media  Media
	log    *zap.Logger
	now    func() time.Time
}

// NewService creates a new memory Service.
func NewService(repo Store, access Access, m Media, log *zap.Logger) *Service {
	return &Service{repo: repo, access: access, media: m, log: log, now: time.Now}
}

// Create adds an empty group to a locket the caller belongs to.
func (s *Service) Create(ctx context.Context, userID string, in CreateInput) (*Group, error) {
	if err := s.requireMember(ctx, in.LocketID, userID); err != nil {
		return nil, err
	}
	g, err := s.repo.Create(ctx, in.LocketID, userID, Fields{
		Title:       trimmed(in.Title),
		Description: trimmed(in.Description),
		CapturedOn:  trimmed(in.CapturedOn),
	})
	if err != nil {
		return nil, fmt.Errorf("create memory group: %w", err)
	}
	return g, nil
}

// Get returns the group with its media.
func (s *Service) Get(ctx context.Context, userID, id string) (*Group, error) {
	g, err := s.authorize(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	items, err := s.media.ListByGroup(ctx, g.ID)
	if err != nil {
		return nil, fmt.Errorf("list group media: %w", err)
	}
	g.Media = items
	return g, nil
}

// InLocket returns the group when it belongs to locketID. Callers have already
// checked membership.
func (s *Service) InLocket(ctx context.Context, locketID, id string) (*Group, error) {
	g, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, ErrNotFound) || (err == nil && g.LocketID != locketID) {
		return nil, apperr.Validation("memory does not belong to this locket")
	}
	if err != nil {
		return nil, fmt.Errorf("get memory group: %w", err)
	}
	return g, nil
}

// List pages through a locket's groups, newest first.
func (s *Service) List(ctx context.Context, userID, locketID string, limit int, before *time.Time) ([]Group, error) {
	if err := s.requireMember(ctx, locketID, userID); err != nil {
		return nil, err
	}
	switch {
	case limit <= 0:
		limit = defaultPageSize
	case limit > maxPageSize:
		limit = maxPageSize
	}
	return s.repo.List(ctx, locketID, limit, before)
}

// Update changes title, description or date.
func (s *Service) Update(ctx context.Context, userID, id string, in UpdateInput) (*Group, error) {
	if _, err := s.authorize(ctx, userID, id); err != nil {
		return nil, err
	}
	g, err := s.repo.Update(ctx, id, Fields{
		Title:       trimmedKeepEmpty(in.Title),
		Description: trimmedKeepEmpty(in.Description),
		CapturedOn:  trimmedKeepEmpty(in.CapturedOn),
	})
	if errors.Is(err, ErrNotFound) {
		return nil, apperr.NotFound("memory not found")
	}
	return g, err
}

// Delete removes the group and its media rows, then their storage objects
// best-effort.
func (s *Service) Delete(ctx context.Context, userID, id string) error {
	if _, err := s.authorize(ctx, userID, id); err != nil {
		return err
	}
	keys, err := s.repo.Delete(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return apperr.NotFound("memory not found")
	}
	if err != nil {
		return err
	}
	s.media.DeleteObjects(ctx, keys...)
	s.log.Info("memory group deleted", zap.String("memory_group_id", id), zap.Int("media", len(keys)))
	return nil
}

// Spotlight picks an "on this day" memory from an earlier year, falling back to
// a random one. Callers have already checked membership.
func (s *Service) Spotlight(ctx context.Context, locketID string) (*Spotlight, error) {
	g, err := s.repo.OnThisDay(ctx, locketID, s.now())
	if err == nil {
		return &Spotlight{Reason: ReasonOnThisDay, Memory: g}, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	g, err = s.repo.Random(ctx, locketID)
	if errors.Is(err, ErrNotFound) {
		return nil, apperr.NotFound("no memories yet")
	}
	if err != nil {
		return nil, err
	}
	return &Spotlight{Reason: ReasonRandom, Memory: g}, nil
}

func (s *Service) authorize(ctx context.Context, userID, id string) (*Group, error) {
	g, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, apperr.NotFound("memory not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get memory group: %w", err)
	}
	if err := s.requireMember(ctx, g.LocketID, userID); err != nil {
		return nil, err
	}
	return g, nil
}

func (s *Service) requireMember(ctx context.Context, locketID, userID string) error {
	ok, err := s.access.IsMember(ctx, locketID, userID)
	if err != nil {
		return fmt.Errorf("check membership: %w", err)
	}
	if !ok {
		return apperr.Permission("you are not a member of this locket")
	}
	return nil
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

func trimmedKeepEmpty(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	return &v
}
