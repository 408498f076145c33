package comment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/twofold/corner/internal/apperr"
)

const maxBodyLen = 2000

// Store is the persistence the comment service depends on.
type Store interface {
	LocketOf(ctx context.Context, groupID string) (string, error)
	Create(ctx context.Context, groupID, authorID, body string) (*Comment, error)
	GetByID(ctx context.Context, id string) (*Comment, error)
	ListByGroup(ctx context.Context, groupID string) ([]Comment, error)
	Delete(ctx context.Context, id string) error
	React(ctx context.Context, groupID, userID, emoji string) error
	Unreact(ctx context.Context, groupID, userID, emoji string) error
	Reactions(ctx context.Context, groupID, userID string) ([]Reaction, error)
}

// Access answers locket membership questions.
type Access interface {
	IsMember(ctx context.Context, locketID, userID string) (bool, error)
}

// Service contains business logic for comments and reactions.
type Service struct {
	repo   Store
	access Access
}

// NewService creates a new comment Service.
func NewService(repo Store, access Access) *Service {
	return &Service{repo: repo, access: access}
}

// List returns the comments of a group.
func (s *Service) List(ctx context.Context, userID, groupID string) ([]Comment, error) {
	if err := s.authorize(ctx, userID, groupID); err != nil {
		return nil, err
	}
	return s.repo.ListByGroup(ctx, groupID)
}

// Add posts a comment on a group.
func (s *Service) Add(ctx context.Context, userID, groupID, body string) (*Comment, error) {
	body = strings.TrimSpace(body)
	if body == "" || utf8.RuneCountInString(body) > maxBodyLen {
		return nil, apperr.Validation("comment must be between 1 and 2000 characters")
	}
	if err := s.authorize(ctx, userID, groupID); err != nil {
		return nil, err
	}
	return s.repo.Create(ctx, groupID, userID, body)
}

// Delete removes a comment. Only its author may do so.
func (s *Service) Delete(ctx context.Context, userID, id string) error {
	c, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return apperr.NotFound("comment not found")
	}
	if err != nil {
		return err
	}
	if c.AuthorID != userID {
		return apperr.Permission("only the author can delete a comment")
	}
	if err := s.repo.Delete(ctx, id); errors.Is(err, ErrNotFound) {
		return apperr.NotFound("comment not found")
	} else if err != nil {
		return err
	}
	return nil
}

// React adds an emoji reaction and returns the updated summary.
func (s *Service) React(ctx context.Context, userID, groupID, emoji string) ([]Reaction, error) {
	if err := validEmoji(emoji); err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, userID, groupID); err != nil {
		return nil, err
	}
	if err := s.repo.React(ctx, groupID, userID, emoji); err != nil {
		return nil, err
	}
	return s.repo.Reactions(ctx, groupID, userID)
}

// Unreact removes an emoji reaction and returns the updated summary.
func (s *Service) Unreact(ctx context.Context, userID, groupID, emoji string) ([]Reaction, error) {
	if err := s.authorize(ctx, userID, groupID); err != nil {
		return nil, err
	}
	if err := s.repo.Unreact(ctx, groupID, userID, emoji); err != nil {
		return nil, err
	}
	return s.repo.Reactions(ctx, groupID, userID)
}

// Reactions returns the reaction summary of a group.
func (s *Service) Reactions(ctx context.Context, userID, groupID string) ([]Reaction, error) {
	if err := s.authorize(ctx, userID, groupID); err != nil {
		return nil, err
	}
	return s.repo.Reactions(ctx, groupID, userID)
}

func (s *Service) authorize(ctx context.Context, userID, groupID string) error {
	locketID, err := s.repo.LocketOf(ctx, groupID)
	if errors.Is(err, ErrGroupNotFound) {
		return apperr.NotFound("memory not found")
	}
	if err != nil {
		return err
	}
	ok, err := s.access.IsMember(ctx, locketID, userID)
	if err != nil {
		return fmt.Errorf("check membership: %w", err)
	}
	if !ok {
		return apperr.Permission("you are not a member of this locket")
	}
	return nil
}

// validEmoji accepts a short run of non-space, non-letter symbols.
func validEmoji(emoji string) error {
	n := utf8.RuneCountInString(emoji)
	if n == 0 || n > 8 {
		return apperr.Validation("invalid emoji")
	}
	for _, r := range emoji {
		if unicode.IsSpace(r) || unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsControl(r) {
			return apperr.Validation("invalid emoji")
		}
	}
	return nil
}
