// Package comment stores the conversation around a memory: comments and emoji
// reactions.
package comment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Comment is a note left on a memory group.
type Comment struct {
	ID            string    `json:"id"`
	MemoryGroupID string    `json:"memoryGroupId"`
	AuthorID      string    `json:"authorId"`
	AuthorName    *string   `json:"authorName,omitempty"`
	Body          string    `json:"body"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Reaction counts one emoji on a memory group.
type Reaction struct {
	Emoji string `json:"emoji" example:"❤️"`
	Count int    `json:"count"`
	Mine  bool   `json:"mine"`
}

var (
	// ErrNotFound is returned when a comment does not exist.
	ErrNotFound = errors.New("comment not found")
	// ErrGroupNotFound is returned when the memory group does not exist.
	ErrGroupNotFound = errors.New("memory group not found")
)

const commentColumns = `c.id, c.memory_group_id, c.author_id, u.display_name, c.body, c.created_at`

// Repository handles comment and reaction persistence.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new comment Repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// LocketOf returns the locket a memory group belongs to.
func (r *Repository) LocketOf(ctx context.Context, groupID string) (string, error) {
	if _, err := uuid.Parse(groupID); err != nil {
		return "", ErrGroupNotFound
	}
	var locketID string
	err := r.db.QueryRow(ctx, `SELECT locket_id FROM memory_groups WHERE id = $1`, groupID).Scan(&locketID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrGroupNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get memory group locket: %w", err)
	}
	return locketID, nil
}

// Create adds a comment.
func (r *Repository) Create(ctx context.Context, groupID, authorID, body string) (*Comment, error) {
	var id string
	err := r.db.QueryRow(ctx,
		`INSERT INTO memory_comments (memory_group_id, author_id, body)
		 VALUES ($1, $2, $3) RETURNING id`,
		groupID, authorID, body,
	).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("create comment: %w", err)
	}
	return r.GetByID(ctx, id)
}

// GetByID fetches one comment with its author's name.
func (r *Repository) GetByID(ctx context.Context, id string) (*Comment, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	c, err := scanComment(r.db.QueryRow(ctx,
		`SELECT `+commentColumns+`
		 FROM memory_comments c JOIN users u ON u.id = c.author_id
		 WHERE c.id = $1`,
		id,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get comment: %w", err)
	}
	return c, nil
}

// ListByGroup returns a group's comments oldest first.
func (r *Repository) ListByGroup(ctx context.Context, groupID string) ([]Comment, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+commentColumns+`
		 FROM memory_comments c JOIN users u ON u.id = c.author_id
		 WHERE c.memory_group_id = $1
		 ORDER BY c.created_at, c.id`,
		groupID,
	)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	defer rows.Close()

	comments := []Comment{}
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		comments = append(comments, *c)
	}
	return comments, rows.Err()
}

// Delete removes a comment.
func (r *Repository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM memory_comments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete comment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// React records userID's emoji on the group. Reacting twice is a no-op.
func (r *Repository) React(ctx context.Context, groupID, userID, emoji string) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO memory_reactions (memory_group_id, user_id, emoji)
		 VALUES ($1, $2, $3)
		 ON CONFLICT DO NOTHING`,
		groupID, userID, emoji,
	)
	if err != nil {
		return fmt.Errorf("add reaction: %w", err)
	}
	return nil
}

// Unreact removes userID's emoji from the group.
func (r *Repository) Unreact(ctx context.Context, groupID, userID, emoji string) error {
	_, err := r.db.Exec(ctx,
		`DELETE FROM memory_reactions
		 WHERE memory_group_id = $1 AND user_id = $2 AND emoji = $3`,
		groupID, userID, emoji,
	)
	if err != nil {
		return fmt.Errorf("remove reaction: %w", err)
	}
	return nil
}

// Reactions summarises the group's reactions from userID's point of view.
func (r *Repository) Reactions(ctx context.Context, groupID, userID string) ([]Reaction, error) {
	rows, err := r.db.Query(ctx,
		`SELECT emoji, COUNT(*), BOOL_OR(user_id = $2)
		 FROM memory_reactions
		 WHERE memory_group_id = $1
		 GROUP BY emoji
		 ORDER BY MIN(created_at)`,
		groupID, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list reactions: %w", err)
	}
	reactions, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Reaction, error) {
		var re Reaction
		err := row.Scan(&re.Emoji, &re.Count, &re.Mine)
		return re, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan reactions: %w", err)
	}
	return reactions, nil
}

func scanComment(row pgx.Row) (*Comment, error) {
	c := &Comment{}
	if err := row.Scan(&c.ID, &c.MemoryGroupID, &c.AuthorID, &c.AuthorName, &c.Body, &c.CreatedAt); err != nil {
		return nil, err
	}
	return c, nil
}
