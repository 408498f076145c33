// Package memory manages memory groups, the titled and dated collections that
// media items belong to.
package memory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/twofold/corner/internal/db"
	"github.com/twofold/corner/internal/media"
)

// Group is a memory: optional title, note and date plus zero or more media.
type Group struct {
	ID          string            `json:"id"`
	LocketID    string            `json:"locketId"`
	Title       *string           `json:"title,omitempty"`
	Description *string           `json:"description,omitempty"`
	CapturedOn  *string           `json:"capturedOn,omitempty" example:"2025-06-01"`
	CreatedBy   string            `json:"createdBy"`
	CreatedAt   time.Time         `json:"createdAt"`
	UpdatedAt   time.Time         `json:"updatedAt"`
	MediaCount  int               `json:"mediaCount"`
	CoverURL    *string           `json:"coverUrl,omitempty"`
	Media       []media.MediaItem `json:"media,omitempty"`
}

// Fields holds group attributes. In updates a nil field is left unchanged and
// an empty string clears it.
type Fields struct {
	Title       *string
	Description *string
	CapturedOn  *string
}

// ErrNotFound is returned when a memory group does not exist.
var ErrNotFound = errors.New("memory group not found")

const groupColumns = `g.id, g.locket_id, g.title, g.description, to_char(g.captured_on, 'YYYY-MM-DD'),
	g.created_by, g.created_at, g.updated_at,
	(SELECT COUNT(*) FROM media m WHERE m.memory_group_id = g.id),
	(SELECT m.url FROM media m WHERE m.memory_group_id = g.id ORDER BY m.created_at, m.id LIMIT 1)`

// Repository handles memory group persistence.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new memory Repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// Create inserts an empty group.
func (r *Repository) Create(ctx context.Context, locketID, createdBy string, f Fields) (*Group, error) {
	var id string
	err := r.db.QueryRow(ctx,
		`INSERT INTO memory_groups (locket_id, title, description, captured_on, created_by)
		 VALUES ($1, $2, $3, $4::date, $5)
		 RETURNING id`,
		locketID, f.Title, f.Description, f.CapturedOn, createdBy,
	).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("create memory group: %w", err)
	}
	return r.GetByID(ctx, id)
}

// GetByID fetches a group without its media.
func (r *Repository) GetByID(ctx context.Context, id string) (*Group, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	g, err := scanGroup(r.db.QueryRow(ctx,
		`SELECT `+groupColumns+` FROM memory_groups g WHERE g.id = $1`, id,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get memory group: %w", err)
	}
	return g, nil
}

// List returns a locket's groups newest first, strictly older than before
// when it is set.
func (r *Repository) List(ctx context.Context, locketID string, limit int, before *time.Time) ([]Group, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+groupColumns+` FROM memory_groups g
		 WHERE g.locket_id = $1 AND ($2::timestamptz IS NULL OR g.created_at < $2)
		 ORDER BY g.created_at DESC, g.id DESC
		 LIMIT $3`,
		locketID, before, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list memory groups: %w", err)
	}
	return collectGroups(rows)
}

// Update applies the non-nil fields of f.
func (r *Repository) Update(ctx context.Context, id string, f Fields) (*Group, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE memory_groups SET
			title       = CASE WHEN $2 THEN NULLIF($3, '') ELSE title END,
			description = CASE WHEN $4 THEN NULLIF($5, '') ELSE description END,
			captured_on = CASE WHEN $6 THEN NULLIF($7, '')::date ELSE captured_on END,
			updated_at  = NOW()
		 WHERE id = $1`,
		id,
		f.Title != nil, deref(f.Title),
		f.Description != nil, deref(f.Description),
		f.CapturedOn != nil, deref(f.CapturedOn),
	)
	if err != nil {
		return nil, fmt.Errorf("update memory group: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrNotFound
	}
	return r.GetByID(ctx, id)
}

// Delete removes the group, cascading to its media rows, and returns the
// storage keys those rows referenced.
func (r *Repository) Delete(ctx context.Context, id string) ([]string, error) {
	var keys []string
	err := db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx,
			`SELECT storage_key FROM media WHERE memory_group_id = $1 FOR UPDATE`, id,
		)
		if err != nil {
			return fmt.Errorf("collect media keys: %w", err)
		}
		keys, err = pgx.CollectRows(rows, pgx.RowTo[string])
		if err != nil {
			return fmt.Errorf("collect media keys: %w", err)
		}

		tag, err := tx.Exec(ctx, `DELETE FROM memory_groups WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("delete memory group: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}

// OnThisDay picks a random group captured, or created when undated, on the
// given month and day of an earlier year.
func (r *Repository) OnThisDay(ctx context.Context, locketID string, today time.Time) (*Group, error) {
	g, err := scanGroup(r.db.QueryRow(ctx,
		`SELECT `+groupColumns+` FROM memory_groups g
		 WHERE g.locket_id = $1
		   AND EXTRACT(MONTH FROM COALESCE(g.captured_on, g.created_at::date)) = $2
		   AND EXTRACT(DAY FROM COALESCE(g.captured_on, g.created_at::date)) = $3
		   AND EXTRACT(YEAR FROM COALESCE(g.captured_on, g.created_at::date)) < $4
		 ORDER BY random()
		 LIMIT 1`,
		locketID, int(today.Month()), today.Day(), today.Year(),
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("on this day: %w", err)
	}
	return g, nil
}

// Random picks any group of the locket.
func (r *Repository) Random(ctx context.Context, locketID string) (*Group, error) {
	g, err := scanGroup(r.db.QueryRow(ctx,
		`SELECT `+groupColumns+` FROM memory_groups g
		 WHERE g.locket_id = $1
		 ORDER BY random()
		 LIMIT 1`,
		locketID,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("random memory: %w", err)
	}
	return g, nil
}

func collectGroups(rows pgx.Rows) ([]Group, error) {
	defer rows.Close()
	groups := []Group{}
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, fmt.Errorf("scan memory group: %w", err)
		}
		groups = append(groups, *g)
	}
	return groups, rows.Err()
}

func scanGroup(row pgx.Row) (*Group, error) {
	g := &Group{}
	err := row.Scan(
		&g.ID, &g.LocketID, &g.Title, &g.Description, &g.CapturedOn,
		&g.CreatedBy, &g.CreatedAt, &g.UpdatedAt, &g.MediaCount, &g.CoverURL,
	)
	if err != nil {
		return nil, err
	}
	return g, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
