// Package media registers uploaded objects as media items and manages their
// lifecycle.
package media

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/twofold/corner/internal/db"
)

// MediaItem is one photo or video attached to a memory group.
type MediaItem struct {
	ID              string     `json:"id"`
	MemoryGroupID   string     `json:"memoryGroupId"`
	LocketID        string     `json:"locketId"`
	StorageKey      string     `json:"storageKey"`
	URL             string     `json:"url"`
	Filename        string     `json:"filename"`
	ContentType     string     `json:"contentType"`
	SizeBytes       int64      `json:"sizeBytes"`
	Width           *int       `json:"width,omitempty"`
	Height          *int       `json:"height,omitempty"`
	DurationSeconds *float64   `json:"durationSeconds,omitempty"`
	TakenAt         *time.Time `json:"takenAt,omitempty"`
	PlaceName       *string    `json:"placeName,omitempty"`
	Caption         *string    `json:"caption,omitempty"`
	UploadedBy      string     `json:"uploadedBy"`
	CreatedAt       time.Time  `json:"createdAt"`
}

// NewItem is a media row about to be inserted. An empty MemoryGroupID asks
// the repository to create a group for it.
type NewItem struct {
	LocketID        string
	MemoryGroupID   string
	StorageKey      string
	URL             string
	Filename        string
	ContentType     string
	SizeBytes       int64
	Width           *int
	Height          *int
	DurationSeconds *float64
	TakenAt         *time.Time
	PlaceName       *string
	Caption         *string
	UploadedBy      string
}

var (
	// ErrNotFound is returned when a media item does not exist.
	ErrNotFound = errors.New("media not found")
	// ErrGroupMismatch is returned when the target group is missing or lives in
	// another locket.
	ErrGroupMismatch = errors.New("memory group not in locket")
)

const mediaColumns = `id, memory_group_id, locket_id, storage_key, url, filename, content_type,
	size_bytes, width, height, duration_seconds, taken_at, place_name, caption, uploaded_by, created_at`

// Repository handles media persistence.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new media Repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// Create inserts the media row. When it.MemoryGroupID is empty a group is
// created in the same transaction, dated from TakenAt when known.
func (r *Repository) Create(ctx context.Context, it NewItem) (*MediaItem, error) {
	var m *MediaItem
	err := db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		groupID := it.MemoryGroupID
		if groupID == "" {
			var capturedOn *time.Time
			if it.TakenAt != nil {
				d := it.TakenAt.UTC().Truncate(24 * time.Hour)
				capturedOn = &d
			}
			if err := tx.QueryRow(ctx,
				`INSERT INTO memory_groups (locket_id, captured_on, created_by)
				 VALUES ($1, $2, $3)
				 RETURNING id`,
				it.LocketID, capturedOn, it.UploadedBy,
			).Scan(&groupID); err != nil {
				return fmt.Errorf("create memory group: %w", err)
			}
		} else {
			var ok bool
			if err := tx.QueryRow(ctx,
				`SELECT EXISTS (SELECT 1 FROM memory_groups WHERE id = $1 AND locket_id = $2)`,
				groupID, it.LocketID,
			).Scan(&ok); err != nil {
				return fmt.Errorf("check memory group: %w", err)
			}
			if !ok {
				return ErrGroupMismatch
			}
		}

		var err error
		m, err = scanMedia(tx.QueryRow(ctx,
			`INSERT INTO media (memory_group_id, locket_id, storage_key, url, filename, content_type,
				size_bytes, width, height, duration_seconds, taken_at, place_name, caption, uploaded_by)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
			 RETURNING `+mediaColumns,
			groupID, it.LocketID, it.StorageKey, it.URL, it.Filename, it.ContentType,
			it.SizeBytes, it.Width, it.Height, it.DurationSeconds, it.TakenAt, it.PlaceName, it.Caption, it.UploadedBy,
		))
		if err != nil {
			return fmt.Errorf("insert media: %w", err)
		}

		_, err = tx.Exec(ctx, `UPDATE memory_groups SET updated_at = NOW() WHERE id = $1`, groupID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// GetByID fetches one media item.
func (r *Repository) GetByID(ctx context.Context, id string) (*MediaItem, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	m, err := scanMedia(r.db.QueryRow(ctx,
		`SELECT `+mediaColumns+` FROM media WHERE id = $1`, id,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get media: %w", err)
	}
	return m, nil
}

// ListByGroup returns a group's media in upload order.
func (r *Repository) ListByGroup(ctx context.Context, groupID string) ([]MediaItem, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+mediaColumns+` FROM media
		 WHERE memory_group_id = $1
		 ORDER BY created_at, id`,
		groupID,
	)
	if err != nil {
		return nil, fmt.Errorf("list media: %w", err)
	}
	defer rows.Close()

	items := []MediaItem{}
	for rows.Next() {
		m, err := scanMedia(rows)
		if err != nil {
			return nil, fmt.Errorf("scan media: %w", err)
		}
		items = append(items, *m)
	}
	return items, rows.Err()
}

// UpdateCaption replaces the caption, the only mutable field.
func (r *Repository) UpdateCaption(ctx context.Context, id string, caption *string) (*MediaItem, error) {
	m, err := scanMedia(r.db.QueryRow(ctx,
		`UPDATE media SET caption = $2 WHERE id = $1 RETURNING `+mediaColumns,
		id, caption,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update caption: %w", err)
	}
	return m, nil
}

// Delete removes the row and returns it so the caller can clean up storage.
func (r *Repository) Delete(ctx context.Context, id string) (*MediaItem, error) {
	m, err := scanMedia(r.db.QueryRow(ctx,
		`DELETE FROM media WHERE id = $1 RETURNING `+mediaColumns, id,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("delete media: %w", err)
	}
	return m, nil
}

func scanMedia(row pgx.Row) (*MediaItem, error) {
	m := &MediaItem{}
	err := row.Scan(
		&m.ID, &m.MemoryGroupID, &m.LocketID, &m.StorageKey, &m.URL, &m.Filename, &m.ContentType,
		&m.SizeBytes, &m.Width, &m.Height, &m.DurationSeconds, &m.TakenAt, &m.PlaceName, &m.Caption,
		&m.UploadedBy, &m.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return m, nil
}
