// Package locket manages lockets, the private space two partners share, along
// with membership, invites and the pinned memory.
package locket

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

// MaxMembers is the size of a locket: a couple.
const MaxMembers = 2

// Locket is a shared space and its members.
type Locket struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedBy string    `json:"createdBy"`
	CreatedAt time.Time `json:"createdAt"`
	Members   []Member  `json:"members"`
}

// Member is one partner of a locket.
type Member struct {
	UserID      string    `json:"userId"`
	DisplayName *string   `json:"displayName,omitempty"`
	Role        string    `json:"role" example:"owner"`
	JoinedAt    time.Time `json:"joinedAt"`
}

// Pin marks the memory on the locket's fridge.
type Pin struct {
	LocketID      string    `json:"locketId"`
	MemoryGroupID string    `json:"memoryGroupId"`
	PinnedBy      string    `json:"pinnedBy"`
	PinnedAt      time.Time `json:"pinnedAt"`
}

// Invite lets one more person join a locket.
type Invite struct {
	Code      string    `json:"code" example:"K7Q2M9XA"`
	LocketID  string    `json:"locketId"`
	Email     string    `json:"email"`
	InvitedBy string    `json:"invitedBy"`
	ExpiresAt time.Time `json:"expiresAt"`
}

var (
	// ErrNotFound is returned when a locket does not exist.
	ErrNotFound = errors.New("locket not found")
	// ErrNotPinned is returned when a locket has no pinned memory.
	ErrNotPinned = errors.New("nothing pinned")
	// ErrInviteInvalid is returned for unknown, used or expired invite codes.
	ErrInviteInvalid = errors.New("invite invalid or expired")
	// ErrLocketFull is returned when a locket already has MaxMembers members.
	ErrLocketFull = errors.New("locket is full")
	// ErrAlreadyMember is returned when the user already belongs to the locket.
	ErrAlreadyMember = errors.New("already a member")
)

// Repository handles locket persistence.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new locket Repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// Create inserts a locket with its creator as owner.
func (r *Repository) Create(ctx context.Context, name, userID string) (*Locket, error) {
	var id string
	err := db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx,
			`INSERT INTO lockets (name, created_by) VALUES ($1, $2) RETURNING id`,
			name, userID,
		).Scan(&id); err != nil {
			return fmt.Errorf("insert locket: %w", err)
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO locket_members (locket_id, user_id, role) VALUES ($1, $2, 'owner')`,
			id, userID,
		); err != nil {
			return fmt.Errorf("insert owner: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r.GetByID(ctx, id)
}

// GetByID fetches a locket with its members.
func (r *Repository) GetByID(ctx context.Context, id string) (*Locket, error) {
	l := &Locket{}
	err := r.db.QueryRow(ctx,
		`SELECT id, name, created_by, created_at FROM lockets WHERE id = $1`, id,
	).Scan(&l.ID, &l.Name, &l.CreatedBy, &l.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get locket: %w", err)
	}
	if l.Members, err = r.members(ctx, r.db, id); err != nil {
		return nil, err
	}
	return l, nil
}

// ListForUser returns every locket the user belongs to, oldest first.
func (r *Repository) ListForUser(ctx context.Context, userID string) ([]Locket, error) {
	rows, err := r.db.Query(ctx,
		`SELECT l.id, l.name, l.created_by, l.created_at
		 FROM lockets l
		 JOIN locket_members lm ON lm.locket_id = l.id
		 WHERE lm.user_id = $1
		 ORDER BY l.created_at`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list lockets: %w", err)
	}
	lockets, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Locket, error) {
		var l Locket
		err := row.Scan(&l.ID, &l.Name, &l.CreatedBy, &l.CreatedAt)
		return l, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan lockets: %w", err)
	}

	for i := range lockets {
		if lockets[i].Members, err = r.members(ctx, r.db, lockets[i].ID); err != nil {
			return nil, err
		}
	}
	return lockets, nil
}

// IsMember reports whether userID belongs to locketID. Malformed IDs are
// simply not members.
func (r *Repository) IsMember(ctx context.Context, locketID, userID string) (bool, error) {
	if _, err := uuid.Parse(locketID); err != nil {
		return false, nil
	}
	if _, err := uuid.Parse(userID); err != nil {
		return false, nil
	}
	var ok bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM locket_members WHERE locket_id = $1 AND user_id = $2)`,
		locketID, userID,
	).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("check membership: %w", err)
	}
	return ok, nil
}

// Pin points the locket's fridge at groupID, replacing any previous pin in a
// single statement.
func (r *Repository) Pin(ctx context.Context, locketID, groupID, userID string) (*Pin, error) {
	p := &Pin{}
	err := r.db.QueryRow(ctx,
		`INSERT INTO locket_pins (locket_id, memory_group_id, pinned_by)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (locket_id) DO UPDATE
		 SET memory_group_id = EXCLUDED.memory_group_id,
		     pinned_by       = EXCLUDED.pinned_by,
		     pinned_at       = NOW()
		 RETURNING locket_id, memory_group_id, pinned_by, pinned_at`,
		locketID, groupID, userID,
	).Scan(&p.LocketID, &p.MemoryGroupID, &p.PinnedBy, &p.PinnedAt)
	if err != nil {
		return nil, fmt.Errorf("pin memory: %w", err)
	}
	return p, nil
}

// GetPin returns the current pin of a locket.
func (r *Repository) GetPin(ctx context.Context, locketID string) (*Pin, error) {
	p := &Pin{}
	err := r.db.QueryRow(ctx,
		`SELECT locket_id, memory_group_id, pinned_by, pinned_at
		 FROM locket_pins WHERE locket_id = $1`,
		locketID,
	).Scan(&p.LocketID, &p.MemoryGroupID, &p.PinnedBy, &p.PinnedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotPinned
	}
	if err != nil {
		return nil, fmt.Errorf("get pin: %w", err)
	}
	return p, nil
}

// Unpin clears the fridge.
func (r *Repository) Unpin(ctx context.Context, locketID string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM locket_pins WHERE locket_id = $1`, locketID)
	if err != nil {
		return fmt.Errorf("unpin: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotPinned
	}
	return nil
}

// CreateInvite stores a new invite code.
func (r *Repository) CreateInvite(ctx context.Context, inv Invite) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO locket_invites (code, locket_id, email, invited_by, expires_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		inv.Code, inv.LocketID, inv.Email, inv.InvitedBy, inv.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("create invite: %w", err)
	}
	return nil
}

// AcceptInvite consumes the code and adds userID to its locket. The locket row
// is locked so two acceptances cannot both take the last seat.
func (r *Repository) AcceptInvite(ctx context.Context, code, userID string) (string, error) {
	var locketID string
	err := db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx,
			`SELECT locket_id FROM locket_invites
			 WHERE code = $1 AND accepted_at IS NULL AND expires_at > NOW()
			 FOR UPDATE`,
			code,
		).Scan(&locketID)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrInviteInvalid
		}
		if err != nil {
			return fmt.Errorf("load invite: %w", err)
		}

		if _, err := tx.Exec(ctx, `SELECT 1 FROM lockets WHERE id = $1 FOR UPDATE`, locketID); err != nil {
			return fmt.Errorf("lock locket: %w", err)
		}

		var count int
		var already bool
		if err := tx.QueryRow(ctx,
			`SELECT COUNT(*), COALESCE(BOOL_OR(user_id = $2), false)
			 FROM locket_members WHERE locket_id = $1`,
			locketID, userID,
		).Scan(&count, &already); err != nil {
			return fmt.Errorf("count members: %w", err)
		}
		if already {
			return ErrAlreadyMember
		}
		if count >= MaxMembers {
			return ErrLocketFull
		}

		if _, err := tx.Exec(ctx,
			`INSERT INTO locket_members (locket_id, user_id) VALUES ($1, $2)`,
			locketID, userID,
		); err != nil {
			return fmt.Errorf("add member: %w", err)
		}
		_, err = tx.Exec(ctx,
			`UPDATE locket_invites SET accepted_at = NOW() WHERE code = $1`, code,
		)
		return err
	})
	if err != nil {
		return "", err
	}
	return locketID, nil
}

func (r *Repository) members(ctx context.Context, q db.DBTX, locketID string) ([]Member, error) {
	rows, err := q.Query(ctx,
		`SELECT lm.user_id, u.display_name, lm.role, lm.joined_at
		 FROM locket_members lm
		 JOIN users u ON u.id = lm.user_id
		 WHERE lm.locket_id = $1
		 ORDER BY lm.joined_at`,
		locketID,
	)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	members, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Member, error) {
		var m Member
		err := row.Scan(&m.UserID, &m.DisplayName, &m.Role, &m.JoinedAt)
		return m, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan members: %w", err)
	}
	return members, nil
}
