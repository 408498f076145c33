package media

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/twofold/corner/internal/apperr"
	"github.com/twofold/corner/internal/storage"
	"github.com/twofold/corner/internal/upload"
)

// Store is the persistence the media service depends on.
type Store interface {
	Create(ctx context.Context, it NewItem) (*MediaItem, error)
	GetByID(ctx context.Context, id string) (*MediaItem, error)
	ListByGroup(ctx context.Context, groupID string) ([]MediaItem, error)
	UpdateCaption(ctx context.Context, id string, caption *string) (*MediaItem, error)
	Delete(ctx context.Context, id string) (*MediaItem, error)
}

// Access answers locket membership questions.
type Access interface {
	IsMember(ctx context.Context, locketID, userID string) (bool, error)
}

// RegisterInput is a confirmed upload the client wants attached to a locket.
type RegisterInput struct {
	LocketID        string     `json:"locket_id"                  validate:"required,uuid"`
	MemoryGroupID   *string    `json:"memory_group_id,omitempty"  validate:"omitempty,uuid"`
	Filename        string     `json:"filename"                   validate:"required,max=255"`
	StorageKey      string     `json:"storage_key"                validate:"required,max=512"`
	StorageURL      string     `json:"storage_url"                validate:"required,url"`
	FileType        string     `json:"file_type"                  validate:"required"`
	FileSize        int64      `json:"file_size"                  validate:"gt=0"`
	Width           *int       `json:"width,omitempty"            validate:"omitempty,gt=0"`
	Height          *int       `json:"height,omitempty"           validate:"omitempty,gt=0"`
	DurationSeconds *float64   `json:"duration_seconds,omitempty" validate:"omitempty,gte=0"`
	TakenAt         *time.Time `json:"taken_at,omitempty"`
	PlaceName       *string    `json:"place_name,omitempty"       validate:"omitempty,max=200"`
	Caption         *string    `json:"caption,omitempty"          validate:"omitempty,max=2000"`
}

// DownloadURL is a signed, time-boxed read URL.
type DownloadURL struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Service registers confirmed uploads and manages media items.
type Service struct {
	repo        Store
	access      Access
	gateway     storage.Gateway
	downloadTTL time.Duration
	log         *zap.Logger
	now         func() time.Time
}

// NewService creates a new media Service.
func NewService(repo Store, access Access, gateway storage.Gateway, downloadTTL time.Duration, log *zap.Logger) *Service {
	return &Service{
		repo:        repo,
		access:      access,
		gateway:     gateway,
		downloadTTL: downloadTTL,
		log:         log,
		now:         time.Now,
	}
}

// Register records an uploaded object as a media item. The caller must have
// finished the transfer; the object itself is not checked. Registering the same
// key twice yields two rows.
func (s *Service) Register(ctx context.Context, userID string, in RegisterInput) (*MediaItem, error) {
	if !upload.IsMediaKey(in.StorageKey) {
		return nil, apperr.Validation("storage_key must be a media key")
	}
	contentType, cat, err := upload.Classify(in.FileType)
	if err != nil {
		return nil, err
	}
	if err := upload.CheckSize(cat, in.FileSize); err != nil {
		return nil, err
	}
	if err := s.requireMember(ctx, in.LocketID, userID); err != nil {
		return nil, err
	}

	it := NewItem{
		LocketID:        in.LocketID,
		StorageKey:      in.StorageKey,
		URL:             in.StorageURL,
		Filename:        in.Filename,
		ContentType:     contentType,
		SizeBytes:       in.FileSize,
		Width:           in.Width,
		Height:          in.Height,
		DurationSeconds: in.DurationSeconds,
		TakenAt:         in.TakenAt,
		PlaceName:       trimmed(in.PlaceName),
		Caption:         trimmed(in.Caption),
		UploadedBy:      userID,
	}
	if in.MemoryGroupID != nil {
		it.MemoryGroupID = *in.MemoryGroupID
	}

	m, err := s.repo.Create(ctx, it)
	if errors.Is(err, ErrGroupMismatch) {
		return nil, apperr.Validation("memory_group_id does not belong to this locket")
	}
	if err != nil {
		return nil, fmt.Errorf("register media: %w", err)
	}

	s.log.Info("media registered",
		zap.String("media_id", m.ID),
		zap.String("memory_group_id", m.MemoryGroupID),
		zap.String("storage_key", m.StorageKey),
		zap.Bool("new_group", it.MemoryGroupID == ""),
	)
	return m, nil
}

// Get returns a media item visible to userID.
func (s *Service) Get(ctx context.Context, userID, id string) (*MediaItem, error) {
	m, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, apperr.NotFound("media not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get media: %w", err)
	}
	if err := s.requireMember(ctx, m.LocketID, userID); err != nil {
		return nil, err
	}
	return m, nil
}

// ListByGroup returns the media of a group the caller has already been
// authorized for.
func (s *Service) ListByGroup(ctx context.Context, groupID string) ([]MediaItem, error) {
	return s.repo.ListByGroup(ctx, groupID)
}

// DownloadURL signs a read URL for the item's object.
func (s *Service) DownloadURL(ctx context.Context, userID, id string) (*DownloadURL, error) {
	m, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	expiresAt := s.now().Add(s.downloadTTL)
	url, err := s.gateway.IssueDownloadCredential(ctx, m.StorageKey, s.downloadTTL)
	if err != nil {
		return nil, fmt.Errorf("issue download credential: %w", err)
	}
	return &DownloadURL{URL: url, ExpiresAt: expiresAt}, nil
}

// UpdateCaption sets or clears the caption.
func (s *Service) UpdateCaption(ctx context.Context, userID, id string, caption *string) (*MediaItem, error) {
	if _, err := s.Get(ctx, userID, id); err != nil {
		return nil, err
	}
	m, err := s.repo.UpdateCaption(ctx, id, trimmed(caption))
	if errors.Is(err, ErrNotFound) {
		return nil, apperr.NotFound("media not found")
	}
	return m, err
}

// Delete removes the row, then the object. The row is authoritative: storage
// failures are logged and do not fail the request.
func (s *Service) Delete(ctx context.Context, userID, id string) error {
	if _, err := s.Get(ctx, userID, id); err != nil {
		return err
	}
	m, err := s.repo.Delete(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return apperr.NotFound("media not found")
	}
	if err != nil {
		return err
	}
	s.DeleteObjects(ctx, m.StorageKey)
	return nil
}

// DeleteObjects removes storage objects whose rows are already gone.
func (s *Service) DeleteObjects(ctx context.Context, keys ...string) {
	for _, key := range keys {
		if err := s.gateway.DeleteObject(ctx, key); err != nil {
			s.log.Warn("delete storage object failed",
				zap.String("storage_key", key),
				zap.Error(err),
			)
		}
	}
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
