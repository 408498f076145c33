package upload

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/twofold/corner/internal/storage"
)

// Request describes the file a client intends to upload. Without a filename
// the key ends in "file" plus the extension of the content type.
type Request struct {
	Filename string `json:"filename" validate:"omitempty,max=255" example:"beach.jpg"`
	FileType string `json:"fileType" validate:"required"          example:"image/jpeg"`
	FileSize int64  `json:"fileSize" validate:"gt=0"              example:"2480213"`
}

// Session is what the client needs to transfer the bytes itself.
type Session struct {
	UploadURL  string            `json:"uploadUrl"`
	StorageKey string            `json:"storageKey" example:"media/1767225600000-9f86d081884c7d65-beach.jpg"`
	PublicURL  string            `json:"publicUrl"`
	Method     string            `json:"method"   example:"POST"`
	Headers    map[string]string `json:"headers"`
	Protocol   string            `json:"protocol" example:"resumable"`
	ExpiresAt  time.Time         `json:"expiresAt"`
}

// Service validates upload requests and asks the gateway for credentials.
type Service struct {
	gateway storage.Gateway
	ttl     time.Duration
	log     *zap.Logger
	now     func() time.Time
	random  func() (string, error)
}

// NewService creates an upload Service issuing credentials valid for ttl.
func NewService(gateway storage.Gateway, ttl time.Duration, log *zap.Logger) *Service {
	return &Service{gateway: gateway, ttl: ttl, log: log, now: time.Now, random: randomHex}
}

// CreateSession validates req and returns a signed upload session. Nothing is
// persisted; the key is only recorded once the client registers the media.
func (s *Service) CreateSession(ctx context.Context, userID string, req Request) (*Session, error) {
	contentType, cat, err := Classify(req.FileType)
	if err != nil {
		return nil, err
	}
	if err := CheckSize(cat, req.FileSize); err != nil {
		return nil, err
	}

	random, err := s.random()
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	key := NewKey(req.Filename, contentType, s.now(), random)

	cred, err := s.gateway.IssueUploadCredential(ctx, key, contentType, s.ttl)
	if err != nil {
		return nil, fmt.Errorf("issue upload credential: %w", err)
	}

	s.log.Debug("upload session issued",
		zap.String("user_id", userID),
		zap.String("storage_key", key),
		zap.String("content_type", contentType),
		zap.Int64("size", req.FileSize),
	)

	return &Session{
		UploadURL:  cred.UploadURL,
		StorageKey: cred.StorageKey,
		PublicURL:  s.gateway.PublicURL(key),
		Method:     cred.Method,
		Headers:    cred.Headers,
		Protocol:   cred.Protocol,
		ExpiresAt:  cred.ExpiresAt,
	}, nil
}

// IsMediaKey reports whether key was minted by this package.
func IsMediaKey(key string) bool {
	return strings.HasPrefix(key, KeyPrefix) && len(key) > len(KeyPrefix) && !strings.Contains(key, "..")
}

func randomHex() (string, error) {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
