// Package storage issues time-boxed credentials for direct client transfers to
// the object store and deletes objects on request. Bytes never pass through
// the API server.
package storage

import (
	"context"
	"errors"
	"time"
)

// Transfer protocols. Resumable credentials need an initiate request before the
// bytes are sent; single credentials accept the bytes directly.
const (
	ProtocolResumable = "resumable"
	ProtocolSingle    = "single"
)

// ResumableHeader marks the initiate request of a resumable upload session.
const ResumableHeader = "x-goog-resumable"

// ErrObjectNotFound is returned when the key has no object behind it.
var ErrObjectNotFound = errors.New("object not found")

// UploadCredential is a short-lived, single-use authorization for one upload to
// StorageKey. Expiry is enforced by the storage provider through the URL
// signature; callers treat it as opaque and never renew it.
type UploadCredential struct {
	UploadURL   string            `json:"uploadUrl"`
	Method      string            `json:"method"`
	Headers     map[string]string `json:"headers"`
	Protocol    string            `json:"protocol"`
	StorageKey  string            `json:"storageKey"`
	ContentType string            `json:"contentType"`
	IssuedAt    time.Time         `json:"issuedAt"`
	ExpiresAt   time.Time         `json:"expiresAt"`
}

// Gateway is the object storage abstraction used by the upload pipeline.
type Gateway interface {
	// IssueUploadCredential signs an endpoint permitting one upload session to key.
	IssueUploadCredential(ctx context.Context, key, contentType string, ttl time.Duration) (*UploadCredential, error)
	// IssueDownloadCredential returns a signed read URL for an existing object.
	IssueDownloadCredential(ctx context.Context, key string, ttl time.Duration) (string, error)
	// DeleteObject removes the object. A missing object is not an error.
	DeleteObject(ctx context.Context, key string) error
	// PublicURL constructs the browser-facing URL for key.
	PublicURL(key string) string
}
