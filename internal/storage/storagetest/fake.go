// Package storagetest provides an in-memory storage.Gateway for tests.
package storagetest

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/twofold/corner/internal/apperr"
	"github.com/twofold/corner/internal/storage"
)

// Gateway records every call and serves credentials for fake URLs. Objects
// listed in Objects are considered present for download credentials.
type Gateway struct {
	mu sync.Mutex

	Base      string
	Objects   map[string]bool
	UploadErr error
	DeleteErr error

	Uploads   []string
	Downloads []string
	Deletes   []string
}

var _ storage.Gateway = (*Gateway)(nil)

// New returns a Gateway with the given public base URL.
func New(base string) *Gateway {
	return &Gateway{Base: base, Objects: map[string]bool{}}
}

func (g *Gateway) IssueUploadCredential(_ context.Context, key, contentType string, ttl time.Duration) (*storage.UploadCredential, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Uploads = append(g.Uploads, key)
	if g.UploadErr != nil {
		return nil, g.UploadErr
	}
	now := time.Now()
	return &storage.UploadCredential{
		UploadURL:   g.Base + "/upload/" + key,
		Method:      http.MethodPut,
		Headers:     map[string]string{"Content-Type": contentType},
		Protocol:    storage.ProtocolSingle,
		StorageKey:  key,
		ContentType: contentType,
		IssuedAt:    now,
		ExpiresAt:   now.Add(ttl),
	}, nil
}

func (g *Gateway) IssueDownloadCredential(_ context.Context, key string, _ time.Duration) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Downloads = append(g.Downloads, key)
	if !g.Objects[key] {
		return "", &apperr.Error{Kind: apperr.KindNotFound, Message: "media object not found", Err: storage.ErrObjectNotFound}
	}
	return g.Base + "/signed/" + key, nil
}

func (g *Gateway) DeleteObject(_ context.Context, key string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Deletes = append(g.Deletes, key)
	if g.DeleteErr != nil {
		return g.DeleteErr
	}
	delete(g.Objects, key)
	return nil
}

func (g *Gateway) PublicURL(key string) string {
	return g.Base + "/" + key
}

// Calls returns the number of recorded calls of each kind.
func (g *Gateway) Calls() (uploads, downloads, deletes int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.Uploads), len(g.Downloads), len(g.Deletes)
}
