package storage

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

const defaultURLCacheSize = 2048

type signedURL struct {
	url       string
	expiresAt time.Time
}

// urlCache keeps recently signed download URLs so repeated page loads do not
// re-sign every asset.
type urlCache struct {
	entries *lru.Cache[string, signedURL]
}

func newURLCache(size int) *urlCache {
	entries, err := lru.New[string, signedURL](size)
	if err != nil {
		// lru.New only errors on non-positive size.
		return &urlCache{}
	}
	return &urlCache{entries: entries}
}

// get returns the cached URL for key if it stays valid for at least minLeft.
func (c *urlCache) get(key string, minLeft time.Duration) (string, bool) {
	if c == nil || c.entries == nil {
		return "", false
	}
	entry, ok := c.entries.Get(key)
	if !ok {
		return "", false
	}
	if time.Until(entry.expiresAt) < minLeft {
		c.entries.Remove(key)
		return "", false
	}
	return entry.url, true
}

func (c *urlCache) put(key, url string, expiresAt time.Time) {
	if c == nil || c.entries == nil {
		return
	}
	c.entries.Add(key, signedURL{url: url, expiresAt: expiresAt})
}

func (c *urlCache) remove(key string) {
	if c == nil || c.entries == nil {
		return
	}
	c.entries.Remove(key)
}
