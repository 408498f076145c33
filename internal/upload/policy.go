// Package upload issues direct-to-storage upload sessions for validated files.
package upload

import (
	"fmt"
	"mime"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/gosimple/slug"

	"github.com/twofold/corner/internal/apperr"
)

const (
	// MaxImageBytes is the largest accepted image upload.
	MaxImageBytes int64 = 10 * 1024 * 1024
	// MaxVideoBytes is the largest accepted video upload.
	MaxVideoBytes int64 = 100 * 1024 * 1024

	// KeyPrefix is the namespace every uploaded object lives under.
	KeyPrefix = "media/"
)

const (
	msgInvalidType = "Invalid file type. Only images and videos are allowed."
	msgTooLarge    = "File too large. Maximum size is 10MB for images and 100MB for videos."
)

// Category is the broad kind of an accepted file.
type Category string

const (
	CategoryImage Category = "image"
	CategoryVideo Category = "video"
)

var allowedTypes = map[string]Category{
	"image/jpeg":      CategoryImage,
	"image/png":       CategoryImage,
	"image/gif":       CategoryImage,
	"image/webp":      CategoryImage,
	"image/heic":      CategoryImage,
	"image/heif":      CategoryImage,
	"video/mp4":       CategoryVideo,
	"video/quicktime": CategoryVideo,
	"video/webm":      CategoryVideo,
}

var defaultExt = map[string]string{
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
	"image/gif":       ".gif",
	"image/webp":      ".webp",
	"image/heic":      ".heic",
	"image/heif":      ".heif",
	"video/mp4":       ".mp4",
	"video/quicktime": ".mov",
	"video/webm":      ".webm",
}

var extPattern = regexp.MustCompile(`^\.[a-z0-9]{1,10}$`)

// Classify normalizes fileType and checks it against the allow-list.
func Classify(fileType string) (string, Category, error) {
	mediaType, _, err := mime.ParseMediaType(fileType)
	if err != nil {
		return "", "", apperr.Validation(msgInvalidType)
	}
	cat, ok := allowedTypes[mediaType]
	if !ok {
		return "", "", apperr.Validation(msgInvalidType)
	}
	return mediaType, cat, nil
}

// CheckSize enforces the per-category size ceiling.
func CheckSize(cat Category, size int64) error {
	if size <= 0 {
		return apperr.Validation("fileSize must be greater than 0")
	}
	limit := MaxImageBytes
	if cat == CategoryVideo {
		limit = MaxVideoBytes
	}
	if size > limit {
		return apperr.Validation(msgTooLarge)
	}
	return nil
}

// NewKey builds media/<unix-millis>-<random hex>-<slug><.ext>. The slug keeps
// keys URL-safe while staying recognisable.
func NewKey(filename, contentType string, now time.Time, random string) string {
	base := path.Base(strings.ReplaceAll(filename, `\`, "/"))
	ext := strings.ToLower(path.Ext(base))
	name := strings.TrimSuffix(base, path.Ext(base))
	if !extPattern.MatchString(ext) {
		ext = defaultExt[contentType]
	}

	s := slug.Make(name)
	if s == "" {
		s = "file"
	}
	if len(s) > 60 {
		s = strings.Trim(s[:60], "-")
	}
	return fmt.Sprintf("%s%d-%s-%s%s", KeyPrefix, now.UnixMilli(), random, s, ext)
}
