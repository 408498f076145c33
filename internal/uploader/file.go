package uploader

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/gabriel-vasile/mimetype"
	"github.com/rwcarlsen/goexif/exif"
)

// File is a local file ready to upload.
type File struct {
	Path        string
	Name        string
	ContentType string
	Size        int64
	Width       *int
	Height      *int
	TakenAt     *time.Time

	open func() (io.ReadCloser, error)
}

// Inspect reads the metadata of the file at path. The content type comes from
// the file's bytes. Image dimensions honour EXIF orientation, and TakenAt is
// the EXIF capture time when the image carries one.
func Inspect(path string) (*File, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}

	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return nil, fmt.Errorf("detect type of %s: %w", path, err)
	}
	contentType, _, err := mime.ParseMediaType(mt.String())
	if err != nil {
		contentType = mt.String()
	}

	f := &File{
		Path:        path,
		Name:        filepath.Base(path),
		ContentType: contentType,
		Size:        info.Size(),
		open:        func() (io.ReadCloser, error) { return os.Open(path) },
	}

	if strings.HasPrefix(contentType, "image/") {
		if img, err := imaging.Open(path, imaging.AutoOrientation(true)); err == nil {
			w, h := img.Bounds().Dx(), img.Bounds().Dy()
			f.Width, f.Height = &w, &h
		}
		f.TakenAt = captureTime(path)
	}
	return f, nil
}

// captureTime returns DateTimeOriginal, or DateTime when that is absent.
func captureTime(path string) *time.Time {
	r, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer r.Close()

	x, err := exif.Decode(r)
	if err != nil {
		return nil
	}
	t, err := x.DateTime()
	if err != nil || t.IsZero() {
		return nil
	}
	return &t
}

// NewFile builds a File from in-memory bytes.
func NewFile(name, contentType string, data []byte) *File {
	return &File{
		Name:        name,
		ContentType: contentType,
		Size:        int64(len(data)),
		open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(data)), nil
		},
	}
}

func (f *File) reader() (io.ReadCloser, error) {
	if f.open == nil {
		return os.Open(f.Path)
	}
	return f.open()
}
