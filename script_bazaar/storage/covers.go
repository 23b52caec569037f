package storage

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"

	"github.com/google/uuid"
)

const (
	MaxCoverBytes = 5 << 20
	// uploads are refused once free space would drop below this
	MinFreeBytes = 64 << 20
)

var (
	ErrCoverTooLarge    = errors.New("cover exceeds the maximum size")
	ErrInsufficientDisk = errors.New("insufficient disk space")
)

var coverExtensions = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// CoverExtension returns the file extension for a supported image content type.
func CoverExtension(contentType string) (string, bool) {
	ext, ok := coverExtensions[contentType]
	return ext, ok
}

// Covers stores one image per upload under covers/<script id>/. Keys are
// never reused so a cached cover url stays valid until it is replaced.
type Covers struct {
	store Storage
}

func NewCovers(store Storage) *Covers {
	return &Covers{store: store}
}

// Save writes a cover and returns its key. size may be -1 when unknown.
func (c *Covers) Save(scriptId uuid.UUID, ext string, data io.Reader, size int64) (string, error) {
	if size > MaxCoverBytes {
		return "", ErrCoverTooLarge
	}

	usage, err := c.store.Usage()
	if err != nil {
		return "", err
	}
	needed := uint64(MaxCoverBytes)
	if size >= 0 {
		needed = uint64(size)
	}
	if usage.FreeBytes < needed+MinFreeBytes {
		slog.Warn("refusing cover upload, disk is almost full", "script_id", scriptId, "free_bytes", usage.FreeBytes)
		return "", ErrInsufficientDisk
	}

	key := path.Join("covers", scriptId.String(), uuid.NewString()+ext)

	limited := &io.LimitedReader{R: data, N: MaxCoverBytes + 1}
	if err := c.store.Write(key, limited); err != nil {
		return "", err
	}
	if limited.N == 0 {
		if err := c.store.Delete(key); err != nil {
			slog.Error("unable to remove oversized cover", "key", key, "error", err)
		}
		return "", ErrCoverTooLarge
	}

	return key, nil
}

func (c *Covers) Open(key string) (io.ReadCloser, error) {
	if key == "" {
		return nil, fmt.Errorf("%w: script has no cover", ErrFileNotFound)
	}
	return c.store.Read(key)
}

// Remove deletes a replaced cover. Failures are logged since the new cover
// is already in place.
func (c *Covers) Remove(key string) {
	if key == "" {
		return
	}
	if err := c.store.Delete(key); err != nil {
		slog.Error("unable to remove old cover", "key", key, "error", err)
	}
}
