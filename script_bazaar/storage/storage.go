package storage

import (
	"errors"
	"io"
)

var (
	ErrInvalidPath  = errors.New("invalid storage path")
	ErrFileNotFound = errors.New("file not found")
)

type UsageStats struct {
	TotalBytes uint64
	FreeBytes  uint64
}

// Storage holds uploaded assets such as script covers, addressed by relative path.
type Storage interface {
	Read(path string) (io.ReadCloser, error)
	Write(path string, data io.Reader) error
	Delete(path string) error
	Exists(path string) (bool, error)
	Usage() (UsageStats, error)
	Location() string
}
