package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

var (
	ErrInvalidKey   = errors.New("invalid storage key")
	ErrUploadDenied = errors.New("upload token invalid or expired")
)

// StorageInterface is the backend for damage photo evidence.
// The local implementation serves presigned-style URLs from the API server itself.
type StorageInterface interface {
	GeneratePresignedUploadURL(ctx context.Context, key string, contentType string, expiresIn time.Duration) (string, error)
	GeneratePresignedDownloadURL(ctx context.Context, key string, expiresIn time.Duration) (string, error)

	// FileExists checks if a file exists and returns its size
	FileExists(ctx context.Context, key string) (exists bool, size int64, err error)
	DeleteFile(ctx context.Context, key string) error

	// AuthorizeUpload consumes the token of an upload URL. It fails with ErrUploadDenied
	// unless the token was issued for key and contentType and has not expired.
	AuthorizeUpload(token, key, contentType string) error

	// SaveFile and ReadFile back the upload/download routes of the local backend
	SaveFile(key string, reader io.Reader) error
	ReadFile(key string) (io.ReadCloser, error)
}
