package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"serialrent-backend/internal/logger"
)

const defaultUploadExpiry = 15 * time.Minute

// LocalStorage keeps photos on the local filesystem
type LocalStorage struct {
	baseURL   string
	photosDir string
	now       func() time.Time

	mu      sync.Mutex
	uploads map[string]pendingUpload
}

type pendingUpload struct {
	key         string
	contentType string
	expiresAt   time.Time
}

func NewLocalStorage(baseURL, dir string) (*LocalStorage, error) {
	photosDir := filepath.Join(dir, "photos")
	if err := os.MkdirAll(photosDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create photos directory: %w", err)
	}

	return &LocalStorage{
		baseURL:   strings.TrimRight(baseURL, "/"),
		photosDir: photosDir,
		now:       time.Now,
		uploads:   make(map[string]pendingUpload),
	}, nil
}

// GeneratePresignedUploadURL returns a PUT URL on this server. The key travels in the
// query; the path carries a one-shot token bound to key and contentType.
func (s *LocalStorage) GeneratePresignedUploadURL(ctx context.Context, key string, contentType string, expiresIn time.Duration) (string, error) {
	if _, err := s.path(key); err != nil {
		return "", err
	}
	if expiresIn <= 0 {
		expiresIn = defaultUploadExpiry
	}
	uploadToken := uuid.New().String()

	s.mu.Lock()
	now := s.now()
	for token, p := range s.uploads {
		if !now.Before(p.expiresAt) {
			delete(s.uploads, token)
		}
	}
	s.uploads[uploadToken] = pendingUpload{
		key:         key,
		contentType: strings.ToLower(contentType),
		expiresAt:   now.Add(expiresIn),
	}
	s.mu.Unlock()

	return fmt.Sprintf("%s/api/v1/upload/%s?key=%s", s.baseURL, uploadToken, url.QueryEscape(key)), nil
}

func (s *LocalStorage) AuthorizeUpload(token, key, contentType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.uploads[token]
	if !ok {
		return ErrUploadDenied
	}
	delete(s.uploads, token)
	if !s.now().Before(p.expiresAt) || p.key != key {
		return ErrUploadDenied
	}
	if p.contentType != "" && p.contentType != strings.ToLower(contentType) {
		return ErrUploadDenied
	}
	return nil
}

func (s *LocalStorage) GeneratePresignedDownloadURL(ctx context.Context, key string, expiresIn time.Duration) (string, error) {
	if _, err := s.path(key); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/api/v1/download/%s?key=%s", s.baseURL, encodeKey(key), url.QueryEscape(key)), nil
}

func (s *LocalStorage) FileExists(ctx context.Context, key string) (bool, int64, error) {
	fullPath, err := s.path(key)
	if err != nil {
		return false, 0, err
	}

	info, err := os.Stat(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return false, 0, nil
		}
		logger.Warn("Photo stat failed", "key", key, "error", err)
		return false, 0, err
	}
	return true, info.Size(), nil
}

func (s *LocalStorage) DeleteFile(ctx context.Context, key string) error {
	fullPath, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(fullPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

func (s *LocalStorage) SaveFile(key string, reader io.Reader) error {
	fullPath, err := s.path(key)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return fmt.Errorf("failed to create directories: %w", err)
	}

	file, err := os.Create(fullPath)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	if _, err := io.Copy(file, reader); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}

func (s *LocalStorage) ReadFile(key string) (io.ReadCloser, error) {
	fullPath, err := s.path(key)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(fullPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	return file, nil
}

// path maps a key into photosDir, refusing anything that would escape it.
func (s *LocalStorage) path(key string) (string, error) {
	if key == "" || filepath.IsAbs(key) {
		return "", ErrInvalidKey
	}
	clean := filepath.Clean(filepath.FromSlash(key))
	if clean == "." || strings.HasPrefix(clean, "..") {
		return "", ErrInvalidKey
	}
	return filepath.Join(s.photosDir, clean), nil
}

// encodeKey creates a URL-safe hash of the key
func encodeKey(key string) string {
	hash := sha256.Sum256([]byte(key))
	return hex.EncodeToString(hash[:16])
}
