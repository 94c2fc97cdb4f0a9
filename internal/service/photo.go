package service

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"serialrent-backend/internal/domain"
	"serialrent-backend/internal/repository"
	"serialrent-backend/internal/storage"
)

type photoService struct {
	store        repository.Store
	storage      storage.StorageInterface
	expiry       time.Duration
	allowedTypes map[string]string
}

// NewPhotoService serves damage photo evidence. allowedTypes maps MIME type to file extension.
func NewPhotoService(store repository.Store, backend storage.StorageInterface, expiry time.Duration, allowedTypes []string) PhotoService {
	if expiry <= 0 {
		expiry = 15 * time.Minute
	}
	if len(allowedTypes) == 0 {
		allowedTypes = []string{"image/jpeg", "image/png"}
	}
	types := make(map[string]string, len(allowedTypes))
	for _, t := range allowedTypes {
		types[t] = extensionFor(t)
	}
	return &photoService{store: store, storage: backend, expiry: expiry, allowedTypes: types}
}

func (s *photoService) GetUploadURL(ctx context.Context, serialID int32, filename, contentType string) (string, string, int64, error) {
	ext, ok := s.allowedTypes[contentType]
	if !ok {
		return "", "", 0, domain.InvalidArgument("content type %q is not accepted for photos", contentType)
	}
	if _, err := s.store.Repos().Serials.GetByID(ctx, serialID); err != nil {
		return "", "", 0, err
	}
	if e := strings.ToLower(path.Ext(filename)); e != "" {
		ext = e
	}

	key := fmt.Sprintf("serials/%d/%s%s", serialID, uuid.New().String(), ext)
	url, err := s.storage.GeneratePresignedUploadURL(ctx, key, contentType, s.expiry)
	if err != nil {
		return "", "", 0, fmt.Errorf("failed to generate upload url: %w", err)
	}
	return url, key, time.Now().Add(s.expiry).Unix(), nil
}

func (s *photoService) GetDownloadURL(ctx context.Context, key string) (string, int64, error) {
	exists, _, err := s.storage.FileExists(ctx, key)
	if err != nil {
		return "", 0, err
	}
	if !exists {
		return "", 0, domain.NotFoundByKey("photo", key)
	}
	url, err := s.storage.GeneratePresignedDownloadURL(ctx, key, s.expiry)
	if err != nil {
		return "", 0, fmt.Errorf("failed to generate download url: %w", err)
	}
	return url, time.Now().Add(s.expiry).Unix(), nil
}

func (s *photoService) Verify(ctx context.Context, keys []string) error {
	var missing []string
	for _, key := range keys {
		exists, _, err := s.storage.FileExists(ctx, key)
		if err != nil {
			return err
		}
		if !exists {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return domain.InvalidArgument("photos not uploaded: %s", strings.Join(missing, ", "))
	}
	return nil
}

func extensionFor(contentType string) string {
	switch contentType {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	}
	return ""
}
