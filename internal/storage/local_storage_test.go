package storage

import (
	"context"
	"io"
	"net/url"
	"path"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStorage_SaveReadDelete(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocalStorage("http://localhost:9091/", t.TempDir())
	require.NoError(t, err)

	key := "serials/4/abc.jpg"
	exists, _, err := s.FileExists(ctx, key)
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, s.SaveFile(key, strings.NewReader("jpeg-bytes")))

	exists, size, err := s.FileExists(ctx, key)
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, int64(10), size)

	rc, err := s.ReadFile(key)
	require.NoError(t, err)
	data, _ := io.ReadAll(rc)
	rc.Close()
	assert.Equal(t, "jpeg-bytes", string(data))

	require.NoError(t, s.DeleteFile(ctx, key))
	exists, _, err = s.FileExists(ctx, key)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestLocalStorage_URLs(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocalStorage("http://localhost:9091/", t.TempDir())
	require.NoError(t, err)

	up, err := s.GeneratePresignedUploadURL(ctx, "serials/4/a b.jpg", "image/jpeg", time.Minute)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(up, "http://localhost:9091/api/v1/upload/"))
	assert.Contains(t, up, "key=serials%2F4%2Fa+b.jpg")

	down, err := s.GeneratePresignedDownloadURL(ctx, "serials/4/a.jpg", time.Minute)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(down, "http://localhost:9091/api/v1/download/"))
}

func TestLocalStorage_RejectsEscapingKeys(t *testing.T) {
	s, err := NewLocalStorage("http://localhost", t.TempDir())
	require.NoError(t, err)

	for _, key := range []string{"", "../etc/passwd", "/etc/passwd", "a/../../b"} {
		err := s.SaveFile(key, strings.NewReader("x"))
		assert.ErrorIs(t, err, ErrInvalidKey, key)
	}
}

func TestNew(t *testing.T) {
	_, err := New(Config{Type: "s3"})
	assert.Error(t, err)

	s, err := New(Config{Type: "mock", Dir: t.TempDir(), BaseURL: "http://x"})
	require.NoError(t, err)
	assert.NotNil(t, s)
}

func uploadToken(t *testing.T, uploadURL string) string {
	t.Helper()
	u, err := url.Parse(uploadURL)
	require.NoError(t, err)
	return path.Base(u.Path)
}

func TestLocalStorage_AuthorizeUpload(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocalStorage("http://localhost", t.TempDir())
	require.NoError(t, err)
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	key := "serials/4/a.jpg"
	up, err := s.GeneratePresignedUploadURL(ctx, key, "image/jpeg", time.Minute)
	require.NoError(t, err)
	token := uploadToken(t, up)

	t.Run("Unknown token", func(t *testing.T) {
		assert.ErrorIs(t, s.AuthorizeUpload("not-a-token", key, "image/jpeg"), ErrUploadDenied)
	})

	t.Run("Single use", func(t *testing.T) {
		require.NoError(t, s.AuthorizeUpload(token, key, "image/jpeg"))
		assert.ErrorIs(t, s.AuthorizeUpload(token, key, "image/jpeg"), ErrUploadDenied)
	})

	t.Run("Bound to key and content type", func(t *testing.T) {
		up, err := s.GeneratePresignedUploadURL(ctx, key, "image/jpeg", time.Minute)
		require.NoError(t, err)
		assert.ErrorIs(t, s.AuthorizeUpload(uploadToken(t, up), "serials/4/other.jpg", "image/jpeg"), ErrUploadDenied)

		up, err = s.GeneratePresignedUploadURL(ctx, key, "image/jpeg", time.Minute)
		require.NoError(t, err)
		assert.ErrorIs(t, s.AuthorizeUpload(uploadToken(t, up), key, "image/png"), ErrUploadDenied)
	})

	t.Run("Expired", func(t *testing.T) {
		up, err := s.GeneratePresignedUploadURL(ctx, key, "image/jpeg", time.Minute)
		require.NoError(t, err)
		now = now.Add(2 * time.Minute)
		assert.ErrorIs(t, s.AuthorizeUpload(uploadToken(t, up), key, "image/jpeg"), ErrUploadDenied)
	})
}
