package postgrest

import (
	"bytes"
	"context"
	"fmt"
	"net/http"

	storage_go "github.com/supabase-community/storage-go"
)

// Storage implements types.FileStorage on Supabase Storage buckets.
type Storage struct {
	c *Client
}

// Storage returns the project's file storage.
func (c *Client) Storage() *Storage { return &Storage{c: c} }

// Upload implements types.FileStorage. Existing files at path are replaced.
func (s *Storage) Upload(ctx context.Context, bucket, path string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	contentType := http.DetectContentType(data)
	upsert := true
	_, err := s.c.sb.Storage.UploadFile(bucket, path, bytes.NewReader(data), storage_go.FileOptions{
		ContentType: &contentType,
		Upsert:      &upsert,
	})
	if err != nil {
		return "", fmt.Errorf("uploading %s/%s: %w", bucket, path, err)
	}
	return s.c.sb.Storage.GetPublicUrl(bucket, path).SignedURL, nil
}

// Remove implements types.FileStorage.
func (s *Storage) Remove(ctx context.Context, bucket, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := s.c.sb.Storage.RemoveFile(bucket, []string{path}); err != nil {
		return fmt.Errorf("removing %s/%s: %w", bucket, path, err)
	}
	return nil
}
