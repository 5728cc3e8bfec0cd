package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"time"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
)

var _ Storage = (*GCSStorage)(nil)

const metaOriginalName = "original-name"

// GCSStorage implements Storage with one object per file in a bucket.
// Objects are named <prefix>/<id>; the original file name is kept in the
// object metadata.
type GCSStorage struct {
	client *storage.Client
	bucket string
	prefix string
}

// NewGCSStorage creates a client using Application Default Credentials.
func NewGCSStorage(ctx context.Context, bucket, prefix string) (*GCSStorage, error) {
	if bucket == "" {
		return nil, fmt.Errorf("GCS bucket is required")
	}

	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}

	if prefix == "" {
		prefix = "bwa-uploads"
	}

	return &GCSStorage{client: client, bucket: bucket, prefix: prefix}, nil
}

func (s *GCSStorage) objectName(fileID uuid.UUID) string {
	return path.Join(s.prefix, fileID.String())
}

func (s *GCSStorage) Upload(ctx context.Context, filename string, contentType string, r io.Reader) (*FileInfo, error) {
	fileID := uuid.New()
	name := s.objectName(fileID)

	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := s.client.Bucket(s.bucket).Object(name).NewWriter(ctx)
	w.ContentType = contentType
	w.Metadata = map[string]string{metaOriginalName: filename}

	size, err := io.Copy(w, r)
	if err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("copy file to GCS writer: %w", err)
	}

	// Close finalizes the upload.
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("finalize upload: %w", err)
	}

	return &FileInfo{
		ID:          fileID,
		Name:        filename,
		Size:        size,
		ContentType: contentType,
		Path:        fmt.Sprintf("gs://%s/%s", s.bucket, name),
		CreatedAt:   time.Now().UTC(),
	}, nil
}

func (s *GCSStorage) Download(ctx context.Context, fileID uuid.UUID) (io.ReadCloser, *FileInfo, error) {
	info, err := s.GetInfo(ctx, fileID)
	if err != nil {
		return nil, nil, err
	}

	rc, err := s.client.Bucket(s.bucket).Object(s.objectName(fileID)).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, fmt.Errorf("open GCS object reader: %w", err)
	}

	return rc, info, nil
}

func (s *GCSStorage) Delete(ctx context.Context, fileID uuid.UUID) error {
	err := s.client.Bucket(s.bucket).Object(s.objectName(fileID)).Delete(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("delete GCS object: %w", err)
	}
	return nil
}

func (s *GCSStorage) GetInfo(ctx context.Context, fileID uuid.UUID) (*FileInfo, error) {
	name := s.objectName(fileID)

	attrs, err := s.client.Bucket(s.bucket).Object(name).Attrs(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read GCS object attrs: %w", err)
	}

	return &FileInfo{
		ID:          fileID,
		Name:        attrs.Metadata[metaOriginalName],
		Size:        attrs.Size,
		ContentType: attrs.ContentType,
		Path:        fmt.Sprintf("gs://%s/%s", s.bucket, name),
		CreatedAt:   attrs.Created,
	}, nil
}

// Close releases the underlying client.
func (s *GCSStorage) Close() error {
	return s.client.Close()
}
