package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStorage_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	info, err := store.Upload(ctx, "BWA 2024.pdf", "application/pdf", strings.NewReader("%PDF-1.4 data"))
	require.NoError(t, err)
	assert.Equal(t, "BWA 2024.pdf", info.Name)
	assert.Equal(t, int64(13), info.Size)
	assert.Contains(t, info.Path, "BWA_2024.pdf")

	got, err := store.GetInfo(ctx, info.ID)
	require.NoError(t, err)
	assert.Equal(t, info.Path, got.Path)
	assert.Equal(t, "application/pdf", got.ContentType)

	rc, fi, err := store.Download(ctx, info.ID)
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4 data", string(data))
	assert.Equal(t, info.ID, fi.ID)

	require.NoError(t, store.Delete(ctx, info.ID))
	_, err = store.GetInfo(ctx, info.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLocalStorage_UnknownID(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	_, _, err = store.Download(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, store.Delete(ctx, uuid.New()), ErrNotFound)
}

func TestLocalStorage_StaysInsideBasePath(t *testing.T) {
	base := t.TempDir()
	store, err := NewLocalStorage(base)
	require.NoError(t, err)

	info, err := store.Upload(context.Background(), "../../etc/passwd", "text/plain", strings.NewReader("x"))
	require.NoError(t, err)

	abs := filepath.Join(base, info.Path)
	assert.True(t, strings.HasPrefix(abs, base))
	_, err = os.Stat(abs)
	assert.NoError(t, err)
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"bwa.pdf", "bwa.pdf"},
		{"Jahresübersicht 2024.pdf", "Jahresübersicht_2024.pdf"},
		{`C:\reports\bwa.pdf`, "bwa.pdf"},
		{"a/b/c?.pdf", "c_.pdf"},
		{"", "upload"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, sanitizeFilename(tt.in))
		})
	}
}

func TestNew_UnknownType(t *testing.T) {
	_, err := New(context.Background(), &Config{Type: "s3"})
	assert.Error(t, err)
}
