package storage_test

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"comic-server/internal/interfaces"
	"comic-server/internal/storage"
)

func newStore(t *testing.T) interfaces.FileStore {
	t.Helper()
	store, err := storage.NewLocalFileStore(t.TempDir(), zap.NewNop())
	require.NoError(t, err)
	return store
}

func TestLocalFileStore_StageAndRead(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	ref, err := store.Stage(ctx, "alice.PNG", strings.NewReader("png-bytes"))
	require.NoError(t, err)
	assert.Equal(t, ".png", filepath.Ext(ref))

	data, err := store.ReadStaged(ref)
	require.NoError(t, err)
	assert.Equal(t, []byte("png-bytes"), data)
}

func TestLocalFileStore_StageNormalizesUnknownExtension(t *testing.T) {
	store := newStore(t)

	ref, err := store.Stage(context.Background(), "payload.exe", strings.NewReader("bytes"))
	require.NoError(t, err)
	assert.Equal(t, ".jpg", filepath.Ext(ref), "неизвестные расширения приводятся к .jpg")
}

func TestLocalFileStore_UniqueRefs(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	first, err := store.Stage(ctx, "img.jpg", strings.NewReader("a"))
	require.NoError(t, err)
	second, err := store.Stage(ctx, "img.jpg", strings.NewReader("b"))
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestLocalFileStore_Delete(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	ref, err := store.Stage(ctx, "img.jpg", strings.NewReader("bytes"))
	require.NoError(t, err)

	require.NoError(t, store.Delete(ctx, ref))
	_, err = store.ReadStaged(ref)
	assert.Error(t, err, "удаленный файл больше не читается")

	// Повторное удаление не является ошибкой
	assert.NoError(t, store.Delete(ctx, ref))
}

func TestLocalFileStore_RejectsPathTraversal(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	assert.Error(t, store.Delete(ctx, "../etc/passwd"))
	assert.Error(t, store.Delete(ctx, "nested/ref.jpg"))
	assert.Error(t, store.Delete(ctx, ""))

	_, err := store.ReadStaged("../secret.jpg")
	assert.Error(t, err)
}
