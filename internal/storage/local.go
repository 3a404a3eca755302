package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"comic-server/internal/interfaces"
	"comic-server/internal/models"
)

// localFileStore хранит промежуточные изображения в локальном каталоге.
// Ссылкой служит имя файла внутри каталога, без пути.
type localFileStore struct {
	dir string
	log *zap.Logger
}

var _ interfaces.FileStore = (*localFileStore)(nil)

// NewLocalFileStore создает хранилище в каталоге dir, создавая его при необходимости.
func NewLocalFileStore(dir string, log *zap.Logger) (interfaces.FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create media directory %s: %w", dir, err)
	}
	return &localFileStore{dir: dir, log: log}, nil
}

func (s *localFileStore) Stage(ctx context.Context, originalName string, r io.Reader) (string, error) {
	ext := strings.ToLower(filepath.Ext(originalName))
	switch ext {
	case ".jpg", ".jpeg", ".png", ".webp":
	default:
		ext = ".jpg"
	}
	ref := uuid.New().String() + ext
	filePath := filepath.Join(s.dir, ref) // Используем filepath.Join

	f, err := os.OpenFile(filePath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644) // Права доступа rw-r--r--
	if err != nil {
		return "", fmt.Errorf("%w: failed to create file %s: %v", models.ErrStagingFailed, ref, err)
	}
	defer f.Close()

	if _, err := io.Copy(f, r); err != nil {
		// Частично записанный файл не оставляем
		os.Remove(filePath)
		return "", fmt.Errorf("%w: failed to write file %s: %v", models.ErrStagingFailed, ref, err)
	}

	s.log.Debug("Staged file", zap.String("ref", ref), zap.String("original_name", originalName))
	return ref, nil
}

func (s *localFileStore) Delete(ctx context.Context, ref string) error {
	// Защита от выхода за пределы каталога
	if ref == "" || strings.Contains(ref, "/") || strings.Contains(ref, "..") {
		return fmt.Errorf("invalid file reference: %q", ref)
	}
	err := os.Remove(filepath.Join(s.dir, ref))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete file %s: %w", ref, err)
	}
	return nil
}

// ReadStaged читает содержимое размещенного файла по ссылке.
func (s *localFileStore) ReadStaged(ref string) ([]byte, error) {
	if ref == "" || strings.Contains(ref, "/") || strings.Contains(ref, "..") {
		return nil, fmt.Errorf("invalid file reference: %q", ref)
	}
	data, err := os.ReadFile(filepath.Join(s.dir, ref))
	if err != nil {
		return nil, fmt.Errorf("failed to read staged file %s: %w", ref, err)
	}
	return data, nil
}
