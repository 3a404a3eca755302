package interfaces

import (
	"context"
	"io"
)

// FileStore определяет хранилище для промежуточных изображений отправки.
// Файлы размещаются до постановки задач в очередь и должны быть доступны
// воркерам по возвращенной ссылке.
type FileStore interface {
	// Stage сохраняет файл и возвращает ссылку, по которой его смогут
	// прочитать асинхронные задачи.
	Stage(ctx context.Context, originalName string, r io.Reader) (string, error)
	// ReadStaged читает содержимое ранее размещенного файла.
	ReadStaged(ref string) ([]byte, error)
	// Delete удаляет ранее размещенный файл. Отсутствие файла не считается ошибкой.
	Delete(ctx context.Context, ref string) error
}
