package models

import "errors"

// Ошибки валидации отправки скрипта (возвращаются синхронно вызывающему).
var (
	ErrEmptyDialogue      = errors.New("dialogue is empty or contains no non-blank lines")
	ErrNoCharacters       = errors.New("at least one character with a name and an image is required")
	ErrNoBackground       = errors.New("a background image is required")
	ErrInsufficientTokens = errors.New("insufficient token balance")
)

// Ошибки этапов генерации внутри задачи.
var (
	// ErrDescriptionFailed - вызов текстовой модели не удался или вернул
	// неполную структуру описания сцены.
	ErrDescriptionFailed = errors.New("scene description failed")
	// ErrCompositionFailed - вызов модели редактирования изображений вернул
	// ошибку или некорректный ответ.
	ErrCompositionFailed = errors.New("panel composition failed")
	// ErrStagingFailed - не удалось сохранить загруженные файлы во временное
	// хранилище; вся отправка отклоняется.
	ErrStagingFailed = errors.New("image staging failed")
)

// Ошибки проверки токенов доступа.
var (
	ErrTokenExpired   = errors.New("token has expired")
	ErrTokenMalformed = errors.New("token is malformed")
	ErrTokenInvalid   = errors.New("token is invalid")
)

// Ошибки хранилища.
var (
	ErrProfileNotFound    = errors.New("user profile not found")
	ErrPanelNotFound      = errors.New("generated panel not found")
	ErrPackageNotFound    = errors.New("token package not found")
	ErrPurchaseNotFound   = errors.New("token purchase not found")
	ErrSubmissionNotFound = errors.New("submission not found")
)
