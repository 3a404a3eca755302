package interfaces

import (
	"context"

	"github.com/google/uuid"

	"comic-server/internal/models"
)

// PanelRepository определяет методы для работы с хранилищем сгенерированных панелей.
type PanelRepository interface {
	// Save сохраняет новую панель. Панели неизменяемы после создания.
	Save(ctx context.Context, panel *models.GeneratedPanel) error
	// ListByUser возвращает панели пользователя, новые сначала.
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.GeneratedPanel, error)
	// CountByUser возвращает общее количество панелей пользователя.
	CountByUser(ctx context.Context, userID uuid.UUID) (int64, error)
}

// ProfileRepository определяет методы учета токенов на профиле пользователя.
type ProfileRepository interface {
	// GetProfile возвращает профиль пользователя или ErrProfileNotFound.
	GetProfile(ctx context.Context, userID uuid.UUID) (*models.UserProfile, error)
	// EnsureProfile создает пустой профиль, если его еще нет.
	EnsureProfile(ctx context.Context, userID uuid.UUID) error
	// DebitTokens атомарно списывает amount токенов, только если баланс достаточен.
	// Возвращает false (без ошибки), если средств не хватило; баланс при этом не меняется.
	DebitTokens(ctx context.Context, userID uuid.UUID, amount int) (bool, error)
	// CreditTokens зачисляет amount токенов и увеличивает счетчик купленных.
	CreditTokens(ctx context.Context, userID uuid.UUID, amount int) error
	// IncrementGeneratedCount увеличивает счетчик сгенерированных изображений.
	IncrementGeneratedCount(ctx context.Context, userID uuid.UUID) error
}

// TokenRepository определяет методы для пакетов токенов и покупок.
type TokenRepository interface {
	// ListActivePackages возвращает активные пакеты, отсортированные по цене.
	ListActivePackages(ctx context.Context) ([]models.TokenPackage, error)
	// GetPackage возвращает пакет по ID или ErrPackageNotFound.
	GetPackage(ctx context.Context, id int64) (*models.TokenPackage, error)
	// CreatePurchase создает запись о покупке в статусе pending.
	CreatePurchase(ctx context.Context, purchase *models.TokenPurchase) error
	// CompletePurchase переводит покупку pending -> completed и зачисляет токены
	// на профиль в одной транзакции. Повторный вызов для уже завершенной
	// покупки - no-op.
	CompletePurchase(ctx context.Context, purchaseID uuid.UUID) error
	// GetPurchase возвращает покупку по ID или ErrPurchaseNotFound.
	GetPurchase(ctx context.Context, purchaseID uuid.UUID) (*models.TokenPurchase, error)
}
