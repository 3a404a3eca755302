package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"comic-server/internal/interfaces"
	"comic-server/internal/models"
)

// Compile-time check to ensure pgTokenRepository implements TokenRepository
var _ interfaces.TokenRepository = (*pgTokenRepository)(nil)

// pgTokenRepository работает с пакетами токенов и покупками. В отличие от
// остальных репозиториев ему нужен пул, а не DBTX: завершение покупки
// выполняется в транзакции.
type pgTokenRepository struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPgTokenRepository creates a new PostgreSQL-backed TokenRepository.
func NewPgTokenRepository(pool *pgxpool.Pool, logger *zap.Logger) interfaces.TokenRepository {
	return &pgTokenRepository{
		pool:   pool,
		logger: logger.Named("PgTokenRepo"),
	}
}

// ListActivePackages returns purchasable packages ordered by price.
func (r *pgTokenRepository) ListActivePackages(ctx context.Context) ([]models.TokenPackage, error) {
	query := `SELECT id, name, token_amount, price_cents, description, is_active, created_at, updated_at
        FROM token_packages WHERE is_active = TRUE ORDER BY price_cents ASC`
	var packages []models.TokenPackage
	if err := pgxscan.Select(ctx, r.pool, &packages, query); err != nil {
		r.logger.Error("Failed to list token packages", zap.Error(err))
		return nil, fmt.Errorf("failed to list token packages: %w", err)
	}
	return packages, nil
}

// GetPackage retrieves a token package by ID.
func (r *pgTokenRepository) GetPackage(ctx context.Context, id int64) (*models.TokenPackage, error) {
	query := `SELECT id, name, token_amount, price_cents, description, is_active, created_at, updated_at
        FROM token_packages WHERE id = $1`
	pkg := &models.TokenPackage{}
	if err := pgxscan.Get(ctx, r.pool, pkg, query, id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrPackageNotFound
		}
		r.logger.Error("Failed to get token package", zap.Error(err), zap.Int64("packageID", id))
		return nil, fmt.Errorf("failed to get token package: %w", err)
	}
	return pkg, nil
}

// CreatePurchase inserts a new purchase in pending status.
func (r *pgTokenRepository) CreatePurchase(ctx context.Context, purchase *models.TokenPurchase) error {
	purchase.Status = models.PurchaseStatusPending
	query := `INSERT INTO token_purchases (user_id, package_id, token_amount, price_cents, status, external_session_id)
        VALUES ($1, $2, $3, $4, $5, $6)
        RETURNING id, created_at`
	err := r.pool.QueryRow(ctx, query,
		purchase.UserID, purchase.PackageID, purchase.TokenAmount,
		purchase.PriceCents, purchase.Status, purchase.ExternalSessionID,
	).Scan(&purchase.ID, &purchase.CreatedAt)
	if err != nil {
		r.logger.Error("Failed to create token purchase", zap.Error(err), zap.String("userID", purchase.UserID.String()))
		return fmt.Errorf("failed to create token purchase: %w", err)
	}
	r.logger.Info("Token purchase created", zap.String("purchaseID", purchase.ID.String()), zap.String("userID", purchase.UserID.String()), zap.Int("tokens", purchase.TokenAmount))
	return nil
}

// CompletePurchase переводит покупку в completed и зачисляет токены на профиль
// в одной транзакции. Строка покупки блокируется через FOR UPDATE, поэтому
// параллельное завершение одной и той же покупки зачислит токены ровно один раз.
func (r *pgTokenRepository) CompletePurchase(ctx context.Context, purchaseID uuid.UUID) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) // no-op после успешного Commit

	var userID uuid.UUID
	var tokenAmount int
	var status models.PurchaseStatus
	err = tx.QueryRow(ctx,
		`SELECT user_id, token_amount, status FROM token_purchases WHERE id = $1 FOR UPDATE`,
		purchaseID,
	).Scan(&userID, &tokenAmount, &status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.ErrPurchaseNotFound
		}
		r.logger.Error("Failed to lock token purchase", zap.Error(err), zap.String("purchaseID", purchaseID.String()))
		return fmt.Errorf("failed to lock token purchase: %w", err)
	}

	if status == models.PurchaseStatusCompleted {
		r.logger.Debug("Token purchase already completed", zap.String("purchaseID", purchaseID.String()))
		return nil
	}
	if status != models.PurchaseStatusPending {
		return fmt.Errorf("cannot complete purchase %s in status %s", purchaseID, status)
	}

	_, err = tx.Exec(ctx,
		`UPDATE token_purchases SET status = $2, completed_at = now() WHERE id = $1`,
		purchaseID, models.PurchaseStatusCompleted,
	)
	if err != nil {
		r.logger.Error("Failed to update purchase status", zap.Error(err), zap.String("purchaseID", purchaseID.String()))
		return fmt.Errorf("failed to update purchase status: %w", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO user_profiles (user_id, token_balance, total_tokens_purchased)
         VALUES ($1, $2, $2)
         ON CONFLICT (user_id) DO UPDATE
         SET token_balance = user_profiles.token_balance + $2,
             total_tokens_purchased = user_profiles.total_tokens_purchased + $2,
             updated_at = now()`,
		userID, tokenAmount,
	)
	if err != nil {
		r.logger.Error("Failed to credit purchased tokens", zap.Error(err), zap.String("purchaseID", purchaseID.String()))
		return fmt.Errorf("failed to credit purchased tokens: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit purchase completion: %w", err)
	}

	r.logger.Info("Token purchase completed", zap.String("purchaseID", purchaseID.String()), zap.String("userID", userID.String()), zap.Int("tokens", tokenAmount))
	return nil
}

// GetPurchase retrieves a purchase by ID.
func (r *pgTokenRepository) GetPurchase(ctx context.Context, purchaseID uuid.UUID) (*models.TokenPurchase, error) {
	query := `SELECT id, user_id, package_id, token_amount, price_cents, status, external_session_id, created_at, completed_at
        FROM token_purchases WHERE id = $1`
	purchase := &models.TokenPurchase{}
	if err := pgxscan.Get(ctx, r.pool, purchase, query, purchaseID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrPurchaseNotFound
		}
		r.logger.Error("Failed to get token purchase", zap.Error(err), zap.String("purchaseID", purchaseID.String()))
		return nil, fmt.Errorf("failed to get token purchase: %w", err)
	}
	return purchase, nil
}
