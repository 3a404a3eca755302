package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"comic-server/internal/interfaces"
	"comic-server/internal/models"
)

// Compile-time check to ensure pgProfileRepository implements ProfileRepository
var _ interfaces.ProfileRepository = (*pgProfileRepository)(nil)

type pgProfileRepository struct {
	db     interfaces.DBTX
	logger *zap.Logger
}

// NewPgProfileRepository creates a new PostgreSQL-backed ProfileRepository.
func NewPgProfileRepository(db interfaces.DBTX, logger *zap.Logger) interfaces.ProfileRepository {
	return &pgProfileRepository{
		db:     db,
		logger: logger.Named("PgProfileRepo"),
	}
}

// GetProfile retrieves a user's token profile.
func (r *pgProfileRepository) GetProfile(ctx context.Context, userID uuid.UUID) (*models.UserProfile, error) {
	query := `SELECT user_id, token_balance, total_tokens_purchased, total_images_generated, created_at, updated_at
        FROM user_profiles WHERE user_id = $1`
	profile := &models.UserProfile{}
	err := r.db.QueryRow(ctx, query, userID).Scan(
		&profile.UserID, &profile.TokenBalance, &profile.TotalTokensPurchased,
		&profile.TotalImagesGenerated, &profile.CreatedAt, &profile.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			r.logger.Debug("Profile not found", zap.String("userID", userID.String()))
			return nil, models.ErrProfileNotFound
		}
		r.logger.Error("Failed to get user profile", zap.Error(err), zap.String("userID", userID.String()))
		return nil, fmt.Errorf("failed to get user profile: %w", err)
	}
	return profile, nil
}

// EnsureProfile creates an empty profile if the user does not have one yet.
func (r *pgProfileRepository) EnsureProfile(ctx context.Context, userID uuid.UUID) error {
	query := `INSERT INTO user_profiles (user_id) VALUES ($1) ON CONFLICT (user_id) DO NOTHING`
	if _, err := r.db.Exec(ctx, query, userID); err != nil {
		r.logger.Error("Failed to ensure user profile", zap.Error(err), zap.String("userID", userID.String()))
		return fmt.Errorf("failed to ensure user profile: %w", err)
	}
	return nil
}

// DebitTokens атомарно списывает токены. Условие на баланс входит в сам
// UPDATE: при нехватке средств строка не изменяется и метод возвращает false.
func (r *pgProfileRepository) DebitTokens(ctx context.Context, userID uuid.UUID, amount int) (bool, error) {
	if amount <= 0 {
		return false, fmt.Errorf("debit amount must be positive, got %d", amount)
	}
	query := `UPDATE user_profiles
        SET token_balance = token_balance - $2, updated_at = now()
        WHERE user_id = $1 AND token_balance >= $2`
	tag, err := r.db.Exec(ctx, query, userID, amount)
	if err != nil {
		r.logger.Error("Failed to debit tokens", zap.Error(err), zap.String("userID", userID.String()), zap.Int("amount", amount))
		return false, fmt.Errorf("failed to debit tokens: %w", err)
	}
	if tag.RowsAffected() == 0 {
		r.logger.Warn("Token debit skipped: insufficient balance or missing profile", zap.String("userID", userID.String()), zap.Int("amount", amount))
		return false, nil
	}
	return true, nil
}

// CreditTokens зачисляет токены и увеличивает счетчик купленных.
func (r *pgProfileRepository) CreditTokens(ctx context.Context, userID uuid.UUID, amount int) error {
	if amount <= 0 {
		return fmt.Errorf("credit amount must be positive, got %d", amount)
	}
	query := `INSERT INTO user_profiles (user_id, token_balance, total_tokens_purchased)
        VALUES ($1, $2, $2)
        ON CONFLICT (user_id) DO UPDATE
        SET token_balance = user_profiles.token_balance + $2,
            total_tokens_purchased = user_profiles.total_tokens_purchased + $2,
            updated_at = now()`
	if _, err := r.db.Exec(ctx, query, userID, amount); err != nil {
		r.logger.Error("Failed to credit tokens", zap.Error(err), zap.String("userID", userID.String()), zap.Int("amount", amount))
		return fmt.Errorf("failed to credit tokens: %w", err)
	}
	r.logger.Info("Tokens credited", zap.String("userID", userID.String()), zap.Int("amount", amount))
	return nil
}

// IncrementGeneratedCount увеличивает счетчик сгенерированных изображений.
func (r *pgProfileRepository) IncrementGeneratedCount(ctx context.Context, userID uuid.UUID) error {
	query := `UPDATE user_profiles
        SET total_images_generated = total_images_generated + 1, updated_at = now()
        WHERE user_id = $1`
	tag, err := r.db.Exec(ctx, query, userID)
	if err != nil {
		r.logger.Error("Failed to increment generated count", zap.Error(err), zap.String("userID", userID.String()))
		return fmt.Errorf("failed to increment generated count: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrProfileNotFound
	}
	return nil
}
