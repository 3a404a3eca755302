package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"comic-server/internal/interfaces"
	"comic-server/internal/models"
)

// Compile-time check to ensure pgPanelRepository implements PanelRepository
var _ interfaces.PanelRepository = (*pgPanelRepository)(nil)

type pgPanelRepository struct {
	db     interfaces.DBTX
	logger *zap.Logger
}

// NewPgPanelRepository creates a new PostgreSQL-backed PanelRepository.
func NewPgPanelRepository(db interfaces.DBTX, logger *zap.Logger) interfaces.PanelRepository {
	return &pgPanelRepository{
		db:     db,
		logger: logger.Named("PgPanelRepo"),
	}
}

// panelRow - промежуточная структура для сканирования: dialogue хранится в jsonb.
type panelRow struct {
	ID                 uuid.UUID `db:"id"`
	UserID             uuid.UUID `db:"user_id"`
	Context            string    `db:"context"`
	Dialogue           []byte    `db:"dialogue"`
	TargetLine         string    `db:"target_line"`
	Speaker            string    `db:"speaker"`
	ImageURL           string    `db:"image_url"`
	TokensUsed         int       `db:"tokens_used"`
	SubjectDescription string    `db:"subject_description"`
	SettingAndScene    string    `db:"setting_and_scene"`
	ActionOrExpression string    `db:"action_or_expression"`
	CameraAndStyle     string    `db:"camera_and_style"`
	FullImagePrompt    string    `db:"full_image_prompt"`
	CreatedAt          time.Time `db:"created_at"`
}

// Save inserts a new generated panel. The caller must not modify the panel afterwards.
func (r *pgPanelRepository) Save(ctx context.Context, panel *models.GeneratedPanel) error {
	dialogueJSON, err := json.Marshal(panel.Dialogue)
	if err != nil {
		return fmt.Errorf("failed to marshal dialogue: %w", err)
	}

	query := `INSERT INTO generated_panels
        (user_id, context, dialogue, target_line, speaker, image_url, tokens_used,
         subject_description, setting_and_scene, action_or_expression, camera_and_style, full_image_prompt)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
        RETURNING id, created_at`
	r.logger.Debug("Executing query", zap.String("query", "INSERT INTO generated_panels"), zap.String("userID", panel.UserID.String()))

	err = r.db.QueryRow(ctx, query,
		panel.UserID, panel.Context, dialogueJSON, panel.TargetLine, panel.Speaker,
		panel.ImageURL, panel.TokensUsed,
		panel.SubjectDescription, panel.SettingAndScene, panel.ActionOrExpression,
		panel.CameraAndStyle, panel.FullImagePrompt,
	).Scan(&panel.ID, &panel.CreatedAt)
	if err != nil {
		r.logger.Error("Failed to save generated panel", zap.Error(err), zap.String("userID", panel.UserID.String()))
		return fmt.Errorf("failed to save generated panel: %w", err)
	}

	r.logger.Info("Generated panel saved", zap.String("panelID", panel.ID.String()), zap.String("userID", panel.UserID.String()))
	return nil
}

// ListByUser returns the user's panels ordered by recency.
func (r *pgPanelRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.GeneratedPanel, error) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	query := `SELECT id, user_id, context, dialogue, target_line, speaker, image_url, tokens_used,
        subject_description, setting_and_scene, action_or_expression, camera_and_style, full_image_prompt, created_at
        FROM generated_panels
        WHERE user_id = $1
        ORDER BY created_at DESC
        LIMIT $2 OFFSET $3`

	var rows []panelRow
	if err := pgxscan.Select(ctx, r.db, &rows, query, userID, limit, offset); err != nil {
		r.logger.Error("Failed to list generated panels", zap.Error(err), zap.String("userID", userID.String()))
		return nil, fmt.Errorf("failed to list generated panels: %w", err)
	}

	panels := make([]models.GeneratedPanel, 0, len(rows))
	for _, row := range rows {
		p := models.GeneratedPanel{
			ID:                 row.ID,
			UserID:             row.UserID,
			Context:            row.Context,
			TargetLine:         row.TargetLine,
			Speaker:            row.Speaker,
			ImageURL:           row.ImageURL,
			TokensUsed:         row.TokensUsed,
			SubjectDescription: row.SubjectDescription,
			SettingAndScene:    row.SettingAndScene,
			ActionOrExpression: row.ActionOrExpression,
			CameraAndStyle:     row.CameraAndStyle,
			FullImagePrompt:    row.FullImagePrompt,
			CreatedAt:          row.CreatedAt,
		}
		if len(row.Dialogue) > 0 {
			if err := json.Unmarshal(row.Dialogue, &p.Dialogue); err != nil {
				r.logger.Error("Failed to unmarshal panel dialogue", zap.Error(err), zap.String("panelID", p.ID.String()))
				return nil, fmt.Errorf("failed to unmarshal panel dialogue: %w", err)
			}
		}
		panels = append(panels, p)
	}
	return panels, nil
}

// CountByUser returns the total number of the user's panels.
func (r *pgPanelRepository) CountByUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	var count int64
	query := `SELECT COUNT(*) FROM generated_panels WHERE user_id = $1`
	if err := r.db.QueryRow(ctx, query, userID).Scan(&count); err != nil {
		r.logger.Error("Failed to count generated panels", zap.Error(err), zap.String("userID", userID.String()))
		return 0, fmt.Errorf("failed to count generated panels: %w", err)
	}
	return count, nil
}
