package models

import (
	"time"

	"github.com/google/uuid"
)

// GeneratedPanel - одна сгенерированная панель комикса, соответствующая одной
// реплике диалога. Создается только после успешного ответа модели
// редактирования изображений и после этого не изменяется.
type GeneratedPanel struct {
	ID         uuid.UUID `db:"id" json:"id"`
	UserID     uuid.UUID `db:"user_id" json:"userId"`
	Context    string    `db:"context" json:"context"`
	Dialogue   []string  `db:"dialogue" json:"dialogue"`
	TargetLine string    `db:"target_line" json:"targetLine"`
	Speaker    string    `db:"speaker" json:"speaker"`
	ImageURL   string    `db:"image_url" json:"imageUrl"`
	TokensUsed int       `db:"tokens_used" json:"tokensUsed"`

	// Поля описания сцены, по которым была построена панель.
	SubjectDescription string `db:"subject_description" json:"subjectDescription"`
	SettingAndScene    string `db:"setting_and_scene" json:"settingAndScene"`
	ActionOrExpression string `db:"action_or_expression" json:"actionOrExpression"`
	CameraAndStyle     string `db:"camera_and_style" json:"cameraAndStyle"`
	FullImagePrompt    string `db:"full_image_prompt" json:"fullImagePrompt"`

	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}
