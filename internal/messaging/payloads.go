package messaging

import (
	"github.com/google/uuid"

	"comic-server/internal/models"
)

// Имена очередей. Консьюмер объявляет очередь задач вместе с DLX,
// параметры у паблишера должны совпадать.
const (
	PanelTaskQueue      = "panel_generation_tasks"
	PanelTaskDLX        = "panel_generation_tasks_dlx"
	PanelTaskDLQ        = "panel_generation_tasks_dlq"
	PanelTaskRoutingDLQ = "dlq"
)

// PanelTaskPayload - задача генерации одной панели. Каждая реплика диалога
// превращается в отдельную задачу; воркер обрабатывает их независимо.
type PanelTaskPayload struct {
	TaskID       string    `json:"task_id"`
	SubmissionID string    `json:"submission_id"`
	UserID       uuid.UUID `json:"user_id"`

	// Контекст сцены и полный диалог передаются целиком: модель описания
	// должна видеть окружающие реплики, а не только целевую.
	Context    string   `json:"context,omitempty"`
	Dialogue   []string `json:"dialogue"`
	TargetLine string   `json:"target_line"`
	LineIndex  int      `json:"line_index"`

	// Ссылки на размещенные файлы изображений.
	Characters    []models.CharacterRef `json:"characters"`
	BackgroundRef string                `json:"background_ref"`
}
