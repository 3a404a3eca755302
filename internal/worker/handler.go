package worker

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"time"

	"comic-server/internal/config"
	"comic-server/internal/interfaces"
	"comic-server/internal/messaging"
	"comic-server/internal/models"
	"comic-server/internal/service"
)

// Причины терминальных неудач задачи. Попадают в трекер отправки и в метрики.
const (
	failReasonDescription = "description_failed"
	failReasonComposition = "composition_failed"
	failReasonStaging     = "staged_file_missing"
	failReasonPersist     = "persist_failed"
)

// TaskHandler обрабатывает задачи генерации панелей
type TaskHandler struct {
	cfg        *config.Config
	describer  service.SceneDescriber
	compositor service.ImageCompositor
	panels     interfaces.PanelRepository
	profiles   interfaces.ProfileRepository
	tracker    service.SubmissionTracker
	store      interfaces.FileStore
}

// NewTaskHandler создает новый экземпляр обработчика задач
func NewTaskHandler(
	cfg *config.Config,
	describer service.SceneDescriber,
	compositor service.ImageCompositor,
	panels interfaces.PanelRepository,
	profiles interfaces.ProfileRepository,
	tracker service.SubmissionTracker,
	store interfaces.FileStore,
) *TaskHandler {
	return &TaskHandler{
		cfg:        cfg,
		describer:  describer,
		compositor: compositor,
		panels:     panels,
		profiles:   profiles,
		tracker:    tracker,
		store:      store,
	}
}

// Handle обрабатывает одну задачу генерации панели. Возвращенная ошибка
// означает терминальную неудачу задачи: консьюмер отправит сообщение в DLQ.
// Соседние задачи той же отправки не затрагиваются.
func (h *TaskHandler) Handle(ctx context.Context, payload messaging.PanelTaskPayload) error {
	MetricsIncrementTasksReceived()
	taskStartTime := time.Now()
	log.Printf("[TaskID: %s] Обработка задачи: UserID=%s, SubmissionID=%s, LineIndex=%d",
		payload.TaskID, payload.UserID, payload.SubmissionID, payload.LineIndex)

	// --- Этап 1: Описание сцены ---
	desc, usage, err := h.describer.DescribeScene(ctx, payload.UserID.String(), payload.Context, payload.Dialogue, payload.TargetLine)
	if err != nil {
		log.Printf("[TaskID: %s] Ошибка описания сцены: %v", payload.TaskID, err)
		return h.fail(ctx, payload, failReasonDescription, err)
	}
	if usage.TotalTokens > 0 {
		MetricsAddTokensUsed(float64(usage.TotalTokens))
	}
	log.Printf("[TaskID: %s] Описание сцены получено (tokens: %d)", payload.TaskID, usage.TotalTokens)

	// --- Этап 2: Сборка инструкции ---
	speaker := service.SpeakerFromLine(payload.TargetLine)
	instruction, err := service.BuildCompositeInstruction(payload.Characters, desc, payload.TargetLine)
	if err != nil {
		log.Printf("[TaskID: %s] Ошибка сборки инструкции: %v", payload.TaskID, err)
		return h.fail(ctx, payload, failReasonComposition, err)
	}

	// --- Этап 3: Чтение размещенных изображений ---
	characterImages := make([]string, 0, len(payload.Characters))
	for _, ch := range payload.Characters {
		dataURL, readErr := h.readAsDataURL(ch.ImageRef)
		if readErr != nil {
			log.Printf("[TaskID: %s] Файл персонажа %q недоступен: %v", payload.TaskID, ch.Name, readErr)
			return h.fail(ctx, payload, failReasonStaging, readErr)
		}
		characterImages = append(characterImages, dataURL)
	}
	backgroundImage, err := h.readAsDataURL(payload.BackgroundRef)
	if err != nil {
		log.Printf("[TaskID: %s] Файл фона недоступен: %v", payload.TaskID, err)
		return h.fail(ctx, payload, failReasonStaging, err)
	}

	// --- Этап 4: Композиция панели ---
	imageURL, err := h.compositor.ComposePanel(ctx, characterImages, backgroundImage, instruction)
	if err != nil {
		log.Printf("[TaskID: %s] Ошибка композиции панели: %v", payload.TaskID, err)
		return h.fail(ctx, payload, failReasonComposition, err)
	}
	log.Printf("[TaskID: %s] Панель собрана: %s", payload.TaskID, imageURL)

	// --- Этап 5: Сохранение панели ---
	panel := &models.GeneratedPanel{
		UserID:             payload.UserID,
		Context:            payload.Context,
		Dialogue:           payload.Dialogue,
		TargetLine:         payload.TargetLine,
		Speaker:            speaker,
		ImageURL:           imageURL,
		TokensUsed:         h.cfg.TokensPerPanel,
		SubjectDescription: desc.SubjectDescription,
		SettingAndScene:    desc.SettingAndScene,
		ActionOrExpression: desc.ActionOrExpression,
		CameraAndStyle:     desc.CameraAndStyle,
		FullImagePrompt:    desc.FullImagePrompt,
	}
	if err := h.panels.Save(ctx, panel); err != nil {
		log.Printf("[TaskID: %s] Ошибка сохранения панели: %v", payload.TaskID, err)
		return h.fail(ctx, payload, failReasonPersist, err)
	}

	// --- Этап 6: Списание токена ---
	// Панель уже сохранена. Списание условное: если параллельная задача того
	// же пользователя успела обнулить баланс, панель остается, а пропуск
	// списания фиксируется в логах и метрике.
	debited, err := h.profiles.DebitTokens(ctx, payload.UserID, h.cfg.TokensPerPanel)
	if err != nil {
		log.Printf("[TaskID: %s][WARN] Ошибка списания токена (панель сохранена): %v", payload.TaskID, err)
		MetricsIncrementDebitSkipped()
	} else if !debited {
		log.Printf("[TaskID: %s][WARN] Списание токена пропущено: баланс исчерпан параллельной задачей (UserID=%s)",
			payload.TaskID, payload.UserID)
		MetricsIncrementDebitSkipped()
	}

	if err := h.profiles.IncrementGeneratedCount(ctx, payload.UserID); err != nil {
		log.Printf("[TaskID: %s][WARN] Не удалось увеличить счетчик сгенерированных изображений: %v", payload.TaskID, err)
	}

	// --- Этап 7: Отметка в трекере и уборка файлов ---
	remaining, err := h.tracker.MarkLineSucceeded(ctx, payload.SubmissionID, payload.LineIndex)
	if err != nil {
		log.Printf("[TaskID: %s][WARN] Не удалось отметить строку в трекере: %v", payload.TaskID, err)
	} else if remaining == 0 {
		h.cleanupStagedFiles(ctx, payload)
	}

	MetricsIncrementTaskSucceeded()
	log.Printf("[TaskID: %s] Задача выполнена за %v (PanelID=%s)", payload.TaskID, time.Since(taskStartTime), panel.ID)
	return nil
}

// fail фиксирует терминальную неудачу задачи: метрика, трекер, уборка файлов
// последней задачи. Возвращает исходную ошибку для отправки сообщения в DLQ.
func (h *TaskHandler) fail(ctx context.Context, payload messaging.PanelTaskPayload, reason string, cause error) error {
	MetricsIncrementTaskFailed(reason)

	remaining, err := h.tracker.MarkLineFailed(ctx, payload.SubmissionID, payload.LineIndex, reason)
	if err != nil {
		log.Printf("[TaskID: %s][WARN] Не удалось отметить неудачу строки в трекере: %v", payload.TaskID, err)
	} else if remaining == 0 {
		h.cleanupStagedFiles(ctx, payload)
	}

	return fmt.Errorf("panel task %s failed (%s): %w", payload.TaskID, reason, cause)
}

// cleanupStagedFiles удаляет промежуточные файлы отправки. Вызывается задачей,
// завершившей отправку (оставшихся задач нет).
func (h *TaskHandler) cleanupStagedFiles(ctx context.Context, payload messaging.PanelTaskPayload) {
	log.Printf("[TaskID: %s] Последняя задача отправки %s завершена, удаление промежуточных файлов", payload.TaskID, payload.SubmissionID)
	for _, ch := range payload.Characters {
		if err := h.store.Delete(ctx, ch.ImageRef); err != nil {
			log.Printf("[TaskID: %s][WARN] Не удалось удалить файл %s: %v", payload.TaskID, ch.ImageRef, err)
		}
	}
	if err := h.store.Delete(ctx, payload.BackgroundRef); err != nil {
		log.Printf("[TaskID: %s][WARN] Не удалось удалить файл %s: %v", payload.TaskID, payload.BackgroundRef, err)
	}
}

// readAsDataURL читает размещенный файл и кодирует его в data URL для
// мультимодального запроса.
func (h *TaskHandler) readAsDataURL(ref string) (string, error) {
	data, err := h.store.ReadStaged(ref)
	if err != nil {
		return "", err
	}
	mimeType := "image/jpeg"
	switch strings.ToLower(filepath.Ext(ref)) {
	case ".png":
		mimeType = "image/png"
	case ".webp":
		mimeType = "image/webp"
	}
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}
