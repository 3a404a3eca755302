package service

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"comic-server/internal/interfaces"
	"comic-server/internal/messaging"
	"comic-server/internal/models"
)

// CharacterUpload - именованное изображение персонажа из входящего запроса.
type CharacterUpload struct {
	Name     string
	Filename string
	Reader   io.Reader
}

// Upload - одиночный файл из входящего запроса (фон сцены).
type Upload struct {
	Filename string
	Reader   io.Reader
}

// SubmitRequest - валидированный вход диспетчеризации.
type SubmitRequest struct {
	UserID     uuid.UUID
	Context    string
	Dialogue   string
	Characters []CharacterUpload
	Background *Upload
}

// SubmitResult - результат принятой отправки.
type SubmitResult struct {
	SubmissionID string
	LineCount    int
}

// DispatchService принимает отправку скрипта, размещает файлы и ставит по
// одной задаче генерации на каждую реплику. Возвращает управление сразу после
// публикации задач, не дожидаясь генерации.
type DispatchService interface {
	Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error)
}

type dispatchService struct {
	logger         *zap.Logger
	store          interfaces.FileStore
	profiles       interfaces.ProfileRepository
	publisher      messaging.PanelTaskPublisher
	tracker        SubmissionTracker
	tokensPerPanel int
	maxLines       int
	maxCharacters  int
}

// NewDispatchService создает сервис диспетчеризации отправок.
func NewDispatchService(
	logger *zap.Logger,
	store interfaces.FileStore,
	profiles interfaces.ProfileRepository,
	publisher messaging.PanelTaskPublisher,
	tracker SubmissionTracker,
	tokensPerPanel, maxLines, maxCharacters int,
) DispatchService {
	return &dispatchService{
		logger:         logger.Named("DispatchService"),
		store:          store,
		profiles:       profiles,
		publisher:      publisher,
		tracker:        tracker,
		tokensPerPanel: tokensPerPanel,
		maxLines:       maxLines,
		maxCharacters:  maxCharacters,
	}
}

// SplitDialogue разбивает текст на непустые реплики: по переводам строк,
// с обрезкой пробелов и отбрасыванием пустых строк.
func SplitDialogue(dialogueText string) []string {
	raw := strings.Split(strings.ReplaceAll(dialogueText, "\r\n", "\n"), "\n")
	lines := make([]string, 0, len(raw))
	for _, line := range raw {
		line = strings.TrimSpace(line)
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

func (s *dispatchService) Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	log := s.logger.With(zap.String("userID", req.UserID.String()))

	// 1. Валидация входа
	lines := SplitDialogue(req.Dialogue)
	if len(lines) == 0 {
		return nil, models.ErrEmptyDialogue
	}
	if s.maxLines > 0 && len(lines) > s.maxLines {
		return nil, fmt.Errorf("%w: dialogue has %d lines, limit is %d", models.ErrEmptyDialogue, len(lines), s.maxLines)
	}
	if len(req.Characters) == 0 {
		return nil, models.ErrNoCharacters
	}
	if s.maxCharacters > 0 && len(req.Characters) > s.maxCharacters {
		return nil, fmt.Errorf("%w: %d characters supplied, limit is %d", models.ErrNoCharacters, len(req.Characters), s.maxCharacters)
	}
	for _, ch := range req.Characters {
		if strings.TrimSpace(ch.Name) == "" || ch.Reader == nil {
			return nil, models.ErrNoCharacters
		}
	}
	if req.Background == nil || req.Background.Reader == nil {
		return nil, models.ErrNoBackground
	}

	// 2. Быстрый отказ при пустом балансе. Это не резервирование: списание
	// происходит в задачах, проверка лишь отсекает заведомо бесплодные отправки.
	if err := s.profiles.EnsureProfile(ctx, req.UserID); err != nil {
		return nil, err
	}
	profile, err := s.profiles.GetProfile(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	if profile.TokenBalance < s.tokensPerPanel {
		log.Info("Submission rejected: insufficient balance", zap.Int("balance", profile.TokenBalance))
		return nil, models.ErrInsufficientTokens
	}

	// 3. Размещение файлов. При любой ошибке уже размещенные файлы удаляются,
	// задачи не публикуются.
	var staged []string
	rollback := func() {
		for _, ref := range staged {
			if delErr := s.store.Delete(ctx, ref); delErr != nil {
				log.Warn("Failed to delete staged file during rollback", zap.String("ref", ref), zap.Error(delErr))
			}
		}
	}

	characters := make([]models.CharacterRef, 0, len(req.Characters))
	for _, ch := range req.Characters {
		ref, stageErr := s.store.Stage(ctx, ch.Filename, ch.Reader)
		if stageErr != nil {
			rollback()
			return nil, stageErr
		}
		staged = append(staged, ref)
		characters = append(characters, models.CharacterRef{Name: strings.TrimSpace(ch.Name), ImageRef: ref})
	}
	backgroundRef, err := s.store.Stage(ctx, req.Background.Filename, req.Background.Reader)
	if err != nil {
		rollback()
		return nil, err
	}
	staged = append(staged, backgroundRef)

	// 4. Инициализация трекера и публикация задач
	submissionID := uuid.New().String()
	if err := s.tracker.InitSubmission(ctx, submissionID, req.UserID, len(lines)); err != nil {
		rollback()
		return nil, err
	}

	for i, line := range lines {
		payload := messaging.PanelTaskPayload{
			TaskID:        uuid.New().String(),
			SubmissionID:  submissionID,
			UserID:        req.UserID,
			Context:       req.Context,
			Dialogue:      lines,
			TargetLine:    line,
			LineIndex:     i,
			Characters:    characters,
			BackgroundRef: backgroundRef,
		}
		if err := s.publisher.PublishPanelTask(ctx, payload); err != nil {
			// Часть задач уже могла уйти в очередь: их файлы еще нужны,
			// поэтому откатываем только трекер для неопубликованных строк.
			log.Error("Failed to publish panel task", zap.Error(err), zap.Int("lineIndex", i))
			for j := i; j < len(lines); j++ {
				if _, markErr := s.tracker.MarkLineFailed(ctx, submissionID, j, "publish_failed"); markErr != nil {
					log.Warn("Failed to mark unpublished line as failed", zap.Error(markErr), zap.Int("lineIndex", j))
				}
			}
			if i == 0 {
				// Ни одна задача не опубликована, файлы можно убрать сразу
				rollback()
			}
			return nil, fmt.Errorf("failed to schedule panel tasks: %w", err)
		}
	}

	log.Info("Submission accepted",
		zap.String("submissionID", submissionID),
		zap.Int("lines", len(lines)),
		zap.Int("characters", len(characters)))
	return &SubmitResult{SubmissionID: submissionID, LineCount: len(lines)}, nil
}
