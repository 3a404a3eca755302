package service_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"comic-server/internal/messaging"
	"comic-server/internal/mocks"
	"comic-server/internal/models"
	"comic-server/internal/service"
)

type dispatchFixture struct {
	store     *mocks.MockFileStore
	profiles  *mocks.MockProfileRepository
	publisher *mocks.MockPanelTaskPublisher
	tracker   *mocks.MockSubmissionTracker
	svc       service.DispatchService
}

func newDispatchFixture(t *testing.T) *dispatchFixture {
	t.Helper()
	f := &dispatchFixture{
		store:     new(mocks.MockFileStore),
		profiles:  new(mocks.MockProfileRepository),
		publisher: new(mocks.MockPanelTaskPublisher),
		tracker:   new(mocks.MockSubmissionTracker),
	}
	f.svc = service.NewDispatchService(zap.NewNop(), f.store, f.profiles, f.publisher, f.tracker, 1, 20, 5)
	return f
}

func (f *dispatchFixture) assertExpectations(t *testing.T) {
	f.store.AssertExpectations(t)
	f.profiles.AssertExpectations(t)
	f.publisher.AssertExpectations(t)
	f.tracker.AssertExpectations(t)
}

func validRequest(userID uuid.UUID) service.SubmitRequest {
	return service.SubmitRequest{
		UserID:   userID,
		Context:  "Two friends meet in a park",
		Dialogue: "Alice: Hi!\nBob: Hello!\nAlice: Nice day.",
		Characters: []service.CharacterUpload{
			{Name: "Alice", Filename: "alice.png", Reader: strings.NewReader("alice-bytes")},
			{Name: "Bob", Filename: "bob.jpg", Reader: strings.NewReader("bob-bytes")},
		},
		Background: &service.Upload{Filename: "park.jpg", Reader: strings.NewReader("park-bytes")},
	}
}

func TestDispatchService_Submit_Success(t *testing.T) {
	f := newDispatchFixture(t)
	userID := uuid.New()
	ctx := context.Background()

	f.profiles.On("EnsureProfile", mock.Anything, userID).Return(nil).Once()
	f.profiles.On("GetProfile", mock.Anything, userID).
		Return(&models.UserProfile{UserID: userID, TokenBalance: 10}, nil).Once()

	f.store.On("Stage", mock.Anything, "alice.png", mock.Anything).Return("staged-alice.png", nil).Once()
	f.store.On("Stage", mock.Anything, "bob.jpg", mock.Anything).Return("staged-bob.jpg", nil).Once()
	f.store.On("Stage", mock.Anything, "park.jpg", mock.Anything).Return("staged-park.jpg", nil).Once()

	f.tracker.On("InitSubmission", mock.Anything, mock.AnythingOfType("string"), userID, 3).Return(nil).Once()

	var published []messaging.PanelTaskPayload
	f.publisher.On("PublishPanelTask", mock.Anything, mock.AnythingOfType("messaging.PanelTaskPayload")).
		Return(nil).Times(3).Run(func(args mock.Arguments) {
		published = append(published, args.Get(1).(messaging.PanelTaskPayload))
	})

	result, err := f.svc.Submit(ctx, validRequest(userID))
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, 3, result.LineCount)
	assert.NotEmpty(t, result.SubmissionID)

	// Каждая реплика получает свою задачу с корректным индексом и целевой строкой
	require.Len(t, published, 3)
	expectedLines := []string{"Alice: Hi!", "Bob: Hello!", "Alice: Nice day."}
	taskIDs := make(map[string]struct{})
	for i, p := range published {
		assert.Equal(t, result.SubmissionID, p.SubmissionID)
		assert.Equal(t, userID, p.UserID)
		assert.Equal(t, i, p.LineIndex)
		assert.Equal(t, expectedLines[i], p.TargetLine)
		assert.Equal(t, expectedLines, p.Dialogue)
		assert.Equal(t, "staged-park.jpg", p.BackgroundRef)
		require.Len(t, p.Characters, 2)
		assert.Equal(t, "Alice", p.Characters[0].Name)
		assert.Equal(t, "staged-alice.png", p.Characters[0].ImageRef)
		taskIDs[p.TaskID] = struct{}{}
	}
	assert.Len(t, taskIDs, 3, "идентификаторы задач должны быть уникальны")

	f.assertExpectations(t)
}

func TestDispatchService_Submit_ValidationErrors(t *testing.T) {
	userID := uuid.New()

	t.Run("Пустой диалог", func(t *testing.T) {
		f := newDispatchFixture(t)
		req := validRequest(userID)
		req.Dialogue = "  \n\n  "

		_, err := f.svc.Submit(context.Background(), req)
		assert.ErrorIs(t, err, models.ErrEmptyDialogue)
		f.store.AssertNotCalled(t, "Stage", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Слишком много реплик", func(t *testing.T) {
		f := newDispatchFixture(t)
		req := validRequest(userID)
		var sb strings.Builder
		for i := 0; i < 21; i++ {
			sb.WriteString("A: line\n")
		}
		req.Dialogue = sb.String()

		_, err := f.svc.Submit(context.Background(), req)
		assert.ErrorIs(t, err, models.ErrEmptyDialogue)
	})

	t.Run("Без персонажей", func(t *testing.T) {
		f := newDispatchFixture(t)
		req := validRequest(userID)
		req.Characters = nil

		_, err := f.svc.Submit(context.Background(), req)
		assert.ErrorIs(t, err, models.ErrNoCharacters)
	})

	t.Run("Персонаж без имени", func(t *testing.T) {
		f := newDispatchFixture(t)
		req := validRequest(userID)
		req.Characters[0].Name = "   "

		_, err := f.svc.Submit(context.Background(), req)
		assert.ErrorIs(t, err, models.ErrNoCharacters)
	})

	t.Run("Без фонового изображения", func(t *testing.T) {
		f := newDispatchFixture(t)
		req := validRequest(userID)
		req.Background = nil

		_, err := f.svc.Submit(context.Background(), req)
		assert.ErrorIs(t, err, models.ErrNoBackground)
	})
}

func TestDispatchService_Submit_InsufficientBalance(t *testing.T) {
	f := newDispatchFixture(t)
	userID := uuid.New()

	f.profiles.On("EnsureProfile", mock.Anything, userID).Return(nil).Once()
	f.profiles.On("GetProfile", mock.Anything, userID).
		Return(&models.UserProfile{UserID: userID, TokenBalance: 0}, nil).Once()

	_, err := f.svc.Submit(context.Background(), validRequest(userID))
	assert.ErrorIs(t, err, models.ErrInsufficientTokens)

	// При нулевом балансе файлы не размещаются и задачи не публикуются
	f.store.AssertNotCalled(t, "Stage", mock.Anything, mock.Anything, mock.Anything)
	f.publisher.AssertNotCalled(t, "PublishPanelTask", mock.Anything, mock.Anything)
	f.assertExpectations(t)
}

func TestDispatchService_Submit_StagingFailureRollsBack(t *testing.T) {
	f := newDispatchFixture(t)
	userID := uuid.New()

	f.profiles.On("EnsureProfile", mock.Anything, userID).Return(nil).Once()
	f.profiles.On("GetProfile", mock.Anything, userID).
		Return(&models.UserProfile{UserID: userID, TokenBalance: 10}, nil).Once()

	stageErr := models.ErrStagingFailed
	f.store.On("Stage", mock.Anything, "alice.png", mock.Anything).Return("staged-alice.png", nil).Once()
	f.store.On("Stage", mock.Anything, "bob.jpg", mock.Anything).Return("", stageErr).Once()
	// Уже размещенный файл первого персонажа должен быть удален
	f.store.On("Delete", mock.Anything, "staged-alice.png").Return(nil).Once()

	_, err := f.svc.Submit(context.Background(), validRequest(userID))
	assert.ErrorIs(t, err, models.ErrStagingFailed)

	f.publisher.AssertNotCalled(t, "PublishPanelTask", mock.Anything, mock.Anything)
	f.tracker.AssertNotCalled(t, "InitSubmission", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	f.assertExpectations(t)
}

func TestDispatchService_Submit_PublishFailureMarksRemainingLines(t *testing.T) {
	f := newDispatchFixture(t)
	userID := uuid.New()

	f.profiles.On("EnsureProfile", mock.Anything, userID).Return(nil).Once()
	f.profiles.On("GetProfile", mock.Anything, userID).
		Return(&models.UserProfile{UserID: userID, TokenBalance: 10}, nil).Once()

	f.store.On("Stage", mock.Anything, mock.Anything, mock.Anything).Return("staged.png", nil).Times(3)
	f.tracker.On("InitSubmission", mock.Anything, mock.AnythingOfType("string"), userID, 3).Return(nil).Once()

	// Первая задача уходит, вторая падает
	f.publisher.On("PublishPanelTask", mock.Anything, mock.AnythingOfType("messaging.PanelTaskPayload")).
		Return(nil).Once()
	f.publisher.On("PublishPanelTask", mock.Anything, mock.AnythingOfType("messaging.PanelTaskPayload")).
		Return(errors.New("broker unavailable")).Once()

	f.tracker.On("MarkLineFailed", mock.Anything, mock.AnythingOfType("string"), 1, "publish_failed").
		Return(int64(2), nil).Once()
	f.tracker.On("MarkLineFailed", mock.Anything, mock.AnythingOfType("string"), 2, "publish_failed").
		Return(int64(1), nil).Once()

	_, err := f.svc.Submit(context.Background(), validRequest(userID))
	require.Error(t, err)

	// Первая задача уже в очереди: размещенные файлы ей еще нужны
	f.store.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
	f.assertExpectations(t)
}
