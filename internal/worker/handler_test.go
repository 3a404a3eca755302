package worker_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"comic-server/internal/config"
	"comic-server/internal/messaging"
	"comic-server/internal/mocks"
	"comic-server/internal/models"
	"comic-server/internal/service"
	"comic-server/internal/worker"
)

type handlerFixture struct {
	describer  *mocks.MockSceneDescriber
	compositor *mocks.MockImageCompositor
	panels     *mocks.MockPanelRepository
	profiles   *mocks.MockProfileRepository
	tracker    *mocks.MockSubmissionTracker
	store      *mocks.MockFileStore
	handler    *worker.TaskHandler
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()
	f := &handlerFixture{
		describer:  new(mocks.MockSceneDescriber),
		compositor: new(mocks.MockImageCompositor),
		panels:     new(mocks.MockPanelRepository),
		profiles:   new(mocks.MockProfileRepository),
		tracker:    new(mocks.MockSubmissionTracker),
		store:      new(mocks.MockFileStore),
	}
	cfg := &config.Config{TokensPerPanel: 1}
	f.handler = worker.NewTaskHandler(cfg, f.describer, f.compositor, f.panels, f.profiles, f.tracker, f.store)
	return f
}

func (f *handlerFixture) assertExpectations(t *testing.T) {
	f.describer.AssertExpectations(t)
	f.compositor.AssertExpectations(t)
	f.panels.AssertExpectations(t)
	f.profiles.AssertExpectations(t)
	f.tracker.AssertExpectations(t)
	f.store.AssertExpectations(t)
}

func testPayload(userID uuid.UUID) messaging.PanelTaskPayload {
	return messaging.PanelTaskPayload{
		TaskID:       "task-1",
		SubmissionID: "submission-1",
		UserID:       userID,
		Context:      "Two friends meet in a park",
		Dialogue:     []string{"Alice: Hi!", "Bob: Hello!"},
		TargetLine:   "Alice: Hi!",
		LineIndex:    0,
		Characters: []models.CharacterRef{
			{Name: "Alice", ImageRef: "staged-alice.png"},
			{Name: "Bob", ImageRef: "staged-bob.jpg"},
		},
		BackgroundRef: "staged-park.jpg",
	}
}

func testSceneDescription() *models.SceneDescription {
	return &models.SceneDescription{
		SubjectDescription: "Alice waving cheerfully",
		SettingAndScene:    "A sunny park with green benches",
		ActionOrExpression: "Waving with a warm smile",
		CameraAndStyle:     "Medium shot, bright comic style",
		FullImagePrompt:    "Alice waving in sunny park, comic panel",
	}
}

func TestTaskHandler_Handle_Success(t *testing.T) {
	f := newHandlerFixture(t)
	userID := uuid.New()
	payload := testPayload(userID)

	f.describer.On("DescribeScene", mock.Anything, userID.String(), payload.Context, payload.Dialogue, payload.TargetLine).
		Return(testSceneDescription(), service.UsageInfo{PromptTokens: 100, CompletionTokens: 50, TotalTokens: 150}, nil).Once()

	f.store.On("ReadStaged", "staged-alice.png").Return([]byte("alice-bytes"), nil).Once()
	f.store.On("ReadStaged", "staged-bob.jpg").Return([]byte("bob-bytes"), nil).Once()
	f.store.On("ReadStaged", "staged-park.jpg").Return([]byte("park-bytes"), nil).Once()

	f.compositor.On("ComposePanel", mock.Anything, mock.AnythingOfType("[]string"), mock.AnythingOfType("string"), mock.AnythingOfType("string")).
		Return("https://cdn.example.com/panel.png", nil).Once().
		Run(func(args mock.Arguments) {
			images := args.Get(1).([]string)
			require.Len(t, images, 2)
			assert.Contains(t, images[0], "data:image/png;base64,")
			assert.Contains(t, images[1], "data:image/jpeg;base64,")
			assert.Contains(t, args.Get(2).(string), "data:image/jpeg;base64,")
		})

	f.panels.On("Save", mock.Anything, mock.AnythingOfType("*models.GeneratedPanel")).
		Return(nil).Once().
		Run(func(args mock.Arguments) {
			panel := args.Get(1).(*models.GeneratedPanel)
			assert.Equal(t, userID, panel.UserID)
			assert.Equal(t, "Alice: Hi!", panel.TargetLine)
			assert.Equal(t, "Alice", panel.Speaker)
			assert.Equal(t, "https://cdn.example.com/panel.png", panel.ImageURL)
			assert.Equal(t, 1, panel.TokensUsed)
			assert.Equal(t, "Alice waving cheerfully", panel.SubjectDescription)
		})

	f.profiles.On("DebitTokens", mock.Anything, userID, 1).Return(true, nil).Once()
	f.profiles.On("IncrementGeneratedCount", mock.Anything, userID).Return(nil).Once()
	f.tracker.On("MarkLineSucceeded", mock.Anything, "submission-1", 0).Return(int64(1), nil).Once()

	err := f.handler.Handle(context.Background(), payload)
	require.NoError(t, err)

	// Остались незавершенные задачи отправки: файлы не удаляются
	f.store.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
	f.assertExpectations(t)
}

func TestTaskHandler_Handle_LastTaskCleansUpFiles(t *testing.T) {
	f := newHandlerFixture(t)
	userID := uuid.New()
	payload := testPayload(userID)
	payload.LineIndex = 1
	payload.TargetLine = "Bob: Hello!"

	f.describer.On("DescribeScene", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(testSceneDescription(), service.UsageInfo{}, nil).Once()
	f.store.On("ReadStaged", mock.AnythingOfType("string")).Return([]byte("bytes"), nil).Times(3)
	f.compositor.On("ComposePanel", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return("https://cdn.example.com/panel-2.png", nil).Once()
	f.panels.On("Save", mock.Anything, mock.Anything).Return(nil).Once()
	f.profiles.On("DebitTokens", mock.Anything, userID, 1).Return(true, nil).Once()
	f.profiles.On("IncrementGeneratedCount", mock.Anything, userID).Return(nil).Once()

	// Последняя задача отправки: трекер сообщает, что оставшихся нет
	f.tracker.On("MarkLineSucceeded", mock.Anything, "submission-1", 1).Return(int64(0), nil).Once()
	f.store.On("Delete", mock.Anything, "staged-alice.png").Return(nil).Once()
	f.store.On("Delete", mock.Anything, "staged-bob.jpg").Return(nil).Once()
	f.store.On("Delete", mock.Anything, "staged-park.jpg").Return(nil).Once()

	err := f.handler.Handle(context.Background(), payload)
	require.NoError(t, err)
	f.assertExpectations(t)
}

func TestTaskHandler_Handle_DescriptionFailure(t *testing.T) {
	f := newHandlerFixture(t)
	userID := uuid.New()
	payload := testPayload(userID)

	describeErr := models.ErrDescriptionFailed
	f.describer.On("DescribeScene", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, service.UsageInfo{}, describeErr).Once()
	f.tracker.On("MarkLineFailed", mock.Anything, "submission-1", 0, "description_failed").
		Return(int64(1), nil).Once()

	err := f.handler.Handle(context.Background(), payload)
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrDescriptionFailed)

	// Неудача на этапе описания: панель не сохраняется, токен не списывается
	f.panels.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
	f.profiles.AssertNotCalled(t, "DebitTokens", mock.Anything, mock.Anything, mock.Anything)
	f.compositor.AssertNotCalled(t, "ComposePanel", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	f.assertExpectations(t)
}

func TestTaskHandler_Handle_CompositionFailure(t *testing.T) {
	f := newHandlerFixture(t)
	userID := uuid.New()
	payload := testPayload(userID)

	f.describer.On("DescribeScene", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(testSceneDescription(), service.UsageInfo{}, nil).Once()
	f.store.On("ReadStaged", mock.AnythingOfType("string")).Return([]byte("bytes"), nil).Times(3)

	composeErr := models.ErrCompositionFailed
	f.compositor.On("ComposePanel", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return("", composeErr).Once()
	f.tracker.On("MarkLineFailed", mock.Anything, "submission-1", 0, "composition_failed").
		Return(int64(1), nil).Once()

	err := f.handler.Handle(context.Background(), payload)
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrCompositionFailed)

	f.panels.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
	f.profiles.AssertNotCalled(t, "DebitTokens", mock.Anything, mock.Anything, mock.Anything)
	f.assertExpectations(t)
}

func TestTaskHandler_Handle_MissingStagedFile(t *testing.T) {
	f := newHandlerFixture(t)
	userID := uuid.New()
	payload := testPayload(userID)

	f.describer.On("DescribeScene", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(testSceneDescription(), service.UsageInfo{}, nil).Once()
	f.store.On("ReadStaged", "staged-alice.png").Return(nil, errors.New("file missing")).Once()
	f.tracker.On("MarkLineFailed", mock.Anything, "submission-1", 0, "staged_file_missing").
		Return(int64(1), nil).Once()

	err := f.handler.Handle(context.Background(), payload)
	require.Error(t, err)

	f.compositor.AssertNotCalled(t, "ComposePanel", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	f.assertExpectations(t)
}

func TestTaskHandler_Handle_DebitSkippedKeepsPanel(t *testing.T) {
	f := newHandlerFixture(t)
	userID := uuid.New()
	payload := testPayload(userID)

	f.describer.On("DescribeScene", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(testSceneDescription(), service.UsageInfo{}, nil).Once()
	f.store.On("ReadStaged", mock.AnythingOfType("string")).Return([]byte("bytes"), nil).Times(3)
	f.compositor.On("ComposePanel", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return("https://cdn.example.com/panel.png", nil).Once()
	f.panels.On("Save", mock.Anything, mock.Anything).Return(nil).Once()

	// Баланс исчерпан параллельной задачей: списание пропускается, панель остается
	f.profiles.On("DebitTokens", mock.Anything, userID, 1).Return(false, nil).Once()
	f.profiles.On("IncrementGeneratedCount", mock.Anything, userID).Return(nil).Once()
	f.tracker.On("MarkLineSucceeded", mock.Anything, "submission-1", 0).Return(int64(1), nil).Once()

	err := f.handler.Handle(context.Background(), payload)
	require.NoError(t, err, "пропуск списания не является ошибкой задачи")
	f.assertExpectations(t)
}

func TestTaskHandler_Handle_PersistFailure(t *testing.T) {
	f := newHandlerFixture(t)
	userID := uuid.New()
	payload := testPayload(userID)

	f.describer.On("DescribeScene", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(testSceneDescription(), service.UsageInfo{}, nil).Once()
	f.store.On("ReadStaged", mock.AnythingOfType("string")).Return([]byte("bytes"), nil).Times(3)
	f.compositor.On("ComposePanel", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return("https://cdn.example.com/panel.png", nil).Once()

	saveErr := errors.New("connection reset")
	f.panels.On("Save", mock.Anything, mock.Anything).Return(saveErr).Once()
	f.tracker.On("MarkLineFailed", mock.Anything, "submission-1", 0, "persist_failed").
		Return(int64(1), nil).Once()

	err := f.handler.Handle(context.Background(), payload)
	require.Error(t, err)

	f.profiles.AssertNotCalled(t, "DebitTokens", mock.Anything, mock.Anything, mock.Anything)
	f.assertExpectations(t)
}

func TestTaskHandler_Handle_LastTaskFailureCleansUpFiles(t *testing.T) {
	f := newHandlerFixture(t)
	userID := uuid.New()
	payload := testPayload(userID)
	payload.LineIndex = 1

	f.describer.On("DescribeScene", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, service.UsageInfo{}, models.ErrDescriptionFailed).Once()

	// Последняя задача отправки завершилась неудачей: файлы тоже убираются
	f.tracker.On("MarkLineFailed", mock.Anything, "submission-1", 1, "description_failed").
		Return(int64(0), nil).Once()
	f.store.On("Delete", mock.Anything, "staged-alice.png").Return(nil).Once()
	f.store.On("Delete", mock.Anything, "staged-bob.jpg").Return(nil).Once()
	f.store.On("Delete", mock.Anything, "staged-park.jpg").Return(nil).Once()

	err := f.handler.Handle(context.Background(), payload)
	require.Error(t, err)
	f.assertExpectations(t)
}
