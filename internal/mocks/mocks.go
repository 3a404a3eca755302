package mocks

import (
	"context"
	"io"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"comic-server/internal/interfaces"
	"comic-server/internal/messaging"
	"comic-server/internal/models"
	"comic-server/internal/service"
)

// MockSceneDescriber is a mock type for the SceneDescriber type
type MockSceneDescriber struct {
	mock.Mock
}

func (_m *MockSceneDescriber) DescribeScene(ctx context.Context, userID string, contextText string, dialogue []string, targetLine string) (*models.SceneDescription, service.UsageInfo, error) {
	ret := _m.Called(ctx, userID, contextText, dialogue, targetLine)

	var r0 *models.SceneDescription
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*models.SceneDescription)
	}
	var r1 service.UsageInfo
	if ret.Get(1) != nil {
		r1 = ret.Get(1).(service.UsageInfo)
	}
	return r0, r1, ret.Error(2)
}

var _ service.SceneDescriber = (*MockSceneDescriber)(nil)

// MockImageCompositor is a mock type for the ImageCompositor type
type MockImageCompositor struct {
	mock.Mock
}

func (_m *MockImageCompositor) ComposePanel(ctx context.Context, characterImages []string, backgroundImage string, instruction string) (string, error) {
	ret := _m.Called(ctx, characterImages, backgroundImage, instruction)
	return ret.String(0), ret.Error(1)
}

var _ service.ImageCompositor = (*MockImageCompositor)(nil)

// MockPanelRepository is a mock type for the PanelRepository type
type MockPanelRepository struct {
	mock.Mock
}

func (_m *MockPanelRepository) Save(ctx context.Context, panel *models.GeneratedPanel) error {
	ret := _m.Called(ctx, panel)
	return ret.Error(0)
}

func (_m *MockPanelRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.GeneratedPanel, error) {
	ret := _m.Called(ctx, userID, limit, offset)

	var r0 []models.GeneratedPanel
	if ret.Get(0) != nil {
		r0 = ret.Get(0).([]models.GeneratedPanel)
	}
	return r0, ret.Error(1)
}

func (_m *MockPanelRepository) CountByUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	ret := _m.Called(ctx, userID)
	return ret.Get(0).(int64), ret.Error(1)
}

var _ interfaces.PanelRepository = (*MockPanelRepository)(nil)

// MockProfileRepository is a mock type for the ProfileRepository type
type MockProfileRepository struct {
	mock.Mock
}

func (_m *MockProfileRepository) GetProfile(ctx context.Context, userID uuid.UUID) (*models.UserProfile, error) {
	ret := _m.Called(ctx, userID)

	var r0 *models.UserProfile
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*models.UserProfile)
	}
	return r0, ret.Error(1)
}

func (_m *MockProfileRepository) EnsureProfile(ctx context.Context, userID uuid.UUID) error {
	ret := _m.Called(ctx, userID)
	return ret.Error(0)
}

func (_m *MockProfileRepository) DebitTokens(ctx context.Context, userID uuid.UUID, amount int) (bool, error) {
	ret := _m.Called(ctx, userID, amount)
	return ret.Bool(0), ret.Error(1)
}

func (_m *MockProfileRepository) CreditTokens(ctx context.Context, userID uuid.UUID, amount int) error {
	ret := _m.Called(ctx, userID, amount)
	return ret.Error(0)
}

func (_m *MockProfileRepository) IncrementGeneratedCount(ctx context.Context, userID uuid.UUID) error {
	ret := _m.Called(ctx, userID)
	return ret.Error(0)
}

var _ interfaces.ProfileRepository = (*MockProfileRepository)(nil)

// MockTokenRepository is a mock type for the TokenRepository type
type MockTokenRepository struct {
	mock.Mock
}

func (_m *MockTokenRepository) ListActivePackages(ctx context.Context) ([]models.TokenPackage, error) {
	ret := _m.Called(ctx)

	var r0 []models.TokenPackage
	if ret.Get(0) != nil {
		r0 = ret.Get(0).([]models.TokenPackage)
	}
	return r0, ret.Error(1)
}

func (_m *MockTokenRepository) GetPackage(ctx context.Context, id int64) (*models.TokenPackage, error) {
	ret := _m.Called(ctx, id)

	var r0 *models.TokenPackage
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*models.TokenPackage)
	}
	return r0, ret.Error(1)
}

func (_m *MockTokenRepository) CreatePurchase(ctx context.Context, purchase *models.TokenPurchase) error {
	ret := _m.Called(ctx, purchase)
	return ret.Error(0)
}

func (_m *MockTokenRepository) CompletePurchase(ctx context.Context, purchaseID uuid.UUID) error {
	ret := _m.Called(ctx, purchaseID)
	return ret.Error(0)
}

func (_m *MockTokenRepository) GetPurchase(ctx context.Context, purchaseID uuid.UUID) (*models.TokenPurchase, error) {
	ret := _m.Called(ctx, purchaseID)

	var r0 *models.TokenPurchase
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*models.TokenPurchase)
	}
	return r0, ret.Error(1)
}

var _ interfaces.TokenRepository = (*MockTokenRepository)(nil)

// MockFileStore is a mock type for the FileStore type
type MockFileStore struct {
	mock.Mock
}

func (_m *MockFileStore) Stage(ctx context.Context, originalName string, r io.Reader) (string, error) {
	ret := _m.Called(ctx, originalName, r)
	return ret.String(0), ret.Error(1)
}

func (_m *MockFileStore) ReadStaged(ref string) ([]byte, error) {
	ret := _m.Called(ref)

	var r0 []byte
	if ret.Get(0) != nil {
		r0 = ret.Get(0).([]byte)
	}
	return r0, ret.Error(1)
}

func (_m *MockFileStore) Delete(ctx context.Context, ref string) error {
	ret := _m.Called(ctx, ref)
	return ret.Error(0)
}

var _ interfaces.FileStore = (*MockFileStore)(nil)

// MockPanelTaskPublisher is a mock type for the PanelTaskPublisher type
type MockPanelTaskPublisher struct {
	mock.Mock
}

func (_m *MockPanelTaskPublisher) PublishPanelTask(ctx context.Context, payload messaging.PanelTaskPayload) error {
	ret := _m.Called(ctx, payload)
	return ret.Error(0)
}

var _ messaging.PanelTaskPublisher = (*MockPanelTaskPublisher)(nil)

// MockDispatchService is a mock type for the DispatchService type
type MockDispatchService struct {
	mock.Mock
}

func (_m *MockDispatchService) Submit(ctx context.Context, req service.SubmitRequest) (*service.SubmitResult, error) {
	ret := _m.Called(ctx, req)

	var r0 *service.SubmitResult
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*service.SubmitResult)
	}
	return r0, ret.Error(1)
}

var _ service.DispatchService = (*MockDispatchService)(nil)

// MockSubmissionTracker is a mock type for the SubmissionTracker type
type MockSubmissionTracker struct {
	mock.Mock
}

func (_m *MockSubmissionTracker) InitSubmission(ctx context.Context, submissionID string, userID uuid.UUID, total int) error {
	ret := _m.Called(ctx, submissionID, userID, total)
	return ret.Error(0)
}

func (_m *MockSubmissionTracker) MarkLineSucceeded(ctx context.Context, submissionID string, lineIndex int) (int64, error) {
	ret := _m.Called(ctx, submissionID, lineIndex)
	return ret.Get(0).(int64), ret.Error(1)
}

func (_m *MockSubmissionTracker) MarkLineFailed(ctx context.Context, submissionID string, lineIndex int, reason string) (int64, error) {
	ret := _m.Called(ctx, submissionID, lineIndex, reason)
	return ret.Get(0).(int64), ret.Error(1)
}

func (_m *MockSubmissionTracker) GetSubmission(ctx context.Context, submissionID string) (*models.SubmissionStatus, error) {
	ret := _m.Called(ctx, submissionID)

	var r0 *models.SubmissionStatus
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*models.SubmissionStatus)
	}
	return r0, ret.Error(1)
}

var _ service.SubmissionTracker = (*MockSubmissionTracker)(nil)
