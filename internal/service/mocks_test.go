package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"fable-server/internal/ai"
	"fable-server/internal/models"
	"fable-server/internal/prompt"
	"fable-server/pkg/taskrunner"
)

type mockStoryRepo struct{ mock.Mock }

func (m *mockStoryRepo) Create(ctx context.Context, story *models.Story) error {
	return m.Called(ctx, story).Error(0)
}

func (m *mockStoryRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Story, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Story), args.Error(1)
}

func (m *mockStoryRepo) UpdateContexts(ctx context.Context, id uuid.UUID, vc *models.VisualContext, nc *models.NarrativeContext) error {
	return m.Called(ctx, id, vc, nc).Error(0)
}

func (m *mockStoryRepo) MarkCompleted(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockStoryRepo) TryStartAudio(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockStoryRepo) FinishAudio(ctx context.Context, id uuid.UUID, url string) error {
	return m.Called(ctx, id, url).Error(0)
}

func (m *mockStoryRepo) FailAudio(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

type mockSegmentRepo struct{ mock.Mock }

func (m *mockSegmentRepo) Create(ctx context.Context, segment *models.StorySegment) error {
	return m.Called(ctx, segment).Error(0)
}

func (m *mockSegmentRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.StorySegment, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.StorySegment), args.Error(1)
}

func (m *mockSegmentRepo) ListByStory(ctx context.Context, storyID uuid.UUID) ([]models.StorySegment, error) {
	args := m.Called(ctx, storyID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.StorySegment), args.Error(1)
}

func (m *mockSegmentRepo) CompleteImage(ctx context.Context, id uuid.UUID, attempt int, url string) error {
	return m.Called(ctx, id, attempt, url).Error(0)
}

func (m *mockSegmentRepo) FailImage(ctx context.Context, id uuid.UUID, attempt int) error {
	return m.Called(ctx, id, attempt).Error(0)
}

func (m *mockSegmentRepo) StartImageAttempt(ctx context.Context, id uuid.UUID) (int, error) {
	args := m.Called(ctx, id)
	return args.Int(0), args.Error(1)
}

type mockComposer struct{ mock.Mock }

func (m *mockComposer) Compose(in prompt.ComposeInput) (prompt.ComposedPrompt, error) {
	args := m.Called(in)
	return args.Get(0).(prompt.ComposedPrompt), args.Error(1)
}

type mockGenerator struct{ mock.Mock }

func (m *mockGenerator) Generate(ctx context.Context, req ai.GenerateRequest) *models.GeneratedSegment {
	return m.Called(ctx, req).Get(0).(*models.GeneratedSegment)
}

type mockSettings struct{ mock.Mock }

func (m *mockSettings) Get(ctx context.Context) models.GenerationSettings {
	return m.Called(ctx).Get(0).(models.GenerationSettings)
}

type mockImageProvider struct{ mock.Mock }

func (m *mockImageProvider) GenerateImage(ctx context.Context, p string) ([]byte, error) {
	args := m.Called(ctx, p)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

type mockBlobStore struct{ mock.Mock }

func (m *mockBlobStore) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	args := m.Called(ctx, key, data, contentType)
	return args.String(0), args.Error(1)
}

type mockVerifier struct{ mock.Mock }

func (m *mockVerifier) Verify(ctx context.Context, url string) error {
	return m.Called(ctx, url).Error(0)
}

type mockSynthesizer struct{ mock.Mock }

func (m *mockSynthesizer) Synthesize(ctx context.Context, text, voiceID string) ([]byte, error) {
	args := m.Called(ctx, text, voiceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

// syncScheduler выполняет задачу синхронно, чтобы фоновые эффекты
// были видны тесту сразу после вызова.
type syncScheduler struct {
	submitted []string
	failNext  bool
}

func (s *syncScheduler) Submit(ctx context.Context, name string, taskFunc taskrunner.TaskFunc) (uuid.UUID, error) {
	if s.failNext {
		return uuid.UUID{}, context.DeadlineExceeded
	}
	s.submitted = append(s.submitted, name)
	_ = taskFunc(ctx)
	return uuid.New(), nil
}
