package service

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"fable-server/internal/models"
	"fable-server/internal/narrative"
	"fable-server/internal/prompt"
)

type storyServiceFixture struct {
	storyRepo   *mockStoryRepo
	segmentRepo *mockSegmentRepo
	generator   *mockGenerator
	composer    *mockComposer
	settings    *mockSettings
	scheduler   *syncScheduler
	image       *mockImageProvider
	blob        *mockBlobStore
	verifier    *mockVerifier
	svc         *StoryService
}

func newStoryServiceFixture() *storyServiceFixture {
	f := &storyServiceFixture{
		storyRepo:   new(mockStoryRepo),
		segmentRepo: new(mockSegmentRepo),
		generator:   new(mockGenerator),
		composer:    new(mockComposer),
		settings:    new(mockSettings),
		scheduler:   &syncScheduler{},
		image:       new(mockImageProvider),
		blob:        new(mockBlobStore),
		verifier:    new(mockVerifier),
	}
	f.svc = NewStoryService(
		f.storyRepo, f.segmentRepo,
		narrative.NewAggregator(narrative.NewKeywordExtractor()),
		f.composer, f.generator, f.settings, f.scheduler,
		f.image, f.blob, f.verifier,
		zap.NewNop(),
	)
	return f
}

func (f *storyServiceFixture) expectComposeAndGenerate(generated *models.GeneratedSegment) {
	f.settings.On("Get", mock.Anything).Return(models.DefaultGenerationSettings())
	f.composer.On("Compose", mock.Anything).Return(prompt.ComposedPrompt{System: "sys", User: "usr"}, nil)
	f.generator.On("Generate", mock.Anything, mock.Anything).Return(generated)
}

func TestStoryService_GenerateSegment_NewStory(t *testing.T) {
	f := newStoryServiceFixture()

	f.storyRepo.On("Create", mock.Anything, mock.MatchedBy(func(s *models.Story) bool {
		return s.Genre == "epic-fantasy" && s.Title == "A dragon visits a village"
	})).Return(nil)
	f.expectComposeAndGenerate(&models.GeneratedSegment{
		SegmentText: "The dragon descended upon the village square.",
		Choices:     []string{"Hide", "Talk to it", "Run"},
		IsEnd:       false,
		ImagePrompt: "a dragon over a village",
		VisualContext: &models.VisualContext{
			Style:      "oil painting",
			Characters: map[string]string{"Dragon": "an emerald dragon with golden eyes"},
		},
	})
	f.segmentRepo.On("Create", mock.Anything, mock.Anything).Return(nil)
	f.storyRepo.On("UpdateContexts", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	f.image.On("GenerateImage", mock.Anything, mock.Anything).Return([]byte("png"), nil)
	f.blob.On("Put", mock.Anything, mock.Anything, []byte("png"), "image/png").Return("https://cdn/img.png", nil)
	f.verifier.On("Verify", mock.Anything, "https://cdn/img.png").Return(nil)
	f.segmentRepo.On("CompleteImage", mock.Anything, mock.Anything, 1, "https://cdn/img.png").Return(nil)

	seg, err := f.svc.GenerateSegment(context.Background(), GenerateSegmentRequest{
		Prompt:    "A dragon visits a village",
		StoryMode: "epic-fantasy",
	})

	require.NoError(t, err)
	assert.False(t, seg.IsEnd)
	assert.NotEmpty(t, seg.Choices)
	assert.Equal(t, models.ImageStatusGenerating, seg.ImageStatus)
	assert.Equal(t, 1, seg.ImageAttempt)
	assert.ElementsMatch(t, []string{"persist-context", "generate-image"}, f.scheduler.submitted)
	f.storyRepo.AssertExpectations(t)
	f.segmentRepo.AssertExpectations(t)
}

func TestStoryService_GenerateSegment_SkipImage(t *testing.T) {
	f := newStoryServiceFixture()

	f.storyRepo.On("Create", mock.Anything, mock.Anything).Return(nil)
	f.expectComposeAndGenerate(&models.GeneratedSegment{
		SegmentText: "A quiet beginning.",
		Choices:     []string{"Go left", "Go right", "Wait"},
	})
	f.segmentRepo.On("Create", mock.Anything, mock.Anything).Return(nil)

	seg, err := f.svc.GenerateSegment(context.Background(), GenerateSegmentRequest{
		Prompt:    "A quiet village morning",
		SkipImage: true,
	})

	require.NoError(t, err)
	assert.Equal(t, models.ImageStatusNotStarted, seg.ImageStatus)
	assert.NotContains(t, f.scheduler.submitted, "generate-image")
	f.image.AssertNotCalled(t, "GenerateImage", mock.Anything, mock.Anything)
}

func TestStoryService_GenerateSegment_ContinueStory(t *testing.T) {
	f := newStoryServiceFixture()

	storyID := uuid.New()
	parentID := uuid.New()
	story := &models.Story{ID: storyID, Genre: "mystery"}
	choice := "Open the door"
	history := []models.StorySegment{{ID: parentID, StoryID: storyID, Text: "The corridor ended at a door."}}

	f.storyRepo.On("GetByID", mock.Anything, storyID).Return(story, nil)
	f.segmentRepo.On("ListByStory", mock.Anything, storyID).Return(history, nil)
	f.expectComposeAndGenerate(&models.GeneratedSegment{
		SegmentText: "The door creaked open.",
		Choices:     []string{"Step inside", "Call out", "Retreat"},
	})
	f.segmentRepo.On("Create", mock.Anything, mock.MatchedBy(func(s *models.StorySegment) bool {
		return s.StoryID == storyID && s.ParentSegmentID != nil && *s.ParentSegmentID == parentID &&
			s.TriggeringChoiceText != nil && *s.TriggeringChoiceText == choice
	})).Return(nil)
	f.image.On("GenerateImage", mock.Anything, mock.Anything).Return([]byte("png"), nil)
	f.blob.On("Put", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return("https://cdn/i.png", nil)
	f.verifier.On("Verify", mock.Anything, mock.Anything).Return(nil)
	f.segmentRepo.On("CompleteImage", mock.Anything, mock.Anything, 1, "https://cdn/i.png").Return(nil)

	_, err := f.svc.GenerateSegment(context.Background(), GenerateSegmentRequest{
		StoryID:         &storyID,
		ParentSegmentID: &parentID,
		ChoiceText:      choice,
	})

	require.NoError(t, err)
	f.segmentRepo.AssertExpectations(t)
}

func TestStoryService_GenerateSegment_CompletedStoryRejected(t *testing.T) {
	f := newStoryServiceFixture()

	storyID := uuid.New()
	f.storyRepo.On("GetByID", mock.Anything, storyID).
		Return(&models.Story{ID: storyID, IsCompleted: true}, nil)

	_, err := f.svc.GenerateSegment(context.Background(), GenerateSegmentRequest{
		StoryID:    &storyID,
		ChoiceText: "Continue",
	})

	assert.ErrorIs(t, err, models.ErrStoryAlreadyCompleted)
}

func TestStoryService_ImageFailureDoesNotAffectText(t *testing.T) {
	f := newStoryServiceFixture()

	f.storyRepo.On("Create", mock.Anything, mock.Anything).Return(nil)
	f.expectComposeAndGenerate(&models.GeneratedSegment{
		SegmentText: "The text that must survive.",
		Choices:     []string{"One", "Two", "Three"},
	})
	f.segmentRepo.On("Create", mock.Anything, mock.Anything).Return(nil)
	f.image.On("GenerateImage", mock.Anything, mock.Anything).Return(nil, errors.New("provider down"))
	f.segmentRepo.On("FailImage", mock.Anything, mock.Anything, 1).Return(nil)

	seg, err := f.svc.GenerateSegment(context.Background(), GenerateSegmentRequest{Prompt: "A tale"})

	// Ошибка фоновой задачи не доходит до вызывающего.
	require.NoError(t, err)
	assert.Equal(t, "The text that must survive.", seg.Text)
	assert.Equal(t, []string{"One", "Two", "Three"}, seg.Choices)
	f.segmentRepo.AssertCalled(t, "FailImage", mock.Anything, seg.ID, 1)
	f.blob.AssertNotCalled(t, "Put", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestStoryService_RegenerateImage(t *testing.T) {
	f := newStoryServiceFixture()

	storyID := uuid.New()
	segmentID := uuid.New()
	segment := &models.StorySegment{
		ID:          segmentID,
		StoryID:     storyID,
		Text:        "A ruined tower.",
		ImageStatus: models.ImageStatusFailed,
	}

	f.segmentRepo.On("GetByID", mock.Anything, segmentID).Return(segment, nil)
	f.segmentRepo.On("StartImageAttempt", mock.Anything, segmentID).Return(2, nil)
	f.storyRepo.On("GetByID", mock.Anything, storyID).Return(&models.Story{ID: storyID}, nil)
	f.segmentRepo.On("ListByStory", mock.Anything, storyID).Return([]models.StorySegment{*segment}, nil)
	f.image.On("GenerateImage", mock.Anything, mock.Anything).Return([]byte("png"), nil)
	f.blob.On("Put", mock.Anything, mock.Anything, mock.Anything, "image/png").Return("https://cdn/retry.png", nil)
	f.verifier.On("Verify", mock.Anything, "https://cdn/retry.png").Return(nil)
	f.segmentRepo.On("CompleteImage", mock.Anything, segmentID, 2, "https://cdn/retry.png").Return(nil)

	got, err := f.svc.RegenerateImage(context.Background(), segmentID)

	require.NoError(t, err)
	assert.Equal(t, models.ImageStatusGenerating, got.ImageStatus)
	assert.Equal(t, 2, got.ImageAttempt)
	f.segmentRepo.AssertExpectations(t)
}

func TestStoryService_RegenerateImage_NotRetryable(t *testing.T) {
	f := newStoryServiceFixture()

	segmentID := uuid.New()
	f.segmentRepo.On("GetByID", mock.Anything, segmentID).
		Return(&models.StorySegment{ID: segmentID, ImageStatus: models.ImageStatusGenerating}, nil)
	f.segmentRepo.On("StartImageAttempt", mock.Anything, segmentID).
		Return(0, models.ErrImageNotRetryable)

	_, err := f.svc.RegenerateImage(context.Background(), segmentID)

	assert.ErrorIs(t, err, models.ErrImageNotRetryable)
	f.image.AssertNotCalled(t, "GenerateImage", mock.Anything, mock.Anything)
}

func TestBuildImagePrompt(t *testing.T) {
	vc := &models.VisualContext{
		Style: "watercolor",
		Characters: map[string]string{
			"Mira": "a tall woman in a red cloak",
		},
	}
	history := []models.StorySegment{
		{Text: "First scene."},
		{Text: "Second scene."},
		{Text: "Third scene."},
	}

	got := buildImagePrompt(&models.GeneratedSegment{ImagePrompt: "a bridge at dawn"}, "fallback", vc, history)

	assert.Contains(t, got, "a bridge at dawn")
	assert.Contains(t, got, "watercolor")
	assert.Contains(t, got, "a tall woman in a red cloak")
	// В промпт попадают только последние два сегмента.
	assert.NotContains(t, got, "First scene.")
	assert.Contains(t, got, "Second scene.")
	assert.Contains(t, got, "Third scene.")
}
