package service

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"fable-server/internal/ai"
	"fable-server/internal/imagegen"
	"fable-server/internal/models"
	"fable-server/internal/prompt"
	"fable-server/internal/repository"
	"fable-server/internal/storage"
)

const defaultGenre = "epic-fantasy"

// GenerateSegmentRequest - провалидированный запрос генерации сегмента.
// Ровно одно из полей Prompt/ChoiceText непусто (проверяется хендлером).
type GenerateSegmentRequest struct {
	Prompt          string
	StoryID         *uuid.UUID
	ParentSegmentID *uuid.UUID
	ChoiceText      string
	StoryMode       string
	SkipImage       bool
}

// StoryService реализует конвейер прогрессивной генерации: агрегация
// контекста -> промпт -> оркестратор -> запись сегмента -> немедленный
// ответ. Медиа и персистенция контекста уходят в фоновые задачи.
type StoryService struct {
	storyRepo     repository.StoryRepository
	segmentRepo   repository.SegmentRepository
	aggregator    Aggregator
	composer      Composer
	generator     Generator
	settings      SettingsSource
	scheduler     Scheduler
	imageProvider imagegen.Provider
	blobStore     storage.BlobStore
	verifier      storage.Verifier
	logger        *zap.Logger
}

// NewStoryService связывает конвейер генерации.
func NewStoryService(
	storyRepo repository.StoryRepository,
	segmentRepo repository.SegmentRepository,
	aggregator Aggregator,
	composer Composer,
	generator Generator,
	settings SettingsSource,
	scheduler Scheduler,
	imageProvider imagegen.Provider,
	blobStore storage.BlobStore,
	verifier storage.Verifier,
	logger *zap.Logger,
) *StoryService {
	return &StoryService{
		storyRepo:     storyRepo,
		segmentRepo:   segmentRepo,
		aggregator:    aggregator,
		composer:      composer,
		generator:     generator,
		settings:      settings,
		scheduler:     scheduler,
		imageProvider: imageProvider,
		blobStore:     blobStore,
		verifier:      verifier,
		logger:        logger.Named("StoryService"),
	}
}

// GenerateSegment выполняет один шаг истории. Текст сегмента фиксируется
// в БД и возвращается сразу; генерация иллюстрации и слияние контекстов
// выполняются после ответа и не могут повлиять на уже отданный текст.
func (s *StoryService) GenerateSegment(ctx context.Context, req GenerateSegmentRequest) (*models.StorySegment, error) {
	story, history, err := s.resolveStory(ctx, req)
	if err != nil {
		return nil, err
	}

	settings := s.settings.Get(ctx)
	nc := s.aggregator.Aggregate(history, story.Genre, settings.EstimatedTotalLength)

	composed, err := s.composer.Compose(prompt.ComposeInput{
		Genre:            story.Genre,
		UserPrompt:       req.Prompt,
		ChoiceText:       req.ChoiceText,
		NarrativeContext: nc,
		VisualContext:    story.VisualContext,
		History:          history,
		Settings:         settings,
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка построения промпта: %w", err)
	}

	generated := s.generator.Generate(ctx, ai.GenerateRequest{
		Prompt:           composed,
		Genre:            story.Genre,
		NarrativeContext: nc,
		Settings:         settings,
	})

	segment := &models.StorySegment{
		ID:              uuid.New(),
		StoryID:         story.ID,
		ParentSegmentID: req.ParentSegmentID,
		Text:            generated.SegmentText,
		Choices:         generated.Choices,
		IsEnd:           generated.IsEnd,
		ImageStatus:     models.ImageStatusNotStarted,
	}
	if req.ChoiceText != "" {
		choice := req.ChoiceText
		segment.TriggeringChoiceText = &choice
	}
	if !req.SkipImage {
		segment.ImageStatus = models.ImageStatusGenerating
		segment.ImageAttempt = 1
	}

	if err := s.segmentRepo.Create(ctx, segment); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInternalServer, err)
	}

	// С этого места ответ уже гарантирован: любая ошибка планирования
	// фоновых задач логируется, но наружу не выходит.
	s.scheduleContextTask(ctx, story, generated)
	if !req.SkipImage {
		s.scheduleImageTask(ctx, story, segment, generated, history)
	}

	return segment, nil
}

// resolveStory находит существующую историю либо создает новую по промпту.
func (s *StoryService) resolveStory(ctx context.Context, req GenerateSegmentRequest) (*models.Story, []models.StorySegment, error) {
	if req.StoryID == nil {
		story := &models.Story{
			ID:          uuid.New(),
			Title:       deriveTitle(req.Prompt),
			Genre:       normalizeGenre(req.StoryMode),
			AudioStatus: models.AudioStatusNotStarted,
		}
		if err := s.storyRepo.Create(ctx, story); err != nil {
			return nil, nil, fmt.Errorf("%w: %v", models.ErrInternalServer, err)
		}
		s.logger.Info("Story created",
			zap.String("storyID", story.ID.String()),
			zap.String("genre", story.Genre))
		return story, nil, nil
	}

	story, err := s.storyRepo.GetByID(ctx, *req.StoryID)
	if err != nil {
		return nil, nil, err
	}
	if story.IsCompleted {
		return nil, nil, models.ErrStoryAlreadyCompleted
	}

	history, err := s.segmentRepo.ListByStory(ctx, story.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", models.ErrInternalServer, err)
	}
	return story, history, nil
}

// scheduleContextTask сливает контексты провайдера в строку истории.
// Слияние идемпотентно; уже известные описания персонажей не затираются.
func (s *StoryService) scheduleContextTask(ctx context.Context, story *models.Story, generated *models.GeneratedSegment) {
	if generated.VisualContext == nil && generated.NarrativeContext == nil {
		return
	}
	storyID := story.ID
	merged := story.VisualContext
	if generated.VisualContext != nil {
		if merged == nil {
			merged = &models.VisualContext{}
		}
		merged.Merge(generated.VisualContext)
	}
	nc := generated.NarrativeContext

	_, err := s.scheduler.Submit(ctx, "persist-context", func(taskCtx context.Context) error {
		return s.storyRepo.UpdateContexts(taskCtx, storyID, merged, nc)
	})
	if err != nil {
		s.logger.Error("Failed to schedule context task",
			zap.String("storyID", storyID.String()), zap.Error(err))
	}
}

// scheduleImageTask запускает фоновую генерацию иллюстрации сегмента.
func (s *StoryService) scheduleImageTask(ctx context.Context, story *models.Story, segment *models.StorySegment, generated *models.GeneratedSegment, history []models.StorySegment) {
	vc := story.VisualContext
	if generated.VisualContext != nil {
		if vc == nil {
			vc = &models.VisualContext{}
		}
		vc.Merge(generated.VisualContext)
	}
	imagePrompt := buildImagePrompt(generated, segment.Text, vc, history)

	segmentID := segment.ID
	storyID := story.ID
	attempt := segment.ImageAttempt

	_, err := s.scheduler.Submit(ctx, "generate-image", func(taskCtx context.Context) error {
		return s.runImageTask(taskCtx, storyID, segmentID, attempt, imagePrompt)
	})
	if err != nil {
		// Задача не стартовала - честно фиксируем failed, чтобы клиент
		// не ждал completed, который никогда не наступит.
		s.logger.Error("Failed to schedule image task",
			zap.String("segmentID", segmentID.String()), zap.Error(err))
		if failErr := s.segmentRepo.FailImage(ctx, segmentID, attempt); failErr != nil {
			s.logger.Error("Failed to mark image as failed", zap.Error(failErr))
		}
	}
}

// runImageTask - тело фоновой задачи. Любая ошибка на любом шаге
// терминальна: статус failed, без автоматических повторов. Запись
// результата условна по номеру попытки, так что проигравшая гонку
// задача ничего не перетирает.
func (s *StoryService) runImageTask(ctx context.Context, storyID, segmentID uuid.UUID, attempt int, imagePrompt string) error {
	fail := func(cause error) error {
		imageTaskOutcomes.WithLabelValues("failed").Inc()
		if err := s.segmentRepo.FailImage(ctx, segmentID, attempt); err != nil {
			s.logger.Error("Failed to record image failure",
				zap.String("segmentID", segmentID.String()), zap.Error(err))
		}
		return cause
	}

	data, err := s.imageProvider.GenerateImage(ctx, imagePrompt)
	if err != nil {
		return fail(fmt.Errorf("ошибка генерации изображения: %w", err))
	}

	// Провайдерские URL эфемерны: байты всегда перекладываются
	// в собственное хранилище, и только его URL попадает в БД.
	key := fmt.Sprintf("images/%s/%s_%d.png", storyID, segmentID, attempt)
	url, err := s.blobStore.Put(ctx, key, data, "image/png")
	if err != nil {
		return fail(fmt.Errorf("ошибка загрузки изображения в хранилище: %w", err))
	}

	if err := s.verifier.Verify(ctx, url); err != nil {
		return fail(fmt.Errorf("изображение не прошло верификацию: %w", err))
	}

	if err := s.segmentRepo.CompleteImage(ctx, segmentID, attempt, url); err != nil {
		return fail(err)
	}
	imageTaskOutcomes.WithLabelValues("completed").Inc()
	s.logger.Info("Segment image completed",
		zap.String("segmentID", segmentID.String()),
		zap.Int("attempt", attempt),
		zap.Int("size_bytes", len(data)))
	return nil
}

// RegenerateImage перезапускает генерацию иллюстрации одного сегмента.
// Допустимо только из failed или not_started; инкремент номера попытки
// обесценивает записи всех ранее запущенных задач этого сегмента.
func (s *StoryService) RegenerateImage(ctx context.Context, segmentID uuid.UUID) (*models.StorySegment, error) {
	segment, err := s.segmentRepo.GetByID(ctx, segmentID)
	if err != nil {
		return nil, err
	}

	attempt, err := s.segmentRepo.StartImageAttempt(ctx, segmentID)
	if err != nil {
		return nil, err
	}

	story, err := s.storyRepo.GetByID(ctx, segment.StoryID)
	if err != nil {
		return nil, err
	}
	history, err := s.segmentRepo.ListByStory(ctx, segment.StoryID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInternalServer, err)
	}

	imagePrompt := buildImagePrompt(&models.GeneratedSegment{}, segment.Text, story.VisualContext, historyBefore(history, segment.ID))

	storyID := segment.StoryID
	if _, err := s.scheduler.Submit(ctx, "regenerate-image", func(taskCtx context.Context) error {
		return s.runImageTask(taskCtx, storyID, segmentID, attempt, imagePrompt)
	}); err != nil {
		s.logger.Error("Failed to schedule image regeneration",
			zap.String("segmentID", segmentID.String()), zap.Error(err))
		if failErr := s.segmentRepo.FailImage(ctx, segmentID, attempt); failErr != nil {
			s.logger.Error("Failed to mark image as failed", zap.Error(failErr))
		}
		return nil, models.ErrInternalServer
	}

	segment.ImageStatus = models.ImageStatusGenerating
	segment.ImageAttempt = attempt
	return segment, nil
}

// FinishStory выставляет флаг завершения истории. Это единственный путь:
// is_end последнего сегмента завершением истории не считается.
func (s *StoryService) FinishStory(ctx context.Context, storyID uuid.UUID) error {
	return s.storyRepo.MarkCompleted(ctx, storyID)
}

// GetStory возвращает историю по идентификатору.
func (s *StoryService) GetStory(ctx context.Context, storyID uuid.UUID) (*models.Story, error) {
	return s.storyRepo.GetByID(ctx, storyID)
}

// GetSegment возвращает сегмент по идентификатору.
func (s *StoryService) GetSegment(ctx context.Context, segmentID uuid.UUID) (*models.StorySegment, error) {
	return s.segmentRepo.GetByID(ctx, segmentID)
}

// ListSegments возвращает сегменты истории в порядке создания.
func (s *StoryService) ListSegments(ctx context.Context, storyID uuid.UUID) ([]models.StorySegment, error) {
	if _, err := s.storyRepo.GetByID(ctx, storyID); err != nil {
		return nil, err
	}
	return s.segmentRepo.ListByStory(ctx, storyID)
}

// buildImagePrompt собирает расширенный промпт иллюстрации: сцена +
// стиль и канонические описания персонажей + хвост истории для
// непрерывности между кадрами.
func buildImagePrompt(generated *models.GeneratedSegment, segmentText string, vc *models.VisualContext, history []models.StorySegment) string {
	var sb strings.Builder

	scene := generated.ImagePrompt
	if scene == "" {
		scene = segmentText
	}
	sb.WriteString("Scene: ")
	sb.WriteString(scene)

	if vc != nil {
		if vc.Style != "" {
			sb.WriteString("\nArt style: ")
			sb.WriteString(vc.Style)
		}
		if len(vc.Characters) > 0 {
			sb.WriteString("\nCharacters (keep these descriptions exactly):")
			for _, name := range sortedCharacterNames(vc.Characters) {
				sb.WriteString(fmt.Sprintf("\n- %s: %s", name, vc.Characters[name]))
			}
		}
	}

	// Последние 1-2 сегмента дают иллюстратору непрерывность сцены.
	tail := history
	if len(tail) > 2 {
		tail = tail[len(tail)-2:]
	}
	if len(tail) > 0 {
		sb.WriteString("\nPrevious scenes for continuity:")
		for _, seg := range tail {
			sb.WriteString("\n")
			sb.WriteString(truncateText(seg.Text, 300))
		}
	}
	return sb.String()
}

func sortedCharacterNames(characters map[string]string) []string {
	names := make([]string, 0, len(characters))
	for name := range characters {
		names = append(names, name)
	}
	// Детерминированный порядок, чтобы один контекст давал один промпт.
	sort.Strings(names)
	return names
}

// historyBefore возвращает сегменты, созданные до указанного.
func historyBefore(history []models.StorySegment, segmentID uuid.UUID) []models.StorySegment {
	for i, seg := range history {
		if seg.ID == segmentID {
			return history[:i]
		}
	}
	return history
}

func truncateText(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + "..."
}

func deriveTitle(userPrompt string) string {
	title := strings.TrimSpace(userPrompt)
	if title == "" {
		return "Untitled story"
	}
	return truncateText(title, 80)
}

func normalizeGenre(mode string) string {
	mode = strings.TrimSpace(strings.ToLower(mode))
	if mode == "" {
		return defaultGenre
	}
	return mode
}
