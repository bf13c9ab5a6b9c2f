package service

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"fable-server/internal/models"
	"fable-server/internal/repository"
	"fable-server/internal/storage"
	"fable-server/internal/tts"
)

// AudioResult - итог успешной сборки аудио.
type AudioResult struct {
	AudioURL string
	FileSize int
}

// AudioService собирает полную аудио-версию завершённой истории:
// конкатенация текста -> чанки по границам предложений -> строго
// последовательный синтез -> склейка MP3 -> загрузка -> верификация.
type AudioService struct {
	storyRepo   repository.StoryRepository
	segmentRepo repository.SegmentRepository
	synthesizer tts.Synthesizer
	blobStore   storage.BlobStore
	verifier    storage.Verifier
	chunkLimit  int
	logger      *zap.Logger
}

// NewAudioService связывает сборщик аудио. chunkLimit - лимит символов
// на один вызов TTS-провайдера.
func NewAudioService(
	storyRepo repository.StoryRepository,
	segmentRepo repository.SegmentRepository,
	synthesizer tts.Synthesizer,
	blobStore storage.BlobStore,
	verifier storage.Verifier,
	chunkLimit int,
	logger *zap.Logger,
) *AudioService {
	if chunkLimit <= 0 {
		chunkLimit = 3000
	}
	return &AudioService{
		storyRepo:   storyRepo,
		segmentRepo: segmentRepo,
		synthesizer: synthesizer,
		blobStore:   blobStore,
		verifier:    verifier,
		chunkLimit:  chunkLimit,
		logger:      logger.Named("AudioService"),
	}
}

// AssembleStoryAudio запускается только явным запросом пользователя и
// только для завершённой истории. Статус переходит not_started|failed ->
// in_progress атомарно; параллельный второй запуск получает
// ErrAudioAlreadyInFlight. Любая ошибка на любом шаге терминальна:
// частичное аудио отбрасывается, статус failed.
func (s *AudioService) AssembleStoryAudio(ctx context.Context, storyID uuid.UUID, voiceID string) (*AudioResult, error) {
	story, err := s.storyRepo.GetByID(ctx, storyID)
	if err != nil {
		return nil, err
	}
	if !story.IsCompleted {
		return nil, models.ErrStoryNotCompleted
	}

	if err := s.storyRepo.TryStartAudio(ctx, storyID); err != nil {
		return nil, err
	}

	// После перехода в in_progress терминальный статус обязан записаться
	// даже если клиент отвалился во время долгого синтеза: запись на
	// отмененном контексте запроса оставила бы историю в in_progress навсегда.
	termCtx := context.WithoutCancel(ctx)

	result, err := s.assemble(ctx, story, voiceID)
	if err != nil {
		audioAssemblies.WithLabelValues("failed").Inc()
		s.logger.Error("Audio assembly failed",
			zap.String("storyID", storyID.String()), zap.Error(err))
		if failErr := s.storyRepo.FailAudio(termCtx, storyID); failErr != nil {
			s.logger.Error("Failed to record audio failure", zap.Error(failErr))
		}
		return nil, fmt.Errorf("%w: %v", models.ErrGenerationFailed, err)
	}

	if err := s.storyRepo.FinishAudio(termCtx, storyID, result.AudioURL); err != nil {
		audioAssemblies.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("%w: %v", models.ErrInternalServer, err)
	}
	audioAssemblies.WithLabelValues("completed").Inc()
	return result, nil
}

func (s *AudioService) assemble(ctx context.Context, story *models.Story, voiceID string) (*AudioResult, error) {
	segments, err := s.segmentRepo.ListByStory(ctx, story.ID)
	if err != nil {
		return nil, fmt.Errorf("ошибка выборки сегментов: %w", err)
	}
	if len(segments) == 0 {
		return nil, fmt.Errorf("у истории нет сегментов")
	}

	// Сегменты уже в порядке создания; текст склеивается в том же порядке.
	var full strings.Builder
	for _, seg := range segments {
		if full.Len() > 0 {
			full.WriteByte(' ')
		}
		full.WriteString(seg.Text)
	}

	chunks := tts.ChunkText(full.String(), s.chunkLimit)
	if len(chunks) == 0 {
		return nil, fmt.Errorf("пустой текст истории")
	}
	s.logger.Info("Assembling story audio",
		zap.String("storyID", story.ID.String()),
		zap.Int("segments", len(segments)),
		zap.Int("chunks", len(chunks)),
		zap.String("voiceId", voiceID))

	// Чанки озвучиваются строго последовательно: порядок буферов и есть
	// порядок итогового аудио, распараллеливание его сломало бы.
	var audio bytes.Buffer
	for i, chunk := range chunks {
		data, err := s.synthesizer.Synthesize(ctx, chunk, voiceID)
		if err != nil {
			return nil, fmt.Errorf("ошибка синтеза чанка %d/%d: %w", i+1, len(chunks), err)
		}
		// MP3 допускает простую бинарную конкатенацию фреймов.
		audio.Write(data)
	}

	key := fmt.Sprintf("audio/%s/story.mp3", story.ID)
	url, err := s.blobStore.Put(ctx, key, audio.Bytes(), "audio/mpeg")
	if err != nil {
		return nil, fmt.Errorf("ошибка загрузки аудио: %w", err)
	}

	if err := s.verifier.Verify(ctx, url); err != nil {
		return nil, fmt.Errorf("аудио не прошло верификацию: %w", err)
	}

	return &AudioResult{AudioURL: url, FileSize: audio.Len()}, nil
}
