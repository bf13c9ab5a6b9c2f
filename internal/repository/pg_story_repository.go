package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"fable-server/internal/models"
)

// Compile-time check to ensure implementation satisfies the interface.
var _ StoryRepository = (*pgStoryRepository)(nil)

type pgStoryRepository struct {
	db     DBTX
	logger *zap.Logger
}

// NewPgStoryRepository создает репозиторий историй поверх PostgreSQL.
func NewPgStoryRepository(db DBTX, logger *zap.Logger) StoryRepository {
	return &pgStoryRepository{
		db:     db,
		logger: logger.Named("PgStoryRepo"),
	}
}

const createStoryQuery = `
INSERT INTO stories (id, title, genre, visual_context, narrative_context, is_completed, audio_status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)`

const getStoryQuery = `
SELECT id, title, genre, visual_context, narrative_context, is_completed, audio_url, audio_status, created_at, updated_at
FROM stories
WHERE id = $1`

const updateStoryContextsQuery = `
UPDATE stories
SET visual_context = COALESCE($2, visual_context),
    narrative_context = COALESCE($3, narrative_context),
    updated_at = NOW()
WHERE id = $1`

const markStoryCompletedQuery = `
UPDATE stories SET is_completed = TRUE, updated_at = NOW() WHERE id = $1`

const tryStartAudioQuery = `
UPDATE stories
SET audio_status = 'in_progress', updated_at = NOW()
WHERE id = $1 AND audio_status IN ('not_started', 'failed')`

const finishAudioQuery = `
UPDATE stories SET audio_url = $2, audio_status = 'completed', updated_at = NOW() WHERE id = $1`

const failAudioQuery = `
UPDATE stories SET audio_status = 'failed', updated_at = NOW() WHERE id = $1`

// Create вставляет новую историю.
func (r *pgStoryRepository) Create(ctx context.Context, story *models.Story) error {
	if story.ID == uuid.Nil {
		story.ID = uuid.New()
	}
	if story.CreatedAt.IsZero() {
		story.CreatedAt = time.Now()
	}
	// В запросе updated_at = created_at; модель отражает то же.
	story.UpdatedAt = story.CreatedAt
	if story.AudioStatus == "" {
		story.AudioStatus = models.AudioStatusNotStarted
	}

	vcJSON, ncJSON, err := marshalContexts(story.VisualContext, story.NarrativeContext)
	if err != nil {
		return err
	}

	_, err = r.db.Exec(ctx, createStoryQuery,
		story.ID, story.Title, story.Genre, vcJSON, ncJSON,
		story.IsCompleted, story.AudioStatus, story.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create story", zap.Error(err), zap.String("storyID", story.ID.String()))
		return fmt.Errorf("ошибка создания истории: %w", err)
	}
	r.logger.Info("Story created", zap.String("storyID", story.ID.String()), zap.String("genre", story.Genre))
	return nil
}

// GetByID возвращает историю по идентификатору.
func (r *pgStoryRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Story, error) {
	story := &models.Story{}
	var vcJSON, ncJSON []byte

	err := r.db.QueryRow(ctx, getStoryQuery, id).Scan(
		&story.ID, &story.Title, &story.Genre, &vcJSON, &ncJSON,
		&story.IsCompleted, &story.AudioURL, &story.AudioStatus,
		&story.CreatedAt, &story.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrStoryNotFound
		}
		r.logger.Error("Failed to get story", zap.Error(err), zap.String("storyID", id.String()))
		return nil, fmt.Errorf("ошибка получения истории %s: %w", id, err)
	}

	if err := unmarshalContexts(vcJSON, ncJSON, story); err != nil {
		return nil, err
	}
	return story, nil
}

// UpdateContexts записывает уже смёрженные контексты. Nil-аргумент
// оставляет соответствующую колонку нетронутой (частичный мёрж).
func (r *pgStoryRepository) UpdateContexts(ctx context.Context, id uuid.UUID, vc *models.VisualContext, nc *models.NarrativeContext) error {
	vcJSON, ncJSON, err := marshalContexts(vc, nc)
	if err != nil {
		return err
	}

	tag, err := r.db.Exec(ctx, updateStoryContextsQuery, id, vcJSON, ncJSON)
	if err != nil {
		r.logger.Error("Failed to update story contexts", zap.Error(err), zap.String("storyID", id.String()))
		return fmt.Errorf("ошибка обновления контекстов истории: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrStoryNotFound
	}
	return nil
}

// MarkCompleted выставляет флаг завершения истории.
func (r *pgStoryRepository) MarkCompleted(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, markStoryCompletedQuery, id)
	if err != nil {
		return fmt.Errorf("ошибка завершения истории: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrStoryNotFound
	}
	r.logger.Info("Story marked as completed", zap.String("storyID", id.String()))
	return nil
}

// TryStartAudio атомарен: условный UPDATE не даст двум сборкам
// стартовать одновременно.
func (r *pgStoryRepository) TryStartAudio(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, tryStartAudioQuery, id)
	if err != nil {
		return fmt.Errorf("ошибка перевода аудио-статуса: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrAudioAlreadyInFlight
	}
	return nil
}

func (r *pgStoryRepository) FinishAudio(ctx context.Context, id uuid.UUID, url string) error {
	if _, err := r.db.Exec(ctx, finishAudioQuery, id, url); err != nil {
		return fmt.Errorf("ошибка записи аудио-результата: %w", err)
	}
	r.logger.Info("Story audio completed", zap.String("storyID", id.String()), zap.String("url", url))
	return nil
}

func (r *pgStoryRepository) FailAudio(ctx context.Context, id uuid.UUID) error {
	if _, err := r.db.Exec(ctx, failAudioQuery, id); err != nil {
		return fmt.Errorf("ошибка записи аудио-статуса failed: %w", err)
	}
	return nil
}

// marshalContexts сериализует контексты в jsonb; nil остаётся nil,
// чтобы COALESCE в запросах сохранял прежнее значение колонки.
func marshalContexts(vc *models.VisualContext, nc *models.NarrativeContext) ([]byte, []byte, error) {
	var vcJSON, ncJSON []byte
	var err error
	if vc != nil {
		if vcJSON, err = json.Marshal(vc); err != nil {
			return nil, nil, fmt.Errorf("ошибка сериализации visual_context: %w", err)
		}
	}
	if nc != nil {
		if ncJSON, err = json.Marshal(nc); err != nil {
			return nil, nil, fmt.Errorf("ошибка сериализации narrative_context: %w", err)
		}
	}
	return vcJSON, ncJSON, nil
}

func unmarshalContexts(vcJSON, ncJSON []byte, story *models.Story) error {
	if len(vcJSON) > 0 {
		story.VisualContext = &models.VisualContext{}
		if err := json.Unmarshal(vcJSON, story.VisualContext); err != nil {
			return fmt.Errorf("ошибка десериализации visual_context: %w", err)
		}
	}
	if len(ncJSON) > 0 {
		story.NarrativeContext = &models.NarrativeContext{}
		if err := json.Unmarshal(ncJSON, story.NarrativeContext); err != nil {
			return fmt.Errorf("ошибка десериализации narrative_context: %w", err)
		}
	}
	return nil
}
