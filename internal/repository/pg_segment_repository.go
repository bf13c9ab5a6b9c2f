package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"fable-server/internal/models"
)

var _ SegmentRepository = (*pgSegmentRepository)(nil)

type pgSegmentRepository struct {
	db     DBTX
	logger *zap.Logger
}

// NewPgSegmentRepository создает репозиторий сегментов поверх PostgreSQL.
func NewPgSegmentRepository(db DBTX, logger *zap.Logger) SegmentRepository {
	return &pgSegmentRepository{
		db:     db,
		logger: logger.Named("PgSegmentRepo"),
	}
}

const createSegmentQuery = `
INSERT INTO story_segments (id, story_id, parent_segment_id, segment_text, choices, is_end,
	image_url, image_status, image_attempt, audio_url, triggering_choice_text, word_count, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $13)`

const getSegmentQuery = `
SELECT id, story_id, parent_segment_id, segment_text, choices, is_end,
	image_url, image_status, image_attempt, audio_url, triggering_choice_text, word_count, created_at, updated_at
FROM story_segments
WHERE id = $1`

const listSegmentsQuery = `
SELECT id, story_id, parent_segment_id, segment_text, choices, is_end,
	image_url, image_status, image_attempt, audio_url, triggering_choice_text, word_count, created_at, updated_at
FROM story_segments
WHERE story_id = $1
ORDER BY created_at ASC`

const completeImageQuery = `
UPDATE story_segments
SET image_url = $3, image_status = 'completed', updated_at = NOW()
WHERE id = $1 AND image_attempt = $2 AND image_status = 'generating'`

const failImageQuery = `
UPDATE story_segments
SET image_status = 'failed', updated_at = NOW()
WHERE id = $1 AND image_attempt = $2 AND image_status = 'generating'`

const startImageAttemptQuery = `
UPDATE story_segments
SET image_status = 'generating', image_attempt = image_attempt + 1, updated_at = NOW()
WHERE id = $1 AND image_status IN ('not_started', 'failed')
RETURNING image_attempt`

// segmentRow - промежуточная форма строки для scany: choices хранится как jsonb.
type segmentRow struct {
	ID                   uuid.UUID  `db:"id"`
	StoryID              uuid.UUID  `db:"story_id"`
	ParentSegmentID      *uuid.UUID `db:"parent_segment_id"`
	SegmentText          string     `db:"segment_text"`
	Choices              []byte     `db:"choices"`
	IsEnd                bool       `db:"is_end"`
	ImageURL             *string    `db:"image_url"`
	ImageStatus          string     `db:"image_status"`
	ImageAttempt         int        `db:"image_attempt"`
	AudioURL             *string    `db:"audio_url"`
	TriggeringChoiceText *string    `db:"triggering_choice_text"`
	WordCount            int        `db:"word_count"`
	CreatedAt            time.Time  `db:"created_at"`
	UpdatedAt            time.Time  `db:"updated_at"`
}

func (row *segmentRow) toModel() (models.StorySegment, error) {
	seg := models.StorySegment{
		ID:                   row.ID,
		StoryID:              row.StoryID,
		ParentSegmentID:      row.ParentSegmentID,
		Text:                 row.SegmentText,
		IsEnd:                row.IsEnd,
		ImageURL:             row.ImageURL,
		ImageStatus:          models.ImageStatus(row.ImageStatus),
		ImageAttempt:         row.ImageAttempt,
		AudioURL:             row.AudioURL,
		TriggeringChoiceText: row.TriggeringChoiceText,
		WordCount:            row.WordCount,
		CreatedAt:            row.CreatedAt,
		UpdatedAt:            row.UpdatedAt,
	}
	if len(row.Choices) > 0 {
		if err := json.Unmarshal(row.Choices, &seg.Choices); err != nil {
			return seg, fmt.Errorf("ошибка десериализации choices: %w", err)
		}
	}
	return seg, nil
}

// Create вставляет сегмент. Текст и выборы фиксируются здесь раз и
// навсегда; дальше мутируют только медиа-поля.
func (r *pgSegmentRepository) Create(ctx context.Context, segment *models.StorySegment) error {
	if segment.ID == uuid.Nil {
		segment.ID = uuid.New()
	}
	if segment.CreatedAt.IsZero() {
		segment.CreatedAt = time.Now()
	}
	// В запросе updated_at = created_at; модель должна отражать то же,
	// иначе ответ сериализует нулевое время.
	segment.UpdatedAt = segment.CreatedAt
	if segment.ImageStatus == "" {
		segment.ImageStatus = models.ImageStatusNotStarted
	}
	if segment.WordCount == 0 {
		segment.WordCount = len(strings.Fields(segment.Text))
	}

	choicesJSON, err := json.Marshal(segment.Choices)
	if err != nil {
		return fmt.Errorf("ошибка сериализации choices: %w", err)
	}

	_, err = r.db.Exec(ctx, createSegmentQuery,
		segment.ID, segment.StoryID, segment.ParentSegmentID,
		segment.Text, choicesJSON, segment.IsEnd,
		segment.ImageURL, segment.ImageStatus, segment.ImageAttempt,
		segment.AudioURL, segment.TriggeringChoiceText, segment.WordCount,
		segment.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create segment", zap.Error(err),
			zap.String("segmentID", segment.ID.String()),
			zap.String("storyID", segment.StoryID.String()))
		return fmt.Errorf("ошибка создания сегмента: %w", err)
	}
	r.logger.Info("Segment created",
		zap.String("segmentID", segment.ID.String()),
		zap.String("storyID", segment.StoryID.String()),
		zap.Int("word_count", segment.WordCount))
	return nil
}

// GetByID возвращает сегмент по идентификатору.
func (r *pgSegmentRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.StorySegment, error) {
	var row segmentRow
	err := pgxscan.Get(ctx, r.db, &row, getSegmentQuery, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrSegmentNotFound
		}
		return nil, fmt.Errorf("ошибка получения сегмента %s: %w", id, err)
	}

	seg, err := row.toModel()
	if err != nil {
		return nil, err
	}
	return &seg, nil
}

// ListByStory возвращает все сегменты истории в порядке создания.
func (r *pgSegmentRepository) ListByStory(ctx context.Context, storyID uuid.UUID) ([]models.StorySegment, error) {
	var rows []segmentRow
	if err := pgxscan.Select(ctx, r.db, &rows, listSegmentsQuery, storyID); err != nil {
		return nil, fmt.Errorf("ошибка выборки сегментов истории %s: %w", storyID, err)
	}

	segments := make([]models.StorySegment, 0, len(rows))
	for i := range rows {
		seg, err := rows[i].toModel()
		if err != nil {
			return nil, err
		}
		segments = append(segments, seg)
	}
	return segments, nil
}

// CompleteImage условен по номеру попытки: если за время генерации
// пользователь успел перезапустить её, attempt уже другой и запись - no-op.
func (r *pgSegmentRepository) CompleteImage(ctx context.Context, id uuid.UUID, attempt int, url string) error {
	tag, err := r.db.Exec(ctx, completeImageQuery, id, attempt, url)
	if err != nil {
		return fmt.Errorf("ошибка записи image_url: %w", err)
	}
	if tag.RowsAffected() == 0 {
		r.logger.Warn("Stale image completion dropped",
			zap.String("segmentID", id.String()), zap.Int("attempt", attempt))
	}
	return nil
}

func (r *pgSegmentRepository) FailImage(ctx context.Context, id uuid.UUID, attempt int) error {
	tag, err := r.db.Exec(ctx, failImageQuery, id, attempt)
	if err != nil {
		return fmt.Errorf("ошибка записи image_status failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		r.logger.Warn("Stale image failure dropped",
			zap.String("segmentID", id.String()), zap.Int("attempt", attempt))
	}
	return nil
}

// StartImageAttempt - единственный разрешённый переход "назад"
// (failed -> generating), и только по явному действию пользователя.
func (r *pgSegmentRepository) StartImageAttempt(ctx context.Context, id uuid.UUID) (int, error) {
	var attempt int
	err := r.db.QueryRow(ctx, startImageAttemptQuery, id).Scan(&attempt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, models.ErrImageNotRetryable
		}
		return 0, fmt.Errorf("ошибка перезапуска генерации изображения: %w", err)
	}
	return attempt, nil
}
