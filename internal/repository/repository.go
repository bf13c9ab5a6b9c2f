package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"fable-server/internal/models"
)

// DBTX - минимальный контракт над pgxpool.Pool / pgx.Tx,
// позволяющий подменять пул в тестах.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// StoryRepository управляет строками историй.
type StoryRepository interface {
	Create(ctx context.Context, story *models.Story) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Story, error)
	// UpdateContexts идемпотентно записывает смёрженные контексты истории.
	UpdateContexts(ctx context.Context, id uuid.UUID, vc *models.VisualContext, nc *models.NarrativeContext) error
	// MarkCompleted выставляет флаг завершения. Только явное действие
	// пользователя: из is_end сегмента флаг не выводится.
	MarkCompleted(ctx context.Context, id uuid.UUID) error
	// TryStartAudio атомарно переводит audio_status в in_progress.
	// Возвращает ErrAudioAlreadyInFlight, если переход недопустим.
	TryStartAudio(ctx context.Context, id uuid.UUID) error
	FinishAudio(ctx context.Context, id uuid.UUID, url string) error
	FailAudio(ctx context.Context, id uuid.UUID) error
}

// SegmentRepository управляет сегментами истории.
type SegmentRepository interface {
	Create(ctx context.Context, segment *models.StorySegment) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.StorySegment, error)
	// ListByStory возвращает сегменты истории в порядке создания.
	ListByStory(ctx context.Context, storyID uuid.UUID) ([]models.StorySegment, error)
	// CompleteImage записывает URL и статус completed, только если номер
	// попытки всё ещё актуален: запись устаревшей задачи-гонщицы - no-op.
	CompleteImage(ctx context.Context, id uuid.UUID, attempt int, url string) error
	// FailImage помечает попытку проваленной по тому же условию.
	FailImage(ctx context.Context, id uuid.UUID, attempt int) error
	// StartImageAttempt переводит статус в generating и инкрементирует
	// номер попытки; возвращает новый номер. ErrImageNotRetryable, если
	// текущий статус не допускает перезапуск.
	StartImageAttempt(ctx context.Context, id uuid.UUID) (int, error)
}
