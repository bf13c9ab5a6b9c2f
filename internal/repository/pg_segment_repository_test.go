package repository

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"fable-server/internal/models"
)

// execRecorderDB фиксирует аргументы Exec; Query/QueryRow в этих тестах
// не используются.
type execRecorderDB struct {
	execSQL  string
	execArgs []interface{}
}

func (f *execRecorderDB) Exec(_ context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	f.execSQL = sql
	f.execArgs = args
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (f *execRecorderDB) Query(context.Context, string, ...interface{}) (pgx.Rows, error) {
	panic("Query не используется в этом тесте")
}

func (f *execRecorderDB) QueryRow(context.Context, string, ...interface{}) pgx.Row {
	panic("QueryRow не используется в этом тесте")
}

func TestPgSegmentRepository_CreateFillsDefaults(t *testing.T) {
	db := &execRecorderDB{}
	repo := NewPgSegmentRepository(db, zap.NewNop())

	seg := &models.StorySegment{
		Text:    "The gates opened at last.",
		Choices: []string{"Enter", "Wait"},
	}
	require.NoError(t, repo.Create(context.Background(), seg))

	assert.NotEqual(t, uuid.Nil, seg.ID)
	assert.False(t, seg.CreatedAt.IsZero())
	// updated_at в запросе равен created_at; модель ответа - тоже.
	assert.Equal(t, seg.CreatedAt, seg.UpdatedAt)
	assert.Equal(t, models.ImageStatusNotStarted, seg.ImageStatus)
	assert.Equal(t, 5, seg.WordCount)
	assert.NotEmpty(t, db.execArgs)
}

func TestPgStoryRepository_CreateFillsDefaults(t *testing.T) {
	db := &execRecorderDB{}
	repo := NewPgStoryRepository(db, zap.NewNop())

	story := &models.Story{Title: "The Long Road", Genre: "epic-fantasy"}
	require.NoError(t, repo.Create(context.Background(), story))

	assert.False(t, story.CreatedAt.IsZero())
	assert.Equal(t, story.CreatedAt, story.UpdatedAt)
	assert.Equal(t, models.AudioStatusNotStarted, story.AudioStatus)
}
