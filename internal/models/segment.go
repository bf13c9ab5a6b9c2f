package models

import (
	"time"

	"github.com/google/uuid"
)

// ImageStatus - статус генерации иллюстрации сегмента.
type ImageStatus string

const (
	ImageStatusNotStarted ImageStatus = "not_started"
	ImageStatusGenerating ImageStatus = "generating"
	ImageStatusCompleted  ImageStatus = "completed"
	ImageStatusFailed     ImageStatus = "failed"
)

// CanRegenerate сообщает, допустим ли пользовательский перезапуск генерации.
// Единственный разрешённый переход "назад" - failed -> generating.
func (s ImageStatus) CanRegenerate() bool {
	return s == ImageStatusFailed || s == ImageStatusNotStarted
}

// StorySegment - один сгенерированный фрагмент истории: текст, варианты
// выбора и медиа. Текст после создания неизменяем; медиа-поля мутируют
// только фоновые задачи либо явный перезапуск генерации.
type StorySegment struct {
	ID                  uuid.UUID   `db:"id" json:"id"`
	StoryID             uuid.UUID   `db:"story_id" json:"story_id"`
	ParentSegmentID     *uuid.UUID  `db:"parent_segment_id" json:"parent_segment_id,omitempty"`
	Text                string      `db:"segment_text" json:"segment_text"`
	Choices             []string    `db:"choices" json:"choices"`
	IsEnd               bool        `db:"is_end" json:"is_end"`
	ImageURL            *string     `db:"image_url" json:"image_url,omitempty"`
	ImageStatus         ImageStatus `db:"image_status" json:"image_status"`
	ImageAttempt        int         `db:"image_attempt" json:"-"`
	AudioURL            *string     `db:"audio_url" json:"audio_url,omitempty"`
	TriggeringChoiceText *string    `db:"triggering_choice_text" json:"triggering_choice_text,omitempty"`
	WordCount           int         `db:"word_count" json:"word_count"`
	CreatedAt           time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time   `db:"updated_at" json:"updated_at"`
}
