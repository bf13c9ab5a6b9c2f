package models

import (
	"time"

	"github.com/google/uuid"
)

// AudioStatus - статус генерации полной аудио-версии истории.
type AudioStatus string

const (
	AudioStatusNotStarted AudioStatus = "not_started"
	AudioStatusInProgress AudioStatus = "in_progress"
	AudioStatusCompleted  AudioStatus = "completed"
	AudioStatusFailed     AudioStatus = "failed"
)

// CanStartAudio сообщает, допустим ли запуск новой сборки аудио из текущего статуса.
// Переходы монотонны: начать заново можно только из not_started или failed.
func (s AudioStatus) CanStartAudio() bool {
	return s == AudioStatusNotStarted || s == AudioStatusFailed
}

// Story представляет одну интерактивную историю.
// Флаг IsCompleted выставляется ТОЛЬКО явным действием завершения
// и намеренно не выводится из IsEnd последнего сегмента.
type Story struct {
	ID               uuid.UUID        `db:"id" json:"id"`
	Title            string           `db:"title" json:"title"`
	Genre            string           `db:"genre" json:"genre"`
	VisualContext    *VisualContext   `db:"visual_context" json:"visual_context,omitempty"`
	NarrativeContext *NarrativeContext `db:"narrative_context" json:"narrative_context,omitempty"`
	IsCompleted      bool             `db:"is_completed" json:"is_completed"`
	AudioURL         *string          `db:"audio_url" json:"audio_url,omitempty"`
	AudioStatus      AudioStatus      `db:"audio_status" json:"audio_status"`
	CreatedAt        time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time        `db:"updated_at" json:"updated_at"`
}

// VisualContext - накопленное визуальное описание истории.
// Описания персонажей после первого появления сохраняются дословно,
// иначе иллюстрации теряют консистентность между сегментами.
type VisualContext struct {
	Style      string            `json:"style,omitempty"`
	Characters map[string]string `json:"characters,omitempty"`
}

// Merge накладывает новый визуальный контекст поверх текущего.
// Уже известные персонажи не перезаписываются: первое описание - каноническое.
func (vc *VisualContext) Merge(incoming *VisualContext) {
	if incoming == nil {
		return
	}
	if vc.Style == "" && incoming.Style != "" {
		vc.Style = incoming.Style
	}
	if len(incoming.Characters) == 0 {
		return
	}
	if vc.Characters == nil {
		vc.Characters = make(map[string]string, len(incoming.Characters))
	}
	for name, desc := range incoming.Characters {
		if _, exists := vc.Characters[name]; !exists && desc != "" {
			vc.Characters[name] = desc
		}
	}
}
