package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"fable-server/internal/ai"
	"fable-server/internal/models"
	"fable-server/internal/prompt"
	"fable-server/pkg/taskrunner"
)

// Generator - контракт оркестратора текстовой генерации.
// Результат гарантирован: цепочка завершается детерминированным генератором.
type Generator interface {
	Generate(ctx context.Context, req ai.GenerateRequest) *models.GeneratedSegment
}

// SettingsSource отдает актуальные настройки генерации.
// Настройки загружаются один раз на запрос и передаются параметром.
type SettingsSource interface {
	Get(ctx context.Context) models.GenerationSettings
}

// Composer строит провайдер-независимый промпт.
type Composer interface {
	Compose(in prompt.ComposeInput) (prompt.ComposedPrompt, error)
}

// Aggregator синтезирует нарративный контекст из истории сегментов.
type Aggregator interface {
	Aggregate(segments []models.StorySegment, genre string, estimatedTotalLength int) models.NarrativeContext
}

// Scheduler - минимальный контракт пускателя фоновых задач.
// Задача выполняется после отправки ответа, в том же процессе,
// с контекстом, отвязанным от жизненного цикла запроса.
type Scheduler interface {
	Submit(ctx context.Context, name string, taskFunc taskrunner.TaskFunc) (uuid.UUID, error)
}

var (
	imageTaskOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fable_image_tasks_total",
			Help: "Total number of background image generation tasks by outcome.",
		},
		[]string{"outcome"}, // "completed", "failed"
	)
	audioAssemblies = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fable_audio_assemblies_total",
			Help: "Total number of full-story audio assemblies by outcome.",
		},
		[]string{"outcome"},
	)
)
