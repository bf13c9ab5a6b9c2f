package ai

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"fable-server/internal/models"
	"fable-server/internal/prompt"
)

var (
	providerAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fable_text_provider_attempts_total",
			Help: "Total number of text provider generation attempts.",
		},
		[]string{"provider", "status"}, // "success", "error"
	)
	fallbackGenerations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fable_text_fallback_generations_total",
		Help: "Total number of segments produced by the deterministic fallback.",
	})
)

// GenerateRequest - вход оркестратора: составленный промпт плюс то,
// из чего терминальный генератор может синтезировать сегмент сам.
type GenerateRequest struct {
	Prompt           prompt.ComposedPrompt
	Genre            string
	NarrativeContext models.NarrativeContext
	Settings         models.GenerationSettings
}

// Orchestrator перебирает провайдеров в заданном порядке. Ошибка любого
// из них логируется и поглощается; цепочка завершается детерминированным
// генератором, поэтому Generate не возвращает ошибку вовсе.
type Orchestrator struct {
	providers []TextProvider
	fallback  *FallbackProvider
	logger    *zap.Logger
}

// NewOrchestrator принимает провайдеров в порядке их приоритета.
func NewOrchestrator(providers []TextProvider, fallback *FallbackProvider, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		providers: providers,
		fallback:  fallback,
		logger:    logger.Named("Orchestrator"),
	}
}

// Generate возвращает первый структурно валидный результат в порядке
// провайдеров. Результат гарантирован: терминальный генератор не падает.
func (o *Orchestrator) Generate(ctx context.Context, req GenerateRequest) *models.GeneratedSegment {
	for _, provider := range o.orderedProviders(req.Settings.ProviderOrder) {
		segment, err := provider.Generate(ctx, req.Prompt, req.Settings)
		if err != nil {
			providerAttempts.WithLabelValues(provider.Name(), "error").Inc()
			o.logger.Warn("Provider failed, falling through to next",
				zap.String("provider", provider.Name()),
				zap.Error(err))
			continue
		}
		providerAttempts.WithLabelValues(provider.Name(), "success").Inc()
		o.logger.Info("Segment generated",
			zap.String("provider", provider.Name()),
			zap.Int("choices", len(segment.Choices)),
			zap.Bool("is_end", segment.IsEnd))
		return segment
	}

	fallbackGenerations.Inc()
	o.logger.Warn("All providers failed, using deterministic fallback",
		zap.String("genre", req.Genre))
	return o.fallback.GenerateFromContext(req.Genre, req.NarrativeContext)
}

// orderedProviders переупорядочивает сконфигурированных провайдеров по
// настройке provider_order; не упомянутые в ней идут следом в исходном
// порядке, так что провайдер нельзя "потерять" опечаткой в настройках.
func (o *Orchestrator) orderedProviders(order []string) []TextProvider {
	if len(order) == 0 {
		return o.providers
	}
	byName := make(map[string]TextProvider, len(o.providers))
	for _, p := range o.providers {
		byName[p.Name()] = p
	}

	ordered := make([]TextProvider, 0, len(o.providers))
	used := make(map[string]bool, len(o.providers))
	for _, name := range order {
		if p, ok := byName[name]; ok && !used[name] {
			ordered = append(ordered, p)
			used[name] = true
		}
	}
	for _, p := range o.providers {
		if !used[p.Name()] {
			ordered = append(ordered, p)
		}
	}
	return ordered
}
