package ai

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"
	"go.uber.org/zap"

	"fable-server/internal/models"
	"fable-server/internal/prompt"
)

// OllamaConfig - конфигурация локального провайдера Ollama.
type OllamaConfig struct {
	BaseURL string
	Model   string
	Timeout time.Duration
}

// OllamaProvider - адаптер поверх нативного API Ollama.
type OllamaProvider struct {
	client  *api.Client
	model   string
	timeout time.Duration
	logger  *zap.Logger
}

// NewOllamaProvider создает клиент Ollama.
// api.NewClient ожидает URL без суффикса /v1.
func NewOllamaProvider(cfg OllamaConfig, logger *zap.Logger) (*OllamaProvider, error) {
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/v1")
	baseURL = strings.TrimSuffix(baseURL, "/")

	parsedURL, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("ошибка парсинга Ollama Base URL '%s': %w", baseURL, err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}

	return &OllamaProvider{
		client:  api.NewClient(parsedURL, &http.Client{Timeout: timeout}),
		model:   cfg.Model,
		timeout: timeout,
		logger:  logger.Named("OllamaProvider"),
	}, nil
}

func (p *OllamaProvider) Name() string { return "ollama" }

// Generate выполняет нестриминговый чат-запрос к локальной модели.
func (p *OllamaProvider) Generate(ctx context.Context, cp prompt.ComposedPrompt, settings models.GenerationSettings) (*models.GeneratedSegment, error) {
	stream := false
	req := &api.ChatRequest{
		Model: p.model,
		Messages: []api.Message{
			{Role: "system", Content: cp.System},
			{Role: "user", Content: cp.User},
		},
		Stream: &stream,
		Format: []byte(`"json"`),
		Options: map[string]interface{}{
			"temperature": settings.Temperature,
		},
	}

	requestCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	var resp api.ChatResponse
	err := p.client.Chat(requestCtx, req, func(r api.ChatResponse) error {
		resp = r
		return nil
	})
	if err != nil {
		p.logger.Warn("Ollama chat failed", zap.Error(err), zap.String("model", p.model))
		return nil, fmt.Errorf("%w: %v", ErrProviderFailed, err)
	}
	if resp.Message.Content == "" {
		return nil, fmt.Errorf("%w: пустой ответ от Ollama", ErrProviderFailed)
	}

	return ParseSegmentResponse(resp.Message.Content)
}
