package ai

import (
	"context"
	"fmt"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"fable-server/internal/models"
	"fable-server/internal/prompt"
)

// OpenAIConfig - конфигурация OpenAI-совместимого провайдера.
// BaseURL позволяет работать через OpenRouter/DeepSeek без смены клиента.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// OpenAIProvider - адаптер текстового провайдера поверх go-openai.
type OpenAIProvider struct {
	client *openai.Client
	logger *zap.Logger
}

// NewOpenAIProvider создает клиент с настроенным base URL и таймаутом.
func NewOpenAIProvider(cfg OpenAIConfig, logger *zap.Logger) *OpenAIProvider {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	clientConfig.HTTPClient = &http.Client{Timeout: timeout}

	return &OpenAIProvider{
		client: openai.NewClientWithConfig(clientConfig),
		logger: logger.Named("OpenAIProvider"),
	}
}

func (p *OpenAIProvider) Name() string { return "openai" }

// Generate выполняет один запрос и валидирует ответ на границе адаптера.
func (p *OpenAIProvider) Generate(ctx context.Context, cp prompt.ComposedPrompt, settings models.GenerationSettings) (*models.GeneratedSegment, error) {
	req := openai.ChatCompletionRequest{
		Model: settings.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: cp.System},
			{Role: openai.ChatMessageRoleUser, Content: cp.User},
		},
		Temperature: float32(settings.Temperature),
	}

	start := time.Now()
	resp, err := p.client.CreateChatCompletion(ctx, req)
	if err != nil {
		p.logger.Warn("OpenAI chat completion failed", zap.Error(err), zap.Duration("elapsed", time.Since(start)))
		return nil, fmt.Errorf("%w: %v", ErrProviderFailed, err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return nil, fmt.Errorf("%w: пустой ответ от API", ErrProviderFailed)
	}

	p.logger.Debug("OpenAI response received",
		zap.String("model", settings.Model),
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
		zap.Duration("elapsed", time.Since(start)))

	return ParseSegmentResponse(resp.Choices[0].Message.Content)
}
