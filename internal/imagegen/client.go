package imagegen

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ErrImageGenerationFailed - ошибка генерации изображения провайдером.
var ErrImageGenerationFailed = errors.New("image generation failed")

// Provider - контракт провайдера изображений: промпт на входе,
// сырые байты изображения на выходе. Никаких URL наружу: провайдерские
// ссылки эфемерны и персистить их нельзя.
type Provider interface {
	GenerateImage(ctx context.Context, prompt string) ([]byte, error)
}

// Config - конфигурация HTTP-провайдера.
type Config struct {
	BaseURL string
	Ratio   string
	Timeout time.Duration
}

var _ Provider = (*Client)(nil)

// Client вызывает SANA-совместимый HTTP API генерации изображений.
// API отвечает либо байтами изображения, либо JSON с временным URL -
// во втором случае клиент сам скачивает байты.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient создает клиент провайдера изображений.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if cfg.Ratio == "" {
		cfg.Ratio = "2:3"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.Named("ImageClient"),
	}
}

type generateRequest struct {
	Prompt string `json:"prompt"`
	Ratio  string `json:"ratio"`
}

type generateURLResponse struct {
	URL string `json:"url"`
}

// GenerateImage выполняет запрос к /generate и возвращает байты изображения.
func (c *Client) GenerateImage(ctx context.Context, prompt string) ([]byte, error) {
	reqBody, err := json.Marshal(generateRequest{Prompt: prompt, Ratio: c.cfg.Ratio})
	if err != nil {
		return nil, fmt.Errorf("%w: marshal request: %v", ErrImageGenerationFailed, err)
	}

	endpointURL := strings.TrimSuffix(c.cfg.BaseURL, "/") + "/generate"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpointURL, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrImageGenerationFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "image/*, application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("Image API request failed", zap.String("url", endpointURL), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrImageGenerationFailed, err)
	}
	defer resp.Body.Close()

	body, readErr := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		c.logger.Error("Image API returned non-OK status",
			zap.Int("status_code", resp.StatusCode),
			zap.ByteString("response_body", body))
		return nil, fmt.Errorf("%w: API returned status %d", ErrImageGenerationFailed, resp.StatusCode)
	}
	if readErr != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrImageGenerationFailed, readErr)
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("%w: API returned empty data", ErrImageGenerationFailed)
	}

	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		return c.fetchEphemeralURL(ctx, body)
	}
	return body, nil
}

// fetchEphemeralURL скачивает байты по временной ссылке провайдера.
// Ссылка живёт минуты, поэтому скачивание выполняется сразу же.
func (c *Client) fetchEphemeralURL(ctx context.Context, jsonBody []byte) ([]byte, error) {
	var urlResp generateURLResponse
	if err := json.Unmarshal(jsonBody, &urlResp); err != nil || urlResp.URL == "" {
		return nil, fmt.Errorf("%w: unexpected JSON response", ErrImageGenerationFailed)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlResp.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrImageGenerationFailed, err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch provider url: %v", ErrImageGenerationFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: provider url returned status %d", ErrImageGenerationFailed, resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read provider url: %v", ErrImageGenerationFailed, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: provider url returned empty data", ErrImageGenerationFailed)
	}

	c.logger.Debug("Fetched image bytes from ephemeral provider URL", zap.Int("size_bytes", len(data)))
	return data, nil
}
