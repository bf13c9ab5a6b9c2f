package ai

import (
	"context"
	"errors"

	"fable-server/internal/models"
	"fable-server/internal/prompt"
)

// ErrProviderFailed - любая ошибка текстового провайдера: транспорт,
// неуспешный статус, невалидный JSON, отсутствие обязательных полей.
// Поглощается цепочкой фолбэков и никогда не доходит до вызывающего.
var ErrProviderFailed = errors.New("text provider failed")

// TextProvider - контракт адаптера генеративного текстового провайдера.
// Возвращает либо строго провалидированный сегмент, либо типизированную ошибку.
type TextProvider interface {
	Name() string
	Generate(ctx context.Context, p prompt.ComposedPrompt, settings models.GenerationSettings) (*models.GeneratedSegment, error)
}
