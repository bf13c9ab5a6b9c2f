package ai

import (
	"encoding/json"
	"fmt"
	"strings"

	"fable-server/internal/models"
)

// ParseSegmentResponse строго парсит ответ провайдера в GeneratedSegment.
// Модели любят оборачивать JSON в markdown-ограждения, поэтому перед
// парсингом они срезаются. Любое нарушение схемы - ошибка: за границу
// адаптера частично типизированные данные не выходят.
func ParseSegmentResponse(raw string) (*models.GeneratedSegment, error) {
	cleaned := stripCodeFences(strings.TrimSpace(raw))
	if cleaned == "" {
		return nil, fmt.Errorf("%w: пустой ответ", ErrProviderFailed)
	}

	var segment models.GeneratedSegment
	decoder := json.NewDecoder(strings.NewReader(cleaned))
	if err := decoder.Decode(&segment); err != nil {
		return nil, fmt.Errorf("%w: невалидный JSON: %v", ErrProviderFailed, err)
	}

	if strings.TrimSpace(segment.SegmentText) == "" {
		return nil, fmt.Errorf("%w: отсутствует segmentText", ErrProviderFailed)
	}
	if segment.Choices == nil {
		return nil, fmt.Errorf("%w: отсутствует массив choices", ErrProviderFailed)
	}
	if len(segment.Choices) == 0 && !segment.IsEnd {
		return nil, fmt.Errorf("%w: пустой choices при isEnd=false", ErrProviderFailed)
	}
	for i, choice := range segment.Choices {
		if strings.TrimSpace(choice) == "" {
			return nil, fmt.Errorf("%w: пустой вариант выбора #%d", ErrProviderFailed, i)
		}
	}

	return &segment, nil
}

// stripCodeFences убирает обёртку ```json ... ``` если она есть.
func stripCodeFences(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
