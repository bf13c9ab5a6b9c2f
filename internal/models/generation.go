package models

// GeneratedSegment - структурированный результат одного вызова текстового
// провайдера. Это единственная форма, в которой данные провайдера покидают
// границу адаптера: всё, что не прошло строгую валидацию, туда не попадает.
type GeneratedSegment struct {
	SegmentText      string            `json:"segmentText"`
	Choices          []string          `json:"choices"`
	IsEnd            bool              `json:"isEnd"`
	ImagePrompt      string            `json:"imagePrompt"`
	VisualContext    *VisualContext    `json:"visualContext,omitempty"`
	NarrativeContext *NarrativeContext `json:"narrativeContext,omitempty"`
}

// GenerationSettings - глобальные настройки генерации, задаваемые админом.
// Загружаются один раз на запрос и передаются параметром через
// агрегатор/композитор/оркестратор, а не через глобальное состояние.
type GenerationSettings struct {
	ProviderOrder        []string `json:"provider_order"`
	Model                string   `json:"model"`
	Temperature          float64  `json:"temperature"`
	MinWords             int      `json:"min_words"`
	MaxWords             int      `json:"max_words"`
	EstimatedTotalLength int      `json:"estimated_total_length"`
	HistoryTokenBudget   int      `json:"history_token_budget"`
}

// DefaultGenerationSettings возвращает настройки по умолчанию,
// используемые при отсутствии строки настроек в БД.
func DefaultGenerationSettings() GenerationSettings {
	return GenerationSettings{
		ProviderOrder:        []string{"openai", "ollama"},
		Model:                "deepseek/deepseek-chat-v3-0324:free",
		Temperature:          0.7,
		MinWords:             120,
		MaxWords:             300,
		EstimatedTotalLength: 10,
		HistoryTokenBudget:   6000,
	}
}
