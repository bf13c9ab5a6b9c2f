package prompt

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pkoukk/tiktoken-go"

	"fable-server/internal/models"
)

// stageDirectives - пять фиксированных директив, по одной на стадию арки.
var stageDirectives = map[models.StoryStage]string{
	models.StageSetup:         "Establish the protagonist, the setting and the first hints of the central conflict. Take your time with sensory detail.",
	models.StageRisingAction:  "Escalate the stakes. Complicate existing plot threads and introduce obstacles that test the protagonist.",
	models.StageClimax:        "Bring the central conflict to its peak. The protagonist faces the most difficult confrontation or revelation of the story.",
	models.StageFallingAction: "Show the immediate consequences of the climax. Begin resolving open plot threads.",
	models.StageResolution:    "Close the story. Resolve the remaining threads and give the protagonist a clear ending; isEnd should likely be true.",
}

const systemPersona = "You are an experienced author of interactive branching fiction. You continue a story one segment at a time, always answering with a single strictly valid JSON object and nothing else."

// outputSchema - обязательная схема ответа провайдера.
const outputSchema = `Respond with a JSON object of exactly this shape:
{
  "segmentText": "string, the next story segment",
  "choices": ["string", "string", "string"],
  "isEnd": false,
  "imagePrompt": "string, a visual description of the scene for an illustrator",
  "visualContext": {"style": "string", "characters": {"name": "full physical and clothing description"}},
  "narrativeContext": {}
}
Exactly 3 choices are expected. When isEnd is true, choices may be empty.`

// ComposeInput - всё, что нужно для построения промпта одного сегмента.
type ComposeInput struct {
	Genre            string
	UserPrompt       string
	ChoiceText       string
	NarrativeContext models.NarrativeContext
	VisualContext    *models.VisualContext
	History          []models.StorySegment
	Settings         models.GenerationSettings
}

// ComposedPrompt - провайдер-независимая пара сообщений.
type ComposedPrompt struct {
	System string
	User   string
}

// Composer строит инструкции генерации из контекста и стадии.
// Валидация ответа провайдера выполняется не здесь, а на границе адаптера.
type Composer struct {
	encoder *tiktoken.Tiktoken
}

// NewComposer создает композитор. Кодировщик токенов нужен для
// обрезки истории под бюджет; его отсутствие - ошибка конфигурации.
func NewComposer() (*Composer, error) {
	encoder, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, fmt.Errorf("ошибка инициализации кодировщика токенов: %w", err)
	}
	return &Composer{encoder: encoder}, nil
}

// Compose собирает системный промпт (персона + директива стадии +
// директива консистентности персонажей + схема) и пользовательское
// сообщение с JSON-контекстом.
func (c *Composer) Compose(in ComposeInput) (ComposedPrompt, error) {
	var sb strings.Builder
	sb.WriteString(systemPersona)
	sb.WriteString("\n\n")
	sb.WriteString(fmt.Sprintf("Write between %d and %d words of story text.\n", in.Settings.MinWords, in.Settings.MaxWords))
	sb.WriteString(stageDirectives[in.NarrativeContext.StoryArc.Stage])
	sb.WriteString("\n")
	sb.WriteString(characterDirective(in.VisualContext))
	sb.WriteString("\n\n")
	sb.WriteString(outputSchema)

	payload := map[string]interface{}{
		"genre":            in.Genre,
		"narrativeContext": in.NarrativeContext,
		"recentSegments":   c.trimHistory(in.History, in.Settings.HistoryTokenBudget),
	}
	if in.VisualContext != nil {
		payload["visualContext"] = in.VisualContext
	}
	if in.UserPrompt != "" {
		payload["storyPremise"] = in.UserPrompt
	}
	if in.ChoiceText != "" {
		payload["playerChoice"] = in.ChoiceText
	}

	userJSON, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return ComposedPrompt{}, fmt.Errorf("ошибка сериализации контекста промпта: %w", err)
	}

	return ComposedPrompt{
		System: sb.String(),
		User:   string(userJSON),
	}, nil
}

// characterDirective требует дословного сохранения уже установленных
// описаний персонажей либо предписывает установить новые.
func characterDirective(vc *models.VisualContext) string {
	if vc != nil && len(vc.Characters) > 0 {
		return "Character consistency: the provided visualContext.characters descriptions are canonical. Preserve every established character description VERBATIM in your visualContext output; never alter them."
	}
	return "Character consistency: no characters are established yet. Introduce the characters of this segment with full physical and clothing descriptions in visualContext.characters."
}

// historySegment - усечённая форма сегмента для промпта.
type historySegment struct {
	Text             string `json:"text"`
	TriggeringChoice string `json:"triggeringChoice,omitempty"`
}

// trimHistory включает сегменты от самых свежих к старым, пока их
// суммарный размер не превысит бюджет токенов; порядок на выходе
// снова хронологический.
func (c *Composer) trimHistory(history []models.StorySegment, tokenBudget int) []historySegment {
	if tokenBudget <= 0 {
		tokenBudget = models.DefaultGenerationSettings().HistoryTokenBudget
	}
	used := 0
	start := len(history)
	for i := len(history) - 1; i >= 0; i-- {
		tokens := len(c.encoder.Encode(history[i].Text, nil, nil))
		if used+tokens > tokenBudget && start < len(history) {
			break
		}
		used += tokens
		start = i
	}

	trimmed := make([]historySegment, 0, len(history)-start)
	for _, seg := range history[start:] {
		hs := historySegment{Text: seg.Text}
		if seg.TriggeringChoiceText != nil {
			hs.TriggeringChoice = *seg.TriggeringChoiceText
		}
		trimmed = append(trimmed, hs)
	}
	return trimmed
}
