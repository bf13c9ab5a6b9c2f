package narrative

import (
	"strings"

	"fable-server/internal/models"
)

// Extractor извлекает сведения о сюжете из текстов сегментов.
// Интерфейс отделяет эвристику от агрегатора: реализацию на ключевых
// словах можно заменить на NLP/эмбеддинги, не меняя контракт агрегатора.
type Extractor interface {
	ProtagonistTraits(texts []string) []string
	CurrentGoal(recentTexts []string) string
	PlotThreads(texts []string) []models.PlotThread
	Setting(texts []string, genre string) string
	Atmosphere(recentTexts []string, genre string) string
	Themes(texts []string, genre string) []string
	Conflicts(texts []string) []string
	ClassifyConsequences(text string) []string
	ImpactLevel(choiceText string, consequences []string) models.ImpactLevel
}

// keywordSet - именованная категория и её маркеры.
type keywordSet struct {
	name     string
	keywords []string
}

// Наборы ключевых слов. Порядок фиксирован: от него зависит
// детерминированность результата при нескольких совпадениях.
var (
	traitSets = []keywordSet{
		{"bravery", []string{"brave", "courage", "fearless", "bold", "daring"}},
		{"curiosity", []string{"curious", "wonder", "investigate", "explore", "question"}},
		{"caution", []string{"careful", "cautious", "wary", "hesitant", "retreat"}},
		{"intellect", []string{"clever", "smart", "puzzle", "deduce", "figure out"}},
		{"compassion", []string{"kind", "gentle", "comfort", "mercy", "compassion"}},
	}

	goalSets = []keywordSet{
		{"searching for something important", []string{"search", "seek", "look for", "find the"}},
		{"escaping danger", []string{"escape", "flee", "run from", "break free"}},
		{"solving a mystery", []string{"mystery", "secret", "riddle", "uncover"}},
		{"helping someone in need", []string{"help", "rescue", "save", "protect"}},
	}

	threadSets = []keywordSet{
		{"hidden_message", []string{"hidden message", "strange symbol", "cryptic", "mysterious note"}},
		{"looming_danger", []string{"danger", "threat", "ominous", "shadow loom"}},
		{"lost_artifact", []string{"artifact", "relic", "ancient treasure", "talisman"}},
		{"uneasy_alliance", []string{"stranger offers", "uneasy alliance", "reluctant companion", "joins you"}},
	}

	settingSets = []keywordSet{
		{"a deep, ancient forest", []string{"forest", "woods", "grove"}},
		{"a towering castle", []string{"castle", "fortress", "keep"}},
		{"a small village", []string{"village", "hamlet"}},
		{"a sprawling city", []string{"city", "streets", "alley"}},
		{"rugged mountains", []string{"mountain", "cliff", "peak"}},
		{"the open sea", []string{"sea", "ocean", "ship"}},
		{"dark caverns", []string{"cave", "cavern", "tunnel"}},
	}

	atmosphereSets = []keywordSet{
		{"tense and foreboding", []string{"danger", "fear", "dark", "dread"}},
		{"mysterious", []string{"strange", "mystery", "whisper", "shadow"}},
		{"hopeful", []string{"hope", "light", "warm", "bright"}},
	}

	themeSets = []keywordSet{
		{"courage", []string{"brave", "courage", "fear"}},
		{"friendship", []string{"friend", "companion", "together"}},
		{"discovery", []string{"discover", "explore", "unknown"}},
		{"sacrifice", []string{"sacrifice", "give up", "cost"}},
	}

	conflictSets = []keywordSet{
		{"a confrontation with an adversary", []string{"enemy", "villain", "attack", "fight"}},
		{"forces of nature", []string{"storm", "flood", "fire spreads", "earthquake"}},
		{"inner doubt", []string{"doubt", "guilt", "torn between"}},
	}

	consequenceSets = []keywordSet{
		{"discovery", []string{"discover", "found", "reveal", "notice"}},
		{"danger", []string{"danger", "attack", "trap", "wound"}},
		{"help", []string{"help", "rescue", "aid", "save"}},
		{"progress", []string{"continue", "advance", "closer", "onward"}},
	}

	highImpactMarkers = []string{"confront", "attack", "fight", "reveal", "confess", "destroy"}
	midImpactMarkers  = []string{"explore", "investigate", "search", "follow"}
)

// genre defaults
var (
	genreSettings = map[string]string{
		"epic-fantasy": "a sprawling fantasy realm",
		"mystery":      "a fog-bound town full of secrets",
		"sci-fi":       "a distant star system",
		"horror":       "an isolated, decaying estate",
	}
	genreAtmospheres = map[string]string{
		"epic-fantasy": "wondrous and adventurous",
		"mystery":      "mysterious",
		"sci-fi":       "cold and vast",
		"horror":       "tense and foreboding",
	}
	genreThemes = map[string][]string{
		"epic-fantasy": {"courage", "destiny"},
		"mystery":      {"truth", "deception"},
		"sci-fi":       {"discovery", "humanity"},
		"horror":       {"survival", "fear"},
	}
)

const defaultGoal = "continuing the adventure"

// KeywordExtractor - эвристическая реализация Extractor на сопоставлении
// подстрок. Чисто функциональная: без I/O, одинаковый вход - одинаковый выход.
type KeywordExtractor struct{}

// NewKeywordExtractor возвращает готовый к использованию экземпляр.
func NewKeywordExtractor() *KeywordExtractor {
	return &KeywordExtractor{}
}

func matchAny(lower string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// ProtagonistTraits сканирует все тексты и возвращает объединение
// найденных черт без дубликатов, в фиксированном порядке категорий.
func (e *KeywordExtractor) ProtagonistTraits(texts []string) []string {
	seen := make(map[string]bool)
	var traits []string
	for _, set := range traitSets {
		for _, text := range texts {
			if matchAny(strings.ToLower(text), set.keywords) && !seen[set.name] {
				seen[set.name] = true
				traits = append(traits, set.name)
				break
			}
		}
	}
	return traits
}

// CurrentGoal просматривает последние сегменты от новых к старым;
// побеждает первая совпавшая категория цели.
func (e *KeywordExtractor) CurrentGoal(recentTexts []string) string {
	for i := len(recentTexts) - 1; i >= 0; i-- {
		lower := strings.ToLower(recentTexts[i])
		for _, set := range goalSets {
			if matchAny(lower, set.keywords) {
				return set.name
			}
		}
	}
	return defaultGoal
}

// PlotThreads находит сюжетные линии по маркерам. Линия, встретившаяся
// только в последнем сегменте, считается "introduced", остальные - "developing".
func (e *KeywordExtractor) PlotThreads(texts []string) []models.PlotThread {
	if len(texts) == 0 {
		return nil
	}
	var threads []models.PlotThread
	for _, set := range threadSets {
		firstIdx := -1
		for i, text := range texts {
			if matchAny(strings.ToLower(text), set.keywords) {
				firstIdx = i
				break
			}
		}
		if firstIdx < 0 {
			continue
		}
		status := models.ThreadDeveloping
		if firstIdx == len(texts)-1 {
			status = models.ThreadIntroduced
		}
		threads = append(threads, models.PlotThread{
			ID:          set.name,
			Description: strings.ReplaceAll(set.name, "_", " "),
			Status:      status,
			Importance:  "medium",
		})
	}
	return threads
}

// Setting ищет место действия по ключевым словам, иначе берёт
// жанровое значение по умолчанию.
func (e *KeywordExtractor) Setting(texts []string, genre string) string {
	for _, set := range settingSets {
		for _, text := range texts {
			if matchAny(strings.ToLower(text), set.keywords) {
				return set.name
			}
		}
	}
	if s, ok := genreSettings[genre]; ok {
		return s
	}
	return "an unfamiliar land"
}

// Atmosphere взвешена в пользу свежести: учитываются только 1-2
// последних сегмента, старые события на тон влияют слабо.
func (e *KeywordExtractor) Atmosphere(recentTexts []string, genre string) string {
	start := 0
	if len(recentTexts) > 2 {
		start = len(recentTexts) - 2
	}
	for i := len(recentTexts) - 1; i >= start; i-- {
		lower := strings.ToLower(recentTexts[i])
		for _, set := range atmosphereSets {
			if matchAny(lower, set.keywords) {
				return set.name
			}
		}
	}
	if a, ok := genreAtmospheres[genre]; ok {
		return a
	}
	return "calm, with an undercurrent of change"
}

// Themes объединяет найденные темы с жанровыми значениями по умолчанию.
func (e *KeywordExtractor) Themes(texts []string, genre string) []string {
	seen := make(map[string]bool)
	var themes []string
	for _, set := range themeSets {
		for _, text := range texts {
			if matchAny(strings.ToLower(text), set.keywords) && !seen[set.name] {
				seen[set.name] = true
				themes = append(themes, set.name)
				break
			}
		}
	}
	if len(themes) == 0 {
		if defaults, ok := genreThemes[genre]; ok {
			return append([]string(nil), defaults...)
		}
	}
	return themes
}

// Conflicts извлекает активные конфликты мира.
func (e *KeywordExtractor) Conflicts(texts []string) []string {
	seen := make(map[string]bool)
	var conflicts []string
	for _, set := range conflictSets {
		for _, text := range texts {
			if matchAny(strings.ToLower(text), set.keywords) && !seen[set.name] {
				seen[set.name] = true
				conflicts = append(conflicts, set.name)
				break
			}
		}
	}
	return conflicts
}

// ClassifyConsequences относит текст сегмента к категориям последствий
// сделанного выбора (discovery/danger/help/progress).
func (e *KeywordExtractor) ClassifyConsequences(text string) []string {
	lower := strings.ToLower(text)
	var consequences []string
	for _, set := range consequenceSets {
		if matchAny(lower, set.keywords) {
			consequences = append(consequences, set.name)
		}
	}
	return consequences
}

// ImpactLevel оценивает вес выбора: high - конфронтация или крупное
// раскрытие; medium - исследование либо >=2 последствий; иначе low.
func (e *KeywordExtractor) ImpactLevel(choiceText string, consequences []string) models.ImpactLevel {
	lower := strings.ToLower(choiceText)
	if matchAny(lower, highImpactMarkers) {
		return models.ImpactHigh
	}
	if matchAny(lower, midImpactMarkers) || len(consequences) >= 2 {
		return models.ImpactMedium
	}
	return models.ImpactLow
}
