package narrative

import (
	"fable-server/internal/models"
)

// Число последних сегментов, по которым определяется текущая цель героя.
const goalScanWindow = 3

// Пороги прогресса для стадий арки.
const (
	setupThreshold         = 0.20
	risingActionThreshold  = 0.60
	climaxThreshold        = 0.80
	fallingActionThreshold = 0.95
)

// Aggregator строит NarrativeContext из истории сегментов и жанра.
// Чистая функция без I/O: одинаковый вход всегда даёт одинаковый контекст.
type Aggregator struct {
	extractor Extractor
}

// NewAggregator создает агрегатор поверх заданного экстрактора.
func NewAggregator(extractor Extractor) *Aggregator {
	return &Aggregator{extractor: extractor}
}

// Aggregate собирает контекст. Сегменты должны быть упорядочены хронологически.
// estimatedTotalLength - ожидаемая длина истории в сегментах (из настроек).
func (a *Aggregator) Aggregate(segments []models.StorySegment, genre string, estimatedTotalLength int) models.NarrativeContext {
	texts := make([]string, len(segments))
	for i, seg := range segments {
		texts[i] = seg.Text
	}

	recent := texts
	if len(recent) > goalScanWindow {
		recent = recent[len(recent)-goalScanWindow:]
	}

	return models.NarrativeContext{
		StoryArc: computeArc(len(segments), estimatedTotalLength),
		Characters: models.CharacterContext{
			Protagonist: models.Protagonist{
				Traits:      a.extractor.ProtagonistTraits(texts),
				CurrentGoal: a.extractor.CurrentGoal(recent),
			},
		},
		PlotThreads: a.extractor.PlotThreads(texts),
		WorldBuilding: models.WorldBuilding{
			Setting:    a.extractor.Setting(texts, genre),
			Atmosphere: a.extractor.Atmosphere(texts, genre),
			Conflicts:  a.extractor.Conflicts(texts),
		},
		Themes:          a.extractor.Themes(texts, genre),
		PreviousChoices: a.collectPreviousChoices(segments),
	}
}

// computeArc отображает прогресс на стадию арки. Стадия не убывает
// с ростом числа сегментов при фиксированной ожидаемой длине.
func computeArc(segmentCount, estimatedTotalLength int) models.StoryArc {
	if estimatedTotalLength <= 0 {
		estimatedTotalLength = models.DefaultGenerationSettings().EstimatedTotalLength
	}
	progress := float64(segmentCount) / float64(estimatedTotalLength)
	if progress > 1 {
		progress = 1
	}

	var stage models.StoryStage
	switch {
	case progress < setupThreshold:
		stage = models.StageSetup
	case progress < risingActionThreshold:
		stage = models.StageRisingAction
	case progress < climaxThreshold:
		stage = models.StageClimax
	case progress < fallingActionThreshold:
		stage = models.StageFallingAction
	default:
		stage = models.StageResolution
	}

	return models.StoryArc{
		Stage:              stage,
		ProgressPercentage: int(progress * 100),
	}
}

// collectPreviousChoices классифицирует последствия каждого сделанного
// выбора по тексту породившего его сегмента.
func (a *Aggregator) collectPreviousChoices(segments []models.StorySegment) []models.PreviousChoice {
	var choices []models.PreviousChoice
	for _, seg := range segments {
		if seg.TriggeringChoiceText == nil || *seg.TriggeringChoiceText == "" {
			continue
		}
		consequences := a.extractor.ClassifyConsequences(seg.Text)
		choices = append(choices, models.PreviousChoice{
			Choice:       *seg.TriggeringChoiceText,
			Consequences: consequences,
			ImpactLevel:  a.extractor.ImpactLevel(*seg.TriggeringChoiceText, consequences),
		})
	}
	return choices
}
