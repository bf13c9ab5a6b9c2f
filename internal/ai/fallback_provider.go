package ai

import (
	"fmt"

	"fable-server/internal/models"
)

// FallbackProvider - терминальный детерминированный генератор.
// Синтезирует минимальный валидный сегмент из жанра и нарративного
// контекста без сетевых вызовов, поэтому упасть не может: он гарантирует,
// что оркестратор всегда вернёт структурно валидный результат.
type FallbackProvider struct{}

// NewFallbackProvider возвращает терминальный генератор цепочки.
func NewFallbackProvider() *FallbackProvider {
	return &FallbackProvider{}
}

func (p *FallbackProvider) Name() string { return "fallback" }

var fallbackOpeners = map[models.StoryStage]string{
	models.StageSetup:         "The journey begins quietly",
	models.StageRisingAction:  "The path grows harder",
	models.StageClimax:        "Everything comes to a head",
	models.StageFallingAction: "The dust begins to settle",
	models.StageResolution:    "The long road nears its end",
}

// GenerateFromContext собирает сегмент из того, что уже известно о сюжете.
func (p *FallbackProvider) GenerateFromContext(genre string, nc models.NarrativeContext) *models.GeneratedSegment {
	opener := fallbackOpeners[nc.StoryArc.Stage]
	if opener == "" {
		opener = fallbackOpeners[models.StageSetup]
	}

	setting := nc.WorldBuilding.Setting
	if setting == "" {
		setting = "an unfamiliar land"
	}
	goal := nc.Characters.Protagonist.CurrentGoal
	if goal == "" {
		goal = "continuing the adventure"
	}
	atmosphere := nc.WorldBuilding.Atmosphere
	if atmosphere == "" {
		atmosphere = "uncertain"
	}

	text := fmt.Sprintf(
		"%s. In %s the air feels %s, and the hero presses on, %s. "+
			"Each step forward raises new questions about this %s tale, "+
			"yet turning back is no longer an option. Somewhere ahead lies the answer.",
		opener, setting, atmosphere, goal, genre)

	isEnd := nc.StoryArc.Stage == models.StageResolution && nc.StoryArc.ProgressPercentage >= 100

	segment := &models.GeneratedSegment{
		SegmentText: text,
		IsEnd:       isEnd,
		ImagePrompt: fmt.Sprintf("%s, %s atmosphere, %s scene", setting, atmosphere, genre),
	}
	if !isEnd {
		segment.Choices = []string{
			"Press onward along the main path",
			"Stop and study the surroundings",
			"Seek out someone who might help",
		}
	}
	return segment
}
