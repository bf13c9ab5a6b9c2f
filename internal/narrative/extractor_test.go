package narrative

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"fable-server/internal/models"
)

func TestKeywordExtractor_ProtagonistTraits(t *testing.T) {
	e := NewKeywordExtractor()

	texts := []string{
		"She was brave enough to enter, curious about the strange light.",
		"Brave as ever, she pressed on.",
	}
	traits := e.ProtagonistTraits(texts)

	// Дубликаты схлопываются, порядок категорий фиксирован.
	assert.Equal(t, []string{"bravery", "curiosity"}, traits)
}

func TestKeywordExtractor_CurrentGoal(t *testing.T) {
	e := NewKeywordExtractor()

	t.Run("NewestSegmentWins", func(t *testing.T) {
		goal := e.CurrentGoal([]string{
			"They fled the burning keep to escape the flames.",
			"Now they search for the lost heir.",
		})
		assert.Equal(t, "searching for something important", goal)
	})

	t.Run("Default", func(t *testing.T) {
		goal := e.CurrentGoal([]string{"The morning was quiet."})
		assert.Equal(t, "continuing the adventure", goal)
	})
}

func TestKeywordExtractor_PlotThreads(t *testing.T) {
	e := NewKeywordExtractor()

	texts := []string{
		"A cryptic inscription covered the wall.",
		"The road ahead was quiet.",
		"An ominous howl warned of danger.",
	}
	threads := e.PlotThreads(texts)

	assert.Len(t, threads, 2)
	// hidden_message встречался раньше последнего сегмента - developing.
	assert.Equal(t, "hidden_message", threads[0].ID)
	assert.Equal(t, models.ThreadDeveloping, threads[0].Status)
	// looming_danger впервые появился в последнем сегменте - introduced.
	assert.Equal(t, "looming_danger", threads[1].ID)
	assert.Equal(t, models.ThreadIntroduced, threads[1].Status)
}

func TestKeywordExtractor_SettingAndAtmosphere(t *testing.T) {
	e := NewKeywordExtractor()

	t.Run("KeywordMatch", func(t *testing.T) {
		setting := e.Setting([]string{"They crossed into the dark forest."}, "mystery")
		assert.Equal(t, "a deep, ancient forest", setting)
	})

	t.Run("GenreFallback", func(t *testing.T) {
		setting := e.Setting([]string{"Nothing matched here."}, "sci-fi")
		assert.Equal(t, "a distant star system", setting)
	})

	t.Run("AtmosphereIgnoresOldSegments", func(t *testing.T) {
		// Маркер страха только в первом из трёх сегментов: он вне окна
		// свежести и на атмосферу не влияет.
		atmosphere := e.Atmosphere([]string{
			"Fear gripped the town.",
			"A calm day passed.",
			"Another calm day passed.",
		}, "epic-fantasy")
		assert.Equal(t, "wondrous and adventurous", atmosphere)
	})

	t.Run("AtmosphereFromRecent", func(t *testing.T) {
		atmosphere := e.Atmosphere([]string{
			"A calm day.",
			"Dread filled the dark corridor.",
		}, "epic-fantasy")
		assert.Equal(t, "tense and foreboding", atmosphere)
	})
}

func TestKeywordExtractor_ClassifyConsequences(t *testing.T) {
	e := NewKeywordExtractor()

	got := e.ClassifyConsequences("They discover a trap behind the altar and a stranger comes to their aid.")

	assert.Equal(t, []string{"discovery", "danger", "help"}, got)
}

func TestKeywordExtractor_ImpactLevel(t *testing.T) {
	e := NewKeywordExtractor()

	tests := []struct {
		name         string
		choice       string
		consequences []string
		want         models.ImpactLevel
	}{
		{"Confrontation", "Attack the guard", nil, models.ImpactHigh},
		{"Reveal", "Reveal your true name", nil, models.ImpactHigh},
		{"Exploration", "Explore the cellar", nil, models.ImpactMedium},
		{"ManyConsequences", "Wait quietly", []string{"discovery", "danger"}, models.ImpactMedium},
		{"Low", "Wait quietly", []string{"progress"}, models.ImpactLow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, e.ImpactLevel(tt.choice, tt.consequences))
		})
	}
}
