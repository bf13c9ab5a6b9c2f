package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVisualContextMerge(t *testing.T) {
	t.Run("FirstDescriptionIsCanonical", func(t *testing.T) {
		vc := &VisualContext{
			Style:      "watercolor",
			Characters: map[string]string{"Aria": "a tall woman with silver hair"},
		}
		vc.Merge(&VisualContext{
			Style: "oil painting",
			Characters: map[string]string{
				"Aria":  "a short woman with black hair",
				"Torin": "a bearded dwarf in mail",
			},
		})

		assert.Equal(t, "watercolor", vc.Style)
		assert.Equal(t, "a tall woman with silver hair", vc.Characters["Aria"])
		assert.Equal(t, "a bearded dwarf in mail", vc.Characters["Torin"])
	})

	t.Run("EmptyReceiverAdoptsIncoming", func(t *testing.T) {
		vc := &VisualContext{}
		vc.Merge(&VisualContext{
			Style:      "pixel art",
			Characters: map[string]string{"Hero": "a cloaked figure"},
		})

		assert.Equal(t, "pixel art", vc.Style)
		assert.Equal(t, "a cloaked figure", vc.Characters["Hero"])
	})

	t.Run("NilAndEmptyIncoming", func(t *testing.T) {
		vc := &VisualContext{Style: "ink"}
		vc.Merge(nil)
		vc.Merge(&VisualContext{})

		assert.Equal(t, "ink", vc.Style)
		assert.Nil(t, vc.Characters)
	})

	t.Run("BlankDescriptionsIgnored", func(t *testing.T) {
		vc := &VisualContext{}
		vc.Merge(&VisualContext{Characters: map[string]string{"Ghost": ""}})

		assert.NotContains(t, vc.Characters, "Ghost")
	})
}

func TestImageStatusCanRegenerate(t *testing.T) {
	assert.True(t, ImageStatusFailed.CanRegenerate())
	assert.True(t, ImageStatusNotStarted.CanRegenerate())
	assert.False(t, ImageStatusGenerating.CanRegenerate())
	assert.False(t, ImageStatusCompleted.CanRegenerate())
}

func TestAudioStatusCanStartAudio(t *testing.T) {
	assert.True(t, AudioStatusNotStarted.CanStartAudio())
	assert.True(t, AudioStatusFailed.CanStartAudio())
	assert.False(t, AudioStatusInProgress.CanStartAudio())
	assert.False(t, AudioStatusCompleted.CanStartAudio())
}
