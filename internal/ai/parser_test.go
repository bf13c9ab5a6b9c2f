package ai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSegmentResponse(t *testing.T) {
	t.Run("ValidJSON", func(t *testing.T) {
		raw := `{"segmentText": "The gate opened.", "choices": ["Enter", "Wait", "Leave"], "isEnd": false, "imagePrompt": "an open gate"}`

		seg, err := ParseSegmentResponse(raw)

		require.NoError(t, err)
		assert.Equal(t, "The gate opened.", seg.SegmentText)
		assert.Len(t, seg.Choices, 3)
		assert.Equal(t, "an open gate", seg.ImagePrompt)
	})

	t.Run("MarkdownFences", func(t *testing.T) {
		raw := "```json\n{\"segmentText\": \"Text.\", \"choices\": [\"A\", \"B\", \"C\"]}\n```"

		seg, err := ParseSegmentResponse(raw)

		require.NoError(t, err)
		assert.Equal(t, "Text.", seg.SegmentText)
	})

	t.Run("EndSegmentWithoutChoices", func(t *testing.T) {
		raw := `{"segmentText": "The end.", "choices": [], "isEnd": true}`

		seg, err := ParseSegmentResponse(raw)

		require.NoError(t, err)
		assert.True(t, seg.IsEnd)
		assert.Empty(t, seg.Choices)
	})

	t.Run("VisualContextPassthrough", func(t *testing.T) {
		raw := `{"segmentText": "T.", "choices": ["A"], "visualContext": {"style": "ink", "characters": {"Ava": "short red hair, green coat"}}}`

		seg, err := ParseSegmentResponse(raw)

		require.NoError(t, err)
		require.NotNil(t, seg.VisualContext)
		assert.Equal(t, "ink", seg.VisualContext.Style)
		assert.Equal(t, "short red hair, green coat", seg.VisualContext.Characters["Ava"])
	})

	invalid := []struct {
		name string
		raw  string
	}{
		{"Empty", ""},
		{"NotJSON", "once upon a time"},
		{"MissingSegmentText", `{"choices": ["A"]}`},
		{"BlankSegmentText", `{"segmentText": "   ", "choices": ["A"]}`},
		{"MissingChoices", `{"segmentText": "T."}`},
		{"EmptyChoicesNotEnd", `{"segmentText": "T.", "choices": [], "isEnd": false}`},
		{"BlankChoice", `{"segmentText": "T.", "choices": ["A", "  "]}`},
	}

	for _, tt := range invalid {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseSegmentResponse(tt.raw)
			assert.ErrorIs(t, err, ErrProviderFailed)
		})
	}
}
