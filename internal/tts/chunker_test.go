package tts

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitSentences(t *testing.T) {
	t.Run("BasicTerminators", func(t *testing.T) {
		got := SplitSentences("First one. Second one! Third one?")
		assert.Equal(t, []string{"First one.", "Second one!", "Third one?"}, got)
	})

	t.Run("CombinedTerminators", func(t *testing.T) {
		got := SplitSentences("Really?! Yes... Fine.")
		assert.Equal(t, []string{"Really?!", "Yes...", "Fine."}, got)
	})

	t.Run("TrailingQuote", func(t *testing.T) {
		got := SplitSentences(`"Stop!" she shouted.`)
		assert.Equal(t, []string{`"Stop!"`, "she shouted."}, got)
	})

	t.Run("NoTerminatorTail", func(t *testing.T) {
		got := SplitSentences("An unfinished thought")
		assert.Equal(t, []string{"An unfinished thought"}, got)
	})

	t.Run("Empty", func(t *testing.T) {
		assert.Empty(t, SplitSentences("   "))
	})
}

func TestChunkText(t *testing.T) {
	t.Run("SingleChunkWhenUnderLimit", func(t *testing.T) {
		chunks := ChunkText("One. Two. Three.", 100)
		assert.Equal(t, []string{"One. Two. Three."}, chunks)
	})

	t.Run("NeverSplitsSentence", func(t *testing.T) {
		text := "Alpha beta gamma. Delta epsilon zeta. Eta theta iota."
		chunks := ChunkText(text, 40)
		require.NotEmpty(t, chunks)
		for _, c := range chunks {
			assert.LessOrEqual(t, len(c), 40)
			// Каждый чанк заканчивается на границе предложения.
			assert.Contains(t, ".!?", string(c[len(c)-1]))
		}
	})

	t.Run("ConcatenationPreservesAllSentences", func(t *testing.T) {
		text := "The cave was dark. A torch flickered ahead! Who goes there? Silence answered."
		chunks := ChunkText(text, 30)
		joined := strings.Join(chunks, " ")
		for _, s := range SplitSentences(text) {
			assert.Contains(t, joined, s)
		}
	})

	t.Run("OversizedSentenceWrapsAtWords", func(t *testing.T) {
		long := strings.Repeat("word ", 50) + "end."
		chunks := ChunkText(long, 60)
		require.Greater(t, len(chunks), 1)
		for _, c := range chunks {
			assert.LessOrEqual(t, len(c), 60)
		}
		assert.Equal(t, strings.TrimSpace(long), strings.Join(chunks, " "))
	})

	t.Run("NineThousandCharsWithFourThousandLimit", func(t *testing.T) {
		// ~9000 символов текста при лимите 4000 дают 3 чанка.
		sentence := "The hero walked through the endless corridor searching for a way out of the ancient labyrinth."
		var b strings.Builder
		for b.Len() < 9000 {
			b.WriteString(sentence)
			b.WriteByte(' ')
		}
		chunks := ChunkText(b.String(), 4000)
		assert.Len(t, chunks, 3)
		for _, c := range chunks {
			assert.LessOrEqual(t, len(c), 4000)
		}
	})

	t.Run("EmptyInput", func(t *testing.T) {
		assert.Nil(t, ChunkText("", 100))
		assert.Nil(t, ChunkText("text", 0))
	})

	t.Run("OversizedWordSplitHard", func(t *testing.T) {
		// Одно слово длиннее лимита перенести по словам нельзя -
		// оно режется жестко, лимит соблюдается для каждого чанка.
		word := strings.Repeat("a", 95)
		chunks := ChunkText("Before. "+word+" after.", 10)
		require.NotEmpty(t, chunks)
		for _, c := range chunks {
			assert.LessOrEqual(t, len(c), 10)
		}
		assert.Equal(t, word, strings.Join(chunks[1:11], ""))
	})

	t.Run("OversizedWordSplitPreservesRunes", func(t *testing.T) {
		word := strings.Repeat("ночь", 20) // 160 байт, 80 рун
		chunks := ChunkText(word+".", 10)
		var rebuilt strings.Builder
		for _, c := range chunks {
			assert.LessOrEqual(t, len(c), 10)
			assert.True(t, utf8.ValidString(c))
			rebuilt.WriteString(strings.TrimSuffix(c, "."))
		}
		assert.Equal(t, word, rebuilt.String())
	})
}
