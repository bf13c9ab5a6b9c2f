package tts

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// SplitSentences разбивает текст на предложения по терминаторам (. ! ?),
// захватывая закрывающие кавычки/скобки после терминатора. Пробелы между
// предложениями не сохраняются.
func SplitSentences(text string) []string {
	var sentences []string
	runes := []rune(text)
	start := 0

	for i := 0; i < len(runes); i++ {
		if !isTerminator(runes[i]) {
			continue
		}
		// Поглощаем цепочку терминаторов ("?!", "...") и хвостовые кавычки.
		end := i + 1
		for end < len(runes) && (isTerminator(runes[end]) || isClosing(runes[end])) {
			end++
		}
		sentence := strings.TrimSpace(string(runes[start:end]))
		if sentence != "" {
			sentences = append(sentences, sentence)
		}
		start = end
		i = end - 1
	}

	if tail := strings.TrimSpace(string(runes[start:])); tail != "" {
		sentences = append(sentences, tail)
	}
	return sentences
}

func isTerminator(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

func isClosing(r rune) bool {
	return r == '"' || r == '\'' || r == ')' || r == '»' || unicode.Is(unicode.Pf, r)
}

// ChunkText жадно набирает предложения в чанк, пока добавление следующего
// не превысило бы лимит; тогда чанк сбрасывается и начинается новый.
// Предложение никогда не делится между чанками. Единственное исключение -
// предложение длиннее лимита само по себе: его пришлось бы отклонить
// провайдеру целиком, поэтому оно переносится по границе слова.
func ChunkText(text string, limit int) []string {
	if limit <= 0 || strings.TrimSpace(text) == "" {
		return nil
	}

	var chunks []string
	var current strings.Builder

	flush := func() {
		if current.Len() > 0 {
			chunks = append(chunks, current.String())
			current.Reset()
		}
	}

	for _, sentence := range SplitSentences(text) {
		if len(sentence) > limit {
			flush()
			chunks = append(chunks, wrapLongSentence(sentence, limit)...)
			continue
		}
		// +1 за пробел-разделитель внутри чанка.
		if current.Len() > 0 && current.Len()+1+len(sentence) > limit {
			flush()
		}
		if current.Len() > 0 {
			current.WriteByte(' ')
		}
		current.WriteString(sentence)
	}
	flush()
	return chunks
}

// wrapLongSentence переносит слишком длинное предложение по словам.
// Слово длиннее лимита режется по рунам: часть длиннее лимита провайдер
// отклонил бы в любом случае.
func wrapLongSentence(sentence string, limit int) []string {
	var parts []string
	var current strings.Builder

	flush := func() {
		if current.Len() > 0 {
			parts = append(parts, current.String())
			current.Reset()
		}
	}

	for _, word := range strings.Fields(sentence) {
		if len(word) > limit {
			flush()
			parts = append(parts, splitLongWord(word, limit)...)
			continue
		}
		if current.Len() > 0 && current.Len()+1+len(word) > limit {
			flush()
		}
		if current.Len() > 0 {
			current.WriteByte(' ')
		}
		current.WriteString(word)
	}
	flush()
	return parts
}

func splitLongWord(word string, limit int) []string {
	var parts []string
	var current strings.Builder

	for _, r := range word {
		if current.Len()+utf8.RuneLen(r) > limit && current.Len() > 0 {
			parts = append(parts, current.String())
			current.Reset()
		}
		current.WriteRune(r)
	}
	if current.Len() > 0 {
		parts = append(parts, current.String())
	}
	return parts
}
