// Package chunk splits document text into segments sized for a single generation call.
package chunk

import (
	"strings"
	"unicode/utf8"
)

// Delimiter separates sentence-like fragments. It is re-appended after every fragment
// when fragments are packed back into chunks.
const Delimiter = ". "

// DefaultMaxSize is the character ceiling used when none is configured.
const DefaultMaxSize = 3000

// Split packs the sentences of text greedily into chunks of at most maxSize
// characters. The bound is a proxy for model input limits, not a token count: a
// single sentence longer than maxSize becomes its own oversized chunk and is never
// cut. Empty text yields no chunks.
func Split(text string, maxSize int) []string {
	fragments := Fragments(text)
	if len(fragments) == 0 {
		return nil
	}

	var chunks []string
	var buf strings.Builder
	size := 0
	for _, f := range fragments {
		n := utf8.RuneCountInString(f)
		if size > 0 && size+n > maxSize {
			chunks = append(chunks, buf.String())
			buf.Reset()
			size = 0
		}
		buf.WriteString(f)
		buf.WriteString(Delimiter)
		size += n + len(Delimiter)
	}
	if size > 0 {
		chunks = append(chunks, buf.String())
	}
	return chunks
}

// Fragments returns the sentence-like fragments of text without their delimiters.
// A period ending the text closes the last sentence like the delimiter does, and an
// empty last fragment is dropped.
func Fragments(text string) []string {
	if text == "" {
		return nil
	}
	fragments := strings.Split(text, Delimiter)
	last := len(fragments) - 1
	fragments[last] = strings.TrimSuffix(fragments[last], ".")
	if fragments[last] == "" {
		fragments = fragments[:last]
	}
	return fragments
}
