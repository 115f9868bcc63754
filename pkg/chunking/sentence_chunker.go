package chunking

import (
	"regexp"
	"strings"
)

// DefaultMaxSentences is the number of sentences grouped into one chunk
// when indexing catalog text.
const DefaultMaxSentences = 3

// sentencePattern matches a run of non-terminator characters followed by
// one or more terminators. Trailing text without a terminator never matches.
var sentencePattern = regexp.MustCompile(`[^.!?]+[.!?]+`)

// SplitSentences returns every sentence detected in text, in document order,
// untrimmed.
func SplitSentences(text string) []string {
	return sentencePattern.FindAllString(text, -1)
}

// ChunkBySentences groups consecutive sentences of text into chunks of at most
// maxSentences sentences. Sentences inside a chunk are joined by a single space.
//
// Text with no detectable sentence is returned unchanged as the only chunk, so
// the result always has at least one element.
func ChunkBySentences(text string, maxSentences int) []string {
	if maxSentences < 1 {
		maxSentences = 1
	}

	sentences := SplitSentences(text)
	if len(sentences) == 0 {
		return []string{text}
	}

	chunks := make([]string, 0, (len(sentences)+maxSentences-1)/maxSentences)
	for i := 0; i < len(sentences); i += maxSentences {
		end := min(i+maxSentences, len(sentences))

		batch := make([]string, 0, end-i)
		for _, s := range sentences[i:end] {
			batch = append(batch, strings.TrimSpace(s))
		}
		chunks = append(chunks, strings.TrimSpace(strings.Join(batch, " ")))
	}

	return chunks
}
