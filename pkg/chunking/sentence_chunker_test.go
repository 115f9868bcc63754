package chunking

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkBySentences(t *testing.T) {
	testCases := []struct {
		name         string
		text         string
		maxSentences int
		expected     []string
	}{
		{
			name:         "GroupsOfThree",
			text:         "A cat sat. It slept. Then it ran. The end.",
			maxSentences: 3,
			expected:     []string{"A cat sat. It slept. Then it ran.", "The end."},
		},
		{
			name:         "NoTerminator",
			text:         "Hello world",
			maxSentences: 3,
			expected:     []string{"Hello world"},
		},
		{
			name:         "NoTerminatorKeepsSurroundingWhitespace",
			text:         "  Hello world  ",
			maxSentences: 3,
			expected:     []string{"  Hello world  "},
		},
		{
			name:         "Empty",
			text:         "",
			maxSentences: 3,
			expected:     []string{""},
		},
		{
			name:         "RepeatedTerminators",
			text:         "Wait... What?! Really!!",
			maxSentences: 1,
			expected:     []string{"Wait...", "What?!", "Really!!"},
		},
		{
			name:         "TrailingFragmentDropped",
			text:         "First one. Second one. and a dangling tail",
			maxSentences: 5,
			expected:     []string{"First one. Second one."},
		},
		{
			name:         "NewlinesInsideSentence",
			text:         "Line one\ncontinues here. Next!",
			maxSentences: 1,
			expected:     []string{"Line one\ncontinues here.", "Next!"},
		},
		{
			name:         "ZeroMaxSentencesClampedToOne",
			text:         "One. Two.",
			maxSentences: 0,
			expected:     []string{"One.", "Two."},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, ChunkBySentences(tc.text, tc.maxSentences))
		})
	}
}

func TestChunkBySentences_ChunkCount(t *testing.T) {
	text := "One. Two. Three. Four. Five. Six. Seven."
	k := len(SplitSentences(text))
	require.Equal(t, 7, k)

	for n := 1; n <= 10; n++ {
		chunks := ChunkBySentences(text, n)
		expected := int(math.Ceil(float64(k) / float64(n)))
		assert.Len(t, chunks, expected, "maxSentences=%d", n)
	}
}

func TestChunkBySentences_SingleChunkWhenMaxCoversAll(t *testing.T) {
	text := "Alpha beta. Gamma delta! Epsilon?"

	for _, n := range []int{3, 4, 100} {
		chunks := ChunkBySentences(text, n)
		require.Len(t, chunks, 1)
		assert.Equal(t, "Alpha beta. Gamma delta! Epsilon?", chunks[0])
	}
}

func TestChunkBySentences_RejoinPreservesSentences(t *testing.T) {
	text := "  The hero wakes.   A storm rolls in!\nWho sent it? Nobody knows. The end.  "

	var expected []string
	for _, s := range SplitSentences(text) {
		expected = append(expected, strings.TrimSpace(s))
	}

	for n := 1; n <= 5; n++ {
		joined := strings.Join(ChunkBySentences(text, n), " ")
		assert.Equal(t, strings.Join(expected, " "), joined, "maxSentences=%d", n)
	}
}

func TestChunkBySentences_ChunksAreTrimmed(t *testing.T) {
	for _, chunk := range ChunkBySentences("  One.   Two.  Three.   Four.  ", 2) {
		assert.Equal(t, strings.TrimSpace(chunk), chunk)
	}
}
