package services

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkTextShortInputSingleChunk(t *testing.T) {
	chunks := NewTextChunker().ChunkText("short text", 1000, 200)
	require.Len(t, chunks, 1)
	assert.Equal(t, "short text", chunks[0])
}

func TestChunkTextWindowsOverlap(t *testing.T) {
	text := strings.Repeat("abcdefghij", 30)
	chunks := NewTextChunker().ChunkText(text, 100, 20)

	require.True(t, len(chunks) > 1)
	// Adjacent windows share their overlap region.
	tail := chunks[0][len(chunks[0])-20:]
	assert.Equal(t, tail, chunks[1][:20])
}

func TestChunkTextCoversWholeInput(t *testing.T) {
	text := strings.Repeat("0123456789", 25)
	chunks := NewTextChunker().ChunkText(text, 100, 0)

	assert.Equal(t, text, strings.Join(chunks, ""))
}

func TestChunkTextSkipsWhitespaceOnlyWindows(t *testing.T) {
	text := "abc" + strings.Repeat(" ", 50)
	chunks := NewTextChunker().ChunkText(text, 10, 0)

	for _, c := range chunks {
		assert.NotEmpty(t, strings.TrimSpace(c))
	}
}

func TestChunkTextEmptyInput(t *testing.T) {
	assert.Empty(t, NewTextChunker().ChunkText("", 1000, 200))
}

func TestChunkTextDefendsAgainstBadParams(t *testing.T) {
	text := strings.Repeat("x", 100)

	assert.NotEmpty(t, NewTextChunker().ChunkText(text, 0, 0))
	assert.NotEmpty(t, NewTextChunker().ChunkText(text, 10, 10))
	assert.NotEmpty(t, NewTextChunker().ChunkText(text, 10, -5))
}
