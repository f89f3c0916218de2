package services

import "strings"

// TextChunker slices extracted document text into bounded, overlapping
// windows. The position of each chunk in the returned slice is its
// chunk_index; one pass over one source yields a contiguous run from 0.
type TextChunker interface {
	ChunkText(text string, size, overlap int) []string
}

type textChunker struct{}

func NewTextChunker() TextChunker {
	return &textChunker{}
}

// ChunkText implements TextChunker.
func (tc *textChunker) ChunkText(text string, size, overlap int) []string {
	if size <= 0 {
		size = 1000
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= size {
		overlap = size / 4
	}

	var chunks []string
	step := size - overlap
	if step < 1 {
		step = 1
	}

	for i := 0; i < len(text); i += step {
		end := i + size
		if end > len(text) {
			end = len(text)
		}
		piece := strings.TrimSpace(text[i:end])
		if piece != "" {
			chunks = append(chunks, piece)
		}
		if end == len(text) {
			break
		}
	}

	return chunks
}
