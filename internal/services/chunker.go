package services

import (
	"strings"
	"unicode/utf8"
)

const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

type TextChunker interface {
	ChunkText(text string, maxChunkSize int, overlap int) []string
}

type textChunker struct{}

func NewTextChunker() TextChunker {
	return &textChunker{}
}

// chunkBuilder accumulates pieces and carries an overlap tail into the next chunk.
type chunkBuilder struct {
	max     int
	overlap int
	chunks  []string
	current strings.Builder
	size    int
}

func (cb *chunkBuilder) add(piece, sep string) {
	pieceLen := utf8.RuneCountInString(piece)
	if cb.size > 0 && cb.size+utf8.RuneCountInString(sep)+pieceLen > cb.max {
		cb.flush()
	}
	if cb.size > 0 {
		cb.write(sep)
	}
	cb.write(piece)
}

func (cb *chunkBuilder) flush() {
	prev := cb.current.String()
	cb.chunks = append(cb.chunks, prev)
	cb.current.Reset()
	cb.size = 0

	// a chunk no longer than the overlap is not repeated
	if cb.overlap > 0 && utf8.RuneCountInString(prev) > cb.overlap {
		cb.write(lastNRunes(prev, cb.overlap))
	}
}

func (cb *chunkBuilder) write(s string) {
	cb.current.WriteString(s)
	cb.size += utf8.RuneCountInString(s)
}

func (cb *chunkBuilder) finish() []string {
	if cb.size > 0 {
		cb.chunks = append(cb.chunks, cb.current.String())
	}
	return cb.chunks
}

// ChunkText splits on paragraphs, falling back to sentences for oversized ones.
func (tc *textChunker) ChunkText(text string, maxChunkSize int, overlap int) []string {
	if maxChunkSize <= 0 {
		maxChunkSize = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= maxChunkSize {
		overlap = maxChunkSize / 4
	}

	cb := &chunkBuilder{max: maxChunkSize, overlap: overlap}

	for _, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}

		if utf8.RuneCountInString(para) <= maxChunkSize {
			cb.add(para, "\n\n")
			continue
		}

		for _, sentence := range splitIntoSentences(para) {
			cb.add(sentence, " ")
		}
	}

	return cb.finish()
}

func splitIntoSentences(text string) []string {
	var result []string
	start := 0
	for i, r := range text {
		if r == '.' || r == '!' || r == '?' {
			if s := strings.TrimSpace(text[start : i+1]); s != "" {
				result = append(result, s)
			}
			start = i + 1
		}
	}
	if s := strings.TrimSpace(text[start:]); s != "" {
		result = append(result, s)
	}
	return result
}

func lastNRunes(text string, n int) string {
	if n <= 0 {
		return ""
	}

	runes := []rune(text)
	if len(runes) <= n {
		return text
	}

	return string(runes[len(runes)-n:])
}
