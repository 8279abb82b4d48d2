package services

import (
	"strings"
	"unicode/utf8"
)

const (
	defaultChunkSize    = 800
	defaultChunkOverlap = 120
)

// ChunkText splits résumé text into chunks of roughly maxChunkSize runes;
// the overlap tail may push a chunk slightly past it. Paragraphs are kept
// whole when they fit, longer ones are split into sentences. Each new chunk
// starts with the last overlap runes of the previous one.
func ChunkText(text string, maxChunkSize int, overlap int) []string {
	if maxChunkSize <= 0 {
		maxChunkSize = defaultChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= maxChunkSize {
		overlap = maxChunkSize / 4
	}

	b := &chunkBuilder{max: maxChunkSize, overlap: overlap}
	text = strings.ReplaceAll(text, "\r\n", "\n")

	for _, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		if utf8.RuneCountInString(para) <= maxChunkSize {
			b.add(para, "\n\n")
			continue
		}
		for _, sentence := range splitIntoSentences(para) {
			b.add(sentence, " ")
		}
	}
	return b.finish()
}

type chunkBuilder struct {
	max     int
	overlap int
	chunks  []string
	current strings.Builder
	size    int
}

func (b *chunkBuilder) add(piece, sep string) {
	pieceLen := utf8.RuneCountInString(piece)
	if b.size > 0 && b.size+len(sep)+pieceLen > b.max {
		b.flush(sep)
	}
	if b.size > 0 {
		b.current.WriteString(sep)
		b.size += len(sep)
	}
	b.current.WriteString(piece)
	b.size += pieceLen
}

// flush closes the current chunk and seeds the next with the overlap tail.
func (b *chunkBuilder) flush(sep string) {
	prev := b.current.String()
	b.chunks = append(b.chunks, prev)
	b.current.Reset()
	b.size = 0

	if tail := lastRunes(prev, b.overlap); tail != "" {
		b.current.WriteString(tail)
		b.size = utf8.RuneCountInString(tail)
	}
}

func (b *chunkBuilder) finish() []string {
	if b.size > 0 {
		b.chunks = append(b.chunks, b.current.String())
	}
	return b.chunks
}

func splitIntoSentences(text string) []string {
	var out []string
	start := 0
	for i, r := range text {
		if r == '.' || r == '!' || r == '?' || r == '\n' {
			if s := strings.TrimSpace(text[start : i+utf8.RuneLen(r)]); s != "" {
				out = append(out, s)
			}
			start = i + utf8.RuneLen(r)
		}
	}
	if s := strings.TrimSpace(text[start:]); s != "" {
		out = append(out, s)
	}
	return out
}

func lastRunes(text string, n int) string {
	if n <= 0 {
		return ""
	}
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	return string(runes[len(runes)-n:])
}
