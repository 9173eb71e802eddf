package processor

import (
	"fmt"
	"unicode/utf8"

	"github.com/xhad/docbot/internal/models"
)

type ProcessorConfig struct {
	ChunkSize    int
	ChunkOverlap int
	// Separator is the preferred break character.
	Separator rune
}

type Processor struct {
	config ProcessorConfig
}

func NewWithConfig(config ProcessorConfig) (Processor, error) {
	if config.ChunkSize == 0 {
		config.ChunkSize = 1000
	}
	if config.Separator == 0 {
		config.Separator = '\n'
	}
	if config.ChunkSize < 0 {
		return Processor{}, fmt.Errorf("chunk size must be positive, got %d", config.ChunkSize)
	}
	if config.ChunkOverlap < 0 || config.ChunkOverlap >= config.ChunkSize {
		return Processor{}, fmt.Errorf("chunk overlap must be non-negative and less than chunk size, got %d/%d",
			config.ChunkOverlap, config.ChunkSize)
	}

	return Processor{
		config: config,
	}, nil
}

func (p Processor) Config() ProcessorConfig {
	return p.config
}

// Process splits the content of a document into chunks.
func (p Processor) Process(doc models.Document) []models.Chunk {
	return p.Split(sanitizeUTF8(doc.Content))
}

// Split cuts text into windows of at most ChunkSize characters. Each window
// ends just after the last separator that keeps the next window moving
// forward, or at ChunkSize when there is none. Consecutive windows share
// exactly ChunkOverlap characters.
func (p Processor) Split(text string) []models.Chunk {
	runes := []rune(text)
	n := len(runes)
	if n == 0 {
		return nil
	}

	size, overlap := p.config.ChunkSize, p.config.ChunkOverlap

	var chunks []models.Chunk
	start := 0
	for {
		end := start + size
		if end >= n {
			chunks = append(chunks, models.Chunk{
				Index: len(chunks),
				Start: start,
				Text:  string(runes[start:]),
			})
			return chunks
		}

		end = p.breakPoint(runes, start+overlap, end)
		chunks = append(chunks, models.Chunk{
			Index: len(chunks),
			Start: start,
			Text:  string(runes[start:end]),
		})
		start = end - overlap
	}
}

// breakPoint returns the end of a window, preferring the position right after
// the last separator in runes[min:max].
func (p Processor) breakPoint(runes []rune, min, max int) int {
	for i := max - 1; i >= min; i-- {
		if runes[i] == p.config.Separator {
			return i + 1
		}
	}
	return max
}

func sanitizeUTF8(s string) string {
	if !utf8.ValidString(s) {
		v := make([]rune, 0, len(s))
		for i, r := range s {
			if r == utf8.RuneError {
				_, size := utf8.DecodeRuneInString(s[i:])
				if size == 1 {
					continue
				}
			}
			v = append(v, r)
		}
		return string(v)
	}
	return s
}
